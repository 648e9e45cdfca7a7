package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotHeld = errors.New("lock is not held")

// Locker is a try-lock keyed by string. TryLock returns ok=false when another holder has the key.
// The returned token identifies the lease; Unlock releases the key only while that lease still owns it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Key joins non-empty parts with ":".
func Key(parts ...string) string {
	var sb strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(":")
		}
		sb.WriteString(part)
	}
	return sb.String()
}

func newToken() string {
	return uuid.NewString()
}
