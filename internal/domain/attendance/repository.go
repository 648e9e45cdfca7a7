package attendance

import (
	"context"
)

// Backend is the source of truth for attendance records. It owns durable storage and the
// human-review transitions; the engine only submits proposals and reads back the result.
type Backend interface {
	// Submit stores a check-in. A submission for an existing (activity, user, day, slot, direction)
	// replaces that record instead of creating a second one.
	Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error)

	// FetchStatus returns every record of userID for activityID
	FetchStatus(ctx context.Context, activityID string, userID string) ([]AttendanceRecord, error)
}
