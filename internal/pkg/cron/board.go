package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/pkg/sse"
	"go.uber.org/zap"
)

// EventBoard is the SSE event name carrying a refreshed board.
const EventBoard = "board"

// BoardJobs recomputes the boards that have open SSE subscriptions and publishes the ones whose
// slot states changed since the last run.
type BoardJobs struct {
	service attendance.CheckInService
	hub     *sse.Hub
	logger  *zap.Logger

	mu   sync.Mutex
	last map[string]string
}

func NewBoardJobs(service attendance.CheckInService, hub *sse.Hub, logger *zap.Logger) *BoardJobs {
	return &BoardJobs{
		service: service,
		hub:     hub,
		logger:  logger,
		last:    make(map[string]string),
	}
}

// JobBoardRefresh is the scheduler name of the board refresh job.
const JobBoardRefresh = "board_refresh"

// Job returns the board refresh job. It idles while nobody is subscribed.
func (j *BoardJobs) Job(interval time.Duration) Job {
	return Job{
		Name:     JobBoardRefresh,
		Interval: interval,
		Idle:     func() bool { return j.hub.TotalSubscribers() == 0 },
		Run:      j.RefreshBoards,
	}
}

// RefreshBoards recomputes every subscribed board and publishes the changed ones.
func (j *BoardJobs) RefreshBoards(ctx context.Context) (Result, error) {
	topics := j.hub.Topics()
	live := make(map[string]struct{}, len(topics))
	activities := make(map[string]struct{})

	var (
		res  Result
		errs []error
	)
	for _, topic := range topics {
		live[topic] = struct{}{}

		activityID, userID, ok := sse.ParseBoardTopic(topic)
		if !ok {
			continue
		}
		activities[activityID] = struct{}{}
		res.Scanned++

		view, err := j.service.Board(ctx, activityID, userID)
		if err != nil {
			j.logger.Debug("board refresh failed",
				zap.String("activity_id", activityID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("failed to refresh board %s/%s: %w", activityID, userID, err))
			continue
		}

		fp := fingerprint(view)
		j.mu.Lock()
		changed := j.last[topic] != fp
		j.last[topic] = fp
		j.mu.Unlock()

		if changed {
			j.hub.Publish(topic, sse.Event{Event: EventBoard, Data: attendance.ToBoardResponse(view)})
			res.Published++
		}
	}
	res.Activities = len(activities)

	j.mu.Lock()
	for topic := range j.last {
		if _, ok := live[topic]; !ok {
			delete(j.last, topic)
		}
	}
	j.mu.Unlock()

	return res, errors.Join(errs...)
}

func fingerprint(v attendance.BoardView) string {
	var b strings.Builder
	for _, s := range v.Slots {
		fmt.Fprintf(&b, "%d/%s/%s=%s:%s;", s.Day.DayNumber, s.Slot.Key, s.Direction, s.State, s.RecordStatus())
	}
	return b.String()
}
