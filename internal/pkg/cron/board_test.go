package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/pkg/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubBoards struct {
	attendance.CheckInService
	states map[string]attendance.WindowState
	err    error
	calls  int
}

func (s *stubBoards) Board(_ context.Context, activityID, userID string) (attendance.BoardView, error) {
	s.calls++
	if s.err != nil {
		return attendance.BoardView{}, s.err
	}
	return attendance.BoardView{
		Activity: activity.Activity{ID: activityID, Name: "Mùa hè xanh"},
		Now:      time.Date(2025, 7, 1, 7, 50, 0, 0, time.UTC),
		Slots: []attendance.SlotStatus{{
			SlotTarget: attendance.SlotTarget{
				Day:       activity.ScheduleDay{DayNumber: 1},
				Slot:      activity.ScheduleSlot{Key: activity.SlotMorning, Name: "Sáng"},
				Direction: attendance.DirectionStart,
			},
			State: s.states[userID],
		}},
	}, nil
}

func receive(t *testing.T, ch chan sse.Event) (sse.Event, bool) {
	t.Helper()
	select {
	case ev := <-ch:
		return ev, true
	default:
		return sse.Event{}, false
	}
}

func refresh(t *testing.T, jobs *BoardJobs) Result {
	t.Helper()
	res, err := jobs.RefreshBoards(context.Background())
	require.NoError(t, err)
	return res
}

func TestBoardJobs_PublishesOnlyChanges(t *testing.T) {
	hub := sse.NewHub()
	svc := &stubBoards{states: map[string]attendance.WindowState{"u-1": attendance.WindowNotStarted}}
	jobs := NewBoardJobs(svc, hub, zap.NewNop())

	ch, cleanup := hub.Subscribe(sse.BoardTopic("act-1", "u-1"))
	defer cleanup()

	refresh(t, jobs)
	ev, ok := receive(t, ch)
	require.True(t, ok)
	assert.Equal(t, EventBoard, ev.Event)
	board, isBoard := ev.Data.(attendance.BoardResponse)
	require.True(t, isBoard)
	assert.Equal(t, "act-1", board.ActivityID)
	assert.Equal(t, string(attendance.WindowNotStarted), board.Slots[0].State)

	refresh(t, jobs)
	_, ok = receive(t, ch)
	assert.False(t, ok, "unchanged board must not be republished")

	svc.states["u-1"] = attendance.WindowAvailable
	refresh(t, jobs)
	ev, ok = receive(t, ch)
	require.True(t, ok)
	assert.Equal(t, string(attendance.WindowAvailable), ev.Data.(attendance.BoardResponse).Slots[0].State)
}

func TestBoardJobs_NoSubscribers(t *testing.T) {
	svc := &stubBoards{}
	jobs := NewBoardJobs(svc, sse.NewHub(), zap.NewNop())

	refresh(t, jobs)
	assert.Zero(t, svc.calls)
}

func TestBoardJobs_ForgetsClosedTopics(t *testing.T) {
	hub := sse.NewHub()
	svc := &stubBoards{states: map[string]attendance.WindowState{"u-1": attendance.WindowNotStarted}}
	jobs := NewBoardJobs(svc, hub, zap.NewNop())

	_, cleanup := hub.Subscribe(sse.BoardTopic("act-1", "u-1"))
	refresh(t, jobs)
	cleanup()
	refresh(t, jobs)

	ch, cleanup := hub.Subscribe(sse.BoardTopic("act-1", "u-1"))
	defer cleanup()
	refresh(t, jobs)
	_, ok := receive(t, ch)
	assert.True(t, ok, "a new subscriber receives the current board")
}

func TestBoardJobs_ReportsErrors(t *testing.T) {
	hub := sse.NewHub()
	svc := &stubBoards{err: errors.New("backend down")}
	jobs := NewBoardJobs(svc, hub, zap.NewNop())

	_, cleanup := hub.Subscribe(sse.BoardTopic("act-1", "u-1"))
	defer cleanup()

	res, err := jobs.RefreshBoards(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
	assert.Equal(t, Result{Activities: 1, Scanned: 1}, res)
}

func TestBoardJobs_ReportsCounts(t *testing.T) {
	hub := sse.NewHub()
	svc := &stubBoards{states: map[string]attendance.WindowState{}}
	jobs := NewBoardJobs(svc, hub, zap.NewNop())

	for _, topic := range []string{sse.BoardTopic("act-1", "u-1"), sse.BoardTopic("act-1", "u-2"), sse.BoardTopic("act-2", "u-1")} {
		_, cleanup := hub.Subscribe(topic)
		defer cleanup()
	}

	assert.Equal(t, Result{Activities: 2, Scanned: 3, Published: 3}, refresh(t, jobs))
	assert.Equal(t, Result{Activities: 2, Scanned: 3}, refresh(t, jobs))
}

func TestBoardJobs_JobIdlesWithoutSubscribers(t *testing.T) {
	hub := sse.NewHub()
	svc := &stubBoards{states: map[string]attendance.WindowState{}}
	jobs := NewBoardJobs(svc, hub, zap.NewNop())

	s := NewScheduler(zap.NewNop())
	s.AddJob(jobs.Job(time.Second))

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, svc.calls)

	_, cleanup := hub.Subscribe(sse.BoardTopic("act-1", "u-1"))
	defer cleanup()
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, svc.calls)
}

func TestScheduler_RunOnce(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	runs := 0
	s.AddJob(Job{Name: "count", Interval: time.Minute, Run: func(ctx context.Context) (Result, error) {
		runs++
		return Result{Scanned: 1}, nil
	}})
	s.AddJob(Job{Name: "fail", Interval: time.Minute, Run: func(ctx context.Context) (Result, error) {
		return Result{}, errors.New("boom")
	}})

	err := s.RunOnce(context.Background())
	assert.Equal(t, 1, runs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail: boom")
}

func TestScheduler_TickCountsConsecutiveFailures(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	fail := true
	job := Job{Name: "flaky", Interval: time.Minute, Run: func(ctx context.Context) (Result, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("run must carry a deadline")
		}
		if fail {
			return Result{}, errors.New("down")
		}
		return Result{}, nil
	}}

	failures := s.tick(context.Background(), job, 0)
	failures = s.tick(context.Background(), job, failures)
	assert.Equal(t, 2, failures)

	fail = false
	assert.Zero(t, s.tick(context.Background(), job, failures))
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	ran := make(chan struct{}, 1)
	s.AddJob(Job{Name: "once", Interval: time.Hour, Run: func(ctx context.Context) (Result, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return Result{}, nil
	}})

	s.Start()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}
	s.Stop()
}
