package timewindow

import (
	"testing"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var subject = Subject{ActivityID: "act-1", UserID: "user-1", Location: hcm}

func boardDays() []activity.ScheduleDay {
	morning := activity.ScheduleSlot{Key: activity.SlotMorning, Name: "Buổi sáng", Start: activity.ClockTime{Hour: 8}, End: activity.ClockTime{Hour: 11}}
	afternoon := activity.ScheduleSlot{Key: activity.SlotAfternoon, Name: "Buổi chiều", Start: activity.ClockTime{Hour: 13}, End: activity.ClockTime{Hour: 16}}
	return []activity.ScheduleDay{
		{DayNumber: 1, Date: time.Date(2024, 3, 11, 0, 0, 0, 0, hcm), Slots: []activity.ScheduleSlot{morning, afternoon}},
		{DayNumber: 2, Date: time.Date(2024, 3, 12, 0, 0, 0, 0, hcm), Slots: []activity.ScheduleSlot{morning, afternoon}},
		{DayNumber: 3, Slots: []activity.ScheduleSlot{morning}},
	}
}

func record(day int, key activity.SlotKey, dir attendance.Direction, status attendance.Status, updated time.Time) attendance.AttendanceRecord {
	return attendance.AttendanceRecord{
		ID:          "rec-" + key.Label(),
		ActivityID:  subject.ActivityID,
		UserID:      subject.UserID,
		Slot:        activity.DaySlot{DayNumber: day, SlotKey: key},
		Direction:   dir,
		Status:      status,
		CheckInTime: updated,
		UpdatedAt:   updated,
	}
}

func TestEngine_Board(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	registered := activity.NewRegisteredSet(
		activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning},
		activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotAfternoon},
		activity.DaySlot{DayNumber: 2, SlotKey: activity.SlotMorning},
		activity.DaySlot{DayNumber: 3, SlotKey: activity.SlotMorning},
	)
	records := IndexRecords([]attendance.AttendanceRecord{
		record(1, activity.SlotMorning, attendance.DirectionStart, attendance.StatusApproved, at(8, 1, 0)),
		record(1, activity.SlotAfternoon, attendance.DirectionStart, attendance.StatusPending, at(13, 20, 0)),
	})
	now := time.Date(2024, 3, 11, 15, 50, 0, 0, hcm)

	board := e.Board(subject, boardDays(), registered, records, now)

	// 4 registered pairs x 2 directions; day 2 afternoon is not registered.
	require.Len(t, board, 8)

	states := make([]attendance.WindowState, 0, len(board))
	for _, s := range board {
		states = append(states, s.State)
	}
	assert.Equal(t, []attendance.WindowState{
		attendance.WindowDone,       // d1 morning start
		attendance.WindowMissed,     // d1 morning end (11:00)
		attendance.WindowDone,       // d1 afternoon start
		attendance.WindowAvailable,  // d1 afternoon end (16:00)
		attendance.WindowNotStarted, // d2 morning start
		attendance.WindowNotStarted, // d2 morning end
		attendance.WindowNotStarted, // d3 undated
		attendance.WindowNotStarted,
	}, states)

	assert.Equal(t, attendance.StatusPending, board[2].RecordStatus())
	assert.Equal(t, attendance.Status(""), board[3].RecordStatus())

	summary := Summarize(board)
	assert.Equal(t, attendance.Summary{
		Total:             8,
		Done:              2,
		Approved:          1,
		Pending:           1,
		Missed:            1,
		CompletionPercent: 25,
	}, summary)
}

func TestEngine_FindAvailableCheckInSlot(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	all := activity.NewRegisteredSet(
		activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning},
		activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotAfternoon},
	)

	t.Run("start before end", func(t *testing.T) {
		got, ok := e.FindAvailableCheckInSlot(subject, boardDays(), all, nil, at(7, 50, 0))
		require.True(t, ok)
		assert.Equal(t, activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning}, got.Ref())
		assert.Equal(t, attendance.DirectionStart, got.Direction)
		assert.True(t, got.Target.Equal(at(8, 0, 0)))
	})

	t.Run("done directions are skipped", func(t *testing.T) {
		records := IndexRecords([]attendance.AttendanceRecord{
			record(1, activity.SlotMorning, attendance.DirectionStart, attendance.StatusApproved, at(8, 0, 0)),
		})
		_, ok := e.FindAvailableCheckInSlot(subject, boardDays(), all, records, at(8, 10, 0))
		assert.False(t, ok)
	})

	t.Run("records of another user do not count", func(t *testing.T) {
		other := record(1, activity.SlotMorning, attendance.DirectionStart, attendance.StatusApproved, at(8, 0, 0))
		other.UserID = "user-2"
		got, ok := e.FindAvailableCheckInSlot(subject, boardDays(), all, IndexRecords([]attendance.AttendanceRecord{other}), at(8, 10, 0))
		require.True(t, ok)
		assert.Equal(t, attendance.DirectionStart, got.Direction)
	})

	t.Run("unregistered slots are never offered", func(t *testing.T) {
		onlyMorning := activity.NewRegisteredSet(activity.DaySlot{DayNumber: 2, SlotKey: activity.SlotMorning})
		_, ok := e.FindAvailableCheckInSlot(subject, boardDays(), onlyMorning, nil, time.Date(2024, 3, 12, 13, 5, 0, 0, hcm))
		assert.False(t, ok)
	})

	t.Run("end direction when start is missed", func(t *testing.T) {
		got, ok := e.FindAvailableCheckInSlot(subject, boardDays(), all, nil, at(10, 50, 0))
		require.True(t, ok)
		assert.Equal(t, attendance.DirectionEnd, got.Direction)
		assert.Equal(t, activity.SlotMorning, got.Slot.Key)
	})
}

func TestIndexRecords_CollapsesDuplicates(t *testing.T) {
	older := record(1, activity.SlotMorning, attendance.DirectionStart, attendance.StatusRejected, at(8, 0, 0))
	newer := record(1, activity.SlotMorning, attendance.DirectionStart, attendance.StatusPending, at(8, 20, 0))
	newer.ID = "rec-new"

	index := IndexRecords([]attendance.AttendanceRecord{newer, older})

	require.Len(t, index, 1)
	assert.Equal(t, "rec-new", index[newer.Key()].ID)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, attendance.Summary{}, Summarize(nil))
}
