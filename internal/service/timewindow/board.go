package timewindow

import (
	"math"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
)

var directions = []attendance.Direction{attendance.DirectionStart, attendance.DirectionEnd}

// Subject identifies whose records a board is computed for.
type Subject struct {
	ActivityID string
	UserID     string
	Location   *time.Location
}

func (s Subject) key(ref activity.DaySlot, dir attendance.Direction) attendance.RecordKey {
	return attendance.RecordKey{
		ActivityID: s.ActivityID,
		UserID:     s.UserID,
		DayNumber:  ref.DayNumber,
		SlotKey:    ref.SlotKey,
		Direction:  dir,
	}
}

// Board computes the state of every registered (day, slot, direction) in schedule order:
// ascending day, the day's slot order, start before end. Records match on the exact tuple key.
func (e *Engine) Board(
	subject Subject,
	days []activity.ScheduleDay,
	registered activity.RegisteredSet,
	records map[attendance.RecordKey]attendance.AttendanceRecord,
	now time.Time,
) []attendance.SlotStatus {
	var board []attendance.SlotStatus
	for _, day := range days {
		for _, slot := range day.Slots {
			if !registered.Contains(day.DayNumber, slot.Key) {
				continue
			}
			ref := activity.DaySlot{DayNumber: day.DayNumber, SlotKey: slot.Key}
			for _, dir := range directions {
				status := attendance.SlotStatus{
					SlotTarget: attendance.SlotTarget{Day: day, Slot: slot, Direction: dir},
					State:      attendance.WindowNotStarted,
				}
				if rec, ok := records[subject.key(ref, dir)]; ok {
					status.Record = &rec
				}

				target, dated := e.Target(day, slot, dir, subject.Location)
				status.Target = target
				switch {
				case status.Record != nil:
					status.State = attendance.WindowDone
				case dated:
					status.State = e.State(now, target, false)
				}
				board = append(board, status)
			}
		}
	}
	return board
}

// FindAvailableCheckInSlot returns the first registered (slot, direction) whose state is available.
func (e *Engine) FindAvailableCheckInSlot(
	subject Subject,
	days []activity.ScheduleDay,
	registered activity.RegisteredSet,
	records map[attendance.RecordKey]attendance.AttendanceRecord,
	now time.Time,
) (attendance.SlotTarget, bool) {
	if next := NextAvailable(e.Board(subject, days, registered, records, now)); next != nil {
		return next.SlotTarget, true
	}
	return attendance.SlotTarget{}, false
}

// NextAvailable returns the first available entry of a board, nil when none is.
func NextAvailable(board []attendance.SlotStatus) *attendance.SlotStatus {
	for i := range board {
		if board[i].State == attendance.WindowAvailable {
			return &board[i]
		}
	}
	return nil
}

// Summarize counts a board. Completion is the share of entries that have a record.
func Summarize(board []attendance.SlotStatus) attendance.Summary {
	s := attendance.Summary{Total: len(board)}
	for _, entry := range board {
		switch entry.State {
		case attendance.WindowDone:
			s.Done++
		case attendance.WindowMissed:
			s.Missed++
		}
		switch entry.RecordStatus() {
		case attendance.StatusApproved:
			s.Approved++
		case attendance.StatusPending:
			s.Pending++
		case attendance.StatusRejected:
			s.Rejected++
		}
	}
	if s.Total > 0 {
		s.CompletionPercent = int(math.Round(float64(s.Done) * 100 / float64(s.Total)))
	}
	return s
}

// IndexRecords keys records by their tuple key. Duplicates collapse to the most recently updated one.
func IndexRecords(records []attendance.AttendanceRecord) map[attendance.RecordKey]attendance.AttendanceRecord {
	index := make(map[attendance.RecordKey]attendance.AttendanceRecord, len(records))
	for _, r := range records {
		key := r.Key()
		if existing, ok := index[key]; ok && !Newer(r, existing) {
			continue
		}
		index[key] = r
	}
	return index
}

// Newer reports whether a supersedes b: later UpdatedAt, then later CheckInTime.
func Newer(a, b attendance.AttendanceRecord) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.CheckInTime.After(b.CheckInTime)
}
