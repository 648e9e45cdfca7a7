package timewindow

import (
	"fmt"
	"math"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
)

const (
	DefaultOnTimeMinutes = 15
	DefaultLateMinutes   = 30
)

// Policy sets the window widths around a target instant T: on-time is [T-OnTime, T+OnTime],
// late is (T+OnTime, T+Late].
type Policy struct {
	OnTime time.Duration
	Late   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		OnTime: DefaultOnTimeMinutes * time.Minute,
		Late:   DefaultLateMinutes * time.Minute,
	}
}

// Engine classifies instants against slot targets and derives slot availability.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	if policy.OnTime <= 0 {
		policy.OnTime = DefaultOnTimeMinutes * time.Minute
	}
	if policy.Late < policy.OnTime {
		policy.Late = policy.OnTime
	}
	return &Engine{policy: policy}
}

// Target returns the instant a direction of slot is measured against: the slot start for
// start, the slot end for end, on the day's date. ok is false for undated days.
func (e *Engine) Target(day activity.ScheduleDay, slot activity.ScheduleSlot, dir attendance.Direction, loc *time.Location) (time.Time, bool) {
	if !day.HasDate() {
		return time.Time{}, false
	}
	if loc == nil {
		loc = day.Date.Location()
	}
	clock := slot.Start
	if dir == attendance.DirectionEnd {
		clock = slot.End
	}
	return clock.On(day.Date, loc), true
}

// Classify places now relative to target. Thresholds compare instants; Minutes is for messages only.
func (e *Engine) Classify(now, target time.Time) attendance.Classification {
	c := attendance.Classification{
		Minutes: int(math.Round(math.Abs(now.Sub(target).Minutes()))),
	}

	switch {
	case now.Before(target.Add(-e.policy.OnTime)):
		c.IsEarly = true
	case !now.After(target.Add(e.policy.OnTime)):
		c.IsOnTime = true
		c.IsValid = true
	case !now.After(target.Add(e.policy.Late)):
		c.IsLate = true
		c.IsValid = true
	default:
		c.IsLate = true
	}
	return c
}

// State derives the availability of one (slot, direction). A record makes it done regardless of time.
func (e *Engine) State(now, target time.Time, hasRecord bool) attendance.WindowState {
	switch {
	case hasRecord:
		return attendance.WindowDone
	case now.Before(target.Add(-e.policy.OnTime)):
		return attendance.WindowNotStarted
	case !now.After(target.Add(e.policy.Late)):
		return attendance.WindowAvailable
	default:
		return attendance.WindowMissed
	}
}

// WindowOpen reports whether a check-in may be initiated at now, ignoring existing records.
func (e *Engine) WindowOpen(now, target time.Time) bool {
	return e.State(now, target, false) == attendance.WindowAvailable
}

// Check returns an OutOfTimeWindowError when now falls outside the accepted windows.
func (e *Engine) Check(now, target time.Time, dir attendance.Direction) (attendance.Classification, error) {
	c := e.Classify(now, target)
	if c.IsValid {
		return c, nil
	}
	return c, &attendance.OutOfTimeWindowError{
		Classification: c,
		Direction:      dir,
		Text:           RejectionMessage(c, dir),
	}
}

// RejectionMessage tells the student how early or late they are.
func RejectionMessage(c attendance.Classification, dir attendance.Direction) string {
	if c.IsEarly {
		return fmt.Sprintf("Chưa đến giờ điểm danh %s. Bạn đến sớm %s so với giờ quy định.",
			dir.Label(), FormatDuration(c.Minutes))
	}
	return fmt.Sprintf("Đã hết thời gian điểm danh %s. Bạn trễ %s so với giờ quy định.",
		dir.Label(), FormatDuration(c.Minutes))
}

// FormatDuration renders minutes as "N phút", "H giờ M phút" or "H giờ".
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = -minutes
	}
	if minutes < 60 {
		return fmt.Sprintf("%d phút", minutes)
	}
	hours, rest := minutes/60, minutes%60
	if rest == 0 {
		return fmt.Sprintf("%d giờ", hours)
	}
	return fmt.Sprintf("%d giờ %d phút", hours, rest)
}
