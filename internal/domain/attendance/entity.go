package attendance

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
)

type Direction string

const (
	DirectionStart Direction = "start"
	DirectionEnd   Direction = "end"
)

var DirectionValues = []string{
	string(DirectionStart),
	string(DirectionEnd),
}

// Label is the Vietnamese display name of the direction.
func (d Direction) Label() string {
	if d == DirectionEnd {
		return "kết thúc"
	}
	return "bắt đầu"
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var StatusValues = []string{
	string(StatusPending),
	string(StatusApproved),
	string(StatusRejected),
}

// WindowState is the availability of one (slot, direction), derived from the current time,
// the slot bounds and the presence of a record. It is never stored.
type WindowState string

const (
	WindowNotStarted WindowState = "not_started"
	WindowAvailable  WindowState = "available"
	WindowMissed     WindowState = "missed"
	WindowDone       WindowState = "done"
)

type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters, 0 when unknown
}

func (p Position) String() string {
	return fmt.Sprintf("%.6f, %.6f", p.Latitude, p.Longitude)
}

// RecordKey is the one matching rule for attendance records: strict equality on the tuple.
type RecordKey struct {
	ActivityID string
	UserID     string
	DayNumber  int
	SlotKey    activity.SlotKey
	Direction  Direction
}

func (k RecordKey) Slot() activity.DaySlot {
	return activity.DaySlot{DayNumber: k.DayNumber, SlotKey: k.SlotKey}
}

type Verification struct {
	DistanceMeters    *float64
	LocationValid     bool
	LocationScope     activity.LocationScope
	MinutesFromTarget int
	Late              bool
	Justification     string
}

type AttendanceRecord struct {
	ID          string
	ActivityID  string
	UserID      string
	Slot        activity.DaySlot
	Direction   Direction
	CheckInTime time.Time // capture instant of the photo
	Position    Position
	Address     string
	PhotoURL    string
	Status      Status

	Verification    Verification
	RejectionReason *string
	ReviewedBy      *string
	ReviewedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r AttendanceRecord) Key() RecordKey {
	return RecordKey{
		ActivityID: r.ActivityID,
		UserID:     r.UserID,
		DayNumber:  r.Slot.DayNumber,
		SlotKey:    r.Slot.SlotKey,
		Direction:  r.Direction,
	}
}

var slotRefPattern = regexp.MustCompile(`^Day (\d+) - ([A-Za-z_]+)$`)

// ParseSlotRef parses the display form "Day {n} - {slot}" produced by activity.DaySlot.String.
// Anything else is rejected; there is no fuzzy matching.
func ParseSlotRef(s string) (activity.DaySlot, error) {
	m := slotRefPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return activity.DaySlot{}, fmt.Errorf("invalid slot reference %q", s)
	}
	day, err := strconv.Atoi(m[1])
	if err != nil || day <= 0 {
		return activity.DaySlot{}, fmt.Errorf("invalid day number in slot reference %q", s)
	}
	return activity.DaySlot{DayNumber: day, SlotKey: activity.SlotKey(strings.ToLower(m[2]))}, nil
}

// Classification is the verdict of the time-window engine for one instant against a target instant.
type Classification struct {
	IsValid  bool
	IsLate   bool
	IsEarly  bool
	IsOnTime bool
	Minutes  int // rounded |now - target|, messaging only
}

// GeofenceResult is the verdict of the geofence validator.
type GeofenceResult struct {
	Valid          bool
	DistanceMeters *float64
	Location       *activity.ResolvedLocation
	Slot           *activity.DaySlot
	Message        string
}

// Frame is one captured photo with the instant the device took it.
type Frame struct {
	Data        []byte
	Filename    string
	ContentType string
	CapturedAt  time.Time
}

// PendingCheckIn carries everything gathered between capture and submission.
// It is passed explicitly from Prepare to Submit.
type PendingCheckIn struct {
	ActivityID   string
	ActivityName string
	UserID       string
	UserName     string
	Slot         activity.DaySlot
	Direction    Direction
	Target       time.Time
	Location     *time.Location

	CapturedAt     time.Time
	Photo          Frame
	Position       Position
	Classification Classification
	Geofence       GeofenceResult

	lockKey   string
	lockToken string
}

func (p PendingCheckIn) Key() RecordKey {
	return RecordKey{
		ActivityID: p.ActivityID,
		UserID:     p.UserID,
		DayNumber:  p.Slot.DayNumber,
		SlotKey:    p.Slot.SlotKey,
		Direction:  p.Direction,
	}
}

// LockKey is the single-flight key held from Prepare until Submit returns.
func (p PendingCheckIn) LockKey() string {
	return p.lockKey
}

// LockToken identifies the lease Prepare took on LockKey.
func (p PendingCheckIn) LockToken() string {
	return p.lockToken
}

// Prepared reports whether p came out of Prepare holding its lock.
func (p PendingCheckIn) Prepared() bool {
	return p.lockKey != "" && p.lockToken != ""
}

// WithLock returns a copy of p that carries the lock lease.
func (p PendingCheckIn) WithLock(key, token string) PendingCheckIn {
	p.lockKey = key
	p.lockToken = token
	return p
}

// ProposedStatus is the status the engine proposes: approved when on time, pending when late.
func (p PendingCheckIn) ProposedStatus() Status {
	if p.Classification.IsOnTime {
		return StatusApproved
	}
	return StatusPending
}

// WatermarkInfo is the evidence burned into a check-in photo.
type WatermarkInfo struct {
	ActivityName   string
	CapturedAt     time.Time
	Location       *time.Location
	UserName       string
	UserID         string
	Address        string
	Position       Position
	HasGeofence    bool
	DistanceMeters float64
	LocationValid  bool
}

// SlotTarget is one (day, slot, direction) resolved against the schedule, with its target instant.
type SlotTarget struct {
	Day       activity.ScheduleDay
	Slot      activity.ScheduleSlot
	Direction Direction
	Target    time.Time
}

func (t SlotTarget) Ref() activity.DaySlot {
	return activity.DaySlot{DayNumber: t.Day.DayNumber, SlotKey: t.Slot.Key}
}

// SlotStatus is the canonical presentation state of one registered (day, slot, direction).
type SlotStatus struct {
	SlotTarget
	State  WindowState
	Record *AttendanceRecord
}

// RecordStatus is the status of the attached record, empty when there is none.
func (s SlotStatus) RecordStatus() Status {
	if s.Record == nil {
		return ""
	}
	return s.Record.Status
}

type Summary struct {
	Total             int
	Done              int
	Approved          int
	Pending           int
	Rejected          int
	Missed            int
	CompletionPercent int
}
