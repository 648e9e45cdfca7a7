package activity

import (
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // activity time zones must load on hosts without zoneinfo
)

type Kind string

const (
	KindSingleDay Kind = "single_day"
	KindMultiDay  Kind = "multi_day"
)

var KindValues = []string{
	string(KindSingleDay),
	string(KindMultiDay),
}

// SlotKey identifies a period within a day. The three well-known keys are used by
// multi-day schedules; single-day activities may carry arbitrary named slots.
type SlotKey string

const (
	SlotMorning   SlotKey = "morning"
	SlotAfternoon SlotKey = "afternoon"
	SlotEvening   SlotKey = "evening"
)

var slotAliases = map[string]SlotKey{
	"morning":    SlotMorning,
	"sáng":       SlotMorning,
	"buổi sáng":  SlotMorning,
	"sang":       SlotMorning,
	"afternoon":  SlotAfternoon,
	"chiều":      SlotAfternoon,
	"buổi chiều": SlotAfternoon,
	"chieu":      SlotAfternoon,
	"evening":    SlotEvening,
	"tối":        SlotEvening,
	"buổi tối":   SlotEvening,
	"toi":        SlotEvening,
}

// NormalizeSlotKey maps an English or Vietnamese slot name onto its key.
func NormalizeSlotKey(name string) (SlotKey, bool) {
	key, ok := slotAliases[strings.ToLower(strings.Join(strings.Fields(name), " "))]
	return key, ok
}

// Order returns the position of the key in a day: morning, afternoon, evening, then anything else.
func (k SlotKey) Order() int {
	switch k {
	case SlotMorning:
		return 0
	case SlotAfternoon:
		return 1
	case SlotEvening:
		return 2
	default:
		return 3
	}
}

// Label is the Vietnamese display name used in user-facing messages.
func (k SlotKey) Label() string {
	switch k {
	case SlotMorning:
		return "Buổi sáng"
	case SlotAfternoon:
		return "Buổi chiều"
	case SlotEvening:
		return "Buổi tối"
	default:
		return string(k)
	}
}

// ClockTime is a wall-clock time of day without a date.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime accepts "HH:MM", "H:MM", "HHhMM" and "HH:MM:SS".
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.Replace(s, "h", ":", 1)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("invalid clock time %q", s)
}

func (c ClockTime) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On places the clock time on the calendar date of day, in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, loc)
}

type TimeSlot struct {
	Key    SlotKey
	Name   string
	Start  ClockTime
	End    ClockTime
	Active bool
}

type LocationSpec struct {
	Latitude     float64
	Longitude    float64
	Address      string
	RadiusMeters float64
}

// LocationScope records which precedence level a resolved location came from.
type LocationScope string

const (
	ScopeDaySlot  LocationScope = "day_slot"
	ScopeDay      LocationScope = "day"
	ScopeSlot     LocationScope = "slot"
	ScopeActivity LocationScope = "activity"
)

// ResolvedLocation is the single LocationSpec that applies to a check-in context.
type ResolvedLocation struct {
	LocationSpec
	Scope     LocationScope
	DayNumber int
	SlotKey   SlotKey
}

// Describe names the checked location for user-facing messages.
func (r ResolvedLocation) Describe() string {
	switch r.Scope {
	case ScopeDaySlot:
		return fmt.Sprintf("Ngày %d - %s", r.DayNumber, r.SlotKey.Label())
	case ScopeDay:
		return fmt.Sprintf("Ngày %d", r.DayNumber)
	case ScopeSlot:
		if r.DayNumber > 0 {
			return fmt.Sprintf("%s (Ngày %d)", r.SlotKey.Label(), r.DayNumber)
		}
		return r.SlotKey.Label()
	default:
		switch {
		case r.DayNumber > 0 && r.SlotKey != "":
			return fmt.Sprintf("hoạt động (Ngày %d - %s)", r.DayNumber, r.SlotKey.Label())
		case r.DayNumber > 0:
			return fmt.Sprintf("hoạt động (Ngày %d)", r.DayNumber)
		default:
			return "hoạt động"
		}
	}
}

// DaySlot identifies one slot on one schedule day.
type DaySlot struct {
	DayNumber int
	SlotKey   SlotKey
}

func (d DaySlot) String() string {
	return fmt.Sprintf("Day %d - %s", d.DayNumber, d.SlotKey)
}

// RawScheduleDay is one day of a multi-day schedule as authored: a calendar date and a free-text
// description that encodes slot times and optional location overrides.
type RawScheduleDay struct {
	DayNumber   int
	Date        string // YYYY-MM-DD
	Description string
}

type Activity struct {
	ID       string
	Name     string
	Kind     Kind
	Timezone string

	// Single-day activities
	Date      time.Time
	TimeSlots []TimeSlot

	// Locations, most specific first when resolved
	DaySlotLocations map[DaySlot]LocationSpec
	DayLocations     map[int]LocationSpec
	SlotLocations    map[SlotKey]LocationSpec
	Location         *LocationSpec

	// Multi-day activities
	Schedule []RawScheduleDay

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Activity) IsMultiDay() bool {
	return a.Kind == KindMultiDay
}

// TimeLocation loads the activity time zone, falling back to UTC.
func (a Activity) TimeLocation() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ScheduleSlot struct {
	Key      SlotKey
	Name     string
	Start    ClockTime
	End      ClockTime
	Location *ResolvedLocation
}

type ScheduleDay struct {
	DayNumber int
	Date      time.Time // zero when the authored date could not be parsed
	Slots     []ScheduleSlot

	// Location applies to the day when no slot is in context: day level, else activity level.
	Location *ResolvedLocation
}

func (d ScheduleDay) HasDate() bool {
	return !d.Date.IsZero()
}

// Slot looks up a slot of the day by key.
func (d ScheduleDay) Slot(key SlotKey) (ScheduleSlot, bool) {
	for _, s := range d.Slots {
		if s.Key == key {
			return s, true
		}
	}
	return ScheduleSlot{}, false
}

// RegisteredSet is the set of (day, slot) pairs a student is approved for.
type RegisteredSet map[DaySlot]struct{}

func NewRegisteredSet(pairs ...DaySlot) RegisteredSet {
	set := make(RegisteredSet, len(pairs))
	for _, p := range pairs {
		set[p] = struct{}{}
	}
	return set
}

func (s RegisteredSet) Contains(day int, key SlotKey) bool {
	_, ok := s[DaySlot{DayNumber: day, SlotKey: key}]
	return ok
}

func (s RegisteredSet) Add(day int, key SlotKey) {
	s[DaySlot{DayNumber: day, SlotKey: key}] = struct{}{}
}

// Pairs returns the registered pairs in schedule order.
func (s RegisteredSet) Pairs() []DaySlot {
	pairs := make([]DaySlot, 0, len(s))
	for p := range s {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].DayNumber != pairs[j].DayNumber {
			return pairs[i].DayNumber < pairs[j].DayNumber
		}
		if pairs[i].SlotKey.Order() != pairs[j].SlotKey.Order() {
			return pairs[i].SlotKey.Order() < pairs[j].SlotKey.Order()
		}
		return pairs[i].SlotKey < pairs[j].SlotKey
	})
	return pairs
}

type RegistrationStatus string

const (
	RegistrationApproved RegistrationStatus = "approved"
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationRejected RegistrationStatus = "rejected"
)

type Registration struct {
	ActivityID string
	UserID     string
	Status     RegistrationStatus
	Slots      RegisteredSet
}

// Approved reports whether the registration allows any check-in at all.
func (r Registration) Approved() bool {
	return r.Status == RegistrationApproved
}

// Week is a Monday-Sunday bucket of schedule days. Undated days share one trailing week with a zero Start.
type Week struct {
	Start time.Time
	End   time.Time
	Days  []ScheduleDay
}

func (w Week) Undated() bool {
	return w.Start.IsZero()
}
