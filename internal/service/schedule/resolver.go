package schedule

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/pkg/validator"
	"go.uber.org/zap"
)

// DefaultRadiusMeters applies to locations authored without a radius.
const DefaultRadiusMeters = 100

var (
	slotMarkerPattern = regexp.MustCompile(
		`(?i)(buổi\s+sáng|buổi\s+chiều|buổi\s+tối|sáng|chiều|tối|morning|afternoon|evening)` +
			`\s*[:(\-]?\s*` +
			`(\d{1,2}\s*[:hH]\s*\d{2})` +
			`\s*(?:-|–|—|đến|to)\s*` +
			`(\d{1,2}\s*[:hH]\s*\d{2})` +
			`\s*\)?`)

	locationPattern = regexp.MustCompile(`(?i)@(day-location|location)\s*\(([^)]*)\)`)
)

// Resolver turns an activity definition into a normalized list of schedule days.
// Resolve is total: malformed input produces fewer days or slots, never an error.
type Resolver struct {
	defaultRadius float64
	logger        *zap.Logger
}

func NewResolver(defaultRadius float64, logger *zap.Logger) *Resolver {
	if defaultRadius <= 0 {
		defaultRadius = DefaultRadiusMeters
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{defaultRadius: defaultRadius, logger: logger}
}

// Resolve returns the schedule days of a, ordered by day number, with slot locations resolved.
func (r *Resolver) Resolve(a activity.Activity) []activity.ScheduleDay {
	if !a.IsMultiDay() {
		return []activity.ScheduleDay{r.resolveSingleDay(a)}
	}

	loc := a.TimeLocation()
	seen := make(map[int]bool, len(a.Schedule))
	days := make([]activity.ScheduleDay, 0, len(a.Schedule))

	for _, raw := range a.Schedule {
		if raw.DayNumber <= 0 {
			r.logger.Debug("dropping schedule day with invalid number",
				zap.String("activity_id", a.ID), zap.Int("day_number", raw.DayNumber))
			continue
		}
		if seen[raw.DayNumber] {
			r.logger.Debug("dropping duplicate schedule day",
				zap.String("activity_id", a.ID), zap.Int("day_number", raw.DayNumber))
			continue
		}
		seen[raw.DayNumber] = true
		days = append(days, r.resolveDay(a, raw, loc))
	}

	sort.SliceStable(days, func(i, j int) bool {
		return days[i].DayNumber < days[j].DayNumber
	})
	return days
}

func (r *Resolver) resolveSingleDay(a activity.Activity) activity.ScheduleDay {
	const dayNumber = 1

	day := activity.ScheduleDay{DayNumber: dayNumber}
	if !a.Date.IsZero() {
		day.Date = time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, a.TimeLocation())
	}

	dayLoc := r.outOfBandDay(a, dayNumber)
	day.Location = r.dayLocation(a, dayNumber, dayLoc)

	for _, ts := range a.TimeSlots {
		if !ts.Active || !ts.Start.Valid() || !ts.End.Valid() || ts.End.Minutes() <= ts.Start.Minutes() {
			continue
		}
		key := ts.Key
		if key == "" {
			if normalized, ok := activity.NormalizeSlotKey(ts.Name); ok {
				key = normalized
			} else {
				key = activity.SlotKey(strings.ToLower(strings.TrimSpace(ts.Name)))
			}
		}
		if key == "" {
			continue
		}
		if _, dup := day.Slot(key); dup {
			continue
		}
		name := ts.Name
		if name == "" {
			name = key.Label()
		}
		day.Slots = append(day.Slots, activity.ScheduleSlot{
			Key:      key,
			Name:     name,
			Start:    ts.Start,
			End:      ts.End,
			Location: r.slotLocation(a, dayNumber, key, nil, dayLoc),
		})
	}

	sortSlots(day.Slots)
	return day
}

type slotMarker struct {
	key   activity.SlotKey
	start activity.ClockTime
	end   activity.ClockTime
	pos   int
	valid bool
}

func (r *Resolver) resolveDay(a activity.Activity, raw activity.RawScheduleDay, loc *time.Location) activity.ScheduleDay {
	day := activity.ScheduleDay{DayNumber: raw.DayNumber}
	if raw.Date != "" {
		if date, ok := validator.IsValidDate(strings.TrimSpace(raw.Date)); ok {
			day.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
		} else {
			r.logger.Debug("ignoring malformed schedule date",
				zap.String("activity_id", a.ID), zap.Int("day_number", raw.DayNumber),
				zap.String("date", raw.Date))
		}
	}

	text := raw.Description
	markers := parseSlotMarkers(text)

	// Free-text locations: first valid one per scope wins.
	var dayLoc *activity.LocationSpec
	slotLocs := make(map[activity.SlotKey]*activity.LocationSpec)
	for _, m := range locationPattern.FindAllStringSubmatchIndex(text, -1) {
		kind := strings.ToLower(text[m[2]:m[3]])
		spec, ok := parseLocationArgs(text[m[4]:m[5]], r.defaultRadius)
		if !ok {
			r.logger.Debug("dropping malformed location",
				zap.String("activity_id", a.ID), zap.Int("day_number", raw.DayNumber),
				zap.String("location", text[m[0]:m[1]]))
			continue
		}

		owner := markerAt(markers, m[0])
		if kind == "day-location" || owner == nil {
			if dayLoc == nil {
				dayLoc = &spec
			}
			continue
		}
		if !owner.valid {
			continue
		}
		if _, taken := slotLocs[owner.key]; !taken {
			slotLocs[owner.key] = &spec
		}
	}

	if dayLoc == nil {
		dayLoc = r.outOfBandDay(a, raw.DayNumber)
	}
	day.Location = r.dayLocation(a, raw.DayNumber, dayLoc)

	for _, mk := range markers {
		if !mk.valid {
			continue
		}
		day.Slots = append(day.Slots, activity.ScheduleSlot{
			Key:      mk.key,
			Name:     mk.key.Label(),
			Start:    mk.start,
			End:      mk.end,
			Location: r.slotLocation(a, raw.DayNumber, mk.key, slotLocs[mk.key], dayLoc),
		})
	}

	sortSlots(day.Slots)
	return day
}

// parseSlotMarkers returns every marker in text in order of appearance. Markers with bad clock
// values, an end not after the start, or a key already taken are kept but marked invalid so
// they still delimit segments.
func parseSlotMarkers(text string) []*slotMarker {
	matches := slotMarkerPattern.FindAllStringSubmatchIndex(text, -1)
	markers := make([]*slotMarker, 0, len(matches))
	taken := make(map[activity.SlotKey]bool)

	for _, m := range matches {
		mk := &slotMarker{pos: m[0]}
		markers = append(markers, mk)

		key, ok := activity.NormalizeSlotKey(text[m[2]:m[3]])
		if !ok || taken[key] {
			continue
		}
		start, err := parseClock(text[m[4]:m[5]])
		if err != nil {
			continue
		}
		end, err := parseClock(text[m[6]:m[7]])
		if err != nil {
			continue
		}
		if end.Minutes() <= start.Minutes() {
			continue
		}

		taken[key] = true
		mk.key, mk.start, mk.end, mk.valid = key, start, end, true
	}
	return markers
}

func parseClock(s string) (activity.ClockTime, error) {
	return activity.ParseClockTime(strings.Join(strings.Fields(s), ""))
}

// markerAt returns the marker whose segment contains pos, nil when pos precedes every marker.
func markerAt(markers []*slotMarker, pos int) *slotMarker {
	var owner *slotMarker
	for _, mk := range markers {
		if mk.pos > pos {
			break
		}
		owner = mk
	}
	return owner
}

// parseLocationArgs parses `lat, lng[, radius][, "address"]`.
func parseLocationArgs(args string, defaultRadius float64) (activity.LocationSpec, bool) {
	parts, ok := splitArgs(args)
	if !ok || len(parts) < 2 || len(parts) > 4 {
		return activity.LocationSpec{}, false
	}

	lat, ok := parseFinite(parts[0])
	if !ok || lat < -90 || lat > 90 {
		return activity.LocationSpec{}, false
	}
	lng, ok := parseFinite(parts[1])
	if !ok || lng < -180 || lng > 180 {
		return activity.LocationSpec{}, false
	}

	spec := activity.LocationSpec{Latitude: lat, Longitude: lng, RadiusMeters: defaultRadius}
	rest := parts[2:]
	if len(rest) > 0 && !isQuoted(rest[0]) {
		radius, ok := parseFinite(rest[0])
		if !ok || radius <= 0 {
			return activity.LocationSpec{}, false
		}
		spec.RadiusMeters = radius
		rest = rest[1:]
	}
	if len(rest) > 0 {
		if len(rest) > 1 || !isQuoted(rest[0]) {
			return activity.LocationSpec{}, false
		}
		spec.Address = strings.TrimSpace(unquote(rest[0]))
	}
	return spec, true
}

// splitArgs splits on commas outside double quotes. Curly quotes count as double quotes.
func splitArgs(s string) ([]string, bool) {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
	)
	for _, ch := range s {
		switch {
		case ch == '"' || ch == '“' || ch == '”':
			quoted = !quoted
			current.WriteRune('"')
		case ch == ',' && !quoted:
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if quoted {
		return nil, false
	}
	parts = append(parts, strings.TrimSpace(current.String()))
	return parts, true
}

func isQuoted(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`)
}

func unquote(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, `"`), `"`)
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (r *Resolver) outOfBandDay(a activity.Activity, dayNumber int) *activity.LocationSpec {
	if spec, ok := a.DayLocations[dayNumber]; ok {
		return r.withRadius(spec)
	}
	return nil
}

// slotLocation applies precedence day_slot > day > slot > activity > none.
func (r *Resolver) slotLocation(
	a activity.Activity,
	dayNumber int,
	key activity.SlotKey,
	freeText *activity.LocationSpec,
	dayLoc *activity.LocationSpec,
) *activity.ResolvedLocation {
	if freeText != nil {
		return resolved(*freeText, activity.ScopeDaySlot, dayNumber, key)
	}
	if spec, ok := a.DaySlotLocations[activity.DaySlot{DayNumber: dayNumber, SlotKey: key}]; ok {
		return resolved(*r.withRadius(spec), activity.ScopeDaySlot, dayNumber, key)
	}
	if dayLoc != nil {
		return resolved(*dayLoc, activity.ScopeDay, dayNumber, key)
	}
	if spec, ok := a.SlotLocations[key]; ok {
		return resolved(*r.withRadius(spec), activity.ScopeSlot, dayNumber, key)
	}
	if a.Location != nil {
		return resolved(*r.withRadius(*a.Location), activity.ScopeActivity, dayNumber, key)
	}
	return nil
}

func (r *Resolver) dayLocation(a activity.Activity, dayNumber int, dayLoc *activity.LocationSpec) *activity.ResolvedLocation {
	if dayLoc != nil {
		return resolved(*dayLoc, activity.ScopeDay, dayNumber, "")
	}
	if a.Location != nil {
		return resolved(*r.withRadius(*a.Location), activity.ScopeActivity, dayNumber, "")
	}
	return nil
}

func (r *Resolver) withRadius(spec activity.LocationSpec) *activity.LocationSpec {
	if spec.RadiusMeters <= 0 {
		spec.RadiusMeters = r.defaultRadius
	}
	return &spec
}

func resolved(spec activity.LocationSpec, scope activity.LocationScope, dayNumber int, key activity.SlotKey) *activity.ResolvedLocation {
	return &activity.ResolvedLocation{
		LocationSpec: spec,
		Scope:        scope,
		DayNumber:    dayNumber,
		SlotKey:      key,
	}
}

// sortSlots orders morning, afternoon, evening, then other slots by start time.
func sortSlots(slots []activity.ScheduleSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		oi, oj := slots[i].Key.Order(), slots[j].Key.Order()
		if oi != oj {
			return oi < oj
		}
		if slots[i].Start.Minutes() != slots[j].Start.Minutes() {
			return slots[i].Start.Minutes() < slots[j].Start.Minutes()
		}
		return slots[i].Key < slots[j].Key
	})
}

// Find looks up one (day, slot) in resolved days.
func Find(days []activity.ScheduleDay, ref activity.DaySlot) (activity.ScheduleDay, activity.ScheduleSlot, bool) {
	for _, d := range days {
		if d.DayNumber != ref.DayNumber {
			continue
		}
		if s, ok := d.Slot(ref.SlotKey); ok {
			return d, s, true
		}
		return d, activity.ScheduleSlot{}, false
	}
	return activity.ScheduleDay{}, activity.ScheduleSlot{}, false
}
