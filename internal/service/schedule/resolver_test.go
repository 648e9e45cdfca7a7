package schedule

import (
	"testing"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multiDay(days ...activity.RawScheduleDay) activity.Activity {
	return activity.Activity{
		ID:       "act-1",
		Name:     "Mùa hè xanh",
		Kind:     activity.KindMultiDay,
		Timezone: "Asia/Ho_Chi_Minh",
		Schedule: days,
	}
}

func slotKeys(d activity.ScheduleDay) []activity.SlotKey {
	keys := make([]activity.SlotKey, 0, len(d.Slots))
	for _, s := range d.Slots {
		keys = append(keys, s.Key)
	}
	return keys
}

func TestResolver_Resolve_SingleDay(t *testing.T) {
	r := NewResolver(0, nil)
	a := activity.Activity{
		ID:       "act-1",
		Kind:     activity.KindSingleDay,
		Timezone: "Asia/Ho_Chi_Minh",
		Date:     time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		TimeSlots: []activity.TimeSlot{
			{Key: activity.SlotAfternoon, Name: "Chiều", Start: activity.ClockTime{Hour: 13, Minute: 30}, End: activity.ClockTime{Hour: 17}, Active: true},
			{Key: activity.SlotMorning, Name: "Sáng", Start: activity.ClockTime{Hour: 8}, End: activity.ClockTime{Hour: 11}, Active: true},
			{Key: activity.SlotEvening, Name: "Tối", Start: activity.ClockTime{Hour: 19}, End: activity.ClockTime{Hour: 21}, Active: false},
		},
		Location: &activity.LocationSpec{Latitude: 10.77, Longitude: 106.69},
	}

	days := r.Resolve(a)

	require.Len(t, days, 1)
	assert.Equal(t, 1, days[0].DayNumber)
	assert.Equal(t, "2024-03-11", days[0].Date.Format("2006-01-02"))
	assert.Equal(t, []activity.SlotKey{activity.SlotMorning, activity.SlotAfternoon}, slotKeys(days[0]))

	require.NotNil(t, days[0].Slots[0].Location)
	assert.Equal(t, activity.ScopeActivity, days[0].Slots[0].Location.Scope)
	assert.Equal(t, float64(DefaultRadiusMeters), days[0].Slots[0].Location.RadiusMeters)
	require.NotNil(t, days[0].Location)
	assert.Equal(t, activity.ScopeActivity, days[0].Location.Scope)
}

func TestResolver_Resolve_SlotMarkers(t *testing.T) {
	r := NewResolver(100, nil)

	tests := []struct {
		name        string
		description string
		want        []activity.SlotKey
		wantStart   activity.ClockTime
	}{
		{
			name:        "vietnamese names with colon",
			description: "Sáng: 08:00 - 11:00. Chiều: 13:30 - 17:00",
			want:        []activity.SlotKey{activity.SlotMorning, activity.SlotAfternoon},
			wantStart:   activity.ClockTime{Hour: 8},
		},
		{
			name:        "long vietnamese names with h separator and parentheses",
			description: "Buổi tối (19h00 đến 21h30), buổi sáng (7h30 – 10h00)",
			want:        []activity.SlotKey{activity.SlotMorning, activity.SlotEvening},
			wantStart:   activity.ClockTime{Hour: 7, Minute: 30},
		},
		{
			name:        "english names are case-insensitive",
			description: "MORNING 08:00 to 11:00; Afternoon - 14:00 — 16:00",
			want:        []activity.SlotKey{activity.SlotMorning, activity.SlotAfternoon},
			wantStart:   activity.ClockTime{Hour: 8},
		},
		{
			name:        "bad clock values are dropped",
			description: "Sáng: 25:00 - 26:00. Chiều: 13:00 - 12:00. Tối: 18:00 - 20:00",
			want:        []activity.SlotKey{activity.SlotEvening},
			wantStart:   activity.ClockTime{Hour: 18},
		},
		{
			name:        "first marker per key wins",
			description: "Sáng: 08:00 - 11:00. Morning: 09:00 - 10:00",
			want:        []activity.SlotKey{activity.SlotMorning},
			wantStart:   activity.ClockTime{Hour: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days := r.Resolve(multiDay(activity.RawScheduleDay{DayNumber: 1, Date: "2024-03-11", Description: tt.description}))
			require.Len(t, days, 1)
			assert.Equal(t, tt.want, slotKeys(days[0]))
			assert.Equal(t, tt.wantStart, days[0].Slots[0].Start)
		})
	}
}

func TestResolver_Resolve_Locations(t *testing.T) {
	r := NewResolver(100, nil)

	t.Run("slot-level location in its segment", func(t *testing.T) {
		days := r.Resolve(multiDay(activity.RawScheduleDay{
			DayNumber:   2,
			Date:        "2024-03-12",
			Description: `Sáng: 08:00 - 11:00 @location(10.7769, 106.7009, 150, "Nhà Văn hóa Thanh niên, Quận 1") Chiều: 13:00 - 16:00`,
		}))
		require.Len(t, days, 1)

		morning, ok := days[0].Slot(activity.SlotMorning)
		require.True(t, ok)
		require.NotNil(t, morning.Location)
		assert.Equal(t, activity.ScopeDaySlot, morning.Location.Scope)
		assert.Equal(t, 150.0, morning.Location.RadiusMeters)
		assert.Equal(t, "Nhà Văn hóa Thanh niên, Quận 1", morning.Location.Address)

		afternoon, ok := days[0].Slot(activity.SlotAfternoon)
		require.True(t, ok)
		assert.Nil(t, afternoon.Location)
		assert.Nil(t, days[0].Location)
	})

	t.Run("location before first marker is day-level", func(t *testing.T) {
		days := r.Resolve(multiDay(activity.RawScheduleDay{
			DayNumber:   1,
			Date:        "2024-03-11",
			Description: `@location(10.5, 106.5) Sáng: 08:00 - 11:00. Chiều: 13:00 - 16:00 @location(10.6, 106.6, 50)`,
		}))
		require.Len(t, days, 1)

		morning, _ := days[0].Slot(activity.SlotMorning)
		require.NotNil(t, morning.Location)
		assert.Equal(t, activity.ScopeDay, morning.Location.Scope)
		assert.Equal(t, 100.0, morning.Location.RadiusMeters)

		afternoon, _ := days[0].Slot(activity.SlotAfternoon)
		require.NotNil(t, afternoon.Location)
		assert.Equal(t, activity.ScopeDaySlot, afternoon.Location.Scope)
		assert.Equal(t, 50.0, afternoon.Location.RadiusMeters)

		require.NotNil(t, days[0].Location)
		assert.Equal(t, activity.ScopeDay, days[0].Location.Scope)
	})

	t.Run("day-location anywhere is day-level", func(t *testing.T) {
		days := r.Resolve(multiDay(activity.RawScheduleDay{
			DayNumber:   1,
			Date:        "2024-03-11",
			Description: `Sáng: 08:00 - 11:00 @day-location(10.5, 106.5, 200)`,
		}))
		morning, _ := days[0].Slot(activity.SlotMorning)
		require.NotNil(t, morning.Location)
		assert.Equal(t, activity.ScopeDay, morning.Location.Scope)
		assert.Equal(t, 200.0, morning.Location.RadiusMeters)
	})

	t.Run("malformed locations are dropped", func(t *testing.T) {
		for _, loc := range []string{
			`@location(abc, 106.5)`,
			`@location(95, 106.5)`,
			`@location(10.5, 190)`,
			`@location(10.5, 106.5, -5)`,
			`@location(10.5, 106.5, 0)`,
			`@location(10.5)`,
			`@location(10.5, 106.5, "unterminated)`,
		} {
			days := r.Resolve(multiDay(activity.RawScheduleDay{
				DayNumber:   1,
				Date:        "2024-03-11",
				Description: "Sáng: 08:00 - 11:00 " + loc,
			}))
			require.Len(t, days, 1, loc)
			morning, ok := days[0].Slot(activity.SlotMorning)
			require.True(t, ok, loc)
			assert.Nil(t, morning.Location, loc)
		}
	})

	t.Run("out-of-band maps fill only missing scopes", func(t *testing.T) {
		a := multiDay(
			activity.RawScheduleDay{DayNumber: 1, Date: "2024-03-11", Description: `Sáng: 08:00 - 11:00 @location(10.1, 106.1) Chiều: 13:00 - 16:00`},
			activity.RawScheduleDay{DayNumber: 2, Date: "2024-03-12", Description: `Sáng: 08:00 - 11:00`},
		)
		a.DaySlotLocations = map[activity.DaySlot]activity.LocationSpec{
			{DayNumber: 1, SlotKey: activity.SlotMorning}:   {Latitude: 11, Longitude: 107, RadiusMeters: 30},
			{DayNumber: 1, SlotKey: activity.SlotAfternoon}: {Latitude: 12, Longitude: 108, RadiusMeters: 40},
		}
		a.DayLocations = map[int]activity.LocationSpec{2: {Latitude: 13, Longitude: 109}}
		a.SlotLocations = map[activity.SlotKey]activity.LocationSpec{activity.SlotMorning: {Latitude: 14, Longitude: 110}}

		days := r.Resolve(a)
		require.Len(t, days, 2)

		d1m, _ := days[0].Slot(activity.SlotMorning)
		assert.Equal(t, 10.1, d1m.Location.Latitude)
		assert.Equal(t, activity.ScopeDaySlot, d1m.Location.Scope)

		d1a, _ := days[0].Slot(activity.SlotAfternoon)
		assert.Equal(t, 12.0, d1a.Location.Latitude)
		assert.Equal(t, 40.0, d1a.Location.RadiusMeters)

		d2m, _ := days[1].Slot(activity.SlotMorning)
		assert.Equal(t, 13.0, d2m.Location.Latitude)
		assert.Equal(t, activity.ScopeDay, d2m.Location.Scope)
		assert.Equal(t, 100.0, d2m.Location.RadiusMeters)
	})

	t.Run("slot then activity fallback", func(t *testing.T) {
		a := multiDay(activity.RawScheduleDay{DayNumber: 1, Date: "2024-03-11", Description: `Sáng: 08:00 - 11:00. Tối: 19:00 - 21:00`})
		a.SlotLocations = map[activity.SlotKey]activity.LocationSpec{activity.SlotEvening: {Latitude: 14, Longitude: 110, RadiusMeters: 60}}
		a.Location = &activity.LocationSpec{Latitude: 15, Longitude: 111}

		days := r.Resolve(a)
		morning, _ := days[0].Slot(activity.SlotMorning)
		assert.Equal(t, activity.ScopeActivity, morning.Location.Scope)
		evening, _ := days[0].Slot(activity.SlotEvening)
		assert.Equal(t, activity.ScopeSlot, evening.Location.Scope)
		assert.Equal(t, 60.0, evening.Location.RadiusMeters)
	})
}

func TestResolver_Resolve_Days(t *testing.T) {
	r := NewResolver(100, nil)

	days := r.Resolve(multiDay(
		activity.RawScheduleDay{DayNumber: 3, Date: "2024-03-13", Description: "Sáng: 08:00 - 11:00"},
		activity.RawScheduleDay{DayNumber: 1, Date: "not-a-date", Description: "Chiều: 13:00 - 16:00"},
		activity.RawScheduleDay{DayNumber: 3, Date: "2024-03-20", Description: "Tối: 19:00 - 21:00"},
		activity.RawScheduleDay{DayNumber: 0, Date: "2024-03-10", Description: "Sáng: 08:00 - 11:00"},
	))

	require.Len(t, days, 2)
	assert.Equal(t, 1, days[0].DayNumber)
	assert.False(t, days[0].HasDate())
	assert.Equal(t, 3, days[1].DayNumber)
	assert.Equal(t, "2024-03-13", days[1].Date.Format("2006-01-02"))
	assert.Equal(t, []activity.SlotKey{activity.SlotMorning}, slotKeys(days[1]))
	assert.Equal(t, "Asia/Ho_Chi_Minh", days[1].Date.Location().String())
}

func TestResolver_Resolve_IsTotal(t *testing.T) {
	r := NewResolver(100, nil)

	inputs := []string{
		"",
		"@location(",
		"Sáng:",
		"Sáng: 08:00 -",
		"@location(1,2,3,4,5,6)",
		"Chiều 99h99 đến 100h00 @day-location(\"\")",
		"\x00\xff sáng 08:00 - 09:00",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			r.Resolve(multiDay(activity.RawScheduleDay{DayNumber: 1, Date: "2024-03-11", Description: in}))
		}, in)
	}

	assert.Empty(t, r.Resolve(activity.Activity{Kind: activity.KindMultiDay}))
}

func TestFind(t *testing.T) {
	days := NewResolver(100, nil).Resolve(multiDay(
		activity.RawScheduleDay{DayNumber: 1, Date: "2024-03-11", Description: "Sáng: 08:00 - 11:00"},
		activity.RawScheduleDay{DayNumber: 2, Date: "2024-03-12", Description: "Sáng: 08:00 - 11:00. Chiều: 13:00 - 16:00"},
	))

	day, slot, ok := Find(days, activity.DaySlot{DayNumber: 2, SlotKey: activity.SlotAfternoon})
	require.True(t, ok)
	assert.Equal(t, 2, day.DayNumber)
	assert.Equal(t, activity.ClockTime{Hour: 13}, slot.Start)

	_, _, ok = Find(days, activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotAfternoon})
	assert.False(t, ok)
	_, _, ok = Find(days, activity.DaySlot{DayNumber: 9, SlotKey: activity.SlotMorning})
	assert.False(t, ok)
}

func TestResolver_Resolve_DayDates(t *testing.T) {
	r := NewResolver(100, nil)
	days := r.Resolve(multiDay(
		activity.RawScheduleDay{DayNumber: 1, Date: " 2024-03-11 ", Description: "Sáng: 08:00 - 11:00"},
		activity.RawScheduleDay{DayNumber: 2, Date: "11/03/2024", Description: "Sáng: 08:00 - 11:00"},
		activity.RawScheduleDay{DayNumber: 3, Description: "Sáng: 08:00 - 11:00"},
	))
	require.Len(t, days, 3)

	ict, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	assert.True(t, days[0].Date.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, ict)))
	assert.Equal(t, ict.String(), days[0].Date.Location().String())
	assert.True(t, days[1].Date.IsZero())
	assert.True(t, days[2].Date.IsZero())
}
