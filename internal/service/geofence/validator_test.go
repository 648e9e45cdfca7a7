package geofence

import (
	"math"
	"testing"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// northOf returns the latitude meters north of lat along a meridian.
func northOf(lat, meters float64) float64 {
	return lat + meters/utils.EarthRadiusMeters*180/math.Pi
}

func location(lat, lng, radius float64, scope activity.LocationScope, day int, key activity.SlotKey) *activity.ResolvedLocation {
	return &activity.ResolvedLocation{
		LocationSpec: activity.LocationSpec{Latitude: lat, Longitude: lng, RadiusMeters: radius},
		Scope:        scope,
		DayNumber:    day,
		SlotKey:      key,
	}
}

func twoDaySchedule() []activity.ScheduleDay {
	return []activity.ScheduleDay{
		{
			DayNumber: 1,
			Slots: []activity.ScheduleSlot{
				{Key: activity.SlotMorning, Location: location(10.0, 106.0, 200, activity.ScopeDaySlot, 1, activity.SlotMorning)},
			},
		},
		{
			DayNumber: 2,
			Location:  location(11.0, 107.0, 100, activity.ScopeDay, 2, ""),
			Slots: []activity.ScheduleSlot{
				{Key: activity.SlotMorning, Location: location(11.0, 107.0, 100, activity.ScopeDay, 2, activity.SlotMorning)},
				{Key: activity.SlotAfternoon},
			},
		},
	}
}

func TestDistance(t *testing.T) {
	a := attendance.Position{Latitude: 10.762622, Longitude: 106.660172}
	b := attendance.Position{Latitude: 10.7769, Longitude: 106.7009}

	assert.Equal(t, 0.0, Distance(a, a))
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
	assert.Greater(t, Distance(a, b), 0.0)
}

func TestValidator_Validate_Boundary(t *testing.T) {
	v := NewValidator()
	days := twoDaySchedule()
	open := &activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning}

	tests := []struct {
		name   string
		meters float64
		valid  bool
	}{
		{"inside", 150, true},
		{"exactly on the radius", 200, true},
		{"one meter outside", 201, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := attendance.Position{Latitude: northOf(10.0, tt.meters), Longitude: 106.0}
			res := v.Validate(pos, days, Context{Kind: activity.KindMultiDay, Open: open})

			assert.Equal(t, tt.valid, res.Valid)
			require.NotNil(t, res.DistanceMeters)
			assert.InDelta(t, tt.meters, *res.DistanceMeters, 1e-6)
			require.NotNil(t, res.Location)
			assert.Equal(t, activity.ScopeDaySlot, res.Location.Scope)
		})
	}
}

func TestValidator_Validate_TwoHundredMetersNorth(t *testing.T) {
	v := NewValidator()
	days := twoDaySchedule()
	pos := attendance.Position{Latitude: 10.0018, Longitude: 106.0}

	res := v.Validate(pos, days, Context{Kind: activity.KindMultiDay, Open: &activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning}})

	require.NotNil(t, res.DistanceMeters)
	assert.Greater(t, *res.DistanceMeters, 200.0)
	assert.Equal(t, 200, utils.RoundMeters(*res.DistanceMeters))
	assert.True(t, res.Valid)
	assert.Contains(t, res.Message, "cách 200m, bán kính 200m")
}

func TestValidator_Validate_WholeMeterPrecision(t *testing.T) {
	v := NewValidator()
	open := &activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning}

	tests := []struct {
		name   string
		meters float64
		valid  bool
		shown  string
	}{
		{"rounds down onto the radius", 200.4, true, "cách 200m"},
		{"rounds up past the radius", 200.6, false, "cách 201m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := attendance.Position{Latitude: northOf(10.0, tt.meters), Longitude: 106.0}
			res := v.Validate(pos, twoDaySchedule(), Context{Kind: activity.KindMultiDay, Open: open})

			assert.Equal(t, tt.valid, res.Valid)
			assert.Contains(t, res.Message, tt.shown)
		})
	}
}

func TestValidator_Validate_UnknownDayIsInvalid(t *testing.T) {
	v := NewValidator()
	pos := attendance.Position{Latitude: 10.0, Longitude: 106.0}

	res := v.Validate(pos, twoDaySchedule(), Context{
		Kind:     activity.KindMultiDay,
		Selected: &activity.DaySlot{DayNumber: 9, SlotKey: activity.SlotMorning},
	})

	assert.False(t, res.Valid)
	assert.Nil(t, res.Location)
	assert.Contains(t, res.Message, "Ngày 9")
}

func TestValidator_Validate_MessageNamesTheSlot(t *testing.T) {
	v := NewValidator()
	pos := attendance.Position{Latitude: northOf(10.0, 500), Longitude: 106.0}
	days := []activity.ScheduleDay{
		{
			DayNumber: 3,
			Slots: []activity.ScheduleSlot{
				{Key: activity.SlotMorning, Location: location(10.0, 106.0, 100, activity.ScopeActivity, 3, activity.SlotMorning)},
				{Key: activity.SlotAfternoon, Location: location(10.0, 106.0, 100, activity.ScopeSlot, 3, activity.SlotAfternoon)},
			},
		},
	}

	res := v.Validate(pos, days, Context{Kind: activity.KindMultiDay, Open: &activity.DaySlot{DayNumber: 3, SlotKey: activity.SlotMorning}})
	assert.Contains(t, res.Message, "hoạt động (Ngày 3 - Buổi sáng)")

	res = v.Validate(pos, days, Context{Kind: activity.KindMultiDay, Open: &activity.DaySlot{DayNumber: 3, SlotKey: activity.SlotAfternoon}})
	assert.Contains(t, res.Message, "Buổi chiều (Ngày 3)")
}

func TestValidator_Validate_FailureMessage(t *testing.T) {
	v := NewValidator()
	pos := attendance.Position{Latitude: northOf(10.0, 350.6), Longitude: 106.0}

	res := v.Validate(pos, twoDaySchedule(), Context{Kind: activity.KindMultiDay, Open: &activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning}})

	assert.False(t, res.Valid)
	assert.Contains(t, res.Message, "Ngày 1 - Buổi sáng")
	assert.Contains(t, res.Message, "351m")
	assert.Contains(t, res.Message, "200m")
}

func TestValidator_Validate_OpenSlotIsPinned(t *testing.T) {
	v := NewValidator()
	days := twoDaySchedule()

	// Standing at day 2's location while day 1 morning is open must fail.
	pos := attendance.Position{Latitude: 11.0, Longitude: 107.0}
	res := v.Validate(pos, days, Context{
		Kind:     activity.KindMultiDay,
		Open:     &activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning},
		Selected: &activity.DaySlot{DayNumber: 2, SlotKey: activity.SlotMorning},
	})

	assert.False(t, res.Valid)
	require.NotNil(t, res.Slot)
	assert.Equal(t, 1, res.Slot.DayNumber)
}

func TestValidator_Validate_Fallbacks(t *testing.T) {
	v := NewValidator()
	days := twoDaySchedule()
	pos := attendance.Position{Latitude: 11.0, Longitude: 107.0}

	t.Run("target before selected", func(t *testing.T) {
		res := v.Validate(pos, days, Context{
			Kind:     activity.KindMultiDay,
			Target:   &activity.DaySlot{DayNumber: 2, SlotKey: activity.SlotMorning},
			Selected: &activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning},
		})
		assert.True(t, res.Valid)
		assert.Equal(t, activity.ScopeDay, res.Location.Scope)
	})

	t.Run("selected slot", func(t *testing.T) {
		res := v.Validate(pos, days, Context{
			Kind:     activity.KindMultiDay,
			Selected: &activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning},
		})
		assert.False(t, res.Valid)
	})

	t.Run("multi-day without context needs no location", func(t *testing.T) {
		res := v.Validate(pos, days, Context{Kind: activity.KindMultiDay})
		assert.True(t, res.Valid)
		assert.Nil(t, res.DistanceMeters)
		assert.Equal(t, messageNoLocation, res.Message)
	})

	t.Run("slot without location needs no location", func(t *testing.T) {
		res := v.Validate(pos, days, Context{
			Kind: activity.KindMultiDay,
			Open: &activity.DaySlot{DayNumber: 2, SlotKey: activity.SlotAfternoon},
		})
		assert.True(t, res.Valid)
		assert.Nil(t, res.Location)
	})

	t.Run("slot missing from schedule falls back to its day", func(t *testing.T) {
		res := v.Validate(pos, days, Context{
			Kind:   activity.KindMultiDay,
			Target: &activity.DaySlot{DayNumber: 2, SlotKey: activity.SlotEvening},
		})
		require.NotNil(t, res.Location)
		assert.Equal(t, activity.ScopeDay, res.Location.Scope)
	})

	t.Run("single-day without context uses the day location", func(t *testing.T) {
		single := []activity.ScheduleDay{{DayNumber: 1, Location: location(10.0, 106.0, 100, activity.ScopeActivity, 1, "")}}
		res := v.Validate(pos, single, Context{Kind: activity.KindSingleDay})
		assert.False(t, res.Valid)
		assert.Contains(t, res.Message, "hoạt động")
	})
}

func TestValidator_Check(t *testing.T) {
	v := NewValidator()
	loc := location(10.0, 106.0, 100, activity.ScopeSlot, 0, activity.SlotMorning)
	slot := &activity.DaySlot{DayNumber: 1, SlotKey: activity.SlotMorning}

	inside := v.Check(attendance.Position{Latitude: northOf(10.0, 100), Longitude: 106.0}, loc, slot)
	assert.True(t, inside.Valid)
	assert.Equal(t, slot, inside.Slot)

	outside := v.Check(attendance.Position{Latitude: northOf(10.0, 101), Longitude: 106.0}, loc, slot)
	assert.False(t, outside.Valid)
	require.NotNil(t, outside.DistanceMeters)
	assert.InDelta(t, 101, *outside.DistanceMeters, 0.01)

	none := v.Check(attendance.Position{}, nil, slot)
	assert.True(t, none.Valid)
	assert.Nil(t, none.DistanceMeters)
}
