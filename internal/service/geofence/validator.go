package geofence

import (
	"fmt"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/pkg/utils"
	"github.com/campus-activity/checkin-engine/internal/service/schedule"
)

// boundaryTolerance absorbs float error so a point exactly on the radius stays inside.
const boundaryTolerance = 1e-6

const messageNoLocation = "Không yêu cầu vị trí cho buổi này."

// Context selects which location applies to a validation.
type Context struct {
	Kind activity.Kind

	// Open is the slot currently open for check-in. When set, validation is pinned to it.
	Open *activity.DaySlot

	// Target is a slot the caller named explicitly
	Target *activity.DaySlot

	// Selected is the slot the user is looking at
	Selected *activity.DaySlot
}

// Slot returns the slot validation applies to: open, then target, then selected.
func (c Context) Slot() *activity.DaySlot {
	switch {
	case c.Open != nil:
		return c.Open
	case c.Target != nil:
		return c.Target
	default:
		return c.Selected
	}
}

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Distance returns the haversine distance between two positions in meters.
func Distance(a, b attendance.Position) float64 {
	return utils.CalculateHaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// Locate returns the location that applies to c, nil when none does.
// ok is false when c names a day the schedule does not have.
func (v *Validator) Locate(days []activity.ScheduleDay, c Context) (loc *activity.ResolvedLocation, ok bool) {
	if ref := c.Slot(); ref != nil {
		day, slot, found := schedule.Find(days, *ref)
		if found {
			return slot.Location, true
		}
		// A slot missing from the schedule falls back to its day.
		if day.DayNumber == ref.DayNumber {
			return day.Location, true
		}
		return nil, false
	}

	if c.Kind == activity.KindMultiDay {
		return nil, true
	}
	if len(days) == 0 {
		return nil, true
	}
	return days[0].Location, true
}

// Validate checks pos against the location that applies to c. Boundary is inclusive.
func (v *Validator) Validate(pos attendance.Position, days []activity.ScheduleDay, c Context) attendance.GeofenceResult {
	loc, ok := v.Locate(days, c)
	if !ok {
		ref := c.Slot()
		return attendance.GeofenceResult{
			Slot:    ref,
			Message: fmt.Sprintf("Ngày %d không có trong lịch của hoạt động.", ref.DayNumber),
		}
	}
	return v.Check(pos, loc, c.Slot())
}

// Check validates pos against an already located loc. A nil loc imposes no constraint.
func (v *Validator) Check(pos attendance.Position, loc *activity.ResolvedLocation, slot *activity.DaySlot) attendance.GeofenceResult {
	result := attendance.GeofenceResult{Slot: slot}

	if loc == nil {
		result.Valid = true
		result.Message = messageNoLocation
		return result
	}

	center := attendance.Position{Latitude: loc.Latitude, Longitude: loc.Longitude}
	distance := Distance(pos, center)

	result.Location = loc
	result.DistanceMeters = &distance
	// Compared at the whole-meter precision the message shows.
	result.Valid = float64(utils.RoundMeters(distance)) <= loc.RadiusMeters+boundaryTolerance

	if result.Valid {
		result.Message = fmt.Sprintf("Bạn đang ở trong phạm vi cho phép của %s (cách %dm, bán kính %dm).",
			loc.Describe(), utils.RoundMeters(distance), utils.RoundMeters(loc.RadiusMeters))
	} else {
		result.Message = fmt.Sprintf("Bạn đang ở ngoài phạm vi cho phép của %s: cách %dm, bán kính cho phép %dm.",
			loc.Describe(), utils.RoundMeters(distance), utils.RoundMeters(loc.RadiusMeters))
	}
	return result
}
