package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/pkg/database"
	"github.com/campus-activity/checkin-engine/internal/pkg/validator"
	"github.com/jackc/pgx/v5"
)

type activityRepository struct {
	db *database.DB
}

type locationJSON struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Address      string  `json:"address"`
	RadiusMeters float64 `json:"radius_meters"`
}

func (l locationJSON) spec() activity.LocationSpec {
	return activity.LocationSpec{
		Latitude:     l.Latitude,
		Longitude:    l.Longitude,
		Address:      l.Address,
		RadiusMeters: l.RadiusMeters,
	}
}

type timeSlotJSON struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Active bool   `json:"active"`
}

type daySlotLocationJSON struct {
	DayNumber int          `json:"day_number"`
	SlotKey   string       `json:"slot_key"`
	Location  locationJSON `json:"location"`
}

type scheduleDayJSON struct {
	DayNumber   int    `json:"day_number"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// GetActivity implements activity.RegistrationSource.
func (r *activityRepository) GetActivity(ctx context.Context, activityID string) (activity.Activity, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, name, kind, timezone, date, time_slots, location,
			   day_locations, slot_locations, day_slot_locations, schedule,
			   created_at, updated_at
		FROM activities
		WHERE id = $1
	`

	var (
		a                                                       activity.Activity
		date                                                    *time.Time
		timeSlots, location, dayLocs, slotLocs, daySlotLocs, sc []byte
	)
	err := q.QueryRow(ctx, query, activityID).Scan(
		&a.ID, &a.Name, &a.Kind, &a.Timezone, &date, &timeSlots, &location,
		&dayLocs, &slotLocs, &daySlotLocs, &sc,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return activity.Activity{}, activity.ErrActivityNotFound
		}
		return activity.Activity{}, fmt.Errorf("failed to get activity: %w", err)
	}

	if !validator.IsInSlice(string(a.Kind), activity.KindValues) {
		return activity.Activity{}, fmt.Errorf("activity %s has unknown kind %q", activityID, a.Kind)
	}
	if date != nil {
		a.Date = *date
	}
	if err := decodeActivityJSON(&a, timeSlots, location, dayLocs, slotLocs, daySlotLocs, sc); err != nil {
		return activity.Activity{}, fmt.Errorf("failed to decode activity %s: %w", activityID, err)
	}

	return a, nil
}

// GetRegistration implements activity.RegistrationSource.
func (r *activityRepository) GetRegistration(ctx context.Context, activityID string, userID string) (activity.Registration, error) {
	q := GetQuerier(ctx, r.db)

	reg := activity.Registration{
		ActivityID: activityID,
		UserID:     userID,
		Slots:      activity.NewRegisteredSet(),
	}

	err := q.QueryRow(ctx,
		`SELECT status FROM registrations WHERE activity_id = $1 AND user_id = $2`,
		activityID, userID,
	).Scan(&reg.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return activity.Registration{}, activity.ErrNotRegistered
		}
		return activity.Registration{}, fmt.Errorf("failed to get registration: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT day_number, slot_key FROM registration_slots WHERE activity_id = $1 AND user_id = $2`,
		activityID, userID,
	)
	if err != nil {
		return activity.Registration{}, fmt.Errorf("failed to list registered slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			day int
			key string
		)
		if err := rows.Scan(&day, &key); err != nil {
			return activity.Registration{}, fmt.Errorf("failed to scan registered slot: %w", err)
		}
		reg.Slots.Add(day, slotKey(key))
	}
	if err := rows.Err(); err != nil {
		return activity.Registration{}, fmt.Errorf("failed to list registered slots: %w", err)
	}

	return reg, nil
}

func decodeActivityJSON(a *activity.Activity, timeSlots, location, dayLocs, slotLocs, daySlotLocs, sc []byte) error {
	var slots []timeSlotJSON
	if err := unmarshalOptional(timeSlots, &slots); err != nil {
		return fmt.Errorf("time_slots: %w", err)
	}
	for _, s := range slots {
		ts := activity.TimeSlot{Key: slotKey(s.Key), Name: s.Name, Active: s.Active}
		start, startErr := activity.ParseClockTime(s.Start)
		end, endErr := activity.ParseClockTime(s.End)
		if startErr != nil || endErr != nil {
			ts.Active = false
		}
		ts.Start, ts.End = start, end
		a.TimeSlots = append(a.TimeSlots, ts)
	}

	if len(location) > 0 && string(location) != "null" {
		var loc locationJSON
		if err := json.Unmarshal(location, &loc); err != nil {
			return fmt.Errorf("location: %w", err)
		}
		spec := loc.spec()
		a.Location = &spec
	}

	var days map[int]locationJSON
	if err := unmarshalOptional(dayLocs, &days); err != nil {
		return fmt.Errorf("day_locations: %w", err)
	}
	if len(days) > 0 {
		a.DayLocations = make(map[int]activity.LocationSpec, len(days))
		for n, l := range days {
			a.DayLocations[n] = l.spec()
		}
	}

	var bySlot map[string]locationJSON
	if err := unmarshalOptional(slotLocs, &bySlot); err != nil {
		return fmt.Errorf("slot_locations: %w", err)
	}
	if len(bySlot) > 0 {
		a.SlotLocations = make(map[activity.SlotKey]activity.LocationSpec, len(bySlot))
		for k, l := range bySlot {
			a.SlotLocations[slotKey(k)] = l.spec()
		}
	}

	var byDaySlot []daySlotLocationJSON
	if err := unmarshalOptional(daySlotLocs, &byDaySlot); err != nil {
		return fmt.Errorf("day_slot_locations: %w", err)
	}
	if len(byDaySlot) > 0 {
		a.DaySlotLocations = make(map[activity.DaySlot]activity.LocationSpec, len(byDaySlot))
		for _, l := range byDaySlot {
			a.DaySlotLocations[activity.DaySlot{DayNumber: l.DayNumber, SlotKey: slotKey(l.SlotKey)}] = l.Location.spec()
		}
	}

	var schedule []scheduleDayJSON
	if err := unmarshalOptional(sc, &schedule); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	for _, d := range schedule {
		a.Schedule = append(a.Schedule, activity.RawScheduleDay{
			DayNumber:   d.DayNumber,
			Date:        d.Date,
			Description: d.Description,
		})
	}

	return nil
}

func unmarshalOptional(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

// slotKey maps stored names onto the well-known keys and keeps custom single-day keys as they are.
func slotKey(s string) activity.SlotKey {
	if key, ok := activity.NormalizeSlotKey(s); ok {
		return key
	}
	return activity.SlotKey(s)
}

func NewActivityRepository(db *database.DB) activity.RegistrationSource {
	return &activityRepository{
		db: db,
	}
}
