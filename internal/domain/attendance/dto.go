package attendance

import (
	"strings"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/pkg/validator"
)

// ========================================
// CHECK-IN DTOs
// ========================================

// CheckInRequest starts a check-in. Target is optional: when nil the engine discovers the open slot.
type CheckInRequest struct {
	ActivityID    string            `json:"activity_id" validate:"required"`
	UserID        string            `json:"user_id" validate:"required"`
	UserName      string            `json:"user_name"`
	Target        *activity.DaySlot `json:"-"`
	Direction     Direction         `json:"direction" validate:"omitempty,oneof=start end"`
	Justification string            `json:"justification" validate:"max=1000"`
}

func (r *CheckInRequest) Validate() error {
	if err := validator.Struct(r); err != nil {
		return err
	}

	var errs validator.ValidationErrors
	if r.Target != nil {
		if r.Target.DayNumber <= 0 {
			errs = append(errs, validator.ValidationError{
				Field:   "day_number",
				Message: "day_number must be greater than 0",
			})
		}
		if validator.IsEmpty(string(r.Target.SlotKey)) {
			errs = append(errs, validator.ValidationError{
				Field:   "slot_key",
				Message: "slot_key is required when day_number is given",
			})
		}
		if r.Direction == "" {
			errs = append(errs, validator.ValidationError{
				Field:   "direction",
				Message: "direction is required when a slot is targeted",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SubmitOptions carries the inputs of the submission phase that are not part of the capture.
type SubmitOptions struct {
	Justification string
}

// SubmitRequest is what the engine sends to the backend.
type SubmitRequest struct {
	ActivityID     string
	UserID         string
	Slot           activity.DaySlot
	Direction      Direction
	CheckInTime    time.Time
	Position       Position
	Address        string
	PhotoURL       string
	ProposedStatus Status
	Verification   Verification
}

func (r SubmitRequest) Key() RecordKey {
	return RecordKey{
		ActivityID: r.ActivityID,
		UserID:     r.UserID,
		DayNumber:  r.Slot.DayNumber,
		SlotKey:    r.Slot.SlotKey,
		Direction:  r.Direction,
	}
}

// SubmitResponse is the backend's answer to a submission.
type SubmitResponse struct {
	RecordID        string
	Status          Status
	RejectionReason *string
}

// CheckInResult reports the outcome of a completed submission.
type CheckInResult struct {
	RecordID        string
	Slot            activity.DaySlot
	Direction       Direction
	CheckInTime     time.Time
	Address         string
	PhotoURL        string
	ProposedStatus  Status
	Status          Status
	RejectionReason *string
	Classification  Classification
	Geofence        GeofenceResult

	// Reconciled is false when the post-submit refresh from the backend failed.
	Reconciled bool
	Message    string
}

// ========================================
// HTTP REQUEST DTOs
// ========================================

// CheckInForm is the JSON "data" field of the multipart check-in request.
type CheckInForm struct {
	DayNumber     *int     `json:"day_number" validate:"omitempty,gt=0"`
	SlotKey       string   `json:"slot_key"`
	Slot          string   `json:"slot"` // "Day {n} - {slot}", as in RecordResponse.Slot
	Direction     string   `json:"direction" validate:"omitempty,oneof=start end"`
	Latitude      *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude     *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Accuracy      float64  `json:"accuracy" validate:"gte=0"`
	CapturedAt    string   `json:"captured_at"`
	Justification string   `json:"justification" validate:"max=1000"`
}

func (f *CheckInForm) Validate() error {
	if err := validator.Struct(f); err != nil {
		return err
	}

	var errs validator.ValidationErrors
	hasDay := f.DayNumber != nil
	hasSlot := !validator.IsEmpty(f.SlotKey)
	if hasDay != hasSlot {
		errs = append(errs, validator.ValidationError{
			Field:   "slot_key",
			Message: "day_number and slot_key must be provided together",
		})
	}
	errs = append(errs, validateSlotRef(f.Slot, hasDay || hasSlot)...)
	if (hasDay || !validator.IsEmpty(f.Slot)) && f.Direction == "" {
		errs = append(errs, validator.ValidationError{
			Field:   "direction",
			Message: "direction is required when a slot is targeted",
		})
	}
	if f.CapturedAt != "" {
		if _, ok := validator.IsValidDateTime(f.CapturedAt); !ok {
			errs = append(errs, validator.ValidationError{
				Field:   "captured_at",
				Message: "captured_at must be an RFC3339 timestamp",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Target returns the explicitly targeted slot, nil when the engine should discover one.
func (f *CheckInForm) Target() *activity.DaySlot {
	return targetOf(f.Slot, f.DayNumber, f.SlotKey)
}

// CapturedAtTime parses CapturedAt, zero when absent.
func (f *CheckInForm) CapturedAtTime() time.Time {
	t, _ := validator.IsValidDateTime(f.CapturedAt)
	return t
}

func (f *CheckInForm) Position() Position {
	return Position{Latitude: *f.Latitude, Longitude: *f.Longitude, Accuracy: f.Accuracy}
}

type GeofenceCheckRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	DayNumber *int     `json:"day_number" validate:"omitempty,gt=0"`
	SlotKey   string   `json:"slot_key"`
	Slot      string   `json:"slot"`
}

func (r *GeofenceCheckRequest) Validate() error {
	if err := validator.Struct(r); err != nil {
		return err
	}
	hasDay := r.DayNumber != nil
	hasSlot := !validator.IsEmpty(r.SlotKey)
	var errs validator.ValidationErrors
	if hasDay != hasSlot {
		errs = append(errs, validator.ValidationError{
			Field:   "slot_key",
			Message: "day_number and slot_key must be provided together",
		})
	}
	errs = append(errs, validateSlotRef(r.Slot, hasDay || hasSlot)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r *GeofenceCheckRequest) Selected() *activity.DaySlot {
	return targetOf(r.Slot, r.DayNumber, r.SlotKey)
}

func validateSlotRef(ref string, pairGiven bool) validator.ValidationErrors {
	if validator.IsEmpty(ref) {
		return nil
	}
	if pairGiven {
		return validator.ValidationErrors{{
			Field:   "slot",
			Message: "slot cannot be combined with day_number and slot_key",
		}}
	}
	if _, err := ParseSlotRef(ref); err != nil {
		return validator.ValidationErrors{{
			Field:   "slot",
			Message: "slot must look like \"Day 1 - morning\"",
		}}
	}
	return nil
}

// targetOf resolves either the "Day {n} - {slot}" reference or the day_number/slot_key pair.
func targetOf(ref string, dayNumber *int, slotKey string) *activity.DaySlot {
	if !validator.IsEmpty(ref) {
		slot, err := ParseSlotRef(ref)
		if err != nil {
			return nil
		}
		return &slot
	}
	if dayNumber == nil || validator.IsEmpty(slotKey) {
		return nil
	}
	key, ok := activity.NormalizeSlotKey(slotKey)
	if !ok {
		key = activity.SlotKey(strings.ToLower(strings.TrimSpace(slotKey)))
	}
	return &activity.DaySlot{DayNumber: *dayNumber, SlotKey: key}
}

// ========================================
// HTTP RESPONSE DTOs
// ========================================

type VerificationResponse struct {
	DistanceMeters    *float64 `json:"distance_meters,omitempty"`
	LocationValid     bool     `json:"location_valid"`
	LocationScope     string   `json:"location_scope,omitempty"`
	MinutesFromTarget int      `json:"minutes_from_target"`
	Late              bool     `json:"late"`
	Justification     string   `json:"justification,omitempty"`
}

type RecordResponse struct {
	ID              string               `json:"id"`
	ActivityID      string               `json:"activity_id"`
	DayNumber       int                  `json:"day_number"`
	SlotKey         string               `json:"slot_key"`
	Slot            string               `json:"slot"`
	Direction       string               `json:"direction"`
	CheckInTime     string               `json:"check_in_time"`
	Latitude        float64              `json:"latitude"`
	Longitude       float64              `json:"longitude"`
	Address         string               `json:"address,omitempty"`
	PhotoURL        string               `json:"photo_url"`
	Status          string               `json:"status"`
	Verification    VerificationResponse `json:"verification"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	UpdatedAt       string               `json:"updated_at"`
}

func ToRecordResponse(r AttendanceRecord) RecordResponse {
	return RecordResponse{
		ID:          r.ID,
		ActivityID:  r.ActivityID,
		DayNumber:   r.Slot.DayNumber,
		SlotKey:     string(r.Slot.SlotKey),
		Slot:        r.Slot.String(),
		Direction:   string(r.Direction),
		CheckInTime: r.CheckInTime.Format(time.RFC3339),
		Latitude:    r.Position.Latitude,
		Longitude:   r.Position.Longitude,
		Address:     r.Address,
		PhotoURL:    r.PhotoURL,
		Status:      string(r.Status),
		Verification: VerificationResponse{
			DistanceMeters:    r.Verification.DistanceMeters,
			LocationValid:     r.Verification.LocationValid,
			LocationScope:     string(r.Verification.LocationScope),
			MinutesFromTarget: r.Verification.MinutesFromTarget,
			Late:              r.Verification.Late,
			Justification:     r.Verification.Justification,
		},
		RejectionReason: r.RejectionReason,
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
}

type CheckInResponse struct {
	RecordID        string   `json:"record_id"`
	DayNumber       int      `json:"day_number"`
	SlotKey         string   `json:"slot_key"`
	Direction       string   `json:"direction"`
	CheckInTime     string   `json:"check_in_time"`
	Address         string   `json:"address,omitempty"`
	PhotoURL        string   `json:"photo_url"`
	ProposedStatus  string   `json:"proposed_status"`
	Status          string   `json:"status"`
	RejectionReason *string  `json:"rejection_reason,omitempty"`
	Late            bool     `json:"late"`
	Minutes         int      `json:"minutes_from_target"`
	DistanceMeters  *float64 `json:"distance_meters,omitempty"`
	Reconciled      bool     `json:"reconciled"`
	Message         string   `json:"message"`
}

func ToCheckInResponse(r CheckInResult) CheckInResponse {
	return CheckInResponse{
		RecordID:        r.RecordID,
		DayNumber:       r.Slot.DayNumber,
		SlotKey:         string(r.Slot.SlotKey),
		Direction:       string(r.Direction),
		CheckInTime:     r.CheckInTime.Format(time.RFC3339),
		Address:         r.Address,
		PhotoURL:        r.PhotoURL,
		ProposedStatus:  string(r.ProposedStatus),
		Status:          string(r.Status),
		RejectionReason: r.RejectionReason,
		Late:            r.Classification.IsLate,
		Minutes:         r.Classification.Minutes,
		DistanceMeters:  r.Geofence.DistanceMeters,
		Reconciled:      r.Reconciled,
		Message:         r.Message,
	}
}

type GeofenceResponse struct {
	Valid          bool     `json:"valid"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	RadiusMeters   *float64 `json:"radius_meters,omitempty"`
	LocationScope  string   `json:"location_scope,omitempty"`
	Address        string   `json:"address,omitempty"`
	Message        string   `json:"message"`
}

func ToGeofenceResponse(r GeofenceResult) GeofenceResponse {
	resp := GeofenceResponse{
		Valid:          r.Valid,
		DistanceMeters: r.DistanceMeters,
		Message:        r.Message,
	}
	if r.Location != nil {
		radius := r.Location.RadiusMeters
		resp.RadiusMeters = &radius
		resp.LocationScope = string(r.Location.Scope)
		resp.Address = r.Location.Address
	}
	return resp
}

type SlotStatusResponse struct {
	DayNumber    int     `json:"day_number"`
	Date         *string `json:"date,omitempty"`
	SlotKey      string  `json:"slot_key"`
	SlotName     string  `json:"slot_name"`
	Direction    string  `json:"direction"`
	Target       string  `json:"target"`
	State        string  `json:"state"`
	RecordStatus string  `json:"record_status,omitempty"`
	RecordID     string  `json:"record_id,omitempty"`
}

type SummaryResponse struct {
	Total             int `json:"total"`
	Done              int `json:"done"`
	Approved          int `json:"approved"`
	Pending           int `json:"pending"`
	Rejected          int `json:"rejected"`
	Missed            int `json:"missed"`
	CompletionPercent int `json:"completion_percent"`
}

type BoardResponse struct {
	ActivityID string               `json:"activity_id"`
	Name       string               `json:"name"`
	Now        string               `json:"now"`
	Next       *SlotStatusResponse  `json:"next_available,omitempty"`
	Summary    SummaryResponse      `json:"summary"`
	Slots      []SlotStatusResponse `json:"slots"`
}

func ToSlotStatusResponse(s SlotStatus) SlotStatusResponse {
	resp := SlotStatusResponse{
		DayNumber:    s.Day.DayNumber,
		SlotKey:      string(s.Slot.Key),
		SlotName:     s.Slot.Name,
		Direction:    string(s.Direction),
		Target:       s.Target.Format(time.RFC3339),
		State:        string(s.State),
		RecordStatus: string(s.RecordStatus()),
	}
	if s.Day.HasDate() {
		date := s.Day.Date.Format("2006-01-02")
		resp.Date = &date
	}
	if s.Record != nil {
		resp.RecordID = s.Record.ID
	}
	return resp
}

func ToSummaryResponse(s Summary) SummaryResponse {
	return SummaryResponse{
		Total:             s.Total,
		Done:              s.Done,
		Approved:          s.Approved,
		Pending:           s.Pending,
		Rejected:          s.Rejected,
		Missed:            s.Missed,
		CompletionPercent: s.CompletionPercent,
	}
}

type ScheduleSlotResponse struct {
	Key        string                    `json:"key"`
	Name       string                    `json:"name"`
	Start      string                    `json:"start"`
	End        string                    `json:"end"`
	Location   *ScheduleLocationResponse `json:"location,omitempty"`
	Registered bool                      `json:"registered"`
}

type ScheduleLocationResponse struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Address      string  `json:"address,omitempty"`
	RadiusMeters float64 `json:"radius_meters"`
	Scope        string  `json:"scope"`
}

type ScheduleDayResponse struct {
	DayNumber int                    `json:"day_number"`
	Date      *string                `json:"date,omitempty"`
	Slots     []ScheduleSlotResponse `json:"slots"`
}

type ScheduleWeekResponse struct {
	Start *string               `json:"start,omitempty"`
	End   *string               `json:"end,omitempty"`
	Days  []ScheduleDayResponse `json:"days"`
}

func ToScheduleWeeksResponse(weeks []activity.Week, registered activity.RegisteredSet) []ScheduleWeekResponse {
	resp := make([]ScheduleWeekResponse, 0, len(weeks))
	for _, w := range weeks {
		wr := ScheduleWeekResponse{Days: make([]ScheduleDayResponse, 0, len(w.Days))}
		if !w.Undated() {
			start := w.Start.Format("2006-01-02")
			end := w.End.Format("2006-01-02")
			wr.Start, wr.End = &start, &end
		}
		for _, d := range w.Days {
			dr := ScheduleDayResponse{DayNumber: d.DayNumber, Slots: make([]ScheduleSlotResponse, 0, len(d.Slots))}
			if d.HasDate() {
				date := d.Date.Format("2006-01-02")
				dr.Date = &date
			}
			for _, s := range d.Slots {
				sr := ScheduleSlotResponse{
					Key:        string(s.Key),
					Name:       s.Name,
					Start:      s.Start.String(),
					End:        s.End.String(),
					Registered: registered.Contains(d.DayNumber, s.Key),
				}
				if s.Location != nil {
					sr.Location = &ScheduleLocationResponse{
						Latitude:     s.Location.Latitude,
						Longitude:    s.Location.Longitude,
						Address:      s.Location.Address,
						RadiusMeters: s.Location.RadiusMeters,
						Scope:        string(s.Location.Scope),
					}
				}
				dr.Slots = append(dr.Slots, sr)
			}
			wr.Days = append(wr.Days, dr)
		}
		resp = append(resp, wr)
	}
	return resp
}

func ToBoardResponse(v BoardView) BoardResponse {
	resp := BoardResponse{
		ActivityID: v.Activity.ID,
		Name:       v.Activity.Name,
		Now:        v.Now.Format(time.RFC3339),
		Summary:    ToSummaryResponse(v.Summary),
		Slots:      make([]SlotStatusResponse, 0, len(v.Slots)),
	}
	for _, s := range v.Slots {
		resp.Slots = append(resp.Slots, ToSlotStatusResponse(s))
	}
	if v.Next != nil {
		next := ToSlotStatusResponse(*v.Next)
		resp.Next = &next
	}
	return resp
}

type ScheduleResponse struct {
	ActivityID string                 `json:"activity_id"`
	Name       string                 `json:"name"`
	Kind       string                 `json:"kind"`
	Timezone   string                 `json:"timezone"`
	Weeks      []ScheduleWeekResponse `json:"weeks"`
	Registered []string               `json:"registered"` // "Day {n} - {slot}", schedule order
}

func ToScheduleResponse(v ScheduleView) ScheduleResponse {
	pairs := v.Registered.Pairs()
	registered := make([]string, 0, len(pairs))
	for _, p := range pairs {
		registered = append(registered, p.String())
	}

	return ScheduleResponse{
		ActivityID: v.Activity.ID,
		Name:       v.Activity.Name,
		Kind:       string(v.Activity.Kind),
		Timezone:   v.Activity.TimeLocation().String(),
		Weeks:      ToScheduleWeeksResponse(v.Weeks, v.Registered),
		Registered: registered,
	}
}
