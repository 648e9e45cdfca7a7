package attendance

import (
	"context"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
)

// PositionProvider yields the device position
type PositionProvider interface {
	GetPosition(ctx context.Context) (Position, error)
}

// Geocoder resolves coordinates to a street address. An empty address means unresolved.
type Geocoder interface {
	ResolveAddress(ctx context.Context, lat, lng float64) (string, error)
}

// Camera captures one photo frame
type Camera interface {
	Capture(ctx context.Context) (Frame, error)
}

// PhotoStorage stamps the evidence watermark onto a photo and stores it, returning its URL.
type PhotoStorage interface {
	UploadCheckInPhoto(ctx context.Context, key RecordKey, frame Frame, info WatermarkInfo) (string, error)
}

// Devices bundles the per-attempt collaborators that depend on the caller's device.
type Devices struct {
	Position PositionProvider
	Camera   Camera
}

// CheckInService defines the check-in operations exposed to transports
type CheckInService interface {
	// Prepare runs slot selection, the pre-flight position check, photo capture and time classification
	Prepare(ctx context.Context, req CheckInRequest, dev Devices) (PendingCheckIn, error)

	// Submit re-validates position, uploads the watermarked photo, submits and reconciles
	Submit(ctx context.Context, pending PendingCheckIn, dev Devices, opts SubmitOptions) (CheckInResult, error)

	// CheckIn runs Prepare then Submit
	CheckIn(ctx context.Context, req CheckInRequest, dev Devices) (CheckInResult, error)

	// Release abandons a prepared check-in without submitting it
	Release(ctx context.Context, pending PendingCheckIn)

	// Board returns every registered (day, slot, direction) with its state, plus the summary
	Board(ctx context.Context, activityID, userID string) (BoardView, error)

	// Schedule returns the resolved schedule of an activity grouped by week, with the caller's registration
	Schedule(ctx context.Context, activityID, userID string) (ScheduleView, error)

	// ValidatePosition runs the geofence check without capturing anything. The slot currently open
	// for userID takes precedence over selected.
	ValidatePosition(ctx context.Context, activityID, userID string, pos Position, selected *activity.DaySlot) (GeofenceResult, error)

	// Records refreshes and returns the caller's records from the backend
	Records(ctx context.Context, activityID, userID string) ([]AttendanceRecord, error)
}

type BoardView struct {
	Activity activity.Activity
	Now      time.Time
	Slots    []SlotStatus
	Next     *SlotStatus
	Summary  Summary
}

type ScheduleView struct {
	Activity   activity.Activity
	Weeks      []activity.Week
	Registered activity.RegisteredSet
}
