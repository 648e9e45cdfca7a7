package postgresql

import (
	"context"
	"fmt"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/pkg/database"
)

type attendanceRepository struct {
	db *database.DB
}

// Submit implements attendance.Backend. A re-submission for the same (activity, user, day, slot,
// direction) overwrites the stored record and clears any earlier review.
func (a *attendanceRepository) Submit(ctx context.Context, req attendance.SubmitRequest) (attendance.SubmitResponse, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		INSERT INTO attendance_records (
			activity_id, user_id, day_number, slot_key, direction,
			check_in_time, latitude, longitude, accuracy, address, photo_url, status,
			distance_meters, location_valid, location_scope, minutes_from_target, late, justification
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (activity_id, user_id, day_number, slot_key, direction) DO UPDATE SET
			check_in_time       = EXCLUDED.check_in_time,
			latitude            = EXCLUDED.latitude,
			longitude           = EXCLUDED.longitude,
			accuracy            = EXCLUDED.accuracy,
			address             = EXCLUDED.address,
			photo_url           = EXCLUDED.photo_url,
			status              = EXCLUDED.status,
			distance_meters     = EXCLUDED.distance_meters,
			location_valid      = EXCLUDED.location_valid,
			location_scope      = EXCLUDED.location_scope,
			minutes_from_target = EXCLUDED.minutes_from_target,
			late                = EXCLUDED.late,
			justification       = EXCLUDED.justification,
			rejection_reason    = NULL,
			reviewed_by         = NULL,
			reviewed_at         = NULL,
			updated_at          = now()
		RETURNING id::text, status, rejection_reason
	`

	v := req.Verification
	var resp attendance.SubmitResponse
	err := q.QueryRow(ctx, query,
		req.ActivityID,
		req.UserID,
		req.Slot.DayNumber,
		string(req.Slot.SlotKey),
		string(req.Direction),
		req.CheckInTime.UTC(),
		req.Position.Latitude,
		req.Position.Longitude,
		req.Position.Accuracy,
		req.Address,
		req.PhotoURL,
		string(req.ProposedStatus),
		v.DistanceMeters,
		v.LocationValid,
		string(v.LocationScope),
		v.MinutesFromTarget,
		v.Late,
		v.Justification,
	).Scan(&resp.RecordID, &resp.Status, &resp.RejectionReason)
	if err != nil {
		return attendance.SubmitResponse{}, fmt.Errorf("failed to upsert attendance record: %w", err)
	}

	return resp, nil
}

// FetchStatus implements attendance.Backend.
func (a *attendanceRepository) FetchStatus(ctx context.Context, activityID string, userID string) ([]attendance.AttendanceRecord, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT id::text, activity_id, user_id, day_number, slot_key, direction,
			   check_in_time, latitude, longitude, accuracy, address, photo_url, status,
			   distance_meters, location_valid, location_scope, minutes_from_target, late, justification,
			   rejection_reason, reviewed_by, reviewed_at, created_at, updated_at
		FROM attendance_records
		WHERE activity_id = $1 AND user_id = $2
		ORDER BY day_number, slot_key, direction
	`

	rows, err := q.Query(ctx, query, activityID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance records: %w", err)
	}
	defer rows.Close()

	records := make([]attendance.AttendanceRecord, 0)
	for rows.Next() {
		var (
			r       attendance.AttendanceRecord
			slotKey string
			scope   string
		)
		if err := rows.Scan(
			&r.ID, &r.ActivityID, &r.UserID, &r.Slot.DayNumber, &slotKey, &r.Direction,
			&r.CheckInTime, &r.Position.Latitude, &r.Position.Longitude, &r.Position.Accuracy,
			&r.Address, &r.PhotoURL, &r.Status,
			&r.Verification.DistanceMeters, &r.Verification.LocationValid, &scope,
			&r.Verification.MinutesFromTarget, &r.Verification.Late, &r.Verification.Justification,
			&r.RejectionReason, &r.ReviewedBy, &r.ReviewedAt, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		r.Slot.SlotKey = activity.SlotKey(slotKey)
		r.Verification.LocationScope = activity.LocationScope(scope)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list attendance records: %w", err)
	}

	return records, nil
}

func NewAttendanceRepository(db *database.DB) attendance.Backend {
	return &attendanceRepository{
		db: db,
	}
}
