package response

import (
	"errors"
	"net/http"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/pkg/jwt"
	"github.com/campus-activity/checkin-engine/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Auth errors
	case errors.Is(err, jwt.ErrInvalidToken), errors.Is(err, jwt.ErrMissingClaims):
		Unauthorized(w, "Invalid or expired token")

	// Check-in flow errors
	case errors.Is(err, attendance.ErrPositionUnavailable):
		Error(w, http.StatusBadRequest, "POSITION_UNAVAILABLE", userMessage(err))
	case errors.Is(err, attendance.ErrOutOfGeofence):
		Error(w, http.StatusUnprocessableEntity, "OUT_OF_GEOFENCE", userMessage(err))
	case errors.Is(err, attendance.ErrOutOfTimeWindow):
		Error(w, http.StatusUnprocessableEntity, "OUT_OF_TIME_WINDOW", userMessage(err))
	case errors.Is(err, attendance.ErrCaptureFailure):
		Error(w, http.StatusBadRequest, "CAPTURE_FAILURE", userMessage(err))
	case errors.Is(err, attendance.ErrUploadFailure):
		Error(w, http.StatusBadGateway, "UPLOAD_FAILURE", userMessage(err))
	case errors.Is(err, attendance.ErrSubmissionFailure):
		Error(w, http.StatusBadGateway, "SUBMISSION_FAILURE", userMessage(err))

	// Slot errors
	case errors.Is(err, attendance.ErrSlotNotRegistered):
		Error(w, http.StatusForbidden, "SLOT_NOT_REGISTERED", "Bạn chưa đăng ký buổi này.")
	case errors.Is(err, attendance.ErrSlotNotFound):
		NotFound(w, "Không tìm thấy buổi này trong lịch hoạt động.")
	case errors.Is(err, attendance.ErrNoSlotAvailable):
		Error(w, http.StatusUnprocessableEntity, "NO_SLOT_AVAILABLE", "Hiện không có buổi nào mở điểm danh.")
	case errors.Is(err, attendance.ErrCheckInInProgress):
		Conflict(w, "Đang xử lý một lượt điểm danh cho buổi này. Vui lòng đợi.")
	case errors.Is(err, attendance.ErrNotPrepared):
		Error(w, http.StatusConflict, "CHECKIN_NOT_PREPARED", "Lượt điểm danh chưa được chuẩn bị hoặc đã hết hạn. Vui lòng thử lại.")
	case errors.Is(err, attendance.ErrInvalidDirection):
		BadRequest(w, "direction must be start or end", nil)

	// Activity errors
	case errors.Is(err, activity.ErrActivityNotFound):
		NotFound(w, "Activity not found")
	case errors.Is(err, activity.ErrNotRegistered):
		Forbidden(w, "Bạn chưa đăng ký hoạt động này.")
	case errors.Is(err, activity.ErrRegistrationPending):
		Forbidden(w, "Đăng ký của bạn chưa được duyệt.")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}

func userMessage(err error) string {
	var ue attendance.UserError
	if errors.As(err, &ue) {
		return ue.Message()
	}
	return err.Error()
}
