package attendance

import (
	"errors"
	"fmt"
)

// Attendance domain errors
var (
	// Check-in flow errors
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrOutOfGeofence       = errors.New("you are outside the allowed radius")
	ErrOutOfTimeWindow     = errors.New("outside the check-in time window")
	ErrCaptureFailure      = errors.New("photo capture failed")
	ErrUnreadablePhoto     = errors.New("photo could not be decoded")
	ErrUploadFailure       = errors.New("photo upload failed")
	ErrSubmissionFailure   = errors.New("check-in submission failed")

	// Slot errors
	ErrSlotNotRegistered = errors.New("you are not registered for this slot")
	ErrSlotNotFound      = errors.New("slot not found in the activity schedule")
	ErrNoSlotAvailable   = errors.New("no slot is open for check-in right now")
	ErrCheckInInProgress = errors.New("a check-in for this slot is already in progress")
	ErrNotPrepared       = errors.New("check-in was not prepared")
	ErrInvalidDirection  = errors.New("direction must be start or end")
)

// UserError is implemented by errors that carry a message meant for the student.
type UserError interface {
	error
	Message() string
}

func unwrapAll(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}

type PositionUnavailableError struct {
	Err error
}

func (e *PositionUnavailableError) Error() string {
	if e.Err == nil {
		return ErrPositionUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrPositionUnavailable, e.Err)
}

func (e *PositionUnavailableError) Unwrap() []error {
	return unwrapAll(ErrPositionUnavailable, e.Err)
}

func (e *PositionUnavailableError) Message() string {
	return "Không thể xác định vị trí của bạn. Vui lòng bật định vị và thử lại."
}

type OutOfGeofenceError struct {
	Result GeofenceResult
}

func (e *OutOfGeofenceError) Error() string {
	return fmt.Sprintf("%s: %s", ErrOutOfGeofence, e.Result.Message)
}

func (e *OutOfGeofenceError) Unwrap() error {
	return ErrOutOfGeofence
}

func (e *OutOfGeofenceError) Message() string {
	return e.Result.Message
}

type OutOfTimeWindowError struct {
	Classification Classification
	Direction      Direction
	Text           string
}

func (e *OutOfTimeWindowError) Error() string {
	return fmt.Sprintf("%s: %s", ErrOutOfTimeWindow, e.Text)
}

func (e *OutOfTimeWindowError) Unwrap() error {
	return ErrOutOfTimeWindow
}

func (e *OutOfTimeWindowError) Message() string {
	return e.Text
}

type CaptureFailureError struct {
	Err error
}

func (e *CaptureFailureError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCaptureFailure, e.Err)
}

func (e *CaptureFailureError) Unwrap() []error {
	return unwrapAll(ErrCaptureFailure, e.Err)
}

func (e *CaptureFailureError) Message() string {
	if errors.Is(e.Err, ErrUnreadablePhoto) {
		return "Ảnh chụp không đọc được. Vui lòng chụp lại bằng định dạng JPEG, PNG hoặc WebP."
	}
	return "Không thể chụp ảnh. Vui lòng kiểm tra quyền truy cập camera và thử lại."
}

type UploadFailureError struct {
	Err error
}

func (e *UploadFailureError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUploadFailure, e.Err)
}

func (e *UploadFailureError) Unwrap() []error {
	return unwrapAll(ErrUploadFailure, e.Err)
}

func (e *UploadFailureError) Message() string {
	return "Tải ảnh lên thất bại. Vui lòng thử lại."
}

type SubmissionFailureError struct {
	Err error
}

func (e *SubmissionFailureError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSubmissionFailure, e.Err)
}

func (e *SubmissionFailureError) Unwrap() []error {
	return unwrapAll(ErrSubmissionFailure, e.Err)
}

func (e *SubmissionFailureError) Message() string {
	return "Gửi điểm danh thất bại. Vui lòng thử lại."
}
