package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/handler/http/response"
	"github.com/campus-activity/checkin-engine/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DefaultMaxPhotoBytes bounds the uploaded photo before decoding.
const DefaultMaxPhotoBytes = 10 << 20

type AttendanceHandler interface {
	Board(w http.ResponseWriter, r *http.Request)
	Schedule(w http.ResponseWriter, r *http.Request)
	ValidateGeofence(w http.ResponseWriter, r *http.Request)
	CheckIn(w http.ResponseWriter, r *http.Request)
	Records(w http.ResponseWriter, r *http.Request)
}

type attendanceHandlerImpl struct {
	checkInService attendance.CheckInService
	maxPhotoBytes  int64
	logger         *zap.Logger
}

func NewAttendanceHandler(checkInService attendance.CheckInService, maxPhotoBytes int64, logger *zap.Logger) AttendanceHandler {
	if maxPhotoBytes <= 0 {
		maxPhotoBytes = DefaultMaxPhotoBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &attendanceHandlerImpl{
		checkInService: checkInService,
		maxPhotoBytes:  maxPhotoBytes,
		logger:         logger,
	}
}

// Board implements AttendanceHandler.
func (h *attendanceHandlerImpl) Board(w http.ResponseWriter, r *http.Request) {
	claims, err := jwt.ClaimsFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	view, err := h.checkInService.Board(r.Context(), chi.URLParam(r, "activityID"), claims.UserID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, attendance.ToBoardResponse(view))
}

// Schedule implements AttendanceHandler.
func (h *attendanceHandlerImpl) Schedule(w http.ResponseWriter, r *http.Request) {
	claims, err := jwt.ClaimsFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	view, err := h.checkInService.Schedule(r.Context(), chi.URLParam(r, "activityID"), claims.UserID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, attendance.ToScheduleResponse(view))
}

// ValidateGeofence implements AttendanceHandler.
func (h *attendanceHandlerImpl) ValidateGeofence(w http.ResponseWriter, r *http.Request) {
	claims, err := jwt.ClaimsFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	var req attendance.GeofenceCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	pos := attendance.Position{Latitude: *req.Latitude, Longitude: *req.Longitude}
	result, err := h.checkInService.ValidatePosition(r.Context(), chi.URLParam(r, "activityID"), claims.UserID, pos, req.Selected())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, attendance.ToGeofenceResponse(result))
}

// CheckIn implements AttendanceHandler.
func (h *attendanceHandlerImpl) CheckIn(w http.ResponseWriter, r *http.Request) {
	claims, err := jwt.ClaimsFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxPhotoBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxPhotoBytes); err != nil {
		h.logger.Warn("failed to parse multipart form", zap.Error(err))
		response.BadRequest(w, "Failed to parse form data", nil)
		return
	}

	// Get JSON data from 'data' field
	dataJSON := r.FormValue("data")
	if dataJSON == "" {
		response.BadRequest(w, "Field 'data' is required", nil)
		return
	}

	var form attendance.CheckInForm
	if err := json.Unmarshal([]byte(dataJSON), &form); err != nil {
		h.logger.Warn("failed to unmarshal check-in data", zap.Error(err))
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if err := form.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	req := attendance.CheckInRequest{
		ActivityID:    chi.URLParam(r, "activityID"),
		UserID:        claims.UserID,
		UserName:      claims.Name,
		Target:        form.Target(),
		Direction:     attendance.Direction(form.Direction),
		Justification: form.Justification,
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	dev := attendance.Devices{
		Position: requestPosition{pos: form.Position()},
		Camera:   h.uploadedPhoto(r, form),
	}

	result, err := h.checkInService.CheckIn(r.Context(), req, dev)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, result.Message, attendance.ToCheckInResponse(result))
}

// Records implements AttendanceHandler.
func (h *attendanceHandlerImpl) Records(w http.ResponseWriter, r *http.Request) {
	claims, err := jwt.ClaimsFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	records, err := h.checkInService.Records(r.Context(), chi.URLParam(r, "activityID"), claims.UserID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	resp := make([]attendance.RecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, attendance.ToRecordResponse(rec))
	}
	response.Success(w, resp)
}

// uploadedPhoto reads the "photo" part. A missing or unreadable photo becomes a camera failure so the
// check-in is refused the same way a failed capture is.
func (h *attendanceHandlerImpl) uploadedPhoto(r *http.Request, form attendance.CheckInForm) uploadCamera {
	file, fileHeader, err := r.FormFile("photo")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return uploadCamera{err: errors.New("attendance proof photo is required")}
		}
		return uploadCamera{err: fmt.Errorf("invalid file upload: %w", err)}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxPhotoBytes+1))
	if err != nil {
		return uploadCamera{err: fmt.Errorf("failed to read photo: %w", err)}
	}
	if int64(len(data)) > h.maxPhotoBytes {
		return uploadCamera{err: fmt.Errorf("photo exceeds %d bytes", h.maxPhotoBytes)}
	}

	return uploadCamera{frame: attendance.Frame{
		Data:        data,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		CapturedAt:  form.CapturedAtTime(),
	}}
}

// requestPosition serves the position the device reported with the request.
type requestPosition struct {
	pos attendance.Position
}

func (p requestPosition) GetPosition(ctx context.Context) (attendance.Position, error) {
	if err := ctx.Err(); err != nil {
		return attendance.Position{}, err
	}
	return p.pos, nil
}

// uploadCamera serves the photo uploaded with the request as the captured frame.
type uploadCamera struct {
	frame attendance.Frame
	err   error
}

func (c uploadCamera) Capture(ctx context.Context) (attendance.Frame, error) {
	if err := ctx.Err(); err != nil {
		return attendance.Frame{}, err
	}
	if c.err != nil {
		return attendance.Frame{}, c.err
	}
	return c.frame, nil
}
