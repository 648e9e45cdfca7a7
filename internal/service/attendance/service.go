package attendance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/pkg/lock"
	"github.com/campus-activity/checkin-engine/internal/pkg/metrics"
	"github.com/campus-activity/checkin-engine/internal/pkg/validator"
	"github.com/campus-activity/checkin-engine/internal/service/geofence"
	"github.com/campus-activity/checkin-engine/internal/service/schedule"
	"github.com/campus-activity/checkin-engine/internal/service/timewindow"
	"go.uber.org/zap"
)

const (
	DefaultGeocodeTimeout = 4 * time.Second
	DefaultUploadTimeout  = 30 * time.Second
	DefaultSubmitTimeout  = 15 * time.Second
	DefaultLockTTL        = 2 * time.Minute
)

type Config struct {
	GeocodeTimeout time.Duration
	UploadTimeout  time.Duration
	SubmitTimeout  time.Duration
	LockTTL        time.Duration

	// Clock is the display clock. It drives slot discovery and pre-flight checks only;
	// the recorded check-in time always comes from the photo.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.GeocodeTimeout <= 0 {
		c.GeocodeTimeout = DefaultGeocodeTimeout
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = DefaultUploadTimeout
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = DefaultSubmitTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

type CheckInServiceImpl struct {
	source   activity.RegistrationSource
	backend  attendance.Backend
	photos   attendance.PhotoStorage
	geocoder attendance.Geocoder

	resolver *schedule.Resolver
	engine   *timewindow.Engine
	geofence *geofence.Validator
	store    *RecordStore
	locker   lock.Locker
	metrics  *metrics.CheckIn

	cfg    Config
	logger *zap.Logger
}

// context of one check-in attempt after the activity has been loaded
type plan struct {
	activity   activity.Activity
	days       []activity.ScheduleDay
	registered activity.RegisteredSet
	loc        *time.Location
}

// Prepare implements attendance.CheckInService.
func (s *CheckInServiceImpl) Prepare(ctx context.Context, req attendance.CheckInRequest, dev attendance.Devices) (pending attendance.PendingCheckIn, err error) {
	defer func() {
		if err != nil {
			s.metrics.Attempt(outcomeOf(err))
		}
	}()

	if err := req.Validate(); err != nil {
		return attendance.PendingCheckIn{}, err
	}

	p, err := s.load(ctx, req.ActivityID, req.UserID)
	if err != nil {
		return attendance.PendingCheckIn{}, err
	}

	now := s.cfg.Clock()
	records := s.refreshOrCached(ctx, req.ActivityID, req.UserID)

	target, err := s.selectSlot(req, p, records, now)
	if err != nil {
		return attendance.PendingCheckIn{}, err
	}
	ref := target.Ref()

	pending = attendance.PendingCheckIn{
		ActivityID:   p.activity.ID,
		ActivityName: p.activity.Name,
		UserID:       req.UserID,
		UserName:     req.UserName,
		Slot:         ref,
		Direction:    target.Direction,
		Target:       target.Target,
		Location:     p.loc,
	}

	lockKey := lock.Key("checkin", pending.ActivityID, pending.UserID, strconv.Itoa(ref.DayNumber), string(ref.SlotKey), string(target.Direction))
	token, acquired, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		return attendance.PendingCheckIn{}, fmt.Errorf("failed to acquire check-in lock: %w", err)
	}
	if !acquired {
		return attendance.PendingCheckIn{}, attendance.ErrCheckInInProgress
	}
	pending = pending.WithLock(lockKey, token)
	held := pending
	defer func() {
		if err != nil {
			s.Release(ctx, held)
		}
	}()

	// Pre-flight position check, before the camera is touched
	pos, err := s.position(ctx, dev)
	if err != nil {
		return attendance.PendingCheckIn{}, err
	}
	fence := s.geofence.Validate(pos, p.days, geofence.Context{Kind: p.activity.Kind, Open: &ref})
	if !fence.Valid {
		return attendance.PendingCheckIn{}, &attendance.OutOfGeofenceError{Result: fence}
	}

	if dev.Camera == nil {
		return attendance.PendingCheckIn{}, &attendance.CaptureFailureError{Err: errors.New("no camera available")}
	}
	frame, err := dev.Camera.Capture(ctx)
	if err != nil {
		return attendance.PendingCheckIn{}, &attendance.CaptureFailureError{Err: err}
	}
	if len(frame.Data) == 0 {
		return attendance.PendingCheckIn{}, &attendance.CaptureFailureError{Err: errors.New("empty frame")}
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = s.cfg.Clock()
	}

	// The capture instant decides the window, not the display clock
	classification, err := s.engine.Check(frame.CapturedAt, pending.Target, pending.Direction)
	if err != nil {
		return attendance.PendingCheckIn{}, err
	}

	pending.CapturedAt = frame.CapturedAt
	pending.Photo = frame
	pending.Position = pos
	pending.Classification = classification
	pending.Geofence = fence

	s.logger.Debug("check-in prepared",
		zap.String("activity_id", pending.ActivityID),
		zap.String("user_id", pending.UserID),
		zap.String("slot", ref.String()),
		zap.String("direction", string(pending.Direction)),
		zap.Time("captured_at", pending.CapturedAt),
		zap.Int("minutes_from_target", classification.Minutes),
	)

	return pending, nil
}

// Submit implements attendance.CheckInService.
func (s *CheckInServiceImpl) Submit(ctx context.Context, pending attendance.PendingCheckIn, dev attendance.Devices, opts attendance.SubmitOptions) (result attendance.CheckInResult, err error) {
	if !pending.Prepared() {
		s.metrics.Attempt(metrics.OutcomeError)
		return attendance.CheckInResult{}, attendance.ErrNotPrepared
	}
	defer s.Release(ctx, pending)

	started := time.Now()
	defer func() {
		if err != nil {
			s.metrics.Attempt(outcomeOf(err))
			return
		}
		s.metrics.Attempt(string(result.Status))
		s.metrics.ObserveSubmit(time.Since(started))
	}()

	// Registration, target and window are derived again; the pending value only names the slot.
	target, classification, err := s.recheck(ctx, pending)
	if err != nil {
		return attendance.CheckInResult{}, err
	}
	pending.Target = target
	pending.Classification = classification

	// Fresh position, validated against the location pinned at Prepare
	pos, err := s.position(ctx, dev)
	if err != nil {
		return attendance.CheckInResult{}, err
	}
	fence := s.geofence.Check(pos, pending.Geofence.Location, &pending.Slot)
	if !fence.Valid {
		return attendance.CheckInResult{}, &attendance.OutOfGeofenceError{Result: fence}
	}

	address := s.resolveAddress(ctx, pos)

	info := attendance.WatermarkInfo{
		ActivityName:  pending.ActivityName,
		CapturedAt:    pending.CapturedAt,
		Location:      pending.Location,
		UserName:      pending.UserName,
		UserID:        pending.UserID,
		Address:       address,
		Position:      pos,
		HasGeofence:   fence.DistanceMeters != nil,
		LocationValid: fence.Valid,
	}
	if fence.DistanceMeters != nil {
		info.DistanceMeters = *fence.DistanceMeters
	}

	uploadCtx, cancelUpload := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	photoURL, err := s.photos.UploadCheckInPhoto(uploadCtx, pending.Key(), pending.Photo, info)
	cancelUpload()
	if err != nil {
		if errors.Is(err, attendance.ErrUnreadablePhoto) {
			return attendance.CheckInResult{}, &attendance.CaptureFailureError{Err: err}
		}
		return attendance.CheckInResult{}, &attendance.UploadFailureError{Err: err}
	}

	verification := attendance.Verification{
		DistanceMeters:    fence.DistanceMeters,
		LocationValid:     fence.Valid,
		MinutesFromTarget: pending.Classification.Minutes,
		Late:              pending.Classification.IsLate,
	}
	if fence.Location != nil {
		verification.LocationScope = fence.Location.Scope
	}
	if pending.Classification.IsLate {
		verification.Justification = opts.Justification
	}

	req := attendance.SubmitRequest{
		ActivityID:     pending.ActivityID,
		UserID:         pending.UserID,
		Slot:           pending.Slot,
		Direction:      pending.Direction,
		CheckInTime:    pending.CapturedAt,
		Position:       pos,
		Address:        address,
		PhotoURL:       photoURL,
		ProposedStatus: pending.ProposedStatus(),
		Verification:   verification,
	}

	submitCtx, cancelSubmit := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	resp, err := s.backend.Submit(submitCtx, req)
	cancelSubmit()
	if err != nil {
		return attendance.CheckInResult{}, &attendance.SubmissionFailureError{Err: err}
	}
	if resp.Status == "" {
		resp.Status = req.ProposedStatus
	}
	if !validator.IsInSlice(string(resp.Status), attendance.StatusValues) {
		return attendance.CheckInResult{}, &attendance.SubmissionFailureError{Err: fmt.Errorf("backend answered unknown status %q", resp.Status)}
	}

	result = attendance.CheckInResult{
		RecordID:        resp.RecordID,
		Slot:            pending.Slot,
		Direction:       pending.Direction,
		CheckInTime:     pending.CapturedAt,
		Address:         address,
		PhotoURL:        photoURL,
		ProposedStatus:  req.ProposedStatus,
		Status:          resp.Status,
		RejectionReason: resp.RejectionReason,
		Classification:  pending.Classification,
		Geofence:        fence,
		Message:         resultMessage(pending, resp),
	}

	if _, err := s.refresh(ctx, pending.ActivityID, pending.UserID); err != nil {
		s.logger.Warn("failed to reconcile records after check-in",
			zap.String("activity_id", pending.ActivityID),
			zap.String("user_id", pending.UserID),
			zap.Error(err),
		)
	} else {
		result.Reconciled = true
	}

	s.logger.Info("check-in submitted",
		zap.String("activity_id", pending.ActivityID),
		zap.String("user_id", pending.UserID),
		zap.String("slot", pending.Slot.String()),
		zap.String("direction", string(pending.Direction)),
		zap.String("proposed_status", string(result.ProposedStatus)),
		zap.String("status", string(result.Status)),
		zap.Bool("reconciled", result.Reconciled),
	)

	return result, nil
}

// CheckIn implements attendance.CheckInService.
func (s *CheckInServiceImpl) CheckIn(ctx context.Context, req attendance.CheckInRequest, dev attendance.Devices) (attendance.CheckInResult, error) {
	pending, err := s.Prepare(ctx, req, dev)
	if err != nil {
		return attendance.CheckInResult{}, err
	}
	return s.Submit(ctx, pending, dev, attendance.SubmitOptions{Justification: req.Justification})
}

// Release implements attendance.CheckInService.
func (s *CheckInServiceImpl) Release(ctx context.Context, pending attendance.PendingCheckIn) {
	key := pending.LockKey()
	if key == "" {
		return
	}
	err := s.locker.Unlock(context.WithoutCancel(ctx), key, pending.LockToken())
	switch {
	case errors.Is(err, lock.ErrNotHeld):
		// The lease expired and may belong to another attempt by now.
		s.logger.Debug("check-in lock no longer held", zap.String("key", key))
	case err != nil:
		s.logger.Warn("failed to release check-in lock", zap.String("key", key), zap.Error(err))
	}
}

// Board implements attendance.CheckInService.
func (s *CheckInServiceImpl) Board(ctx context.Context, activityID, userID string) (attendance.BoardView, error) {
	p, err := s.load(ctx, activityID, userID)
	if err != nil {
		return attendance.BoardView{}, err
	}

	records, err := s.refresh(ctx, activityID, userID)
	if err != nil {
		if !s.store.Loaded(activityID, userID) {
			return attendance.BoardView{}, err
		}
		s.logger.Warn("serving cached records for board", zap.String("activity_id", activityID), zap.String("user_id", userID), zap.Error(err))
		records = s.store.Index(activityID, userID)
	}

	now := s.cfg.Clock()
	board := s.engine.Board(s.subject(p, userID), p.days, p.registered, records, now)

	return attendance.BoardView{
		Activity: p.activity,
		Now:      now.In(p.loc),
		Slots:    board,
		Next:     timewindow.NextAvailable(board),
		Summary:  timewindow.Summarize(board),
	}, nil
}

// Schedule implements attendance.CheckInService.
func (s *CheckInServiceImpl) Schedule(ctx context.Context, activityID, userID string) (attendance.ScheduleView, error) {
	p, err := s.load(ctx, activityID, userID)
	if err != nil {
		return attendance.ScheduleView{}, err
	}
	return attendance.ScheduleView{
		Activity:   p.activity,
		Weeks:      schedule.GroupByWeek(p.days),
		Registered: p.registered,
	}, nil
}

// ValidatePosition implements attendance.CheckInService.
func (s *CheckInServiceImpl) ValidatePosition(ctx context.Context, activityID, userID string, pos attendance.Position, selected *activity.DaySlot) (attendance.GeofenceResult, error) {
	p, err := s.load(ctx, activityID, userID)
	if err != nil {
		return attendance.GeofenceResult{}, err
	}

	c := geofence.Context{Kind: p.activity.Kind, Selected: selected}
	records := s.refreshOrCached(ctx, activityID, userID)
	if open, ok := s.engine.FindAvailableCheckInSlot(s.subject(p, userID), p.days, p.registered, records, s.cfg.Clock()); ok {
		ref := open.Ref()
		c.Open = &ref
	}

	return s.geofence.Validate(pos, p.days, c), nil
}

// Records implements attendance.CheckInService.
func (s *CheckInServiceImpl) Records(ctx context.Context, activityID, userID string) ([]attendance.AttendanceRecord, error) {
	if _, err := s.refresh(ctx, activityID, userID); err != nil {
		return nil, err
	}
	return s.store.Records(activityID, userID), nil
}

// load reads the activity and the caller's approved registration and resolves the schedule.
func (s *CheckInServiceImpl) load(ctx context.Context, activityID, userID string) (plan, error) {
	a, err := s.source.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, activity.ErrActivityNotFound) {
			return plan{}, err
		}
		return plan{}, fmt.Errorf("failed to get activity: %w", err)
	}

	reg, err := s.source.GetRegistration(ctx, activityID, userID)
	if err != nil {
		if errors.Is(err, activity.ErrNotRegistered) {
			return plan{}, err
		}
		return plan{}, fmt.Errorf("failed to get registration: %w", err)
	}
	if !reg.Approved() {
		return plan{}, activity.ErrRegistrationPending
	}

	registered := reg.Slots
	if registered == nil {
		registered = activity.NewRegisteredSet()
	}

	return plan{
		activity:   a,
		days:       s.resolver.Resolve(a),
		registered: registered,
		loc:        a.TimeLocation(),
	}, nil
}

func (s *CheckInServiceImpl) subject(p plan, userID string) timewindow.Subject {
	return timewindow.Subject{ActivityID: p.activity.ID, UserID: userID, Location: p.loc}
}

// selectSlot picks the explicitly targeted slot or discovers the first open one.
func (s *CheckInServiceImpl) selectSlot(
	req attendance.CheckInRequest,
	p plan,
	records map[attendance.RecordKey]attendance.AttendanceRecord,
	now time.Time,
) (attendance.SlotTarget, error) {
	if req.Target == nil {
		board := s.engine.Board(s.subject(p, req.UserID), p.days, p.registered, records, now)
		for _, entry := range board {
			if entry.State != attendance.WindowAvailable {
				continue
			}
			if req.Direction != "" && entry.Direction != req.Direction {
				continue
			}
			return entry.SlotTarget, nil
		}
		return attendance.SlotTarget{}, attendance.ErrNoSlotAvailable
	}

	ref := *req.Target
	if !p.registered.Contains(ref.DayNumber, ref.SlotKey) {
		return attendance.SlotTarget{}, attendance.ErrSlotNotRegistered
	}
	day, slot, ok := schedule.Find(p.days, ref)
	if !ok {
		return attendance.SlotTarget{}, attendance.ErrSlotNotFound
	}
	targetAt, dated := s.engine.Target(day, slot, req.Direction, p.loc)
	if !dated {
		return attendance.SlotTarget{}, fmt.Errorf("%w: %s has no date", attendance.ErrSlotNotFound, ref)
	}
	if _, err := s.engine.Check(now, targetAt, req.Direction); err != nil {
		return attendance.SlotTarget{}, err
	}

	return attendance.SlotTarget{Day: day, Slot: slot, Direction: req.Direction, Target: targetAt}, nil
}

// recheck validates a pending check-in against the current registration and schedule and
// classifies its capture instant against the target derived from them.
func (s *CheckInServiceImpl) recheck(ctx context.Context, pending attendance.PendingCheckIn) (time.Time, attendance.Classification, error) {
	if !validator.IsInSlice(string(pending.Direction), attendance.DirectionValues) {
		return time.Time{}, attendance.Classification{}, attendance.ErrInvalidDirection
	}
	if len(pending.Photo.Data) == 0 || pending.CapturedAt.IsZero() {
		return time.Time{}, attendance.Classification{}, &attendance.CaptureFailureError{Err: errors.New("pending check-in carries no capture")}
	}

	p, err := s.load(ctx, pending.ActivityID, pending.UserID)
	if err != nil {
		return time.Time{}, attendance.Classification{}, err
	}
	if !p.registered.Contains(pending.Slot.DayNumber, pending.Slot.SlotKey) {
		return time.Time{}, attendance.Classification{}, attendance.ErrSlotNotRegistered
	}
	day, slot, ok := schedule.Find(p.days, pending.Slot)
	if !ok {
		return time.Time{}, attendance.Classification{}, attendance.ErrSlotNotFound
	}
	target, dated := s.engine.Target(day, slot, pending.Direction, p.loc)
	if !dated {
		return time.Time{}, attendance.Classification{}, fmt.Errorf("%w: %s has no date", attendance.ErrSlotNotFound, pending.Slot)
	}

	classification, err := s.engine.Check(pending.CapturedAt, target, pending.Direction)
	if err != nil {
		return time.Time{}, attendance.Classification{}, err
	}
	return target, classification, nil
}

func (s *CheckInServiceImpl) position(ctx context.Context, dev attendance.Devices) (attendance.Position, error) {
	if dev.Position == nil {
		return attendance.Position{}, &attendance.PositionUnavailableError{Err: errors.New("no position provider")}
	}
	pos, err := dev.Position.GetPosition(ctx)
	if err != nil {
		return attendance.Position{}, &attendance.PositionUnavailableError{Err: err}
	}
	return pos, nil
}

// resolveAddress never fails the check-in; an unresolved address is empty.
func (s *CheckInServiceImpl) resolveAddress(ctx context.Context, pos attendance.Position) string {
	if s.geocoder == nil {
		return ""
	}
	geoCtx, cancel := context.WithTimeout(ctx, s.cfg.GeocodeTimeout)
	defer cancel()

	address, err := s.geocoder.ResolveAddress(geoCtx, pos.Latitude, pos.Longitude)
	if err != nil {
		s.logger.Warn("reverse geocoding failed", zap.Float64("lat", pos.Latitude), zap.Float64("lng", pos.Longitude), zap.Error(err))
		return ""
	}
	return address
}

// refresh replaces the cached records of the subject with the backend's answer.
func (s *CheckInServiceImpl) refresh(ctx context.Context, activityID, userID string) (map[attendance.RecordKey]attendance.AttendanceRecord, error) {
	records, err := s.backend.FetchStatus(ctx, activityID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attendance records: %w", err)
	}
	s.store.Replace(activityID, userID, records)
	return s.store.Index(activityID, userID), nil
}

func (s *CheckInServiceImpl) refreshOrCached(ctx context.Context, activityID, userID string) map[attendance.RecordKey]attendance.AttendanceRecord {
	records, err := s.refresh(ctx, activityID, userID)
	if err != nil {
		s.logger.Warn("using cached records", zap.String("activity_id", activityID), zap.String("user_id", userID), zap.Error(err))
		return s.store.Index(activityID, userID)
	}
	return records
}

func resultMessage(p attendance.PendingCheckIn, resp attendance.SubmitResponse) string {
	switch resp.Status {
	case attendance.StatusApproved:
		return fmt.Sprintf("Điểm danh %s thành công cho %s.", p.Direction.Label(), p.Slot.String())
	case attendance.StatusRejected:
		reason := "không có lý do"
		if resp.RejectionReason != nil && *resp.RejectionReason != "" {
			reason = *resp.RejectionReason
		}
		return fmt.Sprintf("Điểm danh %s cho %s bị từ chối: %s.", p.Direction.Label(), p.Slot.String(), reason)
	default:
		if p.Classification.IsLate {
			return fmt.Sprintf("Điểm danh %s cho %s đã được ghi nhận. Bạn trễ %s, vui lòng chờ duyệt.",
				p.Direction.Label(), p.Slot.String(), timewindow.FormatDuration(p.Classification.Minutes))
		}
		return fmt.Sprintf("Điểm danh %s cho %s đã được ghi nhận, vui lòng chờ duyệt.", p.Direction.Label(), p.Slot.String())
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, attendance.ErrPositionUnavailable):
		return metrics.OutcomePositionUnavailable
	case errors.Is(err, attendance.ErrOutOfGeofence):
		return metrics.OutcomeOutOfGeofence
	case errors.Is(err, attendance.ErrOutOfTimeWindow):
		return metrics.OutcomeOutOfTimeWindow
	case errors.Is(err, attendance.ErrCaptureFailure):
		return metrics.OutcomeCaptureFailure
	case errors.Is(err, attendance.ErrUploadFailure):
		return metrics.OutcomeUploadFailure
	case errors.Is(err, attendance.ErrSubmissionFailure):
		return metrics.OutcomeSubmissionFailure
	case errors.Is(err, attendance.ErrCheckInInProgress):
		return metrics.OutcomeInProgress
	case errors.Is(err, attendance.ErrNoSlotAvailable):
		return metrics.OutcomeNoSlot
	default:
		return metrics.OutcomeError
	}
}

func NewCheckInService(
	source activity.RegistrationSource,
	backend attendance.Backend,
	photos attendance.PhotoStorage,
	geocoder attendance.Geocoder,
	resolver *schedule.Resolver,
	engine *timewindow.Engine,
	fence *geofence.Validator,
	store *RecordStore,
	locker lock.Locker,
	m *metrics.CheckIn,
	cfg Config,
	logger *zap.Logger,
) attendance.CheckInService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckInServiceImpl{
		source:   source,
		backend:  backend,
		photos:   photos,
		geocoder: geocoder,
		resolver: resolver,
		engine:   engine,
		geofence: fence,
		store:    store,
		locker:   locker,
		metrics:  m,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}
