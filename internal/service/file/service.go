package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Import for PNG decoding support
	"math"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/pkg/storage"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Import for WebP decoding support
)

const (
	DefaultMaxDimension = 1600
	DefaultMaxBytes     = 150 * 1024
	DefaultMinBytes     = 50 * 1024

	minLongSide = 640
)

var (
	ErrEmptyPhoto        = errors.New("photo is empty")
	ErrUnsupportedFormat = errors.New("unsupported photo format: only jpeg, png, webp allowed")

	unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

type Config struct {
	MaxDimension int
	MaxBytes     int
	MinBytes     int
	LineWidth    int
}

func (c Config) withDefaults() Config {
	if c.MaxDimension <= 0 {
		c.MaxDimension = DefaultMaxDimension
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MinBytes <= 0 {
		c.MinBytes = DefaultMinBytes
	}
	if c.MinBytes > c.MaxBytes {
		c.MinBytes = c.MaxBytes / 3
	}
	return c
}

// PhotoService prepares check-in photos and stores them.
type PhotoService interface {
	attendance.PhotoStorage
}

type photoServiceImpl struct {
	storage     storage.FileStorage
	watermarker *Watermarker
	cfg         Config
	logger      *zap.Logger
}

func NewPhotoService(storage storage.FileStorage, cfg Config, logger *zap.Logger) PhotoService {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &photoServiceImpl{
		storage:     storage,
		watermarker: NewWatermarker(cfg.LineWidth),
		cfg:         cfg,
		logger:      logger,
	}
}

// UploadCheckInPhoto decodes the frame, burns the watermark in, compresses it to the target size
// range and uploads it as JPEG. It returns the public URL of the stored photo.
func (s *photoServiceImpl) UploadCheckInPhoto(ctx context.Context, key attendance.RecordKey, frame attendance.Frame, info attendance.WatermarkInfo) (string, error) {
	if len(frame.Data) == 0 {
		return "", fmt.Errorf("%w: %w", attendance.ErrUnreadablePhoto, ErrEmptyPhoto)
	}

	img, err := decodeImage(frame.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", attendance.ErrUnreadablePhoto, err)
	}

	img = imaging.Fit(img, s.cfg.MaxDimension, s.cfg.MaxDimension, imaging.Lanczos)
	stamped := s.watermarker.Apply(img, info)

	compressed, err := compressImage(stamped, s.cfg.MaxBytes, s.cfg.MinBytes)
	if err != nil {
		return "", fmt.Errorf("failed to compress image: %w", err)
	}

	// Path: checkins/{activity}/day-{n}/{user}-{slot}-{direction}-{timestamp}.jpg
	capturedAt := frame.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = info.CapturedAt
	}
	filename := fmt.Sprintf("%s-%s-%s-%d.jpg", segment(key.UserID), segment(string(key.SlotKey)), segment(string(key.Direction)), capturedAt.Unix())
	objectPath := path.Join("checkins", segment(key.ActivityID), fmt.Sprintf("day-%d", key.DayNumber), filename)

	uploadedPath, err := s.storage.Upload(ctx, bytes.NewReader(compressed), objectPath, "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("failed to upload check-in photo: %w", err)
	}

	s.logger.Debug("check-in photo stored",
		zap.String("path", uploadedPath),
		zap.Int("bytes", len(compressed)),
		zap.Int("width", stamped.Bounds().Dx()),
		zap.Int("height", stamped.Bounds().Dy()),
	)

	return s.storage.URL(uploadedPath), nil
}

// ==================== HELPER FUNCTIONS ====================

// decodeImage sniffs the format and decodes with EXIF orientation applied.
func decodeImage(data []byte) (image.Image, error) {
	switch ct := http.DetectContentType(data); {
	case strings.HasPrefix(ct, "image/jpeg"), strings.HasPrefix(ct, "image/png"), strings.HasPrefix(ct, "image/webp"):
	default:
		return nil, fmt.Errorf("%w (got %s)", ErrUnsupportedFormat, ct)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// compressImage encodes img as JPEG within the target size range
// maxSize: maximum allowed size (e.g., 150KB)
// minSize: minimum target size (e.g., 50KB)
func compressImage(img image.Image, maxSize int, minSize int) ([]byte, error) {
	// Start with quality 85 and reduce progressively
	quality := 85
	var compressed []byte

	for quality >= 50 {
		buf := new(bytes.Buffer)
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
		compressed = buf.Bytes()

		if len(compressed) <= maxSize {
			return compressed, nil
		}
		quality -= 5
	}

	// Still too large after quality reduction: shrink towards the middle of the range
	targetSize := (maxSize + minSize) / 2
	ratio := math.Sqrt(float64(targetSize) / float64(len(compressed)))

	bounds := img.Bounds()
	newWidth := int(float64(bounds.Dx()) * ratio)
	newHeight := int(float64(bounds.Dy()) * ratio)

	// Keep the long side readable
	if long := max(newWidth, newHeight); long < minLongSide && max(bounds.Dx(), bounds.Dy()) > minLongSide {
		k := float64(minLongSide) / float64(long)
		newWidth = int(float64(newWidth) * k)
		newHeight = int(float64(newHeight) * k)
	}
	if newWidth < 1 || newHeight < 1 {
		return compressed, nil
	}

	resized := resizeImage(img, newWidth, newHeight)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, resized, &jpeg.Options{Quality: 70}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}

// resizeImage resizes an image to the specified dimensions using high-quality interpolation
func resizeImage(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func segment(s string) string {
	s = unsafeSegment.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" {
		return "unknown"
	}
	return s
}
