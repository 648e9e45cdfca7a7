package file

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/pkg/utils"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultLineWidth = 48

	timestampLayout = "15:04:05 02/01/2006"
	bannerPadding   = 6
	lineSpacing     = 2
	// the banner never covers more than this share of the photo height
	maxBannerShare = 0.4
)

var (
	bannerBackground = color.NRGBA{R: 0, G: 0, B: 0, A: 150}
	bannerText       = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	asciiReplacer = strings.NewReplacer("đ", "d", "Đ", "D")
)

// Watermarker burns check-in evidence into the bottom of a photo.
type Watermarker struct {
	lineWidth int
	face      *basicfont.Face
}

func NewWatermarker(lineWidth int) *Watermarker {
	if lineWidth <= 0 {
		lineWidth = DefaultLineWidth
	}
	return &Watermarker{
		lineWidth: lineWidth,
		face:      basicfont.Face7x13,
	}
}

// Lines returns the ASCII text lines of the watermark, top to bottom.
func (w *Watermarker) Lines(info attendance.WatermarkInfo) []string {
	loc := info.Location
	if loc == nil {
		loc = time.UTC
	}

	raw := []string{
		info.ActivityName,
		info.CapturedAt.In(loc).Format(timestampLayout),
		info.UserName,
	}

	address := strings.TrimSpace(info.Address)
	if address == "" {
		address = info.Position.String()
	}
	raw = append(raw, address)

	if info.HasGeofence {
		verdict := "Ngoài phạm vi"
		if info.LocationValid {
			verdict = "Hợp lệ"
		}
		raw = append(raw, fmt.Sprintf("Khoảng cách: %dm - %s", utils.RoundMeters(info.DistanceMeters), verdict))
	}
	raw = append(raw, "ID: "+info.UserID)

	var lines []string
	for _, s := range raw {
		s = strings.TrimSpace(FoldASCII(s))
		if s == "" {
			continue
		}
		lines = append(lines, WrapText(s, w.lineWidth)...)
	}
	return lines
}

// Apply returns a copy of img with the watermark drawn over its bottom edge.
func (w *Watermarker) Apply(img image.Image, info attendance.WatermarkInfo) *image.NRGBA {
	dst := imaging.Clone(img)
	lines := w.Lines(info)
	if len(lines) == 0 {
		return dst
	}

	text := w.render(lines)
	tb := text.Bounds()
	b := dst.Bounds()

	scale := float64(b.Dx()) / float64(tb.Dx())
	if maxH := float64(b.Dy()) * maxBannerShare; float64(tb.Dy())*scale > maxH {
		scale = maxH / float64(tb.Dy())
	}
	dw := int(math.Round(float64(tb.Dx()) * scale))
	dh := int(math.Round(float64(tb.Dy()) * scale))
	if dw < 1 || dh < 1 {
		return dst
	}

	strip := image.Rect(b.Min.X, b.Max.Y-dh, b.Max.X, b.Max.Y)
	draw.Draw(dst, strip, image.NewUniform(bannerBackground), image.Point{}, draw.Over)
	draw.ApproxBiLinear.Scale(dst, image.Rect(b.Min.X, b.Max.Y-dh, b.Min.X+dw, b.Max.Y), text, tb, draw.Over, nil)

	return dst
}

// render draws lines at the font's native size on a transparent canvas.
func (w *Watermarker) render(lines []string) *image.NRGBA {
	longest := 0
	for _, l := range lines {
		if n := len(l); n > longest {
			longest = n
		}
	}

	lineHeight := w.face.Height + lineSpacing
	width := longest*w.face.Advance + 2*bannerPadding
	height := len(lines)*lineHeight - lineSpacing + 2*bannerPadding
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(bannerText),
		Face: w.face,
	}
	for i, l := range lines {
		d.Dot = fixed.P(bannerPadding, bannerPadding+i*lineHeight+w.face.Ascent)
		d.DrawString(l)
	}
	return canvas
}

// FoldASCII strips diacritics and replaces anything still outside printable ASCII with '?'.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, asciiReplacer.Replace(s))
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || r > 0x7e:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WrapText splits text into lines of at most maxChars runes. A line breaks at the last comma or
// whitespace whose index is at least 60% of maxChars; without one it breaks hard at maxChars.
func WrapText(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{text}
	}

	minIdx := int(math.Ceil(float64(maxChars) * 0.6))
	rs := []rune(text)

	var lines []string
	for len(rs) > maxChars {
		line, rest := rs[:maxChars], rs[maxChars:]
		for i := maxChars; i >= minIdx; i-- {
			if unicode.IsSpace(rs[i]) {
				line, rest = rs[:i], rs[i+1:]
				break
			}
			if rs[i] == ',' && i < maxChars {
				line, rest = rs[:i+1], rs[i+1:]
				break
			}
		}
		lines = append(lines, strings.TrimRightFunc(string(line), unicode.IsSpace))
		rs = []rune(strings.TrimLeftFunc(string(rest), unicode.IsSpace))
	}
	if len(rs) > 0 {
		lines = append(lines, string(rs))
	}
	return lines
}
