package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/proofpulse/pkg/types"
)

// PNGMimeType is the MIME type of every crop produced by the relay.
const PNGMimeType = "image/png"

// ErrEmptyCrop is returned when a selection does not overlap the capture.
var ErrEmptyCrop = errors.New("selection lies outside the captured image")

// Processor handles image processing operations
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// DeviceRect converts a CSS-pixel selection into the device-pixel rectangle
// it covers in a capture. Origin and size are rounded independently so the
// crop always measures round(w*dpr) x round(h*dpr).
func DeviceRect(area types.SelectionRect) image.Rectangle {
	scale := area.Scale()
	x := int(math.Round(area.X * scale))
	y := int(math.Round(area.Y * scale))
	w := int(math.Round(area.Width * scale))
	h := int(math.Round(area.Height * scale))
	return image.Rect(x, y, x+w, y+h)
}

// overflowSlack is how far, in device pixels, a selection may reach past
// the capture and still keep its exact scaled size.
const overflowSlack = 2

// CropSelection extracts the device-pixel region covered by area. A region
// that overshoots the capture by at most overflowSlack keeps its scaled
// dimensions with the overshoot left transparent; a larger overshoot is
// clipped to the capture, so the result is never larger than the capture
// plus the slack.
func (p *Processor) CropSelection(img image.Image, area types.SelectionRect) (*image.NRGBA, error) {
	rect := DeviceRect(area)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return nil, fmt.Errorf("empty selection %dx%d", rect.Dx(), rect.Dy())
	}

	bounds := img.Bounds()
	src := rect.Add(bounds.Min)
	inside := src.Intersect(bounds)
	if inside.Empty() {
		return nil, ErrEmptyCrop
	}

	cropped := imaging.Crop(img, inside)
	if inside == src {
		return cropped, nil
	}
	if !src.In(bounds.Inset(-overflowSlack)) {
		return cropped, nil
	}

	dst := imaging.New(rect.Dx(), rect.Dy(), color.NRGBA{})
	return imaging.Paste(dst, cropped, inside.Min.Sub(src.Min)), nil
}

// EncodePNG encodes an image as PNG.
func (p *Processor) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Crop decodes a capture, crops it to area and re-encodes the crop as PNG.
func (p *Processor) Crop(capture []byte, area types.SelectionRect) (*types.CroppedImage, error) {
	img, err := p.DecodeImage(capture)
	if err != nil {
		return nil, err
	}

	cropped, err := p.CropSelection(img, area)
	if err != nil {
		return nil, err
	}

	data, err := p.EncodePNG(cropped)
	if err != nil {
		return nil, err
	}

	b := cropped.Bounds()
	return &types.CroppedImage{
		Data:     data,
		MimeType: PNGMimeType,
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// DecodeImage decodes an image from byte data with WebP support
func (p *Processor) DecodeImage(data []byte) (image.Image, error) {
	// Try standard image.Decode first
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// LoadImageFromURL downloads an image over http(s) and returns its bytes.
func (p *Processor) LoadImageFromURL(imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ProofPulse/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	return io.ReadAll(resp.Body)
}

// LoadImageSmart reads image bytes from either a file path or URL
func (p *Processor) LoadImageSmart(source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return os.ReadFile(source)
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateDebugOverlay draws the device-pixel selection rectangle onto a copy
// of the capture.
func (p *Processor) CreateDebugOverlay(img image.Image, area types.SelectionRect) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	gold := color.NRGBA{255, 204, 0, 255}
	red := color.NRGBA{255, 0, 0, 255}
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side
	cross := int(math.Max(4, 0.01*float64(minInt(w, h))))   // ~1% of min side

	rect := DeviceRect(area)
	drawBox(nrgba, rect, gold, stroke)

	cx := (rect.Min.X + rect.Max.X) / 2
	cy := (rect.Min.Y + rect.Max.Y) / 2
	drawHLine(nrgba, cy, cx-cross, cx+cross, red)
	drawVLine(nrgba, cx, cy-cross, cy+cross, red)

	return nrgba
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, r image.Rectangle, color color.NRGBA, stroke int) {
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, color)
		drawHLine(img, y1-1-s, x0, x1, color)
		drawVLine(img, x0+s, y0, y1, color)
		drawVLine(img, x1-1-s, y0, y1, color)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
