package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/proofpulse/internal/config"
	"github.com/menta2k/proofpulse/internal/utils"
	"github.com/menta2k/proofpulse/pkg/processing"
	"github.com/menta2k/proofpulse/pkg/types"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	requests []types.ScanRequest
	verdict  types.Verdict
}

func (f *fakeAnalyzer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req types.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(f.verdict)
}

func (f *fakeAnalyzer) received() []types.ScanRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.ScanRequest(nil), f.requests...)
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Default().SaveToFile(path))
	return path
}

func executeScan(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"scan", "--config", writeConfig(t)}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeCrop(t *testing.T, req types.ScanRequest) image.Image {
	t.Helper()
	du, err := processing.ParseDataURL(req.ScreenshotDataURL)
	require.NoError(t, err)
	assert.Equal(t, processing.PNGMimeType, du.MimeType)
	data, err := du.Bytes()
	require.NoError(t, err)
	img, err := processing.NewProcessor().DecodeImage(data)
	require.NoError(t, err)
	return img
}

func TestScanSelection(t *testing.T) {
	fake := &fakeAnalyzer{verdict: types.Verdict{
		Score:              91,
		Label:              types.LabelDangerous,
		Summary:            "Fake checkout page.",
		Reasons:            []string{"Payment by gift card"},
		RecommendedActions: []string{"Close the tab"},
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dir := t.TempDir()
	shot := filepath.Join(dir, "checkout.png")
	writePNG(t, shot, 400, 300)
	outDir := filepath.Join(dir, "crops")

	stdout, _, err := executeScan(t, shot,
		"--x", "10", "--y", "20", "-W", "50", "-H", "40", "--dpr", "2",
		"--page-url", "https://shop.example/pay",
		"--analyzer", srv.URL, "--out", outDir, "--debug")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Page:    https://shop.example/pay")
	assert.Contains(t, stdout, "[!!!] Dangerous")
	assert.Contains(t, stdout, "Score:   91/100")
	assert.Contains(t, stdout, "Payment by gift card")

	reqs := fake.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://shop.example/pay", reqs[0].PageURL)
	require.NotNil(t, reqs[0].UserArea)
	assert.Equal(t, types.SelectionRect{X: 10, Y: 20, Width: 50, Height: 40, DevicePixelRatio: 2}, *reqs[0].UserArea)

	b := decodeCrop(t, reqs[0]).Bounds()
	assert.Equal(t, 100, b.Dx())
	assert.Equal(t, 80, b.Dy())

	assert.True(t, utils.FileExists(utils.CropFilename(shot, outDir, "_crop", "png")))
	assert.True(t, utils.FileExists(utils.CropFilename(shot, outDir, "_debug", "png")))
}

func TestScanWholeScreenshotByDefault(t *testing.T) {
	fake := &fakeAnalyzer{verdict: types.Verdict{Score: 10, Label: types.LabelSafe}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	shot := filepath.Join(t.TempDir(), "home.png")
	writePNG(t, shot, 120, 60)

	stdout, _, err := executeScan(t, shot, "--dpr", "2", "--analyzer", srv.URL, "--format", "json")
	require.NoError(t, err)

	var report struct {
		PageURL string        `json:"page_url"`
		Theme   string        `json:"theme"`
		Verdict types.Verdict `json:"verdict"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, shot, report.PageURL)
	assert.Equal(t, "safe", report.Theme)

	reqs := fake.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, types.SelectionRect{Width: 60, Height: 30, DevicePixelRatio: 2}, *reqs[0].UserArea)
	b := decodeCrop(t, reqs[0]).Bounds()
	assert.Equal(t, image.Pt(120, 60), b.Size())
}

func TestScanDirectory(t *testing.T) {
	fake := &fakeAnalyzer{verdict: types.Verdict{Score: 60, Label: types.LabelSuspicious}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(dir, name), 40, 40)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	stdout, _, err := executeScan(t, dir, "--analyzer", srv.URL, "-j", "2")
	require.NoError(t, err)

	assert.Len(t, fake.received(), 3)
	assert.Equal(t, 3, bytes.Count([]byte(stdout), []byte("Score:   60/100")))
}

func TestScanAnalyzerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	shot := filepath.Join(t.TempDir(), "shot.png")
	writePNG(t, shot, 40, 40)

	stdout, stderr, err := executeScan(t, shot, "--analyzer", url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 scans failed")
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Analyzer service not reachable at "+url)
}

func TestScanTooSmallSelection(t *testing.T) {
	fake := &fakeAnalyzer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	shot := filepath.Join(t.TempDir(), "shot.png")
	writePNG(t, shot, 40, 40)

	_, stderr, err := executeScan(t, shot, "-W", "3", "-H", "30", "--analyzer", srv.URL)
	require.Error(t, err)
	assert.Contains(t, stderr, "too small")
	assert.Empty(t, fake.received())
}

func TestScanCropFormats(t *testing.T) {
	fake := &fakeAnalyzer{verdict: types.Verdict{Score: 40, Label: types.LabelSafe}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dir := t.TempDir()
	shot := filepath.Join(dir, "shot.png")
	writePNG(t, shot, 60, 60)

	for _, tt := range []struct{ flag, ext string }{
		{"webp", "webp"},
		{"JPG", "jpeg"},
		{"png", "png"},
	} {
		outDir := filepath.Join(dir, tt.flag)
		_, _, err := executeScan(t, shot, "-W", "30", "-H", "20", "--analyzer", srv.URL,
			"--out", outDir, "--crop-format", tt.flag)
		require.NoError(t, err, tt.flag)

		data, err := os.ReadFile(utils.CropFilename(shot, outDir, "_crop", tt.ext))
		require.NoError(t, err, tt.flag)
		img, err := processing.NewProcessor().DecodeImage(data)
		require.NoError(t, err, tt.flag)
		assert.Equal(t, image.Pt(30, 20), img.Bounds().Size(), tt.flag)
	}

	_, _, err := executeScan(t, shot, "--crop-format", "gif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported --crop-format")
}

func TestScanFlagErrors(t *testing.T) {
	_, _, err := executeScan(t, "missing.png", "--debug")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--debug requires --out")

	_, _, err = executeScan(t, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no screenshots found")

	_, _, err = executeScan(t, "missing.png", "--format", "pdf")
	require.ErrorIs(t, err, config.ErrInvalidFormat)
}
