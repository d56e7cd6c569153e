// Package proofpulse asks a running analyzer whether a region of a web page
// screenshot looks like a scam.
//
// It runs the same crop and transport chain as the browser relay, but over
// screenshots the caller already holds:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//		"os"
//
//		"github.com/menta2k/proofpulse"
//		"github.com/menta2k/proofpulse/pkg/types"
//	)
//
//	func main() {
//		pp, err := proofpulse.New("http://127.0.0.1:8787", nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		// A 400x300 CSS pixel region of a screenshot taken at DPR 2.
//		area := types.SelectionRect{X: 120, Y: 80, Width: 400, Height: 300, DevicePixelRatio: 2}
//		report, err := pp.ScanFile(context.Background(), "shot.png", "https://example.com/pay", area)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Printf("%s (%d/100): %s\n", report.Verdict.Label, report.Verdict.Score, report.Theme)
//		proofpulse.Render(os.Stdout, "markdown", report)
//	}
//
// The package consists of these components:
//
// 1. Selector (pkg/selector): pointer-driven selection state per tab
// 2. Relay (pkg/relay): capture, crop at device resolution, submit
// 3. Analyzer (internal/server, pkg/detection): model call and verdict normalization
// 4. Presenter (pkg/presenter): themes and text, Markdown or JSON reports
//
// The analyzer itself is started with `proofpulse serve`; it is the only
// process that holds the model credential.
package proofpulse

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/menta2k/proofpulse/pkg/capture"
	"github.com/menta2k/proofpulse/pkg/presenter"
	"github.com/menta2k/proofpulse/pkg/relay"
	"github.com/menta2k/proofpulse/pkg/types"
)

// Version of the proofpulse library
const Version = "1.0.0"

// Client scans screenshots against an analyzer service.
type Client struct {
	analyzer *relay.AnalyzerClient
	logger   *slog.Logger
}

// New creates a client for the analyzer at analyzerURL. An empty URL uses
// the local default.
func New(analyzerURL string, logger *slog.Logger) (*Client, error) {
	if analyzerURL == "" {
		analyzerURL = relay.DefaultAnalyzerURL
	}
	analyzer, err := relay.NewAnalyzerClient(analyzerURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{analyzer: analyzer, logger: logger}, nil
}

// AnalyzerURL returns the analyzer base URL.
func (c *Client) AnalyzerURL() string {
	return c.analyzer.BaseURL()
}

// Health checks that the analyzer is up.
func (c *Client) Health(ctx context.Context) (types.HealthStatus, error) {
	return c.analyzer.Health(ctx)
}

// ScanScreenshot crops screenshot to area and returns the analyzer's report.
// Failures are *types.ScanError values naming the failed stage.
func (c *Client) ScanScreenshot(ctx context.Context, screenshot []byte, pageURL string, area types.SelectionRect) (presenter.Report, error) {
	fixed := capture.Func(func(context.Context, string) ([]byte, error) {
		return screenshot, nil
	})
	r := relay.New(fixed, c.analyzer, nil, c.logger)

	v, err := r.Process(ctx, types.CaptureRequest{PageURL: pageURL, Area: area})
	if err != nil {
		return presenter.Report{}, err
	}
	return presenter.NewReport(pageURL, v), nil
}

// ScanFile is ScanScreenshot for a screenshot on disk.
func (c *Client) ScanFile(ctx context.Context, path, pageURL string, area types.SelectionRect) (presenter.Report, error) {
	r := relay.New(capture.NewFile(path), c.analyzer, nil, c.logger)

	v, err := r.Process(ctx, types.CaptureRequest{PageURL: pageURL, Area: area})
	if err != nil {
		return presenter.Report{}, err
	}
	return presenter.NewReport(pageURL, v), nil
}

// Render writes report in format (text, markdown or json) to w, or to
// stdout when w is nil.
func Render(w io.Writer, format string, report presenter.Report) error {
	if w == nil {
		w = os.Stdout
	}
	_, err := presenter.NewWriter(presenter.Format(format), w).Write(report)
	return err
}
