// Package relay turns completed selections into verdicts: it captures the
// tab, crops the selection at device resolution, submits the crop to the
// analyzer and delivers exactly one outcome back to the originating tab.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/menta2k/proofpulse/pkg/capture"
	"github.com/menta2k/proofpulse/pkg/processing"
	"github.com/menta2k/proofpulse/pkg/protocol"
	"github.com/menta2k/proofpulse/pkg/types"
)

// Scanner submits a crop for analysis. AnalyzerClient implements it.
type Scanner interface {
	Scan(ctx context.Context, req types.ScanRequest) (types.Verdict, error)
}

// Relay runs the capture, crop and transport chain.
type Relay struct {
	capturer  capture.Capturer
	processor *processing.Processor
	scanner   Scanner
	hub       *protocol.Hub
	logger    *slog.Logger

	wg sync.WaitGroup
}

// New creates a relay. hub may be nil when only Process is used.
func New(capturer capture.Capturer, scanner Scanner, hub *protocol.Hub, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		capturer:  capturer,
		processor: processing.NewProcessor(),
		scanner:   scanner,
		hub:       hub,
		logger:    logger,
	}
}

// Process runs the chain for one request and returns the verdict, or a
// ScanError naming the failed stage.
func (r *Relay) Process(ctx context.Context, req types.CaptureRequest) (types.Verdict, error) {
	if req.Area.TooSmall() {
		return types.Verdict{}, types.NewScanError(types.ClassInput, "Selection is too small to scan", nil)
	}

	shot, err := r.capturer.CaptureVisible(ctx, req.TabID)
	if err != nil {
		return types.Verdict{}, types.NewScanError(types.ClassCapture, "Could not capture the tab", err)
	}

	crop, err := r.processor.Crop(shot, req.Area)
	if err != nil {
		return types.Verdict{}, types.NewScanError(types.ClassCrop, "Could not crop the selection", err)
	}

	r.logger.Debug("cropped selection",
		"tab", req.TabID, "width", crop.Width, "height", crop.Height, "bytes", len(crop.Data))

	area := req.Area
	return r.scanner.Scan(ctx, types.ScanRequest{
		PageURL:           req.PageURL,
		ScreenshotDataURL: processing.EncodeDataURL(crop.MimeType, crop.Data),
		UserArea:          &area,
	})
}

// Handle processes req and delivers SCAN_RESULT or SCAN_ERROR to the tab.
func (r *Relay) Handle(ctx context.Context, req types.CaptureRequest) error {
	var msg protocol.Message
	v, err := r.Process(ctx, req)
	if err != nil {
		r.logger.Warn("scan failed", "tab", req.TabID, "class", types.ClassOf(err), "error", err)
		msg = protocol.NewScanError(req.TabID, err.Error())
	} else {
		r.logger.Info("scan complete", "tab", req.TabID, "score", v.Score, "label", v.Label)
		msg = protocol.NewScanResult(req.TabID, v)
	}

	if r.hub == nil {
		return errors.New("relay has no hub to deliver to")
	}
	if err := r.hub.Deliver(ctx, req.TabID, msg); err != nil {
		r.logger.Warn("could not deliver outcome", "tab", req.TabID, "type", msg.Type, "error", err)
		return err
	}
	return nil
}

// Run consumes PROCESS_CROP messages until ctx is done or the hub shuts
// down, then waits for in-flight requests. Requests already accepted run
// to completion even after ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.hub == nil {
		return errors.New("relay has no hub to read from")
	}
	defer r.wg.Wait()

	detached := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.hub.Done():
			return nil
		case msg := <-r.hub.Requests():
			req, err := msg.CaptureRequest()
			if err != nil {
				r.logger.Warn("ignoring message", "tab", msg.TabID, "type", msg.Type, "error", err)
				continue
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				_ = r.Handle(detached, req)
			}()
		}
	}
}
