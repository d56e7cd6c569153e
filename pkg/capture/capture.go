// Package capture grabs the visible viewport of a browser tab.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/menta2k/proofpulse/pkg/processing"
)

var (
	// ErrUnknownTab is returned when the tab id does not resolve to a page.
	ErrUnknownTab = errors.New("unknown tab")
	// ErrClosed is returned after the capturer has been closed.
	ErrClosed = errors.New("capturer closed")
)

// Capturer returns the encoded visible viewport of a tab at device resolution.
type Capturer interface {
	CaptureVisible(ctx context.Context, tabID string) ([]byte, error)
}

// Func adapts a function to Capturer.
type Func func(ctx context.Context, tabID string) ([]byte, error)

func (f Func) CaptureVisible(ctx context.Context, tabID string) ([]byte, error) {
	return f(ctx, tabID)
}

// File serves a fixed image from disk for any tab. It backs offline scans
// where a screenshot already exists.
type File struct {
	Path string

	once sync.Once
	data []byte
	err  error
}

// NewFile returns a capturer reading path on first use.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) CaptureVisible(ctx context.Context, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.once.Do(func() {
		f.data, f.err = os.ReadFile(f.Path)
		if f.err != nil {
			return
		}
		if _, err := processing.NewProcessor().DecodeImage(f.data); err != nil {
			f.err = fmt.Errorf("%s is not a supported image: %w", f.Path, err)
		}
	})
	return f.data, f.err
}
