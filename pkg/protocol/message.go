// Package protocol defines the messages exchanged between a page-side
// selector and the relay, and the per-tab mailboxes that carry them.
package protocol

import (
	"errors"
	"fmt"

	"github.com/menta2k/proofpulse/pkg/types"
)

// MessageType names a protocol message.
type MessageType string

const (
	// StartSnip (relay to page) arms the selection overlay.
	StartSnip MessageType = "START_SNIP"
	// ProcessCrop (page to relay) carries a completed selection.
	ProcessCrop MessageType = "PROCESS_CROP"
	// ScanResult (relay to page) carries a verdict.
	ScanResult MessageType = "SCAN_RESULT"
	// ScanError (relay to page) carries a user-facing failure message.
	ScanError MessageType = "SCAN_ERROR"
)

// ErrInvalidMessage is returned by Validate.
var ErrInvalidMessage = errors.New("invalid message")

// Message is the single wire shape for all message types; only the fields
// relevant to Type are set.
type Message struct {
	Type    MessageType          `json:"type"`
	TabID   string               `json:"tabId,omitempty"`
	Area    *types.SelectionRect `json:"area,omitempty"`
	PageURL string               `json:"pageUrl,omitempty"`
	Data    *types.Verdict       `json:"data,omitempty"`
	Error   string               `json:"error,omitempty"`
}

func NewStartSnip(tabID string) Message {
	return Message{Type: StartSnip, TabID: tabID}
}

func NewProcessCrop(req types.CaptureRequest) Message {
	area := req.Area
	return Message{Type: ProcessCrop, TabID: req.TabID, Area: &area, PageURL: req.PageURL}
}

func NewScanResult(tabID string, v types.Verdict) Message {
	return Message{Type: ScanResult, TabID: tabID, Data: &v}
}

func NewScanError(tabID, message string) Message {
	return Message{Type: ScanError, TabID: tabID, Error: message}
}

// CaptureRequest converts a PROCESS_CROP message back into a request.
func (m Message) CaptureRequest() (types.CaptureRequest, error) {
	if err := m.Validate(); err != nil {
		return types.CaptureRequest{}, err
	}
	if m.Type != ProcessCrop {
		return types.CaptureRequest{}, fmt.Errorf("%w: %s is not %s", ErrInvalidMessage, m.Type, ProcessCrop)
	}
	return types.CaptureRequest{TabID: m.TabID, PageURL: m.PageURL, Area: *m.Area}, nil
}

// Validate checks that the fields required by the message type are present.
func (m Message) Validate() error {
	switch m.Type {
	case StartSnip:
		return nil
	case ProcessCrop:
		if m.Area == nil {
			return fmt.Errorf("%w: %s without area", ErrInvalidMessage, m.Type)
		}
		if m.PageURL == "" {
			return fmt.Errorf("%w: %s without pageUrl", ErrInvalidMessage, m.Type)
		}
		return nil
	case ScanResult:
		if m.Data == nil {
			return fmt.Errorf("%w: %s without data", ErrInvalidMessage, m.Type)
		}
		return nil
	case ScanError:
		if m.Error == "" {
			return fmt.Errorf("%w: %s without error", ErrInvalidMessage, m.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
}
