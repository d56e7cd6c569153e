package types

import (
	"errors"
	"fmt"
)

// MinSelectionSize is the smallest width or height (CSS pixels) a selection
// must have before it is captured. Anything smaller is treated as a click.
const MinSelectionSize = 5

// MaxListItems bounds Verdict.Reasons and Verdict.RecommendedActions.
const MaxListItems = 6

// SelectionRect is a viewport-relative rectangle in CSS pixels together with
// the device pixel ratio that was active when it was drawn.
type SelectionRect struct {
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
	Width            float64 `json:"width"`
	Height           float64 `json:"height"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
}

// TooSmall reports whether the rectangle should be discarded as noise.
func (r SelectionRect) TooSmall() bool {
	return r.Width < MinSelectionSize || r.Height < MinSelectionSize
}

// Scale returns the device pixel ratio, falling back to 1 when unset.
func (r SelectionRect) Scale() float64 {
	if r.DevicePixelRatio <= 0 {
		return 1
	}
	return r.DevicePixelRatio
}

// CaptureRequest is emitted once per completed selection.
type CaptureRequest struct {
	TabID   string        `json:"tabId,omitempty"`
	PageURL string        `json:"pageUrl"`
	Area    SelectionRect `json:"area"`
}

// CroppedImage is an encoded crop ready to be sent to the analyzer.
type CroppedImage struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Verdict labels produced by the model rubric.
const (
	LabelDangerous  = "Dangerous"
	LabelSuspicious = "Suspicious"
	LabelSafe       = "Safe"

	// Score-derived buckets used when the model omits a label.
	LabelLikelyScam = "Likely Scam"
	LabelLikelySafe = "Likely Safe"
)

// Verdict is the normalized risk assessment for an analyzed image.
type Verdict struct {
	Score              int      `json:"score"`
	Label              string   `json:"label"`
	Summary            string   `json:"summary"`
	Reasons            []string `json:"reasons"`
	RecommendedActions []string `json:"recommended_actions"`
}

// ScanRequest is the JSON body of POST /scan.
type ScanRequest struct {
	PageURL           string         `json:"page_url"`
	ScreenshotDataURL string         `json:"screenshot_data_url"`
	UserArea          *SelectionRect `json:"user_area,omitempty"`
}

// HealthStatus is the JSON body of GET /health.
type HealthStatus struct {
	OK     bool    `json:"ok"`
	Uptime float64 `json:"uptime"`
}

// ErrorBody is the JSON body of a failed analyzer response.
type ErrorBody struct {
	Error string `json:"error"`
}

// ErrorClass identifies the pipeline stage that failed.
type ErrorClass string

const (
	ClassInput     ErrorClass = "input"
	ClassCapture   ErrorClass = "capture"
	ClassCrop      ErrorClass = "crop"
	ClassTransport ErrorClass = "transport"
	ClassUpstream  ErrorClass = "upstream"
)

// ScanError is surfaced to the page when any stage fails.
type ScanError struct {
	Class   ErrorClass
	Message string
	Cause   error
}

func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// NewScanError builds a ScanError of the given class.
func NewScanError(class ErrorClass, message string, cause error) *ScanError {
	return &ScanError{Class: class, Message: message, Cause: cause}
}

// ClassOf returns the class of the first ScanError in err's chain, or "".
func ClassOf(err error) ErrorClass {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Class
	}
	return ""
}
