package detection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/menta2k/proofpulse/pkg/client"
	"github.com/menta2k/proofpulse/pkg/types"
	"github.com/menta2k/proofpulse/pkg/verdict"
)

// SystemPrompt is the fixed scoring rubric and output schema.
const SystemPrompt = `You are a fraud detection expert. Analyze the provided element (screenshot or snippet of a web page) for scam and fraud indicators.

Key Detection Criteria:
- Visual Deception: "fake lock" icons, imitation of OS warnings (Windows/macOS system alerts), or browser chrome spoofing.
- Heuristic Analysis: high-entropy strings, mismatched branding (e.g. Apple logo with "Call Microsoft"), or known scareware patterns.
- Urgency & Coercion: elements demanding immediate action ("Your computer is infected", "Call Support Now").
- Identity Theft Risk: requests for personal data (SSN, credit card) in non-secure contexts.

Return ONLY valid JSON with keys:
score (0-100 integer, higher means riskier; use precise numbers like 87, 43, 92 and avoid round numbers; score > 85 only for confirmed threats matching known scam patterns),
label (one of: "Dangerous", "Suspicious", "Safe"),
summary (one concise sentence, e.g. "Heuristic analysis detected a known tech support scam pattern simulating a system lock."),
reasons (array of 3-6 specific bullets naming the violations, e.g. "Violation: Unauthorized use of Microsoft branding"),
recommended_actions (array of 3-6 specific safe actions, e.g. "Do not call the number", "End task immediately").
JSON only. No markdown, no code fences, no comments.`

// userPromptTemplate carries the page URL and lightweight heuristics.
const userPromptTemplate = `URL: %s
Task: Analyze this image for scam indicators. Logic:
- If it contains technical support numbers, it is likely a support scam.
- If it simulates a system crash or virus scan, it is a scam.
- If it asks for credentials or payment immediately, it is suspicious.
- If it is a snippet of text with urgency, flag it.`

// UserPrompt renders the per-request instruction for pageURL.
func UserPrompt(pageURL string) string {
	return fmt.Sprintf(userPromptTemplate, strings.TrimSpace(pageURL))
}

// Detector assesses images using a vision model
type Detector struct {
	client client.VisionClient
	model  string
	logger *slog.Logger
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient, model string, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{client: client, model: model, logger: logger}
}

// Assess sends the image to the model and returns a normalized verdict.
// Only a failed model call is an error; unusable output becomes the
// fallback verdict.
func (d *Detector) Assess(ctx context.Context, pageURL string, image []byte, mimeType string) (types.Verdict, error) {
	text, err := d.client.AnalyzeImage(ctx, d.model, client.Request{
		System:   SystemPrompt,
		Prompt:   UserPrompt(pageURL),
		Image:    image,
		MimeType: mimeType,
	})
	if err != nil {
		return types.Verdict{}, types.NewScanError(types.ClassUpstream, d.client.Name()+" request failed", err)
	}

	d.logger.Debug("raw model output", "backend", d.client.Name(), "text", text)

	v, fellBack := verdict.FromText(text)
	if fellBack {
		d.logger.Warn("model output was not usable JSON, returning fallback verdict",
			"backend", d.client.Name(), "length", len(text))
	}
	return v, nil
}
