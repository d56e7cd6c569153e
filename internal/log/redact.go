// Package log builds the process logger. Every handler it returns masks
// credentials before records reach the output.
package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// MaskValue replaces sensitive values.
const MaskValue = "***REDACTED***"

// sensitiveKeys are attribute keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	"authorization":  true,
	"x-api-key":      true,
	"x-goog-api-key": true,
	"api_key":        true,
	"apikey":         true,
	"api-key":        true,
	"key":            true,
	"password":       true,
	"secret":         true,
	"token":          true,
	"access_token":   true,
	"cookie":         true,
}

// sensitiveKeywords mask any key that contains them.
var sensitiveKeywords = []string{"password", "secret", "token", "credential", "api_key", "apikey"}

// sensitivePatterns match whole values that look like credentials.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^AIza[0-9A-Za-z_-]{35}$`),  // Google API key
	regexp.MustCompile(`^sk-[A-Za-z0-9_-]{20,}$`),  // OpenAI-style key
	regexp.MustCompile(`(?i)^bearer\s+.+`),         // bearer header
}

// queryKeyParam finds credentials embedded in URLs, e.g. ?key=... or &api_key=...
var queryKeyParam = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey|access_token)=)[^&\s"]+`)

// RedactingHandler wraps an slog.Handler and masks sensitive attributes.
type RedactingHandler struct {
	handler slog.Handler
}

// NewRedactingHandler wraps handler, defaulting to slog's default handler.
func NewRedactingHandler(handler slog.Handler) *RedactingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &RedactingHandler{handler: handler}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, RedactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redactAttr(a))
		return true
	})
	return h.handler.Handle(ctx, clean)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(clean)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		clean := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			clean[i] = redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, RedactString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, RedactString(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if sensitiveKeys[k] {
		return true
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}

// RedactString masks credential-looking values and URL key parameters.
func RedactString(s string) string {
	for _, p := range sensitivePatterns {
		if p.MatchString(s) {
			return MaskValue
		}
	}
	return queryKeyParam.ReplaceAllString(s, "${1}"+MaskValue)
}

// Options selects the logger output.
type Options struct {
	Verbose bool
	JSON    bool
}

// New returns a redacting logger writing to w. Verbose enables debug
// records; otherwise info and above are emitted.
func New(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if opts.JSON {
		base = slog.NewJSONHandler(w, ho)
	} else {
		base = slog.NewTextHandler(w, ho)
	}
	return slog.New(NewRedactingHandler(base))
}
