package processing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidDataURL is returned when a string is not data:<mime>;base64,<payload>.
var ErrInvalidDataURL = errors.New("invalid screenshot_data_url")

var dataURLPattern = regexp.MustCompile(`^data:(.+);base64,(.+)$`)

// DataURL is a decoded base64 data URL.
type DataURL struct {
	MimeType string
	Payload  string // base64 text as received
}

// ParseDataURL splits a data URL into its MIME type and base64 payload
// without decoding the payload.
func ParseDataURL(s string) (DataURL, error) {
	m := dataURLPattern.FindStringSubmatch(s)
	if m == nil {
		return DataURL{}, ErrInvalidDataURL
	}
	return DataURL{MimeType: m[1], Payload: m[2]}, nil
}

// Bytes decodes the payload.
func (d DataURL) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(d.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return data, nil
}

// EncodeDataURL renders bytes as a base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
