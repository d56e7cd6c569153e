package verdict

import (
	"regexp"
	"strings"
)

var (
	fenceOpen     = regexp.MustCompile("(?i)```[a-z]*")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// StripFences removes markdown code fence markers (``` and ```json) from
// model text and trims the result.
func StripFences(raw string) string {
	raw = fenceOpen.ReplaceAllString(raw, "")
	return strings.TrimSpace(raw)
}
