package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ugc    = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()
)

// Sanitize cleans user supplied HTML, keeping safe formatting.
func Sanitize(input string) string {
	return strings.TrimSpace(ugc.Sanitize(input))
}

// SanitizePlain strips all markup, for single-line fields like titles.
func SanitizePlain(input string) string {
	return strings.TrimSpace(strict.Sanitize(input))
}
