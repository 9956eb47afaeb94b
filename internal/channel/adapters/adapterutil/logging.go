// Package adapterutil provides helpers shared by channel adapters.
package adapterutil

import (
	"strings"
	"unicode/utf8"
)

const previewLimit = 120

// SummarizeText returns a log preview of text, cut at previewLimit runes.
func SummarizeText(text string) string {
	value := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(value) <= previewLimit {
		return value
	}
	runes := []rune(value)
	return string(runes[:previewLimit]) + "..."
}
