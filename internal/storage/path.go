package storage

import (
	"strings"
	"unicode"
)

// FolderPath is an ordered list of folder names below the backend root.
type FolderPath []string

// NewFolderPath sanitizes each segment.
func NewFolderPath(segments ...string) FolderPath {
	out := make(FolderPath, 0, len(segments))
	for _, s := range segments {
		out = append(out, SanitizeSegment(s))
	}
	return out
}

func (p FolderPath) String() string {
	return strings.Join(p, "/")
}

func (p FolderPath) prefixKey(kind Kind, n int) string {
	return string(kind) + "\x00" + strings.Join(p[:n], "\x00")
}

// SanitizeSegment replaces characters that Drive or OneDrive reject in item names.
func SanitizeSegment(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsControl(r):
			b.WriteRune('_')
		case strings.ContainsRune(`"*:<>?/\|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(strings.TrimSpace(b.String()), ". ")
	if out == "" {
		return "_"
	}
	return out
}
