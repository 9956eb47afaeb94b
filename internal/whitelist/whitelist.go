// Package whitelist holds the durable list of authorised principals and a cached view of it.
package whitelist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrPersist wraps failures of the durable store.
	ErrPersist = errors.New("whitelist persist failed")
	// ErrDocumentNotFound is returned by a Blob that has no document yet.
	ErrDocumentNotFound = errors.New("whitelist document not found")
	// ErrUnknownDocument is returned when a stored document matches no known layout.
	ErrUnknownDocument = errors.New("unrecognised whitelist document")
	// ErrInvalidPrincipal is returned for an unknown kind or empty id.
	ErrInvalidPrincipal = errors.New("invalid principal")
)

// Kind is the principal kind. LINE rooms are stored as groups.
type Kind string

const (
	KindUser  Kind = "user"
	KindGroup Kind = "group"
)

// ParseKind accepts "user" and "group" (and "room" as a group alias).
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user":
		return KindUser, nil
	case "group", "room":
		return KindGroup, nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrInvalidPrincipal, raw)
	}
}

// Principal is an individual or group identity; unique by (Kind, ID).
type Principal struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (p Principal) String() string {
	return string(p.Kind) + ":" + p.ID
}

// Validate checks kind and id.
func (p Principal) Validate() error {
	if p.Kind != KindUser && p.Kind != KindGroup {
		return fmt.Errorf("%w: kind %q", ErrInvalidPrincipal, p.Kind)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPrincipal)
	}
	return nil
}

// Entry is a whitelisted principal with an optional label.
type Entry struct {
	Principal
	Label string `json:"label,omitempty"`
}

// Store is the durable record set.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	// Append inserts or relabels one entry.
	Append(ctx context.Context, e Entry) error
	// Remove deletes one entry. Removing a missing entry is not an error.
	Remove(ctx context.Context, p Principal) error
	// Save replaces the whole set.
	Save(ctx context.Context, entries []Entry) error
}

// Sort orders entries by kind then id.
func Sort(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].ID < entries[j].ID
	})
}

// dedupe keeps the last entry per principal.
func dedupe(entries []Entry) []Entry {
	index := make(map[Principal]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if i, ok := index[e.Principal]; ok {
			out[i] = e
			continue
		}
		index[e.Principal] = len(out)
		out = append(out, e)
	}
	return out
}
