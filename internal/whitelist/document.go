package whitelist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Blob reads and writes one opaque document.
type Blob interface {
	ReadDocument(ctx context.Context) ([]byte, error)
	WriteDocument(ctx context.Context, data []byte) error
}

type document struct {
	Entries []Entry `json:"entries"`
}

// legacyDocument is the {"users":[...],"groups":[...]} id-list layout of older deployments.
type legacyDocument struct {
	Users  []string `json:"users"`
	Groups []string `json:"groups"`
}

func (l legacyDocument) entries() []Entry {
	out := make([]Entry, 0, len(l.Users)+len(l.Groups))
	for _, id := range l.Users {
		out = append(out, Entry{Principal: Principal{Kind: KindUser, ID: id}})
	}
	for _, id := range l.Groups {
		out = append(out, Entry{Principal: Principal{Kind: KindGroup, ID: id}})
	}
	return out
}

// decodeDocument accepts both layouts. A document with neither is rejected so that a
// later write cannot overwrite data it did not understand.
func decodeDocument(data []byte) ([]Entry, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode whitelist document: %w", err)
	}
	if _, ok := keys["entries"]; ok {
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode whitelist document: %w", err)
		}
		return doc.Entries, nil
	}
	_, hasUsers := keys["users"]
	_, hasGroups := keys["groups"]
	if !hasUsers && !hasGroups {
		return nil, ErrUnknownDocument
	}
	var legacy legacyDocument
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("decode whitelist document: %w", err)
	}
	return legacy.entries(), nil
}

// DocumentStore keeps the record set as a JSON document {"entries":[...]} in a Blob.
// Single-entry mutations are read-modify-write. Legacy id-list documents are read and
// rewritten in the entries layout on the next mutation.
type DocumentStore struct {
	blob Blob
	mu   sync.Mutex
}

func NewDocumentStore(blob Blob) *DocumentStore {
	return &DocumentStore{blob: blob}
}

func (d *DocumentStore) Load(ctx context.Context) ([]Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(ctx)
}

func (d *DocumentStore) read(ctx context.Context) ([]Entry, error) {
	data, err := d.blob.ReadDocument(ctx)
	if errors.Is(err, ErrDocumentNotFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	decoded, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(decoded))
	for _, e := range decoded {
		if e.Validate() == nil {
			entries = append(entries, e)
		}
	}
	entries = dedupe(entries)
	Sort(entries)
	return entries, nil
}

func (d *DocumentStore) write(ctx context.Context, entries []Entry) error {
	entries = dedupe(entries)
	Sort(entries)
	data, err := json.MarshalIndent(document{Entries: entries}, "", "  ")
	if err != nil {
		return err
	}
	return d.blob.WriteDocument(ctx, data)
}

func (d *DocumentStore) Append(ctx context.Context, e Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries, err := d.read(ctx)
	if err != nil {
		return err
	}
	return d.write(ctx, append(entries, e))
}

func (d *DocumentStore) Remove(ctx context.Context, p Principal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries, err := d.read(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Principal != p {
			kept = append(kept, e)
		}
	}
	return d.write(ctx, kept)
}

func (d *DocumentStore) Save(ctx context.Context, entries []Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(ctx, append([]Entry(nil), entries...))
}
