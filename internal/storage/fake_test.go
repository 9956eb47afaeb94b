package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type memNode struct {
	item     Item
	parentID string
	data     string
}

// memBackend is an in-memory Backend with unique names per parent.
type memBackend struct {
	kind Kind

	mu              sync.Mutex
	nodes           map[string]*memNode
	seq             int
	folderCreates   int
	findDelay       time.Duration
	raceNames       map[string]bool
	createFolderErr error
	createFileErr   error
}

func newMemBackend(kind Kind) *memBackend {
	return &memBackend{kind: kind, nodes: map[string]*memNode{}, raceNames: map[string]bool{}}
}

func (m *memBackend) Kind() Kind     { return m.kind }
func (m *memBackend) RootID() string { return "root" }

func (m *memBackend) lookup(parentID, name string, folder bool) (Item, bool) {
	for _, n := range m.nodes {
		if n.parentID == parentID && n.item.Name == name && (!folder || n.item.IsFolder) {
			return n.item, true
		}
	}
	return Item{}, false
}

func (m *memBackend) FindChild(ctx context.Context, parentID, name string, folder bool) (Item, bool, error) {
	if m.findDelay > 0 {
		time.Sleep(m.findDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(parentID, name, folder)
	return item, ok, nil
}

func (m *memBackend) add(parentID, name string, folder bool, data string) Item {
	m.seq++
	item := Item{ID: fmt.Sprintf("%s-%d", m.kind, m.seq), Name: name, IsFolder: folder}
	m.nodes[item.ID] = &memNode{item: item, parentID: parentID, data: data}
	return item
}

func (m *memBackend) CreateFolder(ctx context.Context, parentID, name string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFolderErr != nil {
		// Simulate a concurrent writer winning the create.
		m.add(parentID, name, true, "")
		return Item{}, m.createFolderErr
	}
	if _, ok := m.lookup(parentID, name, false); ok {
		return Item{}, ErrAlreadyExists
	}
	m.folderCreates++
	return m.add(parentID, name, true, ""), nil
}

func (m *memBackend) CreateFile(ctx context.Context, parentID, name string, content Content) (Item, error) {
	if m.createFileErr != nil {
		return Item{}, m.createFileErr
	}
	r, err := content.Open()
	if err != nil {
		return Item{}, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return Item{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raceNames[name] {
		delete(m.raceNames, name)
		m.add(parentID, name, false, "other writer")
		return Item{}, ErrAlreadyExists
	}
	if _, ok := m.lookup(parentID, name, false); ok {
		return Item{}, ErrAlreadyExists
	}
	return m.add(parentID, name, false, string(data)), nil
}

func (m *memBackend) seed(parentID, name string, folder bool) Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(parentID, name, folder, "")
}

func (m *memBackend) children(parentID string) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for _, n := range m.nodes {
		if n.parentID == parentID {
			out = append(out, n.item)
		}
	}
	return out
}

func (m *memBackend) dataOf(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[id].data
}
