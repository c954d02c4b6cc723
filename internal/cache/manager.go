// Package cache is the process-local store of active drafts. It owns id
// generation, the clone/copy lifecycle operations and the per-draft
// single-writer locks. Nothing here is persisted: a restart loses all
// unsaved drafts.
package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaki95/draft-builder/internal/storage"
	"github.com/jaki95/draft-builder/internal/timeline"
)

type entry struct {
	draft      *timeline.Draft
	lastAccess time.Time
	mu         sync.Mutex
}

// Manager holds the cached drafts keyed by id.
type Manager struct {
	mu     sync.RWMutex
	drafts map[string]*entry
	store  *storage.Store
}

// Info describes a cached draft for listings.
type Info struct {
	ID         string
	LastAccess time.Time
}

// NewManager creates an empty draft cache backed by the given store.
func NewManager(store *storage.Store) *Manager {
	return &Manager{
		drafts: make(map[string]*entry),
		store:  store,
	}
}

// NewDraftID generates a unique draft id.
func NewDraftID() string {
	return fmt.Sprintf("dfd_%d_%s", time.Now().Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Create allocates a fresh empty draft and registers it.
func (m *Manager) Create(width, height int) (*timeline.Draft, string) {
	id := NewDraftID()
	d := timeline.NewDraft(id, width, height)

	m.mu.Lock()
	m.drafts[id] = &entry{draft: d, lastAccess: time.Now()}
	m.mu.Unlock()

	slog.Debug("created draft", "draft_id", id, "width", width, "height", height)
	return d, id
}

// Get returns the cached draft, refreshing its last-access time.
func (m *Manager) Get(id string) (*timeline.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.drafts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.lastAccess = time.Now()
	return e.draft, nil
}

// GetOrCreate returns the cached draft for id when present, otherwise
// creates a fresh one. An empty id always creates.
func (m *Manager) GetOrCreate(id string, width, height int) (string, *timeline.Draft) {
	if id != "" {
		if d, err := m.Get(id); err == nil {
			return id, d
		}
	}
	d, newID := m.Create(width, height)
	return newID, d
}

// Clone copies an externally stored project folder into the draft store,
// parses its serialized form and registers it under a fresh id.
func (m *Manager) Clone(sourceName, sourceRoot string) (*timeline.Draft, string, error) {
	if info, err := os.Stat(sourceRoot); err != nil || !info.IsDir() {
		return nil, "", fmt.Errorf("%w: drafts root %s", ErrNotFound, sourceRoot)
	}
	sourcePath := filepath.Join(sourceRoot, sourceName)
	if info, err := os.Stat(sourcePath); err != nil || !info.IsDir() {
		return nil, "", fmt.Errorf("%w: source draft folder %s", ErrNotFound, sourcePath)
	}

	id := NewDraftID()
	destPath := m.store.DraftDir(id)
	if err := storage.CopyTree(sourcePath, destPath); err != nil {
		return nil, "", fmt.Errorf("failed to clone draft folder: %w", err)
	}

	d, err := m.store.LoadDraft(destPath, id)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load cloned draft: %w", err)
	}

	m.register(id, d)
	slog.Info("cloned external draft", "source", sourcePath, "draft_id", id)
	return d, id, nil
}

// Copy duplicates a cached draft under a new id, auto-generated when not
// supplied. The source's on-disk folder, if saved, is duplicated too. The
// cache lock is held from the collision check through registration so two
// concurrent copies to the same id cannot both pass the check.
func (m *Manager) Copy(sourceID, newID string) (*timeline.Draft, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.drafts[sourceID]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}
	e.lastAccess = time.Now()

	if newID == "" {
		newID = NewDraftID()
	} else if _, exists := m.drafts[newID]; exists || m.store.DraftExists(newID) {
		return nil, "", fmt.Errorf("%w: %s", ErrAlreadyExists, newID)
	}

	if m.store.DraftExists(sourceID) {
		if err := storage.CopyTree(m.store.DraftDir(sourceID), m.store.DraftDir(newID)); err != nil {
			return nil, "", fmt.Errorf("failed to copy draft folder: %w", err)
		}
	}

	d := e.draft.Clone(newID)
	m.drafts[newID] = &entry{draft: d, lastAccess: time.Now()}
	slog.Info("copied draft", "source_id", sourceID, "draft_id", newID)
	return d, newID, nil
}

// Delete evicts a draft from the cache. The on-disk folder is untouched.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.drafts, id)
	return nil
}

// List returns the cached drafts, most recently accessed first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.drafts))
	for id, e := range m.drafts {
		out = append(out, Info{ID: id, LastAccess: e.lastAccess})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccess.After(out[j].LastAccess)
	})
	return out
}

// Lock acquires the per-draft mutex so that a save or a batch of adds
// against the same id never interleaves. The returned function releases it.
func (m *Manager) Lock(id string) (func(), error) {
	m.mu.RLock()
	e, ok := m.drafts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	return e.mu.Unlock, nil
}

func (m *Manager) register(id string, d *timeline.Draft) {
	m.mu.Lock()
	m.drafts[id] = &entry{draft: d, lastAccess: time.Now()}
	m.mu.Unlock()
}
