package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bkonkle/cowork/internal/task"
)

// HistoryKey versions the on-disk history document. Documents written under
// any other key are ignored on load.
const HistoryKey = "cowork.history.v1"

// MaxPersisted is the most history entries ever written to disk.
const MaxPersisted = 100

// Persister saves and restores task history.
type Persister interface {
	Load() ([]*task.Task, error)
	Save(history []*task.Task) error
}

type historyDoc struct {
	Key     string       `json:"key"`
	SavedAt time.Time    `json:"saved_at"`
	Tasks   []*task.Task `json:"tasks"`
}

// HistoryFile persists history as a JSON document.
type HistoryFile struct {
	path string
}

// NewHistoryFile returns a persister writing to path.
func NewHistoryFile(path string) *HistoryFile {
	return &HistoryFile{path: path}
}

// Path returns the file location.
func (h *HistoryFile) Path() string {
	return h.path
}

// Load reads persisted history. A missing file or a document written under a
// different key yields an empty history.
func (h *HistoryFile) Load() ([]*task.Task, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var doc historyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	if doc.Key != HistoryKey {
		return nil, nil
	}

	out := make([]*task.Task, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if t == nil || t.ID == "" {
			continue
		}
		out = append(out, t)
		if len(out) == MaxPersisted {
			break
		}
	}
	return out, nil
}

// Save writes history to disk atomically, keeping at most MaxPersisted entries.
func (h *HistoryFile) Save(history []*task.Task) error {
	if len(history) > MaxPersisted {
		history = history[:MaxPersisted]
	}

	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(historyDoc{
		Key:     HistoryKey,
		SavedAt: time.Now().UTC(),
		Tasks:   history,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	// Write to temp file first
	tmpPath := h.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, h.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
