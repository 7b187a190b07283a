package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the snapshot in a single JSON file. The projection lives
// under the "chat-documents" key so the blob can carry further keys later.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path. Parent directories are
// created on the first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	blob := map[string]*Snapshot{Key: snap}
	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	// Write-then-rename keeps a crash from truncating the previous snapshot.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Snapshot{Documents: []DocumentRecord{}}, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var blob map[string]*Snapshot
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	snap := blob[Key]
	if snap == nil {
		snap = &Snapshot{}
	}
	if snap.Documents == nil {
		snap.Documents = []DocumentRecord{}
	}
	return snap, nil
}
