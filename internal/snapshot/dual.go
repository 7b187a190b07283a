package snapshot

import (
	"context"
	"log/slog"
)

// DualStore writes snapshots to both a primary (file) and a secondary
// (database) store. Secondary failure is logged but non-fatal; reads prefer
// the primary and fall back to the secondary.
type DualStore struct {
	primary   Store
	secondary Store
}

// NewDualStore wraps primary with a best-effort secondary mirror.
func NewDualStore(primary, secondary Store) *DualStore {
	return &DualStore{primary: primary, secondary: secondary}
}

func (s *DualStore) Save(ctx context.Context, snap *Snapshot) error {
	err := s.primary.Save(ctx, snap)
	if dbErr := s.secondary.Save(ctx, snap); dbErr != nil {
		slog.Warn("secondary snapshot save failed", "err", dbErr)
	}
	return err
}

func (s *DualStore) Load(ctx context.Context) (*Snapshot, error) {
	snap, err := s.primary.Load(ctx)
	if err == nil && len(snap.Documents) > 0 {
		return snap, nil
	}

	dbSnap, dbErr := s.secondary.Load(ctx)
	if dbErr != nil {
		if err != nil {
			return nil, err
		}
		slog.Warn("secondary snapshot load failed", "err", dbErr)
		return snap, nil
	}
	if err != nil || len(dbSnap.Documents) > 0 {
		return dbSnap, nil
	}
	return snap, nil
}
