package docstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/Dimkaghb/chocosync/internal/snapshot"
	"github.com/Dimkaghb/chocosync/internal/transport"
)

// restore populates the store from the persisted projection. Preview
// handles are not persisted, so restored documents carry only remote links.
func (s *Store) restore() {
	snap, err := s.snap.Load(context.Background())
	if err != nil {
		slog.Warn("snapshot load failed, starting empty", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range snap.Documents {
		doc := &Document{
			ID:               rec.ID,
			ConversationID:   rec.ConversationID,
			Source:           Source(rec.Source),
			Name:             rec.Name,
			MIME:             rec.MIME,
			Size:             rec.Size,
			Status:           Status(rec.Status),
			Content:          rec.Content,
			ProcessedData:    rec.ProcessedData,
			Metadata:         rec.Metadata,
			StoredInDatabase: rec.StoredInDatabase,
			UploadedAt:       rec.UploadedAt,
		}
		if doc.Metadata != nil {
			doc.URL = doc.Metadata.DownloadURL
		}
		s.docs[doc.ID] = doc
	}
}

// scheduleSnapshot arms the debounced snapshot write. Back-to-back changes
// within the window collapse into one write.
func (s *Store) scheduleSnapshot() {
	if s.snap == nil {
		return
	}
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	if s.snapTimer != nil {
		return
	}
	s.snapTimer = time.AfterFunc(s.debounce, func() {
		s.snapMu.Lock()
		s.snapTimer = nil
		s.snapMu.Unlock()
		if err := s.flushSnapshot(context.Background()); err != nil {
			slog.Warn("snapshot write failed", "err", err)
		}
	})
}

// flushSnapshot writes the current serializable projection.
func (s *Store) flushSnapshot(ctx context.Context) error {
	s.mu.Lock()
	records := make([]snapshot.DocumentRecord, 0, len(s.docs))
	for _, d := range s.docs {
		records = append(records, snapshot.DocumentRecord{
			ID:               d.ID,
			ConversationID:   d.ConversationID,
			Source:           string(d.Source),
			Name:             d.Name,
			MIME:             d.MIME,
			Size:             d.Size,
			Status:           string(d.Status),
			Content:          d.Content,
			ProcessedData:    append(json.RawMessage(nil), d.ProcessedData...),
			Metadata:         cloneMeta(d),
			StoredInDatabase: d.StoredInDatabase,
			UploadedAt:       d.UploadedAt,
		})
	}
	s.mu.Unlock()

	// Deterministic order keeps persist → load → persist byte-identical.
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return s.snap.Save(ctx, &snapshot.Snapshot{Documents: records})
}

func cloneMeta(d *Document) *transport.FileMetadata {
	if d.Metadata == nil {
		return nil
	}
	meta := *d.Metadata
	return &meta
}
