// Package snapshot persists the serializable projection of the document
// store so it survives process restarts. Ephemeral preview handles are
// never part of a snapshot.
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Dimkaghb/chocosync/internal/transport"
)

// Key under which the document projection is stored, matching the web
// client's durable storage key.
const Key = "chat-documents"

// DocumentRecord is the serializable projection of one document.
type DocumentRecord struct {
	ID               string                  `json:"id"`
	ConversationID   string                  `json:"conversation_id"`
	Source           string                  `json:"source"`
	Name             string                  `json:"name"`
	MIME             string                  `json:"mime"`
	Size             int64                   `json:"size"`
	Status           string                  `json:"status"`
	Content          string                  `json:"content,omitempty"`
	ProcessedData    json.RawMessage         `json:"processed_data,omitempty"`
	Metadata         *transport.FileMetadata `json:"metadata,omitempty"`
	StoredInDatabase bool                    `json:"stored_in_database"`
	UploadedAt       time.Time               `json:"uploaded_at"`
}

// Snapshot is the full persisted projection.
type Snapshot struct {
	Documents []DocumentRecord `json:"documents"`
}

// Store saves and loads snapshots.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}
