// Package docstore holds the in-memory, reactive per-conversation document
// set: deduplication, the per-document status machine, reconciliation with
// the server index, and debounced persistence.
package docstore

import (
	"encoding/json"
	"time"

	"github.com/Dimkaghb/chocosync/internal/transport"
)

// Source tags where a document entered the coordinator.
type Source string

const (
	SourceChat          Source = "chat"
	SourceSidebar       Source = "sidebar"
	SourceFolder        Source = "folder"
	SourceKnowledgeBase Source = "knowledge-base"
)

// Status is a document's position in its processing lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// validTransition encodes the status machine:
//
//	pending → uploading → processing → completed
//	any non-terminal → failed
//
// Stages may be skipped forward (uploading → completed) but never revisited.
func validTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	rank := map[Status]int{
		StatusPending:    0,
		StatusUploading:  1,
		StatusProcessing: 2,
		StatusCompleted:  3,
	}
	fromRank, ok := rank[from]
	if !ok {
		return false
	}
	toRank, ok := rank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Document is the coordinator's unit of work.
type Document struct {
	ID             string
	ConversationID string
	Source         Source

	Name string
	MIME string
	Size int64

	Status Status
	// FailureReason is set when Status is failed.
	FailureReason string

	// Content is server-rendered (or locally extracted) text, set only for
	// text-like files. ContentSentinel marks content that could not be
	// fetched.
	Content string

	// ProcessedData is the server's structured summary, set only when
	// processing succeeded.
	ProcessedData json.RawMessage

	// Metadata is present iff the remote upload succeeded.
	Metadata         *transport.FileMetadata
	StoredInDatabase bool

	// PreviewURL is the ephemeral in-process handle to the raw bytes, used
	// until a remote link exists. URL is whichever link is current.
	PreviewURL string
	URL        string

	UploadedAt time.Time
}

// ContentSentinel replaces content that could not be fetched; the document
// still completes.
const ContentSentinel = "Content not available"

func (d *Document) clone() *Document {
	cp := *d
	if d.Metadata != nil {
		meta := *d.Metadata
		cp.Metadata = &meta
	}
	if d.ProcessedData != nil {
		cp.ProcessedData = append(json.RawMessage(nil), d.ProcessedData...)
	}
	return &cp
}

// sourceFromTags maps server-side tags onto a source: entries tagged
// "sidebar" came from the sidebar uploader, everything else from chat.
func sourceFromTags(meta *transport.FileMetadata) Source {
	if meta.HasTag("sidebar") {
		return SourceSidebar
	}
	return SourceChat
}
