package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Dimkaghb/chocosync/internal/classify"
	"github.com/Dimkaghb/chocosync/internal/extract"
	"github.com/Dimkaghb/chocosync/internal/snapshot"
	"github.com/Dimkaghb/chocosync/internal/transport"
	"github.com/Dimkaghb/chocosync/internal/uploader"
)

// ErrNotFound is returned for operations on unknown document IDs.
var ErrNotFound = errors.New("document not found")

// ErrNoConversation is returned when an upload carries no conversation ID.
var ErrNoConversation = errors.New("conversation id is required")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store is closed")

const defaultProcessPrompt = "Analyze the uploaded file and produce a structured summary of its data."

// Store owns the in-memory document map exclusively; the reactive view is a
// read-only projection of it. All status transitions are driven here.
type Store struct {
	tr *transport.Client
	up *uploader.Strategy

	mu      sync.Mutex
	docs    map[string]*Document
	current string
	closed  bool

	// epoch invalidates superseded reconciliations: a batch only commits
	// (and emits) if no newer reconciliation has started since.
	epoch           int
	reconcileCancel context.CancelFunc

	previews *previewRegistry
	broker   *broker

	snap      snapshot.Store
	debounce  time.Duration
	snapMu    sync.Mutex
	snapTimer *time.Timer

	fetchLimit   int
	listPageSize int
	aiAPIURL     string
}

// Option configures a Store.
type Option func(*Store)

// WithSnapshot persists the serializable projection through st, debounced.
func WithSnapshot(st snapshot.Store) Option {
	return func(s *Store) { s.snap = st }
}

// WithDebounce sets the snapshot write coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// WithFetchLimit bounds parallel content fetches during reconciliation.
func WithFetchLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.fetchLimit = n
		}
	}
}

// WithListPageSize sets the server list page size.
func WithListPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.listPageSize = n
		}
	}
}

// WithAIAPIURL forwards a dedicated AI endpoint to file processing.
func WithAIAPIURL(url string) Option {
	return func(s *Store) { s.aiAPIURL = url }
}

// New creates a Store. When a snapshot store is configured, the persisted
// projection is loaded immediately.
func New(tr *transport.Client, up *uploader.Strategy, opts ...Option) *Store {
	s := &Store{
		tr:           tr,
		up:           up,
		docs:         make(map[string]*Document),
		previews:     newPreviewRegistry(),
		broker:       newBroker(),
		debounce:     100 * time.Millisecond,
		fetchLimit:   6,
		listPageSize: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.snap != nil {
		s.restore()
	}
	return s
}

// Subscribe returns a channel of coalesced view snapshots. The channel is
// closed when ctx ends or the store closes.
func (s *Store) Subscribe(ctx context.Context) <-chan Event {
	return s.broker.subscribe(ctx)
}

// Upload submits a file to the current conversation's document set. It is
// idempotent on the (name, size, conversation) triple: a duplicate call
// returns the existing record synchronously without emitting or starting a
// second transport upload.
func (s *Store) Upload(ctx context.Context, f transport.File, conversationID string, source Source, token string) (*Document, error) {
	if conversationID == "" {
		return nil, ErrNoConversation
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	// Dedup and insert are one critical section, so there is no window in
	// which two uploads for the same triple begin.
	for _, d := range s.docs {
		if d.Name == f.Name && d.Size == int64(len(f.Data)) && d.ConversationID == conversationID {
			dup := d.clone()
			s.mu.Unlock()
			return dup, nil
		}
	}
	doc := &Document{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Source:         source,
		Name:           f.Name,
		MIME:           f.ContentType(),
		Size:           int64(len(f.Data)),
		Status:         StatusPending,
		UploadedAt:     time.Now(),
	}
	doc.PreviewURL = s.previews.acquire(f.Data)
	doc.URL = doc.PreviewURL
	s.docs[doc.ID] = doc
	s.mu.Unlock()

	s.emitFor(conversationID)
	s.scheduleSnapshot()

	s.transition(doc.ID, StatusUploading, nil)

	if token == "" {
		s.completeOffline(doc.ID, f)
		return s.snapshotOf(doc.ID), nil
	}

	meta, err := s.up.Upload(ctx, f, token, uploader.Scope{
		ConversationID: conversationID,
		KnowledgeBase:  source == SourceKnowledgeBase,
		Tags:           tagsFor(source),
	})
	if err != nil {
		s.transition(doc.ID, StatusFailed, func(d *Document) {
			d.FailureReason = err.Error()
		})
		return s.snapshotOf(doc.ID), fmt.Errorf("upload %s: %w", f.Name, err)
	}

	// Attach canonical metadata and swap the preview handle for the signed
	// link. The handle is released exactly once, here or on removal.
	var released string
	s.mutate(doc.ID, func(d *Document) {
		d.Metadata = meta
		d.StoredInDatabase = true
		if meta.DownloadURL != "" {
			d.URL = meta.DownloadURL
			released = d.PreviewURL
			d.PreviewURL = ""
		}
	})
	s.previews.release(released)

	if classify.TextLike(f.Name, f.MIME) {
		content := ContentSentinel
		if fc, cerr := s.tr.GetContent(ctx, meta.ID, token); cerr == nil {
			content = fc.Content
		} else {
			slog.Warn("content fetch failed", "file", f.Name, "err", cerr)
		}
		s.mutate(doc.ID, func(d *Document) { d.Content = content })
	}

	if classify.Structured(f.Name) {
		s.transition(doc.ID, StatusProcessing, nil)
		if res, perr := s.tr.ProcessFile(ctx, f, defaultProcessPrompt, s.aiAPIURL); perr == nil && res.Success {
			s.mutate(doc.ID, func(d *Document) { d.ProcessedData = res.ProcessedData })
		} else {
			// Processing failure is non-fatal: the bytes are safe, the
			// structured summary is optional.
			if perr != nil {
				slog.Warn("file processing failed", "file", f.Name, "err", perr)
			} else {
				slog.Warn("file processing rejected", "file", f.Name, "err", res.Error)
			}
		}
	}

	s.transition(doc.ID, StatusCompleted, nil)
	return s.snapshotOf(doc.ID), nil
}

// completeOffline finishes an upload that had no token: remote work is
// skipped and content is extracted locally on a best-effort basis. The
// gate covers every format the extractor can render, so PDFs and
// spreadsheets get local text even though the server would normally
// render them.
func (s *Store) completeOffline(id string, f transport.File) {
	if classify.TextLike(f.Name, f.MIME) || extract.Supported(f.ContentType()) {
		if text, err := extract.Text(f.ContentType(), bytes.NewReader(f.Data)); err == nil && text != "" {
			s.mutate(id, func(d *Document) { d.Content = text })
		}
	}
	s.transition(id, StatusCompleted, nil)
}

// Remove drops a document, revoking its preview handle. Removed documents
// never appear in later emissions.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	doc, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	s.previews.release(doc.PreviewURL)
	delete(s.docs, id)
	conv := doc.ConversationID
	s.mu.Unlock()

	s.emitFor(conv)
	s.scheduleSnapshot()
	return nil
}

// Delete removes the document locally and, when it was stored remotely,
// deletes the server record too.
func (s *Store) Delete(ctx context.Context, id, token string) error {
	s.mu.Lock()
	doc, ok := s.docs[id]
	var remoteID string
	if ok && doc.Metadata != nil {
		remoteID = doc.Metadata.ID
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	if remoteID != "" && token != "" {
		if err := s.tr.DeleteFile(ctx, remoteID, token); err != nil {
			return fmt.Errorf("delete remote file: %w", err)
		}
	}
	return s.Remove(id)
}

// SetCurrentConversation switches the active conversation and starts
// reconciliation in the background. A reconciliation still in flight for a
// previous conversation is cancelled and its emissions discarded.
func (s *Store) SetCurrentConversation(ctx context.Context, conversationID, token string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.current = conversationID
	if s.reconcileCancel != nil {
		s.reconcileCancel()
		s.reconcileCancel = nil
	}
	s.epoch++
	if conversationID == "" {
		s.mu.Unlock()
		return
	}
	epoch := s.epoch
	rctx, cancel := context.WithCancel(ctx)
	s.reconcileCancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		if err := s.reconcile(rctx, conversationID, token, epoch); err != nil && rctx.Err() == nil {
			slog.Warn("reconciliation failed", "chat", conversationID, "err", err)
		}
	}()
}

// LoadConversation reconciles a conversation synchronously.
func (s *Store) LoadConversation(ctx context.Context, conversationID, token string) error {
	if conversationID == "" {
		return ErrNoConversation
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.reconcileCancel != nil {
		s.reconcileCancel()
		s.reconcileCancel = nil
	}
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	return s.reconcile(ctx, conversationID, token, epoch)
}

// reconcile replaces a conversation's slice with the server's authoritative
// list. In-flight local uploads for the conversation are kept. The batch
// commits atomically and produces a single coalesced emission; a batch
// superseded by a newer reconciliation is discarded without emitting.
func (s *Store) reconcile(ctx context.Context, conversationID, token string, epoch int) error {
	if token == "" {
		// Offline: entering a conversation without credentials resets it.
		s.mu.Lock()
		if epoch != s.epoch {
			s.mu.Unlock()
			return nil
		}
		for id, d := range s.docs {
			if d.ConversationID == conversationID {
				s.previews.release(d.PreviewURL)
				delete(s.docs, id)
			}
		}
		s.mu.Unlock()
		s.emitFor(conversationID)
		s.scheduleSnapshot()
		return nil
	}

	var files []transport.FileMetadata
	for page := 1; ; page++ {
		list, err := s.tr.ListUserFiles(ctx, token, transport.ListOptions{
			ChatID:   conversationID,
			Page:     page,
			PageSize: s.listPageSize,
		})
		if err != nil {
			return fmt.Errorf("list files page %d: %w", page, err)
		}
		files = append(files, list.Files...)
		if !list.HasNext {
			break
		}
	}

	incoming := make([]*Document, 0, len(files))
	for i := range files {
		meta := files[i]
		incoming = append(incoming, &Document{
			ID:               meta.ID,
			ConversationID:   conversationID,
			Source:           sourceFromTags(&meta),
			Name:             meta.Filename,
			MIME:             meta.FileType,
			Size:             meta.FileSize,
			Status:           StatusCompleted,
			Metadata:         &meta,
			StoredInDatabase: true,
			URL:              meta.DownloadURL,
			UploadedAt:       meta.CreatedAt,
		})
	}

	// Content fetches are per-document independent; parallelism is bounded
	// to keep from overwhelming either side.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchLimit)
	for _, d := range incoming {
		if !classify.TextLike(d.Name, d.MIME) {
			continue
		}
		g.Go(func() error {
			fc, ferr := s.tr.GetContent(gctx, d.Metadata.ID, token)
			if ferr != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.Content = ContentSentinel
				return nil
			}
			d.Content = fc.Content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	kept := make(map[tripleKey]bool)
	for id, d := range s.docs {
		if d.ConversationID != conversationID {
			continue
		}
		if !d.Status.Terminal() {
			// An upload is still running; reconciliation must not clobber it.
			kept[tripleOf(d)] = true
			continue
		}
		s.previews.release(d.PreviewURL)
		delete(s.docs, id)
	}
	for _, d := range incoming {
		if kept[tripleOf(d)] {
			continue
		}
		s.docs[d.ID] = d
	}
	s.mu.Unlock()

	s.emitFor(conversationID)
	s.scheduleSnapshot()
	return nil
}

type tripleKey struct {
	name string
	size int64
	conv string
}

func tripleOf(d *Document) tripleKey {
	return tripleKey{name: d.Name, size: d.Size, conv: d.ConversationID}
}

// CurrentView returns the documents of the currently selected conversation.
func (s *Store) CurrentView() []*Document {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == "" {
		return nil
	}
	return s.Documents(current)
}

// Documents returns the documents belonging to a conversation, oldest first.
func (s *Store) Documents(conversationID string) []*Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(conversationID)
}

func (s *Store) viewLocked(conversationID string) []*Document {
	docs := make([]*Document, 0, 8)
	for _, d := range s.docs {
		if d.ConversationID == conversationID {
			docs = append(docs, d.clone())
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.Before(docs[j].UploadedAt)
		}
		if docs[i].Name != docs[j].Name {
			return docs[i].Name < docs[j].Name
		}
		return docs[i].ID < docs[j].ID
	})
	return docs
}

// Get returns a copy of the document, if present.
func (s *Store) Get(id string) (*Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return d.clone(), true
}

// PreviewBytes returns the raw bytes behind a live preview handle.
func (s *Store) PreviewBytes(handle string) []byte {
	return s.previews.bytes(handle)
}

// LivePreviews reports the number of unreleased preview handles.
func (s *Store) LivePreviews() int {
	return s.previews.live()
}

// Close cancels in-flight reconciliation, flushes a final snapshot, and
// releases every preview handle.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.reconcileCancel != nil {
		s.reconcileCancel()
		s.reconcileCancel = nil
	}
	s.mu.Unlock()

	s.snapMu.Lock()
	if s.snapTimer != nil {
		s.snapTimer.Stop()
		s.snapTimer = nil
	}
	s.snapMu.Unlock()
	if s.snap != nil {
		if err := s.flushSnapshot(context.Background()); err != nil {
			slog.Warn("final snapshot failed", "err", err)
		}
	}

	s.previews.releaseAll()
	s.broker.shutdown()
}

// transition applies a status change. An invalid transition is an internal
// bug: it is logged and ignored rather than corrupting state.
func (s *Store) transition(id string, to Status, apply func(*Document)) {
	s.mu.Lock()
	d, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		slog.Warn("status transition on missing document", "id", id, "to", to)
		return
	}
	if !validTransition(d.Status, to) {
		from := d.Status
		s.mu.Unlock()
		slog.Warn("invalid status transition ignored", "id", id, "from", from, "to", to)
		return
	}
	d.Status = to
	if apply != nil {
		apply(d)
	}
	conv := d.ConversationID
	s.mu.Unlock()

	s.emitFor(conv)
	s.scheduleSnapshot()
}

// mutate edits a document without emitting; the change rides the next
// status emission so observers see whole snapshots, not sub-states.
func (s *Store) mutate(id string, apply func(*Document)) {
	s.mu.Lock()
	if d, ok := s.docs[id]; ok {
		apply(d)
	}
	s.mu.Unlock()
}

func (s *Store) snapshotOf(id string) *Document {
	d, _ := s.Get(id)
	return d
}

// emitFor publishes one coalesced snapshot of a conversation's documents.
func (s *Store) emitFor(conversationID string) {
	s.mu.Lock()
	docs := s.viewLocked(conversationID)
	s.mu.Unlock()
	s.broker.publish(Event{ConversationID: conversationID, Documents: docs})
}

func tagsFor(source Source) []string {
	switch source {
	case SourceSidebar:
		return []string{"sidebar"}
	case SourceKnowledgeBase:
		return []string{"knowledge-base"}
	default:
		return nil
	}
}
