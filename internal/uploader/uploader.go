// Package uploader encapsulates the two paths for placing file bytes in
// object storage: the preferred server-mediated proxy upload, and the
// fallback three-step direct upload through a presigned URL.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dimkaghb/chocosync/internal/transport"
)

const (
	maxPutRetries = 3 // retries after the first attempt
	baseBackoff   = time.Second
	maxBackoff    = 5 * time.Second
)

// Scope identifies where an upload lands: a conversation, a folder, or the
// knowledge base.
type Scope struct {
	ConversationID string
	FolderID       string
	KnowledgeBase  bool
	Description    string
	Tags           []string
}

// Strategy places file bytes using proxy-first upload with direct fallback.
type Strategy struct {
	tr *transport.Client

	// sleep is replaceable in tests; it must honor ctx.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Strategy over the given transport.
func New(tr *transport.Client) *Strategy {
	return &Strategy{tr: tr, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Upload places f according to scope and returns the canonical metadata.
// The proxy path is attempted first; on failure the direct path runs, and a
// double failure surfaces both errors joined.
func (s *Strategy) Upload(ctx context.Context, f transport.File, token string, scope Scope) (*transport.FileMetadata, error) {
	meta, proxyErr := s.proxyUpload(ctx, f, token, scope)
	if proxyErr == nil {
		return meta, nil
	}

	// Knowledge-base (and any future proxy-only) uploads deliberately do
	// not attempt the direct path.
	if scope.KnowledgeBase {
		return nil, fmt.Errorf("proxy upload: %w", proxyErr)
	}

	slog.Warn("proxy upload failed, falling back to direct upload",
		"file", f.Name, "err", proxyErr)

	meta, directErr := s.directUpload(ctx, f, token, scope)
	if directErr != nil {
		return nil, errors.Join(
			fmt.Errorf("proxy upload: %w", proxyErr),
			fmt.Errorf("direct upload: %w", directErr),
		)
	}
	return meta, nil
}

func (s *Strategy) proxyUpload(ctx context.Context, f transport.File, token string, scope Scope) (*transport.FileMetadata, error) {
	if scope.FolderID != "" {
		return s.tr.ProxyUploadToFolder(ctx, scope.FolderID, f, token)
	}
	return s.tr.ProxyUpload(ctx, f, token, transport.ProxyUploadOptions{
		ChatID:      scope.ConversationID,
		Description: scope.Description,
		Tags:        scope.Tags,
	})
}

func (s *Strategy) directUpload(ctx context.Context, f transport.File, token string, scope Scope) (*transport.FileMetadata, error) {
	req := transport.UploadTicketRequest{
		Filename:    f.Name,
		FileType:    f.ContentType(),
		FileSize:    int64(len(f.Data)),
		ChatID:      scope.ConversationID,
		Description: scope.Description,
		Tags:        scope.Tags,
	}

	var ticket *transport.UploadTicket
	var err error
	if scope.FolderID != "" {
		req.ChatID = ""
		ticket, err = s.tr.CreateFolderUploadTicket(ctx, scope.FolderID, req, token)
	} else {
		ticket, err = s.tr.CreateUploadTicket(ctx, req, token)
	}
	if err != nil {
		return nil, fmt.Errorf("create upload ticket: %w", err)
	}

	if err := s.putWithRetry(ctx, ticket.UploadURL, f.Data, f.ContentType()); err != nil {
		return nil, err
	}

	if scope.FolderID != "" {
		if err := s.tr.CompleteFolderUpload(ctx, scope.FolderID, ticket.FileID, token); err != nil {
			return nil, fmt.Errorf("complete folder upload: %w", err)
		}
	}

	meta, err := s.tr.GetMetadata(ctx, ticket.FileID, token)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata after upload: %w", err)
	}
	return meta, nil
}

// putWithRetry PUTs the bytes, retrying 5xx and network failures with
// exponential backoff (1s, 2s, capped at 5s). Client errors (4xx) and
// aborts are never retried.
func (s *Strategy) putWithRetry(ctx context.Context, uploadURL string, data []byte, mime string) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.tr.PutBytesToStorage(ctx, uploadURL, data, mime)
		if err == nil {
			return nil
		}
		if !retryable(ctx, err) || attempt >= maxPutRetries {
			return fmt.Errorf("storage put: %w", err)
		}

		backoff := baseBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		slog.Warn("storage put failed, retrying",
			"attempt", attempt+1, "backoff", backoff, "err", err)
		if sleepErr := s.sleep(ctx, backoff); sleepErr != nil {
			// Aborted during backoff: report the abort, not the last PUT error.
			return fmt.Errorf("storage put: %w", transport.ErrTimeout)
		}
	}
}

// retryable distinguishes caller aborts (never retried) from per-attempt
// timeouts and network failures (retried) and HTTP statuses (5xx only).
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if status := transport.StatusCode(err); status != 0 {
		return status >= 500
	}
	// Per-attempt timeout or plain network failure.
	return true
}
