// Package folders coordinates named aggregates of file identifiers. Folders
// reference documents; they never own file bytes, and deleting a folder
// leaves its members untouched.
package folders

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dimkaghb/chocosync/internal/docstore"
	"github.com/Dimkaghb/chocosync/internal/transport"
	"github.com/Dimkaghb/chocosync/internal/uploader"
)

// Coordinator drives folder CRUD and folder-scoped bulk uploads.
type Coordinator struct {
	tr    *transport.Client
	up    *uploader.Strategy
	store *docstore.Store // optional; used to resolve members locally first
}

// New creates a Coordinator. store may be nil; Resolve then relies on
// metadata lookups alone.
func New(tr *transport.Client, up *uploader.Strategy, store *docstore.Store) *Coordinator {
	return &Coordinator{tr: tr, up: up, store: store}
}

// Create makes a new folder aggregate.
func (c *Coordinator) Create(ctx context.Context, req transport.FolderRequest, token string) (*transport.Folder, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("folder name is required")
	}
	if req.Type == "" {
		req.Type = "documents"
	}
	return c.tr.CreateFolder(ctx, req, token)
}

// Update replaces a folder's definition. Membership has full-replacement
// semantics: the folder ends up with exactly req.FileIDs.
func (c *Coordinator) Update(ctx context.Context, folderID string, req transport.FolderRequest, token string) (*transport.Folder, error) {
	if folderID == "" {
		return nil, fmt.Errorf("folder id is required")
	}
	return c.tr.UpdateFolder(ctx, folderID, req, token)
}

// List returns the user's folders.
func (c *Coordinator) List(ctx context.Context, token string) ([]transport.Folder, error) {
	return c.tr.GetFolders(ctx, token)
}

// Get fetches one folder.
func (c *Coordinator) Get(ctx context.Context, folderID, token string) (*transport.Folder, error) {
	return c.tr.GetFolder(ctx, folderID, token)
}

// Delete removes the aggregate only.
func (c *Coordinator) Delete(ctx context.Context, folderID, token string) error {
	return c.tr.DeleteFolder(ctx, folderID, token)
}

// Progress reports one file of a bulk upload.
type Progress struct {
	Filename string
	Index    int
	Total    int
	Err      error
}

// BulkResult aggregates a bulk upload's outcome.
type BulkResult struct {
	Uploaded []*transport.FileMetadata
	Failed   map[string]error
}

// UploadFiles uploads files into a folder sequentially, to avoid saturating
// the server, reporting per-file progress by filename. A per-file failure
// does not stop the batch.
func (c *Coordinator) UploadFiles(ctx context.Context, files []transport.File, folderID, token string, onProgress func(Progress)) (*BulkResult, error) {
	if folderID == "" {
		return nil, fmt.Errorf("folder id is required")
	}

	result := &BulkResult{Failed: make(map[string]error)}
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("bulk upload aborted: %w", err)
		}

		meta, err := c.up.Upload(ctx, f, token, uploader.Scope{FolderID: folderID})
		if err != nil {
			slog.Warn("folder upload failed", "folder", folderID, "file", f.Name, "err", err)
			result.Failed[f.Name] = err
		} else {
			result.Uploaded = append(result.Uploaded, meta)
		}
		if onProgress != nil {
			onProgress(Progress{Filename: f.Name, Index: i + 1, Total: len(files), Err: err})
		}
	}
	return result, nil
}

// Resolution maps folder members to their documents or metadata. Orphaned
// identifiers are tolerated and surfaced in Unresolved.
type Resolution struct {
	Documents  []*docstore.Document
	Metadata   []*transport.FileMetadata
	Unresolved []string
}

// Resolve looks up each member identifier, first in the local store, then
// by a metadata lookup.
func (c *Coordinator) Resolve(ctx context.Context, folder *transport.Folder, token string) *Resolution {
	res := &Resolution{}
	for _, id := range folder.FileIDs {
		if c.store != nil {
			if doc, ok := c.store.Get(id); ok {
				res.Documents = append(res.Documents, doc)
				continue
			}
		}
		meta, err := c.tr.GetMetadata(ctx, id, token)
		if err != nil {
			res.Unresolved = append(res.Unresolved, id)
			continue
		}
		res.Metadata = append(res.Metadata, meta)
	}
	return res
}
