package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// UploadTicketRequest asks the backend for a presigned upload URL.
type UploadTicketRequest struct {
	Filename    string   `json:"filename"`
	FileType    string   `json:"file_type"`
	FileSize    int64    `json:"file_size"`
	ChatID      string   `json:"chat_id,omitempty"`
	FolderID    string   `json:"folder_id,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// UploadTicket is a short-lived grant for a direct storage PUT.
type UploadTicket struct {
	UploadURL string `json:"upload_url"`
	FileKey   string `json:"file_key"`
	FileID    string `json:"file_id"`
	ExpiresIn int    `json:"expires_in"`
}

// ProxyUploadOptions scope a server-mediated upload.
type ProxyUploadOptions struct {
	ChatID      string
	Description string
	Tags        []string
}

// FileContent is server-rendered textual content for a file.
type FileContent struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// ListOptions filter and paginate a file listing.
type ListOptions struct {
	ChatID   string
	Page     int
	PageSize int
}

// FileList is one page of a user's files.
type FileList struct {
	Files       []FileMetadata `json:"files"`
	TotalCount  int            `json:"total_count"`
	Page        int            `json:"page"`
	PageSize    int            `json:"page_size"`
	HasNext     bool           `json:"has_next"`
	HasPrevious bool           `json:"has_previous"`
}

// MetadataUpdate carries the mutable metadata fields.
type MetadataUpdate struct {
	Filename    string   `json:"filename,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ProcessResult is the outcome of server-side structured-data processing.
type ProcessResult struct {
	Success       bool            `json:"success"`
	Error         string          `json:"error,omitempty"`
	FileInfo      json.RawMessage `json:"file_info,omitempty"`
	ProcessedData json.RawMessage `json:"processed_data,omitempty"`
}

// CreateUploadTicket obtains a presigned URL plus the file's database record.
func (c *Client) CreateUploadTicket(ctx context.Context, req UploadTicketRequest, token string) (*UploadTicket, error) {
	var ticket UploadTicket
	if err := c.doJSON(ctx, c.std, http.MethodPost, "/files/upload-url", token, req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// PutBytesToStorage uploads raw bytes to a presigned URL. The PUT is
// unauthenticated; the grant is embedded in the URL itself.
func (c *Client) PutBytesToStorage(ctx context.Context, uploadURL string, data []byte, mime string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("storage put: create request: %w", err)
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mime)
	req.ContentLength = int64(len(data))
	return c.send(c.storage, req, "storage put", nil)
}

// ProxyUpload uploads through the backend, which writes to object storage
// itself and returns the canonical metadata.
func (c *Client) ProxyUpload(ctx context.Context, f File, token string, opts ProxyUploadOptions) (*FileMetadata, error) {
	fields := map[string]string{
		"chat_id":     opts.ChatID,
		"description": opts.Description,
	}
	if len(opts.Tags) > 0 {
		tags, err := json.Marshal(opts.Tags)
		if err != nil {
			return nil, fmt.Errorf("proxy upload: marshal tags: %w", err)
		}
		fields["tags"] = string(tags)
	}

	var meta FileMetadata
	if err := c.doMultipart(ctx, c.upload, "/files/proxy-upload", token, f, fields, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetMetadata fetches the canonical metadata and signed download link.
func (c *Client) GetMetadata(ctx context.Context, fileID, token string) (*FileMetadata, error) {
	var meta FileMetadata
	if err := c.doJSON(ctx, c.std, http.MethodGet, "/files/metadata/"+fileID, token, nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// UpdateFileMetadata updates filename, description, or tags.
func (c *Client) UpdateFileMetadata(ctx context.Context, fileID string, update MetadataUpdate, token string) (*FileMetadata, error) {
	var meta FileMetadata
	if err := c.doJSON(ctx, c.std, http.MethodPut, "/files/metadata/"+fileID, token, update, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ListUserFiles returns one page of the user's files, optionally filtered
// by conversation.
func (c *Client) ListUserFiles(ctx context.Context, token string, opts ListOptions) (*FileList, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 20
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(opts.Page))
	q.Set("page_size", strconv.Itoa(opts.PageSize))
	if opts.ChatID != "" {
		q.Set("chat_id", opts.ChatID)
	}

	var list FileList
	if err := c.doJSON(ctx, c.std, http.MethodGet, "/files/list?"+q.Encode(), token, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteFile removes the file from storage and the metadata index.
func (c *Client) DeleteFile(ctx context.Context, fileID, token string) error {
	return c.doJSON(ctx, c.std, http.MethodDelete, "/files/delete/"+fileID, token, nil, nil)
}

// GetContent returns server-rendered textual content. The backend is
// responsible for extracting text from structured formats.
func (c *Client) GetContent(ctx context.Context, fileID, token string) (*FileContent, error) {
	var content FileContent
	if err := c.doJSON(ctx, c.std, http.MethodGet, "/files/content/"+fileID, token, nil, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// ProcessFile submits a structured-data file for server-side analysis.
func (c *Client) ProcessFile(ctx context.Context, f File, prompt, aiAPIURL string) (*ProcessResult, error) {
	fields := map[string]string{
		"prompt":     prompt,
		"ai_api_url": aiAPIURL,
	}
	var result ProcessResult
	if err := c.doMultipart(ctx, c.upload, "/file-processing/process-file", "", f, fields, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health probes the file-processing service.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, c.health, http.MethodGet, "/file-processing/health", "", nil, nil)
}
