package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Folder is a named aggregate referencing file identifiers. It does not own
// file bytes. Note the backend serializes membership as camelCase "fileIds"
// unlike the rest of its snake_case surface.
type Folder struct {
	ID        string
	Name      string
	Type      string
	FileIDs   []string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type folderWire struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	FileIDs   []string   `json:"fileIds"`
	UserID    string     `json:"user_id"`
	CreatedAt serverTime `json:"created_at"`
	UpdatedAt serverTime `json:"updated_at"`
}

func (f *Folder) UnmarshalJSON(data []byte) error {
	var w folderWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	f.ID = w.ID
	f.Name = w.Name
	f.Type = w.Type
	f.FileIDs = w.FileIDs
	if f.FileIDs == nil {
		f.FileIDs = []string{}
	}
	f.UserID = w.UserID
	f.CreatedAt = w.CreatedAt.t
	f.UpdatedAt = w.UpdatedAt.t
	return nil
}

// Count returns the member count.
func (f *Folder) Count() int { return len(f.FileIDs) }

// FolderRequest creates or fully replaces a folder definition.
type FolderRequest struct {
	Name    string   `json:"name"`
	Type    string   `json:"type,omitempty"`
	FileIDs []string `json:"fileIds"`
}

// CreateFolder creates a new folder aggregate.
func (c *Client) CreateFolder(ctx context.Context, req FolderRequest, token string) (*Folder, error) {
	if req.FileIDs == nil {
		req.FileIDs = []string{}
	}
	var folder Folder
	if err := c.doJSON(ctx, c.std, http.MethodPost, "/folders/", token, req, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// UpdateFolder replaces a folder's name, type, and membership.
func (c *Client) UpdateFolder(ctx context.Context, folderID string, req FolderRequest, token string) (*Folder, error) {
	if req.FileIDs == nil {
		req.FileIDs = []string{}
	}
	var folder Folder
	if err := c.doJSON(ctx, c.std, http.MethodPut, "/folders/"+folderID, token, req, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// GetFolders lists the user's folders.
func (c *Client) GetFolders(ctx context.Context, token string) ([]Folder, error) {
	var folders []Folder
	if err := c.doJSON(ctx, c.std, http.MethodGet, "/folders/", token, nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// GetFolder fetches a single folder by ID.
func (c *Client) GetFolder(ctx context.Context, folderID, token string) (*Folder, error) {
	var folder Folder
	if err := c.doJSON(ctx, c.std, http.MethodGet, "/folders/"+folderID, token, nil, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// DeleteFolder removes the aggregate. Referenced files are not removed.
func (c *Client) DeleteFolder(ctx context.Context, folderID, token string) error {
	return c.doJSON(ctx, c.std, http.MethodDelete, "/folders/"+folderID, token, nil, nil)
}

// CreateFolderUploadTicket obtains a presigned URL scoped to a folder.
func (c *Client) CreateFolderUploadTicket(ctx context.Context, folderID string, req UploadTicketRequest, token string) (*UploadTicket, error) {
	var ticket UploadTicket
	if err := c.doJSON(ctx, c.std, http.MethodPost, "/folders/"+folderID+"/files/upload-url", token, req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// CompleteFolderUpload attaches a directly-uploaded file to its folder.
func (c *Client) CompleteFolderUpload(ctx context.Context, folderID, fileID, token string) error {
	return c.doJSON(ctx, c.std, http.MethodPost, "/folders/"+folderID+"/files/"+fileID+"/complete", token, nil, nil)
}

// ProxyUploadToFolder uploads through the backend into a folder.
func (c *Client) ProxyUploadToFolder(ctx context.Context, folderID string, f File, token string) (*FileMetadata, error) {
	var meta FileMetadata
	if err := c.doMultipart(ctx, c.upload, "/folders/"+folderID+"/files/proxy-upload", token, f, nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
