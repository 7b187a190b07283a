package transport

import (
	"encoding/json"
	"time"
)

// FileMetadata is the canonical server-side record of an uploaded file.
// The backend serializes it with variant keys depending on the code path
// ("id" vs "_id", "file_size" vs "size", "file_type" vs "type");
// UnmarshalJSON normalizes so nothing past this boundary sees variants.
type FileMetadata struct {
	ID          string
	Filename    string
	FileKey     string
	FileType    string
	FileSize    int64
	UserID      string
	ChatID      string
	FolderID    string
	Description string
	Tags        []string
	DownloadURL string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasTag reports whether tag is present in the metadata tag set.
func (m *FileMetadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type metadataWire struct {
	ID          string     `json:"id"`
	AltID       string     `json:"_id"`
	Filename    string     `json:"filename"`
	FileKey     string     `json:"file_key"`
	FileType    string     `json:"file_type"`
	AltType     string     `json:"type"`
	FileSize    *int64     `json:"file_size"`
	AltSize     *int64     `json:"size"`
	UserID      string     `json:"user_id"`
	ChatID      string     `json:"chat_id"`
	FolderID    string     `json:"folder_id"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	DownloadURL string     `json:"download_url"`
	CreatedAt   serverTime `json:"created_at"`
	UpdatedAt   serverTime `json:"updated_at"`
}

func (m *FileMetadata) UnmarshalJSON(data []byte) error {
	var w metadataWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.ID = w.ID
	if m.ID == "" {
		m.ID = w.AltID
	}
	m.Filename = w.Filename
	m.FileKey = w.FileKey
	m.FileType = w.FileType
	if m.FileType == "" {
		m.FileType = w.AltType
	}
	if m.FileType == "" {
		m.FileType = "application/octet-stream"
	}
	switch {
	case w.FileSize != nil:
		m.FileSize = *w.FileSize
	case w.AltSize != nil:
		m.FileSize = *w.AltSize
	}
	m.UserID = w.UserID
	m.ChatID = w.ChatID
	m.FolderID = w.FolderID
	m.Description = w.Description
	m.Tags = w.Tags
	if m.Tags == nil {
		m.Tags = []string{}
	}
	m.DownloadURL = w.DownloadURL
	m.CreatedAt = w.CreatedAt.t
	m.UpdatedAt = w.UpdatedAt.t
	return nil
}

func (m FileMetadata) MarshalJSON() ([]byte, error) {
	w := metadataWire{
		ID:          m.ID,
		Filename:    m.Filename,
		FileKey:     m.FileKey,
		FileType:    m.FileType,
		FileSize:    &m.FileSize,
		UserID:      m.UserID,
		ChatID:      m.ChatID,
		FolderID:    m.FolderID,
		Description: m.Description,
		Tags:        m.Tags,
		DownloadURL: m.DownloadURL,
		CreatedAt:   serverTime{m.CreatedAt},
		UpdatedAt:   serverTime{m.UpdatedAt},
	}
	return json.Marshal(w)
}

// serverTime tolerates the backend's two timestamp renderings: RFC 3339 and
// a naive isoformat without zone suffix.
type serverTime struct {
	t time.Time
}

const naiveISO = "2006-01-02T15:04:05.999999999"

func (st *serverTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		st.t = t
		return nil
	}
	t, err := time.Parse(naiveISO, s)
	if err != nil {
		return err
	}
	st.t = t.UTC()
	return nil
}

func (st serverTime) MarshalJSON() ([]byte, error) {
	if st.t.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(st.t.UTC().Format(time.RFC3339Nano))
}
