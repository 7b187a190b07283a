package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestProxyUploadFields(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Post("/files/proxy-upload", func(w http.ResponseWriter, req *http.Request) {
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("parse multipart: %v", err)
			}
			if got := req.FormValue("chat_id"); got != "c1" {
				t.Errorf("chat_id = %q", got)
			}
			if got := req.FormValue("tags"); got != `["sidebar"]` {
				t.Errorf("tags should be a JSON array, got %q", got)
			}
			file, header, err := req.FormFile("file")
			if err != nil {
				t.Fatalf("file part: %v", err)
			}
			defer file.Close()
			if header.Filename != "notes.txt" {
				t.Errorf("filename = %q", header.Filename)
			}
			data, _ := io.ReadAll(file)
			if string(data) != "hello" {
				t.Errorf("body = %q", data)
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "f1", "filename": "notes.txt", "file_size": 5})
		})
	})

	meta, err := c.ProxyUpload(context.Background(),
		File{Name: "notes.txt", MIME: "text/plain", Data: []byte("hello")},
		"tok", ProxyUploadOptions{ChatID: "c1", Tags: []string{"sidebar"}})
	if err != nil {
		t.Fatal(err)
	}
	if meta.ID != "f1" || meta.FileSize != 5 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestListUserFilesQuery(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Get("/files/list", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			if q.Get("chat_id") != "c1" || q.Get("page") != "2" || q.Get("page_size") != "50" {
				t.Errorf("unexpected query: %s", req.URL.RawQuery)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"files":       []map[string]any{{"id": "f1", "filename": "a.txt"}},
				"total_count": 51,
				"page":        2,
				"page_size":   50,
				"has_next":    false,
			})
		})
	})

	list, err := c.ListUserFiles(context.Background(), "tok", ListOptions{ChatID: "c1", Page: 2, PageSize: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Files) != 1 || list.TotalCount != 51 {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestListUserFilesDefaults(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Get("/files/list", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			if q.Get("page") != "1" || q.Get("page_size") != "20" {
				t.Errorf("defaults not applied: %s", req.URL.RawQuery)
			}
			json.NewEncoder(w).Encode(map[string]any{"files": []any{}})
		})
	})

	if _, err := c.ListUserFiles(context.Background(), "tok", ListOptions{}); err != nil {
		t.Fatal(err)
	}
}

func TestCreateFolderWireFormat(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Post("/folders/", func(w http.ResponseWriter, req *http.Request) {
			var raw map[string]json.RawMessage
			if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
				t.Fatal(err)
			}
			// Membership travels as camelCase fileIds and is never null.
			ids, ok := raw["fileIds"]
			if !ok {
				t.Fatalf("fileIds key missing: %v", raw)
			}
			if string(ids) != "[]" {
				t.Errorf("nil membership should serialize as [], got %s", ids)
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "d1", "name": "Research", "fileIds": []string{}})
		})
	})

	folder, err := c.CreateFolder(context.Background(), FolderRequest{Name: "Research"}, "tok")
	if err != nil {
		t.Fatal(err)
	}
	if folder.ID != "d1" || folder.Count() != 0 {
		t.Errorf("unexpected folder: %+v", folder)
	}
}

func TestPutBytesToStorage(t *testing.T) {
	var gotMethod, gotType string
	var gotBody []byte
	c := fakeBackend(t, func(r chi.Router) {
		r.Put("/storage/bucket/key", func(w http.ResponseWriter, req *http.Request) {
			gotMethod = req.Method
			gotType = req.Header.Get("Content-Type")
			gotBody, _ = io.ReadAll(req.Body)
			// No Authorization header: the grant is in the URL.
			if req.Header.Get("Authorization") != "" {
				t.Error("storage PUT must not carry the bearer")
			}
			w.WriteHeader(http.StatusOK)
		})
	})

	err := c.PutBytesToStorage(context.Background(), c.BaseURL()+"/storage/bucket/key?sig=abc", []byte("bytes"), "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if gotMethod != "PUT" || gotType != "text/plain" || string(gotBody) != "bytes" {
		t.Errorf("unexpected PUT: %s %s %q", gotMethod, gotType, gotBody)
	}
}
