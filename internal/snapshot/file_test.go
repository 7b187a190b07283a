package snapshot

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testSnapshot() *Snapshot {
	return &Snapshot{Documents: []DocumentRecord{
		{
			ID:             "d1",
			ConversationID: "c1",
			Source:         "chat",
			Name:           "notes.txt",
			MIME:           "text/plain",
			Size:           12,
			Status:         "completed",
			Content:        "hello",
			UploadedAt:     time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:               "d2",
			ConversationID:   "c1",
			Source:           "sidebar",
			Name:             "data.csv",
			Size:             40,
			Status:           "completed",
			StoredInDatabase: true,
			UploadedAt:       time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC),
		},
	}}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	st := NewFileStore(path)
	ctx := context.Background()

	if err := st.Save(ctx, testSnapshot()); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := st.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(loaded.Documents))
	}
	if loaded.Documents[0].ID != "d1" || loaded.Documents[1].Source != "sidebar" {
		t.Errorf("order or fields lost: %+v", loaded.Documents)
	}

	// Save(Load(x)) is byte-identical.
	if err := st.Save(ctx, loaded); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("round trip is not byte-identical")
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	st := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	snap, err := st.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Documents == nil || len(snap.Documents) != 0 {
		t.Errorf("missing file should load as empty snapshot: %+v", snap)
	}
}

func TestFileStoreCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "snap.json")
	st := NewFileStore(path)
	if err := st.Save(context.Background(), testSnapshot()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot file not created: %v", err)
	}
}

func TestFileStoreNamespaceKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	st := NewFileStore(path)
	if err := st.Save(context.Background(), testSnapshot()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"`+Key+`"`)) {
		t.Errorf("blob should be keyed under %q", Key)
	}
}
