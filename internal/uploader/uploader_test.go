package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dimkaghb/chocosync/internal/transport"
)

// backend is a scripted fake: proxyStatus drives the proxy path, putStatuses
// is consumed one PUT attempt at a time.
type backend struct {
	proxyStatus int
	putStatuses []int

	proxyCalls  atomic.Int32
	ticketCalls atomic.Int32
	putCalls    atomic.Int32
}

func (b *backend) start(t *testing.T) *transport.Client {
	t.Helper()
	r := chi.NewRouter()

	r.Post("/files/proxy-upload", func(w http.ResponseWriter, req *http.Request) {
		b.proxyCalls.Add(1)
		if b.proxyStatus >= 400 {
			w.WriteHeader(b.proxyStatus)
			w.Write([]byte(`{"detail":"proxy unavailable"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "f-proxy", "filename": "a.txt", "file_size": 5})
	})
	r.Post("/files/upload-url", func(w http.ResponseWriter, req *http.Request) {
		b.ticketCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"upload_url": "http://" + req.Host + "/storage/key",
			"file_key":   "key",
			"file_id":    "f-direct",
			"expires_in": 3600,
		})
	})
	r.Put("/storage/key", func(w http.ResponseWriter, req *http.Request) {
		n := int(b.putCalls.Add(1))
		status := http.StatusOK
		if n <= len(b.putStatuses) {
			status = b.putStatuses[n-1]
		}
		w.WriteHeader(status)
	})
	r.Get("/files/metadata/{id}", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": chi.URLParam(req, "id"), "filename": "a.txt", "file_size": 5})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return transport.New(srv.URL)
}

// newTestStrategy records backoffs instead of sleeping.
func newTestStrategy(tr *transport.Client) (*Strategy, *[]time.Duration) {
	s := New(tr)
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestProxyUploadPreferred(t *testing.T) {
	b := &backend{}
	s, _ := newTestStrategy(b.start(t))

	meta, err := s.Upload(context.Background(),
		transport.File{Name: "a.txt", MIME: "text/plain", Data: []byte("hello")},
		"tok", Scope{ConversationID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if meta.ID != "f-proxy" {
		t.Errorf("expected proxy path, got %s", meta.ID)
	}
	if b.ticketCalls.Load() != 0 {
		t.Error("direct path should not run when proxy succeeds")
	}
}

func TestDirectFallbackWithRetries(t *testing.T) {
	b := &backend{proxyStatus: 500, putStatuses: []int{503, 503, 200}}
	s, slept := newTestStrategy(b.start(t))

	meta, err := s.Upload(context.Background(),
		transport.File{Name: "a.txt", MIME: "text/plain", Data: []byte("hello")},
		"tok", Scope{ConversationID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if meta.ID != "f-direct" {
		t.Errorf("expected direct path metadata, got %s", meta.ID)
	}
	if got := b.putCalls.Load(); got != 3 {
		t.Errorf("expected 3 PUT attempts, got %d", got)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected backoffs %v, got %v", want, *slept)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("backoff %d: got %s, want %s", i, (*slept)[i], want[i])
		}
	}
}

func TestPutExhaustsRetryBudget(t *testing.T) {
	b := &backend{proxyStatus: 500, putStatuses: []int{503, 503, 503, 503, 503}}
	s, slept := newTestStrategy(b.start(t))

	_, err := s.Upload(context.Background(),
		transport.File{Name: "a.txt", Data: []byte("x")},
		"tok", Scope{ConversationID: "c1"})
	if err == nil {
		t.Fatal("expected failure after retry budget")
	}
	// First attempt plus three retries.
	if got := b.putCalls.Load(); got != 4 {
		t.Errorf("expected 4 PUT attempts, got %d", got)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected backoffs %v, got %v", want, *slept)
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	b := &backend{proxyStatus: 500, putStatuses: []int{403}}
	s, slept := newTestStrategy(b.start(t))

	_, err := s.Upload(context.Background(),
		transport.File{Name: "a.txt", Data: []byte("x")},
		"tok", Scope{ConversationID: "c1"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := b.putCalls.Load(); got != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", got)
	}
	if len(*slept) != 0 {
		t.Errorf("no backoff expected, got %v", *slept)
	}
}

func TestDoubleFailureJoinsErrors(t *testing.T) {
	b := &backend{proxyStatus: 500, putStatuses: []int{400}}
	s, _ := newTestStrategy(b.start(t))

	_, err := s.Upload(context.Background(),
		transport.File{Name: "a.txt", Data: []byte("x")},
		"tok", Scope{ConversationID: "c1"})
	if err == nil {
		t.Fatal("expected failure")
	}
	msg := err.Error()
	if !strings.Contains(msg, "proxy upload") || !strings.Contains(msg, "direct upload") {
		t.Errorf("joined error should carry both paths: %s", msg)
	}
}

func TestKnowledgeBaseSkipsDirectFallback(t *testing.T) {
	b := &backend{proxyStatus: 500}
	s, _ := newTestStrategy(b.start(t))

	_, err := s.Upload(context.Background(),
		transport.File{Name: "kb.txt", Data: []byte("x")},
		"tok", Scope{ConversationID: "c1", KnowledgeBase: true})
	if err == nil {
		t.Fatal("expected failure")
	}
	if b.ticketCalls.Load() != 0 {
		t.Error("knowledge-base uploads must not fall back to direct upload")
	}
}

func TestAbortDuringBackoff(t *testing.T) {
	b := &backend{proxyStatus: 500, putStatuses: []int{503, 503, 503, 503}}
	s := New(b.start(t))

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(sctx context.Context, d time.Duration) error {
		cancel()
		return sctx.Err()
	}

	_, err := s.Upload(ctx,
		transport.File{Name: "a.txt", Data: []byte("x")},
		"tok", Scope{ConversationID: "c1"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !errors.Is(err, transport.ErrTimeout) {
		t.Errorf("abort during backoff should surface as timeout, got %v", err)
	}
	if got := b.putCalls.Load(); got != 1 {
		t.Errorf("no further attempts after abort, got %d", got)
	}
}
