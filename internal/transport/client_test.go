package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// fakeBackend mounts the backend surface used by the client tests.
func fakeBackend(t *testing.T, wire func(r chi.Router)) *Client {
	t.Helper()
	r := chi.NewRouter()
	wire(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestBearerHeader(t *testing.T) {
	var got string
	c := fakeBackend(t, func(r chi.Router) {
		r.Get("/files/metadata/{id}", func(w http.ResponseWriter, req *http.Request) {
			got = req.Header.Get("Authorization")
			json.NewEncoder(w).Encode(map[string]any{"id": chi.URLParam(req, "id")})
		})
	})

	if _, err := c.GetMetadata(context.Background(), "f1", "tok-123"); err != nil {
		t.Fatal(err)
	}
	if got != "Bearer tok-123" {
		t.Errorf("expected bearer header, got %q", got)
	}
}

func TestAPIErrorDetailString(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Get("/files/metadata/{id}", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"File not found"}`))
		})
	})

	_, err := c.GetMetadata(context.Background(), "missing", "tok")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Status != 404 {
		t.Errorf("expected 404, got %d", apiErr.Status)
	}
	if apiErr.Detail != "File not found" {
		t.Errorf("unexpected detail: %q", apiErr.Detail)
	}
	if StatusCode(err) != 404 {
		t.Errorf("StatusCode: %d", StatusCode(err))
	}
}

func TestAPIErrorDetailObject(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Delete("/files/delete/{id}", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":[{"loc":["path","id"],"msg":"invalid id"}]}`))
		})
	})

	err := c.DeleteFile(context.Background(), "bad", "tok")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != 422 || apiErr.Detail == "" {
		t.Errorf("structured detail not kept: %+v", apiErr)
	}
}

func TestAPIErrorNonJSONBody(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Get("/file-processing/health", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream exploded"))
		})
	})

	err := c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Detail != "upstream exploded" {
		t.Errorf("unexpected detail: %q", apiErr.Detail)
	}
}

func TestErrorNeverContainsToken(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Get("/files/metadata/{id}", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Could not validate credentials"}`))
		})
	})

	const secret = "super-secret-bearer"
	_, err := c.GetMetadata(context.Background(), "f1", secret)
	if err == nil {
		t.Fatal("expected error")
	}
	if contains := errors.As(err, new(*APIError)); !contains {
		t.Fatalf("expected APIError, got %v", err)
	}
	if msg := err.Error(); len(msg) > 0 && containsStr(msg, secret) {
		t.Errorf("error message leaks the bearer token: %s", msg)
	}
}

func containsStr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestTimeoutClassification(t *testing.T) {
	started := make(chan struct{}, 1)
	c := fakeBackend(t, func(r chi.Router) {
		r.Get("/files/metadata/{id}", func(w http.ResponseWriter, req *http.Request) {
			started <- struct{}{}
			<-req.Context().Done()
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetMetadata(ctx, "slow", "tok")
		done <- err
	}()
	<-started
	cancel()

	err := <-done
	if !IsTimeout(err) {
		t.Errorf("cancellation should classify as timeout, got %v", err)
	}
}

func TestDeadlineClassification(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Get("/files/content/{id}", func(w http.ResponseWriter, req *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-req.Context().Done():
			}
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetContent(ctx, "slow", "tok")
	if !IsTimeout(err) {
		t.Errorf("deadline should classify as timeout, got %v", err)
	}
}

func TestFileContentType(t *testing.T) {
	if got := (File{MIME: "text/csv"}).ContentType(); got != "text/csv" {
		t.Errorf("got %s", got)
	}
	if got := (File{}).ContentType(); got != "application/octet-stream" {
		t.Errorf("got %s", got)
	}
}
