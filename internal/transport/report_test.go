package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestNormalizeJobState(t *testing.T) {
	cases := []struct {
		in      string
		want    JobState
		wantErr bool
	}{
		{"pending", JobQueued, false},
		{"queued", JobQueued, false},
		{"processing", JobProcessing, false},
		{"completed", JobCompleted, false},
		{"failed", JobFailed, false},
		{"exploded", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := normalizeJobState(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("%q: got %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestJobStatusUnmarshal(t *testing.T) {
	var s JobStatus
	if err := json.Unmarshal([]byte(`{"status":"pending","progress":5}`), &s); err != nil {
		t.Fatal(err)
	}
	if s.Status != JobQueued {
		t.Errorf("pending should normalize to queued, got %s", s.Status)
	}
	if s.Warnings == nil || len(s.Warnings) != 0 {
		t.Errorf("warnings should normalize to empty slice, got %#v", s.Warnings)
	}

	// error_message takes precedence; error is the fallback key.
	if err := json.Unmarshal([]byte(`{"status":"failed","error":"boom"}`), &s); err != nil {
		t.Fatal(err)
	}
	if s.ErrorMessage != "boom" {
		t.Errorf("error fallback not applied: %q", s.ErrorMessage)
	}
	if err := json.Unmarshal([]byte(`{"status":"failed","error":"boom","error_message":"detailed"}`), &s); err != nil {
		t.Fatal(err)
	}
	if s.ErrorMessage != "detailed" {
		t.Errorf("error_message should win: %q", s.ErrorMessage)
	}

	if err := json.Unmarshal([]byte(`{"status":"sideways"}`), &s); err == nil {
		t.Error("unknown status should be rejected")
	}
}

func TestGenerateExcelAsync(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Post("/report/generate-excel-async", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Config   json.RawMessage `json:"config"`
				Filename string          `json:"filename"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Errorf("bad body: %v", err)
			}
			if body.Filename != "summary.xlsx" {
				t.Errorf("unexpected filename: %s", body.Filename)
			}
			json.NewEncoder(w).Encode(map[string]any{"success": true, "job_id": "job-1"})
		})
	})

	jobID, err := c.GenerateExcelAsync(context.Background(), json.RawMessage(`{"sheets":[]}`), "summary.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if jobID != "job-1" {
		t.Errorf("got job id %s", jobID)
	}
}

func TestGenerateExcelAsyncRejection(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Post("/report/generate-excel-async", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "invalid config"})
		})
	})

	_, err := c.GenerateExcelAsync(context.Background(), json.RawMessage(`{}`), "x.xlsx")
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("expected rejection error, got %v", err)
	}
}

func TestBuildDownloadURL(t *testing.T) {
	c := New("http://localhost:8000")
	got := c.BuildDownloadURL("weekly report.xlsx")
	want := "http://localhost:8000/report/download/weekly%20report.xlsx"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRunAgent(t *testing.T) {
	var gotBody map[string]any
	c := fakeBackend(t, func(r chi.Router) {
		r.Post("/agent/run", func(w http.ResponseWriter, req *http.Request) {
			json.NewDecoder(req.Body).Decode(&gotBody)
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"output":  map[string]any{"content": `{"sheets":[]}`},
			})
		})
	})

	out, err := c.RunAgent(context.Background(), "build a report")
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"sheets":[]}` {
		t.Errorf("unexpected output: %s", out)
	}
	if gotBody["stream"] != false {
		t.Errorf("stream should be false, got %v", gotBody["stream"])
	}
	input, _ := gotBody["input"].(map[string]any)
	if input == nil {
		t.Fatal("missing input envelope")
	}
	msgs, _ := input["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	m := msgs[0].(map[string]any)
	if m["role"] != "user" || m["content"] != "build a report" {
		t.Errorf("unexpected message: %v", m)
	}
}

func TestRunAgentFailure(t *testing.T) {
	c := fakeBackend(t, func(r chi.Router) {
		r.Post("/agent/run", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "model unavailable"})
		})
	})

	_, err := c.RunAgent(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "model unavailable") {
		t.Errorf("expected agent error, got %v", err)
	}
}
