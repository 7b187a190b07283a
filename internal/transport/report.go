package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// JobState is the server-reported lifecycle state of a report job.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// normalizeJobState maps the backend's vocabulary onto the canonical set.
// Unknown values are rejected rather than coerced.
func normalizeJobState(s string) (JobState, error) {
	switch s {
	case "pending", "queued":
		return JobQueued, nil
	case "processing":
		return JobProcessing, nil
	case "completed":
		return JobCompleted, nil
	case "failed":
		return JobFailed, nil
	default:
		return "", fmt.Errorf("unknown job status %q", s)
	}
}

// JobStatus is one poll result for a report job.
type JobStatus struct {
	Status       JobState
	Progress     int
	Warnings     []string
	ErrorMessage string
}

type jobStatusWire struct {
	Status       string   `json:"status"`
	Progress     int      `json:"progress"`
	Warnings     []string `json:"warnings"`
	Error        string   `json:"error"`
	ErrorMessage string   `json:"error_message"`
}

func (j *JobStatus) UnmarshalJSON(data []byte) error {
	var w jobStatusWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	state, err := normalizeJobState(w.Status)
	if err != nil {
		return err
	}
	j.Status = state
	j.Progress = w.Progress
	j.Warnings = w.Warnings
	if j.Warnings == nil {
		j.Warnings = []string{}
	}
	j.ErrorMessage = w.ErrorMessage
	if j.ErrorMessage == "" {
		j.ErrorMessage = w.Error
	}
	return nil
}

// GenerateExcelAsync submits a report configuration for rendering and
// returns the job identifier.
func (c *Client) GenerateExcelAsync(ctx context.Context, config json.RawMessage, filename string) (string, error) {
	req := struct {
		Config   json.RawMessage `json:"config"`
		Filename string          `json:"filename"`
	}{Config: config, Filename: filename}

	var resp struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
		Error   string `json:"error"`
	}
	if err := c.doJSON(ctx, c.std, http.MethodPost, "/report/generate-excel-async", "", req, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.JobID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("/report/generate-excel-async: %s", resp.Error)
		}
		return "", fmt.Errorf("/report/generate-excel-async: no job id returned")
	}
	return resp.JobID, nil
}

// GetJobStatus polls a report job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	if err := c.doJSON(ctx, c.std, http.MethodGet, "/report/job-status/"+jobID, "", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// BuildDownloadURL composes the artifact download link for a filename.
func (c *Client) BuildDownloadURL(filename string) string {
	return c.baseURL + "/report/download/" + url.PathEscape(filename)
}

// RunAgent sends a prompt to the AI agent endpoint and returns the raw
// response text. Callers treat the result as JSON-bearing text.
func (c *Client) RunAgent(ctx context.Context, prompt string) (string, error) {
	req := map[string]any{
		"input": map[string]any{
			"messages": []map[string]string{{"role": "user", "content": prompt}},
		},
		"stream": false,
	}

	var resp struct {
		Success bool `json:"success"`
		Output  *struct {
			Content string `json:"content"`
		} `json:"output"`
		Error string `json:"error"`
	}
	httpReq, err := jsonRequest(ctx, http.MethodPost, c.agentURL, req)
	if err != nil {
		return "", fmt.Errorf("agent run: %w", err)
	}
	if err := c.send(c.upload, httpReq, "agent run", &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.Output == nil {
		if resp.Error != "" {
			return "", fmt.Errorf("agent run: %s", resp.Error)
		}
		return "", fmt.Errorf("agent run: empty response")
	}
	return resp.Output.Content, nil
}
