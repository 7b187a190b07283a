// Package report drives the two-stage report pipeline: AI configuration
// synthesis, then an asynchronous server-side render polled to completion.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Dimkaghb/chocosync/internal/transport"
)

// JobState mirrors the server job lifecycle.
type JobState = transport.JobState

// ErrTimedOut marks a job abandoned after the polling budget ran out. The
// server-side job is not retracted; this is a client-side decision.
var ErrTimedOut = errors.New("report generation timed out")

// ErrEmptyRequest is a validation error: nothing to build a report from.
var ErrEmptyRequest = errors.New("report request has no transcript, documents, or directive")

// Job tracks one report generation from submission to artifact.
type Job struct {
	JobID        string
	Filename     string
	Status       JobState
	Progress     int
	Warnings     []string
	ErrorMessage string
	DownloadURL  string
}

func (j *Job) terminal() bool {
	return j.Status == transport.JobCompleted || j.Status == transport.JobFailed
}

// Request describes what the report is built from.
type Request struct {
	Messages  []Message
	Documents []DocumentInput
	Directive string
	// Filename is optional; when empty a timestamped name is generated.
	// ".xlsx" is appended when missing.
	Filename string
}

// Coordinator runs report jobs.
type Coordinator struct {
	tr *transport.Client
	ai ConfigSynthesizer

	pollInterval time.Duration
	maxPolls     int
	localDir     string

	// OnProgress, when set, observes every job mutation.
	OnProgress func(Job)

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolling overrides the poll interval and attempt budget.
func WithPolling(interval time.Duration, maxPolls int) Option {
	return func(c *Coordinator) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if maxPolls > 0 {
			c.maxPolls = maxPolls
		}
	}
}

// WithLocalFallback renders the workbook locally into dir when the async
// render endpoint rejects the submission.
func WithLocalFallback(dir string) Option {
	return func(c *Coordinator) {
		c.localDir = dir
	}
}

// New creates a Coordinator using the given synthesizer for stage one.
func New(tr *transport.Client, ai ConfigSynthesizer, opts ...Option) *Coordinator {
	c := &Coordinator{
		tr:           tr,
		ai:           ai,
		pollInterval: 5 * time.Second,
		maxPolls:     60,
		sleep:        sleepCtx,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Generate runs both stages. Validation failures surface as errors before
// the job starts; once a job exists, failures are recorded on the returned
// Job rather than thrown. Cancelling ctx aborts polling but does not
// retract the server-side job.
func (c *Coordinator) Generate(ctx context.Context, req Request) (*Job, error) {
	if len(req.Messages) == 0 && len(req.Documents) == 0 && strings.TrimSpace(req.Directive) == "" {
		return nil, ErrEmptyRequest
	}

	prompt := buildPrompt(req.Messages, req.Documents, req.Directive)
	raw, err := c.ai.Synthesize(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("config synthesis: %w", err)
	}
	config, err := ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config synthesis: %w", err)
	}

	filename := c.normalizeFilename(req.Filename)
	return c.render(ctx, config, filename)
}

// GenerateFromConfig skips synthesis and renders a prepared configuration.
func (c *Coordinator) GenerateFromConfig(ctx context.Context, config json.RawMessage, filename string) (*Job, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(config, &probe); err != nil {
		return nil, fmt.Errorf("invalid report config: %w", err)
	}
	return c.render(ctx, config, c.normalizeFilename(filename))
}

func (c *Coordinator) render(ctx context.Context, config json.RawMessage, filename string) (*Job, error) {
	jobID, err := c.tr.GenerateExcelAsync(ctx, config, filename)
	if err != nil {
		if c.localDir == "" {
			return nil, fmt.Errorf("submit render: %w", err)
		}
		slog.Warn("async render unavailable, rendering locally", "err", err)
		return c.renderLocal(config, filename)
	}

	job := &Job{
		JobID:    jobID,
		Filename: filename,
		Status:   transport.JobQueued,
		Warnings: []string{},
	}
	c.report(job)

	slog.Info("report job submitted", "job", jobID, "filename", filename)
	c.poll(ctx, job)
	return job, nil
}

// renderLocal writes the workbook with the in-process renderer. The job
// completes immediately; DownloadURL carries a filesystem path rather
// than a server link.
func (c *Coordinator) renderLocal(config json.RawMessage, filename string) (*Job, error) {
	path := filepath.Join(c.localDir, filename)
	var lr LocalRenderer
	if err := lr.Render(config, path); err != nil {
		return nil, fmt.Errorf("local render: %w", err)
	}

	job := &Job{
		JobID:       "local",
		Filename:    filename,
		Status:      transport.JobCompleted,
		Progress:    100,
		Warnings:    lr.Warnings(),
		DownloadURL: path,
	}
	c.report(job)
	slog.Info("report rendered locally", "path", path)
	return job, nil
}

// poll drives the job to a terminal state: at most maxPolls attempts,
// pollInterval apart. While the server reports processing, progress is a
// linear approximation capped at 90.
func (c *Coordinator) poll(ctx context.Context, job *Job) {
	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			job.Status = transport.JobFailed
			job.ErrorMessage = "report generation cancelled"
			c.report(job)
			return
		}

		status, err := c.tr.GetJobStatus(ctx, job.JobID)
		if err != nil {
			if ctx.Err() != nil {
				job.Status = transport.JobFailed
				job.ErrorMessage = "report generation cancelled"
				c.report(job)
				return
			}
			// A flaky poll is not a job failure; keep going.
			slog.Warn("job status poll failed", "job", job.JobID, "attempt", attempt, "err", err)
			continue
		}

		job.Status = status.Status
		if len(status.Warnings) > 0 {
			job.Warnings = status.Warnings
		}

		switch status.Status {
		case transport.JobCompleted:
			job.Progress = 100
			job.DownloadURL = c.tr.BuildDownloadURL(job.Filename)
			c.report(job)
			slog.Info("report job completed", "job", job.JobID, "polls", attempt)
			return
		case transport.JobFailed:
			job.ErrorMessage = status.ErrorMessage
			if job.ErrorMessage == "" {
				job.ErrorMessage = "report generation failed"
			}
			c.report(job)
			return
		case transport.JobProcessing:
			job.Progress = syntheticProgress(attempt, c.maxPolls)
			c.report(job)
		default:
			// queued: leave progress as-is.
			c.report(job)
		}
	}

	job.Status = transport.JobFailed
	job.ErrorMessage = ErrTimedOut.Error()
	c.report(job)
	slog.Warn("report job timed out", "job", job.JobID, "polls", c.maxPolls)
}

// syntheticProgress approximates progress linearly over the poll budget,
// capped at 90 until the server confirms completion.
func syntheticProgress(attempt, maxPolls int) int {
	p := int(float64(attempt)/float64(maxPolls)*400 + 0.5)
	if p > 90 {
		p = 90
	}
	return p
}

func (c *Coordinator) report(job *Job) {
	if c.OnProgress != nil {
		c.OnProgress(*job)
	}
}

func (c *Coordinator) normalizeFilename(name string) string {
	if name == "" {
		return "report_" + c.now().Format("20060102_150405") + ".xlsx"
	}
	if !strings.HasSuffix(name, ".xlsx") {
		name += ".xlsx"
	}
	return name
}
