package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Resyncer periodically re-reconciles the current conversation and
// refreshes signed download links that are close to expiry. Presigned URLs
// are short-lived; without refresh a long session ends up holding dead
// links.
type Resyncer struct {
	store *Store
	token func() string
	cron  *cron.Cron
}

// NewResyncer creates a Resyncer driven by the given cron expression.
// token is consulted at every tick so rotated credentials take effect.
func NewResyncer(store *Store, expr, timezone string, token func() string) (*Resyncer, error) {
	sched, err := parseCronExpr(expr, timezone)
	if err != nil {
		return nil, fmt.Errorf("parse resync schedule: %w", err)
	}

	r := &Resyncer{
		store: store,
		token: token,
		cron:  cron.New(),
	}
	r.cron.Schedule(sched, cron.FuncJob(r.tick))
	return r, nil
}

// Start begins scheduling ticks.
func (r *Resyncer) Start() { r.cron.Start() }

// Stop halts scheduling and waits for a running tick to finish.
func (r *Resyncer) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Resyncer) tick() {
	r.store.mu.Lock()
	current := r.store.current
	r.store.mu.Unlock()
	if current == "" {
		return
	}

	tok := r.token()
	if tok == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := r.store.LoadConversation(ctx, current, tok); err != nil {
		slog.Warn("scheduled resync failed", "chat", current, "err", err)
		return
	}
	r.refreshLinks(ctx, current, tok)
}

// refreshLinks re-fetches metadata for stored documents so their signed
// download links stay valid.
func (r *Resyncer) refreshLinks(ctx context.Context, conversationID, token string) {
	for _, d := range r.store.Documents(conversationID) {
		if d.Metadata == nil {
			continue
		}
		meta, err := r.store.tr.GetMetadata(ctx, d.Metadata.ID, token)
		if err != nil {
			slog.Warn("link refresh failed", "file", d.Name, "err", err)
			continue
		}
		r.store.mutate(d.ID, func(doc *Document) {
			doc.Metadata = meta
			if meta.DownloadURL != "" {
				doc.URL = meta.DownloadURL
			}
		})
	}
}

// parseCronExpr tries 6-field (with seconds) then 5-field (standard)
// parsing. A non-UTC timezone is applied via the CRON_TZ= prefix.
func parseCronExpr(expr, timezone string) (cron.Schedule, error) {
	if timezone != "" && timezone != "UTC" {
		expr = "CRON_TZ=" + timezone + " " + expr
	}
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser6.Parse(expr); err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser5.Parse(expr)
}
