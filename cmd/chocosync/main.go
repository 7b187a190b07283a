package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Dimkaghb/chocosync/internal/auth"
	"github.com/Dimkaghb/chocosync/internal/config"
	"github.com/Dimkaghb/chocosync/internal/docstore"
	"github.com/Dimkaghb/chocosync/internal/folders"
	"github.com/Dimkaghb/chocosync/internal/report"
	"github.com/Dimkaghb/chocosync/internal/snapshot"
	"github.com/Dimkaghb/chocosync/internal/transport"
	"github.com/Dimkaghb/chocosync/internal/uploader"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	app, err := newApp(cfg)
	if err != nil {
		slog.Error("startup error", "err", err)
		os.Exit(1)
	}
	defer app.store.Close()

	switch os.Args[1] {
	case "upload":
		err = app.upload(os.Args[2:])
	case "list":
		err = app.list(os.Args[2:])
	case "folders":
		err = app.listFolders()
	case "report":
		err = app.report(os.Args[2:])
	case "sync":
		err = app.sync(os.Args[2:])
	default:
		usage()
		return
	}
	if err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("chocosync v0.1.0")
	fmt.Println("Usage:")
	fmt.Println("  chocosync upload <file> [-chat id]")
	fmt.Println("  chocosync list [-chat id]")
	fmt.Println("  chocosync folders")
	fmt.Println("  chocosync report [-prompt text] [-chat id]")
	fmt.Println("  chocosync sync -chat id")
}

type app struct {
	cfg     *config.Config
	tr      *transport.Client
	store   *docstore.Store
	folders *folders.Coordinator
	reports *report.Coordinator
	tokens  *auth.TokenSource
}

func newApp(cfg *config.Config) (*app, error) {
	trOpts := []transport.Option{
		transport.WithTimeouts(
			cfg.API.RequestTimeout, cfg.API.UploadTimeout,
			cfg.API.StorageTimeout, cfg.API.HealthTimeout),
	}
	if cfg.API.AIAgentURL != "" {
		trOpts = append(trOpts, transport.WithAgentURL(cfg.API.AIAgentURL))
	}
	tr := transport.New(cfg.API.BaseURL, trOpts...)
	up := uploader.New(tr)

	snapStore, err := buildSnapshotStore(cfg)
	if err != nil {
		return nil, err
	}

	storeOpts := []docstore.Option{
		docstore.WithFetchLimit(cfg.Sync.FetchLimit),
		docstore.WithListPageSize(cfg.Sync.ListPageSize),
		docstore.WithDebounce(cfg.Snapshot.Debounce),
	}
	if snapStore != nil {
		storeOpts = append(storeOpts, docstore.WithSnapshot(snapStore))
	}
	if cfg.API.AIAgentURL != "" {
		storeOpts = append(storeOpts, docstore.WithAIAPIURL(cfg.API.AIAgentURL))
	}
	store := docstore.New(tr, up, storeOpts...)

	var synth report.ConfigSynthesizer = report.NewAgentSynthesizer(tr)
	if cfg.Report.GeminiAPIKey != "" {
		synth = report.NewGeminiSynthesizer(cfg.Report.GeminiAPIKey, cfg.Report.GeminiModel)
	}

	return &app{
		cfg:     cfg,
		tr:      tr,
		store:   store,
		folders: folders.New(tr, up, store),
		reports: report.New(tr, synth,
			report.WithPolling(cfg.Report.PollInterval, cfg.Report.MaxPolls),
			report.WithLocalFallback(".")),
		tokens: auth.NewTokenSource(cfg.Snapshot.TokenPath),
	}, nil
}

func buildSnapshotStore(cfg *config.Config) (snapshot.Store, error) {
	if cfg.Snapshot.Path == "" {
		return nil, nil
	}
	fileStore := snapshot.NewFileStore(cfg.Snapshot.Path)
	if cfg.Snapshot.DatabaseURL == "" {
		return fileStore, nil
	}
	pgStore, err := snapshot.NewPostgresStore(context.Background(), cfg.Snapshot.DatabaseURL)
	if err != nil {
		slog.Warn("postgres snapshot mirror unavailable, file only", "err", err)
		return fileStore, nil
	}
	return snapshot.NewDualStore(fileStore, pgStore), nil
}

func (a *app) token() string {
	tok := a.tokens.Token()
	if tok != "" && auth.Expired(tok) {
		slog.Warn("bearer token is expired; continuing offline")
		return ""
	}
	return tok
}

func (a *app) upload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	chat := fs.String("chat", "default", "conversation id")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("upload: missing file argument")
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := a.store.Upload(context.Background(), transport.File{
		Name: filepath.Base(path),
		MIME: mimeFor(path),
		Data: data,
	}, *chat, docstore.SourceChat, a.token())
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s  %d bytes  status=%s\n", doc.ID, doc.Name, doc.Size, doc.Status)
	return nil
}

func (a *app) list(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	chat := fs.String("chat", "default", "conversation id")
	fs.Parse(args)

	if err := a.store.LoadConversation(context.Background(), *chat, a.token()); err != nil {
		return err
	}
	for _, d := range a.store.Documents(*chat) {
		fmt.Printf("%-24s %-32s %8d  %s\n", d.ID, d.Name, d.Size, d.Status)
	}
	return nil
}

func (a *app) listFolders() error {
	list, err := a.folders.List(context.Background(), a.token())
	if err != nil {
		return err
	}
	for _, f := range list {
		fmt.Printf("%-24s %-32s %d files\n", f.ID, f.Name, f.Count())
	}
	return nil
}

func (a *app) report(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	prompt := fs.String("prompt", "", "additional directive for the report")
	chat := fs.String("chat", "default", "conversation id")
	fs.Parse(args)

	ctx := context.Background()
	if err := a.store.LoadConversation(ctx, *chat, a.token()); err != nil {
		slog.Warn("could not load conversation documents", "err", err)
	}

	var docs []report.DocumentInput
	for _, d := range a.store.Documents(*chat) {
		docs = append(docs, report.DocumentInput{
			Name:      d.Name,
			Content:   d.Content,
			Processed: d.ProcessedData,
		})
	}

	a.reports.OnProgress = func(j report.Job) {
		slog.Info("report progress", "job", j.JobID, "status", j.Status, "progress", j.Progress)
	}
	job, err := a.reports.Generate(ctx, report.Request{
		Documents: docs,
		Directive: *prompt,
	})
	if err != nil {
		return err
	}
	if job.ErrorMessage != "" {
		return fmt.Errorf("report failed: %s", job.ErrorMessage)
	}
	fmt.Printf("report ready: %s\n", job.DownloadURL)
	return nil
}

func (a *app) sync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	chat := fs.String("chat", "default", "conversation id")
	fs.Parse(args)

	ctx := context.Background()
	a.store.SetCurrentConversation(ctx, *chat, a.token())

	schedule := a.cfg.Sync.Schedule
	if schedule == "" {
		schedule = "@every 5m"
	}
	resyncer, err := docstore.NewResyncer(a.store, schedule, a.cfg.Sync.Timezone, a.token)
	if err != nil {
		return err
	}
	resyncer.Start()
	defer resyncer.Stop()

	slog.Info("syncing", "chat", *chat, "schedule", schedule)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	slog.Info("shutting down")
	return nil
}

func mimeFor(path string) string {
	switch filepath.Ext(path) {
	case ".txt", ".log", ".md":
		return "text/plain"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
