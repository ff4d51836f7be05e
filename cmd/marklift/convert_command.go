package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"marklift/internal/conversion"
	"marklift/internal/history"
	"marklift/internal/items"
	"marklift/internal/logging"
	"marklift/internal/realtime"
	"marklift/internal/results"
	"marklift/internal/services"
	"marklift/internal/services/convertapi"
	"marklift/internal/tracker"
)

type convertFlags struct {
	parents       []string
	apiKey        string
	outputDir     string
	crawlDepth    int
	maxPages      int
	includeImages bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "convert [file|url ...]",
		Short: "Convert files and URLs to Markdown",
		Long: `Convert queues the given files and URLs, dispatches them to the
conversion service, waits for every job to finish, and saves the resulting
artifact into the download directory.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, ctx, args, flags)
		},
	}

	cmd.Flags().StringArrayVar(&flags.parents, "parent", nil, "Parent URL whose child pages are crawled and converted (repeatable)")
	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "API key for credential-gated item kinds")
	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", "", "Directory for the converted artifact (defaults to the configured download directory)")
	cmd.Flags().IntVar(&flags.crawlDepth, "crawl-depth", 0, "Crawl depth for parent URLs")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "Page cap for parent URL crawls")
	cmd.Flags().BoolVar(&flags.includeImages, "include-images", false, "Keep image references in the converted Markdown")

	return cmd
}

func runConvert(cmd *cobra.Command, cctx *commandContext, args []string, flags convertFlags) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	if key := strings.TrimSpace(flags.apiKey); key != "" {
		cfg.APIKey = key
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	// One conversion per machine at a time; concurrent runs would race on the
	// download directory and the history database.
	lock := flock.New(filepath.Join(cfg.StateDir, "marklift.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire conversion lock: %w", err)
	}
	if !locked {
		return errors.New("another marklift conversion is already running")
	}
	defer func() { _ = lock.Unlock() }()

	hist, err := history.Open(cfg)
	if err != nil {
		return err
	}
	defer hist.Close()

	opts := items.Options{
		CrawlDepth:    orDefault(flags.crawlDepth, cfg.CrawlDepth),
		MaxPages:      orDefault(flags.maxPages, cfg.MaxPages),
		IncludeImages: flags.includeImages || cfg.IncludeImages,
	}

	channel := realtime.NewClient(cfg.RealtimeURL, logger)
	api := convertapi.New(cfg.APIBaseURL, cfg.Timeout(), logger)
	store := results.NewStore()

	updates := make(chan conversion.State, 64)
	mgr := conversion.NewManager(conversion.Deps{
		API:     api,
		Channel: conversion.RealtimeChannel(channel),
		Store:   store,
		Normalizer: items.Normalizer{
			Limits: items.Limits{
				MaxFileBytes:  cfg.MaxFileBytes(),
				MaxVideoBytes: cfg.MaxVideoBytes(),
			},
			HasCredential: cfg.HasCredential(),
		},
		Credential: cfg.APIKey,
		OnState: func(state conversion.State) {
			select {
			case updates <- state:
			default:
			}
		},
		Logger: logger,
	})

	out := cmd.OutOrStdout()
	for _, arg := range args {
		if looksLikeURL(arg) {
			_, added, err := mgr.AddURL(arg, false, opts)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(out, "Skipping duplicate URL %s\n", arg)
			}
			continue
		}
		if _, err := mgr.AddFile(arg, opts); err != nil {
			return err
		}
	}
	for _, parent := range flags.parents {
		_, added, err := mgr.AddURL(parent, true, opts)
		if err != nil {
			return err
		}
		if !added {
			fmt.Fprintf(out, "Skipping duplicate URL %s\n", parent)
		}
	}
	queued := mgr.Items()
	if len(queued) == 0 {
		return services.NewValidationError(services.CodeNoItems, "", "nothing to convert; pass files, URLs, or --parent")
	}
	fmt.Fprintf(out, "Converting %d items:\n", len(queued))
	for _, item := range queued {
		fmt.Fprintf(out, "  %-10s %s\n", item.Kind, itemLabel(item.Name))
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := channel.Open(runCtx); err != nil {
		return fmt.Errorf("open realtime channel: %w", err)
	}
	defer channel.Close()

	if err := mgr.Start(runCtx); err != nil {
		return err
	}

	state := waitForCompletion(runCtx, mgr, updates, out)

	var artifactBytes int
	if result := store.Get(); result != nil {
		artifactBytes = len(result.Payload)
	}
	recordHistory(context.Background(), hist, mgr, artifactBytes, logger)

	switch state.Status {
	case conversion.StatusCancelled:
		fmt.Fprintln(out, "Conversion cancelled")
		return nil
	case conversion.StatusError:
		return errors.New(state.Message)
	}

	if store.Get() == nil {
		return fmt.Errorf("no artifact produced; %d of %d jobs failed", state.ErrorCount, state.TotalJobs)
	}

	dir := strings.TrimSpace(flags.outputDir)
	if dir == "" {
		dir = cfg.DownloadDir
	}
	path, err := mgr.Download(dir)
	if err != nil {
		return err
	}
	if state.ErrorCount > 0 {
		fmt.Fprintf(out, "Warning: %d of %d jobs failed; the artifact covers the rest\n", state.ErrorCount, state.TotalJobs)
	}
	fmt.Fprintf(out, "Saved %s\n", path)
	return nil
}

// waitForCompletion renders progress until the run reaches a terminal state,
// cancelling on interrupt. The ticker backstops dropped update notifications.
func waitForCompletion(ctx context.Context, mgr *conversion.Manager, updates <-chan conversion.State, out io.Writer) conversion.State {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	state := mgr.State()
	var lastLine string
	for !state.Status.Terminal() {
		select {
		case <-ctx.Done():
			mgr.Cancel()
			state = mgr.State()
		case state = <-updates:
		case <-ticker.C:
			state = mgr.State()
		}
		if state.Status == conversion.StatusProcessing {
			line := fmt.Sprintf("\rConverting… %3.0f%% (%d/%d jobs done)", state.Progress, state.CompletedCount+state.ErrorCount, state.TotalJobs)
			if line != lastLine {
				fmt.Fprint(out, line)
				lastLine = line
			}
		}
	}
	if lastLine != "" {
		fmt.Fprintln(out)
	}
	return state
}

func recordHistory(ctx context.Context, store *history.Store, mgr *conversion.Manager, artifactBytes int, logger *slog.Logger) {
	jobByItem := make(map[string]string)
	for _, job := range mgr.Jobs() {
		for _, id := range job.ItemIDs {
			jobByItem[id] = job.JobID
		}
	}

	states := mgr.ItemStates()
	for _, item := range mgr.Items() {
		status := states[item.ID]
		if status == "" {
			status = tracker.StatusQueued
		}
		rec := &history.Record{
			SessionID: mgr.SessionID(),
			JobID:     jobByItem[item.ID],
			ItemName:  item.Name,
			Kind:      string(item.Kind),
			Status:    string(status),
		}
		if status == tracker.StatusCompleted {
			rec.Bytes = int64(artifactBytes)
		}
		if err := store.Add(ctx, rec); err != nil {
			logger.Warn("record conversion history", "error", err)
		}
	}
}

func orDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
