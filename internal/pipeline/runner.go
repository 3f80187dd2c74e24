package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/playergen/playergen/internal/generate"
	"github.com/playergen/playergen/internal/publish"
	"github.com/playergen/playergen/internal/track"
)

// Fetcher downloads a source image into dir and returns the local path.
type Fetcher interface {
	Download(ctx context.Context, url, dir string, playerID int64) (string, error)
}

// RunnerConfig carries the per-run parameters shared by every item.
type RunnerConfig struct {
	OutputDir   string
	Prompt      string
	Style       string
	Mode        string
	SessionPath string
}

// Runner drives each work item through pending → processing → terminal,
// one item at a time. Item failures never abort the batch; the tracking
// store write happens before every risky external call so an interrupted
// run is repairable by Recover on the next invocation.
type Runner struct {
	store     track.Store
	fetcher   Fetcher
	generator generate.Generator
	publisher publish.Publisher
	fs        afero.Fs
	cfg       RunnerConfig
}

func NewRunner(store track.Store, fetcher Fetcher, gen generate.Generator, pub publish.Publisher, fs afero.Fs, cfg RunnerConfig) *Runner {
	return &Runner{
		store:     store,
		fetcher:   fetcher,
		generator: gen,
		publisher: pub,
		fs:        fs,
		cfg:       cfg,
	}
}

// Recover demotes records stuck in processing by a previous interrupted
// run. Must be called once before Resolve: processing is never a valid
// starting state.
func (r *Runner) Recover(ctx context.Context) (int64, error) {
	n, err := r.store.ResetStuckProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("crash recovery: %w", err)
	}
	if n > 0 {
		slog.Warn("recovered records stuck in processing", "count", n)
	}
	return n, nil
}

// Run processes the work list sequentially and returns the run summary.
func (r *Runner) Run(ctx context.Context, list *WorkList) Summary {
	sum := Summary{
		TotalFetched:     list.TotalFetched,
		SkippedCompleted: list.SkippedCompleted,
		SkippedFailed:    list.SkippedFailed,
		SkippedNoImage:   list.SkippedNoImage,
	}

	for i, item := range list.Items {
		slog.Info("processing player",
			"player_id", item.PlayerID,
			"name", item.Label,
			"progress", fmt.Sprintf("%d/%d", i+1, len(list.Items)),
		)

		sum.Processed++
		if err := r.processItem(ctx, item); err != nil {
			sum.Failed++
		} else {
			sum.Succeeded++
		}
	}
	return sum
}

func (r *Runner) processItem(ctx context.Context, item WorkItem) error {
	id := item.PlayerID

	// Record intent durably before any external call.
	if err := r.store.UpsertPending(ctx, id, item.ImageURL, r.cfg.Style, r.cfg.Mode); err != nil {
		return r.fail(ctx, id, "track", err)
	}
	if err := r.store.MarkProcessing(ctx, id); err != nil {
		return r.fail(ctx, id, "track", err)
	}

	start := time.Now()

	srcPath, err := r.fetcher.Download(ctx, item.ImageURL, r.cfg.OutputDir, id)
	if err != nil {
		return r.fail(ctx, id, "download", err)
	}

	outPath := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("%d_generated.png", id))
	err = r.generator.Generate(ctx, generate.Request{
		InputPath:   srcPath,
		OutputPath:  outPath,
		Prompt:      r.cfg.Prompt,
		Style:       r.cfg.Style,
		Mode:        r.cfg.Mode,
		SessionPath: r.cfg.SessionPath,
	})
	if err != nil {
		return r.fail(ctx, id, "generate", err)
	}

	// The generator reporting success is not enough: the declared output
	// must actually exist.
	exists, err := afero.Exists(r.fs, outPath)
	if err != nil || !exists {
		if err == nil {
			err = fmt.Errorf("output file not created: %s", outPath)
		}
		return r.fail(ctx, id, "verify", err)
	}

	// Generation time covers download + generate, not publishing.
	duration := math.Round(time.Since(start).Seconds()*100) / 100

	resultURL, err := r.publisher.Publish(ctx, outPath, id)
	if err != nil {
		return r.fail(ctx, id, "publish", err)
	}

	if err := r.store.MarkCompleted(ctx, id, outPath, duration, resultURL); err != nil {
		return r.fail(ctx, id, "track", err)
	}

	// Best-effort cleanup of the downloaded source image.
	if err := r.fs.Remove(srcPath); err != nil {
		slog.Warn("cleanup failed", "player_id", id, "path", srcPath, "error", err)
	}

	slog.Info("completed player", "player_id", id, "duration_seconds", duration, "result_url", resultURL)
	return nil
}

// fail converts a stage error into a tracking mutation plus a best-effort
// diagnostic file. It never panics and never aborts the batch.
func (r *Runner) fail(ctx context.Context, id int64, stage string, cause error) error {
	msg := fmt.Sprintf("%s: %v", stage, cause)

	if err := r.store.MarkFailed(ctx, id, msg); err != nil {
		slog.Error("mark failed", "player_id", id, "error", err)
	}
	r.writeDiagnostic(id, msg)

	slog.Warn("player failed", "player_id", id, "stage", stage, "error", cause)
	return cause
}

// writeDiagnostic drops <id>_error.txt next to the outputs. Diagnostics
// must never produce a new failure of their own.
func (r *Runner) writeDiagnostic(id int64, msg string) {
	path := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("%d_error.txt", id))
	if err := afero.WriteFile(r.fs, path, []byte(msg+"\n"), 0o644); err != nil {
		slog.Debug("diagnostic write failed", "player_id", id, "error", err)
	}
}
