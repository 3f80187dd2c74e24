// Package cli wires the playergen command line to the pipeline core.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/playergen/playergen/internal/config"
	"github.com/playergen/playergen/internal/fetch"
	"github.com/playergen/playergen/internal/generate"
	"github.com/playergen/playergen/internal/pipeline"
	"github.com/playergen/playergen/internal/publish"
	"github.com/playergen/playergen/internal/source"
	"github.com/playergen/playergen/internal/track"
)

type options struct {
	limit       int
	playerIDs   string
	filterJSON  string
	style       string
	mode        string
	promptFile  string
	outputDir   string
	retryFailed bool
	maxRetries  int
	verbose     bool
}

// NewRootCmd builds the playergen root command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "playergen",
		Short:         "Batch pipeline: generate styled images for players",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.Flags().Changed("max-retries"))
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.limit, "limit", 0, "max players to process (0 = all)")
	f.StringVar(&opts.playerIDs, "player-ids", "", "comma-separated player ids to process")
	f.StringVar(&opts.filterJSON, "filter", "", `JSON candidate filter (e.g. '{"position": "Goalkeeper"}')`)
	f.StringVar(&opts.style, "style", "Photo", "style preset")
	f.StringVar(&opts.mode, "mode", "General", "edit mode")
	f.StringVar(&opts.promptFile, "prompt-file", "MASTER_PROMPT.txt", "path to the master prompt file")
	f.StringVar(&opts.outputDir, "output-dir", "", "output directory (overrides PLAYERGEN_OUTPUT_DIR)")
	f.BoolVar(&opts.retryFailed, "retry-failed", false, "retry previously failed players instead of fetching new")
	f.IntVar(&opts.maxRetries, "max-retries", 3, "max retry attempts for failed players")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

// Execute runs the CLI. Per-item failures are reported through the summary
// and the tracking store, not the exit code; only setup errors are fatal.
func Execute() error {
	return NewRootCmd().Execute()
}

func run(ctx context.Context, opts *options, maxRetriesSet bool) error {
	setupLogging(opts.verbose)

	ids, err := parsePlayerIDs(opts.playerIDs)
	if err != nil {
		return fmt.Errorf("invalid --player-ids: %w", err)
	}
	filter, err := parseFilter(opts.filterJSON)
	if err != nil {
		return fmt.Errorf("invalid --filter: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if maxRetriesSet {
		cfg.MaxRetries = opts.maxRetries
	}

	fs := afero.NewOsFs()

	prompt, err := readMasterPrompt(fs, opts.promptFile)
	if err != nil {
		return err
	}

	if err := fs.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	store, err := track.NewSQLiteStore(cfg.TrackingDBPath)
	if err != nil {
		return fmt.Errorf("tracking store: %w", err)
	}
	defer store.Close()

	// A retry run never consults the source database: the stored source
	// URLs substitute for a fresh lookup.
	var provider source.Provider
	if !opts.retryFailed {
		sp, err := source.NewSQLiteProvider(cfg.SourceDBPath)
		if err != nil {
			return fmt.Errorf("source db: %w", err)
		}
		defer sp.Close()
		provider = sp
	}

	var publisher publish.Publisher = publish.Noop{}
	if cfg.PublishEnabled() {
		publisher, err = publish.NewSpacesPublisher(ctx, cfg.Spaces, fs)
		if err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
	} else {
		slog.Info("no bucket configured, running local-only")
	}

	runner := pipeline.NewRunner(
		store,
		fetch.NewClient(fs),
		generate.NewDriver(cfg.GeneratorPath),
		publisher,
		fs,
		pipeline.RunnerConfig{
			OutputDir:   cfg.OutputDir,
			Prompt:      prompt,
			Style:       opts.style,
			Mode:        opts.mode,
			SessionPath: cfg.SessionPath,
		},
	)

	if _, err := runner.Recover(ctx); err != nil {
		return err
	}

	scope := pipeline.Scope{
		RetryFailed: opts.retryFailed,
		MaxRetries:  cfg.MaxRetries,
		IDs:         ids,
		Filter:      filter,
		Limit:       opts.limit,
	}
	list, err := pipeline.Resolve(ctx, scope, provider, store)
	if err != nil {
		return err
	}

	slog.Info("work list resolved",
		"total_fetched", list.TotalFetched,
		"to_process", len(list.Items),
		"skipped_completed", list.SkippedCompleted,
		"skipped_failed", list.SkippedFailed,
		"skipped_no_image", list.SkippedNoImage,
	)

	sum := runner.Run(ctx, list)
	fmt.Println("\n" + sum.String())
	return nil
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("run_id", uuid.New().String()[:8])
	slog.SetDefault(logger)
}

// readMasterPrompt loads the prompt file; a missing or blank prompt is a
// setup-fatal error, no item is touched.
func readMasterPrompt(fs afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("read prompt file %s: %w", path, err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s is empty", path)
	}
	return prompt, nil
}

func parsePlayerIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad player id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseFilter decodes the --filter JSON object into column=value terms.
// String and number values are accepted; anything nested is rejected.
func parseFilter(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	filter := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			filter[k] = val
		case float64:
			filter[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("filter value for %q must be a string or number", k)
		}
	}
	return filter, nil
}
