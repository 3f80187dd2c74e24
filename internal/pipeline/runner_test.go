package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playergen/playergen/internal/generate"
	"github.com/playergen/playergen/internal/track"
)

type fakeFetcher struct {
	fs      afero.Fs
	failIDs map[int64]error
}

func (f *fakeFetcher) Download(ctx context.Context, url, dir string, playerID int64) (string, error) {
	if err := f.failIDs[playerID]; err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d_source.png", playerID))
	if err := afero.WriteFile(f.fs, path, []byte("source"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeGenerator struct {
	fs          afero.Fs
	failOutputs map[string]error
	skipWrite   map[string]bool
	requests    []generate.Request
}

func (g *fakeGenerator) Generate(ctx context.Context, req generate.Request) error {
	g.requests = append(g.requests, req)
	if err := g.failOutputs[req.OutputPath]; err != nil {
		return err
	}
	if g.skipWrite[req.OutputPath] {
		return nil
	}
	return afero.WriteFile(g.fs, req.OutputPath, []byte("generated"), 0o644)
}

type fakePublisher struct {
	failIDs map[int64]error
}

func (p *fakePublisher) Publish(ctx context.Context, localPath string, playerID int64) (string, error) {
	if err := p.failIDs[playerID]; err != nil {
		return "", err
	}
	return fmt.Sprintf("https://cdn.example/image_pipeline/%d.png", playerID), nil
}

type runnerHarness struct {
	store     *track.SQLiteStore
	fs        afero.Fs
	fetcher   *fakeFetcher
	generator *fakeGenerator
	publisher *fakePublisher
	runner    *Runner
}

func newRunnerHarness(t *testing.T) *runnerHarness {
	t.Helper()
	store, err := track.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fs := afero.NewMemMapFs()
	h := &runnerHarness{
		store:     store,
		fs:        fs,
		fetcher:   &fakeFetcher{fs: fs, failIDs: map[int64]error{}},
		generator: &fakeGenerator{fs: fs, failOutputs: map[string]error{}, skipWrite: map[string]bool{}},
		publisher: &fakePublisher{failIDs: map[int64]error{}},
	}
	h.runner = NewRunner(store, h.fetcher, h.generator, h.publisher, fs, RunnerConfig{
		OutputDir:   "/out",
		Prompt:      "styled portrait",
		Style:       "Photo",
		Mode:        "General",
		SessionPath: "/session.json",
	})
	return h
}

func workList(ids ...int64) *WorkList {
	list := &WorkList{TotalFetched: len(ids)}
	for _, id := range ids {
		list.Items = append(list.Items, WorkItem{
			PlayerID: id,
			ImageURL: fmt.Sprintf("https://img.example/%d.png", id),
		})
	}
	return list
}

func TestRun_Success(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)

	sum := h.runner.Run(ctx, workList(1))
	assert.Equal(t, Summary{TotalFetched: 1, Processed: 1, Succeeded: 1}, sum)

	rec, err := h.store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, track.StatusCompleted, rec.Status)
	assert.Equal(t, "/out/1_generated.png", rec.OutputPath)
	assert.Equal(t, "https://cdn.example/image_pipeline/1.png", rec.ResultURL)
	require.NotNil(t, rec.Duration)
	assert.GreaterOrEqual(t, *rec.Duration, 0.0)
	assert.NoError(t, rec.Validate())

	// The downloaded source image is cleaned up, the output kept.
	srcExists, _ := afero.Exists(h.fs, "/out/1_source.png")
	assert.False(t, srcExists)
	outExists, _ := afero.Exists(h.fs, "/out/1_generated.png")
	assert.True(t, outExists)

	// Session handle is threaded through to the generator.
	require.Len(t, h.generator.requests, 1)
	assert.Equal(t, "/session.json", h.generator.requests[0].SessionPath)
}

func TestRun_FailureDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)
	h.generator.failOutputs["/out/2_generated.png"] = errors.New("session expired")

	sum := h.runner.Run(ctx, workList(1, 2, 3))

	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, sum.Processed, sum.Succeeded+sum.Failed)

	for _, id := range []int64{1, 3} {
		rec, err := h.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, track.StatusCompleted, rec.Status, "player %d", id)
	}

	rec, err := h.store.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, track.StatusFailed, rec.Status)
	assert.Equal(t, 1, rec.RetryCount)
	require.Len(t, rec.ErrorLog, 1)
	assert.True(t, strings.HasPrefix(rec.ErrorLog[0], "generate: "), "error %q", rec.ErrorLog[0])

	// Diagnostic file is written best-effort for the failed item.
	diagExists, _ := afero.Exists(h.fs, "/out/2_error.txt")
	assert.True(t, diagExists)
}

func TestRun_DownloadFailure(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)
	h.fetcher.failIDs[1] = errors.New("connection refused")

	sum := h.runner.Run(ctx, workList(1))
	assert.Equal(t, 1, sum.Failed)

	rec, err := h.store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, track.StatusFailed, rec.Status)
	assert.True(t, strings.HasPrefix(rec.ErrorLog[0], "download: "))
}

func TestRun_MissingOutputIsVerifyFailure(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)
	h.generator.skipWrite["/out/1_generated.png"] = true

	sum := h.runner.Run(ctx, workList(1))
	assert.Equal(t, 1, sum.Failed)

	rec, err := h.store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, track.StatusFailed, rec.Status)
	assert.True(t, strings.HasPrefix(rec.ErrorLog[0], "verify: "), "error %q", rec.ErrorLog[0])
}

func TestRun_PublishFailure(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)
	h.publisher.failIDs[1] = errors.New("access denied")

	sum := h.runner.Run(ctx, workList(1))
	assert.Equal(t, 1, sum.Failed)

	rec, err := h.store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, track.StatusFailed, rec.Status)
	assert.True(t, strings.HasPrefix(rec.ErrorLog[0], "publish: "))
}

func TestRun_SummaryArithmetic(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)
	h.generator.failOutputs["/out/3_generated.png"] = errors.New("boom")

	list := workList(1, 3)
	list.TotalFetched = 5
	list.SkippedCompleted = 1
	list.SkippedFailed = 1
	list.SkippedNoImage = 1

	sum := h.runner.Run(ctx, list)
	assert.Equal(t, sum.Succeeded+sum.Failed, sum.Processed)
	assert.Equal(t, sum.TotalFetched,
		len(list.Items)+sum.SkippedCompleted+sum.SkippedFailed+sum.SkippedNoImage)
}

func TestRecover_DemotesStuckProcessing(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)

	require.NoError(t, h.store.UpsertPending(ctx, 8, "u", "Photo", "General"))
	require.NoError(t, h.store.MarkProcessing(ctx, 8))

	n, err := h.runner.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := h.store.Get(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, track.StatusFailed, rec.Status)
	assert.Equal(t, 1, rec.RetryCount)
	require.Len(t, rec.ErrorLog, 1)
	assert.Equal(t, track.StuckMessage, rec.ErrorLog[0])
}

func TestRecover_CrashedThenRetried(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)

	// A prior run died after MarkProcessing.
	require.NoError(t, h.store.UpsertPending(ctx, 9, "https://img.example/9.png", "Photo", "General"))
	require.NoError(t, h.store.MarkProcessing(ctx, 9))

	_, err := h.runner.Recover(ctx)
	require.NoError(t, err)

	// The demoted record is now eligible for a retry pass and completes.
	list, err := Resolve(ctx, Scope{RetryFailed: true, MaxRetries: 3}, &fakeProvider{}, h.store)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)

	sum := h.runner.Run(ctx, list)
	assert.Equal(t, 1, sum.Succeeded)

	rec, err := h.store.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, track.StatusCompleted, rec.Status)
	// History survives the retry: the crash still counts one retry.
	assert.Equal(t, 1, rec.RetryCount)
	require.Len(t, rec.ErrorLog, 1)
}

func TestSummaryString(t *testing.T) {
	s := Summary{TotalFetched: 4, SkippedCompleted: 1, Processed: 3, Succeeded: 2, Failed: 1}
	out := s.String()
	assert.Contains(t, out, "PIPELINE SUMMARY")
	assert.Contains(t, out, "total_fetched: 4")
	assert.Contains(t, out, "succeeded: 2")
	assert.Contains(t, out, "failed: 1")
}
