// Package pipeline contains the batch core: work-list resolution, crash
// recovery, the sequential job executor and run summaries.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/playergen/playergen/internal/source"
	"github.com/playergen/playergen/internal/track"
)

// Scope selects which players a run should process.
type Scope struct {
	// RetryFailed switches the run to reprocessing failed records with
	// retry_count < MaxRetries instead of fetching from the source.
	RetryFailed bool
	MaxRetries  int
	// IDs, when non-empty, restricts the run to these players.
	IDs []int64
	// Filter is a column=value candidate filter applied at the source.
	Filter map[string]string
	// Limit caps the candidate fetch; <= 0 means all.
	Limit int
}

// WorkItem is one resolved unit of work.
type WorkItem struct {
	PlayerID int64
	ImageURL string
	Label    string
}

// WorkList is the resolver output: the ordered items to process plus the
// disjoint skip counts for everything that was considered and excluded.
type WorkList struct {
	Items            []WorkItem
	TotalFetched     int
	SkippedCompleted int
	SkippedFailed    int
	SkippedNoImage   int
}

// Resolve computes the work list for scope against the current store
// contents. Completed players are never reprocessed; failed players are
// excluded from default runs and only picked up by a retry scope, so a
// flaky generator is not hammered on every invocation. Candidates with a
// blank image URL are dropped without ever touching the store.
func Resolve(ctx context.Context, scope Scope, src source.Provider, store track.Store) (*WorkList, error) {
	if scope.RetryFailed {
		return resolveRetry(ctx, scope, store)
	}

	var (
		players []source.Player
		err     error
	)
	if len(scope.IDs) > 0 {
		players, err = src.ByIDs(ctx, scope.IDs)
	} else {
		players, err = src.List(ctx, scope.Filter, scope.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	completed, err := store.CompletedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load completed ids: %w", err)
	}
	failed, err := store.FailedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load failed ids: %w", err)
	}

	list := &WorkList{TotalFetched: len(players)}
	for _, p := range players {
		switch {
		case contains(completed, p.ID):
			list.SkippedCompleted++
		case contains(failed, p.ID):
			list.SkippedFailed++
		case strings.TrimSpace(p.ImageURL) == "":
			list.SkippedNoImage++
		default:
			list.Items = append(list.Items, WorkItem{
				PlayerID: p.ID,
				ImageURL: p.ImageURL,
				Label:    p.DisplayLabel(),
			})
		}
	}
	return list, nil
}

// resolveRetry builds the work list from failed tracking records. The
// stored source URL substitutes for a fresh source lookup, so a retry run
// works even when the source database is unavailable.
func resolveRetry(ctx context.Context, scope Scope, store track.Store) (*WorkList, error) {
	recs, err := store.FailedRecords(ctx, scope.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("load failed records: %w", err)
	}

	list := &WorkList{TotalFetched: len(recs)}
	for _, rec := range recs {
		if strings.TrimSpace(rec.SourceURL) == "" {
			list.SkippedNoImage++
			continue
		}
		list.Items = append(list.Items, WorkItem{
			PlayerID: rec.PlayerID,
			ImageURL: rec.SourceURL,
		})
	}
	return list, nil
}

func contains(set map[int64]struct{}, id int64) bool {
	_, ok := set[id]
	return ok
}
