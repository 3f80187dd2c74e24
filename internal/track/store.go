package track

import "context"

// StuckMessage is appended to the error log of every record that
// ResetStuckProcessing demotes from processing to failed.
const StuckMessage = "interrupted: run terminated while processing"

// Store persists and queries tracking records. All mutations are atomic
// per record: concurrent runs touching the same player never observe a
// half-applied update.
type Store interface {
	// UpsertPending creates the record in pending state or, if it already
	// exists, moves it back to pending with fresh input parameters.
	// created_at, retry_count and error_log survive the overwrite.
	UpsertPending(ctx context.Context, playerID int64, sourceURL, style, mode string) error
	MarkProcessing(ctx context.Context, playerID int64) error
	MarkCompleted(ctx context.Context, playerID int64, outputPath string, duration float64, resultURL string) error
	// MarkFailed increments retry_count and appends errMsg to the error log.
	MarkFailed(ctx context.Context, playerID int64, errMsg string) error
	Get(ctx context.Context, playerID int64) (*Record, error)
	CompletedIDs(ctx context.Context) (map[int64]struct{}, error)
	FailedIDs(ctx context.Context) (map[int64]struct{}, error)
	// FailedRecords returns failed records still below the retry ceiling.
	FailedRecords(ctx context.Context, maxRetries int) ([]*Record, error)
	// ResetStuckProcessing demotes every record left in processing by an
	// interrupted run to failed, consuming one retry and appending
	// StuckMessage. Returns the number of records repaired.
	ResetStuckProcessing(ctx context.Context) (int64, error)
}
