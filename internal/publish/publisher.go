// Package publish uploads generated images to durable object storage.
package publish

import "context"

// Publisher stores a generated image and returns a durable URL for it.
// Implementations must not delete or mutate the local file.
type Publisher interface {
	Publish(ctx context.Context, localPath string, playerID int64) (string, error)
}

// Noop is used for local-only runs with no bucket configured. It reports
// success with an empty result URL so completion still records the local
// output path.
type Noop struct{}

func (Noop) Publish(ctx context.Context, localPath string, playerID int64) (string, error) {
	return "", nil
}
