package storage

import "context"

// Store is the blob storage contract used for job image artifacts. Keys are
// slash-separated and namespaced per job, so RemovePrefix can drop every
// artifact of one job at once.
type Store interface {
	// Put persists the bytes under key and returns a public retrieval URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	RemovePrefix(ctx context.Context, prefix string) error
}
