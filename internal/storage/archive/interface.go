// Package archive stores backtest reports in cold storage: a local directory
// or an S3-compatible bucket.
package archive

import "context"

// Storage is a flat key/blob store. Get on a missing key returns an error
// matching core.ErrNotFound.
type Storage interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns keys under prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
