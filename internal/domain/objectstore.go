package domain

import "context"

// ObjectStore is whole-object get/put against named buckets. Implementations
// map missing keys to ErrNotFound, network/5xx failures to ErrTransient and
// auth/permission failures to ErrFatal.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte) error
}
