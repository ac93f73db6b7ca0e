// Package cache defines the byte cache shared by the rate estimator and the
// carrier token store.
package cache

import (
	"context"
	"time"
)

type BytesCache interface {
	// Get reports ok=false for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
