package domain

import (
	"context"
	"time"
)

type DistributedLock interface {
	Ping(ctx context.Context) (err error)
	// Lock returns a token identifying the holder when the key was acquired.
	Lock(ctx context.Context, lockKey string, lockTimeDuration time.Duration) (token string, acquired bool, err error)
	Unlock(ctx context.Context, lockKey, token string) (err error)
	Close() error
}
