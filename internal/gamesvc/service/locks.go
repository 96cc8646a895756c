package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// withLocks runs fn holding every key and always releases what it got.
// Keys are taken in sorted order so overlapping key sets cannot deadlock;
// wait bounds the time spent acquiring.
func withLocks(ctx context.Context, locker Locker, wait time.Duration, keys []string, fn func(context.Context) error) error {
	acquireCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	tokens := make([]string, len(sorted))
	defer releaseLocks(ctx, locker, sorted, tokens)

	for i, key := range sorted {
		token, err := locker.Acquire(acquireCtx, key)
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		tokens[i] = token
	}

	return fn(ctx)
}

// releaseLocks frees keys concurrently, even when ctx is already canceled.
func releaseLocks(ctx context.Context, locker Locker, keys, tokens []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var g errgroup.Group
	for i, key := range keys {
		if tokens[i] == "" {
			continue
		}
		i, key := i, key
		g.Go(func() error {
			if err := locker.Release(ctx, key, tokens[i]); err != nil {
				log.Errorf("release lock %s: %s", key, err)
			}
			return nil
		})
	}
	g.Wait()
}
