package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	dErrors "intake/pkg/domain-errors"
)

// numRecordShards spreads record keys over independent mutexes so operations
// on different records rarely contend.
const numRecordShards = 128

// defaultRecordTxTimeout is the maximum duration for a record transaction.
const defaultRecordTxTimeout = 5 * time.Second

// ShardedTx serializes in-memory transactions per record key. Keys are hashed
// onto shards and the distinct shards are taken in ascending order, so
// multi-record transactions cannot deadlock against each other.
type ShardedTx struct {
	shards  [numRecordShards]sync.Mutex
	store   Store
	timeout time.Duration
}

// NewShardedTx wraps an in-memory store.
func NewShardedTx(store Store) *ShardedTx {
	return &ShardedTx{store: store, timeout: defaultRecordTxTimeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultRecordTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shards := t.selectShards(keys)
	for _, shard := range shards {
		t.shards[shard].Lock()
	}
	defer func() {
		for i := len(shards) - 1; i >= 0; i-- {
			t.shards[shards[i]].Unlock()
		}
	}()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.store)
}

// selectShards maps keys to sorted distinct shard indexes. No keys means
// shard 0, which still serializes against other keyless callers. A token key
// takes every shard because the record behind it is not known yet.
func (t *ShardedTx) selectShards(keys []string) []int {
	if len(keys) == 0 {
		return []int{0}
	}
	shards := make([]int, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, tokenKeyPrefix) {
			all := make([]int, numRecordShards)
			for i := range all {
				all[i] = i
			}
			return all
		}
		shards = append(shards, int(hashKey(key)%numRecordShards))
	}
	slices.Sort(shards)
	return slices.Compact(shards)
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
