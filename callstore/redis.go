package callstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	recordPrefix = "call:"
	recencyIndex = "calls:recent"

	maxUpdateAttempts = 10
)

// Redis stores each record as a JSON string with a TTL and keeps a sorted
// set of ids scored by start time for listing.
type Redis struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedis(client *redis.Client, retention time.Duration) *Redis {
	return &Redis{client: client, retention: retention}
}

func (r *Redis) Put(ctx context.Context, rec *Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	r.write(ctx, pipe, rec, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store call %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Redis) write(ctx context.Context, pipe redis.Pipeliner, rec *Record, data []byte) {
	pipe.Set(ctx, recordPrefix+rec.ID, data, r.retention)
	pipe.ZAdd(ctx, recencyIndex, redis.Z{Score: float64(rec.StartedAt.UnixMilli()), Member: rec.ID})
}

// Update watches the record key and retries when another writer commits
// between the read and the write.
func (r *Redis) Update(ctx context.Context, id string, fn func(*Record)) (*Record, error) {
	key := recordPrefix + id
	var updated *Record

	txf := func(tx *redis.Tx) error {
		rec := newRecord(id)
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if rec, err = decode(data); err != nil {
				return err
			}
		}
		fn(rec)

		if data, err = encode(rec); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.write(ctx, pipe, rec, data)
			return nil
		})
		if err == nil {
			updated = rec
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update call %s: %w", id, err)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update call %s: %w", id, ErrConflict)
}

func (r *Redis) Get(ctx context.Context, id string) (*Record, error) {
	data, err := r.client.Get(ctx, recordPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load call %s: %w", id, err)
	}
	return decode(data)
}

// List walks the recency index newest first. Ids whose record has expired
// are pruned from the index on the way.
func (r *Redis) List(ctx context.Context, limit int) ([]*Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	var out []*Record
	var start int64
	for {
		ids, err := r.client.ZRevRange(ctx, recencyIndex, start, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("list calls: %w", err)
		}
		if len(ids) == 0 {
			return out, nil
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = recordPrefix + id
		}
		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("list calls: %w", err)
		}

		var stale []any
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				stale = append(stale, ids[i])
				continue
			}
			rec, err := decode([]byte(s))
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		if len(stale) == 0 || limit <= 0 {
			if len(stale) > 0 {
				r.client.ZRem(ctx, recencyIndex, stale...)
			}
			return out, nil
		}

		// Refill the page after pruning.
		if err := r.client.ZRem(ctx, recencyIndex, stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune calls: %w", err)
		}
		start = int64(len(out))
		stop = int64(limit) - 1
		if start > stop {
			return out, nil
		}
	}
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, recordPrefix+id)
	pipe.ZRem(ctx, recencyIndex, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete call %s: %w", id, err)
	}
	return nil
}

func encode(rec *Record) ([]byte, error) {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode call %s: %w", rec.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*Record, error) {
	var rec Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode call: %w", err)
	}
	return &rec, nil
}
