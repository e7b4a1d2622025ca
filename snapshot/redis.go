/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "partyhost:room:"
	DefaultTTL = time.Hour

	scanBatch = 100
)

// Redis writes blobs to keys under partyhost:room:, each expiring after TTL
// so rooms lost to a crash clean themselves up.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Redis{client: client, ttl: ttl}
}

// DialRedis connects using a redis:// or rediss:// URL and checks the
// server answers before returning.
func DialRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return NewRedis(client, ttl), nil
}

func Key(roomID string) string {
	return keyPrefix + roomID
}

func (r *Redis) Save(ctx context.Context, roomID string, blob []byte) error {
	if err := r.client.Set(ctx, Key(roomID), blob, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving snapshot of %s: %w", roomID, err)
	}

	return nil
}

func (r *Redis) Delete(ctx context.Context, roomID string) error {
	if err := r.client.Del(ctx, Key(roomID)).Err(); err != nil {
		return fmt.Errorf("deleting snapshot of %s: %w", roomID, err)
	}

	return nil
}

func (r *Redis) Load(ctx context.Context, roomID string) ([]byte, error) {
	blob, err := r.client.Get(ctx, Key(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot of %s: %w", roomID, err)
	}

	return blob, nil
}

// Rooms lists the ids that currently have a snapshot, sorted.
func (r *Redis) Rooms(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", err)
		}

		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, keyPrefix))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	slices.Sort(ids)

	return slices.Compact(ids), nil
}

func (r *Redis) TTL() time.Duration {
	return r.ttl
}

func (r *Redis) Close() error {
	return r.client.Close()
}
