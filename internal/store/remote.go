package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const documentsKey = "task_documents"

// Document is the per-user remote record: the whole task array plus the
// time of the write in epoch milliseconds.
type Document struct {
	Tasks       json.RawMessage `json:"tasks"`
	LastUpdated int64           `json:"lastUpdated"`
}

type RemoteStore interface {
	Fetch(ctx context.Context, userID string) (Document, bool, error)
	Put(ctx context.Context, userID string, doc Document) error
}

type RedisRemote struct {
	client *redis.Client
}

var _ RemoteStore = (*RedisRemote)(nil)

func NewRedisRemote(ctx context.Context, addr string) (*RedisRemote, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRemote{client: client}, nil
}

func (r *RedisRemote) Fetch(ctx context.Context, userID string) (Document, bool, error) {
	raw, err := r.client.HGet(ctx, documentsKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}

	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Document{}, false, fmt.Errorf("failed to unmarshal document for %s: %w", userID, err)
	}
	return doc, true, nil
}

func (r *RedisRemote) Put(ctx context.Context, userID string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, documentsKey, userID, raw).Err()
}

func (r *RedisRemote) Close() error {
	return r.client.Close()
}
