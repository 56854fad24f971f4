// Package kv defines the key-value contract the data layer is built on and
// its storage backends. Keys are plain strings; values are opaque bytes,
// usually JSON documents. Operations are atomic per key only: nothing in
// this package offers a transaction spanning several keys.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNil is returned by Get when a key is absent or has expired.
var ErrNil = errors.New("kv: key not found")

// Store is implemented by every backend.
type Store interface {
	// Get returns the value stored under key or ErrNil.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set overwrites key. A zero ttl stores the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// AddToSet adds member to the set stored under setKey.
	AddToSet(ctx context.Context, setKey, member string) error
	// Members lists the set stored under setKey, empty when absent.
	Members(ctx context.Context, setKey string) ([]string, error)
	// IncrField atomically adds delta to a named counter inside key and
	// returns the new value.
	IncrField(ctx context.Context, key, field string, delta int64) (int64, error)
	// Fields returns every counter stored under key, empty when absent.
	Fields(ctx context.Context, key string) (map[string]int64, error)
}

// GetJSON loads key and decodes it into dst.
func GetJSON(ctx context.Context, s Store, key string, dst any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}
