// Package natskv implements the shared key-value substrate (and the L2
// remote cache) using NATS JetStream KV.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// maxCASRetries bounds the optimistic-concurrency loop in IncrBy and SetNX.
const maxCASRetries = 10

// envelope wraps stored values with an absolute expiry. JetStream KV TTLs
// are bucket-level, so per-key TTLs are enforced on read: an expired entry
// is deleted and reported as a miss.
type envelope struct {
	ExpiresAt int64  `json:"exp,omitempty"` // unix nanos, 0 = no expiry
	Data      []byte `json:"v"`
}

// Store implements the kv.Store port (and the cache port) on one bucket.
type Store struct {
	kv  jetstream.KeyValue
	now func() time.Time // for testing
}

// New wraps a JetStream KeyValue bucket.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv, now: time.Now}
}

// EnsureBucket creates the KV bucket when absent and returns its handle.
func EnsureBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Get retrieves a value, treating expired entries as misses.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}

	env, err := decodeEnvelope(entry.Value())
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	if s.expired(env) {
		_ = s.kv.Delete(ctx, encodeKey(key))
		return nil, false, nil
	}
	return env.Data, true, nil
}

// Set stores a value. A zero TTL means no expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := s.kv.Put(ctx, encodeKey(key), s.encode(value, ttl)); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// SetNX stores a value only if the key is absent (or present but expired).
// The winner is decided by JetStream's atomic Create, so concurrent callers
// across instances see exactly one success.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	k := encodeKey(key)
	data := s.encode(value, ttl)

	_, err := s.kv.Create(ctx, k, data)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, jetstream.ErrKeyExists) {
		return false, fmt.Errorf("kv setnx %s: %w", key, err)
	}

	// The key exists; claim it only if the stored entry has expired.
	entry, getErr := s.kv.Get(ctx, k)
	if getErr != nil {
		if errors.Is(getErr, jetstream.ErrKeyNotFound) {
			// Deleted between Create and Get; let the caller retry.
			return false, nil
		}
		return false, fmt.Errorf("kv setnx %s: %w", key, getErr)
	}
	env, decErr := decodeEnvelope(entry.Value())
	if decErr != nil {
		return false, fmt.Errorf("kv setnx %s: %w", key, decErr)
	}
	if !s.expired(env) {
		return false, nil
	}
	if _, updErr := s.kv.Update(ctx, k, data, entry.Revision()); updErr != nil {
		// Lost the takeover race.
		return false, nil
	}
	return true, nil
}

// Delete removes a key. Absent keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, encodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// IncrBy adds delta to a numeric counter via a revision-guarded update loop.
// An absent or expired counter starts from zero.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	k := encodeKey(key)

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		entry, err := s.kv.Get(ctx, k)
		if err != nil {
			if !errors.Is(err, jetstream.ErrKeyNotFound) {
				return 0, fmt.Errorf("kv incr %s: %w", key, err)
			}
			if _, cErr := s.kv.Create(ctx, k, s.encode(counterBytes(delta), 0)); cErr == nil {
				return delta, nil
			} else if !errors.Is(cErr, jetstream.ErrKeyExists) {
				return 0, fmt.Errorf("kv incr %s: %w", key, cErr)
			}
			continue // another writer created it first
		}

		env, decErr := decodeEnvelope(entry.Value())
		if decErr != nil {
			return 0, fmt.Errorf("kv incr %s: %w", key, decErr)
		}

		var cur int64
		expiresAt := env.ExpiresAt
		if s.expired(env) {
			cur, expiresAt = 0, 0
		} else if cur, err = strconv.ParseInt(string(env.Data), 10, 64); err != nil {
			return 0, fmt.Errorf("kv incr %s: not a counter: %w", key, err)
		}

		next := cur + delta
		out, _ := json.Marshal(envelope{ExpiresAt: expiresAt, Data: counterBytes(next)})
		if _, updErr := s.kv.Update(ctx, k, out, entry.Revision()); updErr == nil {
			return next, nil
		}
		// Revision conflict; re-read and retry.
	}
	return 0, fmt.Errorf("kv incr %s: too many conflicting writers", key)
}

// Keys lists keys matching a prefix, in their original (colon) form.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for k := range lister.Keys() {
		decoded := decodeKey(k)
		if strings.HasPrefix(decoded, prefix) {
			keys = append(keys, decoded)
		}
	}
	return keys, nil
}

func (s *Store) encode(value []byte, ttl time.Duration) []byte {
	env := envelope{Data: value}
	if ttl > 0 {
		env.ExpiresAt = s.now().Add(ttl).UnixNano()
	}
	out, _ := json.Marshal(env)
	return out
}

func (s *Store) expired(env envelope) bool {
	return env.ExpiresAt > 0 && s.now().UnixNano() >= env.ExpiresAt
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("corrupt envelope: %w", err)
	}
	return env, nil
}

func counterBytes(v int64) []byte {
	return []byte(strconv.FormatInt(v, 10))
}

// JetStream KV keys may not contain ':'; the engine's key scheme uses it as
// the segment separator. Keys are stored with '.' instead and translated
// back on listing. User and content IDs never contain either character.
func encodeKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

func decodeKey(key string) string {
	return strings.ReplaceAll(key, ".", ":")
}
