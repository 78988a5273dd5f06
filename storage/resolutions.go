// Package storage persists URI resolutions in NATS KV so they survive
// restarts.
package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the KV bucket used when none is configured.
const DefaultBucket = "SEMGATE_RESOLUTIONS"

// Resolution is one stored URI resolution.
type Resolution struct {
	Class      string    `json:"class"`
	URI        string    `json:"uri"`
	Canonical  string    `json:"canonical"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ResolutionStore stores resolutions keyed by range class and URI.
type ResolutionStore struct {
	kv jetstream.KeyValue
}

// NewResolutionStore opens or creates bucket. A zero ttl keeps entries
// forever.
func NewResolutionStore(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*ResolutionStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := getOrCreateBucket(ctx, js, bucket, ttl)
	if err != nil {
		return nil, fmt.Errorf("create resolutions bucket: %w", err)
	}
	return &ResolutionStore{kv: kv}, nil
}

// NewResolutionStoreFromKV wraps an existing bucket.
func NewResolutionStoreFromKV(kv jetstream.KeyValue) *ResolutionStore {
	return &ResolutionStore{kv: kv}
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Semgate %s storage", strings.ToLower(name)),
		History:     1,
		TTL:         ttl,
	})
}

// Key encodes class and uri into a valid KV key. Both parts are base64url
// encoded, so IRIs with any characters map to distinct keys.
func Key(class, uri string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(class)) + "." +
		base64.RawURLEncoding.EncodeToString([]byte(uri))
}

// Lookup returns the stored resolution or ErrNotFound.
func (s *ResolutionStore) Lookup(ctx context.Context, class, uri string) (*Resolution, error) {
	entry, err := s.kv.Get(ctx, Key(class, uri))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get resolution: %w", err)
	}
	var r Resolution
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, fmt.Errorf("unmarshal resolution: %w", err)
	}
	return &r, nil
}

// Get implements resolver.Store.
func (s *ResolutionStore) Get(ctx context.Context, class, uri string) (string, bool, error) {
	r, err := s.Lookup(ctx, class, uri)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return r.Canonical, true, nil
}

// Put implements resolver.Store.
func (s *ResolutionStore) Put(ctx context.Context, class, uri, canonical string) error {
	data, err := json.Marshal(Resolution{
		Class:      class,
		URI:        uri,
		Canonical:  canonical,
		ResolvedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}
	if _, err := s.kv.Put(ctx, Key(class, uri), data); err != nil {
		return fmt.Errorf("store resolution: %w", err)
	}
	return nil
}

// Forget removes a stored resolution.
func (s *ResolutionStore) Forget(ctx context.Context, class, uri string) error {
	if err := s.kv.Delete(ctx, Key(class, uri)); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete resolution: %w", err)
	}
	return nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, jetstream.ErrKeyNotFound) || strings.Contains(err.Error(), "key not found")
}
