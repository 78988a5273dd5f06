package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryKV implements the subset of jetstream.KeyValue the store uses.
type memoryKV struct {
	jetstream.KeyValue
	data   map[string][]byte
	getErr error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string][]byte)}
}

func (m *memoryKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return memoryEntry{key: key, value: v}, nil
}

func (m *memoryKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.data[key] = value
	return uint64(len(m.data)), nil
}

func (m *memoryKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	if _, ok := m.data[key]; !ok {
		return jetstream.ErrKeyNotFound
	}
	delete(m.data, key)
	return nil
}

type memoryEntry struct {
	jetstream.KeyValueEntry
	key   string
	value []byte
}

func (e memoryEntry) Key() string   { return e.key }
func (e memoryEntry) Value() []byte { return e.value }

func TestKey(t *testing.T) {
	a := Key("https://example.org/Agent", "https://orcid.org/0000-0002-1825-0097")
	b := Key("https://example.org/Agent", "https://orcid.org/0000-0002-1825-0098")
	c := Key("https://example.org/Org", "https://orcid.org/0000-0002-1825-0097")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 1, strings.Count(a, "."))
	for _, r := range a {
		valid := r == '-' || r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		assert.True(t, valid, "invalid key character %q", r)
	}
}

func TestResolutionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewResolutionStoreFromKV(newMemoryKV())

	_, ok, err := s.Get(ctx, "class", "http://x.org/a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "class", "http://x.org/a", "https://x.org/a"))

	canonical, ok, err := s.Get(ctx, "class", "http://x.org/a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://x.org/a", canonical)

	r, err := s.Lookup(ctx, "class", "http://x.org/a")
	require.NoError(t, err)
	assert.Equal(t, "class", r.Class)
	assert.False(t, r.ResolvedAt.IsZero())

	// Resolutions are scoped by class.
	_, ok, err = s.Get(ctx, "other", "http://x.org/a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolutionStoreForget(t *testing.T) {
	ctx := context.Background()
	s := NewResolutionStoreFromKV(newMemoryKV())

	require.NoError(t, s.Put(ctx, "class", "u", "c"))
	require.NoError(t, s.Forget(ctx, "class", "u"))
	require.NoError(t, s.Forget(ctx, "class", "u"))

	_, err := s.Lookup(ctx, "class", "u")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolutionStoreErrors(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()
	kv.getErr = errors.New("nats: timeout")
	s := NewResolutionStoreFromKV(kv)

	_, _, err := s.Get(ctx, "class", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get resolution")

	kv.getErr = nil
	kv.data[Key("class", "bad")] = []byte("{not json")
	_, err = s.Lookup(ctx, "class", "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal resolution")
}
