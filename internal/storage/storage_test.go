package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func TestStore_PutAndGet(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	in := record{ID: "abc", Value: 42}
	require.NoError(t, s.Put(ctx, []string{"settings", "abc"}, in))

	_, err := os.Stat(filepath.Join(s.BasePath(), "settings", "abc.json"))
	require.NoError(t, err)

	var out record
	require.NoError(t, s.Get(ctx, []string{"settings", "abc"}, &out))
	assert.Equal(t, in, out)
}

func TestStore_GetNotFound(t *testing.T) {
	s := New(t.TempDir())

	var out record
	err := s.Get(context.Background(), []string{"settings", "missing"}, &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"x"}, record{ID: "x"}))
	require.NoError(t, s.Delete(ctx, []string{"x"}))
	require.NoError(t, s.Delete(ctx, []string{"x"}))
	assert.False(t, s.Exists(ctx, []string{"x"}))
}

func TestStore_ListSorted(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"c", "a", "b"} {
		require.NoError(t, s.Put(ctx, []string{"audit", "p1", key}, record{ID: key}))
	}

	keys, err := s.List(ctx, []string{"audit", "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestStore_ListMissingDir(t *testing.T) {
	s := New(t.TempDir())

	keys, err := s.List(context.Background(), []string{"nope"})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_Scan(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"audit", "p1", "e1"}, record{ID: "e1", Value: 1}))
	require.NoError(t, s.Put(ctx, []string{"audit", "p1", "e2"}, record{ID: "e2", Value: 2}))

	seen := map[string]int{}
	err := s.Scan(ctx, []string{"audit", "p1"}, func(key string, data json.RawMessage) error {
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		seen[key] = r.Value
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"e1": 1, "e2": 2}, seen)
}

func TestStore_ConcurrentPuts(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Put(ctx, []string{"settings", "shared"}, record{ID: "shared", Value: n})
		}(i)
	}
	wg.Wait()

	// Last write wins; the value must still be well-formed JSON.
	var out record
	require.NoError(t, s.Get(ctx, []string{"settings", "shared"}, &out))
	assert.Equal(t, "shared", out.ID)
}
