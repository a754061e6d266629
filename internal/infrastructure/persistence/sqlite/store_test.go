package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "rubot.db")
	store, err := NewPluginStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "weather", "interval")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "weather", "interval", "600"))
	require.NoError(t, store.Put(ctx, "weather", "interval", "300"))
	require.NoError(t, store.Put(ctx, "weather", "watch:abc", `{"zone":"MOZ041"}`))
	require.NoError(t, store.Put(ctx, "greets", "interval", "1"))

	v, ok, err := store.Get(ctx, "weather", "interval")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "300", v)

	keys, err := store.Keys(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, []string{"interval", "watch:abc"}, keys)

	require.NoError(t, store.Delete(ctx, "weather", "interval"))
	_, ok, err = store.Get(ctx, "weather", "interval")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Close())

	// data survives a reopen
	store, err = NewPluginStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	v, ok, err = store.Get(ctx, "weather", "watch:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"zone":"MOZ041"}`, v)
}

func TestPluginStore_Validation(t *testing.T) {
	_, err := NewPluginStore("")
	assert.Error(t, err)

	store, err := NewPluginStore(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	assert.Error(t, store.Put(context.Background(), "", "k", "v"))
	_, _, err = store.Get(context.Background(), "p", " ")
	assert.Error(t, err)
}
