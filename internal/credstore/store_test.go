package credstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credentials")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Read(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, "gho_first"))
	require.NoError(t, store.Write(ctx, "gho_second"))

	token, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gho_second", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, store.Write(ctx, ""))
	_, err = store.Read(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, ""), "clearing twice is not an error")
}

func TestFileStore_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	store, err := NewFileStore("~/.config/copilot-proxy/token")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/copilot-proxy/token"), store.Path())

	_, err = NewFileStore("")
	require.Error(t, err)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	store := NewKeyringStore("copilot-proxy-test")

	_, err := store.Read(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, "gho_secret"))
	token, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gho_secret", token)

	require.NoError(t, store.Write(ctx, ""))
	_, err = store.Read(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Write(ctx, ""))
}

func TestKeyringStore_CancelledContext(t *testing.T) {
	keyring.MockInit()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewKeyringStore("copilot-proxy-test").Read(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEnvStore(t *testing.T) {
	ctx := context.Background()
	env := map[string]string{"SET": " gho_env \n", "BLANK": ""}
	store := func(name string) *EnvStore {
		s := NewEnvStore(name)
		s.lookup = func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		}
		return s
	}

	token, err := store("SET").Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gho_env", token)

	_, err = store("BLANK").Read(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store("MISSING").Read(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, store("SET").Write(ctx, "x"), ErrReadOnly)
}
