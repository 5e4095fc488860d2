package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/wallet-core/internal/crypto"
)

func newSealer(t *testing.T, password string) *crypto.Sealer {
	t.Helper()
	s, err := crypto.NewSealer([]byte(password), crypto.Params{N: 1 << 4, R: 8, P: 1})
	require.NoError(t, err)
	return s
}

// exercise runs the behaviour every backend shares.
func exercise(t *testing.T, v Vault) {
	t.Helper()
	ctx := context.Background()

	require.True(t, v.IsAvailable(ctx))

	data, err := v.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data, "empty vault loads nil")

	require.NoError(t, v.Store(ctx, []byte("first")))
	require.NoError(t, v.Store(ctx, []byte("second")))

	data, err = v.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	require.NoError(t, v.Remove(ctx))
	data, err = v.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMemoryVault(t *testing.T) {
	m := NewMemoryVault()
	exercise(t, m)

	m.SetAvailable(false)
	assert.False(t, m.IsAvailable(context.Background()))

	boom := errors.New("disk full")
	m.FailStores(boom)
	require.ErrorIs(t, m.Store(context.Background(), []byte("x")), boom)
}

func TestFileVault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.cwt")
	v, err := NewFileVault(path, "solana", newSealer(t, "pw"))
	require.NoError(t, err)
	exercise(t, v)

	require.NoError(t, v.Store(context.Background(), []byte("persisted")))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewFileVault(path, "solana", newSealer(t, "pw"))
	require.NoError(t, err)
	data, err := reopened.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))

	wrong, err := NewFileVault(path, "solana", newSealer(t, "nope"))
	require.NoError(t, err)
	_, err = wrong.Load(context.Background())
	require.ErrorIs(t, err, crypto.ErrInvalidPassword)
}

func TestFileVault_Validation(t *testing.T) {
	_, err := NewFileVault("wallets.json", "solana", newSealer(t, "pw"))
	require.Error(t, err)

	v, err := NewFileVault(filepath.Join(t.TempDir(), "missing", "w.cwt"), "solana", newSealer(t, "pw"))
	require.NoError(t, err)
	assert.False(t, v.IsAvailable(context.Background()))
}

func TestBadgerVault(t *testing.T) {
	v, err := OpenBadgerVault(t.TempDir(), "solana", newSealer(t, "pw"))
	require.NoError(t, err)
	exercise(t, v)

	require.NoError(t, v.Close())
	assert.False(t, v.IsAvailable(context.Background()))
}

func TestBadgerVault_InMemory(t *testing.T) {
	v, err := OpenBadgerVault("", "solana", newSealer(t, "pw"))
	require.NoError(t, err)
	defer v.Close()
	exercise(t, v)
}

func TestGated(t *testing.T) {
	ctx := context.Background()
	allow := true
	inner := NewMemoryVault()
	v := Gated(inner, AuthenticatorFunc(func(ctx context.Context, reason string) error {
		if !allow {
			return errors.New("user cancelled")
		}
		return nil
	}))

	require.NoError(t, v.Store(ctx, []byte("x")))
	allow = false
	_, err := v.Load(ctx)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.ErrorIs(t, v.Store(ctx, []byte("y")), ErrAuthenticationFailed)
	assert.True(t, v.IsAvailable(ctx))

	assert.Same(t, inner, Gated(inner, nil))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	sealer := newSealer(t, "pw")

	tests := []struct {
		backend string
		path    string
		wantErr bool
	}{
		{BackendMemory, "", false},
		{BackendFile, filepath.Join(dir, "w.cwt"), false},
		{BackendFile, filepath.Join(dir, "w.txt"), true},
		{BackendBadger, filepath.Join(dir, "db"), false},
		{"s3", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend+" "+filepath.Base(tt.path), func(t *testing.T) {
			v, closer, err := Open(tt.backend, tt.path, "solana", sealer)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			exercise(t, v)
			require.NoError(t, closer.Close())
		})
	}

	assert.False(t, NeedsPassword(BackendMemory))
	assert.True(t, NeedsPassword(BackendBadger))
}
