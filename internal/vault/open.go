package vault

import (
	"fmt"
	"io"

	"github.com/AlexZinkM/wallet-core/internal/crypto"
)

// Backends accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the vault for backend. The closer releases the backend and must
// be called on shutdown. The memory backend ignores path and sealer.
func Open(backend, path, network string, sealer *crypto.Sealer) (Vault, io.Closer, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryVault(), nopCloser{}, nil
	case BackendFile:
		v, err := NewFileVault(path, network, sealer)
		if err != nil {
			return nil, nil, err
		}
		return v, nopCloser{}, nil
	case BackendBadger:
		v, err := OpenBadgerVault(path, network, sealer)
		if err != nil {
			return nil, nil, err
		}
		return v, v, nil
	default:
		return nil, nil, fmt.Errorf("unknown vault backend %q", backend)
	}
}

// NeedsPassword reports whether backend seals its data.
func NeedsPassword(backend string) bool {
	return backend != BackendMemory
}
