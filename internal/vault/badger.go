package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/AlexZinkM/wallet-core/internal/crypto"
)

var walletsKey = []byte("vault/wallets")

// BadgerVault keeps the sealed blob in a Badger key-value store.
type BadgerVault struct {
	db      *badger.DB
	network string
	sealer  *crypto.Sealer
}

// OpenBadgerVault opens (or creates) the store at dir. An empty dir keeps the
// store in memory.
func OpenBadgerVault(dir, network string, sealer *crypto.Sealer) (*BadgerVault, error) {
	if sealer == nil {
		return nil, errors.New("sealer is required")
	}
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Disable badger's built-in logging.

	db, err := badger.Open(opts)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Cannot acquire directory lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("vault at %s is locked by another process: %w", dir, err)
		}
		return nil, fmt.Errorf("open vault at %s: %w", dir, err)
	}
	return &BadgerVault{db: db, network: network, sealer: sealer}, nil
}

func (b *BadgerVault) IsAvailable(context.Context) bool {
	return !b.db.IsClosed()
}

func (b *BadgerVault) Store(_ context.Context, data []byte) error {
	sealed, err := b.sealer.Seal(b.network, data)
	if err != nil {
		return err
	}
	value, err := crypto.EncodeFile(sealed)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(walletsKey, value)
	})
	if err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	return nil
}

func (b *BadgerVault) Load(context.Context) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(walletsKey)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	sealed, err := crypto.DecodeFile(value)
	if err != nil {
		return nil, err
	}
	return b.sealer.Open(sealed)
}

func (b *BadgerVault) Remove(context.Context) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(walletsKey)
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *BadgerVault) Close() error {
	return b.db.Close()
}
