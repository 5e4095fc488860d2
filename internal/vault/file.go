package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlexZinkM/wallet-core/internal/crypto"
)

// FileVault seals the blob into a password-protected .cwt file.
type FileVault struct {
	path    string
	network string
	sealer  *crypto.Sealer
}

// NewFileVault creates a vault at path, which must end in .cwt.
func NewFileVault(path, network string, sealer *crypto.Sealer) (*FileVault, error) {
	if !strings.HasSuffix(path, ".cwt") {
		return nil, errors.New("file must have .cwt extension")
	}
	if sealer == nil {
		return nil, errors.New("sealer is required")
	}
	return &FileVault{path: path, network: network, sealer: sealer}, nil
}

// IsAvailable reports whether the containing directory exists.
func (f *FileVault) IsAvailable(context.Context) bool {
	info, err := os.Stat(filepath.Dir(f.path))
	return err == nil && info.IsDir()
}

// Store seals data and atomically replaces the file.
func (f *FileVault) Store(_ context.Context, data []byte) error {
	sealed, err := f.sealer.Seal(f.network, data)
	if err != nil {
		return err
	}
	fileData, err := crypto.EncodeFile(sealed)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".wallets-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if _, err := tmp.Write(fileData); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

// Load opens the file. A missing or empty file yields nil.
func (f *FileVault) Load(context.Context) ([]byte, error) {
	fileData, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(fileData) == 0 {
		return nil, nil
	}
	sealed, err := crypto.DecodeFile(fileData)
	if err != nil {
		return nil, err
	}
	return f.sealer.Open(sealed)
}

// Remove deletes the file.
func (f *FileVault) Remove(context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}
