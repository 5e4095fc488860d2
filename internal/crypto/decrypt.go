package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AlexZinkM/wallet-core/internal/model"
)

// DecodeFile parses a sealed file, skipping a UTF-8 BOM if present.
func DecodeFile(data []byte) (*model.VaultFile, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("file is empty")
	}
	var f model.VaultFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vault file: %w", err)
	}
	return &f, nil
}

// Open decrypts f. The returned slice should be zeroed by the caller.
// A successful open makes later Seals reuse f's salt.
func (s *Sealer) Open(f *model.VaultFile) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(f.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(f.CipherText)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(nonce) != nonceLen {
		return nil, fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.keyFor(salt)
	if err != nil {
		return nil, err
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		if !bytes.Equal(key, s.key) {
			clear(key)
		}
		return nil, ErrInvalidPassword
	}
	s.commit(salt, key)
	return plaintext, nil
}
