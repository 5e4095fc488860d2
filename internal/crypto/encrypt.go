package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/scrypt"

	"github.com/AlexZinkM/wallet-core/internal/model"
)

const (
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12

	// FileVersion is written into every sealed file.
	FileVersion = 2
)

// Params are the scrypt cost parameters.
type Params struct {
	N, R, P int
}

// DefaultParams prioritise security over speed.
//
// N=2^18 (~256MB RAM, 0.5-2s) keeps brute force expensive while still
// fitting the per-app memory limits of mobile devices. N=2^20 (~1GB) fails
// on Android.
var DefaultParams = Params{N: 1 << 18, R: 8, P: 1}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrInvalidPassword is returned when a sealed payload cannot be opened.
var ErrInvalidPassword = errors.New("invalid password")

// Sealer encrypts payloads with a key derived from a password.
// The derived key is cached per salt so repeated writes skip scrypt; every
// write uses a fresh nonce.
type Sealer struct {
	params Params

	mu       sync.Mutex
	password []byte
	salt     []byte
	key      []byte
}

// NewSealer copies password; the caller should zero its own slice.
func NewSealer(password []byte, params Params) (*Sealer, error) {
	if len(password) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	if params.N == 0 {
		params = DefaultParams
	}
	p := make([]byte, len(password))
	copy(p, password)
	return &Sealer{params: params, password: p}, nil
}

// keyFor returns the key for salt, using the cached one when the salt
// matches. It does not change the cache; see commit. Caller holds s.mu.
func (s *Sealer) keyFor(salt []byte) ([]byte, error) {
	if s.key != nil && bytes.Equal(s.salt, salt) {
		return s.key, nil
	}
	if s.password == nil {
		return nil, errors.New("sealer has been wiped")
	}
	key, err := scrypt.Key(s.password, salt, s.params.N, s.params.R, s.params.P, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// commit makes key the cached key for salt. Caller holds s.mu.
func (s *Sealer) commit(salt, key []byte) {
	if s.key != nil && &s.key[0] == &key[0] {
		return
	}
	clear(s.key)
	s.salt = append([]byte(nil), salt...)
	s.key = key
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

// Seal encrypts plaintext into a vault file.
func (s *Sealer) Seal(network string, plaintext []byte) (*model.VaultFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	salt := s.salt
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
	}
	key, err := s.keyFor(salt)
	if err != nil {
		return nil, err
	}
	s.commit(salt, key)

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)

	return &model.VaultFile{
		Version:    FileVersion,
		Network:    network,
		Salt:       base64.StdEncoding.EncodeToString(s.salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Wipe zeroes the password and cached key.
func (s *Sealer) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.password)
	clear(s.key)
	s.password, s.key, s.salt = nil, nil, nil
}

// EncodeFile serialises f with a UTF-8 BOM for proper display on Windows.
func EncodeFile(f *model.VaultFile) ([]byte, error) {
	fileData, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vault file: %w", err)
	}
	out := make([]byte, 0, len(utf8BOM)+len(fileData))
	out = append(out, utf8BOM...)
	return append(out, fileData...), nil
}
