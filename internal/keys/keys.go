// Package keys derives and holds Ed25519 key material for Solana wallets.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"

	"github.com/AlexZinkM/wallet-core/internal/model"
)

// DefaultImportCount is how many addresses a phrase import derives by default.
const DefaultImportCount = 5

// MaxImportCount bounds a single phrase import.
const MaxImportCount = 100

// KeyMaterial is an immutable Ed25519 keypair.
type KeyMaterial struct {
	private solana.PrivateKey
	public  solana.PublicKey
}

func newKeyMaterial(priv ed25519.PrivateKey) *KeyMaterial {
	pk := make(solana.PrivateKey, len(priv))
	copy(pk, priv)
	return &KeyMaterial{private: pk, public: pk.PublicKey()}
}

// FromPrivateKey wraps an existing 64-byte private key, checking that its
// second half is the public key of its seed.
func FromPrivateKey(priv solana.PrivateKey) (*KeyMaterial, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", model.ErrInvalidSecretFormat, ed25519.PrivateKeySize, len(priv))
	}
	expected := ed25519.NewKeyFromSeed(priv[:ed25519.SeedSize])
	defer clear(expected)
	if !bytes.Equal(expected, priv) {
		return nil, fmt.Errorf("%w: public half does not match seed", model.ErrInvalidSecretFormat)
	}
	return newKeyMaterial(expected), nil
}

// FromSeed builds key material from a 32-byte Ed25519 seed.
func FromSeed(seed []byte) (*KeyMaterial, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: expected %d-byte seed, got %d", model.ErrInvalidSecretFormat, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	defer clear(priv)
	return newKeyMaterial(priv), nil
}

// PublicKey returns the public identity.
func (k *KeyMaterial) PublicKey() solana.PublicKey {
	return k.public
}

// Address returns the base58 public identity.
func (k *KeyMaterial) Address() string {
	return k.public.String()
}

// PrivateKey returns a copy of the 64-byte private key.
func (k *KeyMaterial) PrivateKey() solana.PrivateKey {
	out := make(solana.PrivateKey, len(k.private))
	copy(out, k.private)
	return out
}

// Seed returns a copy of the 32-byte seed half.
func (k *KeyMaterial) Seed() []byte {
	out := make([]byte, ed25519.SeedSize)
	copy(out, k.private[:ed25519.SeedSize])
	return out
}

// Base58 returns the private key in the common base58 export format.
func (k *KeyMaterial) Base58() string {
	return base58.Encode(k.private)
}

// Sign signs msg with the private key.
func (k *KeyMaterial) Sign(msg []byte) (solana.Signature, error) {
	return k.private.Sign(msg)
}

// Signer returns a lookup usable with (*solana.Transaction).Sign.
func (k *KeyMaterial) Signer() func(solana.PublicKey) *solana.PrivateKey {
	return func(pub solana.PublicKey) *solana.PrivateKey {
		if !pub.Equals(k.public) {
			return nil
		}
		priv := k.PrivateKey()
		return &priv
	}
}

// Equal reports whether both hold the same keypair.
func (k *KeyMaterial) Equal(other *KeyMaterial) bool {
	if k == nil || other == nil {
		return k == other
	}
	return bytes.Equal(k.private, other.private)
}

// NormalizePhrase lowercases the phrase and collapses whitespace.
func NormalizePhrase(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// ValidatePhrase checks word count and the BIP-39 checksum.
func ValidatePhrase(phrase string) error {
	normalized := NormalizePhrase(phrase)
	words := len(strings.Fields(normalized))
	if words != 12 && words != 24 {
		return fmt.Errorf("%w: expected 12 or 24 words, got %d", model.ErrInvalidPhrase, words)
	}
	if !bip39.IsMnemonicValid(normalized) {
		return fmt.Errorf("%w: unknown word or bad checksum", model.ErrInvalidPhrase)
	}
	return nil
}

func phraseSeed(phrase string) ([]byte, error) {
	if err := ValidatePhrase(phrase); err != nil {
		return nil, err
	}
	seed, err := bip39.NewSeedWithErrorChecking(NormalizePhrase(phrase), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPhrase, err)
	}
	return seed, nil
}

func deriveFromSeed(seed []byte, index uint32) (*KeyMaterial, error) {
	if index >= hardenedOffset {
		return nil, fmt.Errorf("derivation index %d out of range", index)
	}
	node := derivePath(seed, solanaPath(index)...)
	defer node.wipe()
	return FromSeed(node.key)
}

// DeriveFromPhrase derives the keypair at m/44'/501'/index'/0'.
func DeriveFromPhrase(phrase string, index uint32) (*KeyMaterial, error) {
	seed, err := phraseSeed(phrase)
	if err != nil {
		return nil, err
	}
	defer clear(seed)
	return deriveFromSeed(seed, index)
}

// DeriveMany derives indices 0..count-1 from one phrase.
func DeriveMany(phrase string, count int) ([]*KeyMaterial, error) {
	if count < 1 || count > MaxImportCount {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", model.ErrInvalidRequest, MaxImportCount)
	}
	seed, err := phraseSeed(phrase)
	if err != nil {
		return nil, err
	}
	defer clear(seed)

	out := make([]*KeyMaterial, 0, count)
	for i := 0; i < count; i++ {
		km, err := deriveFromSeed(seed, uint32(i))
		if err != nil {
			return nil, err
		}
		out = append(out, km)
	}
	return out, nil
}

// DeriveFromRawSecret parses a 64-byte secret key given as base58 or hex
// (optionally 0x-prefixed).
func DeriveFromRawSecret(secret string) (*KeyMaterial, error) {
	raw, err := decodeSecret(strings.TrimSpace(secret))
	if err != nil {
		return nil, err
	}
	defer clear(raw)
	return FromPrivateKey(raw)
}

func decodeSecret(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty secret", model.ErrInvalidSecretFormat)
	}

	hexText := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(hexText) == 2*ed25519.PrivateKeySize {
		if raw, err := hex.DecodeString(hexText); err == nil {
			return raw, nil
		}
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not base58 or hex", model.ErrInvalidSecretFormat)
	}
	if len(raw) != ed25519.PrivateKeySize {
		clear(raw)
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", model.ErrInvalidSecretFormat, ed25519.PrivateKeySize, len(raw))
	}
	return raw, nil
}

// Generate returns a fresh random keypair.
func Generate() (*KeyMaterial, error) {
	priv, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	defer clear(priv)
	return newKeyMaterial(ed25519.PrivateKey(priv)), nil
}

// NewMnemonic generates a 12 or 24 word English recovery phrase.
func NewMnemonic(words int) (string, error) {
	var bits int
	switch words {
	case 12:
		bits = 128
	case 24:
		bits = 256
	default:
		return "", fmt.Errorf("%w: phrase must have 12 or 24 words", model.ErrInvalidRequest)
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	defer clear(entropy)
	return bip39.NewMnemonic(entropy)
}

// Fingerprint identifies a phrase without revealing it.
func Fingerprint(phrase string) string {
	sum := sha256.Sum256([]byte(NormalizePhrase(phrase)))
	return hex.EncodeToString(sum[:8])
}
