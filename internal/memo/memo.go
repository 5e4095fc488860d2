// Package memo encrypts transfer memos so only the recipient can read them.
//
// A memo is sealed with NaCl box (X25519 + XSalsa20-Poly1305) between a fresh
// ephemeral key and the recipient's Ed25519 identity converted to X25519.
// The on-chain text form is b64(ephemeral):b64(nonce):b64(ciphertext).
package memo

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/nacl/box"

	"github.com/AlexZinkM/wallet-core/internal/keys"
	"github.com/AlexZinkM/wallet-core/internal/model"
)

const (
	keySize   = 32
	nonceSize = 24

	// MaxPlaintext keeps the sealed envelope inside a single memo instruction.
	MaxPlaintext = 400
)

// Placeholders shown instead of an envelope that could not be opened.
const (
	PlaceholderLocked    = "[Encrypted memo - unlock wallet to read]"
	PlaceholderNotForYou = "[Encrypted memo - not addressed to this wallet]"
)

// Envelope is a sealed memo.
type Envelope struct {
	EphemeralPublicKey [keySize]byte
	Nonce              [nonceSize]byte
	Ciphertext         []byte
}

// String renders the colon-separated on-chain form.
func (e *Envelope) String() string {
	enc := base64.StdEncoding
	return enc.EncodeToString(e.EphemeralPublicKey[:]) + ":" +
		enc.EncodeToString(e.Nonce[:]) + ":" +
		enc.EncodeToString(e.Ciphertext)
}

// IsEnvelope reports whether text has the shape of a sealed memo:
// three non-empty segments separated by ':'.
func IsEnvelope(text string) bool {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// ParseEnvelope decodes the text form.
func ParseEnvelope(text string) (*Envelope, error) {
	if !IsEnvelope(text) {
		return nil, fmt.Errorf("%w: not an encrypted memo", model.ErrDecryptionFailed)
	}
	parts := strings.Split(strings.TrimSpace(text), ":")
	enc := base64.StdEncoding

	eph, err := enc.DecodeString(parts[0])
	if err != nil || len(eph) != keySize {
		return nil, fmt.Errorf("%w: bad ephemeral key", model.ErrDecryptionFailed)
	}
	nonce, err := enc.DecodeString(parts[1])
	if err != nil || len(nonce) != nonceSize {
		return nil, fmt.Errorf("%w: bad nonce", model.ErrDecryptionFailed)
	}
	ct, err := enc.DecodeString(parts[2])
	if err != nil || len(ct) <= box.Overhead {
		return nil, fmt.Errorf("%w: bad ciphertext", model.ErrDecryptionFailed)
	}

	env := &Envelope{Ciphertext: ct}
	copy(env.EphemeralPublicKey[:], eph)
	copy(env.Nonce[:], nonce)
	return env, nil
}

// EncryptFor seals plaintext for the holder of recipient.
func EncryptFor(plaintext string, recipient solana.PublicKey) (*Envelope, error) {
	if len(plaintext) > MaxPlaintext {
		return nil, fmt.Errorf("%w: memo longer than %d bytes", model.ErrInvalidRequest, MaxPlaintext)
	}
	peer, err := publicToX25519(recipient)
	if err != nil {
		return nil, err
	}

	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	defer clear(ephPriv[:])

	env := &Envelope{EphemeralPublicKey: *ephPub}
	if _, err := rand.Read(env.Nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	env.Ciphertext = box.Seal(nil, []byte(plaintext), &env.Nonce, peer, ephPriv)
	return env, nil
}

// DecryptWith opens env with the recipient's key material.
func DecryptWith(env *Envelope, key *keys.KeyMaterial) (string, error) {
	if env == nil || key == nil {
		return "", model.ErrDecryptionFailed
	}
	priv := privateToX25519(key)
	defer clear(priv[:])

	plain, ok := box.Open(nil, env.Ciphertext, &env.Nonce, &env.EphemeralPublicKey, priv)
	if !ok {
		return "", model.ErrDecryptionFailed
	}
	return string(plain), nil
}

// Result is the outcome of TryDecrypt.
type Result struct {
	Text         string
	WasEncrypted bool
	Decrypted    bool
}

// TryDecrypt returns plaintext memos unchanged and opens envelopes when key is
// the recipient. Failures degrade to a placeholder.
func TryDecrypt(text string, key *keys.KeyMaterial) Result {
	if !IsEnvelope(text) {
		return Result{Text: text}
	}
	if key == nil {
		return Result{Text: PlaceholderLocked, WasEncrypted: true}
	}
	env, err := ParseEnvelope(text)
	if err != nil {
		// looked like an envelope but is not one; show it as written
		return Result{Text: text}
	}
	plain, err := DecryptWith(env, key)
	if err != nil {
		return Result{Text: PlaceholderNotForYou, WasEncrypted: true}
	}
	return Result{Text: plain, WasEncrypted: true, Decrypted: true}
}

// publicToX25519 maps an Ed25519 point to its Montgomery u-coordinate.
func publicToX25519(pub solana.PublicKey) (*[keySize]byte, error) {
	p, err := edwards25519.NewIdentityPoint().SetBytes(pub[:])
	if err != nil {
		return nil, fmt.Errorf("%w: recipient is not a valid ed25519 key", model.ErrInvalidRequest)
	}
	var out [keySize]byte
	copy(out[:], p.BytesMontgomery())
	return &out, nil
}

// privateToX25519 derives the X25519 scalar the same way Ed25519 derives its
// signing scalar, so it pairs with publicToX25519 of the same key.
func privateToX25519(key *keys.KeyMaterial) *[keySize]byte {
	seed := key.Seed()
	defer clear(seed)
	h := sha512.Sum512(seed)
	defer clear(h[:])

	var out [keySize]byte
	copy(out[:], h[:keySize])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return &out
}
