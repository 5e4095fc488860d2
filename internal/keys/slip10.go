package keys

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
)

const (
	hardenedOffset uint32 = 0x80000000
	ed25519Curve          = "ed25519 seed"

	purpose  uint32 = 44
	coinType uint32 = 501
)

// extendedKey is a SLIP-0010 node: a 32-byte Ed25519 seed and its chain code.
type extendedKey struct {
	key       []byte
	chainCode []byte
}

func newMasterKey(seed []byte) *extendedKey {
	mac := hmac.New(sha512.New, []byte(ed25519Curve))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return &extendedKey{key: sum[:32], chainCode: sum[32:]}
}

// child derives the hardened child at index. Ed25519 only supports hardened
// derivation, so the hardened bit is always set.
func (k *extendedKey) child(index uint32) *extendedKey {
	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x00)
	data = append(data, k.key...)
	data = binary.BigEndian.AppendUint32(data, index|hardenedOffset)

	mac := hmac.New(sha512.New, k.chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)
	clear(data)
	return &extendedKey{key: sum[:32], chainCode: sum[32:]}
}

func (k *extendedKey) wipe() {
	clear(k.key)
	clear(k.chainCode)
}

// derivePath walks the hardened path from the master key of seed.
func derivePath(seed []byte, path ...uint32) *extendedKey {
	node := newMasterKey(seed)
	for _, index := range path {
		next := node.child(index)
		node.wipe()
		node = next
	}
	return node
}

// solanaPath returns m/44'/501'/index'/0'.
func solanaPath(index uint32) []uint32 {
	return []uint32{purpose, coinType, index, 0}
}

// PathString renders the derivation path of index in the usual notation.
func PathString(index uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'/0'", purpose, coinType, index)
}
