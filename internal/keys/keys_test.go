package keys

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/wallet-core/internal/model"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestSLIP10Vector1(t *testing.T) {
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")

	tests := []struct {
		name      string
		path      []uint32
		wantKey   string
		wantChain string
	}{
		{"m", nil,
			"2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7",
			"90046a93de5380a72b5e45010748567d5ea02bbf6522f979e05c0d8d8ca9fffb"},
		{"m/0'", []uint32{0},
			"68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3",
			"8b59aa11380b624e81507a27fedda59fea6d0b779a778918a2fd3590e16e9c69"},
		{"m/0'/1'", []uint32{0, 1},
			"b1d0bad404bf35da785a64ca1ac54b2617211d2777696fbffaf208f746ae84f2",
			"a320425f77d1b5c2505a6b1b27382b37368ee640e3557c315416801243552f14"},
		{"m/0'/1'/2'", []uint32{0, 1, 2},
			"92a5b23c0b8a99e37d07df3fb9966917f5d06e02ddbd909c7e184371463e9fc9",
			"2e69929e00b5ab250f49c3fb1c12f252de4fed2c1db88387094a0f8c4c9ccd6c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := derivePath(seed, tt.path...)
			assert.Equal(t, tt.wantKey, hex.EncodeToString(node.key))
			assert.Equal(t, tt.wantChain, hex.EncodeToString(node.chainCode))
		})
	}
}

func TestDeriveFromPhrase_KnownAddresses(t *testing.T) {
	km0, err := DeriveFromPhrase(testPhrase, 0)
	require.NoError(t, err)
	assert.Equal(t, "HAgk14JpMQLgt6rVgv7cBQFJWFto5Dqxi472uT3DKpqk", km0.Address())

	km1, err := DeriveFromPhrase(testPhrase, 1)
	require.NoError(t, err)
	assert.Equal(t, "Hh8QwFUA6MtVu1qAoq12ucvFHNwCcVTV7hpWjeY1Hztb", km1.Address())
}

func TestDeriveFromPhrase_Deterministic(t *testing.T) {
	a, err := DeriveFromPhrase(testPhrase, 3)
	require.NoError(t, err)
	b, err := DeriveFromPhrase("  ABANDON abandon abandon abandon abandon abandon\nabandon abandon abandon abandon abandon about ", 3)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	c, err := DeriveFromPhrase(testPhrase, 4)
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Address(), c.Address())
}

func TestDeriveFromPhrase_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		phrase string
	}{
		{"empty", ""},
		{"eleven words", strings.Repeat("abandon ", 10) + "about"},
		{"bad checksum", strings.Repeat("abandon ", 12)},
		{"unknown word", strings.Repeat("abandon ", 11) + "notaword"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveFromPhrase(tt.phrase, 0)
			require.ErrorIs(t, err, model.ErrInvalidPhrase)
		})
	}
}

func TestDeriveMany(t *testing.T) {
	list, err := DeriveMany(testPhrase, DefaultImportCount)
	require.NoError(t, err)
	require.Len(t, list, DefaultImportCount)

	seen := make(map[string]bool)
	for i, km := range list {
		single, err := DeriveFromPhrase(testPhrase, uint32(i))
		require.NoError(t, err)
		assert.True(t, km.Equal(single))
		assert.False(t, seen[km.Address()], "duplicate address at index %d", i)
		seen[km.Address()] = true
	}

	_, err = DeriveMany(testPhrase, 0)
	require.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestDeriveFromRawSecret(t *testing.T) {
	km, err := DeriveFromPhrase(testPhrase, 0)
	require.NoError(t, err)

	fromB58, err := DeriveFromRawSecret(km.Base58())
	require.NoError(t, err)
	assert.True(t, km.Equal(fromB58))

	hexSecret := hex.EncodeToString(km.PrivateKey())
	fromHex, err := DeriveFromRawSecret(hexSecret)
	require.NoError(t, err)
	assert.True(t, km.Equal(fromHex))

	fromPrefixed, err := DeriveFromRawSecret("0x" + hexSecret)
	require.NoError(t, err)
	assert.Equal(t, km.Address(), fromPrefixed.Address())
}

func TestDeriveFromRawSecret_Invalid(t *testing.T) {
	km, err := Generate()
	require.NoError(t, err)
	other, err := Generate()
	require.NoError(t, err)

	mismatched := append(km.Seed(), other.PublicKey().Bytes()...)

	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"garbage", "not a key!"},
		{"too short", base58.Encode(km.Seed())},
		{"hex wrong length", hex.EncodeToString(km.Seed())},
		{"mismatched halves", base58.Encode(mismatched)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveFromRawSecret(tt.secret)
			require.ErrorIs(t, err, model.ErrInvalidSecretFormat)
		})
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	km, err := Generate()
	require.NoError(t, err)
	addr := km.Address()

	priv := km.PrivateKey()
	clear(priv)
	seed := km.Seed()
	clear(seed)

	assert.Equal(t, addr, km.Address())
	assert.Equal(t, addr, km.PrivateKey().PublicKey().String())
}

func TestSign(t *testing.T) {
	km, err := Generate()
	require.NoError(t, err)
	msg := []byte("transfer")

	sig, err := km.Sign(msg)
	require.NoError(t, err)
	assert.True(t, km.PublicKey().Verify(msg, sig))

	signer := km.Signer()
	require.NotNil(t, signer(km.PublicKey()))
	other, _ := Generate()
	assert.Nil(t, signer(other.PublicKey()))
}

func TestNewMnemonic(t *testing.T) {
	for _, words := range []int{12, 24} {
		phrase, err := NewMnemonic(words)
		require.NoError(t, err)
		assert.Len(t, strings.Fields(phrase), words)
		require.NoError(t, ValidatePhrase(phrase))
	}
	_, err := NewMnemonic(15)
	require.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint(testPhrase), Fingerprint(strings.ToUpper(testPhrase)))
	assert.Len(t, Fingerprint(testPhrase), 16)
	assert.NotContains(t, Fingerprint(testPhrase), "abandon")
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "m/44'/501'/7'/0'", PathString(7))
}
