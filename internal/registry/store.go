package registry

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/AlexZinkM/wallet-core/internal/keys"
	"github.com/AlexZinkM/wallet-core/internal/model"
)

const stateVersion = 2

// persistedWallet is the vault layout of one record.
type persistedWallet struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Address           string    `json:"address"`
	SecretKey         string    `json:"secretKey"` // base58, 64 bytes
	BalanceLamports   uint64    `json:"balanceLamports"`
	CreatedAt         time.Time `json:"createdAt"`
	PhraseFingerprint string    `json:"phraseFingerprint,omitempty"`
	DerivationIndex   *uint32   `json:"derivationIndex,omitempty"`
	MultiAddress      bool      `json:"multiAddress,omitempty"`
}

type persistedState struct {
	Version    int               `json:"version"`
	Wallets    []persistedWallet `json:"wallets"`
	SelectedID string            `json:"selectedId"`
}

// encodeState serialises s. The result holds secret keys; zero it after use.
func encodeState(s *Snapshot) ([]byte, error) {
	ps := persistedState{
		Version:    stateVersion,
		Wallets:    make([]persistedWallet, 0, len(s.Wallets)),
		SelectedID: s.SelectedID,
	}
	for _, r := range s.Wallets {
		pw := persistedWallet{
			ID:              r.ID,
			Name:            r.Name,
			Address:         r.Address(),
			SecretKey:       r.Key.Base58(),
			BalanceLamports: r.BalanceLamports,
			CreatedAt:       r.CreatedAt.UTC(),
			MultiAddress:    r.MultiAddress,
		}
		if r.Origin != nil {
			idx := r.Origin.DerivationIndex
			pw.PhraseFingerprint = r.Origin.PhraseFingerprint
			pw.DerivationIndex = &idx
		}
		ps.Wallets = append(ps.Wallets, pw)
	}
	data, err := json.Marshal(ps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wallets: %w", err)
	}
	return data, nil
}

// decodeResult is the outcome of reading a vault blob.
type decodeResult struct {
	state    *Snapshot
	migrated bool
	dropped  []string // addresses of records that failed the integrity check
}

// decodeState reads either the current layout or the legacy single-wallet
// layout.
func decodeState(data []byte, newID func() string, now time.Time) (*decodeResult, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallets: %w", err)
	}
	if _, legacy := probe["privateKey"]; legacy {
		return decodeLegacy(data, newID, now)
	}

	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallets: %w", err)
	}

	res := &decodeResult{state: &Snapshot{SelectedID: ps.SelectedID}}
	for _, pw := range ps.Wallets {
		rec, err := pw.record()
		if err != nil {
			res.dropped = append(res.dropped, pw.Address)
			continue
		}
		if res.state.hasAddress(rec.Address()) {
			res.dropped = append(res.dropped, pw.Address)
			continue
		}
		res.state.Wallets = append(res.state.Wallets, rec)
	}
	return res, nil
}

func (pw persistedWallet) record() (Record, error) {
	raw, err := base58.Decode(pw.SecretKey)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", model.ErrInvalidSecretFormat, err)
	}
	defer clear(raw)
	km, err := keys.FromPrivateKey(solana.PrivateKey(raw))
	if err != nil {
		return Record{}, err
	}
	// the stored address must match the one recomputed from the key
	if km.Address() != pw.Address {
		return Record{}, fmt.Errorf("stored address %s does not match key %s", pw.Address, km.Address())
	}
	rec := Record{
		ID:              pw.ID,
		Name:            pw.Name,
		Key:             km,
		BalanceLamports: pw.BalanceLamports,
		CreatedAt:       pw.CreatedAt,
		MultiAddress:    pw.MultiAddress,
	}
	if pw.DerivationIndex != nil {
		rec.Origin = &Origin{PhraseFingerprint: pw.PhraseFingerprint, DerivationIndex: *pw.DerivationIndex}
	}
	return rec, nil
}

func decodeLegacy(data []byte, newID func() string, now time.Time) (*decodeResult, error) {
	var legacy model.LegacyWalletData
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal legacy wallet: %w", err)
	}
	km, err := legacyKey(legacy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy wallet: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339, legacy.CreatedAt)
	if err != nil {
		createdAt = now
	}
	rec := Record{
		ID:        newID(),
		Name:      autoName(1),
		Key:       km,
		CreatedAt: createdAt,
	}
	return &decodeResult{
		state:    &Snapshot{Wallets: []Record{rec}, SelectedID: rec.ID},
		migrated: true,
	}, nil
}

// legacyKey accepts a hex 32-byte seed or a base64 32-byte seed or 64-byte key.
func legacyKey(s string) (*keys.KeyMaterial, error) {
	s = strings.TrimSpace(s)
	if len(s) == 64 {
		if seed, err := hex.DecodeString(s); err == nil {
			defer clear(seed)
			return keys.FromSeed(seed)
		}
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: legacy private key is neither hex nor base64", model.ErrInvalidSecretFormat)
	}
	defer clear(raw)
	switch len(raw) {
	case 32:
		return keys.FromSeed(raw)
	case 64:
		return keys.FromPrivateKey(solana.PrivateKey(raw))
	}
	return nil, fmt.Errorf("%w: legacy private key has %d bytes", model.ErrInvalidSecretFormat, len(raw))
}

func autoName(n int) string {
	return fmt.Sprintf("Wallet %d", n)
}
