package registry

import (
	"time"

	"github.com/AlexZinkM/wallet-core/internal/common"
	"github.com/AlexZinkM/wallet-core/internal/keys"
	"github.com/AlexZinkM/wallet-core/internal/model"
)

// Origin links a wallet back to the phrase it was derived from.
type Origin struct {
	PhraseFingerprint string
	DerivationIndex   uint32
}

// Record is one wallet. Key is immutable and shared between snapshots.
type Record struct {
	ID              string
	Name            string
	Key             *keys.KeyMaterial
	BalanceLamports uint64
	CreatedAt       time.Time
	Origin          *Origin
	MultiAddress    bool
}

// Address returns the base58 public identity.
func (r Record) Address() string {
	return r.Key.Address()
}

// View returns the public projection of r.
func (r Record) View(selected bool) model.WalletView {
	v := model.WalletView{
		ID:              r.ID,
		Name:            r.Name,
		Address:         r.Address(),
		BalanceLamports: r.BalanceLamports,
		BalanceSOL:      common.LamportsToSOL(r.BalanceLamports),
		CreatedAt:       r.CreatedAt,
		MultiAddress:    r.MultiAddress,
		Selected:        selected,
	}
	if r.Origin != nil {
		idx := r.Origin.DerivationIndex
		v.PhraseFingerprint = r.Origin.PhraseFingerprint
		v.DerivationIndex = &idx
	}
	return v
}

// Snapshot is an immutable copy of the registry state.
type Snapshot struct {
	Wallets    []Record
	SelectedID string
}

// Connected reports whether any wallet exists.
func (s Snapshot) Connected() bool {
	return len(s.Wallets) > 0
}

// Selected returns the selected record.
func (s Snapshot) Selected() (Record, bool) {
	return s.find(func(r Record) bool { return r.ID == s.SelectedID && s.SelectedID != "" })
}

// Get returns the record with id.
func (s Snapshot) Get(id string) (Record, bool) {
	return s.find(func(r Record) bool { return r.ID == id })
}

// FindByAddress returns the record whose public identity is address.
func (s Snapshot) FindByAddress(address string) (Record, bool) {
	return s.find(func(r Record) bool { return r.Address() == address })
}

func (s Snapshot) find(match func(Record) bool) (Record, bool) {
	for _, r := range s.Wallets {
		if match(r) {
			return r, true
		}
	}
	return Record{}, false
}

// Views returns the public projection of every record.
func (s Snapshot) Views() []model.WalletView {
	out := make([]model.WalletView, 0, len(s.Wallets))
	for _, r := range s.Wallets {
		out = append(out, r.View(r.ID == s.SelectedID))
	}
	return out
}

func (s Snapshot) clone() *Snapshot {
	next := &Snapshot{SelectedID: s.SelectedID, Wallets: make([]Record, len(s.Wallets))}
	copy(next.Wallets, s.Wallets)
	return next
}

func (s *Snapshot) index(id string) int {
	for i, r := range s.Wallets {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Snapshot) nameTaken(name, exceptID string) bool {
	for _, r := range s.Wallets {
		if r.Name == name && r.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Snapshot) hasAddress(address string) bool {
	_, ok := s.FindByAddress(address)
	return ok
}
