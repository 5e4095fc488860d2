package pipeline

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
)

const (
	microLamportsPerLamport = 1_000_000
	basisPointsDenominator  = 10_000
)

// ComputeUnitPrice spreads a priority fee in lamports over limit compute
// units, in micro-lamports per unit.
func ComputeUnitPrice(priorityLamports uint64, limit uint32) uint64 {
	if limit == 0 || priorityLamports == 0 {
		return 0
	}
	if priorityLamports > math.MaxUint64/microLamportsPerLamport {
		return math.MaxUint64 / uint64(limit)
	}
	return priorityLamports * microLamportsPerLamport / uint64(limit)
}

// instructions lays out compute budget, transfer and memo for t. The compute
// budget pair is omitted when there is no priority fee.
func instructions(t transfer, limit uint32) []solana.Instruction {
	out := make([]solana.Instruction, 0, 4)
	if price := ComputeUnitPrice(t.quote.PriorityFee, limit); price > 0 {
		out = append(out,
			computebudget.NewSetComputeUnitLimitInstruction(limit).Build(),
			computebudget.NewSetComputeUnitPriceInstruction(price).Build(),
		)
	}
	out = append(out, system.NewTransferInstruction(t.lamports, t.from, t.to).Build())
	if len(t.memo) > 0 {
		// raw UTF-8 payload; the memo program rejects a length prefix
		out = append(out, solana.NewInstruction(
			solana.MemoProgramID,
			solana.AccountMetaSlice{solana.Meta(t.from).SIGNER()},
			t.memo,
		))
	}
	return out
}

// FeeCollection is the platform fee policy: either disabled or a collector
// with a proportional and a fixed part.
type FeeCollection struct {
	enabled     bool
	collector   solana.PublicKey
	basisPoints uint64
	fixed       uint64
}

// FeeCollectionDisabled never charges a platform fee.
func FeeCollectionDisabled() FeeCollection {
	return FeeCollection{}
}

// FeeCollectionTo charges amount*basisPoints/10000 + fixedLamports, sent to
// collector.
func FeeCollectionTo(collector solana.PublicKey, basisPoints, fixedLamports uint64) (FeeCollection, error) {
	if collector.IsZero() {
		return FeeCollection{}, fmt.Errorf("fee collector address is required")
	}
	if basisPoints > basisPointsDenominator {
		return FeeCollection{}, fmt.Errorf("fee basis points %d exceed %d", basisPoints, basisPointsDenominator)
	}
	return FeeCollection{enabled: true, collector: collector, basisPoints: basisPoints, fixed: fixedLamports}, nil
}

// Enabled reports whether a collector is configured.
func (f FeeCollection) Enabled() bool {
	return f.enabled
}

// Collector returns the collector address.
func (f FeeCollection) Collector() solana.PublicKey {
	return f.collector
}

// Amount returns the platform fee for a principal amount.
func (f FeeCollection) Amount(principal uint64) uint64 {
	if !f.enabled {
		return 0
	}
	whole := principal / basisPointsDenominator * f.basisPoints
	part := principal % basisPointsDenominator * f.basisPoints / basisPointsDenominator
	return whole + part + f.fixed
}
