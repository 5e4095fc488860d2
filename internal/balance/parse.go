package balance

import (
	"encoding/binary"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/ccoveille/go-safecast"
	"github.com/gagliardetto/solana-go"

	"github.com/AlexZinkM/wallet-core/internal/common"
	"github.com/AlexZinkM/wallet-core/internal/memo"
	"github.com/AlexZinkM/wallet-core/internal/model"
)

var (
	memoV1ProgramID = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")

	// the memo program logs the memo with Rust debug quoting
	memoLogPattern = regexp.MustCompile(`Memo \(len \d+\): (".*")\s*$`)
)

const systemTransferTag uint32 = 2

// parseView turns a transaction into a history row for owner. It reports
// false when owner's balance did not move beyond the fee, unless the
// transaction failed and owner paid for it or was named in a transfer.
func parseView(owner solana.PublicKey, v *txView) (model.TransactionRecord, bool) {
	ownerIndex := -1
	for i, key := range v.AccountKeys {
		if key.Equals(owner) {
			ownerIndex = i
			break
		}
	}
	if ownerIndex < 0 || ownerIndex >= len(v.PreBalances) || ownerIndex >= len(v.PostBalances) {
		return model.TransactionRecord{}, false
	}

	delta, err := common.SignedDelta(v.PreBalances[ownerIndex], v.PostBalances[ownerIndex])
	if err != nil {
		return model.TransactionRecord{}, false
	}

	// fee payer is always index 0; its delta includes the fee
	isFeePayer := ownerIndex == 0
	if isFeePayer {
		fee, err := safecast.ToInt64(v.Fee)
		if err != nil {
			return model.TransactionRecord{}, false
		}
		delta += fee
	}
	if delta == 0 && v.Failed {
		return failedRecord(owner, v, isFeePayer)
	}
	if delta == 0 {
		return model.TransactionRecord{}, false
	}

	ownerStr := owner.String()
	rec := newRecord(v)

	if delta > 0 {
		rec.Type = model.TransactionTypeDebit
		rec.AmountLamports = uint64(delta)
		rec.To = ownerStr
		rec.From = counterpart(v, owner, func(pre, post uint64) bool { return pre > post })
		rec.Counterpart = rec.From
	} else {
		rec.Type = model.TransactionTypeCredit
		rec.AmountLamports = uint64(-delta)
		rec.From = ownerStr
		rec.To = counterpart(v, owner, func(pre, post uint64) bool { return post > pre })
		rec.Counterpart = rec.To
		if isFeePayer {
			rec.FeeLamports = v.Fee
			rec.OurFeeSOL = common.LamportsToSOL(v.Fee)
		}
	}
	rec.Amount = common.LamportsToSOL(rec.AmountLamports)
	attachMemo(&rec, v)
	return rec, true
}

func newRecord(v *txView) model.TransactionRecord {
	rec := model.TransactionRecord{
		TxID:         v.Signature.String(),
		Timestamp:    v.BlockTime,
		Slot:         v.Slot,
		Status:       model.StatusSuccess,
		OurFeeSOL:    "0",
		Instructions: classify(v.Instructions),
	}
	if v.Failed {
		rec.Status = model.StatusFailed
	}
	return rec
}

// failedRecord builds the row for a failed transaction that moved nothing
// but the fee. Direction and amount come from the first system transfer
// naming owner; a fee payer with no such transfer gets a zero CREDIT.
func failedRecord(owner solana.PublicKey, v *txView, isFeePayer bool) (model.TransactionRecord, bool) {
	ownerStr := owner.String()
	rec := newRecord(v)

	var transfer *model.Instruction
	for i := range rec.Instructions {
		in := &rec.Instructions[i]
		if in.Kind == model.InstructionSystemTransfer && (in.From == ownerStr || in.To == ownerStr) {
			transfer = in
			break
		}
	}
	switch {
	case transfer != nil && transfer.From == ownerStr:
		rec.Type = model.TransactionTypeCredit
		rec.From, rec.To, rec.Counterpart = ownerStr, transfer.To, transfer.To
		rec.AmountLamports = transfer.Lamports
	case transfer != nil:
		rec.Type = model.TransactionTypeDebit
		rec.From, rec.To, rec.Counterpart = transfer.From, ownerStr, transfer.From
		rec.AmountLamports = transfer.Lamports
	case isFeePayer:
		rec.Type = model.TransactionTypeCredit
		rec.From = ownerStr
	default:
		return model.TransactionRecord{}, false
	}
	if isFeePayer {
		rec.FeeLamports = v.Fee
		rec.OurFeeSOL = common.LamportsToSOL(v.Fee)
	}
	rec.Amount = common.LamportsToSOL(rec.AmountLamports)
	attachMemo(&rec, v)
	return rec, true
}

func attachMemo(rec *model.TransactionRecord, v *txView) {
	if text, ok := extractMemo(v); ok {
		rec.Memo = text
		if _, err := memo.ParseEnvelope(text); err == nil {
			rec.MemoEncrypted = true
		}
	}
}

// counterpart returns the first other account whose balance moved the
// opposite way to owner's.
func counterpart(v *txView, owner solana.PublicKey, moved func(pre, post uint64) bool) string {
	for i, key := range v.AccountKeys {
		if i >= len(v.PreBalances) || i >= len(v.PostBalances) {
			break
		}
		if key.Equals(owner) {
			continue
		}
		if moved(v.PreBalances[i], v.PostBalances[i]) {
			return key.String()
		}
	}
	return ""
}

func extractMemo(v *txView) (string, bool) {
	for _, line := range v.Logs {
		m := memoLogPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if text, err := strconv.Unquote(m[1]); err == nil {
			return text, true
		}
		return m[1][1 : len(m[1])-1], true
	}
	for _, ix := range v.Instructions {
		if isMemoProgram(ix.Program) && utf8.Valid(ix.Data) {
			return string(ix.Data), true
		}
	}
	return "", false
}

func isMemoProgram(pk solana.PublicKey) bool {
	return pk.Equals(solana.MemoProgramID) || pk.Equals(memoV1ProgramID)
}

// classify resolves every instruction to its variant once, at parse time.
func classify(ixs []rawInstruction) []model.Instruction {
	if len(ixs) == 0 {
		return nil
	}
	out := make([]model.Instruction, 0, len(ixs))
	for _, ix := range ixs {
		out = append(out, classifyOne(ix))
	}
	return out
}

func classifyOne(ix rawInstruction) model.Instruction {
	in := model.Instruction{ProgramID: ix.Program.String()}
	switch {
	case ix.Program.Equals(solana.SystemProgramID):
		if len(ix.Data) == 12 && len(ix.Accounts) >= 2 &&
			binary.LittleEndian.Uint32(ix.Data[:4]) == systemTransferTag {
			in.Kind = model.InstructionSystemTransfer
			in.From = ix.Accounts[0].String()
			in.To = ix.Accounts[1].String()
			in.Lamports = binary.LittleEndian.Uint64(ix.Data[4:])
			return in
		}
		in.Kind = model.InstructionUnknown
	case isMemoProgram(ix.Program):
		in.Kind = model.InstructionMemo
		in.Memo = string(ix.Data)
	case ix.Program.Equals(solana.TokenProgramID), ix.Program.Equals(solana.Token2022ProgramID):
		in.Kind = model.InstructionTokenOp
	case ix.Program.Equals(solana.ComputeBudget):
		in.Kind = model.InstructionComputeBudget
	default:
		in.Kind = model.InstructionUnknown
	}
	return in
}
