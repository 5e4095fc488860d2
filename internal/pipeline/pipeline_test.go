package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/wallet-core/internal/client"
	"github.com/AlexZinkM/wallet-core/internal/client/clienttest"
	"github.com/AlexZinkM/wallet-core/internal/keys"
	"github.com/AlexZinkM/wallet-core/internal/memo"
	"github.com/AlexZinkM/wallet-core/internal/model"
	"github.com/AlexZinkM/wallet-core/internal/retry"
)

type staticBalance struct {
	lamports uint64
	err      error
}

func (s staticBalance) GetBalanceStrict(context.Context, string) (uint64, error) {
	return s.lamports, s.err
}

type staticQuote model.FeeQuote

func (q staticQuote) GetOptimalFee(context.Context) model.FeeQuote {
	return model.FeeQuote(q)
}

var testQuote = staticQuote{BaseFee: 5000, PriorityFee: 1000, TotalFee: 6000, Congestion: model.CongestionLow}

// chainFake confirms every signature it accepted, unless told otherwise.
// Every blockhash it hands out is new, so every attempt signs differently.
type chainFake struct {
	*clienttest.FakeRPC

	mu        sync.Mutex
	accepted  map[solana.Signature]bool
	issued    uint64
	failSends int
	sendErr   func(tx *solana.Transaction) error
	statusFor func(ctx context.Context, sig solana.Signature, accepted bool) *rpc.SignatureStatusesResult
}

func newChainFake() *chainFake {
	c := &chainFake{FakeRPC: &clienttest.FakeRPC{}, accepted: map[solana.Signature]bool{}}
	c.GetLatestBlockhashFn = func(context.Context) (solana.Hash, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.issued++
		var h solana.Hash
		binary.LittleEndian.PutUint64(h[:], c.issued)
		return h, nil
	}
	c.SendTransactionFn = func(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.failSends > 0 {
			c.failSends--
			return solana.Signature{}, errors.New("node is behind")
		}
		if c.sendErr != nil {
			if err := c.sendErr(tx); err != nil {
				return solana.Signature{}, err
			}
		}
		c.accepted[tx.Signatures[0]] = true
		return tx.Signatures[0], nil
	}
	c.GetSignatureStatusesFn = func(ctx context.Context, sigs ...solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		out := make([]*rpc.SignatureStatusesResult, len(sigs))
		for i, sig := range sigs {
			switch {
			case c.statusFor != nil:
				out[i] = c.statusFor(ctx, sig, c.accepted[sig])
			case c.accepted[sig]:
				out[i] = clienttest.Confirmed(100)
			}
		}
		return out, nil
	}
	return c
}

type fixture struct {
	chain     *chainFake
	sender    *keys.KeyMaterial
	recipient *keys.KeyMaterial
	pipeline  *Pipeline
}

func newFixture(t *testing.T, balance uint64, cfg Config) *fixture {
	t.Helper()
	sender, err := keys.Generate()
	require.NoError(t, err)
	recipient, err := keys.Generate()
	require.NoError(t, err)

	chain := newChainFake()
	resolver := clienttest.NewResolver(t, client.Options{}, chain.FakeRPC)

	nop := zerolog.Nop()
	cfg.Logger = &nop
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Policy{MaxAttempts: 4, Backoff: retry.Constant(0)}
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 50 * time.Millisecond
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	return &fixture{
		chain:     chain,
		sender:    sender,
		recipient: recipient,
		pipeline:  New(resolver, staticBalance{lamports: balance}, testQuote, cfg),
	}
}

func (f *fixture) request(lamports uint64) model.TransferRequest {
	return model.TransferRequest{
		Sender:         f.sender.Address(),
		Recipient:      f.recipient.Address(),
		AmountLamports: lamports,
	}
}

func programIDs(t *testing.T, tx *solana.Transaction) []solana.PublicKey {
	t.Helper()
	out := make([]solana.PublicKey, 0, len(tx.Message.Instructions))
	for _, ix := range tx.Message.Instructions {
		pid, err := tx.Message.ResolveProgramIDIndex(ix.ProgramIDIndex)
		require.NoError(t, err)
		out = append(out, pid)
	}
	return out
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t, 10_000_000_000, Config{})
	long := make([]byte, memo.MaxPlaintext+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name   string
		mutate func(*model.TransferRequest)
		key    *keys.KeyMaterial
	}{
		{"zero amount", func(r *model.TransferRequest) { r.AmountLamports = 0 }, f.sender},
		{"missing sender", func(r *model.TransferRequest) { r.Sender = "" }, f.sender},
		{"sender does not match key", func(r *model.TransferRequest) { r.Sender = f.recipient.Address() }, f.sender},
		{"bad recipient", func(r *model.TransferRequest) { r.Recipient = "not-base58-0OIl" }, f.sender},
		{"short recipient", func(r *model.TransferRequest) { r.Recipient = "3mJr7AoUXx2Wqd" }, f.sender},
		{"memo too long", func(r *model.TransferRequest) { r.Memo = string(long) }, f.sender},
		{"no key", func(*model.TransferRequest) {}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(1000)
			tt.mutate(&req)
			_, err := f.pipeline.Send(context.Background(), req, tt.key)
			require.ErrorIs(t, err, model.ErrInvalidRequest)
		})
	}
	assert.Zero(t, f.chain.Calls(), "validation happens before any network call")
}

func TestSend_InsufficientBalance(t *testing.T) {
	f := newFixture(t, 1_000_000, Config{})

	_, err := f.pipeline.Send(context.Background(), f.request(1_000_000), f.sender)
	require.ErrorIs(t, err, model.ErrInsufficientBalance)

	var insufficient *model.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, uint64(1_006_000), insufficient.Required)
	assert.Equal(t, uint64(1_000_000), insufficient.Available)
	assert.Equal(t, uint64(6000), insufficient.Shortfall())
	assert.Empty(t, f.chain.Sent())
}

func TestSend_BalanceUnavailable(t *testing.T) {
	f := newFixture(t, 0, Config{})
	f.pipeline.balances = staticBalance{err: model.ErrAllEndpointsFailed}

	_, err := f.pipeline.Send(context.Background(), f.request(1000), f.sender)
	require.ErrorIs(t, err, model.ErrAllEndpointsFailed)
}

func TestSend_FirstAttempt(t *testing.T) {
	f := newFixture(t, 2_000_000_000, Config{})
	req := f.request(1_000_000_000)
	req.Memo = "invoice 42"

	res, err := f.pipeline.Send(context.Background(), req, f.sender)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, res.MemoEncrypted)
	assert.Empty(t, res.MemoWarning)
	assert.Equal(t, uint64(6000), res.Fee.TotalFee)

	sent := f.chain.Sent()
	require.Len(t, sent, 1)
	tx := sent[0]
	assert.Equal(t, tx.Signatures[0].String(), res.Signature)
	require.NoError(t, tx.VerifySignatures())

	assert.Equal(t, []solana.PublicKey{
		solana.ComputeBudget,
		solana.ComputeBudget,
		solana.SystemProgramID,
		solana.MemoProgramID,
	}, programIDs(t, tx))

	// SetComputeUnitPrice: tag 3 then u64 micro-lamports
	priceData := tx.Message.Instructions[1].Data
	require.Len(t, priceData, 9)
	assert.Equal(t, byte(3), priceData[0])
	assert.Equal(t, uint64(5000), binary.LittleEndian.Uint64(priceData[1:]))

	env, err := memo.ParseEnvelope(string(tx.Message.Instructions[3].Data))
	require.NoError(t, err)
	plain, err := memo.DecryptWith(env, f.recipient)
	require.NoError(t, err)
	assert.Equal(t, "invoice 42", plain)
}

func TestSend_MemoFallsBackToPlaintext(t *testing.T) {
	f := newFixture(t, 2_000_000_000, Config{})
	// y = 2 has no matching x on the curve
	offCurve := solana.PublicKey{2}
	req := f.request(1000)
	req.Recipient = offCurve.String()
	req.Memo = "hello"

	res, err := f.pipeline.Send(context.Background(), req, f.sender)
	require.NoError(t, err)
	assert.False(t, res.MemoEncrypted)
	assert.NotEmpty(t, res.MemoWarning)

	tx := f.chain.Sent()[0]
	last := tx.Message.Instructions[len(tx.Message.Instructions)-1]
	assert.Equal(t, "hello", string(last.Data))
}

func TestSend_RetriesAfterSendFailures(t *testing.T) {
	f := newFixture(t, 2_000_000_000, Config{})
	f.chain.failSends = 2

	res, err := f.pipeline.Send(context.Background(), f.request(1000), f.sender)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)

	sent := f.chain.Sent()
	require.Len(t, sent, 3)
	assert.NotEqual(t, sent[0].Signatures[0], sent[1].Signatures[0])
	assert.NotEqual(t, sent[1].Signatures[0], sent[2].Signatures[0])
	assert.Equal(t, sent[2].Signatures[0].String(), res.Signature)
}

func TestSend_EarlierAttemptLandedIsNotResent(t *testing.T) {
	f := newFixture(t, 2_000_000_000, Config{})
	// confirmation polls run under the confirm deadline and never see the
	// transaction; the pre-retry check runs without one and does
	f.chain.statusFor = func(ctx context.Context, _ solana.Signature, accepted bool) *rpc.SignatureStatusesResult {
		if _, polling := ctx.Deadline(); polling || !accepted {
			return nil
		}
		return clienttest.Confirmed(200)
	}

	res, err := f.pipeline.Send(context.Background(), f.request(1000), f.sender)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)

	sent := f.chain.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, sent[0].Signatures[0].String(), res.Signature)
}

func processed(slot uint64) *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{Slot: slot, ConfirmationStatus: rpc.ConfirmationStatusProcessed}
}

func TestSend_PendingAttemptIsAwaitedNotResent(t *testing.T) {
	f := newFixture(t, 2_000_000_000, Config{})
	// the first confirm window and the pre-retry check (no deadline) only
	// see processed; polls after that check see it confirmed
	var checked bool
	f.chain.statusFor = func(ctx context.Context, _ solana.Signature, accepted bool) *rpc.SignatureStatusesResult {
		if !accepted {
			return nil
		}
		if _, polling := ctx.Deadline(); !polling {
			checked = true
			return processed(299)
		}
		if checked {
			return clienttest.Confirmed(300)
		}
		return processed(299)
	}

	res, err := f.pipeline.Send(context.Background(), f.request(1000), f.sender)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)

	sent := f.chain.Sent()
	require.Len(t, sent, 1, "a processed transfer must not be broadcast again")
	assert.Equal(t, sent[0].Signatures[0].String(), res.Signature)
}

func TestSend_PendingAttemptNeverConfirms(t *testing.T) {
	f := newFixture(t, 2_000_000_000, Config{
		Retry:          retry.Policy{MaxAttempts: 3, Backoff: retry.Constant(0)},
		ConfirmTimeout: 20 * time.Millisecond,
	})
	f.chain.statusFor = func(_ context.Context, _ solana.Signature, accepted bool) *rpc.SignatureStatusesResult {
		if !accepted {
			return nil
		}
		return processed(10)
	}

	_, err := f.pipeline.Send(context.Background(), f.request(1000), f.sender)
	require.ErrorIs(t, err, model.ErrSubmissionFailed)
	assert.Len(t, f.chain.Sent(), 1)
}

func TestSend_Exhausted(t *testing.T) {
	f := newFixture(t, 2_000_000_000, Config{})
	f.chain.failSends = 100

	res, err := f.pipeline.Send(context.Background(), f.request(1000), f.sender)
	require.ErrorIs(t, err, model.ErrSubmissionFailed)
	assert.Nil(t, res)
	assert.Len(t, f.chain.Sent(), 4)
}

func TestSend_OnChainFailureIsNotRetried(t *testing.T) {
	f := newFixture(t, 2_000_000_000, Config{})
	f.chain.statusFor = func(_ context.Context, _ solana.Signature, accepted bool) *rpc.SignatureStatusesResult {
		if !accepted {
			return nil
		}
		return &rpc.SignatureStatusesResult{
			Slot:               10,
			Err:                map[string]any{"InstructionError": []any{0, "Custom"}},
			ConfirmationStatus: rpc.ConfirmationStatusProcessed,
		}
	}

	_, err := f.pipeline.Send(context.Background(), f.request(1000), f.sender)
	require.ErrorIs(t, err, model.ErrSubmissionFailed)
	assert.ErrorIs(t, err, errOnChainFailure)
	assert.Len(t, f.chain.Sent(), 1)
}

func TestSend_ConfirmTimeoutRetries(t *testing.T) {
	f := newFixture(t, 2_000_000_000, Config{
		Retry:          retry.Policy{MaxAttempts: 2, Backoff: retry.Constant(0)},
		ConfirmTimeout: 20 * time.Millisecond,
	})
	f.chain.statusFor = func(context.Context, solana.Signature, bool) *rpc.SignatureStatusesResult { return nil }

	_, err := f.pipeline.Send(context.Background(), f.request(1000), f.sender)
	require.ErrorIs(t, err, model.ErrSubmissionFailed)
	assert.Contains(t, err.Error(), "not confirmed within")
	assert.Len(t, f.chain.Sent(), 2)
}

func TestSend_ContextCancelled(t *testing.T) {
	f := newFixture(t, 2_000_000_000, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	f.chain.sendErr = func(*solana.Transaction) error {
		cancel()
		return context.Canceled
	}

	_, err := f.pipeline.Send(ctx, f.request(1000), f.sender)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, model.ErrSubmissionFailed)
	assert.Len(t, f.chain.Sent(), 1)
}

func TestSend_PlatformFee(t *testing.T) {
	collector, err := keys.Generate()
	require.NoError(t, err)
	fc, err := FeeCollectionTo(collector.PublicKey(), 100, 1000)
	require.NoError(t, err)

	t.Run("collected", func(t *testing.T) {
		f := newFixture(t, 2_000_000_000, Config{FeeCollection: fc})
		req := f.request(1_000_000_000)
		req.IncludePlatformFee = true

		res, err := f.pipeline.Send(context.Background(), req, f.sender)
		require.NoError(t, err)
		assert.Equal(t, uint64(10_001_000), res.PlatformFeeLamports)
		assert.NotEmpty(t, res.PlatformFeeTxID)
		assert.Empty(t, res.PlatformFeeError)

		sent := f.chain.Sent()
		require.Len(t, sent, 2)
		assert.Equal(t, []solana.PublicKey{solana.SystemProgramID}, programIDs(t, sent[1]))
		assert.Contains(t, sent[1].Message.AccountKeys, collector.PublicKey())
	})

	t.Run("not requested", func(t *testing.T) {
		f := newFixture(t, 2_000_000_000, Config{FeeCollection: fc})
		res, err := f.pipeline.Send(context.Background(), f.request(1_000_000_000), f.sender)
		require.NoError(t, err)
		assert.Zero(t, res.PlatformFeeLamports)
		assert.Len(t, f.chain.Sent(), 1)
	})

	t.Run("failure does not fail the send", func(t *testing.T) {
		f := newFixture(t, 2_000_000_000, Config{FeeCollection: fc})
		f.chain.sendErr = func(tx *solana.Transaction) error {
			for _, k := range tx.Message.AccountKeys {
				if k.Equals(collector.PublicKey()) {
					return errors.New("collector rejected")
				}
			}
			return nil
		}
		req := f.request(1_000_000_000)
		req.IncludePlatformFee = true

		res, err := f.pipeline.Send(context.Background(), req, f.sender)
		require.NoError(t, err)
		assert.NotEmpty(t, res.Signature)
		assert.Empty(t, res.PlatformFeeTxID)
		assert.Contains(t, res.PlatformFeeError, "collector rejected")
	})

	t.Run("counted in the balance check", func(t *testing.T) {
		// principal + fee quote fits, principal + fee quote + platform fee does not
		f := newFixture(t, 1_000_010_000, Config{FeeCollection: fc})
		req := f.request(1_000_000_000)
		req.IncludePlatformFee = true

		_, err := f.pipeline.Send(context.Background(), req, f.sender)
		var insufficient *model.InsufficientBalanceError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, uint64(1_000_000_000+6000+10_001_000+5000), insufficient.Required)
	})
}

func TestFeeCollection(t *testing.T) {
	collector, err := keys.Generate()
	require.NoError(t, err)

	assert.False(t, FeeCollectionDisabled().Enabled())
	assert.Zero(t, FeeCollectionDisabled().Amount(1_000_000))

	_, err = FeeCollectionTo(solana.PublicKey{}, 10, 0)
	require.Error(t, err)
	_, err = FeeCollectionTo(collector.PublicKey(), 10_001, 0)
	require.Error(t, err)

	tests := []struct {
		bps, fixed, principal, want uint64
	}{
		{0, 0, 1_000_000, 0},
		{0, 5000, 1_000_000, 5000},
		{100, 0, 1_000_000, 10_000},
		{25, 0, 12_345, 30},
		{10_000, 0, 777, 777},
		{50, 0, 18_000_000_000_000_000_000, 90_000_000_000_000_000},
	}
	for _, tt := range tests {
		fc, err := FeeCollectionTo(collector.PublicKey(), tt.bps, tt.fixed)
		require.NoError(t, err)
		assert.Equal(t, tt.want, fc.Amount(tt.principal), "bps=%d fixed=%d principal=%d", tt.bps, tt.fixed, tt.principal)
	}
}

func TestComputeUnitPrice(t *testing.T) {
	assert.Equal(t, uint64(5000), ComputeUnitPrice(1000, 200_000))
	assert.Equal(t, uint64(0), ComputeUnitPrice(0, 200_000))
	assert.Equal(t, uint64(0), ComputeUnitPrice(1000, 0))
	assert.Equal(t, uint64(250_000), ComputeUnitPrice(50_000, 200_000))
}
