// Package pipeline builds, signs, submits and confirms SOL transfers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/AlexZinkM/wallet-core/internal/client"
	"github.com/AlexZinkM/wallet-core/internal/common"
	"github.com/AlexZinkM/wallet-core/internal/fee"
	"github.com/AlexZinkM/wallet-core/internal/keys"
	"github.com/AlexZinkM/wallet-core/internal/log"
	"github.com/AlexZinkM/wallet-core/internal/memo"
	"github.com/AlexZinkM/wallet-core/internal/model"
	"github.com/AlexZinkM/wallet-core/internal/retry"
)

const (
	DefaultComputeUnitLimit uint32 = 200_000
	DefaultConfirmTimeout          = 60 * time.Second
	DefaultPollInterval            = time.Second
)

// DefaultRetry is one attempt plus three retries after 2s, 4s and 8s.
var DefaultRetry = retry.Policy{MaxAttempts: 4, Backoff: retry.Exponential(2*time.Second, 8*time.Second)}

// Chain is the network surface the pipeline needs.
type Chain interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SignatureStatuses(ctx context.Context, sigs ...solana.Signature) ([]*rpc.SignatureStatusesResult, error)
}

var _ Chain = (*client.Resolver)(nil)

// BalanceSource supplies the sender balance checked before a send.
type BalanceSource interface {
	GetBalanceStrict(ctx context.Context, address string) (uint64, error)
}

// FeeQuoter supplies the fee quote for a send.
type FeeQuoter interface {
	GetOptimalFee(ctx context.Context) model.FeeQuote
}

// Config configures a Pipeline. Zero values take the defaults above.
type Config struct {
	ComputeUnitLimit uint32
	Retry            retry.Policy
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
	FeeCollection    FeeCollection
	Logger           *zerolog.Logger
}

// Pipeline runs transfers. It holds no per-send state and is safe for
// concurrent use.
type Pipeline struct {
	chain    Chain
	balances BalanceSource
	fees     FeeQuoter
	cfg      Config
	logger   zerolog.Logger
}

// New creates a Pipeline.
func New(chain Chain, balances BalanceSource, fees FeeQuoter, cfg Config) *Pipeline {
	if cfg.ComputeUnitLimit == 0 {
		cfg.ComputeUnitLimit = DefaultComputeUnitLimit
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetry
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	p := &Pipeline{
		chain:    chain,
		balances: balances,
		fees:     fees,
		cfg:      cfg,
		logger:   log.WithComponent("pipeline"),
	}
	if cfg.Logger != nil {
		p.logger = *cfg.Logger
	}
	return p
}

// FeeCollection returns the configured platform fee policy.
func (p *Pipeline) FeeCollection() FeeCollection {
	return p.cfg.FeeCollection
}

// transfer is one fully resolved on-chain transfer.
type transfer struct {
	from     solana.PublicKey
	to       solana.PublicKey
	lamports uint64
	memo     []byte
	quote    model.FeeQuote
}

// Send validates req, checks the balance, then submits and confirms the
// transfer signed by key. A requested platform fee is sent afterwards as a
// separate transfer whose failure never fails the send.
func (p *Pipeline) Send(ctx context.Context, req model.TransferRequest, key *keys.KeyMaterial) (*model.TransferResult, error) {
	from, to, err := validate(req, key)
	if err != nil {
		return nil, err
	}

	res := &model.TransferResult{}
	principal := transfer{from: from, to: to, lamports: req.AmountLamports}
	if req.Memo != "" {
		principal.memo, res.MemoEncrypted, res.MemoWarning = sealMemo(req.Memo, to)
		if res.MemoWarning != "" {
			p.logger.Warn().Str("recipient", to.String()).Msg(res.MemoWarning)
		}
	}

	principal.quote = p.fees.GetOptimalFee(ctx)
	res.Fee = principal.quote

	var platformFee uint64
	if req.IncludePlatformFee && p.cfg.FeeCollection.Enabled() {
		platformFee = p.cfg.FeeCollection.Amount(req.AmountLamports)
	}
	if err := p.checkBalance(ctx, principal, platformFee); err != nil {
		return nil, err
	}

	sig, attempts, err := p.submit(ctx, principal, key)
	res.Attempts = attempts
	if err != nil {
		return nil, err
	}
	res.Signature = sig.String()
	p.logger.Info().
		Str("signature", res.Signature).
		Str("to", to.String()).
		Uint64("lamports", req.AmountLamports).
		Int("attempts", attempts).
		Msg("transfer confirmed")

	if platformFee > 0 {
		res.PlatformFeeLamports = platformFee
		feeTx := transfer{
			from:     from,
			to:       p.cfg.FeeCollection.Collector(),
			lamports: platformFee,
			quote:    baseOnlyQuote(principal.quote.Timestamp),
		}
		feeSig, _, err := p.submit(ctx, feeTx, key)
		if err != nil {
			res.PlatformFeeError = err.Error()
			p.logger.Warn().Err(err).Str("principal", res.Signature).Msg("platform fee transfer failed")
		} else {
			res.PlatformFeeTxID = feeSig.String()
		}
	}
	return res, nil
}

func validate(req model.TransferRequest, key *keys.KeyMaterial) (from, to solana.PublicKey, err error) {
	if key == nil {
		return from, to, model.InvalidRequestf("signing key is required")
	}
	if req.AmountLamports == 0 {
		return from, to, model.InvalidRequestf("amount must be greater than zero")
	}
	if req.Sender == "" {
		return from, to, model.InvalidRequestf("sender is required")
	}
	from = key.PublicKey()
	if req.Sender != from.String() {
		return from, to, model.InvalidRequestf("sender %s does not match the signing key", req.Sender)
	}
	to, err = solana.PublicKeyFromBase58(req.Recipient)
	if err != nil {
		return from, to, fmt.Errorf("%w: invalid recipient address: %w", model.ErrInvalidRequest, err)
	}
	if len(req.Memo) > memo.MaxPlaintext {
		return from, to, model.InvalidRequestf("memo longer than %d bytes", memo.MaxPlaintext)
	}
	return from, to, nil
}

// sealMemo encrypts text for recipient, falling back to plaintext.
func sealMemo(text string, recipient solana.PublicKey) (data []byte, encrypted bool, warning string) {
	env, err := memo.EncryptFor(text, recipient)
	if err != nil {
		return []byte(text), false, fmt.Sprintf("memo sent unencrypted: %v", err)
	}
	return []byte(env.String()), true, ""
}

// baseOnlyQuote prices a transfer without a priority fee.
func baseOnlyQuote(now time.Time) model.FeeQuote {
	return model.FeeQuote{
		BaseFee:    fee.BaseFeeLamports,
		TotalFee:   fee.BaseFeeLamports,
		Congestion: model.CongestionLow,
		Timestamp:  now,
	}
}

func (p *Pipeline) checkBalance(ctx context.Context, t transfer, platformFee uint64) error {
	parts := []uint64{t.lamports, t.quote.TotalFee}
	if platformFee > 0 {
		parts = append(parts, platformFee, fee.BaseFeeLamports)
	}
	required, err := common.SafeAdd(parts...)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidRequest, err)
	}
	available, err := p.balances.GetBalanceStrict(ctx, t.from.String())
	if err != nil {
		return fmt.Errorf("failed to check balance: %w", err)
	}
	if available < required {
		return &model.InsufficientBalanceError{Required: required, Available: available}
	}
	return nil
}

// submit runs build, sign, send and confirm under the retry policy. Before a
// retry the signatures of earlier attempts are checked: one that landed is
// returned and one the cluster has seen is waited on, so a slow transfer is
// never broadcast twice.
func (p *Pipeline) submit(ctx context.Context, t transfer, key *keys.KeyMaterial) (solana.Signature, int, error) {
	var (
		sent     []solana.Signature
		landed   solana.Signature
		attempts int
	)
	err := p.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		if len(sent) > 0 {
			switch sig, state := p.earlierAttempt(ctx, sent); state {
			case attemptLanded:
				p.logger.Info().Str("signature", sig.String()).Msg("earlier attempt landed, not re-sending")
				landed = sig
				return nil
			case attemptPending:
				p.logger.Info().Str("signature", sig.String()).Msg("earlier attempt still pending, waiting for it")
				if err := p.confirm(ctx, sig); err != nil {
					p.logger.Warn().Err(err).Int("attempt", attempt).Str("signature", sig.String()).Msg("confirmation failed")
					return err
				}
				landed = sig
				return nil
			}
		}

		tx, err := p.build(ctx, t, key)
		if err != nil {
			return err
		}
		sig := tx.Signatures[0]
		sent = append(sent, sig)

		if _, err := p.chain.SendTransaction(ctx, tx); err != nil {
			p.logger.Warn().Err(err).Int("attempt", attempt).Msg("send failed")
			return fmt.Errorf("failed to send transaction: %w", err)
		}
		if err := p.confirm(ctx, sig); err != nil {
			p.logger.Warn().Err(err).Int("attempt", attempt).Str("signature", sig.String()).Msg("confirmation failed")
			return err
		}
		landed = sig
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return solana.Signature{}, attempts, ctxErr
		}
		return solana.Signature{}, attempts, fmt.Errorf("%w after %d attempt(s): %w", model.ErrSubmissionFailed, attempts, err)
	}
	return landed, attempts, nil
}

func (p *Pipeline) build(ctx context.Context, t transfer, key *keys.KeyMaterial) (*solana.Transaction, error) {
	blockhash, err := p.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(
		instructions(t, p.cfg.ComputeUnitLimit),
		blockhash,
		solana.TransactionPayer(t.from),
	)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create transaction: %w", err))
	}
	if _, err := tx.Sign(key.Signer()); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to sign transaction: %w", err))
	}
	return tx, nil
}

var errOnChainFailure = errors.New("transaction failed on chain")

// confirm polls the signature until it reaches confirmed commitment, fails
// on chain, or the confirm timeout passes.
func (p *Pipeline) confirm(ctx context.Context, sig solana.Signature) error {
	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()

	for {
		statuses, err := p.chain.SignatureStatuses(pollCtx, sig)
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return retry.Permanent(fmt.Errorf("%w: %v", errOnChainFailure, st.Err))
			}
			if isConfirmed(st) {
				return nil
			}
		} else if err != nil {
			p.logger.Debug().Err(err).Str("signature", sig.String()).Msg("status poll failed")
		}

		if err := retry.Sleep(pollCtx, p.cfg.PollInterval); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("transaction %s not confirmed within %s", sig, p.cfg.ConfirmTimeout)
		}
	}
}

type attemptState int

const (
	attemptUnknown attemptState = iota
	attemptPending
	attemptLanded
)

// earlierAttempt reports the most advanced error-free state among sigs.
// Attempts the cluster has not seen, or that failed on chain, are unknown.
func (p *Pipeline) earlierAttempt(ctx context.Context, sigs []solana.Signature) (solana.Signature, attemptState) {
	statuses, err := p.chain.SignatureStatuses(ctx, sigs...)
	if err != nil {
		p.logger.Debug().Err(err).Msg("could not check earlier attempts")
		return solana.Signature{}, attemptUnknown
	}
	var (
		best  solana.Signature
		state attemptState
	)
	for i, st := range statuses {
		if i >= len(sigs) || st == nil || st.Err != nil {
			continue
		}
		if isConfirmed(st) {
			return sigs[i], attemptLanded
		}
		if state == attemptUnknown {
			best, state = sigs[i], attemptPending
		}
	}
	return best, state
}

func isConfirmed(st *rpc.SignatureStatusesResult) bool {
	return st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		st.ConfirmationStatus == rpc.ConfirmationStatusFinalized
}
