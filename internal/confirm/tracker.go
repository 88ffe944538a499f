// Package confirm submits signed transactions and waits, with a bounded
// number of status polls, for them to reach the target commitment.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"SupplyLedger/internal/ledger"
)

var (
	ErrTimedOut          = errors.New("confirmation timed out")
	ErrTransactionFailed = errors.New("transaction failed")
)

type State string

const (
	StateSubmitted State = "submitted"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateTimedOut
}

type Policy struct {
	Interval time.Duration
	MaxPolls int
	Target   rpc.ConfirmationStatusType
}

func DefaultPolicy() Policy {
	return Policy{
		Interval: time.Second,
		MaxPolls: 30,
		Target:   ledger.CommitmentFinalized,
	}
}

// ParseCommitment maps a config value to a commitment level.
func ParseCommitment(s string) (rpc.ConfirmationStatusType, error) {
	c := rpc.ConfirmationStatusType(s)
	if ledger.CommitmentRank(c) == 0 {
		return "", fmt.Errorf("unknown commitment %q", s)
	}
	return c, nil
}

// Result is the terminal outcome of waiting on one signature.
type Result struct {
	Signature  solana.Signature
	State      State
	Slot       uint64
	Commitment rpc.ConfirmationStatusType
	Polls      int
	// Err is nil only for StateConfirmed.
	Err error
}

type Tracker struct {
	client ledger.Client
	policy Policy
	send   ledger.SendOptions
	logger zerolog.Logger
}

func New(client ledger.Client, policy Policy, send ledger.SendOptions, logger zerolog.Logger) *Tracker {
	if policy.Interval <= 0 {
		policy.Interval = DefaultPolicy().Interval
	}
	if policy.MaxPolls <= 0 {
		policy.MaxPolls = DefaultPolicy().MaxPolls
	}
	if ledger.CommitmentRank(policy.Target) == 0 {
		policy.Target = DefaultPolicy().Target
	}
	return &Tracker{
		client: client,
		policy: policy,
		send:   send,
		logger: logger.With().Str("component", "confirm").Logger(),
	}
}

func (t *Tracker) Policy() Policy { return t.policy }

// Submit broadcasts tx once. It never resubmits.
func (t *Tracker) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := t.client.SendTransaction(ctx, tx, t.send)
	if err != nil {
		t.logger.Warn().Err(err).Msg("submit failed")
		return solana.Signature{}, err
	}
	t.logger.Debug().Str("signature", sig.String()).Str("state", string(StateSubmitted)).Msg("submitted")
	return sig, nil
}

// Await polls sig until it reaches a terminal state. Once MaxPolls plain
// polls pass without a verdict, one history search runs before the
// result is declared timed out. Cancelling ctx also yields timed out.
func (t *Tracker) Await(ctx context.Context, sig solana.Signature) Result {
	ticker := time.NewTicker(t.policy.Interval)
	defer ticker.Stop()

	res := Result{Signature: sig, State: StatePending}
	for res.Polls < t.policy.MaxPolls {
		if ctx.Err() != nil {
			return t.timedOut(res, ctx.Err())
		}
		res.Polls++
		if t.check(ctx, &res, false) {
			return res
		}
		if res.Polls == t.policy.MaxPolls {
			break
		}
		select {
		case <-ctx.Done():
			return t.timedOut(res, ctx.Err())
		case <-ticker.C:
		}
	}

	if ctx.Err() != nil {
		return t.timedOut(res, ctx.Err())
	}
	if t.check(ctx, &res, true) {
		return res
	}
	return t.timedOut(res, nil)
}

// SubmitAndAwait submits tx and waits for its outcome. Only an explicit
// rejection, or a transaction that never left the process, is StateFailed.
// A transport error leaves the outcome unknown, so the signature the
// transaction already carries is polled like any other.
func (t *Tracker) SubmitAndAwait(ctx context.Context, tx *solana.Transaction) (Result, error) {
	sig, err := t.Submit(ctx, tx)
	if err == nil {
		res := t.Await(ctx, sig)
		return res, res.Err
	}
	if len(tx.Signatures) > 0 {
		sig = tx.Signatures[0]
	}
	if errors.Is(err, ledger.ErrNetwork) && !sig.IsZero() {
		t.logger.Warn().Err(err).Str("signature", sig.String()).Msg("submit outcome unknown, polling status")
		res := t.Await(ctx, sig)
		return res, res.Err
	}
	res := Result{Signature: sig, State: StateFailed, Err: fmt.Errorf("%w: %w", ErrTransactionFailed, err)}
	return res, res.Err
}

// Watch runs Await on its own goroutine. The channel receives exactly one
// result and is then closed.
func (t *Tracker) Watch(ctx context.Context, sig solana.Signature) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- t.Await(ctx, sig)
	}()
	return ch
}

// check returns true when res reached a terminal state.
func (t *Tracker) check(ctx context.Context, res *Result, searchHistory bool) bool {
	statuses, err := t.client.GetSignatureStatuses(ctx, searchHistory, res.Signature)
	if err != nil {
		t.logger.Warn().Err(err).
			Str("signature", res.Signature.String()).
			Int("poll", res.Polls).
			Msg("status poll failed")
		return false
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return false
	}
	st := statuses[0]
	res.Slot = st.Slot
	res.Commitment = st.Commitment
	if st.Err != nil {
		res.State = StateFailed
		res.Err = fmt.Errorf("%w: %v", ErrTransactionFailed, st.Err)
		t.logger.Info().Str("signature", res.Signature.String()).Interface("tx_err", st.Err).Msg("transaction failed")
		return true
	}
	if ledger.CommitmentRank(st.Commitment) >= ledger.CommitmentRank(t.policy.Target) {
		res.State = StateConfirmed
		t.logger.Info().
			Str("signature", res.Signature.String()).
			Uint64("slot", st.Slot).
			Int("polls", res.Polls).
			Msg("transaction confirmed")
		return true
	}
	return false
}

func (t *Tracker) timedOut(res Result, cause error) Result {
	res.State = StateTimedOut
	if cause != nil {
		res.Err = fmt.Errorf("%w: %v", ErrTimedOut, cause)
	} else {
		res.Err = fmt.Errorf("%w after %d polls", ErrTimedOut, res.Polls)
	}
	t.logger.Warn().Str("signature", res.Signature.String()).Int("polls", res.Polls).Msg("confirmation timed out")
	return res
}
