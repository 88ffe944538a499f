package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rs/zerolog"

	"SupplyLedger/utils"
)

var (
	// ErrNetwork wraps every transport or protocol failure of the RPC
	// boundary. A send that fails this way may still have landed.
	ErrNetwork = errors.New("network error")
	// ErrRejected means the node answered with an explicit error, such as a
	// failed preflight simulation. Nothing was accepted.
	ErrRejected = errors.New("rejected by node")
)

// Commitment levels in increasing order of finality.
const (
	CommitmentProcessed = rpc.ConfirmationStatusProcessed
	CommitmentConfirmed = rpc.ConfirmationStatusConfirmed
	CommitmentFinalized = rpc.ConfirmationStatusFinalized
)

// CommitmentRank orders commitment levels; unknown levels rank 0.
func CommitmentRank(c rpc.ConfirmationStatusType) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	}
	return 0
}

// SignatureStatus is the network's view of one submitted signature.
type SignatureStatus struct {
	Slot       uint64
	Err        interface{}
	Commitment rpc.ConfirmationStatusType
}

type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
}

// Client is everything the engine needs from the remote network.
// SendTransaction is not idempotent: callers must check status before
// deciding to resubmit.
type Client interface {
	GetBalance(ctx context.Context, addr solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, space uint64) (uint64, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) ([]*SignatureStatus, error)
	RequestAirdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (solana.Signature, error)
}

// RPCClient implements Client over JSON-RPC.
type RPCClient struct {
	rpc    *rpc.Client
	logger zerolog.Logger
}

func NewRPCClient(endpoint string, logger zerolog.Logger) *RPCClient {
	return &RPCClient{
		rpc:    rpc.New(endpoint),
		logger: logger.With().Str("component", "ledger").Str("endpoint", endpoint).Logger(),
	}
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrNetwork, op, err)
}

// wrapSubmit separates an error response from the node from a transport
// failure, where the request may have been processed anyway.
func wrapSubmit(op string, err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s: %s (code %d)", ErrRejected, op, rpcErr.Message, rpcErr.Code)
	}
	return wrap(op, err)
}

func (c *RPCClient) GetBalance(ctx context.Context, addr solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, addr, commitment)
	if err != nil {
		return 0, wrap("getBalance", err)
	}
	return out.Value, nil
}

func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		c.logger.Debug().Err(err).Msg("finalized blockhash unavailable, falling back to confirmed")
		out, err = c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return solana.Hash{}, wrap("getLatestBlockhash", err)
		}
	}
	if out == nil {
		return solana.Hash{}, wrap("getLatestBlockhash", errors.New("empty result"))
	}
	return out.Value.Blockhash, nil
}

func (c *RPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, space uint64) (uint64, error) {
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, space, rpc.CommitmentFinalized)
	if err != nil {
		return 0, wrap("getMinimumBalanceForRentExemption", err)
	}
	return lamports, nil
}

// SendTransaction posts the base64 wire form directly so preflight options
// can be passed through.
func (c *RPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error) {
	enc, err := utils.EncodeBase64Tx(tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize transaction: %w", err)
	}
	preflight := opts.PreflightCommitment
	if preflight == "" {
		preflight = rpc.CommitmentConfirmed
	}

	var sig solana.Signature
	err = c.rpc.RPCCallForInto(ctx, &sig, "sendTransaction", []interface{}{
		enc,
		map[string]interface{}{
			"skipPreflight":       opts.SkipPreflight,
			"preflightCommitment": preflight,
			"encoding":            "base64",
		},
	})
	if err != nil {
		return solana.Signature{}, wrapSubmit("sendTransaction", err)
	}
	if sig.IsZero() {
		return solana.Signature{}, wrap("sendTransaction", errors.New("node returned an empty signature"))
	}
	c.logger.Debug().Str("signature", sig.String()).Int("size", len(enc)).Msg("transaction sent")
	return sig, nil
}

func (c *RPCClient) GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) ([]*SignatureStatus, error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, searchHistory, sigs...)
	if err != nil {
		return nil, wrap("getSignatureStatuses", err)
	}
	statuses := make([]*SignatureStatus, len(sigs))
	if out == nil {
		return statuses, nil
	}
	for i, v := range out.Value {
		if i >= len(statuses) {
			break
		}
		if v == nil {
			continue
		}
		statuses[i] = &SignatureStatus{
			Slot:       v.Slot,
			Err:        v.Err,
			Commitment: v.ConfirmationStatus,
		}
	}
	return statuses, nil
}

func (c *RPCClient) RequestAirdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (solana.Signature, error) {
	sig, err := c.rpc.RequestAirdrop(ctx, addr, lamports, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Signature{}, wrapSubmit("requestAirdrop", err)
	}
	return sig, nil
}
