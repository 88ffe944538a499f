package txbuilder

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"SupplyLedger/internal/ledger"
)

// ErrInsufficientFunds is the local pre-flight guard. The network remains
// the source of truth.
var ErrInsufficientFunds = errors.New("insufficient funds")

// NFT mints are zero-decimal with a supply of one.
const (
	NFTDecimals uint8  = 0
	NFTSupply   uint64 = 1
)

// Builder assembles and signs transactions. It never submits them.
type Builder struct {
	client ledger.Client
	logger zerolog.Logger
}

func New(client ledger.Client, logger zerolog.Logger) *Builder {
	return &Builder{
		client: client,
		logger: logger.With().Str("component", "txbuilder").Logger(),
	}
}

type TransferParams struct {
	From     solana.PrivateKey
	To       solana.PublicKey
	Lamports uint64
	// KnownBalance is the sender's last-known balance in lamports.
	KnownBalance uint64
}

// Transfer builds a signed system transfer. The balance guard runs before
// any network call.
func (b *Builder) Transfer(ctx context.Context, p TransferParams) (*solana.Transaction, solana.Hash, error) {
	if p.KnownBalance < p.Lamports {
		return nil, solana.Hash{}, fmt.Errorf("%w: balance %d < amount %d lamports", ErrInsufficientFunds, p.KnownBalance, p.Lamports)
	}
	from := p.From.PublicKey()
	ix, err := TransferInstruction(from, p.To, p.Lamports)
	if err != nil {
		return nil, solana.Hash{}, err
	}

	blockhash, err := b.client.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, solana.Hash{}, err
	}
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(from))
	if err != nil {
		return nil, solana.Hash{}, fmt.Errorf("%w: assemble transfer: %v", ErrEncoding, err)
	}
	if err := Sign(tx, p.From); err != nil {
		return nil, solana.Hash{}, err
	}
	b.logger.Debug().
		Str("from", from.String()).
		Str("to", p.To.String()).
		Uint64("lamports", p.Lamports).
		Str("blockhash", blockhash.String()).
		Msg("transfer assembled")
	return tx, blockhash, nil
}

// MintPlan is a signed NFT issuance transaction and the accounts it creates.
type MintPlan struct {
	Tx           *solana.Transaction
	Mint         solana.PublicKey
	TokenAccount solana.PublicKey
	Blockhash    solana.Hash
	MintRent     uint64
	AccountRent  uint64
}

// MintParams describes an issuance. KnownBalance, when non-nil, is checked
// against the rent the two new accounts need.
type MintParams struct {
	Payer        solana.PrivateKey
	KnownBalance *uint64
}

// MintNFT builds the five-instruction issuance: create and initialize a
// zero-decimal mint, create and initialize a holding account owned by the
// payer, then mint one unit into it. Fresh keypairs are generated for the
// mint and the holding account; both sign alongside the payer.
func (b *Builder) MintNFT(ctx context.Context, p MintParams) (*MintPlan, error) {
	mintKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: mint keypair: %v", ErrEncoding, err)
	}
	accountKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: token account keypair: %v", ErrEncoding, err)
	}

	mintRent, err := b.client.GetMinimumBalanceForRentExemption(ctx, MintAccountSize)
	if err != nil {
		return nil, err
	}
	accountRent, err := b.client.GetMinimumBalanceForRentExemption(ctx, TokenAccountSize)
	if err != nil {
		return nil, err
	}
	if p.KnownBalance != nil && *p.KnownBalance < mintRent+accountRent {
		return nil, fmt.Errorf("%w: balance %d < rent %d lamports", ErrInsufficientFunds, *p.KnownBalance, mintRent+accountRent)
	}

	blockhash, err := b.client.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	payer := p.Payer.PublicKey()
	tx, err := AssembleMint(payer, mintKey.PublicKey(), accountKey.PublicKey(), mintRent, accountRent, blockhash)
	if err != nil {
		return nil, err
	}
	if err := Sign(tx, p.Payer, mintKey, accountKey); err != nil {
		return nil, err
	}
	b.logger.Debug().
		Str("payer", payer.String()).
		Str("mint", mintKey.PublicKey().String()).
		Str("token_account", accountKey.PublicKey().String()).
		Msg("mint assembled")

	return &MintPlan{
		Tx:           tx,
		Mint:         mintKey.PublicKey(),
		TokenAccount: accountKey.PublicKey(),
		Blockhash:    blockhash,
		MintRent:     mintRent,
		AccountRent:  accountRent,
	}, nil
}

// MintInstructions returns the five issuance instructions in execution order.
func MintInstructions(payer, mint, tokenAccount solana.PublicKey, mintRent, accountRent uint64) ([]solana.Instruction, error) {
	createMint, err := CreateAccountInstruction(payer, mint, mintRent, MintAccountSize, TokenProgramID)
	if err != nil {
		return nil, err
	}
	initMint, err := InitializeMintInstruction(mint, NFTDecimals, payer, nil)
	if err != nil {
		return nil, err
	}
	createAccount, err := CreateAccountInstruction(payer, tokenAccount, accountRent, TokenAccountSize, TokenProgramID)
	if err != nil {
		return nil, err
	}
	initAccount, err := InitializeAccountInstruction(tokenAccount, mint, payer)
	if err != nil {
		return nil, err
	}
	mintTo, err := MintToInstruction(mint, tokenAccount, payer, NFTSupply)
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{createMint, initMint, createAccount, initAccount, mintTo}, nil
}

// AssembleMint builds the unsigned issuance transaction with payer as fee payer.
func AssembleMint(payer, mint, tokenAccount solana.PublicKey, mintRent, accountRent uint64, blockhash solana.Hash) (*solana.Transaction, error) {
	ixs, err := MintInstructions(payer, mint, tokenAccount, mintRent, accountRent)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("%w: assemble mint: %v", ErrEncoding, err)
	}
	return tx, nil
}

// Sign signs tx with the given keys. Every required signer must be present.
func Sign(tx *solana.Transaction, keys ...solana.PrivateKey) error {
	_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(pk) {
				return &keys[i]
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: sign: %v", ErrEncoding, err)
	}
	return nil
}
