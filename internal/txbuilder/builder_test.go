package txbuilder

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SupplyLedger/internal/ledger/ledgertest"
)

type fixtureAccount struct {
	PubKey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

type fixtureInstruction struct {
	Name      string           `json:"name"`
	ProgramID string           `json:"program_id"`
	Accounts  []fixtureAccount `json:"accounts"`
	Data      string           `json:"data"`
}

type mintFixture struct {
	Payer        string               `json:"payer"`
	Mint         string               `json:"mint"`
	TokenAccount string               `json:"token_account"`
	Blockhash    string               `json:"blockhash"`
	MintRent     uint64               `json:"mint_rent"`
	AccountRent  uint64               `json:"account_rent"`
	Instructions []fixtureInstruction `json:"instructions"`
}

func loadMintFixture(t *testing.T) mintFixture {
	t.Helper()
	b, err := os.ReadFile("testdata/mint_instructions.json")
	require.NoError(t, err)
	var fx mintFixture
	require.NoError(t, json.Unmarshal(b, &fx))
	require.Len(t, fx.Instructions, 5)
	return fx
}

func TestMintInstructionsMatchFixture(t *testing.T) {
	fx := loadMintFixture(t)
	payer := solana.MustPublicKeyFromBase58(fx.Payer)
	mint := solana.MustPublicKeyFromBase58(fx.Mint)
	account := solana.MustPublicKeyFromBase58(fx.TokenAccount)

	ixs, err := MintInstructions(payer, mint, account, fx.MintRent, fx.AccountRent)
	require.NoError(t, err)
	require.Len(t, ixs, len(fx.Instructions))

	for i, want := range fx.Instructions {
		got := ixs[i]
		assert.Equal(t, want.ProgramID, got.ProgramID().String(), want.Name)

		data, err := got.Data()
		require.NoError(t, err)
		assert.Equal(t, want.Data, hex.EncodeToString(data), want.Name)

		metas := got.Accounts()
		require.Len(t, metas, len(want.Accounts), want.Name)
		for j, wa := range want.Accounts {
			assert.Equal(t, wa.PubKey, metas[j].PublicKey.String(), "%s account %d", want.Name, j)
			assert.Equal(t, wa.IsSigner, metas[j].IsSigner, "%s account %d signer", want.Name, j)
			assert.Equal(t, wa.IsWritable, metas[j].IsWritable, "%s account %d writable", want.Name, j)
		}
	}
}

func TestAssembleMintCompiledMessage(t *testing.T) {
	fx := loadMintFixture(t)
	payer := solana.MustPublicKeyFromBase58(fx.Payer)
	mint := solana.MustPublicKeyFromBase58(fx.Mint)
	account := solana.MustPublicKeyFromBase58(fx.TokenAccount)
	blockhash := solana.MustHashFromBase58(fx.Blockhash)

	tx, err := AssembleMint(payer, mint, account, fx.MintRent, fx.AccountRent, blockhash)
	require.NoError(t, err)

	msg := tx.Message
	assert.Equal(t, blockhash, msg.RecentBlockhash)
	assert.Equal(t, payer, msg.AccountKeys[0], "fee payer first")
	assert.Equal(t, uint8(3), msg.Header.NumRequiredSignatures)
	assert.Equal(t, uint8(0), msg.Header.NumReadonlySignedAccounts)
	assert.Equal(t, uint8(3), msg.Header.NumReadonlyUnsignedAccounts)
	require.Len(t, msg.Instructions, 5)

	for i, want := range fx.Instructions {
		ci := msg.Instructions[i]
		assert.Equal(t, want.ProgramID, msg.AccountKeys[ci.ProgramIDIndex].String(), want.Name)
		assert.Equal(t, want.Data, hex.EncodeToString(ci.Data), want.Name)
		require.Len(t, ci.Accounts, len(want.Accounts))
		for j, idx := range ci.Accounts {
			assert.Equal(t, want.Accounts[j].PubKey, msg.AccountKeys[idx].String(), "%s account %d", want.Name, j)
		}
	}
}

func TestEncodeInitializeMintWithFreezeAuthority(t *testing.T) {
	auth := solana.PublicKeyFromBytes(repeat(0x11))
	freeze := solana.PublicKeyFromBytes(repeat(0x55))
	data, err := EncodeInitializeMint(6, auth, &freeze)
	require.NoError(t, err)
	require.Len(t, data, 67)
	assert.Equal(t, byte(0), data[0])
	assert.Equal(t, byte(6), data[1])
	assert.Equal(t, auth[:], data[2:34])
	assert.Equal(t, byte(1), data[34])
	assert.Equal(t, freeze[:], data[35:])
}

func TestEncodeTransfer(t *testing.T) {
	data, err := EncodeTransfer(1_500_000_000)
	require.NoError(t, err)
	assert.Equal(t, "02000000002f685900000000", hex.EncodeToString(data))
}

func TestEncodersRejectMalformedInput(t *testing.T) {
	_, err := EncodeTransfer(0)
	assert.ErrorIs(t, err, ErrEncoding)
	_, err = EncodeMintTo(0)
	assert.ErrorIs(t, err, ErrEncoding)
	_, err = EncodeCreateAccount(1, 82, solana.PublicKey{})
	assert.ErrorIs(t, err, ErrEncoding)
	_, err = EncodeInitializeMint(0, solana.PublicKey{}, nil)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestTransferInsufficientFundsMakesNoCalls(t *testing.T) {
	fake := ledgertest.New()
	b := New(fake, zerolog.Nop())

	_, _, err := b.Transfer(context.Background(), TransferParams{
		From:         solana.NewWallet().PrivateKey,
		To:           solana.NewWallet().PublicKey(),
		Lamports:     2_000_000_000,
		KnownBalance: 1_000_000_000,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Zero(t, fake.TotalCalls())
}

func TestTransferSigned(t *testing.T) {
	fake := ledgertest.New()
	b := New(fake, zerolog.Nop())
	from := solana.NewWallet().PrivateKey
	to := solana.NewWallet().PublicKey()

	tx, bh, err := b.Transfer(context.Background(), TransferParams{
		From: from, To: to, Lamports: 500, KnownBalance: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, fake.Blockhash, bh)
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
	assert.Equal(t, from.PublicKey(), tx.Message.AccountKeys[0])
}

func TestMintNFTSignedByThree(t *testing.T) {
	fake := ledgertest.New()
	b := New(fake, zerolog.Nop())
	payer := solana.NewWallet().PrivateKey

	plan, err := b.MintNFT(context.Background(), MintParams{Payer: payer})
	require.NoError(t, err)
	require.Len(t, plan.Tx.Signatures, 3)
	assert.NoError(t, plan.Tx.VerifySignatures())
	assert.False(t, plan.Mint.IsZero())
	assert.False(t, plan.TokenAccount.IsZero())
	assert.NotEqual(t, plan.Mint, plan.TokenAccount)
	assert.Equal(t, uint64(1461600), plan.MintRent)
	assert.Equal(t, uint64(2039280), plan.AccountRent)
	assert.Equal(t, 1, fake.CallCount("getLatestBlockhash"), "one blockhash shared by all five")
	assert.Zero(t, fake.CallCount("sendTransaction"))
}

func TestMintNFTRentGuard(t *testing.T) {
	fake := ledgertest.New()
	b := New(fake, zerolog.Nop())
	low := uint64(1000)

	_, err := b.MintNFT(context.Background(), MintParams{Payer: solana.NewWallet().PrivateKey, KnownBalance: &low})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Zero(t, fake.CallCount("getLatestBlockhash"))
}

func repeat(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b
	}
	return out
}
