package utils

import (
	"bytes"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToLamports(t *testing.T) {
	cases := []struct {
		sol  float64
		want uint64
	}{
		{1, 1_000_000_000},
		{0.5, 500_000_000},
		{1.5, 1_500_000_000},
		{0.000000001, 1},
		{2.123456789, 2_123_456_789},
	}
	for _, c := range cases {
		got, err := ToLamports(c.sol)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "sol=%v", c.sol)
	}
}

func TestToLamportsRejectsInvalid(t *testing.T) {
	for _, v := range []float64{0, -1, 0.0000000001, math.NaN(), math.Inf(1), 1e19} {
		_, err := ToLamports(v)
		assert.ErrorIs(t, err, ErrInvalidAmount, "sol=%v", v)
	}
}

func TestFromLamports(t *testing.T) {
	assert.Equal(t, 1.5, FromLamports(1_500_000_000))
	assert.Equal(t, 0.0, FromLamports(0))
}

func TestBase64TxRoundTrip(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	to := solana.NewWallet().PublicKey()
	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		{PublicKey: payer.PublicKey(), IsSigner: true, IsWritable: true},
		{PublicKey: to, IsWritable: true},
	}, []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0})
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{1}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	require.NoError(t, err)

	enc, err := EncodeBase64Tx(tx)
	require.NoError(t, err)
	dec, err := DecodeBase64Tx(enc)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures, dec.Signatures)
	assert.Equal(t, tx.Message.RecentBlockhash, dec.Message.RecentBlockhash)
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn", false)
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
