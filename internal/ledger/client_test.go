package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []interface{}   `json:"params"`
}

// rpcServer answers JSON-RPC calls from a method -> result table.
func rpcServer(t *testing.T, results map[string]interface{}, seen *[]rpcRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if seen != nil {
			*seen = append(*seen, req)
		}
		w.Header().Set("Content-Type", "application/json")
		res, ok := results[req.Method]
		if !ok {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]interface{}{"code": -32601, "message": "method not found"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": res})
	}))
}

func ctxResult(v interface{}) map[string]interface{} {
	return map[string]interface{}{"context": map[string]interface{}{"slot": 42}, "value": v}
}

func TestRPCClientBalanceAndRent(t *testing.T) {
	srv := rpcServer(t, map[string]interface{}{
		"getBalance":                        ctxResult(2_500_000_000),
		"getMinimumBalanceForRentExemption": 1461600,
	}, nil)
	defer srv.Close()

	c := NewRPCClient(srv.URL, zerolog.Nop())
	bal, err := c.GetBalance(context.Background(), solana.NewWallet().PublicKey(), rpc.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), bal)

	rent, err := c.GetMinimumBalanceForRentExemption(context.Background(), 82)
	require.NoError(t, err)
	assert.Equal(t, uint64(1461600), rent)
}

func TestRPCClientBlockhash(t *testing.T) {
	hash := solana.Hash{9, 9, 9}
	srv := rpcServer(t, map[string]interface{}{
		"getLatestBlockhash": ctxResult(map[string]interface{}{
			"blockhash":            hash.String(),
			"lastValidBlockHeight": 1000,
		}),
	}, nil)
	defer srv.Close()

	got, err := NewRPCClient(srv.URL, zerolog.Nop()).GetLatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash, got)
}

func TestRPCClientSignatureStatuses(t *testing.T) {
	srv := rpcServer(t, map[string]interface{}{
		"getSignatureStatuses": ctxResult([]interface{}{
			map[string]interface{}{"slot": 7, "confirmations": nil, "err": nil, "confirmationStatus": "finalized"},
			nil,
			map[string]interface{}{"slot": 8, "confirmations": 1, "err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}, "confirmationStatus": "processed"},
		}),
	}, nil)
	defer srv.Close()

	sigs := []solana.Signature{{1}, {2}, {3}}
	st, err := NewRPCClient(srv.URL, zerolog.Nop()).GetSignatureStatuses(context.Background(), true, sigs...)
	require.NoError(t, err)
	require.Len(t, st, 3)

	require.NotNil(t, st[0])
	assert.Equal(t, CommitmentFinalized, st[0].Commitment)
	assert.Nil(t, st[0].Err)
	assert.Nil(t, st[1])
	require.NotNil(t, st[2])
	assert.NotNil(t, st[2].Err)
}

func signedTx(t *testing.T) *solana.Transaction {
	t.Helper()
	payer := solana.NewWallet().PrivateKey
	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		{PublicKey: payer.PublicKey(), IsSigner: true, IsWritable: true},
	}, []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0})
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{4}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey { return &payer })
	require.NoError(t, err)
	return tx
}

func TestRPCClientSendTransactionUsesBase64(t *testing.T) {
	tx := signedTx(t)

	var seen []rpcRequest
	srv := rpcServer(t, map[string]interface{}{"sendTransaction": tx.Signatures[0].String()}, &seen)
	defer srv.Close()

	sig, err := NewRPCClient(srv.URL, zerolog.Nop()).SendTransaction(context.Background(), tx, SendOptions{SkipPreflight: true})
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)

	require.Len(t, seen, 1)
	require.Len(t, seen[0].Params, 2)
	opts, ok := seen[0].Params[1].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "base64", opts["encoding"])
	assert.Equal(t, true, opts["skipPreflight"])
}

func TestRPCClientErrorsAreNetworkErrors(t *testing.T) {
	srv := rpcServer(t, map[string]interface{}{}, nil)
	defer srv.Close()

	_, err := NewRPCClient(srv.URL, zerolog.Nop()).GetBalance(context.Background(), solana.PublicKey{}, rpc.CommitmentFinalized)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestRPCClientSendErrorResponseIsRejection(t *testing.T) {
	srv := rpcServer(t, map[string]interface{}{}, nil)
	defer srv.Close()

	_, err := NewRPCClient(srv.URL, zerolog.Nop()).SendTransaction(context.Background(), signedTx(t), SendOptions{})
	assert.ErrorIs(t, err, ErrRejected)
	assert.NotErrorIs(t, err, ErrNetwork)
}

func TestRPCClientSendTransportFailureIsNetworkError(t *testing.T) {
	srv := rpcServer(t, map[string]interface{}{}, nil)
	url := srv.URL
	srv.Close()

	_, err := NewRPCClient(url, zerolog.Nop()).SendTransaction(context.Background(), signedTx(t), SendOptions{})
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestCommitmentRank(t *testing.T) {
	assert.Less(t, CommitmentRank(CommitmentProcessed), CommitmentRank(CommitmentConfirmed))
	assert.Less(t, CommitmentRank(CommitmentConfirmed), CommitmentRank(CommitmentFinalized))
	assert.Equal(t, 0, CommitmentRank(""))
}
