// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"SupplyLedger/internal/ledger"
	"SupplyLedger/utils"
)

// FeePerSignature is charged to the fee payer of every accepted transaction.
const FeePerSignature = 5000

// Ledger is a fake network. Accepted system transfers move lamports
// between balances immediately; statuses come from StatusFunc, or
// report finalized success when it is nil. A signature refused through
// SendErr is unknown to the network and never has a status.
type Ledger struct {
	mu sync.Mutex

	Balances  map[solana.PublicKey]uint64
	Blockhash solana.Hash
	Rent      map[uint64]uint64

	// StatusFunc decides the status returned for sig on the n-th poll (1-based).
	StatusFunc func(sig solana.Signature, poll int, searchHistory bool) *ledger.SignatureStatus
	SendErr    error
	BalanceErr error
	AirdropErr error
	// LoseResponse is returned after the transaction has been accepted and
	// applied, as when the connection drops before the reply arrives.
	LoseResponse error

	Calls    map[string]int
	Sent     []*solana.Transaction
	polls    map[solana.Signature]int
	refused  map[solana.Signature]bool
	airdrops int
}

func New() *Ledger {
	return &Ledger{
		Balances:  make(map[solana.PublicKey]uint64),
		Blockhash: solana.Hash{0xbb, 0x01},
		Rent:      map[uint64]uint64{82: 1461600, 165: 2039280},
		Calls:     make(map[string]int),
		polls:     make(map[solana.Signature]int),
		refused:   make(map[solana.Signature]bool),
	}
}

// TotalCalls returns the number of calls made across all methods.
func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.Calls {
		n += c
	}
	return n
}

func (l *Ledger) CallCount(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Calls[method]
}

func (l *Ledger) ResetCalls() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = make(map[string]int)
}

func (l *Ledger) SetBalance(pk solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Balances[pk] = lamports
}

func (l *Ledger) Balance(pk solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Balances[pk]
}

func (l *Ledger) GetBalance(_ context.Context, addr solana.PublicKey, _ rpc.CommitmentType) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls["getBalance"]++
	if l.BalanceErr != nil {
		return 0, l.BalanceErr
	}
	return l.Balances[addr], nil
}

func (l *Ledger) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls["getLatestBlockhash"]++
	return l.Blockhash, nil
}

func (l *Ledger) GetMinimumBalanceForRentExemption(_ context.Context, space uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls["getMinimumBalanceForRentExemption"]++
	v, ok := l.Rent[space]
	if !ok {
		return 0, fmt.Errorf("%w: no rent for %d bytes", ledger.ErrNetwork, space)
	}
	return v, nil
}

func (l *Ledger) SendTransaction(_ context.Context, tx *solana.Transaction, _ ledger.SendOptions) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls["sendTransaction"]++
	if l.SendErr != nil {
		if len(tx.Signatures) > 0 {
			l.refused[tx.Signatures[0]] = true
		}
		return solana.Signature{}, l.SendErr
	}
	if len(tx.Signatures) == 0 || tx.Signatures[0].IsZero() {
		return solana.Signature{}, fmt.Errorf("%w: unsigned transaction", ledger.ErrNetwork)
	}
	// Round-trip through the wire form so tests see what a node would decode.
	wire, err := utils.EncodeBase64Tx(tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %w", ledger.ErrNetwork, err)
	}
	if tx, err = utils.DecodeBase64Tx(wire); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %w", ledger.ErrNetwork, err)
	}
	l.Sent = append(l.Sent, tx)
	l.apply(tx)
	if l.LoseResponse != nil {
		return solana.Signature{}, l.LoseResponse
	}
	return tx.Signatures[0], nil
}

func (l *Ledger) apply(tx *solana.Transaction) {
	keys := tx.Message.AccountKeys
	if len(keys) == 0 {
		return
	}
	payer := keys[0]
	fee := uint64(FeePerSignature * len(tx.Signatures))
	if l.Balances[payer] >= fee {
		l.Balances[payer] -= fee
	}
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) || !keys[ix.ProgramIDIndex].Equals(solana.SystemProgramID) {
			continue
		}
		data := []byte(ix.Data)
		if len(data) != 12 || binary.LittleEndian.Uint32(data[:4]) != 2 || len(ix.Accounts) < 2 {
			continue
		}
		amount := binary.LittleEndian.Uint64(data[4:])
		from, to := keys[ix.Accounts[0]], keys[ix.Accounts[1]]
		if l.Balances[from] < amount {
			continue
		}
		l.Balances[from] -= amount
		l.Balances[to] += amount
	}
}

func (l *Ledger) GetSignatureStatuses(_ context.Context, searchHistory bool, sigs ...solana.Signature) ([]*ledger.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls["getSignatureStatuses"]++
	if searchHistory {
		l.Calls["getSignatureStatuses:history"]++
	}
	out := make([]*ledger.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		l.polls[sig]++
		if l.refused[sig] {
			continue
		}
		if l.StatusFunc != nil {
			out[i] = l.StatusFunc(sig, l.polls[sig], searchHistory)
			continue
		}
		out[i] = &ledger.SignatureStatus{Slot: 100, Commitment: ledger.CommitmentFinalized}
	}
	return out, nil
}

func (l *Ledger) RequestAirdrop(_ context.Context, addr solana.PublicKey, lamports uint64) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls["requestAirdrop"]++
	if l.AirdropErr != nil {
		return solana.Signature{}, l.AirdropErr
	}
	l.airdrops++
	l.Balances[addr] += lamports
	var sig solana.Signature
	copy(sig[:], addr[:])
	binary.LittleEndian.PutUint64(sig[56:], uint64(l.airdrops))
	return sig, nil
}

var _ ledger.Client = (*Ledger)(nil)
