package utils

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the chain's unit scale.
const LamportsPerSOL = 1_000_000_000

var ErrInvalidAmount = errors.New("invalid amount")

var (
	lamportScale = decimal.New(1, 9)
	maxLamports  = decimal.NewFromInt(math.MaxInt64)
)

// ToLamports converts a human-facing SOL amount to lamports, truncating
// anything below one lamport.
func ToLamports(sol float64) (uint64, error) {
	if math.IsNaN(sol) || math.IsInf(sol, 0) {
		return 0, ErrInvalidAmount
	}
	d := decimal.NewFromFloat(sol)
	if d.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	l := d.Mul(lamportScale).Truncate(0)
	if l.Sign() <= 0 || l.GreaterThan(maxLamports) {
		return 0, ErrInvalidAmount
	}
	return uint64(l.IntPart()), nil
}

// FromLamports converts lamports to SOL.
func FromLamports(lamports uint64) float64 {
	f, _ := decimal.NewFromInt(int64(lamports)).Div(lamportScale).Float64()
	return f
}
