// Package recorder persists transfer, payment and asset records.
package recorder

import (
	"context"
	"errors"
	"sort"
	"strings"

	"SupplyLedger/internal/models"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateAsset   = errors.New("asset already exists")
	ErrAlreadyFinalized = errors.New("transfer already finalized")
	ErrInvalidRecord    = errors.New("invalid record")
)

// Filter narrows ListTransactions. Zero values match everything.
type Filter struct {
	Wallet string
	Kind   string
	Limit  int
}

type Recorder interface {
	// AppendTransfer stores a new record, normally still pending.
	AppendTransfer(ctx context.Context, rec *models.TransferRecord) error
	// FinalizeTransfer moves a pending record to its final status. It
	// fails with ErrAlreadyFinalized on the second call.
	FinalizeTransfer(ctx context.Context, rec *models.TransferRecord) error
	AppendPayment(ctx context.Context, rec *models.PaymentRecord) error
	// ListTransactions returns entries most recent first.
	ListTransactions(ctx context.Context, f Filter) ([]models.LedgerEntry, error)

	CreateAsset(ctx context.Context, rec *models.AssetRecord) error
	GetAsset(ctx context.Context, productID string) (*models.AssetRecord, error)
	UpdateAsset(ctx context.Context, rec *models.AssetRecord) error
	// ListAssets returns assets owned by owner, or all when owner is empty.
	ListAssets(ctx context.Context, owner string) ([]models.AssetRecord, error)

	Close() error
}

func validProductID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

func (f Filter) match(e models.LedgerEntry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return e.Involves(f.Wallet)
}

// finish sorts most recent first and applies the limit.
func (f Filter) finish(entries []models.LedgerEntry) []models.LedgerEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if f.Limit > 0 && len(entries) > f.Limit {
		entries = entries[:f.Limit]
	}
	return entries
}
