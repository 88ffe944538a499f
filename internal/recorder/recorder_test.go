package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SupplyLedger/internal/models"
)

type factory func(t *testing.T) Recorder

func stores() map[string]factory {
	return map[string]factory{
		"file": func(t *testing.T) Recorder {
			r, err := NewFileRecorder(t.TempDir(), zerolog.Nop())
			require.NoError(t, err)
			return r
		},
		"sqlite": func(t *testing.T) Recorder {
			r, err := OpenGorm("sqlite", filepath.Join(t.TempDir(), "ledger.db"), zerolog.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { r.Close() })
			return r
		},
	}
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func transfer(kind, from, to string, offset time.Duration) *models.TransferRecord {
	return &models.TransferRecord{
		TransactionID: uuid.NewString(),
		Kind:          kind,
		FromWallet:    from,
		ToWallet:      to,
		Amount:        0.5,
		Lamports:      500_000_000,
		Timestamp:     base.Add(offset),
		Status:        models.StatusPending,
	}
}

func TestTransferLifecycle(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := open(t)

			rec := transfer(models.KindTransfer, "supplier", "warehouse", 0)
			require.NoError(t, r.AppendTransfer(ctx, rec))

			final := *rec
			final.Status = models.StatusConfirmed
			final.Signature = "5sig"
			final.Slot = 42
			require.NoError(t, r.FinalizeTransfer(ctx, &final))

			again := final
			again.Status = models.StatusFailed
			assert.ErrorIs(t, r.FinalizeTransfer(ctx, &again), ErrAlreadyFinalized)

			entries, err := r.ListTransactions(ctx, Filter{})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			got := entries[0].Transfer
			require.NotNil(t, got)
			assert.Equal(t, models.StatusConfirmed, got.Status)
			assert.Equal(t, "5sig", got.Signature)
			assert.Equal(t, uint64(42), got.Slot)
		})
	}
}

func TestFinalizeRejectsPendingAndUnknown(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := open(t)
			rec := transfer(models.KindTransfer, "a", "b", 0)
			assert.ErrorIs(t, r.FinalizeTransfer(ctx, rec), ErrInvalidRecord)

			rec.Status = models.StatusFailed
			assert.ErrorIs(t, r.FinalizeTransfer(ctx, rec), ErrNotFound)
		})
	}
}

func TestListTransactionsFilters(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := open(t)

			require.NoError(t, r.AppendTransfer(ctx, transfer(models.KindTransfer, "supplier", "warehouse", 1*time.Minute)))
			require.NoError(t, r.AppendTransfer(ctx, transfer(models.KindAirdrop, "", "supplier", 2*time.Minute)))
			require.NoError(t, r.AppendTransfer(ctx, transfer(models.KindTransfer, "warehouse", "agent", 3*time.Minute)))
			require.NoError(t, r.AppendPayment(ctx, &models.PaymentRecord{
				PaymentID:  uuid.NewString(),
				FromWallet: "agent",
				ToWallet:   "supplier",
				Amount:     1.25,
				ProductID:  "P-1",
				Timestamp:  base.Add(4 * time.Minute),
				Status:     models.StatusProcessed,
			}))

			all, err := r.ListTransactions(ctx, Filter{})
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, models.KindPayment, all[0].Kind, "most recent first")
			for i := 1; i < len(all); i++ {
				assert.False(t, all[i].Timestamp.After(all[i-1].Timestamp))
			}

			supplier, err := r.ListTransactions(ctx, Filter{Wallet: "supplier"})
			require.NoError(t, err)
			assert.Len(t, supplier, 3)

			transfers, err := r.ListTransactions(ctx, Filter{Kind: models.KindTransfer})
			require.NoError(t, err)
			assert.Len(t, transfers, 2)

			payments, err := r.ListTransactions(ctx, Filter{Kind: models.KindPayment})
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, "P-1", payments[0].Payment.ProductID)

			limited, err := r.ListTransactions(ctx, Filter{Wallet: "warehouse", Limit: 1})
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, "agent", limited[0].Transfer.ToWallet)
		})
	}
}

func TestAssets(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := open(t)

			asset := &models.AssetRecord{
				ProductID:    "SKU-9",
				MintAddress:  "mint1",
				TokenAccount: "acct1",
				OwnerWallet:  "supplier",
				Metadata:     map[string]any{"origin": "Lagos", "batch": float64(7)},
				CreatedAt:    base,
				UpdatedAt:    base,
				Status:       models.StatusConfirmed,
				OnChain:      true,
			}
			require.NoError(t, r.CreateAsset(ctx, asset))

			dup := *asset
			dup.ID = 0
			assert.ErrorIs(t, r.CreateAsset(ctx, &dup), ErrDuplicateAsset)

			got, err := r.GetAsset(ctx, "SKU-9")
			require.NoError(t, err)
			assert.Equal(t, "mint1", got.MintAddress)
			assert.Equal(t, "Lagos", got.Metadata["origin"])

			got.OwnerWallet = "warehouse"
			got.PreviousOwner = "supplier"
			got.Ownership = models.OwnershipOffChain
			require.NoError(t, r.UpdateAsset(ctx, got))

			owned, err := r.ListAssets(ctx, "warehouse")
			require.NoError(t, err)
			require.Len(t, owned, 1)
			assert.Equal(t, "supplier", owned[0].PreviousOwner)

			none, err := r.ListAssets(ctx, "supplier")
			require.NoError(t, err)
			assert.Empty(t, none)

			_, err = r.GetAsset(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, r.UpdateAsset(ctx, &models.AssetRecord{ProductID: "missing"}), ErrNotFound)
		})
	}
}

func TestFileRecorderLayout(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRecorder(dir, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, r.AppendTransfer(ctx, transfer(models.KindMint, "supplier", "", 0)))
	require.NoError(t, r.CreateAsset(ctx, &models.AssetRecord{ProductID: "P-7"}))

	files, err := filepath.Glob(filepath.Join(dir, "transactions", "mint_*_*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.FileExists(t, filepath.Join(dir, "nfts", "P-7_nft.json"))

	assert.ErrorIs(t, r.CreateAsset(ctx, &models.AssetRecord{ProductID: "../escape"}), ErrInvalidRecord)
}

func TestFileRecorderSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRecorder(dir, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, r.AppendTransfer(ctx, transfer(models.KindTransfer, "a", "b", 0)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transactions", "transfer_1_deadbeef.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nfts", "broken_nft.json"), []byte("]"), 0o644))

	entries, err := r.ListTransactions(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assets, err := r.ListAssets(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestFileRecorderFinalizeAfterRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	first, err := NewFileRecorder(dir, zerolog.Nop())
	require.NoError(t, err)
	rec := transfer(models.KindTransfer, "a", "b", 0)
	require.NoError(t, first.AppendTransfer(ctx, rec))

	second, err := NewFileRecorder(dir, zerolog.Nop())
	require.NoError(t, err)
	rec.Status = models.StatusTimedOut
	require.NoError(t, second.FinalizeTransfer(ctx, rec))

	entries, err := second.ListTransactions(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusTimedOut, entries[0].Transfer.Status)
}

func TestFileRecorderConcurrentAppends(t *testing.T) {
	r, err := NewFileRecorder(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := transfer(models.KindTransfer, fmt.Sprintf("w%d", i), "sink", 0)
			assert.NoError(t, r.AppendTransfer(ctx, rec))
		}(i)
	}
	wg.Wait()

	entries, err := r.ListTransactions(ctx, Filter{Wallet: "sink"})
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestOpenDialectorUnknown(t *testing.T) {
	_, err := OpenDialector("oracle", "")
	assert.Error(t, err)
	for _, d := range []string{"mysql", "postgres", "sqlite"} {
		dl, err := OpenDialector(d, "dsn")
		require.NoError(t, err)
		assert.Equal(t, d, dl.Name())
	}
}
