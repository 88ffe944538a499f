package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"SupplyLedger/internal/models"
)

const (
	transactionsDir = "transactions"
	nftsDir         = "nfts"
	nftSuffix       = "_nft.json"
)

// FileRecorder keeps one JSON document per record under a data directory:
//
//	<dir>/transactions/<kind>_<unixnano>_<uuid8>.json
//	<dir>/nfts/<product_id>_nft.json
//
// New files are created with O_EXCL so concurrent writers never share a
// name; rewrites go through a temp file and rename.
type FileRecorder struct {
	dir    string
	logger zerolog.Logger

	mu    sync.Mutex
	paths map[string]string // transaction_id -> file
}

func NewFileRecorder(dir string, logger zerolog.Logger) (*FileRecorder, error) {
	for _, sub := range []string{transactionsDir, nftsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return &FileRecorder{
		dir:    dir,
		logger: logger.With().Str("component", "recorder").Str("store", "file").Logger(),
		paths:  make(map[string]string),
	}, nil
}

func (r *FileRecorder) Dir() string { return r.dir }

func (r *FileRecorder) recordName(kind string, ts time.Time) string {
	return fmt.Sprintf("%s_%d_%s.json", kind, ts.UnixNano(), uuid.NewString()[:8])
}

func (r *FileRecorder) AppendTransfer(_ context.Context, rec *models.TransferRecord) error {
	if rec.TransactionID == "" || rec.Kind == "" {
		return fmt.Errorf("%w: transfer needs transaction_id and kind", ErrInvalidRecord)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	path := filepath.Join(r.dir, transactionsDir, r.recordName(rec.Kind, rec.Timestamp))
	if err := writeNew(path, rec); err != nil {
		return err
	}
	r.mu.Lock()
	r.paths[rec.TransactionID] = path
	r.mu.Unlock()
	r.logger.Debug().Str("transaction_id", rec.TransactionID).Str("file", filepath.Base(path)).Msg("transfer recorded")
	return nil
}

func (r *FileRecorder) FinalizeTransfer(_ context.Context, rec *models.TransferRecord) error {
	if !rec.Final() {
		return fmt.Errorf("%w: status %q is not final", ErrInvalidRecord, rec.Status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	path, ok := r.paths[rec.TransactionID]
	if !ok {
		var err error
		if path, err = r.findTransfer(rec.TransactionID); err != nil {
			return err
		}
		r.paths[rec.TransactionID] = path
	}
	var stored models.TransferRecord
	if err := readJSON(path, &stored); err != nil {
		return err
	}
	if stored.Final() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyFinalized, rec.TransactionID, stored.Status)
	}
	return replace(path, rec)
}

func (r *FileRecorder) findTransfer(id string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(r.dir, transactionsDir))
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), models.KindPayment+"_") {
			continue
		}
		path := filepath.Join(r.dir, transactionsDir, e.Name())
		var rec models.TransferRecord
		if err := readJSON(path, &rec); err != nil {
			continue
		}
		if rec.TransactionID == id {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: transfer %s", ErrNotFound, id)
}

func (r *FileRecorder) AppendPayment(_ context.Context, rec *models.PaymentRecord) error {
	if rec.PaymentID == "" {
		return fmt.Errorf("%w: payment needs payment_id", ErrInvalidRecord)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	path := filepath.Join(r.dir, transactionsDir, r.recordName(models.KindPayment, rec.Timestamp))
	return writeNew(path, rec)
}

func (r *FileRecorder) ListTransactions(_ context.Context, f Filter) ([]models.LedgerEntry, error) {
	dir := filepath.Join(r.dir, transactionsDir)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]models.LedgerEntry, 0, len(files))
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		kind, _, _ := strings.Cut(name, "_")
		if f.Kind != "" && kind != f.Kind {
			continue
		}
		path := filepath.Join(dir, name)

		var entry models.LedgerEntry
		if kind == models.KindPayment {
			var p models.PaymentRecord
			if err := readJSON(path, &p); err != nil {
				r.logger.Warn().Err(err).Str("file", name).Msg("skipping unreadable record")
				continue
			}
			entry = models.PaymentEntry(&p)
		} else {
			var t models.TransferRecord
			if err := readJSON(path, &t); err != nil {
				r.logger.Warn().Err(err).Str("file", name).Msg("skipping unreadable record")
				continue
			}
			if t.Kind == "" {
				t.Kind = kind
			}
			entry = models.TransferEntry(&t)
		}
		if f.match(entry) {
			out = append(out, entry)
		}
	}
	return f.finish(out), nil
}

func (r *FileRecorder) assetPath(productID string) string {
	return filepath.Join(r.dir, nftsDir, productID+nftSuffix)
}

func (r *FileRecorder) CreateAsset(_ context.Context, rec *models.AssetRecord) error {
	if !validProductID(rec.ProductID) {
		return fmt.Errorf("%w: product id %q", ErrInvalidRecord, rec.ProductID)
	}
	err := writeNew(r.assetPath(rec.ProductID), rec)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrDuplicateAsset, rec.ProductID)
	}
	return err
}

func (r *FileRecorder) GetAsset(_ context.Context, productID string) (*models.AssetRecord, error) {
	if !validProductID(productID) {
		return nil, fmt.Errorf("%w: asset %q", ErrNotFound, productID)
	}
	var rec models.AssetRecord
	if err := readJSON(r.assetPath(productID), &rec); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: asset %s", ErrNotFound, productID)
		}
		return nil, err
	}
	return &rec, nil
}

func (r *FileRecorder) UpdateAsset(_ context.Context, rec *models.AssetRecord) error {
	if !validProductID(rec.ProductID) {
		return fmt.Errorf("%w: asset %q", ErrNotFound, rec.ProductID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	path := r.assetPath(rec.ProductID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: asset %s", ErrNotFound, rec.ProductID)
		}
		return err
	}
	return replace(path, rec)
}

func (r *FileRecorder) ListAssets(_ context.Context, owner string) ([]models.AssetRecord, error) {
	dir := filepath.Join(r.dir, nftsDir)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]models.AssetRecord, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), nftSuffix) {
			continue
		}
		var rec models.AssetRecord
		if err := readJSON(filepath.Join(dir, file.Name()), &rec); err != nil {
			r.logger.Warn().Err(err).Str("file", file.Name()).Msg("skipping unreadable asset")
			continue
		}
		if owner == "" || rec.OwnerWallet == owner {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *FileRecorder) Close() error { return nil }

func writeNew(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func replace(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

var _ Recorder = (*FileRecorder)(nil)
