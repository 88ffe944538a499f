package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"SupplyLedger/internal/models"
)

// GormRecorder stores records in a SQL database through gorm.
type GormRecorder struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// OpenDialector maps a storage driver name to its gorm dialector.
func OpenDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}

// OpenGorm connects and migrates the record tables.
func OpenGorm(driver, dsn string, log zerolog.Logger) (*GormRecorder, error) {
	dialector, err := OpenDialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	r := NewGormRecorder(db, log)
	if err := r.Migrate(); err != nil {
		return nil, err
	}
	r.logger.Info().Str("driver", driver).Msg("database ready")
	return r, nil
}

func NewGormRecorder(db *gorm.DB, log zerolog.Logger) *GormRecorder {
	return &GormRecorder{
		db:     db,
		logger: log.With().Str("component", "recorder").Str("store", "gorm").Logger(),
	}
}

func (r *GormRecorder) Migrate() error {
	if err := r.db.AutoMigrate(&models.TransferRecord{}, &models.PaymentRecord{}, &models.AssetRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the connection; used by the readiness probe.
func (r *GormRecorder) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormRecorder) AppendTransfer(ctx context.Context, rec *models.TransferRecord) error {
	if rec.TransactionID == "" || rec.Kind == "" {
		return fmt.Errorf("%w: transfer needs transaction_id and kind", ErrInvalidRecord)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// FinalizeTransfer updates only rows still pending, so a second call
// affects nothing and reports ErrAlreadyFinalized.
func (r *GormRecorder) FinalizeTransfer(ctx context.Context, rec *models.TransferRecord) error {
	if !rec.Final() {
		return fmt.Errorf("%w: status %q is not final", ErrInvalidRecord, rec.Status)
	}
	res := r.db.WithContext(ctx).Model(&models.TransferRecord{}).
		Where("transaction_id = ? AND status = ?", rec.TransactionID, models.StatusPending).
		Updates(map[string]any{
			"signature": rec.Signature,
			"status":    rec.Status,
			"blockhash": rec.Blockhash,
			"slot":      rec.Slot,
			"error":     rec.Error,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.TransferRecord{}).
		Where("transaction_id = ?", rec.TransactionID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: transfer %s", ErrNotFound, rec.TransactionID)
	}
	return fmt.Errorf("%w: %s", ErrAlreadyFinalized, rec.TransactionID)
}

func (r *GormRecorder) AppendPayment(ctx context.Context, rec *models.PaymentRecord) error {
	if rec.PaymentID == "" {
		return fmt.Errorf("%w: payment needs payment_id", ErrInvalidRecord)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *GormRecorder) ListTransactions(ctx context.Context, f Filter) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	db := r.db.WithContext(ctx)

	if f.Kind != models.KindPayment {
		q := db.Model(&models.TransferRecord{})
		if f.Kind != "" {
			q = q.Where("kind = ?", f.Kind)
		}
		if f.Wallet != "" {
			q = q.Where("from_wallet = ? OR to_wallet = ? OR from_address = ? OR to_address = ?",
				f.Wallet, f.Wallet, f.Wallet, f.Wallet)
		}
		if f.Limit > 0 {
			q = q.Limit(f.Limit)
		}
		var transfers []models.TransferRecord
		if err := q.Order("timestamp DESC").Find(&transfers).Error; err != nil {
			return nil, err
		}
		for i := range transfers {
			out = append(out, models.TransferEntry(&transfers[i]))
		}
	}

	if f.Kind == "" || f.Kind == models.KindPayment {
		q := db.Model(&models.PaymentRecord{})
		if f.Wallet != "" {
			q = q.Where("from_wallet = ? OR to_wallet = ?", f.Wallet, f.Wallet)
		}
		if f.Limit > 0 {
			q = q.Limit(f.Limit)
		}
		var payments []models.PaymentRecord
		if err := q.Order("timestamp DESC").Find(&payments).Error; err != nil {
			return nil, err
		}
		for i := range payments {
			out = append(out, models.PaymentEntry(&payments[i]))
		}
	}
	return f.finish(out), nil
}

func (r *GormRecorder) CreateAsset(ctx context.Context, rec *models.AssetRecord) error {
	if !validProductID(rec.ProductID) {
		return fmt.Errorf("%w: product id %q", ErrInvalidRecord, rec.ProductID)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.AssetRecord{}).Where("product_id = ?", rec.ProductID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateAsset, rec.ProductID)
		}
		return tx.Create(rec).Error
	})
}

func (r *GormRecorder) GetAsset(ctx context.Context, productID string) (*models.AssetRecord, error) {
	var rec models.AssetRecord
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: asset %s", ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *GormRecorder) UpdateAsset(ctx context.Context, rec *models.AssetRecord) error {
	stored, err := r.GetAsset(ctx, rec.ProductID)
	if err != nil {
		return err
	}
	rec.ID = stored.ID
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *GormRecorder) ListAssets(ctx context.Context, owner string) ([]models.AssetRecord, error) {
	q := r.db.WithContext(ctx).Model(&models.AssetRecord{})
	if owner != "" {
		q = q.Where("owner_wallet = ?", owner)
	}
	var out []models.AssetRecord
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Recorder = (*GormRecorder)(nil)
