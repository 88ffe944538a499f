package models

import "time"

// Record kinds.
const (
	KindTransfer = "transfer"
	KindPayment  = "payment"
	KindAirdrop  = "airdrop"
	KindMint     = "mint"
)

// Transfer statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
	// StatusProcessed marks a payment intent; payments carry no transaction.
	StatusProcessed = "processed"
)

// OwnershipOffChain marks an asset whose owner changed in the record only;
// the token still sits in the issuing wallet's holding account.
const OwnershipOffChain = "off_chain"

// TransferRecord is one submitted SOL movement: transfer, airdrop or the
// fee-paying side of a mint.
type TransferRecord struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	TransactionID string    `gorm:"uniqueIndex;size:36" json:"transaction_id"`
	Kind          string    `gorm:"index;size:16" json:"kind"`
	Signature     string    `gorm:"index;size:88" json:"signature,omitempty"`
	FromWallet    string    `gorm:"index;size:100" json:"from_wallet,omitempty"`
	ToWallet      string    `gorm:"index;size:100" json:"to_wallet,omitempty"`
	FromAddress   string    `gorm:"size:44" json:"from_address,omitempty"`
	ToAddress     string    `gorm:"size:44" json:"to_address,omitempty"`
	Amount        float64   `json:"amount"`
	Lamports      uint64    `json:"lamports"`
	ProductID     string    `gorm:"size:100" json:"product_id,omitempty"`
	Timestamp     time.Time `gorm:"index" json:"timestamp"`
	Status        string    `gorm:"size:20;default:'pending'" json:"status"`
	Blockhash     string    `gorm:"size:44" json:"blockhash,omitempty"`
	Slot          uint64    `json:"slot,omitempty"`
	Error         string    `gorm:"size:512" json:"error,omitempty"`
}

// Final reports whether the status has left pending.
func (r *TransferRecord) Final() bool {
	return r.Status != "" && r.Status != StatusPending
}

// PaymentRecord is a ledger of intent between two wallets.
type PaymentRecord struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	PaymentID  string    `gorm:"uniqueIndex;size:36" json:"payment_id"`
	FromWallet string    `gorm:"index;size:100" json:"from_wallet"`
	ToWallet   string    `gorm:"index;size:100" json:"to_wallet"`
	Amount     float64   `json:"amount"`
	ProductID  string    `gorm:"size:100" json:"product_id,omitempty"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
	Status     string    `gorm:"size:20" json:"status"`
}

// AssetRecord is a minted single-supply collectible bound to a product.
type AssetRecord struct {
	ID                   uint           `gorm:"primaryKey" json:"-"`
	ProductID            string         `gorm:"uniqueIndex;size:100" json:"product_id"`
	MintAddress          string         `gorm:"size:44" json:"mint_address"`
	TokenAccount         string         `gorm:"size:44" json:"token_account"`
	OwnerWallet          string         `gorm:"index;size:100" json:"owner_wallet"`
	OwnerAddress         string         `gorm:"size:44" json:"owner_address"`
	Metadata             map[string]any `gorm:"serializer:json" json:"metadata"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	TransactionSignature string         `gorm:"size:88" json:"transaction_signature"`
	Status               string         `gorm:"size:20" json:"status"`
	OnChain              bool           `json:"on_chain"`
	PreviousOwner        string         `gorm:"size:100" json:"previous_owner,omitempty"`
	Ownership            string         `gorm:"size:20" json:"ownership,omitempty"`
}

// LedgerEntry is one row of the transaction history: exactly one of
// Transfer or Payment is set.
type LedgerEntry struct {
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Transfer  *TransferRecord `json:"transfer,omitempty"`
	Payment   *PaymentRecord  `json:"payment,omitempty"`
}

func TransferEntry(r *TransferRecord) LedgerEntry {
	return LedgerEntry{Kind: r.Kind, Timestamp: r.Timestamp, Transfer: r}
}

func PaymentEntry(r *PaymentRecord) LedgerEntry {
	return LedgerEntry{Kind: KindPayment, Timestamp: r.Timestamp, Payment: r}
}

// Involves reports whether the wallet (name or address) is a party.
func (e LedgerEntry) Involves(wallet string) bool {
	if wallet == "" {
		return true
	}
	if t := e.Transfer; t != nil {
		return t.FromWallet == wallet || t.ToWallet == wallet ||
			t.FromAddress == wallet || t.ToAddress == wallet
	}
	if p := e.Payment; p != nil {
		return p.FromWallet == wallet || p.ToWallet == wallet
	}
	return false
}
