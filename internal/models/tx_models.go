package models

type CreateWalletRequest struct {
	Name string `json:"name" binding:"required"`
}

type FundRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// AutoFundRequest tops up wallets below MinBalance. Amounts maps wallet
// name to SOL; when empty every wallet receives the default amount.
type AutoFundRequest struct {
	MinBalance float64            `json:"min_balance" binding:"gte=0"`
	Amounts    map[string]float64 `json:"amounts"`
}

type TransferRequest struct {
	From   string  `json:"from_wallet" binding:"required"`
	To     string  `json:"to_wallet" binding:"required"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type PaymentRequest struct {
	From      string  `json:"from_wallet" binding:"required"`
	To        string  `json:"to_wallet" binding:"required"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
	ProductID string  `json:"product_id"`
}

type MintRequest struct {
	ProductID string         `json:"product_id" binding:"required"`
	Owner     string         `json:"owner_wallet" binding:"required"`
	Metadata  map[string]any `json:"metadata"`
}

type OwnershipRequest struct {
	NewOwner string `json:"new_owner" binding:"required"`
}

type BalanceResponse struct {
	Wallet     string  `json:"wallet"`
	PublicKey  string  `json:"public_key"`
	SolBalance float64 `json:"sol_balance"`
}

// ErrorResponse is the body of every error reply. Record carries the
// persisted result when a submission failed or timed out.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Record  any    `json:"record,omitempty"`
}
