package services

import (
	"errors"
	"fmt"

	"SupplyLedger/internal/confirm"
	"SupplyLedger/internal/keystore"
	"SupplyLedger/internal/ledger"
	"SupplyLedger/internal/recorder"
	"SupplyLedger/internal/txbuilder"
	"SupplyLedger/utils"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrDuplicateName     = keystore.ErrDuplicateName
	ErrDuplicateAsset    = recorder.ErrDuplicateAsset
	ErrInsufficientFunds = txbuilder.ErrInsufficientFunds
	ErrNetwork           = ledger.ErrNetwork
	ErrEncoding          = txbuilder.ErrEncoding
	ErrTimedOut          = confirm.ErrTimedOut
	ErrTransactionFailed = confirm.ErrTransactionFailed
)

// translate folds the leaf packages' lookup and validation errors into the
// service taxonomy, keeping the original in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidRequest):
		return err
	case errors.Is(err, keystore.ErrNotFound), errors.Is(err, recorder.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, keystore.ErrInvalidName),
		errors.Is(err, recorder.ErrInvalidRecord),
		errors.Is(err, utils.ErrInvalidAmount):
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return err
}
