package services

import (
	"fmt"
	"strings"
)

const (
	RoleAgent     = "agent"
	RoleWarehouse = "warehouse"
	RoleSupplier  = "supplier"
)

// roleWalletName maps a participant id to its wallet name: agents use
// their own name ("inventory_agent"), warehouses and suppliers swap the
// dash of their id for an underscore ("warehouse-001" -> "warehouse_001").
func roleWalletName(role, id string) (string, error) {
	switch role {
	case RoleAgent:
		if strings.HasSuffix(id, "_agent") && len(id) > len("_agent") {
			return id, nil
		}
	case RoleWarehouse, RoleSupplier:
		if strings.HasPrefix(id, role+"-") && len(id) > len(role)+1 {
			return strings.ReplaceAll(id, "-", "_"), nil
		}
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, role)
	}
	return "", fmt.Errorf("%w: no %s wallet for %q", ErrNotFound, role, id)
}

// RoleWallet resolves the wallet of a supply-chain participant.
func (s *WalletService) RoleWallet(role, id string) (WalletInfo, error) {
	name, err := roleWalletName(role, id)
	if err != nil {
		return WalletInfo{}, err
	}
	return s.Wallet(name)
}

func (s *WalletService) AgentWallet(agent string) (WalletInfo, error) {
	return s.RoleWallet(RoleAgent, agent)
}

func (s *WalletService) WarehouseWallet(warehouseID string) (WalletInfo, error) {
	return s.RoleWallet(RoleWarehouse, warehouseID)
}

func (s *WalletService) SupplierWallet(supplierID string) (WalletInfo, error) {
	return s.RoleWallet(RoleSupplier, supplierID)
}
