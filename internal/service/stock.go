package service

import (
	"context"
	"fmt"

	"github.com/rongwang/assetverse-server/internal/repository"
)

// StockLedger owns the availableQuantity counter of assets
type StockLedger struct{}

// ReserveUnit takes one unit of the asset or fails with ErrOutOfStock.
// The decrement is a single conditional write, so concurrent reservations
// can never drive the quantity below zero.
func (l *StockLedger) ReserveUnit(ctx context.Context, tx repository.Tx, assetID string) error {
	reserved, err := tx.DecrementAvailableQuantity(ctx, assetID)
	if err != nil {
		return fmt.Errorf("error reserving stock: %w", err)
	}
	if !reserved {
		return ErrOutOfStock
	}
	return nil
}
