package service

import (
	"context"
	"fmt"

	"github.com/rongwang/assetverse-server/internal/repository"
)

// EntitlementResolver decides whether an HR account may take on another employee
type EntitlementResolver struct{}

// CheckSeatAvailable locks the HR user for the rest of the transaction and
// fails with ErrSeatLimitExceeded when active affiliations already fill the package.
func (r *EntitlementResolver) CheckSeatAvailable(ctx context.Context, tx repository.Tx, hrEmail string) error {
	hr, err := tx.LockUser(ctx, hrEmail)
	if err != nil {
		return fmt.Errorf("error locking hr user: %w", err)
	}
	if hr == nil {
		return newErrorf(KindNotFound, "HR user %s not found", hrEmail)
	}

	active, err := tx.CountActiveAffiliations(ctx, hrEmail)
	if err != nil {
		return fmt.Errorf("error counting affiliations: %w", err)
	}

	if active >= int64(hr.PackageLimit) {
		return newErrorf(KindSeatLimitExceeded, "%s (%d of %d employees)", ErrMsgSeatLimit, active, hr.PackageLimit)
	}
	return nil
}
