package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSeatAvailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	resolver := &EntitlementResolver{}

	err := f.repo.WithinTx(ctx, func(tx repository.Tx) error {
		return resolver.CheckSeatAvailable(ctx, tx, f.hr.Email)
	})
	require.NoError(t, err)

	err = f.repo.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.CreateAffiliation(ctx, &models.EmployeeAffiliation{
			EmployeeEmail: f.emp.Email,
			HREmail:       f.hr.Email,
			CompanyName:   f.hr.CompanyName,
			AssetCount:    1,
			Status:        models.AffiliationActive,
		})
	})
	require.NoError(t, err)

	err = f.repo.WithinTx(ctx, func(tx repository.Tx) error {
		return resolver.CheckSeatAvailable(ctx, tx, f.hr.Email)
	})
	assert.True(t, errors.Is(err, ErrSeatLimitExceeded))

	err = f.repo.WithinTx(ctx, func(tx repository.Tx) error {
		return resolver.CheckSeatAvailable(ctx, tx, "ghost@nowhere.test")
	})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRecordAssignment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	manager := NewAffiliationManager(&EntitlementResolver{})
	party := AssignmentParty{
		EmployeeEmail: f.emp.Email,
		EmployeeName:  f.emp.Name,
		HREmail:       f.hr.Email,
		CompanyName:   f.hr.CompanyName,
	}

	var outcomes []AffiliationOutcome
	for i := 0; i < 2; i++ {
		err := f.repo.WithinTx(ctx, func(tx repository.Tx) error {
			outcome, _, err := manager.RecordAssignment(ctx, tx, party)
			outcomes = append(outcomes, outcome)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []AffiliationOutcome{AffiliationNew, AffiliationExisting}, outcomes)
	assert.Equal(t, "new", AffiliationNew.String())

	// A different company under the same HR needs its own seat
	other := party
	other.CompanyName = "Acme Labs"
	err := f.repo.WithinTx(ctx, func(tx repository.Tx) error {
		_, _, err := manager.RecordAssignment(ctx, tx, other)
		return err
	})
	assert.True(t, errors.Is(err, ErrSeatLimitExceeded))
}

func TestReserveUnit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	asset := f.asset(t, "Badge", 1)
	ledger := &StockLedger{}

	reserve := func() error {
		return f.repo.WithinTx(ctx, func(tx repository.Tx) error {
			return ledger.ReserveUnit(ctx, tx, asset.ID)
		})
	}

	require.NoError(t, reserve())
	assert.True(t, errors.Is(reserve(), ErrOutOfStock))
	assert.Equal(t, 0, f.quantity(t, asset.ID))
}
