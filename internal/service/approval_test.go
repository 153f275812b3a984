package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApprovals(repo repository.Repository) *ApprovalService {
	s := NewApprovalService(repo, zap.NewNop())
	fixed := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	s.affiliations.now = s.now
	return s
}

func TestApproveCreatesAffiliationAndAssignment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	asset := f.asset(t, "Laptop", 3)
	req := f.request(t, f.emp, asset)
	s := newTestApprovals(f.repo)

	result, err := s.UpdateStatus(ctx, f.hr.Email, req.ID, StatusUpdate{Status: models.RequestApproved, Note: "ok"})
	require.NoError(t, err)

	assert.Equal(t, AffiliationNew, result.Outcome)
	assert.Equal(t, models.RequestApproved, result.Request.RequestStatus)
	assert.Equal(t, f.hr.Email, result.Request.ProcessedBy)
	require.NotNil(t, result.Request.ProcessedAt)
	assert.Equal(t, "ok", result.Request.Note)

	assert.Equal(t, 1, result.Affiliation.AssetCount)
	assert.Equal(t, "Eli", result.Affiliation.EmployeeName)
	assert.Equal(t, "eli.png", result.Affiliation.EmployeeLogo)
	assert.Equal(t, "acme.png", result.Affiliation.CompanyLogo)

	assert.Equal(t, req.ID, result.Assignment.RequestID)
	assert.Equal(t, models.AssignmentAssigned, result.Assignment.Status)
	assert.Equal(t, 2, f.quantity(t, asset.ID))

	stored, err := f.repo.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, stored.RequestStatus)
}

func TestSecondApprovalReusesAffiliation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	asset := f.asset(t, "Monitor", 5)
	s := newTestApprovals(f.repo)

	first := f.request(t, f.emp, asset)
	second := f.request(t, f.emp, asset)

	_, err := s.UpdateStatus(ctx, f.hr.Email, first.ID, StatusUpdate{Status: models.RequestApproved})
	require.NoError(t, err)

	// Limit of one is full, but the employee already holds the seat
	result, err := s.UpdateStatus(ctx, f.hr.Email, second.ID, StatusUpdate{Status: models.RequestApproved})
	require.NoError(t, err)
	assert.Equal(t, AffiliationExisting, result.Outcome)
	assert.Equal(t, 2, result.Affiliation.AssetCount)
	assert.Equal(t, 3, f.quantity(t, asset.ID))

	affiliations, err := f.repo.ListAffiliations(ctx, models.AffiliationFilter{HREmail: f.hr.Email})
	require.NoError(t, err)
	require.Len(t, affiliations, 1)
	assert.Equal(t, 2, affiliations[0].AssetCount)
}

func TestApprovalRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("OutOfStock", func(t *testing.T) {
		f := newFixture(t, 3)
		asset := f.asset(t, "Phone", 0)
		req := f.request(t, f.emp, asset)
		s := newTestApprovals(f.repo)

		_, err := s.UpdateStatus(ctx, f.hr.Email, req.ID, StatusUpdate{Status: models.RequestApproved})
		assert.True(t, errors.Is(err, ErrOutOfStock))

		affiliations, err := f.repo.ListAffiliations(ctx, models.AffiliationFilter{HREmail: f.hr.Email})
		require.NoError(t, err)
		assert.Empty(t, affiliations, "no affiliation may survive a failed approval")

		stored, err := f.repo.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestPending, stored.RequestStatus)
	})

	t.Run("SeatLimit", func(t *testing.T) {
		f := newFixture(t, 0)
		asset := f.asset(t, "Phone", 4)
		req := f.request(t, f.emp, asset)
		s := newTestApprovals(f.repo)

		_, err := s.UpdateStatus(ctx, f.hr.Email, req.ID, StatusUpdate{Status: models.RequestApproved})
		assert.True(t, errors.Is(err, ErrSeatLimitExceeded))
		assert.Equal(t, 4, f.quantity(t, asset.ID))

		assigned, err := f.repo.ListAssignedAssets(ctx, f.emp.Email)
		require.NoError(t, err)
		assert.Empty(t, assigned)
	})
}

func TestUpdateStatusGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	asset := f.asset(t, "Desk", 2)
	req := f.request(t, f.emp, asset)
	s := newTestApprovals(f.repo)

	tests := []struct {
		name   string
		caller string
		id     string
		status models.RequestStatus
		kind   Kind
	}{
		{"UnknownRequest", f.hr.Email, "missing", models.RequestApproved, KindNotFound},
		{"NotTheRequestHR", "other@hr.test", req.ID, models.RequestApproved, KindForbidden},
		{"BadStatus", f.hr.Email, req.ID, models.RequestReturned, KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpdateStatus(ctx, tt.caller, tt.id, StatusUpdate{Status: tt.status})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}

	_, err := s.UpdateStatus(ctx, f.hr.Email, req.ID, StatusUpdate{Status: models.RequestRejected, Note: "not now"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.quantity(t, asset.ID), "rejection leaves stock alone")

	_, err = s.UpdateStatus(ctx, f.hr.Email, req.ID, StatusUpdate{Status: models.RequestApproved})
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestReturn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	asset := f.asset(t, "Camera", 1)
	req := f.request(t, f.emp, asset)
	s := newTestApprovals(f.repo)

	_, err := s.Return(ctx, f.emp.Email, req.ID)
	assert.Equal(t, KindInvalidTransition, KindOf(err), "pending requests cannot be returned")

	_, err = s.UpdateStatus(ctx, f.hr.Email, req.ID, StatusUpdate{Status: models.RequestApproved})
	require.NoError(t, err)

	_, err = s.Return(ctx, f.hr.Email, req.ID)
	assert.Equal(t, KindForbidden, KindOf(err))

	returned, err := s.Return(ctx, f.emp.Email, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestReturned, returned.RequestStatus)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, 0, f.quantity(t, asset.ID), "returns do not restock")

	_, err = s.Return(ctx, f.emp.Email, req.ID)
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}
