package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/repository"
)

// AffiliationOutcome tells whether an approval reused a seat or took a new one
type AffiliationOutcome int

const (
	AffiliationExisting AffiliationOutcome = iota
	AffiliationNew
)

func (o AffiliationOutcome) String() string {
	if o == AffiliationNew {
		return "new"
	}
	return "existing"
}

// AssignmentParty identifies both sides of an assignment
type AssignmentParty struct {
	EmployeeEmail string
	EmployeeName  string
	EmployeeLogo  string
	HREmail       string
	CompanyName   string
	CompanyLogo   string
}

// AffiliationPlan is the result of Resolve, applied later by Apply
type AffiliationPlan struct {
	Outcome  AffiliationOutcome
	Existing *models.EmployeeAffiliation
	Party    AssignmentParty
}

// AffiliationManager maintains one active affiliation per (employee, hr, company)
type AffiliationManager struct {
	entitlements *EntitlementResolver
	now          func() time.Time
}

func NewAffiliationManager(entitlements *EntitlementResolver) *AffiliationManager {
	return &AffiliationManager{entitlements: entitlements, now: time.Now}
}

// Resolve finds the active affiliation for the party or, when there is none,
// checks that the HR account has a free seat. It does not write anything the
// caller has to undo.
func (m *AffiliationManager) Resolve(ctx context.Context, tx repository.Tx, party AssignmentParty) (*AffiliationPlan, error) {
	existing, err := tx.FindActiveAffiliation(ctx, party.EmployeeEmail, party.HREmail, party.CompanyName)
	if err != nil {
		return nil, fmt.Errorf("error finding affiliation: %w", err)
	}
	if existing != nil {
		return &AffiliationPlan{Outcome: AffiliationExisting, Existing: existing, Party: party}, nil
	}

	if err := m.entitlements.CheckSeatAvailable(ctx, tx, party.HREmail); err != nil {
		return nil, err
	}

	// Another approval may have created it while we waited for the HR lock
	existing, err = tx.FindActiveAffiliation(ctx, party.EmployeeEmail, party.HREmail, party.CompanyName)
	if err != nil {
		return nil, fmt.Errorf("error finding affiliation: %w", err)
	}
	if existing != nil {
		return &AffiliationPlan{Outcome: AffiliationExisting, Existing: existing, Party: party}, nil
	}

	return &AffiliationPlan{Outcome: AffiliationNew, Party: party}, nil
}

// Apply increments the existing affiliation or inserts a new one with assetCount 1
func (m *AffiliationManager) Apply(ctx context.Context, tx repository.Tx, plan *AffiliationPlan) (*models.EmployeeAffiliation, error) {
	if plan.Outcome == AffiliationExisting {
		if err := tx.IncrementAffiliationAssetCount(ctx, plan.Existing.ID); err != nil {
			return nil, fmt.Errorf("error updating affiliation: %w", err)
		}
		updated := *plan.Existing
		updated.AssetCount++
		return &updated, nil
	}

	p := plan.Party
	affiliation := &models.EmployeeAffiliation{
		EmployeeEmail:   p.EmployeeEmail,
		EmployeeName:    p.EmployeeName,
		EmployeeLogo:    p.EmployeeLogo,
		HREmail:         p.HREmail,
		CompanyName:     p.CompanyName,
		CompanyLogo:     p.CompanyLogo,
		AssetCount:      1,
		AffiliationDate: m.now().UTC(),
		Status:          models.AffiliationActive,
	}
	if err := tx.CreateAffiliation(ctx, affiliation); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(KindConflict, "affiliation was created concurrently, retry the approval")
		}
		return nil, fmt.Errorf("error creating affiliation: %w", err)
	}
	return affiliation, nil
}

// RecordAssignment resolves and applies in one step
func (m *AffiliationManager) RecordAssignment(ctx context.Context, tx repository.Tx, party AssignmentParty) (AffiliationOutcome, *models.EmployeeAffiliation, error) {
	plan, err := m.Resolve(ctx, tx, party)
	if err != nil {
		return AffiliationExisting, nil, err
	}
	affiliation, err := m.Apply(ctx, tx, plan)
	if err != nil {
		return AffiliationExisting, nil, err
	}
	return plan.Outcome, affiliation, nil
}
