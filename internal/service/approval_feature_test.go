package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/repository"
	"github.com/rongwang/assetverse-server/internal/service"
	"go.uber.org/zap"
)

type approvalTestContext struct {
	ctx       context.Context
	repo      *repository.MemoryRepository
	approvals *service.ApprovalService
	hr        *models.User
	assets    map[string]*models.Asset
	requests  map[string][]*models.Request
	err       error
}

func (a *approvalTestContext) reset() {
	a.ctx = context.Background()
	a.repo = repository.NewMemoryRepository()
	a.approvals = service.NewApprovalService(a.repo, zap.NewNop())
	a.hr = nil
	a.assets = map[string]*models.Asset{}
	a.requests = map[string][]*models.Request{}
	a.err = nil
}

func (a *approvalTestContext) anHRManagerWithPackageLimit(email, company string, limit int) error {
	a.hr = &models.User{Email: email, Name: "HR", Role: models.RoleHR, CompanyName: company}
	if err := a.repo.CreateUser(a.ctx, a.hr); err != nil {
		return err
	}
	return a.repo.WithinTx(a.ctx, func(tx repository.Tx) error {
		_, err := tx.UpdateUserEntitlement(a.ctx, email, limit, "Basic")
		return err
	})
}

func (a *approvalTestContext) anAssetWithUnits(name string, units int) error {
	asset := &models.Asset{
		HREmail:           a.hr.Email,
		CompanyName:       a.hr.CompanyName,
		ProductName:       name,
		ProductType:       models.ProductReturnable,
		AvailableQuantity: units,
	}
	if err := a.repo.CreateAsset(a.ctx, asset); err != nil {
		return err
	}
	a.assets[name] = asset
	return nil
}

func (a *approvalTestContext) employeeHasRequested(email, assetName string) error {
	asset, ok := a.assets[assetName]
	if !ok {
		return fmt.Errorf("unknown asset %q", assetName)
	}

	user, err := a.repo.GetUserByEmail(a.ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		user = &models.User{Email: email, Name: email, Role: models.RoleEmployee}
		if err := a.repo.CreateUser(a.ctx, user); err != nil {
			return err
		}
	}

	req := &models.Request{
		RequesterEmail: email,
		RequesterName:  user.Name,
		HREmail:        asset.HREmail,
		CompanyName:    asset.CompanyName,
		AssetID:        asset.ID,
		AssetName:      asset.ProductName,
		AssetType:      asset.ProductType,
		RequestStatus:  models.RequestPending,
	}
	if err := a.repo.CreateRequest(a.ctx, req); err != nil {
		return err
	}
	a.requests[email] = append(a.requests[email], req)
	return nil
}

func (a *approvalTestContext) decide(email string, status models.RequestStatus, all bool) error {
	reqs := a.requests[email]
	if len(reqs) == 0 {
		return fmt.Errorf("no requests from %s", email)
	}
	if !all {
		reqs = reqs[:1]
	}
	for _, req := range reqs {
		_, a.err = a.approvals.UpdateStatus(a.ctx, a.hr.Email, req.ID, service.StatusUpdate{Status: status})
		if a.err != nil {
			return nil
		}
	}
	return nil
}

func (a *approvalTestContext) approvesTheRequestFrom(email string) error {
	return a.decide(email, models.RequestApproved, false)
}

func (a *approvalTestContext) approvesEveryRequestFrom(email string) error {
	if err := a.decide(email, models.RequestApproved, true); err != nil {
		return err
	}
	if a.err != nil {
		return fmt.Errorf("approving requests from %s: %w", email, a.err)
	}
	return nil
}

func (a *approvalTestContext) rejectsTheRequestFrom(email string) error {
	if err := a.decide(email, models.RequestRejected, false); err != nil {
		return err
	}
	return a.err
}

func (a *approvalTestContext) theApprovalSucceeds() error {
	return a.err
}

func (a *approvalTestContext) theApprovalFailsWith(code string) error {
	if a.err == nil {
		return errors.New("expected the approval to fail but it succeeded")
	}
	if got := service.KindOf(a.err).String(); got != code {
		return fmt.Errorf("expected %s, got %s (%v)", code, got, a.err)
	}
	return nil
}

func (a *approvalTestContext) assetHasUnits(name string, units int) error {
	asset, err := a.repo.GetAsset(a.ctx, a.assets[name].ID)
	if err != nil {
		return err
	}
	if asset.AvailableQuantity != units {
		return fmt.Errorf("expected %d units of %s, got %d", units, name, asset.AvailableQuantity)
	}
	return nil
}

func (a *approvalTestContext) employeeHoldsAssetsAt(email string, count int, company string) error {
	affiliations, err := a.repo.ListAffiliations(a.ctx, models.AffiliationFilter{EmployeeEmail: email, ActiveOnly: true})
	if err != nil {
		return err
	}
	for _, af := range affiliations {
		if af.CompanyName == company {
			if af.AssetCount != count {
				return fmt.Errorf("expected assetCount %d, got %d", count, af.AssetCount)
			}
			return nil
		}
	}
	return fmt.Errorf("%s has no active affiliation at %s", email, company)
}

func (a *approvalTestContext) employeeHasNoAffiliation(email string) error {
	affiliations, err := a.repo.ListAffiliations(a.ctx, models.AffiliationFilter{EmployeeEmail: email})
	if err != nil {
		return err
	}
	if len(affiliations) != 0 {
		return fmt.Errorf("expected no affiliation for %s, found %d", email, len(affiliations))
	}
	return nil
}

func (a *approvalTestContext) hrHasActiveEmployees(count int) error {
	affiliations, err := a.repo.ListAffiliations(a.ctx, models.AffiliationFilter{HREmail: a.hr.Email, ActiveOnly: true})
	if err != nil {
		return err
	}
	if len(affiliations) != count {
		return fmt.Errorf("expected %d active employees, got %d", count, len(affiliations))
	}
	return nil
}

func (a *approvalTestContext) requestIsStillPending(email string) error {
	req, err := a.repo.GetRequest(a.ctx, a.requests[email][0].ID)
	if err != nil {
		return err
	}
	if req.RequestStatus != models.RequestPending {
		return fmt.Errorf("expected pending, got %s", req.RequestStatus)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &approvalTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^an HR manager "([^"]*)" at "([^"]*)" with a package limit of (\d+)$`, tc.anHRManagerWithPackageLimit)
	ctx.Step(`^an asset "([^"]*)" with (\d+) units available$`, tc.anAssetWithUnits)
	ctx.Step(`^"([^"]*)" has requested "([^"]*)"$`, tc.employeeHasRequested)

	// When steps
	ctx.Step(`^the HR manager approves the request from "([^"]*)"$`, tc.approvesTheRequestFrom)
	ctx.Step(`^the HR manager approves every request from "([^"]*)"$`, tc.approvesEveryRequestFrom)
	ctx.Step(`^the HR manager rejects the request from "([^"]*)"$`, tc.rejectsTheRequestFrom)

	// Then steps
	ctx.Step(`^the approval succeeds$`, tc.theApprovalSucceeds)
	ctx.Step(`^the approval fails with "([^"]*)"$`, tc.theApprovalFailsWith)
	ctx.Step(`^"([^"]*)" has (\d+) units available$`, tc.assetHasUnits)
	ctx.Step(`^"([^"]*)" holds (\d+) assets at "([^"]*)"$`, tc.employeeHoldsAssetsAt)
	ctx.Step(`^"([^"]*)" has no affiliation$`, tc.employeeHasNoAffiliation)
	ctx.Step(`^the HR manager has (\d+) active employees$`, tc.hrHasActiveEmployees)
	ctx.Step(`^the request from "([^"]*)" is still pending$`, tc.requestIsStillPending)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
