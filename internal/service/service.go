package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rongwang/assetverse-server/internal/auth"
	"github.com/rongwang/assetverse-server/internal/gateway"
	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/repository"
	"go.uber.org/zap"
)

const (
	// TopRequestedLimit is the size of the most-requested assets ranking
	TopRequestedLimit = 5
	// MaxPageSize caps list endpoints that accept a limit
	MaxPageSize = 100
)

// Service defines all the business logic operations
type Service interface {
	// Users
	RegisterUser(ctx context.Context, req models.RegisterUserRequest) (*models.User, error)
	GetUser(ctx context.Context, caller, email string) (*models.User, error)
	LookupUser(ctx context.Context, email string) (*models.User, error)

	// Packages
	ListPackages(ctx context.Context) ([]models.Package, error)
	CreatePackage(ctx context.Context, pkg *models.Package) error

	// Assets
	CreateAsset(ctx context.Context, caller string, req models.CreateAssetRequest) (*models.Asset, error)
	ListAssets(ctx context.Context, filter models.AssetFilter) ([]models.Asset, error)
	UpdateAsset(ctx context.Context, caller, assetID string, req models.UpdateAssetRequest) (*models.Asset, error)
	DeleteAsset(ctx context.Context, caller, assetID string) (*models.DeleteResponse, error)

	// Requests
	CreateRequest(ctx context.Context, caller string, req models.CreateAssetRequestRequest) (*models.Request, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) (*models.PagedRequestsResponse, error)
	UpdateRequestStatus(ctx context.Context, caller, requestID string, req models.StatusUpdateRequest) (*models.StatusUpdateResponse, error)
	ReturnRequest(ctx context.Context, caller, requestID string) (*models.Request, error)
	ListAssignedAssets(ctx context.Context, employeeEmail string) ([]models.AssignedAsset, error)

	// Affiliations
	ListAffiliations(ctx context.Context, caller string, filter models.AffiliationFilter) ([]models.EmployeeAffiliation, error)
	ListTeam(ctx context.Context, caller, companyName string) ([]models.EmployeeAffiliation, error)
	ListCompanies(ctx context.Context, employeeEmail string) ([]string, error)
	RemoveEmployee(ctx context.Context, hrEmail, employeeEmail string) (*models.DeleteResponse, error)
	TeamBirthdays(ctx context.Context, caller, companyName string) ([]models.TeamBirthday, error)

	// Payments
	CreateCheckout(ctx context.Context, hrEmail string, req models.CheckoutSessionRequest) (*models.CheckoutSessionResponse, error)
	VerifyPayment(ctx context.Context, hrEmail, sessionID string) (*models.PaymentReceiptResponse, error)
	ListPayments(ctx context.Context, hrEmail string) ([]models.Payment, error)

	// Analytics
	AssetTypeDistribution(ctx context.Context, hrEmail string) ([]models.TypeCount, error)
	TopRequestedAssets(ctx context.Context, hrEmail string) ([]models.AssetRequestCount, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo      repository.Repository
	approvals *ApprovalService
	payments  *PaymentReconciler
	logger    *zap.Logger
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, gw gateway.PaymentGateway, opts PaymentOptions, logger *zap.Logger) *DefaultService {
	return &DefaultService{
		repo:      repo,
		approvals: NewApprovalService(repo, logger),
		payments:  NewPaymentReconciler(repo, gw, opts, logger),
		logger:    logger,
	}
}

// Approvals exposes the approval workflow
func (s *DefaultService) Approvals() *ApprovalService {
	return s.approvals
}

// Payments exposes the payment reconciler
func (s *DefaultService) Payments() *PaymentReconciler {
	return s.payments
}

// User methods
func (s *DefaultService) RegisterUser(ctx context.Context, req models.RegisterUserRequest) (*models.User, error) {
	email := auth.NormalizeEmail(req.Email)

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("error checking user existence: %w", err)
	}
	if existing != nil {
		return nil, newError(KindConflict, ErrMsgEmailTaken)
	}

	user := &models.User{
		Email:       email,
		Name:        req.Name,
		Role:        req.Role,
		CompanyName: req.CompanyName,
		CompanyLogo: req.CompanyLogo,
		PhotoURL:    req.PhotoURL,
		DateOfBirth: req.DateOfBirth,
	}
	if user.Role == models.RoleEmployee {
		user.CompanyName = ""
		user.CompanyLogo = ""
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(KindConflict, ErrMsgEmailTaken)
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info("user registered", zap.String("email", user.Email), zap.String("role", string(user.Role)))
	return user, nil
}

func (s *DefaultService) GetUser(ctx context.Context, caller, email string) (*models.User, error) {
	email = auth.NormalizeEmail(email)
	if caller != email {
		callerUser, err := s.LookupUser(ctx, caller)
		if err != nil {
			return nil, err
		}
		if !callerUser.IsHR() {
			return nil, newError(KindForbidden, "You can only view your own profile")
		}
	}
	return s.LookupUser(ctx, email)
}

// LookupUser loads a user or fails with NotFound
func (s *DefaultService) LookupUser(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	if user == nil {
		return nil, newError(KindNotFound, ErrMsgUserNotFound)
	}
	return user, nil
}

// Package methods
func (s *DefaultService) ListPackages(ctx context.Context) ([]models.Package, error) {
	packages, err := s.repo.ListPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing packages: %w", err)
	}
	return packages, nil
}

func (s *DefaultService) CreatePackage(ctx context.Context, pkg *models.Package) error {
	if strings.TrimSpace(pkg.Name) == "" {
		return newError(KindValidation, "package name is required")
	}
	if pkg.EmployeeLimit < 0 || pkg.Price.IsNegative() {
		return newError(KindValidation, "package limit and price must not be negative")
	}
	if err := s.repo.CreatePackage(ctx, pkg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return newError(KindConflict, "package already exists")
		}
		return fmt.Errorf("error creating package: %w", err)
	}
	return nil
}

// Asset methods
func (s *DefaultService) CreateAsset(ctx context.Context, caller string, req models.CreateAssetRequest) (*models.Asset, error) {
	hr, err := s.LookupUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !hr.IsHR() {
		return nil, newError(KindForbidden, ErrMsgHROnly)
	}

	asset := &models.Asset{
		HREmail:           hr.Email,
		CompanyName:       hr.CompanyName,
		ProductName:       strings.TrimSpace(req.ProductName),
		ProductType:       req.ProductType,
		ProductImage:      req.ProductImage,
		AvailableQuantity: req.AvailableQuantity,
	}
	if err := s.repo.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("error creating asset: %w", err)
	}
	return asset, nil
}

func (s *DefaultService) ListAssets(ctx context.Context, filter models.AssetFilter) ([]models.Asset, error) {
	if err := checkPage(filter.Limit, filter.Skip); err != nil {
		return nil, err
	}
	filter.HREmail = auth.NormalizeEmail(filter.HREmail)
	assets, err := s.repo.ListAssets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing assets: %w", err)
	}
	return assets, nil
}

// ownedAsset loads an asset and checks the caller is its HR
func (s *DefaultService) ownedAsset(ctx context.Context, caller, assetID string) (*models.Asset, error) {
	asset, err := s.repo.GetAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("error getting asset: %w", err)
	}
	if asset == nil {
		return nil, newError(KindNotFound, ErrMsgAssetNotFound)
	}
	if asset.HREmail != caller {
		return nil, newError(KindForbidden, ErrMsgNotAssetOwner)
	}
	return asset, nil
}

func (s *DefaultService) UpdateAsset(ctx context.Context, caller, assetID string, req models.UpdateAssetRequest) (*models.Asset, error) {
	if _, err := s.ownedAsset(ctx, caller, assetID); err != nil {
		return nil, err
	}

	patch := models.AssetPatch{
		ProductName:       req.ProductName,
		ProductType:       req.ProductType,
		ProductImage:      req.ProductImage,
		AvailableQuantity: req.AvailableQuantity,
	}
	if patch.AvailableQuantity != nil && *patch.AvailableQuantity < 0 {
		return nil, newError(KindValidation, "availableQuantity must not be negative")
	}

	if err := s.repo.UpdateAsset(ctx, assetID, patch); err != nil {
		return nil, fmt.Errorf("error updating asset: %w", err)
	}

	updated, err := s.repo.GetAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("error getting asset: %w", err)
	}
	if updated == nil {
		return nil, newError(KindNotFound, ErrMsgAssetNotFound)
	}
	return updated, nil
}

func (s *DefaultService) DeleteAsset(ctx context.Context, caller, assetID string) (*models.DeleteResponse, error) {
	if _, err := s.ownedAsset(ctx, caller, assetID); err != nil {
		return nil, err
	}

	deleted, err := s.repo.DeleteAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("error deleting asset: %w", err)
	}

	return &models.DeleteResponse{
		Status:       "success",
		Message:      "Asset deleted successfully",
		DeletedCount: deleted,
	}, nil
}

// Request methods

// CreateRequest files a pending request. HR, company and asset details are
// copied from the stored asset rather than taken from the client.
func (s *DefaultService) CreateRequest(ctx context.Context, caller string, req models.CreateAssetRequestRequest) (*models.Request, error) {
	requester, err := s.LookupUser(ctx, caller)
	if err != nil {
		return nil, err
	}

	asset, err := s.repo.GetAsset(ctx, req.AssetID)
	if err != nil {
		return nil, fmt.Errorf("error getting asset: %w", err)
	}
	if asset == nil {
		return nil, newError(KindNotFound, ErrMsgAssetNotFound)
	}
	if asset.AvailableQuantity <= 0 {
		return nil, ErrOutOfStock
	}
	if asset.HREmail == requester.Email {
		return nil, newError(KindValidation, "You cannot request your own asset")
	}

	request := &models.Request{
		RequesterEmail: requester.Email,
		RequesterName:  requester.Name,
		HREmail:        asset.HREmail,
		CompanyName:    asset.CompanyName,
		AssetID:        asset.ID,
		AssetName:      asset.ProductName,
		AssetType:      asset.ProductType,
		AssetImage:     asset.ProductImage,
		Note:           strings.TrimSpace(req.Note),
		RequestStatus:  models.RequestPending,
		RequestDate:    time.Now().UTC(),
	}
	if err := s.repo.CreateRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	s.logger.Info("request created",
		zap.String("request_id", request.ID),
		zap.String("asset_id", asset.ID),
		zap.String("requester", requester.Email))
	return request, nil
}

func (s *DefaultService) ListRequests(ctx context.Context, filter models.RequestFilter) (*models.PagedRequestsResponse, error) {
	if err := checkPage(filter.Limit, filter.Skip); err != nil {
		return nil, err
	}
	filter.RequesterEmail = auth.NormalizeEmail(filter.RequesterEmail)
	filter.HREmail = auth.NormalizeEmail(filter.HREmail)

	switch filter.Status {
	case "all":
		filter.Status = ""
	case "", models.RequestPending, models.RequestApproved, models.RequestRejected, models.RequestReturned:
	default:
		return nil, newErrorf(KindValidation, "%s: %q", ErrMsgInvalidStatus, filter.Status)
	}

	items, total, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing requests: %w", err)
	}

	return &models.PagedRequestsResponse{
		Status: "success",
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Skip:   filter.Skip,
	}, nil
}

func (s *DefaultService) UpdateRequestStatus(ctx context.Context, caller, requestID string, req models.StatusUpdateRequest) (*models.StatusUpdateResponse, error) {
	result, err := s.approvals.UpdateStatus(ctx, caller, requestID, StatusUpdate{
		Status: req.RequestStatus,
		Note:   strings.TrimSpace(req.Note),
	})
	if err != nil {
		return nil, err
	}

	return &models.StatusUpdateResponse{
		Status:      "success",
		Request:     result.Request,
		Affiliation: result.Affiliation,
		Assignment:  result.Assignment,
	}, nil
}

func (s *DefaultService) ReturnRequest(ctx context.Context, caller, requestID string) (*models.Request, error) {
	return s.approvals.Return(ctx, caller, requestID)
}

func (s *DefaultService) ListAssignedAssets(ctx context.Context, employeeEmail string) ([]models.AssignedAsset, error) {
	assigned, err := s.repo.ListAssignedAssets(ctx, employeeEmail)
	if err != nil {
		return nil, fmt.Errorf("error listing assigned assets: %w", err)
	}
	return assigned, nil
}

// Affiliation methods
func (s *DefaultService) ListAffiliations(ctx context.Context, caller string, filter models.AffiliationFilter) ([]models.EmployeeAffiliation, error) {
	filter.HREmail = auth.NormalizeEmail(filter.HREmail)
	filter.EmployeeEmail = auth.NormalizeEmail(filter.EmployeeEmail)
	if filter.HREmail == "" && filter.EmployeeEmail == "" {
		return nil, newError(KindValidation, ErrMsgAffiliationFilter)
	}
	if filter.HREmail != caller && filter.EmployeeEmail != caller {
		return nil, newError(KindForbidden, "You can only list your own affiliations")
	}

	affiliations, err := s.repo.ListAffiliations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing affiliations: %w", err)
	}
	return affiliations, nil
}

// checkCompanyMember allows the company's HR and its actively affiliated employees
func (s *DefaultService) checkCompanyMember(ctx context.Context, caller, companyName string) error {
	if strings.TrimSpace(companyName) == "" {
		return newError(KindValidation, ErrMsgCompanyNameRequired)
	}

	user, err := s.LookupUser(ctx, caller)
	if err != nil {
		return err
	}
	if user.IsHR() && user.CompanyName == companyName {
		return nil
	}

	companies, err := s.repo.ListCompanies(ctx, caller)
	if err != nil {
		return fmt.Errorf("error listing companies: %w", err)
	}
	for _, c := range companies {
		if c == companyName {
			return nil
		}
	}
	return newError(KindForbidden, "You are not a member of this company")
}

func (s *DefaultService) ListTeam(ctx context.Context, caller, companyName string) ([]models.EmployeeAffiliation, error) {
	if err := s.checkCompanyMember(ctx, caller, companyName); err != nil {
		return nil, err
	}

	team, err := s.repo.ListAffiliations(ctx, models.AffiliationFilter{CompanyName: companyName, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("error listing team: %w", err)
	}
	return team, nil
}

func (s *DefaultService) ListCompanies(ctx context.Context, employeeEmail string) ([]string, error) {
	companies, err := s.repo.ListCompanies(ctx, employeeEmail)
	if err != nil {
		return nil, fmt.Errorf("error listing companies: %w", err)
	}
	return companies, nil
}

// RemoveEmployee deactivates the employee's affiliations with this HR, freeing the seat
func (s *DefaultService) RemoveEmployee(ctx context.Context, hrEmail, employeeEmail string) (*models.DeleteResponse, error) {
	employeeEmail = auth.NormalizeEmail(employeeEmail)
	modified, err := s.repo.DeactivateAffiliations(ctx, hrEmail, employeeEmail)
	if err != nil {
		return nil, fmt.Errorf("error removing employee: %w", err)
	}
	if modified == 0 {
		return nil, newError(KindNotFound, "Employee is not affiliated with your company")
	}

	s.logger.Info("employee removed", zap.String("hr_email", hrEmail), zap.String("employee_email", employeeEmail))
	return &models.DeleteResponse{
		Status:       "success",
		Message:      "Employee removed from team",
		DeletedCount: modified,
	}, nil
}

func (s *DefaultService) TeamBirthdays(ctx context.Context, caller, companyName string) ([]models.TeamBirthday, error) {
	if err := s.checkCompanyMember(ctx, caller, companyName); err != nil {
		return nil, err
	}

	birthdays, err := s.repo.ListTeamBirthdays(ctx, companyName, int(time.Now().Month()))
	if err != nil {
		return nil, fmt.Errorf("error listing birthdays: %w", err)
	}
	return birthdays, nil
}

// Payment methods
func (s *DefaultService) CreateCheckout(ctx context.Context, hrEmail string, req models.CheckoutSessionRequest) (*models.CheckoutSessionResponse, error) {
	url, err := s.payments.CreateCheckout(ctx, hrEmail, req.PackageID)
	if err != nil {
		return nil, err
	}
	return &models.CheckoutSessionResponse{URL: url}, nil
}

func (s *DefaultService) VerifyPayment(ctx context.Context, hrEmail, sessionID string) (*models.PaymentReceiptResponse, error) {
	receipt, err := s.payments.Finalize(ctx, sessionID, hrEmail)
	if err != nil {
		return nil, err
	}

	return &models.PaymentReceiptResponse{
		Status:           "success",
		Success:          receipt.Status == ReceiptPaid,
		TrackingID:       receipt.TrackingID,
		TransactionID:    receipt.TransactionID,
		PaymentStatus:    string(receipt.Status),
		PackageName:      receipt.PackageName,
		PackageLimit:     receipt.PackageLimit,
		AlreadyProcessed: receipt.AlreadyProcessed,
	}, nil
}

func (s *DefaultService) ListPayments(ctx context.Context, hrEmail string) ([]models.Payment, error) {
	payments, err := s.repo.ListPayments(ctx, hrEmail)
	if err != nil {
		return nil, fmt.Errorf("error listing payments: %w", err)
	}
	return payments, nil
}

// Analytics
func (s *DefaultService) AssetTypeDistribution(ctx context.Context, hrEmail string) ([]models.TypeCount, error) {
	counts, err := s.repo.AssetTypeDistribution(ctx, hrEmail)
	if err != nil {
		return nil, fmt.Errorf("error computing asset distribution: %w", err)
	}
	return counts, nil
}

func (s *DefaultService) TopRequestedAssets(ctx context.Context, hrEmail string) ([]models.AssetRequestCount, error) {
	top, err := s.repo.TopRequestedAssets(ctx, hrEmail, TopRequestedLimit)
	if err != nil {
		return nil, fmt.Errorf("error computing top requested assets: %w", err)
	}
	return top, nil
}

func checkPage(limit, skip int) error {
	if limit < 0 || skip < 0 {
		return newError(KindValidation, "limit and skip must not be negative")
	}
	if limit > MaxPageSize {
		return newErrorf(KindValidation, "limit must not exceed %d", MaxPageSize)
	}
	return nil
}
