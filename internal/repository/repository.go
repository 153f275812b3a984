package repository

import (
	"context"
	"errors"

	"github.com/rongwang/assetverse-server/internal/models"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint
var ErrDuplicate = errors.New("duplicate key")

// Repository interface defines the methods that any repository implementation must satisfy.
// Lookups return (nil, nil) when the record does not exist.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// Package operations
	CreatePackage(ctx context.Context, pkg *models.Package) error
	ListPackages(ctx context.Context) ([]models.Package, error)
	GetPackage(ctx context.Context, id string) (*models.Package, error)

	// Asset operations
	CreateAsset(ctx context.Context, asset *models.Asset) error
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
	ListAssets(ctx context.Context, filter models.AssetFilter) ([]models.Asset, error)
	UpdateAsset(ctx context.Context, id string, patch models.AssetPatch) error
	DeleteAsset(ctx context.Context, id string) (int64, error)

	// Request operations
	CreateRequest(ctx context.Context, req *models.Request) error
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.Request, int64, error)

	// Affiliation operations
	ListAffiliations(ctx context.Context, filter models.AffiliationFilter) ([]models.EmployeeAffiliation, error)
	ListCompanies(ctx context.Context, employeeEmail string) ([]string, error)
	DeactivateAffiliations(ctx context.Context, hrEmail, employeeEmail string) (int64, error)
	ListTeamBirthdays(ctx context.Context, companyName string, month int) ([]models.TeamBirthday, error)

	// Assignment operations
	ListAssignedAssets(ctx context.Context, employeeEmail string) ([]models.AssignedAsset, error)

	// Payment operations
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	ListPayments(ctx context.Context, hrEmail string) ([]models.Payment, error)

	// Analytics
	AssetTypeDistribution(ctx context.Context, hrEmail string) ([]models.TypeCount, error)
	TopRequestedAssets(ctx context.Context, hrEmail string, limit int) ([]models.AssetRequestCount, error)

	// WithinTx runs fn inside a single storage transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Close(ctx context.Context) error
}

// Tx is the set of operations the approval and payment workflows perform atomically
type Tx interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// LockUser serialises seat allocation for one HR account until the transaction ends
	LockUser(ctx context.Context, email string) (*models.User, error)
	UpdateUserEntitlement(ctx context.Context, email string, packageLimit int, subscription string) (bool, error)

	// GetRequestForUpdate loads a request and holds it until the transaction ends
	GetRequestForUpdate(ctx context.Context, id string) (*models.Request, error)
	// TransitionRequest applies t only if the request is still in t.From
	TransitionRequest(ctx context.Context, id string, t models.RequestTransition) (bool, error)

	// DecrementAvailableQuantity removes one unit only if availableQuantity > 0.
	// It reports false when no asset matched.
	DecrementAvailableQuantity(ctx context.Context, assetID string) (bool, error)

	FindActiveAffiliation(ctx context.Context, employeeEmail, hrEmail, companyName string) (*models.EmployeeAffiliation, error)
	IncrementAffiliationAssetCount(ctx context.Context, id string) error
	CountActiveAffiliations(ctx context.Context, hrEmail string) (int64, error)
	CreateAffiliation(ctx context.Context, affiliation *models.EmployeeAffiliation) error

	CreateAssignedAsset(ctx context.Context, assignment *models.AssignedAsset) error

	GetPackage(ctx context.Context, id string) (*models.Package, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
}
