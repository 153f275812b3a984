package service

import (
	"context"
	"testing"

	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo *repository.MemoryRepository
	hr   *models.User
	emp  *models.User
}

func newFixture(t *testing.T, packageLimit int) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepository()

	hr := &models.User{Email: "hr@acme.test", Name: "Hana", Role: models.RoleHR, CompanyName: "Acme", CompanyLogo: "acme.png"}
	emp := &models.User{Email: "emp@acme.test", Name: "Eli", Role: models.RoleEmployee, PhotoURL: "eli.png"}
	require.NoError(t, repo.CreateUser(ctx, hr))
	require.NoError(t, repo.CreateUser(ctx, emp))

	if packageLimit > 0 {
		require.NoError(t, repo.WithinTx(ctx, func(tx repository.Tx) error {
			_, err := tx.UpdateUserEntitlement(ctx, hr.Email, packageLimit, "Basic")
			return err
		}))
		hr.PackageLimit = packageLimit
	}
	return &fixture{repo: repo, hr: hr, emp: emp}
}

func (f *fixture) asset(t *testing.T, name string, quantity int) *models.Asset {
	t.Helper()
	asset := &models.Asset{
		HREmail:           f.hr.Email,
		CompanyName:       f.hr.CompanyName,
		ProductName:       name,
		ProductType:       models.ProductReturnable,
		AvailableQuantity: quantity,
	}
	require.NoError(t, f.repo.CreateAsset(context.Background(), asset))
	return asset
}

func (f *fixture) request(t *testing.T, requester *models.User, asset *models.Asset) *models.Request {
	t.Helper()
	req := &models.Request{
		RequesterEmail: requester.Email,
		RequesterName:  requester.Name,
		HREmail:        asset.HREmail,
		CompanyName:    asset.CompanyName,
		AssetID:        asset.ID,
		AssetName:      asset.ProductName,
		AssetType:      asset.ProductType,
		RequestStatus:  models.RequestPending,
	}
	require.NoError(t, f.repo.CreateRequest(context.Background(), req))
	return req
}

func (f *fixture) pkg(t *testing.T, name, price string, limit int) *models.Package {
	t.Helper()
	p := &models.Package{Name: name, Price: decimal.RequireFromString(price), EmployeeLimit: limit}
	require.NoError(t, f.repo.CreatePackage(context.Background(), p))
	return p
}

func (f *fixture) quantity(t *testing.T, assetID string) int {
	t.Helper()
	asset, err := f.repo.GetAsset(context.Background(), assetID)
	require.NoError(t, err)
	require.NotNil(t, asset)
	return asset.AvailableQuantity
}
