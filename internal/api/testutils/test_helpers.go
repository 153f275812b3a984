package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/assetverse-server/internal/api"
	"github.com/rongwang/assetverse-server/internal/auth"
	"github.com/rongwang/assetverse-server/internal/config"
	"github.com/rongwang/assetverse-server/internal/gateway"
	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/repository"
	"github.com/rongwang/assetverse-server/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testJWTSecret = "test-secret-key"

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository repository.Repository
	Service    *service.DefaultService
	Gateway    *gateway.FakeGateway
	Issuer     *auth.Issuer
	DB         *sqlx.DB
	Mongo      *repository.MongoRepository
}

// SetupTestContext wires the full HTTP stack. It uses the in-memory store
// unless TEST_STORE selects postgres (TEST_DB_NAME, emptied) or mongo
// (MONGO_TEST_DB, dropped).
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()

	cfg := config.LoadConfig()
	cfg.Auth.JWTSecret = testJWTSecret
	logger := zap.NewNop()

	tc := &TestContext{
		Gateway: gateway.NewFakeGateway(),
		Issuer:  auth.NewIssuer(testJWTSecret, time.Hour),
	}

	switch os.Getenv("TEST_STORE") {
	case config.StorePostgres:
		cfg.Database.DBName = cfg.Database.TestDBName
		db, err := config.SetupDatabase(cfg, logger)
		require.NoError(t, err, "Failed to set up test database")
		tc.DB = db
		tc.Repository = repository.NewPostgresRepository(db)
		cleanupTestDatabase(t, db)
	case config.StoreMongo:
		tc.Mongo = SetupTestMongo(t, cfg, logger)
		tc.Repository = tc.Mongo
	default:
		tc.Repository = repository.NewMemoryRepository()
	}

	tc.Service = service.NewDefaultService(tc.Repository, tc.Gateway, service.PaymentOptions{
		SiteDomain:     "http://localhost:5173",
		Currency:       "usd",
		GatewayTimeout: 2 * time.Second,
	}, logger)

	handler := api.NewHandler(tc.Service, auth.NewJWTVerifier(testJWTSecret), logger, 5*time.Second)

	gin.SetMode(gin.TestMode)
	tc.Router = gin.New()
	handler.SetupRoutes(tc.Router)

	return tc
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(tc *TestContext) {
	if tc.DB != nil {
		cleanupTestDatabase(nil, tc.DB)
		tc.DB.Close()
	}
	if tc.Mongo != nil {
		CleanupTestMongo(tc.Mongo)
	}
}

// SetupTestMongo connects to MONGO_TEST_DB on a fresh database with indexes
// in place. The deployment must be a replica set.
func SetupTestMongo(t *testing.T, cfg *config.Config, logger *zap.Logger) *repository.MongoRepository {
	t.Helper()
	ctx := context.Background()

	cfg.Mongo.Database = cfg.Mongo.TestDatabase
	repo, err := config.SetupMongo(ctx, cfg, logger)
	require.NoError(t, err, "Failed to set up test mongo")

	// drop leftovers, then recreate the indexes the drop removed
	require.NoError(t, repo.Database().Drop(ctx))
	require.NoError(t, repo.EnsureIndexes(ctx))
	return repo
}

// CleanupTestMongo drops the test database and disconnects
func CleanupTestMongo(repo *repository.MongoRepository) {
	ctx := context.Background()
	_ = repo.Database().Drop(ctx)
	_ = repo.Close(ctx)
}

// cleanupTestDatabase removes all rows, children first
func cleanupTestDatabase(t *testing.T, db *sqlx.DB) {
	tables := []string{"payments", "assigned_assets", "employee_affiliations", "requests", "assets", "packages", "users"}
	for _, table := range tables {
		if _, err := db.Exec("DELETE FROM " + table); err != nil && t != nil {
			t.Logf("Warning: Failed to clean %s: %v", table, err)
		}
	}
}

// Token returns a bearer token for email
func (tc *TestContext) Token(t *testing.T, email string) string {
	t.Helper()
	token, err := tc.Issuer.Issue(email)
	require.NoError(t, err, "Failed to generate JWT token")
	return token
}

// CreateUser stores a user directly. HR users get the given package limit.
func (tc *TestContext) CreateUser(t *testing.T, email string, role models.Role, company string, packageLimit int) *models.User {
	t.Helper()
	ctx := context.Background()

	user := &models.User{
		Email:       email,
		Name:        "User " + email,
		Role:        role,
		CompanyName: company,
	}
	require.NoError(t, tc.Repository.CreateUser(ctx, user), "Failed to create test user")

	if packageLimit > 0 {
		err := tc.Repository.WithinTx(ctx, func(tx repository.Tx) error {
			_, err := tx.UpdateUserEntitlement(ctx, email, packageLimit, "Test")
			return err
		})
		require.NoError(t, err)
		user.PackageLimit = packageLimit
		user.Subscription = "Test"
	}
	return user
}

// CreateAsset stores an asset owned by hr
func (tc *TestContext) CreateAsset(t *testing.T, hr *models.User, name string, quantity int) *models.Asset {
	t.Helper()
	asset := &models.Asset{
		HREmail:           hr.Email,
		CompanyName:       hr.CompanyName,
		ProductName:       name,
		ProductType:       models.ProductReturnable,
		AvailableQuantity: quantity,
	}
	require.NoError(t, tc.Repository.CreateAsset(context.Background(), asset))
	return asset
}

// CreatePackage stores a catalog entry
func (tc *TestContext) CreatePackage(t *testing.T, name string, price string, limit int) *models.Package {
	t.Helper()
	pkg := &models.Package{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		EmployeeLimit: limit,
		Features:      []string{name + " feature"},
	}
	require.NoError(t, tc.Repository.CreatePackage(context.Background(), pkg))
	return pkg
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// DecodeJSON unmarshals a recorder body into out
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), "body: %s", w.Body.String())
}
