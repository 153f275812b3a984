package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/assetverse-server/internal/models"
)

const uniqueViolation = "23505"

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

func (r *PostgresRepository) Close(_ context.Context) error {
	return r.db.Close()
}

func translatePgError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}

// getOne scans a single row, mapping sql.ErrNoRows to a nil result
func getOne[T any](ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*T, error) {
	var out T
	if err := sqlx.GetContext(ctx, q, &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, role, package_limit, subscription, company_name,
			company_logo, photo_url, date_of_birth, entitlement_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $12)
	`

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.Role, user.PackageLimit, user.Subscription,
		user.CompanyName, user.CompanyLogo, user.PhotoURL, user.DateOfBirth, user.CreatedAt, user.UpdatedAt)

	return translatePgError(err)
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return getOne[models.User](ctx, r.db, `SELECT * FROM users WHERE email = $1`, email)
}

// Package repository methods
func (r *PostgresRepository) CreatePackage(ctx context.Context, pkg *models.Package) error {
	if pkg.ID == "" {
		pkg.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO packages (id, name, price, employee_limit, features) VALUES ($1, $2, $3, $4, $5)`,
		pkg.ID, pkg.Name, pkg.Price, pkg.EmployeeLimit, pkg.Features)

	return translatePgError(err)
}

func (r *PostgresRepository) ListPackages(ctx context.Context) ([]models.Package, error) {
	packages := []models.Package{}
	err := r.db.SelectContext(ctx, &packages, `SELECT * FROM packages ORDER BY employee_limit ASC`)
	return packages, err
}

func (r *PostgresRepository) GetPackage(ctx context.Context, id string) (*models.Package, error) {
	return getOne[models.Package](ctx, r.db, `SELECT * FROM packages WHERE id = $1`, id)
}

// Asset repository methods
func (r *PostgresRepository) CreateAsset(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO assets (id, hr_email, company_name, product_name, product_type, product_image,
			available_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	asset.CreatedAt = now
	asset.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		asset.ID, asset.HREmail, asset.CompanyName, asset.ProductName, asset.ProductType,
		asset.ProductImage, asset.AvailableQuantity, asset.CreatedAt, asset.UpdatedAt)

	return translatePgError(err)
}

func (r *PostgresRepository) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	return getOne[models.Asset](ctx, r.db, `SELECT * FROM assets WHERE id = $1`, id)
}

func (r *PostgresRepository) ListAssets(ctx context.Context, filter models.AssetFilter) ([]models.Asset, error) {
	w := &whereBuilder{}
	if filter.HREmail != "" {
		w.add("hr_email = ?", filter.HREmail)
	}
	if filter.ID != "" {
		w.add("id = ?", filter.ID)
	}
	if filter.Search != "" {
		w.add("product_name ILIKE '%' || ? || '%'", filter.Search)
	}
	if filter.ProductType != "" {
		w.add("product_type = ?", filter.ProductType)
	}
	if filter.AvailableOnly {
		w.add("available_quantity > 0")
	}

	query := `SELECT * FROM assets` + w.sql() + ` ORDER BY created_at DESC` + w.page(filter.Limit, filter.Skip)

	assets := []models.Asset{}
	err := r.db.SelectContext(ctx, &assets, r.db.Rebind(query), w.args...)
	return assets, err
}

func (r *PostgresRepository) UpdateAsset(ctx context.Context, id string, patch models.AssetPatch) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if patch.ProductName != nil {
		sets = append(sets, "product_name = ?")
		args = append(args, *patch.ProductName)
	}
	if patch.ProductType != nil {
		sets = append(sets, "product_type = ?")
		args = append(args, *patch.ProductType)
	}
	if patch.ProductImage != nil {
		sets = append(sets, "product_image = ?")
		args = append(args, *patch.ProductImage)
	}
	if patch.AvailableQuantity != nil {
		sets = append(sets, "available_quantity = ?")
		args = append(args, *patch.AvailableQuantity)
	}

	args = append(args, id)
	query := `UPDATE assets SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func (r *PostgresRepository) DeleteAsset(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Request repository methods
func (r *PostgresRepository) CreateRequest(ctx context.Context, req *models.Request) error {
	query := `
		INSERT INTO requests (id, requester_email, requester_name, hr_email, company_name, asset_id,
			asset_name, asset_type, asset_image, note, request_status, request_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.RequestDate.IsZero() {
		req.RequestDate = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.RequesterEmail, req.RequesterName, req.HREmail, req.CompanyName, req.AssetID,
		req.AssetName, req.AssetType, req.AssetImage, req.Note, req.RequestStatus, req.RequestDate)

	return translatePgError(err)
}

func (r *PostgresRepository) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	return getOne[models.Request](ctx, r.db, `SELECT * FROM requests WHERE id = $1`, id)
}

func (r *PostgresRepository) ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.Request, int64, error) {
	w := &whereBuilder{}
	if filter.RequesterEmail != "" {
		w.add("requester_email = ?", filter.RequesterEmail)
	}
	if filter.HREmail != "" {
		w.add("hr_email = ?", filter.HREmail)
	}
	if filter.Status != "" {
		w.add("request_status = ?", filter.Status)
	}
	if filter.AssetType != "" {
		w.add("asset_type = ?", filter.AssetType)
	}
	if filter.Search != "" {
		w.add("asset_name ILIKE '%' || ? || '%'", filter.Search)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM requests` + w.sql()
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), w.args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT * FROM requests` + w.sql() + ` ORDER BY request_date DESC` + w.page(filter.Limit, filter.Skip)

	requests := []models.Request{}
	if err := r.db.SelectContext(ctx, &requests, r.db.Rebind(query), w.args...); err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// Affiliation repository methods
func (r *PostgresRepository) ListAffiliations(ctx context.Context, filter models.AffiliationFilter) ([]models.EmployeeAffiliation, error) {
	w := &whereBuilder{}
	if filter.HREmail != "" {
		w.add("hr_email = ?", filter.HREmail)
	}
	if filter.EmployeeEmail != "" {
		w.add("employee_email = ?", filter.EmployeeEmail)
	}
	if filter.CompanyName != "" {
		w.add("company_name = ?", filter.CompanyName)
	}
	if filter.ActiveOnly {
		w.add("status = ?", models.AffiliationActive)
	}

	query := `SELECT * FROM employee_affiliations` + w.sql() + ` ORDER BY affiliation_date ASC`

	affiliations := []models.EmployeeAffiliation{}
	err := r.db.SelectContext(ctx, &affiliations, r.db.Rebind(query), w.args...)
	return affiliations, err
}

func (r *PostgresRepository) ListCompanies(ctx context.Context, employeeEmail string) ([]string, error) {
	companies := []string{}
	err := r.db.SelectContext(ctx, &companies, `
		SELECT DISTINCT company_name FROM employee_affiliations
		WHERE employee_email = $1 AND status = $2
		ORDER BY company_name ASC
	`, employeeEmail, models.AffiliationActive)
	return companies, err
}

func (r *PostgresRepository) DeactivateAffiliations(ctx context.Context, hrEmail, employeeEmail string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE employee_affiliations SET status = $1
		WHERE hr_email = $2 AND employee_email = $3 AND status = $4
	`, models.AffiliationInactive, hrEmail, employeeEmail, models.AffiliationActive)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PostgresRepository) ListTeamBirthdays(ctx context.Context, companyName string, month int) ([]models.TeamBirthday, error) {
	birthdays := []models.TeamBirthday{}
	err := r.db.SelectContext(ctx, &birthdays, `
		SELECT DISTINCT a.employee_email, a.employee_name, a.employee_logo, u.date_of_birth
		FROM employee_affiliations a
		JOIN users u ON u.email = a.employee_email
		WHERE a.company_name = $1 AND a.status = $2
			AND u.date_of_birth IS NOT NULL
			AND EXTRACT(MONTH FROM u.date_of_birth) = $3
		ORDER BY u.date_of_birth ASC
	`, companyName, models.AffiliationActive, month)
	return birthdays, err
}

func (r *PostgresRepository) ListAssignedAssets(ctx context.Context, employeeEmail string) ([]models.AssignedAsset, error) {
	assignments := []models.AssignedAsset{}
	err := r.db.SelectContext(ctx, &assignments,
		`SELECT * FROM assigned_assets WHERE employee_email = $1 ORDER BY assignment_date DESC`, employeeEmail)
	return assignments, err
}

// Payment repository methods
func (r *PostgresRepository) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return getOne[models.Payment](ctx, r.db, `SELECT * FROM payments WHERE transaction_id = $1`, transactionID)
}

func (r *PostgresRepository) ListPayments(ctx context.Context, hrEmail string) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := r.db.SelectContext(ctx, &payments,
		`SELECT * FROM payments WHERE hr_email = $1 ORDER BY payment_date DESC`, hrEmail)
	return payments, err
}

// Analytics
func (r *PostgresRepository) AssetTypeDistribution(ctx context.Context, hrEmail string) ([]models.TypeCount, error) {
	counts := []models.TypeCount{}
	err := r.db.SelectContext(ctx, &counts, `
		SELECT product_type, COUNT(*) AS count FROM assets
		WHERE hr_email = $1
		GROUP BY product_type
		ORDER BY product_type ASC
	`, hrEmail)
	return counts, err
}

func (r *PostgresRepository) TopRequestedAssets(ctx context.Context, hrEmail string, limit int) ([]models.AssetRequestCount, error) {
	counts := []models.AssetRequestCount{}
	err := r.db.SelectContext(ctx, &counts, `
		SELECT asset_id, MAX(asset_name) AS asset_name, COUNT(*) AS count FROM requests
		WHERE hr_email = $1
		GROUP BY asset_id
		ORDER BY count DESC, asset_name ASC
		LIMIT $2
	`, hrEmail, limit)
	return counts, err
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken through the Tx
// (FOR UPDATE) are held until commit or rollback.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

// postgresTx implements Tx on top of an open sqlx transaction
type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return getOne[models.User](ctx, t.tx, `SELECT * FROM users WHERE email = $1`, email)
}

func (t *postgresTx) LockUser(ctx context.Context, email string) (*models.User, error) {
	return getOne[models.User](ctx, t.tx, `SELECT * FROM users WHERE email = $1 FOR UPDATE`, email)
}

func (t *postgresTx) UpdateUserEntitlement(ctx context.Context, email string, packageLimit int, subscription string) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE users
		SET package_limit = $1, subscription = $2, entitlement_version = entitlement_version + 1, updated_at = $3
		WHERE email = $4
	`, packageLimit, subscription, time.Now().UTC(), email)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (t *postgresTx) GetRequestForUpdate(ctx context.Context, id string) (*models.Request, error) {
	return getOne[models.Request](ctx, t.tx, `SELECT * FROM requests WHERE id = $1 FOR UPDATE`, id)
}

func (t *postgresTx) TransitionRequest(ctx context.Context, id string, tr models.RequestTransition) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE requests SET
			request_status = $1,
			processed_by = CASE WHEN $2 = '' THEN processed_by ELSE $2 END,
			processed_at = COALESCE($3, processed_at),
			return_date = COALESCE($4, return_date),
			note = CASE WHEN $5 = '' THEN note ELSE $5 END
		WHERE id = $6 AND request_status = $7
	`, tr.To, tr.ProcessedBy, tr.ProcessedAt, tr.ReturnDate, tr.Note, id, tr.From)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

func (t *postgresTx) DecrementAvailableQuantity(ctx context.Context, assetID string) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE assets
		SET available_quantity = available_quantity - 1, updated_at = $2
		WHERE id = $1 AND available_quantity > 0
	`, assetID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

func (t *postgresTx) FindActiveAffiliation(ctx context.Context, employeeEmail, hrEmail, companyName string) (*models.EmployeeAffiliation, error) {
	return getOne[models.EmployeeAffiliation](ctx, t.tx, `
		SELECT * FROM employee_affiliations
		WHERE employee_email = $1 AND hr_email = $2 AND company_name = $3 AND status = $4
		FOR UPDATE
	`, employeeEmail, hrEmail, companyName, models.AffiliationActive)
}

func (t *postgresTx) IncrementAffiliationAssetCount(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE employee_affiliations SET asset_count = asset_count + 1 WHERE id = $1`, id)
	return err
}

func (t *postgresTx) CountActiveAffiliations(ctx context.Context, hrEmail string) (int64, error) {
	var count int64
	err := t.tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM employee_affiliations WHERE hr_email = $1 AND status = $2`,
		hrEmail, models.AffiliationActive)
	return count, err
}

func (t *postgresTx) CreateAffiliation(ctx context.Context, a *models.EmployeeAffiliation) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AffiliationDate.IsZero() {
		a.AffiliationDate = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO employee_affiliations (id, employee_email, employee_name, employee_logo, hr_email,
			company_name, company_logo, asset_count, affiliation_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.EmployeeEmail, a.EmployeeName, a.EmployeeLogo, a.HREmail,
		a.CompanyName, a.CompanyLogo, a.AssetCount, a.AffiliationDate, a.Status)

	return translatePgError(err)
}

func (t *postgresTx) CreateAssignedAsset(ctx context.Context, a *models.AssignedAsset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO assigned_assets (id, asset_id, asset_name, asset_image, asset_type, request_id,
			employee_email, employee_name, hr_email, company_name, assignment_date, return_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, a.AssetID, a.AssetName, a.AssetImage, a.AssetType, a.RequestID,
		a.EmployeeEmail, a.EmployeeName, a.HREmail, a.CompanyName, a.AssignmentDate, a.ReturnDate, a.Status)

	return translatePgError(err)
}

func (t *postgresTx) GetPackage(ctx context.Context, id string) (*models.Package, error) {
	return getOne[models.Package](ctx, t.tx, `SELECT * FROM packages WHERE id = $1`, id)
}

func (t *postgresTx) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return getOne[models.Payment](ctx, t.tx, `SELECT * FROM payments WHERE transaction_id = $1`, transactionID)
}

func (t *postgresTx) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payments (id, hr_email, package_id, package_name, employee_limit, amount,
			tracking_id, transaction_id, status, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.HREmail, p.PackageID, p.PackageName, p.EmployeeLimit, p.Amount,
		p.TrackingID, p.TransactionID, p.Status, p.PaymentDate)

	return translatePgError(err)
}

// whereBuilder assembles an AND-joined WHERE clause with '?' bindvars for Rebind
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(clause string, args ...interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *whereBuilder) page(limit, skip int) string {
	var out string
	if limit > 0 {
		out += fmt.Sprintf(" LIMIT %d", limit)
	}
	if skip > 0 {
		out += fmt.Sprintf(" OFFSET %d", skip)
	}
	return out
}
