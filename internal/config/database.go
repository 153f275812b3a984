package config

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := CreateTables(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// CreateTables creates the necessary tables in the database
func CreateTables(db *sqlx.DB, logger *zap.Logger) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			role VARCHAR(16) NOT NULL,
			package_limit INTEGER NOT NULL DEFAULT 0 CHECK (package_limit >= 0),
			subscription VARCHAR(255) NOT NULL DEFAULT '',
			company_name VARCHAR(255) NOT NULL DEFAULT '',
			company_logo TEXT NOT NULL DEFAULT '',
			photo_url TEXT NOT NULL DEFAULT '',
			date_of_birth TIMESTAMP,
			entitlement_version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS packages (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			price NUMERIC(12, 2) NOT NULL,
			employee_limit INTEGER NOT NULL CHECK (employee_limit >= 0),
			features TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS assets (
			id VARCHAR(36) PRIMARY KEY,
			hr_email VARCHAR(255) NOT NULL,
			company_name VARCHAR(255) NOT NULL DEFAULT '',
			product_name VARCHAR(255) NOT NULL,
			product_type VARCHAR(32) NOT NULL,
			product_image TEXT NOT NULL DEFAULT '',
			available_quantity INTEGER NOT NULL CHECK (available_quantity >= 0),
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS requests (
			id VARCHAR(36) PRIMARY KEY,
			requester_email VARCHAR(255) NOT NULL,
			requester_name VARCHAR(255) NOT NULL DEFAULT '',
			hr_email VARCHAR(255) NOT NULL,
			company_name VARCHAR(255) NOT NULL DEFAULT '',
			asset_id VARCHAR(36) NOT NULL,
			asset_name VARCHAR(255) NOT NULL DEFAULT '',
			asset_type VARCHAR(32) NOT NULL DEFAULT '',
			asset_image TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			request_status VARCHAR(16) NOT NULL,
			request_date TIMESTAMP NOT NULL,
			processed_by VARCHAR(255) NOT NULL DEFAULT '',
			processed_at TIMESTAMP,
			return_date TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS employee_affiliations (
			id VARCHAR(36) PRIMARY KEY,
			employee_email VARCHAR(255) NOT NULL,
			employee_name VARCHAR(255) NOT NULL DEFAULT '',
			employee_logo TEXT NOT NULL DEFAULT '',
			hr_email VARCHAR(255) NOT NULL,
			company_name VARCHAR(255) NOT NULL DEFAULT '',
			company_logo TEXT NOT NULL DEFAULT '',
			asset_count INTEGER NOT NULL DEFAULT 0 CHECK (asset_count >= 0),
			affiliation_date TIMESTAMP NOT NULL,
			status VARCHAR(16) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS assigned_assets (
			id VARCHAR(36) PRIMARY KEY,
			asset_id VARCHAR(36) NOT NULL,
			asset_name VARCHAR(255) NOT NULL DEFAULT '',
			asset_image TEXT NOT NULL DEFAULT '',
			asset_type VARCHAR(32) NOT NULL DEFAULT '',
			request_id VARCHAR(36) NOT NULL,
			employee_email VARCHAR(255) NOT NULL,
			employee_name VARCHAR(255) NOT NULL DEFAULT '',
			hr_email VARCHAR(255) NOT NULL,
			company_name VARCHAR(255) NOT NULL DEFAULT '',
			assignment_date TIMESTAMP NOT NULL,
			return_date TIMESTAMP,
			status VARCHAR(16) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(36) PRIMARY KEY,
			hr_email VARCHAR(255) NOT NULL,
			package_id VARCHAR(36) NOT NULL,
			package_name VARCHAR(255) NOT NULL DEFAULT '',
			employee_limit INTEGER NOT NULL,
			amount NUMERIC(12, 2) NOT NULL,
			tracking_id VARCHAR(64) UNIQUE NOT NULL,
			transaction_id VARCHAR(255) UNIQUE NOT NULL,
			status VARCHAR(32) NOT NULL,
			payment_date TIMESTAMP NOT NULL
		)`,
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return err
		}
	}

	// At most one active affiliation per (employee, hr, company)
	if _, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_affiliation
		ON employee_affiliations (employee_email, hr_email, company_name)
		WHERE status = 'active'
	`); err != nil {
		return err
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_assets_hr_email ON assets(hr_email)",
		"CREATE INDEX IF NOT EXISTS idx_requests_hr_email ON requests(hr_email, request_status)",
		"CREATE INDEX IF NOT EXISTS idx_requests_requester ON requests(requester_email)",
		"CREATE INDEX IF NOT EXISTS idx_affiliations_hr_status ON employee_affiliations(hr_email, status)",
		"CREATE INDEX IF NOT EXISTS idx_assigned_assets_employee ON assigned_assets(employee_email)",
		"CREATE INDEX IF NOT EXISTS idx_payments_hr_email ON payments(hr_email)",
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			// Don't return error here, indexes are not critical
			logger.Warn("failed to create index", zap.String("ddl", idx), zap.Error(err))
		}
	}

	return nil
}
