package repository

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/assetverse-server/internal/models"
)

// MemoryRepository keeps everything in process memory. Transactions are
// serialised and write to a copy that is swapped in on commit.
// Used by the test harness and STORE_DRIVER=memory.
type MemoryRepository struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data memoryData
}

type memoryData struct {
	users        map[string]models.User // keyed by email
	packages     map[string]models.Package
	assets       map[string]models.Asset
	requests     map[string]models.Request
	affiliations map[string]models.EmployeeAffiliation
	assigned     map[string]models.AssignedAsset
	payments     map[string]models.Payment
}

func newMemoryData() memoryData {
	return memoryData{
		users:        map[string]models.User{},
		packages:     map[string]models.Package{},
		assets:       map[string]models.Asset{},
		requests:     map[string]models.Request{},
		affiliations: map[string]models.EmployeeAffiliation{},
		assigned:     map[string]models.AssignedAsset{},
		payments:     map[string]models.Payment{},
	}
}

func (d memoryData) clone() memoryData {
	return memoryData{
		users:        maps.Clone(d.users),
		packages:     maps.Clone(d.packages),
		assets:       maps.Clone(d.assets),
		requests:     maps.Clone(d.requests),
		affiliations: maps.Clone(d.affiliations),
		assigned:     maps.Clone(d.assigned),
		payments:     maps.Clone(d.payments),
	}
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: newMemoryData()}
}

// Reset drops all records
func (r *MemoryRepository) Reset() {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = newMemoryData()
}

func (r *MemoryRepository) Close(_ context.Context) error {
	return nil
}

// write runs fn with exclusive access, outside of any transaction
func (r *MemoryRepository) write(fn func(d *memoryData) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&r.data)
}

func (r *MemoryRepository) read(fn func(d *memoryData)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(&r.data)
}

func ptr[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func paginate[T any](items []T, limit, skip int) []T {
	if skip > 0 {
		if skip >= len(items) {
			return []T{}
		}
		items = items[skip:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// User operations
func (r *MemoryRepository) CreateUser(_ context.Context, user *models.User) error {
	return r.write(func(d *memoryData) error {
		if _, exists := d.users[user.Email]; exists {
			return fmt.Errorf("%w: users.email", ErrDuplicate)
		}
		if user.ID == "" {
			user.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		user.CreatedAt = now
		user.UpdatedAt = now
		d.users[user.Email] = *user
		return nil
	})
}

func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (user *models.User, err error) {
	r.read(func(d *memoryData) {
		u, ok := d.users[email]
		user = ptr(u, ok)
	})
	return user, nil
}

// Package operations
func (r *MemoryRepository) CreatePackage(_ context.Context, pkg *models.Package) error {
	return r.write(func(d *memoryData) error {
		if pkg.ID == "" {
			pkg.ID = uuid.New().String()
		}
		if _, exists := d.packages[pkg.ID]; exists {
			return fmt.Errorf("%w: packages.id", ErrDuplicate)
		}
		d.packages[pkg.ID] = *pkg
		return nil
	})
}

func (r *MemoryRepository) ListPackages(_ context.Context) ([]models.Package, error) {
	packages := []models.Package{}
	r.read(func(d *memoryData) {
		for _, p := range d.packages {
			packages = append(packages, p)
		}
	})
	sort.Slice(packages, func(i, j int) bool {
		if packages[i].EmployeeLimit != packages[j].EmployeeLimit {
			return packages[i].EmployeeLimit < packages[j].EmployeeLimit
		}
		return packages[i].ID < packages[j].ID
	})
	return packages, nil
}

func (r *MemoryRepository) GetPackage(_ context.Context, id string) (pkg *models.Package, err error) {
	r.read(func(d *memoryData) {
		p, ok := d.packages[id]
		pkg = ptr(p, ok)
	})
	return pkg, nil
}

// Asset operations
func (r *MemoryRepository) CreateAsset(_ context.Context, asset *models.Asset) error {
	return r.write(func(d *memoryData) error {
		if asset.ID == "" {
			asset.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		asset.CreatedAt = now
		asset.UpdatedAt = now
		d.assets[asset.ID] = *asset
		return nil
	})
}

func (r *MemoryRepository) GetAsset(_ context.Context, id string) (asset *models.Asset, err error) {
	r.read(func(d *memoryData) {
		a, ok := d.assets[id]
		asset = ptr(a, ok)
	})
	return asset, nil
}

func (r *MemoryRepository) ListAssets(_ context.Context, filter models.AssetFilter) ([]models.Asset, error) {
	assets := []models.Asset{}
	r.read(func(d *memoryData) {
		for _, a := range d.assets {
			if filter.HREmail != "" && a.HREmail != filter.HREmail {
				continue
			}
			if filter.ID != "" && a.ID != filter.ID {
				continue
			}
			if filter.Search != "" && !containsFold(a.ProductName, filter.Search) {
				continue
			}
			if filter.ProductType != "" && a.ProductType != filter.ProductType {
				continue
			}
			if filter.AvailableOnly && a.AvailableQuantity <= 0 {
				continue
			}
			assets = append(assets, a)
		}
	})
	sort.Slice(assets, func(i, j int) bool {
		if !assets[i].CreatedAt.Equal(assets[j].CreatedAt) {
			return assets[i].CreatedAt.After(assets[j].CreatedAt)
		}
		return assets[i].ID < assets[j].ID
	})
	return paginate(assets, filter.Limit, filter.Skip), nil
}

func (r *MemoryRepository) UpdateAsset(_ context.Context, id string, patch models.AssetPatch) error {
	return r.write(func(d *memoryData) error {
		a, ok := d.assets[id]
		if !ok {
			return nil
		}
		if patch.ProductName != nil {
			a.ProductName = *patch.ProductName
		}
		if patch.ProductType != nil {
			a.ProductType = *patch.ProductType
		}
		if patch.ProductImage != nil {
			a.ProductImage = *patch.ProductImage
		}
		if patch.AvailableQuantity != nil {
			a.AvailableQuantity = *patch.AvailableQuantity
		}
		a.UpdatedAt = time.Now().UTC()
		d.assets[id] = a
		return nil
	})
}

func (r *MemoryRepository) DeleteAsset(_ context.Context, id string) (int64, error) {
	var deleted int64
	err := r.write(func(d *memoryData) error {
		if _, ok := d.assets[id]; ok {
			delete(d.assets, id)
			deleted = 1
		}
		return nil
	})
	return deleted, err
}

// Request operations
func (r *MemoryRepository) CreateRequest(_ context.Context, req *models.Request) error {
	return r.write(func(d *memoryData) error {
		if req.ID == "" {
			req.ID = uuid.New().String()
		}
		if req.RequestDate.IsZero() {
			req.RequestDate = time.Now().UTC()
		}
		d.requests[req.ID] = *req
		return nil
	})
}

func (r *MemoryRepository) GetRequest(_ context.Context, id string) (req *models.Request, err error) {
	r.read(func(d *memoryData) {
		q, ok := d.requests[id]
		req = ptr(q, ok)
	})
	return req, nil
}

func (r *MemoryRepository) ListRequests(_ context.Context, filter models.RequestFilter) ([]models.Request, int64, error) {
	requests := []models.Request{}
	r.read(func(d *memoryData) {
		for _, q := range d.requests {
			if filter.RequesterEmail != "" && q.RequesterEmail != filter.RequesterEmail {
				continue
			}
			if filter.HREmail != "" && q.HREmail != filter.HREmail {
				continue
			}
			if filter.Status != "" && q.RequestStatus != filter.Status {
				continue
			}
			if filter.AssetType != "" && q.AssetType != filter.AssetType {
				continue
			}
			if filter.Search != "" && !containsFold(q.AssetName, filter.Search) {
				continue
			}
			requests = append(requests, q)
		}
	})
	sort.Slice(requests, func(i, j int) bool {
		if !requests[i].RequestDate.Equal(requests[j].RequestDate) {
			return requests[i].RequestDate.After(requests[j].RequestDate)
		}
		return requests[i].ID < requests[j].ID
	})
	total := int64(len(requests))
	return paginate(requests, filter.Limit, filter.Skip), total, nil
}

// Affiliation operations
func (r *MemoryRepository) ListAffiliations(_ context.Context, filter models.AffiliationFilter) ([]models.EmployeeAffiliation, error) {
	affiliations := []models.EmployeeAffiliation{}
	r.read(func(d *memoryData) {
		for _, a := range d.affiliations {
			if filter.HREmail != "" && a.HREmail != filter.HREmail {
				continue
			}
			if filter.EmployeeEmail != "" && a.EmployeeEmail != filter.EmployeeEmail {
				continue
			}
			if filter.CompanyName != "" && a.CompanyName != filter.CompanyName {
				continue
			}
			if filter.ActiveOnly && a.Status != models.AffiliationActive {
				continue
			}
			affiliations = append(affiliations, a)
		}
	})
	sort.Slice(affiliations, func(i, j int) bool {
		if !affiliations[i].AffiliationDate.Equal(affiliations[j].AffiliationDate) {
			return affiliations[i].AffiliationDate.Before(affiliations[j].AffiliationDate)
		}
		return affiliations[i].ID < affiliations[j].ID
	})
	return affiliations, nil
}

func (r *MemoryRepository) ListCompanies(_ context.Context, employeeEmail string) ([]string, error) {
	seen := map[string]struct{}{}
	r.read(func(d *memoryData) {
		for _, a := range d.affiliations {
			if a.EmployeeEmail == employeeEmail && a.Status == models.AffiliationActive {
				seen[a.CompanyName] = struct{}{}
			}
		}
	})
	companies := make([]string, 0, len(seen))
	for name := range seen {
		companies = append(companies, name)
	}
	sort.Strings(companies)
	return companies, nil
}

func (r *MemoryRepository) DeactivateAffiliations(_ context.Context, hrEmail, employeeEmail string) (int64, error) {
	var modified int64
	err := r.write(func(d *memoryData) error {
		for id, a := range d.affiliations {
			if a.HREmail == hrEmail && a.EmployeeEmail == employeeEmail && a.Status == models.AffiliationActive {
				a.Status = models.AffiliationInactive
				d.affiliations[id] = a
				modified++
			}
		}
		return nil
	})
	return modified, err
}

func (r *MemoryRepository) ListTeamBirthdays(_ context.Context, companyName string, month int) ([]models.TeamBirthday, error) {
	birthdays := []models.TeamBirthday{}
	r.read(func(d *memoryData) {
		seen := map[string]struct{}{}
		for _, a := range d.affiliations {
			if a.CompanyName != companyName || a.Status != models.AffiliationActive {
				continue
			}
			if _, dup := seen[a.EmployeeEmail]; dup {
				continue
			}
			u, ok := d.users[a.EmployeeEmail]
			if !ok || u.DateOfBirth == nil || int(u.DateOfBirth.Month()) != month {
				continue
			}
			seen[a.EmployeeEmail] = struct{}{}
			birthdays = append(birthdays, models.TeamBirthday{
				EmployeeEmail: a.EmployeeEmail,
				EmployeeName:  a.EmployeeName,
				EmployeeLogo:  a.EmployeeLogo,
				DateOfBirth:   *u.DateOfBirth,
			})
		}
	})
	sort.Slice(birthdays, func(i, j int) bool {
		return birthdays[i].DateOfBirth.Before(birthdays[j].DateOfBirth)
	})
	return birthdays, nil
}

func (r *MemoryRepository) ListAssignedAssets(_ context.Context, employeeEmail string) ([]models.AssignedAsset, error) {
	assignments := []models.AssignedAsset{}
	r.read(func(d *memoryData) {
		for _, a := range d.assigned {
			if a.EmployeeEmail == employeeEmail {
				assignments = append(assignments, a)
			}
		}
	})
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].AssignmentDate.After(assignments[j].AssignmentDate)
	})
	return assignments, nil
}

// Payment operations
func (r *MemoryRepository) GetPaymentByTransactionID(_ context.Context, transactionID string) (payment *models.Payment, err error) {
	r.read(func(d *memoryData) {
		payment = d.paymentByTransaction(transactionID)
	})
	return payment, nil
}

func (d *memoryData) paymentByTransaction(transactionID string) *models.Payment {
	for _, p := range d.payments {
		if p.TransactionID == transactionID {
			p := p
			return &p
		}
	}
	return nil
}

func (r *MemoryRepository) ListPayments(_ context.Context, hrEmail string) ([]models.Payment, error) {
	payments := []models.Payment{}
	r.read(func(d *memoryData) {
		for _, p := range d.payments {
			if p.HREmail == hrEmail {
				payments = append(payments, p)
			}
		}
	})
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].PaymentDate.After(payments[j].PaymentDate)
	})
	return payments, nil
}

// Analytics
func (r *MemoryRepository) AssetTypeDistribution(_ context.Context, hrEmail string) ([]models.TypeCount, error) {
	counts := map[string]int64{}
	r.read(func(d *memoryData) {
		for _, a := range d.assets {
			if a.HREmail == hrEmail {
				counts[a.ProductType]++
			}
		}
	})
	out := make([]models.TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, models.TypeCount{ProductType: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductType < out[j].ProductType })
	return out, nil
}

func (r *MemoryRepository) TopRequestedAssets(_ context.Context, hrEmail string, limit int) ([]models.AssetRequestCount, error) {
	byAsset := map[string]*models.AssetRequestCount{}
	r.read(func(d *memoryData) {
		for _, q := range d.requests {
			if q.HREmail != hrEmail {
				continue
			}
			c, ok := byAsset[q.AssetID]
			if !ok {
				c = &models.AssetRequestCount{AssetID: q.AssetID}
				byAsset[q.AssetID] = c
			}
			if q.AssetName > c.AssetName {
				c.AssetName = q.AssetName
			}
			c.Count++
		}
	})
	out := make([]models.AssetRequestCount, 0, len(byAsset))
	for _, c := range byAsset {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].AssetName < out[j].AssetName
	})
	return paginate(out, limit, 0), nil
}

// WithinTx serialises fn against every other writer. fn works on a private
// copy of the data that replaces the committed state only when fn succeeds,
// so readers never observe a transaction in progress.
func (r *MemoryRepository) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.RLock()
	work := r.data.clone()
	r.mu.RUnlock()

	if err := fn(&memoryTx{data: &work}); err != nil {
		return err
	}

	r.mu.Lock()
	r.data = work
	r.mu.Unlock()
	return nil
}

// memoryTx owns its working copy; txMu keeps every other writer out
type memoryTx struct {
	data *memoryData
}

func (t *memoryTx) apply(fn func(d *memoryData) error) error {
	return fn(t.data)
}

func (t *memoryTx) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := t.data.users[email]
	return ptr(u, ok), nil
}

func (t *memoryTx) LockUser(_ context.Context, email string) (user *models.User, err error) {
	err = t.apply(func(d *memoryData) error {
		u, ok := d.users[email]
		if !ok {
			return nil
		}
		u.EntitlementVersion++
		d.users[email] = u
		user = &u
		return nil
	})
	return user, err
}

func (t *memoryTx) UpdateUserEntitlement(_ context.Context, email string, packageLimit int, subscription string) (updated bool, err error) {
	err = t.apply(func(d *memoryData) error {
		u, ok := d.users[email]
		if !ok {
			return nil
		}
		u.PackageLimit = packageLimit
		u.Subscription = subscription
		u.EntitlementVersion++
		u.UpdatedAt = time.Now().UTC()
		d.users[email] = u
		updated = true
		return nil
	})
	return updated, err
}

func (t *memoryTx) GetRequestForUpdate(_ context.Context, id string) (*models.Request, error) {
	q, ok := t.data.requests[id]
	return ptr(q, ok), nil
}

func (t *memoryTx) TransitionRequest(_ context.Context, id string, tr models.RequestTransition) (applied bool, err error) {
	err = t.apply(func(d *memoryData) error {
		q, ok := d.requests[id]
		if !ok || q.RequestStatus != tr.From {
			return nil
		}
		q.RequestStatus = tr.To
		if tr.ProcessedBy != "" {
			q.ProcessedBy = tr.ProcessedBy
		}
		if tr.ProcessedAt != nil {
			q.ProcessedAt = tr.ProcessedAt
		}
		if tr.ReturnDate != nil {
			q.ReturnDate = tr.ReturnDate
		}
		if tr.Note != "" {
			q.Note = tr.Note
		}
		d.requests[id] = q
		applied = true
		return nil
	})
	return applied, err
}

func (t *memoryTx) DecrementAvailableQuantity(_ context.Context, assetID string) (reserved bool, err error) {
	err = t.apply(func(d *memoryData) error {
		a, ok := d.assets[assetID]
		if !ok || a.AvailableQuantity <= 0 {
			return nil
		}
		a.AvailableQuantity--
		a.UpdatedAt = time.Now().UTC()
		d.assets[assetID] = a
		reserved = true
		return nil
	})
	return reserved, err
}

func (d *memoryData) activeAffiliation(employeeEmail, hrEmail, companyName string) *models.EmployeeAffiliation {
	for _, a := range d.affiliations {
		if a.EmployeeEmail == employeeEmail && a.HREmail == hrEmail &&
			a.CompanyName == companyName && a.Status == models.AffiliationActive {
			a := a
			return &a
		}
	}
	return nil
}

func (t *memoryTx) FindActiveAffiliation(_ context.Context, employeeEmail, hrEmail, companyName string) (*models.EmployeeAffiliation, error) {
	return t.data.activeAffiliation(employeeEmail, hrEmail, companyName), nil
}

func (t *memoryTx) IncrementAffiliationAssetCount(_ context.Context, id string) error {
	return t.apply(func(d *memoryData) error {
		if a, ok := d.affiliations[id]; ok {
			a.AssetCount++
			d.affiliations[id] = a
		}
		return nil
	})
}

func (t *memoryTx) CountActiveAffiliations(_ context.Context, hrEmail string) (count int64, err error) {
	for _, a := range t.data.affiliations {
		if a.HREmail == hrEmail && a.Status == models.AffiliationActive {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) CreateAffiliation(_ context.Context, a *models.EmployeeAffiliation) error {
	return t.apply(func(d *memoryData) error {
		if a.Status == models.AffiliationActive && d.activeAffiliation(a.EmployeeEmail, a.HREmail, a.CompanyName) != nil {
			return fmt.Errorf("%w: employee_affiliations active triple", ErrDuplicate)
		}
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		if a.AffiliationDate.IsZero() {
			a.AffiliationDate = time.Now().UTC()
		}
		d.affiliations[a.ID] = *a
		return nil
	})
}

func (t *memoryTx) CreateAssignedAsset(_ context.Context, a *models.AssignedAsset) error {
	return t.apply(func(d *memoryData) error {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		d.assigned[a.ID] = *a
		return nil
	})
}

func (t *memoryTx) GetPackage(_ context.Context, id string) (*models.Package, error) {
	p, ok := t.data.packages[id]
	return ptr(p, ok), nil
}

func (t *memoryTx) GetPaymentByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	return t.data.paymentByTransaction(transactionID), nil
}

func (t *memoryTx) CreatePayment(_ context.Context, p *models.Payment) error {
	return t.apply(func(d *memoryData) error {
		if d.paymentByTransaction(p.TransactionID) != nil {
			return fmt.Errorf("%w: payments.transaction_id", ErrDuplicate)
		}
		for _, existing := range d.payments {
			if existing.TrackingID == p.TrackingID {
				return fmt.Errorf("%w: payments.tracking_id", ErrDuplicate)
			}
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		d.payments[p.ID] = *p
		return nil
	})
}
