package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Role of a registered user
type Role string

const (
	RoleEmployee Role = "employee"
	RoleHR       Role = "hr"
)

// RequestStatus is the lifecycle state of an asset request
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestReturned RequestStatus = "returned"
)

// AffiliationStatus marks whether an employee currently occupies a seat
type AffiliationStatus string

const (
	AffiliationActive   AffiliationStatus = "active"
	AffiliationInactive AffiliationStatus = "inactive"
)

// AssignmentStatus of an assigned asset record
type AssignmentStatus string

const (
	AssignmentAssigned AssignmentStatus = "assigned"
	AssignmentReturned AssignmentStatus = "returned"
)

// Asset product types
const (
	ProductReturnable    = "returnable"
	ProductNonReturnable = "non-returnable"
)

// User represents an HR account or an employee
type User struct {
	ID                 string     `db:"id" bson:"_id" json:"id"`
	Email              string     `db:"email" bson:"email" json:"email"`
	Name               string     `db:"name" bson:"name" json:"name"`
	Role               Role       `db:"role" bson:"role" json:"role"`
	PackageLimit       int        `db:"package_limit" bson:"packageLimit" json:"packageLimit"`
	Subscription       string     `db:"subscription" bson:"subscription" json:"subscription"`
	CompanyName        string     `db:"company_name" bson:"companyName" json:"companyName,omitempty"`
	CompanyLogo        string     `db:"company_logo" bson:"companyLogo" json:"companyLogo,omitempty"`
	PhotoURL           string     `db:"photo_url" bson:"photoURL" json:"photoURL,omitempty"`
	DateOfBirth        *time.Time `db:"date_of_birth" bson:"dateOfBirth,omitempty" json:"dateOfBirth,omitempty"`
	EntitlementVersion int64      `db:"entitlement_version" bson:"entitlementVersion" json:"-"`
	CreatedAt          time.Time  `db:"created_at" bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" bson:"updatedAt" json:"updatedAt"`
}

// IsHR reports whether the user manages assets and employees
func (u *User) IsHR() bool {
	return u != nil && u.Role == RoleHR
}

// Asset is an inventory item owned by an HR account
type Asset struct {
	ID                string    `db:"id" bson:"_id" json:"id"`
	HREmail           string    `db:"hr_email" bson:"hrEmail" json:"hrEmail"`
	CompanyName       string    `db:"company_name" bson:"companyName" json:"companyName"`
	ProductName       string    `db:"product_name" bson:"productName" json:"productName"`
	ProductType       string    `db:"product_type" bson:"productType" json:"productType"`
	ProductImage      string    `db:"product_image" bson:"productImage" json:"productImage,omitempty"`
	AvailableQuantity int       `db:"available_quantity" bson:"availableQuantity" json:"availableQuantity"`
	CreatedAt         time.Time `db:"created_at" bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" bson:"updatedAt" json:"updatedAt"`
}

// Request is an employee's request for one unit of an asset
type Request struct {
	ID             string        `db:"id" bson:"_id" json:"id"`
	RequesterEmail string        `db:"requester_email" bson:"requesterEmail" json:"requesterEmail"`
	RequesterName  string        `db:"requester_name" bson:"requesterName" json:"requesterName"`
	HREmail        string        `db:"hr_email" bson:"hrEmail" json:"hrEmail"`
	CompanyName    string        `db:"company_name" bson:"companyName" json:"companyName"`
	AssetID        string        `db:"asset_id" bson:"assetId" json:"assetId"`
	AssetName      string        `db:"asset_name" bson:"assetName" json:"assetName"`
	AssetType      string        `db:"asset_type" bson:"assetType" json:"assetType"`
	AssetImage     string        `db:"asset_image" bson:"assetImage" json:"assetImage,omitempty"`
	Note           string        `db:"note" bson:"note" json:"note,omitempty"`
	RequestStatus  RequestStatus `db:"request_status" bson:"requestStatus" json:"requestStatus"`
	RequestDate    time.Time     `db:"request_date" bson:"requestDate" json:"requestDate"`
	ProcessedBy    string        `db:"processed_by" bson:"processedBy" json:"processedBy,omitempty"`
	ProcessedAt    *time.Time    `db:"processed_at" bson:"processedAt,omitempty" json:"processedAt,omitempty"`
	ReturnDate     *time.Time    `db:"return_date" bson:"returnDate,omitempty" json:"returnDate"`
}

// EmployeeAffiliation links an employee to the HR/company that assigned them assets
type EmployeeAffiliation struct {
	ID              string            `db:"id" bson:"_id" json:"id"`
	EmployeeEmail   string            `db:"employee_email" bson:"employeeEmail" json:"employeeEmail"`
	EmployeeName    string            `db:"employee_name" bson:"employeeName" json:"employeeName"`
	EmployeeLogo    string            `db:"employee_logo" bson:"employeeLogo" json:"employeeLogo,omitempty"`
	HREmail         string            `db:"hr_email" bson:"hrEmail" json:"hrEmail"`
	CompanyName     string            `db:"company_name" bson:"companyName" json:"companyName"`
	CompanyLogo     string            `db:"company_logo" bson:"companyLogo" json:"companyLogo,omitempty"`
	AssetCount      int               `db:"asset_count" bson:"assetCount" json:"assetCount"`
	AffiliationDate time.Time         `db:"affiliation_date" bson:"affiliationDate" json:"affiliationDate"`
	Status          AffiliationStatus `db:"status" bson:"status" json:"status"`
}

// AssignedAsset is the append-only audit row written on every approval
type AssignedAsset struct {
	ID             string           `db:"id" bson:"_id" json:"id"`
	AssetID        string           `db:"asset_id" bson:"assetId" json:"assetId"`
	AssetName      string           `db:"asset_name" bson:"assetName" json:"assetName"`
	AssetImage     string           `db:"asset_image" bson:"assetImage" json:"assetImage,omitempty"`
	AssetType      string           `db:"asset_type" bson:"assetType" json:"assetType"`
	RequestID      string           `db:"request_id" bson:"requestId" json:"requestId"`
	EmployeeEmail  string           `db:"employee_email" bson:"employeeEmail" json:"employeeEmail"`
	EmployeeName   string           `db:"employee_name" bson:"employeeName" json:"employeeName"`
	HREmail        string           `db:"hr_email" bson:"hrEmail" json:"hrEmail"`
	CompanyName    string           `db:"company_name" bson:"companyName" json:"companyName"`
	AssignmentDate time.Time        `db:"assignment_date" bson:"assignmentDate" json:"assignmentDate"`
	ReturnDate     *time.Time       `db:"return_date" bson:"returnDate,omitempty" json:"returnDate"`
	Status         AssignmentStatus `db:"status" bson:"status" json:"status"`
}

// Package is an immutable subscription catalog entry
type Package struct {
	ID            string          `db:"id" bson:"_id" json:"id"`
	Name          string          `db:"name" bson:"name" json:"name"`
	Price         decimal.Decimal `db:"price" bson:"price" json:"price"`
	EmployeeLimit int             `db:"employee_limit" bson:"employeeLimit" json:"employeeLimit"`
	Features      pq.StringArray  `db:"features" bson:"features" json:"features"`
}

// Payment is one verified checkout, keyed by the gateway transaction id
type Payment struct {
	ID            string          `db:"id" bson:"_id" json:"id"`
	HREmail       string          `db:"hr_email" bson:"hrEmail" json:"hrEmail"`
	PackageID     string          `db:"package_id" bson:"packageId" json:"packageId"`
	PackageName   string          `db:"package_name" bson:"packageName" json:"packageName"`
	EmployeeLimit int             `db:"employee_limit" bson:"employeeLimit" json:"employeeLimit"`
	Amount        decimal.Decimal `db:"amount" bson:"amount" json:"amount"`
	TrackingID    string          `db:"tracking_id" bson:"trackingId" json:"trackingId"`
	TransactionID string          `db:"transaction_id" bson:"transactionId" json:"transactionId"`
	Status        string          `db:"status" bson:"status" json:"status"`
	PaymentDate   time.Time       `db:"payment_date" bson:"paymentDate" json:"paymentDate"`
}

// TypeCount is one bucket of the asset-type distribution
type TypeCount struct {
	ProductType string `db:"product_type" bson:"_id" json:"productType"`
	Count       int64  `db:"count" bson:"count" json:"count"`
}

// AssetRequestCount is one row of the most-requested assets ranking
type AssetRequestCount struct {
	AssetID   string `db:"asset_id" bson:"assetId" json:"assetId"`
	AssetName string `db:"asset_name" bson:"assetName" json:"assetName"`
	Count     int64  `db:"count" bson:"count" json:"count"`
}

// TeamBirthday is an active team member whose birthday falls in the current month
type TeamBirthday struct {
	EmployeeEmail string    `db:"employee_email" bson:"employeeEmail" json:"employeeEmail"`
	EmployeeName  string    `db:"employee_name" bson:"employeeName" json:"employeeName"`
	EmployeeLogo  string    `db:"employee_logo" bson:"employeeLogo" json:"employeeLogo,omitempty"`
	DateOfBirth   time.Time `db:"date_of_birth" bson:"dateOfBirth" json:"dateOfBirth"`
}
