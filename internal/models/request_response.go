package models

import "time"

// Request models
type RegisterUserRequest struct {
	Email       string     `json:"email" binding:"required,email"`
	Name        string     `json:"name" binding:"required"`
	Role        Role       `json:"role" binding:"required,oneof=employee hr"`
	CompanyName string     `json:"companyName" binding:"required_if=Role hr"`
	CompanyLogo string     `json:"companyLogo"`
	PhotoURL    string     `json:"photoURL"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
}

type CreateAssetRequest struct {
	ProductName       string `json:"productName" binding:"required"`
	ProductType       string `json:"productType" binding:"required,oneof=returnable non-returnable"`
	ProductImage      string `json:"productImage"`
	AvailableQuantity int    `json:"availableQuantity" binding:"min=0"`
}

type UpdateAssetRequest struct {
	ProductName       *string `json:"productName" binding:"omitempty,min=1"`
	ProductType       *string `json:"productType" binding:"omitempty,oneof=returnable non-returnable"`
	ProductImage      *string `json:"productImage"`
	AvailableQuantity *int    `json:"availableQuantity" binding:"omitempty,min=0"`
}

type CreateAssetRequestRequest struct {
	AssetID string `json:"assetId" binding:"required"`
	Note    string `json:"note" binding:"max=500"`
}

// StatusUpdateRequest drives the HR approve/reject transition
type StatusUpdateRequest struct {
	RequestStatus RequestStatus `json:"requestStatus" binding:"required,oneof=approved rejected"`
	Note          string        `json:"note" binding:"max=500"`
}

type CheckoutSessionRequest struct {
	PackageID string `json:"packageId" binding:"required"`
}

// Filters
type AssetFilter struct {
	HREmail       string
	ID            string
	Search        string
	ProductType   string
	AvailableOnly bool
	Limit         int
	Skip          int
}

type RequestFilter struct {
	RequesterEmail string
	HREmail        string
	Status         RequestStatus
	AssetType      string
	Search         string
	Limit          int
	Skip           int
}

type AffiliationFilter struct {
	HREmail       string
	EmployeeEmail string
	CompanyName   string
	ActiveOnly    bool
}

// AssetPatch carries the validated subset of asset fields an owner may change
type AssetPatch struct {
	ProductName       *string
	ProductType       *string
	ProductImage      *string
	AvailableQuantity *int
}

// RequestTransition is persisted together with the status flip
type RequestTransition struct {
	From        RequestStatus
	To          RequestStatus
	ProcessedBy string
	ProcessedAt *time.Time
	ReturnDate  *time.Time
	Note        string
}

// Response models
type PagedRequestsResponse struct {
	Status string    `json:"status"`
	Items  []Request `json:"items"`
	Total  int64     `json:"total"`
	Limit  int       `json:"limit"`
	Skip   int       `json:"skip"`
}

type StatusUpdateResponse struct {
	Status      string               `json:"status"`
	Request     *Request             `json:"request"`
	Affiliation *EmployeeAffiliation `json:"affiliation,omitempty"`
	Assignment  *AssignedAsset       `json:"assignment,omitempty"`
}

type CheckoutSessionResponse struct {
	URL string `json:"url"`
}

type PaymentReceiptResponse struct {
	Status           string `json:"status"`
	Success          bool   `json:"success"`
	TrackingID       string `json:"trackingId,omitempty"`
	TransactionID    string `json:"transactionId,omitempty"`
	PaymentStatus    string `json:"paymentStatus"`
	PackageName      string `json:"packageName,omitempty"`
	PackageLimit     int    `json:"packageLimit,omitempty"`
	AlreadyProcessed bool   `json:"alreadyProcessed,omitempty"`
}

type DeleteResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListResponse wraps list endpoints that are not paginated
type ListResponse[T any] struct {
	Status string `json:"status"`
	Items  []T    `json:"items"`
}
