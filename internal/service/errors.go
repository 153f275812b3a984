package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindOutOfStock
	KindSeatLimitExceeded
	KindInvalidTransition
	KindUpstreamUnavailable
)

// Error messages
const (
	ErrMsgRequestNotFound     = "Request not found"
	ErrMsgAssetNotFound       = "Asset not found"
	ErrMsgUserNotFound        = "User not found"
	ErrMsgPackageNotFound     = "Package not found"
	ErrMsgOutOfStock          = "Asset is out of stock"
	ErrMsgSeatLimit           = "Package limit reached. Please upgrade your package"
	ErrMsgNotPending          = "Request is not pending"
	ErrMsgNotApproved         = "Only approved requests can be returned"
	ErrMsgNotRequestHR        = "Only the HR who owns this request can process it"
	ErrMsgNotRequester        = "Only the requester can return this asset"
	ErrMsgNotAssetOwner       = "Only the HR who owns this asset can change it"
	ErrMsgHROnly              = "HR access required"
	ErrMsgEmailTaken          = "A user with this email already exists"
	ErrMsgGatewayUnavailable  = "Payment gateway is unavailable"
	ErrMsgSessionOwner        = "Checkout session belongs to another account"
	ErrMsgSessionNotFound     = "Checkout session not found"
	ErrMsgInvalidStatus       = "Invalid request status"
	ErrMsgAffiliationFilter   = "hrEmail or employeeEmail is required"
	ErrMsgSessionIDRequired   = "session_id is required"
	ErrMsgCompanyNameRequired = "companyName is required"
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindUnauthenticated:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindOutOfStock:
		return "OUT_OF_STOCK"
	case KindSeatLimitExceeded:
		return "LIMIT_EXCEEDED"
	case KindInvalidTransition:
		return "INVALID_TRANSITION"
	case KindUpstreamUnavailable:
		return "UPSTREAM_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is a domain rejection the API layer maps to a client-facing status
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrOutOfStock) ignores the message
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func newErrorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrValidation          = newError(KindValidation, "invalid input")
	ErrUnauthenticated     = newError(KindUnauthenticated, "authentication required")
	ErrForbidden           = newError(KindForbidden, "forbidden")
	ErrNotFound            = newError(KindNotFound, "not found")
	ErrConflict            = newError(KindConflict, "conflict")
	ErrOutOfStock          = newError(KindOutOfStock, ErrMsgOutOfStock)
	ErrSeatLimitExceeded   = newError(KindSeatLimitExceeded, ErrMsgSeatLimit)
	ErrInvalidTransition   = newError(KindInvalidTransition, "invalid transition")
	ErrUpstreamUnavailable = newError(KindUpstreamUnavailable, ErrMsgGatewayUnavailable)
)

// KindOf returns the Kind of err, KindInternal for anything that is not a domain error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// logFailure logs domain rejections at info and everything else at error
func logFailure(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	kind := KindOf(err)
	if kind == KindInternal {
		logger.Error(msg, fields...)
		return
	}
	logger.Info(msg, append(fields, zap.String("kind", kind.String()))...)
}
