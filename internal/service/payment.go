package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rongwang/assetverse-server/internal/gateway"
	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReceiptStatus of a reconciliation attempt
type ReceiptStatus string

const (
	ReceiptPaid    ReceiptStatus = "paid"
	ReceiptPending ReceiptStatus = "pending"
)

// Receipt is the outcome of Finalize
type Receipt struct {
	Status           ReceiptStatus
	TrackingID       string
	TransactionID    string
	PackageName      string
	PackageLimit     int
	AlreadyProcessed bool
}

// PaymentOptions configures checkout URLs and gateway behaviour
type PaymentOptions struct {
	SiteDomain     string
	Currency       string
	GatewayTimeout time.Duration
}

// PaymentReconciler turns verified gateway payments into package upgrades
type PaymentReconciler struct {
	repo       repository.Repository
	gateway    gateway.PaymentGateway
	opts       PaymentOptions
	logger     *zap.Logger
	now        func() time.Time
	trackingID func() (string, error)
}

func NewPaymentReconciler(repo repository.Repository, gw gateway.PaymentGateway, opts PaymentOptions, logger *zap.Logger) *PaymentReconciler {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	return &PaymentReconciler{
		repo:       repo,
		gateway:    gw,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
		trackingID: NewTrackingID,
	}
}

// NewTrackingID returns TXN-<unix millis in base 36>-<12 random hex chars>
func NewTrackingID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("error generating tracking id: %w", err)
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return "TXN-" + ts + "-" + hex.EncodeToString(buf), nil
}

// CreateCheckout opens a hosted checkout for a package. The amount always
// comes from the stored package, never from the client.
func (p *PaymentReconciler) CreateCheckout(ctx context.Context, hrEmail, packageID string) (string, error) {
	pkg, err := p.repo.GetPackage(ctx, packageID)
	if err != nil {
		return "", fmt.Errorf("error loading package: %w", err)
	}
	if pkg == nil {
		return "", newError(KindNotFound, ErrMsgPackageNotFound)
	}

	price := pkg.Price.StringFixed(2)
	req := gateway.CheckoutRequest{
		ProductName:   "Subscription: " + pkg.Name,
		Description:   fmt.Sprintf("Pay %s$ to get this %s package", price, pkg.Name),
		AmountCents:   pkg.Price.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Currency:      p.opts.Currency,
		CustomerEmail: hrEmail,
		SuccessURL:    p.opts.SiteDomain + "/dashboard/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     p.opts.SiteDomain + "/dashboard/payment-cancelled",
		Metadata: map[string]string{
			"packageId": pkg.ID,
			"hrEmail":   hrEmail,
		},
	}

	gctx, cancel := context.WithTimeout(ctx, p.opts.GatewayTimeout)
	defer cancel()

	session, err := p.gateway.CreateCheckoutSession(gctx, req)
	if err != nil {
		p.logger.Error("checkout session failed", zap.String("package_id", packageID), zap.Error(err))
		return "", ErrUpstreamUnavailable
	}

	p.logger.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("package_id", pkg.ID),
		zap.String("hr_email", hrEmail))
	return session.URL, nil
}

// errAlreadyRecorded aborts the transaction when the payment row already exists
var errAlreadyRecorded = errors.New("payment already recorded")

// Finalize verifies a checkout session and, the first time it is seen paid,
// records the payment and upgrades the HR account to the package's limit.
func (p *PaymentReconciler) Finalize(ctx context.Context, sessionID, hrEmail string) (*Receipt, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, newError(KindValidation, ErrMsgSessionIDRequired)
	}

	gctx, cancel := context.WithTimeout(ctx, p.opts.GatewayTimeout)
	session, err := p.gateway.RetrieveSession(gctx, sessionID)
	cancel()
	if errors.Is(err, gateway.ErrSessionNotFound) {
		return nil, newError(KindNotFound, ErrMsgSessionNotFound)
	}
	if err != nil {
		p.logger.Error("checkout session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, ErrUpstreamUnavailable
	}

	if !session.Paid {
		return &Receipt{Status: ReceiptPending}, nil
	}

	if owner := sessionOwner(session); owner != "" && owner != hrEmail {
		return nil, newError(KindForbidden, ErrMsgSessionOwner)
	}

	packageID := session.Metadata["packageId"]
	if packageID == "" {
		return nil, newError(KindValidation, "checkout session has no package")
	}

	transactionID := session.PaymentIntentID
	if transactionID == "" {
		transactionID = session.ID
	}

	if existing, err := p.repo.GetPaymentByTransactionID(ctx, transactionID); err != nil {
		return nil, fmt.Errorf("error checking payment: %w", err)
	} else if existing != nil {
		return alreadyProcessed(existing), nil
	}

	var payment *models.Payment
	err = p.repo.WithinTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.GetPaymentByTransactionID(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("error checking payment: %w", err)
		}
		if existing != nil {
			return errAlreadyRecorded
		}

		pkg, err := tx.GetPackage(ctx, packageID)
		if err != nil {
			return fmt.Errorf("error loading package: %w", err)
		}
		if pkg == nil {
			return newError(KindNotFound, ErrMsgPackageNotFound)
		}

		user, err := tx.LockUser(ctx, hrEmail)
		if err != nil {
			return fmt.Errorf("error locking user: %w", err)
		}
		if user == nil {
			return newError(KindNotFound, ErrMsgUserNotFound)
		}

		trackingID, err := p.trackingID()
		if err != nil {
			return err
		}

		payment = &models.Payment{
			HREmail:       hrEmail,
			PackageID:     pkg.ID,
			PackageName:   pkg.Name,
			EmployeeLimit: pkg.EmployeeLimit,
			Amount:        pkg.Price,
			TrackingID:    trackingID,
			TransactionID: transactionID,
			Status:        string(ReceiptPaid),
			PaymentDate:   p.now().UTC(),
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return errAlreadyRecorded
			}
			return fmt.Errorf("error recording payment: %w", err)
		}

		if _, err := tx.UpdateUserEntitlement(ctx, hrEmail, pkg.EmployeeLimit, pkg.Name); err != nil {
			return fmt.Errorf("error upgrading package: %w", err)
		}
		return nil
	})

	if errors.Is(err, errAlreadyRecorded) {
		existing, lookupErr := p.repo.GetPaymentByTransactionID(ctx, transactionID)
		if lookupErr != nil {
			return nil, fmt.Errorf("error loading payment: %w", lookupErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("payment %s reported duplicate but not found", transactionID)
		}
		return alreadyProcessed(existing), nil
	}
	if err != nil {
		logFailure(p.logger, "payment reconciliation failed", err,
			zap.String("session_id", sessionID),
			zap.String("hr_email", hrEmail))
		return nil, err
	}

	p.logger.Info("payment recorded",
		zap.String("tracking_id", payment.TrackingID),
		zap.String("transaction_id", transactionID),
		zap.String("hr_email", hrEmail),
		zap.String("package", payment.PackageName),
		zap.Int("package_limit", payment.EmployeeLimit))

	return &Receipt{
		Status:        ReceiptPaid,
		TrackingID:    payment.TrackingID,
		TransactionID: transactionID,
		PackageName:   payment.PackageName,
		PackageLimit:  payment.EmployeeLimit,
	}, nil
}

func sessionOwner(s *gateway.Session) string {
	if owner := s.Metadata["hrEmail"]; owner != "" {
		return owner
	}
	return s.CustomerEmail
}

func alreadyProcessed(p *models.Payment) *Receipt {
	return &Receipt{
		Status:           ReceiptPaid,
		TrackingID:       p.TrackingID,
		TransactionID:    p.TransactionID,
		PackageName:      p.PackageName,
		PackageLimit:     p.EmployeeLimit,
		AlreadyProcessed: true,
	}
}
