package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/repository"
	"go.uber.org/zap"
)

// StatusUpdate is an HR decision on a pending request
type StatusUpdate struct {
	Status models.RequestStatus
	Note   string
}

// ApprovalResult carries everything an approval wrote
type ApprovalResult struct {
	Request     *models.Request
	Outcome     AffiliationOutcome
	Affiliation *models.EmployeeAffiliation
	Assignment  *models.AssignedAsset
}

// ApprovalService drives requests through pending -> approved|rejected -> returned
type ApprovalService struct {
	repo         repository.Repository
	stock        *StockLedger
	affiliations *AffiliationManager
	logger       *zap.Logger
	now          func() time.Time
}

func NewApprovalService(repo repository.Repository, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{
		repo:         repo,
		stock:        &StockLedger{},
		affiliations: NewAffiliationManager(&EntitlementResolver{}),
		logger:       logger,
		now:          time.Now,
	}
}

// UpdateStatus approves or rejects a pending request on behalf of its HR
func (s *ApprovalService) UpdateStatus(ctx context.Context, caller, requestID string, upd StatusUpdate) (*ApprovalResult, error) {
	var (
		result *ApprovalResult
		err    error
	)

	switch upd.Status {
	case models.RequestApproved:
		result, err = s.approve(ctx, caller, requestID, upd.Note)
	case models.RequestRejected:
		result, err = s.reject(ctx, caller, requestID, upd.Note)
	default:
		return nil, newErrorf(KindValidation, "%s: %q", ErrMsgInvalidStatus, upd.Status)
	}

	if err != nil {
		logFailure(s.logger, "request status update failed", err,
			zap.String("request_id", requestID),
			zap.String("caller", caller),
			zap.String("target_status", string(upd.Status)))
		return nil, err
	}

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("status", string(result.Request.RequestStatus)),
	}
	if result.Affiliation != nil {
		fields = append(fields, zap.String("affiliation", result.Outcome.String()))
	}
	s.logger.Info("request processed", fields...)
	return result, nil
}

// loadPending locks the request and checks the caller is its HR
func (s *ApprovalService) loadPending(ctx context.Context, tx repository.Tx, caller, requestID string) (*models.Request, error) {
	req, err := tx.GetRequestForUpdate(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("error loading request: %w", err)
	}
	if req == nil {
		return nil, newError(KindNotFound, ErrMsgRequestNotFound)
	}
	if req.HREmail != caller {
		return nil, newError(KindForbidden, ErrMsgNotRequestHR)
	}
	if req.RequestStatus != models.RequestPending {
		return nil, newErrorf(KindInvalidTransition, "%s (status is %s)", ErrMsgNotPending, req.RequestStatus)
	}
	return req, nil
}

func (s *ApprovalService) approve(ctx context.Context, caller, requestID, note string) (*ApprovalResult, error) {
	var result *ApprovalResult

	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		req, err := s.loadPending(ctx, tx, caller, requestID)
		if err != nil {
			return err
		}

		hr, err := tx.GetUserByEmail(ctx, req.HREmail)
		if err != nil {
			return fmt.Errorf("error loading hr user: %w", err)
		}
		requester, err := tx.GetUserByEmail(ctx, req.RequesterEmail)
		if err != nil {
			return fmt.Errorf("error loading requester: %w", err)
		}

		party := AssignmentParty{
			EmployeeEmail: req.RequesterEmail,
			EmployeeName:  req.RequesterName,
			HREmail:       req.HREmail,
			CompanyName:   req.CompanyName,
		}
		if requester != nil {
			party.EmployeeName = requester.Name
			party.EmployeeLogo = requester.PhotoURL
		}
		if hr != nil {
			party.CompanyLogo = hr.CompanyLogo
		}

		plan, err := s.affiliations.Resolve(ctx, tx, party)
		if err != nil {
			return err
		}

		// Stock goes first so a missing unit never leaves an affiliation behind
		if err := s.stock.ReserveUnit(ctx, tx, req.AssetID); err != nil {
			return err
		}

		affiliation, err := s.affiliations.Apply(ctx, tx, plan)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		assignment := &models.AssignedAsset{
			AssetID:        req.AssetID,
			AssetName:      req.AssetName,
			AssetImage:     req.AssetImage,
			AssetType:      req.AssetType,
			RequestID:      req.ID,
			EmployeeEmail:  req.RequesterEmail,
			EmployeeName:   party.EmployeeName,
			HREmail:        req.HREmail,
			CompanyName:    req.CompanyName,
			AssignmentDate: now,
			Status:         models.AssignmentAssigned,
		}
		if err := tx.CreateAssignedAsset(ctx, assignment); err != nil {
			return fmt.Errorf("error recording assignment: %w", err)
		}

		transition := models.RequestTransition{
			From:        models.RequestPending,
			To:          models.RequestApproved,
			ProcessedBy: caller,
			ProcessedAt: &now,
			Note:        note,
		}
		if err := s.transition(ctx, tx, req, transition); err != nil {
			return err
		}

		result = &ApprovalResult{
			Request:     req,
			Outcome:     plan.Outcome,
			Affiliation: affiliation,
			Assignment:  assignment,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ApprovalService) reject(ctx context.Context, caller, requestID, note string) (*ApprovalResult, error) {
	var result *ApprovalResult

	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		req, err := s.loadPending(ctx, tx, caller, requestID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		transition := models.RequestTransition{
			From:        models.RequestPending,
			To:          models.RequestRejected,
			ProcessedBy: caller,
			ProcessedAt: &now,
			Note:        note,
		}
		if err := s.transition(ctx, tx, req, transition); err != nil {
			return err
		}

		result = &ApprovalResult{Request: req}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Return marks an approved request as returned by its requester. Stock and
// affiliations are left as they are.
func (s *ApprovalService) Return(ctx context.Context, caller, requestID string) (*models.Request, error) {
	var out *models.Request

	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		req, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return fmt.Errorf("error loading request: %w", err)
		}
		if req == nil {
			return newError(KindNotFound, ErrMsgRequestNotFound)
		}
		if req.RequesterEmail != caller {
			return newError(KindForbidden, ErrMsgNotRequester)
		}
		if req.RequestStatus != models.RequestApproved {
			return newErrorf(KindInvalidTransition, "%s (status is %s)", ErrMsgNotApproved, req.RequestStatus)
		}

		now := s.now().UTC()
		transition := models.RequestTransition{
			From:       models.RequestApproved,
			To:         models.RequestReturned,
			ReturnDate: &now,
		}
		if err := s.transition(ctx, tx, req, transition); err != nil {
			return err
		}

		out = req
		return nil
	})
	if err != nil {
		logFailure(s.logger, "request return failed", err,
			zap.String("request_id", requestID),
			zap.String("caller", caller))
		return nil, err
	}

	s.logger.Info("request returned", zap.String("request_id", requestID))
	return out, nil
}

// transition applies t to the stored request and mirrors it onto req
func (s *ApprovalService) transition(ctx context.Context, tx repository.Tx, req *models.Request, t models.RequestTransition) error {
	applied, err := tx.TransitionRequest(ctx, req.ID, t)
	if err != nil {
		return fmt.Errorf("error updating request status: %w", err)
	}
	if !applied {
		return newErrorf(KindInvalidTransition, "request is no longer %s", t.From)
	}

	req.RequestStatus = t.To
	if t.ProcessedBy != "" {
		req.ProcessedBy = t.ProcessedBy
	}
	if t.ProcessedAt != nil {
		req.ProcessedAt = t.ProcessedAt
	}
	if t.ReturnDate != nil {
		req.ReturnDate = t.ReturnDate
	}
	if t.Note != "" {
		req.Note = t.Note
	}
	return nil
}
