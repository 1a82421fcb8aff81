package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"labloans/internal/authz"
	"labloans/internal/database"
	"labloans/internal/logger"
	"labloans/internal/metrics"
	"labloans/internal/models"
	"labloans/internal/repositories"
)

// loanTransitions is the authoritative lifecycle table. OVERDUE is only
// ever set by a reviewer; nothing computes it.
var loanTransitions = map[models.LoanStatus][]models.LoanStatus{
	models.LoanStatusPending:  {models.LoanStatusApproved, models.LoanStatusRejected},
	models.LoanStatusApproved: {models.LoanStatusPickedUp},
	models.LoanStatusPickedUp: {models.LoanStatusReturned, models.LoanStatusOverdue},
	models.LoanStatusOverdue:  {models.LoanStatusReturned},
}

// CanTransition reports whether a loan in status from may move to to.
func CanTransition(from, to models.LoanStatus) bool {
	for _, allowed := range loanTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status models.LoanStatus) bool {
	return len(loanTransitions[status]) == 0
}

type LoanItemInput struct {
	MaterialID uuid.UUID
	Quantity   int
}

type CreateLoanInput struct {
	Items      []LoanItemInput
	PickupDate *time.Time
	ReturnDate *time.Time
	Notes      *string
}

type LoanService interface {
	CreateLoan(ctx context.Context, caller *authz.Caller, in CreateLoanInput) (*models.Loan, error)
	TransitionLoan(ctx context.Context, caller *authz.Caller, loanID uuid.UUID, target models.LoanStatus, adminNotes *string) (*models.Loan, error)
	GetLoan(ctx context.Context, caller *authz.Caller, loanID uuid.UUID) (*models.Loan, error)
	ListLoans(ctx context.Context, caller *authz.Caller, status *models.LoanStatus) ([]models.Loan, error)
	ListOverdueLoans(ctx context.Context, caller *authz.Caller) ([]models.Loan, error)
}

type loanService struct {
	db        *gorm.DB
	loans     repositories.LoanRepository
	materials repositories.MaterialRepository
	ledger    *InventoryLedger
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewLoanService(
	db *gorm.DB,
	loans repositories.LoanRepository,
	materials repositories.MaterialRepository,
	ledger *InventoryLedger,
	log *logger.Logger,
	m *metrics.Metrics,
) LoanService {
	return &loanService{
		db:        db,
		loans:     loans,
		materials: materials,
		ledger:    ledger,
		log:       log.With("service", "LoanService"),
		metrics:   m,
		now:       time.Now,
	}
}

// ─── Request builder ──────────────────────────────────────────────────────────

// CreateLoan validates a student's request and stores the loan and its items
// as one unit. Stock is checked but not taken: units leave the available
// pool only when the loan is picked up.
func (s *loanService) CreateLoan(ctx context.Context, caller *authz.Caller, in CreateLoanInput) (*models.Loan, error) {
	if err := authz.Can(caller, authz.ActionLoanCreate); err != nil {
		return nil, err
	}

	items, err := normalizeItems(in.Items)
	if err != nil {
		return nil, err
	}
	if in.PickupDate == nil || in.ReturnDate == nil {
		return nil, ErrDatesRequired
	}
	pickup := truncateToDay(*in.PickupDate)
	ret := truncateToDay(*in.ReturnDate)
	if !ret.After(pickup) {
		return nil, ErrInvalidDateRange
	}

	db := s.db.WithContext(ctx)

	// Read-time check; repeated under row locks below.
	for _, it := range items {
		m, err := s.materials.GetByID(db, it.MaterialID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUnknownMaterial
			}
			return nil, err
		}
		if err := checkAvailable(m, it.Quantity); err != nil {
			s.log.Warn("CreateLoan: insufficient stock at read time", "student_id", caller.ID, "material_id", m.ID)
			return nil, err
		}
	}

	var created *models.Loan
	err = db.Transaction(func(tx *gorm.DB) error {
		ids := make([]uuid.UUID, len(items))
		for i, it := range items {
			ids[i] = it.MaterialID
		}
		locked, err := s.materials.GetByIDsForUpdate(tx, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*models.Material, len(locked))
		for i := range locked {
			byID[locked[i].ID] = &locked[i]
		}
		for _, it := range items {
			m, ok := byID[it.MaterialID]
			if !ok {
				return ErrUnknownMaterial
			}
			if err := checkAvailable(m, it.Quantity); err != nil {
				return err
			}
		}

		loan := &models.Loan{
			StudentID:          caller.ID,
			Status:             models.LoanStatusPending,
			RequestDate:        s.now().UTC(),
			ExpectedPickupDate: datatypes.Date(pickup),
			ExpectedReturnDate: datatypes.Date(ret),
			Notes:              nonEmpty(in.Notes),
			Program:            caller.Program,
		}
		if err := s.loans.Create(tx, loan); err != nil {
			s.log.Error("CreateLoan: failed to create loan record", "student_id", caller.ID, "error", err)
			return err
		}

		rows := make([]models.LoanItem, len(items))
		for i, it := range items {
			rows[i] = models.LoanItem{
				LoanID:     loan.ID,
				MaterialID: it.MaterialID,
				Quantity:   it.Quantity,
				Position:   i,
			}
		}
		if err := s.loans.CreateItems(tx, rows); err != nil {
			s.log.Error("CreateLoan: failed to create loan items", "loan_id", loan.ID, "error", err)
			return err
		}

		reloaded, err := s.loans.GetByID(tx, loan.ID)
		if err != nil {
			return err
		}
		created = reloaded
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
		case database.IsConflict(err):
			s.log.Warn("CreateLoan: retryable conflict", "student_id", caller.ID, "error", err)
		default:
			s.log.Error("CreateLoan: transaction failed", "student_id", caller.ID, "error", err)
		}
		return nil, err
	}

	s.metrics.LoanCreated()
	s.log.Info("CreateLoan: loan created", "loan_id", created.ID, "student_id", caller.ID, "items", len(created.Items))
	return created, nil
}

// normalizeItems validates quantities and folds repeated materials into a
// single line, keeping first-seen order.
func normalizeItems(in []LoanItemInput) ([]LoanItemInput, error) {
	if len(in) == 0 {
		return nil, ErrNoItems
	}
	index := make(map[uuid.UUID]int, len(in))
	out := make([]LoanItemInput, 0, len(in))
	for _, it := range in {
		if it.MaterialID == uuid.Nil {
			return nil, ErrUnknownMaterial
		}
		if it.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		if i, ok := index[it.MaterialID]; ok {
			if out[i].Quantity > math.MaxInt-it.Quantity {
				return nil, ErrInvalidQuantity
			}
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.MaterialID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

func checkAvailable(m *models.Material, qty int) error {
	if qty > m.AvailableQuantity {
		return wrapInsufficient(m, qty)
	}
	return nil
}

// ─── State machine ────────────────────────────────────────────────────────────

// TransitionLoan moves a loan to target and applies the side effects of the
// move in the same transaction:
//
//   - APPROVED / REJECTED record the reviewer in approved_by.
//   - PICKED_UP stamps actual_pickup_date and reserves every item's units.
//   - RETURNED stamps actual_return_date and releases them again.
//
// Any failure rolls back the status write and all inventory changes.
func (s *loanService) TransitionLoan(ctx context.Context, caller *authz.Caller, loanID uuid.UUID, target models.LoanStatus, adminNotes *string) (*models.Loan, error) {
	target, ok := models.ParseLoanStatus(string(target))
	if !ok {
		return nil, ErrInvalidStatus
	}

	var updated *models.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loans.GetByIDForUpdate(tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}

		if err := authz.Authorize(caller, authz.ActionLoanTransition, authz.Scope{Labs: itemLabs(loan.Items)}); err != nil {
			s.log.Warn("TransitionLoan: denied", "loan_id", loanID, "caller_id", callerID(caller), "reason", err.Error())
			return err
		}

		if !CanTransition(loan.Status, target) {
			return &InvalidTransitionError{From: loan.Status, To: target}
		}

		now := s.now().UTC()
		fields := map[string]interface{}{"status": target}
		switch target {
		case models.LoanStatusApproved, models.LoanStatusRejected:
			fields["approved_by"] = caller.ID
		case models.LoanStatusPickedUp:
			fields["actual_pickup_date"] = now
			if err := s.ledger.reserveItems(tx, loan.Items); err != nil {
				return err
			}
		case models.LoanStatusReturned:
			fields["actual_return_date"] = now
			if err := s.ledger.releaseItems(tx, loan.Items); err != nil {
				return err
			}
		}
		if notes := nonEmpty(adminNotes); notes != nil {
			fields["admin_notes"] = *notes
		}

		if err := s.loans.UpdateFields(tx, loan.ID, fields); err != nil {
			s.log.Error("TransitionLoan: failed to update loan", "loan_id", loanID, "error", err)
			return err
		}

		reloaded, err := s.loans.GetByID(tx, loan.ID)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		s.metrics.LoanTransition(string(target), transitionOutcome(err))
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
			s.log.Warn("TransitionLoan: rejected", "loan_id", loanID, "target", target, "error", err)
		} else if database.IsConflict(err) {
			s.log.Warn("TransitionLoan: retryable conflict", "loan_id", loanID, "target", target, "error", err)
		} else if !isAuthzError(err) {
			s.log.Error("TransitionLoan: transaction failed", "loan_id", loanID, "target", target, "error", err)
		}
		return nil, err
	}

	s.metrics.LoanTransition(string(target), "ok")
	s.log.Info("TransitionLoan: status changed", "loan_id", loanID, "status", target, "actor_id", caller.ID)
	return updated, nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

func (s *loanService) GetLoan(ctx context.Context, caller *authz.Caller, loanID uuid.UUID) (*models.Loan, error) {
	if caller == nil || caller.ID == uuid.Nil {
		return nil, authz.ErrUnauthenticated
	}
	loan, err := s.loans.GetByID(s.db.WithContext(ctx), loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	if loan.StudentID != caller.ID {
		if err := authz.Can(caller, authz.ActionLoanReadAll); err != nil {
			return nil, err
		}
	}
	return loan, nil
}

// ListLoans returns every loan to reviewers and only their own loans to
// students.
func (s *loanService) ListLoans(ctx context.Context, caller *authz.Caller, status *models.LoanStatus) ([]models.Loan, error) {
	filter := repositories.LoanFilter{Status: status}
	if err := authz.Can(caller, authz.ActionLoanReadAll); err != nil {
		if authz.Can(caller, authz.ActionLoanCreate) != nil {
			return nil, err
		}
		filter.StudentID = &caller.ID
	}
	return s.loans.List(s.db.WithContext(ctx), filter)
}

// ListOverdueLoans lists picked-up loans past their expected return date.
// It reports only; statuses are left untouched.
func (s *loanService) ListOverdueLoans(ctx context.Context, caller *authz.Caller) ([]models.Loan, error) {
	if err := authz.Can(caller, authz.ActionLoanReadAll); err != nil {
		return nil, err
	}
	return s.loans.ListOverdue(s.db.WithContext(ctx), truncateToDay(s.now()))
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func itemLabs(items []models.LoanItem) []*models.Lab {
	labs := make([]*models.Lab, 0, len(items))
	for _, it := range items {
		if it.Material == nil {
			labs = append(labs, nil)
			continue
		}
		labs = append(labs, it.Material.Lab)
	}
	return labs
}

func sortedByMaterial(items []models.LoanItem) []models.LoanItem {
	out := make([]models.LoanItem, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool {
		return out[i].MaterialID.String() < out[j].MaterialID.String()
	})
	return out
}

func transitionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case isAuthzError(err):
		return "forbidden"
	default:
		return "error"
	}
}

func isAuthzError(err error) bool {
	return errors.Is(err, authz.ErrUnauthenticated) ||
		errors.Is(err, authz.ErrForbiddenRole) ||
		errors.Is(err, authz.ErrForbiddenScope)
}

func callerID(c *authz.Caller) string {
	if c == nil {
		return ""
	}
	return c.ID.String()
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
