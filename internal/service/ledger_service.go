package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// --- DTOs ---

type EffectiveBudget struct {
	Amount int64  `json:"amount"`
	Source string `json:"source"` // MONTHLY, CRITERIA or NONE
}

// Reservation is the answer of the ledger to "can this spend be committed?".
// A denied reservation is a normal outcome, not an error.
type Reservation struct {
	Allowed   bool
	Period    model.Period
	Effective EffectiveBudget
	Committed int64
	Requested int64
}

// Exceeded returns the typed business error for a denied reservation.
func (r Reservation) Exceeded() *BudgetExceededError {
	return &BudgetExceededError{
		Year:      r.Period.Year,
		Month:     r.Period.Month,
		Effective: r.Effective.Amount,
		Committed: r.Committed,
		Requested: r.Requested,
	}
}

type UpsertBudgetRequest struct {
	Year   int   `json:"year" binding:"required"`
	Month  int   `json:"month" binding:"required,min=1,max=12"`
	Amount int64 `json:"amount" binding:"min=0"`
}

type UpsertCriteriaRequest struct {
	Amount int64 `json:"amount" binding:"min=0"`
}

type BudgetResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Amount    int64  `json:"amount"`
	UpdatedAt string `json:"updated_at"`
}

type CriteriaResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Amount    int64  `json:"amount"`
	UpdatedAt string `json:"updated_at"`
}

type BudgetSummary struct {
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Effective   int64  `json:"effective"`
	Source      string `json:"source"`
	Committed   int64  `json:"committed"`
	Remaining   int64  `json:"remaining"`
	Utilization string `json:"utilization"` // percent of the effective budget, 2 decimals
}

// --- Interface ---

// LedgerService owns budget allocation and committed spend per company and
// month. Committed spend is always recomputed from purchase requests.
type LedgerService interface {
	EffectiveBudget(ctx context.Context, companyID uuid.UUID, period model.Period) (EffectiveBudget, error)
	CommittedSpend(ctx context.Context, companyID uuid.UUID, period model.Period) (int64, error)
	Reserve(ctx context.Context, companyID uuid.UUID, period model.Period, amount int64) (Reservation, error)
	UpsertBudget(ctx context.Context, actor model.Principal, req UpsertBudgetRequest) (BudgetResponse, bool, error)
	UpsertCriteria(ctx context.Context, actor model.Principal, req UpsertCriteriaRequest) (CriteriaResponse, bool, error)
	Summary(ctx context.Context, companyID uuid.UUID, period model.Period) (BudgetSummary, error)
	ListBudgets(ctx context.Context, companyID uuid.UUID, year int) ([]BudgetResponse, error)
}

type ledgerService struct {
	companyRepo  repository.CompanyRepository
	budgetRepo   repository.BudgetRepository
	purchaseRepo repository.PurchaseRequestRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	now          Clock
}

func NewLedgerService(
	companyRepo repository.CompanyRepository,
	budgetRepo repository.BudgetRepository,
	purchaseRepo repository.PurchaseRequestRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	now Clock,
) LedgerService {
	if now == nil {
		now = SystemClock
	}
	return &ledgerService{
		companyRepo:  companyRepo,
		budgetRepo:   budgetRepo,
		purchaseRepo: purchaseRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		now:          now,
	}
}

// --- Implementation ---

func (s *ledgerService) EffectiveBudget(ctx context.Context, companyID uuid.UUID, period model.Period) (EffectiveBudget, error) {
	budget, err := s.budgetRepo.FindBudget(ctx, companyID, period.Year, period.Month)
	switch {
	case err == nil:
		return EffectiveBudget{Amount: budget.Amount, Source: model.BudgetSourceMonthly}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return EffectiveBudget{}, fmt.Errorf("failed to load budget: %w", err)
	}

	criteria, err := s.budgetRepo.FindCriteria(ctx, companyID)
	switch {
	case err == nil:
		return EffectiveBudget{Amount: criteria.Amount, Source: model.BudgetSourceCriteria}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return EffectiveBudget{}, fmt.Errorf("failed to load criteria: %w", err)
	}

	// No allocation at all means nothing may be spent.
	return EffectiveBudget{Amount: 0, Source: model.BudgetSourceNone}, nil
}

func (s *ledgerService) CommittedSpend(ctx context.Context, companyID uuid.UUID, period model.Period) (int64, error) {
	sum, err := s.purchaseRepo.SumCommitted(ctx, companyID, period.Year, period.Month)
	if err != nil {
		return 0, fmt.Errorf("failed to compute committed spend: %w", err)
	}
	return sum, nil
}

// Reserve must be called inside RunInTx. It locks the company row, then checks
// committed + amount against the effective budget. On Allowed the caller
// inserts the request in the same transaction; the lock is held until commit.
func (s *ledgerService) Reserve(ctx context.Context, companyID uuid.UUID, period model.Period, amount int64) (res Reservation, err error) {
	ctx, span := startSpan(ctx, "ledger.Reserve")
	span.SetAttributes(
		attribute.String("company_id", companyID.String()),
		attribute.Int("year", period.Year),
		attribute.Int("month", period.Month),
		attribute.Int64("amount", amount),
	)
	defer func() { endSpan(span, err) }()

	if amount < 0 {
		return Reservation{}, fmt.Errorf("%w: amount must not be negative", model.ErrInvalidInput)
	}
	if !period.Valid() {
		return Reservation{}, fmt.Errorf("%w: invalid budget period", model.ErrInvalidInput)
	}

	if err := s.lockCompany(ctx, companyID); err != nil {
		return Reservation{}, err
	}

	effective, err := s.EffectiveBudget(ctx, companyID, period)
	if err != nil {
		return Reservation{}, err
	}
	committed, err := s.CommittedSpend(ctx, companyID, period)
	if err != nil {
		return Reservation{}, err
	}

	res = Reservation{
		Allowed:   committed <= effective.Amount && amount <= effective.Amount-committed,
		Period:    period,
		Effective: effective,
		Committed: committed,
		Requested: amount,
	}
	span.SetAttributes(attribute.Bool("allowed", res.Allowed))
	if !res.Allowed {
		metrics.denial(ctx, period)
		slog.WarnContext(ctx, "budget reservation denied",
			"company_id", companyID,
			"period", fmt.Sprintf("%d-%02d", period.Year, period.Month),
			"effective", effective.Amount,
			"committed", committed,
			"requested", amount,
		)
	}
	return res, nil
}

func (s *ledgerService) lockCompany(ctx context.Context, companyID uuid.UUID) error {
	if _, err := s.companyRepo.LockForUpdate(ctx, companyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("company %s: %w", companyID, ErrNotFound)
		}
		return fmt.Errorf("failed to lock company budget: %w", err)
	}
	return nil
}

func (s *ledgerService) UpsertBudget(ctx context.Context, actor model.Principal, req UpsertBudgetRequest) (BudgetResponse, bool, error) {
	period := model.Period{Year: req.Year, Month: req.Month}
	if !period.Valid() {
		return BudgetResponse{}, false, fmt.Errorf("%w: month must be between 1 and 12 and year positive", model.ErrInvalidInput)
	}
	if req.Amount < 0 {
		return BudgetResponse{}, false, fmt.Errorf("%w: amount must not be negative", model.ErrInvalidInput)
	}
	if req.Amount > model.MaxAmount {
		return BudgetResponse{}, false, fmt.Errorf("%w: amount must be at most %d", model.ErrInvalidInput, model.MaxAmount)
	}

	var budget *model.Budget
	created := false
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.lockCompany(txCtx, actor.CompanyID); err != nil {
			return err
		}

		existing, err := s.budgetRepo.FindBudget(txCtx, actor.CompanyID, period.Year, period.Month)
		switch {
		case err == nil:
			budget = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			budget = &model.Budget{CompanyID: actor.CompanyID, Year: period.Year, Month: period.Month}
			created = true
		default:
			return fmt.Errorf("failed to load budget: %w", err)
		}

		previous := budget.Amount
		budget.Amount = req.Amount
		if err := s.budgetRepo.SaveBudget(txCtx, budget); err != nil {
			return fmt.Errorf("failed to save budget: %w", err)
		}

		return writeAudit(txCtx, s.auditRepo, auditEntry{
			actorID:    actor.UserID,
			companyID:  actor.CompanyID,
			action:     model.ActionUpsertBudget,
			entityID:   budget.ID.String(),
			entityName: fmt.Sprintf("%d-%02d", period.Year, period.Month),
			details: map[string]interface{}{
				"previous_amount": previous,
				"amount":          req.Amount,
				"created":         created,
			},
			at: s.now(),
		})
	})
	if err != nil {
		return BudgetResponse{}, false, err
	}

	return toBudgetResponse(*budget), created, nil
}

func (s *ledgerService) UpsertCriteria(ctx context.Context, actor model.Principal, req UpsertCriteriaRequest) (CriteriaResponse, bool, error) {
	if req.Amount < 0 {
		return CriteriaResponse{}, false, fmt.Errorf("%w: amount must not be negative", model.ErrInvalidInput)
	}
	if req.Amount > model.MaxAmount {
		return CriteriaResponse{}, false, fmt.Errorf("%w: amount must be at most %d", model.ErrInvalidInput, model.MaxAmount)
	}

	var criteria *model.Criteria
	created := false
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.lockCompany(txCtx, actor.CompanyID); err != nil {
			return err
		}

		existing, err := s.budgetRepo.FindCriteria(txCtx, actor.CompanyID)
		switch {
		case err == nil:
			criteria = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			criteria = &model.Criteria{CompanyID: actor.CompanyID}
			created = true
		default:
			return fmt.Errorf("failed to load criteria: %w", err)
		}

		previous := criteria.Amount
		criteria.Amount = req.Amount
		if err := s.budgetRepo.SaveCriteria(txCtx, criteria); err != nil {
			return fmt.Errorf("failed to save criteria: %w", err)
		}

		return writeAudit(txCtx, s.auditRepo, auditEntry{
			actorID:    actor.UserID,
			companyID:  actor.CompanyID,
			action:     model.ActionUpsertCriteria,
			entityID:   criteria.ID.String(),
			entityName: "default monthly budget",
			details: map[string]interface{}{
				"previous_amount": previous,
				"amount":          req.Amount,
				"created":         created,
			},
			at: s.now(),
		})
	})
	if err != nil {
		return CriteriaResponse{}, false, err
	}

	return CriteriaResponse{
		ID:        criteria.ID.String(),
		CompanyID: criteria.CompanyID.String(),
		Amount:    criteria.Amount,
		UpdatedAt: criteria.UpdatedAt.Format(time.RFC3339),
	}, created, nil
}

func (s *ledgerService) Summary(ctx context.Context, companyID uuid.UUID, period model.Period) (BudgetSummary, error) {
	if !period.Valid() {
		return BudgetSummary{}, fmt.Errorf("%w: invalid budget period", model.ErrInvalidInput)
	}

	var summary BudgetSummary
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		effective, err := s.EffectiveBudget(txCtx, companyID, period)
		if err != nil {
			return err
		}
		committed, err := s.CommittedSpend(txCtx, companyID, period)
		if err != nil {
			return err
		}

		remaining := effective.Amount - committed
		if remaining < 0 {
			remaining = 0
		}
		utilization := decimal.Zero
		if effective.Amount > 0 {
			utilization = decimal.NewFromInt(committed).
				Mul(decimal.NewFromInt(100)).
				Div(decimal.NewFromInt(effective.Amount)).
				Round(2)
		}

		summary = BudgetSummary{
			Year:        period.Year,
			Month:       period.Month,
			Effective:   effective.Amount,
			Source:      effective.Source,
			Committed:   committed,
			Remaining:   remaining,
			Utilization: utilization.StringFixed(2),
		}
		return nil
	})
	return summary, err
}

func (s *ledgerService) ListBudgets(ctx context.Context, companyID uuid.UUID, year int) ([]BudgetResponse, error) {
	budgets, err := s.budgetRepo.ListBudgets(ctx, companyID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	res := make([]BudgetResponse, 0, len(budgets))
	for _, b := range budgets {
		res = append(res, toBudgetResponse(b))
	}
	return res, nil
}

// --- Helpers ---

func toBudgetResponse(b model.Budget) BudgetResponse {
	return BudgetResponse{
		ID:        b.ID.String(),
		CompanyID: b.CompanyID.String(),
		Year:      b.Year,
		Month:     b.Month,
		Amount:    b.Amount,
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
}
