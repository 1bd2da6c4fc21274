package repository

import (
	"context"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BudgetRepository interface {
	FindBudget(ctx context.Context, companyID uuid.UUID, year, month int) (*model.Budget, error)
	ListBudgets(ctx context.Context, companyID uuid.UUID, year int) ([]model.Budget, error)
	SaveBudget(ctx context.Context, budget *model.Budget) error
	FindCriteria(ctx context.Context, companyID uuid.UUID) (*model.Criteria, error)
	SaveCriteria(ctx context.Context, criteria *model.Criteria) error
}

type budgetRepository struct {
	db *gorm.DB
}

func NewBudgetRepository(db *gorm.DB) BudgetRepository {
	return &budgetRepository{db: db}
}

func (r *budgetRepository) FindBudget(ctx context.Context, companyID uuid.UUID, year, month int) (*model.Budget, error) {
	var budget model.Budget
	if err := GetDB(ctx, r.db).
		Where("company_id = ? AND year = ? AND month = ?", companyID, year, month).
		First(&budget).Error; err != nil {
		return nil, err
	}
	return &budget, nil
}

func (r *budgetRepository) ListBudgets(ctx context.Context, companyID uuid.UUID, year int) ([]model.Budget, error) {
	var budgets []model.Budget
	query := GetDB(ctx, r.db).Where("company_id = ?", companyID)
	if year > 0 {
		query = query.Where("year = ?", year)
	}
	if err := query.Order("year asc, month asc").Find(&budgets).Error; err != nil {
		return nil, err
	}
	return budgets, nil
}

// SaveBudget inserts a new row when budget.ID is zero, otherwise updates it.
func (r *budgetRepository) SaveBudget(ctx context.Context, budget *model.Budget) error {
	if budget.ID == uuid.Nil {
		return GetDB(ctx, r.db).Create(budget).Error
	}
	return GetDB(ctx, r.db).Save(budget).Error
}

func (r *budgetRepository) FindCriteria(ctx context.Context, companyID uuid.UUID) (*model.Criteria, error) {
	var criteria model.Criteria
	if err := GetDB(ctx, r.db).Where("company_id = ?", companyID).First(&criteria).Error; err != nil {
		return nil, err
	}
	return &criteria, nil
}

func (r *budgetRepository) SaveCriteria(ctx context.Context, criteria *model.Criteria) error {
	if criteria.ID == uuid.Nil {
		return GetDB(ctx, r.db).Create(criteria).Error
	}
	return GetDB(ctx, r.db).Save(criteria).Error
}
