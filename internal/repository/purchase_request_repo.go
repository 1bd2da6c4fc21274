package repository

import (
	"context"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseRequestFilter narrows List. Zero values mean "any".
type PurchaseRequestFilter struct {
	CompanyID   uuid.UUID
	RequesterID uuid.UUID
	Status      string
	Page        int
	Limit       int
}

// DecisionFilter selects decided requests for reporting.
type DecisionFilter struct {
	CompanyID uuid.UUID
	From      time.Time
	To        time.Time
	Statuses  []string
	Role      string
	// Limit caps FindDecisions; zero means unlimited.
	Limit int
}

type PurchaseRequestRepository interface {
	Create(ctx context.Context, req *model.PurchaseRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	UpdateDecision(ctx context.Context, req *model.PurchaseRequest) error
	List(ctx context.Context, filter PurchaseRequestFilter) ([]model.PurchaseRequest, int64, error)
	SumCommitted(ctx context.Context, companyID uuid.UUID, year, month int) (int64, error)
	CountDecisions(ctx context.Context, filter DecisionFilter) (int64, error)
	FindDecisions(ctx context.Context, filter DecisionFilter) ([]model.PurchaseRequest, error)
}

type purchaseRequestRepository struct {
	db *gorm.DB
}

func NewPurchaseRequestRepository(db *gorm.DB) PurchaseRequestRepository {
	return &purchaseRequestRepository{db: db}
}

// Create inserts the request together with its items.
func (r *purchaseRequestRepository) Create(ctx context.Context, req *model.PurchaseRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *purchaseRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	if err := GetDB(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *purchaseRequestRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	if err := GetDB(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Preload("Requester").
		Preload("Decider").
		Preload("Company").
		First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindByIDForUpdate locks the request row so concurrent decisions on the same
// request are applied one after the other.
func (r *purchaseRequestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	if !InTx(ctx) {
		return nil, ErrNoTransaction
	}
	var req model.PurchaseRequest
	db := GetDB(ctx, r.db)
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	if err := db.Where("purchase_request_id = ?", id).Order("position asc").Find(&req.Items).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateDecision persists the status and decision columns only. Items and
// totals are never rewritten after creation.
func (r *purchaseRequestRepository) UpdateDecision(ctx context.Context, req *model.PurchaseRequest) error {
	return GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]interface{}{
			"status":           req.Status,
			"decision_message": req.DecisionMessage,
			"rejection_reason": req.RejectionReason,
			"decided_by":       req.DecidedBy,
			"updated_at":       req.UpdatedAt,
		}).Error
}

func (r *purchaseRequestRepository) List(ctx context.Context, filter PurchaseRequestFilter) ([]model.PurchaseRequest, int64, error) {
	var requests []model.PurchaseRequest
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if filter.CompanyID != uuid.Nil {
			q = q.Where("company_id = ?", filter.CompanyID)
		}
		if filter.RequesterID != uuid.Nil {
			q = q.Where("requester_id = ?", filter.RequesterID)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	if err := scope(db.Model(&model.PurchaseRequest{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := scope(db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Preload("Requester").
		Preload("Decider").
		Order("created_at desc").
		Offset(offset).Limit(filter.Limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// SumCommitted adds up total_price of the spend-committing requests of one
// company and month. Served by idx_pr_ledger.
func (r *purchaseRequestRepository) SumCommitted(ctx context.Context, companyID uuid.UUID, year, month int) (int64, error) {
	var sum int64
	err := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).
		Select("COALESCE(SUM(total_price), 0)").
		Where("company_id = ? AND budget_year = ? AND budget_month = ? AND status IN ?",
			companyID, year, month, model.SpendCommittingStatuses).
		Scan(&sum).Error
	return sum, err
}

func (r *purchaseRequestRepository) decisionScope(ctx context.Context, filter DecisionFilter) *gorm.DB {
	q := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).
		Where("purchase_requests.status IN ?", filter.Statuses).
		Where("purchase_requests.updated_at >= ? AND purchase_requests.updated_at <= ?", filter.From, filter.To)
	if filter.CompanyID != uuid.Nil {
		q = q.Where("purchase_requests.company_id = ?", filter.CompanyID)
	}
	if filter.Role != "" {
		q = q.Joins("JOIN users ON users.id = purchase_requests.requester_id").
			Where("users.role = ?", filter.Role)
	}
	return q
}

func (r *purchaseRequestRepository) CountDecisions(ctx context.Context, filter DecisionFilter) (int64, error) {
	var total int64
	err := r.decisionScope(ctx, filter).Count(&total).Error
	return total, err
}

func (r *purchaseRequestRepository) FindDecisions(ctx context.Context, filter DecisionFilter) ([]model.PurchaseRequest, error) {
	q := r.decisionScope(ctx, filter).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Preload("Requester").
		Preload("Decider").
		Preload("Company").
		Order("purchase_requests.updated_at asc")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var requests []model.PurchaseRequest
	if err := q.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}
