package model

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseRequest status constants
const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)

// MaxMessageLength bounds request messages, decision messages and rejection reasons.
const MaxMessageLength = 255

// MaxAmount caps request totals and budget amounts so that committed sums
// stay far from int64 overflow.
const MaxAmount int64 = 1_000_000_000_000_000

// SpendCommittingStatuses are the statuses whose total counts against the budget.
var SpendCommittingStatuses = []string{StatusPending, StatusApproved}

// DecidedStatuses are the statuses reported in decision exports.
var DecidedStatuses = []string{StatusApproved, StatusRejected}

// PurchaseRequest is a requester's order against the company's monthly budget.
// Items, ShippingFee and TotalPrice are fixed at creation.
type PurchaseRequest struct {
	ID              uuid.UUID             `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID       uuid.UUID             `gorm:"type:uuid;not null;index:idx_pr_ledger,priority:1" json:"company_id"`
	Company         *Company              `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	RequesterID     uuid.UUID             `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester       *User                 `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	BudgetYear      int                   `gorm:"not null;index:idx_pr_ledger,priority:2" json:"budget_year"`
	BudgetMonth     int                   `gorm:"not null;index:idx_pr_ledger,priority:3" json:"budget_month"`
	Status          string                `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_pr_ledger,priority:4" json:"status"`
	Items           []PurchaseRequestItem `gorm:"foreignKey:PurchaseRequestID" json:"items"`
	ShippingFee     int64                 `gorm:"type:bigint;not null;default:0" json:"shipping_fee"`
	TotalPrice      int64                 `gorm:"type:bigint;not null" json:"total_price"`
	RequestMessage  string                `gorm:"type:varchar(255)" json:"request_message"`
	DecisionMessage string                `gorm:"type:text" json:"decision_message"`
	RejectionReason string                `gorm:"type:text" json:"rejection_reason"`
	DecidedBy       *uuid.UUID            `gorm:"type:uuid" json:"decided_by"`
	Decider         *User                 `gorm:"foreignKey:DecidedBy" json:"decider,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `gorm:"index;autoUpdateTime:false" json:"updated_at"` // decision timestamp once terminal
}

// PurchaseRequestItem is a line of a purchase request with the catalog price
// captured when the request was created.
type PurchaseRequestItem struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseRequestID uuid.UUID `gorm:"type:uuid;not null;index" json:"purchase_request_id"`
	Position          int       `gorm:"not null" json:"position"`
	ProductID         uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	ProductName       string    `gorm:"type:varchar(255);not null" json:"product_name"`
	Quantity          int       `gorm:"type:int;not null" json:"quantity"`
	UnitPrice         int64     `gorm:"type:bigint;not null" json:"unit_price"`
}

func (r *PurchaseRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (i *PurchaseRequestItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Subtotal is the line amount.
func (i PurchaseRequestItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// NewPurchaseRequest validates the draft and builds a PENDING request charged
// to period. The caller is responsible for the budget reservation.
func NewPurchaseRequest(companyID, requesterID uuid.UUID, items []PurchaseRequestItem, shippingFee int64, message string, period Period, at time.Time) (*PurchaseRequest, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: request message is required", ErrInvalidInput)
	}
	if err := checkMessage("request message", message); err != nil {
		return nil, err
	}
	return newRequest(companyID, requesterID, items, shippingFee, message, period, at)
}

// NewDirectPurchase builds a request that skips PENDING: it is created APPROVED
// with the admin recorded as decider. Budget rules are the same as for
// NewPurchaseRequest.
func NewDirectPurchase(companyID, adminID uuid.UUID, items []PurchaseRequestItem, shippingFee int64, message string, period Period, at time.Time) (*PurchaseRequest, error) {
	message = strings.TrimSpace(message)
	if err := checkMessage("message", message); err != nil {
		return nil, err
	}
	req, err := newRequest(companyID, adminID, items, shippingFee, message, period, at)
	if err != nil {
		return nil, err
	}
	req.Status = StatusApproved
	req.DecidedBy = &adminID
	req.DecisionMessage = message
	return req, nil
}

func newRequest(companyID, requesterID uuid.UUID, items []PurchaseRequestItem, shippingFee int64, message string, period Period, at time.Time) (*PurchaseRequest, error) {
	if companyID == uuid.Nil || requesterID == uuid.Nil {
		return nil, fmt.Errorf("%w: company and requester are required", ErrInvalidInput)
	}
	if !period.Valid() {
		return nil, fmt.Errorf("%w: invalid budget period %d-%02d", ErrInvalidInput, period.Year, period.Month)
	}
	total, err := TotalOf(items, shippingFee)
	if err != nil {
		return nil, err
	}

	lines := make([]PurchaseRequestItem, len(items))
	for i, item := range items {
		item.Position = i + 1
		lines[i] = item
	}

	return &PurchaseRequest{
		CompanyID:      companyID,
		RequesterID:    requesterID,
		BudgetYear:     period.Year,
		BudgetMonth:    period.Month,
		Status:         StatusPending,
		Items:          lines,
		ShippingFee:    shippingFee,
		TotalPrice:     total,
		RequestMessage: message,
		CreatedAt:      at,
		UpdatedAt:      at,
	}, nil
}

// TotalOf computes sum(unit price x quantity) + shipping fee and validates the
// item list on the way.
func TotalOf(items []PurchaseRequestItem, shippingFee int64) (int64, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}
	if shippingFee < 0 {
		return 0, fmt.Errorf("%w: shipping fee must not be negative", ErrInvalidInput)
	}

	total := shippingFee
	for i, item := range items {
		if item.Quantity < 1 {
			return 0, fmt.Errorf("%w: item %d: quantity must be at least 1", ErrInvalidInput, i+1)
		}
		if item.UnitPrice < 0 {
			return 0, fmt.Errorf("%w: item %d: unit price must not be negative", ErrInvalidInput, i+1)
		}
		if item.UnitPrice > 0 && int64(item.Quantity) > math.MaxInt64/item.UnitPrice {
			return 0, fmt.Errorf("%w: item %d: amount overflows", ErrInvalidInput, i+1)
		}
		sub := item.Subtotal()
		if total > math.MaxInt64-sub {
			return 0, fmt.Errorf("%w: total price overflows", ErrInvalidInput)
		}
		total += sub
	}
	if total > MaxAmount {
		return 0, fmt.Errorf("%w: total price must be at most %d", ErrInvalidInput, MaxAmount)
	}
	return total, nil
}

func checkMessage(field, s string) error {
	if utf8.RuneCountInString(s) > MaxMessageLength {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, field, MaxMessageLength)
	}
	return nil
}
