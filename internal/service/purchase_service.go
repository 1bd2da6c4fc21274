package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateRequestInput struct {
	Items       []LineInput `json:"items"`
	ShippingFee int64       `json:"shipping_fee" binding:"min=0"`
	Message     string      `json:"message"`
	// FromCart takes the lines from the requester's cart and empties it in
	// the same transaction. Items is ignored when set.
	FromCart bool `json:"from_cart"`
}

type DecisionInput struct {
	Action  string `json:"-"` // APPROVE or REJECT
	Message string `json:"message"`
}

type PurchaseNowInput struct {
	Items       []LineInput `json:"items" binding:"required,min=1,dive"`
	ShippingFee int64       `json:"shipping_fee" binding:"min=0"`
	Message     string      `json:"message"`
}

type ListRequestsInput struct {
	Status string
	Mine   bool
	Page   int
	Limit  int
}

type PurchaseItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

type PurchaseRequestResponse struct {
	ID              string                 `json:"id"`
	CompanyID       string                 `json:"company_id"`
	RequesterID     string                 `json:"requester_id"`
	RequesterName   string                 `json:"requester_name"`
	Status          string                 `json:"status"`
	BudgetYear      int                    `json:"budget_year"`
	BudgetMonth     int                    `json:"budget_month"`
	Items           []PurchaseItemResponse `json:"items"`
	ShippingFee     int64                  `json:"shipping_fee"`
	TotalPrice      int64                  `json:"total_price"`
	RequestMessage  string                 `json:"request_message"`
	DecisionMessage string                 `json:"decision_message,omitempty"`
	RejectionReason string                 `json:"rejection_reason,omitempty"`
	DecidedBy       *string                `json:"decided_by"`
	DeciderName     string                 `json:"decider_name,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
}

// PurchaseEvent is published after a purchase request change has committed.
type PurchaseEvent struct {
	Type        string    `json:"type"`
	RequestID   string    `json:"request_id"`
	CompanyID   string    `json:"company_id"`
	RequesterID string    `json:"requester_id"`
	Status      string    `json:"status"`
	TotalPrice  int64     `json:"total_price"`
	At          time.Time `json:"at"`
}

// Purchase event types
const (
	EventRequestCreated   = "purchase_request.created"
	EventRequestApproved  = "purchase_request.approved"
	EventRequestRejected  = "purchase_request.rejected"
	EventRequestCancelled = "purchase_request.cancelled"
	EventPurchasedNow     = "purchase_request.purchased"
)

// EventPublisher receives committed purchase events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event PurchaseEvent)
}

// --- Interface ---

// PurchaseService coordinates the purchase request lifecycle. Each command
// runs in one transaction covering the budget check, the request write and
// the audit row.
type PurchaseService interface {
	CreateRequest(ctx context.Context, actor model.Principal, in CreateRequestInput) (PurchaseRequestResponse, error)
	Decide(ctx context.Context, actor model.Principal, id string, in DecisionInput) (PurchaseRequestResponse, error)
	Cancel(ctx context.Context, actor model.Principal, id string) (PurchaseRequestResponse, error)
	PurchaseNow(ctx context.Context, actor model.Principal, in PurchaseNowInput) (PurchaseRequestResponse, error)
	GetRequest(ctx context.Context, actor model.Principal, id string) (PurchaseRequestResponse, error)
	ListRequests(ctx context.Context, actor model.Principal, in ListRequestsInput) ([]PurchaseRequestResponse, int64, error)
}

type purchaseService struct {
	repo      repository.PurchaseRequestRepository
	cartRepo  repository.CartRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	ledger    LedgerService
	catalog   CatalogService
	events    EventPublisher
	now       Clock
}

func NewPurchaseService(
	repo repository.PurchaseRequestRepository,
	cartRepo repository.CartRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	ledger LedgerService,
	catalog CatalogService,
	events EventPublisher,
	now Clock,
) PurchaseService {
	if now == nil {
		now = SystemClock
	}
	return &purchaseService{
		repo:      repo,
		cartRepo:  cartRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		ledger:    ledger,
		catalog:   catalog,
		events:    events,
		now:       now,
	}
}

// --- Implementation ---

func (s *purchaseService) CreateRequest(ctx context.Context, actor model.Principal, in CreateRequestInput) (resp PurchaseRequestResponse, err error) {
	ctx, span := startSpan(ctx, "purchase.CreateRequest")
	span.SetAttributes(attribute.String("company_id", actor.CompanyID.String()))
	defer func() { endSpan(span, err) }()

	if in.ShippingFee < 0 {
		return PurchaseRequestResponse{}, fmt.Errorf("%w: shipping fee must not be negative", model.ErrInvalidInput)
	}
	if !in.FromCart && len(in.Items) == 0 {
		return PurchaseRequestResponse{}, fmt.Errorf("%w: at least one item is required", model.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Message) == "" {
		return PurchaseRequestResponse{}, fmt.Errorf("%w: request message is required", model.ErrInvalidInput)
	}

	now := s.now()
	period := model.PeriodOf(now)

	var req *model.PurchaseRequest
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		lines := in.Items
		if in.FromCart {
			cart, err := s.cartRepo.ListByUser(txCtx, actor.UserID)
			if err != nil {
				return fmt.Errorf("failed to load cart: %w", err)
			}
			if len(cart) == 0 {
				return fmt.Errorf("%w: cart is empty", model.ErrInvalidInput)
			}
			lines = cartLines(cart)
		}

		items, err := s.catalog.Snapshot(txCtx, lines)
		if err != nil {
			return err
		}
		req, err = model.NewPurchaseRequest(actor.CompanyID, actor.UserID, items, in.ShippingFee, in.Message, period, now)
		if err != nil {
			return err
		}

		if err := s.reserve(txCtx, actor.CompanyID, period, req.TotalPrice); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create purchase request: %w", err)
		}
		if in.FromCart {
			if err := s.cartRepo.DeleteByUser(txCtx, actor.UserID); err != nil {
				return fmt.Errorf("failed to clear cart: %w", err)
			}
		}

		return writeAudit(txCtx, s.auditRepo, auditEntry{
			actorID:    actor.UserID,
			companyID:  actor.CompanyID,
			action:     model.ActionCreatePurchaseRequest,
			entityID:   req.ID.String(),
			entityName: fmt.Sprintf("%d-%02d", period.Year, period.Month),
			details: map[string]interface{}{
				"total_price":  req.TotalPrice,
				"shipping_fee": req.ShippingFee,
				"items":        len(req.Items),
				"from_cart":    in.FromCart,
			},
			at: now,
		})
	})
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	return s.committed(ctx, EventRequestCreated, req)
}

func (s *purchaseService) Decide(ctx context.Context, actor model.Principal, id string, in DecisionInput) (resp PurchaseRequestResponse, err error) {
	ctx, span := startSpan(ctx, "purchase.Decide")
	span.SetAttributes(attribute.String("request_id", id), attribute.String("action", in.Action))
	defer func() { endSpan(span, err) }()

	if !actor.IsAdmin() {
		return PurchaseRequestResponse{}, fmt.Errorf("%w: only admins can decide purchase requests", model.ErrForbidden)
	}
	requestID, err := parseRequestID(id)
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	var req *model.PurchaseRequest
	var event, action string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.lockRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.CompanyID != actor.CompanyID {
			return fmt.Errorf("purchase request %s: %w", requestID, ErrNotFound)
		}

		now := s.now()
		switch strings.ToUpper(in.Action) {
		case model.EventApprove:
			err = req.Approve(actor.UserID, in.Message, now)
			event, action = EventRequestApproved, model.ActionApprovePurchase
		case model.EventReject:
			err = req.Reject(actor.UserID, in.Message, now)
			event, action = EventRequestRejected, model.ActionRejectPurchase
		default:
			err = fmt.Errorf("%w: unknown decision %q", model.ErrInvalidInput, in.Action)
		}
		if err != nil {
			return err
		}

		if err := s.repo.UpdateDecision(txCtx, req); err != nil {
			return fmt.Errorf("failed to update purchase request: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, auditEntry{
			actorID:    actor.UserID,
			companyID:  req.CompanyID,
			action:     action,
			entityID:   req.ID.String(),
			entityName: req.Status,
			details: map[string]interface{}{
				"total_price": req.TotalPrice,
				"message":     strings.TrimSpace(in.Message),
			},
			at: now,
		})
	})
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	return s.committed(ctx, event, req)
}

func (s *purchaseService) Cancel(ctx context.Context, actor model.Principal, id string) (resp PurchaseRequestResponse, err error) {
	ctx, span := startSpan(ctx, "purchase.Cancel")
	span.SetAttributes(attribute.String("request_id", id))
	defer func() { endSpan(span, err) }()

	requestID, err := parseRequestID(id)
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	var req *model.PurchaseRequest
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.lockRequest(txCtx, requestID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := req.Cancel(actor.UserID, now); err != nil {
			return err
		}
		if err := s.repo.UpdateDecision(txCtx, req); err != nil {
			return fmt.Errorf("failed to update purchase request: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, auditEntry{
			actorID:    actor.UserID,
			companyID:  req.CompanyID,
			action:     model.ActionCancelPurchase,
			entityID:   req.ID.String(),
			entityName: req.Status,
			details:    map[string]interface{}{"total_price": req.TotalPrice},
			at:         now,
		})
	})
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	return s.committed(ctx, EventRequestCancelled, req)
}

// PurchaseNow creates and approves a request in one step, under the same
// budget guard as CreateRequest.
func (s *purchaseService) PurchaseNow(ctx context.Context, actor model.Principal, in PurchaseNowInput) (resp PurchaseRequestResponse, err error) {
	ctx, span := startSpan(ctx, "purchase.PurchaseNow")
	span.SetAttributes(attribute.String("company_id", actor.CompanyID.String()))
	defer func() { endSpan(span, err) }()

	if !actor.IsAdmin() {
		return PurchaseRequestResponse{}, fmt.Errorf("%w: only admins can purchase directly", model.ErrForbidden)
	}
	if in.ShippingFee < 0 {
		return PurchaseRequestResponse{}, fmt.Errorf("%w: shipping fee must not be negative", model.ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return PurchaseRequestResponse{}, fmt.Errorf("%w: at least one item is required", model.ErrInvalidInput)
	}

	now := s.now()
	period := model.PeriodOf(now)

	var req *model.PurchaseRequest
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		items, err := s.catalog.Snapshot(txCtx, in.Items)
		if err != nil {
			return err
		}
		req, err = model.NewDirectPurchase(actor.CompanyID, actor.UserID, items, in.ShippingFee, in.Message, period, now)
		if err != nil {
			return err
		}

		if err := s.reserve(txCtx, actor.CompanyID, period, req.TotalPrice); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create purchase: %w", err)
		}

		return writeAudit(txCtx, s.auditRepo, auditEntry{
			actorID:    actor.UserID,
			companyID:  actor.CompanyID,
			action:     model.ActionPurchaseNow,
			entityID:   req.ID.String(),
			entityName: fmt.Sprintf("%d-%02d", period.Year, period.Month),
			details: map[string]interface{}{
				"total_price":  req.TotalPrice,
				"shipping_fee": req.ShippingFee,
				"items":        len(req.Items),
			},
			at: now,
		})
	})
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	return s.committed(ctx, EventPurchasedNow, req)
}

func (s *purchaseService) GetRequest(ctx context.Context, actor model.Principal, id string) (PurchaseRequestResponse, error) {
	requestID, err := parseRequestID(id)
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	req, err := s.repo.FindByIDWithRelations(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PurchaseRequestResponse{}, fmt.Errorf("purchase request %s: %w", requestID, ErrNotFound)
		}
		return PurchaseRequestResponse{}, fmt.Errorf("failed to load purchase request: %w", err)
	}
	if req.CompanyID != actor.CompanyID {
		return PurchaseRequestResponse{}, fmt.Errorf("purchase request %s: %w", requestID, ErrNotFound)
	}
	if !actor.IsAdmin() && req.RequesterID != actor.UserID {
		return PurchaseRequestResponse{}, fmt.Errorf("%w: not your purchase request", model.ErrForbidden)
	}

	return toPurchaseResponse(*req), nil
}

// ListRequests pages through the company's requests for admins and through
// the caller's own requests for everyone else.
func (s *purchaseService) ListRequests(ctx context.Context, actor model.Principal, in ListRequestsInput) ([]PurchaseRequestResponse, int64, error) {
	if in.Page <= 0 {
		in.Page = 1
	}
	if in.Limit <= 0 {
		in.Limit = 20
	}

	filter := repository.PurchaseRequestFilter{
		CompanyID: actor.CompanyID,
		Status:    strings.ToUpper(in.Status),
		Page:      in.Page,
		Limit:     in.Limit,
	}
	if !actor.IsAdmin() || in.Mine {
		filter.RequesterID = actor.UserID
	}

	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase requests: %w", err)
	}

	res := make([]PurchaseRequestResponse, 0, len(requests))
	for _, r := range requests {
		res = append(res, toPurchaseResponse(r))
	}
	return res, total, nil
}

// reserve turns a denied reservation into *BudgetExceededError, which rolls
// back the surrounding transaction.
func (s *purchaseService) reserve(ctx context.Context, companyID uuid.UUID, period model.Period, amount int64) error {
	res, err := s.ledger.Reserve(ctx, companyID, period, amount)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return res.Exceeded()
	}
	return nil
}

func (s *purchaseService) lockRequest(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	req, err := s.repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("purchase request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load purchase request: %w", err)
	}
	return req, nil
}

// committed reloads the request with its relations, logs the change and
// publishes the event. It runs after the transaction has committed.
func (s *purchaseService) committed(ctx context.Context, eventType string, req *model.PurchaseRequest) (PurchaseRequestResponse, error) {
	slog.InfoContext(ctx, "purchase request committed",
		"event", eventType,
		"request_id", req.ID,
		"company_id", req.CompanyID,
		"status", req.Status,
		"total_price", req.TotalPrice,
	)

	metrics.event(ctx, eventType)
	if s.events != nil {
		s.events.Publish(ctx, PurchaseEvent{
			Type:        eventType,
			RequestID:   req.ID.String(),
			CompanyID:   req.CompanyID.String(),
			RequesterID: req.RequesterID.String(),
			Status:      req.Status,
			TotalPrice:  req.TotalPrice,
			At:          req.UpdatedAt,
		})
	}

	// The transition is already durable; a failed reload must not surface as
	// an error the caller would retry.
	loaded, err := s.repo.FindByIDWithRelations(ctx, req.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to reload purchase request",
			"request_id", req.ID,
			"error", err,
		)
		return toPurchaseResponse(*req), nil
	}
	return toPurchaseResponse(*loaded), nil
}

// --- Helpers ---

func parseRequestID(id string) (uuid.UUID, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid purchase request id", model.ErrInvalidInput)
	}
	return requestID, nil
}

func cartLines(cart []model.CartItem) []LineInput {
	lines := make([]LineInput, 0, len(cart))
	for _, c := range cart {
		lines = append(lines, LineInput{ProductID: c.ProductID.String(), Quantity: c.Quantity})
	}
	return lines
}

func toPurchaseResponse(r model.PurchaseRequest) PurchaseRequestResponse {
	resp := PurchaseRequestResponse{
		ID:              r.ID.String(),
		CompanyID:       r.CompanyID.String(),
		RequesterID:     r.RequesterID.String(),
		Status:          r.Status,
		BudgetYear:      r.BudgetYear,
		BudgetMonth:     r.BudgetMonth,
		Items:           make([]PurchaseItemResponse, 0, len(r.Items)),
		ShippingFee:     r.ShippingFee,
		TotalPrice:      r.TotalPrice,
		RequestMessage:  r.RequestMessage,
		DecisionMessage: r.DecisionMessage,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, item := range r.Items {
		resp.Items = append(resp.Items, PurchaseItemResponse{
			ProductID:   item.ProductID.String(),
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal(),
		})
	}
	if r.Requester != nil {
		resp.RequesterName = r.Requester.Username
	}
	if r.DecidedBy != nil {
		s := r.DecidedBy.String()
		resp.DecidedBy = &s
	}
	if r.Decider != nil {
		resp.DeciderName = r.Decider.Username
	}
	return resp
}
