package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateProductRequest struct {
	SKU         string `json:"sku" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Price       int64  `json:"price" binding:"min=0"`
}

type UpdateProductRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price" binding:"omitempty,min=0"`
}

type ProductResponse struct {
	ID          string `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	UpdatedAt   string `json:"updated_at"`
}

// LineInput is a requested product and quantity, before pricing.
type LineInput struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// --- Interface ---

// CatalogService exposes the product catalog. Snapshot is what the purchase
// orchestrator uses to freeze current prices into request lines.
type CatalogService interface {
	ListProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error)
	GetProduct(ctx context.Context, id string) (ProductResponse, error)
	CreateProduct(ctx context.Context, actor model.Principal, req CreateProductRequest) (ProductResponse, error)
	UpdateProduct(ctx context.Context, actor model.Principal, id string, req UpdateProductRequest) (ProductResponse, error)
	DeleteProduct(ctx context.Context, actor model.Principal, id string) error
	Snapshot(ctx context.Context, lines []LineInput) ([]model.PurchaseRequestItem, error)
}

type catalogService struct {
	productRepo repository.ProductRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	now         Clock
}

func NewCatalogService(
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	now Clock,
) CatalogService {
	if now == nil {
		now = SystemClock
	}
	return &catalogService{
		productRepo: productRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		now:         now,
	}
}

// --- Implementation ---

func (s *catalogService) ListProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error) {
	products, total, err := s.productRepo.List(ctx, page, limit, strings.TrimSpace(search))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	res := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		res = append(res, toProductResponse(p))
	}
	return res, total, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id string) (ProductResponse, error) {
	product, err := s.findProduct(ctx, id)
	if err != nil {
		return ProductResponse{}, err
	}
	return toProductResponse(*product), nil
}

func (s *catalogService) CreateProduct(ctx context.Context, actor model.Principal, req CreateProductRequest) (ProductResponse, error) {
	sku := strings.TrimSpace(req.SKU)
	name := strings.TrimSpace(req.Name)
	if sku == "" || name == "" {
		return ProductResponse{}, fmt.Errorf("%w: sku and name are required", model.ErrInvalidInput)
	}
	if req.Price < 0 {
		return ProductResponse{}, fmt.Errorf("%w: price must not be negative", model.ErrInvalidInput)
	}

	product := model.Product{
		SKU:         sku,
		Name:        name,
		Description: req.Description,
		Price:       req.Price,
	}
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.productRepo.FindBySKU(txCtx, sku); err == nil {
			return fmt.Errorf("product sku %q: %w", sku, ErrConflict)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check sku: %w", err)
		}
		if err := s.productRepo.Create(txCtx, &product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, auditEntry{
			actorID:    actor.UserID,
			companyID:  actor.CompanyID,
			action:     model.ActionCreateProduct,
			entityID:   product.ID.String(),
			entityName: product.Name,
			details:    map[string]interface{}{"sku": product.SKU, "price": product.Price},
			at:         s.now(),
		})
	})
	if err != nil {
		return ProductResponse{}, err
	}
	return toProductResponse(product), nil
}

// UpdateProduct changes catalog data. Purchase requests already created keep
// the price they captured.
func (s *catalogService) UpdateProduct(ctx context.Context, actor model.Principal, id string, req UpdateProductRequest) (ProductResponse, error) {
	var product *model.Product
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		product, err = s.findProduct(txCtx, id)
		if err != nil {
			return err
		}

		oldPrice := product.Price
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return fmt.Errorf("%w: name must not be empty", model.ErrInvalidInput)
			}
			product.Name = name
		}
		if req.Description != nil {
			product.Description = *req.Description
		}
		if req.Price != nil {
			if *req.Price < 0 {
				return fmt.Errorf("%w: price must not be negative", model.ErrInvalidInput)
			}
			product.Price = *req.Price
		}

		if err := s.productRepo.Update(txCtx, product); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, auditEntry{
			actorID:    actor.UserID,
			companyID:  actor.CompanyID,
			action:     model.ActionUpdateProduct,
			entityID:   product.ID.String(),
			entityName: product.Name,
			details:    map[string]interface{}{"old_price": oldPrice, "new_price": product.Price},
			at:         s.now(),
		})
	})
	if err != nil {
		return ProductResponse{}, err
	}
	return toProductResponse(*product), nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, actor model.Principal, id string) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.findProduct(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.productRepo.Delete(txCtx, product.ID); err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, auditEntry{
			actorID:    actor.UserID,
			companyID:  actor.CompanyID,
			action:     model.ActionDeleteProduct,
			entityID:   product.ID.String(),
			entityName: product.Name,
			details:    map[string]interface{}{"sku": product.SKU},
			at:         s.now(),
		})
	})
}

// Snapshot resolves every line against the live catalog and returns request
// items carrying the current name and unit price. Any unknown or deleted
// product fails the whole snapshot with ErrProductNotFound.
func (s *catalogService) Snapshot(ctx context.Context, lines []LineInput) ([]model.PurchaseRequestItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", model.ErrInvalidInput)
	}

	ids := make([]uuid.UUID, 0, len(lines))
	parsed := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		id, err := uuid.Parse(line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: invalid product_id", model.ErrInvalidInput, i+1)
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %d: quantity must be at least 1", model.ErrInvalidInput, i+1)
		}
		parsed[i] = id
		ids = append(ids, id)
	}

	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[uuid.UUID]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]model.PurchaseRequestItem, 0, len(lines))
	for i, line := range lines {
		product, ok := byID[parsed[i]]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, parsed[i])
		}
		items = append(items, model.PurchaseRequestItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
		})
	}
	return items, nil
}

// --- Helpers ---

func (s *catalogService) findProduct(ctx context.Context, id string) (*model.Product, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid product id", model.ErrInvalidInput)
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return product, nil
}

func toProductResponse(p model.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID.String(),
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}
