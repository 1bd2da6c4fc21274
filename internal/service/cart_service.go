package service

import (
	"context"
	"errors"
	"fmt"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type AddCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type CartItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
}

// CartResponse is priced at read time. The prices become binding only when
// the cart is submitted as a purchase request.
type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total int64              `json:"total"`
}

// --- Interface ---

type CartService interface {
	GetCart(ctx context.Context, actor model.Principal) (CartResponse, error)
	AddItem(ctx context.Context, actor model.Principal, req AddCartItemRequest) (CartResponse, error)
	UpdateItem(ctx context.Context, actor model.Principal, itemID string, req UpdateCartItemRequest) (CartResponse, error)
	RemoveItem(ctx context.Context, actor model.Principal, itemID string) (CartResponse, error)
	Clear(ctx context.Context, actor model.Principal) error
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	txManager   repository.TransactionManager
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, txManager repository.TransactionManager) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		txManager:   txManager,
	}
}

// --- Implementation ---

func (s *cartService) GetCart(ctx context.Context, actor model.Principal) (CartResponse, error) {
	items, err := s.cartRepo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return CartResponse{}, fmt.Errorf("failed to load cart: %w", err)
	}

	res := CartResponse{Items: make([]CartItemResponse, 0, len(items))}
	for _, item := range items {
		// Soft-deleted products are not preloaded.
		if item.Product == nil {
			continue
		}
		line := CartItemResponse{
			ID:          item.ID.String(),
			ProductID:   item.ProductID.String(),
			ProductName: item.Product.Name,
			UnitPrice:   item.Product.Price,
			Quantity:    item.Quantity,
			Subtotal:    item.Product.Price * int64(item.Quantity),
		}
		res.Items = append(res.Items, line)
		res.Total += line.Subtotal
	}
	return res, nil
}

// AddItem puts a product in the cart, or increases its quantity when the
// product is already there.
func (s *cartService) AddItem(ctx context.Context, actor model.Principal, req AddCartItemRequest) (CartResponse, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return CartResponse{}, fmt.Errorf("%w: invalid product_id", model.ErrInvalidInput)
	}
	if req.Quantity < 1 {
		return CartResponse{}, fmt.Errorf("%w: quantity must be at least 1", model.ErrInvalidInput)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.productRepo.FindByID(txCtx, productID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
			}
			return fmt.Errorf("failed to load product: %w", err)
		}

		item, err := s.cartRepo.FindByUserAndProduct(txCtx, actor.UserID, productID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = &model.CartItem{UserID: actor.UserID, ProductID: productID}
		case err != nil:
			return fmt.Errorf("failed to load cart item: %w", err)
		}
		item.Quantity += req.Quantity
		return s.cartRepo.Save(txCtx, item)
	})
	if err != nil {
		return CartResponse{}, err
	}
	return s.GetCart(ctx, actor)
}

func (s *cartService) UpdateItem(ctx context.Context, actor model.Principal, itemID string, req UpdateCartItemRequest) (CartResponse, error) {
	if req.Quantity < 1 {
		return CartResponse{}, fmt.Errorf("%w: quantity must be at least 1", model.ErrInvalidInput)
	}
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := s.ownedItem(txCtx, actor, itemID)
		if err != nil {
			return err
		}
		item.Quantity = req.Quantity
		return s.cartRepo.Save(txCtx, item)
	})
	if err != nil {
		return CartResponse{}, err
	}
	return s.GetCart(ctx, actor)
}

func (s *cartService) RemoveItem(ctx context.Context, actor model.Principal, itemID string) (CartResponse, error) {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := s.ownedItem(txCtx, actor, itemID)
		if err != nil {
			return err
		}
		return s.cartRepo.Delete(txCtx, item.ID)
	})
	if err != nil {
		return CartResponse{}, err
	}
	return s.GetCart(ctx, actor)
}

func (s *cartService) Clear(ctx context.Context, actor model.Principal) error {
	if err := s.cartRepo.DeleteByUser(ctx, actor.UserID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// --- Helpers ---

// ownedItem loads a cart line. Lines of other users are reported as missing.
func (s *cartService) ownedItem(ctx context.Context, actor model.Principal, itemID string) (*model.CartItem, error) {
	id, err := uuid.Parse(itemID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cart item id", model.ErrInvalidInput)
	}
	item, err := s.cartRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cart item %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load cart item: %w", err)
	}
	if item.UserID != actor.UserID {
		return nil, fmt.Errorf("cart item %s: %w", id, ErrNotFound)
	}
	return item, nil
}
