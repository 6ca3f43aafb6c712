package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/medstore/internal/domain"
	"github.com/joao-fontenele/medstore/internal/inventory"
	"github.com/joao-fontenele/medstore/internal/orders"
)

var (
	ErrItemNotInCart = errors.New("item not in cart")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrInvalidInput  = errors.New("invalid input")
)

type Item struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Product   *domain.Product `json:"product,omitempty"`
}

type Cart struct {
	Items []Item          `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type ItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CheckoutInput struct {
	PrescriptionImage *string                 `json:"prescriptionImage"`
	ShippingAddress   *domain.ShippingAddress `json:"shippingAddress"`
	Notes             *string                 `json:"notes"`
}

type Store interface {
	Items(ctx context.Context, userID string) ([]Item, error)
	Add(ctx context.Context, userID, productID string, quantity int) error
	SetQuantity(ctx context.Context, userID, productID string, quantity int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

type OrderCreator interface {
	Create(ctx context.Context, in orders.CreateInput) (*domain.Order, error)
}

type Service struct {
	store  Store
	orders OrderCreator
	logger *slog.Logger
}

func NewService(store Store, orders OrderCreator, logger *slog.Logger) *Service {
	return &Service{store: store, orders: orders, logger: logger}
}

func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	items, err := s.store.Items(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := lo.Reduce(items, func(sum decimal.Decimal, item Item, _ int) decimal.Decimal {
		return sum.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}, decimal.Zero)

	return &Cart{Items: items, Total: total}, nil
}

func (s *Service) Add(ctx context.Context, userID string, in ItemInput) (*Cart, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	if err := s.store.Add(ctx, userID, in.ProductID, in.Quantity); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// Update sets the quantity of a line. Zero removes it.
func (s *Service) Update(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	switch {
	case quantity < 0:
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	case quantity > domain.MaxItemQuantity:
		return nil, fmt.Errorf("%w: quantity must be at most %d", ErrInvalidInput, domain.MaxItemQuantity)
	case quantity == 0:
		if err := s.store.Remove(ctx, userID, productID); err != nil {
			return nil, err
		}
	default:
		if err := s.store.SetQuantity(ctx, userID, productID, quantity); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, userID)
}

func (s *Service) Remove(ctx context.Context, userID, productID string) (*Cart, error) {
	if err := s.store.Remove(ctx, userID, productID); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// Sync merges a guest cart into the stored one. Quantities of lines already
// present are added together. Unknown products are skipped.
func (s *Service) Sync(ctx context.Context, userID string, guest []ItemInput) (*Cart, error) {
	for _, in := range guest {
		if err := validate(in); err != nil {
			return nil, err
		}
	}

	merged := lo.MapValues(lo.GroupBy(guest, func(in ItemInput) string { return in.ProductID }),
		func(lines []ItemInput, _ string) int {
			return lo.SumBy(lines, func(in ItemInput) int { return in.Quantity })
		})

	productIDs := lo.Keys(merged)
	slices.Sort(productIDs)
	for _, productID := range productIDs {
		if merged[productID] > domain.MaxItemQuantity {
			return nil, fmt.Errorf("%w: quantity of %s must be at most %d", ErrInvalidInput, productID, domain.MaxItemQuantity)
		}
	}

	for _, productID := range productIDs {
		err := s.store.Add(ctx, userID, productID, merged[productID])
		if errors.Is(err, inventory.ErrProductNotFound) {
			s.logger.Info("skipping unknown product in cart sync", "user_id", userID, "product_id", productID)
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, userID)
}

// Checkout places an order for the cart contents through the order workflow.
// The cart is emptied in the same transaction that writes the order.
func (s *Service) Checkout(ctx context.Context, userID string, in CheckoutInput) (*domain.Order, error) {
	items, err := s.store.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	order, err := s.orders.Create(ctx, orders.CreateInput{
		UserID: userID,
		Items: lo.Map(items, func(item Item, _ int) orders.ItemInput {
			return orders.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity}
		}),
		PrescriptionImage: in.PrescriptionImage,
		ShippingAddress:   in.ShippingAddress,
		Notes:             in.Notes,
		InTx: func(ctx context.Context) error {
			if err := s.store.Clear(ctx, userID); err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("cart checked out", "user_id", userID, "order_id", order.ID)
	return order, nil
}

func validate(in ItemInput) error {
	if in.ProductID == "" {
		return fmt.Errorf("%w: missing productId", ErrInvalidInput)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if in.Quantity > domain.MaxItemQuantity {
		return fmt.Errorf("%w: quantity must be at most %d", ErrInvalidInput, domain.MaxItemQuantity)
	}
	return nil
}
