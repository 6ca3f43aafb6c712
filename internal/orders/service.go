package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/medstore/internal/domain"
	"github.com/joao-fontenele/medstore/internal/inventory"
)

var (
	tracer = otel.Tracer("orders")
	meter  = otel.Meter("orders")
)

type StockLedger interface {
	TryReserve(ctx context.Context, productID string, quantity int) (*domain.Product, error)
	Restore(ctx context.Context, productID string, quantity int) error
}

type Store interface {
	Insert(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, f ListFilter) ([]domain.Order, error)
	LockStatus(ctx context.Context, id string) (domain.OrderStatus, error)
	Items(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	SetStatus(ctx context.Context, id string, status domain.OrderStatus) error
}

// Transactor runs fn in a transaction carried by the context it receives.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// RestockPolicy decides what cancellation does with an item whose product no
// longer exists. Creation is always strict.
type RestockPolicy int

const (
	RestockSkipMissing RestockPolicy = iota
	RestockStrict
)

type ItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CreateInput struct {
	UserID            string                  `json:"-"`
	Items             []ItemInput             `json:"items"`
	PrescriptionImage *string                 `json:"prescriptionImage"`
	ShippingAddress   *domain.ShippingAddress `json:"shippingAddress"`
	Notes             *string                 `json:"notes"`

	// InTx runs inside the order transaction after the order is written.
	// An error from it rolls the order back.
	InTx func(ctx context.Context) error `json:"-"`
}

func (in CreateInput) validate() error {
	if in.UserID == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrInvalidInput)
	}
	for i, item := range in.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: items[%d]: missing productId", ErrInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: items[%d]: quantity must be positive", ErrInvalidInput, i)
		}
		if item.Quantity > domain.MaxItemQuantity {
			return fmt.Errorf("%w: items[%d]: quantity must be at most %d", ErrInvalidInput, i, domain.MaxItemQuantity)
		}
	}
	if in.ShippingAddress != nil {
		if err := in.ShippingAddress.Validate(); err != nil {
			return fmt.Errorf("%w: shippingAddress: %w", ErrInvalidInput, err)
		}
	}
	return nil
}

type Service struct {
	tx      Transactor
	ledger  StockLedger
	store   Store
	events  EventPublisher
	restock RestockPolicy
	logger  *slog.Logger
	now     func() time.Time

	createdCounter   metric.Int64Counter
	cancelledCounter metric.Int64Counter
	rejectedCounter  metric.Int64Counter
}

type Option func(*Service)

// WithEventPublisher enables order events. Without it nothing is published.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

func WithRestockPolicy(p RestockPolicy) Option {
	return func(s *Service) { s.restock = p }
}

func NewService(tx Transactor, ledger StockLedger, store Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		tx:     tx,
		ledger: ledger,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.createdCounter, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders created"),
		metric.WithUnit("{order}"))
	if err != nil {
		return nil, fmt.Errorf("create orders.created counter: %w", err)
	}
	s.cancelledCounter, err = meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled with stock restored"),
		metric.WithUnit("{order}"))
	if err != nil {
		return nil, fmt.Errorf("create orders.cancelled counter: %w", err)
	}
	s.rejectedCounter, err = meter.Int64Counter("orders.stock_rejections",
		metric.WithDescription("Order creations rejected for missing product or insufficient stock"),
		metric.WithUnit("{order}"))
	if err != nil {
		return nil, fmt.Errorf("create orders.stock_rejections counter: %w", err)
	}

	return s, nil
}

// Create reserves stock for every item and persists the order in one
// transaction. Any failure rolls back all reservations made so far and is
// returned unchanged.
func (s *Service) Create(ctx context.Context, in CreateInput) (_ *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.Create", trace.WithAttributes(
		attribute.String("user.id", in.UserID),
		attribute.Int("order.items", len(in.Items)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := in.validate(); err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:                uuid.NewString(),
		UserID:            in.UserID,
		Status:            initialStatus(in.PrescriptionImage),
		TotalAmount:       decimal.Zero,
		PrescriptionImage: in.PrescriptionImage,
		ShippingAddress:   in.ShippingAddress,
		Notes:             in.Notes,
		Items:             make([]domain.OrderItem, 0, len(in.Items)),
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, item := range in.Items {
			product, err := s.ledger.TryReserve(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}

			line := domain.OrderItem{
				ID:          uuid.NewString(),
				OrderID:     order.ID,
				ProductID:   product.ID,
				Quantity:    item.Quantity,
				PriceAtTime: product.Price,
			}
			order.TotalAmount = order.TotalAmount.Add(line.Subtotal())
			order.Items = append(order.Items, line)
		}

		if err := s.store.Insert(ctx, order); err != nil {
			return err
		}
		if in.InTx != nil {
			return in.InTx(ctx)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) || errors.Is(err, inventory.ErrProductNotFound) {
			s.rejectedCounter.Add(ctx, 1)
			s.logger.Info("order rejected", "user_id", in.UserID, "reason", err.Error())
		}
		return nil, err
	}

	s.createdCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(order.Status))))
	span.SetAttributes(attribute.String("order.id", order.ID))
	s.logger.Info("order created",
		"order_id", order.ID,
		"user_id", order.UserID,
		"status", order.Status,
		"total_amount", order.TotalAmount.StringFixed(2),
	)

	// The order is committed, so a failed reload must not turn into an error.
	created, err := s.store.Get(ctx, order.ID)
	if err != nil {
		s.logger.Warn("failed to reload created order", "error", err, "order_id", order.ID)
		now := s.now()
		order.CreatedAt, order.UpdatedAt = now, now
		created = order
	}

	s.publish(ctx, domain.NewOrderEvent(domain.EventOrderCreated, created, s.now()))

	return created, nil
}

func initialStatus(prescriptionImage *string) domain.OrderStatus {
	if prescriptionImage != nil && *prescriptionImage != "" {
		return domain.OrderStatusPrescription
	}
	return domain.OrderStatusPendingReview
}

// UpdateStatus moves an order to status. Cancelling restores the stock of
// every item in the same transaction as the status write.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (_ *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	var previous domain.OrderStatus
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.store.LockStatus(ctx, id)
		if err != nil {
			return err
		}
		previous = current

		if err := checkTransition(current, status); err != nil {
			return err
		}

		if status == domain.OrderStatusCancelled {
			if err := s.restoreStock(ctx, id); err != nil {
				return err
			}
		}

		return s.store.SetStatus(ctx, id, status)
	})
	if err != nil {
		return nil, err
	}

	if status == domain.OrderStatusCancelled {
		s.cancelledCounter.Add(ctx, 1)
	}
	s.logger.Info("order status updated", "order_id", id, "from", previous, "to", status)

	order, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Warn("failed to reload updated order", "error", err, "order_id", id)
		order = &domain.Order{ID: id, Status: status, UpdatedAt: s.now()}
	}

	event := domain.NewOrderEvent(domain.EventOrderStatusChanged, order, s.now())
	event.PreviousStatus = previous
	s.publish(ctx, event)

	return order, nil
}

// checkTransition rejects moves out of CANCELLED, which would let a later
// cancellation restore the same stock twice, and DONE to CANCELLED.
func checkTransition(from, to domain.OrderStatus) error {
	switch {
	case from == domain.OrderStatusCancelled:
		return fmt.Errorf("%w: order is already cancelled", ErrInvalidTransition)
	case from == domain.OrderStatusDone && to == domain.OrderStatusCancelled:
		return fmt.Errorf("%w: completed orders cannot be cancelled", ErrInvalidTransition)
	}
	return nil
}

func (s *Service) restoreStock(ctx context.Context, orderID string) error {
	items, err := s.store.Items(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}

	for _, item := range items {
		err := s.ledger.Restore(ctx, item.ProductID, item.Quantity)
		if err == nil {
			continue
		}
		// Cancellation tolerates products removed from the catalog unless
		// the strict policy is configured.
		if errors.Is(err, inventory.ErrProductNotFound) && s.restock == RestockSkipMissing {
			s.logger.Warn("skipping restock of deleted product",
				"order_id", orderID,
				"product_id", item.ProductID,
				"quantity", item.Quantity,
			)
			continue
		}
		return err
	}

	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Order, error) {
	return s.store.List(ctx, ListFilter{})
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.store.List(ctx, ListFilter{UserID: userID})
}

// publish runs after commit. A lost event never fails the request.
func (s *Service) publish(ctx context.Context, event domain.OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event.OrderID, event); err != nil {
		s.logger.Error("failed to publish order event",
			"error", err,
			"order_id", event.OrderID,
			"event_type", event.Type,
		)
	}
}
