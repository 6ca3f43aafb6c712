package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/medstore/internal/domain"
	"github.com/joao-fontenele/medstore/internal/inventory"
)

// memStore is an in-memory StockLedger, Store and Transactor. A failed
// transaction puts every map back to its state before the transaction.
type memStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	users    map[string]domain.UserSummary

	insertErr  error
	getErr     error
	restoreErr map[string]error
	txCount    int
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		products:   map[string]domain.Product{},
		orders:     map[string]domain.Order{},
		users:      map[string]domain.UserSummary{},
		restoreErr: map[string]error{},
	}
}

func (m *memStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++

	products := maps.Clone(m.products)
	orders := maps.Clone(m.orders)

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.products = products
		m.orders = orders
		return err
	}
	return nil
}

func (m *memStore) TryReserve(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	defer m.lock(ctx)()

	p, ok := m.products[productID]
	if !ok {
		return nil, &inventory.ProductNotFoundError{ProductID: productID}
	}
	if p.StockQuantity < quantity {
		return nil, &inventory.InsufficientStockError{
			ProductID:   productID,
			ProductName: p.Name,
			Available:   p.StockQuantity,
			Requested:   quantity,
		}
	}
	p.StockQuantity -= quantity
	p.InStock = p.StockQuantity > 0
	m.products[productID] = p
	return &p, nil
}

func (m *memStore) Restore(ctx context.Context, productID string, quantity int) error {
	defer m.lock(ctx)()

	if err := m.restoreErr[productID]; err != nil {
		return err
	}
	p, ok := m.products[productID]
	if !ok {
		return &inventory.ProductNotFoundError{ProductID: productID}
	}
	p.StockQuantity += quantity
	p.InStock = true
	m.products[productID] = p
	return nil
}

func (m *memStore) Insert(ctx context.Context, order *domain.Order) error {
	defer m.lock(ctx)()

	if m.insertErr != nil {
		return m.insertErr
	}
	stored := *order
	stored.Items = slices.Clone(order.Items)
	m.orders[order.ID] = stored
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	defer m.lock(ctx)()

	if m.getErr != nil {
		return nil, m.getErr
	}

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return m.hydrate(o), nil
}

func (m *memStore) hydrate(o domain.Order) *domain.Order {
	if u, ok := m.users[o.UserID]; ok {
		o.User = &u
	}
	o.Items = slices.Clone(o.Items)
	for i := range o.Items {
		if p, ok := m.products[o.Items[i].ProductID]; ok {
			o.Items[i].Product = &p
		}
	}
	return &o
}

func (m *memStore) List(ctx context.Context, f ListFilter) ([]domain.Order, error) {
	defer m.lock(ctx)()

	out := []domain.Order{}
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		out = append(out, *m.hydrate(o))
	}
	slices.SortFunc(out, func(a, b domain.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *memStore) LockStatus(ctx context.Context, id string) (domain.OrderStatus, error) {
	defer m.lock(ctx)()

	o, ok := m.orders[id]
	if !ok {
		return "", ErrOrderNotFound
	}
	return o.Status, nil
}

func (m *memStore) Items(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	defer m.lock(ctx)()

	return slices.Clone(m.orders[orderID].Items), nil
}

func (m *memStore) SetStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	defer m.lock(ctx)()

	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	m.orders[id] = o
	return nil
}

func (m *memStore) addProduct(t *testing.T, price string, stock int) domain.Product {
	t.Helper()
	p := domain.Product{
		ID:            uuid.NewString(),
		Name:          gofakeit.ProductName(),
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		InStock:       stock > 0,
	}
	m.products[p.ID] = p
	return p
}

func (m *memStore) addUser() domain.UserSummary {
	u := domain.UserSummary{ID: uuid.NewString(), Email: gofakeit.Email(), FullName: gofakeit.Name()}
	m.users[u.ID] = u
	return u
}

func (m *memStore) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].StockQuantity
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event.(domain.OrderEvent))
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, store *memStore, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(store, store, store, discardLogger(), opts...)
	require.NoError(t, err)
	return svc
}

var errBoom = errors.New("boom")
