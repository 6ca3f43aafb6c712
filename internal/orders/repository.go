package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/medstore/internal/database"
	"github.com/joao-fontenele/medstore/internal/domain"
)

const orderColumns = `o.id, o.user_id, o.status, o.total_amount, o.prescription_image,
	o.shipping_address, o.notes, o.created_at, o.updated_at, u.email, u.full_name`

type ListFilter struct {
	UserID string
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes the order and its items. It does not open a transaction of
// its own; callers wrap it together with the stock reservations.
func (r *Repository) Insert(ctx context.Context, order *domain.Order) error {
	q := database.Conn(ctx, r.db)

	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO orders (id, user_id, status, total_amount, prescription_image, shipping_address, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, order.ID, order.UserID, order.Status, order.TotalAmount, order.PrescriptionImage,
		order.ShippingAddress, order.Notes).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.OrderID = order.ID

		_, err = q.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price_at_time, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.PriceAtTime, i)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

// Get returns the order with its user, items and each item's product. Items
// whose product was deleted keep a nil Product.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Order, error) {
	q := database.Conn(ctx, r.db)

	order, err := scanOrder(q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	orders := map[string]*domain.Order{order.ID: order}
	if err := r.loadItems(ctx, q, orders, []string{order.ID}); err != nil {
		return nil, err
	}

	return order, nil
}

// List returns orders newest first, loading all items in one extra query.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]domain.Order, error) {
	q := database.Conn(ctx, r.db)

	query := `SELECT ` + orderColumns + ` FROM orders o JOIN users u ON u.id = o.user_id`
	var args []any
	if f.UserID != "" {
		query += ` WHERE o.user_id = $1`
		args = append(args, f.UserID)
	}
	query += ` ORDER BY o.created_at DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := r.loadItems(ctx, q, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// LockStatus reads the current status and holds the row lock until the
// surrounding transaction ends.
func (r *Repository) LockStatus(ctx context.Context, id string) (domain.OrderStatus, error) {
	var status domain.OrderStatus
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", fmt.Errorf("lock order: %w", err)
	}
	return status, nil
}

// Items returns the bare line items of an order in submitted order.
func (r *Repository) Items(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price_at_time
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.PriceAtTime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (r *Repository) SetStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *Repository) loadItems(ctx context.Context, q database.DBTX, orders map[string]*domain.Order, ids []string) error {
	rows, err := q.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price_at_time,
		       p.id, p.name, p.description, p.price, p.stock_quantity, p.in_stock,
		       p.requires_prescription, p.image, p.category_id, p.created_at, p.updated_at
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			item       domain.OrderItem
			pID, pName sql.NullString
			pDesc      sql.NullString
			pPrice     decimal.NullDecimal
			pStock     sql.NullInt64
			pInStock   sql.NullBool
			pRx        sql.NullBool
			pImage     *string
			pCategory  *string
			pCreated   sql.NullTime
			pUpdated   sql.NullTime
		)
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.PriceAtTime,
			&pID, &pName, &pDesc, &pPrice, &pStock, &pInStock, &pRx, &pImage, &pCategory, &pCreated, &pUpdated)
		if err != nil {
			return err
		}

		if pID.Valid {
			item.Product = &domain.Product{
				ID:                   pID.String,
				Name:                 pName.String,
				Description:          pDesc.String,
				Price:                pPrice.Decimal,
				StockQuantity:        int(pStock.Int64),
				InStock:              pInStock.Bool,
				RequiresPrescription: pRx.Bool,
				Image:                pImage,
				CategoryID:           pCategory,
				CreatedAt:            pCreated.Time,
				UpdatedAt:            pUpdated.Time,
			}
		}

		order, ok := orders[item.OrderID]
		if !ok {
			continue
		}
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	order := &domain.Order{Items: []domain.OrderItem{}}
	user := &domain.UserSummary{}

	err := s.Scan(&order.ID, &order.UserID, &order.Status, &order.TotalAmount, &order.PrescriptionImage,
		&order.ShippingAddress, &order.Notes, &order.CreatedAt, &order.UpdatedAt, &user.Email, &user.FullName)
	if err != nil {
		return nil, err
	}

	user.ID = order.UserID
	order.User = user

	return order, nil
}
