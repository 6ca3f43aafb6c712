package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/medstore/internal/database"
	"github.com/joao-fontenele/medstore/internal/domain"
	"github.com/joao-fontenele/medstore/internal/inventory"
)

const foreignKeyViolation = "23503"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Items returns the cart lines with their products. Lines whose product was
// deleted are dropped by the foreign key cascade.
func (r *Repository) Items(ctx context.Context, userID string) ([]Item, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT c.product_id, c.quantity,
		       p.name, p.description, p.price, p.stock_quantity, p.in_stock,
		       p.requires_prescription, p.image, p.category_id, p.created_at, p.updated_at
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []Item{}
	for rows.Next() {
		var (
			item Item
			p    domain.Product
		)
		err := rows.Scan(&item.ProductID, &item.Quantity,
			&p.Name, &p.Description, &p.Price, &p.StockQuantity, &p.InStock,
			&p.RequiresPrescription, &p.Image, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, err
		}
		p.ID = item.ProductID
		item.Product = &p
		items = append(items, item)
	}

	return items, rows.Err()
}

// Add inserts the line or adds quantity to an existing one. The merged
// quantity is capped at domain.MaxItemQuantity.
func (r *Repository) Add(ctx context.Context, userID, productID string, quantity int) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, $4), updated_at = NOW()
	`, userID, productID, quantity, domain.MaxItemQuantity)
	return translate(err, productID)
}

func (r *Repository) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE cart_items SET quantity = $3, updated_at = NOW()
		WHERE user_id = $1 AND product_id = $2
	`, userID, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrItemNotInCart
	}

	return nil
}

func (r *Repository) Remove(ctx context.Context, userID, productID string) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	return err
}

func (r *Repository) Clear(ctx context.Context, userID string) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}

func translate(err error, productID string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return &inventory.ProductNotFoundError{ProductID: productID}
	}
	return fmt.Errorf("write cart item: %w", err)
}
