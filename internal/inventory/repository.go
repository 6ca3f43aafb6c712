package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/joao-fontenele/medstore/internal/database"
	"github.com/joao-fontenele/medstore/internal/domain"
)

const productColumns = `id, name, description, price, stock_quantity, in_stock,
	requires_prescription, image, category_id, created_at, updated_at`

const foreignKeyViolation = "23503"

type ListFilter struct {
	Search      string
	CategoryID  string
	InStockOnly bool
	Limit       int
	Offset      int
}

// Repository is the stock ledger and catalog store. Every method runs on the
// transaction carried by ctx when there is one.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// TryReserve decrements stock in one conditional statement, so two concurrent
// reservations cannot both pass the check against the same quantity.
func (r *Repository) TryReserve(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	q := database.Conn(ctx, r.db)

	p, err := scanProduct(q.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2,
		    in_stock = stock_quantity - $2 > 0,
		    updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING `+productColumns,
		productID, quantity))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}

	var (
		name      string
		available int
	)
	err = q.QueryRowContext(ctx, `
		SELECT name, stock_quantity
		FROM products
		WHERE id = $1
	`, productID).Scan(&name, &available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ProductNotFoundError{ProductID: productID}
		}
		return nil, fmt.Errorf("read stock: %w", err)
	}

	return nil, &InsufficientStockError{
		ProductID:   productID,
		ProductName: name,
		Available:   available,
		Requested:   quantity,
	}
}

// Restore puts quantity back on hand. The product is in stock afterwards.
func (r *Repository) Restore(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2,
		    in_stock = TRUE,
		    updated_at = NOW()
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return &ProductNotFoundError{ProductID: productID}
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(database.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ProductNotFoundError{ProductID: id}
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if f.InStockOnly {
		where = append(where, "in_stock")
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY name`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *Repository) Create(ctx context.Context, p *domain.Product) error {
	p.InStock = p.StockQuantity > 0

	err := database.Conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO products (id, name, description, price, stock_quantity, in_stock, requires_prescription, image, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Description, p.Price, p.StockQuantity, p.InStock, p.RequiresPrescription, p.Image, p.CategoryID).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

// Update is the administrative edit. It overwrites stock directly, which is
// outside the order workflow.
func (r *Repository) Update(ctx context.Context, p *domain.Product) error {
	p.InStock = p.StockQuantity > 0

	err := database.Conn(ctx, r.db).QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, stock_quantity = $5, in_stock = $6,
		    requires_prescription = $7, image = $8, category_id = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Description, p.Price, p.StockQuantity, p.InStock, p.RequiresPrescription, p.Image, p.CategoryID).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &ProductNotFoundError{ProductID: p.ID}
		}
		if isForeignKeyViolation(err) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("update product: %w", err)
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return &ProductNotFoundError{ProductID: id}
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*domain.Product, error) {
	var p domain.Product
	err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.StockQuantity, &p.InStock,
		&p.RequiresPrescription, &p.Image, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}
