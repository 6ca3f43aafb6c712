package category

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/medstore/internal/database"
	"github.com/joao-fontenele/medstore/internal/domain"
)

const uniqueViolation = "23505"

var (
	ErrNotFound = errors.New("category not found")
	ErrExists   = errors.New("category already exists")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// List returns every category with the number of products filed under it.
func (r *Repository) List(ctx context.Context) ([]domain.Category, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT c.id, c.name, c.icon, COUNT(p.id)
		FROM categories c
		LEFT JOIN products p ON p.category_id = c.id
		GROUP BY c.id, c.name, c.icon
		ORDER BY c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.ProductCount); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT c.id, c.name, c.icon,
		       (SELECT COUNT(*) FROM products p WHERE p.category_id = c.id)
		FROM categories c
		WHERE c.id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Icon, &c.ProductCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (r *Repository) Create(ctx context.Context, c *domain.Category) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO categories (id, name, icon) VALUES ($1, $2, $3)
	`, c.ID, c.Name, c.Icon)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrExists
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}
