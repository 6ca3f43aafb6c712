package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/medstore/internal/database"
	"github.com/joao-fontenele/medstore/internal/domain"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, full_name, phone, role, address, health_data, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, u *domain.User) error {
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, phone, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.FullName, u.Phone, u.Role).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// UpdateProfile overwrites the fields set in p and leaves nil ones alone.
func (r *Repository) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (*domain.User, error) {
	return r.getOne(ctx, `
		UPDATE users SET
			full_name = COALESCE($2, full_name),
			phone = COALESCE($3, phone),
			address = COALESCE($4, address),
			health_data = COALESCE($5, health_data),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		id, p.FullName, p.Phone, p.Address, p.HealthData)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, args...).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Role, &u.Address, &u.HealthData, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
