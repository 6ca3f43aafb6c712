package inventory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/medstore/internal/database"
	"github.com/joao-fontenele/medstore/internal/domain"
)

var productCols = []string{
	"id", "name", "description", "price", "stock_quantity", "in_stock",
	"requires_prescription", "image", "category_id", "created_at", "updated_at",
}

func productRow(id, name string, stock int) *sqlmock.Rows {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return sqlmock.NewRows(productCols).
		AddRow(id, name, "", "10.50", stock, stock > 0, false, nil, "painkiller", now, now)
}

func newRepo(t *testing.T) (*Repository, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db), db, mock
}

func TestRepository_TryReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("decrements and returns the product", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectQuery(`UPDATE products .* WHERE id = \$1 AND stock_quantity >= \$2`).
			WithArgs("p-1", 2).
			WillReturnRows(productRow("p-1", "Paracetamol", 8))

		p, err := repo.TryReserve(ctx, "p-1", 2)
		require.NoError(t, err)
		assert.Equal(t, "Paracetamol", p.Name)
		assert.Equal(t, 8, p.StockQuantity)
		assert.True(t, p.InStock)
		assert.True(t, decimal.RequireFromString("10.5").Equal(p.Price))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient stock reports name and available quantity", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectQuery(`UPDATE products`).
			WithArgs("p-1", 5).
			WillReturnRows(sqlmock.NewRows(productCols))
		mock.ExpectQuery(`SELECT name, stock_quantity FROM products`).
			WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows([]string{"name", "stock_quantity"}).AddRow("Ibuprofen", 3))

		_, err := repo.TryReserve(ctx, "p-1", 5)

		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.Equal(t, "Ibuprofen", stockErr.ProductName)
		assert.Equal(t, 3, stockErr.Available)
		assert.Equal(t, 5, stockErr.Requested)
		assert.Equal(t, "not enough stock for Ibuprofen. available: 3", err.Error())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing product", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectQuery(`UPDATE products`).WillReturnRows(sqlmock.NewRows(productCols))
		mock.ExpectQuery(`SELECT name, stock_quantity FROM products`).WillReturnError(sql.ErrNoRows)

		_, err := repo.TryReserve(ctx, "nope", 1)

		var notFound *ProductNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "nope", notFound.ProductID)
		assert.ErrorIs(t, err, ErrProductNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive quantity without touching the database", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		_, err := repo.TryReserve(ctx, "p-1", 0)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps driver errors", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectQuery(`UPDATE products`).WillReturnError(errors.New("canceling statement due to statement timeout"))

		_, err := repo.TryReserve(ctx, "p-1", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reserve stock")
		assert.NotErrorIs(t, err, ErrInsufficientStock)
	})

	t.Run("runs on the transaction carried by the context", func(t *testing.T) {
		repo, db, mock := newRepo(t)
		txm := database.NewTxManager(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE products`).WillReturnRows(productRow("p-1", "Paracetamol", 0))
		mock.ExpectCommit()

		err := txm.WithTransaction(ctx, func(ctx context.Context) error {
			p, err := repo.TryReserve(ctx, "p-1", 1)
			if err != nil {
				return err
			}
			assert.False(t, p.InStock)
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("adds stock back and marks in stock", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectExec(`UPDATE products SET stock_quantity = stock_quantity \+ \$2,\s+in_stock = TRUE`).
			WithArgs("p-1", 4).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Restore(ctx, "p-1", 4))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing product", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectExec(`UPDATE products`).WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Restore(ctx, "gone", 1)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		repo, _, _ := newRepo(t)
		assert.ErrorIs(t, repo.Restore(ctx, "p-1", -1), ErrInvalidQuantity)
	})
}

func TestRepository_Get(t *testing.T) {
	ctx := context.Background()
	repo, _, mock := newRepo(t)

	mock.ExpectQuery(`SELECT .* FROM products WHERE id = \$1`).
		WithArgs("p-1").
		WillReturnRows(productRow("p-1", "Vitamin C", 12))
	mock.ExpectQuery(`SELECT .* FROM products WHERE id = \$1`).
		WithArgs("p-2").
		WillReturnError(sql.ErrNoRows)

	p, err := repo.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Vitamin C", p.Name)

	_, err = repo.Get(ctx, "p-2")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("no filter", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		rows := productRow("p-1", "A", 1).
			AddRow("p-2", "B", "", "1.00", 0, false, true, nil, nil, time.Now(), time.Now())
		mock.ExpectQuery(`SELECT .* FROM products ORDER BY name$`).WillReturnRows(rows)

		products, err := repo.List(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.True(t, products[1].RequiresPrescription)
	})

	t.Run("search, in stock, paging", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectQuery(`FROM products WHERE name ILIKE \$1 AND in_stock ORDER BY name LIMIT \$2 OFFSET \$3`).
			WithArgs("%para%", 10, 20).
			WillReturnRows(sqlmock.NewRows(productCols))

		products, err := repo.List(ctx, ListFilter{Search: " para ", InStockOnly: true, Limit: 10, Offset: 20})
		require.NoError(t, err)
		assert.NotNil(t, products)
		assert.Empty(t, products)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("category", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectQuery(`FROM products WHERE category_id = \$1 ORDER BY name$`).
			WithArgs("painkiller").
			WillReturnRows(productRow("p-1", "Aspirin", 3))

		products, err := repo.List(ctx, ListFilter{CategoryID: "painkiller"})
		require.NoError(t, err)
		require.Len(t, products, 1)
		require.NotNil(t, products[0].CategoryID)
		assert.Equal(t, "painkiller", *products[0].CategoryID)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_CreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("create derives in_stock", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectQuery(`INSERT INTO products`).
			WithArgs("p-1", "Aspirin", "", sqlmock.AnyArg(), 0, false, true, nil, nil).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		p := &domain.Product{ID: "p-1", Name: "Aspirin", Price: decimal.NewFromInt(3), RequiresPrescription: true, InStock: true}
		require.NoError(t, repo.Create(ctx, p))
		assert.False(t, p.InStock)
		assert.Equal(t, now, p.CreatedAt)
	})

	t.Run("unknown category", func(t *testing.T) {
		repo, _, mock := newRepo(t)
		category := "no-such-category"

		mock.ExpectQuery(`INSERT INTO products`).
			WillReturnError(&pq.Error{Code: "23503"})
		mock.ExpectQuery(`UPDATE products`).
			WillReturnError(&pq.Error{Code: "23503"})

		err := repo.Create(ctx, &domain.Product{ID: "p-1", Name: "A", CategoryID: &category})
		assert.ErrorIs(t, err, ErrCategoryNotFound)

		err = repo.Update(ctx, &domain.Product{ID: "p-1", Name: "A", CategoryID: &category})
		assert.ErrorIs(t, err, ErrCategoryNotFound)
	})

	t.Run("update missing product", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectQuery(`UPDATE products`).WillReturnError(sql.ErrNoRows)

		err := repo.Update(ctx, &domain.Product{ID: "p-9", StockQuantity: 3})
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo, _, mock := newRepo(t)

		mock.ExpectExec(`DELETE FROM products`).WithArgs("p-1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM products`).WithArgs("p-2").WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, repo.Delete(ctx, "p-1"))
		assert.ErrorIs(t, repo.Delete(ctx, "p-2"), ErrProductNotFound)
	})
}
