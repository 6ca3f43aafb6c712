package category

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/medstore/internal/domain"
)

var categoryCols = []string{"id", "name", "icon", "count"}

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewHandler(NewRepository(db), slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM categories c LEFT JOIN products p ON p.category_id = c.id GROUP BY`).
		WillReturnRows(sqlmock.NewRows(categoryCols).
			AddRow("antibiotic", "Antibiotics", "syringe", 2).
			AddRow("baby", "Mother & Baby", "baby", 0))

	got, err := NewRepository(db).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{
		{ID: "antibiotic", Name: "Antibiotics", Icon: "syringe", ProductCount: 2},
		{ID: "baby", Name: "Mother & Baby", Icon: "baby", ProductCount: 0},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_HandleGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h, mock := newTestHandler(t)
		mock.ExpectQuery(`FROM categories c WHERE c.id = \$1`).
			WithArgs("skincare").
			WillReturnRows(sqlmock.NewRows(categoryCols).AddRow("skincare", "Skincare", "sparkles", 5))

		req := httptest.NewRequest(http.MethodGet, "/categories/skincare", nil)
		req.SetPathValue("id", "skincare")
		rec := httptest.NewRecorder()
		h.HandleGet(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":"skincare","name":"Skincare","icon":"sparkles","count":5}`, rec.Body.String())
	})

	t.Run("missing", func(t *testing.T) {
		h, mock := newTestHandler(t)
		mock.ExpectQuery(`FROM categories`).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(categoryCols))

		req := httptest.NewRequest(http.MethodGet, "/categories/nope", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		h.HandleGet(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_HandleCreate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		h, mock := newTestHandler(t)
		mock.ExpectExec(`INSERT INTO categories`).
			WithArgs("eye-care", "Eye Care", "eye").
			WillReturnResult(sqlmock.NewResult(0, 1))

		rec := httptest.NewRecorder()
		h.HandleCreate(rec, httptest.NewRequest(http.MethodPost, "/categories",
			strings.NewReader(`{"id":" eye-care ","name":"Eye Care","icon":"eye","count":99}`)))

		require.Equal(t, http.StatusCreated, rec.Code)
		var got domain.Category
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, domain.Category{ID: "eye-care", Name: "Eye Care", Icon: "eye"}, got)
	})

	t.Run("duplicate", func(t *testing.T) {
		h, mock := newTestHandler(t)
		mock.ExpectExec(`INSERT INTO categories`).WillReturnError(&pq.Error{Code: "23505"})

		rec := httptest.NewRecorder()
		h.HandleCreate(rec, httptest.NewRequest(http.MethodPost, "/categories",
			strings.NewReader(`{"id":"baby","name":"Baby"}`)))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	tests := []struct {
		name string
		body string
	}{
		{name: "bad slug", body: `{"id":"Eye Care","name":"Eye Care"}`},
		{name: "missing name", body: `{"id":"eye"}`},
		{name: "malformed", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t)
			rec := httptest.NewRecorder()
			h.HandleCreate(rec, httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
