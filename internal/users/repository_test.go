package users

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/medstore/internal/domain"
)

var userCols = []string{"id", "email", "password_hash", "full_name", "phone", "role", "address", "health_data", "created_at", "updated_at"}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	now := time.Now()

	t.Run("Create", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("u-1", "a@b.co", "hash", "A", "", domain.RoleCustomer).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		u := &domain.User{ID: "u-1", Email: "a@b.co", PasswordHash: "hash", FullName: "A", Role: domain.RoleCustomer}
		require.NoError(t, repo.Create(ctx, u))
		assert.Equal(t, now, u.CreatedAt)
	})

	t.Run("Create_DuplicateEmail", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO users`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

		err := repo.Create(ctx, &domain.User{ID: "u-2", Email: "a@b.co"})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("GetByEmail", func(t *testing.T) {
		mock.ExpectQuery(`FROM users WHERE email = \$1`).
			WithArgs("a@b.co").
			WillReturnRows(sqlmock.NewRows(userCols).
				AddRow("u-1", "a@b.co", "hash", "A", "", "pharmacist", nil, nil, now, now))

		u, err := repo.GetByEmail(ctx, "a@b.co")
		require.NoError(t, err)
		assert.Equal(t, domain.RolePharmacist, u.Role)
		assert.Nil(t, u.Address)
		assert.Nil(t, u.HealthData)
	})

	t.Run("UpdateProfile", func(t *testing.T) {
		addr := &domain.ShippingAddress{Street: "1 Silom Rd", District: "Bang Rak", Province: "Bangkok", PostalCode: "10500"}
		health := &domain.HealthData{Allergies: []string{"penicillin"}}

		mock.ExpectQuery(`UPDATE users SET .* address = COALESCE\(\$4, address\), .* RETURNING id, email`).
			WithArgs("u-1", nil, nil,
				`{"street":"1 Silom Rd","district":"Bang Rak","province":"Bangkok","postalCode":"10500"}`,
				`{"allergies":["penicillin"],"chronicDiseases":[],"currentMedications":[]}`).
			WillReturnRows(sqlmock.NewRows(userCols).
				AddRow("u-1", "a@b.co", "hash", "A", "", "customer",
					[]byte(`{"street":"1 Silom Rd","district":"Bang Rak","province":"Bangkok","postalCode":"10500"}`),
					[]byte(`{"allergies":["penicillin"],"chronicDiseases":[],"currentMedications":[]}`),
					now, now))

		u, err := repo.UpdateProfile(ctx, "u-1", ProfileUpdate{Address: addr, HealthData: health})
		require.NoError(t, err)
		assert.Equal(t, addr, u.Address)
		assert.Equal(t, []string{"penicillin"}, u.HealthData.Allergies)
		assert.Empty(t, u.HealthData.CurrentMedications)
	})

	t.Run("UpdateProfile_UnknownUser", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE users`).WillReturnError(sql.ErrNoRows)

		_, err := repo.UpdateProfile(ctx, "missing", ProfileUpdate{})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("GetByID_NotFound", func(t *testing.T) {
		mock.ExpectQuery(`FROM users WHERE id = \$1`).WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
