package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/medstore/internal/auth"
	"github.com/joao-fontenele/medstore/internal/domain"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	minPasswordLength = 8
	// bcrypt rejects anything longer.
	maxPasswordBytes = 72
	maxHealthEntries = 50
	maxEntryLength   = 200
)

type Store interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (*domain.User, error)
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
}

// ProfileUpdate carries the fields of a PATCH /users/me request. Nil fields
// are left unchanged.
type ProfileUpdate struct {
	FullName   *string                 `json:"fullName"`
	Phone      *string                 `json:"phone"`
	Address    *domain.ShippingAddress `json:"address"`
	HealthData *domain.HealthData      `json:"healthData"`
}

type Session struct {
	Token     string       `json:"accessToken"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

type Service struct {
	store  Store
	issuer *auth.TokenIssuer
	cost   int
	logger *slog.Logger
}

func NewService(store Store, issuer *auth.TokenIssuer, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		issuer: issuer,
		cost:   bcrypt.DefaultCost,
		logger: logger,
	}
}

// Register creates a customer account and signs the caller in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordBytes)
	}
	if strings.TrimSpace(in.FullName) == "" {
		return nil, fmt.Errorf("%w: fullName is required", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        in.Phone,
		Role:         domain.RoleCustomer,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", u.ID)
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed", "user_id", u.ID)
		return nil, ErrInvalidCredentials
	}

	s.logger.Info("user logged in", "user_id", u.ID)
	return s.session(u)
}

func (s *Service) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.store.GetByID(ctx, userID)
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, p ProfileUpdate) (*domain.User, error) {
	if p.FullName != nil {
		name := strings.TrimSpace(*p.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: fullName must not be empty", ErrInvalidInput)
		}
		p.FullName = &name
	}
	if p.Address != nil {
		if err := p.Address.Validate(); err != nil {
			return nil, fmt.Errorf("%w: address: %v", ErrInvalidInput, err)
		}
	}
	if p.HealthData != nil {
		h, err := cleanHealthData(*p.HealthData)
		if err != nil {
			return nil, err
		}
		p.HealthData = &h
	}

	u, err := s.store.UpdateProfile(ctx, userID, p)
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile updated", "user_id", userID)
	return u, nil
}

func cleanHealthData(h domain.HealthData) (domain.HealthData, error) {
	var err error
	if h.Allergies, err = cleanEntries("allergies", h.Allergies); err != nil {
		return h, err
	}
	if h.ChronicDiseases, err = cleanEntries("chronicDiseases", h.ChronicDiseases); err != nil {
		return h, err
	}
	if h.CurrentMedications, err = cleanEntries("currentMedications", h.CurrentMedications); err != nil {
		return h, err
	}
	return h, nil
}

// cleanEntries trims each entry and drops blanks.
func cleanEntries(field string, entries []string) ([]string, error) {
	if len(entries) > maxHealthEntries {
		return nil, fmt.Errorf("%w: %s has more than %d entries", ErrInvalidInput, field, maxHealthEntries)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if len(e) > maxEntryLength {
			return nil, fmt.Errorf("%w: %s entry is too long", ErrInvalidInput, field)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Service) session(u *domain.User) (*Session, error) {
	token, expiresAt, err := s.issuer.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
