package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/fhpereira/acesso/pkg/errors"

	"github.com/fhpereira/acesso/internal/models"
	"github.com/fhpereira/acesso/pkg/crypto"
	"github.com/fhpereira/acesso/pkg/metrics"
	"github.com/fhpereira/acesso/pkg/validator"
)

// RegisterRedirect is where clients are sent after a successful signup.
// Registration does not log the user in; they authenticate from the home
// page afterwards.
const RegisterRedirect = "/"

// RegistrationOption customises the RegistrationService.
type RegistrationOption func(*RegistrationService)

// WithRegistrationClock injects a custom time source.
func WithRegistrationClock(clock func() time.Time) RegistrationOption {
	return func(s *RegistrationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// RegisterInput captures the details required to create a credentials account.
type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegistrationService creates credential-backed accounts.
type RegistrationService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(db *gorm.DB, opts ...RegistrationOption) (*RegistrationService, error) {
	if db == nil {
		return nil, errors.New("registration service: db is required")
	}

	service := &RegistrationService{
		db:  db,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Register validates the input, hashes the password and creates the user.
// The database's unique email index arbitrates concurrent signups for the
// same address, so a lost race surfaces as a duplicate rather than a crash.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if err := validator.ValidateStruct(input); err != nil {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return nil, apperrors.ErrValidation.WithInternal(err)
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("registration service: hash password: %w", err)
	}

	user := &models.User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hashed,
		Provider:     "password",
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			metrics.Registrations.WithLabelValues("duplicate").Inc()
			return nil, apperrors.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("registration service: create user: %w", err)
	}

	metrics.Registrations.WithLabelValues("success").Inc()

	return user, nil
}
