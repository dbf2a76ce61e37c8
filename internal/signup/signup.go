// Package signup implements hospital account registration and sign-in.
package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/chartmed-ai/karte/internal/auth"
	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
)

// Sentinel errors returned by validation and signup logic. The capitalized
// ones carry the exact message the API returns to clients.
var (
	ErrNameRequired      = errors.New("name is required")
	ErrRegNumberRequired = errors.New("registrationNumber is required")
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrWeakPassword      = errors.New("password must be at least 8 characters")

	ErrDuplicateEmail     = errors.New("A hospital with this email already exists")
	ErrDuplicateRegNumber = errors.New("A hospital with this registration number already exists")
	ErrInvalidCredentials = errors.New("Invalid email or password")
)

// Service handles hospital signup and sign-in.
type Service struct {
	db     *storage.DB
	jwt    *auth.JWTManager
	logger *slog.Logger
}

// New creates a signup service.
func New(db *storage.DB, jwt *auth.JWTManager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, jwt: jwt, logger: logger}
}

// Signup registers a new hospital account and returns it with a fresh
// bearer token, matching the sign-in response shape.
func (s *Service) Signup(ctx context.Context, req model.SignupRequest) (model.AuthResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return model.AuthResponse{}, ErrNameRequired
	}
	if strings.TrimSpace(req.RegistrationNumber) == "" {
		return model.AuthResponse{}, ErrRegNumberRequired
	}
	if err := validateEmail(req.Email); err != nil {
		return model.AuthResponse{}, err
	}
	if err := validatePassword(req.Password); err != nil {
		return model.AuthResponse{}, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("signup: hash password: %w", err)
	}

	hospital, err := s.db.CreateHospital(ctx, model.Hospital{
		Name:               strings.TrimSpace(req.Name),
		Email:              req.Email,
		PasswordHash:       hash,
		RegistrationNumber: strings.TrimSpace(req.RegistrationNumber),
		Address:            req.Address,
		Phone:              req.Phone,
	})
	switch {
	case errors.Is(err, storage.ErrDuplicateEmail):
		return model.AuthResponse{}, ErrDuplicateEmail
	case errors.Is(err, storage.ErrDuplicateRegistrationNumber):
		return model.AuthResponse{}, ErrDuplicateRegNumber
	case err != nil:
		return model.AuthResponse{}, fmt.Errorf("signup: create hospital: %w", err)
	}

	s.logger.Info("hospital registered", "hospital_id", hospital.ID, "name", hospital.Name)
	return s.authResponse(hospital)
}

// Signin authenticates a hospital by email and password. Unknown emails and
// wrong passwords are indistinguishable to the caller, and the unknown-email
// path burns a dummy hash so response timing does not differ either.
func (s *Service) Signin(ctx context.Context, req model.SigninRequest) (model.AuthResponse, error) {
	hospital, err := s.db.GetHospitalByEmail(ctx, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		auth.DummyVerify()
		return model.AuthResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("signin: lookup hospital: %w", err)
	}

	ok, err := auth.VerifyPassword(req.Password, hospital.PasswordHash)
	if err != nil {
		s.logger.Error("signin: stored hash unreadable", "hospital_id", hospital.ID, "error", err)
		return model.AuthResponse{}, ErrInvalidCredentials
	}
	if !ok {
		return model.AuthResponse{}, ErrInvalidCredentials
	}

	return s.authResponse(hospital)
}

func (s *Service) authResponse(hospital model.Hospital) (model.AuthResponse, error) {
	token, _, err := s.jwt.IssueToken(hospital)
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("signup: issue token: %w", err)
	}
	return model.AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Hospital:    hospital,
	}, nil
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if len(email) > model.MaxEmailLen || !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	return nil
}
