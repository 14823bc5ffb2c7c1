package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/internal/repository"
)

const (
	// DefaultTokenTTL is the access token lifetime.
	DefaultTokenTTL = 24 * time.Hour
	// PasswordResetTTL is how long a reset token stays usable.
	PasswordResetTTL = time.Hour
	tokenType        = "Bearer"
)

var (
	// ErrEmailTaken is returned when registering an address that already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound is returned when the authenticated user no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrResetTokenInvalid is returned for an unknown or expired reset token.
	ErrResetTokenInvalid = errors.New("reset token is invalid or expired")
)

// AuthService manages accounts and issues access tokens.
type AuthService interface {
	Register(ctx context.Context, req dto.RegisterRequest) (dto.TokenResponse, error)
	Login(ctx context.Context, req dto.LoginRequest) (dto.TokenResponse, error)
	Refresh(ctx context.Context, userID uint) (dto.TokenResponse, error)
	Me(ctx context.Context, userID uint) (dto.UserResponse, error)
	RequestPasswordReset(ctx context.Context, req dto.PasswordResetRequest) (dto.PasswordResetResponse, error)
	ResetPassword(ctx context.Context, req dto.PasswordResetConfirmRequest) error
}

type authService struct {
	users       repository.UserRepository
	validate    *validator.Validate
	secret      []byte
	tokenTTL    time.Duration
	exposeReset bool
	logger      zerolog.Logger
	now         func() time.Time
	bcryptCost  int
}

// NewAuthService builds the auth service. exposeResetToken returns reset tokens in the response
// body, for deployments without outbound mail.
func NewAuthService(users repository.UserRepository, validate *validator.Validate, secret string, tokenTTL time.Duration, exposeResetToken bool, logger zerolog.Logger) AuthService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &authService{
		users:       users,
		validate:    validate,
		secret:      []byte(secret),
		tokenTTL:    tokenTTL,
		exposeReset: exposeResetToken,
		logger:      logger.With().Str("component", "auth_service").Logger(),
		now:         time.Now,
		bcryptCost:  bcrypt.DefaultCost,
	}
}

func (s *authService) Register(ctx context.Context, req dto.RegisterRequest) (dto.TokenResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return dto.TokenResponse{}, err
	}

	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return dto.TokenResponse{}, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.TokenResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return dto.TokenResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{Name: req.Name, Email: req.Email, PasswordHash: string(hash)}
	if err := s.users.Create(ctx, &user); err != nil {
		return dto.TokenResponse{}, err
	}
	s.logger.Info().Uint("user_id", user.ID).Msg("user registered")
	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (dto.TokenResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return dto.TokenResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Info().Str("email", maskEmailAddress(req.Email)).Msg("login for unknown account")
			return dto.TokenResponse{}, ErrInvalidCredentials
		}
		return dto.TokenResponse{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Info().Uint("user_id", user.ID).Msg("login with wrong password")
		return dto.TokenResponse{}, ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *authService) Refresh(ctx context.Context, userID uint) (dto.TokenResponse, error) {
	user, err := s.lookup(ctx, userID)
	if err != nil {
		return dto.TokenResponse{}, err
	}
	return s.issue(user)
}

func (s *authService) Me(ctx context.Context, userID uint) (dto.UserResponse, error) {
	user, err := s.lookup(ctx, userID)
	if err != nil {
		return dto.UserResponse{}, err
	}
	return toUserResponse(user), nil
}

// RequestPasswordReset always reports success so callers cannot probe for registered addresses.
func (s *authService) RequestPasswordReset(ctx context.Context, req dto.PasswordResetRequest) (dto.PasswordResetResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return dto.PasswordResetResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Info().Str("email", maskEmailAddress(req.Email)).Msg("password reset for unknown account")
			return dto.PasswordResetResponse{Requested: true}, nil
		}
		return dto.PasswordResetResponse{}, err
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	expires := s.now().Add(PasswordResetTTL)
	user.ResetToken = &token
	user.ResetTokenExpiresAt = &expires
	if err := s.users.Update(ctx, &user); err != nil {
		return dto.PasswordResetResponse{}, err
	}
	s.logger.Info().Uint("user_id", user.ID).Msg("password reset requested")

	response := dto.PasswordResetResponse{Requested: true}
	if s.exposeReset {
		response.Token = token
		response.ExpiresAt = &expires
	}
	return response, nil
}

func (s *authService) ResetPassword(ctx context.Context, req dto.PasswordResetConfirmRequest) error {
	req.Token = strings.TrimSpace(req.Token)
	if err := s.validate.Struct(req); err != nil {
		return err
	}

	user, err := s.users.GetByResetToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	if user.ResetTokenExpiresAt == nil || !s.now().Before(*user.ResetTokenExpiresAt) {
		return ErrResetTokenInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	user.ResetToken = nil
	user.ResetTokenExpiresAt = nil
	return s.users.Update(ctx, &user)
}

func (s *authService) lookup(ctx context.Context, userID uint) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *authService) issue(user models.User) (dto.TokenResponse, error) {
	now := s.now()
	expires := now.Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     fmt.Sprintf("%d", user.ID),
		"user_id": user.ID,
		"role":    user.Role(),
		"email":   user.Email,
		"iat":     now.Unix(),
		"exp":     expires.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return dto.TokenResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return dto.TokenResponse{
		AccessToken: signed,
		TokenType:   tokenType,
		ExpiresAt:   expires,
		User:        toUserResponse(user),
	}, nil
}

func toUserResponse(user models.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role(),
		CreatedAt: user.CreatedAt,
	}
}

// maskEmailAddress keeps the first and last character of the local part for log lines.
func maskEmailAddress(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" {
		return "***"
	}
	local, domain := parts[0], parts[1]
	if len(local) <= 2 {
		local = local[:1] + "***"
	} else {
		local = local[:1] + "***" + local[len(local)-1:]
	}
	return local + "@" + domain
}
