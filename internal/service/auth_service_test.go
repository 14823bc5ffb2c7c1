package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/internal/repository"
)

func setupAuthService(t *testing.T) (*authService, *gorm.DB) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:auth_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	svc := NewAuthService(repository.NewUserRepository(db), validator.New(), "test-secret", time.Hour, true, zerolog.Nop())
	concrete := svc.(*authService)
	concrete.bcryptCost = bcrypt.MinCost
	concrete.now = func() time.Time { return time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC) }
	return concrete, db
}

func TestAuthServiceRegisterAndLogin(t *testing.T) {
	svc, _ := setupAuthService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, dto.RegisterRequest{
		Name: "Ada", Email: " Ada@Example.com ", Password: "correct-horse", ConfirmPassword: "correct-horse",
	})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", registered.User.Email)
	require.Equal(t, models.RoleUser, registered.User.Role)

	_, err = svc.Register(ctx, dto.RegisterRequest{
		Name: "Ada", Email: "ada@example.com", Password: "correct-horse", ConfirmPassword: "correct-horse",
	})
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Login(ctx, dto.LoginRequest{Email: "ada@example.com", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, dto.LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := svc.Login(ctx, dto.LoginRequest{Email: "ADA@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, "Bearer", login.TokenType)

	parsed, err := jwt.Parse(login.AccessToken, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	}, jwt.WithTimeFunc(svc.now))
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, fmt.Sprintf("%d", registered.User.ID), claims["sub"])
	require.Equal(t, models.RoleUser, claims["role"])
}

func TestAuthServiceRegisterValidation(t *testing.T) {
	svc, _ := setupAuthService(t)

	_, err := svc.Register(context.Background(), dto.RegisterRequest{
		Name: "Ada", Email: "ada@example.com", Password: "correct-horse", ConfirmPassword: "different",
	})
	require.Error(t, err)
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}

func TestAuthServicePasswordReset(t *testing.T) {
	svc, _ := setupAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, dto.RegisterRequest{
		Name: "Ada", Email: "ada@example.com", Password: "correct-horse", ConfirmPassword: "correct-horse",
	})
	require.NoError(t, err)

	unknown, err := svc.RequestPasswordReset(ctx, dto.PasswordResetRequest{Email: "ghost@example.com"})
	require.NoError(t, err)
	require.True(t, unknown.Requested)
	require.Empty(t, unknown.Token)

	requested, err := svc.RequestPasswordReset(ctx, dto.PasswordResetRequest{Email: "ada@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, requested.Token)

	require.ErrorIs(t, svc.ResetPassword(ctx, dto.PasswordResetConfirmRequest{Token: "bogus", NewPassword: "new-password-1"}), ErrResetTokenInvalid)
	require.NoError(t, svc.ResetPassword(ctx, dto.PasswordResetConfirmRequest{Token: requested.Token, NewPassword: "new-password-1"}))
	require.ErrorIs(t, svc.ResetPassword(ctx, dto.PasswordResetConfirmRequest{Token: requested.Token, NewPassword: "new-password-2"}), ErrResetTokenInvalid)

	_, err = svc.Login(ctx, dto.LoginRequest{Email: "ada@example.com", Password: "new-password-1"})
	require.NoError(t, err)

	expiring, err := svc.RequestPasswordReset(ctx, dto.PasswordResetRequest{Email: "ada@example.com"})
	require.NoError(t, err)
	later := svc.now().Add(2 * PasswordResetTTL)
	svc.now = func() time.Time { return later }
	require.ErrorIs(t, svc.ResetPassword(ctx, dto.PasswordResetConfirmRequest{Token: expiring.Token, NewPassword: "new-password-3"}), ErrResetTokenInvalid)
}

func TestMaskEmailAddress(t *testing.T) {
	require.Equal(t, "a***a@example.com", maskEmailAddress(" Anna@Example.com "))
	require.Equal(t, "b***@example.com", maskEmailAddress("bo@example.com"))
	require.Equal(t, "***", maskEmailAddress("not-an-email"))
	require.Equal(t, "***", maskEmailAddress("@example.com"))
	require.Empty(t, maskEmailAddress(""))
}
