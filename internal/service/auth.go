package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linemk/eshop/internal/domain/models"
	security "github.com/linemk/eshop/internal/jwt-new"
	"github.com/linemk/eshop/internal/lib/apperr"
	"github.com/linemk/eshop/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

type SignInResult struct {
	Token string
	User  *models.User
	// Merge заполнен, если при входе передан guest_id и слияние прошло
	Merge *MergeResult
	// MergeErr — ошибка слияния; вход при этом считается успешным
	MergeErr error
}

type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password, firstName string) (*models.User, error)
	SignIn(ctx context.Context, email, password, guestID string) (*SignInResult, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

type AuthService struct {
	log       *slog.Logger
	userRepo  storage.UserStorage
	merger    MergeService
	jwtSecret string
	tokenTTL  time.Duration
}

var _ AuthServiceInterface = (*AuthService)(nil)

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, merger MergeService, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		log:       log,
		userRepo:  userRepo,
		merger:    merger,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// SignUp создаёт пользователя. Пароль хэшируется через bcrypt, который автоматически добавляет соль.
func (a *AuthService) SignUp(ctx context.Context, email, password, firstName string) (*models.User, error) {
	const op = "service.AuthService.SignUp"
	email = normalizeEmail(email)
	logger := a.log.With(slog.String("op", op), slog.String("email", email))

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to hash password: %w", op, err)
	}

	user, err := a.userRepo.CreateUser(ctx, &models.User{
		Email:     email,
		FirstName: strings.TrimSpace(firstName),
		PassHash:  passHash,
	})
	if err != nil {
		logFailure(logger, "failed to create user", err)
		return nil, fmt.Errorf("%s: %w", op, apperr.Persistence(err))
	}

	logger.Info("user registered", slog.Int64("userID", user.ID))
	return user, nil
}

// SignIn проверяет пароль и выдаёт JWT-токен.
// Если передан guestID, гостевая корзина переносится в корзину пользователя;
// ошибка переноса не прерывает вход.
func (a *AuthService) SignIn(ctx context.Context, email, password, guestID string) (*SignInResult, error) {
	const op = "service.AuthService.SignIn"
	email = normalizeEmail(email)
	logger := a.log.With(slog.String("op", op), slog.String("email", email))

	user, err := a.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("user not found")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		logger.Error("failed to get user", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, apperr.Persistence(err))
	}

	// Сравниваем введённый пароль с хэшированным паролем
	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		logger.Warn("invalid password")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := security.NewToken(user, a.jwtSecret, a.tokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	result := &SignInResult{Token: token, User: user}
	if guestID = strings.TrimSpace(guestID); guestID != "" && a.merger != nil {
		result.Merge, result.MergeErr = a.merger.MergeGuestCart(ctx, user.ID, guestID)
		if result.MergeErr != nil {
			logger.Warn("guest cart merge failed, signing in anyway", slog.Any("error", result.MergeErr))
		}
	}

	logger.Info("user logged in successfully", slog.Int64("userID", user.ID))
	return result, nil
}

func (a *AuthService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	const op = "service.AuthService.GetUser"
	user, err := a.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.Persistence(err))
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
