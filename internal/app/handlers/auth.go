package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/eshop/internal/service"
)

// SignUpRequest представляет структуру запроса на регистрацию с тегами валидации
type SignUpRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
}

// SignInRequest — вход; guest_id запускает слияние гостевой корзины.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
	GuestID  string `json:"guest_id" validate:"omitempty,max=64"`
}

// SignInResponse представляет структуру ответа с JWT-токеном
type SignInResponse struct {
	Message     string       `json:"message"`
	AccessToken string       `json:"access_token"`
	User        *models.User `json:"user"`
	CartMessage string       `json:"cart_message,omitempty"`
	CartError   string       `json:"cart_error,omitempty"`
}

type UserResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

// SignUpHandler – HTTP-обработчик регистрации
func SignUpHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.SignUpHandler"
		logger := log.With(slog.String("op", op))

		var req SignUpRequest
		if err := decodeRequest(r, &req); err != nil {
			logger.Warn("invalid request", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		user, err := authService.SignUp(r.Context(), req.Email, req.Password, req.FirstName)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, UserResponse{Message: "User successfully registered", User: user})
	}
}

// SignInHandler – HTTP-обработчик для аутентификации, принимает логгер и экземпляр AuthService
func SignInHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.SignInHandler"
		logger := log.With(slog.String("op", op))

		var req SignInRequest
		if err := decodeRequest(r, &req); err != nil {
			logger.Warn("invalid request", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		// Вызов бизнес-логики для аутентификации
		res, err := authService.SignIn(r.Context(), req.Email, req.Password, req.GuestID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		resp := SignInResponse{
			Message:     "User successfully signed in",
			AccessToken: res.Token,
			User:        res.User,
		}
		switch {
		case res.MergeErr != nil:
			// подробности сбоя уже в логе сервиса
			resp.CartError = "Guest cart could not be merged"
		case res.Merge != nil:
			resp.CartMessage = res.Merge.Message()
		}
		writeJSON(w, logger, http.StatusOK, resp)
	}
}

// MeHandler возвращает пользователя из токена (GET /auth/me).
func MeHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.MeHandler"
		logger := log.With(slog.String("op", op))

		// Извлекаем userID из контекста (установленный JWT middleware)
		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			writeError(w, logger, service.ErrInvalidCredentials)
			return
		}

		user, err := authService.GetUser(r.Context(), userID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, UserResponse{Message: "User successfully retrieved", User: user})
	}
}
