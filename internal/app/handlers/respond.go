package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/eshop/internal/lib/apperr"
)

// ErrorResponse — тело любого неуспешного ответа.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// MessageResponse — ответ без данных.
type MessageResponse struct {
	Message string `json:"message"`
}

var (
	ErrInvalidRequest = apperr.Validation("invalid_request", "invalid request")
	ErrOwnerMismatch  = apperr.Forbidden("owner_mismatch", "user_id does not match the authenticated user")
)

var validate = validator.New()

// decodeRequest разбирает JSON-тело и валидирует структуру тегами validate.
func decodeRequest(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return ErrInvalidRequest.Wrap(err)
	}
	return validateRequest(dst)
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return ErrInvalidRequest.Wrap(err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return apperr.Validation("validation_error", "validation error: "+strings.Join(fields, ", "))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError отвечает статусом по виду ошибки.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	writeErrorStatus(w, logger, apperr.HTTPStatus(err), err)
}

func writeErrorStatus(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	writeJSON(w, logger, status, ErrorResponse{
		Error:  apperr.MessageOf(err),
		Reason: apperr.ReasonOf(err),
	})
}
