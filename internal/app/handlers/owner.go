package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/eshop/internal/service"
)

// OwnerRequest — поля владельца в теле запроса.
type OwnerRequest struct {
	UserID  *int64  `json:"user_id" validate:"omitempty,gt=0"`
	GuestID *string `json:"guest_id" validate:"omitempty,max=64"`
}

// resolveOwner выбирает владельца запроса с учётом токена.
// Явный user_id обязан совпадать с пользователем из токена;
// без владельца в запросе владельцем считается пользователь из токена.
func resolveOwner(ctx context.Context, userID *int64, guestID *string) (models.Owner, error) {
	tokenUser, authenticated := jwtmiddleware.FromContext(ctx)
	if authenticated {
		if userID != nil && *userID != tokenUser {
			return models.Owner{}, ErrOwnerMismatch
		}
		hasGuest := guestID != nil && strings.TrimSpace(*guestID) != ""
		if userID == nil && !hasGuest {
			return models.UserOwner(tokenUser), nil
		}
	}

	owner, err := models.OwnerFrom(userID, guestID)
	if err != nil {
		return models.Owner{}, service.ErrInvalidOwner
	}
	return owner, nil
}

// ownerFromQuery читает user_id и guest_id из строки запроса.
func ownerFromQuery(r *http.Request) (models.Owner, error) {
	q := r.URL.Query()

	var userID *int64
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.Owner{}, service.ErrInvalidOwner
		}
		userID = &id
	}
	var guestID *string
	if raw := q.Get("guest_id"); raw != "" {
		guestID = &raw
	}
	return resolveOwner(r.Context(), userID, guestID)
}
