// Package apperr описывает таксономию ошибок приложения.
// Каждая ошибка несёт вид (Kind), по которому выбирается HTTP-статус,
// и стабильную строку Reason, на которую могут опираться клиенты.
package apperr

import (
	"errors"
	"net/http"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindUnauthorized
	KindExternal
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindExternal:
		return "external_service"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error — ошибка приложения со стабильной причиной.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	// Retry помечает конфликты, которые имеет смысл повторить (гонка транзакций)
	Retry bool
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по виду и причине, чтобы errors.Is работал
// и для копий сентинелов, созданных через Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// Wrap возвращает копию ошибки с причиной err внутри.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

func Validation(reason, message string) *Error {
	return New(KindValidation, reason, message)
}

func NotFound(reason, message string) *Error {
	return New(KindNotFound, reason, message)
}

func Conflict(reason, message string) *Error {
	return New(KindConflict, reason, message)
}

func Forbidden(reason, message string) *Error {
	return New(KindForbidden, reason, message)
}

func Unauthorized(reason, message string) *Error {
	return New(KindUnauthorized, reason, message)
}

// External — сбой внешнего сервиса, всегда допускает повтор.
func External(reason string, err error) *Error {
	return &Error{Kind: KindExternal, Reason: reason, Message: "external service failed", Retry: true, Err: err}
}

// Persistence оборачивает сбой хранилища. Уже классифицированные ошибки не трогает.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Kind: KindPersistence, Reason: "persistence_failed", Message: "storage operation failed", Err: err}
}

// KindOf возвращает вид первой ошибки приложения в цепочке.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// ReasonOf возвращает стабильную причину или "internal_error".
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Reason != "" {
		return appErr.Reason
	}
	return "internal_error"
}

// MessageOf возвращает текст для клиента без деталей нижних слоёв.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindPersistence {
		return appErr.Message
	}
	return "internal server error"
}

func Retryable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Retry
	}
	return false
}

// HTTPStatus сопоставляет ошибку HTTP-статусу.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
