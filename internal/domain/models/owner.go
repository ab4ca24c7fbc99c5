package models

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// OwnerKind — вид владельца корзины или заказа.
type OwnerKind uint8

const (
	ownerNone OwnerKind = iota
	OwnerUser
	OwnerGuest
)

var ErrInvalidOwner = errors.New("exactly one of user_id or guest_id must be provided")

// MaxGuestIDLength совпадает с длиной колонок guest_id
const MaxGuestIDLength = 64

// Owner — владелец корзины или заказа: либо пользователь, либо гость, но не оба сразу.
// Нулевое значение невалидно.
type Owner struct {
	kind    OwnerKind
	userID  int64
	guestID string
}

func UserOwner(id int64) Owner {
	return Owner{kind: OwnerUser, userID: id}
}

func GuestOwner(id string) Owner {
	return Owner{kind: OwnerGuest, guestID: id}
}

// OwnerFrom собирает владельца из пары необязательных идентификаторов запроса.
func OwnerFrom(userID *int64, guestID *string) (Owner, error) {
	hasGuest := guestID != nil && strings.TrimSpace(*guestID) != ""
	switch {
	case userID != nil && hasGuest:
		return Owner{}, ErrInvalidOwner
	case userID != nil:
		if *userID <= 0 {
			return Owner{}, ErrInvalidOwner
		}
		return UserOwner(*userID), nil
	case hasGuest:
		id := strings.TrimSpace(*guestID)
		if len(id) > MaxGuestIDLength {
			return Owner{}, ErrInvalidOwner
		}
		return GuestOwner(id), nil
	default:
		return Owner{}, ErrInvalidOwner
	}
}

// OwnerFromColumns восстанавливает владельца из колонок user_id / guest_id.
func OwnerFromColumns(userID sql.NullInt64, guestID sql.NullString) (Owner, error) {
	switch {
	case userID.Valid && guestID.Valid:
		return Owner{}, ErrInvalidOwner
	case userID.Valid:
		return UserOwner(userID.Int64), nil
	case guestID.Valid:
		return GuestOwner(guestID.String), nil
	default:
		return Owner{}, ErrInvalidOwner
	}
}

func (o Owner) Kind() OwnerKind { return o.kind }

func (o Owner) Valid() bool { return o.kind == OwnerUser || o.kind == OwnerGuest }

func (o Owner) UserID() (int64, bool) {
	return o.userID, o.kind == OwnerUser
}

func (o Owner) GuestID() (string, bool) {
	return o.guestID, o.kind == OwnerGuest
}

// Columns возвращает значения для колонок user_id и guest_id.
func (o Owner) Columns() (sql.NullInt64, sql.NullString) {
	switch o.kind {
	case OwnerUser:
		return sql.NullInt64{Int64: o.userID, Valid: true}, sql.NullString{}
	case OwnerGuest:
		return sql.NullInt64{}, sql.NullString{String: o.guestID, Valid: true}
	default:
		return sql.NullInt64{}, sql.NullString{}
	}
}

// UserIDPtr и GuestIDPtr нужны для JSON-ответов.
func (o Owner) UserIDPtr() *int64 {
	if o.kind != OwnerUser {
		return nil
	}
	id := o.userID
	return &id
}

func (o Owner) GuestIDPtr() *string {
	if o.kind != OwnerGuest {
		return nil
	}
	id := o.guestID
	return &id
}

func (o Owner) String() string {
	switch o.kind {
	case OwnerUser:
		return fmt.Sprintf("user:%d", o.userID)
	case OwnerGuest:
		return "guest:" + o.guestID
	default:
		return "none"
	}
}
