package security_test

import (
	"testing"
	"time"

	"github.com/linemk/eshop/internal/domain/models"
	security "github.com/linemk/eshop/internal/jwt-new"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken_ParseUserID(t *testing.T) {
	user := &models.User{ID: 42, Email: "ana@example.com"}

	token, err := security.NewToken(user, "testsecret", time.Hour)
	require.NoError(t, err)

	id, err := security.ParseUserID(token, "testsecret")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = security.ParseUserID(token, "othersecret")
	assert.ErrorIs(t, err, security.ErrInvalidToken)
}

func TestNewToken_EmptySecret(t *testing.T) {
	_, err := security.NewToken(&models.User{ID: 1}, "", time.Hour)
	assert.ErrorIs(t, err, security.ErrEmptySecret)
}

func TestParseUserID_Expired(t *testing.T) {
	token, err := security.NewToken(&models.User{ID: 1}, "testsecret", -time.Minute)
	require.NoError(t, err)

	_, err = security.ParseUserID(token, "testsecret")
	assert.ErrorIs(t, err, security.ErrInvalidToken)
}
