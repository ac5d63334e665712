package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillip/farewell-fund-go/models"
)

func TestTokenRoundTrip(t *testing.T) {
	roles := map[string]models.Role{"ev-1": models.RoleAdmin, "ev-2": models.RoleStudent}
	tok, err := GenerateToken("s3cret", "u-1", "u1@example.com", roles, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken("s3cret", tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "u1@example.com", claims.Email)
	assert.Equal(t, roles, claims.Roles())
}

func TestParseToken_Rejects(t *testing.T) {
	good, err := GenerateToken("s3cret", "u-1", "", nil, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken("other", good)
	assert.Error(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = ParseToken("s3cret", expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = ParseToken("s3cret", noUser)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)

	_, err = ParseToken("s3cret", "not-a-token")
	assert.Error(t, err)

	_, err = GenerateToken("", "u-1", "", nil, time.Hour)
	assert.Error(t, err)
}

func TestClaimsRoles_DropsUnknown(t *testing.T) {
	c := &Claims{EventRoles: map[string]string{"ev-1": "Owner", "ev-2": "superuser", "": "admin"}}
	assert.Equal(t, map[string]models.Role{"ev-1": models.RoleOwner}, c.Roles())

	assert.Nil(t, (&Claims{}).Roles())
}

func TestGenerateETag(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := GenerateETag("c-1", at)

	assert.Equal(t, a, GenerateETag("c-1", at))
	assert.NotEqual(t, a, GenerateETag("c-1", at.Add(time.Nanosecond)))
	assert.NotEqual(t, a, GenerateETag("c-2", at))
	assert.Regexp(t, `^W/"[0-9a-f]{40}"$`, a)
}
