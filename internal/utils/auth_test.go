package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("s3cret", "admin", RoleAdmin, 15)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.Exp, 5*time.Second)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "admin", sub)
	assert.Equal(t, RoleAdmin, claims["role"])

	_, err = NewAccessToken("", "admin", RoleAdmin, 15)
	assert.Error(t, err)
}

func TestCheckLogin(t *testing.T) {
	hash, err := HashPassword("clave-segura", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckLogin("admin", hash, "admin", "clave-segura"))
	assert.False(t, CheckLogin("admin", hash, "admin", "otra"))
	assert.False(t, CheckLogin("admin", hash, "root", "clave-segura"))
	assert.False(t, CheckLogin("admin", "", "admin", ""))
}
