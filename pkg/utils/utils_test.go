package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher([]byte(secret))
	require.NoError(t, err)

	sealed, err := c.Encrypt("EAAB-access-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "EAAB")

	again, err := c.Encrypt("EAAB-access-token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce is random")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "EAAB-access-token", plain)
}

func TestCipherEmptyAndTampered(t *testing.T) {
	c, err := NewCipher([]byte(secret))
	require.NoError(t, err)

	sealed, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	_, err = c.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	other, err := NewCipher([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)
	sealed, err = other.Encrypt("token")
	require.NoError(t, err)
	_, err = c.Decrypt(sealed)
	assert.Error(t, err)

	_, err = NewCipher([]byte("short"))
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	signed, err := GenerateToken(secret, "user-1", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(secret, signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	_, err = ValidateToken("another-secret", signed)
	assert.Error(t, err)

	expired, err := GenerateToken(secret, "user-1", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(secret, expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
