package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)
	assert.True(t, h.Verify("secret1", hash))
	assert.False(t, h.Verify("secret2", hash))
	assert.False(t, h.Verify("secret1", ""))
}

func TestBcryptHasherSalts(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	a, err := h.Hash("secret1")
	require.NoError(t, err)
	b, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBcryptHasherDefaultCost(t *testing.T) {
	h := NewBcryptHasher(0)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, PasswordCost, cost)
}

func TestBcryptHasherLongPassword(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	long := strings.Repeat("a", 80)

	hash, err := h.Hash(long)
	require.NoError(t, err)
	assert.True(t, h.Verify(long, hash))
	assert.False(t, h.Verify(strings.Repeat("a", 71), hash))
	// 72 バイトを超える部分は照合に影響しない
	assert.True(t, h.Verify(strings.Repeat("a", 72)+"b", hash))
}

func TestValidatePassword(t *testing.T) {
	assert.Equal(t, CodePasswordTooShort, ErrorCode(ValidatePassword("")))
	assert.Equal(t, CodePasswordTooShort, ErrorCode(ValidatePassword("12345")))
	assert.NoError(t, ValidatePassword("123456"))
	assert.NoError(t, ValidatePassword("パスワード六"))
}
