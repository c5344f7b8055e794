package auth

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/gatekeeper/internal/storage"
)

func TestGenerateResetToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token, err := GenerateResetToken()
		require.NoError(t, err)
		require.Len(t, token, 40)
		_, err = hex.DecodeString(token)
		require.NoError(t, err)

		_, dup := seen[token]
		require.False(t, dup, "duplicate token %s", token)
		seen[token] = struct{}{}
	}
}

func TestResetStateOf(t *testing.T) {
	now := time.Now()

	assert.Equal(t, ResetIdle, ResetStateOf(storage.User{}, now))

	pending := storage.User{ResetToken: "tok", ResetTokenExpiry: now.Add(time.Minute)}
	assert.Equal(t, ResetPending, ResetStateOf(pending, now))

	atExpiry := storage.User{ResetToken: "tok", ResetTokenExpiry: now}
	assert.Equal(t, ResetExpired, ResetStateOf(atExpiry, now))

	assert.Equal(t, "pending", ResetPending.String())
	assert.Equal(t, "expired", ResetExpired.String())
	assert.Equal(t, "idle", ResetIdle.String())
}
