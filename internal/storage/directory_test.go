package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(id, email string) User {
	return User{
		ID:           id,
		Name:         "user-" + id,
		Email:        email,
		PasswordHash: "hash-" + id,
		CreatedAt:    time.Now(),
	}
}

func TestDirectoryInsertAndFind(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Insert(newUser("1", " Alice@Example.com ")))

	byEmail, err := d.FindByEmail("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1", byEmail.ID)
	assert.Equal(t, "alice@example.com", byEmail.Email)

	byID, err := d.FindByID("1")
	require.NoError(t, err)
	assert.Equal(t, byEmail, byID)

	_, err = d.FindByEmail("bob@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.FindByID("2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectoryRejectsDuplicateEmail(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Insert(newUser("1", "a@x.com")))

	err := d.Insert(newUser("2", "A@X.com"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, 1, d.Len())
}

func TestDirectoryRejectsDuplicateID(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Insert(newUser("1", "a@x.com")))
	assert.ErrorIs(t, d.Insert(newUser("1", "b@x.com")), ErrDuplicateID)
	assert.Error(t, d.Insert(newUser("", "c@x.com")))
}

func TestDirectoryReturnsCopies(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Insert(newUser("1", "a@x.com")))

	u, err := d.FindByID("1")
	require.NoError(t, err)
	u.PasswordHash = "tampered"

	again, err := d.FindByID("1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", again.PasswordHash)
}

func TestDirectoryResetTokenLifecycle(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Insert(newUser("1", "a@x.com")))
	now := time.Now()

	_, err := d.FindByResetToken("")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.SetResetToken("1", "tok", now.Add(time.Hour)))
	u, err := d.FindByResetToken("tok")
	require.NoError(t, err)
	assert.True(t, u.ResetTokenValid(now))
	assert.False(t, u.ResetTokenValid(now.Add(time.Hour)))

	require.NoError(t, d.ClearResetToken("1"))
	_, err = d.FindByResetToken("tok")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, d.SetResetToken("missing", "tok", now), ErrNotFound)
}

func TestApplyPasswordReset(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Insert(newUser("1", "a@x.com")))
	now := time.Now()
	require.NoError(t, d.SetResetToken("1", "tok", now.Add(time.Hour)))

	u, err := d.ApplyPasswordReset("tok", "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", u.PasswordHash)
	assert.False(t, u.HasResetToken())

	_, err = d.ApplyPasswordReset("tok", "other", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyPasswordResetExpired(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Insert(newUser("1", "a@x.com")))
	expiry := time.Now()
	require.NoError(t, d.SetResetToken("1", "tok", expiry))

	_, err := d.ApplyPasswordReset("tok", "new-hash", expiry)
	assert.ErrorIs(t, err, ErrResetTokenExpired)

	u, err := d.FindByID("1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", u.PasswordHash)
}

func TestApplyPasswordResetConcurrentSingleWinner(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Insert(newUser("1", "a@x.com")))
	now := time.Now()
	require.NoError(t, d.SetResetToken("1", "tok", now.Add(time.Hour)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := d.ApplyPasswordReset("tok", fmt.Sprintf("hash-%d", i), now); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestConcurrentInsertSameEmail(t *testing.T) {
	d := NewDirectory()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = d.Insert(newUser(fmt.Sprintf("%d", i), "same@x.com"))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, d.Len())
}
