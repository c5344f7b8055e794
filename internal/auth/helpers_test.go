package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/gatekeeper/internal/logging"
	"github.com/yourusername/gatekeeper/internal/mail"
	"github.com/yourusername/gatekeeper/internal/storage"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) messages() []mail.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mail.Message(nil), s.sent...)
}

func (s *recordingSender) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingHasher は Hash の呼び出し回数を数えます。
type countingHasher struct {
	*BcryptHasher
	mu    sync.Mutex
	calls int
}

func (h *countingHasher) Hash(password string) (string, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return h.BcryptHasher.Hash(password)
}

func (h *countingHasher) hashCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type testEnv struct {
	manager *Manager
	users   *storage.Directory
	mailer  *recordingSender
	clock   *fakeClock
	hasher  *countingHasher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:  storage.NewDirectory(),
		mailer: &recordingSender{},
		clock:  newFakeClock(),
		hasher: &countingHasher{BcryptHasher: NewBcryptHasher(bcrypt.MinCost)},
	}
	env.manager = NewManager(env.users, env.mailer, Options{
		BaseURL:  "http://localhost:3000",
		MailFrom: "noreply@example.com",
		Hasher:   env.hasher,
		Logger:   logging.Discard(),
		Now:      env.clock.Now,
	})
	return env
}

func (env *testEnv) register(t *testing.T, name, email, password string) storage.User {
	t.Helper()
	user, err := env.manager.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: password})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}
