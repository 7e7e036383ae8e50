package catfeed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/thejerf/abtime"
)

// memoryAccounts is an in-memory AccountProvider keyed by username.
type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]Account

	findErr    error
	updateErr  error
	updates    int
	resetCalls int
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{accounts: make(map[string]Account)}
}

func (m *memoryAccounts) FindByUsername(_ context.Context, username string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return Account{}, m.findErr
	}
	a, ok := m.accounts[username]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryAccounts) FindByEmail(_ context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return Account{}, m.findErr
	}
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (m *memoryAccounts) Create(_ context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.Username]; ok {
		return ErrUsernameTaken
	}
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, account.Email) {
			return ErrEmailTaken
		}
	}
	m.accounts[account.Username] = account
	return nil
}

func (m *memoryAccounts) Update(_ context.Context, previousUsername string, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.accounts[previousUsername]; !ok {
		return ErrAccountNotFound
	}
	if account.Username != previousUsername {
		if _, ok := m.accounts[account.Username]; ok {
			return ErrUsernameTaken
		}
		delete(m.accounts, previousUsername)
	}
	m.accounts[account.Username] = account
	m.updates++
	return nil
}

func (m *memoryAccounts) SetResetKey(_ context.Context, username, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	if !ok {
		return ErrAccountNotFound
	}
	a.ResetKey = key
	m.accounts[username] = a
	m.resetCalls++
	return nil
}

func (m *memoryAccounts) get(username string) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	return a, ok
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type testEngine struct {
	*Engine
	accounts *memoryAccounts
	clock    *abtime.ManualTime
	mr       *miniredis.Miniredis
	rdb      *redis.Client
}

var testEpoch = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

// newTestEngine builds an Engine on miniredis with a manual clock. mutate,
// when non-nil, adjusts the configuration before Build.
func newTestEngine(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEngine {
	t.Helper()

	mr, rdb := newTestRedis(t)
	accounts := newMemoryAccounts()
	clock := abtime.NewManualAtTime(testEpoch)

	cfg := DefaultConfig()
	cfg.PasswordReset.Enabled = true
	cfg.PasswordReset.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	if mutate != nil {
		mutate(&cfg)
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(accounts).
		WithClock(clock)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	})

	return &testEngine{Engine: engine, accounts: accounts, clock: clock, mr: mr, rdb: rdb}
}

// seedAccount stores an account whose password is plaintext.
func (te *testEngine) seedAccount(t *testing.T, username, email, plaintext string, role Role) Account {
	t.Helper()

	credential, err := te.codec.Hash(plaintext)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	account := Account{
		Username:   username,
		Email:      email,
		FirstName:  "Test",
		LastName:   "Cat",
		Credential: credential,
		Role:       role,
		CreatedAt:  testEpoch,
	}
	if err := te.accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("seed account failed: %v", err)
	}
	return account
}

// sequenceIDs returns an idSource that yields ids in order.
func sequenceIDs(ids ...string) func() (string, error) {
	var mu sync.Mutex
	next := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(ids) {
			return "", fmt.Errorf("sequence exhausted after %d ids", len(ids))
		}
		id := ids[next]
		next++
		return id, nil
	}
}
