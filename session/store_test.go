package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "cs")
	return store, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession(now time.Time) *Session {
	return &Session{
		ID:        "sid-1",
		Role:      RolePublicViewer,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(20 * time.Minute).Unix(),
	}
}

func TestCreateRejectsExistingID(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	exists, err := store.Exists(ctx, "sid-1")
	if err != nil || exists {
		t.Fatalf("expected absent before create, exists=%v err=%v", exists, err)
	}

	if err := store.Create(ctx, testSession(now), now); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := store.Create(ctx, testSession(now), now); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	exists, err = store.Exists(ctx, "sid-1")
	if err != nil || !exists {
		t.Fatalf("expected present after create, exists=%v err=%v", exists, err)
	}
}

func TestCreateSetsRedisTTLFromExpiry(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	if err := store.Create(ctx, testSession(now), now); err != nil {
		t.Fatalf("create session: %v", err)
	}

	ttl := rdb.TTL(ctx, "cs:sid-1").Val()
	if ttl <= 19*time.Minute || ttl > 20*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestGetTreatsExpiredRecordAsAbsent(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	if err := store.Create(ctx, testSession(now), now); err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Redis still holds the key; the deadline check alone must hide it.
	later := now.Add(21 * time.Minute)
	if _, err := store.Get(ctx, "sid-1", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
	if rdb.Exists(ctx, "cs:sid-1").Val() != 0 {
		t.Fatal("expected expired session to be purged on read")
	}
}

func TestReplaceVersionConflict(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	if err := store.Create(ctx, testSession(now), now); err != nil {
		t.Fatalf("create session: %v", err)
	}

	first, err := store.Get(ctx, "sid-1", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stale := first.Clone()

	first.Username = "alice"
	first.Role = RoleMember
	if err := store.Replace(ctx, first, now); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected version 1 after replace, got %d", first.Version)
	}

	stale.Username = "mallory"
	if err := store.Replace(ctx, stale, now); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, err := store.Get(ctx, "sid-1", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "alice" || got.Role != RoleMember {
		t.Fatalf("unexpected stored session %+v", got)
	}
}

func TestReplaceKeepsAbsoluteExpiry(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	sess := testSession(now)
	if err := store.Create(ctx, sess, now); err != nil {
		t.Fatalf("create session: %v", err)
	}

	extended := sess.Clone()
	extended.ExpiresAt = now.Add(24 * time.Hour).Unix()
	if err := store.Replace(ctx, extended, now.Add(5*time.Minute)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if extended.ExpiresAt != sess.ExpiresAt {
		t.Fatalf("expected expiry to stay %d, got %d", sess.ExpiresAt, extended.ExpiresAt)
	}
}

func TestMutateConcurrentWritersAllApply(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	if err := store.Create(ctx, testSession(now), now); err != nil {
		t.Fatalf("create session: %v", err)
	}

	const writers = 3
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Mutate(ctx, "sid-1", now, func(s *Session) error {
				s.FlashArg += "x"
				return nil
			})
			if err != nil && !errors.Is(err, ErrVersionConflict) {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("mutate: %v", err)
	}

	got, err := store.Get(ctx, "sid-1", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if uint64(len(got.FlashArg)) != got.Version {
		t.Fatalf("expected one write per version bump, arg=%q version=%d", got.FlashArg, got.Version)
	}
}

func TestMutateCallbackErrorAbortsWrite(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	if err := store.Create(ctx, testSession(now), now); err != nil {
		t.Fatalf("create session: %v", err)
	}

	boom := errors.New("boom")
	_, err := store.Mutate(ctx, "sid-1", now, func(s *Session) error {
		s.Username = "ignored"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	got, err := store.Get(ctx, "sid-1", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "" || got.Version != 0 {
		t.Fatalf("expected untouched session, got %+v", got)
	}
}

func TestMutateMissingSession(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()

	_, err := store.Mutate(context.Background(), "missing", time.Now(), func(*Session) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	if err := store.Create(ctx, testSession(now), now); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisUnavailableIsWrapped(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	done()

	_, err := store.Get(context.Background(), "sid-1", time.Now())
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
