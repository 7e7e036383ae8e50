package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned for a missing, expired, or undecodable session.
var ErrNotFound = errors.New("session not found")

// ErrExists is returned by Create when the identifier is already taken.
var ErrExists = errors.New("session id already exists")

// ErrVersionConflict is returned when a concurrent writer won the race.
var ErrVersionConflict = errors.New("session version conflict")

// ErrExpired is returned by Create for a record whose deadline already passed.
var ErrExpired = errors.New("session already expired")

const mutateMaxRetries = 4

// Store is a Redis-backed session store with absolute expiry and optimistic
// read-modify-write.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "cs"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func remainingTTL(sess *Session, now time.Time) time.Duration {
	return time.Unix(sess.ExpiresAt, 0).Sub(now)
}

// Create persists a new session only if no record holds its ID.
//
//	Performance: 1 Redis SET NX.
func (s *Store) Create(ctx context.Context, sess *Session, now time.Time) error {
	ttl := remainingTTL(sess, now)
	if ttl <= 0 {
		return ErrExpired
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(sess.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Exists reports whether a record is stored under sessionID, expired or not.
func (s *Store) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Get retrieves a session. A record whose ExpiresAt has passed at now is
// deleted and reported as ErrNotFound even if Redis has not purged it yet.
//
//	Performance: 1 Redis GET (plus DEL for an expired record).
func (s *Store) Get(ctx context.Context, sessionID string, now time.Time) (*Session, error) {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, ErrNotFound
	}
	sess.ID = sessionID

	if sess.Expired(now) {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil, ErrNotFound
	}

	return sess, nil
}

// Replace overwrites the stored record with sess when sess.Version still
// matches. CreatedAt and ExpiresAt are kept from the stored record. On success
// sess.Version is advanced to the persisted value.
func (s *Store) Replace(ctx context.Context, sess *Session, now time.Time) error {
	key := s.key(sess.ID)

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.readTx(ctx, tx, sess.ID, now)
		if err != nil {
			return err
		}
		if current.Version != sess.Version {
			return ErrVersionConflict
		}

		next := sess.Clone()
		next.CreatedAt = current.CreatedAt
		next.ExpiresAt = current.ExpiresAt
		next.Version = current.Version + 1

		if err := s.writeTx(ctx, tx, next, now); err != nil {
			return err
		}
		*sess = *next
		return nil
	}, key)

	return s.txError(err)
}

// Mutate applies fn to the current record and persists the result atomically.
// A lost race is retried; fn may therefore run more than once and must only
// touch the record it is given. An error from fn aborts without writing.
func (s *Store) Mutate(ctx context.Context, sessionID string, now time.Time, fn func(*Session) error) (*Session, error) {
	key := s.key(sessionID)

	for i := 0; i < mutateMaxRetries; i++ {
		var updated *Session

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			current, err := s.readTx(ctx, tx, sessionID, now)
			if err != nil {
				return err
			}

			next := current.Clone()
			if err := fn(next); err != nil {
				return passthroughError{err: err}
			}
			next.ID = sessionID
			next.CreatedAt = current.CreatedAt
			next.ExpiresAt = current.ExpiresAt
			next.Version = current.Version + 1

			if err := s.writeTx(ctx, tx, next, now); err != nil {
				return err
			}
			updated = next
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, s.txError(err)
		}
		return updated, nil
	}

	return nil, ErrVersionConflict
}

// Delete removes a session. Deleting a missing session is not an error.
//
//	Performance: 1 Redis DEL.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping measures one Redis round-trip.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) readTx(ctx context.Context, tx *redis.Tx, sessionID string, now time.Time) (*Session, error) {
	data, err := tx.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	current, err := Decode(data)
	if err != nil {
		return nil, ErrNotFound
	}
	current.ID = sessionID

	if current.Expired(now) {
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.key(sessionID))
			return nil
		})
		if err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	return current, nil
}

func (s *Store) writeTx(ctx context.Context, tx *redis.Tx, next *Session, now time.Time) error {
	ttl := remainingTTL(next, now)
	if ttl <= 0 {
		return ErrNotFound
	}

	data, err := Encode(next)
	if err != nil {
		return passthroughError{err: err}
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(next.ID), data, ttl)
		return nil
	})
	return err
}

func (s *Store) txError(err error) error {
	var pass passthroughError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &pass):
		return pass.err
	case errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionConflict):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}

// passthroughError marks errors raised inside a WATCH callback that did not
// come from Redis, so txError returns them unchanged.
type passthroughError struct {
	err error
}

func (p passthroughError) Error() string { return p.err.Error() }

func (p passthroughError) Unwrap() error { return p.err }
