package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resetRecordVersionV1 = 1
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetSubjectMismatch  = errors.New("reset record subject mismatch")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// PasswordResetRecord is the server half of a reset link. The link itself
// carries the reset ID and username; the record proves the link is still
// unused.
type PasswordResetRecord struct {
	Username  string
	IssuedAt  int64
	ExpiresAt int64
}

type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "cpr"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PasswordResetStore) key(resetID string) string {
	return s.prefix + ":" + resetID
}

func (s *PasswordResetStore) Save(ctx context.Context, resetID string, record *PasswordResetRecord, now time.Time) error {
	ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
	if ttl <= 0 {
		return ErrResetNotFound
	}

	encoded, err := encodePasswordResetRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(resetID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	return nil
}

// Consume deletes the record for resetID if it is live and belongs to
// username. A record presented for the wrong subject is burned as well.
func (s *PasswordResetStore) Consume(ctx context.Context, resetID, username string, now time.Time) (*PasswordResetRecord, error) {
	const maxRetries = 4
	key := s.key(resetID)

	for i := 0; i < maxRetries; i++ {
		var matched *PasswordResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrResetNotFound
				}
				return err
			}

			record, decodeErr := decodePasswordResetRecord(data)

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			switch {
			case decodeErr != nil:
				return ErrResetNotFound
			case now.Unix() >= record.ExpiresAt:
				return ErrResetNotFound
			case record.Username != username:
				return ErrResetSubjectMismatch
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrResetNotFound), errors.Is(err, ErrResetSubjectMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrResetNotFound
}

// Get returns the live record without consuming it.
func (s *PasswordResetStore) Get(ctx context.Context, resetID string, now time.Time) (*PasswordResetRecord, error) {
	data, err := s.redis.Get(ctx, s.key(resetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	record, err := decodePasswordResetRecord(data)
	if err != nil {
		return nil, ErrResetNotFound
	}
	if now.Unix() >= record.ExpiresAt {
		return nil, ErrResetNotFound
	}

	return record, nil
}

func encodePasswordResetRecord(record *PasswordResetRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.Username) > 65535 {
		return nil, errors.New("reset record username too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Username))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Username)

	return buf.Bytes(), nil
}

func decodePasswordResetRecord(data []byte) (*PasswordResetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}

	record := &PasswordResetRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var usernameLen uint16
	if err := binary.Read(reader, binary.BigEndian, &usernameLen); err != nil {
		return nil, err
	}

	username := make([]byte, usernameLen)
	if _, err := io.ReadFull(reader, username); err != nil {
		return nil, err
	}
	record.Username = string(username)

	return record, nil
}
