package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"intake/internal/identity/models"
	id "intake/pkg/domain"
	"intake/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix = "intake:session:"
	// maxExecuteRetries bounds optimistic retries when a WATCHed session
	// changes between read and write.
	maxExecuteRetries = 3
)

// RedisStore keeps sessions as JSON values whose TTL matches ExpiresAt.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String()
}

// Create writes a new session. An existing key is sentinel.ErrAlreadyUsed.
func (s *RedisStore) Create(ctx context.Context, sess *models.Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, sessionKey(sess.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(raw)
}

// Execute runs validate and mutate against the stored session inside a
// WATCH/MULTI transaction, so concurrent challenge attempts cannot both read
// the same attempt counter. The key's TTL is preserved.
func (s *RedisStore) Execute(ctx context.Context, sessionID id.SessionID, validate func(*models.Session) error, mutate func(*models.Session)) (*models.Session, error) {
	key := sessionKey(sessionID)
	var result *models.Session

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		sess, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if err := validate(sess); err != nil {
			return err
		}
		mutate(sess)
		sess.ID = sessionID
		data, err := encodeSession(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result = sess
		return nil
	}

	for range maxExecuteRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("update session %s: %w", sessionID, sentinel.ErrConflict)
}

func (s *RedisStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// sessionRecord is the stored JSON layout.
type sessionRecord struct {
	ID            string           `json:"id"`
	Token         string           `json:"token,omitempty"`
	RecordID      string           `json:"record_id,omitempty"`
	VerifiedEmail string           `json:"verified_email,omitempty"`
	Challenge     *challengeRecord `json:"challenge,omitempty"`
	ReadOnly      bool             `json:"read_only"`
	CreatedAt     int64            `json:"created_at"`
	ExpiresAt     int64            `json:"expires_at"`
}

type challengeRecord struct {
	Email     string `json:"email"`
	CodeHash  string `json:"code_hash"`
	ExpiresAt int64  `json:"expires_at"`
	Attempts  int    `json:"attempts"`
}

func encodeSession(sess *models.Session) ([]byte, error) {
	rec := sessionRecord{
		ID:            sess.ID.String(),
		Token:         sess.Token.String(),
		VerifiedEmail: sess.VerifiedEmail,
		ReadOnly:      sess.ReadOnly,
		CreatedAt:     sess.CreatedAt.UnixNano(),
		ExpiresAt:     sess.ExpiresAt.UnixNano(),
	}
	if sess.RecordID != nil {
		rec.RecordID = sess.RecordID.String()
	}
	if ch := sess.Challenge; ch != nil {
		rec.Challenge = &challengeRecord{
			Email:     ch.Email,
			CodeHash:  ch.CodeHash,
			ExpiresAt: ch.ExpiresAt.UnixNano(),
			Attempts:  ch.Attempts,
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

func decodeSession(raw []byte) (*models.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sessionUUID, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("decode session id: %w", err)
	}
	sess := &models.Session{
		ID:            id.SessionID(sessionUUID),
		Token:         id.RetrievalToken(rec.Token),
		VerifiedEmail: rec.VerifiedEmail,
		ReadOnly:      rec.ReadOnly,
		CreatedAt:     time.Unix(0, rec.CreatedAt).UTC(),
		ExpiresAt:     time.Unix(0, rec.ExpiresAt).UTC(),
	}
	if rec.RecordID != "" {
		recordUUID, err := uuid.Parse(rec.RecordID)
		if err != nil {
			return nil, fmt.Errorf("decode record id: %w", err)
		}
		rid := id.RecordID(recordUUID)
		sess.RecordID = &rid
	}
	if ch := rec.Challenge; ch != nil {
		sess.Challenge = &models.Challenge{
			Email:     ch.Email,
			CodeHash:  ch.CodeHash,
			ExpiresAt: time.Unix(0, ch.ExpiresAt).UTC(),
			Attempts:  ch.Attempts,
		}
	}
	return sess, nil
}
