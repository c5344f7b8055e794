package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/gatekeeper/internal/mail"
)

const (
	jobKeyPrefix     = "mailjob:"
	messageKeyPrefix = "mailjob-message:"
	// maxMessageTTL はメール本文の保持上限です。リセットリンクの有効期限に合わせます。
	maxMessageTTL = time.Hour
	maxUpdateRetries = 5
)

// ErrRecordNotFound は配送レコードが存在しない場合に返されます。
var ErrRecordNotFound = errors.New("mail job not found")

// Store は配送ジョブの状態を Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get は配送ジョブ情報を取得します。存在しない場合は (nil, nil) を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert は配送ジョブ情報を保存します（存在しない場合は作成）。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err()
}

// MarkSending は配送開始を記録し、試行回数を加算します。
func (s *Store) MarkSending(ctx context.Context, jobID string) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		record.Status = StatusSending
		record.Attempts++
	})
}

// MarkSent は配送完了を記録します。
func (s *Store) MarkSent(ctx context.Context, jobID string) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		record.Status = StatusSent
		record.Error = nil
	})
}

// MarkFailed は配送失敗を記録します。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		record.Status = StatusFailed
		if errInfo != nil {
			record.Error = errInfo
		}
	})
}

// SaveMessage は配送するメール本文を保存します。TTL は最長 maxMessageTTL です。
func (s *Store) SaveMessage(ctx context.Context, jobID string, msg mail.Message) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	payload, err := json.Marshal(&msg)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, messageKey(jobID), payload, s.messageTTL()).Err()
}

// LoadMessage はメール本文を取得します。期限切れ・未保存の場合は (nil, nil) を返します。
func (s *Store) LoadMessage(ctx context.Context, jobID string) (*mail.Message, error) {
	data, err := s.rdb.Get(ctx, messageKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var msg mail.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage は送信済みのメール本文を削除します。
func (s *Store) DeleteMessage(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, messageKey(jobID)).Err()
}

func (s *Store) updatePartial(ctx context.Context, jobID string, mutate func(*Record)) error {
	key := jobKey(jobID)
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := s.rdb.Watch(ctx, s.updateTx(ctx, key, jobID, mutate), key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update mail job %s: too many concurrent updates", jobID)
}

func (s *Store) updateTx(ctx context.Context, key, jobID string, mutate func(*Record)) func(*redis.Tx) error {
	return func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", ErrRecordNotFound, jobID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		mutate(&record)
		record.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}
}

func (s *Store) messageTTL() time.Duration {
	if s.ttl <= 0 || s.ttl > maxMessageTTL {
		return maxMessageTTL
	}
	return s.ttl
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func messageKey(id string) string {
	return messageKeyPrefix + id
}
