// Package idempotency makes retried mutating API requests safe: the first
// attempt under a client-supplied key executes and records its response, and
// later attempts replay that response instead of repeating side effects.
package idempotency

import (
	"time"

	"github.com/pledgekit/PledgeKit/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTTL is how long a recorded request stays replayable before it is
// eligible for garbage collection.
const DefaultTTL = 24 * time.Hour

// FailureTTL bounds how long a recorded 5xx stays replayable. The failure is
// stored like any other response, but a retry arriving after this window
// re-executes instead of replaying a transient error for the full TTL.
const FailureTTL = time.Minute

// Store is the durable key-to-request mapping behind the gate.
type Store interface {
	// InsertPlaceholder atomically records a new key with no response yet.
	// When the key already exists the stored record is returned instead, so a
	// lost insert race degrades to the existing-record path.
	InsertPlaceholder(rec *models.IdempotencyRecord) (bool, *models.IdempotencyRecord, error)
	// SaveResponse attaches the finished response to a key and moves its
	// expiry.
	SaveResponse(key string, status int, body []byte, expiresAt time.Time) error
	// DeleteExpired garbage-collects records past their TTL.
	DeleteExpired(now time.Time) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) InsertPlaceholder(rec *models.IdempotencyRecord) (bool, *models.IdempotencyRecord, error) {
	tx := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(rec)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.IdempotencyRecord
	if err := s.db.Where("`key` = ?", rec.Key).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (s *gormStore) SaveResponse(key string, status int, body []byte, expiresAt time.Time) error {
	return s.db.Model(&models.IdempotencyRecord{}).Where("`key` = ?", key).
		Updates(map[string]interface{}{
			"response_status": status,
			"response_body":   string(body),
			"expires_at":      expiresAt,
		}).Error
}

func (s *gormStore) DeleteExpired(now time.Time) (int64, error) {
	tx := s.db.Where("expires_at < ?", now).Delete(&models.IdempotencyRecord{})
	return tx.RowsAffected, tx.Error
}
