package models

import "time"

// IdempotencyRecord binds a client-supplied Idempotency-Key to the endpoint
// and request-body digest it was first used with, plus the recorded response
// once the original attempt finished. ResponseStatus stays null while the
// original attempt is still in flight.
type IdempotencyRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Key            string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"key"`
	Endpoint       string    `gorm:"type:varchar(191);not null" json:"endpoint"`
	RequestHash    string    `gorm:"type:varchar(64);not null" json:"request_hash"`
	ResponseStatus *int      `gorm:"default:null" json:"response_status,omitempty"`
	ResponseBody   string    `gorm:"type:longtext" json:"response_body"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt      time.Time `gorm:"not null;index" json:"expires_at"`
}
