package models

import "time"

const (
	SubscriptionIntervalMonth = "month"
	SubscriptionIntervalYear  = "year"
)

const (
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusActive     = "active"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
)

// Subscription mirrors a recurring pledge at the payment provider. One row
// per (project, subscriber); re-subscribing reuses the existing row instead
// of creating a duplicate.
//
// ProviderSubscriptionID stays empty until the provider assigns one, so it
// must not carry a unique key: MySQL resolves ON DUPLICATE KEY UPDATE against
// any unique index, and a second empty provider id would collide with an
// unrelated subscriber's row. (project_id, subscriber_id) is the table's only
// unique key besides the primary key.
type Subscription struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	ProjectID              uint      `gorm:"not null;index:ux_subscriptions_project_subscriber,unique,priority:1" json:"project_id"`
	SubscriberID           uint      `gorm:"not null;index:ux_subscriptions_project_subscriber,unique,priority:2" json:"subscriber_id"`
	PriceCents             int64     `gorm:"not null" json:"price_cents"`
	Interval               string    `gorm:"type:varchar(8);not null;default:'month'" json:"interval"`
	Status                 string    `gorm:"type:varchar(16);not null;default:'incomplete';index" json:"status"`
	ProviderSubscriptionID string    `gorm:"type:varchar(191);not null;default:'';index" json:"provider_subscription_id"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
