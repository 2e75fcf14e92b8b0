package models

import "time"

const (
	ContributionStatusPending   = "pending"
	ContributionStatusSucceeded = "succeeded"
	ContributionStatusFailed    = "failed"
	ContributionStatusRefunded  = "refunded"
)

// Contribution is a single one-off payment toward a project. It is created
// PENDING when checkout is initiated and only verified provider webhooks move
// it to a terminal status.
type Contribution struct {
	ID                 string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProjectID          uint      `gorm:"not null;index" json:"project_id"`
	ContributorID      uint      `gorm:"not null;index" json:"contributor_id"`
	AmountCents        int64     `gorm:"not null" json:"amount_cents"`
	Currency           string    `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	Status             string    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ProviderCheckoutID string    `gorm:"type:varchar(191);not null;default:'';index" json:"provider_checkout_id"`
	ProviderPaymentID  string    `gorm:"type:varchar(191);not null;default:'';index" json:"provider_payment_id"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminalContributionStatus reports whether a status may no longer change,
// except for the succeeded -> refunded transition.
func IsTerminalContributionStatus(status string) bool {
	switch status {
	case ContributionStatusSucceeded, ContributionStatusFailed, ContributionStatusRefunded:
		return true
	default:
		return false
	}
}
