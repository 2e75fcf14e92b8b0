package models

import "time"

// Project is the campaign record. The reconciliation core only reads the
// owner linkage for broadcast scoping and maintains the raised counters;
// everything else belongs to the campaign CRUD handlers.
type Project struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerID     uint      `gorm:"not null;index" json:"owner_id"`
	Title       string    `gorm:"type:varchar(191);not null" json:"title"`
	GoalCents   int64     `gorm:"not null;default:0" json:"goal_cents"`
	RaisedCents int64     `gorm:"not null;default:0" json:"raised_cents"`
	BackerCount int64     `gorm:"not null;default:0" json:"backer_count"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
