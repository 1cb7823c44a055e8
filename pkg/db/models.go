// pkg/db/models.go
package db

import (
	"time"

	"gorm.io/datatypes"
)

type User struct {
	ID            uint    `gorm:"primaryKey;autoIncrement:false"`
	Username      string  `gorm:"not null;uniqueIndex"`
	PhoneNumber   string  `gorm:"not null;index"`
	Gender        string  `gorm:"not null"`
	Age           int     `gorm:"not null"`
	Weight        float64 `gorm:"not null"`
	DailyTarget   float64 `gorm:"not null"`
	WaterIntake   float64 `gorm:"not null;default:0"`
	RemindersSent int     `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReplyLog keeps an audit trail of processed reminder replies.
type ReplyLog struct {
	ID         uint           `gorm:"primaryKey"`
	Username   string         `gorm:"not null;index"`
	Response   string         `gorm:"not null"`
	Share      float64        `gorm:"not null;default:0"`
	Raw        datatypes.JSON `gorm:"not null"`
	ReceivedAt time.Time      `gorm:"not null;index"`
	CreatedAt  time.Time
}
