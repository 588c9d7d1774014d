package store

import (
	"time"

	"gorm.io/datatypes"
)

// UserModel is the persisted form of domain.User.
type UserModel struct {
	ID             string `gorm:"primaryKey"`
	Email          string `gorm:"not null;index"`
	Verified       bool   `gorm:"column:g_auth_verify;not null;default:false"`
	Token          string `gorm:"not null;uniqueIndex"`
	GoogleID       string `gorm:"index"`
	Name           string
	ProviderClaims datatypes.JSONMap `gorm:"type:jsonb"`
	LastLogin      *time.Time
	CreatedAt      time.Time `gorm:"column:date_created;not null"`
}

func (UserModel) TableName() string { return "users" }
