package model

import "time"

// User is the owner record URL mappings reference through OwnerID.
// Credentials are not stored here.
type User struct {
	UserID    string    `json:"user_id" gorm:"primaryKey;size:50"`
	Username  string    `json:"username" gorm:"size:50;uniqueIndex;not null"`
	Email     string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Role      string    `json:"role" gorm:"size:20;not null;default:user"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (User) TableName() string { return "users" }
