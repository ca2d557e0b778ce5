package model

import "time"

// ClickEvent represents a click event on a short URL. Events are append-only.
type ClickEvent struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	ShortURL  string    `json:"short_url" gorm:"size:256;not null;index"`
	UserID    string    `json:"user_id,omitempty" gorm:"size:50;index"`
	IPAddress string    `json:"ip_address,omitempty" gorm:"size:45;index"`
	UserAgent string    `json:"user_agent,omitempty" gorm:"type:text"`
	Referrer  string    `json:"referrer,omitempty" gorm:"size:2048"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
}

func (ClickEvent) TableName() string { return "click_events" }

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickConsumerName   = "click-tracker"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
