package model

import "time"

// RateLimitWindow counts requests of one identifier against one endpoint
// inside [WindowStart, WindowEnd).
type RateLimitWindow struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Identifier   string    `json:"identifier" gorm:"size:255;not null;index"`
	Endpoint     string    `json:"endpoint" gorm:"size:100;not null;index"`
	RequestCount int       `json:"request_count" gorm:"not null;default:1"`
	WindowStart  time.Time `json:"window_start" gorm:"not null;index:idx_rate_limits_window"`
	WindowEnd    time.Time `json:"window_end" gorm:"not null;index:idx_rate_limits_window"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (RateLimitWindow) TableName() string { return "rate_limits" }

// Contains reports whether t falls inside the window.
func (w *RateLimitWindow) Contains(t time.Time) bool {
	return !t.Before(w.WindowStart) && t.Before(w.WindowEnd)
}
