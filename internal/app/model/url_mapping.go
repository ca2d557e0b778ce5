package model

import "time"

// URLMapping is the short token -> original URL record.
//
// ShortURL never changes after creation. ExpiresAt, when set, only moves forward.
type URLMapping struct {
	ShortURL      string     `json:"short_url" gorm:"primaryKey;size:256"`
	OriginalURL   string     `json:"original_url" gorm:"size:2048;not null;index"`
	OwnerID       string     `json:"owner_id,omitempty" gorm:"size:50;index"`
	CustomAlias   *string    `json:"custom_alias,omitempty" gorm:"size:20;uniqueIndex"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" gorm:"index"`
	TotalClicks   int64      `json:"total_clicks" gorm:"not null;default:0;index"`
	UniqueClicks  int64      `json:"unique_clicks" gorm:"not null;default:0"`
	LastClickedAt *time.Time `json:"last_clicked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (URLMapping) TableName() string { return "url_mappings" }

// Expired reports whether the mapping has an expiry that lies before now.
func (m *URLMapping) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}
