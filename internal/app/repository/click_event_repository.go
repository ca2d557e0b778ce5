package repository

import (
	"context"

	"github.com/sifan077/shortener/internal/app/model"
	"gorm.io/gorm"
)

type clickEventRepository struct {
	db *gorm.DB
}

// NewClickEventRepository returns a GORM-backed ClickEventRepository.
func NewClickEventRepository(db *gorm.DB) ClickEventRepository {
	return &clickEventRepository{db: db}
}

func (r *clickEventRepository) Record(ctx context.Context, event *model.ClickEvent) (*model.URLMapping, error) {
	var mapping model.URLMapping
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unique := false
		if event.UserID != "" {
			var seen int64
			if err := tx.Model(&model.ClickEvent{}).
				Where("short_url = ? AND user_id = ?", event.ShortURL, event.UserID).
				Count(&seen).Error; err != nil {
				return err
			}
			unique = seen == 0
		}

		if err := tx.Create(event).Error; err != nil {
			return translate(err)
		}

		updates := map[string]any{
			"total_clicks":    gorm.Expr("total_clicks + ?", 1),
			"last_clicked_at": event.Timestamp,
		}
		if unique {
			updates["unique_clicks"] = gorm.Expr("unique_clicks + ?", 1)
		}
		result := tx.Model(&model.URLMapping{}).Where("short_url = ?", event.ShortURL).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		return translate(tx.Where("short_url = ?", event.ShortURL).First(&mapping).Error)
	})
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *clickEventRepository) List(ctx context.Context, f ClickFilter) ([]model.ClickEvent, error) {
	var events []model.ClickEvent
	if err := r.db.WithContext(ctx).
		Scopes(clickFilterScope(f)).
		Order("timestamp ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func clickFilterScope(f ClickFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.ShortURL != "" {
			db = db.Where("short_url = ?", f.ShortURL)
		}
		if f.From != nil {
			db = db.Where("timestamp >= ?", *f.From)
		}
		if f.To != nil {
			db = db.Where("timestamp <= ?", *f.To)
		}
		return db
	}
}
