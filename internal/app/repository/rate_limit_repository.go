package repository

import (
	"context"
	"time"

	"github.com/sifan077/shortener/internal/app/model"
	"gorm.io/gorm"
)

type rateLimitRepository struct {
	db *gorm.DB
}

// NewRateLimitRepository returns a GORM-backed RateLimitRepository.
func NewRateLimitRepository(db *gorm.DB) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

func (r *rateLimitRepository) FindActive(ctx context.Context, identifier, endpoint string, now time.Time) (*model.RateLimitWindow, error) {
	var w model.RateLimitWindow
	if err := r.db.WithContext(ctx).
		Where("identifier = ? AND endpoint = ?", identifier, endpoint).
		Where("window_start <= ? AND window_end > ?", now, now).
		Order("window_start DESC").
		First(&w).Error; err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (r *rateLimitRepository) Create(ctx context.Context, w *model.RateLimitWindow) error {
	return translate(r.db.WithContext(ctx).Create(w).Error)
}

func (r *rateLimitRepository) Increment(ctx context.Context, w *model.RateLimitWindow) error {
	result := r.db.WithContext(ctx).
		Model(&model.RateLimitWindow{}).
		Where("id = ?", w.ID).
		Update("request_count", gorm.Expr("request_count + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	w.RequestCount++
	return nil
}

func (r *rateLimitRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("window_end <= ?", now).Delete(&model.RateLimitWindow{})
	return result.RowsAffected, result.Error
}

func (r *rateLimitRepository) Delete(ctx context.Context, identifier, endpoint string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("identifier = ? AND endpoint = ?", identifier, endpoint).
		Delete(&model.RateLimitWindow{})
	return result.RowsAffected, result.Error
}
