package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sifan077/shortener/internal/app/model"
	"gorm.io/gorm"
)

type urlMappingRepository struct {
	db *gorm.DB
}

// NewURLMappingRepository returns a GORM-backed URLMappingRepository.
func NewURLMappingRepository(db *gorm.DB) URLMappingRepository {
	return &urlMappingRepository{db: db}
}

func (r *urlMappingRepository) Create(ctx context.Context, m *model.URLMapping) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *urlMappingRepository) GetByShortURL(ctx context.Context, shortURL string) (*model.URLMapping, error) {
	return r.first(ctx, "short_url = ?", shortURL)
}

func (r *urlMappingRepository) GetByAlias(ctx context.Context, alias string) (*model.URLMapping, error) {
	return r.first(ctx, "custom_alias = ?", alias)
}

func (r *urlMappingRepository) GetByOriginalURL(ctx context.Context, originalURL string) (*model.URLMapping, error) {
	return r.first(ctx, "original_url = ?", originalURL)
}

func (r *urlMappingRepository) first(ctx context.Context, query string, arg any) (*model.URLMapping, error) {
	var m model.URLMapping
	if err := r.db.WithContext(ctx).Where(query, arg).Order("created_at ASC").First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *urlMappingRepository) List(ctx context.Context, f URLFilter) ([]model.URLMapping, error) {
	var result []model.URLMapping
	if err := r.db.WithContext(ctx).
		Scopes(urlFilterScope(f), pageScope(f.Offset, f.Limit)).
		Order("created_at ASC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *urlMappingRepository) Count(ctx context.Context, f URLFilter) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).
		Model(&model.URLMapping{}).
		Scopes(urlFilterScope(f)).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *urlMappingRepository) UpdateExpiration(ctx context.Context, shortURL string, expiresAt time.Time) (*model.URLMapping, error) {
	result := r.db.WithContext(ctx).
		Model(&model.URLMapping{}).
		Where("short_url = ?", shortURL).
		Update("expires_at", expiresAt)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetByShortURL(ctx, shortURL)
}

func (r *urlMappingRepository) Delete(ctx context.Context, shortURL string) error {
	result := r.db.WithContext(ctx).Where("short_url = ?", shortURL).Delete(&model.URLMapping{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *urlMappingRepository) ShortURLs(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).Model(&model.URLMapping{}).Pluck("short_url", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

func urlFilterScope(f URLFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.OwnerID != "" {
			db = db.Where("owner_id = ?", f.OwnerID)
		}
		if f.CreatedFrom != nil {
			db = db.Where("created_at >= ?", *f.CreatedFrom)
		}
		if f.CreatedTo != nil {
			db = db.Where("created_at <= ?", *f.CreatedTo)
		}
		return db
	}
}

func pageScope(offset, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if offset > 0 {
			db = db.Offset(offset)
		}
		if limit > 0 {
			db = db.Limit(limit)
		}
		return db
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
