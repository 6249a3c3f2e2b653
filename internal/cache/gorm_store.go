package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/deaconkarim/deacon-insights/internal/models"
)

// GormStore keeps entries in the cache_entries table
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a database-backed store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry models.CacheEntry
	err := g.db.WithContext(ctx).Where("cache_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return []byte(entry.Data), true, nil
}

func (g *GormStore) Set(ctx context.Context, key string, value []byte) error {
	entry := models.CacheEntry{
		CacheKey: key,
		Data:     datatypes.JSON(value),
	}

	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		if isDiskFull(err) {
			return fmt.Errorf("%w: %v", ErrStoreFull, err)
		}
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (g *GormStore) Delete(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&models.CacheEntry{}).Error
}

// Keys matches with substr rather than LIKE so '_' and '%' in the prefix stay literal
func (g *GormStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := g.byPrefix(ctx, prefix).Model(&models.CacheEntry{}).Pluck("cache_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	return keys, nil
}

func (g *GormStore) RemoveByPrefix(ctx context.Context, prefix string) (int, error) {
	result := g.byPrefix(ctx, prefix).Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to remove cache entries: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (g *GormStore) byPrefix(ctx context.Context, prefix string) *gorm.DB {
	tx := g.db.WithContext(ctx)
	if prefix == "" {
		return tx.Where("1 = 1")
	}
	return tx.Where("substr(cache_key, 1, ?) = ?", len(prefix), prefix)
}

// isDiskFull recognises postgres disk_full (53100) and sqlite SQLITE_FULL
func isDiskFull(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "53100") ||
		strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "database or disk is full")
}
