package utils

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/communityconnect/server/models"
)

// CleanupOrphanUploads deletes uploads whose expiry passed without a listing
// claiming them. It returns how many rows were removed.
func CleanupOrphanUploads(ctx context.Context, db *gorm.DB, store ObjectStore) (int, error) {
	var items []models.UploadedFile
	if err := db.WithContext(ctx).
		Where("expire_at IS NOT NULL AND expire_at <= ?", time.Now()).
		Limit(100).Find(&items).Error; err != nil {
		return 0, err
	}
	removed := 0
	for _, it := range items {
		if store != nil && it.Backend == store.Backend() {
			if err := store.Remove(ctx, it.StorageKey); err != nil {
				Logger.Warn("upload cleaner remove object failed", zap.String("key", it.StorageKey), zap.Error(err))
			}
		}
		// the row goes regardless of the object removal outcome
		if err := db.WithContext(ctx).Delete(&models.UploadedFile{}, it.ID).Error; err != nil {
			Logger.Warn("upload cleaner delete row failed", zap.Uint("id", it.ID), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// ClaimUploads clears the expiry of uploads referenced by a listing so the cleaner keeps them.
func ClaimUploads(db *gorm.DB, userID uint, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	return db.Model(&models.UploadedFile{}).
		Where("user_id = ? AND url IN ?", userID, urls).
		Update("expire_at", nil).Error
}

// StartUploadCleaner periodically runs CleanupOrphanUploads until ctx is done.
func StartUploadCleaner(ctx context.Context, db *gorm.DB, store ObjectStore, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := CleanupOrphanUploads(ctx, db, store)
				if err != nil {
					Logger.Warn("upload cleaner query failed", zap.Error(err))
					continue
				}
				if n > 0 {
					Logger.Info("upload cleaner removed orphans", zap.Int("count", n))
				}
			}
		}
	}()
}
