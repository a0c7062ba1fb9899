package controllers

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

// toggleLike flips the like of userID on a target and keeps the denormalized
// like_count of table in step. It returns the new state and count.
func toggleLike(db *gorm.DB, userID uint, targetType string, targetID uint, table string) (bool, int64, error) {
	var (
		liked bool
		count int64
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND target_type = ? AND target_id = ?", userID, targetType, targetID).
			Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			if err := tx.Table(table).Where("id = ?", targetID).
				UpdateColumn("like_count", decrementExpr("like_count", res.RowsAffected)).Error; err != nil {
				return err
			}
		} else {
			ins := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.Like{UserID: userID, TargetType: targetType, TargetID: targetID})
			if ins.Error != nil {
				return ins.Error
			}
			if ins.RowsAffected > 0 {
				if err := tx.Table(table).Where("id = ?", targetID).
					UpdateColumn("like_count", gorm.Expr("like_count + ?", 1)).Error; err != nil {
					return err
				}
			}
			liked = true
		}
		return tx.Table(table).Select("like_count").Where("id = ?", targetID).Scan(&count).Error
	})
	return liked, count, err
}

// likedSet returns which of ids the user likes.
func likedSet(db *gorm.DB, userID uint, targetType string, ids []uint) map[uint]bool {
	out := map[uint]bool{}
	if userID == 0 || len(ids) == 0 {
		return out
	}
	var liked []uint
	if err := db.Model(&models.Like{}).
		Where("user_id = ? AND target_type = ? AND target_id IN ?", userID, targetType, utils.UniqueUint(ids)).
		Pluck("target_id", &liked).Error; err != nil {
		return out
	}
	for _, id := range liked {
		out[id] = true
	}
	return out
}
