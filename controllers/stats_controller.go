package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

// StatsController provides public community statistics.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns aggregate counts of members, published listings and comments.
func (s *StatsController) GetStats(ctx *gin.Context) {
	const cacheKey = "cache:stats:site"
	if utils.ServeCached(ctx, cacheKey) {
		return
	}
	var userCount, postCount, eventCount, commentCount, dailyViews int64

	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		// Fallback to 0 instead of failing the whole endpoint
		userCount = 0
	}
	if err := s.db.Model(&models.Post{}).Where("status = ?", models.StatusPublished).Count(&postCount).Error; err != nil {
		postCount = 0
	}
	if err := s.db.Model(&models.Event{}).Where("status = ?", models.StatusPublished).Count(&eventCount).Error; err != nil {
		eventCount = 0
	}
	if err := s.db.Model(&models.Comment{}).Where("deleted = ?", false).Count(&commentCount).Error; err != nil {
		commentCount = 0
	}

	// Use string date equality to avoid timezone/type mismatches with DATE column
	today := time.Now().In(time.Local).Format("2006-01-02")
	if err := s.db.Model(&models.PageView{}).
		Where("date = ?", today).
		Select("COALESCE(SUM(count),0)").
		Scan(&dailyViews).Error; err != nil {
		dailyViews = 0
	}

	utils.SuccessCached(ctx, cacheKey, gin.H{
		"user_count":       userCount,
		"post_count":       postCount,
		"event_count":      eventCount,
		"comment_count":    commentCount,
		"daily_view_count": dailyViews,
	}, time.Minute)
}

// ListingStats returns page views and comment count for one post or event.
func (s *StatsController) ListingStats(resourceType string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := parseID(ctx, "id")
		if !ok {
			utils.Error(ctx, http.StatusBadRequest, 40060, "invalid id")
			return
		}
		idStr := strconv.FormatUint(uint64(id), 10)
		plural := models.ListingTable(resourceType)

		var pv int64
		paths := []string{"/api/v1/" + plural + "/" + idStr, "/" + plural + "/" + idStr}
		if err := s.db.Model(&models.PageView{}).
			Where("path IN ?", paths).
			Select("COALESCE(SUM(count),0)").
			Scan(&pv).Error; err != nil {
			pv = 0
		}

		var commentsCount int64
		if err := s.db.Model(&models.Comment{}).
			Where("resource_type = ? AND resource_id = ? AND deleted = ?", resourceType, id, false).
			Count(&commentsCount).Error; err != nil {
			commentsCount = 0
		}

		utils.Success(ctx, gin.H{
			"pv":             pv,
			"comments_count": commentsCount,
		})
	}
}
