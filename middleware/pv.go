package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/communityconnect/server/models"
)

// contentRoutes are the API routes that count as viewing a listing.
var contentRoutes = map[string]struct{}{
	"/api/v1/posts/:id":  {},
	"/api/v1/events/:id": {},
}

// PageViewRecorder records page views per day and path.
func PageViewRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != "GET" {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 400 {
			return
		}
		if !countsAsView(c.FullPath(), c.Request.URL.Path) {
			return
		}

		// Use local midnight to align with DATE column
		now := time.Now().In(time.Local)
		localMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

		// Atomic upsert to avoid duplicate key errors under concurrency
		_ = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "path"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": time.Now()}),
		}).Create(&models.PageView{Date: localMidnight, Path: c.Request.URL.Path, Count: 1}).Error
	}
}

// countsAsView keeps SPA pages and listing detail reads, skipping health, metrics,
// websocket, static assets and every other API call.
func countsAsView(route, path string) bool {
	if _, ok := contentRoutes[route]; ok {
		return true
	}
	switch {
	case path == "/health", path == "/metrics":
		return false
	case strings.HasPrefix(path, "/api/"), strings.HasPrefix(path, "/static/"),
		strings.HasPrefix(path, "/uploads/"), strings.HasPrefix(path, "/ws/"):
		return false
	}
	return true
}
