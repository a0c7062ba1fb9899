package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/communityconnect/server/middleware"
	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, v != 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	case float64:
		return uint(v), v > 0
	default:
		return 0, false
	}
}

func isAdmin(ctx *gin.Context) bool {
	return ctx.GetString(middleware.ContextRoleKey) == models.RoleAdmin
}

// parseID reads a positive numeric path parameter.
func parseID(ctx *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

// resourceTypeParam maps the path segment to a resource type, accepting plural forms.
func resourceTypeParam(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "post", "posts":
		return models.ResourcePost, true
	case "event", "events":
		return models.ResourceEvent, true
	}
	return "", false
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// authorPreload limits the joined author to its public columns.
func authorPreload(db *gorm.DB) *gorm.DB {
	return db.Select("id", "username", "avatar_url", "role")
}

// decrementExpr lowers a counter column by n without going below zero.
func decrementExpr(column string, n int64) interface{} {
	return gorm.Expr("CASE WHEN "+column+" >= ? THEN "+column+" - ? ELSE 0 END", n, n)
}

// internalError logs err with the request id and answers with a generic message.
func internalError(ctx *gin.Context, code int, msg string, err error) {
	utils.Sugar.Errorw(msg, "request_id", ctx.GetString(utils.RequestIDKey), "path", ctx.Request.URL.Path, "error", err)
	utils.Error(ctx, 500, code, msg)
}
