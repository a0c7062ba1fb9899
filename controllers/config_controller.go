package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/communityconnect/server/config"
	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

// ConfigController serves dynamic, environment-driven UI configuration.
type ConfigController struct{}

func NewConfigController() *ConfigController { return &ConfigController{} }

// GetNotice returns announcement/notice content configured via config.
func (c *ConfigController) GetNotice(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"title": cfg.NoticeTitle,
		"html":  cfg.NoticeHTML,
	})
}

// GetCategories lists the accepted categories for posts and events.
func (c *ConfigController) GetCategories(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		models.ResourcePost:  models.PostCategories,
		models.ResourceEvent: models.EventCategories,
		"max_images":         models.MaxImages,
	})
}
