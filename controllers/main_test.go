package controllers

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/communityconnect/server/config"
	"github.com/communityconnect/server/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.Set(config.AppConfig{JWTSecret: "test", RedisDisabled: true})
	utils.SetRedis(nil)
	os.Exit(m.Run())
}
