package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm/logger"
)

func TestLoadJSONConfig_Sections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"app": {"AppPort": "9000", "JWTSecret": "s", "RateLimitPerMinute": 30, "AdminUsernames": ["root", 5, "ops"]},
		"database": {"Driver": "postgres", "DBName": "cc"},
		"redis": {"Disabled": true},
		"upload": {"Dir": "/data", "MaxMB": 8, "OrphanTTLMinutes": 30},
		"kafka": {"Brokers": ["k1:9092"], "ModerationTopic": "mod"},
		"tracing": {"OTLPEndpoint": "otel:4318", "SampleRatio": 0.25}
	}`), 0o600))

	var c AppConfig
	require.NoError(t, loadJSONConfig(path, &c))
	assert.Equal(t, "9000", c.AppPort)
	assert.Equal(t, 30, c.RateLimitPerMinute)
	assert.Equal(t, []string{"root", "ops"}, c.AdminUsernames)
	assert.Equal(t, "postgres", c.DBDriver)
	assert.True(t, c.RedisDisabled)
	assert.Equal(t, 8, c.UploadMaxMB)
	assert.Equal(t, 30, c.UploadOrphanTTLMin)
	assert.Equal(t, []string{"k1:9092"}, c.KafkaBrokers)
	assert.Equal(t, "mod", c.KafkaModerationTopic)
	assert.InDelta(t, 0.25, c.TraceSampleRatio, 1e-9)

	applyDefaults(&c)
	assert.Equal(t, "5432", c.DBPort)
}

func TestLoadJSONConfig_MissingAndInvalid(t *testing.T) {
	var c AppConfig
	assert.NoError(t, loadJSONConfig(filepath.Join(t.TempDir(), "absent.json"), &c))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"app":`), 0o600))
	assert.Error(t, loadJSONConfig(path, &c))
}

func TestApplyDefaults(t *testing.T) {
	var c AppConfig
	applyDefaults(&c)
	assert.Equal(t, "8080", c.AppPort)
	assert.Equal(t, 72, c.TokenTTLHours)
	assert.Equal(t, 120, c.RateLimitPerMinute)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, "3306", c.DBPort)
	assert.Equal(t, 5, c.UploadMaxMB)
	assert.Equal(t, 24*60, c.UploadOrphanTTLMin)
	assert.Equal(t, "community.moderation", c.KafkaModerationTopic)
	assert.Equal(t, 1.0, c.TraceSampleRatio)

	c = AppConfig{TokenTTLHours: 2, TraceSampleRatio: 3}
	applyDefaults(&c)
	assert.Equal(t, 2, c.TokenTTLHours)
	assert.Equal(t, 1.0, c.TraceSampleRatio)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "7000")
	t.Setenv("REDIS_DISABLED", "true")
	t.Setenv("ADMIN_USERNAMES", " root , ,ops")
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("UPLOAD_MAX_MB", "12")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")

	c := AppConfig{AppPort: "8080"}
	applyEnvOverrides(&c)
	assert.Equal(t, "7000", c.AppPort)
	assert.True(t, c.RedisDisabled)
	assert.Equal(t, []string{"root", "ops"}, c.AdminUsernames)
	assert.Equal(t, []string{"a:1", "b:2"}, c.KafkaBrokers)
	assert.Equal(t, 12, c.UploadMaxMB)
	assert.Equal(t, 0.5, c.TraceSampleRatio)

	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "7")
	applyEnvOverrides(&c)
	assert.Equal(t, 0.5, c.TraceSampleRatio)
}

func TestSetFillsDefaults(t *testing.T) {
	prev, prevLoaded := cfg, loaded
	t.Cleanup(func() { cfg, loaded = prev, prevLoaded })

	Set(AppConfig{JWTSecret: "x", RateLimitPerMinute: 10})
	got := Get()
	assert.Equal(t, "x", got.JWTSecret)
	assert.Equal(t, 10, got.RateLimitPerMinute)
	assert.Equal(t, "8080", got.AppPort)
}

func TestDialector(t *testing.T) {
	c := AppConfig{}
	applyDefaults(&c)
	c.DBPassword = "pw"
	d := dialector(c)
	assert.Equal(t, "mysql", d.Name())
	assert.Equal(t, "root:pw@tcp(127.0.0.1:3306)/community_connect?charset=utf8mb4&parseTime=True&loc=Local", d.(*mysql.Dialector).Config.DSN)

	c.DBDriver = "Postgres"
	c.DBPort = "5432"
	d = dialector(c)
	assert.Equal(t, "postgres", d.Name())
	assert.Contains(t, d.(*postgres.Dialector).Config.DSN, "dbname=community_connect")

	c.DatabaseURI = "postgres://u@h/db"
	assert.Equal(t, "postgres://u@h/db", dialector(c).(*postgres.Dialector).Config.DSN)
}

func TestToGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, toGormLogLevel("debug"))
	assert.Equal(t, logger.Warn, toGormLogLevel(""))
	assert.Equal(t, logger.Error, toGormLogLevel("error"))
	assert.Equal(t, logger.Silent, toGormLogLevel("silent"))
	assert.Equal(t, logger.Warn, toGormLogLevel("verbose"))
}
