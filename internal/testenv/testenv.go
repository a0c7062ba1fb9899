// Package testenv boots the API on an in-memory SQLite database for tests.
package testenv

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/communityconnect/server/config"
	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/routes"
	"github.com/communityconnect/server/utils"
)

// Env is a running server with direct access to its database.
type Env struct {
	DB     *gorm.DB
	Hub    *utils.CommentHub
	Store  utils.ObjectStore
	Server *httptest.Server
}

// Config returns the configuration used by New.
func Config(t *testing.T) config.AppConfig {
	return config.AppConfig{
		JWTSecret:          "test-secret",
		RedisDisabled:      true,
		GinMode:            "test",
		GinPath:            filepath.Join(t.TempDir(), "gin.log"),
		UploadDir:          t.TempDir(),
		RateLimitPerMinute: 100000,
		AdminUsernames:     []string{"root"},
	}
}

// OpenDB returns a migrated in-memory database.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection of :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db, models.All()...))
	return db
}

// New starts the full router with redis disabled and a local upload store.
func New(t *testing.T) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := Config(t)
	config.Set(cfg)
	utils.SetRedis(nil)
	utils.SetEventPublisher(nil)

	db := OpenDB(t)
	store, err := utils.NewLocalStore(cfg.UploadDir)
	require.NoError(t, err)
	hub := utils.NewCommentHub()
	srv := httptest.NewServer(routes.SetupRouter(routes.Deps{DB: db, Store: store, Hub: hub}))
	t.Cleanup(srv.Close)
	return &Env{DB: db, Hub: hub, Store: store, Server: srv}
}

// User inserts an account and returns it with a valid token.
func (e *Env) User(t *testing.T, username, role string) (models.User, string) {
	t.Helper()
	hash, err := utils.HashPassword("secret1")
	require.NoError(t, err)
	u := models.User{Username: username, PasswordHash: hash, Role: role}
	require.NoError(t, e.DB.Create(&u).Error)
	token, err := utils.GenerateToken(u.ID, u.Username, u.Role, time.Hour)
	require.NoError(t, err)
	return u, token
}

// Post inserts a post owned by userID.
func (e *Env) Post(t *testing.T, userID uint, status models.Status) models.Post {
	t.Helper()
	p := models.Post{Listing: models.Listing{
		UserID:      userID,
		Title:       "Free bikes",
		Description: "Two bikes to give away",
		Category:    "other",
		Status:      status,
	}}
	require.NoError(t, e.DB.Omit("User").Create(&p).Error)
	return p
}

// Event inserts an event owned by userID starting at startsAt.
func (e *Env) Event(t *testing.T, userID uint, status models.Status, startsAt time.Time) models.Event {
	t.Helper()
	ev := models.Event{
		Listing: models.Listing{
			UserID:      userID,
			Title:       "Park cleanup",
			Description: "Bring gloves",
			Category:    "volunteer",
			Status:      status,
		},
		StartsAt: startsAt,
	}
	require.NoError(t, e.DB.Omit("User").Create(&ev).Error)
	return ev
}

// Response is a decoded API envelope.
type Response struct {
	Status  int             `json:"-"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Header  http.Header     `json:"-"`
	Body    []byte          `json:"-"`
}

// Decode unmarshals the data field into out.
func (r *Response) Decode(t *testing.T, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, out), string(r.Body))
}

// Do sends a JSON request to path below the server root.
func (e *Env) Do(t *testing.T, method, path, token string, body interface{}) *Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.Server.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := &Response{Status: resp.StatusCode, Header: resp.Header, Body: raw}
	_ = json.Unmarshal(raw, out)
	return out
}
