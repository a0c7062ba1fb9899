package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/communityconnect/server/config"
	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.Set(config.AppConfig{JWTSecret: "mw-secret", RedisDisabled: true, RateLimitPerMinute: 60})
	utils.SetRedis(nil)
	os.Exit(m.Run())
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db, models.All()...))
	return db
}

func serve(r http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"uid": c.GetUint(ContextUserIDKey), "role": c.GetString(ContextRoleKey)})
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(utils.RequestIDKey)) })

	w := serve(r, http.MethodGet, "/", "")
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthRequired(), whoami)

	valid, err := utils.GenerateToken(5, "ann", models.RoleMember, time.Hour)
	require.NoError(t, err)
	revoked, err := utils.GenerateToken(6, "bob", models.RoleMember, time.Hour)
	require.NoError(t, err)
	utils.BlacklistToken(revoked, time.Now().Add(time.Hour))

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, `"code":40101`},
		{"scheme", "Basic abc", http.StatusUnauthorized, `"code":40102`},
		{"empty", "Bearer ", http.StatusUnauthorized, `"code":40103`},
		{"revoked", "Bearer " + revoked, http.StatusUnauthorized, `"code":40104`},
		{"garbage", "Bearer nope", http.StatusUnauthorized, `"code":40105`},
		{"valid", "bearer " + valid, http.StatusOK, `"uid":5`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(r, http.MethodGet, "/me", tc.header)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/feed", OptionalAuth(), whoami)

	w := serve(r, http.MethodGet, "/feed", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uid":0`)

	w = serve(r, http.MethodGet, "/feed", "Bearer broken")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uid":0`)

	tok, err := utils.GenerateToken(9, "cy", models.RoleMember, time.Hour)
	require.NoError(t, err)
	w = serve(r, http.MethodGet, "/feed", "Bearer "+tok)
	assert.Contains(t, w.Body.String(), `"uid":9`)
}

func TestAdminRequired_ReadsRoleFromDatabase(t *testing.T) {
	db := openDB(t)
	admin := models.User{Username: "root", Role: models.RoleAdmin}
	member := models.User{Username: "ann"}
	require.NoError(t, db.Create(&admin).Error)
	require.NoError(t, db.Create(&member).Error)

	r := gin.New()
	r.GET("/admin", AuthRequired(), AdminRequired(db), whoami)
	r.GET("/bare", AdminRequired(db), whoami)

	// a token claiming admin does not help a member
	forged, err := utils.GenerateToken(member.ID, member.Username, models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	w := serve(r, http.MethodGet, "/admin", "Bearer "+forged)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40301`)

	tok, err := utils.GenerateToken(admin.ID, admin.Username, models.RoleMember, time.Hour)
	require.NoError(t, err)
	w = serve(r, http.MethodGet, "/admin", "Bearer "+tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	w = serve(r, http.MethodGet, "/bare", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40106`)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/tight", RateLimitMiddleware(2), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/tight", "").Code)
	w := serve(r, http.MethodGet, "/tight", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"code":42901`)
}

func TestRateLimitMiddleware_SeparateSets(t *testing.T) {
	r := gin.New()
	r.GET("/a", RateLimitMiddleware(2), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/b", RateLimitMiddleware(2), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/a", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/b", "").Code)
}

func TestCountsAsView(t *testing.T) {
	cases := []struct {
		route, path string
		want        bool
	}{
		{"/api/v1/posts/:id", "/api/v1/posts/3", true},
		{"/api/v1/events/:id", "/api/v1/events/8", true},
		{"/api/v1/posts", "/api/v1/posts", false},
		{"", "/posts/3", true},
		{"/health", "/health", false},
		{"/metrics", "/metrics", false},
		{"", "/static/app.js", false},
		{"", "/uploads/2024/a.png", false},
		{"", "/ws/comments/post/1", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, countsAsView(tc.route, tc.path), tc.path)
	}
}

func TestPageViewRecorder(t *testing.T) {
	db := openDB(t)
	r := gin.New()
	r.Use(PageViewRecorder(db))
	r.GET("/api/v1/posts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/events/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.POST("/api/v1/posts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/api/v1/posts/1", "")
	serve(r, http.MethodGet, "/api/v1/posts/1", "")
	serve(r, http.MethodGet, "/api/v1/events/1", "")
	serve(r, http.MethodPost, "/api/v1/posts/1", "")

	var views []models.PageView
	require.NoError(t, db.Find(&views).Error)
	require.Len(t, views, 1)
	assert.Equal(t, "/api/v1/posts/1", views[0].Path)
	assert.Equal(t, int64(2), views[0].Count)
}

func TestMetrics(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/v1/things/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", MetricsHandler())

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/api/v1/things/:id", "200"))
	serve(r, http.MethodGet, "/api/v1/things/1", "")
	serve(r, http.MethodGet, "/api/v1/things/2", "")
	assert.Equal(t, before+2, testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/api/v1/things/:id", "200")))

	serve(r, http.MethodGet, "/nowhere", "")
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "unmatched", "404")), 1.0)

	w := serve(r, http.MethodGet, "/metrics", "")
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
