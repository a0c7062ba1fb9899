package controllers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/communityconnect/server/config"
	"github.com/communityconnect/server/middleware"
	"github.com/communityconnect/server/models"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		page, size         string
		wantPage, wantSize int
	}{
		{"", "", 1, 10},
		{"3", "20", 3, 20},
		{"0", "0", 1, 10},
		{"-2", "101", 1, 10},
		{"x", "100", 1, 100},
	}
	for _, tc := range cases {
		p, s := parsePagination(tc.page, tc.size)
		assert.Equal(t, tc.wantPage, p, "page %q", tc.page)
		assert.Equal(t, tc.wantSize, s, "size %q", tc.size)
	}
}

func TestResourceTypeParam(t *testing.T) {
	for in, want := range map[string]string{"post": models.ResourcePost, "Posts": models.ResourcePost, " events ": models.ResourceEvent} {
		got, ok := resourceTypeParam(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := resourceTypeParam("comment")
	assert.False(t, ok)
}

func TestParseID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	for raw, want := range map[string]bool{"12": true, "0": false, "-1": false, "abc": false, "": false} {
		ctx.Params = gin.Params{{Key: "id", Value: raw}}
		_, ok := parseID(ctx, "id")
		assert.Equal(t, want, ok, raw)
	}
}

func TestGetUserIDAndRole(t *testing.T) {
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := getUserID(ctx)
	assert.False(t, ok)
	assert.False(t, isAdmin(ctx))

	ctx.Set(middleware.ContextUserIDKey, uint(4))
	ctx.Set(middleware.ContextRoleKey, models.RoleAdmin)
	uid, ok := getUserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, uint(4), uid)
	assert.True(t, isAdmin(ctx))
}

func TestNormalizeDetails(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{``, "", true},
		{`null`, "", true},
		{`{ "price": 10, "free": false }`, `{"price":10,"free":false}`, true},
		{`"{\"size\": \"L\"}"`, `{"size":"L"}`, true},
		{`"  "`, "", true},
		{`[1,2]`, "", false},
		{`"plain text"`, "", false},
		{`42`, "", false},
	}
	for _, tc := range cases {
		got, ok := normalizeDetails(json.RawMessage(tc.in))
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestValidImageURL(t *testing.T) {
	assert.True(t, validImageURL("https://cdn.example.com/a.png"))
	assert.True(t, validImageURL("/uploads/2024/01/01/a.png"))
	assert.False(t, validImageURL("javascript:alert(1)"))
	assert.False(t, validImageURL("ftp://example.com/a.png"))
}

func TestListOrder(t *testing.T) {
	assert.Equal(t, "created_at DESC, id DESC", listOrder("", false))
	assert.Equal(t, "created_at ASC, id ASC", listOrder("oldest", true))
	assert.Equal(t, "like_count DESC, created_at DESC", listOrder("popular", false))
	assert.Equal(t, "starts_at ASC, id ASC", listOrder("soonest", true))
	assert.Equal(t, "created_at DESC, id DESC", listOrder("soonest", false))
}

func TestUsernameRules(t *testing.T) {
	assert.True(t, validUsername("ann_lee-2"))
	assert.False(t, validUsername("ab"))
	assert.False(t, validUsername(strings.Repeat("a", 33)))
	assert.False(t, validUsername("ann lee"))
	assert.False(t, validUsername("anné"))

	assert.True(t, validPassword("secret"))
	assert.True(t, validPassword("пароль"))
	assert.False(t, validPassword("short"))

	assert.Equal(t, "john_doe", sanitizeUsername("  John.Doe "))
	assert.Equal(t, "abc", sanitizeUsername("__a!b@c--"))
	assert.Len(t, sanitizeUsername(strings.Repeat("x", 40)), 24)
}

func TestIsAdminUsername(t *testing.T) {
	prev := config.Get()
	t.Cleanup(func() { config.Set(prev) })
	config.Set(config.AppConfig{AdminUsernames: []string{" Root ", "ops"}})

	assert.True(t, isAdminUsername("root"))
	assert.True(t, isAdminUsername("OPS"))
	assert.False(t, isAdminUsername("ann"))
	assert.False(t, isAdminUsername(" "))
}

func TestCleanContent(t *testing.T) {
	got, code, _ := cleanContent("  <b>hi</b><script>x</script> ")
	assert.Zero(t, code)
	assert.Equal(t, "<b>hi</b>", got)

	_, code, _ = cleanContent("<script>x</script>")
	assert.Equal(t, 40043, code)
	_, code, _ = cleanContent(strings.Repeat("a", maxCommentLen+1))
	assert.Equal(t, 40044, code)
}

func TestUserResponse(t *testing.T) {
	user := models.User{ID: 1, Username: "ann", Email: "ann@example.com", Role: models.RoleAdmin}
	pub := userResponse(user, false)
	assert.NotContains(t, pub, "email")
	assert.NotContains(t, pub, "is_admin")

	priv := userResponse(user, true)
	assert.Equal(t, "ann@example.com", priv["email"])
	assert.Equal(t, true, priv["is_admin"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", truncate("héllo", 4))
	assert.Equal(t, "hi", truncate("hi", 4))
}
