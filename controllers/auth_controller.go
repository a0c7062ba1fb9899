package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/communityconnect/server/config"
	"github.com/communityconnect/server/middleware"
	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

// AuthController handles authentication related endpoints including local and third-party providers.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// Register handles local account registration with bcrypt hashing.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username      string `json:"username"`
		Email         string `json:"email"`
		Password      string `json:"password"`
		Confirm       string `json:"confirm"`
		CaptchaID     string `json:"captcha_id"`
		CaptchaAnswer string `json:"captcha_answer"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	username := strings.TrimSpace(req.Username)
	if !validUsername(username) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username must be 3-32 letters, digits, '-' or '_'")
		return
	}
	if !validPassword(req.Password) {
		utils.Error(ctx, http.StatusBadRequest, 40003, "password must be 6-64 characters")
		return
	}
	if req.Confirm != "" && req.Confirm != req.Password {
		utils.Error(ctx, http.StatusBadRequest, 40004, "passwords do not match")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40005, "invalid email")
			return
		}
	}
	if config.Get().RegisterCaptchaEnabled {
		if !utils.VerifyCaptcha(strings.TrimSpace(req.CaptchaID), strings.TrimSpace(req.CaptchaAnswer)) {
			utils.Error(ctx, http.StatusBadRequest, 40006, "captcha is wrong or expired")
			return
		}
	}

	var count int64
	if err := a.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		internalError(ctx, 50001, "failed to check username", err)
		return
	}
	if count > 0 {
		utils.Error(ctx, http.StatusConflict, 40901, "username already exists")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		internalError(ctx, 50002, "failed to hash password", err)
		return
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleMember,
	}
	if isAdminUsername(username) {
		user.Role = models.RoleAdmin
	}
	if err := a.db.Create(&user).Error; err != nil {
		internalError(ctx, 50003, "failed to create user", err)
		return
	}

	a.respondWithToken(ctx, http.StatusCreated, user)
}

// Captcha returns a fresh captcha id and base64 image (data URI)
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, b64, err := utils.GenerateCaptcha()
	if err != nil {
		internalError(ctx, 50004, "failed to generate captcha", err)
		return
	}
	utils.Success(ctx, gin.H{"id": id, "image": b64, "required": config.Get().RegisterCaptchaEnabled})
}

func validUsername(s string) bool {
	if l := len(s); l < 3 || l > 32 {
		return false
	}
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

func validPassword(s string) bool {
	l := utf8.RuneCountInString(s)
	return l >= 6 && l <= 64
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid username or password")
		return
	}
	if user.PasswordHash == "" || !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid username or password")
		return
	}
	a.promoteConfiguredAdmin(&user)
	a.respondWithToken(ctx, http.StatusOK, user)
}

// promoteConfiguredAdmin grants the admin role to usernames listed in config.
func (a *AuthController) promoteConfiguredAdmin(user *models.User) {
	if user.IsAdmin() || !isAdminUsername(user.Username) {
		return
	}
	if err := a.db.Model(user).Update("role", models.RoleAdmin).Error; err != nil {
		utils.Sugar.Warnw("promote admin failed", "user_id", user.ID, "error", err)
		return
	}
	user.Role = models.RoleAdmin
}

func (a *AuthController) respondWithToken(ctx *gin.Context, status int, user models.User) {
	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, 0)
	if err != nil {
		internalError(ctx, 50005, "failed to generate token", err)
		return
	}
	utils.Respond(ctx, status, 0, "success", gin.H{
		"token": token,
		"user":  userResponse(user, true),
	})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "invalid authorization header")
		return
	}
	expiresAt, ok := ctx.Get(middleware.ContextTokenExpKey)
	exp, _ := expiresAt.(time.Time)
	if !ok || exp.IsZero() {
		exp = time.Now().Add(time.Duration(config.Get().TokenTTLHours) * time.Hour)
	}
	utils.BlacklistToken(token, exp)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40109, "unauthorized")
		return
	}
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		return
	}
	utils.Success(ctx, userResponse(user, true))
}

// UpdateProfile allows the authenticated user to update basic profile fields.
// Only fields present in the payload change; an empty string clears a field.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40109, "unauthorized")
		return
	}
	var req struct {
		Email     *string `json:"email"`
		Bio       *string `json:"bio"`
		Location  *string `json:"location"`
		AvatarURL *string `json:"avatar_url"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40008, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		return
	}

	updates := map[string]interface{}{}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				utils.Error(ctx, http.StatusBadRequest, 40005, "invalid email")
				return
			}
		}
		updates["email"] = email
	}
	if req.Bio != nil {
		updates["bio"] = truncate(utils.Sanitize(*req.Bio), 500)
	}
	if req.Location != nil {
		updates["location"] = truncate(utils.SanitizePlain(*req.Location), 128)
	}
	if req.AvatarURL != nil {
		avatar := strings.TrimSpace(*req.AvatarURL)
		if avatar != "" && !validImageURL(avatar) {
			utils.Error(ctx, http.StatusBadRequest, 40009, "invalid avatar url")
			return
		}
		updates["avatar_url"] = avatar
	}
	if len(updates) > 0 {
		if err := a.db.Model(&user).Updates(updates).Error; err != nil {
			internalError(ctx, 50006, "failed to update profile", err)
			return
		}
		if err := a.db.First(&user, userID).Error; err != nil {
			internalError(ctx, 50006, "failed to update profile", err)
			return
		}
	}
	utils.InvalidateByPrefix("cache:user:public:" + strconv.Itoa(int(user.ID)))
	utils.Success(ctx, userResponse(user, true))
}

// GetUserPublic returns public user info by ID
func (a *AuthController) GetUserPublic(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid user id")
		return
	}
	cacheKey := "cache:user:public:" + strconv.Itoa(int(id))
	if utils.ServeCached(ctx, cacheKey) {
		return
	}
	var user models.User
	if err := a.db.First(&user, id).Error; err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40411, "user not found")
			return
		}
		internalError(ctx, 50007, "failed to get user", err)
		return
	}
	utils.SuccessCached(ctx, cacheKey, userResponse(user, false), time.Hour)
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := ctx.Param("provider")
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40011, err.Error())
		return
	}
	state := utils.NewState(10 * time.Minute)
	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40012, "missing code or state")
		return
	}
	if !utils.ConsumeState(state) {
		utils.Error(ctx, http.StatusBadRequest, 40013, "invalid or expired state")
		return
	}
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40011, err.Error())
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()
	token, err := cfg.Exchange(reqCtx, code)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40014, "failed to exchange code")
		return
	}
	info, err := fetchOAuthUser(reqCtx, cfg, provider, token)
	if err != nil {
		internalError(ctx, 50008, "failed to fetch provider profile", err)
		return
	}
	user, err := a.findOrCreateOAuthUser(provider, info)
	if err != nil {
		internalError(ctx, 50009, "failed to persist user", err)
		return
	}
	a.promoteConfiguredAdmin(user)
	a.respondWithToken(ctx, http.StatusOK, *user)
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/github/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID        string
	Username  string
	Email     string
	AvatarURL string
}

func fetchOAuthUser(ctx context.Context, cfg *oauth2.Config, provider string, token *oauth2.Token) (*oauthUser, error) {
	client := cfg.Client(ctx, token)
	switch provider {
	case "github":
		var payload struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := getJSON(ctx, client, "https://api.github.com/user", &payload); err != nil {
			return nil, err
		}
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		email := ""
		if err := getJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					email = e.Email
					break
				}
			}
		}
		return &oauthUser{ID: strconv.FormatInt(payload.ID, 10), Username: payload.Login, Email: email, AvatarURL: payload.AvatarURL}, nil
	case "google":
		var payload struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			Picture string `json:"picture"`
		}
		if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
			return nil, err
		}
		username := payload.Email
		if i := strings.IndexByte(username, '@'); i > 0 {
			username = username[:i]
		}
		return &oauthUser{ID: payload.ID, Username: username, Email: payload.Email, AvatarURL: payload.Picture}, nil
	}
	return nil, fmt.Errorf("unsupported provider: %s", provider)
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, data.ID).First(&user).Error
	if err == nil {
		updates := map[string]interface{}{"avatar_url": data.AvatarURL}
		if data.Email != "" {
			updates["email"] = strings.TrimSpace(data.Email)
		}
		_ = a.db.Model(&user).Updates(updates)
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	user = models.User{
		Username:   a.ensureUniqueUsername(data.Username, provider, data.ID),
		Email:      strings.TrimSpace(data.Email),
		Provider:   provider,
		ProviderID: data.ID,
		AvatarURL:  data.AvatarURL,
		Role:       models.RoleMember,
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var builder strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			builder.WriteRune(r)
		case r == '_' || r == '.':
			builder.WriteRune('_')
		}
	}
	result := strings.Trim(builder.String(), "_-")
	if len(result) > 24 {
		result = result[:24]
	}
	return result
}

func (a *AuthController) ensureUniqueUsername(base, provider, id string) string {
	base = sanitizeUsername(base)
	if len(base) < 3 {
		base = sanitizeUsername(fmt.Sprintf("%s_%s", provider, id))
	}
	candidate := base
	for suffix := 1; ; suffix++ {
		var count int64
		if err := a.db.Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil || count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// userResponse renders a user; private fields are only included for the user themselves.
func userResponse(user models.User, private bool) gin.H {
	m := gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"role":       user.Role,
		"avatar_url": user.AvatarURL,
		"bio":        user.Bio,
		"location":   user.Location,
		"created_at": user.CreatedAt,
	}
	if private {
		m["email"] = user.Email
		m["provider"] = user.Provider
		m["is_admin"] = user.IsAdmin()
	}
	return m
}

// isAdminUsername checks whether given username is configured as an admin (case-insensitive)
func isAdminUsername(username string) bool {
	uname := strings.TrimSpace(username)
	if uname == "" {
		return false
	}
	for _, u := range config.Get().AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), uname) {
			return true
		}
	}
	return false
}
