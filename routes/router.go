package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/communityconnect/server/config"
	"github.com/communityconnect/server/controllers"
	"github.com/communityconnect/server/middleware"
	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

// Deps carries the long-lived services the handlers need.
type Deps struct {
	DB    *gorm.DB
	Store utils.ObjectStore
	Hub   *utils.CommentHub
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
	db := deps.DB
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	// Replace default console logger with file-based zap logger
	gl := utils.Logger
	if cfg.GinPath != "" {
		if l, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			gl = l
		} else {
			utils.Sugar.Warnw("gin access log disabled", "path", cfg.GinPath, "error", err)
		}
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, true))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))
	r.Use(middleware.Metrics())
	// Record PV after each request
	r.Use(middleware.PageViewRecorder(db))

	r.Static("/static", "./static")
	if deps.Store != nil && deps.Store.Backend() == utils.BackendLocal {
		r.Static(strings.TrimSuffix(utils.LocalURLPrefix, "/"), cfg.UploadDir)
	}

	r.GET("/", func(c *gin.Context) {
		c.File("./static/index.html")
	})

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", middleware.MetricsHandler())

	authController := controllers.NewAuthController(db)
	postController := controllers.NewListingController(db, models.ResourcePost)
	eventController := controllers.NewListingController(db, models.ResourceEvent)
	commentController := controllers.NewCommentController(db, deps.Hub)
	adminController := controllers.NewAdminController(db)
	statsController := controllers.NewStatsController(db)
	configController := controllers.NewConfigController()
	uploadController := controllers.NewUploadController(db, deps.Store)

	api := r.Group("/api/v1")
	api.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(0))
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/captcha", authController.Captcha)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)

	// Public stats and config endpoints
	api.GET("/stats", statsController.GetStats)
	api.GET("/config/notice", configController.GetNotice)
	api.GET("/config/categories", configController.GetCategories)
	api.GET("/profiles/:id", authController.GetUserPublic)

	listings := []struct {
		path string
		rt   string
		c    *controllers.ListingController
	}{
		{"/posts", models.ResourcePost, postController},
		{"/events", models.ResourceEvent, eventController},
	}
	for _, l := range listings {
		g := api.Group(l.path)
		g.GET("", l.c.List)
		g.GET("/:id", middleware.OptionalAuth(), l.c.Get)
		g.GET("/:id/similar", l.c.Similar)
		g.GET("/:id/stats", statsController.ListingStats(l.rt))

		w := g.Group("")
		w.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware(0))
		w.POST("", l.c.Create)
		w.PUT("/:id", l.c.Update)
		w.DELETE("/:id", l.c.Delete)
		w.POST("/:id/like", l.c.ToggleLike)
	}

	comments := api.Group("/comments")
	comments.GET("/:resourceType/:resourceId", middleware.OptionalAuth(), commentController.List)
	cw := comments.Group("")
	cw.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware(0))
	// also serves POST /comments/:commentId/like, see PostDispatch
	cw.POST("/:resourceType/:resourceId", commentController.PostDispatch)
	cw.PUT("/:commentId", commentController.Update)
	cw.DELETE("/:commentId", commentController.Delete)
	cw.POST("/:resourceType/:resourceId/:commentId/flag", commentController.Flag)

	api.GET("/ws/comments/:resourceType/:resourceId", commentController.Stream)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware(0))
	protected.GET("/users/me/posts", postController.ListMine)
	protected.GET("/users/me/events", eventController.ListMine)
	protected.POST("/upload", uploadController.UploadImage)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired(db))
	for _, rt := range []string{models.ResourcePost, models.ResourceEvent} {
		base := "/" + models.ListingTable(rt)
		admin.GET(base+"/pending", adminController.ListPending(rt))
		admin.PUT(base+"/:id/approve", adminController.Moderate(rt, utils.ActionApprove))
		admin.PUT(base+"/:id/reject", adminController.Moderate(rt, utils.ActionReject))
		admin.PUT(base+"/:id/archive", adminController.Moderate(rt, utils.ActionArchive))
	}
	admin.GET("/comments/flagged", adminController.ListFlagged)
	admin.PUT("/comments/:id/approve", adminController.ModerateComment(utils.ActionUnflag))
	admin.PUT("/comments/:id/remove", adminController.ModerateComment(utils.ActionRemove))
	admin.GET("/users", adminController.ListUsers)
	admin.PUT("/users/:id/role", adminController.UpdateUserRole)
	admin.GET("/analytics", adminController.Analytics)
	admin.POST("/export", adminController.Export)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") || strings.HasPrefix(path, utils.LocalURLPrefix) {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "static asset not found"})
			return
		}
		// other paths such as /posts/4 fall back to the SPA entry
		ctx.Status(http.StatusOK)
		ctx.File("./static/index.html")
	})

	return r
}
