package main

import (
	"context"
	"flag"
	"time"

	"github.com/communityconnect/server/config"
	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/routes"
	"github.com/communityconnect/server/seed"
	"github.com/communityconnect/server/utils"
)

func main() {
	seedCount := flag.Int("seed", 0, "insert N fake members with listings and comments, then exit")
	flag.Parse()

	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := utils.InitTracing(ctx, cfg)
	if err != nil {
		utils.Sugar.Warnw("tracing disabled", "error", err)
	}

	db := config.InitDatabase(models.All()...)

	if *seedCount > 0 {
		res, err := seed.Run(ctx, db, *seedCount, time.Now().UnixNano())
		if err != nil {
			utils.Sugar.Fatalf("seed failed: %v", err)
		}
		utils.Sugar.Infow("seed complete", "users", res.Users, "posts", res.Posts, "events", res.Events, "comments", res.Comments)
		return
	}

	publisher := utils.InitEventPublisher(cfg)

	store, err := utils.NewObjectStore(ctx, cfg)
	if err != nil {
		utils.Sugar.Warnw("object store unavailable, uploads disabled", "error", err)
	}
	if store != nil {
		// Start background cleanup for expired uploads (best-effort)
		utils.StartUploadCleaner(ctx, db, store, 5*time.Minute)
	}

	r := routes.SetupRouter(routes.Deps{DB: db, Store: store, Hub: utils.NewCommentHub()})

	hooks := []func(context.Context){
		func(context.Context) { cancel() },
		func(context.Context) {
			if err := publisher.Close(); err != nil {
				utils.Sugar.Warnw("close event publisher", "error", err)
			}
		},
		func(c context.Context) {
			if shutdownTracing == nil {
				return
			}
			if err := shutdownTracing(c); err != nil {
				utils.Sugar.Warnw("shutdown tracing", "error", err)
			}
		},
	}
	handler := utils.TraceHandler(r, cfg)
	addr := ":" + cfg.AppPort
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		utils.Sugar.Infof("Starting HTTPS server on port %s (graceful)", cfg.AppPort)
		err = utils.GraceServerTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile, handler, hooks...)
	} else {
		utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
		err = utils.GraceServer(addr, handler, hooks...)
	}
	if err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
