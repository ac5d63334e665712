package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/cache"
	config "github.com/phillip/farewell-fund-go/config"
	middleware "github.com/phillip/farewell-fund-go/middleware"
	routes "github.com/phillip/farewell-fund-go/routes"
	services "github.com/phillip/farewell-fund-go/services"
	"github.com/phillip/farewell-fund-go/store"
	utils "github.com/phillip/farewell-fund-go/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.Logger
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Persistence ---
	var st store.Store
	switch cfg.StoreKind {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		st = store.NewMemory()
	default:
		client, err := store.Connect(ctx, cfg.MongoURI)
		if err != nil {
			logger.Fatal("mongo connect failed", zap.Error(err))
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		cfg.MongoClient = client

		mongoStore := store.NewMongo(client, cfg.DBName, logger.Named("store"))
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			logger.Fatal("ensure indexes failed", zap.Error(err))
		}
		st = mongoStore
	}

	// --- Snapshot cache ---
	var backend cache.Backend = cache.NewLocal()
	if cfg.RedisURL != "" {
		rdb, err := cache.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis connect failed", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		cfg.Redis = rdb
		backend = cache.NewRedis(rdb)
	}

	// --- Integrations ---
	var notifier services.Notifier
	if cfg.Email.Enabled() {
		notifier = utils.NewMailer(cfg.Email, logger.Named("mail"))
	}
	var blobs utils.BlobStore = utils.DisabledBlobStore{}
	if cfg.Cloudinary.Enabled() {
		cld, err := utils.NewCloudinary(cfg.Cloudinary)
		if err != nil {
			logger.Fatal("cloudinary setup failed", zap.Error(err))
		}
		blobs = cld
	}

	svc := services.New(services.Deps{
		Store:       st,
		Cache:       backend,
		SnapshotTTL: cfg.SnapshotTTL,
		Notifier:    notifier,
		Logger:      logger,
	})

	go func() {
		if err := svc.Ledger.Watch(ctx, st); err != nil {
			logger.Error("change feed stopped; snapshots fall back to ttl expiry", zap.Error(err))
		}
	}()

	// --- HTTP ---
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger.Named("http")))
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "If-None-Match"},
		ExposeHeaders: []string{"ETag", "Last-Modified"},
		MaxAge:        12 * time.Hour,
	}
	if containsWildcard(cfg.CORSOrigins) {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))
	routes.SetupRoutes(r, cfg, svc, blobs)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreKind))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
