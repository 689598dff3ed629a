package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dokflow/api/db"
	"dokflow/api/internal/app"
	"dokflow/api/internal/config"
	"dokflow/api/internal/email"
	"dokflow/api/internal/export"
	"dokflow/api/internal/logger"
	"dokflow/api/internal/revision"
	"dokflow/api/internal/rowstate"
	"dokflow/api/internal/search"
	"dokflow/api/internal/storage"
	"dokflow/api/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	zlog, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	sqlDB, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := store.ApplyMigrations(ctx, sqlDB, migrationsFS(cfg.MigrationsDir), zlog); err != nil {
		zlog.Fatal("migrations failed", zap.Error(err))
	}

	gormDB, err := store.OpenGorm(sqlDB, zlog)
	if err != nil {
		zlog.Fatal("gorm init failed", zap.Error(err))
	}
	dataStore := store.NewGormStore(gormDB)

	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, zlog)
		defer meili.Close()
		engine = meili
	}
	searchService := search.NewService(engine, dataStore, zlog)

	var rows rowstate.Registry = rowstate.NewMemoryRegistry()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisRows, err := rowstate.NewRedisRegistry(cfg.RedisURL)
		if err != nil {
			zlog.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisRows.Close()
		rows = redisRows
		zlog.Info("row state shared through redis")
	}

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		zlog.Fatal("failed to create revisions dir", zap.Error(err))
	}

	deps := app.Deps{
		Store:     dataStore,
		Search:    searchService,
		Revisions: revision.New(cfg.RevisionsDir),
		Exporter: export.NewService(dataStore, export.Options{
			PrintBaseURL: cfg.PrintBaseURL,
			Timeout:      cfg.ExportTimeout,
			Logger:       zlog,
		}),
		Notifier: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		RowState: rows,
		Logger:   zlog,
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			zlog.Fatal("object storage init failed", zap.Error(err))
		}
		deps.Uploader = storage.NewUploader(objects, cfg.MaxUploadBytes)
	} else {
		zlog.Warn("MINIO_ENDPOINT not set, uploads disabled")
	}

	service := app.New(cfg, deps)

	go func() {
		records, err := service.AllRecords(ctx)
		if err != nil {
			zlog.Warn("search reindex skipped", zap.Error(err))
			return
		}
		searchService.Reindex(records)
	}()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// PDF export may take up to ExportTimeout.
		WriteTimeout: cfg.ExportTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("dokflow API listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown error", zap.Error(err))
	}
}

// migrationsFS prefers an on-disk migrations dir over the embedded copy.
func migrationsFS(dir string) fs.FS {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return os.DirFS(dir)
	}
	return db.Migrations
}
