package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gradportal/api/internal/app"
	"gradportal/api/internal/archive"
	"gradportal/api/internal/config"
	"gradportal/api/internal/document"
	"gradportal/api/internal/email"
	"gradportal/api/internal/files"
	"gradportal/api/internal/live"
	"gradportal/api/internal/logger"
	"gradportal/api/internal/search"
	"gradportal/api/internal/session"
	"gradportal/api/internal/store"
	"gradportal/api/internal/version"
)

func main() {
	_ = godotenv.Load()
	logger.Init()
	log := logger.Sugar

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalw("migrations failed", "error", err)
	}

	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		log.Fatalw("failed to create archive dir", "error", err)
	}

	dataStore := store.NewPostgresStore(db)
	archiveService := archive.New(cfg.ArchiveDir)
	recorder := version.NewRecorder(dataStore, cfg.SaveDebounce, log)
	defer recorder.Close()

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Infow("using redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalw("redis connection failed", "error", err)
		}
		defer redisStore.Close()
		service = app.NewWithSessionStore(cfg, dataStore, redisStore, archiveService, recorder)
	} else {
		log.Infow("using postgresql for refresh token storage")
		service = app.New(cfg, dataStore, archiveService, recorder)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx, flattenContent)
	service.AttachSearch(searchService)

	sink := version.NewSink(dataStore, recorder, log)
	hub := live.NewHub(db, sink)
	go hub.Run()
	service.AttachHub(hub)

	if cfg.SMTPHost != "" {
		service.AttachEmail(email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}))
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		fileService, err := files.NewService(ctx, files.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalw("object storage connection failed", "error", err)
		}
		service.AttachFiles(fileService)
	}

	httpServer := app.NewHTTPServer(service, hub, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infow("gradportal api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("shutdown error", "error", err)
	}
}

// flattenContent turns a serialized chapter document into plain text for
// the search index. Content that fails to parse is indexed as-is.
func flattenContent(raw string) string {
	doc, err := document.Parse([]byte(raw))
	if err != nil {
		return raw
	}
	return doc.PlainText()
}
