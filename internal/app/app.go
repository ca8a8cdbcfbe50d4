package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/huddle/api/internal/access"
	"github.com/huddle/api/internal/auth"
	"github.com/huddle/api/internal/blob"
	"github.com/huddle/api/internal/config"
	"github.com/huddle/api/internal/conversation"
	"github.com/huddle/api/internal/database"
	"github.com/huddle/api/internal/fetch"
	"github.com/huddle/api/internal/handler"
	"github.com/huddle/api/internal/imaging"
	"github.com/huddle/api/internal/message"
	"github.com/huddle/api/internal/oembed"
	"github.com/huddle/api/internal/pipeline"
	"github.com/huddle/api/internal/player"
	"github.com/huddle/api/internal/preview"
	"github.com/huddle/api/internal/ratelimit"
	"github.com/huddle/api/internal/server"
)

type App struct {
	Config       *config.Config
	DB           *database.DB
	Server       *server.Server
	RateLimiter  *ratelimit.Limiter
	SessionStore *auth.SessionStore
	Previews     *preview.Repository
	Pipeline     *pipeline.Pipeline
}

func New(cfg *config.Config) (*App, error) {
	// Open database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Initialize blob storage
	var blobs blob.Store
	switch cfg.Blob.Backend {
	case "minio":
		blobs, err = blob.NewMinioStore(context.Background(), blob.MinioConfig{
			Endpoint:  cfg.Blob.Minio.Endpoint,
			AccessKey: cfg.Blob.Minio.AccessKey,
			SecretKey: cfg.Blob.Minio.SecretKey,
			Bucket:    cfg.Blob.Minio.Bucket,
			UseSSL:    cfg.Blob.Minio.UseSSL,
		})
	default:
		blobs, err = blob.NewFSStore(cfg.Blob.FSRoot)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing blob storage: %w", err)
	}

	// Outbound client shared by page scraping, image fetching, and oEmbed
	client := fetch.NewClient(cfg.Previews.FetchTimeout)

	transformer := imaging.NewTransformer(client, imaging.Options{
		MaxBytes:     cfg.Previews.MaxImageBytes,
		FetchTimeout: cfg.Previews.FetchTimeout,
		ThumbEdge:    cfg.Previews.ThumbEdge,
		FullEdge:     cfg.Previews.FullEdge,
		Quality:      cfg.Previews.JPEGQuality,
		UserAgent:    cfg.Previews.UserAgent,
	})
	oembedClient := oembed.NewClient(client, cfg.Previews.UserAgent)

	// Initialize repositories
	previewRepo := preview.NewRepository(db.DB)
	messageRepo := message.NewRepository(db.DB)
	playerRepo := player.NewRepository(db.DB)
	conversationRepo := conversation.NewRepository(db.DB)

	// Initialize session store and auth service
	sessionStore := auth.NewSessionStore(db.DB, cfg.Auth.SessionDuration)
	authService := auth.NewService(db.DB, cfg.Auth.BcryptCost)

	gate := access.NewGate(
		access.SQLSessionResolver{DB: db.DB},
		access.PlayerRepoResolver{Repo: playerRepo},
		access.ConversationRepoChecker{Repo: conversationRepo},
	)

	previewPipeline := pipeline.New(previewRepo, messageRepo, blobs, transformer,
		oembedClient, client, slog.Default(), pipeline.Options{
			OembedTTL:   cfg.Previews.OembedTTL,
			TaskTimeout: cfg.Previews.TaskTimeout,
			UserAgent:   cfg.Previews.UserAgent,
		})

	h := handler.New(handler.Dependencies{
		AuthService:   authService,
		Sessions:      sessionStore,
		Messages:      messageRepo,
		Previews:      previewRepo,
		Blobs:         blobs,
		Gate:          gate,
		Transformer:   transformer,
		Pipeline:      previewPipeline,
		Logger:        slog.Default(),
		SecureCookies: cfg.Auth.SecureCookies,
	})

	// Build rate limiter (nil if disabled)
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter([]ratelimit.Rule{
			{Method: "POST", Path: "/api/auth/login", Limit: cfg.RateLimit.Login.Limit, Window: cfg.RateLimit.Login.Window},
			{Method: "POST", Path: "/api/transform", Limit: cfg.RateLimit.Transform.Limit, Window: cfg.RateLimit.Transform.Window},
		})
	}

	router := server.NewRouter(h, sessionStore, limiter, cfg.Server.AllowedOrigins)

	if cfg.Server.TLS.Mode == "auto" {
		if err := os.MkdirAll(cfg.Server.TLS.Auto.CacheDir, 0o700); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("creating certificate cache dir: %w", err)
		}
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port, router, server.TLSOptions{
		Mode:     cfg.Server.TLS.Mode,
		CertFile: cfg.Server.TLS.CertFile,
		KeyFile:  cfg.Server.TLS.KeyFile,
		Domain:   cfg.Server.TLS.Auto.Domain,
		Email:    cfg.Server.TLS.Auto.Email,
		CacheDir: cfg.Server.TLS.Auto.CacheDir,
	})

	return &App{
		Config:       cfg,
		DB:           db,
		Server:       srv,
		RateLimiter:  limiter,
		SessionStore: sessionStore,
		Previews:     previewRepo,
		Pipeline:     previewPipeline,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	// Sweep expired provider embeds on a schedule; each pass is bounded,
	// so the loop re-runs until the table reports no more expired rows.
	go func() {
		ticker := time.NewTicker(a.Config.Previews.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.sweepExpiredOembed(ctx)
			}
		}
	}()

	// Start rate limiter cleanup
	if a.RateLimiter != nil {
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.RateLimiter.Cleanup()
				}
			}
		}()
	}

	// Start expired session cleanup
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = a.SessionStore.DeleteExpired()
			}
		}
	}()

	slog.Info("starting huddle backend",
		"addr", a.Server.Addr(),
		"database", a.Config.Database.Path,
		"blob_backend", a.Config.Blob.Backend,
		"tls", a.Server.TLSMode(),
	)

	return a.Server.Start()
}

func (a *App) sweepExpiredOembed(ctx context.Context) {
	total := 0
	for {
		n, err := a.Previews.SweepExpiredOembed(ctx, time.Now().UTC(), a.Config.Previews.SweepBatch)
		if err != nil {
			slog.Error("oembed sweep failed", "error", err)
			return
		}
		total += n
		if n == 0 {
			break
		}
	}
	if total > 0 {
		slog.Info("swept expired oembed rows", "deleted", total)
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.Server.Shutdown(ctx); err != nil {
		return err
	}
	return a.DB.Close()
}
