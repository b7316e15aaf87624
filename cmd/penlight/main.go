package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/penlight/penlight/internal/auth"
	"github.com/penlight/penlight/internal/cache"
	"github.com/penlight/penlight/internal/config"
	"github.com/penlight/penlight/internal/geoip"
	"github.com/penlight/penlight/internal/handler"
	"github.com/penlight/penlight/internal/handler/api"
	"github.com/penlight/penlight/internal/logging"
	"github.com/penlight/penlight/internal/middleware"
	"github.com/penlight/penlight/internal/render"
	"github.com/penlight/penlight/internal/scheduler"
	"github.com/penlight/penlight/internal/service"
	"github.com/penlight/penlight/internal/session"
	"github.com/penlight/penlight/internal/store"
	"github.com/penlight/penlight/internal/upload"
	"github.com/penlight/penlight/internal/version"
	"github.com/penlight/penlight/web"
)

// Version information injected at build time via ldflags.
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

// PageCacheTTL is how long a rendered page may be served from Redis.
const PageCacheTTL = 5 * time.Minute

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Penlight - a small publishing platform\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PENLIGHT_SESSION_SECRET  Session signing key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PENLIGHT_DB_PATH         SQLite database path (default: ./data/penlight.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PENLIGHT_UPLOAD_DIR      Uploaded image directory (default: ./data/uploads)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PENLIGHT_SERVER_PORT     Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PENLIGHT_ENV             Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PENLIGHT_TOKEN_SECRET    API token signing key (default: session secret)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PENLIGHT_REDIS_URL       Redis URL for the rendered-page cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PENLIGHT_GEOIP_DB        MaxMind database for auth event geolocation (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *showVersion {
		info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}
		fmt.Printf("penlight %s\n", info)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env files are a development convenience
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var baseHandler slog.Handler
	if cfg.IsDevelopment() {
		baseHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		baseHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(baseHandler))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// From here on WARN and ERROR records also land in the events table
	slog.SetDefault(slog.New(logging.NewEventHandler(baseHandler, db)))

	ctx := context.Background()
	if cfg.SeedAdmin {
		if err := store.Seed(ctx, db); err != nil {
			return fmt.Errorf("seeding database: %w", err)
		}
	}

	uploads, err := upload.NewStore(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("initializing upload store: %w", err)
	}

	sessionManager := session.New(db, cfg.IsDevelopment())

	renderer, err := render.New(web.Templates, sessionManager, cfg.IsDevelopment())
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}

	geo, err := geoip.New(cfg.GeoIPDBPath)
	if err != nil {
		slog.Warn("geoip lookup disabled", "error", err)
	} else if geo.Enabled() {
		defer func() { _ = geo.Close() }()
		slog.Info("geoip lookup enabled", "path", cfg.GeoIPDBPath)
	}

	pageCache, err := cache.New(cfg.RedisURL, PageCacheTTL)
	if err != nil {
		slog.Warn("page cache disabled", "error", err)
	} else if pageCache.Enabled() {
		defer func() { _ = pageCache.Close() }()
		slog.Info("page cache enabled", "url", cfg.RedisURL)
	}

	events := service.NewEventService(db, geo)
	tokenIssuer := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)

	sched := scheduler.New(db, uploads, slog.Default())
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	articles := handler.NewArticlesHandler(db, renderer, sessionManager, uploads, events, pageCache)
	authH := handler.NewAuthHandler(db, renderer, sessionManager, events)
	profile := handler.NewProfileHandler(db, renderer, sessionManager, uploads)
	apiAuth := api.NewAuthHandler(db, tokenIssuer, events)
	apiArticles := api.NewArticlesHandler(db, uploads, events, pageCache)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))

	// Static assets and uploaded media
	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		return fmt.Errorf("getting static fs: %w", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	csrf := middleware.CSRF([]byte(cfg.SessionSecret), cfg.IsDevelopment())

	// Public web pages
	r.Group(func(r chi.Router) {
		r.Use(sessionManager.LoadAndSave)
		r.Use(middleware.LoadUser(sessionManager, db))
		r.Use(csrf)

		// Anonymous page views are served from Redis when configured
		cached := middleware.PageCache(pageCache, sessionManager)
		r.With(cached).Get("/", articles.List)
		r.With(cached).Get("/articles/{id}", articles.Show)

		r.Group(func(r chi.Router) {
			r.Use(middleware.LoginRateLimit())
			r.Get("/login", authH.LoginForm)
			r.Post("/login", authH.Login)
			r.Get("/register", authH.RegisterForm)
			r.Post("/register", authH.Register)
		})

		// Signed-in area
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(sessionManager))

			r.Post("/logout", authH.Logout)

			r.Get("/articles/new", articles.NewForm)
			r.Post("/articles", articles.Create)
			r.Get("/articles/{id}/edit", articles.EditForm)
			r.Post("/articles/{id}", articles.Update)
			r.Put("/articles/{id}", articles.Update)
			r.Post("/articles/{id}/delete", articles.Delete)
			r.Delete("/articles/{id}/delete", articles.Delete)

			r.Get("/profile", profile.Show)
			r.Get("/profile/edit", profile.EditForm)
			r.Post("/profile/edit", profile.Edit)
			r.Get("/profile/password", profile.PasswordForm)
			r.Post("/profile/password", profile.Password)
		})
	})

	// JSON API
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIRateLimit(20, 40))

		r.With(middleware.LoginRateLimit()).Post("/auth/login", apiAuth.Login)
		r.Get("/articles", apiArticles.List)
		r.Get("/articles/{id}", apiArticles.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.TokenAuth(tokenIssuer, db))

			r.Get("/auth/me", apiAuth.Me)
			r.Post("/articles", apiArticles.Create)
			r.Put("/articles/{id}", apiArticles.Update)
			r.Delete("/articles/{id}", apiArticles.Delete)
		})
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr, "env", cfg.Env, "version", appVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
