// Package app initializes and runs the main application service.
// It configures logging, storage, the redirect cache and routing,
// and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tierlink/tierlink/internal/config"
	"github.com/tierlink/tierlink/internal/db/jsondb"
	"github.com/tierlink/tierlink/internal/db/memorystorage"
	"github.com/tierlink/tierlink/internal/db/postgresdb"
	"github.com/tierlink/tierlink/internal/logger"
	"github.com/tierlink/tierlink/internal/models"
	"github.com/tierlink/tierlink/internal/ratelimit"
	"github.com/tierlink/tierlink/internal/router"
	"github.com/tierlink/tierlink/internal/service"
	"github.com/tierlink/tierlink/internal/urlcache"
	"github.com/tierlink/tierlink/internal/user"
)

const redirectCacheTTL = time.Hour

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User) error
	GetUserByID(ctx context.Context, userID string) (*user.User, bool, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	ReserveQuotaUnit(ctx context.Context, userID string, maxRequests int) (bool, error)
	ReleaseQuotaUnit(ctx context.Context, userID string) error
}

type urlsKeeper interface {
	InsertURLMapping(ctx context.Context, record models.URLRecord) error
	FindFullByShort(ctx context.Context, short string) (string, bool, error)
	GetUserUrls(ctx context.Context, ownerUserID string) (models.UserUrls, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	userKeeper
	urlsKeeper
	pinger
	Close() error
}

// App encapsulates the configuration, HTTP handler, storage backend and the
// optional redirect cache needed to run the URL shortener service.
type App struct {
	cfg         *config.Config
	db          storage
	cache       *urlcache.Cache
	stopJanitor context.CancelFunc
	httpHandler http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - connecting the optional Redis redirect cache
// - setting up the router and middleware
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	serviceOptions := []service.Option{}
	if app.cfg.RedisDSN != "" {
		app.cache, err = urlcache.New(context.Background(), app.cfg.RedisDSN, redirectCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("connecting the redirect cache: %w", err)
		}
		serviceOptions = append(serviceOptions, service.WithRedirectCache(app.cache))
	}

	svc := service.New(
		app.db,
		app.cfg.ShortURLBase,
		app.cfg.DefaultCodeLength,
		serviceOptions...,
	)

	limiter := ratelimit.NewStore(app.cfg.RateLimitRPS, app.cfg.RateLimitBurst)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	app.stopJanitor = stopJanitor
	limiter.StartJanitor(janitorCtx)

	app.httpHandler = router.New(svc, limiter)

	return app, nil
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Saving database and exiting...")
		a.stopJanitor()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		if a.cache != nil {
			if err := a.cache.Close(); err != nil {
				logger.Log.Debugln("closing the redirect cache:", err)
			}
		}

		return a.db.Close()

	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}
