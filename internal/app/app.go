package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/vadim/blinka/internal/config"
	httpcontroller "github.com/vadim/blinka/internal/controller/http"
	"github.com/vadim/blinka/internal/database"
	directdao "github.com/vadim/blinka/internal/domain/direct/dao"
	directservice "github.com/vadim/blinka/internal/domain/direct/service"
	followdao "github.com/vadim/blinka/internal/domain/follow/dao"
	followservice "github.com/vadim/blinka/internal/domain/follow/service"
	identitydao "github.com/vadim/blinka/internal/domain/identity/dao"
	identityscheduler "github.com/vadim/blinka/internal/domain/identity/scheduler"
	identityservice "github.com/vadim/blinka/internal/domain/identity/service"
	notificationdao "github.com/vadim/blinka/internal/domain/notification/dao"
	notificationservice "github.com/vadim/blinka/internal/domain/notification/service"
	postdao "github.com/vadim/blinka/internal/domain/post/dao"
	postservice "github.com/vadim/blinka/internal/domain/post/service"
	storydao "github.com/vadim/blinka/internal/domain/story/dao"
	storyservice "github.com/vadim/blinka/internal/domain/story/service"
	"github.com/vadim/blinka/internal/httpx/response"
	"github.com/vadim/blinka/internal/realtime"
	"github.com/vadim/blinka/internal/session"
	"github.com/vadim/blinka/internal/storage"
)

// App is the main application container
type App struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	// Infrastructure
	pool     *pgxpool.Pool
	redis    *redis.Client
	blobs    *storage.S3Storage
	hub      *realtime.Hub
	listener *realtime.PostgresListener
	broker   *realtime.RedisBroker

	// Domain services
	identity      *identityservice.Service
	direct        *directservice.Service
	follows       *followservice.Service
	notifications *notificationservice.Service
	stories       *storyservice.Service
	posts         *postservice.Service

	// Sweeper for expired and revoked sessions
	sweeper *identityscheduler.Scheduler
}

// NewApp creates and initializes the application
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger := newLogger(cfg.Log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler)

	app := &App{
		cfg:    cfg,
		router: r,
		logger: logger,
	}

	if err := app.initInfrastructure(ctx); err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	app.initDomains()
	app.registerRoutes()

	// WriteTimeout stays unset so live view sockets are not cut off;
	// REST routes are bounded by the timeout middleware instead.
	app.httpServer = &http.Server{
		Addr:        cfg.Server.Address(),
		Handler:     app.router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	if cfg.Auth.SweepInterval > 0 {
		app.sweeper = identityscheduler.New(app.identity, cfg.Auth.SweepInterval, logger)
	}

	return app, nil
}

func newLogger(cfg config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// initInfrastructure connects to PostgreSQL, Redis and object storage and wires the realtime bridge
func (a *App) initInfrastructure(ctx context.Context) error {
	pool, err := database.NewPostgresPool(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pool = pool

	if a.cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		a.logger.Info("database schema applied")
	}

	a.blobs = storage.NewS3Storage(a.cfg.S3)

	rt := a.cfg.Realtime
	a.hub = realtime.NewHub(a.logger.With("component", "realtime_hub"), realtime.WithSubscriberBuffer(rt.SubscriberBuffer))

	listenerOpts := []realtime.ListenerOption{realtime.WithReconnectInterval(rt.ReconnectInterval)}
	var sink realtime.Publisher = a.hub

	switch rt.Broker {
	case "", "local":
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		a.broker = realtime.NewRedisBroker(a.redis, rt.RedisChannel, a.hub, a.logger)
		sink = a.broker
		listenerOpts = append(listenerOpts, realtime.WithLeaderLock(rt.LeaderLockKey))
	default:
		return fmt.Errorf("unknown realtime broker %q", rt.Broker)
	}

	a.listener = realtime.NewPostgresListener(a.cfg.Database.PostgresDSN, rt.Channel, sink, a.logger, listenerOpts...)
	return nil
}

// initDomains initializes domain layers (DAO, Service)
func (a *App) initDomains() {
	a.identity = identityservice.New(
		identitydao.NewIdentityPostgres(a.pool),
		identitydao.NewSessionPostgres(a.pool),
		session.NewTokens(a.cfg.Auth.JWTSecret),
		a.blobs,
		identityservice.Config{
			SessionTTL: a.cfg.Auth.SessionTTL,
			BcryptCost: a.cfg.Auth.BcryptCost,
		},
	)

	a.direct = directservice.New(directdao.NewMessagePostgres(a.pool), directdao.NewPeerPostgres(a.pool))
	a.follows = followservice.New(followdao.NewFollowPostgres(a.pool))
	a.notifications = notificationservice.New(notificationdao.NewNotificationPostgres(a.pool))
	a.stories = storyservice.New(storydao.NewStoryPostgres(a.pool), a.blobs, a.logger)
	a.posts = postservice.New(postdao.NewPostPostgres(a.pool), a.blobs, a.notifications, a.logger)
}

// registerRoutes registers all HTTP routes
func (a *App) registerRoutes() {
	a.router.Get("/healthz", a.healthHandler)
	a.router.Get("/readyz", a.readyHandler)

	requireSession := httpcontroller.RequireSession(a.identity, a.logger)

	a.router.Route("/api/v1", func(r chi.Router) {
		// Live views hold their connection open
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			httpcontroller.NewLiveHandler(a.hub, httpcontroller.LiveStores{
				Threads:        a.direct,
				Notifications:  a.notifications,
				FollowRequests: a.follows,
			}, a.identity, a.cfg.Server.AllowedOrigins, a.logger).RegisterRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.cfg.Server.RequestTimeout))

			httpcontroller.NewAuthHandler(a.identity, a.logger).RegisterRoutes(r, requireSession)

			r.Group(func(r chi.Router) {
				r.Use(requireSession)

				httpcontroller.NewProfileHandler(a.identity, a.logger).RegisterRoutes(r)
				httpcontroller.NewFollowHandler(a.follows, a.logger).RegisterRoutes(r)
				httpcontroller.NewDirectHandler(a.direct, a.logger).RegisterRoutes(r)
				httpcontroller.NewNotificationHandler(a.notifications, a.logger).RegisterRoutes(r)
				httpcontroller.NewStoryHandler(a.stories, a.logger).RegisterRoutes(r)
				httpcontroller.NewPostHandler(a.posts, a.logger).RegisterRoutes(r)
			})
		})
	})
}

// healthHandler handles health check requests
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// readyHandler reports ready once the database answers
func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.pool.Ping(ctx); err != nil {
		a.logger.Warn("readiness check failed", "error", err)
		response.Unavailable(w, "database unavailable")
		return
	}
	response.OK(w, map[string]string{"status": "ready"})
}

// Run starts the application and blocks until shutdown signal
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if a.sweeper != nil {
		a.sweeper.Start(gctx)
	}

	g.Go(func() error {
		return a.listener.Run(gctx)
	})

	if a.broker != nil {
		g.Go(func() error {
			return a.broker.Run(gctx)
		})
	}

	g.Go(func() error {
		a.logger.Info("starting HTTP server", "addr", a.cfg.Server.Address())
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("received shutdown signal")
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	if a.sweeper != nil {
		a.sweeper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := a.httpServer.Shutdown(shutdownCtx)

	// Releases every live view subscription still open
	a.hub.Close()
	a.closeInfrastructure()

	if err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
