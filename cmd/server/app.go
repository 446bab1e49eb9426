package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/kneutral-org/articlelock/internal/api"
	"github.com/kneutral-org/articlelock/internal/article"
	"github.com/kneutral-org/articlelock/internal/config"
	"github.com/kneutral-org/articlelock/internal/database"
	"github.com/kneutral-org/articlelock/internal/editor"
	"github.com/kneutral-org/articlelock/internal/health"
	"github.com/kneutral-org/articlelock/internal/lock"
	"github.com/kneutral-org/articlelock/internal/logging"
	"github.com/kneutral-org/articlelock/internal/metrics"
	"github.com/kneutral-org/articlelock/internal/middleware"
	"github.com/kneutral-org/articlelock/internal/user"
)

// app holds the wired service and the resources it must release.
type app struct {
	router  *gin.Engine
	grpc    *grpc.Server
	checker *health.Checker
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{checker: health.NewChecker(logger)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var pool *pgxpool.Pool
	if cfg.StoreBackend == config.BackendPostgres || cfg.LockBackend == config.BackendPostgres {
		pool, err = database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.checker.Register("articlelock.Database", pool.Ping)
	}

	var (
		users    user.Store
		articles article.Store
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		users = user.NewPostgresStore(pool)
	default:
		users = user.NewInMemoryStore()
	}

	cached, err := user.NewCachedStore(users, cfg.UserCacheTTL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cached.Close)
	users = cached

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		articles = article.NewPostgresStore(pool)
	default:
		articles = article.NewInMemoryStore(users)
	}

	locks, err := a.newLockStore(ctx, cfg, pool)
	if err != nil {
		return nil, err
	}

	manager := lock.NewManager(locks, articles, users, logger, lock.WithTTL(cfg.LockTTL))
	coordinator := editor.NewCoordinator(articles, users, manager, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(metrics.HTTPMiddleware())

	router.GET("/health", func(c *gin.Context) {
		if !a.checker.Refresh(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	metrics.RegisterMetricsEndpoint(router)

	apiGroup := router.Group("/api")
	apiGroup.Use(middleware.PayloadLimit(cfg.MaxPayloadSize, logger))
	api.NewHandler(coordinator, manager, logger).RegisterRoutes(apiGroup)

	a.router = router
	a.grpc = health.NewServer(a.checker, logger, cfg.GRPCMaxMessageSize)

	logger.Info().
		Str("storeBackend", cfg.StoreBackend).
		Str("lockBackend", cfg.LockBackend).
		Dur("lockTTL", manager.TTL()).
		Msg("service wired")

	return a, nil
}

func (a *app) newLockStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (lock.Store, error) {
	switch cfg.LockBackend {
	case config.BackendPostgres:
		return lock.NewPostgresStore(pool), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checker.Register("articlelock.Redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return lock.NewRedisStore(client), nil

	case config.BackendBadger:
		db, err := lock.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.checker.Register("articlelock.Badger", func(ctx context.Context) error {
			if db.IsClosed() {
				return badger.ErrDBClosed
			}
			return nil
		})
		return lock.NewBadgerStore(db), nil

	default:
		return lock.NewMemoryStore(), nil
	}
}

// serve runs the HTTP and gRPC servers until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.TracingEnabled {
		shutdown, err := setupTracing()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("port", cfg.GRPCPort).Msg("starting gRPC server")
		return a.grpc.Serve(grpcLis)
	})

	g.Go(func() error {
		a.checker.Run(ctx, 15*time.Second)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		a.grpc.GracefulStop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server exited properly")
	return nil
}
