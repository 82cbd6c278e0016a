// Package main is the entry point for the vehicle inspection service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/cache"
	"github.com/autoerp-inspection/backend/internal/config"
	"github.com/autoerp-inspection/backend/internal/database"
	"github.com/autoerp-inspection/backend/internal/erpclient"
	"github.com/autoerp-inspection/backend/internal/handler"
	"github.com/autoerp-inspection/backend/internal/inspection"
	"github.com/autoerp-inspection/backend/internal/persistence"
	"github.com/autoerp-inspection/backend/internal/photo"
	"github.com/autoerp-inspection/backend/internal/records"
	"github.com/autoerp-inspection/backend/internal/storage"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	role := flag.String("role", "", "Service role: inspection or records (overrides SERVICE_ROLE env var)")
	port := flag.String("port", "", "Server port (overrides SERVER_PORT env var)")
	flag.Parse()

	if *role != "" {
		os.Setenv("SERVICE_ROLE", *role)
	}
	if *port != "" {
		os.Setenv("SERVER_PORT", *port)
	}

	app := fx.New(
		fx.Provide(
			config.New,
			newLogger,
			newGinEngine,
		),
		fx.Invoke(startServer),
	)

	app.Run()
}

// newLogger creates a new zap logger based on the environment.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newGinEngine creates and configures a new Gin engine.
func newGinEngine(cfg *config.Config) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	// CORS middleware
	engine.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	return engine
}

// startServer registers the routes of the configured role and starts the
// HTTP server.
func startServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger, engine *gin.Engine) error {
	logger.Info("Starting service",
		zap.String("role", cfg.Role),
		zap.String("port", cfg.ServerPort),
	)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"role":    cfg.Role,
			"service": "vehicle-inspection",
		})
	})

	var closers []func()

	switch {
	case cfg.IsRecords():
		repo, err := database.NewPostgresRepository(cfg, logger)
		if err != nil {
			logger.Error("Failed to connect to database", zap.Error(err))
			return err
		}
		closers = append(closers, repo.Close)

		h := records.NewHandler(repo, logger)
		h.RegisterRoutes(engine.Group("/orders"))

		logger.Info("Records routes registered")
	case cfg.IsInspection():
		closer, err := registerInspection(cfg, logger, engine)
		if err != nil {
			return err
		}
		closers = append(closers, closer)

		logger.Info("Inspection routes registered", zap.String("api_url", cfg.APIURL))
	default:
		return fmt.Errorf("unknown service role %q", cfg.Role)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("Server starting", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Server shutting down")

			err := server.Shutdown(ctx)
			for _, c := range closers {
				c()
			}
			_ = logger.Sync()
			return err
		},
	})

	return nil
}

// registerInspection builds the session stack and registers its routes.
// The returned func stops the session sweeper and releases the taxonomy
// cache.
func registerInspection(cfg *config.Config, logger *zap.Logger, engine *gin.Engine) (func(), error) {
	taxonomyCache, err := cache.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		return nil, err
	}

	blobs, err := newBlobStore(cfg, logger, engine)
	if err != nil {
		_ = taxonomyCache.Close()
		return nil, err
	}

	client := erpclient.New(cfg, logger)
	registry := inspection.NewRegistry(inspection.Deps{
		Catalog: erpclient.NewCachedCatalog(client, taxonomyCache, logger),
		Records: client,
		Engine:  persistence.NewEngine(client, client, logger),
		Photos:  photo.NewManager(blobs, cfg, logger),
		Logger:  logger,
	})

	h := handler.NewHandler(registry, cfg, logger)
	h.RegisterRoutes(engine.Group("/api/v1"))

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	if cfg.SessionIdleTTL > 0 {
		go registry.RunSweeper(sweepCtx, sweepInterval(cfg.SessionIdleTTL), cfg.SessionIdleTTL)
		logger.Info("Session sweeper started", zap.Duration("idle_ttl", cfg.SessionIdleTTL))
	}

	return func() {
		stopSweep()
		_ = taxonomyCache.Close()
	}, nil
}

// sweepInterval checks a few times per TTL, capped at one minute.
func sweepInterval(ttl time.Duration) time.Duration {
	d := ttl / 4
	if d <= 0 {
		d = ttl
	}
	if d > time.Minute {
		d = time.Minute
	}
	return d
}

// newBlobStore selects the photo backend. The local backend is served from
// /photos on the same engine.
func newBlobStore(cfg *config.Config, logger *zap.Logger, engine *gin.Engine) (storage.BlobStore, error) {
	if cfg.UsesS3() {
		store, err := storage.NewS3Store(cfg, logger)
		if err != nil {
			logger.Error("Failed to configure S3 photo store", zap.Error(err))
			return nil, err
		}
		return store, nil
	}

	store, err := storage.NewLocalStore(cfg.PhotoLocalPath, cfg.PublicBaseURL, logger)
	if err != nil {
		logger.Error("Failed to prepare local photo store", zap.Error(err))
		return nil, err
	}
	engine.Static("/photos", store.BasePath())
	return store, nil
}
