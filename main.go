package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"tripsync/internal/config"
	"tripsync/internal/container"
	"tripsync/internal/handler"
	"tripsync/internal/middleware"
	"tripsync/pkg/database"
	"tripsync/pkg/logger"
)

// Resources holds all resources that need cleanup
type Resources struct {
	db        *database.PostgresDB
	container *container.Container
	server    *http.Server
	log       *logger.Logger
	mu        sync.Mutex
	closed    bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errors []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests. Hijacked
	// websocket connections end when the hub closes below.
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errors = append(errors, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Stop the realtime runners, the hub and Redis
	if r.container != nil {
		r.log.Info("Stopping realtime feed...")
		if r.container.HasRedis() {
			healthCtx, healthCancel := context.WithTimeout(ctx, 2*time.Second)
			if err := r.container.GetRedisClient().Health(healthCtx); err != nil {
				r.log.WithError(err).Warn("Redis health check failed before closing")
			}
			healthCancel()
		}
		if err := r.container.Close(); err != nil {
			r.log.WithError(err).Error("Failed to stop realtime feed")
			errors = append(errors, fmt.Errorf("realtime shutdown: %w", err))
		} else {
			r.log.Info("Realtime feed stopped successfully")
		}
	}

	// Close database connection pool with health check
	if r.db != nil {
		r.log.Info("Closing database connection pool...")

		healthCtx, healthCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := r.db.Health(healthCtx); err != nil {
			r.log.WithError(err).Warn("Database health check failed before closing")
		}
		healthCancel()

		r.db.Close()
		r.log.Info("Database connection pool closed successfully")
	}

	if len(errors) > 0 {
		r.log.WithField("error_count", len(errors)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errors), errors)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":            cfg.Port,
		"log_level":       cfg.LogLevel,
		"environment":     cfg.Environment,
		"realtime_driver": cfg.RealtimeDriver,
	}).Info("Starting tripsync server")

	// Initialize database connection
	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Create dependency injection container
	c, err := container.New(cfg, log, db)
	if err != nil {
		db.Close()
		log.WithError(err).Fatal("Failed to create container")
	}

	runCtx, stopRunners := context.WithCancel(ctx)
	defer stopRunners()
	c.Start(runCtx)

	// Setup router
	router := setupRouter(c)

	// Create HTTP server
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	// Create resources manager for cleanup
	resources := &Resources{
		db:        db,
		container: c,
		server:    server,
		log:       log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	// Setup cleanup function that will be called regardless of how the program exits
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	// Perform cleanup - this will be called here and also in defer for safety
	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	healthHandler := handler.NewHealthHandler(c)
	spotHandler := handler.NewSpotHandler(c.SpotService, log)
	hotelHandler := handler.NewHotelHandler(c.HotelService, log)
	realtimeHandler := handler.NewRealtimeHandler(c.Hub, handler.DefaultRealtimeConfig(), log)
	hotelLimiter := middleware.NewRateLimiter(cfg.HotelLookupRPS, cfg.HotelLookupBurst, log)

	r.Get("/health", healthHandler.Check)

	// Long-lived websocket, kept out of the compression and timeout group
	r.Get("/ws/rooms/{roomID}", realtimeHandler.Serve)

	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Compress(5))
		r.Use(chiMiddleware.Timeout(60 * time.Second))

		r.Route("/api", func(r chi.Router) {
			spotHandler.RegisterRoutes(r)
			r.With(hotelLimiter.Limit).Get("/search_hotel", hotelHandler.Search)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"not_found","message":"Endpoint not found"}}`))
	})

	log.Info("Router configured successfully")
	return r
}
