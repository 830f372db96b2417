package container

import (
	"context"
	"fmt"
	"sync"

	"tripsync/internal/config"
	"tripsync/internal/realtime"
	"tripsync/internal/repository"
	"tripsync/internal/service"
	"tripsync/pkg/database"
	"tripsync/pkg/logger"
	"tripsync/pkg/redis"
)

// Runner is a background loop that feeds the realtime hub
type Runner interface {
	Run(ctx context.Context) error
	Close() error
}

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	RedisClient  *redis.Client
	DB           *database.PostgresDB
	Repositories repository.Repositories
	Hub          *realtime.Hub
	Publisher    realtime.Publisher
	SpotService  *service.SpotService
	HotelService *service.HotelService

	runners []Runner
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new dependency injection container. db may be nil in tests
// that never reach the row store.
func New(cfg *config.Config, log *logger.Logger, db *database.PostgresDB) (*Container, error) {
	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching")
	}

	c := &Container{
		Config:      cfg,
		Logger:      log,
		RedisClient: redisClient,
		DB:          db,
		Hub:         realtime.NewHub(log.Logger, cfg.HubBufferSize),
	}

	if err := c.wireRealtime(); err != nil {
		c.Close()
		return nil, err
	}

	c.Repositories = repository.Repositories{
		Spot: repository.NewSpotRepository(db),
		Vote: repository.NewVoteRepository(db),
		Room: repository.NewRoomRepository(db),
	}
	c.SpotService = service.NewSpotService(c.Repositories, c.Publisher, log.Logger)
	c.HotelService = service.NewHotelService(cfg, redisClient, log)

	return c, nil
}

// wireRealtime picks how change events reach the hub. With postgres the
// database triggers notify and the service publishes nothing; the bridges
// fan service events out through a broker so every instance sees them.
func (c *Container) wireRealtime() error {
	log := c.Logger.WithField("driver", c.Config.RealtimeDriver)

	switch c.Config.RealtimeDriver {
	case config.DriverMemory:
		c.Publisher = c.Hub

	case config.DriverPostgres:
		listenerCfg := realtime.DefaultListenerConfig(c.Config.DatabaseURL)
		listenerCfg.Channel = c.Config.RealtimeChannel
		listener, err := realtime.NewPostgresListener(listenerCfg, c.Hub, c.Logger.Logger)
		if err != nil {
			return fmt.Errorf("failed to start postgres listener: %w", err)
		}
		c.Publisher = realtime.NopPublisher{}
		c.runners = append(c.runners, listener)

	case config.DriverRedis:
		if c.RedisClient == nil {
			return fmt.Errorf("realtime driver %q requires REDIS_URL", config.DriverRedis)
		}
		bridge := realtime.NewRedisBridge(c.RedisClient, c.Config.RealtimeChannel, c.Hub, c.Logger.Logger)
		c.Publisher = bridge
		c.runners = append(c.runners, bridge)

	case config.DriverNATS:
		natsCfg := realtime.DefaultNATSConfig(c.Config.NATSURL)
		natsCfg.Subject = c.Config.RealtimeChannel
		bridge, err := realtime.ConnectNATS(natsCfg, c.Hub, c.Logger.Logger)
		if err != nil {
			return err
		}
		c.Publisher = bridge
		c.runners = append(c.runners, bridge)

	default:
		return fmt.Errorf("unknown realtime driver %q", c.Config.RealtimeDriver)
	}

	log.Info("Realtime driver configured")
	return nil
}

// Start launches the realtime runners. They stop when ctx is done or the
// container is closed.
func (c *Container) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	for _, r := range c.runners {
		c.wg.Add(1)
		go func(r Runner) {
			defer c.wg.Done()
			if err := r.Run(ctx); err != nil {
				c.Logger.WithError(err).Error("Realtime runner stopped")
			}
		}(r)
	}
}

// Close stops the runners, then releases the hub and the Redis client
func (c *Container) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	var firstErr error
	for _, r := range c.runners {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.Hub.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}
