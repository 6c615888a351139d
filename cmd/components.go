package cmd

import (
	"time"

	"example.com/backstage/services/fleet/config"
	"example.com/backstage/services/fleet/internal/analysis"
	"example.com/backstage/services/fleet/internal/cache"
	"example.com/backstage/services/fleet/internal/database"
	"example.com/backstage/services/fleet/internal/messaging"
	"example.com/backstage/services/fleet/internal/repository"
	"example.com/backstage/services/fleet/internal/service"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// components holds the process-wide clients shared by serve and worker
type components struct {
	db        database.DB
	redis     cache.RedisClient
	messaging messaging.ServiceBusClient
	service   service.Service
}

// connectDatabase connects with exponential backoff between attempts
func connectDatabase(cfg config.DatabaseConfig) (database.DB, error) {
	var (
		db  database.DB
		err error
	)
	maxRetries := 5
	retryInterval := time.Second

	for i := 0; i < maxRetries; i++ {
		log.WithField("attempt", i+1).Info("Connecting to database...")
		db, err = database.Connect(cfg, log)
		if err == nil {
			log.Info("Successfully connected to database")
			return db, nil
		}

		log.WithFields(logrus.Fields{
			"error":         err.Error(),
			"retry_attempt": i + 1,
			"max_retries":   maxRetries,
		}).Error("Failed to connect to database, retrying...")

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2
		}
	}

	return nil, errors.Wrapf(err, "failed to connect to database after %d attempts", maxRetries)
}

// buildComponents wires the store, cache, messaging client and service layer
func buildComponents(cfg *config.Config, clientType string) (*components, error) {
	// Initialize database with retry logic
	db, err := connectDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	// Initialize Redis cache client
	log.Info("Connecting to Redis...")
	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	// Initialize messaging client
	log.Info("Connecting to message broker...")
	msgClient, err := messaging.NewServiceBusClient(cfg.ServiceBus, clientType, log)
	if err != nil {
		_ = redisClient.Close()
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to message broker")
	}

	// Create service with configuration
	svc, err := service.NewService(service.ServiceConfig{
		Repository:      repository.NewRepository(db),
		Cache:           redisClient,
		MessagingClient: msgClient,
		Analyzer:        analysis.NewFromConfig(cfg.Analysis, log),
		Logger:          log,
		Publisher: messaging.PublisherConfig{
			Workers:   cfg.ServiceBus.Workers,
			QueueSize: cfg.ServiceBus.QueueSize,
		},
		MaxLimit:   cfg.Telemetry.MaxLimit,
		ConfigTTL:  cfg.Redis.ConfigTTL,
		SampleSize: cfg.Analysis.SampleSize,
	})
	if err != nil {
		_ = msgClient.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize service")
	}

	return &components{
		db:        db,
		redis:     redisClient,
		messaging: msgClient,
		service:   svc,
	}, nil
}

// Close drains the service and releases every client in reverse order
func (c *components) Close() {
	log.Info("Shutting down service components...")
	if err := c.service.Shutdown(); err != nil {
		log.Warnf("Service shutdown error: %v", err)
	}

	log.Info("Closing messaging connection...")
	if err := c.messaging.Close(); err != nil {
		log.WithField("error", err.Error()).Error("Error closing messaging connection")
	}

	log.Info("Closing Redis connection...")
	if err := c.redis.Close(); err != nil {
		log.WithField("error", err.Error()).Error("Error closing Redis connection")
	}

	log.Info("Closing database connection...")
	if err := c.db.Close(); err != nil {
		log.WithField("error", err.Error()).Error("Error closing database connection")
	}
}
