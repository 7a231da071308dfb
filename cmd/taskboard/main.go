package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/api"
	"taskboard/config"
	"taskboard/domain"
	"taskboard/events"
	"taskboard/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	var rc *redis.Client
	if cfg.RedisConnectionString != "" {
		opts, err := storage.ParseRedisOptions(cfg.RedisConnectionString)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(opts)
		defer rc.Close()
	}

	store, err := newStore(cfg, rc)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	pub, err := newPublisher(cfg, rc, logger)
	if err != nil {
		log.Fatalf("events: %v", err)
	}
	dispatcher := events.NewDispatcher(pub, events.Options{
		Workers:        cfg.EventWorkers,
		Buffer:         cfg.EventBuffer,
		PublishTimeout: cfg.EventPublishTimeout(),
	}, logger)

	ctx := context.Background()
	auth := domain.NewAuthService(store, domain.UUIDGenerator{}, domain.AuthOptions{
		BootstrapEmail:     cfg.BootstrapAdminEmail,
		BootstrapPassword:  cfg.BootstrapAdminPassword,
		SeedBootstrapAdmin: cfg.SeedBootstrapAdmin,
		VerifyPasswords:    cfg.VerifyPasswords,
		Hasher:             domain.NewPasswordHasher(cfg.BcryptCost),
	})
	if err := auth.Init(ctx); err != nil {
		log.Fatalf("init users: %v", err)
	}

	secret, err := sessionSecret(cfg.SessionSecret)
	if err != nil {
		log.Fatalf("session secret: %v", err)
	}
	if cfg.SessionSecret == "" {
		log.Warn("SESSION_SECRET not set, using a random secret; sessions end on restart")
	}

	done := make(chan struct{})
	deps := api.Deps{
		Auth:        auth,
		Departments: domain.NewDepartmentRegistry(store, domain.UUIDGenerator{}, nil),
		Board:       domain.NewBoard(store, domain.UUIDGenerator{}, nil),
		Sessions:    api.NewSessions(secret, cfg.SessionIssuer, cfg.Session()),
		Events:      dispatcher,
		Health:      store,
		Logger:      logger,
		Done:        done,
	}
	if rc != nil {
		deps.Deduper = api.NewRedisDeduper(rc, "", cfg.Idempotency())
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.IdempotencyKeyHeader},
	}))
	api.Register(e, deps)

	go func() {
		log.Infof("taskboard listening on %s, backend: %s", cfg.HTTPAddr, cfg.StoreBackend)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// Shutdown does not cancel open board streams.
	close(done)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	dispatcher.Stop()
	log.Info("taskboard stopped")
}

// newStore builds the configured backend. The tables backend is fronted by the
// redis cache when a cache TTL is set.
func newStore(cfg *config.Config, rc *redis.Client) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	case config.BackendRedis:
		if rc == nil {
			return nil, errors.New("redis backend needs a redis client")
		}
		return storage.NewRedisStore(rc, cfg.StoreNamespace)
	case config.BackendTables:
		tables, err := storage.NewTableStore(cfg.StorageConnectionString, cfg.StoreTable, cfg.StoreNamespace)
		if err != nil {
			return nil, err
		}
		if ttl := cfg.StoreCache(); ttl > 0 && rc != nil {
			return storage.NewCache(tables, rc, cfg.StoreNamespace, ttl), nil
		}
		return tables, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// newPublisher always logs events and also forwards them to the redis channel
// and the Azure queue when those are configured.
func newPublisher(cfg *config.Config, rc *redis.Client, logger *log.Logger) (events.Publisher, error) {
	pubs := events.Multi{events.NewLogPublisher(logger)}
	if cfg.EventsChannel != "" && rc != nil {
		pubs = append(pubs, events.NewRedisPublisher(rc, cfg.EventsChannel))
	}
	if cfg.EventsQueue != "" {
		q, err := events.NewQueuePublisher(cfg.StorageConnectionString, cfg.EventsQueue)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, q)
	}
	return pubs, nil
}

func sessionSecret(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}
