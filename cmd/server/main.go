package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creditchat/backend/internal/api"
	"creditchat/backend/internal/conversation"
	"creditchat/backend/internal/ledger"
	"creditchat/backend/internal/models"
	"creditchat/backend/internal/registry"
	"creditchat/backend/internal/relay"
	"creditchat/backend/internal/session"
	"creditchat/backend/internal/worker"
	"creditchat/backend/pkg/cache"
	"creditchat/backend/pkg/config"
	"creditchat/backend/pkg/health"
	"creditchat/backend/pkg/jwt"
	"creditchat/backend/pkg/logger"
	"creditchat/backend/pkg/middleware"
	"creditchat/backend/pkg/observability"
	"creditchat/backend/pkg/resilience"
	"creditchat/backend/pkg/secrets"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.New()

	log := logger.New(logger.Config{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.Format == "json",
	})
	logger.SetGlobal(log)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownObservability, err := observability.Setup("creditchat", log)
	if err != nil {
		log.Error("Failed to set up observability", "error", err.Error())
		os.Exit(1)
	}

	db, err := config.NewDB()
	if err != nil {
		log.Error("Failed to connect to database", "error", err.Error())
		os.Exit(1)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Model{},
		&models.Bot{},
		&models.Session{},
		&models.ChatTurn{},
		&models.CreditEntry{},
	); err != nil {
		log.Error("Failed to migrate database", "error", err.Error())
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var registryCache *cache.Cache
	if cfg.Cache.Enabled {
		registryCache = cache.NewWithClient(redisClient, cfg.Cache.TTL)
	}

	var secretsManager secrets.Manager
	vaultCfg := secrets.VaultConfigFromEnv()
	vaultManager, err := secrets.NewVaultManager(vaultCfg, log)
	if err != nil {
		log.Error("Failed to initialize secrets manager", "error", err.Error())
		os.Exit(1)
	}
	secretsManager = vaultManager

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)

	ledgerService := ledger.NewService(db)
	convStore := conversation.NewStore(db)
	sessionManager := session.NewManager(db)
	botService := registry.NewBotService(db, registryCache, log)
	modelService := registry.NewModelService(db, registryCache, log)

	pool := worker.NewPool(32, 256, log)

	upstreamHTTP := &http.Client{
		Timeout: cfg.Upstream.ReadTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: cfg.Upstream.ConnectTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   cfg.Upstream.ConnectTimeout,
			ResponseHeaderTimeout: cfg.Upstream.WriteTimeout,
			MaxIdleConnsPerHost:   16,
		},
	}
	breaker := resilience.New(resilience.DefaultConfig("upstream"), log)
	upstream := relay.NewUpstreamClient(upstreamHTTP, breaker, log)

	relayService := relay.NewService(
		sessionManager,
		convStore,
		ledgerService,
		secretsManager,
		upstream,
		pool,
		log,
		relay.Config{
			StreamTTL:  cfg.Relay.StreamTTL,
			WindowSize: cfg.Relay.WindowSize,
		},
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker(log, 30*time.Second)
	checker.RegisterDatabase(db)
	checker.RegisterRedis(redisClient)
	checker.Start(rootCtx)

	chatLimiter := middleware.NewRateLimiter(log, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			if user := api.CurrentUser(c); user != nil {
				return user.Username
			}
			return c.ClientIP()
		},
	})

	router := api.NewRouter(api.Deps{
		DB:         db,
		JWTService: jwtService,
		Ledger:     ledgerService,
		Sessions:   sessionManager,
		Conv:       convStore,
		Bots:       botService,
		Models:     modelService,
		Relay:      relayService,
		Health:     checker,
		Logger:     log,
		ChatLimit:  chatLimiter,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err.Error())
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err.Error())
	}
	// Let in-flight streams finish so their assistant turns are persisted.
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Warn("Worker pool drained with timeout", "error", err.Error())
	}
	if err := redisClient.Close(); err != nil {
		log.Warn("Redis close failed", "error", err.Error())
	}
	shutdownObservability(context.Background())
	log.Info("Shutdown complete")
}
