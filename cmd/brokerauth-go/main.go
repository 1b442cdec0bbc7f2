// Package main is the entrypoint for the brokerauth-go backend.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahdiBaghbani/brokerauth-go/internal/authdb"
	"github.com/MahdiBaghbani/brokerauth-go/internal/cache"
	"github.com/MahdiBaghbani/brokerauth-go/internal/config"
	"github.com/MahdiBaghbani/brokerauth-go/internal/identity"
	"github.com/MahdiBaghbani/brokerauth-go/internal/logutil"
	"github.com/MahdiBaghbani/brokerauth-go/internal/policy"
	"github.com/MahdiBaghbani/brokerauth-go/internal/resources"
	"github.com/MahdiBaghbani/brokerauth-go/internal/server"
	"github.com/MahdiBaghbani/brokerauth-go/internal/token"

	// Register authdb and cache drivers
	_ "github.com/MahdiBaghbani/brokerauth-go/internal/authdb/loader"
	_ "github.com/MahdiBaghbani/brokerauth-go/internal/cache/loader"
)

// initTimeout bounds driver startup: pool open plus liveness ping.
const initTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: prod or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	authDBDriver := flag.String("authdb-driver", "", "Auth data-source driver: gorm or static (overrides config)")
	authDBURL := flag.String("authdb-url", "", "Auth data-source locator: database URL or fixture path (overrides config)")
	tokenSecret := flag.String("token-secret", "", "API-token HMAC secret shared with the issuer (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config with precedence: mode preset -> TOML file -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   listenAddr,
			AuthDBDriver: authDBDriver,
			AuthDBURL:    authDBURL,
			TokenSecret:  tokenSecret,
			LoggingLevel: loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, err := logutil.ParseLevel(cfg.Logging.Level)
	if err != nil {
		// validate() already constrained the enum; keep the fallback
		// anyway.
		level = slog.LevelInfo
	}
	var handler slog.Handler
	if cfg.Mode == string(config.ModeDev) {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	// Construct and initialize the auth data-source driver
	driver, err := authdb.New(&authdb.DriverConfig{
		Driver:  cfg.AuthDB.Driver,
		Options: config.DriverOptions(cfg.AuthDB.Drivers, cfg.AuthDB.Driver),
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create authdb driver", "error", err)
		os.Exit(1)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), initTimeout)
	if err := driver.Init(initCtx); err != nil {
		cancelInit()
		logger.Error("failed to initialize authdb driver", "driver", driver.Name(), "error", err)
		os.Exit(1)
	}
	cancelInit()
	defer driver.Close()
	logger.Info("authdb driver ready", "driver", driver.Name())

	// Optional read-through lookup cache
	var source authdb.Source = driver
	if cfg.Cache.Enabled {
		cacheInstance, err := cache.New(cfg.Cache.Driver, config.DriverOptions(cfg.Cache.Drivers, cfg.Cache.Driver), logger)
		if err != nil {
			logger.Error("failed to create cache", "error", err)
			os.Exit(1)
		}
		defer cacheInstance.Close()
		source = authdb.NewCachedSource(driver, cacheInstance, cfg.CacheTTL(), logger)
		logger.Info("lookup cache enabled", "driver", cfg.Cache.Driver, "ttl", cfg.CacheTTL().String())
	}

	// Build the decision pipeline
	var sharedExchanges, sharedQueues []string
	for _, res := range cfg.Broker.SharedResources {
		switch res.Kind {
		case "exchange":
			sharedExchanges = append(sharedExchanges, res.Name)
		case "queue":
			sharedQueues = append(sharedQueues, res.Name)
		}
	}
	classifier := resources.NewClassifier(
		cfg.Broker.DefaultVhost,
		cfg.Broker.AutogenQueuePrefix,
		sharedExchanges,
		sharedQueues,
	)
	resolver := identity.NewResolver(source, token.NewVerifier(cfg.Token.ServerSecret), cfg.Broker.PushExchangePrefix)

	srv, err := server.New(cfg, logger, &server.Deps{
		Resolver: resolver,
		Engine:   policy.NewEngine(classifier),
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
