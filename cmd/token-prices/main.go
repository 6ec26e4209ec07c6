package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tc.com/token-prices/pkg/config"
	"tc.com/token-prices/pkg/engine"
	"tc.com/token-prices/pkg/engine/breaker"
	"tc.com/token-prices/pkg/logging"
	"tc.com/token-prices/pkg/metrics"
	"tc.com/token-prices/pkg/server/api"
	"tc.com/token-prices/pkg/sources"
	"tc.com/token-prices/pkg/version"

	// Import sources to register them
	_ "tc.com/token-prices/pkg/sources/cex"
	_ "tc.com/token-prices/pkg/sources/evm"
	_ "tc.com/token-prices/pkg/sources/oracle"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("token-prices version %s\n", version.Version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting token-prices", "version", version.Version)

	// Initialize metrics
	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- run(ctx, cfg, logger)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("Service failed", "error", err)
			cancel()
		}
	}

	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	eng := engine.New(engine.Options{
		TTLOverrides:     ttlOverrides(cfg),
		CallTimeout:      cfg.Engine.CallTimeout.ToDuration(),
		BatchConcurrency: cfg.Engine.BatchConcurrency,
		BreakerDefaults: breaker.Config{
			FailureThreshold: cfg.Engine.Breaker.FailureThreshold,
			RecoveryTimeout:  cfg.Engine.Breaker.RecoveryTimeout.ToDuration(),
		},
		Logger: logger,
	})
	defer eng.Close()

	// Build sources from the registry
	registered := 0
	var discovery sources.Discoverer
	for _, sourceCfg := range cfg.EnabledSources() {
		logger.Info("Initializing source", "type", sourceCfg.Type, "name", sourceCfg.Name, "priority", sourceCfg.Priority)

		// Add logger to config so sources don't create their own
		if sourceCfg.Config == nil {
			sourceCfg.Config = make(map[string]interface{})
		}
		sourceCfg.Config["logger"] = logger

		source, err := sources.Create(sources.SourceType(sourceCfg.Type), sourceCfg.Name, sourceCfg.Config)
		if err != nil {
			logger.Warn("Failed to create source", "type", sourceCfg.Type, "name", sourceCfg.Name, "error", err)
			continue
		}

		if err := source.Initialize(ctx); err != nil {
			logger.Warn("Failed to initialize source", "source", source.Name(), "error", err)
			continue
		}

		eng.Register(source, sources.SourceDescriptor{
			ID:           source.Name(),
			Priority:     sourceCfg.Priority,
			Capabilities: capabilitiesOf(source),
			RateLimit:    sourceCfg.RateLimit,
			Burst:        sourceCfg.Burst,
		})
		if sourceCfg.Breaker != nil {
			eng.ConfigureBreaker(source.Name(), breaker.Config{
				FailureThreshold: sourceCfg.Breaker.FailureThreshold,
				RecoveryTimeout:  sourceCfg.Breaker.RecoveryTimeout.ToDuration(),
			})
		}
		// The first discovery-capable source backs the search,
		// trending and market endpoints.
		if d, ok := source.(sources.Discoverer); ok && discovery == nil {
			discovery = d
		}
		registered++

		logger.Info("Source registered", "source", source.Name(), "priority", sourceCfg.Priority)
	}

	if registered == 0 {
		return fmt.Errorf("no sources available")
	}

	// Start the cache sweeper
	go eng.Run(ctx)

	// Assemble the HTTP surface
	server := api.NewServer(cfg, eng, logger)
	if discovery != nil {
		server.SetDiscovery(discovery)
	}

	var wsServer *api.WebSocketServer
	if cfg.Server.WebSocket.Enabled {
		wsServer = api.NewWebSocketServer(logger)
		wsServer.Start()
		server.SetWebSocketServer(wsServer)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown failed", "error", err)
		}
		if wsServer != nil {
			wsServer.Stop()
		}
	}()

	return server.Start()
}

// ttlOverrides converts config TTLs to engine overrides.
func ttlOverrides(cfg *config.Config) map[sources.DataClass]time.Duration {
	if len(cfg.Engine.TTL) == 0 {
		return nil
	}
	overrides := make(map[sources.DataClass]time.Duration, len(cfg.Engine.TTL))
	for class, d := range cfg.Engine.TTL {
		overrides[sources.DataClass(class)] = d.ToDuration()
	}
	return overrides
}

// capabilitiesOf collects the data classes a source supports.
func capabilitiesOf(src sources.Source) []sources.DataClass {
	all := []sources.DataClass{
		sources.DataClassSpotPrice,
		sources.DataClassMarketData,
		sources.DataClassMetadata,
		sources.DataClassHistory,
	}
	caps := make([]sources.DataClass, 0, len(all))
	for _, class := range all {
		if src.Supports(class) {
			caps = append(caps, class)
		}
	}
	return caps
}
