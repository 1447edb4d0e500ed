package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/NethermindEth/bridge-listener/internal/config"
	"github.com/NethermindEth/bridge-listener/internal/contracts"
	"github.com/NethermindEth/bridge-listener/internal/ledger"
	"github.com/NethermindEth/bridge-listener/internal/listener"
	"github.com/NethermindEth/bridge-listener/internal/metrics"
	"github.com/NethermindEth/bridge-listener/internal/processor"
	"github.com/NethermindEth/bridge-listener/internal/publisher"
	"github.com/NethermindEth/bridge-listener/internal/submitter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// Custom formatter that outputs only the message
type cleanFormatter struct{}

func (f *cleanFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return append([]byte(entry.Message), '\n'), nil
}

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a config file (yaml, toml or json)")
	pflag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging
	logger := setupLogger(cfg)
	logger.Info("🌉 Bridge Listener 🌉")

	abis, err := contracts.ParseBridgeABIs(cfg.Event.Name, cfg.Event.ABI)
	if err != nil {
		logger.Fatalf("❌ Failed to parse bridge ABIs: %v", err)
	}

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := ledger.NewEVMClient(cfg.Source.Name, cfg.Source.RPCURL,
		ledger.WithChainID(cfg.Source.ChainID),
		ledger.WithRateLimit(cfg.RPC.RequestsPerSecond, cfg.RPC.Burst),
		ledger.WithLogger(logger),
	)
	defer source.Close()

	destination := ledger.NewEVMClient(cfg.Destination.Name, cfg.Destination.RPCURL,
		ledger.WithChainID(cfg.Destination.ChainID),
		ledger.WithRateLimit(cfg.RPC.RequestsPerSecond, cfg.RPC.Burst),
		ledger.WithLogger(logger),
	)
	defer destination.Close()

	store, err := processor.OpenNonceStore(ctx, cfg.Dedup)
	if err != nil {
		logger.Fatalf("❌ Failed to open %s nonce store: %v", cfg.Dedup.Backend, err)
	}
	defer store.Close()
	logger.Infof("🗃️  Nonce store: %s", cfg.Dedup.Backend)

	var pub publisher.Publisher = publisher.Noop{}
	if len(cfg.Publisher.KafkaBrokers) > 0 {
		kafka, err := publisher.NewKafkaPublisher(cfg.Publisher.KafkaBrokers, cfg.Publisher.KafkaTopic, nil)
		if err != nil {
			logger.Fatalf("❌ Failed to connect to Kafka: %v", err)
		}
		pub = kafka
		logger.Infof("📣 Publishing submission results to %s", cfg.Publisher.KafkaTopic)
	}
	defer pub.Close()

	sub, err := submitter.New(cfg, abis.Destination, destination, logger)
	if err != nil {
		logger.Fatalf("❌ Failed to create submitter: %v", err)
	}
	logger.Infof("📤 Submission mode: %s", cfg.Submitter.Mode)

	bridge := listener.NewBridgeListener(cfg.Listener, listener.Target{
		Contract: cfg.Source.ContractAddress,
		Event:    abis.LockEvent,
	}, listener.Components{
		Source:      source,
		Destination: destination,
		Processor:   processor.NewEventProcessor(store, logger),
		Submitter:   sub,
		Publisher:   pub,
	}, logger)

	go func() {
		<-sigChan
		logger.Info("🔄 Received shutdown signal, finishing current range...")
		bridge.Stop()
		cancel()
	}()

	if err := bridge.Initialize(ctx); err != nil {
		if errors.Is(err, listener.ErrStopped) {
			logger.Info("✅ Listener shutdown complete")
			return
		}
		logger.Fatalf("❌ Failed to initialize listener: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return bridge.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		logger.Infof("📈 Serving metrics on %s", cfg.MetricsAddr)
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("❌ Listener exited with error: %v", err)
		os.Exit(1)
	}
	logger.Info("✅ Listener shutdown complete")
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %s, using info: %v", cfg.LogLevel, err)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Set log format
	switch cfg.LogFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "clean":
		logger.SetFormatter(&cleanFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
