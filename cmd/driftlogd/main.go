// Copyright 2025 Takhin Data, Inc.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/driftlog/driftlog/pkg/config"
	"github.com/driftlog/driftlog/pkg/health"
	"github.com/driftlog/driftlog/pkg/kafka/server"
	"github.com/driftlog/driftlog/pkg/logger"
	"github.com/driftlog/driftlog/pkg/metrics"
	storagelog "github.com/driftlog/driftlog/pkg/storage/log"
	"github.com/driftlog/driftlog/pkg/storage/topic"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// brokerIDs converts the configured cluster broker list to int32, the type
// used throughout the replication and protocol layers.
func brokerIDs(ids []int) []int32 {
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out
}

func main() {
	configPath := flag.String("config", "configs/driftlog.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("driftlog version %s (commit: %s, built: %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.SetDefault(log)

	log.Info("starting driftlog",
		"version", version,
		"commit", commit,
		"build_time", buildTime,
	)

	log.Info("loaded configuration",
		"broker_id", cfg.Kafka.BrokerID,
		"data_dir", cfg.Storage.DataDir,
		"log_level", cfg.Logging.Level,
	)

	// Create topic manager
	topicManager := topic.NewManager(cfg.Storage.DataDir, cfg.Storage.LogSegmentSize)
	topicManager.SetClusterBrokers(int32(cfg.Kafka.BrokerID), brokerIDs(cfg.Kafka.ClusterBrokers))
	topicManager.SetDefaultReplicationFactor(cfg.Replication.DefaultReplicationFactor)
	log.Info("initialized topic manager")

	// Initialize and start background cleaner if enabled
	var cleaner *storagelog.Cleaner
	if cfg.Storage.CleanerEnabled {
		cleanerConfig := storagelog.CleanerConfig{
			CleanupIntervalSeconds:    cfg.Storage.LogCleanupInterval / 1000, // Convert ms to seconds
			CompactionIntervalSeconds: cfg.Storage.CompactionInterval / 1000,
			RetentionPolicy: storagelog.RetentionPolicy{
				RetentionBytes: cfg.Storage.LogRetentionBytes,
				RetentionMs:    int64(cfg.Storage.LogRetentionHours) * 3600 * 1000,
			},
			CompactionPolicy: storagelog.CompactionPolicy{
				MinCleanableRatio:  cfg.Storage.MinCleanableRatio,
				MinCompactionLagMs: 0,
				DeleteRetentionMs:  24 * 60 * 60 * 1000, // 24 hours
			},
			Enabled: true,
		}
		cleaner = storagelog.NewCleaner(cleanerConfig)
		topicManager.SetCleaner(cleaner)

		if err := cleaner.Start(); err != nil {
			log.Fatal("failed to start background cleaner", "error", err)
		}
		log.Info("started background cleaner",
			"cleanup_interval_sec", cleanerConfig.CleanupIntervalSeconds,
			"compaction_interval_sec", cleanerConfig.CompactionIntervalSeconds)
	} else {
		log.Info("background cleaner is disabled")
	}

	// Start metrics server
	metricsServer := metrics.New(cfg)
	if err := metricsServer.Start(); err != nil {
		log.Fatal("failed to start metrics server", "error", err)
	}

	metricsCollector := metrics.NewCollector(topicManager, nil, 0)
	metricsCollector.Start()

	// Start health check server
	var healthServer *health.Server
	if cfg.Health.Enabled {
		healthChecker := health.NewChecker(version, topicManager)
		healthAddr := fmt.Sprintf("%s:%d", cfg.Health.Host, cfg.Health.Port)
		healthServer = health.NewServer(healthAddr, healthChecker)
		if err := healthServer.Start(); err != nil {
			log.Fatal("failed to start health check server", "error", err)
		}
		log.Info("started health check server", "port", cfg.Health.Port)
	}

	// Start Kafka server
	kafkaServer := server.New(cfg, topicManager)
	if err := kafkaServer.Start(); err != nil {
		log.Fatal("failed to start kafka server", "error", err)
	}

	log.Info("driftlog started successfully",
		"port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down driftlog")

	// Graceful shutdown
	kafkaServer.Stop()
	metricsCollector.Stop()

	// Stop health check server
	if healthServer != nil {
		if err := healthServer.Stop(); err != nil {
			log.Error("failed to stop health check server", "error", err)
		}
	}

	// Stop cleaner if running
	if cleaner != nil {
		if err := cleaner.Stop(); err != nil {
			log.Error("failed to stop cleaner", "error", err)
		}
	}

	if err := topicManager.Close(); err != nil {
		log.Error("failed to close topic manager", "error", err)
	}

	if err := metricsServer.Stop(); err != nil {
		log.Error("failed to stop metrics server", "error", err)
	}

	log.Info("driftlog stopped")
}
