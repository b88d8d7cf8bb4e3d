package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dshield-mcp/dshield-mcp/internal/cache"
	"github.com/dshield-mcp/dshield-mcp/internal/config"
	"github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/health"
	"github.com/dshield-mcp/dshield-mcp/internal/intel"
	"github.com/dshield-mcp/dshield-mcp/internal/logging"
	"github.com/dshield-mcp/dshield-mcp/internal/siem"
	"github.com/dshield-mcp/dshield-mcp/internal/telemetry"
	"github.com/dshield-mcp/dshield-mcp/internal/tools"
	"github.com/dshield-mcp/dshield-mcp/internal/transport"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const shutdownGrace = 10 * time.Second

var (
	flagTCP        bool
	flagTCPMode    bool
	flagNetwork    bool
	flagTUIManaged bool
	flagConfigPath string
)

var rootCmd = &cobra.Command{
	Use:     "dshield-mcp [config-file]",
	Short:   "dshield-mcp - security analytics backend for DShield honeypot data",
	Long:    `dshield-mcp serves SIEM query, threat-intelligence enrichment and diagnostics tools over the model-context tool protocol, on local stdio or authenticated TCP.`,
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			flagConfigPath = args[0]
		}
		return runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dshield-mcp %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.Flags().BoolVar(&flagTCP, "tcp", false, "serve on TCP instead of stdio")
	rootCmd.Flags().BoolVar(&flagTCPMode, "tcp-mode", false, "serve on TCP instead of stdio")
	rootCmd.Flags().BoolVar(&flagNetwork, "network", false, "serve on TCP instead of stdio")
	rootCmd.Flags().BoolVar(&flagTUIManaged, "tui-managed", false, "stdio belongs to a managing TUI; serve on TCP")
	rootCmd.Flags().StringVar(&flagConfigPath, "config", "", "path to the configuration file")
	rootCmd.AddCommand(versionCmd)
}

// networkRequested reports whether any of the network-selecting flags was
// given. They are synonyms kept for launcher compatibility.
func networkRequested() bool {
	return flagTCP || flagTCPMode || flagNetwork || flagTUIManaged
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() error {
	// Baseline logger for early startup; re-initialized from configuration.
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "dshield-mcp"})

	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		log.Error().Err(err).Msg("Configuration error")
		return err
	}
	logging.Init(logging.Config{
		Format:    cfg.ErrorHandling.Logging.Format,
		Level:     cfg.ErrorHandling.Logging.Level,
		Component: "dshield-mcp",
	})
	log.Info().Str("version", Version).Str("elasticsearch", cfg.Elasticsearch.String()).Msg("Starting dshield-mcp")

	retry := errors.RetryPolicy{
		MaxRetries:      cfg.ErrorHandling.Retry.MaxRetries,
		BaseDelay:       time.Duration(cfg.ErrorHandling.Retry.BaseDelaySec * float64(time.Second)),
		MaxDelay:        time.Duration(cfg.ErrorHandling.Retry.MaxDelaySec * float64(time.Second)),
		ExponentialBase: cfg.ErrorHandling.Retry.ExponentialBase,
	}
	client, err := siem.NewClient(cfg.Elasticsearch, retry)
	if err != nil {
		log.Error().Err(err).Msg("Elasticsearch client setup failed")
		return err
	}
	engine := siem.NewEngine(client, cfg.Query, cfg.Elasticsearch.IndexPatterns)

	var resultCache *cache.Cache
	if cfg.Performance.EnableCache {
		dbPath := ""
		if cfg.Performance.EnablePersistentCache {
			dbPath = filepath.Join(cfg.Performance.DataDir, "intel_cache.db")
		}
		resultCache, err = cache.New(cache.Options{
			MaxSize:       cfg.ThreatIntelligence.MaxCacheSize,
			MemoryTTL:     time.Duration(cfg.Performance.MemoryCacheTTLHours * float64(time.Hour)),
			PersistentTTL: time.Duration(cfg.Performance.PersistentTTLHours * float64(time.Hour)),
			DBPath:        dbPath,
		})
		if err != nil {
			log.Error().Err(err).Msg("Cache setup failed")
			return err
		}
		defer resultCache.Close()
	}

	var orchestrator *intel.Orchestrator
	if len(cfg.ThreatIntelligence.EnabledSources()) > 0 {
		orchestrator = intel.NewOrchestrator(cfg.ThreatIntelligence, resultCache, client)
		defer orchestrator.Close()
	} else {
		log.Warn().Msg("No threat-intelligence sources enabled; enrichment tools are unavailable")
	}

	var dbPinger health.DatabasePinger
	if resultCache != nil {
		dbPinger = resultCache
	}
	checker := health.NewChecker(client, dbPinger, cfg.ThreatIntelligence)
	executor := tools.NewExecutor(engine, orchestrator, checker, cfg)
	dispatcher := tools.NewDispatcher(executor, Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metrics := telemetry.NewServer(cfg.Performance.MetricsAddress); metrics != nil {
		go metrics.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			metrics.Stop(shutdownCtx)
		}()
	}

	mode := transport.Select(cfg, networkRequested())
	log.Info().Str("transport", string(mode)).Msg("Transport selected")

	switch mode {
	case transport.ModeNetwork:
		if len(cfg.TCPTransport.APIKeys) == 0 {
			err := fmt.Errorf("tcp_transport.api_keys must be configured for the network transport")
			log.Error().Err(err).Msg("Configuration error")
			return err
		}
		server := transport.NewTCPServer(dispatcher, cfg.TCPTransport)
		err = server.Run(ctx)
	default:
		stdio := transport.NewStdio(dispatcher, cfg.TCPTransport.MaxMessageBytes)
		err = stdio.Run(ctx)
	}
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Transport terminated")
		return err
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
