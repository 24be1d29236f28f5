package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/moodchat/internal/api"
	"github.com/goodtune/moodchat/internal/chat"
	"github.com/goodtune/moodchat/internal/coalesce"
	"github.com/goodtune/moodchat/internal/config"
	"github.com/goodtune/moodchat/internal/metrics"
	"github.com/goodtune/moodchat/internal/mood"
	"github.com/goodtune/moodchat/internal/storage"
	"github.com/goodtune/moodchat/internal/storage/bolt"
	"github.com/goodtune/moodchat/internal/storage/redis"
	"github.com/goodtune/moodchat/internal/storage/sqlite"
	"github.com/goodtune/moodchat/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start MoodChat server",
	Long:  `Start the MoodChat API server, the session update coalescer and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting MoodChat")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	scorer, err := newScorer(cfg.Scorer, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scorer: %w", err)
	}

	logger.Info().Str("scorer", scorer.Name()).Msg("Mood scorer initialized")

	coalescer := coalesce.New(store.Sessions(), coalescerConfig(cfg.Sessions), logger)

	logger.Info().
		Dur("window", coalescer.Window()).
		Msg("Session update coalescer initialized")

	location, err := cfg.Calendar.Location()
	if err != nil {
		return err
	}
	weekStart, err := cfg.Calendar.FirstWeekday()
	if err != nil {
		return err
	}

	service := chat.NewService(store, coalescer, scorer, chat.Config{
		Defaults: storage.SessionDefaults{
			MoodScore: cfg.Sessions.NeutralScore,
			Summary:   cfg.Sessions.InitialSummary,
		},
		Location:  location,
		WeekStart: weekStart,
	}, logger)

	apiServer, err := api.NewServer(api.Config{
		ListenAddr:       fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort),
		ReadTimeout:      config.ParseDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:     config.ParseDuration(cfg.Server.WriteTimeout, 15*time.Second),
		RateLimit:        cfg.Server.RateLimit,
		RateLimitWindow:  config.ParseDuration(cfg.Server.RateLimitWindow, time.Minute),
		RateLimitDevices: cfg.Server.RateLimitDevices,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
	}, service, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize API server: %w", err)
	}

	if sdListeners.HTTP != nil {
		apiServer.SetListener(sdListeners.HTTP)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || sdListeners.Metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, store.Ping, logger)

		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	logger.Info().Msg("MoodChat startup complete")
	logger.Info().Msgf("API: http://%s:%d/api", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	if metricsServer != nil {
		logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	go systemd.RunWatchdog(watchdogCtx, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan

		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, reloading log level...")
			reloadLogLevel(logger)
			continue
		}

		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop taking chat turns before draining drafts
	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	_ = systemd.NotifyStatus(fmt.Sprintf("Writing %d pending session drafts", coalescer.Len()))

	shutdownTimeout := config.ParseDuration(cfg.Sessions.ShutdownTimeout, 30*time.Second)
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := coalescer.Shutdown(drainCtx); err != nil {
		logger.Error().Err(err).Int("lost", coalescer.Len()).Msg("Some session drafts were not written")
	}
	cancel()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("MoodChat stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func newScorer(cfg config.ScorerConfig, logger zerolog.Logger) (*mood.Safe, error) {
	switch cfg.Type {
	case "", "heuristic":
		return mood.NewSafe("heuristic", mood.NewHeuristic(), logger), nil
	case "openai":
		analyzer, err := mood.NewOpenAI(mood.OpenAIConfig{
			APIKey:          cfg.APIKey,
			Model:           cfg.Model,
			BaseURL:         cfg.BaseURL,
			Timeout:         config.ParseDuration(cfg.Timeout, 20*time.Second),
			MaxOutputTokens: int64(cfg.MaxOutputTokens),
			MaxRetries:      cfg.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return mood.NewSafe("openai", analyzer, logger), nil
	default:
		return nil, fmt.Errorf("unsupported scorer type: %s", cfg.Type)
	}
}

func coalescerConfig(cfg config.SessionsConfig) coalesce.Config {
	return coalesce.Config{
		Window:               config.ParseDuration(cfg.InactivityWindow, coalesce.DefaultWindow),
		FlushTimeout:         config.ParseDuration(cfg.FlushTimeout, coalesce.DefaultFlushTimeout),
		RetryInitialInterval: config.ParseDuration(cfg.RetryInitialInterval, time.Minute),
		RetryMaxInterval:     config.ParseDuration(cfg.RetryMaxInterval, 15*time.Minute),
		Stripes:              cfg.Stripes,
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// reloadLogLevel re-reads the configuration file and applies its log level.
// Everything else needs a restart.
func reloadLogLevel(logger zerolog.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reload configuration")
		return
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.Logging.Level))
	logger.Info().Str("level", cfg.Logging.Level).Msg("Log level reloaded")
}
