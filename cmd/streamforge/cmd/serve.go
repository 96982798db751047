package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/streamforge/streamforge/internal/compiler"
	"github.com/streamforge/streamforge/internal/config"
	"github.com/streamforge/streamforge/internal/database"
	"github.com/streamforge/streamforge/internal/database/migrations"
	"github.com/streamforge/streamforge/internal/eventbus"
	"github.com/streamforge/streamforge/internal/ffmpeg"
	internalhttp "github.com/streamforge/streamforge/internal/http"
	"github.com/streamforge/streamforge/internal/http/handlers"
	"github.com/streamforge/streamforge/internal/jobservice"
	"github.com/streamforge/streamforge/internal/repository"
	"github.com/streamforge/streamforge/internal/startup"
	"github.com/streamforge/streamforge/internal/supervisor"
	"github.com/streamforge/streamforge/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streamforge server",
	Long: `Start the streamforge HTTP server and API.

The server provides:
- REST API for creating, configuring, and supervising encoding jobs
- Live job status, statistics, and log streaming over SSE
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "streamforge.db", "Database file path")
	serveCmd.Flags().String("data-dir", "data", "Data directory for job inputs, outputs, and logs")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	viper.BindPFlag("storage.data_dir", serveCmd.Flags().Lookup("data-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := runMigrations(db.DB, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	jobRepo := repository.NewJobRepository(db.DB)
	archiveRepo := repository.NewArchiveRepository(db.DB)
	statsRepo := repository.NewStatisticsRepository(db.DB)

	env := buildEnvironmentContext(cfg, logger)

	bus := eventbus.New()

	sup := supervisor.New(
		jobRepo,
		statsRepo,
		bus,
		env,
		cfg.Storage.LogDir,
		cfg.Jobs.MaxConcurrent,
		logger,
	)

	jobs := jobservice.New(jobRepo, archiveRepo, sup, env, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reaped, err := sup.ReapOrphans(ctx); err != nil {
		logger.Warn("failed to reap orphaned jobs on boot", slog.String("error", err.Error()))
	} else if reaped > 0 {
		logger.Info("reaped orphaned jobs on boot", slog.Int("count", reaped))
	}

	if removed, err := startup.CleanupOrphanedTempDirs(logger, os.TempDir(), startup.DefaultCleanupAge); err != nil {
		logger.Warn("failed to clean up orphaned temp directories on boot", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("removed orphaned temp directories on boot", slog.Int("count", removed))
	}

	if cfg.Jobs.AutoRestartOnBoot {
		if restarted, err := sup.AutoRestart(ctx); err != nil {
			logger.Warn("failed to auto-restart jobs on boot", slog.String("error", err.Error()))
		} else if restarted > 0 {
			logger.Info("auto-restarted jobs on boot", slog.Int("count", restarted))
		}
	}

	reconciler := startReconciler(ctx, sup, cfg.Jobs.ReconcileInterval, logger)
	defer reconciler.Stop()

	pruner := startRetentionPruner(ctx, statsRepo, cfg.Jobs.StatisticsRetention, logger)
	defer pruner.Stop()

	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	docsHandler := handlers.NewDocsHandler("streamforge API", "/openapi.yaml", handlers.WithSystemTheme())
	server.Router().Get("/docs", docsHandler.ServeHTTP)

	staticHandler := handlers.NewStaticHandler()
	server.Router().NotFound(staticHandler.ServeHTTP)

	featureHandler := handlers.NewFeatureHandler()
	featureHandler.Register(server.API())

	configHandler := handlers.NewConfigHandler(featureHandler)
	configHandler.Register(server.API())

	healthHandler := handlers.NewHealthHandler(version.Version).WithDB(db.DB).WithSupervisor(sup)
	healthHandler.Register(server.API())

	ffmpegDetector := ffmpeg.NewBinaryDetector()
	systemHandler := handlers.NewSystemHandler(&binaryInfoProvider{detector: ffmpegDetector})
	systemHandler.Register(server.API())

	jobHandler := handlers.NewJobHandler(jobs, archiveRepo, cfg.Storage.LogDir, cfg.Jobs.LogTailMaxLines)
	jobHandler.Register(server.API())

	progressHandler := handlers.NewProgressHandler(bus)
	progressHandler.RegisterSSE(server.Router())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting streamforge server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Int("max_concurrent_jobs", cfg.Jobs.MaxConcurrent),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// binaryInfoProvider adapts ffmpeg.BinaryDetector to handlers.FFmpegInfoProvider.
type binaryInfoProvider struct {
	detector *ffmpeg.BinaryDetector
}

func (p *binaryInfoProvider) GetFFmpegInfo(ctx context.Context) (*ffmpeg.BinaryInfo, error) {
	return p.detector.Detect(ctx)
}

// buildEnvironmentContext probes the host's ffmpeg binary for its advertised
// hardware encoders and folds the result into the compiler's environment, so
// Compile can warn on a config that asks for hardware the host doesn't have
// (spec §4.2).
func buildEnvironmentContext(cfg *config.Config, logger *slog.Logger) compiler.EnvironmentContext {
	env := compiler.EnvironmentContext{
		BaseHLSDir:   cfg.Storage.OutputDir,
		BaseFilesDir: cfg.Storage.OutputDir,
		HLSPublicURL: cfg.Storage.HLSURL,
	}

	detector := ffmpeg.NewBinaryDetector()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := detector.Detect(ctx)
	if err != nil {
		logger.Warn("ffmpeg hardware encoder detection failed, compiling without hwaccel knowledge",
			slog.String("error", err.Error()))
		return env
	}

	env.KnownHWEncoders = knownHWEncodersFromDetection(info.Encoders)
	return env
}

// hwEncoderSuffixes maps a compiler HWEncoderKey.Accel to the ffmpeg encoder
// name suffix that identifies it (e.g. "h264_nvenc" for {Accel: "nvenc"}).
var hwEncoderSuffixes = map[string]string{
	"nvenc":        "_nvenc",
	"vaapi":        "_vaapi",
	"qsv":          "_qsv",
	"videotoolbox": "_videotoolbox",
}

// hwCodecPrefixes maps the codec name prefix an ffmpeg encoder string uses
// to the codec name the compiler's config speaks.
var hwCodecPrefixes = map[string]string{"h264": "h264", "hevc": "h265", "av1": "av1"}

func knownHWEncodersFromDetection(encoders []string) map[compiler.HWEncoderKey]bool {
	known := make(map[compiler.HWEncoderKey]bool)
	for _, enc := range encoders {
		for accel, suffix := range hwEncoderSuffixes {
			if len(enc) <= len(suffix) || enc[len(enc)-len(suffix):] != suffix {
				continue
			}
			prefix := enc[:len(enc)-len(suffix)]
			if codecName, ok := hwCodecPrefixes[prefix]; ok {
				known[compiler.HWEncoderKey{Accel: accel, Codec: codecName}] = true
			}
		}
	}
	return known
}

// startReconciler runs ReapOrphans on a fixed schedule driven by cron so the
// supervisor's view of running jobs stays honest even if a SIGKILL or a hard
// crash skipped the graceful-stop bookkeeping. The returned cron.Cron has
// already been started; call Stop on shutdown.
func startReconciler(ctx context.Context, sup *supervisor.Supervisor, interval time.Duration, logger *slog.Logger) *cron.Cron {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if reaped, err := sup.ReapOrphans(ctx); err != nil {
			logger.Warn("reconcile sweep failed", slog.String("error", err.Error()))
		} else if reaped > 0 {
			logger.Info("reconcile sweep reaped orphaned jobs", slog.Int("count", reaped))
		}
	})
	if err != nil {
		logger.Warn("failed to schedule reconcile sweep", slog.String("error", err.Error()))
		return c
	}
	c.Start()
	return c
}

// startRetentionPruner runs a daily sweep deleting StatisticsSample rows
// older than retention, bounding table growth per spec §3's rolling-window
// retention requirement. The returned cron.Cron has already been started;
// call Stop on shutdown.
func startRetentionPruner(ctx context.Context, stats repository.StatisticsRepository, retention time.Duration, logger *slog.Logger) *cron.Cron {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	c := cron.New()
	_, err := c.AddFunc("@daily", func() {
		cutoff := time.Now().Add(-retention)
		deleted, err := stats.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			logger.Warn("statistics retention sweep failed", slog.String("error", err.Error()))
			return
		}
		if deleted > 0 {
			logger.Info("pruned expired statistics samples", slog.Int64("count", deleted))
		}
	})
	if err != nil {
		logger.Warn("failed to schedule statistics retention sweep", slog.String("error", err.Error()))
		return c
	}
	c.Start()
	return c
}

func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	migrator := migrations.NewMigrator(db, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	return migrator.Up(context.Background())
}
