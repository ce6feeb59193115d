// main package for the speech-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/api"
	"github.com/book-expert/speech-service/internal/audio"
	"github.com/book-expert/speech-service/internal/config"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/engine"
	"github.com/book-expert/speech-service/internal/fileutil"
	"github.com/book-expert/speech-service/internal/objectstore"
	"github.com/book-expert/speech-service/internal/retention"
	"github.com/book-expert/speech-service/internal/service"
	"github.com/book-expert/speech-service/internal/worker"
	"github.com/nats-io/nats.go"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "speech-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return runService(cfg, finalLog)
}

func runService(cfg *config.Config, log *logger.Logger) error {
	err := prepareDirectories(cfg)
	if err != nil {
		return err
	}

	manager := engine.NewManager(cfg.Engine, log)

	err = manager.Load()
	if err != nil {
		return fmt.Errorf("failed to load synthesis engine: %w", err)
	}

	defer func() {
		unloadErr := manager.Unload()
		if unloadErr != nil {
			log.Error("Failed to unload synthesis engine: %v", unloadErr)
		}
	}()

	svc := buildService(cfg, manager, log)

	ingestor := audio.NewIngestor(ingestOptions(cfg), log)
	handler := api.NewHandler(svc, ingestor, cfg.Paths.UploadDir, log)
	router := api.NewRouter(handler, cfg.HTTP.CORSAllowedOrigins)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	sweeper := retention.NewSweeper(
		cfg.Paths.OutputDir,
		time.Duration(cfg.Retention.MaxAgeMinutes)*time.Minute,
		time.Duration(cfg.Retention.SweepIntervalMinutes)*time.Minute,
		log,
	)
	go sweeper.Run(ctx)

	if cfg.NATS.Enabled {
		natsWorker, workerErr := buildWorker(cfg, svc, log)
		if workerErr != nil {
			return workerErr
		}

		go func() {
			runErr := natsWorker.Run(ctx)
			if runErr != nil {
				log.Error("NATS worker stopped: %v", runErr)
			}
		}()
	}

	return serveHTTP(ctx, cfg.HTTP.Addr(), router, log)
}

func prepareDirectories(cfg *config.Config) error {
	err := fileutil.EnsureDir(cfg.Paths.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	err = fileutil.EnsureDir(cfg.Paths.UploadDir)
	if err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	return nil
}

func ingestOptions(cfg *config.Config) audio.IngestOptions {
	return audio.IngestOptions{
		MaxSamples:  cfg.Prompt.MaxSeconds * core.EngineSampleRate,
		ChannelAxis: audio.ChannelAxisAuto,
	}
}

func buildService(
	cfg *config.Config,
	manager *engine.Manager,
	log *logger.Logger,
) *service.Service {
	conditioner := audio.NewConditioner(
		cfg.Prompt.TargetSamples,
		reshaperFromConfig(cfg.Prompt),
		log,
	)
	post := audio.NewPostProcessor(core.EngineSampleRate)

	return service.New(
		manager,
		conditioner,
		post,
		cfg.Paths.OutputDir,
		cfg.Paths.UploadDir,
		log,
	)
}

func reshaperFromConfig(cfg config.PromptConfig) audio.Reshaper {
	if cfg.Reshaper == config.ReshaperBlock {
		return audio.BlockReshaper{Rows: cfg.ReshapeRows, Cols: cfg.ReshapeCols}
	}

	return audio.IdentityReshaper{}
}

func buildWorker(
	cfg *config.Config,
	svc *service.Service,
	log *logger.Logger,
) (*worker.NatsWorker, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	jetStream, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetStream, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio object store: %w", err)
	}

	return worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.TextProcessedSubject,
		store,
		svc,
		log,
	), nil
}

func serveHTTP(
	ctx context.Context,
	addr string,
	handler http.Handler,
	log *logger.Logger,
) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErrs := make(chan error, 1)

	go func() {
		listenErr := server.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serveErrs <- listenErr
		}

		close(serveErrs)
	}()

	log.System("Speech service listening on %s", addr)

	select {
	case <-ctx.Done():
	case serveErr := <-serveErrs:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}

		return nil
	}

	log.System("Shutdown signal received, draining HTTP server.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
