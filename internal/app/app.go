package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/config"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/delivery/httpd"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/repository"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/scheduler"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/analyzer"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/extractor"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/integration"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/storage"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/worker"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/worker/queue"
)

const Version = "1.0.0"

type App struct {
	server       *http.Server
	logger       zerolog.Logger
	config       *config.Config
	db           *sql.DB
	checkWorker  *worker.CheckWorker
	sweeper      *scheduler.PendingSweeper
	rabbitMQRepo repository.RabbitMQRepository
}

func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	blobs, err := storage.New(ctx, storage.Config{
		Provider:       cfg.Storage.Provider,
		Endpoint:       cfg.Storage.Endpoint,
		AccessKey:      cfg.Storage.AccessKey,
		SecretKey:      cfg.Storage.SecretKey,
		Bucket:         cfg.Storage.Bucket,
		Region:         cfg.Storage.Region,
		UseSSL:         cfg.Storage.UseSSL,
		ConnectTimeout: cfg.Storage.ConnectTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}

	documentRepo := repository.NewDocumentRepository(db, blobs, log)
	courseRepo := repository.NewCourseConfigRepository(db, log)
	reportRepo := repository.NewReportRepository(db, log)

	a := &App{logger: log, config: cfg, db: db}

	var publisher service.EventPublisher
	var consumer queue.RabbitMQConsumer
	if cfg.RabbitMQ.Enabled {
		a.rabbitMQRepo, err = repository.NewRabbitMQRepository(cfg.RabbitMQ.URL, log)
		if err != nil {
			return nil, err
		}
		if err := a.rabbitMQRepo.SetupQueue(
			cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.QueueName,
			cfg.RabbitMQ.RoutingKey,
		); err != nil {
			a.rabbitMQRepo.Close()
			return nil, err
		}

		publisher = queue.NewEventPublisher(
			queue.NewRabbitMQPublisher(a.rabbitMQRepo.Channel(), log),
			cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.RoutingKey,
			cfg.RabbitMQ.CompletedRoutingKey,
		)
		consumer = queue.NewRabbitMQConsumer(
			a.rabbitMQRepo.Channel(),
			cfg.RabbitMQ.QueueName,
			cfg.RabbitMQ.ConsumerTag,
			cfg.RabbitMQ.PrefetchCount,
			log,
		)
	} else {
		log.Warn().Msg("RabbitMQ disabled, asynchronous checks rely on the pending sweep")
	}

	advisor := integration.NewSearchClient(integration.SearchConfig{
		Enabled:       cfg.Advisor.Enabled,
		Endpoint:      cfg.Advisor.Endpoint,
		APIKey:        cfg.Advisor.APIKey,
		EngineID:      cfg.Advisor.EngineID,
		Timeout:       cfg.Advisor.Timeout,
		RetryCount:    cfg.Advisor.RetryCount,
		RetryDelay:    cfg.Advisor.RetryDelay,
		MaxResults:    cfg.Advisor.MaxResults,
		MaxQueryWords: cfg.Advisor.MaxQueryWords,
		SnippetLength: cfg.Advisor.SnippetLength,
	}, log)

	primary := analyzer.NewTFIDFStrategy(analyzer.TFIDFConfig{
		MaxFeatures: cfg.Analysis.MaxFeatures,
		NGramMin:    cfg.Analysis.NGramMin,
		NGramMax:    cfg.Analysis.NGramMax,
	})

	checks := service.NewPlagiarismService(
		documentRepo,
		courseRepo,
		reportRepo,
		extractor.New(),
		primary,
		analyzer.NewJaccardStrategy(nil),
		advisor,
		publisher,
		log,
		service.PlagiarismConfig{
			DefaultThreshold: cfg.Analysis.DefaultThreshold,
			PeerWorkers:      cfg.Analysis.PeerWorkers,
			AdvisorTimeout:   cfg.Advisor.Timeout,
		},
	)

	if consumer != nil {
		a.checkWorker = worker.NewCheckWorker(
			worker.NewWorkerPool(cfg.Analysis.MaxWorkers, log),
			consumer,
			checks,
			cfg.Analysis.Timeout,
			log,
		)
	}

	if cfg.Scheduler.Enabled {
		a.sweeper = scheduler.NewPendingSweeper(
			documentRepo,
			courseRepo,
			checks,
			cfg.Scheduler.BatchSize,
			cfg.Analysis.Timeout,
			log,
		)
	}

	health := map[string]httpd.HealthCheck{
		"database": documentRepo.Ping,
		"storage":  blobs.Ping,
	}
	handler := httpd.NewHandler(checks, health, primary.Name(), Version, log)

	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      httpd.NewRouter(handler, cfg.CORS, cfg.Server.RequestTimeout, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return a, nil
}

// Run serves HTTP and runs the background consumers until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.startBackground(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Msgf("Starting similarity service on %s", a.config.Server.Address)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		a.shutdown(context.Background())
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancelShutdown()
	return a.shutdown(shutdownCtx)
}

// RunWorker runs only the queue consumer and the pending sweep.
func (a *App) RunWorker(ctx context.Context) error {
	if a.checkWorker == nil && a.sweeper == nil {
		return errors.New("nothing to run: enable rabbitmq or the scheduler")
	}
	if err := a.startBackground(ctx); err != nil {
		return err
	}

	a.logger.Info().Msg("Standalone worker started")
	<-ctx.Done()

	a.stopBackground()
	a.closeResources()
	return nil
}

func (a *App) startBackground(ctx context.Context) error {
	if a.checkWorker != nil {
		if err := a.checkWorker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start check worker: %w", err)
		}
	}
	if a.sweeper != nil {
		if err := a.sweeper.Start(ctx, a.config.Scheduler.Spec); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) stopBackground() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.checkWorker != nil {
		a.checkWorker.Stop()
	}
}

func (a *App) shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down similarity service...")

	err := a.server.Shutdown(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
	}

	a.stopBackground()
	a.closeResources()

	a.logger.Info().Msg("Similarity service stopped")
	return err
}

func (a *App) closeResources() {
	if a.rabbitMQRepo != nil {
		if err := a.rabbitMQRepo.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}
}
