package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/app"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/config"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/database"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/textproc"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/pkg/logger"
)

func main() {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		run(false)
	case "worker":
		run(true)
	case "migrate":
		direction := "up"
		if len(os.Args) > 2 {
			direction = os.Args[2]
		}
		runMigrations(direction)
	default:
		log := logger.New()
		log.Fatal().Str("command", command).Msg("Unknown command. Use serve, worker or migrate [up|down]")
	}
}

func loadConfig() (*config.Config, zerolog.Logger) {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	return cfg, logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)
}

func run(workerOnly bool) {
	cfg, log := loadConfig()

	// A broken tokenizer degrades to whitespace splitting rather than
	// failing every check.
	if err := textproc.Setup(func(err error) {
		log.Error().Err(err).Msg("Tokenizer setup failed, using whitespace tokenization")
	}); err != nil {
		log.Warn().Err(err).Msg("Tokenizer running degraded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Database connection established")

	application, err := app.New(ctx, cfg, log, db)
	if err != nil {
		db.Close()
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	if workerOnly {
		err = application.RunWorker(ctx)
	} else {
		err = application.Run(ctx)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Similarity service failed")
	}
}

func runMigrations(direction string) {
	cfg, log := loadConfig()

	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	migrator, err := database.NewMigrator(db, cfg.Database.MigrationsPath)
	if err != nil {
		db.Close()
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	switch direction {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	default:
		migrator.Close()
		log.Fatal().Str("direction", direction).Msg("Invalid migration direction. Use 'up' or 'down'")
	}
	if err != nil {
		migrator.Close()
		log.Fatal().Err(err).Str("direction", direction).Msg("Migration failed")
	}

	version, dirty, verr := migrator.Version()
	log.Info().Str("direction", direction).Uint("version", version).Bool("dirty", dirty).AnErr("version_error", verr).Msg("Migrations applied successfully")

	if err := migrator.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close migrator")
	}
}
