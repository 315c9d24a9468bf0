package cli

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/duonganh203/benkyo/internal/config"
	"github.com/duonganh203/benkyo/internal/models"
	"github.com/duonganh203/benkyo/internal/repository"
	"github.com/duonganh203/benkyo/internal/service/optimizer"
	"github.com/duonganh203/benkyo/pkg/optimizerapi"
	"github.com/duonganh203/benkyo/pkg/utils"
)

// setupLogger installs the global zap logger. Timestamps are rendered in the
// configured timezone.
func setupLogger(timezone string) (*zap.Logger, error) {
	loc, err := utils.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(loc).Format("2006-01-02T15:04:05-07:00"))
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	return logger, nil
}

// loadConfig reads the configuration and sets up logging. The returned
// cleanup flushes the logger.
func loadConfig() (*config.Config, func(), error) {
	envErr := config.LoadEnvFile()

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := setupLogger(cfg.LogTimezone)
	if err != nil {
		return nil, nil, err
	}

	if envErr != nil {
		zap.S().Debugw("no .env file loaded", zap.Error(envErr))
	}

	return cfg, func() { _ = logger.Sync() }, nil
}

type closer func() error

// openRepository connects the configured storage backend and brings the
// schema up to date.
func openRepository(cfg *config.Config) (models.Repository, closer, error) {
	if cfg.Storage == config.StorageMemory {
		zap.S().Warn("using in-memory storage, data is lost on exit")
		return repository.NewMemory(), func() error { return nil }, nil
	}

	repo, err := repository.NewDB(cfg.Postgres.DSN(), cfg.Postgres.MaxIdle, cfg.Postgres.MaxOpen)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to PostgreSQL (host: %s): %w", cfg.Postgres.Host, err)
	}

	if err := repo.Up(repository.MigrationsDir); err != nil {
		_ = repo.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return repo, repo.Close, nil
}

func newCoordinator(cfg *config.Config, repo models.Repository) *optimizer.Coordinator {
	if cfg.Optimizer.URL == "" {
		zap.S().Warn("OPTIMIZER_URL is not set, optimization runs will fail")
	}

	client := optimizerapi.NewClient(optimizerapi.Config{
		BaseURL:      cfg.Optimizer.URL,
		Timeout:      cfg.Optimizer.Timeout,
		ClientID:     cfg.Optimizer.ClientID,
		ClientSecret: cfg.Optimizer.ClientSecret,
		TokenURL:     cfg.Optimizer.TokenURL,
	})

	return optimizer.NewCoordinator(repo, client, optimizer.Config{
		Threshold:     cfg.Optimizer.Threshold,
		MinReviewLogs: cfg.Optimizer.MinLogs,
		Timeout:       cfg.Optimizer.Timeout,
		Timezone:      cfg.Optimizer.Timezone,
		DayStart:      cfg.Optimizer.DayStart,
	})
}
