package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/categorization"
	categorizationhandler "github.com/FACorreiaa/statement-reconciler/internal/domain/categorization/handler"
	importhandler "github.com/FACorreiaa/statement-reconciler/internal/domain/import/handler"
	importrepo "github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-reconciler/internal/domain/import/service"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/posting"
	postinghandler "github.com/FACorreiaa/statement-reconciler/internal/domain/posting/handler"

	"github.com/FACorreiaa/statement-reconciler/pkg/config"
	"github.com/FACorreiaa/statement-reconciler/pkg/cron"
	"github.com/FACorreiaa/statement-reconciler/pkg/db"
	"github.com/FACorreiaa/statement-reconciler/pkg/metrics"
	"github.com/FACorreiaa/statement-reconciler/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Repositories
	ImportRepo         *importrepo.PostgresRepository
	CategorizationRepo *categorization.Repository
	Ledger             posting.Ledger

	// Services
	FileStorage           storage.Storage
	SearchIndex           *categorization.SearchIndex
	CategorizationService *categorization.Service
	ImportService         *importservice.ImportService
	PostingEngine         *posting.Engine
	Scheduler             *cron.Scheduler

	// Handlers
	ImportHandler         *importhandler.ImportHandler
	CategorizationHandler *categorizationhandler.CategorizationHandler
	PostingHandler        *postinghandler.PostingHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	// Initialize database
	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	// Initialize services
	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	// Initialize handlers
	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	// Run migrations
	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.ImportRepo = importrepo.NewPostgresRepository(d.DB.Pool)
	d.CategorizationRepo = categorization.NewRepository(d.DB.Pool)
	d.Ledger = posting.NewPostgresLedger(d.DB.Pool, d.Config.Engine.DefaultCurrency)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	engineCfg := d.Config.Engine

	fileStorage, err := storage.New(&storage.Config{LocalPath: d.Config.Storage.LocalPath})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.SearchIndex, err = categorization.NewSearchIndex(d.Config.Storage.SearchIndexPath)
	if err != nil {
		return fmt.Errorf("failed to open counterparty index: %w", err)
	}

	// Categorization owns the rules, counterparties and chart of accounts
	d.CategorizationService, err = categorization.NewService(ctx, d.Logger, nil,
		categorization.WithStore(d.CategorizationRepo),
		categorization.WithTransactions(d.ImportRepo),
		categorization.WithRulesFile(engineCfg.RulesFile),
		categorization.WithSearchIndex(d.SearchIndex),
		categorization.WithSuggestions(engineCfg.SuggestionLimit, engineCfg.SuggestionThreshold),
		categorization.WithMetrics(d.Metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to init categorization: %w", err)
	}

	if engineCfg.CounterpartySeed != "" {
		if err := d.SeedCounterparties(ctx, engineCfg.CounterpartySeed); err != nil {
			return err
		}
	}

	// Import service with categorization and archiving wired in
	d.ImportService = importservice.NewImportService(d.ImportRepo, importservice.Config{
		HeaderScanRows:     engineCfg.HeaderScanRows,
		Workers:            engineCfg.Workers,
		DefaultCurrency:    engineCfg.DefaultCurrency,
		PreferReference:    engineCfg.PreferReference,
		ProfileSimilarity:  engineCfg.ProfileSimilarity,
		ProposalConfidence: engineCfg.ProposalConfidence,
	}, d.Logger,
		importservice.WithCategorizer(d.CategorizationService),
		importservice.WithStorage(d.FileStorage),
		importservice.WithMetrics(d.Metrics),
	)

	// Posting resolves account names through the chart of accounts
	d.PostingEngine = posting.NewEngine(d.ImportRepo, d.Ledger, d.Logger,
		posting.WithAccountResolver(d.CategorizationService.ResolveAccount),
		posting.WithMetrics(d.Metrics),
	)

	if engineCfg.AutoPostEnabled {
		d.Scheduler = cron.NewScheduler(d.PostingEngine, cron.AutoPostConfig{
			Schedule:      engineCfg.AutoPostSchedule,
			MinConfidence: engineCfg.AutoPostConfidence,
			BatchSize:     engineCfg.AutoPostBatchSize,
			Timeout:       engineCfg.AutoPostTimeout,
		}, d.Logger)
	}

	d.Logger.Info("services initialized")
	return nil
}

// SeedCounterparties loads a name,kind,default_account CSV into the store and index.
func (d *Dependencies) SeedCounterparties(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open counterparty seed: %w", err)
	}
	defer f.Close()

	if _, err := d.CategorizationService.ImportCounterparties(ctx, f); err != nil {
		return fmt.Errorf("failed to seed counterparties: %w", err)
	}
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Logger, d.Config.Server.MaxUploadBytes)
	d.CategorizationHandler = categorizationhandler.NewCategorizationHandler(d.CategorizationService, d.Logger)
	d.PostingHandler = postinghandler.NewPostingHandler(d.PostingEngine, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		d.Scheduler.Stop()
	}
	if d.CategorizationService != nil {
		if err := d.CategorizationService.Close(); err != nil {
			d.Logger.Warn("failed to close counterparty index", slog.Any("error", err))
		}
	} else if d.SearchIndex != nil {
		_ = d.SearchIndex.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
