// Package app wires configuration, infrastructure and the assessment service
// together for the command-line entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/gravilog-risk-core/internal/api"
	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/database"
	"github.com/gravilog-risk-core/internal/domain"
	"github.com/gravilog-risk-core/internal/locale"
	"github.com/gravilog-risk-core/internal/report"
	"github.com/gravilog-risk-core/internal/repository"
	"github.com/gravilog-risk-core/internal/service"
	"github.com/gravilog-risk-core/internal/store"
	"github.com/gravilog-risk-core/pkg/external"
)

// App holds every long-lived component of a running process.
type App struct {
	Config    *domain.Config
	Logger    *logrus.Logger
	Catalogue *catalogue.Catalogue
	Locale    *locale.Provider
	Cache     *external.CacheClient
	Reasoner  *external.ReasoningClient
	Store     store.Store
	DB        *database.AuditDB
	Audit     *repository.AuditRepository
	Renderer  *report.PDFRenderer
	Service   *service.AssessmentService
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg domain.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	out, err := logOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)
	return logger, nil
}

// logOutput never returns stdout for "" so the MCP stdio stream stays clean.
func logOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		return f, nil
	}
}

// New builds every component. Optional infrastructure that is unavailable is
// logged and left out rather than failing startup: a Redis outage falls back to
// the in-memory cache and a missing font disables PDF reports.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	cat, err := catalogue.LoadFiles(cfg.Catalogue.RulesFile, cfg.Catalogue.QuestionsFile)
	if err != nil {
		return nil, fmt.Errorf("loading catalogue: %w", err)
	}
	a.Catalogue = cat

	a.Locale, err = locale.NewProvider(cfg.Assessment.DefaultLocale, logger)
	if err != nil {
		return nil, fmt.Errorf("loading locale tables: %w", err)
	}

	a.Cache, err = external.NewCacheClient(cfg.Cache, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, using in-memory verdict cache only")
		memoryOnly := cfg.Cache
		memoryOnly.RedisURL = ""
		if a.Cache, err = external.NewCacheClient(memoryOnly, logger); err != nil {
			return nil, fmt.Errorf("creating verdict cache: %w", err)
		}
	}

	a.Reasoner = external.NewReasoningClient(cfg.Reasoning, a.Cache, logger)
	if !a.Reasoner.Available() {
		logger.Warn("Reasoning service not configured, assessments will rely on the clinical rules only")
	}

	a.Store, err = store.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("opening assessment store: %w", err)
	}

	if cfg.Database.Enabled {
		if err := a.openAuditTrail(ctx); err != nil {
			return nil, err
		}
	}

	a.Renderer, err = report.NewPDFRenderer(cfg.Report, a.Locale, cat, logger)
	if err != nil {
		if !errors.Is(err, report.ErrNoFont) && cfg.Report.FontPath != "" {
			return nil, fmt.Errorf("creating report renderer: %w", err)
		}
		logger.WithError(err).Warn("PDF reports disabled")
		a.Renderer = nil
	}

	deps := service.Dependencies{
		Catalogue: cat,
		Locale:    a.Locale,
		Reasoner:  a.Reasoner,
		Retriever: external.NoopRetriever{},
		Store:     a.Store,
	}
	if a.Audit != nil {
		deps.Audit = a.Audit
	}
	if a.Renderer != nil {
		deps.Renderer = a.Renderer
		deps.ReportDir = cfg.Report.OutputDir
	}

	a.Service, err = service.NewAssessmentService(deps, cfg.Assessment, logger)
	if err != nil {
		return nil, fmt.Errorf("creating assessment service: %w", err)
	}

	ok = true
	logger.WithFields(logrus.Fields{
		"store":     cfg.Store.Driver,
		"reasoning": a.Reasoner.Available(),
		"audit":     a.Audit != nil,
		"reports":   a.Renderer != nil,
	}).Info("Application initialized")
	return a, nil
}

func (a *App) openAuditTrail(ctx context.Context) error {
	if a.Config.Database.MigrateOnStart {
		if err := Migrate(ctx, database.URL(a.Config.Database), true, a.Logger); err != nil {
			return err
		}
	}

	db, err := database.Open(ctx, a.Config.Database, a.Logger)
	if err != nil {
		return fmt.Errorf("connecting audit database: %w", err)
	}
	a.DB = db
	a.Audit = repository.NewAuditRepository(db.Pool, a.Logger)
	return nil
}

// Migrate applies (up) or rolls back one (down) schema migration.
func Migrate(ctx context.Context, databaseURL string, up bool, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, logger)
	if err != nil {
		return fmt.Errorf("creating migration runner: %w", err)
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close migration runner")
		}
	}()

	if up {
		return runner.Up(ctx)
	}
	return runner.Down(ctx)
}

// HealthChecks returns the dependency checks reported by the health endpoint.
func (a *App) HealthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"store": func(ctx context.Context) error {
			_, err := a.Store.Count(ctx)
			return err
		},
		"cache": a.Cache.Ping,
		"reasoning": func(context.Context) error {
			if a.Reasoner.Available() && a.Reasoner.BreakerState() == gobreaker.StateOpen {
				return errors.New("circuit breaker open")
			}
			return nil
		},
	}
	if a.DB != nil {
		checks["audit_database"] = a.DB.Ping
	}
	return checks
}

// Close releases every resource that was opened.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		a.DB.Close()
	}
	return errors.Join(errs...)
}
