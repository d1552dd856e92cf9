// Package server wires configuration, storage, mail delivery and the HTTP
// API into a runnable application, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/microblog/internal/logging"
	"github.com/dmitrijs2005/microblog/internal/server/config"
	"github.com/dmitrijs2005/microblog/internal/server/credentials"
	"github.com/dmitrijs2005/microblog/internal/server/httpserver"
	"github.com/dmitrijs2005/microblog/internal/server/mailer"
	"github.com/dmitrijs2005/microblog/internal/server/metrics"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"github.com/dmitrijs2005/microblog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/microblog/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	mailTimeout  = 30 * time.Second
	drainTimeout = 15 * time.Second
)

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	registry    *prometheus.Registry
	metrics     *metrics.Collector
	dispatcher  *mailer.Dispatcher

	userService    *services.UserService
	socialService  *services.SocialService
	pictureService *services.PictureService
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, !c.IsProduction())

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	hasher, err := credentials.NewHasher(c.HashCost, c.IsProduction())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("hasher init error: %w", err)
	}

	sender, err := newSender(c, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("mailer init error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	dispatcher := mailer.NewDispatcher(sender, logger.With("module", "mailer"), collector, mailTimeout)
	rm := repomanager.NewPostgresRepositoryManager()

	opts := []services.Option{
		services.WithNotifier(dispatcher),
		services.WithMetrics(collector),
		services.WithLogger(logger.With("module", "services")),
	}

	return &App{
		config:         c,
		logger:         logger,
		db:             db,
		repomanager:    rm,
		registry:       reg,
		metrics:        collector,
		dispatcher:     dispatcher,
		userService:    services.NewUserService(db, rm, c, hasher, opts...),
		socialService:  services.NewSocialService(db, rm, c, opts...),
		pictureService: services.NewPictureService(c, opts...),
	}, nil
}

// newSender picks SMTP delivery when an SMTP address is configured and
// logs messages otherwise. Production requires SMTP.
func newSender(c *config.Config, logger logging.Logger) (mailer.Sender, error) {
	if c.SMTPAddr == "" {
		if c.IsProduction() {
			return nil, errors.New("smtp address is required in production")
		}
		return mailer.NewLogSender(logger.With("module", "mail_log")), nil
	}
	return mailer.NewSMTPSender(c.SMTPAddr, c.SMTPUser, c.SMTPPassword, c.MailFrom)
}

// Migrate applies pending schema migrations.
func (app *App) Migrate(ctx context.Context) error {
	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// CreateAdmin registers an activated administrator account.
func (app *App) CreateAdmin(ctx context.Context, name, email string, password []byte) (*models.User, error) {
	return app.userService.CreateAdmin(ctx, services.RegisterParams{
		Name:     name,
		Email:    email,
		Password: string(password),
	})
}

// Close releases the database pool.
func (app *App) Close() error {
	return app.db.Close()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpserver.NewServer(app.config, app.logger, app.userService, app.socialService, app.pictureService,
		app.metrics, app.registry)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run migrates the schema and serves HTTP until a signal arrives or ctx is
// cancelled. Pending notifications are drained before it returns.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment)

	if err := app.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}
	if err := app.Migrate(ctx); err != nil {
		return err
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := app.dispatcher.Wait(drainCtx); err != nil {
		app.logger.Warn(drainCtx, "notifications still pending at shutdown", "error", err)
	}

	app.logger.Info(drainCtx, "App stopped")
	return nil
}
