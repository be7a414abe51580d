package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/willemschots/accounts/assets"
	"github.com/willemschots/accounts/internal"
	"github.com/willemschots/accounts/internal/auth"
	authdb "github.com/willemschots/accounts/internal/auth/db"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/db/migrate"
	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/email/mailgun"
	"github.com/willemschots/accounts/internal/email/postmark"
	"github.com/willemschots/accounts/internal/email/sendgrid"
	emailview "github.com/willemschots/accounts/internal/email/view"
	"github.com/willemschots/accounts/internal/krypto"
	"github.com/willemschots/accounts/internal/oauth"
	"github.com/willemschots/accounts/internal/web"
	"github.com/willemschots/accounts/internal/web/sessions"
	"github.com/willemschots/accounts/internal/web/view"
	"github.com/willemschots/accounts/migrations"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	cfg, err := configFromEnv()
	if err != nil {
		logger := slog.New(slog.NewTextHandler(w, nil))
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	logger, closeLog := newLogger(w, cfg.log)
	defer closeLog()

	p, err := db.NewProvider(cfg.db.driver, cfg.db.dsn)
	if err != nil {
		logger.Error("failed to open database", "error", err, "driver", cfg.db.driver)
		return 1
	}

	defer func() {
		err := p.Close()
		if err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if cfg.db.migrate {
		err = migrateDB(ctx, logger, p)
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}
	}

	emailSvc, err := newEmailService(logger, cfg.email)
	if err != nil {
		logger.Error("failed to create email service", "error", err)
		return 1
	}

	authSvc, err := auth.NewService(authdb.New(p), emailSvc, workerErrFunc(logger), cfg.auth)
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	// Workers might still be sending emails when the server stops.
	defer func() {
		logger.Info("waiting for auth workers to finish")
		authSvc.Wait()
	}()

	viewRenderer, err := newViewRenderer(logger, cfg.http.viewDir)
	if err != nil {
		logger.Error("failed to create view renderer", "error", err)
		return 1
	}

	server := web.NewServer(&web.ServerDeps{
		Logger:       logger,
		ViewRenderer: viewRenderer,
		AuthService:  authSvc,
		SessionStore: sessions.NewCookieStore(cfg.http.server.SecureCookie, krypto.KeyValues(cfg.http.cookieKeys)...),
		Providers:    newProviders(cfg),
		DistFS:       assets.DistFS,
	}, cfg.http.server)

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler:      server,
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"build", internal.BuildInfo,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

// newLogger creates the logger for the app. When a log file is configured,
// logs are written to w and to the rotated file.
func newLogger(w io.Writer, cfg logConfig) (*slog.Logger, func()) {
	if cfg.file == "" {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.level})), func() {}
	}

	file := &lumberjack.Logger{
		Filename: cfg.file,
		MaxSize:  cfg.maxSizeMB,
	}

	handler := slog.NewTextHandler(io.MultiWriter(w, file), &slog.HandlerOptions{Level: cfg.level})
	return slog.New(handler), func() {
		_ = file.Close()
	}
}

func migrateDB(ctx context.Context, logger *slog.Logger, p *db.Provider) error {
	logger.Info("attempting to migrate database")

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	result, err := migrate.RunFS(ctx, p, migrations.FS, migrate.Metadata{
		AppVersion: internal.BuildInfo.Version(),
		Timestamp:  internal.BuildInfo.Time,
	})
	if err != nil {
		return err
	}

	for _, m := range result {
		logger.Info("migration ran", "sequence", m.Sequence, "filename", m.Filename)
	}

	if len(result) == 0 {
		logger.Info("no migrations ran, database is up to date")
	}

	return nil
}

// workerErrFunc logs failures of background work. Email providers that
// are temporarily unavailable are logged as a warning.
func workerErrFunc(logger *slog.Logger) auth.ErrFunc {
	return func(err error) {
		var apiErr *email.APIError
		if errors.As(err, &apiErr) && apiErr.Temporary() {
			logger.Warn("email provider unavailable", "provider", apiErr.Provider, "status", apiErr.StatusCode, "error", err)
			return
		}
		logger.Error("error in auth service worker", "error", err)
	}
}

func newEmailService(logger *slog.Logger, cfg emailConfig) (*email.Service, error) {
	var renderer email.Renderer
	if cfg.templateDir != "" {
		logger.Info("loading email templates from disk", "dir", cfg.templateDir)
		renderer = emailview.NewFSRenderer(os.DirFS(cfg.templateDir))
	} else {
		r, err := emailview.NewMemRenderer(assets.EmailFS)
		if err != nil {
			return nil, err
		}
		renderer = r
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	var sender email.Sender
	switch cfg.driver {
	case "postmark":
		sender = postmark.NewSender(client, cfg.postmark)
	case "mailgun":
		sender = mailgun.NewSender(client, cfg.mailgun)
	case "sendgrid":
		sender = sendgrid.NewSender(client, cfg.sendgrid)
	default:
		sender = email.NewLogSender(logger)
	}

	logger.Info("sending emails", "driver", cfg.driver)

	return email.NewService(renderer, sender, cfg.service), nil
}

func newViewRenderer(logger *slog.Logger, dir string) (web.ViewRenderer, error) {
	if dir != "" {
		logger.Info("loading templates from disk", "dir", dir)
		return view.NewFSRenderer(os.DirFS(dir)), nil
	}

	return view.NewMemRenderer(assets.TemplateFS)
}

// newProviders creates the external providers that have a client ID.
func newProviders(cfg config) oauth.Registry {
	callbackURL := func(name string) string {
		return cfg.email.service.BaseURL.JoinPath("external-login", "callback", name).String()
	}

	var providers []*oauth.Provider
	if cfg.oauth.githubClientID != "" {
		providers = append(providers, oauth.NewGitHub(cfg.oauth.githubClientID, cfg.oauth.githubClientSecret, callbackURL("github")))
	}

	if cfg.oauth.googleClientID != "" {
		providers = append(providers, oauth.NewGoogle(cfg.oauth.googleClientID, cfg.oauth.googleClientSecret, callbackURL("google")))
	}

	return oauth.NewRegistry(providers...)
}
