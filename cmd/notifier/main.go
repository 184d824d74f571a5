// Package main is the entry point for the MeteoNotify notification dispatcher.
//
// At cold start it loads configuration, resolves the identity provider
// credential once, selects the email provider and builds the HTTP chassis.
// Inside AWS Lambda the chi router is served through the API Gateway v2
// adapter; otherwise it runs as a standard HTTP server on the configured
// port with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"meteonotify/internal/config"
	"meteonotify/internal/core"
	"meteonotify/internal/credential"
	"meteonotify/internal/external"
	"meteonotify/internal/notify"
	"meteonotify/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("meteonotify starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"email_provider", cfg.Email.Provider,
		"dispatch_mode", string(cfg.Dispatch.Mode),
	)

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	srv, err := buildServer(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		logger.Info("starting in Lambda mode")
		lambda.Start(core.NewLambdaHandler(srv.Handler()))
		return nil
	}

	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires every dependency of the notification endpoint and mounts
// the routes.
func buildServer(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (*core.Server, error) {
	registry, err := external.NewClientRegistry(cfg, awsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating client registry: %w", err)
	}

	state := initCredential(ctx, cfg, registry.Directory, logger)

	composer, err := notify.NewComposer(cfg.Site.Name, cfg.Site.URL)
	if err != nil {
		return nil, err
	}

	metrics := newMetrics(cfg, awsCfg, logger)

	dispatcher := notify.NewDispatcher(registry.Email, notify.DispatcherConfig{
		Mode: cfg.Dispatch.Mode,
		From: types.SenderIdentity{
			Name:    cfg.Email.FromName,
			Address: cfg.Email.FromAddress,
		},
		PlaceholderTo: cfg.Email.BccPlaceholderTo,
	}, metrics, logger.With("component", "dispatcher"))

	handler := notify.NewHandler(notify.HandlerDeps{
		Credential: state,
		Validator:  core.NewValidator(logger),
		Resolver:   notify.NewResolver(cfg.Dispatch.BroadcastSentinel, cfg.Dispatch.RecipientSelectionEnabled, logger.With("component", "resolver")),
		Composer:   composer,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger.With("component", "notify"),
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, credentialProbe(state))
	srv.MountRoutes(handler)

	return srv, nil
}

// initCredential resolves the identity credential. In local mode without a
// service account, LOCAL_DIRECTORY_EMAILS seeds a stub directory instead.
func initCredential(ctx context.Context, cfg *config.Config, factory external.DirectoryFactory, logger *slog.Logger) *credential.State {
	if cfg.IsLocal() && cfg.Identity.ServiceAccountKey.IsEmpty() && len(cfg.Identity.LocalDirectoryEmails) > 0 {
		logger.Info("using stub identity directory", "users", len(cfg.Identity.LocalDirectoryEmails))
		return credential.Ready(external.NewStubDirectory(logger.With("mode", "stub"), cfg.Identity.LocalDirectoryEmails...))
	}

	return credential.NewInitializer(factory, logger.With("component", "credential")).
		Init(ctx, cfg.Identity.ServiceAccountKey)
}

// credentialProbe reports the credential state on /health.
func credentialProbe(state *credential.State) core.HealthProbe {
	return core.ProbeFunc{
		ProbeName: "identity_credential",
		Fn: func(context.Context) error {
			if !state.Ready() {
				return errors.New(state.Reason())
			}
			return nil
		},
	}
}

func newMetrics(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) notify.Metrics {
	if !cfg.Observability.MetricsEnabled {
		return notify.NoopMetrics{}
	}
	return notify.NewCloudWatchMetrics(
		cloudwatch.NewFromConfig(awsCfg),
		cfg.Observability.MetricNamespace,
		logger.With("component", "metrics"),
	)
}

// secretProvider returns the SecretProvider for _SSM_PARAM resolution. The
// loader skips resolution entirely when APP_ENV=local.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return config.NewEnvVarProvider()
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// loadAWSConfig builds the SDK config. AWS_ENDPOINT_URL points every client
// at LocalStack.
func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}
	return awsCfg, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
