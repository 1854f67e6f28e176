package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"airtable-sync/internal/airtable"
	"airtable-sync/internal/config"
	"airtable-sync/internal/dispatch"
	"airtable-sync/internal/natspub"
	"airtable-sync/internal/project"
	"airtable-sync/internal/registry"
	"airtable-sync/internal/server"
	"airtable-sync/internal/store"
	"airtable-sync/internal/transform"
)

func main() {
	// Setup logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Set log level from config
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.Info("Starting airtable-sync service...")
	logger.Infof("Webhook notification URL: %s", cfg.NotificationURL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the durable store
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	// Upstream client
	client := airtable.NewClient(airtable.Options{
		BaseURL:           cfg.Airtable.BaseURL,
		RequestsPerSecond: cfg.Airtable.RequestsPerSecond,
		MaxPages:          cfg.Airtable.MaxPages,
		Timeout:           cfg.Airtable.RequestTimeout,
	}, logger)

	reg := registry.New(st, client, cfg.NotificationURL(), logger)
	projects := project.NewService(st)

	// Topic bridge publisher
	publisher, err := natspub.New(
		cfg.NATS.URL,
		cfg.NATS.SubjectPrefix,
		cfg.NATS.MaxReconnect,
		cfg.NATS.ReconnectWait,
		logger,
	)
	if err != nil {
		logger.Fatalf("Failed to create NATS publisher: %v", err)
	}
	defer publisher.Close()

	// Optional outbound transform script
	var sink dispatch.Publisher = publisher
	if cfg.Transform.Script != "" {
		tr, err := transform.New(cfg.Transform.Script, publisher, logger)
		if err != nil {
			logger.Fatalf("Failed to load transform script: %v", err)
		}
		sink = tr
	}

	dispatcher := dispatch.New(reg, client, sink, logger)
	srv := server.New(reg, projects, client, dispatcher, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: srv.Routes(),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", cfg.Server.Listen)
		errChan <- httpServer.ListenAndServe()
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v, shutting down...", sig)
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown error: %v", err)
	}
	cancel()

	logger.Info("airtable-sync service stopped")
}
