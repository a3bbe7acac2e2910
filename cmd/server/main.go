package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/npezzotti/go-chatapp/internal/api"
	"github.com/npezzotti/go-chatapp/internal/config"
	"github.com/npezzotti/go-chatapp/internal/database"
	"github.com/npezzotti/go-chatapp/internal/events"
	"github.com/npezzotti/go-chatapp/internal/logging"
	"github.com/npezzotti/go-chatapp/internal/responder"
	"github.com/npezzotti/go-chatapp/internal/server"
	"github.com/npezzotti/go-chatapp/internal/stats"
	"go.uber.org/zap"
)

var configPath string

func main() {
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.Parse()

	// a missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.NewSeededChatRepository()
	if err != nil {
		return fmt.Errorf("seed store: %w", err)
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	opts := []server.Option{server.WithDedupe(cfg.DedupeDeliveries)}
	if len(cfg.KafkaBrokers) > 0 {
		logger.Info("exporting events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		opts = append(opts, server.WithPublisher(events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)))
	}

	chatServer := server.NewChatServer(logger.Named("chat"), db, statsUpdater, opts...)
	replies := responder.New(logger.Named("responder"), db, chatServer, statsUpdater, responder.Static(cfg.ReplyText), cfg.ReplyDelay)
	srv := api.NewChatApp(mux, logger.Named("http"), chatServer, db, replies, statsUpdater, cfg)

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigs:
		logger.Info("received signal", zap.Stringer("signal", sig))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	replies.Stop()

	logger.Info("shutting down chat server...")
	if err := chatServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("chat server shutdown: %w", err)
	}

	return serveErr
}
