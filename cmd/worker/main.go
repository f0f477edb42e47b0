// Command worker processes saved uploads from the Redis job queue.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/app"
	"github.com/dharsanguruparan/styledrop/internal/config"
	"github.com/dharsanguruparan/styledrop/internal/logging"
	"github.com/dharsanguruparan/styledrop/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Jobs re-enqueued by a worker go back to Redis.
	cfg.Queue = config.QueueAsynq
	a, err := app.New(ctx, cfg, log, app.Options{RequireDatabase: true})
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	if g := a.Gatherer(); g != nil {
		metricsSrv := &http.Server{
			Addr:              cfg.Address,
			Handler:           promhttp.HandlerFor(g, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer metricsSrv.Close()
	}

	server := asynq.NewServer(app.RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.ProcessingPool,
		Logger:      log.Sugar(),
	})
	processor := worker.NewProcessor(a.Service, log)

	if err := server.Start(processor.Handler()); err != nil {
		log.Error("worker failed to start", zap.Error(err))
		os.Exit(1)
	}
	log.Info("worker started", zap.Int("concurrency", cfg.ProcessingPool))
	<-ctx.Done()
	server.Shutdown()
	log.Info("worker stopped")
}
