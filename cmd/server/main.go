// Command server runs the styledrop HTTP API. With the memory queue it also
// processes uploads in-process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/api"
	"github.com/dharsanguruparan/styledrop/internal/app"
	"github.com/dharsanguruparan/styledrop/internal/config"
	"github.com/dharsanguruparan/styledrop/internal/logging"
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

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	if a.Pool != nil {
		a.Pool.Start(ctx, a.Service.Process)
		defer a.Pool.Wait()
	}
	srv := api.New(cfg, a.Service, a.Signer, a.Gatherer(), log)
	if err := srv.Run(ctx); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
