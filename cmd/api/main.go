package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/congo-pay/tontine/internal/config"
	"github.com/congo-pay/tontine/internal/infra"
	"github.com/congo-pay/tontine/internal/logging"
	"github.com/congo-pay/tontine/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "app", cfg.AppName, "env", cfg.Env)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	res, err := infra.Connect(connectCtx, cfg)
	cancelConnect()
	if err != nil {
		logger.Error("connect backends", "error", err)
		os.Exit(1)
	}
	defer res.Close(logger)

	srv, err := server.New(cfg, res, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		res.Close(logger)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			res.Close(logger)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		res.Close(logger)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
