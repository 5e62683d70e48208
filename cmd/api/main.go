package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/sirupsen/logrus"

	"github.com/pollwave/backend/internal/bootstrap"
	"github.com/pollwave/backend/internal/config"
)

// API process entrypoint: load config, wire the app, serve until signalled.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Error("load config")
		return 1
	}

	app, err := bootstrap.Build(cfg, "api")
	if err != nil {
		logrus.WithError(err).Error("bootstrap api")
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Log.WithError(err).Warn("shutdown close failed")
		}
	}()

	srv, err := app.HTTPServer()
	if err != nil {
		app.Log.WithError(err).Error("bootstrap api")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		app.Log.WithField("addr", srv.Addr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Log.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	app.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Log.WithError(err).Warn("graceful shutdown failed")
	}
	return 0
}
