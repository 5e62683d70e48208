package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pollwave/backend/internal/bootstrap"
	"github.com/pollwave/backend/internal/config"
)

// Worker entrypoint: one publishing pipeline run per invocation, meant to
// be triggered by an external scheduler. A run that aborts still exits 0;
// only bootstrap failures exit 1.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Error("load config")
		return 1
	}

	app, err := bootstrap.Build(cfg, "worker")
	if err != nil {
		logrus.WithError(err).Error("bootstrap worker")
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Log.WithError(err).Warn("shutdown close failed")
		}
	}()

	if err := app.RequireGeneration(); err != nil {
		app.Log.WithError(err).Error("bootstrap worker")
		return 1
	}
	p, err := app.Pipeline()
	if err != nil {
		app.Log.WithError(err).Error("bootstrap worker")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := p.Run(ctx)
	if err != nil {
		app.Log.WithError(err).WithField("topic", res.Topic).Warn("pipeline run aborted")
		return 0
	}
	app.Log.WithFields(logrus.Fields{
		"topic":      res.Topic,
		"decision":   res.Decision,
		"risk_score": res.RiskScore,
		"poll_id":    res.PollID,
		"persisted":  res.Persisted,
	}).Info("pipeline run finished")
	return 0
}
