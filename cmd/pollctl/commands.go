package main

import (
	"context"
	"flag"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/cli"

	"github.com/pollwave/backend/internal/bootstrap"
	"github.com/pollwave/backend/internal/config"
	"github.com/pollwave/backend/internal/pipeline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func buildApp(ui cli.Ui, process string) (*bootstrap.App, bool) {
	cfg, err := config.Load()
	if err != nil {
		ui.Error("config: " + err.Error())
		return nil, false
	}
	app, err := bootstrap.Build(cfg, process)
	if err != nil {
		ui.Error("bootstrap: " + err.Error())
		return nil, false
	}
	return app, true
}

func printJSON(ui cli.Ui, v interface{}) int {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	ui.Output(string(raw))
	return 0
}

type quotaCommand struct {
	ui cli.Ui
}

func (c *quotaCommand) Synopsis() string { return "Show generation quota usage" }

func (c *quotaCommand) Help() string {
	return strings.TrimSpace(`
Usage: pollctl quota

  Prints the per-minute and per-day generation call counts and limits
  without consuming any quota.
`)
}

func (c *quotaCommand) Run(args []string) int {
	app, ok := buildApp(c.ui, "pollctl")
	if !ok {
		return 1
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	usage, err := app.Gate.Usage(ctx)
	if err != nil {
		c.ui.Error(err.Error())
		return 1
	}
	return printJSON(c.ui, usage)
}

type pipelineCommand struct {
	ui cli.Ui
}

func (c *pipelineCommand) Synopsis() string { return "Run the publishing pipeline once" }

func (c *pipelineCommand) Help() string {
	return strings.TrimSpace(`
Usage: pollctl pipeline [-topic TOPIC]

  Generates, evaluates and stores one poll, then prints the run result.

Options:

  -topic=TOPIC  Use TOPIC instead of the next topic in the rotation.
`)
}

func (c *pipelineCommand) Run(args []string) int {
	flags := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	flags.Usage = func() { c.ui.Output(c.Help()) }
	topic := flags.String("topic", "", "")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	app, ok := buildApp(c.ui, "pollctl")
	if !ok {
		return 1
	}
	defer app.Close()

	if err := app.RequireGeneration(); err != nil {
		c.ui.Error(err.Error())
		return 1
	}
	s, err := app.Store()
	if err != nil {
		c.ui.Error(err.Error())
		return 1
	}

	var topics pipeline.TopicSource = pipeline.NewRotatingTopics(app.State, pipeline.DefaultTopics)
	if *topic != "" {
		topics = pipeline.StaticTopics(*topic)
	}
	res, err := pipeline.New(topics, app.Generator, app.Evaluator, s).Run(context.Background())
	if err != nil {
		c.ui.Error("run aborted: " + err.Error())
		printJSON(c.ui, res)
		return 2
	}
	return printJSON(c.ui, res)
}
