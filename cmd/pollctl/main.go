// Command pollctl inspects the generation quota and runs the publishing
// pipeline by hand.
package main

import (
	"os"

	"github.com/mitchellh/cli"
	"github.com/sirupsen/logrus"
)

const version = "0.1.0"

func main() {
	ui := &cli.BasicUi{Reader: os.Stdin, Writer: os.Stdout, ErrorWriter: os.Stderr}

	c := cli.NewCLI("pollctl", version)
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"quota": func() (cli.Command, error) {
			return &quotaCommand{ui: ui}, nil
		},
		"pipeline": func() (cli.Command, error) {
			return &pipelineCommand{ui: ui}, nil
		},
	}

	status, err := c.Run()
	if err != nil {
		logrus.WithError(err).Error("pollctl")
	}
	os.Exit(status)
}
