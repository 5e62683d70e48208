// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Setup applies level and output to the standard logrus logger and returns it.
// When file is set, output is JSON and rotated by lumberjack; otherwise text
// goes to stdout.
func Setup(level, file string) *logrus.Logger {
	logger := logrus.StandardLogger()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if file == "" {
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return logger
	}

	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, rotating))
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

// Module returns an entry tagged with the owning package, the way every
// component in this repo logs.
func Module(name string) *logrus.Entry {
	return logrus.WithField("module", name)
}
