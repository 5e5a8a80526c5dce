package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/stigoleg/middleclick/internal/config"
)

// setupLogging sends logs to stderr when headless and to the log file
// while the terminal UI owns the screen.
func setupLogging(opts *config.Options) (func(), error) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	})
	if opts.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	if opts.Headless {
		logrus.SetOutput(os.Stderr)
		return func() {}, nil
	}

	f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logrus.SetOutput(f)
	return func() {
		logrus.SetOutput(os.Stderr)
		f.Close()
	}, nil
}
