package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/otelwasm/guestmem/runtime"
)

type cli struct {
	logLevel string
	logger   *zap.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{logger: zap.NewNop()}

	cmd := &cobra.Command{
		Use:          "guestmem",
		Short:        "Exchange data with a WebAssembly guest through its linear memory",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(c.logLevel)
			if err != nil {
				return err
			}
			c.logger = logger
			runtime.SetLogger(logger.Named("runtime"))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = c.logger.Sync()
		},
	}
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newRunCommand(c),
		newBuildCommand(c),
		newSchemaCommand(),
	)
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel
	return cfg.Build()
}
