package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/otelwasm/guestmem/internal/guestbin"
	"github.com/otelwasm/guestmem/wasmplugin"
)

const (
	defaultInput = "Did you know"

	dumpBefore = 16
	dumpAfter  = 64
)

var errUnexpectedResult = errors.New("unexpected result")

type runOptions struct {
	configFile       string
	module           string
	input            string
	abi              string
	mode             string
	timeout          time.Duration
	memoryLimitPages uint32
	wasi             bool
	dump             bool
	expect           string
}

func newRunCommand(c *cli) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Write the input into guest memory, transform it and print the result",
		Long: `Run loads the guest module, writes the input at the guest's buffer
pointer, calls the transform export and prints what the guest left in its
buffer. Without a module the built-in reference guest is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, c.logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.configFile, "config", "c", "", "YAML config file")
	flags.StringVarP(&o.module, "module", "m", "", "path to the guest module (default: built-in guest)")
	flags.StringVarP(&o.input, "input", "i", defaultInput, "string written into guest memory")
	flags.StringVar(&o.abi, "abi", "", "guest ABI: auto, default, c, rust")
	flags.StringVar(&o.mode, "mode", "", "runtime mode: interpreter, compiled")
	flags.DurationVar(&o.timeout, "timeout", 0, "bound on a whole transform")
	flags.Uint32Var(&o.memoryLimitPages, "memory-limit-pages", 0, "cap on guest memory in 64KiB pages")
	flags.BoolVar(&o.wasi, "wasi", false, "instantiate WASI preview1 for the guest")
	flags.BoolVar(&o.dump, "dump", false, "print guest memory around the buffer pointer after the transform")
	flags.StringVar(&o.expect, "expect", "", "fail unless the result equals this string")
	return cmd
}

// overrides returns the config keys set on the command line.
func (o *runOptions) overrides(flags *pflag.FlagSet) map[string]any {
	m := map[string]any{}
	set := func(flag, key string, v any) {
		if flags.Changed(flag) {
			m[key] = v
		}
	}
	set("module", "path", o.module)
	set("abi", "abi.name", o.abi)
	set("mode", "runtime.mode", o.mode)
	set("timeout", "call_timeout", o.timeout)
	set("memory-limit-pages", "runtime.memory_limit_pages", o.memoryLimitPages)
	set("wasi", "runtime.wasi", o.wasi)
	return m
}

func (o *runOptions) run(cmd *cobra.Command, logger *zap.Logger) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(o.configFile, o.overrides(cmd.Flags()))
	if err != nil {
		return err
	}

	var p *wasmplugin.Plugin
	if cfg.Path != "" {
		p, err = wasmplugin.New(ctx, cfg, wasmplugin.WithLogger(logger))
	} else {
		logger.Info("no module configured, using the built-in guest")
		p, err = wasmplugin.NewFromBytes(ctx, guestbin.Default(), cfg, wasmplugin.WithLogger(logger))
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Shutdown(ctx); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("loaded guest", zap.Stringer("abi", p.ABI()), zap.Uint32("memory_size", p.MemorySize()))

	result, err := p.Transform(ctx, o.input)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result)

	if o.dump {
		w, err := p.Peek(ctx, dumpBefore, dumpAfter)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "buffer pointer %#x\n", w.Pointer)
		writeDump(out, w)
	}

	if cmd.Flags().Changed("expect") {
		if result != o.expect {
			return fmt.Errorf("%w: got %q, want %q", errUnexpectedResult, result, o.expect)
		}
		logger.Info("result matches expectation")
	}
	return nil
}

// writeDump prints w sixteen bytes per line, prefixed with the guest offset.
func writeDump(out io.Writer, w wasmplugin.Window) {
	for i := 0; i < len(w.Bytes); i += 16 {
		line := w.Bytes[i:min(i+16, len(w.Bytes))]
		fmt.Fprintf(out, "%08x  % x\n", int(w.Start)+i, line)
	}
}
