package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/otelwasm/guestmem/internal/guestbin"
	"github.com/otelwasm/guestmem/wasmplugin"
)

// Builder writes the reference guest to Output.
type Builder struct {
	ABI     string
	Options guestbin.Options
	Output  string
}

func (b *Builder) Build() error {
	if b.ABI != "" {
		abi, ok := wasmplugin.LookupABI(b.ABI)
		if !ok {
			return fmt.Errorf("unknown ABI %q: %w", b.ABI, wasmplugin.ErrABINotDetected)
		}
		b.Options.PointerExport = abi.PointerExport
		b.Options.TransformExport = abi.TransformExport
	}

	output, err := filepath.Abs(b.Output)
	if err != nil {
		return fmt.Errorf("failed to get absolute path of output file %s: %w", b.Output, err)
	}

	module, err := guestbin.Build(b.Options)
	if err != nil {
		return err
	}

	err = os.WriteFile(output, module, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write guest module %s: %w", output, err)
	}
	return nil
}

func newBuildCommand(c *cli) *cobra.Command {
	b := &Builder{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Write the built-in reference guest to a .wasm file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := b.Build(); err != nil {
				return err
			}
			c.logger.Info("Build completed successfully", zap.String("output", b.Output))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&b.Output, "output", "o", "guest.wasm", "output file")
	flags.StringVar(&b.ABI, "abi", "", "export names: default, c, rust")
	flags.Uint32Var(&b.Options.BufferOffset, "buffer-offset", guestbin.DefaultBufferOffset, "initial buffer offset")
	flags.StringVar(&b.Options.Suffix, "suffix", guestbin.DefaultSuffix, "text appended by transform")
	flags.BoolVar(&b.Options.Relocate, "relocate", false, "move the buffer on every transform")
	flags.BoolVar(&b.Options.ImportLog, "log", false, "report each result through env.log")
	return cmd
}
