// Command weld links one or more ELF64 relocatable object files into a
// single statically-linked executable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neeilan/weld/elf"
	"github.com/neeilan/weld/linker"
	"github.com/neeilan/weld/parser"
)

var (
	outputPath string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weld [object-files...]",
		Short: "Link ELF64 relocatable objects into a static executable",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run,
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "./weld.out", "path to write the linked executable")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log per-symbol and per-relocation detail")
	return cmd
}

func run(cmd *cobra.Command, paths []string) error {
	logger, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	inputs := make([]*elf.Relocatable, 0, len(paths))
	for _, path := range paths {
		bytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		reloc, err := parser.Parse(path, bytes)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		logger.Debugw("parsed object", "path", path, "sections", len(reloc.Sections), "symbols", len(reloc.Symbols), "relocations", len(reloc.Relocations))
		for _, sym := range reloc.Symbols {
			logger.Debugw("symbol", "path", path, "name", sym.Name, "defined", sym.IsDefined(), "value", sym.Record.Value)
		}
		for _, r := range reloc.Relocations {
			logger.Debugw("relocation", "path", path, "offset", r.Offset, "type", r.RawType(), "addend", r.Addend, "symbol", r.Symbol.Name)
		}
		inputs = append(inputs, reloc)
	}

	exec, errs := linker.Link(inputs)
	if errs != nil {
		for _, e := range errs.Errors {
			if unhandled, ok := e.(linker.UnhandledRelocationError); ok {
				logger.Warnw("non-fatal linker diagnostic", "error", unhandled)
			} else {
				fmt.Fprintln(os.Stderr, e)
			}
		}
	}
	if exec == nil {
		return fmt.Errorf("linking failed")
	}

	out, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("%s: %w", outputPath, err)
	}
	defer out.Close()

	n, err := exec.WriteTo(out)
	if err != nil {
		return fmt.Errorf("%s: %w", outputPath, err)
	}
	logger.Infow("wrote executable", "path", outputPath, "bytes", n, "entrypoint", exec.FileHeader.Entrypoint)
	return nil
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return base.Sugar(), nil
}
