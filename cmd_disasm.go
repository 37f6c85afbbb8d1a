package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/emit"
	"github.com/dinhngtu/uvtester/kernel"
	"github.com/dinhngtu/uvtester/selfcheck"
	"github.com/dinhngtu/uvtester/utils"
)

type disasmFlags struct {
	method        string
	depth         int
	pauseDepth    int
	convention    string
	immediateSeed uint64
}

func newDisasmCmd() *cobra.Command {
	f := &disasmFlags{method: "imul", depth: 4}
	cmd := &cobra.Command{
		Use:   "disasm",
		Short: "Print the generated self-check program and its machine code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed *uint64
			if cmd.Flags().Changed("imm-seed") {
				seed = &f.immediateSeed
			}
			return disassemble(cmd.OutOrStdout(), f, seed)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.method, "method", "m", f.method, "Kernel: imul, imul_tree, imul_imm or aesenc")
	fl.IntVar(&f.depth, "depth", f.depth, "Kernel depth (tree depth for imul_tree)")
	fl.IntVar(&f.pauseDepth, "pausedepth", f.pauseDepth, "Pause instructions emitted after the loop")
	fl.StringVar(&f.convention, "conv", "", "Calling convention: sysv or win64 (default: host)")
	fl.Uint64Var(&f.immediateSeed, "imm-seed", 0, "Fix the imul_imm immediate stream seed")
	return cmd
}

func disassemble(w io.Writer, f *disasmFlags, seed *uint64) error {
	kind, err := kernel.ParseKind(f.method)
	if err != nil {
		return err
	}
	target := abi.Host()
	if f.convention != "" {
		conv, err := abi.LookupConvention(f.convention)
		if err != nil {
			return err
		}
		target.Convention = conv
	}

	opts := []selfcheck.Option{selfcheck.WithTarget(target), selfcheck.WithLogger(utils.Logger())}
	if seed != nil {
		opts = append(opts, selfcheck.WithImmediateSeed(*seed))
	}
	p, err := selfcheck.Build(kind, f.depth, f.pauseDepth, opts...)
	if err != nil {
		return err
	}
	code, err := emit.Assemble(p)
	if err != nil {
		return err
	}
	lines, err := emit.Disassemble(code)
	if err != nil {
		return err
	}

	fmt.Fprint(w, p.String())
	fmt.Fprintf(w, "\n; %d bytes\n", len(code))
	fmt.Fprint(w, emit.Listing(lines))
	return nil
}
