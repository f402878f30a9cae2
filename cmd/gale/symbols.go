package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"

	"github.com/galecode/gale"

	_ "github.com/galecode/gale/arm"
	_ "github.com/galecode/gale/riscv"
)

// SymbolsCommand represents a command for listing symbols in a binary.
type SymbolsCommand struct{}

// NewSymbolsCommand returns a new instance of SymbolsCommand.
func NewSymbolsCommand() *SymbolsCommand {
	return &SymbolsCommand{}
}

// Run executes the "symbols" subcommand.
func (cmd *SymbolsCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gale-symbols", flag.ContinueOnError)
	pattern := fs.String("match", "", "only list symbols matching regexp")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("binary required")
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many binaries specified")
	}

	project, err := gale.NewProject(fs.Arg(0))
	if err != nil {
		return err
	}

	symbols := project.SymbolMap()
	if *pattern != "" {
		re, err := regexp.Compile(*pattern)
		if err != nil {
			return err
		}
		symbols = project.SymbolsByRegex(re)
	}

	for _, sym := range symbols {
		fmt.Printf("%#08x %6d %s", sym.Addr, sym.Size, sym.Name)
		if sym.File != "" {
			fmt.Printf(" %s:%d", sym.File, sym.Line)
		}
		fmt.Println("")
	}
	return nil
}

func (cmd *SymbolsCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: gale symbols [arguments] [binary]

Arguments:

	-match REGEXP
	    Only list symbols whose name matches the pattern.
`[1:])
}
