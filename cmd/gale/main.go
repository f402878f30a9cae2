package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "", "-h", "--help", "help":
		usage()
		return flag.ErrHelp
	case "run":
		return NewRunCommand().Run(ctx, args)
	case "symbols":
		return NewSymbolsCommand().Run(ctx, args)
	default:
		return fmt.Errorf(`gale %s: unknown command`, cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `
Gale is a tool for symbolic execution of embedded firmware binaries.

Usage:

	gale <command> [arguments]

The commands are:

	run         explore paths through a function
	symbols     list symbols in a binary
	help        this screen
`[1:])
}
