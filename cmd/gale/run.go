package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/galecode/gale"
	"github.com/galecode/gale/btor"
	"github.com/galecode/gale/z3"
	"github.com/sirupsen/logrus"

	_ "github.com/galecode/gale/arm"
	_ "github.com/galecode/gale/riscv"
)

// RunCommand represents a command for exploring paths through a function.
type RunCommand struct{}

// NewRunCommand returns a new instance of RunCommand.
func NewRunCommand() *RunCommand {
	return &RunCommand{}
}

// Run executes the "run" subcommand.
func (cmd *RunCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gale-run", flag.ContinueOnError)
	entry := fs.String("entry", "main", "entry function")
	solverName := fs.String("solver", "z3", "solver backend (z3|btor)")
	strategy := fs.String("strategy", "dfs", "path selection strategy (dfs|bfs)")
	maxJumpTargets := fs.Int("max-jump-targets", 0, "symbolic jump target limit")
	verbose := fs.Bool("v", false, "verbose")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("binary required")
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many binaries specified")
	}

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	var solver gale.Solver
	switch *solverName {
	case "z3":
		s := z3.NewSolver()
		defer s.Close()
		solver = s
	case "btor":
		solver = btor.NewSolver()
	default:
		return fmt.Errorf("unknown solver: %s", *solverName)
	}

	var selector gale.PathSelector
	switch *strategy {
	case "dfs":
		selector = gale.NewDFSSelector()
	case "bfs":
		selector = gale.NewBFSSelector()
	default:
		return fmt.Errorf("unknown strategy: %s", *strategy)
	}

	project, err := gale.NewProject(fs.Arg(0))
	if err != nil {
		return err
	}

	arbiter, err := gale.NewArbiter(gale.Config{
		Project:        project,
		Solver:         solver,
		Selector:       selector,
		Logger:         gale.NewLogrusLogger(log),
		MaxJumpTargets: *maxJumpTargets,
	})
	if err != nil {
		return err
	}

	results, err := arbiter.Run(*entry)
	if err != nil {
		return err
	}

	for i, result := range results {
		fmt.Printf("path#%d %s pc=%#x cycles=%d", i, result.Status, result.PC, result.Cycles)
		if result.Reason != "" {
			fmt.Printf(" (%s)", result.Reason)
		}
		fmt.Println("")
	}
	return nil
}

func (cmd *RunCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: gale run [arguments] [binary]

Arguments:

	-entry NAME
	    Entry function to explore. Defaults to "main".

	-solver NAME
	    Solver backend, either "z3" or "btor". Defaults to "z3".

	-strategy NAME
	    Path selection strategy, either "dfs" or "bfs". Defaults to "dfs".

	-max-jump-targets N
	    Limit on enumerated targets for symbolic jumps.

	-v
	    Enable verbose logging.
`[1:])
}
