package gale

import (
	"errors"
	"fmt"
)

// Config holds everything the arbiter needs to explore a binary.
type Config struct {
	// Project is the loaded binary. Required.
	Project *Project

	// Solver decides branch feasibility and extracts models. Required.
	Solver Solver

	// Selector orders the path frontier. Defaults to depth-first.
	Selector PathSelector

	// Logger receives progress and terminal reports. Defaults to none.
	Logger Logger

	// Hooks applied to every path, on top of the architecture's own.
	Hooks *HookContainer

	// User is the initial analysis-specific payload, cloned per path.
	User UserState

	// MaxJumpTargets bounds symbolic jump enumeration.
	// Zero means DefaultMaxJumpTargets.
	MaxJumpTargets int
}

// Arbiter owns one exploration: it seeds the initial path at an entry
// point, drives the selector to exhaustion, and reports each terminal.
type Arbiter struct {
	config   Config
	hooks    *HookContainer
	executor *Executor
}

// NewArbiter validates config and returns a ready arbiter.
func NewArbiter(config Config) (*Arbiter, error) {
	if config.Project == nil {
		return nil, errors.New("project required")
	} else if config.Project.Arch == nil {
		return nil, errors.New("project has no architecture")
	} else if config.Solver == nil {
		return nil, errors.New("solver required")
	}
	if config.Selector == nil {
		config.Selector = NewDFSSelector()
	}
	if config.Logger == nil {
		config.Logger = NopLogger{}
	}

	// Architecture hooks first so user hooks can override them.
	hooks := NewHookContainer()
	config.Project.Arch.AddHooks(hooks)
	if config.Hooks != nil {
		hooks.Merge(config.Hooks)
	}

	executor := NewExecutor(config.Project.Arch, config.Solver, config.Selector, config.Logger)
	if config.MaxJumpTargets > 0 {
		executor.MaxJumpTargets = config.MaxJumpTargets
	}

	return &Arbiter{config: config, hooks: hooks, executor: executor}, nil
}

// Run explores every path reachable from the named entry function and
// returns the terminal results in exploration order.
func (a *Arbiter) Run(entry string) ([]*PathResult, error) {
	return a.run(entry, a.hooks)
}

// RunWithHooks explores from entry with extra hooks layered over the
// arbiter's own. The arbiter's hook set is not modified.
func (a *Arbiter) RunWithHooks(entry string, hooks *HookContainer) ([]*PathResult, error) {
	merged := a.hooks.Clone()
	if hooks != nil {
		merged.Merge(hooks)
	}
	return a.run(entry, merged)
}

// WritableRange is a half-open address interval writes may target.
type WritableRange struct {
	Start uint64
	End   uint64
}

// RunWithStrictMemory explores from entry while rejecting any memory
// write outside the given ranges. Paths that violate the policy
// terminate as failures.
func (a *Arbiter) RunWithStrictMemory(entry string, writable []WritableRange) ([]*PathResult, error) {
	hooks := a.hooks.Clone()
	ranges := append([]WritableRange(nil), writable...)
	hooks.AddMemoryRangeHook(0, ^uint64(0), nil, func(state *GAState, addr uint64, value Expr) error {
		for _, r := range ranges {
			if addr >= r.Start && addr < r.End {
				return state.WriteMemoryRaw(addr, value)
			}
		}
		return &MemoryError{Addr: addr, Op: "write", Reason: "write outside permitted ranges"}
	})
	return a.run(entry, hooks)
}

func (a *Arbiter) run(entry string, hooks *HookContainer) ([]*PathResult, error) {
	sym, ok := a.config.Project.SymbolByName(entry)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryFunctionNotFound, entry)
	}

	user := a.config.User
	if user != nil {
		user = user.Clone()
	}
	state := NewGAState(a.config.Project, hooks, a.config.Solver, user)
	state.SetPCConst(sym.Addr)

	selector := a.config.Selector
	selector.SavePath(NewPath(state))

	var results []*PathResult
	for selector.Len() > 0 {
		path := selector.NextPath()
		if path == nil {
			break
		}

		result, err := a.executor.ExecutePath(path.Resume())
		if err != nil {
			return results, err
		}
		if result == nil {
			continue // forked into children
		}
		a.config.Logger.PathExplored(result)
		results = append(results, result)
	}
	return results, nil
}
