package gale

import (
	"errors"
	"fmt"
)

// Standard widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

var (
	ErrSolverTimeout       = errors.New("Solver timeout")
	ErrSolverCanceled      = errors.New("Solver canceled")
	ErrSolverResourceLimit = errors.New("Solver resource limit")
	ErrSolverUnknown       = errors.New("Solver unknown error")
)

// UnsupportedExprError is returned by a solver backend when it cannot
// express an operation (e.g. unordered float comparison on a backend
// without IEEE-754 support). It is an internal capability mismatch and
// must never be silently approximated.
type UnsupportedExprError struct {
	Backend string
	Op      string
}

// Error returns the error as a string.
func (e *UnsupportedExprError) Error() string {
	return fmt.Sprintf("%s: unsupported expression: %s", e.Backend, e.Op)
}

// Solver represents a logical constraint solver.
type Solver interface {
	// Returns the satisfiability of the set of constraints. If the formula
	// is satisfiable, a valid value is returned for each array passed in.
	Solve(constraints []Expr, arrays []*Array) (satisfiable bool, values [][]byte, err error)
}

// SolveConstant returns the single concrete value of expr under the given
// constraints, if one provably exists. Returns nil (and no error) if the
// expression can take more than one value.
//
// A syntactically constant expression is returned directly without
// consulting the solver.
func SolveConstant(solver Solver, constraints []Expr, expr Expr) (*ConstantExpr, error) {
	if expr, ok := expr.(*ConstantExpr); ok {
		return expr, nil
	}

	width := ExprWidth(expr)

	// Bind the expression to a fresh scratch array so the backend can
	// report a model value for it.
	scratch := NewNamedArray(nextAnonArrayID(), "gale#const", minBytes(width))
	bound := NewBinaryExpr(EQ, scratch.Select(NewConstantExpr64(0), width, true), expr)

	arrays := []*Array{scratch}
	sat, values, err := solver.Solve(append(cloneConstraints(constraints), bound), arrays)
	if err != nil {
		return nil, err
	} else if !sat {
		return nil, errors.New("gale: constant query over unsatisfiable constraints")
	}

	candidate, err := NewExprEvaluator(arrays, values).Evaluate(scratch.Select(NewConstantExpr64(0), width, true))
	if err != nil {
		return nil, err
	}

	// Unique iff no model exists where expr differs from the candidate.
	distinct := NewNotExpr(NewBinaryExpr(EQ, expr, candidate))
	sat, _, err = solver.Solve(append(cloneConstraints(constraints), distinct), nil)
	if err != nil {
		return nil, err
	} else if sat {
		return nil, nil
	}
	return candidate, nil
}

func cloneConstraints(a []Expr) []Expr {
	other := make([]Expr, len(a), len(a)+1)
	copy(other, a)
	return other
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
