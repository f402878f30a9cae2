package gale

import (
	"errors"
	"fmt"
)

// ErrSuppressPath is returned by an intrinsic hook to drop the current
// path from reporting without marking it a failure.
var ErrSuppressPath = errors.New("path suppressed")

// PathStatus is the terminal classification of one explored path.
type PathStatus int

const (
	// PathSuccess is a path that ran to a successful end.
	PathSuccess PathStatus = iota

	// PathFailure is a path terminated by an abort, decode error,
	// illegal memory access, hook-declared fault or non-deterministic PC.
	PathFailure

	// PathSuppressed is a path intentionally dropped from reporting.
	PathSuppressed

	// PathUnsat is a path whose accumulated constraints are provably
	// contradictory. A dead branch, not a user-visible failure.
	PathUnsat
)

var pathStatuses = [...]string{
	PathSuccess:    "success",
	PathFailure:    "failure",
	PathSuppressed: "suppressed",
	PathUnsat:      "unsat",
}

// String returns the string representation of the status.
func (s PathStatus) String() string {
	if s >= 0 && int(s) < len(pathStatuses) {
		return pathStatuses[s]
	}
	return fmt.Sprintf("PathStatus<%d>", int(s))
}

// PathResult is the terminal record of one explored path.
type PathResult struct {
	Status      PathStatus
	Reason      string
	PC          uint64
	Cycles      int64
	State       *GAState
	Constraints []Expr
}

// DefaultMaxJumpTargets bounds how many concrete destinations are
// enumerated for a fully symbolic jump target.
const DefaultMaxJumpTargets = 16

// Executor interprets decoded instructions against machine state,
// consulting hooks, forking at underconstrained conditional jumps, and
// producing a terminal result per path.
//
// Stepping is a fixed cycle: fetch bytes at the concrete program
// counter, decode, consult hooks, interpret the operations, then commit
// the instruction length to the program counter and tick the cycle
// counter.
type Executor struct {
	Arch           Arch
	Solver         Solver
	Selector       PathSelector
	Logger         Logger
	MaxJumpTargets int
}

// NewExecutor returns a new instance of Executor.
func NewExecutor(arch Arch, solver Solver, selector PathSelector, logger Logger) *Executor {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Executor{
		Arch:           arch,
		Solver:         solver,
		Selector:       selector,
		Logger:         logger,
		MaxJumpTargets: DefaultMaxJumpTargets,
	}
}

// ExecutePath runs the state until it reaches a terminal or forks.
// A forked path returns (nil, nil): its children have been pushed onto
// the selector and the parent no longer exists as an executable path.
func (e *Executor) ExecutePath(state *GAState) (*PathResult, error) {
	for {
		result, forked, err := e.Step(state)
		if err != nil {
			return nil, err
		} else if forked {
			return nil, nil
		} else if result != nil {
			return result, nil
		}
	}
}

// Step executes exactly one instruction (or one hook).
// Returns a non-nil result at a terminal, or forked=true when the path
// has been split into children on the selector.
func (e *Executor) Step(state *GAState) (result *PathResult, forked bool, err error) {
	pc := state.PC()
	e.updateRegion(state, pc)

	// A matching hook replaces decode and execution.
	if hook, ok := state.Hooks.PCHookFor(pc); ok {
		switch hook.Kind {
		case HookEndSuccess:
			return e.terminal(state, PathSuccess, ""), false, nil
		case HookEndFailure:
			return e.terminal(state, PathFailure, hook.Reason), false, nil
		case HookIntrinsic:
			if err := hook.Intrinsic(state); err != nil {
				if errors.Is(err, ErrSuppressPath) {
					return e.terminal(state, PathSuppressed, ""), false, nil
				}
				return e.terminal(state, PathFailure, err.Error()), false, nil
			}
			if state.PC() == pc {
				return e.terminal(state, PathFailure, fmt.Sprintf("intrinsic hook at %#x did not advance pc", pc)), false, nil
			}
			return nil, false, nil
		case HookSkip:
			instr, err := e.decode(state, pc)
			if err != nil {
				return e.terminal(state, PathFailure, err.Error()), false, nil
			}
			state.SetPCConst(pc + instr.Size)
			return nil, false, nil
		}
	}

	// Decode errors terminate only this path.
	instr, err := e.decode(state, pc)
	if err != nil {
		return e.terminal(state, PathFailure, err.Error()), false, nil
	}

	// Conditional block guard for this instruction, if any.
	guard, _ := state.NextCondition()
	if guard != nil {
		if c, ok := guard.(*ConstantExpr); ok {
			if c.IsTrue() {
				guard = nil
			} else {
				// Statically false guard; skip the body entirely.
				state.ClearLocals()
				state.SetPCConst(pc + instr.Size)
				state.Cycles += int64(instr.CycleCount.Count(state))
				return nil, false, nil
			}
		}
	}

	ctx := &execContext{exec: e, state: state, guard: guard, size: instr.Size}
	out, err := ctx.run(instr.Operations)
	state.ClearLocals()
	if err != nil {
		return e.terminal(state, PathFailure, err.Error()), false, nil
	}
	switch out.kind {
	case outcomeAbort:
		return e.terminal(state, PathFailure, out.reason), false, nil
	case outcomeUnsat:
		return e.terminal(state, PathUnsat, out.reason), false, nil
	case outcomeForked:
		return nil, true, nil
	}

	if out.kind != outcomeJumped {
		state.SetPCConst(pc + instr.Size)
	}
	state.Cycles += int64(instr.CycleCount.Count(state))
	return nil, false, nil
}

// decode fetches and translates the instruction at pc.
func (e *Executor) decode(state *GAState, pc uint64) (*Instruction, error) {
	seg, ok := state.Project.SegmentAt(pc)
	if !ok {
		return nil, &MemoryError{Addr: pc, Op: "read", Reason: "fetch outside loaded memory"}
	}
	data := seg.Data[pc-seg.Addr:]
	instr, err := e.Arch.Translate(data, state)
	if err != nil {
		return nil, fmt.Errorf("decode at %#x: %w", pc, err)
	}
	return instr, nil
}

// updateRegion tags log output with the subprogram containing pc.
func (e *Executor) updateRegion(state *GAState, pc uint64) {
	sym, ok := state.Project.SymbolByAddress(pc)
	if !ok {
		return
	}
	if e.Logger.CurrentRegion() != sym.Name {
		e.Logger.UpdateDelimiter(pc, sym.Name)
	}
}

// terminal closes the path's assumption scope and builds its record.
func (e *Executor) terminal(state *GAState, status PathStatus, reason string) *PathResult {
	result := &PathResult{
		Status:      status,
		Reason:      reason,
		PC:          state.PC(),
		Cycles:      state.Cycles,
		State:       state,
		Constraints: append([]Expr(nil), state.Constraints()...),
	}
	if state.ConstraintFrames() > 0 {
		state.PopConstraintFrame()
	}
	return result
}

// isSatisfiable probes whether the state's constraints plus extra admit
// a model.
func (e *Executor) isSatisfiable(state *GAState, extra Expr) (bool, error) {
	if c, ok := extra.(*ConstantExpr); ok && len(state.Constraints()) == 0 {
		return c.IsTrue(), nil
	}
	if e.Solver == nil {
		return false, errors.New("symbolic condition requires a solver")
	}
	constraints := AddConstraint(cloneConstraints(state.Constraints()), extra)
	sat, _, err := e.Solver.Solve(constraints, nil)
	return sat, err
}

type outcomeKind int

const (
	outcomeFallThrough outcomeKind = iota
	outcomeJumped
	outcomeForked
	outcomeAbort
	outcomeUnsat
)

type outcome struct {
	kind   outcomeKind
	reason string
}

// execContext carries the per-instruction interpretation state: the
// machine state, the active conditional guard (nil when the instruction
// executes unconditionally), and the decoded instruction length.
type execContext struct {
	exec  *Executor
	state *GAState
	guard Expr
	size  uint64
}

// run interprets an operation list in order.
func (ctx *execContext) run(ops []Operation) (outcome, error) {
	for _, op := range ops {
		out, err := ctx.execOperation(op)
		if err != nil {
			return outcome{}, err
		}
		if out.kind != outcomeFallThrough {
			return out, nil
		}
	}
	return outcome{}, nil
}

func (ctx *execContext) execOperation(op Operation) (outcome, error) {
	switch op := op.(type) {
	case Nop:
		return outcome{}, nil
	case Move:
		return ctx.unaryOp(op.Dst, op.Src, func(v Expr) Expr { return v })
	case Add:
		return ctx.binaryOp(op.Dst, op.A, op.B, ADD)
	case Adc:
		return ctx.execAdc(op)
	case Sub:
		return ctx.binaryOp(op.Dst, op.A, op.B, SUB)
	case Sbc:
		return ctx.execSbc(op)
	case Mul:
		return ctx.binaryOp(op.Dst, op.A, op.B, MUL)
	case UDiv:
		return ctx.binaryOp(op.Dst, op.A, op.B, UDIV)
	case SDiv:
		return ctx.binaryOp(op.Dst, op.A, op.B, SDIV)
	case URem:
		return ctx.binaryOp(op.Dst, op.A, op.B, UREM)
	case SRem:
		return ctx.binaryOp(op.Dst, op.A, op.B, SREM)
	case And:
		return ctx.binaryOp(op.Dst, op.A, op.B, AND)
	case Or:
		return ctx.binaryOp(op.Dst, op.A, op.B, OR)
	case Xor:
		return ctx.binaryOp(op.Dst, op.A, op.B, XOR)
	case Not:
		return ctx.unaryOp(op.Dst, op.Src, NewNotExpr)
	case Sl:
		return ctx.binaryOp(op.Dst, op.Src, op.Shift, SHL)
	case Srl:
		return ctx.binaryOp(op.Dst, op.Src, op.Shift, LSHR)
	case Sra:
		return ctx.binaryOp(op.Dst, op.Src, op.Shift, ASHR)
	case Sror:
		return ctx.execRotate(op)
	case ZeroExtend:
		return ctx.execCast(op.Dst, op.Src, op.Bits, false)
	case SignExtend:
		return ctx.execCast(op.Dst, op.Src, op.Bits, true)
	case Resize:
		return ctx.execCast(op.Dst, op.Src, op.Bits, false)
	case ExtractBits:
		return ctx.unaryOp(op.Dst, op.Src, func(v Expr) Expr {
			return NewExtractExpr(v, op.Offset, op.Width)
		})
	case InsertBits:
		return ctx.execInsertBits(op)
	case UAddSat:
		return ctx.satOp(op.Dst, op.A, op.B, NewUAddSatExpr)
	case SAddSat:
		return ctx.satOp(op.Dst, op.A, op.B, NewSAddSatExpr)
	case USubSat:
		return ctx.satOp(op.Dst, op.A, op.B, NewUSubSatExpr)
	case SSubSat:
		return ctx.satOp(op.Dst, op.A, op.B, NewSSubSatExpr)
	case CountOnes:
		return ctx.unaryOp(op.Dst, op.Src, ctx.state.PopCount)
	case CountLeadingZeroes:
		return ctx.unaryOp(op.Dst, op.Src, ctx.state.LeadingZeroes)
	case SetNFlag:
		return ctx.execSetNFlag(op)
	case SetZFlag:
		return ctx.execSetZFlag(op)
	case SetCFlag:
		return ctx.execSetCFlag(op)
	case SetCFlagShiftLeft:
		return ctx.execSetCFlagShiftLeft(op)
	case SetCFlagShiftRight:
		return ctx.execSetCFlagShiftRight(op)
	case SetVFlag:
		return ctx.execSetVFlag(op)
	case ConditionalJump:
		return ctx.execConditionalJump(op)
	case ConditionalExecution:
		return ctx.execConditionalExecution(op)
	case Ite:
		return ctx.execIte(op)
	case ForEach:
		return ctx.execForEach(op)
	case Abort:
		return outcome{kind: outcomeAbort, reason: op.Message}, nil
	case FPBinary:
		return ctx.execFPBinary(op)
	case FPUnary:
		return ctx.unaryOp(op.Dst, op.Src, func(v Expr) Expr {
			return NewFPUnaryExpr(op.Op, op.Rounding, v)
		})
	case FPFMA:
		return ctx.execFPFMA(op)
	case FPCompare:
		return ctx.execFPCompare(op)
	case FPClassify:
		return ctx.unaryOp(op.Dst, op.Src, func(v Expr) Expr {
			return NewFPClassifyExpr(op.Op, v)
		})
	case FPConvert:
		return ctx.unaryOp(op.Dst, op.Src, func(v Expr) Expr {
			return NewFPConvertExpr(op.Kind, op.Rounding, v, op.Bits)
		})
	default:
		return outcome{}, fmt.Errorf("invalid operation type: %T", op)
	}
}

// readOperand resolves an operand to its current expression.
func (ctx *execContext) readOperand(op Operand) (Expr, error) {
	switch op := op.(type) {
	case RegisterOperand:
		return ctx.state.GetRegister(op.Name)
	case LocalOperand:
		expr, ok := ctx.state.GetLocal(op.Name)
		if !ok {
			return nil, fmt.Errorf("undefined local: %s", op.Name)
		}
		return expr, nil
	case ImmediateOperand:
		return NewConstantExpr(op.Value, op.Width), nil
	case AddressOperand:
		base, err := ctx.readOperand(op.Base)
		if err != nil {
			return nil, err
		}
		return ctx.state.GetMemory(base, op.Width)
	case FlagOperand:
		return ctx.state.GetFlag(op.Name), nil
	default:
		return nil, fmt.Errorf("invalid operand type: %T", op)
	}
}

// writeOperand commits a value to an operand. Under a conditional guard
// the old value is preserved through an if-then-else merge so a guarded
// instruction that does not execute leaves state untouched.
func (ctx *execContext) writeOperand(op Operand, value Expr) error {
	switch op := op.(type) {
	case RegisterOperand:
		if ctx.guard != nil {
			old, err := ctx.state.GetRegister(op.Name)
			if err != nil {
				return err
			}
			value = NewIteExpr(ctx.guard, value, old)
		}
		return ctx.state.SetRegister(op.Name, value)
	case LocalOperand:
		ctx.state.SetLocal(op.Name, value)
		return nil
	case AddressOperand:
		base, err := ctx.readOperand(op.Base)
		if err != nil {
			return err
		}
		if ctx.guard != nil {
			old, err := ctx.state.GetMemory(base, ExprWidth(value))
			if err != nil {
				return err
			}
			value = NewIteExpr(ctx.guard, value, old)
		}
		return ctx.state.SetMemory(base, value)
	case FlagOperand:
		ctx.writeFlag(op.Name, value)
		return nil
	default:
		return fmt.Errorf("cannot write operand: %s", op)
	}
}

// writeFlag commits a flag value, merging through the guard if present.
func (ctx *execContext) writeFlag(name string, value Expr) {
	if ctx.guard != nil {
		value = NewIteExpr(ctx.guard, value, ctx.state.GetFlag(name))
	}
	ctx.state.SetFlag(name, value)
}

// matchWidths resizes b to a's width. Decoders are expected to emit
// consistent widths; immediates narrower than the destination are the
// common exception.
func matchWidths(a, b Expr) (Expr, Expr) {
	aw, bw := ExprWidth(a), ExprWidth(b)
	if aw == bw {
		return a, b
	}
	return a, NewCastExpr(b, aw, false)
}

func (ctx *execContext) binaryOp(dst, a, b Operand, op BinaryOp) (outcome, error) {
	av, err := ctx.readOperand(a)
	if err != nil {
		return outcome{}, err
	}
	bv, err := ctx.readOperand(b)
	if err != nil {
		return outcome{}, err
	}
	av, bv = matchWidths(av, bv)
	return outcome{}, ctx.writeOperand(dst, NewBinaryExpr(op, av, bv))
}

func (ctx *execContext) unaryOp(dst, src Operand, fn func(Expr) Expr) (outcome, error) {
	v, err := ctx.readOperand(src)
	if err != nil {
		return outcome{}, err
	}
	return outcome{}, ctx.writeOperand(dst, fn(v))
}

func (ctx *execContext) satOp(dst, a, b Operand, fn func(lhs, rhs Expr) Expr) (outcome, error) {
	av, err := ctx.readOperand(a)
	if err != nil {
		return outcome{}, err
	}
	bv, err := ctx.readOperand(b)
	if err != nil {
		return outcome{}, err
	}
	av, bv = matchWidths(av, bv)
	return outcome{}, ctx.writeOperand(dst, fn(av, bv))
}

func (ctx *execContext) execAdc(op Adc) (outcome, error) {
	av, err := ctx.readOperand(op.A)
	if err != nil {
		return outcome{}, err
	}
	bv, err := ctx.readOperand(op.B)
	if err != nil {
		return outcome{}, err
	}
	av, bv = matchWidths(av, bv)
	carry := NewCastExpr(ctx.state.GetFlag("C"), ExprWidth(av), false)
	sum := NewBinaryExpr(ADD, NewBinaryExpr(ADD, av, bv), carry)
	return outcome{}, ctx.writeOperand(op.Dst, sum)
}

func (ctx *execContext) execSbc(op Sbc) (outcome, error) {
	av, err := ctx.readOperand(op.A)
	if err != nil {
		return outcome{}, err
	}
	bv, err := ctx.readOperand(op.B)
	if err != nil {
		return outcome{}, err
	}
	av, bv = matchWidths(av, bv)
	// a - b - (1 - C) == a + ^b + C
	carry := NewCastExpr(ctx.state.GetFlag("C"), ExprWidth(av), false)
	sum := NewBinaryExpr(ADD, NewBinaryExpr(ADD, av, NewNotExpr(bv)), carry)
	return outcome{}, ctx.writeOperand(op.Dst, sum)
}

func (ctx *execContext) execRotate(op Sror) (outcome, error) {
	v, err := ctx.readOperand(op.Src)
	if err != nil {
		return outcome{}, err
	}
	n, err := ctx.readOperand(op.Shift)
	if err != nil {
		return outcome{}, err
	}
	v, n = matchWidths(v, n)
	return outcome{}, ctx.writeOperand(op.Dst, NewRotateRightExpr(v, n))
}

func (ctx *execContext) execCast(dst, src Operand, bits uint, signed bool) (outcome, error) {
	v, err := ctx.readOperand(src)
	if err != nil {
		return outcome{}, err
	}
	return outcome{}, ctx.writeOperand(dst, NewCastExpr(v, bits, signed))
}

func (ctx *execContext) execInsertBits(op InsertBits) (outcome, error) {
	dstv, err := ctx.readOperand(op.Dst)
	if err != nil {
		return outcome{}, err
	}
	srcv, err := ctx.readOperand(op.Src)
	if err != nil {
		return outcome{}, err
	}
	w := ExprWidth(dstv)
	assert(op.Offset+op.Width <= w, "insert out of bounds: %d+%d > %d", op.Offset, op.Width, w)

	field := NewCastExpr(srcv, op.Width, false)
	result := Expr(field)
	if op.Offset > 0 {
		result = NewConcatExpr(result, NewExtractExpr(dstv, 0, op.Offset))
	}
	if top := op.Offset + op.Width; top < w {
		result = NewConcatExpr(NewExtractExpr(dstv, top, w-top), result)
	}
	return outcome{}, ctx.writeOperand(op.Dst, result)
}

func (ctx *execContext) execSetNFlag(op SetNFlag) (outcome, error) {
	v, err := ctx.readOperand(op.Src)
	if err != nil {
		return outcome{}, err
	}
	w := ExprWidth(v)
	ctx.writeFlag("N", NewExtractExpr(v, w-1, 1))
	return outcome{}, nil
}

func (ctx *execContext) execSetZFlag(op SetZFlag) (outcome, error) {
	v, err := ctx.readOperand(op.Src)
	if err != nil {
		return outcome{}, err
	}
	ctx.writeFlag("Z", NewIsZeroExpr(v))
	return outcome{}, nil
}

// carryInputs normalizes the add/sub operand shape: subtraction is
// modeled as a + ^b with an implied carry-in of one.
func (ctx *execContext) carryInputs(aOp, bOp Operand, sub, useCarry bool) (a, b, carry Expr, err error) {
	a, err = ctx.readOperand(aOp)
	if err != nil {
		return nil, nil, nil, err
	}
	b, err = ctx.readOperand(bOp)
	if err != nil {
		return nil, nil, nil, err
	}
	a, b = matchWidths(a, b)

	if useCarry {
		carry = ctx.state.GetFlag("C")
	} else if sub {
		carry = NewBoolConstantExpr(true)
	} else {
		carry = NewBoolConstantExpr(false)
	}
	if sub {
		b = NewNotExpr(b)
	}
	return a, b, carry, nil
}

func (ctx *execContext) execSetCFlag(op SetCFlag) (outcome, error) {
	a, b, carry, err := ctx.carryInputs(op.A, op.B, op.Sub, op.UseCarry)
	if err != nil {
		return outcome{}, err
	}
	ctx.writeFlag("C", NewUAddCarryExpr(a, b, carry))
	return outcome{}, nil
}

func (ctx *execContext) execSetVFlag(op SetVFlag) (outcome, error) {
	a, b, carry, err := ctx.carryInputs(op.A, op.B, op.Sub, op.UseCarry)
	if err != nil {
		return outcome{}, err
	}
	ctx.writeFlag("V", NewSAddCarryOverflowExpr(a, b, carry))
	return outcome{}, nil
}

func (ctx *execContext) execSetCFlagShiftLeft(op SetCFlagShiftLeft) (outcome, error) {
	v, err := ctx.readOperand(op.Value)
	if err != nil {
		return outcome{}, err
	}
	n, err := ctx.readOperand(op.Shift)
	if err != nil {
		return outcome{}, err
	}
	v, n = matchWidths(v, n)
	w := ExprWidth(v)

	// Last bit shifted out is bit (w - n); a zero shift leaves C as is.
	bit := NewExtractExpr(NewBinaryExpr(LSHR, v, NewBinaryExpr(SUB, NewConstantExpr(uint64(w), w), n)), 0, 1)
	ctx.writeFlag("C", NewIteExpr(NewIsZeroExpr(n), ctx.state.GetFlag("C"), bit))
	return outcome{}, nil
}

func (ctx *execContext) execSetCFlagShiftRight(op SetCFlagShiftRight) (outcome, error) {
	v, err := ctx.readOperand(op.Value)
	if err != nil {
		return outcome{}, err
	}
	n, err := ctx.readOperand(op.Shift)
	if err != nil {
		return outcome{}, err
	}
	v, n = matchWidths(v, n)

	// Last bit shifted out is bit (n - 1); a zero shift leaves C as is.
	// Arithmetic shifts past the width keep producing the sign bit.
	shiftOp := LSHR
	if op.Arithmetic {
		shiftOp = ASHR
	}
	one := NewConstantExpr(1, ExprWidth(n))
	bit := NewExtractExpr(NewBinaryExpr(shiftOp, v, NewBinaryExpr(SUB, n, one)), 0, 1)
	ctx.writeFlag("C", NewIteExpr(NewIsZeroExpr(n), ctx.state.GetFlag("C"), bit))
	return outcome{}, nil
}

// readCondition resolves an operand to a boolean, combined with the
// active guard.
func (ctx *execContext) readCondition(op Operand) (Expr, error) {
	cond, err := ctx.readOperand(op)
	if err != nil {
		return nil, err
	}
	if ExprWidth(cond) != WidthBool {
		cond = NewBinaryExpr(NE, cond, NewConstantExpr(0, ExprWidth(cond)))
	}
	if ctx.guard != nil {
		cond = NewBinaryExpr(AND, ctx.guard, cond)
	}
	return cond, nil
}

// execConditionalJump resolves a branch. A condition that is not
// provably single-valued forks the path: one child per feasible
// outcome, each carrying the corresponding extra constraint, and the
// parent path ceases to exist.
func (ctx *execContext) execConditionalJump(op ConditionalJump) (outcome, error) {
	state := ctx.state
	e := ctx.exec

	cond, err := ctx.readCondition(op.Condition)
	if err != nil {
		return outcome{}, err
	}
	dest, err := ctx.readOperand(op.Destination)
	if err != nil {
		return outcome{}, err
	}

	if c, ok := cond.(*ConstantExpr); ok {
		if c.IsFalse() {
			return outcome{}, nil // never taken
		}
		return ctx.commitJump(dest, nil)
	}

	// Probe both branches for satisfiability.
	canBeTrue, err := e.isSatisfiable(state, cond)
	if err != nil {
		return outcome{}, err
	}
	notCond := NewIsZeroExpr(cond)
	canBeFalse, err := e.isSatisfiable(state, notCond)
	if err != nil {
		return outcome{}, err
	}

	switch {
	case canBeTrue && canBeFalse:
		// Fork: taken child jumps under cond, fall-through child
		// continues under !cond. The rest of this instruction's
		// operations are abandoned; children resume from their own
		// program counters.
		if err := ctx.forkTaken(dest, cond); err != nil {
			return outcome{}, err
		}
		fallthroughState := state.Clone()
		fallthroughState.SetPCConst(state.PC() + ctx.size)
		e.Selector.SavePath(NewPath(fallthroughState, notCond))
		return outcome{kind: outcomeForked}, nil
	case canBeTrue:
		state.AddConstraint(cond)
		return ctx.commitJump(dest, nil)
	case canBeFalse:
		state.AddConstraint(notCond)
		return outcome{}, nil
	default:
		return outcome{kind: outcomeUnsat, reason: "both branch outcomes unsatisfiable"}, nil
	}
}

// commitJump commits a taken branch on the current path. A symbolic
// destination must be provably single-valued; otherwise the path is
// split into one child per enumerated target.
func (ctx *execContext) commitJump(dest Expr, extra Expr) (outcome, error) {
	state := ctx.state

	if c, ok := dest.(*ConstantExpr); ok {
		state.SetPCConst(c.Value)
		return outcome{kind: outcomeJumped}, nil
	}

	targets, err := ctx.enumerateTargets(dest, extra)
	if err != nil {
		return outcome{}, err
	}
	switch len(targets) {
	case 0:
		return outcome{kind: outcomeUnsat, reason: "jump target unsatisfiable"}, nil
	case 1:
		state.AddConstraint(NewBinaryExpr(EQ, dest, NewConstantExpr(targets[0], ExprWidth(dest))))
		state.SetPCConst(targets[0])
		return outcome{kind: outcomeJumped}, nil
	default:
		for _, target := range targets {
			child := state.Clone()
			child.SetPCConst(target)
			constraint := NewBinaryExpr(EQ, dest, NewConstantExpr(target, ExprWidth(dest)))
			if extra != nil {
				ctx.exec.Selector.SavePath(NewPath(child, extra, constraint))
			} else {
				ctx.exec.Selector.SavePath(NewPath(child, constraint))
			}
		}
		return outcome{kind: outcomeForked}, nil
	}
}

// forkTaken pushes the branch-taken children for a forked conditional
// jump.
func (ctx *execContext) forkTaken(dest Expr, cond Expr) error {
	state := ctx.state
	e := ctx.exec

	if c, ok := dest.(*ConstantExpr); ok {
		child := state.Clone()
		child.SetPCConst(c.Value)
		e.Selector.SavePath(NewPath(child, cond))
		return nil
	}

	targets, err := ctx.enumerateTargets(dest, cond)
	if err != nil {
		return err
	}
	for _, target := range targets {
		child := state.Clone()
		child.SetPCConst(target)
		constraint := NewBinaryExpr(EQ, dest, NewConstantExpr(target, ExprWidth(dest)))
		e.Selector.SavePath(NewPath(child, cond, constraint))
	}
	return nil
}

// enumerateTargets lists the concrete values a symbolic jump
// destination can take under the current constraints (plus extra, when
// non-nil), bounded by MaxJumpTargets.
func (ctx *execContext) enumerateTargets(dest Expr, extra Expr) ([]uint64, error) {
	e := ctx.exec
	if e.Solver == nil {
		return nil, errors.New("symbolic jump target requires a solver")
	}
	max := e.MaxJumpTargets
	if max <= 0 {
		max = DefaultMaxJumpTargets
	}

	constraints := cloneConstraints(ctx.state.Constraints())
	if extra != nil {
		constraints = AddConstraint(constraints, extra)
	}

	var targets []uint64
	for len(targets) < max {
		c, err := SolveConstant(e.Solver, constraints, dest)
		if err != nil {
			return nil, err
		}
		if c != nil {
			// Provably single remaining value.
			targets = append(targets, c.Value)
			return targets, nil
		}

		// More than one value remains; pin one model and exclude it.
		c, err = solveModelValue(e.Solver, constraints, dest)
		if err != nil {
			return nil, err
		} else if c == nil {
			return targets, nil
		}
		targets = append(targets, c.Value)
		constraints = append(constraints, NewNotExpr(NewBinaryExpr(EQ, dest, c)))
	}
	e.Logger.Warnf("jump target enumeration capped at %d values for %s", max, dest)
	return targets, nil
}

// solveModelValue returns one model value for expr, or nil if the
// constraints are unsatisfiable.
func solveModelValue(solver Solver, constraints []Expr, expr Expr) (*ConstantExpr, error) {
	width := ExprWidth(expr)
	scratch := NewNamedArray(nextAnonArrayID(), "gale#enum", minBytes(width))
	sel := scratch.Select(NewConstantExpr64(0), width, true)
	bound := NewBinaryExpr(EQ, sel, expr)

	arrays := []*Array{scratch}
	sat, values, err := solver.Solve(append(cloneConstraints(constraints), bound), arrays)
	if err != nil {
		return nil, err
	} else if !sat {
		return nil, nil
	}
	return NewExprEvaluator(arrays, values).Evaluate(sel)
}

func (ctx *execContext) execConditionalExecution(op ConditionalExecution) (outcome, error) {
	conds := make([]Expr, len(op.Conditions))
	for i, operand := range op.Conditions {
		cond, err := ctx.readCondition(operand)
		if err != nil {
			return outcome{}, err
		}
		conds[i] = cond
	}
	ctx.state.SetConditionalBlock(conds)
	return outcome{}, nil
}

// execIte interprets a structured if-then-else. Unlike ConditionalJump
// it never forks: an underconstrained condition executes both arms
// under opposing guards so all writes merge through selections.
func (ctx *execContext) execIte(op Ite) (outcome, error) {
	cond, err := ctx.readCondition(op.Condition)
	if err != nil {
		return outcome{}, err
	}

	if c, ok := cond.(*ConstantExpr); ok {
		if c.IsTrue() {
			return ctx.run(op.Then)
		}
		return ctx.run(op.Else)
	}

	thenCtx := &execContext{exec: ctx.exec, state: ctx.state, guard: cond, size: ctx.size}
	out, err := thenCtx.run(op.Then)
	if err != nil {
		return outcome{}, err
	} else if out.kind != outcomeFallThrough {
		return out, nil
	}

	elseCtx := &execContext{exec: ctx.exec, state: ctx.state, guard: NewIsZeroExpr(cond), size: ctx.size}
	return elseCtx.run(op.Else)
}

// execForEach runs the nested operations once per item, exposing the
// item's value as local "item" and its position as local "index".
func (ctx *execContext) execForEach(op ForEach) (outcome, error) {
	for i, item := range op.Items {
		value, err := ctx.readOperand(item)
		if err != nil {
			return outcome{}, err
		}
		ctx.state.SetLocal("item", value)
		ctx.state.SetLocal("index", NewConstantExpr(uint64(i), ctx.state.Project.WordSize))

		out, err := ctx.run(op.Ops)
		if err != nil {
			return outcome{}, err
		} else if out.kind != outcomeFallThrough {
			return out, nil
		}
	}
	return outcome{}, nil
}

func (ctx *execContext) execFPBinary(op FPBinary) (outcome, error) {
	av, err := ctx.readOperand(op.A)
	if err != nil {
		return outcome{}, err
	}
	bv, err := ctx.readOperand(op.B)
	if err != nil {
		return outcome{}, err
	}
	return outcome{}, ctx.writeOperand(op.Dst, NewFPBinaryExpr(op.Op, op.Rounding, av, bv))
}

func (ctx *execContext) execFPFMA(op FPFMA) (outcome, error) {
	av, err := ctx.readOperand(op.A)
	if err != nil {
		return outcome{}, err
	}
	bv, err := ctx.readOperand(op.B)
	if err != nil {
		return outcome{}, err
	}
	cv, err := ctx.readOperand(op.C)
	if err != nil {
		return outcome{}, err
	}
	return outcome{}, ctx.writeOperand(op.Dst, NewFPFMAExpr(op.Rounding, av, bv, cv))
}

func (ctx *execContext) execFPCompare(op FPCompare) (outcome, error) {
	av, err := ctx.readOperand(op.A)
	if err != nil {
		return outcome{}, err
	}
	bv, err := ctx.readOperand(op.B)
	if err != nil {
		return outcome{}, err
	}
	return outcome{}, ctx.writeOperand(op.Dst, NewFPCompareExpr(op.Op, av, bv))
}
