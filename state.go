package gale

import (
	"fmt"

	"github.com/benbjohnson/immutable"
)

// State errors.
type MemoryError struct {
	Addr   uint64
	Op     string // "read" or "write"
	Reason string
}

// Error returns the string representation of the error.
func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory %s at %#x: %s", e.Op, e.Addr, e.Reason)
}

// NonDeterministicPCError is returned when the program counter is
// required to be concrete but is not provably a single value.
type NonDeterministicPCError struct {
	PC Expr
}

// Error returns the string representation of the error.
func (e *NonDeterministicPCError) Error() string {
	return fmt.Sprintf("non-deterministic program counter: %s", e.PC)
}

// UserState is an opaque analysis payload carried by each machine state
// and deep-cloned at every fork.
type UserState interface {
	Clone() UserState
}

// uint64Comparer orders symbolic RAM addresses.
type uint64Comparer struct{}

// Compare returns an integer comparing two uint64 keys.
func (c *uint64Comparer) Compare(a, b interface{}) int {
	i, j := a.(uint64), b.(uint64)
	if i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}

// bitCountKind distinguishes the memoized bit-count helpers.
type bitCountKind int

const (
	bitCountOnes bitCountKind = iota
	bitCountLeadingZeroes
)

type bitCountKey struct {
	kind bitCountKind
	src  Expr
}

// GAState is the symbolic machine state for one execution path:
// registers, flags, memory and program counter backed by symbolic
// expressions, plus the path's constraint stack, cycle counter and user
// payload. Program memory and hooks are shared across paths; everything
// mutable is cloned at fork.
type GAState struct {
	Project *Project
	Hooks   *HookContainer
	Solver  Solver

	registers map[string]Expr
	flags     map[string]Expr
	locals    map[string]Expr

	// Symbolic RAM overlay, one byte expression per address. The
	// immutable map makes fork clones O(1).
	memory *immutable.SortedMap

	pc     uint64
	pcExpr Expr

	constraints []Expr
	frames      []int

	// Conditions guarding the next instructions of a conditional block,
	// consumed front to back.
	condExec []Expr

	Cycles int64
	User   UserState

	symbolic  []*Array // named free variables, in creation order
	bitCounts map[bitCountKey]Expr
}

// NewGAState returns a state positioned at the project entry point.
func NewGAState(project *Project, hooks *HookContainer, solver Solver, user UserState) *GAState {
	return &GAState{
		Project:   project,
		Hooks:     hooks,
		Solver:    solver,
		registers: make(map[string]Expr),
		flags:     make(map[string]Expr),
		locals:    make(map[string]Expr),
		memory:    immutable.NewSortedMap(&uint64Comparer{}),
		pc:        project.Entry,
		pcExpr:    NewConstantExpr(project.Entry, project.WordSize),
		bitCounts: make(map[bitCountKey]Expr),
		User:      user,
	}
}

// Clone returns a fork of the state. Register, flag and local maps are
// copied; program memory, hooks and the solver are shared; the user
// payload is deep-cloned.
func (s *GAState) Clone() *GAState {
	other := &GAState{
		Project:   s.Project,
		Hooks:     s.Hooks,
		Solver:    s.Solver,
		registers: make(map[string]Expr, len(s.registers)),
		flags:     make(map[string]Expr, len(s.flags)),
		locals:    make(map[string]Expr, len(s.locals)),
		memory:    s.memory,
		pc:        s.pc,
		pcExpr:    s.pcExpr,
		Cycles:    s.Cycles,
		bitCounts: make(map[bitCountKey]Expr, len(s.bitCounts)),
	}
	for k, v := range s.registers {
		other.registers[k] = v
	}
	for k, v := range s.flags {
		other.flags[k] = v
	}
	for k, v := range s.locals {
		other.locals[k] = v
	}
	for k, v := range s.bitCounts {
		other.bitCounts[k] = v
	}
	other.constraints = make([]Expr, len(s.constraints))
	copy(other.constraints, s.constraints)
	other.frames = make([]int, len(s.frames))
	copy(other.frames, s.frames)
	other.condExec = make([]Expr, len(s.condExec))
	copy(other.condExec, s.condExec)
	other.symbolic = make([]*Array, len(s.symbolic))
	copy(other.symbolic, s.symbolic)
	if s.User != nil {
		other.User = s.User.Clone()
	}
	return other
}

// FromU64 returns a literal expression of the given width.
func (s *GAState) FromU64(value uint64, bits uint) Expr {
	return NewConstantExpr(value, bits)
}

// FromBool returns a literal boolean expression.
func (s *GAState) FromBool(value bool) Expr {
	return NewBoolConstantExpr(value)
}

// Unconstrained returns a fresh free variable of the given width. The
// variable is named so counter-examples can report it, and recorded so
// model extraction can find it even when unconstrained.
func (s *GAState) Unconstrained(name string, bits uint) Expr {
	array := NewNamedArray(nextAnonArrayID(), name, minBytes(bits))
	s.symbolic = append(s.symbolic, array)
	return array.Select(NewConstantExpr64(0), bits, s.Project.IsLittleEndian)
}

// SymbolicArrays returns the named free variables created on this path,
// in creation order.
func (s *GAState) SymbolicArrays() []*Array {
	return s.symbolic
}

// GetRegister returns the register's expression, consulting read hooks
// first. A never-written register materializes as a named unconstrained
// value whose identity is stable until the next write.
func (s *GAState) GetRegister(name string) (Expr, error) {
	if hook, ok := s.Hooks.RegisterReadHook(name); ok {
		return hook(s)
	}
	if name == s.Project.Arch.PCName() {
		return s.GetPC(), nil
	}
	return s.ReadRegisterRaw(name), nil
}

// ReadRegisterRaw returns the register's expression without consulting
// hooks. Used by hook implementations to perform the underlying access.
func (s *GAState) ReadRegisterRaw(name string) Expr {
	if expr, ok := s.registers[name]; ok {
		return expr
	}
	expr := s.Unconstrained(name, s.Project.WordSize)
	s.registers[name] = expr
	return expr
}

// SetRegister assigns the register's expression, consulting write hooks first.
func (s *GAState) SetRegister(name string, value Expr) error {
	if hook, ok := s.Hooks.RegisterWriteHook(name); ok {
		return hook(s, value)
	}
	if name == s.Project.Arch.PCName() {
		return s.SetPC(value)
	}
	s.WriteRegisterRaw(name, value)
	return nil
}

// WriteRegisterRaw assigns the register's expression without consulting hooks.
func (s *GAState) WriteRegisterRaw(name string, value Expr) {
	s.registers[name] = value
}

// GetFlag returns the flag's expression, lazily materializing a named
// unconstrained boolean on first read.
func (s *GAState) GetFlag(name string) Expr {
	if expr, ok := s.flags[name]; ok {
		return expr
	}
	expr := s.Unconstrained("flag_"+name, WidthBool)
	s.flags[name] = expr
	return expr
}

// SetFlag assigns the flag's expression.
func (s *GAState) SetFlag(name string, value Expr) {
	assert(ExprWidth(value) == WidthBool, "flag %q: width %d", name, ExprWidth(value))
	s.flags[name] = value
}

// GetPC returns the program counter expression.
func (s *GAState) GetPC() Expr {
	return s.pcExpr
}

// PC returns the last concrete program counter value, used for decode lookup.
func (s *GAState) PC() uint64 {
	return s.pc
}

// SetPC assigns the program counter. The value must be concrete, or
// provably single-valued under the current constraints; anything else
// is a NonDeterministicPCError. Branching must be resolved into
// concrete alternatives before committing.
func (s *GAState) SetPC(value Expr) error {
	c, ok := value.(*ConstantExpr)
	if !ok {
		resolved, err := s.ResolveConstant(value)
		if err != nil {
			return &NonDeterministicPCError{PC: value}
		}
		c = resolved
	}
	s.setConcretePC(c.Value)
	return nil
}

// SetPCConst assigns a concrete program counter value.
func (s *GAState) SetPCConst(addr uint64) {
	s.setConcretePC(addr)
}

func (s *GAState) setConcretePC(addr uint64) {
	s.pc = addr
	s.pcExpr = NewConstantExpr(addr, s.Project.WordSize)
}

// ResolveConstant returns the single value expr must take under the
// current constraints. Folds syntactically when possible, otherwise
// asks the solver for a uniqueness proof. Returns an error if the
// expression can take more than one value.
func (s *GAState) ResolveConstant(expr Expr) (*ConstantExpr, error) {
	if c, ok := expr.(*ConstantExpr); ok {
		return c, nil
	}
	if s.Solver == nil {
		return nil, fmt.Errorf("cannot resolve %s: no solver", expr)
	}
	c, err := SolveConstant(s.Solver, s.constraints, expr)
	if err != nil {
		return nil, err
	} else if c == nil {
		return nil, fmt.Errorf("expression is not single-valued: %s", expr)
	}
	return c, nil
}

// GetMemory reads width bits from the given address expression. The
// address must resolve to a single concrete value. Reads inside the
// loaded binary image are served from the image unless overlaid by a
// prior write; all other reads go to symbolic RAM, materializing named
// unconstrained bytes on first access.
func (s *GAState) GetMemory(addr Expr, width uint) (Expr, error) {
	c, err := s.ResolveConstant(addr)
	if err != nil {
		return nil, &MemoryError{Op: "read", Reason: fmt.Sprintf("address not single-valued: %s", addr)}
	}
	if hook, ok := s.Hooks.MemoryReadHook(c.Value); ok {
		return hook(s, c.Value, width)
	}
	return s.ReadMemoryRaw(c.Value, width)
}

// ReadMemoryRaw reads width bits at a concrete address without
// consulting hooks. Used by hook implementations to perform the
// underlying access.
func (s *GAState) ReadMemoryRaw(addr uint64, width uint) (Expr, error) {
	n := minBytes(width)
	bytes := make([]Expr, n)
	for i := uint(0); i < n; i++ {
		b, err := s.readByte(addr + uint64(i))
		if err != nil {
			return nil, err
		}
		bytes[i] = b
	}
	return s.composeBytes(bytes, width), nil
}

// readByte returns the byte expression at a concrete address.
func (s *GAState) readByte(addr uint64) (Expr, error) {
	if v, ok := s.memory.Get(addr); ok {
		return v.(Expr), nil
	}

	var buf [1]byte
	if s.Project.ReadAt(addr, buf[:]) {
		return NewConstantExpr8(uint64(buf[0])), nil
	}

	// Unmapped memory materializes lazily as a named free byte, stored
	// so re-reads observe the identical expression.
	b := s.Unconstrained(fmt.Sprintf("mem_%#x", addr), Width8)
	s.memory = s.memory.Set(addr, b)
	return b, nil
}

// composeBytes joins byte expressions into one value honoring the
// project's endianness.
func (s *GAState) composeBytes(bytes []Expr, width uint) Expr {
	if width == WidthBool {
		return NewExtractExpr(bytes[0], 0, WidthBool)
	}
	var result Expr
	for i, b := range bytes {
		if i == 0 {
			result = b
			continue
		}
		if s.Project.IsLittleEndian {
			result = NewConcatExpr(b, result)
		} else {
			result = NewConcatExpr(result, b)
		}
	}
	return result
}

// SetMemory writes a value at the given address expression. Writes to
// addresses that are constant and fall inside a read-only segment are a
// hard error; the engine does not support self-modifying code.
func (s *GAState) SetMemory(addr Expr, value Expr) error {
	c, err := s.ResolveConstant(addr)
	if err != nil {
		return &MemoryError{Op: "write", Reason: fmt.Sprintf("address not single-valued: %s", addr)}
	}
	if hook, ok := s.Hooks.MemoryWriteHook(c.Value); ok {
		return hook(s, c.Value, value)
	}
	return s.WriteMemoryRaw(c.Value, value)
}

// WriteMemoryRaw writes a value at a concrete address without
// consulting hooks. Used by hook implementations to perform the
// underlying access.
func (s *GAState) WriteMemoryRaw(addr uint64, value Expr) error {
	if readOnly, ok := s.Project.InStaticMemory(addr); ok && readOnly {
		return &MemoryError{Addr: addr, Op: "write", Reason: "write to read-only program memory"}
	}

	width := ExprWidth(value)
	if width == WidthBool {
		value = NewCastExpr(value, Width8, false)
		width = Width8
	}
	n := minBytes(width)
	for i := uint(0); i < n; i++ {
		offset := i * 8
		if !s.Project.IsLittleEndian {
			offset = (n - 1 - i) * 8
		}
		s.memory = s.memory.Set(addr+uint64(i), NewExtractExpr(value, offset, Width8))
	}
	return nil
}

// Locals

// GetLocal returns the instruction-scoped temporary with the given name.
func (s *GAState) GetLocal(name string) (Expr, bool) {
	expr, ok := s.locals[name]
	return expr, ok
}

// SetLocal assigns an instruction-scoped temporary.
func (s *GAState) SetLocal(name string, value Expr) {
	s.locals[name] = value
}

// ClearLocals discards all temporaries. Run after each instruction.
func (s *GAState) ClearLocals() {
	if len(s.locals) > 0 {
		s.locals = make(map[string]Expr)
	}
}

// Constraints

// Constraints returns the path's accumulated constraints.
func (s *GAState) Constraints() []Expr {
	return s.constraints
}

// AddConstraint asserts an expression on the current path.
func (s *GAState) AddConstraint(expr Expr) {
	assert(ExprWidth(expr) == WidthBool, "constraint must be boolean")
	s.constraints = AddConstraint(s.constraints, expr)
}

// PushConstraintFrame opens an assumption scope. Every push must be
// matched by exactly one pop; the selector couples this to path
// save/resume order.
func (s *GAState) PushConstraintFrame() {
	s.frames = append(s.frames, len(s.constraints))
}

// PopConstraintFrame closes the innermost assumption scope, retracting
// the constraints asserted since the matching push.
func (s *GAState) PopConstraintFrame() {
	assert(len(s.frames) > 0, "constraint frame pop without push")
	mark := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	s.constraints = s.constraints[:mark]
}

// ConstraintFrames returns the number of open assumption scopes.
func (s *GAState) ConstraintFrames() int {
	return len(s.frames)
}

// Conditional execution

// SetConditionalBlock installs the per-instruction guard conditions of
// a conditional block.
func (s *GAState) SetConditionalBlock(conds []Expr) {
	s.condExec = append([]Expr(nil), conds...)
}

// InConditionalBlock returns true while guard conditions remain.
func (s *GAState) InConditionalBlock() bool {
	return len(s.condExec) > 0
}

// NextCondition consumes and returns the guard for the next instruction.
func (s *GAState) NextCondition() (Expr, bool) {
	if len(s.condExec) == 0 {
		return nil, false
	}
	cond := s.condExec[0]
	s.condExec = s.condExec[1:]
	return cond, true
}

// Bit counting

// PopCount returns the population count of expr, memoized per operand
// so repeated flag computations reuse one unrolled term.
func (s *GAState) PopCount(expr Expr) Expr {
	key := bitCountKey{kind: bitCountOnes, src: expr}
	if cached, ok := s.bitCounts[key]; ok {
		return cached
	}
	result := NewPopCountExpr(expr)
	s.bitCounts[key] = result
	return result
}

// LeadingZeroes returns the leading-zero count of expr, memoized per operand.
func (s *GAState) LeadingZeroes(expr Expr) Expr {
	key := bitCountKey{kind: bitCountLeadingZeroes, src: expr}
	if cached, ok := s.bitCounts[key]; ok {
		return cached
	}
	result := NewLeadingZerosExpr(expr)
	s.bitCounts[key] = result
	return result
}

// String returns a human-readable rendering of the state's registers,
// flags and constraints.
func (s *GAState) String() string {
	return fmt.Sprintf("pc=%#x cycles=%d registers=%d flags=%d constraints=%d",
		s.pc, s.Cycles, len(s.registers), len(s.flags), len(s.constraints))
}
