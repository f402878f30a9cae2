package gale

import (
	"fmt"
	"strings"
)

// Operand identifies where an operation reads or writes a value.
// Operands are pure data; resolution against machine state happens in
// the executor.
type Operand interface {
	operand()
	String() string
}

func (RegisterOperand) operand()  {}
func (LocalOperand) operand()     {}
func (ImmediateOperand) operand() {}
func (AddressOperand) operand()   {}
func (FlagOperand) operand()      {}

// RegisterOperand names an architectural register.
type RegisterOperand struct {
	Name string
}

// Reg returns a register operand with the given name.
func Reg(name string) RegisterOperand {
	return RegisterOperand{Name: name}
}

// String returns the string representation of the operand.
func (o RegisterOperand) String() string { return o.Name }

// LocalOperand names an instruction-scoped temporary. Locals are created
// by the first write and discarded when the instruction completes.
type LocalOperand struct {
	Name string
}

// Local returns a local operand with the given name.
func Local(name string) LocalOperand {
	return LocalOperand{Name: name}
}

// String returns the string representation of the operand.
func (o LocalOperand) String() string { return "%" + o.Name }

// ImmediateOperand is a constant value of a fixed width.
type ImmediateOperand struct {
	Value uint64
	Width uint
}

// Imm returns an immediate operand.
func Imm(value uint64, width uint) ImmediateOperand {
	return ImmediateOperand{Value: value, Width: width}
}

// String returns the string representation of the operand.
func (o ImmediateOperand) String() string { return fmt.Sprintf("#%d:%d", o.Value, o.Width) }

// AddressOperand dereferences memory at the address held by Base.
// Reading the operand loads Width bits; writing stores Width bits.
type AddressOperand struct {
	Base  Operand
	Width uint
}

// Addr returns a memory operand of the given width.
func Addr(base Operand, width uint) AddressOperand {
	return AddressOperand{Base: base, Width: width}
}

// String returns the string representation of the operand.
func (o AddressOperand) String() string { return fmt.Sprintf("[%s]:%d", o.Base, o.Width) }

// FlagOperand names a one-bit status flag.
type FlagOperand struct {
	Name string
}

// Flag returns a flag operand with the given name.
func Flag(name string) FlagOperand {
	return FlagOperand{Name: name}
}

// String returns the string representation of the operand.
func (o FlagOperand) String() string { return "$" + o.Name }

// Operation is one architecture-neutral step of a decoded instruction.
// Operations are pure data; all solver interaction happens when the
// executor interprets them against a machine state.
type Operation interface {
	operation()
	String() string
}

func (Nop) operation()                 {}
func (Move) operation()                {}
func (Add) operation()                 {}
func (Adc) operation()                 {}
func (Sub) operation()                 {}
func (Sbc) operation()                 {}
func (Mul) operation()                 {}
func (UDiv) operation()                {}
func (SDiv) operation()                {}
func (URem) operation()                {}
func (SRem) operation()                {}
func (And) operation()                 {}
func (Or) operation()                  {}
func (Xor) operation()                 {}
func (Not) operation()                 {}
func (Sl) operation()                  {}
func (Srl) operation()                 {}
func (Sra) operation()                 {}
func (Sror) operation()                {}
func (ZeroExtend) operation()          {}
func (SignExtend) operation()          {}
func (Resize) operation()              {}
func (ExtractBits) operation()         {}
func (InsertBits) operation()          {}
func (UAddSat) operation()             {}
func (SAddSat) operation()             {}
func (USubSat) operation()             {}
func (SSubSat) operation()             {}
func (CountOnes) operation()           {}
func (CountLeadingZeroes) operation()  {}
func (SetNFlag) operation()            {}
func (SetZFlag) operation()            {}
func (SetCFlag) operation()            {}
func (SetCFlagShiftLeft) operation()   {}
func (SetCFlagShiftRight) operation()  {}
func (SetVFlag) operation()            {}
func (ConditionalJump) operation()      {}
func (ConditionalExecution) operation() {}
func (Ite) operation()                  {}
func (ForEach) operation()             {}
func (Abort) operation()               {}
func (FPBinary) operation()            {}
func (FPUnary) operation()             {}
func (FPFMA) operation()               {}
func (FPCompare) operation()           {}
func (FPClassify) operation()          {}
func (FPConvert) operation()           {}

// Nop performs no state change.
type Nop struct{}

func (Nop) String() string { return "nop" }

// Move copies Src to Dst.
type Move struct {
	Dst Operand
	Src Operand
}

func (op Move) String() string { return fmt.Sprintf("move %s, %s", op.Dst, op.Src) }

// Add stores A + B into Dst.
type Add struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op Add) String() string { return fmt.Sprintf("add %s, %s, %s", op.Dst, op.A, op.B) }

// Adc stores A + B + carry-flag into Dst.
type Adc struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op Adc) String() string { return fmt.Sprintf("adc %s, %s, %s", op.Dst, op.A, op.B) }

// Sub stores A - B into Dst.
type Sub struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op Sub) String() string { return fmt.Sprintf("sub %s, %s, %s", op.Dst, op.A, op.B) }

// Sbc stores A - B - (1 - carry-flag) into Dst.
type Sbc struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op Sbc) String() string { return fmt.Sprintf("sbc %s, %s, %s", op.Dst, op.A, op.B) }

// Mul stores A * B into Dst.
type Mul struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op Mul) String() string { return fmt.Sprintf("mul %s, %s, %s", op.Dst, op.A, op.B) }

// UDiv stores the unsigned quotient A / B into Dst.
type UDiv struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op UDiv) String() string { return fmt.Sprintf("udiv %s, %s, %s", op.Dst, op.A, op.B) }

// SDiv stores the signed quotient A / B into Dst.
type SDiv struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op SDiv) String() string { return fmt.Sprintf("sdiv %s, %s, %s", op.Dst, op.A, op.B) }

// URem stores the unsigned remainder A % B into Dst.
type URem struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op URem) String() string { return fmt.Sprintf("urem %s, %s, %s", op.Dst, op.A, op.B) }

// SRem stores the signed remainder A % B into Dst.
type SRem struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op SRem) String() string { return fmt.Sprintf("srem %s, %s, %s", op.Dst, op.A, op.B) }

// And stores A & B into Dst.
type And struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op And) String() string { return fmt.Sprintf("and %s, %s, %s", op.Dst, op.A, op.B) }

// Or stores A | B into Dst.
type Or struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op Or) String() string { return fmt.Sprintf("or %s, %s, %s", op.Dst, op.A, op.B) }

// Xor stores A ^ B into Dst.
type Xor struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op Xor) String() string { return fmt.Sprintf("xor %s, %s, %s", op.Dst, op.A, op.B) }

// Not stores the bitwise complement of Src into Dst.
type Not struct {
	Dst Operand
	Src Operand
}

func (op Not) String() string { return fmt.Sprintf("not %s, %s", op.Dst, op.Src) }

// Sl stores Src shifted left by Shift bits into Dst.
type Sl struct {
	Dst   Operand
	Src   Operand
	Shift Operand
}

func (op Sl) String() string { return fmt.Sprintf("sl %s, %s, %s", op.Dst, op.Src, op.Shift) }

// Srl stores Src logically shifted right by Shift bits into Dst.
type Srl struct {
	Dst   Operand
	Src   Operand
	Shift Operand
}

func (op Srl) String() string { return fmt.Sprintf("srl %s, %s, %s", op.Dst, op.Src, op.Shift) }

// Sra stores Src arithmetically shifted right by Shift bits into Dst.
type Sra struct {
	Dst   Operand
	Src   Operand
	Shift Operand
}

func (op Sra) String() string { return fmt.Sprintf("sra %s, %s, %s", op.Dst, op.Src, op.Shift) }

// Sror stores Src rotated right by Shift bits into Dst.
type Sror struct {
	Dst   Operand
	Src   Operand
	Shift Operand
}

func (op Sror) String() string { return fmt.Sprintf("sror %s, %s, %s", op.Dst, op.Src, op.Shift) }

// ZeroExtend stores Src zero-extended to Bits into Dst.
type ZeroExtend struct {
	Dst  Operand
	Src  Operand
	Bits uint
}

func (op ZeroExtend) String() string { return fmt.Sprintf("zext %s, %s, %d", op.Dst, op.Src, op.Bits) }

// SignExtend stores Src sign-extended to Bits into Dst.
type SignExtend struct {
	Dst  Operand
	Src  Operand
	Bits uint
}

func (op SignExtend) String() string { return fmt.Sprintf("sext %s, %s, %d", op.Dst, op.Src, op.Bits) }

// Resize stores Src resized to Bits into Dst, truncating or
// zero-extending as needed.
type Resize struct {
	Dst  Operand
	Src  Operand
	Bits uint
}

func (op Resize) String() string { return fmt.Sprintf("resize %s, %s, %d", op.Dst, op.Src, op.Bits) }

// ExtractBits stores Width bits of Src starting at Offset into Dst.
type ExtractBits struct {
	Dst    Operand
	Src    Operand
	Offset uint
	Width  uint
}

func (op ExtractBits) String() string {
	return fmt.Sprintf("extract %s, %s, %d, %d", op.Dst, op.Src, op.Offset, op.Width)
}

// InsertBits stores Dst with Width bits replaced by Src at Offset.
type InsertBits struct {
	Dst    Operand
	Src    Operand
	Offset uint
	Width  uint
}

func (op InsertBits) String() string {
	return fmt.Sprintf("insert %s, %s, %d, %d", op.Dst, op.Src, op.Offset, op.Width)
}

// UAddSat stores A + B saturated to the unsigned maximum into Dst.
type UAddSat struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op UAddSat) String() string { return fmt.Sprintf("uadds %s, %s, %s", op.Dst, op.A, op.B) }

// SAddSat stores A + B saturated to the signed min/max into Dst.
type SAddSat struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op SAddSat) String() string { return fmt.Sprintf("sadds %s, %s, %s", op.Dst, op.A, op.B) }

// USubSat stores A - B saturated to zero into Dst.
type USubSat struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op USubSat) String() string { return fmt.Sprintf("usubs %s, %s, %s", op.Dst, op.A, op.B) }

// SSubSat stores A - B saturated to the signed min/max into Dst.
type SSubSat struct {
	Dst Operand
	A   Operand
	B   Operand
}

func (op SSubSat) String() string { return fmt.Sprintf("ssubs %s, %s, %s", op.Dst, op.A, op.B) }

// CountOnes stores the population count of Src into Dst.
type CountOnes struct {
	Dst Operand
	Src Operand
}

func (op CountOnes) String() string { return fmt.Sprintf("popcnt %s, %s", op.Dst, op.Src) }

// CountLeadingZeroes stores the count of leading zero bits of Src into Dst.
type CountLeadingZeroes struct {
	Dst Operand
	Src Operand
}

func (op CountLeadingZeroes) String() string { return fmt.Sprintf("clz %s, %s", op.Dst, op.Src) }

// SetNFlag sets the negative flag from the sign bit of Src.
type SetNFlag struct {
	Src Operand
}

func (op SetNFlag) String() string { return fmt.Sprintf("set-n %s", op.Src) }

// SetZFlag sets the zero flag from the comparison of Src to zero.
type SetZFlag struct {
	Src Operand
}

func (op SetZFlag) String() string { return fmt.Sprintf("set-z %s", op.Src) }

// SetCFlag sets the carry flag from A + B (Sub false) or A - B (Sub
// true), optionally including the current carry flag (UseCarry).
type SetCFlag struct {
	A        Operand
	B        Operand
	Sub      bool
	UseCarry bool
}

func (op SetCFlag) String() string {
	return fmt.Sprintf("set-c %s, %s, sub=%v, carry=%v", op.A, op.B, op.Sub, op.UseCarry)
}

// SetCFlagShiftLeft sets the carry flag to the last bit shifted out of
// Value by a left shift of Shift bits.
type SetCFlagShiftLeft struct {
	Value Operand
	Shift Operand
}

func (op SetCFlagShiftLeft) String() string {
	return fmt.Sprintf("set-c-sl %s, %s", op.Value, op.Shift)
}

// SetCFlagShiftRight sets the carry flag to the last bit shifted out of
// Value by a right shift of Shift bits.
type SetCFlagShiftRight struct {
	Value      Operand
	Shift      Operand
	Arithmetic bool
}

func (op SetCFlagShiftRight) String() string {
	return fmt.Sprintf("set-c-sr %s, %s, arith=%v", op.Value, op.Shift, op.Arithmetic)
}

// SetVFlag sets the overflow flag from A + B (Sub false) or A - B (Sub
// true), optionally including the current carry flag (UseCarry).
type SetVFlag struct {
	A        Operand
	B        Operand
	Sub      bool
	UseCarry bool
}

func (op SetVFlag) String() string {
	return fmt.Sprintf("set-v %s, %s, sub=%v, carry=%v", op.A, op.B, op.Sub, op.UseCarry)
}

// ConditionalJump transfers control to Destination when Condition holds.
// An underconstrained condition forks the path; a constant-true
// condition with a constant destination is an unconditional jump.
type ConditionalJump struct {
	Condition   Operand
	Destination Operand
}

func (op ConditionalJump) String() string {
	return fmt.Sprintf("jump %s ? %s", op.Condition, op.Destination)
}

// ConditionalExecution guards the remaining instructions of a
// conditional block, one condition per following instruction.
type ConditionalExecution struct {
	Conditions []Operand
}

func (op ConditionalExecution) String() string {
	a := make([]string, len(op.Conditions))
	for i, cond := range op.Conditions {
		a[i] = cond.String()
	}
	return "cond-exec " + strings.Join(a, ", ")
}

// Ite executes Then when Condition holds and Else otherwise. Unlike
// ConditionalJump it never forks; an underconstrained condition merges
// both arms through if-then-else expressions.
type Ite struct {
	Condition Operand
	Then      []Operation
	Else      []Operation
}

func (op Ite) String() string {
	return fmt.Sprintf("ite %s then(%d) else(%d)", op.Condition, len(op.Then), len(op.Else))
}

// ForEach executes Ops once per item. Within Ops the local "item" holds
// the current item's value and the local "index" its position.
type ForEach struct {
	Items []Operand
	Ops   []Operation
}

func (op ForEach) String() string {
	return fmt.Sprintf("foreach items(%d) ops(%d)", len(op.Items), len(op.Ops))
}

// Abort terminates the current path with a failure carrying the message.
type Abort struct {
	Message string
}

func (op Abort) String() string { return fmt.Sprintf("abort %q", op.Message) }

// FPBinary stores the floating point combination of A and B into Dst.
type FPBinary struct {
	Op       FPBinaryOp
	Rounding RoundingMode
	Dst      Operand
	A        Operand
	B        Operand
}

func (op FPBinary) String() string {
	return fmt.Sprintf("%s.%s %s, %s, %s", op.Op, op.Rounding, op.Dst, op.A, op.B)
}

// FPUnary stores the floating point transformation of Src into Dst.
type FPUnary struct {
	Op       FPUnaryOp
	Rounding RoundingMode
	Dst      Operand
	Src      Operand
}

func (op FPUnary) String() string {
	return fmt.Sprintf("%s.%s %s, %s", op.Op, op.Rounding, op.Dst, op.Src)
}

// FPFMA stores (A * B) + C with a single rounding into Dst.
type FPFMA struct {
	Rounding RoundingMode
	Dst      Operand
	A        Operand
	B        Operand
	C        Operand
}

func (op FPFMA) String() string {
	return fmt.Sprintf("ffma.%s %s, %s, %s, %s", op.Rounding, op.Dst, op.A, op.B, op.C)
}

// FPCompare stores the boolean floating point comparison of A and B into Dst.
type FPCompare struct {
	Op  FPCompareOp
	Dst Operand
	A   Operand
	B   Operand
}

func (op FPCompare) String() string {
	return fmt.Sprintf("%s %s, %s, %s", op.Op, op.Dst, op.A, op.B)
}

// FPClassify stores the boolean classification of Src into Dst.
type FPClassify struct {
	Op  FPClassifyOp
	Dst Operand
	Src Operand
}

func (op FPClassify) String() string {
	return fmt.Sprintf("%s %s, %s", op.Op, op.Dst, op.Src)
}

// FPConvert stores the conversion of Src into Dst at the given width.
type FPConvert struct {
	Kind     FPConvertKind
	Rounding RoundingMode
	Dst      Operand
	Src      Operand
	Bits     uint
}

func (op FPConvert) String() string {
	return fmt.Sprintf("%s.%s %s, %s, %d", op.Kind, op.Rounding, op.Dst, op.Src, op.Bits)
}

// CycleCount is an instruction's worst-case cycle cost: either a fixed
// value or a function of the state at execution time.
type CycleCount struct {
	fixed int
	fn    func(*GAState) int
}

// FixedCycleCount returns a cycle count policy with a constant cost.
func FixedCycleCount(n int) CycleCount {
	return CycleCount{fixed: n}
}

// DynamicCycleCount returns a cycle count policy computed against the
// state at execution time.
func DynamicCycleCount(fn func(*GAState) int) CycleCount {
	return CycleCount{fn: fn}
}

// Count returns the cycle cost for the given state.
func (c CycleCount) Count(state *GAState) int {
	if c.fn != nil {
		return c.fn(state)
	}
	return c.fixed
}

// Instruction is the result of decoding machine-code bytes: the exact
// byte length consumed, the IR sequence to interpret, the cycle cost
// policy and whether the instruction accesses memory. Immutable after
// decode.
type Instruction struct {
	Size         uint64
	Operations   []Operation
	CycleCount   CycleCount
	MemoryAccess bool
}

// String returns a multi-line rendering of the instruction's operations.
func (instr *Instruction) String() string {
	a := make([]string, len(instr.Operations))
	for i, op := range instr.Operations {
		a[i] = op.String()
	}
	return strings.Join(a, "; ")
}
