package gale

import (
	"fmt"
	"math"
)

// Floating point expressions operate on bit-vector operands interpreted
// as IEEE-754 binary32 or binary64 values. Keeping the operands as bit
// vectors means register and memory plumbing never needs a separate
// floating point sort; backends reinterpret at the boundary.

// RoundingMode represents an IEEE-754 rounding mode.
type RoundingMode int

const (
	RoundNearestEven RoundingMode = iota
	RoundTowardZero
	RoundTowardPositive
	RoundTowardNegative
	RoundNearestAway
)

var roundingModes = [...]string{
	RoundNearestEven:    "rne",
	RoundTowardZero:     "rtz",
	RoundTowardPositive: "rtp",
	RoundTowardNegative: "rtn",
	RoundNearestAway:    "rna",
}

// String returns the string representation of the rounding mode.
func (m RoundingMode) String() string {
	if m >= 0 && int(m) < len(roundingModes) {
		return roundingModes[m]
	}
	return fmt.Sprintf("RoundingMode<%d>", int(m))
}

func (*FPBinaryExpr) expr()   {}
func (*FPUnaryExpr) expr()    {}
func (*FPFMAExpr) expr()      {}
func (*FPCompareExpr) expr()  {}
func (*FPClassifyExpr) expr() {}
func (*FPConvertExpr) expr()  {}

// FPBinaryOp represents a binary floating point operation.
type FPBinaryOp int

// FPBinaryExpr operations.
const (
	FADD FPBinaryOp = iota
	FSUB
	FMUL
	FDIV
	FMIN
	FMAX
)

var fpBinaryOps = [...]string{
	FADD: "fadd",
	FSUB: "fsub",
	FMUL: "fmul",
	FDIV: "fdiv",
	FMIN: "fmin",
	FMAX: "fmax",
}

// String returns the string representation of the operation.
func (op FPBinaryOp) String() string {
	if op >= 0 && int(op) < len(fpBinaryOps) {
		return fpBinaryOps[op]
	}
	return fmt.Sprintf("FPBinaryOp<%d>", int(op))
}

// FPBinaryExpr represents a floating point operation on two expressions.
type FPBinaryExpr struct {
	Op       FPBinaryOp
	Rounding RoundingMode
	LHS      Expr
	RHS      Expr
}

// NewFPBinaryExpr returns a new instance of FPBinaryExpr.
// Folds when both operands are constant and the mode is round-to-nearest-even.
func NewFPBinaryExpr(op FPBinaryOp, rm RoundingMode, lhs, rhs Expr) Expr {
	w := ExprWidth(lhs)
	assert(w == Width32 || w == Width64, "fp binary: invalid width: %d", w)
	assert(w == ExprWidth(rhs), "fp binary: width mismatch: %d != %d", w, ExprWidth(rhs))

	if rm == RoundNearestEven {
		if lhs, ok := lhs.(*ConstantExpr); ok {
			if rhs, ok := rhs.(*ConstantExpr); ok {
				if v, ok := foldFPBinary(op, lhs, rhs); ok {
					return v
				}
			}
		}
	}
	return &FPBinaryExpr{Op: op, Rounding: rm, LHS: lhs, RHS: rhs}
}

// String returns the string representation of the expression.
func (e *FPBinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s %s)", e.Op, e.Rounding, e.LHS, e.RHS)
}

func foldFPBinary(op FPBinaryOp, lhs, rhs *ConstantExpr) (*ConstantExpr, bool) {
	a, b := constToFloat(lhs), constToFloat(rhs)
	var v float64
	switch op {
	case FADD:
		v = a + b
	case FSUB:
		v = a - b
	case FMUL:
		v = a * b
	case FDIV:
		v = a / b
	case FMIN:
		v = math.Min(a, b)
	case FMAX:
		v = math.Max(a, b)
	default:
		return nil, false
	}
	// binary32 results must round through float32.
	if lhs.Width == Width32 {
		return floatToConst(float64(float32(v)), Width32), true
	}
	return floatToConst(v, Width64), true
}

// FPUnaryOp represents a unary floating point operation.
type FPUnaryOp int

// FPUnaryExpr operations.
const (
	FNEG FPUnaryOp = iota
	FABS
	FSQRT
	FRND // round to integral
)

var fpUnaryOps = [...]string{
	FNEG:  "fneg",
	FABS:  "fabs",
	FSQRT: "fsqrt",
	FRND:  "frnd",
}

// String returns the string representation of the operation.
func (op FPUnaryOp) String() string {
	if op >= 0 && int(op) < len(fpUnaryOps) {
		return fpUnaryOps[op]
	}
	return fmt.Sprintf("FPUnaryOp<%d>", int(op))
}

// FPUnaryExpr represents a floating point operation on one expression.
type FPUnaryExpr struct {
	Op       FPUnaryOp
	Rounding RoundingMode
	Src      Expr
}

// NewFPUnaryExpr returns a new instance of FPUnaryExpr.
// Negation and absolute value fold to sign-bit arithmetic regardless of
// the operand; they never round and never signal.
func NewFPUnaryExpr(op FPUnaryOp, rm RoundingMode, src Expr) Expr {
	w := ExprWidth(src)
	assert(w == Width32 || w == Width64, "fp unary: invalid width: %d", w)

	switch op {
	case FNEG:
		return NewBinaryExpr(XOR, src, NewConstantExpr(1<<(w-1), w))
	case FABS:
		return NewBinaryExpr(AND, src, NewConstantExpr(bitmask(w-1), w))
	}

	if rm == RoundNearestEven {
		if src, ok := src.(*ConstantExpr); ok {
			v := constToFloat(src)
			switch op {
			case FSQRT:
				v = math.Sqrt(v)
			case FRND:
				v = math.RoundToEven(v)
			}
			if w == Width32 {
				return floatToConst(float64(float32(v)), Width32)
			}
			return floatToConst(v, Width64)
		}
	}
	return &FPUnaryExpr{Op: op, Rounding: rm, Src: src}
}

// String returns the string representation of the expression.
func (e *FPUnaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Op, e.Rounding, e.Src)
}

// FPFMAExpr represents a fused multiply-add: (a * b) + c with a single rounding.
type FPFMAExpr struct {
	Rounding RoundingMode
	A, B, C  Expr
}

// NewFPFMAExpr returns a new instance of FPFMAExpr.
func NewFPFMAExpr(rm RoundingMode, a, b, c Expr) Expr {
	w := ExprWidth(a)
	assert(w == Width32 || w == Width64, "fp fma: invalid width: %d", w)
	assert(w == ExprWidth(b) && w == ExprWidth(c), "fp fma: width mismatch")

	if rm == RoundNearestEven {
		ca, aok := a.(*ConstantExpr)
		cb, bok := b.(*ConstantExpr)
		cc, cok := c.(*ConstantExpr)
		if aok && bok && cok {
			v := math.FMA(constToFloat(ca), constToFloat(cb), constToFloat(cc))
			if w == Width32 {
				return floatToConst(float64(float32(v)), Width32)
			}
			return floatToConst(v, Width64)
		}
	}
	return &FPFMAExpr{Rounding: rm, A: a, B: b, C: c}
}

// String returns the string representation of the expression.
func (e *FPFMAExpr) String() string {
	return fmt.Sprintf("(ffma %s %s %s %s)", e.Rounding, e.A, e.B, e.C)
}

// FPCompareOp represents a floating point comparison operation.
type FPCompareOp int

// FPCompareExpr operations. The ordered comparisons are false when
// either operand is NaN; FUNO is true only then.
const (
	FOEQ FPCompareOp = iota
	FOLT
	FOLE
	FUNO
)

var fpCompareOps = [...]string{
	FOEQ: "foeq",
	FOLT: "folt",
	FOLE: "fole",
	FUNO: "funo",
}

// String returns the string representation of the operation.
func (op FPCompareOp) String() string {
	if op >= 0 && int(op) < len(fpCompareOps) {
		return fpCompareOps[op]
	}
	return fmt.Sprintf("FPCompareOp<%d>", int(op))
}

// FPCompareExpr represents a boolean comparison of two floating point expressions.
type FPCompareExpr struct {
	Op  FPCompareOp
	LHS Expr
	RHS Expr
}

// NewFPCompareExpr returns a new instance of FPCompareExpr.
func NewFPCompareExpr(op FPCompareOp, lhs, rhs Expr) Expr {
	w := ExprWidth(lhs)
	assert(w == Width32 || w == Width64, "fp compare: invalid width: %d", w)
	assert(w == ExprWidth(rhs), "fp compare: width mismatch: %d != %d", w, ExprWidth(rhs))

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			a, b := constToFloat(lhs), constToFloat(rhs)
			switch op {
			case FOEQ:
				return NewBoolConstantExpr(a == b)
			case FOLT:
				return NewBoolConstantExpr(a < b)
			case FOLE:
				return NewBoolConstantExpr(a <= b)
			case FUNO:
				return NewBoolConstantExpr(math.IsNaN(a) || math.IsNaN(b))
			}
		}
	}
	return &FPCompareExpr{Op: op, LHS: lhs, RHS: rhs}
}

// String returns the string representation of the expression.
func (e *FPCompareExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Op, e.LHS, e.RHS)
}

// FPClassifyOp represents a floating point classification predicate.
type FPClassifyOp int

// FPClassifyExpr operations.
const (
	FIsNaN FPClassifyOp = iota
	FIsInf
	FIsZero
	FIsNormal
	FIsSubnormal
	FIsNegative
)

var fpClassifyOps = [...]string{
	FIsNaN:       "fisnan",
	FIsInf:       "fisinf",
	FIsZero:      "fiszero",
	FIsNormal:    "fisnormal",
	FIsSubnormal: "fissubnormal",
	FIsNegative:  "fisnegative",
}

// String returns the string representation of the operation.
func (op FPClassifyOp) String() string {
	if op >= 0 && int(op) < len(fpClassifyOps) {
		return fpClassifyOps[op]
	}
	return fmt.Sprintf("FPClassifyOp<%d>", int(op))
}

// FPClassifyExpr represents a boolean classification of a floating point expression.
type FPClassifyExpr struct {
	Op  FPClassifyOp
	Src Expr
}

// NewFPClassifyExpr returns a new instance of FPClassifyExpr.
func NewFPClassifyExpr(op FPClassifyOp, src Expr) Expr {
	w := ExprWidth(src)
	assert(w == Width32 || w == Width64, "fp classify: invalid width: %d", w)

	if src, ok := src.(*ConstantExpr); ok {
		v := constToFloat(src)
		switch op {
		case FIsNaN:
			return NewBoolConstantExpr(math.IsNaN(v))
		case FIsInf:
			return NewBoolConstantExpr(math.IsInf(v, 0))
		case FIsZero:
			return NewBoolConstantExpr(v == 0)
		case FIsNormal:
			return NewBoolConstantExpr(isNormal(v, w))
		case FIsSubnormal:
			return NewBoolConstantExpr(isSubnormal(v, w))
		case FIsNegative:
			return NewBoolConstantExpr(math.Signbit(v))
		}
	}
	return &FPClassifyExpr{Op: op, Src: src}
}

// String returns the string representation of the expression.
func (e *FPClassifyExpr) String() string {
	return fmt.Sprintf("(%s %s)", e.Op, e.Src)
}

// FPConvertKind represents a floating point conversion.
type FPConvertKind int

// FPConvertExpr kinds.
const (
	FPToFP FPConvertKind = iota // binary32 <-> binary64
	FPToUI                      // fp -> unsigned integer
	FPToSI                      // fp -> signed integer
	UIToFP                      // unsigned integer -> fp
	SIToFP                      // signed integer -> fp
)

var fpConvertKinds = [...]string{
	FPToFP: "fp.to.fp",
	FPToUI: "fp.to.ui",
	FPToSI: "fp.to.si",
	UIToFP: "ui.to.fp",
	SIToFP: "si.to.fp",
}

// String returns the string representation of the kind.
func (k FPConvertKind) String() string {
	if k >= 0 && int(k) < len(fpConvertKinds) {
		return fpConvertKinds[k]
	}
	return fmt.Sprintf("FPConvertKind<%d>", int(k))
}

// FPConvertExpr represents a conversion between floating point formats or
// between floating point and integer values.
type FPConvertExpr struct {
	Kind     FPConvertKind
	Rounding RoundingMode
	Src      Expr
	Width    uint // result width
}

// NewFPConvertExpr returns a new instance of FPConvertExpr.
func NewFPConvertExpr(kind FPConvertKind, rm RoundingMode, src Expr, width uint) Expr {
	switch kind {
	case FPToFP, UIToFP, SIToFP:
		assert(width == Width32 || width == Width64, "fp convert: invalid target width: %d", width)
	}

	if src, ok := src.(*ConstantExpr); ok {
		if v, ok := foldFPConvert(kind, rm, src, width); ok {
			return v
		}
	}
	return &FPConvertExpr{Kind: kind, Rounding: rm, Src: src, Width: width}
}

// String returns the string representation of the expression.
func (e *FPConvertExpr) String() string {
	return fmt.Sprintf("(%s %s %s %d)", e.Kind, e.Rounding, e.Src, e.Width)
}

func foldFPConvert(kind FPConvertKind, rm RoundingMode, src *ConstantExpr, width uint) (*ConstantExpr, bool) {
	switch kind {
	case FPToFP:
		if rm != RoundNearestEven && width == Width32 {
			return nil, false
		}
		v := constToFloat(src)
		if width == Width32 {
			return floatToConst(float64(float32(v)), Width32), true
		}
		return floatToConst(v, Width64), true
	case FPToUI, FPToSI:
		if rm != RoundTowardZero {
			return nil, false
		}
		v := constToFloat(src)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false // saturation is backend defined
		}
		if kind == FPToUI {
			if v < 0 {
				return nil, false
			}
			return NewConstantExpr(uint64(v), width), true
		}
		return NewConstantExpr(uint64(int64(v)), width), true
	case UIToFP, SIToFP:
		if rm != RoundNearestEven {
			return nil, false
		}
		var v float64
		if kind == UIToFP {
			v = float64(src.Value)
		} else {
			v = float64(src.signedValue())
		}
		if width == Width32 {
			return floatToConst(float64(float32(v)), Width32), true
		}
		return floatToConst(v, Width64), true
	}
	return nil, false
}

// constToFloat reinterprets the constant's bits as an IEEE-754 value.
func constToFloat(e *ConstantExpr) float64 {
	if e.Width == Width32 {
		return float64(math.Float32frombits(uint32(e.Value)))
	}
	return math.Float64frombits(e.Value)
}

// floatToConst returns the IEEE-754 bits of v as a constant of the given width.
func floatToConst(v float64, width uint) *ConstantExpr {
	if width == Width32 {
		return NewConstantExpr(uint64(math.Float32bits(float32(v))), Width32)
	}
	return NewConstantExpr(math.Float64bits(v), Width64)
}

func isNormal(v float64, width uint) bool {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return !isSubnormal(v, width)
}

func isSubnormal(v float64, width uint) bool {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if width == Width32 {
		bits := math.Float32bits(float32(v))
		return bits&0x7f800000 == 0
	}
	bits := math.Float64bits(v)
	return bits&0x7ff0000000000000 == 0
}

// fpExprWidth returns the bit width of a floating point expression node.
func fpExprWidth(expr Expr) uint {
	switch expr := expr.(type) {
	case *FPBinaryExpr:
		return ExprWidth(expr.LHS)
	case *FPUnaryExpr:
		return ExprWidth(expr.Src)
	case *FPFMAExpr:
		return ExprWidth(expr.A)
	case *FPCompareExpr, *FPClassifyExpr:
		return WidthBool
	case *FPConvertExpr:
		return expr.Width
	default:
		panic(fmt.Sprintf("invalid expression type: %T", expr))
	}
}

func fpExprKind(expr Expr) int {
	switch expr.(type) {
	case *FPBinaryExpr:
		return 10
	case *FPUnaryExpr:
		return 11
	case *FPFMAExpr:
		return 12
	case *FPCompareExpr:
		return 13
	case *FPClassifyExpr:
		return 14
	case *FPConvertExpr:
		return 15
	default:
		panic(fmt.Sprintf("invalid expression type: %T", expr))
	}
}

func compareFPExpr(a, b Expr) int {
	switch a := a.(type) {
	case *FPBinaryExpr:
		other := b.(*FPBinaryExpr)
		if a.Op != other.Op {
			return int(a.Op - other.Op)
		} else if a.Rounding != other.Rounding {
			return int(a.Rounding - other.Rounding)
		}
		if cmp := CompareExpr(a.LHS, other.LHS); cmp != 0 {
			return cmp
		}
		return CompareExpr(a.RHS, other.RHS)
	case *FPUnaryExpr:
		other := b.(*FPUnaryExpr)
		if a.Op != other.Op {
			return int(a.Op - other.Op)
		} else if a.Rounding != other.Rounding {
			return int(a.Rounding - other.Rounding)
		}
		return CompareExpr(a.Src, other.Src)
	case *FPFMAExpr:
		other := b.(*FPFMAExpr)
		if a.Rounding != other.Rounding {
			return int(a.Rounding - other.Rounding)
		}
		if cmp := CompareExpr(a.A, other.A); cmp != 0 {
			return cmp
		}
		if cmp := CompareExpr(a.B, other.B); cmp != 0 {
			return cmp
		}
		return CompareExpr(a.C, other.C)
	case *FPCompareExpr:
		other := b.(*FPCompareExpr)
		if a.Op != other.Op {
			return int(a.Op - other.Op)
		}
		if cmp := CompareExpr(a.LHS, other.LHS); cmp != 0 {
			return cmp
		}
		return CompareExpr(a.RHS, other.RHS)
	case *FPClassifyExpr:
		other := b.(*FPClassifyExpr)
		if a.Op != other.Op {
			return int(a.Op - other.Op)
		}
		return CompareExpr(a.Src, other.Src)
	case *FPConvertExpr:
		other := b.(*FPConvertExpr)
		if a.Kind != other.Kind {
			return int(a.Kind - other.Kind)
		} else if a.Rounding != other.Rounding {
			return int(a.Rounding - other.Rounding)
		} else if a.Width != other.Width {
			return int(a.Width) - int(other.Width)
		}
		return CompareExpr(a.Src, other.Src)
	default:
		panic(fmt.Sprintf("invalid expression type: %T", a))
	}
}

func walkFPExpr(v ExprVisitor, expr Expr) {
	switch expr := expr.(type) {
	case *FPBinaryExpr:
		if other := WalkExpr(v, expr.LHS); other != expr.LHS {
			expr.LHS = other
		}
		if other := WalkExpr(v, expr.RHS); other != expr.RHS {
			expr.RHS = other
		}
	case *FPUnaryExpr:
		if other := WalkExpr(v, expr.Src); other != expr.Src {
			expr.Src = other
		}
	case *FPFMAExpr:
		if other := WalkExpr(v, expr.A); other != expr.A {
			expr.A = other
		}
		if other := WalkExpr(v, expr.B); other != expr.B {
			expr.B = other
		}
		if other := WalkExpr(v, expr.C); other != expr.C {
			expr.C = other
		}
	case *FPCompareExpr:
		if other := WalkExpr(v, expr.LHS); other != expr.LHS {
			expr.LHS = other
		}
		if other := WalkExpr(v, expr.RHS); other != expr.RHS {
			expr.RHS = other
		}
	case *FPClassifyExpr:
		if other := WalkExpr(v, expr.Src); other != expr.Src {
			expr.Src = other
		}
	case *FPConvertExpr:
		if other := WalkExpr(v, expr.Src); other != expr.Src {
			expr.Src = other
		}
	default:
		panic(fmt.Sprintf("invalid expression type: %T", expr))
	}
}
