// Package btor implements a solver backend on the Boolector C API.
//
// Boolector has no floating point theory so IEEE-754 expressions are
// rejected with an UnsupportedExprError.
package btor

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/galecode/gale"
)

/*
#cgo LDFLAGS: -lboolector
#include <boolector.h>
#include <stdlib.h>
*/
import "C"

// Ensure solver implements interface.
var _ gale.Solver = (*Solver)(nil)

// Solver represents a solver that uses an embedded Boolector solver.
//
// Boolector instances cannot be reset so a fresh instance is created for
// every query and torn down when the query completes.
type Solver struct {
	stats Stats
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{}
}

// Close releases resources held by the solver.
func (s *Solver) Close() error { return nil }

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	return s.stats
}

func (s *Solver) Solve(constraints []gale.Expr, arrays []*gale.Array) (satisfiable bool, values [][]byte, err error) {
	t := time.Now()
	defer func() {
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
	}()

	b := newBuilder()
	defer b.close()

	// Assert constraints.
	for _, constraint := range constraints {
		node, err := b.toNode(constraint)
		if err != nil {
			return false, nil, err
		}
		C.boolector_assert(b.btor, node)
	}

	// Model queries are only valid for nodes that exist before the
	// satisfiability call so array reads are built up front.
	reads := make([][]*C.BoolectorNode, len(arrays))
	for i, array := range arrays {
		reads[i] = make([]*C.BoolectorNode, array.Size)
		for offset := uint(0); offset < array.Size; offset++ {
			root, err := b.rootArray(array)
			if err != nil {
				return false, nil, err
			}
			reads[i][offset] = C.boolector_read(b.btor, root, b.constant(uint64(offset), gale.Width64))
		}
	}

	switch ret := C.boolector_sat(b.btor); ret {
	case C.BOOLECTOR_UNSAT:
		return false, nil, nil
	case C.BOOLECTOR_SAT:
	default:
		return false, nil, gale.ErrSolverUnknown
	}
	if len(arrays) == 0 {
		return true, nil, nil // no symbolics, ignore model
	}

	// Fetch values for symbolic arrays.
	values = make([][]byte, len(arrays))
	for i, array := range arrays {
		value := make([]byte, 0, array.Size)
		for offset := uint(0); offset < array.Size; offset++ {
			value = append(value, b.assignment(reads[i][offset]))
		}
		values[i] = value
	}
	return true, values, nil
}

// builder constructs Boolector nodes from expressions. It owns a single
// Boolector instance, valid for one query.
type builder struct {
	btor  *C.Btor
	roots map[uint64]*C.BoolectorNode
}

func newBuilder() *builder {
	btor := C.boolector_new()
	C.boolector_set_opt(btor, C.BTOR_OPT_MODEL_GEN, 1)
	return &builder{
		btor:  btor,
		roots: make(map[uint64]*C.BoolectorNode),
	}
}

func (b *builder) close() {
	C.boolector_release_all(b.btor)
	C.boolector_delete(b.btor)
}

func (b *builder) toNode(expr gale.Expr) (*C.BoolectorNode, error) {
	switch expr := expr.(type) {
	case *gale.ConstantExpr:
		return b.constant(expr.Value, expr.Width), nil
	case *gale.SelectExpr:
		return b.toSelectNode(expr)
	case *gale.ConcatExpr:
		return b.toConcatNode(expr)
	case *gale.ExtractExpr:
		return b.toExtractNode(expr)
	case *gale.CastExpr:
		return b.toCastNode(expr)
	case *gale.NotExpr:
		return b.toNotNode(expr)
	case *gale.NotOptimizedExpr:
		return b.toNode(expr.Src)
	case *gale.BinaryExpr:
		return b.toBinaryNode(expr)
	case *gale.IteExpr:
		return b.toIteNode(expr)
	case *gale.FPBinaryExpr:
		return nil, &gale.UnsupportedExprError{Backend: "btor", Op: expr.Op.String()}
	case *gale.FPUnaryExpr:
		return nil, &gale.UnsupportedExprError{Backend: "btor", Op: expr.Op.String()}
	case *gale.FPFMAExpr:
		return nil, &gale.UnsupportedExprError{Backend: "btor", Op: "ffma"}
	case *gale.FPCompareExpr:
		return nil, &gale.UnsupportedExprError{Backend: "btor", Op: expr.Op.String()}
	case *gale.FPClassifyExpr:
		return nil, &gale.UnsupportedExprError{Backend: "btor", Op: expr.Op.String()}
	case *gale.FPConvertExpr:
		return nil, &gale.UnsupportedExprError{Backend: "btor", Op: expr.Kind.String()}
	default:
		return nil, fmt.Errorf("btor.builder.toNode: invalid expression type: %T", expr)
	}
}

// constant returns a bit-vector constant of the given width.
func (b *builder) constant(value uint64, width uint) *C.BoolectorNode {
	bits := make([]byte, width)
	for i := uint(0); i < width; i++ {
		if value&(1<<(width-1-i)) != 0 {
			bits[i] = '1'
		} else {
			bits[i] = '0'
		}
	}
	cbits := C.CString(string(bits))
	defer C.free(unsafe.Pointer(cbits))
	return C.boolector_const(b.btor, cbits)
}

// rootArray returns the unnamed root for an array, memoized so every
// reference resolves to the same solver variable.
func (b *builder) rootArray(array *gale.Array) (*C.BoolectorNode, error) {
	if node, ok := b.roots[array.ID]; ok {
		return node, nil
	}

	indexSort := C.boolector_bitvec_sort(b.btor, C.uint32_t(gale.Width64))
	elemSort := C.boolector_bitvec_sort(b.btor, C.uint32_t(gale.Width8))
	arraySort := C.boolector_array_sort(b.btor, indexSort, elemSort)
	defer C.boolector_release_sort(b.btor, indexSort)
	defer C.boolector_release_sort(b.btor, elemSort)
	defer C.boolector_release_sort(b.btor, arraySort)

	cname := C.CString(arrayName(array))
	defer C.free(unsafe.Pointer(cname))
	node := C.boolector_array(b.btor, arraySort, cname)
	b.roots[array.ID] = node
	return node, nil
}

// arrayWithUpdate returns an array with updates recursively applied.
func (b *builder) arrayWithUpdate(root *gale.Array, upd *gale.ArrayUpdate) (*C.BoolectorNode, error) {
	if upd == nil {
		return b.rootArray(root)
	}

	array, err := b.arrayWithUpdate(root, upd.Next)
	if err != nil {
		return nil, err
	}
	index, err := b.toNode(upd.Index)
	if err != nil {
		return nil, err
	}
	value, err := b.toNode(upd.Value)
	if err != nil {
		return nil, err
	}
	return C.boolector_write(b.btor, array, index, value), nil
}

func (b *builder) toSelectNode(expr *gale.SelectExpr) (*C.BoolectorNode, error) {
	array, err := b.arrayWithUpdate(expr.Array, expr.Array.Updates)
	if err != nil {
		return nil, err
	}
	index, err := b.toNode(expr.Index)
	if err != nil {
		return nil, err
	}
	return C.boolector_read(b.btor, array, index), nil
}

func (b *builder) toConcatNode(expr *gale.ConcatExpr) (*C.BoolectorNode, error) {
	msb, err := b.toNode(expr.MSB)
	if err != nil {
		return nil, err
	}
	lsb, err := b.toNode(expr.LSB)
	if err != nil {
		return nil, err
	}
	return C.boolector_concat(b.btor, msb, lsb), nil
}

func (b *builder) toExtractNode(expr *gale.ExtractExpr) (*C.BoolectorNode, error) {
	src, err := b.toNode(expr.Expr)
	if err != nil {
		return nil, err
	}
	return C.boolector_slice(b.btor, src, C.uint32_t(expr.Offset+expr.Width-1), C.uint32_t(expr.Offset)), nil
}

func (b *builder) toCastNode(expr *gale.CastExpr) (*C.BoolectorNode, error) {
	src, err := b.toNode(expr.Src)
	if err != nil {
		return nil, err
	}
	pad := C.uint32_t(expr.Width - gale.ExprWidth(expr.Src))
	if expr.Signed {
		return C.boolector_sext(b.btor, src, pad), nil
	}
	return C.boolector_uext(b.btor, src, pad), nil
}

func (b *builder) toNotNode(expr *gale.NotExpr) (*C.BoolectorNode, error) {
	src, err := b.toNode(expr.Expr)
	if err != nil {
		return nil, err
	}
	return C.boolector_not(b.btor, src), nil
}

func (b *builder) toIteNode(expr *gale.IteExpr) (*C.BoolectorNode, error) {
	cond, err := b.toNode(expr.Cond)
	if err != nil {
		return nil, err
	}
	then, err := b.toNode(expr.Then)
	if err != nil {
		return nil, err
	}
	otherwise, err := b.toNode(expr.Else)
	if err != nil {
		return nil, err
	}
	return C.boolector_cond(b.btor, cond, then, otherwise), nil
}

func (b *builder) toBinaryNode(expr *gale.BinaryExpr) (*C.BoolectorNode, error) {
	lhs, err := b.toNode(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := b.toNode(expr.RHS)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case gale.ADD:
		return C.boolector_add(b.btor, lhs, rhs), nil
	case gale.SUB:
		return C.boolector_sub(b.btor, lhs, rhs), nil
	case gale.MUL:
		return C.boolector_mul(b.btor, lhs, rhs), nil
	case gale.UDIV:
		return C.boolector_udiv(b.btor, lhs, rhs), nil
	case gale.SDIV:
		return C.boolector_sdiv(b.btor, lhs, rhs), nil
	case gale.UREM:
		return C.boolector_urem(b.btor, lhs, rhs), nil
	case gale.SREM:
		return C.boolector_srem(b.btor, lhs, rhs), nil
	case gale.AND:
		return C.boolector_and(b.btor, lhs, rhs), nil
	case gale.OR:
		return C.boolector_or(b.btor, lhs, rhs), nil
	case gale.XOR:
		return C.boolector_xor(b.btor, lhs, rhs), nil
	case gale.SHL:
		return C.boolector_sll(b.btor, lhs, rhs), nil
	case gale.LSHR:
		return C.boolector_srl(b.btor, lhs, rhs), nil
	case gale.ASHR:
		return C.boolector_sra(b.btor, lhs, rhs), nil
	case gale.EQ:
		return C.boolector_eq(b.btor, lhs, rhs), nil
	case gale.ULT:
		return C.boolector_ult(b.btor, lhs, rhs), nil
	case gale.ULE:
		return C.boolector_ulte(b.btor, lhs, rhs), nil
	case gale.SLT:
		return C.boolector_slt(b.btor, lhs, rhs), nil
	case gale.SLE:
		return C.boolector_slte(b.btor, lhs, rhs), nil
	default:
		return nil, fmt.Errorf("btor.builder.toBinaryNode: unexpected operation: %s", expr.Op)
	}
}

// assignment returns the model value of an 8-bit node. Don't-care bits
// read as zero.
func (b *builder) assignment(node *C.BoolectorNode) byte {
	cbits := C.boolector_bv_assignment(b.btor, node)
	defer C.boolector_free_bv_assignment(b.btor, cbits)

	var v byte
	for _, c := range C.GoString(cbits) {
		v <<= 1
		if c == '1' {
			v |= 1
		}
	}
	return v
}

func arrayName(array *gale.Array) string {
	if array.Name != "" {
		return fmt.Sprintf("%s#%d", array.Name, array.ID)
	}
	return fmt.Sprintf("A%d", array.ID)
}

type Stats struct {
	SolveN    int
	SolveTime time.Duration
}
