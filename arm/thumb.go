package arm

import (
	"encoding/binary"
	"fmt"

	"github.com/galecode/gale"
)

// Condition codes.
const (
	condEQ = 0x0
	condNE = 0x1
	condCS = 0x2
	condCC = 0x3
	condMI = 0x4
	condPL = 0x5
	condVS = 0x6
	condVC = 0x7
	condHI = 0x8
	condLS = 0x9
	condGE = 0xA
	condLT = 0xB
	condGT = 0xC
	condLE = 0xD
	condAL = 0xE
)

// Translate decodes the Thumb instruction at the start of data.
func (a *thumb) Translate(data []byte, state *gale.GAState) (*gale.Instruction, error) {
	if len(data) < 2 {
		return nil, &gale.DecodeError{Kind: gale.DecodeInsufficientInput}
	}
	hw := binary.LittleEndian.Uint16(data)

	// Halfwords starting 0b111_01, 0b111_10 or 0b111_11 begin a
	// 32-bit encoding.
	if hw>>11 >= 0x1D {
		if len(data) < 4 {
			return nil, &gale.DecodeError{Kind: gale.DecodeInsufficientInput, Encoding: uint32(hw)}
		}
		return a.translate32(hw, binary.LittleEndian.Uint16(data[2:]), state)
	}
	return a.translate16(hw, state)
}

func (a *thumb) translate16(hw uint16, state *gale.GAState) (*gale.Instruction, error) {
	// Flag updates are suppressed while executing an IT block.
	setflags := !state.InConditionalBlock()
	pc := state.PC()

	switch {
	case hw>>13 == 0x0: // shift (immediate), add, subtract
		return a.translateShiftAddSub(hw, setflags)
	case hw>>13 == 0x1: // move, compare, add, subtract (immediate 8)
		return a.translateImm8(hw, setflags)
	case hw>>10 == 0x10: // data processing, register
		return a.translateDataProcessing(hw, setflags)
	case hw>>10 == 0x11: // special data, branch and exchange
		return a.translateSpecialData(hw, pc)
	case hw>>11 == 0x09: // LDR (literal)
		return a.translateLoadLiteral(hw, pc)
	case hw>>12 == 0x5: // load/store, register offset
		return a.translateLoadStoreReg(hw)
	case hw>>13 == 0x3 || hw>>12 == 0x8: // load/store, immediate offset
		return a.translateLoadStoreImm(hw)
	case hw>>12 == 0x9: // load/store, SP-relative
		return a.translateLoadStoreSP(hw)
	case hw>>12 == 0xA: // ADR, ADD (SP plus immediate)
		return a.translateAddToPCSP(hw, pc)
	case hw>>12 == 0xB: // miscellaneous
		return a.translateMisc(hw, pc)
	case hw>>12 == 0xD: // conditional branch, UDF, SVC
		return a.translateCondBranch(hw, pc)
	case hw>>11 == 0x1C: // B
		offset := signExtend(uint32(hw&0x7FF)<<1, 12)
		return &gale.Instruction{
			Size: 2,
			Operations: []gale.Operation{
				jump(gale.Imm(uint64(pc+4+uint64(int64(offset))), 32)),
			},
			CycleCount: gale.FixedCycleCount(3),
		}, nil
	}
	return nil, &gale.DecodeError{Kind: gale.DecodeMalformed, Encoding: uint32(hw)}
}

func lreg(hw uint16, shift uint) gale.RegisterOperand {
	return gale.Reg(registerNames[(hw>>shift)&0x7])
}

func imm32(v uint64) gale.ImmediateOperand { return gale.Imm(v, 32) }

// jump builds an unconditional transfer of control.
func jump(dest gale.Operand) gale.Operation {
	return gale.ConditionalJump{Condition: gale.Imm(1, 1), Destination: dest}
}

// nz appends the negative and zero flag updates for result.
func nz(ops []gale.Operation, result gale.Operand) []gale.Operation {
	return append(ops, gale.SetNFlag{Src: result}, gale.SetZFlag{Src: result})
}

// addSub builds an add or subtract with the full flag set. The result
// lands in a local first so flag computation still sees the original
// operands when the destination aliases one of them.
func addSub(dst, n, m gale.Operand, sub, useCarry, setflags bool) []gale.Operation {
	t := gale.Local("t")
	var ops []gale.Operation
	switch {
	case sub && useCarry:
		ops = append(ops, gale.Sbc{Dst: t, A: n, B: m})
	case sub:
		ops = append(ops, gale.Sub{Dst: t, A: n, B: m})
	case useCarry:
		ops = append(ops, gale.Adc{Dst: t, A: n, B: m})
	default:
		ops = append(ops, gale.Add{Dst: t, A: n, B: m})
	}
	if setflags {
		ops = append(ops,
			gale.SetCFlag{A: n, B: m, Sub: sub, UseCarry: useCarry},
			gale.SetVFlag{A: n, B: m, Sub: sub, UseCarry: useCarry},
		)
		ops = nz(ops, t)
	}
	if dst != nil {
		ops = append(ops, gale.Move{Dst: dst, Src: t})
	}
	return ops
}

func alu1(ops []gale.Operation) (*gale.Instruction, error) {
	return &gale.Instruction{Size: 2, Operations: ops, CycleCount: gale.FixedCycleCount(1)}, nil
}

func (a *thumb) translateShiftAddSub(hw uint16, setflags bool) (*gale.Instruction, error) {
	if op := (hw >> 11) & 0x3; op != 0x3 { // LSL, LSR, ASR (immediate)
		d, m := lreg(hw, 0), lreg(hw, 3)
		imm := uint64(hw>>6) & 0x1F
		if op != 0 && imm == 0 {
			imm = 32 // LSR/ASR #0 encodes a full-width shift
		}
		shift := imm32(imm)
		var ops []gale.Operation
		if setflags {
			switch op {
			case 0:
				ops = append(ops, gale.SetCFlagShiftLeft{Value: m, Shift: shift})
			case 1:
				ops = append(ops, gale.SetCFlagShiftRight{Value: m, Shift: shift})
			case 2:
				ops = append(ops, gale.SetCFlagShiftRight{Value: m, Shift: shift, Arithmetic: true})
			}
		}
		switch op {
		case 0:
			ops = append(ops, gale.Sl{Dst: d, Src: m, Shift: shift})
		case 1:
			ops = append(ops, gale.Srl{Dst: d, Src: m, Shift: shift})
		case 2:
			ops = append(ops, gale.Sra{Dst: d, Src: m, Shift: shift})
		}
		if setflags {
			ops = nz(ops, d)
		}
		return alu1(ops)
	}

	switch (hw >> 9) & 0x3 {
	case 0x0: // ADD (register)
		return alu1(addSub(lreg(hw, 0), lreg(hw, 3), lreg(hw, 6), false, false, setflags))
	case 0x1: // SUB (register)
		return alu1(addSub(lreg(hw, 0), lreg(hw, 3), lreg(hw, 6), true, false, setflags))
	case 0x2: // ADD (immediate 3)
		return alu1(addSub(lreg(hw, 0), lreg(hw, 3), imm32(uint64(hw>>6)&0x7), false, false, setflags))
	default: // SUB (immediate 3)
		return alu1(addSub(lreg(hw, 0), lreg(hw, 3), imm32(uint64(hw>>6)&0x7), true, false, setflags))
	}
}

func (a *thumb) translateImm8(hw uint16, setflags bool) (*gale.Instruction, error) {
	d := lreg(hw, 8)
	imm := imm32(uint64(hw & 0xFF))
	switch (hw >> 11) & 0x3 {
	case 0x0: // MOV (immediate)
		ops := []gale.Operation{gale.Move{Dst: d, Src: imm}}
		if setflags {
			ops = nz(ops, imm)
		}
		return alu1(ops)
	case 0x1: // CMP (immediate)
		return alu1(addSub(nil, d, imm, true, false, true))
	case 0x2: // ADD (immediate 8)
		return alu1(addSub(d, d, imm, false, false, setflags))
	default: // SUB (immediate 8)
		return alu1(addSub(d, d, imm, true, false, setflags))
	}
}

func (a *thumb) translateDataProcessing(hw uint16, setflags bool) (*gale.Instruction, error) {
	dn, m := lreg(hw, 0), lreg(hw, 3)
	t := gale.Local("t")

	// Register shift amounts take the low byte of Rm.
	shiftAmount := func() (gale.Operand, []gale.Operation) {
		s8, s := gale.Local("s8"), gale.Local("s")
		return s, []gale.Operation{
			gale.ExtractBits{Dst: s8, Src: m, Offset: 0, Width: 8},
			gale.ZeroExtend{Dst: s, Src: s8, Bits: 32},
		}
	}

	switch (hw >> 6) & 0xF {
	case 0x0: // AND
		ops := []gale.Operation{gale.And{Dst: dn, A: dn, B: m}}
		if setflags {
			ops = nz(ops, dn)
		}
		return alu1(ops)
	case 0x1: // EOR
		ops := []gale.Operation{gale.Xor{Dst: dn, A: dn, B: m}}
		if setflags {
			ops = nz(ops, dn)
		}
		return alu1(ops)
	case 0x2: // LSL (register)
		s, ops := shiftAmount()
		if setflags {
			ops = append(ops, gale.SetCFlagShiftLeft{Value: dn, Shift: s})
		}
		ops = append(ops, gale.Sl{Dst: dn, Src: dn, Shift: s})
		if setflags {
			ops = nz(ops, dn)
		}
		return alu1(ops)
	case 0x3: // LSR (register)
		s, ops := shiftAmount()
		if setflags {
			ops = append(ops, gale.SetCFlagShiftRight{Value: dn, Shift: s})
		}
		ops = append(ops, gale.Srl{Dst: dn, Src: dn, Shift: s})
		if setflags {
			ops = nz(ops, dn)
		}
		return alu1(ops)
	case 0x4: // ASR (register)
		s, ops := shiftAmount()
		if setflags {
			ops = append(ops, gale.SetCFlagShiftRight{Value: dn, Shift: s, Arithmetic: true})
		}
		ops = append(ops, gale.Sra{Dst: dn, Src: dn, Shift: s})
		if setflags {
			ops = nz(ops, dn)
		}
		return alu1(ops)
	case 0x5: // ADC
		return alu1(addSub(dn, dn, m, false, true, setflags))
	case 0x6: // SBC
		return alu1(addSub(dn, dn, m, true, true, setflags))
	case 0x7: // ROR (register)
		s, ops := shiftAmount()
		masked := gale.Local("s5")
		ops = append(ops, gale.ExtractBits{Dst: masked, Src: s, Offset: 0, Width: 5})
		wide := gale.Local("sw")
		ops = append(ops, gale.ZeroExtend{Dst: wide, Src: masked, Bits: 32})
		if setflags {
			ops = append(ops, gale.SetCFlagShiftRight{Value: dn, Shift: wide})
		}
		ops = append(ops, gale.Sror{Dst: dn, Src: dn, Shift: s})
		if setflags {
			ops = nz(ops, dn)
		}
		return alu1(ops)
	case 0x8: // TST
		ops := []gale.Operation{gale.And{Dst: t, A: dn, B: m}}
		return alu1(nz(ops, t))
	case 0x9: // RSB (immediate zero)
		return alu1(addSub(dn, imm32(0), m, true, false, setflags))
	case 0xA: // CMP (register)
		return alu1(addSub(nil, dn, m, true, false, true))
	case 0xB: // CMN (register)
		return alu1(addSub(nil, dn, m, false, false, true))
	case 0xC: // ORR
		ops := []gale.Operation{gale.Or{Dst: dn, A: dn, B: m}}
		if setflags {
			ops = nz(ops, dn)
		}
		return alu1(ops)
	case 0xD: // MUL
		ops := []gale.Operation{gale.Mul{Dst: dn, A: dn, B: m}}
		if setflags {
			ops = nz(ops, dn)
		}
		cycles := 32 // sequential multiplier on the smallest cores
		if a.wide {
			cycles = 1
		}
		return &gale.Instruction{Size: 2, Operations: ops, CycleCount: gale.FixedCycleCount(cycles)}, nil
	case 0xE: // BIC
		ops := []gale.Operation{
			gale.Not{Dst: t, Src: m},
			gale.And{Dst: dn, A: dn, B: t},
		}
		if setflags {
			ops = nz(ops, dn)
		}
		return alu1(ops)
	default: // MVN
		ops := []gale.Operation{gale.Not{Dst: dn, Src: m}}
		if setflags {
			ops = nz(ops, dn)
		}
		return alu1(ops)
	}
}

func (a *thumb) translateSpecialData(hw uint16, pc uint64) (*gale.Instruction, error) {
	m := gale.Reg(registerNames[(hw>>3)&0xF])
	dn := int(hw&0x7) | int(hw>>4)&0x8
	d := gale.Reg(registerNames[dn])

	// branchTo masks the interworking bit and transfers control.
	branchTo := func(ops []gale.Operation, src gale.Operand) []gale.Operation {
		t := gale.Local("dest")
		return append(ops,
			gale.And{Dst: t, A: src, B: imm32(0xFFFFFFFE)},
			jump(t),
		)
	}

	switch (hw >> 8) & 0x3 {
	case 0x0: // ADD (high registers), no flags
		if dn == 15 {
			t := gale.Local("sum")
			ops := []gale.Operation{gale.Add{Dst: t, A: d, B: m}}
			return &gale.Instruction{Size: 2, Operations: branchTo(ops, t), CycleCount: gale.FixedCycleCount(3)}, nil
		}
		return alu1([]gale.Operation{gale.Add{Dst: d, A: d, B: m}})
	case 0x1: // CMP (high registers)
		return alu1(addSub(nil, d, m, true, false, true))
	case 0x2: // MOV (high registers), no flags
		if dn == 15 {
			return &gale.Instruction{Size: 2, Operations: branchTo(nil, m), CycleCount: gale.FixedCycleCount(3)}, nil
		}
		return alu1([]gale.Operation{gale.Move{Dst: d, Src: m}})
	default: // BX, BLX (register)
		if hw&0x7 != 0 {
			return nil, &gale.DecodeError{Kind: gale.DecodeUnpredictable, Encoding: uint32(hw)}
		}
		var ops []gale.Operation
		if hw&0x80 != 0 { // BLX: return address is the next halfword, marked Thumb
			ops = append(ops, gale.Move{Dst: gale.Reg("lr"), Src: imm32(pc + 3)})
		}
		return &gale.Instruction{Size: 2, Operations: branchTo(ops, m), CycleCount: gale.FixedCycleCount(3)}, nil
	}
}

func (a *thumb) translateLoadLiteral(hw uint16, pc uint64) (*gale.Instruction, error) {
	t := lreg(hw, 8)
	addr := (pc+4)&^3 + uint64(hw&0xFF)*4
	return &gale.Instruction{
		Size: 2,
		Operations: []gale.Operation{
			gale.Move{Dst: t, Src: gale.Addr(imm32(addr), 32)},
		},
		CycleCount:   gale.FixedCycleCount(2),
		MemoryAccess: true,
	}, nil
}

// loadStore builds the common register/memory transfer shape: an
// effective address into a local, then a load or store of the given
// width with the appropriate extension.
func loadStore(rt gale.Operand, base, offset gale.Operand, width uint, load, signed bool) *gale.Instruction {
	a := gale.Local("addr")
	ops := []gale.Operation{gale.Add{Dst: a, A: base, B: offset}}
	mem := gale.Addr(a, width)

	switch {
	case !load && width == 32:
		ops = append(ops, gale.Move{Dst: mem, Src: rt})
	case !load:
		v := gale.Local("v")
		ops = append(ops,
			gale.ExtractBits{Dst: v, Src: rt, Offset: 0, Width: width},
			gale.Move{Dst: mem, Src: v},
		)
	case width == 32:
		ops = append(ops, gale.Move{Dst: rt, Src: mem})
	default:
		v := gale.Local("v")
		ops = append(ops, gale.Move{Dst: v, Src: mem})
		if signed {
			ops = append(ops, gale.SignExtend{Dst: rt, Src: v, Bits: 32})
		} else {
			ops = append(ops, gale.ZeroExtend{Dst: rt, Src: v, Bits: 32})
		}
	}
	return &gale.Instruction{
		Size:         2,
		Operations:   ops,
		CycleCount:   gale.FixedCycleCount(2),
		MemoryAccess: true,
	}
}

func (a *thumb) translateLoadStoreReg(hw uint16) (*gale.Instruction, error) {
	rt, rn, rm := lreg(hw, 0), lreg(hw, 3), lreg(hw, 6)
	switch (hw >> 9) & 0x7 {
	case 0x0: // STR
		return loadStore(rt, rn, rm, 32, false, false), nil
	case 0x1: // STRH
		return loadStore(rt, rn, rm, 16, false, false), nil
	case 0x2: // STRB
		return loadStore(rt, rn, rm, 8, false, false), nil
	case 0x3: // LDRSB
		return loadStore(rt, rn, rm, 8, true, true), nil
	case 0x4: // LDR
		return loadStore(rt, rn, rm, 32, true, false), nil
	case 0x5: // LDRH
		return loadStore(rt, rn, rm, 16, true, false), nil
	case 0x6: // LDRB
		return loadStore(rt, rn, rm, 8, true, false), nil
	default: // LDRSH
		return loadStore(rt, rn, rm, 16, true, true), nil
	}
}

func (a *thumb) translateLoadStoreImm(hw uint16) (*gale.Instruction, error) {
	rt, rn := lreg(hw, 0), lreg(hw, 3)
	imm := uint64(hw>>6) & 0x1F
	load := hw&0x0800 != 0
	switch {
	case hw>>12 == 0x6: // STR/LDR, word
		return loadStore(rt, rn, imm32(imm*4), 32, load, false), nil
	case hw>>12 == 0x7: // STRB/LDRB
		return loadStore(rt, rn, imm32(imm), 8, load, false), nil
	default: // STRH/LDRH
		return loadStore(rt, rn, imm32(imm*2), 16, load, false), nil
	}
}

func (a *thumb) translateLoadStoreSP(hw uint16) (*gale.Instruction, error) {
	rt := lreg(hw, 8)
	offset := imm32(uint64(hw&0xFF) * 4)
	return loadStore(rt, gale.Reg("sp"), offset, 32, hw&0x0800 != 0, false), nil
}

func (a *thumb) translateAddToPCSP(hw uint16, pc uint64) (*gale.Instruction, error) {
	d := lreg(hw, 8)
	imm := uint64(hw&0xFF) * 4
	if hw&0x0800 == 0 { // ADR
		return alu1([]gale.Operation{gale.Move{Dst: d, Src: imm32((pc+4)&^3 + imm)}})
	}
	// ADD (SP plus immediate)
	return alu1([]gale.Operation{gale.Add{Dst: d, A: gale.Reg("sp"), B: imm32(imm)}})
}

func (a *thumb) translateMisc(hw uint16, pc uint64) (*gale.Instruction, error) {
	sp := gale.Reg("sp")

	switch {
	case hw>>7 == 0x160: // ADD SP, #imm7*4
		return alu1([]gale.Operation{gale.Add{Dst: sp, A: sp, B: imm32(uint64(hw&0x7F) * 4)}})
	case hw>>7 == 0x161: // SUB SP, #imm7*4
		return alu1([]gale.Operation{gale.Sub{Dst: sp, A: sp, B: imm32(uint64(hw&0x7F) * 4)}})
	case hw>>8 == 0xB2: // SXTH, SXTB, UXTH, UXTB
		return a.translateExtend(hw)
	case hw&0xFFC0 == 0xBA00: // REV
		return a.translateRev(hw)
	case hw&0xFE00 == 0xB400: // PUSH
		return a.translatePush(hw)
	case hw&0xFE00 == 0xBC00: // POP
		return a.translatePop(hw, pc)
	case hw&0xFF00 == 0xBE00: // BKPT
		return &gale.Instruction{
			Size:       2,
			Operations: []gale.Operation{gale.Abort{Message: "breakpoint"}},
			CycleCount: gale.FixedCycleCount(1),
		}, nil
	case hw&0xFF00 == 0xBF00: // IT and hints
		if hw&0x000F == 0 { // NOP, YIELD, WFE, WFI, SEV
			return alu1([]gale.Operation{gale.Nop{}})
		}
		if !a.wide {
			return nil, &gale.DecodeError{Kind: gale.DecodeInvalid, Encoding: uint32(hw), Detail: "IT requires ARMv7E-M"}
		}
		return a.translateIT(hw)
	}
	return nil, &gale.DecodeError{Kind: gale.DecodeMalformed, Encoding: uint32(hw)}
}

func (a *thumb) translateExtend(hw uint16) (*gale.Instruction, error) {
	d, m := lreg(hw, 0), lreg(hw, 3)
	t := gale.Local("t")
	width, signed := uint(16), (hw>>6)&0x2 == 0
	if (hw>>6)&0x1 != 0 {
		width = 8
	}
	ops := []gale.Operation{gale.ExtractBits{Dst: t, Src: m, Offset: 0, Width: width}}
	if signed {
		ops = append(ops, gale.SignExtend{Dst: d, Src: t, Bits: 32})
	} else {
		ops = append(ops, gale.ZeroExtend{Dst: d, Src: t, Bits: 32})
	}
	return alu1(ops)
}

func (a *thumb) translateRev(hw uint16) (*gale.Instruction, error) {
	d, m := lreg(hw, 0), lreg(hw, 3)
	ops := []gale.Operation{gale.Move{Dst: d, Src: imm32(0)}}
	for i := uint(0); i < 4; i++ {
		b := gale.Local("b")
		ops = append(ops,
			gale.ExtractBits{Dst: b, Src: m, Offset: i * 8, Width: 8},
			gale.InsertBits{Dst: d, Src: b, Offset: 24 - i*8, Width: 8},
		)
	}
	return alu1(ops)
}

func (a *thumb) translatePush(hw uint16) (*gale.Instruction, error) {
	var regs []gale.Operand
	for i := 0; i < 8; i++ {
		if hw&(1<<i) != 0 {
			regs = append(regs, gale.Reg(registerNames[i]))
		}
	}
	if hw&0x100 != 0 {
		regs = append(regs, gale.Reg("lr"))
	}
	if len(regs) == 0 {
		return nil, &gale.DecodeError{Kind: gale.DecodeUnpredictable, Encoding: uint32(hw), Detail: "empty register list"}
	}

	sp := gale.Reg("sp")
	n := uint64(len(regs))
	var ops []gale.Operation
	for i, reg := range regs {
		slot := gale.Local("slot")
		ops = append(ops,
			gale.Sub{Dst: slot, A: sp, B: imm32((n - uint64(i)) * 4)},
			gale.Move{Dst: gale.Addr(slot, 32), Src: reg},
		)
	}
	ops = append(ops, gale.Sub{Dst: sp, A: sp, B: imm32(n * 4)})
	return &gale.Instruction{
		Size:         2,
		Operations:   ops,
		CycleCount:   gale.FixedCycleCount(1 + len(regs)),
		MemoryAccess: true,
	}, nil
}

func (a *thumb) translatePop(hw uint16, pc uint64) (*gale.Instruction, error) {
	var regs []gale.Operand
	for i := 0; i < 8; i++ {
		if hw&(1<<i) != 0 {
			regs = append(regs, gale.Reg(registerNames[i]))
		}
	}
	loadPC := hw&0x100 != 0
	if len(regs) == 0 && !loadPC {
		return nil, &gale.DecodeError{Kind: gale.DecodeUnpredictable, Encoding: uint32(hw), Detail: "empty register list"}
	}

	sp := gale.Reg("sp")
	var ops []gale.Operation
	for i, reg := range regs {
		slot := gale.Local("slot")
		ops = append(ops,
			gale.Add{Dst: slot, A: sp, B: imm32(uint64(i) * 4)},
			gale.Move{Dst: reg, Src: gale.Addr(slot, 32)},
		)
	}
	count := uint64(len(regs))
	if loadPC {
		slot, ret := gale.Local("slot"), gale.Local("ret")
		ops = append(ops,
			gale.Add{Dst: slot, A: sp, B: imm32(count * 4)},
			gale.Move{Dst: ret, Src: gale.Addr(slot, 32)},
		)
		count++
		ops = append(ops, gale.Add{Dst: sp, A: sp, B: imm32(count * 4)})
		dest := gale.Local("dest")
		ops = append(ops,
			gale.And{Dst: dest, A: ret, B: imm32(0xFFFFFFFE)},
			jump(dest),
		)
	} else {
		ops = append(ops, gale.Add{Dst: sp, A: sp, B: imm32(count * 4)})
	}
	return &gale.Instruction{
		Size:         2,
		Operations:   ops,
		CycleCount:   gale.FixedCycleCount(1 + int(count)),
		MemoryAccess: true,
	}, nil
}

// translateIT decodes an IT block: up to four following instructions
// execute under the base condition or its inverse, per the mask.
func (a *thumb) translateIT(hw uint16) (*gale.Instruction, error) {
	firstcond := uint8(hw>>4) & 0xF
	mask := uint8(hw) & 0xF
	if firstcond == 0xF {
		return nil, &gale.DecodeError{Kind: gale.DecodeUnpredictable, Encoding: uint32(hw)}
	}

	// Block length is determined by the lowest set mask bit.
	size := 0
	for i := 3; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			size = 4 - i
			break
		}
	}

	var ops []gale.Operation
	var conds []gale.Operand
	for i := 0; i < size; i++ {
		cond := firstcond
		if i > 0 {
			// Subsequent slots take the base condition with its low
			// bit replaced by the mask bit.
			cond = firstcond&0xE | (mask>>uint(4-i))&0x1
		}
		local := gale.Local(fmt.Sprintf("c%d", i))
		condOps, err := conditionOps(cond, local)
		if err != nil {
			return nil, err
		}
		ops = append(ops, condOps...)
		conds = append(conds, local)
	}
	ops = append(ops, gale.ConditionalExecution{Conditions: conds})
	return alu1(ops)
}

func (a *thumb) translateCondBranch(hw uint16, pc uint64) (*gale.Instruction, error) {
	cond := uint8(hw>>8) & 0xF
	switch cond {
	case 0xE: // UDF
		return nil, &gale.DecodeError{Kind: gale.DecodeInvalid, Encoding: uint32(hw), Detail: "permanently undefined"}
	case 0xF: // SVC
		return &gale.Instruction{
			Size:       2,
			Operations: []gale.Operation{gale.Abort{Message: "supervisor call"}},
			CycleCount: gale.FixedCycleCount(1),
		}, nil
	}

	offset := signExtend(uint32(hw&0xFF)<<1, 9)
	target := pc + 4 + uint64(int64(offset))
	c := gale.Local("c")
	ops, err := conditionOps(cond, c)
	if err != nil {
		return nil, err
	}
	ops = append(ops, gale.ConditionalJump{Condition: c, Destination: imm32(target)})
	return &gale.Instruction{Size: 2, Operations: ops, CycleCount: gale.FixedCycleCount(3)}, nil
}

// conditionOps emits operations computing the named condition code
// into dst from the current flags.
func conditionOps(cond uint8, dst gale.LocalOperand) ([]gale.Operation, error) {
	n, z, c, v := gale.Flag("N"), gale.Flag("Z"), gale.Flag("C"), gale.Flag("V")
	switch cond {
	case condEQ:
		return []gale.Operation{gale.Move{Dst: dst, Src: z}}, nil
	case condNE:
		return []gale.Operation{gale.Not{Dst: dst, Src: z}}, nil
	case condCS:
		return []gale.Operation{gale.Move{Dst: dst, Src: c}}, nil
	case condCC:
		return []gale.Operation{gale.Not{Dst: dst, Src: c}}, nil
	case condMI:
		return []gale.Operation{gale.Move{Dst: dst, Src: n}}, nil
	case condPL:
		return []gale.Operation{gale.Not{Dst: dst, Src: n}}, nil
	case condVS:
		return []gale.Operation{gale.Move{Dst: dst, Src: v}}, nil
	case condVC:
		return []gale.Operation{gale.Not{Dst: dst, Src: v}}, nil
	case condHI: // C && !Z
		return []gale.Operation{
			gale.Not{Dst: dst, Src: z},
			gale.And{Dst: dst, A: dst, B: c},
		}, nil
	case condLS: // !C || Z
		return []gale.Operation{
			gale.Not{Dst: dst, Src: c},
			gale.Or{Dst: dst, A: dst, B: z},
		}, nil
	case condGE: // N == V
		return []gale.Operation{
			gale.Xor{Dst: dst, A: n, B: v},
			gale.Not{Dst: dst, Src: dst},
		}, nil
	case condLT: // N != V
		return []gale.Operation{gale.Xor{Dst: dst, A: n, B: v}}, nil
	case condGT: // !Z && N == V
		nz := gale.Local("nz")
		return []gale.Operation{
			gale.Xor{Dst: dst, A: n, B: v},
			gale.Not{Dst: dst, Src: dst},
			gale.Not{Dst: nz, Src: z},
			gale.And{Dst: dst, A: dst, B: nz},
		}, nil
	case condLE: // Z || N != V
		return []gale.Operation{
			gale.Xor{Dst: dst, A: n, B: v},
			gale.Or{Dst: dst, A: dst, B: z},
		}, nil
	case condAL:
		return []gale.Operation{gale.Move{Dst: dst, Src: gale.Imm(1, 1)}}, nil
	default:
		return nil, &gale.DecodeError{Kind: gale.DecodeBadField, Detail: "condition code"}
	}
}

// signExtend interprets the low bits of v as a signed bits-wide value.
func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
