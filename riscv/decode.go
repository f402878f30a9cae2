package riscv

import (
	"encoding/binary"

	"github.com/galecode/gale"
)

// Base opcodes.
const (
	opLUI    = 0x37
	opAUIPC  = 0x17
	opJAL    = 0x6F
	opJALR   = 0x67
	opBranch = 0x63
	opLoad   = 0x03
	opStore  = 0x23
	opOpImm  = 0x13
	opOp     = 0x33
	opFence  = 0x0F
	opSystem = 0x73
)

// Translate decodes the RV32I instruction at the start of data.
func (a *rv32i) Translate(data []byte, state *gale.GAState) (*gale.Instruction, error) {
	if len(data) < 4 {
		return nil, &gale.DecodeError{Kind: gale.DecodeInsufficientInput}
	}
	v := binary.LittleEndian.Uint32(data)

	// The two low bits are always set in the base encoding; anything
	// else is a compressed instruction, which RV32I does not include.
	if v&0x3 != 0x3 {
		return nil, &gale.DecodeError{Kind: gale.DecodeInvalid, Encoding: v, Detail: "compressed encoding"}
	}

	pc := state.PC()
	switch v & 0x7F {
	case opLUI:
		return alu(gale.Move{Dst: rd(v), Src: imm32(uint64(v & 0xFFFFF000))}), nil
	case opAUIPC:
		return alu(gale.Move{Dst: rd(v), Src: imm32(pc + uint64(int64(int32(v&0xFFFFF000))))}), nil
	case opJAL:
		return a.translateJAL(v, pc)
	case opJALR:
		return a.translateJALR(v, pc)
	case opBranch:
		return a.translateBranch(v, pc)
	case opLoad:
		return a.translateLoad(v)
	case opStore:
		return a.translateStore(v)
	case opOpImm:
		return a.translateOpImm(v)
	case opOp:
		return a.translateOp(v)
	case opFence:
		return alu(gale.Nop{}), nil
	case opSystem:
		switch v >> 20 {
		case 0:
			return &gale.Instruction{
				Size:       4,
				Operations: []gale.Operation{gale.Abort{Message: "environment call"}},
				CycleCount: gale.FixedCycleCount(1),
			}, nil
		case 1:
			return &gale.Instruction{
				Size:       4,
				Operations: []gale.Operation{gale.Abort{Message: "breakpoint"}},
				CycleCount: gale.FixedCycleCount(1),
			}, nil
		}
		return nil, &gale.DecodeError{Kind: gale.DecodeMalformed, Encoding: v, Detail: "system"}
	}
	return nil, &gale.DecodeError{Kind: gale.DecodeMalformed, Encoding: v}
}

func rd(v uint32) gale.RegisterOperand  { return gale.Reg(registerNames[(v>>7)&0x1F]) }
func rs1(v uint32) gale.RegisterOperand { return gale.Reg(registerNames[(v>>15)&0x1F]) }
func rs2(v uint32) gale.RegisterOperand { return gale.Reg(registerNames[(v>>20)&0x1F]) }

func imm32(v uint64) gale.ImmediateOperand { return gale.Imm(v&0xFFFFFFFF, 32) }

// immI is the sign-extended 12-bit I-type immediate.
func immI(v uint32) int32 { return int32(v) >> 20 }

// immS is the sign-extended 12-bit S-type immediate.
func immS(v uint32) int32 {
	return int32(v&0xFE000000)>>20 | int32((v>>7)&0x1F)
}

// immB is the sign-extended 13-bit B-type immediate.
func immB(v uint32) int32 {
	return int32(v&0x80000000)>>19 |
		int32(v<<4)&0x800 |
		int32(v>>20)&0x7E0 |
		int32(v>>7)&0x1E
}

// immJ is the sign-extended 21-bit J-type immediate.
func immJ(v uint32) int32 {
	return int32(v&0x80000000)>>11 |
		int32(v)&0xFF000 |
		int32(v>>9)&0x800 |
		int32(v>>20)&0x7FE
}

func alu(ops ...gale.Operation) *gale.Instruction {
	return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(1)}
}

// jump builds an unconditional transfer of control.
func jump(dest gale.Operand) gale.Operation {
	return gale.ConditionalJump{Condition: gale.Imm(1, 1), Destination: dest}
}

func (a *rv32i) translateJAL(v uint32, pc uint64) (*gale.Instruction, error) {
	target := pc + uint64(int64(immJ(v)))
	return &gale.Instruction{
		Size: 4,
		Operations: []gale.Operation{
			gale.Move{Dst: rd(v), Src: imm32(pc + 4)},
			jump(imm32(target)),
		},
		CycleCount: gale.FixedCycleCount(3),
	}, nil
}

func (a *rv32i) translateJALR(v uint32, pc uint64) (*gale.Instruction, error) {
	if (v>>12)&0x7 != 0 {
		return nil, &gale.DecodeError{Kind: gale.DecodeMalformed, Encoding: v, Detail: "jalr funct3"}
	}
	t := gale.Local("dest")
	return &gale.Instruction{
		Size: 4,
		Operations: []gale.Operation{
			gale.Add{Dst: t, A: rs1(v), B: imm32(uint64(int64(immI(v))))},
			gale.And{Dst: t, A: t, B: imm32(0xFFFFFFFE)},
			gale.Move{Dst: rd(v), Src: imm32(pc + 4)},
			jump(t),
		},
		CycleCount: gale.FixedCycleCount(3),
	}, nil
}

// signedLess emits operations computing (a < b) signed into dst: the
// sign of the difference differs from the true result exactly when the
// subtraction overflows.
func signedLess(dst gale.LocalOperand, a, b gale.Operand) []gale.Operation {
	d, x1, x2 := gale.Local("d"), gale.Local("x1"), gale.Local("x2")
	return []gale.Operation{
		gale.Sub{Dst: d, A: a, B: b},
		gale.Xor{Dst: x1, A: a, B: b},
		gale.Xor{Dst: x2, A: a, B: d},
		gale.And{Dst: x1, A: x1, B: x2},
		gale.Xor{Dst: x1, A: x1, B: d},
		gale.ExtractBits{Dst: dst, Src: x1, Offset: 31, Width: 1},
	}
}

// unsignedLess emits operations computing (a < b) unsigned into dst.
func unsignedLess(dst gale.LocalOperand, a, b gale.Operand) []gale.Operation {
	d, na, x1, x2 := gale.Local("d"), gale.Local("na"), gale.Local("x1"), gale.Local("x2")
	return []gale.Operation{
		gale.Sub{Dst: d, A: a, B: b},
		gale.Not{Dst: na, Src: a},
		gale.And{Dst: x1, A: na, B: b},
		gale.Or{Dst: x2, A: na, B: b},
		gale.And{Dst: x2, A: x2, B: d},
		gale.Or{Dst: x1, A: x1, B: x2},
		gale.ExtractBits{Dst: dst, Src: x1, Offset: 31, Width: 1},
	}
}

func (a *rv32i) translateBranch(v uint32, pc uint64) (*gale.Instruction, error) {
	target := imm32(pc + uint64(int64(immB(v))))
	s1, s2 := rs1(v), rs2(v)
	c := gale.Local("c")

	var ops []gale.Operation
	switch (v >> 12) & 0x7 {
	case 0x0: // BEQ: branch when the difference is zero
		ops = append(ops,
			gale.Xor{Dst: c, A: s1, B: s2},
			gale.Ite{Condition: c, Else: []gale.Operation{jump(target)}},
		)
	case 0x1: // BNE
		ops = append(ops,
			gale.Xor{Dst: c, A: s1, B: s2},
			gale.ConditionalJump{Condition: c, Destination: target},
		)
	case 0x4: // BLT
		ops = append(signedLess(c, s1, s2),
			gale.ConditionalJump{Condition: c, Destination: target})
	case 0x5: // BGE
		ops = append(signedLess(c, s1, s2),
			gale.Not{Dst: c, Src: c},
			gale.ConditionalJump{Condition: c, Destination: target})
	case 0x6: // BLTU
		ops = append(unsignedLess(c, s1, s2),
			gale.ConditionalJump{Condition: c, Destination: target})
	case 0x7: // BGEU
		ops = append(unsignedLess(c, s1, s2),
			gale.Not{Dst: c, Src: c},
			gale.ConditionalJump{Condition: c, Destination: target})
	default:
		return nil, &gale.DecodeError{Kind: gale.DecodeMalformed, Encoding: v, Detail: "branch funct3"}
	}
	return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(3)}, nil
}

func (a *rv32i) translateLoad(v uint32) (*gale.Instruction, error) {
	t := rd(v)
	addr := gale.Local("addr")
	ops := []gale.Operation{
		gale.Add{Dst: addr, A: rs1(v), B: imm32(uint64(int64(immI(v))))},
	}

	load := func(width uint, signed bool) []gale.Operation {
		if width == 32 {
			return append(ops, gale.Move{Dst: t, Src: gale.Addr(addr, 32)})
		}
		val := gale.Local("v")
		ops = append(ops, gale.Move{Dst: val, Src: gale.Addr(addr, width)})
		if signed {
			return append(ops, gale.SignExtend{Dst: t, Src: val, Bits: 32})
		}
		return append(ops, gale.ZeroExtend{Dst: t, Src: val, Bits: 32})
	}

	switch (v >> 12) & 0x7 {
	case 0x0: // LB
		ops = load(8, true)
	case 0x1: // LH
		ops = load(16, true)
	case 0x2: // LW
		ops = load(32, false)
	case 0x4: // LBU
		ops = load(8, false)
	case 0x5: // LHU
		ops = load(16, false)
	default:
		return nil, &gale.DecodeError{Kind: gale.DecodeMalformed, Encoding: v, Detail: "load funct3"}
	}
	return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(2), MemoryAccess: true}, nil
}

func (a *rv32i) translateStore(v uint32) (*gale.Instruction, error) {
	addr := gale.Local("addr")
	ops := []gale.Operation{
		gale.Add{Dst: addr, A: rs1(v), B: imm32(uint64(int64(immS(v))))},
	}

	store := func(width uint) []gale.Operation {
		if width == 32 {
			return append(ops, gale.Move{Dst: gale.Addr(addr, 32), Src: rs2(v)})
		}
		val := gale.Local("v")
		return append(ops,
			gale.ExtractBits{Dst: val, Src: rs2(v), Offset: 0, Width: width},
			gale.Move{Dst: gale.Addr(addr, width), Src: val},
		)
	}

	switch (v >> 12) & 0x7 {
	case 0x0: // SB
		ops = store(8)
	case 0x1: // SH
		ops = store(16)
	case 0x2: // SW
		ops = store(32)
	default:
		return nil, &gale.DecodeError{Kind: gale.DecodeMalformed, Encoding: v, Detail: "store funct3"}
	}
	return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(2), MemoryAccess: true}, nil
}

func (a *rv32i) translateOpImm(v uint32) (*gale.Instruction, error) {
	d, s1 := rd(v), rs1(v)
	imm := imm32(uint64(int64(immI(v))))
	shamt := imm32(uint64((v >> 20) & 0x1F))
	c := gale.Local("c")

	switch (v >> 12) & 0x7 {
	case 0x0: // ADDI
		return alu(gale.Add{Dst: d, A: s1, B: imm}), nil
	case 0x1: // SLLI
		if v>>25 != 0 {
			return nil, &gale.DecodeError{Kind: gale.DecodeInvalid, Encoding: v, Detail: "slli funct7"}
		}
		return alu(gale.Sl{Dst: d, Src: s1, Shift: shamt}), nil
	case 0x2: // SLTI
		ops := append(signedLess(c, s1, imm), gale.ZeroExtend{Dst: d, Src: c, Bits: 32})
		return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(1)}, nil
	case 0x3: // SLTIU
		ops := append(unsignedLess(c, s1, imm), gale.ZeroExtend{Dst: d, Src: c, Bits: 32})
		return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(1)}, nil
	case 0x4: // XORI
		return alu(gale.Xor{Dst: d, A: s1, B: imm}), nil
	case 0x5: // SRLI, SRAI
		switch v >> 25 {
		case 0x00:
			return alu(gale.Srl{Dst: d, Src: s1, Shift: shamt}), nil
		case 0x20:
			return alu(gale.Sra{Dst: d, Src: s1, Shift: shamt}), nil
		}
		return nil, &gale.DecodeError{Kind: gale.DecodeInvalid, Encoding: v, Detail: "shift funct7"}
	case 0x6: // ORI
		return alu(gale.Or{Dst: d, A: s1, B: imm}), nil
	default: // ANDI
		return alu(gale.And{Dst: d, A: s1, B: imm}), nil
	}
}

func (a *rv32i) translateOp(v uint32) (*gale.Instruction, error) {
	d, s1, s2 := rd(v), rs1(v), rs2(v)
	funct3 := (v >> 12) & 0x7
	funct7 := v >> 25
	c := gale.Local("c")

	// Register shift amounts take the low five bits.
	shiftAmount := func() (gale.Operand, []gale.Operation) {
		s5, s := gale.Local("s5"), gale.Local("s")
		return s, []gale.Operation{
			gale.ExtractBits{Dst: s5, Src: s2, Offset: 0, Width: 5},
			gale.ZeroExtend{Dst: s, Src: s5, Bits: 32},
		}
	}

	switch {
	case funct3 == 0x0 && funct7 == 0x00: // ADD
		return alu(gale.Add{Dst: d, A: s1, B: s2}), nil
	case funct3 == 0x0 && funct7 == 0x20: // SUB
		return alu(gale.Sub{Dst: d, A: s1, B: s2}), nil
	case funct3 == 0x1 && funct7 == 0x00: // SLL
		s, ops := shiftAmount()
		ops = append(ops, gale.Sl{Dst: d, Src: s1, Shift: s})
		return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(1)}, nil
	case funct3 == 0x2 && funct7 == 0x00: // SLT
		ops := append(signedLess(c, s1, s2), gale.ZeroExtend{Dst: d, Src: c, Bits: 32})
		return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(1)}, nil
	case funct3 == 0x3 && funct7 == 0x00: // SLTU
		ops := append(unsignedLess(c, s1, s2), gale.ZeroExtend{Dst: d, Src: c, Bits: 32})
		return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(1)}, nil
	case funct3 == 0x4 && funct7 == 0x00: // XOR
		return alu(gale.Xor{Dst: d, A: s1, B: s2}), nil
	case funct3 == 0x5 && funct7 == 0x00: // SRL
		s, ops := shiftAmount()
		ops = append(ops, gale.Srl{Dst: d, Src: s1, Shift: s})
		return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(1)}, nil
	case funct3 == 0x5 && funct7 == 0x20: // SRA
		s, ops := shiftAmount()
		ops = append(ops, gale.Sra{Dst: d, Src: s1, Shift: s})
		return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(1)}, nil
	case funct3 == 0x6 && funct7 == 0x00: // OR
		return alu(gale.Or{Dst: d, A: s1, B: s2}), nil
	case funct3 == 0x7 && funct7 == 0x00: // AND
		return alu(gale.And{Dst: d, A: s1, B: s2}), nil
	}
	return nil, &gale.DecodeError{Kind: gale.DecodeMalformed, Encoding: v}
}
