package arm

import (
	"github.com/galecode/gale"
)

// translate32 decodes a two-halfword encoding. ARMv6-M only encodes BL
// this way; ARMv7E-M adds the wide data processing space, of which the
// divide and saturating add encodings are implemented.
func (a *thumb) translate32(hw1, hw2 uint16, state *gale.GAState) (*gale.Instruction, error) {
	enc := uint32(hw1)<<16 | uint32(hw2)

	// BL: 11110 S imm10 / 11 J1 1 J2 imm11
	if hw1&0xF800 == 0xF000 && hw2&0xD000 == 0xD000 {
		return a.translateBL(hw1, hw2, state.PC())
	}
	if !a.wide {
		return nil, &gale.DecodeError{Kind: gale.DecodeInvalid, Encoding: enc, Detail: "wide encoding requires ARMv7E-M"}
	}

	switch {
	case hw1&0xFFF0 == 0xFBB0 && hw2&0xF0F0 == 0xF0F0: // UDIV
		return a.translateDivide(hw1, hw2, enc, false)
	case hw1&0xFFF0 == 0xFB90 && hw2&0xF0F0 == 0xF0F0: // SDIV
		return a.translateDivide(hw1, hw2, enc, true)
	case hw1&0xFFF0 == 0xFA80 && hw2&0xF0F0 == 0xF080: // QADD
		return a.translateQAdd(hw1, hw2, enc)
	}
	return nil, &gale.DecodeError{Kind: gale.DecodeMalformed, Encoding: enc}
}

func (a *thumb) translateBL(hw1, hw2 uint16, pc uint64) (*gale.Instruction, error) {
	s := uint32(hw1>>10) & 1
	j1 := uint32(hw2>>13) & 1
	j2 := uint32(hw2>>11) & 1
	i1 := 1 &^ (j1 ^ s)
	i2 := 1 &^ (j2 ^ s)

	imm := s<<24 | i1<<23 | i2<<22 | uint32(hw1&0x3FF)<<12 | uint32(hw2&0x7FF)<<1
	offset := signExtend(imm, 25)
	target := pc + 4 + uint64(int64(offset))

	return &gale.Instruction{
		Size: 4,
		Operations: []gale.Operation{
			// Return address marks the Thumb state in bit zero.
			gale.Move{Dst: gale.Reg("lr"), Src: imm32(pc + 5)},
			jump(imm32(target)),
		},
		CycleCount: gale.FixedCycleCount(4),
	}, nil
}

// wreg validates a wide-encoding register field: sp and pc are not
// permitted operands here.
func wreg(n uint16, enc uint32) (gale.RegisterOperand, error) {
	n &= 0xF
	if n == 13 || n == 15 {
		return gale.RegisterOperand{}, &gale.DecodeError{Kind: gale.DecodeBadField, Encoding: enc, Detail: "register"}
	}
	return gale.Reg(registerNames[n]), nil
}

// translateDivide emits a division with the M-profile zero-divisor
// behavior: the quotient is zero when the divisor is zero.
func (a *thumb) translateDivide(hw1, hw2 uint16, enc uint32, signed bool) (*gale.Instruction, error) {
	n, err := wreg(hw1, enc)
	if err != nil {
		return nil, err
	}
	d, err := wreg(hw2>>8, enc)
	if err != nil {
		return nil, err
	}
	m, err := wreg(hw2, enc)
	if err != nil {
		return nil, err
	}

	var div gale.Operation
	if signed {
		div = gale.SDiv{Dst: d, A: n, B: m}
	} else {
		div = gale.UDiv{Dst: d, A: n, B: m}
	}
	ops := []gale.Operation{
		gale.Ite{
			Condition: m,
			Then:      []gale.Operation{div},
			Else:      []gale.Operation{gale.Move{Dst: d, Src: imm32(0)}},
		},
	}
	return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(12)}, nil
}

func (a *thumb) translateQAdd(hw1, hw2 uint16, enc uint32) (*gale.Instruction, error) {
	n, err := wreg(hw1, enc)
	if err != nil {
		return nil, err
	}
	d, err := wreg(hw2>>8, enc)
	if err != nil {
		return nil, err
	}
	m, err := wreg(hw2, enc)
	if err != nil {
		return nil, err
	}
	ops := []gale.Operation{gale.SAddSat{Dst: d, A: m, B: n}}
	return &gale.Instruction{Size: 4, Operations: ops, CycleCount: gale.FixedCycleCount(1)}, nil
}
