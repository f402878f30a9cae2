package riscv_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/galecode/gale"
	"github.com/galecode/gale/riscv"
)

func decodeState(tb testing.TB, arch gale.Arch, pc uint64) *gale.GAState {
	tb.Helper()
	project := gale.NewProjectFromSegments(arch, true, &gale.Segment{Addr: 0x8000, Data: make([]byte, 64)})
	state := gale.NewGAState(project, gale.NewHookContainer(), nil, nil)
	state.SetPCConst(pc)
	return state
}

func decode(tb testing.TB, pc uint64, v uint32) *gale.Instruction {
	tb.Helper()
	arch := riscv.NewRV32I()
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], v)
	instr, err := arch.Translate(data[:], decodeState(tb, arch, pc))
	if err != nil {
		tb.Fatalf("decode %#08x: %s", v, err)
	}
	return instr
}

func TestRV32I_OpImm(t *testing.T) {
	t.Run("ADDI", func(t *testing.T) {
		// addi x1, x0, 5
		instr := decode(t, 0x8000, 0x00500093)
		if instr.Size != 4 {
			t.Fatalf("size=%d, expected 4", instr.Size)
		}
		want := []gale.Operation{
			gale.Add{Dst: gale.Reg("x1"), A: gale.Reg("x0"), B: gale.Imm(5, 32)},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ADDINegative", func(t *testing.T) {
		// addi x1, x0, -1
		instr := decode(t, 0x8000, 0xFFF00093)
		want := []gale.Operation{
			gale.Add{Dst: gale.Reg("x1"), A: gale.Reg("x0"), B: gale.Imm(0xFFFFFFFF, 32)},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("SLLI", func(t *testing.T) {
		// slli x1, x1, 3
		instr := decode(t, 0x8000, 0x00309093)
		want := []gale.Operation{
			gale.Sl{Dst: gale.Reg("x1"), Src: gale.Reg("x1"), Shift: gale.Imm(3, 32)},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestRV32I_LUI(t *testing.T) {
	// lui x5, 0x12345
	instr := decode(t, 0x8000, 0x123452B7)
	want := []gale.Operation{
		gale.Move{Dst: gale.Reg("x5"), Src: gale.Imm(0x12345000, 32)},
	}
	if diff := cmp.Diff(want, instr.Operations); diff != "" {
		t.Fatal(diff)
	}
}

func TestRV32I_JAL(t *testing.T) {
	// jal x1, .+8
	instr := decode(t, 0x8000, 0x008000EF)
	want := []gale.Operation{
		gale.Move{Dst: gale.Reg("x1"), Src: gale.Imm(0x8004, 32)},
		gale.ConditionalJump{Condition: gale.Imm(1, 1), Destination: gale.Imm(0x8008, 32)},
	}
	if diff := cmp.Diff(want, instr.Operations); diff != "" {
		t.Fatal(diff)
	}
}

func TestRV32I_Branch(t *testing.T) {
	t.Run("BNE", func(t *testing.T) {
		// bne x1, x2, .+8
		instr := decode(t, 0x8000, 0x00209463)
		want := []gale.Operation{
			gale.Xor{Dst: gale.Local("c"), A: gale.Reg("x1"), B: gale.Reg("x2")},
			gale.ConditionalJump{Condition: gale.Local("c"), Destination: gale.Imm(0x8008, 32)},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("BEQ", func(t *testing.T) {
		// beq x1, x2, .+8: the branch fires when the difference is zero.
		instr := decode(t, 0x8000, 0x00208463)
		want := []gale.Operation{
			gale.Xor{Dst: gale.Local("c"), A: gale.Reg("x1"), B: gale.Reg("x2")},
			gale.Ite{
				Condition: gale.Local("c"),
				Else: []gale.Operation{
					gale.ConditionalJump{Condition: gale.Imm(1, 1), Destination: gale.Imm(0x8008, 32)},
				},
			},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestRV32I_LoadStore(t *testing.T) {
	t.Run("LW", func(t *testing.T) {
		// lw x3, 4(x2)
		instr := decode(t, 0x8000, 0x00412183)
		if !instr.MemoryAccess {
			t.Fatal("load must be marked as a memory access")
		}
		want := []gale.Operation{
			gale.Add{Dst: gale.Local("addr"), A: gale.Reg("x2"), B: gale.Imm(4, 32)},
			gale.Move{Dst: gale.Reg("x3"), Src: gale.Addr(gale.Local("addr"), 32)},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("LB", func(t *testing.T) {
		// lb x3, 0(x2)
		instr := decode(t, 0x8000, 0x00010183)
		want := []gale.Operation{
			gale.Add{Dst: gale.Local("addr"), A: gale.Reg("x2"), B: gale.Imm(0, 32)},
			gale.Move{Dst: gale.Local("v"), Src: gale.Addr(gale.Local("addr"), 8)},
			gale.SignExtend{Dst: gale.Reg("x3"), Src: gale.Local("v"), Bits: 32},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("SW", func(t *testing.T) {
		// sw x3, 8(x2)
		instr := decode(t, 0x8000, 0x00312423)
		if !instr.MemoryAccess {
			t.Fatal("store must be marked as a memory access")
		}
		want := []gale.Operation{
			gale.Add{Dst: gale.Local("addr"), A: gale.Reg("x2"), B: gale.Imm(8, 32)},
			gale.Move{Dst: gale.Addr(gale.Local("addr"), 32), Src: gale.Reg("x3")},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestRV32I_System(t *testing.T) {
	t.Run("ECALL", func(t *testing.T) {
		instr := decode(t, 0x8000, 0x00000073)
		want := []gale.Operation{gale.Abort{Message: "environment call"}}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("EBREAK", func(t *testing.T) {
		instr := decode(t, 0x8000, 0x00100073)
		want := []gale.Operation{gale.Abort{Message: "breakpoint"}}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestRV32I_DecodeErrors(t *testing.T) {
	arch := riscv.NewRV32I()

	t.Run("Insufficient", func(t *testing.T) {
		_, err := arch.Translate([]byte{0x93, 0x00}, decodeState(t, arch, 0x8000))
		var derr *gale.DecodeError
		if !errors.As(err, &derr) || derr.Kind != gale.DecodeInsufficientInput {
			t.Fatalf("expected insufficient input, got %v", err)
		}
	})

	t.Run("CompressedRejected", func(t *testing.T) {
		_, err := arch.Translate([]byte{0x01, 0x00, 0x00, 0x00}, decodeState(t, arch, 0x8000))
		var derr *gale.DecodeError
		if !errors.As(err, &derr) || derr.Kind != gale.DecodeInvalid {
			t.Fatalf("expected invalid encoding, got %v", err)
		}
	})

	t.Run("BadShiftFunct7", func(t *testing.T) {
		// slli with a nonzero funct7
		_, err := arch.Translate([]byte{0x93, 0x10, 0x00, 0x02}, decodeState(t, arch, 0x8000))
		var derr *gale.DecodeError
		if !errors.As(err, &derr) || derr.Kind != gale.DecodeInvalid {
			t.Fatalf("expected invalid encoding, got %v", err)
		}
	})
}
