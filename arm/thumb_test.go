package arm_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/galecode/gale"
	"github.com/galecode/gale/arm"
)

func decodeState(tb testing.TB, arch gale.Arch, pc uint64) *gale.GAState {
	tb.Helper()
	project := gale.NewProjectFromSegments(arch, true, &gale.Segment{Addr: 0x8000, Data: make([]byte, 64)})
	state := gale.NewGAState(project, gale.NewHookContainer(), nil, nil)
	state.SetPCConst(pc)
	return state
}

func decode(tb testing.TB, arch gale.Arch, pc uint64, data ...byte) *gale.Instruction {
	tb.Helper()
	instr, err := arch.Translate(data, decodeState(tb, arch, pc))
	if err != nil {
		tb.Fatalf("decode % x: %s", data, err)
	}
	return instr
}

func TestThumb_MOVS(t *testing.T) {
	arch := arm.NewArmv6M()

	// MOVS r0, #5
	instr := decode(t, arch, 0x8000, 0x05, 0x20)
	if instr.Size != 2 {
		t.Fatalf("size=%d, expected 2", instr.Size)
	}
	want := []gale.Operation{
		gale.Move{Dst: gale.Reg("r0"), Src: gale.Imm(5, 32)},
		gale.SetNFlag{Src: gale.Imm(5, 32)},
		gale.SetZFlag{Src: gale.Imm(5, 32)},
	}
	if diff := cmp.Diff(want, instr.Operations); diff != "" {
		t.Fatal(diff)
	}
}

// Flag updates are suppressed while executing inside an IT block.
func TestThumb_MOVInITBlock(t *testing.T) {
	arch := arm.NewArmv7EM()
	state := decodeState(t, arch, 0x8000)
	state.SetConditionalBlock([]gale.Expr{gale.NewBoolConstantExpr(true)})

	instr, err := arch.Translate([]byte{0x05, 0x20}, state)
	if err != nil {
		t.Fatal(err)
	}
	want := []gale.Operation{
		gale.Move{Dst: gale.Reg("r0"), Src: gale.Imm(5, 32)},
	}
	if diff := cmp.Diff(want, instr.Operations); diff != "" {
		t.Fatal(diff)
	}
}

func TestThumb_ADDS(t *testing.T) {
	arch := arm.NewArmv6M()

	// ADDS r0, r1, r2
	instr := decode(t, arch, 0x8000, 0x88, 0x18)
	want := []gale.Operation{
		gale.Add{Dst: gale.Local("t"), A: gale.Reg("r1"), B: gale.Reg("r2")},
		gale.SetCFlag{A: gale.Reg("r1"), B: gale.Reg("r2")},
		gale.SetVFlag{A: gale.Reg("r1"), B: gale.Reg("r2")},
		gale.SetNFlag{Src: gale.Local("t")},
		gale.SetZFlag{Src: gale.Local("t")},
		gale.Move{Dst: gale.Reg("r0"), Src: gale.Local("t")},
	}
	if diff := cmp.Diff(want, instr.Operations); diff != "" {
		t.Fatal(diff)
	}
}

func TestThumb_LSLS(t *testing.T) {
	arch := arm.NewArmv6M()

	// LSLS r0, r1, #2
	instr := decode(t, arch, 0x8000, 0x88, 0x00)
	want := []gale.Operation{
		gale.SetCFlagShiftLeft{Value: gale.Reg("r1"), Shift: gale.Imm(2, 32)},
		gale.Sl{Dst: gale.Reg("r0"), Src: gale.Reg("r1"), Shift: gale.Imm(2, 32)},
		gale.SetNFlag{Src: gale.Reg("r0")},
		gale.SetZFlag{Src: gale.Reg("r0")},
	}
	if diff := cmp.Diff(want, instr.Operations); diff != "" {
		t.Fatal(diff)
	}
}

func TestThumb_Branch(t *testing.T) {
	arch := arm.NewArmv6M()

	t.Run("Unconditional", func(t *testing.T) {
		// B . (branch to self)
		instr := decode(t, arch, 0x8000, 0xFE, 0xE7)
		want := []gale.Operation{
			gale.ConditionalJump{Condition: gale.Imm(1, 1), Destination: gale.Imm(0x8000, 32)},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
		state := decodeState(t, arch, 0x8000)
		if got := instr.CycleCount.Count(state); got != 3 {
			t.Fatalf("cycles=%d, expected 3", got)
		}
	})

	t.Run("BNE", func(t *testing.T) {
		// BNE .+6
		instr := decode(t, arch, 0x8000, 0x01, 0xD1)
		want := []gale.Operation{
			gale.Not{Dst: gale.Local("c"), Src: gale.Flag("Z")},
			gale.ConditionalJump{Condition: gale.Local("c"), Destination: gale.Imm(0x8006, 32)},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("BL", func(t *testing.T) {
		// BL .+12
		instr := decode(t, arch, 0x8000, 0x00, 0xF0, 0x04, 0xF8)
		if instr.Size != 4 {
			t.Fatalf("size=%d, expected 4", instr.Size)
		}
		want := []gale.Operation{
			gale.Move{Dst: gale.Reg("lr"), Src: gale.Imm(0x8005, 32)},
			gale.ConditionalJump{Condition: gale.Imm(1, 1), Destination: gale.Imm(0x800C, 32)},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestThumb_PUSH(t *testing.T) {
	arch := arm.NewArmv6M()

	// PUSH {r0, lr}
	instr := decode(t, arch, 0x8000, 0x01, 0xB5)
	if !instr.MemoryAccess {
		t.Fatal("push must be marked as a memory access")
	}
	want := []gale.Operation{
		gale.Sub{Dst: gale.Local("slot"), A: gale.Reg("sp"), B: gale.Imm(8, 32)},
		gale.Move{Dst: gale.Addr(gale.Local("slot"), 32), Src: gale.Reg("r0")},
		gale.Sub{Dst: gale.Local("slot"), A: gale.Reg("sp"), B: gale.Imm(4, 32)},
		gale.Move{Dst: gale.Addr(gale.Local("slot"), 32), Src: gale.Reg("lr")},
		gale.Sub{Dst: gale.Reg("sp"), A: gale.Reg("sp"), B: gale.Imm(8, 32)},
	}
	if diff := cmp.Diff(want, instr.Operations); diff != "" {
		t.Fatal(diff)
	}
}

func TestThumb_IT(t *testing.T) {
	// IT EQ
	data := []byte{0x08, 0xBF}

	t.Run("V7EM", func(t *testing.T) {
		arch := arm.NewArmv7EM()
		instr := decode(t, arch, 0x8000, data...)
		want := []gale.Operation{
			gale.Move{Dst: gale.Local("c0"), Src: gale.Flag("Z")},
			gale.ConditionalExecution{Conditions: []gale.Operand{gale.Local("c0")}},
		}
		if diff := cmp.Diff(want, instr.Operations); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("RejectedOnV6M", func(t *testing.T) {
		arch := arm.NewArmv6M()
		_, err := arch.Translate(data, decodeState(t, arch, 0x8000))
		var derr *gale.DecodeError
		if !errors.As(err, &derr) {
			t.Fatalf("expected DecodeError, got %v", err)
		} else if derr.Kind != gale.DecodeInvalid {
			t.Fatalf("kind=%s, expected invalid encoding", derr.Kind)
		}
	})
}

func TestThumb_WideEncodings(t *testing.T) {
	// UDIV r0, r1, r2
	data := []byte{0xB1, 0xFB, 0xF2, 0xF0}

	t.Run("UDIVOnV7EM", func(t *testing.T) {
		arch := arm.NewArmv7EM()
		instr := decode(t, arch, 0x8000, data...)
		if instr.Size != 4 {
			t.Fatalf("size=%d, expected 4", instr.Size)
		}
	})

	t.Run("RejectedOnV6M", func(t *testing.T) {
		arch := arm.NewArmv6M()
		_, err := arch.Translate(data, decodeState(t, arch, 0x8000))
		var derr *gale.DecodeError
		if !errors.As(err, &derr) {
			t.Fatalf("expected DecodeError, got %v", err)
		} else if derr.Kind != gale.DecodeInvalid {
			t.Fatalf("kind=%s, expected invalid encoding", derr.Kind)
		}
	})
}

func TestThumb_DecodeErrors(t *testing.T) {
	arch := arm.NewArmv6M()

	t.Run("Empty", func(t *testing.T) {
		_, err := arch.Translate(nil, decodeState(t, arch, 0x8000))
		var derr *gale.DecodeError
		if !errors.As(err, &derr) || derr.Kind != gale.DecodeInsufficientInput {
			t.Fatalf("expected insufficient input, got %v", err)
		}
	})

	t.Run("TruncatedWide", func(t *testing.T) {
		_, err := arch.Translate([]byte{0x00, 0xF0}, decodeState(t, arch, 0x8000))
		var derr *gale.DecodeError
		if !errors.As(err, &derr) || derr.Kind != gale.DecodeInsufficientInput {
			t.Fatalf("expected insufficient input, got %v", err)
		}
	})

	t.Run("UDF", func(t *testing.T) {
		_, err := arch.Translate([]byte{0x00, 0xDE}, decodeState(t, arch, 0x8000))
		var derr *gale.DecodeError
		if !errors.As(err, &derr) || derr.Kind != gale.DecodeInvalid {
			t.Fatalf("expected invalid encoding, got %v", err)
		}
	})

	t.Run("EmptyPushList", func(t *testing.T) {
		_, err := arch.Translate([]byte{0x00, 0xB4}, decodeState(t, arch, 0x8000))
		var derr *gale.DecodeError
		if !errors.As(err, &derr) || derr.Kind != gale.DecodeUnpredictable {
			t.Fatalf("expected unpredictable encoding, got %v", err)
		}
	})
}
