package gale_test

import (
	"testing"

	"github.com/galecode/gale"
)

func TestOperation_String(t *testing.T) {
	for _, tt := range []struct {
		op   gale.Operation
		want string
	}{
		{gale.Nop{}, "nop"},
		{gale.Move{Dst: gale.Reg("r0"), Src: gale.Imm(42, 32)}, "move r0, #42:32"},
		{gale.Add{Dst: gale.Reg("r0"), A: gale.Reg("r1"), B: gale.Local("t")}, "add r0, r1, %t"},
		{gale.Sub{Dst: gale.Local("t"), A: gale.Reg("sp"), B: gale.Imm(4, 32)}, "sub %t, sp, #4:32"},
		{gale.Move{Dst: gale.Addr(gale.Local("addr"), 32), Src: gale.Reg("r2")}, "move [%addr]:32, r2"},
		{gale.Sl{Dst: gale.Reg("r0"), Src: gale.Reg("r0"), Shift: gale.Imm(3, 32)}, "sl r0, r0, #3:32"},
		{gale.ZeroExtend{Dst: gale.Reg("r0"), Src: gale.Local("v"), Bits: 32}, "zext r0, %v, 32"},
		{gale.SetNFlag{Src: gale.Reg("r0")}, "set-n r0"},
		{gale.SetCFlag{A: gale.Reg("r0"), B: gale.Reg("r1"), Sub: true}, "set-c r0, r1, sub=true, carry=false"},
		{gale.Move{Dst: gale.Local("c"), Src: gale.Flag("Z")}, "move %c, $Z"},
		{gale.ConditionalJump{Condition: gale.Local("c"), Destination: gale.Imm(0x1800, 32)}, "jump %c ? #6144:32"},
		{gale.Abort{Message: "boom"}, `abort "boom"`},
	} {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("String()=%q, expected %q", got, tt.want)
		}
	}
}

func TestCycleCount(t *testing.T) {
	state := newTestState(t, nil)

	t.Run("Fixed", func(t *testing.T) {
		if got := gale.FixedCycleCount(3).Count(state); got != 3 {
			t.Fatalf("count=%d, expected 3", got)
		}
	})

	t.Run("Dynamic", func(t *testing.T) {
		c := gale.DynamicCycleCount(func(s *gale.GAState) int {
			return 1 + int(s.PC()&0xF)
		})
		state.SetPCConst(0x1002)
		if got := c.Count(state); got != 3 {
			t.Fatalf("count=%d, expected 3", got)
		}
	})

	t.Run("ZeroValue", func(t *testing.T) {
		var c gale.CycleCount
		if got := c.Count(state); got != 0 {
			t.Fatalf("count=%d, expected 0", got)
		}
	})
}
