package gale_test

import (
	"errors"
	"testing"

	"github.com/galecode/gale"
)

func newTestState(tb testing.TB, hooks *gale.HookContainer) *gale.GAState {
	tb.Helper()
	if hooks == nil {
		hooks = gale.NewHookContainer()
	}
	project := scriptProject(tb, nil)
	return gale.NewGAState(project, hooks, &stubSolver{}, nil)
}

func TestGAState_Registers(t *testing.T) {
	t.Run("LazyReadIsStable", func(t *testing.T) {
		state := newTestState(t, nil)
		a, err := state.GetRegister("r0")
		if err != nil {
			t.Fatal(err)
		}
		b, err := state.GetRegister("r0")
		if err != nil {
			t.Fatal(err)
		}
		if gale.CompareExpr(a, b) != 0 {
			t.Fatalf("repeated reads differ: %s != %s", a, b)
		}
	})

	t.Run("WriteThenRead", func(t *testing.T) {
		state := newTestState(t, nil)
		state.WriteRegisterRaw("r1", gale.NewConstantExpr(0xBEEF, 32))
		v, err := state.GetRegister("r1")
		if err != nil {
			t.Fatal(err)
		} else if gale.CompareExpr(v, gale.NewConstantExpr(0xBEEF, 32)) != 0 {
			t.Fatalf("r1=%s, expected 0xBEEF", v)
		}
	})

	t.Run("PCAlias", func(t *testing.T) {
		state := newTestState(t, nil)
		state.SetPCConst(0x1000)
		v, err := state.GetRegister("pc")
		if err != nil {
			t.Fatal(err)
		} else if gale.CompareExpr(v, gale.NewConstantExpr(0x1000, 32)) != 0 {
			t.Fatalf("pc=%s, expected 0x1000", v)
		}
	})

	t.Run("ReadHook", func(t *testing.T) {
		hooks := gale.NewHookContainer()
		hooks.AddRegisterReadHook("r0", func(state *gale.GAState) (gale.Expr, error) {
			return gale.NewConstantExpr(9, 32), nil
		})
		state := newTestState(t, hooks)
		v, err := state.GetRegister("r0")
		if err != nil {
			t.Fatal(err)
		} else if gale.CompareExpr(v, gale.NewConstantExpr(9, 32)) != 0 {
			t.Fatalf("r0=%s, expected 9", v)
		}
	})

	t.Run("WriteHookSuppresses", func(t *testing.T) {
		hooks := gale.NewHookContainer()
		hooks.AddRegisterWriteHook("r0", func(state *gale.GAState, value gale.Expr) error {
			return nil
		})
		state := newTestState(t, hooks)
		state.WriteRegisterRaw("r0", gale.NewConstantExpr(1, 32))
		if err := state.SetRegister("r0", gale.NewConstantExpr(2, 32)); err != nil {
			t.Fatal(err)
		}
		if v := state.ReadRegisterRaw("r0"); gale.CompareExpr(v, gale.NewConstantExpr(1, 32)) != 0 {
			t.Fatalf("r0=%s, expected the suppressed write to leave 1", v)
		}
	})
}

func TestGAState_Flags(t *testing.T) {
	state := newTestState(t, nil)

	z := state.GetFlag("Z")
	if gale.ExprWidth(z) != gale.WidthBool {
		t.Fatalf("flag width=%d, expected 1", gale.ExprWidth(z))
	}
	if again := state.GetFlag("Z"); gale.CompareExpr(z, again) != 0 {
		t.Fatalf("repeated flag reads differ: %s != %s", z, again)
	}

	state.SetFlag("Z", gale.NewBoolConstantExpr(true))
	if v := state.GetFlag("Z"); gale.CompareExpr(v, gale.NewBoolConstantExpr(true)) != 0 {
		t.Fatalf("Z=%s, expected true", v)
	}
}

func TestGAState_Memory(t *testing.T) {
	t.Run("RoundTripLittleEndian", func(t *testing.T) {
		state := newTestState(t, nil)
		if err := state.WriteMemoryRaw(0x20000, gale.NewConstantExpr(0xAABBCCDD, 32)); err != nil {
			t.Fatal(err)
		}

		v, err := state.ReadMemoryRaw(0x20000, 32)
		if err != nil {
			t.Fatal(err)
		} else if gale.CompareExpr(v, gale.NewConstantExpr(0xAABBCCDD, 32)) != 0 {
			t.Fatalf("read=%s, expected 0xAABBCCDD", v)
		}

		b, err := state.ReadMemoryRaw(0x20001, 8)
		if err != nil {
			t.Fatal(err)
		} else if gale.CompareExpr(b, gale.NewConstantExpr8(0xCC)) != 0 {
			t.Fatalf("byte=%s, expected 0xCC", b)
		}
	})

	t.Run("ImageRead", func(t *testing.T) {
		data := make([]byte, 16)
		data[0], data[1] = 0x12, 0x34
		project := gale.NewProjectFromSegments(&scriptArch{}, true, &gale.Segment{Addr: 0x1000, Data: data})
		state := gale.NewGAState(project, gale.NewHookContainer(), &stubSolver{}, nil)

		v, err := state.ReadMemoryRaw(0x1000, 16)
		if err != nil {
			t.Fatal(err)
		} else if gale.CompareExpr(v, gale.NewConstantExpr(0x3412, 16)) != 0 {
			t.Fatalf("read=%s, expected 0x3412", v)
		}
	})

	t.Run("OverlayShadowsImage", func(t *testing.T) {
		data := []byte{0x12}
		project := gale.NewProjectFromSegments(&scriptArch{}, true, &gale.Segment{Addr: 0x1000, Data: data})
		state := gale.NewGAState(project, gale.NewHookContainer(), &stubSolver{}, nil)

		if err := state.WriteMemoryRaw(0x1000, gale.NewConstantExpr8(0xFF)); err != nil {
			t.Fatal(err)
		}
		v, err := state.ReadMemoryRaw(0x1000, 8)
		if err != nil {
			t.Fatal(err)
		} else if gale.CompareExpr(v, gale.NewConstantExpr8(0xFF)) != 0 {
			t.Fatalf("read=%s, expected 0xFF", v)
		}
	})

	t.Run("UnmappedReadIsStable", func(t *testing.T) {
		state := newTestState(t, nil)
		a, err := state.ReadMemoryRaw(0x50000, 8)
		if err != nil {
			t.Fatal(err)
		}
		b, err := state.ReadMemoryRaw(0x50000, 8)
		if err != nil {
			t.Fatal(err)
		}
		if gale.CompareExpr(a, b) != 0 {
			t.Fatalf("repeated reads differ: %s != %s", a, b)
		}
	})

	t.Run("ReadOnlyWriteRejected", func(t *testing.T) {
		project := gale.NewProjectFromSegments(&scriptArch{}, true,
			&gale.Segment{Addr: 0x1000, Data: make([]byte, 16), ReadOnly: true})
		state := gale.NewGAState(project, gale.NewHookContainer(), &stubSolver{}, nil)

		err := state.WriteMemoryRaw(0x1000, gale.NewConstantExpr8(0xFF))
		var merr *gale.MemoryError
		if !errors.As(err, &merr) {
			t.Fatalf("expected MemoryError, got %v", err)
		} else if merr.Op != "write" || merr.Addr != 0x1000 {
			t.Fatalf("unexpected error: %v", merr)
		}
	})

	t.Run("WriteHookIntercepts", func(t *testing.T) {
		var hooked []uint64
		hooks := gale.NewHookContainer()
		hooks.AddMemoryRangeHook(0x5000, 0x6000, nil, func(state *gale.GAState, addr uint64, value gale.Expr) error {
			hooked = append(hooked, addr)
			return state.WriteMemoryRaw(addr, value)
		})
		state := newTestState(t, hooks)

		if err := state.SetMemory(gale.NewConstantExpr(0x5004, 32), gale.NewConstantExpr8(7)); err != nil {
			t.Fatal(err)
		}
		if len(hooked) != 1 || hooked[0] != 0x5004 {
			t.Fatalf("hooked=%v, expected [0x5004]", hooked)
		}

		// Raw access must bypass the hook.
		if err := state.WriteMemoryRaw(0x5008, gale.NewConstantExpr8(8)); err != nil {
			t.Fatal(err)
		}
		if len(hooked) != 1 {
			t.Fatalf("raw write consulted the hook: %v", hooked)
		}

		// Writes outside the range go straight through.
		if err := state.SetMemory(gale.NewConstantExpr(0x7000, 32), gale.NewConstantExpr8(9)); err != nil {
			t.Fatal(err)
		}
		if len(hooked) != 1 {
			t.Fatalf("out-of-range write consulted the hook: %v", hooked)
		}
	})
}

func TestGAState_ConstraintFrames(t *testing.T) {
	state := newTestState(t, nil)
	outer := gale.NewExtractExpr(state.Unconstrained("a", 8), 0, 1)
	inner := gale.NewExtractExpr(state.Unconstrained("b", 8), 0, 1)

	state.AddConstraint(outer)
	state.PushConstraintFrame()
	state.AddConstraint(inner)

	if got := len(state.Constraints()); got != 2 {
		t.Fatalf("constraints=%d, expected 2", got)
	} else if state.ConstraintFrames() != 1 {
		t.Fatalf("frames=%d, expected 1", state.ConstraintFrames())
	}

	state.PopConstraintFrame()
	if got := len(state.Constraints()); got != 1 {
		t.Fatalf("constraints=%d after pop, expected 1", got)
	} else if gale.CompareExpr(state.Constraints()[0], outer) != 0 {
		t.Fatalf("surviving constraint=%s, expected %s", state.Constraints()[0], outer)
	} else if state.ConstraintFrames() != 0 {
		t.Fatalf("frames=%d, expected 0", state.ConstraintFrames())
	}
}

func TestGAState_ConditionalBlock(t *testing.T) {
	state := newTestState(t, nil)
	c0 := gale.NewBoolConstantExpr(true)
	c1 := gale.NewBoolConstantExpr(false)
	state.SetConditionalBlock([]gale.Expr{c0, c1})

	if !state.InConditionalBlock() {
		t.Fatal("expected to be in a conditional block")
	}
	if cond, ok := state.NextCondition(); !ok || gale.CompareExpr(cond, c0) != 0 {
		t.Fatalf("first condition=%v, expected %s", cond, c0)
	}
	if cond, ok := state.NextCondition(); !ok || gale.CompareExpr(cond, c1) != 0 {
		t.Fatalf("second condition=%v, expected %s", cond, c1)
	}
	if _, ok := state.NextCondition(); ok {
		t.Fatal("expected the block to be exhausted")
	}
	if state.InConditionalBlock() {
		t.Fatal("expected the block to have ended")
	}
}

func TestGAState_Clone(t *testing.T) {
	state := newTestState(t, nil)
	state.WriteRegisterRaw("r0", gale.NewConstantExpr(1, 32))
	if err := state.WriteMemoryRaw(0x20000, gale.NewConstantExpr8(0x11)); err != nil {
		t.Fatal(err)
	}

	clone := state.Clone()
	clone.WriteRegisterRaw("r0", gale.NewConstantExpr(2, 32))
	if err := clone.WriteMemoryRaw(0x20000, gale.NewConstantExpr8(0x22)); err != nil {
		t.Fatal(err)
	}
	clone.AddConstraint(gale.NewExtractExpr(clone.Unconstrained("c", 8), 0, 1))

	if v := state.ReadRegisterRaw("r0"); gale.CompareExpr(v, gale.NewConstantExpr(1, 32)) != 0 {
		t.Fatalf("parent r0=%s, expected 1", v)
	}
	v, err := state.ReadMemoryRaw(0x20000, 8)
	if err != nil {
		t.Fatal(err)
	} else if gale.CompareExpr(v, gale.NewConstantExpr8(0x11)) != 0 {
		t.Fatalf("parent memory=%s, expected 0x11", v)
	}
	if len(state.Constraints()) != 0 {
		t.Fatalf("parent constraints=%d, expected 0", len(state.Constraints()))
	}
}

func TestGAState_SetPC(t *testing.T) {
	t.Run("Concrete", func(t *testing.T) {
		state := newTestState(t, nil)
		if err := state.SetPC(gale.NewConstantExpr(0x1234, 32)); err != nil {
			t.Fatal(err)
		} else if state.PC() != 0x1234 {
			t.Fatalf("pc=%#x, expected 0x1234", state.PC())
		}
	})

	t.Run("Symbolic", func(t *testing.T) {
		state := newTestState(t, nil)
		err := state.SetPC(state.Unconstrained("target", 32))
		var perr *gale.NonDeterministicPCError
		if !errors.As(err, &perr) {
			t.Fatalf("expected NonDeterministicPCError, got %v", err)
		}
	})
}

func TestGAState_ResolveConstant(t *testing.T) {
	state := newTestState(t, nil)

	c, err := state.ResolveConstant(gale.NewConstantExpr(5, 32))
	if err != nil {
		t.Fatal(err)
	} else if c.Value != 5 {
		t.Fatalf("value=%d, expected 5", c.Value)
	}

	if _, err := state.ResolveConstant(state.Unconstrained("x", 32)); err == nil {
		t.Fatal("expected an error for a multi-valued expression")
	}
}
