package gale_test

import (
	"testing"

	"github.com/galecode/gale"
)

func TestHookContainer_PCHooks(t *testing.T) {
	t.Run("ExactBeatsRange", func(t *testing.T) {
		h := gale.NewHookContainer()
		h.AddPCRangeHook(0x1000, 0x2000, gale.EndFailureHook("range"))
		h.AddPCHook(0x1500, gale.EndFailureHook("exact"))

		hook, ok := h.PCHookFor(0x1500)
		if !ok {
			t.Fatal("missing hook")
		} else if hook.Reason != "exact" {
			t.Fatalf("reason=%q, expected exact match to win", hook.Reason)
		}

		hook, ok = h.PCHookFor(0x1504)
		if !ok {
			t.Fatal("missing range hook")
		} else if hook.Reason != "range" {
			t.Fatalf("reason=%q, expected range match", hook.Reason)
		}
	})

	t.Run("FirstRegisteredRangeWins", func(t *testing.T) {
		h := gale.NewHookContainer()
		h.AddPCRangeHook(0x1000, 0x2000, gale.EndFailureHook("first"))
		h.AddPCRangeHook(0x1800, 0x2800, gale.EndFailureHook("second"))

		hook, ok := h.PCHookFor(0x1900)
		if !ok {
			t.Fatal("missing hook")
		} else if hook.Reason != "first" {
			t.Fatalf("reason=%q, expected first registration to win", hook.Reason)
		}
	})

	t.Run("RangeIsHalfOpen", func(t *testing.T) {
		h := gale.NewHookContainer()
		h.AddPCRangeHook(0x1000, 0x2000, gale.EndSuccessHook())

		if _, ok := h.PCHookFor(0x1000); !ok {
			t.Fatal("start of range not covered")
		}
		if _, ok := h.PCHookFor(0x2000); ok {
			t.Fatal("end of range must be excluded")
		}
	})

	t.Run("Miss", func(t *testing.T) {
		h := gale.NewHookContainer()
		if _, ok := h.PCHookFor(0x1000); ok {
			t.Fatal("empty container returned a hook")
		}
	})
}

func TestHookContainer_Regex(t *testing.T) {
	project := scriptProject(t, nil)
	project.AddSymbol(&gale.Symbol{Name: "memcpy", Addr: 0x1200, Size: 0x40})
	project.AddSymbol(&gale.Symbol{Name: "tiny", Addr: 0x1300})

	t.Run("SizedSymbolCoversBody", func(t *testing.T) {
		h := gale.NewHookContainer()
		if err := h.AddPCHookRegex(project, `^memcpy$`, gale.SkipHook()); err != nil {
			t.Fatal(err)
		}
		if _, ok := h.PCHookFor(0x1200); !ok {
			t.Fatal("entry not hooked")
		}
		if _, ok := h.PCHookFor(0x123C); !ok {
			t.Fatal("body not hooked")
		}
		if _, ok := h.PCHookFor(0x1240); ok {
			t.Fatal("address past the symbol end hooked")
		}
	})

	t.Run("ZeroSizedSymbolHooksEntry", func(t *testing.T) {
		h := gale.NewHookContainer()
		if err := h.AddPCHookRegex(project, `^tiny$`, gale.SkipHook()); err != nil {
			t.Fatal(err)
		}
		if _, ok := h.PCHookFor(0x1300); !ok {
			t.Fatal("entry not hooked")
		}
		if _, ok := h.PCHookFor(0x1302); ok {
			t.Fatal("zero-sized symbol must only hook its entry")
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		h := gale.NewHookContainer()
		if err := h.AddPCHookRegex(project, `^nope$`, gale.SkipHook()); err == nil {
			t.Fatal("expected an error for an unmatched pattern")
		}
	})

	t.Run("BadPattern", func(t *testing.T) {
		h := gale.NewHookContainer()
		if err := h.AddPCHookRegex(project, `(`, gale.SkipHook()); err == nil {
			t.Fatal("expected a compile error")
		}
	})
}

func TestHookContainer_MemoryHooks(t *testing.T) {
	h := gale.NewHookContainer()
	h.AddMemoryRangeHook(0x4000, 0x5000, func(state *gale.GAState, addr uint64, width uint) (gale.Expr, error) {
		return gale.NewConstantExpr(0, width), nil
	}, nil)
	h.AddMemoryWriteHook(0x4100, func(state *gale.GAState, addr uint64, value gale.Expr) error {
		return nil
	})

	if _, ok := h.MemoryReadHook(0x4100); !ok {
		t.Fatal("range read hook not found")
	}
	if _, ok := h.MemoryWriteHook(0x4100); !ok {
		t.Fatal("exact write hook not found")
	}

	// The range registered only a read direction.
	if _, ok := h.MemoryWriteHook(0x4200); ok {
		t.Fatal("write hook reported for a read-only range")
	}
	if _, ok := h.MemoryReadHook(0x5000); ok {
		t.Fatal("end of range must be excluded")
	}
}

func TestHookContainer_CloneAndMerge(t *testing.T) {
	t.Run("CloneIsolation", func(t *testing.T) {
		h := gale.NewHookContainer()
		h.AddPCHook(0x1000, gale.EndSuccessHook())

		clone := h.Clone()
		clone.AddPCHook(0x2000, gale.EndSuccessHook())
		clone.AddPCRangeHook(0x3000, 0x4000, gale.SkipHook())

		if _, ok := h.PCHookFor(0x2000); ok {
			t.Fatal("clone addition leaked into the original")
		}
		if _, ok := h.PCHookFor(0x3000); ok {
			t.Fatal("clone range leaked into the original")
		}
		if _, ok := clone.PCHookFor(0x1000); !ok {
			t.Fatal("clone lost an original hook")
		}
	})

	t.Run("MergeOverwritesExact", func(t *testing.T) {
		h := gale.NewHookContainer()
		h.AddPCHook(0x1000, gale.EndFailureHook("old"))

		other := gale.NewHookContainer()
		other.AddPCHook(0x1000, gale.EndFailureHook("new"))
		h.Merge(other)

		hook, ok := h.PCHookFor(0x1000)
		if !ok {
			t.Fatal("missing hook")
		} else if hook.Reason != "new" {
			t.Fatalf("reason=%q, expected merged hook to overwrite", hook.Reason)
		}
	})

	t.Run("MergeNil", func(t *testing.T) {
		h := gale.NewHookContainer()
		h.Merge(nil)
	})
}
