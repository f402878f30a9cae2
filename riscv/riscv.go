// Package riscv implements RV32I instruction decoding.
package riscv

import (
	"debug/elf"
	"fmt"

	"github.com/galecode/gale"
)

func init() {
	gale.RegisterArch(gale.ArchKey{Machine: elf.EM_RISCV}, func() gale.Arch {
		return NewRV32I()
	})
}

var registerNames = func() []string {
	a := make([]string, 33)
	for i := 0; i < 32; i++ {
		a[i] = fmt.Sprintf("x%d", i)
	}
	a[32] = "pc"
	return a
}()

// rv32i is the base 32-bit integer instruction set.
type rv32i struct{}

// NewRV32I returns the RV32I architecture.
func NewRV32I() gale.Arch {
	return &rv32i{}
}

// Name returns a human-readable architecture name.
func (a *rv32i) Name() string { return "rv32i" }

// RegisterNames returns every architectural register name.
func (a *rv32i) RegisterNames() []string {
	return append([]string(nil), registerNames...)
}

func (a *rv32i) PCName() string { return "pc" }
func (a *rv32i) SPName() string { return "x2" }
func (a *rv32i) LRName() string { return "x1" }

// FlagNames returns nothing: RV32I has no status flags.
func (a *rv32i) FlagNames() []string { return nil }

// WordSize returns the architecture word width in bits.
func (a *rv32i) WordSize() uint { return 32 }

// MinInstructionSize returns the base encoding length.
func (a *rv32i) MinInstructionSize() uint64 { return 4 }

// AddHooks pins x0 to zero in both directions.
func (a *rv32i) AddHooks(hooks *gale.HookContainer) {
	hooks.AddRegisterReadHook("x0", func(state *gale.GAState) (gale.Expr, error) {
		return gale.NewConstantExpr(0, 32), nil
	})
	hooks.AddRegisterWriteHook("x0", func(state *gale.GAState, value gale.Expr) error {
		return nil
	})
}
