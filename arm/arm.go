// Package arm implements Thumb instruction decoding for the ARMv6-M
// and ARMv7E-M microcontroller profiles.
package arm

import (
	"debug/elf"

	"github.com/galecode/gale"
)

// ARM attributes Tag_CPU_arch values accepted by this package.
const (
	profileV6M   = 12
	profileV7EM  = 13
	profileV7EM2 = 10 // older toolchains emit v7 for v7E-M parts
)

func init() {
	gale.RegisterArch(gale.ArchKey{Machine: elf.EM_ARM, Profile: profileV6M}, func() gale.Arch {
		return NewArmv6M()
	})
	gale.RegisterArch(gale.ArchKey{Machine: elf.EM_ARM, Profile: profileV7EM}, func() gale.Arch {
		return NewArmv7EM()
	})
	gale.RegisterArch(gale.ArchKey{Machine: elf.EM_ARM, Profile: profileV7EM2}, func() gale.Arch {
		return NewArmv7EM()
	})
}

var registerNames = []string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc",
}

var flagNames = []string{"N", "Z", "C", "V"}

// thumb is the common core of both Cortex-M profiles. The wide flag
// enables the 32-bit data processing encodings of ARMv7E-M; without it
// only BL uses two halfwords.
type thumb struct {
	name string
	wide bool
}

// NewArmv6M returns the ARMv6-M (Cortex-M0/M0+) architecture.
func NewArmv6M() gale.Arch {
	return &thumb{name: "armv6-m"}
}

// NewArmv7EM returns the ARMv7E-M (Cortex-M4/M7) architecture.
func NewArmv7EM() gale.Arch {
	return &thumb{name: "armv7e-m", wide: true}
}

// Name returns a human-readable architecture name.
func (a *thumb) Name() string { return a.name }

// RegisterNames returns every architectural register name.
func (a *thumb) RegisterNames() []string {
	return append([]string(nil), registerNames...)
}

func (a *thumb) PCName() string { return "pc" }
func (a *thumb) SPName() string { return "sp" }
func (a *thumb) LRName() string { return "lr" }

// FlagNames returns the APSR flag names.
func (a *thumb) FlagNames() []string {
	return append([]string(nil), flagNames...)
}

// WordSize returns the architecture word width in bits.
func (a *thumb) WordSize() uint { return 32 }

// MinInstructionSize returns the narrow Thumb encoding length.
func (a *thumb) MinInstructionSize() uint64 { return 2 }

// AddHooks installs the profile's register behavior: reads of pc
// observe the current instruction address plus four, and writes to sp
// clear the two low bits.
func (a *thumb) AddHooks(hooks *gale.HookContainer) {
	hooks.AddRegisterReadHook("pc", func(state *gale.GAState) (gale.Expr, error) {
		return gale.NewConstantExpr(state.PC()+4, 32), nil
	})
	hooks.AddRegisterWriteHook("sp", func(state *gale.GAState, value gale.Expr) error {
		masked := gale.NewBinaryExpr(gale.AND, value, gale.NewConstantExpr(0xFFFFFFFC, 32))
		state.WriteRegisterRaw("sp", masked)
		return nil
	})
}
