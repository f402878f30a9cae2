package gale

import (
	"fmt"
	"regexp"
)

// IntrinsicFunc replaces decoding and execution at a hooked program
// counter. It must advance the PC itself (typically from the link
// register) or the engine will re-invoke it forever.
type IntrinsicFunc func(state *GAState) error

// RegisterReadFunc replaces a register read. The callback performs (or
// suppresses) the underlying access via ReadRegisterRaw.
type RegisterReadFunc func(state *GAState) (Expr, error)

// RegisterWriteFunc replaces a register write.
type RegisterWriteFunc func(state *GAState, value Expr) error

// MemoryReadFunc replaces a memory read at a hooked address.
type MemoryReadFunc func(state *GAState, addr uint64, width uint) (Expr, error)

// MemoryWriteFunc replaces a memory write at a hooked address.
type MemoryWriteFunc func(state *GAState, addr uint64, value Expr) error

// PCHookKind enumerates the behaviors of a program-counter hook.
type PCHookKind int

const (
	// HookIntrinsic runs custom logic instead of the decoded instruction.
	HookIntrinsic PCHookKind = iota

	// HookEndSuccess terminates the path successfully.
	HookEndSuccess

	// HookEndFailure terminates the path with a failure reason.
	HookEndFailure

	// HookSkip skips the instruction, advancing PC by its decoded length.
	HookSkip
)

// PCHook is a behavior bound to a program counter address or range.
type PCHook struct {
	Kind      PCHookKind
	Intrinsic IntrinsicFunc
	Reason    string // failure reason for HookEndFailure
}

// IntrinsicHook returns a PC hook running fn instead of the instruction.
func IntrinsicHook(fn IntrinsicFunc) PCHook {
	return PCHook{Kind: HookIntrinsic, Intrinsic: fn}
}

// EndSuccessHook returns a PC hook terminating the path successfully.
func EndSuccessHook() PCHook {
	return PCHook{Kind: HookEndSuccess}
}

// EndFailureHook returns a PC hook terminating the path with a failure.
func EndFailureHook(reason string) PCHook {
	return PCHook{Kind: HookEndFailure, Reason: reason}
}

// SkipHook returns a PC hook skipping the hooked instruction.
func SkipHook() PCHook {
	return PCHook{Kind: HookSkip}
}

type pcRangeHook struct {
	start, end uint64 // [start, end)
	hook       PCHook
}

type memRangeHook struct {
	start, end uint64 // [start, end)
	read       MemoryReadFunc
	write      MemoryWriteFunc
}

// HookContainer registers override behaviors consulted before default
// execution: PC hooks by exact address, range or symbol regex; register
// read/write hooks by name; memory read/write hooks by address or range.
//
// At most one hook fires per consulted point. An exact match beats a
// range match; among overlapping ranges the first registered wins, so
// callers are responsible for non-overlap. Hooks must not carry
// path-local data; mutable accumulation belongs in the user state
// payload.
type HookContainer struct {
	pc        map[uint64]PCHook
	pcRanges  []pcRangeHook
	regReads  map[string]RegisterReadFunc
	regWrites map[string]RegisterWriteFunc
	memReads  map[uint64]MemoryReadFunc
	memWrites map[uint64]MemoryWriteFunc
	memRanges []memRangeHook
}

// NewHookContainer returns an empty hook container.
func NewHookContainer() *HookContainer {
	return &HookContainer{
		pc:        make(map[uint64]PCHook),
		regReads:  make(map[string]RegisterReadFunc),
		regWrites: make(map[string]RegisterWriteFunc),
		memReads:  make(map[uint64]MemoryReadFunc),
		memWrites: make(map[uint64]MemoryWriteFunc),
	}
}

// Clone returns a copy of the container. The hooks themselves are
// shared; registration structures are copied so per-run additions never
// leak into the original.
func (h *HookContainer) Clone() *HookContainer {
	other := NewHookContainer()
	for k, v := range h.pc {
		other.pc[k] = v
	}
	other.pcRanges = append([]pcRangeHook(nil), h.pcRanges...)
	for k, v := range h.regReads {
		other.regReads[k] = v
	}
	for k, v := range h.regWrites {
		other.regWrites[k] = v
	}
	for k, v := range h.memReads {
		other.memReads[k] = v
	}
	for k, v := range h.memWrites {
		other.memWrites[k] = v
	}
	other.memRanges = append([]memRangeHook(nil), h.memRanges...)
	return other
}

// Merge copies every registration from other into h. Exact-address and
// register hooks from other overwrite existing ones; ranges append in
// other's registration order.
func (h *HookContainer) Merge(other *HookContainer) {
	if other == nil {
		return
	}
	for k, v := range other.pc {
		h.pc[k] = v
	}
	h.pcRanges = append(h.pcRanges, other.pcRanges...)
	for k, v := range other.regReads {
		h.regReads[k] = v
	}
	for k, v := range other.regWrites {
		h.regWrites[k] = v
	}
	for k, v := range other.memReads {
		h.memReads[k] = v
	}
	for k, v := range other.memWrites {
		h.memWrites[k] = v
	}
	h.memRanges = append(h.memRanges, other.memRanges...)
}

// AddPCHook binds a hook to an exact program counter address.
func (h *HookContainer) AddPCHook(addr uint64, hook PCHook) {
	h.pc[addr] = hook
}

// AddPCRangeHook binds a hook to the address range [start, end).
func (h *HookContainer) AddPCRangeHook(start, end uint64, hook PCHook) {
	assert(start < end, "pc range hook: empty range [%#x, %#x)", start, end)
	h.pcRanges = append(h.pcRanges, pcRangeHook{start: start, end: end, hook: hook})
}

// AddPCHookRegex binds a hook to the address of the first discovered
// subprogram whose name matches pattern.
func (h *HookContainer) AddPCHookRegex(project *Project, pattern string, hook PCHook) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	syms := project.SymbolsByRegex(re)
	if len(syms) == 0 {
		return fmt.Errorf("no symbol matches %q", pattern)
	}
	sym := syms[0]
	if sym.Size > 0 {
		h.AddPCRangeHook(sym.Addr, sym.Addr+sym.Size, hook)
	} else {
		h.AddPCHook(sym.Addr, hook)
	}
	return nil
}

// PCHookFor returns the hook bound to addr, if any. An exact-address
// hook takes priority over a range hook.
func (h *HookContainer) PCHookFor(addr uint64) (PCHook, bool) {
	if hook, ok := h.pc[addr]; ok {
		return hook, true
	}
	for _, r := range h.pcRanges {
		if addr >= r.start && addr < r.end {
			return r.hook, true
		}
	}
	return PCHook{}, false
}

// AddRegisterReadHook replaces reads of the named register.
func (h *HookContainer) AddRegisterReadHook(name string, fn RegisterReadFunc) {
	h.regReads[name] = fn
}

// AddRegisterWriteHook replaces writes of the named register.
func (h *HookContainer) AddRegisterWriteHook(name string, fn RegisterWriteFunc) {
	h.regWrites[name] = fn
}

// RegisterReadHook returns the read hook for the named register, if any.
func (h *HookContainer) RegisterReadHook(name string) (RegisterReadFunc, bool) {
	fn, ok := h.regReads[name]
	return fn, ok
}

// RegisterWriteHook returns the write hook for the named register, if any.
func (h *HookContainer) RegisterWriteHook(name string) (RegisterWriteFunc, bool) {
	fn, ok := h.regWrites[name]
	return fn, ok
}

// AddMemoryReadHook replaces reads at an exact address.
func (h *HookContainer) AddMemoryReadHook(addr uint64, fn MemoryReadFunc) {
	h.memReads[addr] = fn
}

// AddMemoryWriteHook replaces writes at an exact address.
func (h *HookContainer) AddMemoryWriteHook(addr uint64, fn MemoryWriteFunc) {
	h.memWrites[addr] = fn
}

// AddMemoryRangeHook replaces reads and/or writes over [start, end).
// Either function may be nil to leave that direction unhooked.
func (h *HookContainer) AddMemoryRangeHook(start, end uint64, read MemoryReadFunc, write MemoryWriteFunc) {
	assert(start < end, "memory range hook: empty range [%#x, %#x)", start, end)
	h.memRanges = append(h.memRanges, memRangeHook{start: start, end: end, read: read, write: write})
}

// MemoryReadHook returns the read hook covering addr, if any.
func (h *HookContainer) MemoryReadHook(addr uint64) (MemoryReadFunc, bool) {
	if fn, ok := h.memReads[addr]; ok {
		return fn, true
	}
	for _, r := range h.memRanges {
		if r.read != nil && addr >= r.start && addr < r.end {
			return r.read, true
		}
	}
	return nil, false
}

// MemoryWriteHook returns the write hook covering addr, if any.
func (h *HookContainer) MemoryWriteHook(addr uint64) (MemoryWriteFunc, bool) {
	if fn, ok := h.memWrites[addr]; ok {
		return fn, true
	}
	for _, r := range h.memRanges {
		if r.write != nil && addr >= r.start && addr < r.end {
			return r.write, true
		}
	}
	return nil, false
}
