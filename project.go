package gale

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Project errors.
var (
	ErrUnsupportedArchitecture = fmt.Errorf("unsupported architecture")
	ErrEntryFunctionNotFound   = fmt.Errorf("entry function not found")
)

// Arch decodes machine code for one architecture and installs the
// architecture's intrinsic hook behavior.
type Arch interface {
	// Name returns a human-readable architecture name.
	Name() string

	// Translate decodes the instruction at the start of data. The state
	// is consulted only for the conditional-block flag; decoding is
	// otherwise a pure function of the bytes.
	Translate(data []byte, state *GAState) (*Instruction, error)

	// AddHooks installs the architecture's intrinsic register and
	// memory hooks. Run once at setup.
	AddHooks(hooks *HookContainer)

	// RegisterNames returns every architectural register name,
	// including PCName, SPName and LRName.
	RegisterNames() []string

	// PCName, SPName and LRName name the program counter, stack
	// pointer and link register.
	PCName() string
	SPName() string
	LRName() string

	// FlagNames returns the architecture's status flag names.
	FlagNames() []string

	// WordSize returns the architecture word width in bits.
	WordSize() uint

	// MinInstructionSize returns the smallest encodable instruction
	// length in bytes.
	MinInstructionSize() uint64
}

// DecodeErrorKind classifies why instruction decoding failed.
type DecodeErrorKind int

const (
	// DecodeInsufficientInput means fewer bytes were available than
	// the encoding requires.
	DecodeInsufficientInput DecodeErrorKind = iota

	// DecodeMalformed means the bytes do not form a known encoding.
	DecodeMalformed

	// DecodeInvalid means the encoding is architecturally reserved.
	DecodeInvalid

	// DecodeUnpredictable means the encoding is valid but its behavior
	// is architecturally unpredictable.
	DecodeUnpredictable

	// DecodeBadField means a register, condition or rounding field
	// holds a value outside its legal range.
	DecodeBadField
)

var decodeErrorKinds = [...]string{
	DecodeInsufficientInput: "insufficient input",
	DecodeMalformed:         "malformed encoding",
	DecodeInvalid:           "invalid encoding",
	DecodeUnpredictable:     "unpredictable encoding",
	DecodeBadField:          "bad field",
}

// String returns the string representation of the kind.
func (k DecodeErrorKind) String() string {
	if k >= 0 && int(k) < len(decodeErrorKinds) {
		return decodeErrorKinds[k]
	}
	return fmt.Sprintf("DecodeErrorKind<%d>", int(k))
}

// DecodeError is returned by Arch.Translate when the input bytes
// cannot be decoded. It terminates only the path that hit it.
type DecodeError struct {
	Kind     DecodeErrorKind
	Encoding uint32
	Detail   string
}

// Error returns the string representation of the error.
func (e *DecodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%#x)", e.Kind, e.Detail, e.Encoding)
	}
	return fmt.Sprintf("%s (%#x)", e.Kind, e.Encoding)
}

// ArchKey identifies one supported architecture implementation.
// Profile carries the ARM attributes CPU-architecture byte and is zero
// for architectures without one.
type ArchKey struct {
	Machine elf.Machine
	Profile uint8
}

var (
	archMu       sync.RWMutex
	archRegistry = make(map[ArchKey]func() Arch)
)

// RegisterArch registers an architecture constructor for the given key.
// Architecture packages call this from init; callers blank-import the
// packages they want discoverable.
func RegisterArch(key ArchKey, fn func() Arch) {
	archMu.Lock()
	defer archMu.Unlock()
	if _, ok := archRegistry[key]; ok {
		panic(fmt.Sprintf("gale: architecture already registered: %+v", key))
	}
	archRegistry[key] = fn
}

// lookupArch returns the registered constructor for the given key.
func lookupArch(key ArchKey) (func() Arch, bool) {
	archMu.RLock()
	defer archMu.RUnlock()
	fn, ok := archRegistry[key]
	return fn, ok
}

// Segment is one loaded region of the binary image.
type Segment struct {
	Addr     uint64
	Data     []byte
	ReadOnly bool
}

// End returns the first address past the segment.
func (s *Segment) End() uint64 {
	return s.Addr + uint64(len(s.Data))
}

// Contains returns true if addr falls inside the segment.
func (s *Segment) Contains(addr uint64) bool {
	return addr >= s.Addr && addr < s.End()
}

// Symbol is one subprogram discovered in the binary.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64

	// Source location, present when DWARF line data is available.
	File string
	Line int
}

// Contains returns true if addr falls inside the symbol's address range.
func (s *Symbol) Contains(addr uint64) bool {
	return addr >= s.Addr && addr < s.Addr+s.Size
}

// Project is the immutable post-load view of the binary: segments,
// word size, endianness and the symbol map. Built once at load time and
// shared across all paths.
type Project struct {
	Arch           Arch
	Segments       []*Segment
	WordSize       uint
	IsLittleEndian bool
	Entry          uint64

	symbols []*Symbol
}

// armAttributesSection is the section holding the ARM build attributes.
const armAttributesSection = ".ARM.attributes"

// ARM attributes Tag_CPU_arch values the engine recognizes.
const (
	armProfileV7EM  = 13
	armProfileV7M   = 10
	armProfileV6M   = 12
	tagCPUArch      = 6
	attrFormatV1    = 'A'
	attrSubsectAeabi = "aeabi"
)

// NewProject loads a 32-bit ELF binary and discovers its architecture.
func NewProject(path string) (*Project, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open binary: %w", err)
	}
	defer f.Close()
	return newProjectFromELF(f)
}

func newProjectFromELF(f *elf.File) (*Project, error) {
	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("%w: not a 32-bit binary", ErrUnsupportedArchitecture)
	}

	key := ArchKey{Machine: f.Machine}
	if f.Machine == elf.EM_ARM {
		profile, err := armCPUArchProfile(f)
		if err != nil {
			return nil, err
		}
		key.Profile = profile
	}

	fn, ok := lookupArch(key)
	if !ok {
		return nil, fmt.Errorf("%w: machine=%s profile=%d", ErrUnsupportedArchitecture, f.Machine, key.Profile)
	}
	arch := fn()

	p := &Project{
		Arch:           arch,
		WordSize:       arch.WordSize(),
		IsLittleEndian: f.Data == elf.ELFDATA2LSB,
		Entry:          f.Entry,
	}

	// Load program segments. Text and rodata stay read-only; writable
	// segments seed the initial RAM image.
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		data := make([]byte, prog.Memsz)
		if prog.Filesz > 0 {
			if _, err := prog.ReadAt(data[:prog.Filesz], 0); err != nil {
				return nil, fmt.Errorf("read segment: %w", err)
			}
		}
		p.Segments = append(p.Segments, &Segment{
			Addr:     prog.Vaddr,
			Data:     data,
			ReadOnly: prog.Flags&elf.PF_W == 0,
		})
	}
	sort.Slice(p.Segments, func(i, j int) bool { return p.Segments[i].Addr < p.Segments[j].Addr })

	if err := p.loadSymbols(f); err != nil {
		return nil, err
	}
	return p, nil
}

// NewProjectFromSegments returns a project built directly from segments,
// without a backing ELF file. Symbols may be attached afterwards with
// AddSymbol.
func NewProjectFromSegments(arch Arch, isLittleEndian bool, segments ...*Segment) *Project {
	sorted := make([]*Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })

	return &Project{
		Arch:           arch,
		Segments:       sorted,
		WordSize:       arch.WordSize(),
		IsLittleEndian: isLittleEndian,
	}
}

// armCPUArchProfile reads the Tag_CPU_arch byte from the ARM build
// attributes section.
func armCPUArchProfile(f *elf.File) (uint8, error) {
	sect := f.Section(armAttributesSection)
	if sect == nil {
		return 0, fmt.Errorf("%w: missing %s section", ErrUnsupportedArchitecture, armAttributesSection)
	}
	data, err := sect.Data()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", armAttributesSection, err)
	}
	profile, ok := parseARMAttributes(data)
	if !ok {
		return 0, fmt.Errorf("%w: cannot parse %s", ErrUnsupportedArchitecture, armAttributesSection)
	}

	switch profile {
	case armProfileV7EM, armProfileV7M, armProfileV6M:
		return profile, nil
	default:
		return 0, fmt.Errorf("%w: ARM CPU arch attribute %d", ErrUnsupportedArchitecture, profile)
	}
}

// parseARMAttributes walks the aeabi subsection of a version-A build
// attributes blob and returns the Tag_CPU_arch value.
func parseARMAttributes(data []byte) (uint8, bool) {
	if len(data) < 1 || data[0] != attrFormatV1 {
		return 0, false
	}
	buf := data[1:]

	for len(buf) >= 4 {
		size := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
		if size < 4 || uint32(len(buf)) < size {
			return 0, false
		}
		section := buf[4:size]

		// Section starts with a NUL-terminated vendor name.
		var vendor string
		for i, c := range section {
			if c == 0 {
				vendor, section = string(section[:i]), section[i+1:]
				break
			}
		}
		if vendor == attrSubsectAeabi {
			return parseAeabiAttributes(section)
		}
		buf = buf[size:]
	}
	return 0, false
}

func parseAeabiAttributes(buf []byte) (uint8, bool) {
	// File-scope attribute subsection: tag 1, 4-byte size, then
	// ULEB128 tag/value pairs. String-valued tags are NUL-terminated.
	for len(buf) >= 5 {
		if buf[0] != 1 { // Tag_File
			return 0, false
		}
		size := uint32(buf[1]) | uint32(buf[2])<<8 | uint32(buf[3])<<16 | uint32(buf[4])<<24
		if size < 5 || uint32(len(buf)) < size {
			return 0, false
		}
		attrs := buf[5:size]
		for len(attrs) > 0 {
			tag, n := parseULEB128(attrs)
			if n == 0 {
				return 0, false
			}
			attrs = attrs[n:]

			if isStringARMTag(tag) {
				i := 0
				for i < len(attrs) && attrs[i] != 0 {
					i++
				}
				if i >= len(attrs) {
					return 0, false
				}
				attrs = attrs[i+1:]
				continue
			}
			value, n := parseULEB128(attrs)
			if n == 0 {
				return 0, false
			}
			attrs = attrs[n:]
			if tag == tagCPUArch {
				return uint8(value), true
			}
		}
		buf = buf[size:]
	}
	return 0, false
}

// isStringARMTag reports whether an aeabi attribute tag carries a
// string value. Per the ABI, tags 4, 5, 32, 65 and 67 are strings.
func isStringARMTag(tag uint64) bool {
	switch tag {
	case 4, 5, 32, 65, 67:
		return true
	}
	return false
}

func parseULEB128(buf []byte) (uint64, int) {
	var value uint64
	var shift uint
	for i, b := range buf {
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1
		}
		shift += 7
		if shift >= 64 {
			break
		}
	}
	return 0, 0
}

// loadSymbols builds the symbol map from the ELF symbol table and
// attaches source locations from the DWARF line data when present.
func (p *Project) loadSymbols(f *elf.File) error {
	syms, err := f.Symbols()
	if err != nil {
		// Absence of a symbol table degrades name resolution only.
		return nil
	}

	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Name == "" {
			continue
		}
		p.symbols = append(p.symbols, &Symbol{
			Name: sym.Name,
			Addr: sym.Value &^ 1, // thumb bit
			Size: sym.Size,
		})
	}
	sort.Slice(p.symbols, func(i, j int) bool { return p.symbols[i].Addr < p.symbols[j].Addr })

	if dw, err := f.DWARF(); err == nil {
		p.attachSourceLocations(dw)
	}
	return nil
}

// attachSourceLocations resolves each symbol's address through the
// DWARF line tables. Missing or partial line data is not an error.
func (p *Project) attachSourceLocations(dw *dwarf.Data) {
	r := dw.Reader()
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			return
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}

		lr, err := dw.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}
		var line dwarf.LineEntry
		for lr.Next(&line) == nil {
			if line.File == nil {
				continue
			}
			for _, sym := range p.symbols {
				if sym.File == "" && sym.Addr == line.Address {
					sym.File = line.File.Name
					sym.Line = line.Line
				}
			}
		}
	}
}

// AddSymbol attaches a symbol to a project built from raw segments.
func (p *Project) AddSymbol(sym *Symbol) {
	p.symbols = append(p.symbols, sym)
	sort.Slice(p.symbols, func(i, j int) bool { return p.symbols[i].Addr < p.symbols[j].Addr })
}

// SymbolMap returns every discovered symbol, sorted by address.
func (p *Project) SymbolMap() []*Symbol {
	return p.symbols
}

// SymbolByName returns the symbol with the given name.
func (p *Project) SymbolByName(name string) (*Symbol, bool) {
	for _, sym := range p.symbols {
		if sym.Name == name {
			return sym, true
		}
	}
	return nil, false
}

// SymbolByAddress returns the symbol whose range contains addr.
func (p *Project) SymbolByAddress(addr uint64) (*Symbol, bool) {
	for _, sym := range p.symbols {
		if sym.Contains(addr) {
			return sym, true
		}
	}
	return nil, false
}

// SymbolsByRegex returns every symbol whose name matches re, in address order.
func (p *Project) SymbolsByRegex(re *regexp.Regexp) []*Symbol {
	var a []*Symbol
	for _, sym := range p.symbols {
		if re.MatchString(sym.Name) {
			a = append(a, sym)
		}
	}
	return a
}

// SegmentAt returns the segment containing addr.
func (p *Project) SegmentAt(addr uint64) (*Segment, bool) {
	i := sort.Search(len(p.Segments), func(i int) bool { return p.Segments[i].End() > addr })
	if i < len(p.Segments) && p.Segments[i].Contains(addr) {
		return p.Segments[i], true
	}
	return nil, false
}

// ReadAt copies bytes from the binary image starting at addr. Returns
// false if the range is not fully covered by one segment.
func (p *Project) ReadAt(addr uint64, buf []byte) bool {
	seg, ok := p.SegmentAt(addr)
	if !ok || addr+uint64(len(buf)) > seg.End() {
		return false
	}
	copy(buf, seg.Data[addr-seg.Addr:])
	return true
}

// InStaticMemory returns true along with the segment's read-only flag
// if addr is covered by a loaded segment.
func (p *Project) InStaticMemory(addr uint64) (readOnly, ok bool) {
	seg, segOK := p.SegmentAt(addr)
	if !segOK {
		return false, false
	}
	return seg.ReadOnly, true
}
