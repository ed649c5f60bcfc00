package elf

// Section is the logical view of a section: its resolved name, its raw
// payload bytes, and the file offset/virtual address it occupied in its
// source object. The NULL section (index 0) is represented with an empty
// payload; this is intentional, not an error case.
type Section struct {
	Name           string
	RawType        SectionType
	Bytes          []byte
	Offset         uint64
	VirtualAddress uint64
}

// SymbolInfo is a symbol table entry with its name already resolved
// through the symbol string table.
type SymbolInfo struct {
	Name   string
	Record SymbolRecord
}

// IsDefined reports whether this symbol is defined in its owning object
// (section index != SHN_UNDEF).
func (s SymbolInfo) IsDefined() bool {
	return s.Record.Defined()
}

// Relocation is a logical relocation: the offset within its owning
// section, the raw info/addend fields, and a value copy of the symbol it
// references. The copy (rather than an index or pointer back into the
// owning Relocatable's symbol slice) keeps the relocation graph acyclic.
// A relocation never needs to reach back into its parent to know what it
// points at.
type Relocation struct {
	Offset int
	Info   uint64
	Addend int64
	Symbol SymbolInfo
}

// Type returns the relocation type named by the low 32 bits of Info.
func (r Relocation) Type() RelocationType {
	return relocationTypeFromRaw(uint32(r.Info))
}

// RawType returns the unnormalized low 32 bits of Info.
func (r Relocation) RawType() uint32 {
	return uint32(r.Info)
}

// Relocatable is the logical, fully-decoded view of one input object
// file: its sections, its symbol table (index order preserved, since
// relocations reference symbols by position), and its relocations.
type Relocatable struct {
	Path        string
	Sections    []Section
	Symbols     []SymbolInfo
	Relocations []Relocation
}

// FindSection returns the index of the first section named name, or -1.
func (r *Relocatable) FindSection(name string) int {
	for i, s := range r.Sections {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Executable is the fully populated logical executable, with fields in
// final on-disk order: file header, program headers, the padding placed
// before the text section, the merged text bytes, the section-name
// string table, and the section headers.
type Executable struct {
	FileHeader      FileHeader
	ProgramHeaders  []ProgramHeader
	PreTextPad      int
	TextSection     []byte
	SectionNameTable StringTable
	SectionHeaders  []SectionHeader
}
