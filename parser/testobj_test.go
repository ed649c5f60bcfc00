package parser

import (
	"encoding/binary"

	"github.com/neeilan/weld/elf"
)

// relocatableBuilder assembles a minimal ELF64 relocatable object file for
// use in tests, following the wire-format-builder pattern the teacher uses
// in its linker tests (construct field-by-field, then call build()).
// It supports exactly the section layout weld's parser understands: NULL,
// .text, .symtab, .strtab, .shstrtab, and optionally .rela.text.
type relocatableBuilder struct {
	text []byte

	// symbols to emit, name resolved through .strtab automatically.
	symbols []testSymbol
	// relocations to emit against .text, referencing symbols by index
	// into the symbols slice above.
	relocs []testReloc
}

type testSymbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Defined bool // false => SHN_UNDEF (section index 0)
}

type testReloc struct {
	Offset    uint64
	SymIndex  uint32
	Type      uint32
	Addend    int64
}

func (b *relocatableBuilder) build() []byte {
	const sectionIndexText = 1
	const sectionIndexSymtab = 2
	const sectionIndexStrtab = 3
	const sectionIndexShstrtab = 4
	const sectionIndexRelaText = 5

	hasRelocs := len(b.relocs) > 0
	numSections := 5
	if hasRelocs {
		numSections = 6
	}

	// .strtab: symbol names.
	strtab := []byte{0}
	nameOffsets := make([]uint32, len(b.symbols))
	for i, s := range b.symbols {
		nameOffsets[i] = uint32(len(strtab))
		strtab = append(strtab, []byte(s.Name)...)
		strtab = append(strtab, 0)
	}

	// .symtab: one SymbolRecord per symbol, in order (the real ELF
	// convention of a null symbol at index 0 is not required by this
	// parser, so tests may omit it for brevity).
	symtab := make([]byte, 0, len(b.symbols)*elf.SymbolSize)
	for i, s := range b.symbols {
		rec := make([]byte, elf.SymbolSize)
		binary.LittleEndian.PutUint32(rec[0:4], nameOffsets[i])
		sectionIdx := uint16(0)
		if s.Defined {
			sectionIdx = sectionIndexText
		}
		binary.LittleEndian.PutUint16(rec[6:8], sectionIdx)
		binary.LittleEndian.PutUint64(rec[8:16], s.Value)
		binary.LittleEndian.PutUint64(rec[16:24], s.Size)
		symtab = append(symtab, rec...)
	}

	// .rela.text: one RelocationWithAddend per entry.
	relatext := make([]byte, 0, len(b.relocs)*elf.RelocationSize)
	for _, r := range b.relocs {
		rec := make([]byte, elf.RelocationSize)
		binary.LittleEndian.PutUint64(rec[0:8], r.Offset)
		info := (uint64(r.SymIndex) << 32) | uint64(r.Type)
		binary.LittleEndian.PutUint64(rec[8:16], info)
		binary.LittleEndian.PutUint64(rec[16:24], uint64(r.Addend))
		relatext = append(relatext, rec...)
	}

	// .shstrtab: section names.
	shstrtab := []byte{0}
	insert := func(s string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(s)...)
		shstrtab = append(shstrtab, 0)
		return off
	}
	nullName := insert("")
	textName := insert(".text")
	symtabName := insert(".symtab")
	strtabName := insert(".strtab")
	shstrtabName := insert(".shstrtab")
	var relaName uint32
	if hasRelocs {
		relaName = insert(".rela.text")
	}

	// Layout file offsets after the fixed header + section header table.
	headerSize := elf.FileHeaderSize
	shtOffset := headerSize
	dataStart := shtOffset + numSections*elf.SectionHeaderSize

	textOff := dataStart
	symtabOff := textOff + len(b.text)
	strtabOff := symtabOff + len(symtab)
	shstrtabOff := strtabOff + len(strtab)
	relaOff := shstrtabOff + len(shstrtab)

	var buf []byte

	// File header.
	fh := make([]byte, elf.FileHeaderSize)
	fh[0], fh[1], fh[2], fh[3] = 0x7F, 'E', 'L', 'F'
	fh[4] = elf.ClassELF64
	fh[5] = elf.DataLittleEndian
	fh[6] = 1
	binary.LittleEndian.PutUint16(fh[16:18], 1) // ET_REL
	binary.LittleEndian.PutUint16(fh[18:20], elf.MachineX8664)
	binary.LittleEndian.PutUint32(fh[20:24], 1)
	binary.LittleEndian.PutUint64(fh[40:48], uint64(shtOffset))
	binary.LittleEndian.PutUint16(fh[60:62], uint16(numSections))
	binary.LittleEndian.PutUint16(fh[62:64], sectionIndexShstrtab)
	buf = append(buf, fh...)

	sh := func(nameOff uint32, typ elf.SectionType, off, size int, link uint32) []byte {
		rec := make([]byte, elf.SectionHeaderSize)
		binary.LittleEndian.PutUint32(rec[0:4], nameOff)
		binary.LittleEndian.PutUint32(rec[4:8], uint32(typ))
		binary.LittleEndian.PutUint64(rec[24:32], uint64(off))
		binary.LittleEndian.PutUint64(rec[32:40], uint64(size))
		binary.LittleEndian.PutUint32(rec[40:44], link)
		return rec
	}

	buf = append(buf, sh(nullName, elf.SectionTypeNone, 0, 0, 0)...)
	buf = append(buf, sh(textName, elf.SectionTypeProgramData, textOff, len(b.text), 0)...)
	buf = append(buf, sh(symtabName, elf.SectionTypeSymbolTable, symtabOff, len(symtab), sectionIndexStrtab)...)
	buf = append(buf, sh(strtabName, elf.SectionTypeStringTable, strtabOff, len(strtab), 0)...)
	buf = append(buf, sh(shstrtabName, elf.SectionTypeStringTable, shstrtabOff, len(shstrtab), 0)...)
	if hasRelocs {
		buf = append(buf, sh(relaName, elf.SectionTypeRelocationWithAddend, relaOff, len(relatext), sectionIndexSymtab)...)
	}

	buf = append(buf, b.text...)
	buf = append(buf, symtab...)
	buf = append(buf, strtab...)
	buf = append(buf, shstrtab...)
	if hasRelocs {
		buf = append(buf, relatext...)
	}

	_ = sectionIndexRelaText // documents the index scheme above
	return buf
}
