// Package linker merges one or more parsed ELF relocatables into a single
// statically-linked executable image: it merges .text sections, resolves
// symbols, applies PC-relative PLT32 relocations, and synthesizes the
// output file, program, and section headers.
//
// Link is single-threaded and synchronous, and observes strict argument
// order for every pass. That is what makes the merged layout
// deterministic across runs.
package linker

import (
	"encoding/binary"
	"math"

	"github.com/hashicorp/go-multierror"

	"github.com/neeilan/weld/elf"
)

const (
	pageSize        = 0x1000
	baseVirtualAddr = 0x400000
	textVirtualAddr = 0x401000

	numProgramHeaders = 2
	numSectionHeaders = 3

	// Carried forward from the original implementation's output; nothing
	// else constrains this value.
	processorSpecificFlags = 0x00000102
)

// nonFatal is implemented by the one error type that is always
// accumulated and never halts the pipeline.
type nonFatal interface {
	nonFatalLinkError()
}

func (UnhandledRelocationError) nonFatalLinkError() {}

func hasFatalError(errs *multierror.Error) bool {
	for _, err := range errorsOf(errs) {
		if _, ok := err.(nonFatal); !ok {
			return true
		}
	}
	return false
}

// errorsOf safely reads the accumulated error slice, including from a nil
// *multierror.Error (the zero-errors case).
func errorsOf(errs *multierror.Error) []error {
	if errs == nil {
		return nil
	}
	return errs.Errors
}

// Link merges inputs, in argument order, into a fully populated
// Executable. On any fatal failure it returns a nil Executable and the
// accumulated error list; UnhandledRelocationError is always accumulated
// and never fatal on its own, so a successful Executable may still come
// back alongside a non-nil *multierror.Error full of warnings.
func Link(inputs []*elf.Relocatable) (*elf.Executable, *multierror.Error) {
	var errs *multierror.Error

	mergedText, sectionStart, textErrs := mergeText(inputs)
	errs = multierror.Append(errs, errorsOf(textErrs)...)
	if errs.ErrorOrNil() != nil {
		return nil, errs
	}

	globalSyms, symErrs := collectSymbols(inputs, sectionStart)
	errs = multierror.Append(errs, errorsOf(symErrs)...)
	if errs.ErrorOrNil() != nil {
		return nil, errs
	}

	relocErrs := applyRelocations(inputs, sectionStart, globalSyms, mergedText)
	errs = multierror.Append(errs, errorsOf(relocErrs)...)
	if hasFatalError(errs) {
		return nil, errs
	}

	entryOffset, ok := globalSyms["_start"]
	if !ok {
		errs = multierror.Append(errs, MissingEntryPointError{})
		return nil, errs
	}

	exec := synthesize(mergedText, entryOffset)
	return exec, errs
}

// mergeText is pass 1: locate each input's .text section, record its
// start offset in the merged buffer, and append its bytes.
func mergeText(inputs []*elf.Relocatable) ([]byte, map[string]int, *multierror.Error) {
	var errs *multierror.Error
	var mergedText []byte
	sectionStart := make(map[string]int, len(inputs))

	for _, in := range inputs {
		idx := in.FindSection(".text")
		if idx == -1 {
			errs = multierror.Append(errs, MissingTextError{Path: in.Path})
			continue
		}
		sectionStart[in.Path] = len(mergedText)
		mergedText = append(mergedText, in.Sections[idx].Bytes...)
	}
	return mergedText, sectionStart, errs
}

// collectSymbols is pass 2: record every defined symbol's global offset,
// computed relative to the start of its owning input's merged .text.
func collectSymbols(inputs []*elf.Relocatable, sectionStart map[string]int) (map[string]int, *multierror.Error) {
	var errs *multierror.Error
	globalSyms := make(map[string]int)

	for _, in := range inputs {
		base := sectionStart[in.Path]
		for _, sym := range in.Symbols {
			if !sym.IsDefined() {
				continue
			}
			if _, exists := globalSyms[sym.Name]; exists {
				errs = multierror.Append(errs, DuplicateSymbolError{Name: sym.Name})
				continue
			}
			globalSyms[sym.Name] = base + int(sym.Record.Value)
		}
	}
	return globalSyms, errs
}

// applyRelocations is pass 3: patch every Plt32 relocation site in place;
// any other relocation type is recorded and left untouched.
func applyRelocations(inputs []*elf.Relocatable, sectionStart map[string]int, globalSyms map[string]int, mergedText []byte) *multierror.Error {
	var errs *multierror.Error

	for _, in := range inputs {
		base := sectionStart[in.Path]
		for _, r := range in.Relocations {
			if r.Type() != elf.RelocationTypePlt32 {
				errs = multierror.Append(errs, UnhandledRelocationError{Type: r.RawType(), Path: in.Path})
				continue
			}

			symbolOffset, ok := globalSyms[r.Symbol.Name]
			if !ok {
				errs = multierror.Append(errs, UndefinedSymbolError{Name: r.Symbol.Name})
				continue
			}

			patchSite := base + r.Offset
			value := int64(symbolOffset) - int64(patchSite) + r.Addend
			if value > math.MaxInt32 || value < math.MinInt32 {
				errs = multierror.Append(errs, RelocationOverflowError{Symbol: r.Symbol.Name, At: patchSite})
				continue
			}

			binary.LittleEndian.PutUint32(mergedText[patchSite:patchSite+4], uint32(int32(value)))
		}
	}
	return errs
}

// synthesize is pass 5: build the output file header, program headers,
// section-name string table, and section headers around the already
// merged and relocated text.
func synthesize(mergedText []byte, entryOffset int) *elf.Executable {
	exec := &elf.Executable{TextSection: mergedText}
	exec.PreTextPad = preTextPad(numProgramHeaders)

	textFileOffset := elf.FileHeaderSize + numProgramHeaders*elf.ProgramHeaderSize + exec.PreTextPad

	shstrtab := elf.DefaultStringTable()
	textNameOff := shstrtab.Insert(".text")
	shstrtabNameOff := shstrtab.Insert(".shstrtab")

	exec.ProgramHeaders = []elf.ProgramHeader{
		{
			SegmentType:       elf.SegmentTypeLoadable,
			Flags:             elf.SegmentFlagRead,
			Offset:            0,
			VirtualAddress:    baseVirtualAddr,
			PhysicalAddress:   baseVirtualAddr,
			SizeInFile:        uint64(elf.FileHeaderSize + numProgramHeaders*elf.ProgramHeaderSize),
			SizeInMemory:      uint64(elf.FileHeaderSize + numProgramHeaders*elf.ProgramHeaderSize),
			RequiredAlignment: pageSize,
		},
		{
			SegmentType:       elf.SegmentTypeLoadable,
			Flags:             elf.SegmentFlagRead | elf.SegmentFlagExecute,
			Offset:            uint64(textFileOffset),
			VirtualAddress:    textVirtualAddr,
			PhysicalAddress:   textVirtualAddr,
			SizeInFile:        uint64(len(mergedText)),
			SizeInMemory:      uint64(len(mergedText)),
			RequiredAlignment: pageSize,
		},
	}

	exec.SectionHeaders = []elf.SectionHeader{
		{Flags: elf.SectionFlagAlloc | elf.SectionFlagExecutable},
		{
			NameOffset:         uint32(textNameOff),
			Type:               elf.SectionTypeProgramData,
			Flags:              elf.SectionFlagAlloc | elf.SectionFlagExecutable,
			VirtualAddress:     textVirtualAddr,
			Offset:             uint64(textFileOffset),
			Size:               uint64(len(mergedText)),
			AddressAlignment:   1,
		},
		{
			NameOffset:       uint32(shstrtabNameOff),
			Type:             elf.SectionTypeStringTable,
			Flags:            elf.SectionFlagAlloc | elf.SectionFlagExecutable,
			Offset:           uint64(textFileOffset + len(mergedText)),
			Size:             uint64(shstrtab.Len()),
			AddressAlignment: 1,
		},
	}
	exec.SectionNameTable = shstrtab

	sectionHeaderOffset := textFileOffset + len(mergedText) + shstrtab.Len()

	exec.FileHeader = elf.FileHeader{
		Magic:                         [4]byte{elf.MagicByte0, elf.MagicByte1, elf.MagicByte2, elf.MagicByte3},
		Class:                         elf.ClassELF64,
		DataEncoding:                  elf.DataLittleEndian,
		Version:                       1,
		ObjectFileType:                elf.TypeExec,
		MachineType:                   elf.MachineX8664,
		ObjectFileVersion:             1,
		Entrypoint:                    textVirtualAddr + uint64(entryOffset),
		ProgramHeaderOffset:           elf.FileHeaderSize,
		SectionHeaderOffset:           uint64(sectionHeaderOffset),
		ProcessorSpecificFlags:        processorSpecificFlags,
		FileHeaderSizeField:           elf.FileHeaderSize,
		ProgramHeaderEntrySize:        elf.ProgramHeaderSize,
		ProgramHeaderEntryCount:       numProgramHeaders,
		SectionHeaderEntrySize:        elf.SectionHeaderSize,
		SectionHeaderEntryCount:       numSectionHeaders,
		SectionHeaderStringTableIndex: numSectionHeaders - 1,
	}

	return exec
}

// preTextPad chooses the padding so the text section's file offset lands
// on a page boundary, satisfying the ABI requirement that p_offset and
// p_vaddr agree modulo the page size for mmap-based loading. That holds
// while the file header and program headers fit in the first page (as
// with the two headers weld emits); past that, the padding is the header
// size modulo the page size, which does not page-align the text.
func preTextPad(numProgramHeaders int) int {
	unpadded := elf.FileHeaderSize + numProgramHeaders*elf.ProgramHeaderSize
	if unpadded < pageSize {
		return pageSize - unpadded
	}
	return unpadded % pageSize
}
