// Package parser decodes a single 64-bit little-endian x86-64 ELF
// relocatable object into weld's logical representation (see package elf).
// Parse is a pure function: it never touches disk or any other shared
// state, and it fails with an error describing which invariant in the
// input buffer did not hold. That error is typed (or wraps a typed error)
// except for an out-of-range relocation symbol index, which is reported
// as a plain formatted error.
package parser

import (
	"fmt"

	"github.com/neeilan/weld/elf"
)

// Parse decodes bytes, labeled by path for error messages, into a logical
// Relocatable. path is a label only. Parse never reads from disk.
func Parse(path string, bytes []byte) (*elf.Relocatable, error) {
	header, err := elf.DecodeFileHeader(bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := header.ValidateIdentification(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	sectionHeaders, err := parseSectionHeaders(bytes, header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if int(header.SectionHeaderStringTableIndex) >= len(sectionHeaders) {
		return nil, fmt.Errorf("%s: %w", path, elf.BadStringOffsetError{Offset: int(header.SectionHeaderStringTableIndex)})
	}
	shstrtabHeader := sectionHeaders[header.SectionHeaderStringTableIndex]
	sectionNames, err := parseStringTable(bytes, shstrtabHeader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	symbols, err := parseSymbolTable(bytes, sectionHeaders, path)
	if err != nil {
		return nil, err
	}

	relocations, err := parseRelocations(bytes, sectionHeaders, symbols, path)
	if err != nil {
		return nil, err
	}

	sections, err := parseSectionBodies(bytes, sectionHeaders, sectionNames, path)
	if err != nil {
		return nil, err
	}

	return &elf.Relocatable{
		Path:        path,
		Sections:    sections,
		Symbols:     symbols,
		Relocations: relocations,
	}, nil
}

func parseSectionHeaders(buf []byte, header elf.FileHeader) ([]elf.SectionHeader, error) {
	headers := make([]elf.SectionHeader, 0, header.SectionHeaderEntryCount)
	for i := 0; i < int(header.SectionHeaderEntryCount); i++ {
		off := int(header.SectionHeaderOffset) + i*elf.SectionHeaderSize
		sh, err := elf.DecodeSectionHeader(buf, off)
		if err != nil {
			return nil, err
		}
		headers = append(headers, sh)
	}
	return headers, nil
}

func parseStringTable(buf []byte, header elf.SectionHeader) (elf.StringTable, error) {
	start := int(header.Offset)
	end := start + int(header.Size)
	if start < 0 || end > len(buf) {
		return elf.StringTable{}, elf.TruncatedError{Expected: end, Actual: len(buf)}
	}
	return elf.NewStringTable(buf[start:end]), nil
}

// findSymbolStringTable locates the symbol string table using the symbol
// table section's link_to_other_section field, which the ELF ABI defines
// as exactly this pointer. That is more robust than scanning for "the
// other string-table section".
func findSymbolStringTable(buf []byte, sectionHeaders []elf.SectionHeader, symtabHeader elf.SectionHeader, path string) (elf.StringTable, error) {
	link := int(symtabHeader.LinkToOtherSection)
	if link <= 0 || link >= len(sectionHeaders) || sectionHeaders[link].Type != elf.SectionTypeStringTable {
		return elf.StringTable{}, MissingStringTableError{Path: path}
	}
	return parseStringTable(buf, sectionHeaders[link])
}

func parseSymbolTable(buf []byte, sectionHeaders []elf.SectionHeader, path string) ([]elf.SymbolInfo, error) {
	var symtabHeader *elf.SectionHeader
	for i := range sectionHeaders {
		if sectionHeaders[i].Type == elf.SectionTypeSymbolTable {
			symtabHeader = &sectionHeaders[i]
			break
		}
	}
	if symtabHeader == nil {
		return nil, MissingSymbolTableError{Path: path}
	}

	names, err := findSymbolStringTable(buf, sectionHeaders, *symtabHeader, path)
	if err != nil {
		return nil, err
	}

	count := int(symtabHeader.Size) / elf.SymbolSize
	symbols := make([]elf.SymbolInfo, 0, count)
	for i := 0; i < count; i++ {
		off := int(symtabHeader.Offset) + i*elf.SymbolSize
		rec, err := elf.DecodeSymbolRecord(buf, off)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		name, err := names.Get(int(rec.NameOffset))
		if err != nil {
			return nil, fmt.Errorf("%s: symbol %d: %w", path, i, err)
		}
		symbols = append(symbols, elf.SymbolInfo{Name: name, Record: rec})
	}
	return symbols, nil
}

func parseRelocations(buf []byte, sectionHeaders []elf.SectionHeader, symbols []elf.SymbolInfo, path string) ([]elf.Relocation, error) {
	var relaHeader *elf.SectionHeader
	for i := range sectionHeaders {
		if sectionHeaders[i].Type == elf.SectionTypeRelocationWithAddend {
			relaHeader = &sectionHeaders[i]
			break
		}
	}
	if relaHeader == nil {
		return nil, nil
	}

	count := int(relaHeader.Size) / elf.RelocationSize
	relocations := make([]elf.Relocation, 0, count)
	for i := 0; i < count; i++ {
		off := int(relaHeader.Offset) + i*elf.RelocationSize
		rec, err := elf.DecodeRelocationWithAddend(buf, off)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		symIdx := int(rec.Symbol())
		if symIdx < 0 || symIdx >= len(symbols) {
			return nil, fmt.Errorf("%s: relocation %d: symbol index %d out of range (symbol table has %d entries)", path, i, symIdx, len(symbols))
		}
		relocations = append(relocations, elf.Relocation{
			Offset: int(rec.Offset),
			Info:   rec.Info,
			Addend: rec.Addend,
			Symbol: symbols[symIdx],
		})
	}
	return relocations, nil
}

func parseSectionBodies(buf []byte, sectionHeaders []elf.SectionHeader, names elf.StringTable, path string) ([]elf.Section, error) {
	sections := make([]elf.Section, 0, len(sectionHeaders))
	for i, sh := range sectionHeaders {
		name, err := names.Get(int(sh.NameOffset))
		if err != nil {
			return nil, fmt.Errorf("%s: section %d: %w", path, i, err)
		}

		var payload []byte
		if sh.Type != elf.SectionTypeProgramSpaceWithNoData && sh.Size > 0 {
			start := int(sh.Offset)
			end := start + int(sh.Size)
			if start < 0 || end > len(buf) {
				return nil, fmt.Errorf("%s: section %q: %w", path, name, elf.TruncatedError{Expected: end, Actual: len(buf)})
			}
			payload = make([]byte, sh.Size)
			copy(payload, buf[start:end])
		}

		sections = append(sections, elf.Section{
			Name:           name,
			RawType:        sh.Type,
			Bytes:          payload,
			Offset:         sh.Offset,
			VirtualAddress: sh.VirtualAddress,
		})
	}
	return sections, nil
}
