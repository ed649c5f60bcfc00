package elf

import "encoding/binary"

// FileHeader is the 64-byte ELF file header. Fields are decoded
// explicitly, byte-by-byte, rather than by reinterpreting a pointer to a
// Go struct: struct layout and padding are not guaranteed to match the
// wire format across platforms, and encoding/binary is the idiomatic
// way to get bit-exact little-endian decoding regardless.
type FileHeader struct {
	Magic        [4]byte
	Class        uint8
	DataEncoding uint8
	Version      uint8
	OSABI        uint8
	// 8 reserved/padding bytes, always zero, not retained individually.

	ObjectFileType                uint16
	MachineType                   uint16
	ObjectFileVersion             uint32
	Entrypoint                    uint64
	ProgramHeaderOffset           uint64
	SectionHeaderOffset           uint64
	ProcessorSpecificFlags        uint32
	FileHeaderSizeField           uint16
	ProgramHeaderEntrySize        uint16
	ProgramHeaderEntryCount       uint16
	SectionHeaderEntrySize        uint16
	SectionHeaderEntryCount       uint16
	SectionHeaderStringTableIndex uint16
}

// DecodeFileHeader decodes the first FileHeaderSize bytes of buf.
func DecodeFileHeader(buf []byte) (FileHeader, error) {
	var h FileHeader
	if len(buf) < FileHeaderSize {
		return h, TruncatedError{Expected: FileHeaderSize, Actual: len(buf)}
	}
	copy(h.Magic[:], buf[0:4])
	h.Class = buf[4]
	h.DataEncoding = buf[5]
	h.Version = buf[6]
	h.OSABI = buf[7]
	// buf[8:16] is the remaining identification padding.
	h.ObjectFileType = binary.LittleEndian.Uint16(buf[16:18])
	h.MachineType = binary.LittleEndian.Uint16(buf[18:20])
	h.ObjectFileVersion = binary.LittleEndian.Uint32(buf[20:24])
	h.Entrypoint = binary.LittleEndian.Uint64(buf[24:32])
	h.ProgramHeaderOffset = binary.LittleEndian.Uint64(buf[32:40])
	h.SectionHeaderOffset = binary.LittleEndian.Uint64(buf[40:48])
	h.ProcessorSpecificFlags = binary.LittleEndian.Uint32(buf[48:52])
	h.FileHeaderSizeField = binary.LittleEndian.Uint16(buf[52:54])
	h.ProgramHeaderEntrySize = binary.LittleEndian.Uint16(buf[54:56])
	h.ProgramHeaderEntryCount = binary.LittleEndian.Uint16(buf[56:58])
	h.SectionHeaderEntrySize = binary.LittleEndian.Uint16(buf[58:60])
	h.SectionHeaderEntryCount = binary.LittleEndian.Uint16(buf[60:62])
	h.SectionHeaderStringTableIndex = binary.LittleEndian.Uint16(buf[62:64])
	return h, nil
}

// Encode writes the 64-byte on-disk representation of h.
func (h FileHeader) Encode() []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf[0:4], h.Magic[:])
	buf[4] = h.Class
	buf[5] = h.DataEncoding
	buf[6] = h.Version
	buf[7] = h.OSABI
	// buf[8:16] left zero: reserved identification padding.
	binary.LittleEndian.PutUint16(buf[16:18], h.ObjectFileType)
	binary.LittleEndian.PutUint16(buf[18:20], h.MachineType)
	binary.LittleEndian.PutUint32(buf[20:24], h.ObjectFileVersion)
	binary.LittleEndian.PutUint64(buf[24:32], h.Entrypoint)
	binary.LittleEndian.PutUint64(buf[32:40], h.ProgramHeaderOffset)
	binary.LittleEndian.PutUint64(buf[40:48], h.SectionHeaderOffset)
	binary.LittleEndian.PutUint32(buf[48:52], h.ProcessorSpecificFlags)
	binary.LittleEndian.PutUint16(buf[52:54], h.FileHeaderSizeField)
	binary.LittleEndian.PutUint16(buf[54:56], h.ProgramHeaderEntrySize)
	binary.LittleEndian.PutUint16(buf[56:58], h.ProgramHeaderEntryCount)
	binary.LittleEndian.PutUint16(buf[58:60], h.SectionHeaderEntrySize)
	binary.LittleEndian.PutUint16(buf[60:62], h.SectionHeaderEntryCount)
	binary.LittleEndian.PutUint16(buf[62:64], h.SectionHeaderStringTableIndex)
	return buf
}

// ValidateIdentification checks the magic, class, and data-encoding bytes
// per spec §6. It does not check the rest of the header.
func (h FileHeader) ValidateIdentification() error {
	if h.Magic[0] != MagicByte0 || h.Magic[1] != MagicByte1 || h.Magic[2] != MagicByte2 || h.Magic[3] != MagicByte3 {
		return BadMagicError{Got: h.Magic}
	}
	if h.Class != ClassELF64 {
		return UnsupportedClassError{Got: h.Class}
	}
	if h.DataEncoding != DataLittleEndian {
		return UnsupportedEndiannessError{Got: h.DataEncoding}
	}
	return nil
}

// SectionHeader is the 64-byte on-disk section header entry.
type SectionHeader struct {
	NameOffset         uint32
	Type               SectionType
	Flags              SectionFlags
	VirtualAddress     uint64
	Offset             uint64
	Size               uint64
	LinkToOtherSection uint32
	MiscInfo           uint32
	AddressAlignment   uint64
	EntrySize          uint64
}

// DecodeSectionHeader decodes one section header at offset off in buf.
func DecodeSectionHeader(buf []byte, off int) (SectionHeader, error) {
	var sh SectionHeader
	if off < 0 || off+SectionHeaderSize > len(buf) {
		return sh, TruncatedError{Expected: off + SectionHeaderSize, Actual: len(buf)}
	}
	b := buf[off : off+SectionHeaderSize]
	sh.NameOffset = binary.LittleEndian.Uint32(b[0:4])
	sh.Type = SectionType(binary.LittleEndian.Uint32(b[4:8]))
	sh.Flags = SectionFlags(binary.LittleEndian.Uint64(b[8:16]))
	sh.VirtualAddress = binary.LittleEndian.Uint64(b[16:24])
	sh.Offset = binary.LittleEndian.Uint64(b[24:32])
	sh.Size = binary.LittleEndian.Uint64(b[32:40])
	sh.LinkToOtherSection = binary.LittleEndian.Uint32(b[40:44])
	sh.MiscInfo = binary.LittleEndian.Uint32(b[44:48])
	sh.AddressAlignment = binary.LittleEndian.Uint64(b[48:56])
	sh.EntrySize = binary.LittleEndian.Uint64(b[56:64])
	return sh, nil
}

// Encode writes the 64-byte on-disk representation of sh.
func (sh SectionHeader) Encode() []byte {
	buf := make([]byte, SectionHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], sh.NameOffset)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(sh.Type))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(sh.Flags))
	binary.LittleEndian.PutUint64(buf[16:24], sh.VirtualAddress)
	binary.LittleEndian.PutUint64(buf[24:32], sh.Offset)
	binary.LittleEndian.PutUint64(buf[32:40], sh.Size)
	binary.LittleEndian.PutUint32(buf[40:44], sh.LinkToOtherSection)
	binary.LittleEndian.PutUint32(buf[44:48], sh.MiscInfo)
	binary.LittleEndian.PutUint64(buf[48:56], sh.AddressAlignment)
	binary.LittleEndian.PutUint64(buf[56:64], sh.EntrySize)
	return buf
}

// ProgramHeader is the 56-byte on-disk program header entry.
type ProgramHeader struct {
	SegmentType       SegmentType
	Flags             SegmentFlags
	Offset            uint64
	VirtualAddress    uint64
	PhysicalAddress   uint64
	SizeInFile        uint64
	SizeInMemory      uint64
	RequiredAlignment uint64
}

// DecodeProgramHeader decodes one program header at offset off in buf.
func DecodeProgramHeader(buf []byte, off int) (ProgramHeader, error) {
	var ph ProgramHeader
	if off < 0 || off+ProgramHeaderSize > len(buf) {
		return ph, TruncatedError{Expected: off + ProgramHeaderSize, Actual: len(buf)}
	}
	b := buf[off : off+ProgramHeaderSize]
	ph.SegmentType = SegmentType(binary.LittleEndian.Uint32(b[0:4]))
	ph.Flags = SegmentFlags(binary.LittleEndian.Uint32(b[4:8]))
	ph.Offset = binary.LittleEndian.Uint64(b[8:16])
	ph.VirtualAddress = binary.LittleEndian.Uint64(b[16:24])
	ph.PhysicalAddress = binary.LittleEndian.Uint64(b[24:32])
	ph.SizeInFile = binary.LittleEndian.Uint64(b[32:40])
	ph.SizeInMemory = binary.LittleEndian.Uint64(b[40:48])
	ph.RequiredAlignment = binary.LittleEndian.Uint64(b[48:56])
	return ph, nil
}

// Encode writes the 56-byte on-disk representation of ph.
func (ph ProgramHeader) Encode() []byte {
	buf := make([]byte, ProgramHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(ph.SegmentType))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(ph.Flags))
	binary.LittleEndian.PutUint64(buf[8:16], ph.Offset)
	binary.LittleEndian.PutUint64(buf[16:24], ph.VirtualAddress)
	binary.LittleEndian.PutUint64(buf[24:32], ph.PhysicalAddress)
	binary.LittleEndian.PutUint64(buf[32:40], ph.SizeInFile)
	binary.LittleEndian.PutUint64(buf[40:48], ph.SizeInMemory)
	binary.LittleEndian.PutUint64(buf[48:56], ph.RequiredAlignment)
	return buf
}

// SymbolRecord is the 24-byte on-disk symbol table entry.
type SymbolRecord struct {
	NameOffset   uint32
	Info         uint8
	Other        uint8
	SectionIndex uint16
	Value        uint64
	Size         uint64
}

// Defined reports whether this symbol is defined (section index != 0,
// i.e. not SHN_UNDEF).
func (s SymbolRecord) Defined() bool {
	return s.SectionIndex != 0
}

// DecodeSymbolRecord decodes one symbol record at offset off in buf.
func DecodeSymbolRecord(buf []byte, off int) (SymbolRecord, error) {
	var s SymbolRecord
	if off < 0 || off+SymbolSize > len(buf) {
		return s, TruncatedError{Expected: off + SymbolSize, Actual: len(buf)}
	}
	b := buf[off : off+SymbolSize]
	s.NameOffset = binary.LittleEndian.Uint32(b[0:4])
	s.Info = b[4]
	s.Other = b[5]
	s.SectionIndex = binary.LittleEndian.Uint16(b[6:8])
	s.Value = binary.LittleEndian.Uint64(b[8:16])
	s.Size = binary.LittleEndian.Uint64(b[16:24])
	return s, nil
}

// RelocationWithAddend is the 24-byte on-disk Elf64_Rela entry.
type RelocationWithAddend struct {
	Offset uint64
	Info   uint64
	Addend int64
}

// Symbol returns the symbol table index named by the high 32 bits of Info.
func (r RelocationWithAddend) Symbol() uint32 {
	return uint32(r.Info >> 32)
}

// Type returns the relocation type named by the low 32 bits of Info.
func (r RelocationWithAddend) Type() RelocationType {
	return relocationTypeFromRaw(uint32(r.Info))
}

// RawType returns the unnormalized low 32 bits of Info.
func (r RelocationWithAddend) RawType() uint32 {
	return uint32(r.Info)
}

// DecodeRelocationWithAddend decodes one relocation record at offset off in buf.
func DecodeRelocationWithAddend(buf []byte, off int) (RelocationWithAddend, error) {
	var r RelocationWithAddend
	if off < 0 || off+RelocationSize > len(buf) {
		return r, TruncatedError{Expected: off + RelocationSize, Actual: len(buf)}
	}
	b := buf[off : off+RelocationSize]
	r.Offset = binary.LittleEndian.Uint64(b[0:8])
	r.Info = binary.LittleEndian.Uint64(b[8:16])
	r.Addend = int64(binary.LittleEndian.Uint64(b[16:24]))
	return r, nil
}
