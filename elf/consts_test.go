package elf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRecordSizesMatchWireFormat asserts that every on-disk record with an
// encoder (FileHeader, SectionHeader, ProgramHeader) encodes to exactly
// its ABI-mandated byte count.
func TestRecordSizesMatchWireFormat(t *testing.T) {
	require.Len(t, FileHeader{}.Encode(), FileHeaderSize)
	require.Len(t, SectionHeader{}.Encode(), SectionHeaderSize)
	require.Len(t, ProgramHeader{}.Encode(), ProgramHeaderSize)
}

func TestRelocationTypeRoundTrip(t *testing.T) {
	r := RelocationWithAddend{Info: (uint64(3) << 32) | 4}
	require.EqualValues(t, 3, r.Symbol())
	require.Equal(t, RelocationTypePlt32, r.Type())

	unknown := RelocationWithAddend{Info: (uint64(1) << 32) | 2}
	require.Equal(t, RelocationTypeUnknown, unknown.Type(), "unrecognized raw type normalizes to Unknown")
	require.EqualValues(t, 2, unknown.RawType(), "the raw value itself is preserved, not discarded")
}

func TestSymbolRecordDefined(t *testing.T) {
	require.False(t, (SymbolRecord{SectionIndex: 0}).Defined())
	require.True(t, (SymbolRecord{SectionIndex: 1}).Defined())
}
