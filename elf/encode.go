package elf

import (
	"bytes"
	"io"
)

// WriteTo serializes the executable to w in strict on-disk order: file
// header, program headers, pre-text padding, merged text, section-name
// string table, then section headers. Executable satisfies io.WriterTo so
// callers (the CLI collaborator) can stream it straight to a file without
// the core allocating the whole image up front.
func (e *Executable) WriteTo(w io.Writer) (int64, error) {
	var total int64

	write := func(b []byte) error {
		n, err := w.Write(b)
		total += int64(n)
		return err
	}

	if err := write(e.FileHeader.Encode()); err != nil {
		return total, err
	}
	for _, ph := range e.ProgramHeaders {
		if err := write(ph.Encode()); err != nil {
			return total, err
		}
	}
	if e.PreTextPad > 0 {
		if err := write(make([]byte, e.PreTextPad)); err != nil {
			return total, err
		}
	}
	if err := write(e.TextSection); err != nil {
		return total, err
	}
	if err := write(e.SectionNameTable.Bytes()); err != nil {
		return total, err
	}
	for _, sh := range e.SectionHeaders {
		if err := write(sh.Encode()); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Bytes serializes the executable into a single in-memory buffer. Used by
// tests and by small callers that don't need streaming.
func (e *Executable) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
