package parser

import "fmt"

// MissingSymbolTableError means no section of type SymbolTable was found.
type MissingSymbolTableError struct {
	Path string
}

func (e MissingSymbolTableError) Error() string {
	return fmt.Sprintf("%s: missing symbol table", e.Path)
}

// MissingStringTableError means the symbol string table could not be
// located (the symbol table's link field does not name a StringTable
// section).
type MissingStringTableError struct {
	Path string
}

func (e MissingStringTableError) Error() string {
	return fmt.Sprintf("%s: missing symbol string table", e.Path)
}
