package bytecode

import (
	"path/filepath"
	"strings"
)

// LoadFile dispatches on file extension the same way the teacher's
// compile step dispatches on source vs. already-compiled input: `.ttvm`
// goes through the text assembler, `.ttb` through the binary decoder.
func LoadFile(path string) (*Program, error) {
	if strings.EqualFold(filepath.Ext(path), ".ttb") {
		return LoadBinaryFile(path)
	}
	return AssembleFile(path)
}
