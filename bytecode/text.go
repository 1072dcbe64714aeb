// Package bytecode implements the two text/binary codecs named in
// spec.md §4.1/§6: a line-oriented `.ttvm` text assembler and a
// tag-prefixed `.ttb` binary format. The two-pass label resolution
// scheme mirrors the teacher's vm/compile.go + vm/parse.go split (pass
// one collects labels, pass two resolves operands against them), and the
// line preprocessing (stripping comments, trimming blank lines) mirrors
// vm/vm.go's preprocessLine.
package bytecode

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tinytotvm/opcode"
	"tinytotvm/vmerr"
)

// Program is the result of assembling or loading bytecode: the
// instruction vector plus an optional instruction-index -> source-text map
// used for error reporting and debug printing, exactly as the teacher's
// debugSymbols does for vm/vm.go.
type Program struct {
	Instructions []opcode.Instruction
	DebugSym     map[int]string
}

// AssembleFile reads and assembles a single .ttvm file.
func AssembleFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &vmerr.FileError{Filename: path, Reason: err}
	}
	defer f.Close()

	lines := make([]string, 0, 256)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, &vmerr.FileError{Filename: path, Reason: err}
	}

	return Assemble(lines)
}

// Assemble runs the two-pass translation over in-memory source lines.
func Assemble(lines []string) (*Program, error) {
	labels := make(map[string]int)
	type rawLine struct {
		mnemonic string
		operand  string
		source   string
		line     int // 1-based source line number
	}
	raw := make([]rawLine, 0, len(lines))
	debugSym := make(map[int]string)

	// Pass one: strip comments/whitespace, record labels, collect the
	// remaining (mnemonic, operand) pairs at their final instruction
	// index.
	for lineNo, line := range lines {
		stripped := stripComment(line)
		stripped = strings.TrimSpace(stripped)
		if stripped == "" {
			continue
		}

		if mnemonic, ok := labelName(stripped); ok {
			labels[mnemonic] = len(raw)
			continue
		}

		fields := strings.SplitN(stripped, " ", 2)
		mnemonic := fields[0]
		operand := ""
		if len(fields) > 1 {
			operand = strings.TrimSpace(fields[1])
		}

		debugSym[len(raw)] = stripped
		raw = append(raw, rawLine{mnemonic: mnemonic, operand: operand, source: stripped, line: lineNo + 1})
	}

	// Pass two: resolve each instruction, substituting label operands
	// for their instruction index.
	instructions := make([]opcode.Instruction, 0, len(raw))
	for _, rl := range raw {
		instr, err := parseInstruction(rl.mnemonic, rl.operand, labels)
		if err != nil {
			return nil, &vmerr.ParseError{Line: rl.line, Instruction: rl.source}
		}
		instructions = append(instructions, instr)
	}

	return &Program{Instructions: instructions, DebugSym: debugSym}, nil
}

func stripComment(line string) string {
	if idx := strings.Index(line, ";"); idx >= 0 {
		return line[:idx]
	}
	return line
}

// labelName returns (name, true) if the line declares "LABEL <name>".
func labelName(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 2 && strings.EqualFold(fields[0], "label") {
		return fields[1], true
	}
	return "", false
}

func parseInstruction(mnemonic, operand string, labels map[string]int) (opcode.Instruction, error) {
	code, ok := opcode.Lookup(mnemonic)
	if !ok {
		return opcode.Instruction{}, fmt.Errorf("unknown mnemonic: %s", mnemonic)
	}

	instr := opcode.Instruction{Code: code}

	if !code.RequiresOperand() {
		return instr, nil
	}
	if operand == "" {
		return opcode.Instruction{}, fmt.Errorf("missing operand for %s", mnemonic)
	}

	switch code {
	case opcode.Jmp, opcode.Jz, opcode.Try:
		addr, err := resolveAddr(operand, labels)
		if err != nil {
			return opcode.Instruction{}, err
		}
		instr.Addr = addr
	case opcode.Call:
		parts := strings.Fields(operand)
		if len(parts) == 0 {
			return opcode.Instruction{}, fmt.Errorf("call requires an address")
		}
		addr, err := resolveAddr(parts[0], labels)
		if err != nil {
			return opcode.Instruction{}, err
		}
		instr.Addr = addr
		instr.Params = parts[1:]
	case opcode.PushStr, opcode.Store, opcode.Load, opcode.Delete,
		opcode.SetField, opcode.GetField, opcode.HasField, opcode.DeleteField,
		opcode.Import, opcode.Export, opcode.Capture, opcode.Register,
		opcode.Unregister, opcode.Whereis, opcode.SendNamed, opcode.Demonitor,
		opcode.SuperviseChild, opcode.RestartChild:
		instr.Str = unquote(operand)
	case opcode.PushInt:
		n, err := strconv.ParseInt(operand, 0, 64)
		if err != nil {
			return opcode.Instruction{}, err
		}
		instr.Int = n
	case opcode.PushFloat:
		f, err := strconv.ParseFloat(operand, 64)
		if err != nil {
			return opcode.Instruction{}, err
		}
		instr.Float = f
	case opcode.PushBool:
		b, err := strconv.ParseBool(operand)
		if err != nil {
			return opcode.Instruction{}, err
		}
		instr.Bool = b
	case opcode.MakeList:
		n, err := strconv.Atoi(operand)
		if err != nil {
			return opcode.Instruction{}, err
		}
		instr.Count = n
	case opcode.MakeFunction, opcode.MakeLambda:
		parts := strings.Fields(operand)
		if len(parts) == 0 {
			return opcode.Instruction{}, fmt.Errorf("%s requires an address", mnemonic)
		}
		addr, err := resolveAddr(parts[0], labels)
		if err != nil {
			return opcode.Instruction{}, err
		}
		instr.Addr = addr
		instr.Params = parts[1:]
	case opcode.Send, opcode.Monitor, opcode.Link, opcode.Unlink:
		n, err := strconv.ParseInt(operand, 0, 64)
		if err != nil {
			return opcode.Instruction{}, err
		}
		instr.Int = n
	case opcode.ReceiveMatch:
		// Pattern list syntax isn't carried through .ttvm source in this
		// system -- RECEIVE_MATCH programs are constructed directly
		// against the opcode API (e.g. from Go test code or a future
		// front end), matching the non-goal on a textual pattern
		// sub-language.
		return opcode.Instruction{}, fmt.Errorf("receive_match is not constructible from text assembly")
	}

	return instr, nil
}

func resolveAddr(operand string, labels map[string]int) (int, error) {
	if addr, ok := labels[operand]; ok {
		return addr, nil
	}
	n, err := strconv.Atoi(operand)
	if err != nil {
		return 0, &vmerr.UnknownLabel{Name: operand}
	}
	return n, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
