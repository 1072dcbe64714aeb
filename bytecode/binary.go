// Binary codec for the `.ttb` format (spec.md §6). The "stable" tag table
// below reproduces the spec's partial table byte-for-byte -- those values
// must never change. Opcodes the spec's partial table does not cover
// (closures, exceptions, modules, concurrency, the I/O stub family) are
// assigned additional tags above 0x80 as a same-shaped extension of the
// format; decoders that only implement the stable subset would reject
// them, which is consistent with "unknown tags abort load".
package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"tinytotvm/opcode"
	"tinytotvm/vmerr"
)

// stableTags is the spec's partial, stable byte-tag table.
var stableTags = map[opcode.Code]byte{
	opcode.PushInt: 0x01,
	opcode.PushStr: 0x02,
	opcode.True:    0x03,
	opcode.False:   0x04,
	opcode.Null:    0x05,
	opcode.Not:     0x06,
	opcode.And:     0x07,
	opcode.Or:      0x08,
	opcode.Dup:     0x09,
	opcode.Add:     0x10,
	opcode.Sub:     0x11,
	opcode.Concat:  0x12,
	opcode.Eq:      0x20,
	opcode.Gt:      0x21,
	opcode.Lt:      0x22,
	opcode.Ne:      0x23,
	opcode.Ge:      0x24,
	opcode.Le:      0x25,
	opcode.Jmp:     0x30,
	opcode.Jz:      0x31,
	opcode.Call:    0x32,
	opcode.Ret:     0x33,
	opcode.Print:   0x40,
	opcode.Store:   0x50,
	opcode.Load:    0x51,
	opcode.Delete:  0x52,
	opcode.MakeList: 0x60,
	opcode.Len:      0x61,
	opcode.Index:    0x62,
	opcode.DumpScope: 0x70,
	opcode.ReadFile:  0x72,
	opcode.WriteFile: 0x73,
	opcode.Halt:      0xFF,
}

var tagToCode map[byte]opcode.Code

func init() {
	tagToCode = make(map[byte]opcode.Code, len(stableTags))
	tagUsed := make(map[byte]bool, len(stableTags))
	for code, tag := range stableTags {
		tagToCode[tag] = code
		tagUsed[tag] = true
	}

	// Extension range: every remaining opcode gets a tag starting at
	// 0x80, skipping any value already claimed by the stable table.
	next := byte(0x80)
	for code := opcode.Code(0); code < lastAssignableCode; code++ {
		if _, already := stableTags[code]; already {
			continue
		}
		if !validExtensionCode(code) {
			continue
		}
		for tagUsed[next] {
			next++
			if next == 0xFF {
				panic("bytecode: ran out of extension tag bytes")
			}
		}
		stableTags[code] = next
		tagToCode[next] = code
		tagUsed[next] = true
		next++
	}
}

// lastAssignableCode and validExtensionCode bound the extension loop to
// real opcodes; opcode.Code doesn't export its sentinel, so we probe via
// String() instead of depending on an unexported constant.
const lastAssignableCode = opcode.Code(200)

func validExtensionCode(code opcode.Code) bool {
	return code.String() != "?unknown?"
}

// EncodeBinary serializes a Program to the .ttb wire format.
func EncodeBinary(p *Program) ([]byte, error) {
	var buf bytes.Buffer
	for _, instr := range p.Instructions {
		tag, ok := stableTags[instr.Code]
		if !ok {
			return nil, fmt.Errorf("no binary tag assigned for opcode %s", instr.Code)
		}
		buf.WriteByte(tag)

		switch instr.Code {
		case opcode.PushInt:
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], uint64(instr.Int))
			buf.Write(tmp[:])
		case opcode.PushStr, opcode.Store, opcode.Load, opcode.Delete:
			if len(instr.Str) > 255 {
				return nil, fmt.Errorf("string operand too long for u8-length prefix: %q", instr.Str)
			}
			buf.WriteByte(byte(len(instr.Str)))
			buf.WriteString(instr.Str)
		case opcode.Jmp, opcode.Jz, opcode.Call:
			var tmp [2]byte
			binary.LittleEndian.PutUint16(tmp[:], uint16(instr.Addr))
			buf.Write(tmp[:])
		case opcode.MakeList:
			buf.WriteByte(byte(instr.Count))
		}
	}
	return buf.Bytes(), nil
}

// DecodeBinary parses the .ttb wire format, aborting on any unrecognized
// tag byte per spec.md §6.
func DecodeBinary(data []byte) (*Program, error) {
	r := bytes.NewReader(data)
	instrs := make([]opcode.Instruction, 0, len(data)/2)

	for {
		tagByte, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		code, ok := tagToCode[tagByte]
		if !ok {
			return nil, fmt.Errorf("unknown binary tag: 0x%02X", tagByte)
		}

		instr := opcode.Instruction{Code: code}
		switch code {
		case opcode.PushInt:
			var tmp [8]byte
			if _, err := io.ReadFull(r, tmp[:]); err != nil {
				return nil, err
			}
			instr.Int = int64(binary.LittleEndian.Uint64(tmp[:]))
		case opcode.PushStr, opcode.Store, opcode.Load, opcode.Delete:
			length, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			strBytes := make([]byte, length)
			if _, err := io.ReadFull(r, strBytes); err != nil {
				return nil, err
			}
			instr.Str = string(strBytes)
		case opcode.Jmp, opcode.Jz, opcode.Call:
			var tmp [2]byte
			if _, err := io.ReadFull(r, tmp[:]); err != nil {
				return nil, err
			}
			instr.Addr = int(binary.LittleEndian.Uint16(tmp[:]))
		case opcode.MakeList:
			count, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			instr.Count = int(count)
		}

		instrs = append(instrs, instr)
	}

	return &Program{Instructions: instrs}, nil
}

// LoadBinaryFile and WriteBinaryFile round out the .ttb side of the
// `compile`/`run` CLI surface (spec.md §6).
func LoadBinaryFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &vmerr.FileError{Filename: path, Reason: err}
	}
	return DecodeBinary(data)
}

func WriteBinaryFile(path string, p *Program) error {
	data, err := EncodeBinary(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &vmerr.FileError{Filename: path, Reason: err}
	}
	return nil
}
