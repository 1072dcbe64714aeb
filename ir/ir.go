// Package ir implements the register intermediate representation: a
// straight-line lowering of the stack bytecode's arithmetic, control
// flow, and variable-storage subset into register form, plus a
// dedicated interpreter for it. Concurrency opcodes (and anything that
// needs a call stack -- CALL/RET, closures, exceptions, modules) aren't
// lowered; they return vmerr.UnsupportedOperation at lowering time the
// same way the stack interpreter returns it for unsupported I/O stubs.
// The register form exists to give straight-line numeric/string code a
// faster execution path, not to replace the full stack machine.
package ir

import (
	"tinytotvm/opcode"
	"tinytotvm/value"
	"tinytotvm/vmerr"
)

// Reg names one virtual register. Registers are single-assignment in
// the sense that lowering always allocates a fresh one for a computed
// value; named variables are the only thing that gets reused.
type Reg int

type Op uint8

const (
	OpLoadConst Op = iota
	OpMove
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpAddF
	OpSubF
	OpMulF
	OpDivF
	OpConcat
	OpEq
	OpNe
	OpGt
	OpLt
	OpGe
	OpLe
	OpEqF
	OpNeF
	OpGtF
	OpLtF
	OpGeF
	OpLeF
	OpNot
	OpAnd
	OpOr
	OpMakeList
	OpLen
	OpIndex
	OpPrint
	OpJmp
	OpJz
	OpHalt
)

// Instruction is one register-form op: Dst = op(A, B) or, for constants,
// Dst = Imm. Jmp/Jz carry Addr as the instruction index to branch to.
type Instruction struct {
	Op   Op
	Dst  Reg
	A, B Reg
	Args []Reg // OpMakeList operand registers, in order
	Imm  value.Value
	Addr int
}

// Program is a lowered register-form instruction stream.
type Program struct {
	Instructions []Instruction
	NumRegs      int
}

// Lower translates a stack Program into register form via a symbolic
// stack simulation: every PUSH-like instruction allocates a fresh
// register and records it on a simulated operand stack; every POP-like
// instruction consumes register names off that simulated stack instead
// of runtime values.
func Lower(instrs []opcode.Instruction) (*Program, error) {
	var out []Instruction
	var simStack []Reg
	vars := make(map[string]Reg)
	nextReg := Reg(0)

	fresh := func() Reg {
		r := nextReg
		nextReg++
		return r
	}
	push := func(r Reg) { simStack = append(simStack, r) }
	pop := func() (Reg, error) {
		if len(simStack) == 0 {
			return 0, &vmerr.StackUnderflow{Operation: "ir-lower"}
		}
		r := simStack[len(simStack)-1]
		simStack = simStack[:len(simStack)-1]
		return r, nil
	}

	// irIndex maps each bytecode address to the IR index of the first
	// instruction emitted at or after it, so Jmp/Jz targets can be
	// rewritten once the whole stream is lowered.
	irIndex := make([]int, len(instrs)+1)

	for idx, instr := range instrs {
		irIndex[idx] = len(out)
		switch instr.Code {
		case opcode.PushInt:
			d := fresh()
			out = append(out, Instruction{Op: OpLoadConst, Dst: d, Imm: value.Int(instr.Int)})
			push(d)
		case opcode.PushFloat:
			d := fresh()
			out = append(out, Instruction{Op: OpLoadConst, Dst: d, Imm: value.Float(instr.Float)})
			push(d)
		case opcode.PushStr:
			d := fresh()
			out = append(out, Instruction{Op: OpLoadConst, Dst: d, Imm: value.String(instr.Str)})
			push(d)
		case opcode.PushBool:
			d := fresh()
			out = append(out, Instruction{Op: OpLoadConst, Dst: d, Imm: value.Bool(instr.Bool)})
			push(d)
		case opcode.True, opcode.False:
			d := fresh()
			out = append(out, Instruction{Op: OpLoadConst, Dst: d, Imm: value.Bool(instr.Code == opcode.True)})
			push(d)
		case opcode.Null:
			d := fresh()
			out = append(out, Instruction{Op: OpLoadConst, Dst: d, Imm: value.Null()})
			push(d)

		case opcode.Dup:
			if len(simStack) == 0 {
				return nil, &vmerr.StackUnderflow{Operation: "dup"}
			}
			push(simStack[len(simStack)-1])

		case opcode.Store:
			a, err := pop()
			if err != nil {
				return nil, err
			}
			vars[instr.Str] = a
		case opcode.Load:
			r, ok := vars[instr.Str]
			if !ok {
				return nil, &vmerr.UndefinedVariable{Name: instr.Str}
			}
			push(r)
		case opcode.Delete:
			delete(vars, instr.Str)

		case opcode.Add, opcode.Sub, opcode.Mul, opcode.Div,
			opcode.AddF, opcode.SubF, opcode.MulF, opcode.DivF,
			opcode.Concat,
			opcode.Eq, opcode.Ne, opcode.Gt, opcode.Lt, opcode.Ge, opcode.Le,
			opcode.EqF, opcode.NeF, opcode.GtF, opcode.LtF, opcode.GeF, opcode.LeF,
			opcode.And, opcode.Or:
			b, err := pop()
			if err != nil {
				return nil, err
			}
			a, err := pop()
			if err != nil {
				return nil, err
			}
			d := fresh()
			out = append(out, Instruction{Op: binOp(instr.Code), Dst: d, A: a, B: b})
			push(d)

		case opcode.Not:
			a, err := pop()
			if err != nil {
				return nil, err
			}
			d := fresh()
			out = append(out, Instruction{Op: OpNot, Dst: d, A: a})
			push(d)

		case opcode.MakeList:
			if len(simStack) < instr.Count {
				return nil, &vmerr.InsufficientStackItems{Needed: instr.Count, Available: len(simStack), Operation: "make_list"}
			}
			args := append([]Reg(nil), simStack[len(simStack)-instr.Count:]...)
			simStack = simStack[:len(simStack)-instr.Count]
			d := fresh()
			out = append(out, Instruction{Op: OpMakeList, Dst: d, Args: args})
			push(d)
		case opcode.Len:
			a, err := pop()
			if err != nil {
				return nil, err
			}
			d := fresh()
			out = append(out, Instruction{Op: OpLen, Dst: d, A: a})
			push(d)
		case opcode.Index:
			b, err := pop()
			if err != nil {
				return nil, err
			}
			a, err := pop()
			if err != nil {
				return nil, err
			}
			d := fresh()
			out = append(out, Instruction{Op: OpIndex, Dst: d, A: a, B: b})
			push(d)

		case opcode.Print:
			a, err := pop()
			if err != nil {
				return nil, err
			}
			out = append(out, Instruction{Op: OpPrint, A: a})

		case opcode.Jmp:
			out = append(out, Instruction{Op: OpJmp, Addr: instr.Addr})
		case opcode.Jz:
			a, err := pop()
			if err != nil {
				return nil, err
			}
			out = append(out, Instruction{Op: OpJz, A: a, Addr: instr.Addr})
		case opcode.Halt:
			out = append(out, Instruction{Op: OpHalt})

		default:
			return nil, &vmerr.UnsupportedOperation{Operation: instr.Code.String()}
		}
	}
	irIndex[len(instrs)] = len(out)

	for i := range out {
		if (out[i].Op == OpJmp || out[i].Op == OpJz) && out[i].Addr >= 0 && out[i].Addr <= len(instrs) {
			out[i].Addr = irIndex[out[i].Addr]
		}
	}

	return &Program{Instructions: out, NumRegs: int(nextReg)}, nil
}

func binOp(code opcode.Code) Op {
	switch code {
	case opcode.Add:
		return OpAdd
	case opcode.Sub:
		return OpSub
	case opcode.Mul:
		return OpMul
	case opcode.Div:
		return OpDiv
	case opcode.AddF:
		return OpAddF
	case opcode.SubF:
		return OpSubF
	case opcode.MulF:
		return OpMulF
	case opcode.DivF:
		return OpDivF
	case opcode.Concat:
		return OpConcat
	case opcode.Eq:
		return OpEq
	case opcode.Ne:
		return OpNe
	case opcode.Gt:
		return OpGt
	case opcode.Lt:
		return OpLt
	case opcode.Ge:
		return OpGe
	case opcode.Le:
		return OpLe
	case opcode.EqF:
		return OpEqF
	case opcode.NeF:
		return OpNeF
	case opcode.GtF:
		return OpGtF
	case opcode.LtF:
		return OpLtF
	case opcode.GeF:
		return OpGeF
	case opcode.LeF:
		return OpLeF
	case opcode.And:
		return OpAnd
	case opcode.Or:
		return OpOr
	default:
		return OpAdd
	}
}
