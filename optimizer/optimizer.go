// Package optimizer implements three independent, composable passes over
// an assembled bytecode.Program: constant folding over small instruction
// windows, dead-code elimination via a reachability worklist, and
// tail-call conversion of parameterless CALL+RET pairs into a single
// JMP. Each pass reports how many sites it touched so the CLI's
// `optimize` subcommand can print a summary the way the teacher's
// debug-mode execution prints step counts.
package optimizer

import (
	"tinytotvm/bytecode"
	"tinytotvm/opcode"
)

// Report tallies what each pass changed.
type Report struct {
	ConstantsFolded  int
	DeadInstructions int
	TailCalls        int
}

// Run applies all three passes in sequence and returns a new Program
// plus a Report. The input Program is never mutated in place.
func Run(prog *bytecode.Program) (*bytecode.Program, Report) {
	var report Report

	instrs := append([]opcode.Instruction(nil), prog.Instructions...)

	instrs, report.ConstantsFolded = foldConstants(instrs)
	instrs, report.TailCalls = convertTailCalls(instrs)
	instrs, report.DeadInstructions = eliminateDeadCode(instrs)

	return &bytecode.Program{Instructions: instrs, DebugSym: prog.DebugSym}, report
}

// foldConstants collapses small constant windows into a single pushed
// result: PUSH_INT, PUSH_INT, <int-op> triples (arithmetic and
// comparison), PUSH_FLOAT, PUSH_FLOAT, <float-op> triples, and
// {TRUE|FALSE}, NOT pairs. Folding only ever replaces operands with the
// exact opcode the runtime would have pushed itself -- no coercion is
// invented here that vmcore/interpreter.go wouldn't also perform.
func foldConstants(instrs []opcode.Instruction) ([]opcode.Instruction, int) {
	out := make([]opcode.Instruction, 0, len(instrs))
	folded := 0

	for i := 0; i < len(instrs); i++ {
		if i+1 < len(instrs) &&
			(instrs[i].Code == opcode.True || instrs[i].Code == opcode.False) &&
			instrs[i+1].Code == opcode.Not {

			negated := instrs[i].Code == opcode.False
			if negated {
				out = append(out, opcode.Instruction{Code: opcode.True})
			} else {
				out = append(out, opcode.Instruction{Code: opcode.False})
			}
			i++
			folded++
			continue
		}

		if i+2 < len(instrs) &&
			instrs[i].Code == opcode.PushInt &&
			instrs[i+1].Code == opcode.PushInt &&
			(isFoldableIntOp(instrs[i+2].Code) || isFoldableIntCompareOp(instrs[i+2].Code)) {

			a, b := instrs[i].Int, instrs[i+1].Int
			op := instrs[i+2].Code
			if op == opcode.Div && b == 0 {
				// Division by zero is a runtime fault, not a constant --
				// leave it for the interpreter to raise it.
				out = append(out, instrs[i])
				continue
			}
			if isFoldableIntCompareOp(op) {
				out = append(out, opcode.Instruction{Code: boolCode(applyIntCompareOp(op, a, b))})
			} else {
				result := applyIntOp(op, a, b)
				out = append(out, opcode.Instruction{Code: opcode.PushInt, Int: result})
			}
			i += 2
			folded++
			continue
		}

		if i+2 < len(instrs) &&
			instrs[i].Code == opcode.PushFloat &&
			instrs[i+1].Code == opcode.PushFloat &&
			isFoldableFloatOp(instrs[i+2].Code) {

			a, b := instrs[i].Float, instrs[i+1].Float
			op := instrs[i+2].Code
			if op == opcode.DivF && b == 0 {
				out = append(out, instrs[i])
				continue
			}
			result := applyFloatOp(op, a, b)
			out = append(out, opcode.Instruction{Code: opcode.PushFloat, Float: result})
			i += 2
			folded++
			continue
		}

		out = append(out, instrs[i])
	}

	return out, folded
}

func boolCode(v bool) opcode.Code {
	if v {
		return opcode.True
	}
	return opcode.False
}

func isFoldableIntOp(c opcode.Code) bool {
	switch c {
	case opcode.Add, opcode.Sub, opcode.Mul, opcode.Div:
		return true
	}
	return false
}

func isFoldableIntCompareOp(c opcode.Code) bool {
	switch c {
	case opcode.Eq, opcode.Ne, opcode.Lt, opcode.Gt, opcode.Le, opcode.Ge:
		return true
	}
	return false
}

func isFoldableFloatOp(c opcode.Code) bool {
	switch c {
	case opcode.AddF, opcode.SubF, opcode.MulF, opcode.DivF:
		return true
	}
	return false
}

func applyIntOp(c opcode.Code, a, b int64) int64 {
	switch c {
	case opcode.Add:
		return a + b
	case opcode.Sub:
		return a - b
	case opcode.Mul:
		return a * b
	case opcode.Div:
		return a / b
	}
	return 0
}

func applyIntCompareOp(c opcode.Code, a, b int64) bool {
	switch c {
	case opcode.Eq:
		return a == b
	case opcode.Ne:
		return a != b
	case opcode.Lt:
		return a < b
	case opcode.Gt:
		return a > b
	case opcode.Le:
		return a <= b
	case opcode.Ge:
		return a >= b
	}
	return false
}

func applyFloatOp(c opcode.Code, a, b float64) float64 {
	switch c {
	case opcode.AddF:
		return a + b
	case opcode.SubF:
		return a - b
	case opcode.MulF:
		return a * b
	case opcode.DivF:
		return a / b
	}
	return 0
}

// convertTailCalls rewrites a CALL immediately followed by RET into a
// single JMP to the call target, but only when the CALL carries no named
// parameters -- a parameterized CALL pushes a fresh Frame keyed by those
// names, which a bare JMP can't replicate, so those are left alone.
func convertTailCalls(instrs []opcode.Instruction) ([]opcode.Instruction, int) {
	out := make([]opcode.Instruction, 0, len(instrs))
	converted := 0

	for i := 0; i < len(instrs); i++ {
		if instrs[i].Code == opcode.Call && len(instrs[i].Params) == 0 &&
			i+1 < len(instrs) && instrs[i+1].Code == opcode.Ret {
			out = append(out, opcode.Instruction{Code: opcode.Jmp, Addr: instrs[i].Addr})
			i++ // skip the RET
			converted++
			continue
		}
		out = append(out, instrs[i])
	}

	return out, converted
}

// eliminateDeadCode walks reachability from instruction 0 following
// fall-through plus every JMP/JZ/CALL/TRY target and every
// MAKE_FUNCTION/MAKE_LAMBDA body address, then drops any
// instruction never reached. Addresses are rewritten to account for the
// removed gaps so existing jump targets keep pointing at the same
// logical instruction.
func eliminateDeadCode(instrs []opcode.Instruction) ([]opcode.Instruction, int) {
	n := len(instrs)
	if n == 0 {
		return instrs, 0
	}

	reachable := make([]bool, n)
	worklist := []int{0}
	for len(worklist) > 0 {
		addr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if addr < 0 || addr >= n || reachable[addr] {
			continue
		}
		reachable[addr] = true

		instr := instrs[addr]
		switch instr.Code {
		case opcode.Jmp:
			worklist = append(worklist, instr.Addr)
		case opcode.Jz, opcode.Call, opcode.Try, opcode.MakeFunction, opcode.MakeLambda:
			worklist = append(worklist, instr.Addr)
			worklist = append(worklist, addr+1)
		case opcode.Halt, opcode.Ret:
			// no fall-through
		default:
			worklist = append(worklist, addr+1)
		}
	}

	remap := make([]int, n)
	out := make([]opcode.Instruction, 0, n)
	dead := 0
	for i, r := range reachable {
		if r {
			remap[i] = len(out)
			out = append(out, instrs[i])
		} else {
			dead++
		}
	}

	for i := range out {
		switch out[i].Code {
		case opcode.Jmp, opcode.Jz, opcode.Call, opcode.Try, opcode.MakeFunction, opcode.MakeLambda:
			if out[i].Addr >= 0 && out[i].Addr < n {
				out[i].Addr = remap[out[i].Addr]
			}
		}
	}

	return out, dead
}
