package ir

import (
	"fmt"
	"io"

	"tinytotvm/value"
	"tinytotvm/vmerr"
)

// VM executes a lowered register Program. It has no call stack, no
// mailbox, no try-stack -- it is a fast path for the arithmetic/control
// flow subset Lower accepts, nothing more.
type VM struct {
	Program *Program
	Regs    []value.Value
	PC      int
	Out     io.Writer
}

func NewVM(prog *Program, out io.Writer) *VM {
	return &VM{Program: prog, Regs: make([]value.Value, prog.NumRegs), Out: out}
}

// Run executes until HALT or the instruction stream is exhausted.
func (vm *VM) Run() error {
	for vm.PC < len(vm.Program.Instructions) {
		instr := vm.Program.Instructions[vm.PC]
		halt, err := vm.step(instr)
		if err != nil {
			return err
		}
		if halt {
			return nil
		}
	}
	return nil
}

func (vm *VM) step(instr Instruction) (bool, error) {
	switch instr.Op {
	case OpLoadConst:
		vm.Regs[instr.Dst] = instr.Imm
		vm.PC++
	case OpMove:
		vm.Regs[instr.Dst] = vm.Regs[instr.A]
		vm.PC++

	case OpAdd, OpSub, OpMul, OpDiv:
		a, b := vm.Regs[instr.A], vm.Regs[instr.B]
		if !a.IsNumeric() || !b.IsNumeric() {
			return false, &vmerr.TypeMismatch{Expected: "int or float", Got: fmt.Sprintf("%v/%v", a.Kind, b.Kind), Operation: "ir-arith"}
		}
		if a.Kind == value.KindInt && b.Kind == value.KindInt {
			if instr.Op == OpDiv && b.Int == 0 {
				return false, &vmerr.DivisionByZero{}
			}
			vm.Regs[instr.Dst] = value.Int(intOp(instr.Op, a.Int, b.Int))
		} else {
			af, bf := a.AsFloat(), b.AsFloat()
			if instr.Op == OpDiv && bf == 0 {
				return false, &vmerr.DivisionByZero{}
			}
			var r float64
			switch instr.Op {
			case OpAdd:
				r = af + bf
			case OpSub:
				r = af - bf
			case OpMul:
				r = af * bf
			case OpDiv:
				r = af / bf
			}
			vm.Regs[instr.Dst] = value.Float(r)
		}
		vm.PC++

	case OpAddF, OpSubF, OpMulF, OpDivF:
		a, b := vm.Regs[instr.A], vm.Regs[instr.B]
		if a.Kind != value.KindFloat || b.Kind != value.KindFloat {
			return false, &vmerr.TypeMismatch{Expected: "float", Got: fmt.Sprintf("%v/%v", a.Kind, b.Kind), Operation: "ir-arith"}
		}
		if instr.Op == OpDivF && b.Float == 0 {
			return false, &vmerr.DivisionByZero{}
		}
		vm.Regs[instr.Dst] = value.Float(floatOp(instr.Op, a.Float, b.Float))
		vm.PC++

	case OpConcat:
		a, b := vm.Regs[instr.A], vm.Regs[instr.B]
		if a.Kind != value.KindString || b.Kind != value.KindString {
			return false, &vmerr.TypeMismatch{Expected: "string", Got: fmt.Sprintf("%v/%v", a.Kind, b.Kind), Operation: "concat"}
		}
		vm.Regs[instr.Dst] = value.String(a.Str + b.Str)
		vm.PC++

	case OpEq, OpNe:
		a, b := vm.Regs[instr.A], vm.Regs[instr.B]
		eq := value.Equal(a, b)
		if instr.Op == OpNe {
			eq = !eq
		}
		vm.Regs[instr.Dst] = value.Bool(eq)
		vm.PC++
	case OpGt, OpLt, OpGe, OpLe:
		a, b := vm.Regs[instr.A], vm.Regs[instr.B]
		if !a.IsNumeric() || !b.IsNumeric() {
			return false, &vmerr.TypeMismatch{Expected: "int or float", Got: fmt.Sprintf("%v/%v", a.Kind, b.Kind), Operation: "ir-compare"}
		}
		vm.Regs[instr.Dst] = value.Bool(floatCompare(instr.Op, a.AsFloat(), b.AsFloat()))
		vm.PC++
	case OpEqF, OpNeF, OpGtF, OpLtF, OpGeF, OpLeF:
		a, b := vm.Regs[instr.A], vm.Regs[instr.B]
		if a.Kind != value.KindFloat || b.Kind != value.KindFloat {
			return false, &vmerr.TypeMismatch{Expected: "float", Got: fmt.Sprintf("%v/%v", a.Kind, b.Kind), Operation: "ir-compare"}
		}
		vm.Regs[instr.Dst] = value.Bool(floatCompare(instr.Op, a.Float, b.Float))
		vm.PC++

	case OpNot:
		vm.Regs[instr.Dst] = value.Bool(!vm.Regs[instr.A].Truthy())
		vm.PC++
	case OpAnd:
		vm.Regs[instr.Dst] = value.Bool(vm.Regs[instr.A].Truthy() && vm.Regs[instr.B].Truthy())
		vm.PC++
	case OpOr:
		vm.Regs[instr.Dst] = value.Bool(vm.Regs[instr.A].Truthy() || vm.Regs[instr.B].Truthy())
		vm.PC++

	case OpMakeList:
		items := make([]value.Value, len(instr.Args))
		for i, r := range instr.Args {
			items[i] = vm.Regs[r]
		}
		vm.Regs[instr.Dst] = value.List(items)
		vm.PC++
	case OpLen:
		v := vm.Regs[instr.A]
		if v.Kind != value.KindList {
			return false, &vmerr.TypeMismatch{Expected: "list", Got: fmt.Sprintf("%v", v.Kind), Operation: "len"}
		}
		vm.Regs[instr.Dst] = value.Int(int64(len(v.List)))
		vm.PC++
	case OpIndex:
		v, idx := vm.Regs[instr.A], vm.Regs[instr.B]
		if v.Kind != value.KindList || idx.Kind != value.KindInt {
			return false, &vmerr.TypeMismatch{Expected: "list,int", Got: fmt.Sprintf("%v,%v", v.Kind, idx.Kind), Operation: "index"}
		}
		if idx.Int < 0 || int(idx.Int) >= len(v.List) {
			return false, &vmerr.IndexOutOfBounds{Index: int(idx.Int), Length: len(v.List)}
		}
		vm.Regs[instr.Dst] = v.List[idx.Int]
		vm.PC++

	case OpPrint:
		fmt.Fprintln(vm.Out, vm.Regs[instr.A].Debug())
		vm.PC++

	case OpJmp:
		vm.PC = instr.Addr
	case OpJz:
		if !vm.Regs[instr.A].Truthy() {
			vm.PC = instr.Addr
		} else {
			vm.PC++
		}

	case OpHalt:
		return true, nil

	default:
		return false, &vmerr.UnsupportedOperation{Operation: "ir-op"}
	}
	return false, nil
}

func intOp(op Op, a, b int64) int64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	}
	return 0
}

func floatOp(op Op, a, b float64) float64 {
	switch op {
	case OpAddF:
		return a + b
	case OpSubF:
		return a - b
	case OpMulF:
		return a * b
	case OpDivF:
		return a / b
	}
	return 0
}

func floatCompare(op Op, a, b float64) bool {
	switch op {
	case OpEqF:
		return a == b
	case OpNeF:
		return a != b
	case OpGtF, OpGt:
		return a > b
	case OpLtF, OpLt:
		return a < b
	case OpGeF, OpGe:
		return a >= b
	case OpLeF, OpLe:
		return a <= b
	}
	return false
}
