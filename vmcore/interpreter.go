// Package vmcore implements the stack bytecode interpreter: the operand
// stack, call stack, frame-scoped variable storage, try-stack exception
// handling, and the module loader. Concurrency opcodes are deliberately
// left unexecuted here -- Step reports them back to the caller (the
// process package) instead of running them, the same separation the
// teacher draws between vm/exec.go (pure instruction execution) and
// vm/devices.go (anything that touches the outside world or blocks).
package vmcore

import (
	"fmt"
	"io"

	"tinytotvm/bytecode"
	"tinytotvm/opcode"
	"tinytotvm/value"
	"tinytotvm/vmerr"
)

// Frame is one frame-scoped variable table. STORE/LOAD/DELETE only ever
// touch the top frame -- there is no lexical enclosing-scope lookup.
type Frame map[string]value.Value

// ExceptionHandler is a TRY snapshot: the catch address plus the three
// stack depths to truncate back to on THROW, mirroring the "snapshot +
// truncate" shape of try/catch in stack VMs generally.
type ExceptionHandler struct {
	CatchAddr    int
	OperandDepth int
	CallDepth    int
	FrameDepth   int
}

// ThrownValue wraps a user-thrown value.Value so the TRY machinery can
// recover the original payload instead of re-deriving it from an error
// string.
type ThrownValue struct{ V value.Value }

func (t *ThrownValue) Error() string { return t.V.Debug() }

// ModuleLoader resolves an import path to an assembled/decoded program.
// The CLI wires this to bytecode.LoadFile against a search path; tests
// can supply an in-memory stub.
type ModuleLoader interface {
	Load(path string) (*bytecode.Program, error)
}

// ModuleSystem tracks merged modules, in-progress loads (for cycle
// detection), and each module's exported bindings.
type ModuleSystem struct {
	loader  ModuleLoader
	loading map[string]bool
	merged  map[string]int
	exports map[string]map[string]value.Value
}

func NewModuleSystem(loader ModuleLoader) *ModuleSystem {
	return &ModuleSystem{
		loader:  loader,
		loading: make(map[string]bool),
		merged:  make(map[string]int),
		exports: make(map[string]map[string]value.Value),
	}
}

// Import merges path's instructions into host's program (once per path)
// and runs its top-level code far enough to collect its EXPORTs, then
// returns an object value carrying those exports.
func (ms *ModuleSystem) Import(path string, host *Interpreter) (value.Value, error) {
	if _, ok := ms.merged[path]; ok {
		return ms.exportObject(path), nil
	}
	if ms.loading[path] {
		return value.Value{}, &vmerr.CircularDependency{Path: path}
	}

	if ms.loader == nil {
		return value.Value{}, &vmerr.UnsupportedOperation{Operation: "import (no module loader configured)"}
	}

	ms.loading[path] = true
	defer delete(ms.loading, path)

	prog, err := ms.loader.Load(path)
	if err != nil {
		return value.Value{}, err
	}

	base := len(host.Program.Instructions)
	rewritten := opcode.RewriteAddrs(prog.Instructions, base)
	host.Program.Instructions = append(host.Program.Instructions, rewritten...)
	ms.merged[path] = base

	child := NewInterpreter(host.Program, host.Out)
	child.Modules = ms
	child.ModulePath = path
	child.PC = base
	end := base + len(rewritten)

	for child.PC < end {
		outcome, err := child.Step()
		if err != nil {
			return value.Value{}, err
		}
		if outcome == Halted {
			break
		}
		if outcome == NeedsConcurrency {
			return value.Value{}, &vmerr.UnsupportedOperation{Operation: "concurrency opcode at module top level"}
		}
	}

	return ms.exportObject(path), nil
}

func (ms *ModuleSystem) RecordExport(path, name string, v value.Value) {
	if ms.exports[path] == nil {
		ms.exports[path] = make(map[string]value.Value)
	}
	ms.exports[path][name] = v
}

func (ms *ModuleSystem) exportObject(path string) value.Value {
	obj := value.NewObject()
	for name, v := range ms.exports[path] {
		obj.Set(name, v)
	}
	return obj
}

// Outcome reports what a single Step produced.
type Outcome int

const (
	Continue Outcome = iota
	Halted
	NeedsConcurrency
)

// Interpreter is one runnable instance of the stack machine. A process
// owns exactly one Interpreter; module top-level evaluation spins up a
// short-lived nested one sharing the same Program.
type Interpreter struct {
	Program *bytecode.Program
	PC      int

	Stack []value.Value
	Calls []int
	Frames []Frame
	Tries  []ExceptionHandler

	PendingCaptures map[string]value.Value

	Modules    *ModuleSystem
	ModulePath string

	Out io.Writer
}

func NewInterpreter(prog *bytecode.Program, out io.Writer) *Interpreter {
	return &Interpreter{
		Program: prog,
		Frames:  []Frame{make(Frame)},
		Out:     out,
	}
}

// Current returns the instruction about to execute without consuming it.
func (vm *Interpreter) Current() (opcode.Instruction, bool) {
	if vm.PC >= len(vm.Program.Instructions) {
		return opcode.Instruction{}, false
	}
	return vm.Program.Instructions[vm.PC], true
}

// Advance moves the program counter past the current instruction. Only
// meaningful after a NeedsConcurrency outcome, once the caller has
// handled the instruction itself.
func (vm *Interpreter) Advance() { vm.PC++ }

func (vm *Interpreter) Push(v value.Value) { vm.Stack = append(vm.Stack, v) }

func (vm *Interpreter) Pop() (value.Value, error) {
	if len(vm.Stack) == 0 {
		return value.Value{}, &vmerr.StackUnderflow{Operation: "pop"}
	}
	v := vm.Stack[len(vm.Stack)-1]
	vm.Stack = vm.Stack[:len(vm.Stack)-1]
	return v, nil
}

func (vm *Interpreter) Peek() (value.Value, error) {
	if len(vm.Stack) == 0 {
		return value.Value{}, &vmerr.StackUnderflow{Operation: "peek"}
	}
	return vm.Stack[len(vm.Stack)-1], nil
}

func (vm *Interpreter) CurrentFrame() Frame {
	return vm.Frames[len(vm.Frames)-1]
}

// Step executes exactly one instruction, or reports NeedsConcurrency
// without consuming it so a process driver can handle the scheduling
// side effects (spawn, send, receive, link, ...) itself.
func (vm *Interpreter) Step() (Outcome, error) {
	instr, ok := vm.Current()
	if !ok {
		return Halted, nil
	}
	if instr.Code.IsConcurrency() {
		return NeedsConcurrency, nil
	}

	vm.PC++
	if err := vm.execute(instr); err != nil {
		if handled, herr := vm.tryHandle(err); handled {
			return Continue, herr
		}
		return Continue, err
	}
	if instr.Code == opcode.Halt {
		return Halted, nil
	}
	return Continue, nil
}

func (vm *Interpreter) tryHandle(err error) (bool, error) {
	if len(vm.Tries) == 0 {
		return false, nil
	}
	h := vm.Tries[len(vm.Tries)-1]
	vm.Tries = vm.Tries[:len(vm.Tries)-1]

	if h.OperandDepth > len(vm.Stack) || h.CallDepth > len(vm.Calls) || h.FrameDepth > len(vm.Frames) {
		// Snapshot predates the current depth; nothing sane to truncate
		// to. Treat as unhandled.
		return false, nil
	}
	vm.Stack = vm.Stack[:h.OperandDepth]
	vm.Calls = vm.Calls[:h.CallDepth]
	vm.Frames = vm.Frames[:h.FrameDepth]

	var excVal value.Value
	if tv, ok := err.(*ThrownValue); ok {
		excVal = tv.V
	} else {
		excVal = value.ExceptionValue(err.Error(), nil)
	}
	vm.Stack = append(vm.Stack, excVal)
	vm.PC = h.CatchAddr
	return true, nil
}

func (vm *Interpreter) popTwoFloats(op string) (float64, float64, error) {
	b, err := vm.Pop()
	if err != nil {
		return 0, 0, err
	}
	a, err := vm.Pop()
	if err != nil {
		return 0, 0, err
	}
	if a.Kind != value.KindFloat || b.Kind != value.KindFloat {
		return 0, 0, &vmerr.TypeMismatch{Expected: "float", Got: a.Debug() + "/" + b.Debug(), Operation: op}
	}
	return a.Float, b.Float, nil
}

// popTwoNumeric pops two operands for the generic (non-F-suffixed)
// arithmetic and ordering opcodes, which accept any mix of int/float and
// coerce to float when either side is a float (original_source's
// OpCode::Add et al.). Non-numeric operands are a TypeMismatch.
func (vm *Interpreter) popTwoNumeric(op string) (value.Value, value.Value, error) {
	b, err := vm.Pop()
	if err != nil {
		return value.Value{}, value.Value{}, err
	}
	a, err := vm.Pop()
	if err != nil {
		return value.Value{}, value.Value{}, err
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return value.Value{}, value.Value{}, &vmerr.TypeMismatch{Expected: "int or float", Got: a.Debug() + "/" + b.Debug(), Operation: op}
	}
	return a, b, nil
}

func (vm *Interpreter) popN(n int) ([]value.Value, error) {
	if len(vm.Stack) < n {
		return nil, &vmerr.InsufficientStackItems{Needed: n, Available: len(vm.Stack), Operation: "call"}
	}
	items := append([]value.Value(nil), vm.Stack[len(vm.Stack)-n:]...)
	vm.Stack = vm.Stack[:len(vm.Stack)-n]
	return items, nil
}

func (vm *Interpreter) execute(instr opcode.Instruction) error {
	switch instr.Code {
	case opcode.PushInt:
		vm.Push(value.Int(instr.Int))
	case opcode.PushFloat:
		vm.Push(value.Float(instr.Float))
	case opcode.PushStr:
		vm.Push(value.String(instr.Str))
	case opcode.PushBool:
		vm.Push(value.Bool(instr.Bool))
	case opcode.True:
		vm.Push(value.Bool(true))
	case opcode.False:
		vm.Push(value.Bool(false))
	case opcode.Null:
		vm.Push(value.Null())

	case opcode.Add:
		a, b, err := vm.popTwoNumeric("add")
		if err != nil {
			return err
		}
		if a.Kind == value.KindInt && b.Kind == value.KindInt {
			vm.Push(value.Int(a.Int + b.Int))
		} else {
			vm.Push(value.Float(a.AsFloat() + b.AsFloat()))
		}
	case opcode.AddF:
		a, b, err := vm.popTwoFloats("add_f")
		if err != nil {
			return err
		}
		vm.Push(value.Float(a + b))
	case opcode.Sub:
		a, b, err := vm.popTwoNumeric("sub")
		if err != nil {
			return err
		}
		if a.Kind == value.KindInt && b.Kind == value.KindInt {
			vm.Push(value.Int(a.Int - b.Int))
		} else {
			vm.Push(value.Float(a.AsFloat() - b.AsFloat()))
		}
	case opcode.SubF:
		a, b, err := vm.popTwoFloats("sub_f")
		if err != nil {
			return err
		}
		vm.Push(value.Float(a - b))
	case opcode.Mul:
		a, b, err := vm.popTwoNumeric("mul")
		if err != nil {
			return err
		}
		if a.Kind == value.KindInt && b.Kind == value.KindInt {
			vm.Push(value.Int(a.Int * b.Int))
		} else {
			vm.Push(value.Float(a.AsFloat() * b.AsFloat()))
		}
	case opcode.MulF:
		a, b, err := vm.popTwoFloats("mul_f")
		if err != nil {
			return err
		}
		vm.Push(value.Float(a * b))
	case opcode.Div:
		a, b, err := vm.popTwoNumeric("div")
		if err != nil {
			return err
		}
		if a.Kind == value.KindInt && b.Kind == value.KindInt {
			if b.Int == 0 {
				return &vmerr.DivisionByZero{}
			}
			vm.Push(value.Int(a.Int / b.Int))
		} else {
			bf := b.AsFloat()
			if bf == 0 {
				return &vmerr.DivisionByZero{}
			}
			vm.Push(value.Float(a.AsFloat() / bf))
		}
	case opcode.DivF:
		a, b, err := vm.popTwoFloats("div_f")
		if err != nil {
			return err
		}
		if b == 0 {
			return &vmerr.DivisionByZero{}
		}
		vm.Push(value.Float(a / b))

	case opcode.Concat:
		b, err := vm.Pop()
		if err != nil {
			return err
		}
		a, err := vm.Pop()
		if err != nil {
			return err
		}
		if a.Kind != value.KindString || b.Kind != value.KindString {
			return &vmerr.TypeMismatch{Expected: "string", Got: a.Debug() + "/" + b.Debug(), Operation: "concat"}
		}
		vm.Push(value.String(a.Str + b.Str))

	case opcode.Print:
		v, err := vm.Pop()
		if err != nil {
			return err
		}
		fmt.Fprintln(vm.Out, v.Debug())

	case opcode.Halt:
		// Handled by the Step outcome check; nothing to do here.

	case opcode.Jmp:
		vm.PC = instr.Addr
	case opcode.Jz:
		v, err := vm.Pop()
		if err != nil {
			return err
		}
		if !v.Truthy() {
			vm.PC = instr.Addr
		}

	case opcode.Call:
		args, err := vm.popN(len(instr.Params))
		if err != nil {
			return err
		}
		frame := make(Frame, len(instr.Params))
		for i, name := range instr.Params {
			frame[name] = args[i]
		}
		vm.Calls = append(vm.Calls, vm.PC)
		vm.Frames = append(vm.Frames, frame)
		vm.PC = instr.Addr
	case opcode.Ret:
		if len(vm.Calls) == 0 {
			return &vmerr.CallStackUnderflow{}
		}
		if len(vm.Frames) <= 1 {
			return &vmerr.NoVariableScope{}
		}
		vm.Frames = vm.Frames[:len(vm.Frames)-1]
		vm.PC = vm.Calls[len(vm.Calls)-1]
		vm.Calls = vm.Calls[:len(vm.Calls)-1]

	case opcode.Dup:
		v, err := vm.Peek()
		if err != nil {
			return err
		}
		vm.Push(v.Clone())

	case opcode.Store:
		v, err := vm.Pop()
		if err != nil {
			return err
		}
		vm.CurrentFrame()[instr.Str] = v
	case opcode.Load:
		v, ok := vm.CurrentFrame()[instr.Str]
		if !ok {
			return &vmerr.UndefinedVariable{Name: instr.Str}
		}
		vm.Push(v)
	case opcode.Delete:
		delete(vm.CurrentFrame(), instr.Str)

	case opcode.Eq, opcode.Ne:
		b, err := vm.Pop()
		if err != nil {
			return err
		}
		a, err := vm.Pop()
		if err != nil {
			return err
		}
		eq := value.Equal(a, b)
		if instr.Code == opcode.Ne {
			eq = !eq
		}
		vm.Push(value.Bool(eq))
	case opcode.Gt, opcode.Lt, opcode.Ge, opcode.Le:
		a, b, err := vm.popTwoNumeric(instr.Code.String())
		if err != nil {
			return err
		}
		vm.Push(value.Bool(floatCompare(instr.Code, a.AsFloat(), b.AsFloat())))
	case opcode.EqF, opcode.NeF, opcode.GtF, opcode.LtF, opcode.GeF, opcode.LeF:
		a, b, err := vm.popTwoFloats(instr.Code.String())
		if err != nil {
			return err
		}
		vm.Push(value.Bool(floatCompare(instr.Code, a, b)))

	case opcode.Not:
		v, err := vm.Pop()
		if err != nil {
			return err
		}
		vm.Push(value.Bool(!v.Truthy()))
	case opcode.And:
		b, err := vm.Pop()
		if err != nil {
			return err
		}
		a, err := vm.Pop()
		if err != nil {
			return err
		}
		vm.Push(value.Bool(a.Truthy() && b.Truthy()))
	case opcode.Or:
		b, err := vm.Pop()
		if err != nil {
			return err
		}
		a, err := vm.Pop()
		if err != nil {
			return err
		}
		vm.Push(value.Bool(a.Truthy() || b.Truthy()))

	case opcode.MakeList:
		items, err := vm.popN(instr.Count)
		if err != nil {
			return err
		}
		vm.Push(value.List(items))
	case opcode.Len:
		v, err := vm.Pop()
		if err != nil {
			return err
		}
		switch v.Kind {
		case value.KindList:
			vm.Push(value.Int(int64(len(v.List))))
		case value.KindString:
			vm.Push(value.Int(int64(len(v.Str))))
		case value.KindBytes:
			vm.Push(value.Int(int64(len(v.Bytes))))
		default:
			return &vmerr.TypeMismatch{Expected: "list/string/bytes", Got: v.Debug(), Operation: "len"}
		}
	case opcode.Index:
		idxVal, err := vm.Pop()
		if err != nil {
			return err
		}
		coll, err := vm.Pop()
		if err != nil {
			return err
		}
		if idxVal.Kind != value.KindInt {
			return &vmerr.TypeMismatch{Expected: "int", Got: idxVal.Debug(), Operation: "index"}
		}
		idx := int(idxVal.Int)
		switch coll.Kind {
		case value.KindList:
			if idx < 0 || idx >= len(coll.List) {
				return &vmerr.IndexOutOfBounds{Index: idx, Length: len(coll.List)}
			}
			vm.Push(coll.List[idx])
		case value.KindString:
			if idx < 0 || idx >= len(coll.Str) {
				return &vmerr.IndexOutOfBounds{Index: idx, Length: len(coll.Str)}
			}
			vm.Push(value.String(string(coll.Str[idx])))
		case value.KindBytes:
			if idx < 0 || idx >= len(coll.Bytes) {
				return &vmerr.IndexOutOfBounds{Index: idx, Length: len(coll.Bytes)}
			}
			vm.Push(value.Int(int64(coll.Bytes[idx])))
		default:
			return &vmerr.TypeMismatch{Expected: "list/string/bytes", Got: coll.Debug(), Operation: "index"}
		}
	case opcode.DumpScope:
		for name, v := range vm.CurrentFrame() {
			fmt.Fprintf(vm.Out, "%s = %s\n", name, v.Debug())
		}

	case opcode.MakeObject:
		vm.Push(value.NewObject())
	case opcode.SetField:
		v, err := vm.Pop()
		if err != nil {
			return err
		}
		obj, err := vm.Pop()
		if err != nil {
			return err
		}
		if obj.Kind != value.KindObject {
			return &vmerr.TypeMismatch{Expected: "object", Got: obj.Debug(), Operation: "set_field"}
		}
		obj.Set(instr.Str, v)
		vm.Push(obj)
	case opcode.GetField:
		obj, err := vm.Pop()
		if err != nil {
			return err
		}
		if obj.Kind != value.KindObject {
			return &vmerr.TypeMismatch{Expected: "object", Got: obj.Debug(), Operation: "get_field"}
		}
		if v, ok := obj.Get(instr.Str); ok {
			vm.Push(v)
		} else {
			vm.Push(value.Null())
		}
	case opcode.HasField:
		obj, err := vm.Pop()
		if err != nil {
			return err
		}
		if obj.Kind != value.KindObject {
			return &vmerr.TypeMismatch{Expected: "object", Got: obj.Debug(), Operation: "has_field"}
		}
		vm.Push(value.Bool(obj.Has(instr.Str)))
	case opcode.DeleteField:
		obj, err := vm.Pop()
		if err != nil {
			return err
		}
		if obj.Kind != value.KindObject {
			return &vmerr.TypeMismatch{Expected: "object", Got: obj.Debug(), Operation: "delete_field"}
		}
		obj.Delete(instr.Str)
		vm.Push(obj)
	case opcode.Keys:
		obj, err := vm.Pop()
		if err != nil {
			return err
		}
		if obj.Kind != value.KindObject {
			return &vmerr.TypeMismatch{Expected: "object", Got: obj.Debug(), Operation: "keys"}
		}
		keys := obj.Keys()
		items := make([]value.Value, len(keys))
		for i, k := range keys {
			items[i] = value.String(k)
		}
		vm.Push(value.List(items))

	case opcode.MakeFunction:
		vm.Push(value.FunctionValue(instr.Addr, instr.Params))
	case opcode.MakeLambda:
		captures := vm.PendingCaptures
		vm.PendingCaptures = nil
		vm.Push(value.ClosureValue(instr.Addr, instr.Params, captures))
	case opcode.Capture:
		v, ok := vm.CurrentFrame()[instr.Str]
		if !ok {
			return &vmerr.UndefinedVariable{Name: instr.Str}
		}
		if vm.PendingCaptures == nil {
			vm.PendingCaptures = make(map[string]value.Value)
		}
		vm.PendingCaptures[instr.Str] = v
	case opcode.CallFunction:
		fn, err := vm.Pop()
		if err != nil {
			return err
		}
		if fn.Kind != value.KindFunction && fn.Kind != value.KindClosure {
			return &vmerr.TypeMismatch{Expected: "function", Got: fn.Debug(), Operation: "call_function"}
		}
		args, err := vm.popN(len(fn.Fn.Params))
		if err != nil {
			return err
		}
		frame := make(Frame, len(fn.Fn.Params)+len(fn.Cap))
		for name, captured := range fn.Cap {
			frame[name] = captured
		}
		for i, name := range fn.Fn.Params {
			frame[name] = args[i]
		}
		vm.Calls = append(vm.Calls, vm.PC)
		vm.Frames = append(vm.Frames, frame)
		vm.PC = fn.Fn.Addr

	case opcode.Try:
		vm.Tries = append(vm.Tries, ExceptionHandler{
			CatchAddr:    instr.Addr,
			OperandDepth: len(vm.Stack),
			CallDepth:    len(vm.Calls),
			FrameDepth:   len(vm.Frames),
		})
	case opcode.Catch:
		// Structural marker only; the exception value is already on the
		// stack from tryHandle's jump.
	case opcode.Throw:
		v, err := vm.Pop()
		if err != nil {
			return err
		}
		return &ThrownValue{V: value.ExceptionFromAny(v)}
	case opcode.EndTry:
		if len(vm.Tries) == 0 {
			return &vmerr.RuntimeError{Message: "end_try with no active handler"}
		}
		vm.Tries = vm.Tries[:len(vm.Tries)-1]

	case opcode.Import:
		if vm.Modules == nil {
			return &vmerr.UnsupportedOperation{Operation: "import"}
		}
		obj, err := vm.Modules.Import(instr.Str, vm)
		if err != nil {
			return err
		}
		vm.Push(obj)
	case opcode.Export:
		if vm.Modules == nil || vm.ModulePath == "" {
			return &vmerr.UnsupportedOperation{Operation: "export"}
		}
		v, err := vm.Pop()
		if err != nil {
			return err
		}
		vm.Modules.RecordExport(vm.ModulePath, instr.Str, v)

	default:
		if instr.Code.IsIOStub() {
			return &vmerr.UnsupportedOperation{Operation: instr.Code.String()}
		}
		return &vmerr.UnsupportedOperation{Operation: instr.Code.String()}
	}
	return nil
}

func floatCompare(code opcode.Code, a, b float64) bool {
	switch code {
	case opcode.EqF:
		return a == b
	case opcode.NeF:
		return a != b
	case opcode.GtF, opcode.Gt:
		return a > b
	case opcode.LtF, opcode.Lt:
		return a < b
	case opcode.GeF, opcode.Ge:
		return a >= b
	case opcode.LeF, opcode.Le:
		return a <= b
	default:
		return false
	}
}
