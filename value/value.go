// Package value implements the tagged runtime value model shared by the
// stack interpreter, the register VM, the assembler, and the bytecode
// codecs.
package value

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind tags the variant a Value currently holds.
type Kind byte

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindBool
	KindNull
	KindList
	KindObject
	KindBytes
	KindConnection
	KindStream
	KindFuture
	KindFunction
	KindClosure
	KindException
)

// epsilon bounds float equality, matching the spec's "absolute difference
// less than machine epsilon" rule.
const epsilon = 2.220446049250313e-16

// Function is the (address, parameter names) pair carried by both plain
// functions and closures.
type Function struct {
	Addr   int
	Params []string
}

// Exception is the message+frames payload thrown by THROW and caught by
// TRY/CATCH.
type Exception struct {
	Message string
	Frames  []string
}

// Value is a tagged union. Only the field matching Kind is meaningful.
// Object fields are kept in insertion order via Keys since Go map
// iteration order is not stable and the spec only requires one
// (unspecified-but-consistent) order for KEYS.
type Value struct {
	Kind Kind

	Int    int64
	Float  float64
	Str    string
	Bool   bool
	List   []Value
	Bytes  []byte
	Handle string // backing id for Connection/Stream/Future

	object     map[string]Value
	objectKeys []string

	Fn  *Function
	Cap map[string]Value // non-nil only for KindClosure

	Exc *Exception
}

func Int(n int64) Value       { return Value{Kind: KindInt, Int: n} }
func Float(f float64) Value   { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value   { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func Null() Value             { return Value{Kind: KindNull} }
func List(items []Value) Value {
	return Value{Kind: KindList, List: items}
}
func BytesValue(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

func Connection(id string) Value { return Value{Kind: KindConnection, Handle: id} }
func Stream(id string) Value     { return Value{Kind: KindStream, Handle: id} }
func Future(id string) Value     { return Value{Kind: KindFuture, Handle: id} }

func NewObject() Value {
	return Value{Kind: KindObject, object: make(map[string]Value)}
}

func FunctionValue(addr int, params []string) Value {
	return Value{Kind: KindFunction, Fn: &Function{Addr: addr, Params: params}}
}

func ClosureValue(addr int, params []string, captured map[string]Value) Value {
	return Value{Kind: KindClosure, Fn: &Function{Addr: addr, Params: params}, Cap: captured}
}

func ExceptionValue(message string, frames []string) Value {
	return Value{Kind: KindException, Exc: &Exception{Message: message, Frames: frames}}
}

// ExceptionFromAny converts an arbitrary thrown value per THROW semantics:
// strings become the message verbatim, exceptions pass through unchanged,
// everything else is rendered with Debug.
func ExceptionFromAny(v Value) Value {
	switch v.Kind {
	case KindException:
		return v
	case KindString:
		return ExceptionValue(v.Str, nil)
	default:
		return ExceptionValue(v.Debug(), nil)
	}
}

// Set/Get/Has/Delete/Keys operate on the object variant, preserving
// insertion order the way the teacher's maps preserved Go map iteration
// for debug dumps -- here made deterministic via an explicit key slice.
func (v *Value) Set(key string, val Value) {
	if v.object == nil {
		v.object = make(map[string]Value)
	}
	if _, exists := v.object[key]; !exists {
		v.objectKeys = append(v.objectKeys, key)
	}
	v.object[key] = val
}

func (v *Value) Get(key string) (Value, bool) {
	val, ok := v.object[key]
	return val, ok
}

func (v *Value) Has(key string) bool {
	_, ok := v.object[key]
	return ok
}

func (v *Value) Delete(key string) {
	if _, ok := v.object[key]; !ok {
		return
	}
	delete(v.object, key)
	for i, k := range v.objectKeys {
		if k == key {
			v.objectKeys = append(v.objectKeys[:i], v.objectKeys[i+1:]...)
			break
		}
	}
}

func (v *Value) Keys() []string {
	keys := make([]string, len(v.objectKeys))
	copy(keys, v.objectKeys)
	return keys
}

// Truthy implements the spec's conditional-jump truthiness rule: false,
// null, and integer 0 are falsy, everything else is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNull:
		return false
	case KindInt:
		return v.Int != 0
	default:
		return true
	}
}

// Equal implements structural equality with epsilon-bounded float
// comparison.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		// Allow int/float cross-comparison the way the generic
		// comparison opcodes do arithmetic coercion.
		if a.Kind == KindInt && b.Kind == KindFloat {
			return math.Abs(float64(a.Int)-b.Float) < epsilon
		}
		if a.Kind == KindFloat && b.Kind == KindInt {
			return math.Abs(a.Float-float64(b.Int)) < epsilon
		}
		return false
	}

	switch a.Kind {
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return math.Abs(a.Float-b.Float) < epsilon
	case KindString:
		return a.Str == b.Str
	case KindBool:
		return a.Bool == b.Bool
	case KindNull:
		return true
	case KindBytes:
		return string(a.Bytes) == string(b.Bytes)
	case KindConnection, KindStream, KindFuture:
		return a.Handle == b.Handle
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.object) != len(b.object) {
			return false
		}
		for k, av := range a.object {
			bv, ok := b.object[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindFunction:
		return a.Fn.Addr == b.Fn.Addr
	case KindException:
		return a.Exc.Message == b.Exc.Message
	default:
		return false
	}
}

// Debug renders a value the way THROW's non-string/non-exception fallback
// and PRINT need: deterministic, human readable, stable key order.
func (v Value) Debug() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.Str
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindNull:
		return "null"
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.Bytes))
	case KindConnection:
		return fmt.Sprintf("connection(%s)", v.Handle)
	case KindStream:
		return fmt.Sprintf("stream(%s)", v.Handle)
	case KindFuture:
		return fmt.Sprintf("future(%s)", v.Handle)
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.Debug()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		keys := append([]string(nil), v.objectKeys...)
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, v.object[k].Debug()))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindFunction:
		return fmt.Sprintf("function@%d(%s)", v.Fn.Addr, strings.Join(v.Fn.Params, ", "))
	case KindClosure:
		return fmt.Sprintf("closure@%d(%s)[captured:%d]", v.Fn.Addr, strings.Join(v.Fn.Params, ", "), len(v.Cap))
	case KindException:
		return fmt.Sprintf("Exception: %s", v.Exc.Message)
	default:
		return "?"
	}
}

func (v Value) String() string { return v.Debug() }

// Clone deep-copies a value. Used when delivering values across process
// boundaries through the mailbox so two processes never alias mutable
// state (lists/objects).
func (v Value) Clone() Value {
	out := v
	if v.List != nil {
		out.List = make([]Value, len(v.List))
		for i, item := range v.List {
			out.List[i] = item.Clone()
		}
	}
	if v.Bytes != nil {
		out.Bytes = append([]byte(nil), v.Bytes...)
	}
	if v.object != nil {
		out.object = make(map[string]Value, len(v.object))
		for k, val := range v.object {
			out.object[k] = val.Clone()
		}
		out.objectKeys = append([]string(nil), v.objectKeys...)
	}
	if v.Cap != nil {
		out.Cap = make(map[string]Value, len(v.Cap))
		for k, val := range v.Cap {
			out.Cap[k] = val.Clone()
		}
	}
	return out
}

// IsNumeric reports whether the value is an Int or a Float, the set
// accepted by the generic arithmetic opcodes.
func (v Value) IsNumeric() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

// AsFloat widens an Int or Float to float64, for the generic arithmetic
// forms that coerce to float when either operand is a float.
func (v Value) AsFloat() float64 {
	if v.Kind == KindFloat {
		return v.Float
	}
	return float64(v.Int)
}

// RewriteAddrs recurses through a value rewriting any function/closure
// addresses it carries by adding base. Module merging in vmcore does not
// call it: it relocates the module's instructions with
// opcode.RewriteAddrs before running them, so the exported values already
// carry host-space addresses.
func RewriteAddrs(v Value, base int) Value {
	switch v.Kind {
	case KindFunction:
		nf := *v.Fn
		nf.Addr += base
		v.Fn = &nf
		return v
	case KindClosure:
		nf := *v.Fn
		nf.Addr += base
		v.Fn = &nf
		if v.Cap != nil {
			nc := make(map[string]Value, len(v.Cap))
			for k, cv := range v.Cap {
				nc[k] = RewriteAddrs(cv, base)
			}
			v.Cap = nc
		}
		return v
	case KindList:
		nl := make([]Value, len(v.List))
		for i, item := range v.List {
			nl[i] = RewriteAddrs(item, base)
		}
		v.List = nl
		return v
	case KindObject:
		nv := NewObject()
		for _, k := range v.objectKeys {
			nv.Set(k, RewriteAddrs(v.object[k], base))
		}
		return nv
	default:
		return v
	}
}
