package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tinytotvm/bytecode"
	"tinytotvm/opcode"
)

func TestFoldConstants(t *testing.T) {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.PushInt, Int: 2},
		{Code: opcode.PushInt, Int: 3},
		{Code: opcode.Add},
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}}

	out, report := Run(prog)
	require.Equal(t, 1, report.ConstantsFolded)
	require.Len(t, out.Instructions, 3)
	require.Equal(t, opcode.PushInt, out.Instructions[0].Code)
	require.Equal(t, int64(5), out.Instructions[0].Int)
}

func TestFoldConstantsSkipsDivByZero(t *testing.T) {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.PushInt, Int: 1},
		{Code: opcode.PushInt, Int: 0},
		{Code: opcode.Div},
		{Code: opcode.Halt},
	}}

	out, report := Run(prog)
	require.Equal(t, 0, report.ConstantsFolded)
	// Division by zero is still a live runtime instruction sequence.
	found := false
	for _, in := range out.Instructions {
		if in.Code == opcode.Div {
			found = true
		}
	}
	require.True(t, found)
}

func TestFoldConstantsFoldsNot(t *testing.T) {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.False},
		{Code: opcode.Not},
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}}

	out, report := Run(prog)
	require.Equal(t, 1, report.ConstantsFolded)
	require.Equal(t, opcode.True, out.Instructions[0].Code)
}

func TestFoldConstantsFoldsIntComparison(t *testing.T) {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.PushInt, Int: 2},
		{Code: opcode.PushInt, Int: 3},
		{Code: opcode.Lt},
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}}

	out, report := Run(prog)
	require.Equal(t, 1, report.ConstantsFolded)
	require.Equal(t, opcode.True, out.Instructions[0].Code)
}

func TestFoldConstantsFoldsFloatArithmetic(t *testing.T) {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.PushFloat, Float: 1.5},
		{Code: opcode.PushFloat, Float: 2.5},
		{Code: opcode.AddF},
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}}

	out, report := Run(prog)
	require.Equal(t, 1, report.ConstantsFolded)
	require.Equal(t, opcode.PushFloat, out.Instructions[0].Code)
	require.Equal(t, 4.0, out.Instructions[0].Float)
}

func TestFoldConstantsSkipsFloatDivByZero(t *testing.T) {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.PushFloat, Float: 1},
		{Code: opcode.PushFloat, Float: 0},
		{Code: opcode.DivF},
		{Code: opcode.Halt},
	}}

	out, report := Run(prog)
	require.Equal(t, 0, report.ConstantsFolded)
	found := false
	for _, in := range out.Instructions {
		if in.Code == opcode.DivF {
			found = true
		}
	}
	require.True(t, found)
}

func TestTailCallConversion(t *testing.T) {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.Call, Addr: 3},
		{Code: opcode.Ret},
		{Code: opcode.Halt},
		{Code: opcode.PushInt, Int: 1},
		{Code: opcode.Ret},
	}}

	out, report := Run(prog)
	require.Equal(t, 1, report.TailCalls)
	require.Equal(t, opcode.Jmp, out.Instructions[0].Code)
}

func TestTailCallSkipsNamedParams(t *testing.T) {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.Call, Addr: 3, Params: []string{"x"}},
		{Code: opcode.Ret},
		{Code: opcode.Halt},
	}}

	_, report := Run(prog)
	require.Equal(t, 0, report.TailCalls)
}

func TestDeadCodeElimination(t *testing.T) {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.PushInt, Int: 1},
		{Code: opcode.Jmp, Addr: 3},
		{Code: opcode.PushInt, Int: 999}, // unreachable
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}}

	out, report := Run(prog)
	require.Equal(t, 1, report.DeadInstructions)

	for _, in := range out.Instructions {
		require.NotEqual(t, int64(999), in.Int)
	}
}

func TestDeadCodeRewritesJumpTargets(t *testing.T) {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.Jmp, Addr: 2},
		{Code: opcode.PushInt, Int: 999}, // unreachable, gets dropped
		{Code: opcode.PushInt, Int: 1},
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}}

	out, _ := Run(prog)
	// after dropping index 1, the jmp target must be remapped to the new
	// index of the former instruction 2.
	require.Equal(t, opcode.Jmp, out.Instructions[0].Code)
	target := out.Instructions[0].Addr
	require.Equal(t, opcode.PushInt, out.Instructions[target].Code)
	require.Equal(t, int64(1), out.Instructions[target].Int)
}
