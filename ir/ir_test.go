package ir

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"tinytotvm/opcode"
)

func TestLowerArithmeticAndRun(t *testing.T) {
	instrs := []opcode.Instruction{
		{Code: opcode.PushInt, Int: 2},
		{Code: opcode.PushInt, Int: 3},
		{Code: opcode.Add},
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}

	prog, err := Lower(instrs)
	require.NoError(t, err)

	var out bytes.Buffer
	vm := NewVM(prog, &out)
	require.NoError(t, vm.Run())
	require.Equal(t, "5\n", out.String())
}

func TestLowerStoreLoad(t *testing.T) {
	instrs := []opcode.Instruction{
		{Code: opcode.PushInt, Int: 41},
		{Code: opcode.Store, Str: "x"},
		{Code: opcode.Load, Str: "x"},
		{Code: opcode.PushInt, Int: 1},
		{Code: opcode.Add},
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}

	prog, err := Lower(instrs)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, NewVM(prog, &out).Run())
	require.Equal(t, "42\n", out.String())
}

func TestAddCoercesMixedIntAndFloatToFloat(t *testing.T) {
	instrs := []opcode.Instruction{
		{Code: opcode.PushInt, Int: 1},
		{Code: opcode.PushFloat, Float: 2.5},
		{Code: opcode.Add},
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}

	prog, err := Lower(instrs)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, NewVM(prog, &out).Run())
	require.Equal(t, "3.5\n", out.String())
}

func TestEqSupportsNonIntOperands(t *testing.T) {
	instrs := []opcode.Instruction{
		{Code: opcode.PushStr, Str: "hi"},
		{Code: opcode.PushStr, Str: "hi"},
		{Code: opcode.Eq},
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}

	prog, err := Lower(instrs)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, NewVM(prog, &out).Run())
	require.Equal(t, "true\n", out.String())
}

func TestLowerRejectsConcurrency(t *testing.T) {
	instrs := []opcode.Instruction{
		{Code: opcode.Spawn},
	}
	_, err := Lower(instrs)
	require.Error(t, err)
}

func TestLowerRejectsCall(t *testing.T) {
	instrs := []opcode.Instruction{
		{Code: opcode.Call, Addr: 0},
	}
	_, err := Lower(instrs)
	require.Error(t, err)
}

func TestDivisionByZero(t *testing.T) {
	instrs := []opcode.Instruction{
		{Code: opcode.PushInt, Int: 1},
		{Code: opcode.PushInt, Int: 0},
		{Code: opcode.Div},
		{Code: opcode.Halt},
	}
	prog, err := Lower(instrs)
	require.NoError(t, err)

	var out bytes.Buffer
	err = NewVM(prog, &out).Run()
	require.Error(t, err)
}

func TestJumpSkipsDeadBranch(t *testing.T) {
	instrs := []opcode.Instruction{
		{Code: opcode.PushInt, Int: 1},
		{Code: opcode.Jz, Addr: 5},
		{Code: opcode.PushInt, Int: 99},
		{Code: opcode.Print},
		{Code: opcode.Jmp, Addr: 7},
		{Code: opcode.PushInt, Int: 7}, // unreachable in this run
		{Code: opcode.Print},
		{Code: opcode.Halt},
	}

	prog, err := Lower(instrs)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, NewVM(prog, &out).Run())
	require.Equal(t, "99\n", out.String())
}
