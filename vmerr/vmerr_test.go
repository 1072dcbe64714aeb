package vmerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessagesIncludeContext(t *testing.T) {
	require.Contains(t, (&StackUnderflow{Operation: "add"}).Error(), "add")
	require.Contains(t, (&TypeMismatch{Expected: "int", Got: "string", Operation: "add"}).Error(), "int")
	require.Contains(t, (&IndexOutOfBounds{Index: 5, Length: 3}).Error(), "5")
	require.Contains(t, (&UndefinedVariable{Name: "x"}).Error(), "x")
	require.Contains(t, (&CircularDependency{Path: "a"}).Error(), "a")
	require.Contains(t, (&UnsupportedOperation{Operation: "spawn"}).Error(), "spawn")
}

func TestFileErrorUnwraps(t *testing.T) {
	inner := errors.New("disk full")
	fe := &FileError{Filename: "prog.ttvm", Reason: inner}
	require.ErrorIs(t, fe, inner)
	require.Contains(t, fe.Error(), "prog.ttvm")
}

func TestDivisionByZeroAndProgramFinishedAreDistinctSentinels(t *testing.T) {
	var dz error = &DivisionByZero{}
	var pf error = &ProgramFinished{}
	require.NotEqual(t, dz.Error(), pf.Error())
}
