package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	require.False(t, Bool(false).Truthy())
	require.False(t, Null().Truthy())
	require.False(t, Int(0).Truthy())
	require.True(t, Int(1).Truthy())
	require.True(t, Int(-1).Truthy())
	require.True(t, String("").Truthy())
	require.True(t, Float(0).Truthy())
}

func TestEqualCrossNumericKind(t *testing.T) {
	require.True(t, Equal(Int(2), Float(2.0)))
	require.True(t, Equal(Float(2.0), Int(2)))
	require.False(t, Equal(Int(2), Float(2.1)))
}

func TestEqualLists(t *testing.T) {
	a := List([]Value{Int(1), String("x")})
	b := List([]Value{Int(1), String("x")})
	c := List([]Value{Int(1), String("y")})
	require.True(t, Equal(a, b))
	require.False(t, Equal(a, c))
}

func TestObjectSetGetDeleteKeysOrder(t *testing.T) {
	obj := NewObject()
	obj.Set("b", Int(2))
	obj.Set("a", Int(1))
	require.Equal(t, []string{"b", "a"}, obj.Keys())

	v, ok := obj.Get("a")
	require.True(t, ok)
	require.Equal(t, int64(1), v.Int)

	obj.Delete("b")
	require.Equal(t, []string{"a"}, obj.Keys())
	require.False(t, obj.Has("b"))
}

func TestCloneDeepCopiesListsAndObjects(t *testing.T) {
	obj := NewObject()
	obj.Set("nums", List([]Value{Int(1), Int(2)}))

	clone := obj.Clone()
	inner, _ := clone.Get("nums")
	inner.List[0] = Int(99)

	original, _ := obj.Get("nums")
	require.Equal(t, int64(1), original.List[0].Int)
}

func TestRewriteAddrsFunctionAndClosure(t *testing.T) {
	fn := FunctionValue(10, []string{"x"})
	rewritten := RewriteAddrs(fn, 100)
	require.Equal(t, 110, rewritten.Fn.Addr)

	cl := ClosureValue(5, nil, map[string]Value{"y": FunctionValue(1, nil)})
	rewrittenCl := RewriteAddrs(cl, 100)
	require.Equal(t, 105, rewrittenCl.Fn.Addr)
	require.Equal(t, 101, rewrittenCl.Cap["y"].Fn.Addr)
}

func TestExceptionFromAny(t *testing.T) {
	require.Equal(t, "boom", ExceptionFromAny(String("boom")).Exc.Message)
	require.Equal(t, "42", ExceptionFromAny(Int(42)).Exc.Message)

	exc := ExceptionValue("already", nil)
	require.Same(t, exc.Exc, ExceptionFromAny(exc).Exc)
}
