package exprlang

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalString(t *testing.T, src string, env Env) any {
	t.Helper()
	n, err := Parse(src)
	require.NoError(t, err)
	v, err := Eval(n, env)
	require.NoError(t, err)
	return v
}

func TestArithmetic(t *testing.T) {
	cases := map[string]any{
		"1 + 2":     int64(3),
		"7 // 2":    int64(3),
		"-7 // 2":   int64(-4),
		"7 % 2":     int64(1),
		"-7 % 2":    int64(1),
		"2 ** 10":   int64(1024),
		"1 / 2":     0.5,
		"2.5 + 2.5": float64(5),
	}
	for src, want := range cases {
		got := evalString(t, src, MapEnv{})
		assert.Equal(t, want, got, src)
	}
}

func TestPowFractionalExponent(t *testing.T) {
	got := evalString(t, "4 ** 0.5", MapEnv{})
	assert.InDelta(t, 2.0, got, 1e-9)
}

func TestComparisonChaining(t *testing.T) {
	assert.Equal(t, true, evalString(t, "1 < 2 < 3", MapEnv{}))
	assert.Equal(t, false, evalString(t, "1 < 2 < 1", MapEnv{}))
}

func TestBooleanShortCircuit(t *testing.T) {
	assert.Equal(t, int64(0), evalString(t, "0 and 5", MapEnv{}))
	assert.Equal(t, int64(5), evalString(t, "1 and 5", MapEnv{}))
	assert.Equal(t, int64(1), evalString(t, "1 or 5", MapEnv{}))
}

func TestTupleAndListLiterals(t *testing.T) {
	got := evalString(t, "(1, 2, 3)", MapEnv{})
	assert.Equal(t, Tuple{int64(1), int64(2), int64(3)}, got)

	got = evalString(t, "[1, 2, 3]", MapEnv{})
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)
}

func TestSubscriptAndSlice(t *testing.T) {
	env := MapEnv{"xs": []any{int64(10), int64(20), int64(30), int64(40)}}
	assert.Equal(t, int64(20), evalString(t, "xs[1]", env))
	assert.Equal(t, int64(40), evalString(t, "xs[-1]", env))
	assert.Equal(t, []any{int64(20), int64(30)}, evalString(t, "xs[1:3]", env))
}

func TestCallWithKwargs(t *testing.T) {
	var gotArgs []any
	var gotKwargs map[string]any
	env := MapEnv{"f": Func(func(args []any, kwargs map[string]any) (any, error) {
		gotArgs = args
		gotKwargs = kwargs
		return int64(1), nil
	})}
	evalString(t, "f(1, 2, x=3)", env)
	assert.Equal(t, []any{int64(1), int64(2)}, gotArgs)
	assert.Equal(t, map[string]any{"x": int64(3)}, gotKwargs)
}

func TestUnresolvedNameIsSentinel(t *testing.T) {
	n, err := Parse("missing_name")
	require.NoError(t, err)
	_, err = Eval(n, MapEnv{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedName))
}

func TestMembership(t *testing.T) {
	env := MapEnv{"xs": []any{int64(1), int64(2), int64(3)}}
	assert.Equal(t, true, evalString(t, "2 in xs", env))
	assert.Equal(t, false, evalString(t, "9 in xs", env))
	assert.Equal(t, true, evalString(t, `"ell" in "hello"`, MapEnv{}))
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(int64(0)))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy([]any{}))
	assert.True(t, Truthy([]any{1}))
	assert.True(t, Truthy("x"))
}
