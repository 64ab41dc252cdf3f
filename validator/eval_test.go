package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzhu212/data-monitor/internal/exprlang"
	"github.com/hzhu212/data-monitor/model"
)

func TestEvaluateBareTruthy(t *testing.T) {
	reg := NewDefaultRegistry()
	res, err := Evaluate("result > 0", int64(5), reg)
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = Evaluate("result > 0", int64(-5), reg)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, model.AlarmDefault, res.Info.Kind)
}

func TestEvaluateTupleReturn(t *testing.T) {
	reg := NewDefaultRegistry()
	res, err := Evaluate(`(False, "too low")`, nil, reg)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "too low", res.Info.Content)
}

func TestEvaluateWithGtPredicate(t *testing.T) {
	reg := NewDefaultRegistry()
	res, err := Evaluate("gt(30)(result)", int64(40), reg)
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = Evaluate("gt(30)(result)", int64(20), reg)
	require.NoError(t, err)
	assert.False(t, res.OK)
}

func TestCheckSyntaxRejectsUnresolvedName(t *testing.T) {
	reg := NewDefaultRegistry()
	err := CheckSyntax("totally_unknown_name(result)", reg)
	require.Error(t, err)
}

func TestCheckSyntaxRejectsParseError(t *testing.T) {
	reg := NewDefaultRegistry()
	err := CheckSyntax("result > ", reg)
	require.Error(t, err)
}

func TestCheckSyntaxIgnoresRuntimeErrorOnNilResult(t *testing.T) {
	reg := NewDefaultRegistry()
	err := CheckSyntax("result > 0", reg)
	require.NoError(t, err)
}

func TestClaimWithScalarNoPredicate(t *testing.T) {
	reg := NewDefaultRegistry()
	res, err := Evaluate("claim(result)", int64(1), reg)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestClaimWithTableAllPass(t *testing.T) {
	table := model.Table{
		Columns: []string{"dt", "cnt"},
		Rows: [][]any{
			{"2024-01-01", int64(10)},
			{"2024-01-02", int64(12)},
		},
	}
	reg := NewDefaultRegistry()
	res, err := Evaluate("claim(result, gt(0), serial=False)", table, reg)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestClaimWithTableFailingRow(t *testing.T) {
	table := model.Table{
		Columns: []string{"dt", "cnt"},
		Rows: [][]any{
			{"2024-01-01", int64(10)},
			{"2024-01-02", int64(0)},
		},
	}
	reg := NewDefaultRegistry()
	res, err := Evaluate("claim(result, gt(0), serial=False)", table, reg)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, model.AlarmClaim, res.Info.Kind)
	resultTable, ok := res.Info.Content.(model.Table)
	require.True(t, ok)
	assert.Len(t, resultTable.Rows, 1)
}

func TestClaimWithEmptyTable(t *testing.T) {
	table := model.Table{Columns: []string{"dt", "cnt"}}
	reg := NewDefaultRegistry()
	res, err := Evaluate("claim(result)", table, reg)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "result is empty", res.Info.Content)
}

func TestDiffMatchingWithinThreshold(t *testing.T) {
	t1 := model.Table{Columns: []string{"id", "v"}, Rows: [][]any{{"a", int64(10)}}}
	t2 := model.Table{Columns: []string{"id", "v"}, Rows: [][]any{{"a", int64(10)}}}
	reg := NewDefaultRegistry()
	res, err := Evaluate("diff(result[0], result[1])", exprlang.Tuple{t1, t2}, reg)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestDiffExceedsThreshold(t *testing.T) {
	t1 := model.Table{Columns: []string{"id", "v"}, Rows: [][]any{{"a", int64(10)}}}
	t2 := model.Table{Columns: []string{"id", "v"}, Rows: [][]any{{"a", int64(5)}}}
	reg := NewDefaultRegistry()
	res, err := Evaluate("diff(result[0], result[1])", exprlang.Tuple{t1, t2}, reg)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, model.AlarmDiff, res.Info.Kind)
}

func TestAndsOrsCombinators(t *testing.T) {
	reg := NewDefaultRegistry()
	res, err := Evaluate("ands(gt(0), lt(100))(result)", int64(50), reg)
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = Evaluate("ands(gt(0), lt(100))(result)", int64(150), reg)
	require.NoError(t, err)
	assert.False(t, res.OK)

	res, err = Evaluate("ors(lt(0), gt(100))(result)", int64(150), reg)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestRegistryCustomFunction(t *testing.T) {
	reg := NewRegistry()
	reg.Register("always_ok", exprlang.Func(func(_ []any, _ map[string]any) (any, error) {
		return true, nil
	}))
	res, err := Evaluate("always_ok()", nil, reg)
	require.NoError(t, err)
	assert.True(t, res.OK)
}
