package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderIdentityOnNoBraces(t *testing.T) {
	r := NewRenderer(NewDefaultRegistry())
	out, err := r.Render("select * from t where 1=1", nil)
	require.NoError(t, err)
	assert.Equal(t, "select * from t where 1=1", out)
}

func TestRenderSimpleExpression(t *testing.T) {
	r := NewRenderer(NewDefaultRegistry())
	globals := map[string]any{"BASETIME": time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)}
	out, err := r.Render("day is {BASETIME|dt_format(\"%Y-%m-%d\")}", globals)
	require.NoError(t, err)
	assert.Equal(t, "day is 2024-03-15", out)
}

func TestRenderFilterChain(t *testing.T) {
	r := NewRenderer(NewDefaultRegistry())
	globals := map[string]any{"BASETIME": time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)}
	out, err := r.Render("{BASETIME|dt_add(days=1)|dt_format(\"%Y-%m-%d\")}", globals)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-16", out)
}

func TestPass1EscapesDuetimeAndPass2Resolves(t *testing.T) {
	r := NewRenderer(NewDefaultRegistry())
	today := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	raw := map[string]string{
		"sql": "select * from t where dt = '{DUETIME|dt_format(\"%Y-%m-%d\")}' and base = '{BASETIME|dt_format(\"%Y-%m-%d\")}'",
	}
	pass1, err := r.RenderPass1(raw, today)
	require.NoError(t, err)
	assert.Contains(t, pass1["sql"], "base = '2024-03-15'")
	assert.NotContains(t, pass1["sql"], "base = '{BASETIME")

	dueTime := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	final, err := r.RenderPass2(pass1["sql"], dueTime)
	require.NoError(t, err)
	assert.Equal(t, "select * from t where dt = '2024-03-15' and base = '2024-03-15'", final)
}

func TestEscapeUnescapeDependentRoundTrip(t *testing.T) {
	s := "prefix {DUETIME|dt_format(\"%H\")} and {BASETIME} suffix"
	escaped := EscapeDependent(s)
	assert.NotContains(t, escaped, "{DUETIME")
	assert.Contains(t, escaped, "{BASETIME}")
	unescaped := UnescapeDependent(escaped)
	assert.Equal(t, s, unescaped)
}

func TestDtSetWeekday(t *testing.T) {
	fn, _ := NewDefaultRegistry().lookup("dt_set")
	base := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC) // Wednesday
	got, err := fn([]any{base}, map[string]any{"weekday": int64(1)})
	require.NoError(t, err)
	tm := got.(time.Time)
	assert.Equal(t, time.Monday, tm.Weekday())
}

func TestDtSetWeekdayConflictsWithDay(t *testing.T) {
	fn, _ := NewDefaultRegistry().lookup("dt_set")
	base := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)
	_, err := fn([]any{base}, map[string]any{"weekday": int64(1), "day": int64(5)})
	require.Error(t, err)
}

func TestDtAddAcceptsSingularAndPlural(t *testing.T) {
	fn, _ := NewDefaultRegistry().lookup("dt_add")
	base := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	got1, err := fn([]any{base}, map[string]any{"day": int64(1)})
	require.NoError(t, err)
	got2, err := fn([]any{base}, map[string]any{"days": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, got1, got2)
}

func TestRenderUnterminatedBlockErrors(t *testing.T) {
	r := NewRenderer(NewDefaultRegistry())
	_, err := r.Render("select {BASETIME", nil)
	require.Error(t, err)
}
