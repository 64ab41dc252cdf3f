package middlewares

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hzhu212/data-monitor/model"
)

func TestFormatTextConfigError(t *testing.T) {
	job := &model.Job{Name: "j1"}
	info := model.NewAlarmInfo(model.AlarmConfigError, "option \"validator\" is required")
	out := FormatText(job, info)
	assert.Contains(t, out, "job: j1")
	assert.Contains(t, out, "reason: configuration error")
	assert.Contains(t, out, "option \"validator\" is required")
}

func TestFormatTextClaimTableTruncation(t *testing.T) {
	rows := make([][]any, 15)
	for i := range rows {
		rows[i] = []any{i, "missing"}
	}
	table := model.Table{Columns: []string{"dt", "has_data"}, Rows: rows}
	job := &model.Job{Name: "j1", Desc: "d", DueTime: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Validator: "claim(result)"}
	info := model.NewAlarmInfo(model.AlarmClaim, table)
	out := FormatText(job, info)
	assert.Contains(t, out, "... 5 more rows")
}

func TestFormatTextExceptionKind(t *testing.T) {
	job := &model.Job{Name: "j1", Desc: "d", DueTime: time.Now()}
	info := model.NewAlarmInfo(model.AlarmException, "panic: boom")
	out := FormatText(job, info)
	assert.Contains(t, out, "reason: uncaught exception")
	assert.Contains(t, out, "panic: boom")
}

func TestFormatTextDefaultKindReprsContent(t *testing.T) {
	job := &model.Job{Name: "j1", Validator: "result > 0"}
	info := model.NewAlarmInfo(model.AlarmDefault, "too low")
	out := FormatText(job, info)
	assert.Contains(t, out, "'too low'")
}

func TestFormatHTMLEscapesSQL(t *testing.T) {
	job := &model.Job{Name: "j1", DueTime: time.Now()}
	info := model.NewAlarmInfo(model.AlarmException, "boom")
	out := FormatHTML(job, info, []string{"select '<script>' from t"}, []string{"ds1"})
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestFormatHTMLConfigError(t *testing.T) {
	job := &model.Job{Name: "j1"}
	info := model.NewAlarmInfo(model.AlarmConfigError, "option \"validator\" is required")
	out := FormatHTML(job, info, []string{"select 1"}, []string{"ds1"})
	assert.Contains(t, out, "j1")
	assert.Contains(t, out, "configuration error")
	assert.Contains(t, out, "option&nbsp;&#34;validator&#34;&nbsp;is&nbsp;required")
	assert.NotContains(t, out, "select 1")
	assert.NotContains(t, out, "ds1")
	assert.NotContains(t, out, "Datasources")
}

func TestFormatHTMLClaimTable(t *testing.T) {
	table := model.Table{Columns: []string{"a"}, Rows: [][]any{{"x"}}}
	job := &model.Job{Name: "j1", DueTime: time.Now()}
	info := model.NewAlarmInfo(model.AlarmClaim, table)
	out := FormatHTML(job, info, nil, nil)
	assert.Contains(t, out, "<table")
	assert.Contains(t, out, "<td>x</td>")
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, looksLikeHTML("<p>hi</p>"))
	assert.False(t, looksLikeHTML("plain text"))
	assert.False(t, looksLikeHTML("has a < but no closing tag"))
}

func TestSplitChunksPrefersLineBoundary(t *testing.T) {
	// 5000-byte message with newlines at byte offsets 1500 and 3500.
	line1 := strings.Repeat("a", 1500)
	line2 := strings.Repeat("b", 1999)
	line3 := strings.Repeat("c", 1499)
	message := line1 + "\n" + line2 + "\n" + line3
	require := assert.New(t)
	require.Len(message, 5000)
	require.Equal(byte('\n'), message[1500])
	require.Equal(byte('\n'), message[3500])

	chunks := splitChunks(message, 2048)
	require.Len(chunks, 3)
	require.Len(chunks[0], 1501)
	require.Len(chunks[1], 2000)
	require.Len(chunks[2], 1499)

	joined := strings.Join(chunks, "")
	assert.Equal(t, message, joined)
}

func TestSplitChunksUnderLimitReturnsSingleChunk(t *testing.T) {
	chunks := splitChunks("short message", 2048)
	assert.Equal(t, []string{"short message"}, chunks)
}

func TestSplitChunksHardCutWithoutNewline(t *testing.T) {
	message := strings.Repeat("x", 5000)
	chunks := splitChunks(message, 2048)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2048)
	assert.Len(t, chunks[1], 2048)
	assert.Len(t, chunks[2], 5000-2*2048)
}
