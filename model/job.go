// Package model holds the data types shared across the job lifecycle
// engine — config loading, templating, validation, execution, scheduling,
// and alerting all operate on these same shapes, so they live in one leaf
// package none of those import each other through.
package model

import (
	"fmt"
	"html"
	"regexp"
	"time"
)

// DatasourceConfig holds the connection parameters for one named database.
// It is parsed once at startup and never mutated afterward; jobs reference
// it by name.
type DatasourceConfig struct {
	Name     string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Charset  string
}

// Period is one of the five allowed job recurrence periods.
type Period string

// Allowed Period values, matching the enumerated option checked by the
// job validator.
const (
	PeriodYear  Period = "year"
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
	PeriodDay   Period = "day"
	PeriodHour  Period = "hour"
)

// Job is one fully-validated, ready-to-run monitoring probe.
type Job struct {
	Name              string
	Desc              string
	Period            Period
	IsActive          bool
	AlarmIM           []string
	AlarmEmail        []string
	DueTime           time.Time
	Datasources       []*DatasourceConfig
	DatabaseOverrides []string
	SQLStatements     []string
	Validator         string
	RetryTimes        int
	RetryInterval     time.Duration
}

var identRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Clone produces an independent copy of j suitable for the hourly
// expansion: the slices are copied so that per-clone DueTime/Name/SQL
// rewrites never alias the original job.
func (j *Job) Clone() *Job {
	clone := *j
	clone.AlarmIM = append([]string(nil), j.AlarmIM...)
	clone.AlarmEmail = append([]string(nil), j.AlarmEmail...)
	clone.Datasources = append([]*DatasourceConfig(nil), j.Datasources...)
	clone.DatabaseOverrides = append([]string(nil), j.DatabaseOverrides...)
	clone.SQLStatements = append([]string(nil), j.SQLStatements...)
	return &clone
}

// AlarmKind enumerates the shapes AlarmInfo.Content can take.
type AlarmKind string

// Allowed AlarmKind values (IM-formatter output layout).
const (
	AlarmConfigError AlarmKind = "config_error"
	AlarmDiff        AlarmKind = "diff"
	AlarmClaim       AlarmKind = "claim"
	AlarmException   AlarmKind = "exception"
	AlarmDefault     AlarmKind = "default"
)

// AlarmInfo describes one failure: its kind and kind-dependent content.
type AlarmInfo struct {
	Kind    AlarmKind
	Content any
}

// NewAlarmInfo builds an AlarmInfo from a validator-returned info value.
func NewAlarmInfo(kind AlarmKind, content any) AlarmInfo {
	return AlarmInfo{Kind: kind, Content: content}
}

// ScheduledEntry is a (due_time, job) pair held in the scheduler's
// priority queue, ordered strictly by DueTime ascending, ties broken by
// insertion order.
type ScheduledEntry struct {
	DueTime time.Time
	Job     *Job
	Seq     int64
}

// Table is the in-process rectangular value used for "claim"/"diff"
// AlarmInfo content: named columns and ordered rows, with helpers to
// render to plain text (capped rows) and HTML.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Limit returns a copy of t truncated to at most n rows, with an overflow
// count the caller can use to print "... N more rows".
func (t Table) Limit(n int) (limited Table, overflow int) {
	if len(t.Rows) <= n {
		return t, 0
	}
	limited = Table{Columns: t.Columns, Rows: t.Rows[:n]}
	return limited, len(t.Rows) - n
}

// String renders the table as a simple tab-separated plain-text grid.
func (t Table) String() string {
	out := ""
	if len(t.Columns) > 0 {
		out += joinRow(t.Columns) + "\n"
	}
	for _, row := range t.Rows {
		out += joinRow(row) + "\n"
	}
	return out
}

func joinRow(vals any) string {
	switch v := vals.(type) {
	case []string:
		s := ""
		for i, c := range v {
			if i > 0 {
				s += "\t"
			}
			s += c
		}
		return s
	case []any:
		s := ""
		for i, c := range v {
			if i > 0 {
				s += "\t"
			}
			s += fmt.Sprintf("%v", c)
		}
		return s
	default:
		return fmt.Sprintf("%v", vals)
	}
}

// HTML renders the table as a minimal <table> element.
func (t Table) HTML() string {
	out := "<table border=\"1\">"
	if len(t.Columns) > 0 {
		out += "<tr>"
		for _, c := range t.Columns {
			out += "<th>" + html.EscapeString(c) + "</th>"
		}
		out += "</tr>"
	}
	for _, row := range t.Rows {
		out += "<tr>"
		for _, v := range row {
			out += "<td>" + html.EscapeString(fmt.Sprintf("%v", v)) + "</td>"
		}
		out += "</tr>"
	}
	out += "</table>"
	return out
}

// SanitizeColumnName renames a result-set column to "col{index}" when it
// does not match [A-Za-z0-9_]+, per the Probe Executor's shaping rule.
func SanitizeColumnName(name string, index int) string {
	if identRe.MatchString(name) {
		return name
	}
	return fmt.Sprintf("col%d", index)
}
