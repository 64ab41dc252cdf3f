package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzhu212/data-monitor/logging"
)

var testToday = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func testLog() logging.Logger {
	l := logrus.New()
	l.Out = os.Stdout
	return &logging.Adapter{Logger: l}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAllHappyPath(t *testing.T) {
	dir := t.TempDir()
	dbFile := writeFile(t, dir, "database.cfg", "[ds1]\nhost = localhost\nport = 5432\nuser = u\npassword = p\ndatabase = d\n")
	jobFile := writeFile(t, dir, "job.cfg", ""+
		"[global]\nlog-level = info\n\n"+
		"[job_a]\n"+
		"desc = a job\n"+
		"period = day\n"+
		"is_active = true\n"+
		"alarm_im = alice\n"+
		"alarm_email = alice@example.com\n"+
		"due_time = 2024-03-15 09:00:00\n"+
		"datasources = ds1\n"+
		"sql = select 1\n"+
		"validator = result > 0\n")

	app := NewApp(testLog())
	result, err := app.LoadAll(jobFile, dbFile, nil, testToday)
	require.NoError(t, err)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "job_a", result.Jobs[0].Name)
	assert.Empty(t, result.Failures)
	assert.Equal(t, "info", app.Global.LogLevel)
}

func TestLoadAllReportsPerJobFailureWithoutAbortingOthers(t *testing.T) {
	dir := t.TempDir()
	dbFile := writeFile(t, dir, "database.cfg", "[ds1]\nhost = localhost\nport = 5432\n")
	jobFile := writeFile(t, dir, "job.cfg", ""+
		"[job_good]\n"+
		"desc = good\n"+
		"period = day\n"+
		"is_active = true\n"+
		"alarm_im = alice\n"+
		"alarm_email = alice@example.com\n"+
		"due_time = 2024-03-15 09:00:00\n"+
		"datasources = ds1\n"+
		"sql = select 1\n"+
		"validator = result > 0\n\n"+
		"[job_bad]\n"+
		"desc = bad\n"+
		"period = day\n"+
		"is_active = true\n"+
		"alarm_im = alice\n"+
		"alarm_email = alice@example.com\n"+
		"due_time = 2024-03-15 09:00:00\n"+
		"datasources = unknown_ds\n"+
		"sql = select 1\n"+
		"validator = result > 0\n")

	app := NewApp(testLog())
	result, err := app.LoadAll(jobFile, dbFile, nil, testToday)
	require.NoError(t, err)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "job_good", result.Jobs[0].Name)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "job_bad", result.Failures[0].Job)
}

func TestLoadAllRestrictsToRequestedJobs(t *testing.T) {
	dir := t.TempDir()
	dbFile := writeFile(t, dir, "database.cfg", "[ds1]\nhost = localhost\nport = 5432\n")
	jobFile := writeFile(t, dir, "job.cfg", ""+
		"[job_a]\n"+
		"desc = a\nperiod = day\nis_active = true\nalarm_im = alice\nalarm_email = a@x.com\n"+
		"due_time = 2024-03-15 09:00:00\ndatasources = ds1\nsql = select 1\nvalidator = result\n\n"+
		"[job_b]\n"+
		"desc = b\nperiod = day\nis_active = true\nalarm_im = alice\nalarm_email = a@x.com\n"+
		"due_time = 2024-03-15 09:00:00\ndatasources = ds1\nsql = select 1\nvalidator = result\n")

	app := NewApp(testLog())
	result, err := app.LoadAll(jobFile, dbFile, []string{"job_b"}, testToday)
	require.NoError(t, err)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "job_b", result.Jobs[0].Name)
}

func TestLoadAllFatalOnMissingFile(t *testing.T) {
	app := NewApp(testLog())
	_, err := app.LoadAll("/nonexistent/job.cfg", "/nonexistent/database.cfg", nil, testToday)
	require.Error(t, err)
}
