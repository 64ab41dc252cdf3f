package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/hzhu212/data-monitor/logging"
)

// ValidateCommand loads and validates every requested job without
// scheduling anything, printing one line per job. Grounded on the
// teacher's ValidateCommand (cli/validate.go).
type ValidateCommand struct {
	ConfigFiles  []string `short:"c" long:"config-file" description:"job config file (repeatable, glob-expanded)" default:"job.cfg"`
	DBConfigFile string   `long:"db-config-file" description:"datasource config file" default:"database.cfg"`
	Jobs         []string `short:"j" long:"job" description:"restrict to the given job(s) (repeatable)"`
	LogLevel     string   `long:"log-level" description:"log level (trace,debug,info,warning,error,critical)"`
}

// Execute implements go-flags' Commander.
func (c *ValidateCommand) Execute(_ []string) error {
	log, err := logging.New(c.LogLevel)
	if err != nil {
		return err
	}

	app := NewApp(log)
	result, err := loadFromAllFiles(app, c.ConfigFiles, c.DBConfigFile, c.Jobs, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return err
	}

	for _, job := range result.Jobs {
		fmt.Fprintf(os.Stdout, "%s: OK\n", job.Name)
	}
	for _, failure := range result.Failures {
		fmt.Fprintf(os.Stdout, "%s: %v\n", failure.Job, failure)
	}

	if len(result.Failures) > 0 {
		return fmt.Errorf("%d job(s) failed validation", len(result.Failures))
	}
	return nil
}
