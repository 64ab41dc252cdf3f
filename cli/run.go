package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hzhu212/data-monitor/config"
	"github.com/hzhu212/data-monitor/core"
	"github.com/hzhu212/data-monitor/logging"
	"github.com/hzhu212/data-monitor/middlewares"
	"github.com/hzhu212/data-monitor/model"
)

// RunCommand loads, validates and schedules every requested job, then
// drives the scheduler until its queue drains or a shutdown signal
// arrives. Grounded on the teacher's DaemonCommand (cli/daemon.go) shape:
// a flags-decorated struct with an Execute method.
type RunCommand struct {
	ConfigFiles   []string `short:"c" long:"config-file" description:"job config file (repeatable, glob-expanded)" default:"job.cfg"`
	DBConfigFile  string   `long:"db-config-file" description:"datasource config file" default:"database.cfg"`
	Jobs          []string `short:"j" long:"job" description:"restrict to the given job(s) (repeatable)"`
	Force         bool     `long:"force" description:"run immediately, ignoring due_time (requires -j)"`
	LogLevel      string   `long:"log-level" description:"log level (trace,debug,info,warning,error,critical)"`
}

// Execute implements go-flags' Commander.
func (c *RunCommand) Execute(_ []string) error {
	if c.Force && len(c.Jobs) == 0 {
		return fmt.Errorf("--force requires at least one explicit -j/--job")
	}

	log, err := logging.New(c.LogLevel)
	if err != nil {
		return err
	}

	app := NewApp(log)
	today := time.Now()

	result, err := loadFromAllFiles(app, c.ConfigFiles, c.DBConfigFile, c.Jobs, today)
	if err != nil {
		log.Criticalf("%v", err)
		return err
	}

	if c.LogLevel == "" && app.Global.LogLevel != "" {
		_ = log.SetLevel(app.Global.LogLevel)
	}

	dispatcher := buildDispatcher(app, log)
	for _, failure := range result.Failures {
		log.Warningf("job %q: %v", failure.Job, failure)
		dispatcher.Dispatch(&model.Job{Name: failure.Job, AlarmIM: failure.AlarmIM, AlarmEmail: failure.AlarmEmail}, model.NewAlarmInfo(model.AlarmConfigError, failure.Error()))
	}

	if len(result.Jobs) == 0 {
		log.Noticef("no jobs to schedule")
		return nil
	}

	pools := core.NewPoolRegistry(app.Global.MaxConnections)
	defer pools.Close()

	executor := core.NewExecutor(pools, app.Registry, log)
	scheduler := core.NewScheduler(log, core.NewRealClock(), executor, dispatcher, app.Renderer, app.Global.PoolSize, app.Global.PollInterval)

	if c.Force {
		for _, job := range result.Jobs {
			job.DueTime = today
		}
	}
	scheduler.Seed(result.Jobs, today)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Noticef("shutdown signal received")
		once.Do(func() {
			cancel()
			scheduler.Stop()
		})
	}()
	defer signal.Stop(sigCh)

	if err := scheduler.Run(ctx); err != nil {
		if errors.Is(err, core.ErrEmptyScheduler) {
			log.Noticef("no jobs due, exiting")
			return nil
		}
		return err
	}
	log.Noticef("scheduler finished: %d jobs completed", scheduler.Completed())
	return nil
}

func loadFromAllFiles(app *App, configFiles []string, dbConfigFile string, only []string, today time.Time) (*LoadResult, error) {
	// LoadAll sees one -c pattern at a time, so section names are checked
	// across every job file first: a name defined in two files is a
	// *config.ConflictError whichever -c patterns matched them.
	var allFiles []string
	for _, cf := range configFiles {
		files, err := config.ResolveFiles(cf)
		if err != nil {
			return nil, err
		}
		allFiles = append(allFiles, files...)
	}
	if _, err := config.LoadSections(allFiles); err != nil {
		return nil, err
	}

	combined := &LoadResult{}
	for _, cf := range configFiles {
		r, err := app.LoadAll(cf, dbConfigFile, only, today)
		if err != nil {
			return nil, err
		}
		combined.Jobs = append(combined.Jobs, r.Jobs...)
		combined.Failures = append(combined.Failures, r.Failures...)
	}
	return combined, nil
}

func buildDispatcher(app *App, log logging.Logger) *middlewares.Dispatcher {
	im := middlewares.NewIMDispatcher(app.Global.IMConfig, log)
	email := middlewares.NewEmailDispatcher(app.Global.MailConfig, log)
	return middlewares.NewDispatcher(im, email)
}
