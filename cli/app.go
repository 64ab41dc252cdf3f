// Package cli wires the config, template, validator, core, and middlewares
// packages into the two user-facing commands: run and validate. Grounded
// on the teacher's own cli.Config (BuildFromFile, InitializeApp) but
// restyled around loading job/datasource files instead of Docker labels.
package cli

import (
	"time"

	defaults "github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"

	"github.com/hzhu212/data-monitor/config"
	"github.com/hzhu212/data-monitor/logging"
	"github.com/hzhu212/data-monitor/middlewares"
	"github.com/hzhu212/data-monitor/model"
	"github.com/hzhu212/data-monitor/template"
	"github.com/hzhu212/data-monitor/validator"
)

// GlobalConfig holds the [global] section of the job config file: alert
// transport settings plus scheduler tuning, decoded the same way the
// teacher squashes its middleware configs into Config.Global.
type GlobalConfig struct {
	middlewares.IMConfig   `mapstructure:",squash"`
	middlewares.MailConfig `mapstructure:",squash"`
	LogLevel               string        `mapstructure:"log-level" default:"notice"`
	PoolSize               int           `mapstructure:"pool_size" default:"16"`
	PollInterval           time.Duration `mapstructure:"poll_interval" default:"5s"`
	MaxConnections         int           `mapstructure:"max_connections" default:"10"`
}

// App bundles the process-wide, read-only registries populated once at
// startup (§9's "populate once, read-only after" rule) plus the loaded
// global config.
type App struct {
	Log      logging.Logger
	Registry *validator.Registry
	Filters  *template.Registry
	Renderer *template.Renderer
	Global   GlobalConfig
}

// NewApp builds an App with the default validator and filter registries.
func NewApp(log logging.Logger) *App {
	registry := validator.NewDefaultRegistry()
	filters := template.NewDefaultRegistry()
	return &App{
		Log:      log,
		Registry: registry,
		Filters:  filters,
		Renderer: template.NewRenderer(filters),
	}
}

// LoadResult is the outcome of loading and validating a batch of jobs:
// successfully-validated jobs ready to schedule, and config errors for
// jobs that failed validation (each still carrying its alarm recipients
// so a config_error alert can be dispatched).
type LoadResult struct {
	Jobs     []*model.Job
	Failures []*config.ConfigError
}

// LoadAll reads the datasource file, the job file(s), applies template
// cascading, and validates every selected job. only restricts validation
// to the named jobs; when empty, every non-template section is
// considered. A returned error is fatal (duplicate section names, a
// missing/unreadable file); per-job validation failures are reported in
// LoadResult.Failures instead.
func (a *App) LoadAll(jobConfigFile, dbConfigFile string, only []string, today time.Time) (*LoadResult, error) {
	dbFiles, err := config.ResolveFiles(dbConfigFile)
	if err != nil {
		return nil, err
	}
	dbSections, err := config.LoadSections(dbFiles)
	if err != nil {
		return nil, err
	}
	datasources, err := config.ParseDatasources(config.CascadeTemplates(dbSections))
	if err != nil {
		return nil, err
	}

	jobFiles, err := config.ResolveFiles(jobConfigFile)
	if err != nil {
		return nil, err
	}
	jobSections, err := config.LoadSections(jobFiles)
	if err != nil {
		return nil, err
	}

	if sec, ok := jobSections["global"]; ok {
		if err := mapstructure.WeakDecode(toAnyMap(sec), &a.Global); err != nil {
			return nil, err
		}
	}
	_ = defaults.Set(&a.Global)

	cascaded := config.CascadeTemplates(jobSections)
	delete(cascaded, "global")

	names := only
	if len(names) == 0 {
		names = config.NonTemplateSections(jobSections)
		names = removeName(names, "global")
	}

	result := &LoadResult{}
	for _, name := range names {
		raw, ok := cascaded[name]
		if !ok {
			result.Failures = append(result.Failures, &config.ConfigError{Job: name, Reason: "job section not found"})
			continue
		}
		job, err := config.ValidateJob(name, raw, datasources, a.Renderer, a.Registry, today)
		if err != nil {
			var ce *config.ConfigError
			if asConfigError(err, &ce) {
				result.Failures = append(result.Failures, ce)
				continue
			}
			return nil, err
		}
		result.Jobs = append(result.Jobs, job)
	}
	return result, nil
}

func asConfigError(err error, target **config.ConfigError) bool {
	ce, ok := err.(*config.ConfigError)
	if ok {
		*target = ce
	}
	return ok
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func toAnyMap(kv map[string]string) map[string]any {
	out := make(map[string]any, len(kv))
	for k, v := range kv {
		out[k] = v
	}
	return out
}
