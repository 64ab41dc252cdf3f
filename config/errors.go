package config

import "fmt"

// ConfigError reports any violation of the job validator's rules (§4.3):
// a missing option, a bad enumeration value, an unresolvable datasource, a
// validator expression with an unresolved name, and so on. The offending
// job is skipped and a config_error alert is raised; the process keeps
// running other jobs.
type ConfigError struct {
	Job        string
	Reason     string
	Err        error
	AlarmIM    []string
	AlarmEmail []string
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job %q: %s: %v", e.Job, e.Reason, e.Err)
	}
	return fmt.Sprintf("job %q: %s", e.Job, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConflictError reports a duplicate job or datasource section name across
// two distinct config files. Fatal: the process exits before scheduling.
type ConflictError struct {
	Name  string
	FileA string
	FileB string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("section %q is defined in both %s and %s", e.Name, e.FileA, e.FileB)
}
