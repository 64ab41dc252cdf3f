package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	fieldvalidator "github.com/go-playground/validator/v10"

	"github.com/hzhu212/data-monitor/model"
	"github.com/hzhu212/data-monitor/template"
	"github.com/hzhu212/data-monitor/validator"
)

// rawJobConfig carries the struct-tag validation for the options a job
// section must supply before Pass-1 rendering runs: a non-empty value for
// every tagged option and, for period, enum membership. alarm_im and
// alarm_email may be empty lists, so ValidateJob checks only that they
// are present in the raw section.
type rawJobConfig struct {
	Desc        string `mapstructure:"desc" validate:"required"`
	Period      string `mapstructure:"period" validate:"required,oneof=year month week day hour"`
	IsActive    string `mapstructure:"is_active" validate:"required"`
	AlarmIM     string `mapstructure:"alarm_im"`
	AlarmEmail  string `mapstructure:"alarm_email"`
	DueTime     string `mapstructure:"due_time" validate:"required"`
	Datasources string `mapstructure:"datasources" validate:"required"`
	SQL         string `mapstructure:"sql" validate:"required"`
	Validator   string `mapstructure:"validator" validate:"required"`
}

var allowedPeriods = map[string]model.Period{
	"year":  model.PeriodYear,
	"month": model.PeriodMonth,
	"week":  model.PeriodWeek,
	"day":   model.PeriodDay,
	"hour":  model.PeriodHour,
}

const dueTimeLayout = "2006-01-02 15:04:05"

// ValidateJob runs the eleven-step job validator (§4.3) against one raw job
// section, producing a fully-normalized Job or a *ConfigError. name is the
// job's section name; datasources is the already-parsed set of known
// datasource configs; today anchors Pass-1's BASETIME.
func ValidateJob(name string, raw map[string]string, datasources map[string]*model.DatasourceConfig, renderer *template.Renderer, registry *validator.Registry, today time.Time) (*model.Job, error) {
	// Step 1: alarm_im/alarm_email must be ready before any other error so a
	// config_error alert can still reach their recipients.
	alarmIM := splitNonEmpty(raw["alarm_im"], ",")
	alarmEmail := splitNonEmpty(raw["alarm_email"], ",")

	fail := func(reason string, err error) (*model.Job, error) {
		return nil, &ConfigError{Job: name, Reason: reason, Err: err, AlarmIM: alarmIM, AlarmEmail: alarmEmail}
	}

	// Step 2+3: required options and enumerations, enforced via struct tags.
	var rc rawJobConfig
	if err := mapstructure.WeakDecode(toAnyMap(raw), &rc); err != nil {
		return fail("decoding job options", err)
	}
	if err := structValidator.Struct(rc); err != nil {
		var verrs fieldvalidator.ValidationErrors
		if errors.As(err, &verrs) {
			fe := verrs[0]
			switch fe.Tag() {
			case "required":
				return fail(fmt.Sprintf("option %q is required", fe.Field()), nil)
			case "oneof":
				return fail(fmt.Sprintf("invalid %s %q", fe.Field(), fe.Value()), nil)
			}
		}
		return fail("invalid job options", err)
	}
	for _, key := range []string{"alarm_im", "alarm_email"} {
		if _, ok := raw[key]; !ok {
			return fail(fmt.Sprintf("option %q is required", key), nil)
		}
	}
	period := allowedPeriods[rc.Period]
	isActiveRaw := strings.ToLower(strings.TrimSpace(rc.IsActive))
	if isActiveRaw != "true" && isActiveRaw != "false" {
		return fail(fmt.Sprintf("invalid is_active %q", raw["is_active"]), nil)
	}

	// Step 4: Pass-1 template rendering.
	rendered, err := renderer.RenderPass1(raw, today)
	if err != nil {
		return fail("pass-1 template rendering failed", err)
	}

	// Step 5: coercion.
	isActive := isActiveRaw == "true"
	dueTime, err := time.ParseInLocation(dueTimeLayout, strings.TrimSpace(rendered["due_time"]), today.Location())
	if err != nil {
		return fail("invalid due_time", err)
	}
	desc := rendered["desc"]

	// Step 6: retry_times / retry_interval.
	retryTimes := 0
	if v, ok := rendered["retry_times"]; ok && strings.TrimSpace(v) != "" {
		retryTimes, err = strconv.Atoi(strings.TrimSpace(v))
		if err != nil || retryTimes < 0 {
			return fail(fmt.Sprintf("invalid retry_times %q", v), nil)
		}
	}
	retryInterval := time.Duration(0)
	if v, ok := rendered["retry_interval"]; ok && strings.TrimSpace(v) != "" {
		retryInterval, err = parseHMS(strings.TrimSpace(v))
		if err != nil {
			return fail(fmt.Sprintf("invalid retry_interval %q", v), err)
		}
	}

	// Step 7: list splitting and length invariants.
	datasourceNames := splitNonEmpty(rendered["datasources"], ",")
	var dbOverrides []string
	if v, ok := rendered["database"]; ok && strings.TrimSpace(v) != "" {
		dbOverrides = splitAll(v, ",")
	} else {
		dbOverrides = make([]string, len(datasourceNames))
	}
	sqlEntries := splitNonEmpty(rendered["sql"], "::")

	if len(sqlEntries) != len(datasourceNames) {
		return fail(fmt.Sprintf("sql has %d statements but datasources has %d entries", len(sqlEntries), len(datasourceNames)), nil)
	}
	if len(dbOverrides) != 0 && len(dbOverrides) != len(datasourceNames) {
		return fail(fmt.Sprintf("database has %d entries but datasources has %d entries", len(dbOverrides), len(datasourceNames)), nil)
	}
	if len(dbOverrides) == 0 {
		dbOverrides = make([]string, len(datasourceNames))
	}

	// Step 8: datasource existence.
	for _, dsName := range datasourceNames {
		if _, ok := datasources[dsName]; !ok {
			return fail(fmt.Sprintf("unknown datasource %q", dsName), nil)
		}
	}

	// Step 9: SQL file-path substitution with %(key)s interpolation.
	for i, sqlText := range sqlEntries {
		if looksLikeSQLPath(sqlText) {
			content, err := os.ReadFile(sqlText)
			if err != nil {
				return fail(fmt.Sprintf("reading sql file %q", sqlText), err)
			}
			sqlEntries[i] = interpolatePercentParen(string(content), rendered)
		}
	}

	// Step 10: validator syntax check, fatal only on parse/unresolved-name
	// errors.
	if err := validator.CheckSyntax(rendered["validator"], registry); err != nil {
		return fail("validator syntax error", err)
	}

	// Step 11: datasource name -> full config substitution with per-job
	// database override.
	resolved := make([]*model.DatasourceConfig, len(datasourceNames))
	for i, dsName := range datasourceNames {
		ds := *datasources[dsName]
		if dbOverrides[i] != "" {
			ds.Database = dbOverrides[i]
		}
		resolved[i] = &ds
	}

	return &model.Job{
		Name:              name,
		Desc:              desc,
		Period:            period,
		IsActive:          isActive,
		AlarmIM:           alarmIM,
		AlarmEmail:        alarmEmail,
		DueTime:           dueTime,
		Datasources:       resolved,
		DatabaseOverrides: dbOverrides,
		SQLStatements:     sqlEntries,
		Validator:         rendered["validator"],
		RetryTimes:        retryTimes,
		RetryInterval:     retryInterval,
	}, nil
}

// FinalizeJob runs Pass-2 rendering of job's dependent options
// (sql_statements, validator) with DUETIME bound to job.DueTime. Called
// once the job's final due time is known — after hourly expansion, if
// any.
func FinalizeJob(job *model.Job, renderer *template.Renderer) (*model.Job, error) {
	final := job.Clone()
	for i, sqlText := range final.SQLStatements {
		out, err := renderer.RenderPass2(sqlText, final.DueTime)
		if err != nil {
			return nil, &ConfigError{Job: job.Name, Reason: fmt.Sprintf("pass-2 rendering sql[%d]", i), Err: err}
		}
		final.SQLStatements[i] = out
	}
	out, err := renderer.RenderPass2(final.Validator, final.DueTime)
	if err != nil {
		return nil, &ConfigError{Job: job.Name, Reason: "pass-2 rendering validator", Err: err}
	}
	final.Validator = out
	return final, nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitAll(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func looksLikeSQLPath(s string) bool {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "~/") || strings.HasPrefix(s, ".") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.HasSuffix(lower, ".sql") || strings.HasSuffix(lower, ".hql")
}

// interpolatePercentParen implements classical %(key)s substitution against
// a job's own rendered key/value map.
func interpolatePercentParen(text string, vars map[string]string) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		if text[i] == '%' && i+1 < len(text) && text[i+1] == '(' {
			end := strings.Index(text[i+2:], ")s")
			if end >= 0 {
				key := text[i+2 : i+2+end]
				if v, ok := vars[key]; ok {
					out.WriteString(v)
				}
				i = i + 2 + end + 2
				continue
			}
		}
		out.WriteByte(text[i])
		i++
	}
	return out.String()
}

func parseHMS(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("expected HH:MM or HH:MM:SS, got %q", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	seconds := 0
	if len(parts) == 3 {
		seconds, err = strconv.Atoi(parts[2])
		if err != nil {
			return 0, err
		}
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second, nil
}
