package template

import (
	"fmt"
	"time"

	"github.com/hzhu212/data-monitor/internal/exprlang"
)

// Registry holds the named filter functions invocable via the pipe
// syntax "{value | name(args)}". Populated once at startup, read-only
// afterward.
type Registry struct {
	funcs map[string]exprlang.Func
}

// NewRegistry returns an empty filter Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]exprlang.Func{}}
}

// Register binds name to fn.
func (r *Registry) Register(name string, fn exprlang.Func) {
	r.funcs[name] = fn
}

func (r *Registry) lookup(name string) (exprlang.Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// NewDefaultRegistry returns a Registry seeded with the three filters the
// renderer requires at minimum (§4.2): an additive date offset, a
// date-field setter, and a strftime-style formatter. These are grounded
// directly on the reference tool's dt_add/dt_set/dt_format filters.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("dt_add", exprlang.Func(dtAdd))
	r.Register("dt_set", exprlang.Func(dtSet))
	r.Register("dt_format", exprlang.Func(dtFormat))
	return r
}

const defaultLayout = "2006-01-02 15:04:05"

var parseLayouts = []string{
	defaultLayout,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01-02 15",
	"15:04:05",
	"15:04",
}

func coerceTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range parseLayouts {
			if tm, err := time.Parse(layout, t); err == nil {
				return tm, nil
			}
		}
		return time.Time{}, fmt.Errorf("can not parse %q as a datetime", t)
	}
	return time.Time{}, fmt.Errorf("expected a datetime or string, got %T", v)
}

// dtAdd adds a relative offset to a datetime. Accepts both singular and
// plural unit names (year/years, month/months, ...), matching the
// reference filter's "works with or without a trailing s" patch.
func dtAdd(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("dt_add requires a datetime argument")
	}
	dt, err := coerceTime(args[0])
	if err != nil {
		return nil, err
	}

	years, months, days := 0, 0, 0
	var dur time.Duration
	for key, val := range kwargs {
		n, err := toIntArg(val)
		if err != nil {
			return nil, err
		}
		switch normalizeUnit(key) {
		case "year":
			years += n
		case "month":
			months += n
		case "week":
			days += n * 7
		case "day":
			days += n
		case "hour":
			dur += time.Duration(n) * time.Hour
		case "minute":
			dur += time.Duration(n) * time.Minute
		case "second":
			dur += time.Duration(n) * time.Second
		case "microsecond":
			dur += time.Duration(n) * time.Microsecond
		default:
			return nil, fmt.Errorf("dt_add: unknown unit %q", key)
		}
	}
	return dt.AddDate(years, months, days).Add(dur), nil
}

// dtSet replaces one or more fields of a datetime, including a weekday
// field (1=Monday..7=Sunday) which cannot be combined with year/month/day.
func dtSet(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("dt_set requires a datetime argument")
	}
	dt, err := coerceTime(args[0])
	if err != nil {
		return nil, err
	}

	if wd, ok := kwargs["weekday"]; ok {
		for _, conflict := range []string{"year", "month", "day"} {
			if _, exists := kwargs[conflict]; exists {
				return nil, fmt.Errorf("dt_set conflict, can not set %q and \"weekday\" at one time", conflict)
			}
		}
		n, err := toIntArg(wd)
		if err != nil {
			return nil, err
		}
		if n < 1 || n > 7 {
			return nil, fmt.Errorf("argument weekday should be an integer between 1 and 7")
		}
		current := int(dt.Weekday())
		if current == 0 {
			current = 7
		}
		dt = dt.AddDate(0, 0, n-current)
		delete(kwargs, "weekday")
	}

	year, month, day := dt.Date()
	hour, minute, second := dt.Clock()
	nsec := dt.Nanosecond()

	for key, val := range kwargs {
		n, err := toIntArg(val)
		if err != nil {
			return nil, err
		}
		switch normalizeUnit(key) {
		case "year":
			year = n
		case "month":
			month = n
		case "day":
			day = n
		case "hour":
			hour = n
		case "minute":
			minute = n
		case "second":
			second = n
		case "microsecond":
			nsec = n * 1000
		default:
			return nil, fmt.Errorf("dt_set: unknown field %q", key)
		}
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, nsec, dt.Location()), nil
}

// dtFormat renders a datetime using a strftime-style pattern, defaulting
// to "%Y-%m-%d %H:%M:%S".
func dtFormat(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("dt_format requires a datetime argument")
	}
	dt, err := coerceTime(args[0])
	if err != nil {
		return nil, err
	}
	pattern := "%Y-%m-%d %H:%M:%S"
	if len(args) > 1 {
		if s, ok := args[1].(string); ok {
			pattern = s
		}
	}
	if f, ok := kwargs["fmt"].(string); ok {
		pattern = f
	}
	return strftime(dt, pattern), nil
}

func normalizeUnit(key string) string {
	if len(key) > 1 && key[len(key)-1] == 's' {
		return key[:len(key)-1]
	}
	return key
}

func toIntArg(v any) (int, error) {
	switch t := v.(type) {
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	}
	return 0, fmt.Errorf("expected an integer argument, got %T", v)
}

// strftime implements the subset of the strftime directive set the
// renderer's date filters need.
func strftime(t time.Time, pattern string) string {
	out := make([]byte, 0, len(pattern)+16)
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '%' || i+1 >= len(runes) {
			out = append(out, string(runes[i])...)
			continue
		}
		i++
		switch runes[i] {
		case 'Y':
			out = append(out, t.Format("2006")...)
		case 'y':
			out = append(out, t.Format("06")...)
		case 'm':
			out = append(out, t.Format("01")...)
		case 'd':
			out = append(out, t.Format("02")...)
		case 'H':
			out = append(out, t.Format("15")...)
		case 'M':
			out = append(out, t.Format("04")...)
		case 'S':
			out = append(out, t.Format("05")...)
		case 'A':
			out = append(out, t.Format("Monday")...)
		case 'a':
			out = append(out, t.Format("Mon")...)
		case 'B':
			out = append(out, t.Format("January")...)
		case 'b':
			out = append(out, t.Format("Jan")...)
		case 'j':
			out = append(out, fmt.Sprintf("%03d", t.YearDay())...)
		case '%':
			out = append(out, '%')
		default:
			out = append(out, '%', byte(runes[i]))
		}
	}
	return string(out)
}
