package validator

import (
	"fmt"
	"time"

	"github.com/hzhu212/data-monitor/internal/exprlang"
	"github.com/hzhu212/data-monitor/model"
)

// registerAggregates seeds the registry with claim and diff, the two
// table-shaped validators the reference tool ships: claim asserts a
// predicate over every row of one result set (optionally checking for
// missing rows in a periodic series), diff compares two result sets
// joined on their leading key columns.
func registerAggregates(r *Registry) {
	r.Register("claim", exprlang.Func(biClaim))
	r.Register("diff", exprlang.Func(biDiffValidator))
	r.Register("naive_check", exprlang.Func(func(args []any, _ map[string]any) (any, error) {
		if len(args) != 1 {
			return nil, errWrongArgCount
		}
		f, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return f > 0, nil
	}))
}

func biClaim(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, errWrongArgCount
	}
	data := args[0]
	var pred exprlang.Func
	if len(args) > 1 {
		pred, _ = args[1].(exprlang.Func)
	} else if p, ok := kwargs["pred"].(exprlang.Func); ok {
		pred = p
	}
	serial := true
	if s, ok := kwargs["serial"]; ok {
		serial = exprlang.Truthy(s)
	}
	period, _ := kwargs["period"].(string)
	if period == "" {
		period = "day"
	}

	table, isTable := data.(model.Table)
	if !isTable {
		if pred == nil {
			return true, nil
		}
		ok, err := pred([]any{data}, nil)
		if err != nil {
			return nil, err
		}
		return exprlang.Truthy(ok), nil
	}

	if len(table.Rows) == 0 {
		return exprlang.Tuple{false, "result is empty"}, nil
	}

	present := map[string][]any{}
	for _, row := range table.Rows {
		key := fmt.Sprintf("%v", row[0])
		present[key] = row
	}

	var keys []string
	if serial {
		start, end, err := serialBounds(table, kwargs, period)
		if err != nil {
			return nil, err
		}
		keys = generateSeries(start, end, period)
	} else {
		for _, row := range table.Rows {
			keys = append(keys, fmt.Sprintf("%v", row[0]))
		}
	}

	var offending [][]any
	cols := append(append([]string{}, table.Columns...), "has_data")
	for _, key := range keys {
		row, ok := present[key]
		if !ok {
			missing := make([]any, len(table.Columns))
			missing[0] = key
			offending = append(offending, append(missing, "missing"))
			continue
		}
		failed := false
		if pred != nil {
			last := row[len(row)-1]
			v, err := pred([]any{last}, nil)
			if err != nil {
				return nil, err
			}
			failed = !exprlang.Truthy(v)
		}
		if failed {
			offending = append(offending, append(append([]any{}, row...), "yes"))
		}
	}

	if len(offending) == 0 {
		return true, nil
	}
	info := model.NewAlarmInfo(model.AlarmClaim, model.Table{Columns: cols, Rows: offending})
	return exprlang.Tuple{false, info}, nil
}

func serialBounds(table model.Table, kwargs map[string]any, period string) (time.Time, time.Time, error) {
	if s, ok := kwargs["start"].(string); ok {
		start, err := time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("argument %q can not be parsed as datetime", s)
		}
		end := start
		if e, ok := kwargs["end"].(string); ok {
			end, err = time.Parse("2006-01-02 15:04:05", e)
			if err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("argument %q can not be parsed as datetime", e)
			}
		}
		return start, end, nil
	}
	var min, max time.Time
	for i, row := range table.Rows {
		t, err := parseAny(row[0])
		if err != nil {
			continue
		}
		if i == 0 || t.Before(min) {
			min = t
		}
		if i == 0 || t.After(max) {
			max = t
		}
	}
	return min, max, nil
}

func parseAny(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", "2006-01-02 15"} {
			if tm, err := time.Parse(layout, t); err == nil {
				return tm, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %v as datetime", v)
}

func generateSeries(start, end time.Time, period string) []string {
	format := seriesFormat(period)
	var out []string
	for t := start; !t.After(end); t = advancePeriod(t, period) {
		out = append(out, t.Format(format))
	}
	return out
}

func seriesFormat(period string) string {
	switch period {
	case "year":
		return "2006"
	case "month":
		return "2006-01"
	case "hour":
		return "2006-01-02 15"
	default:
		return "2006-01-02"
	}
}

func advancePeriod(t time.Time, period string) time.Time {
	switch period {
	case "year":
		return t.AddDate(1, 0, 0)
	case "month":
		return t.AddDate(0, 1, 0)
	case "week":
		return t.AddDate(0, 0, 7)
	case "hour":
		return t.Add(time.Hour)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func biDiffValidator(args []any, kwargs map[string]any) (any, error) {
	if len(args) < 2 {
		return nil, errWrongArgCount
	}
	direction := int64(0)
	if d, ok := kwargs["direction"]; ok {
		direction, _ = toInt(d)
	}
	if direction != -1 && direction != 0 && direction != 1 {
		return nil, fmt.Errorf("invalid argument direction=%d, should be one of [-1, 0, 1]", direction)
	}
	threshold := 1e-6
	if th, ok := kwargs["threshold"]; ok {
		threshold, _ = toFloat(th)
	}

	t1, ok1 := args[0].(model.Table)
	t2, ok2 := args[1].(model.Table)
	if !ok1 {
		return exprlang.Tuple{false, "data1 (the first table) is empty"}, nil
	}
	if !ok2 {
		return exprlang.Tuple{false, "data2 (the second table) is empty"}, nil
	}
	if len(t1.Rows) == 0 {
		return exprlang.Tuple{false, "data1 (the first table) is empty"}, nil
	}
	if len(t2.Rows) == 0 {
		return exprlang.Tuple{false, "data2 (the second table) is empty"}, nil
	}

	index2 := map[string][]any{}
	for _, row := range t2.Rows {
		index2[joinKey(row)] = row
	}

	var offending [][]any
	cols := append(append([]string{}, t1.Columns...), "diff")
	seen := map[string]bool{}
	for _, row := range t1.Rows {
		k := joinKey(row)
		seen[k] = true
		other, found := index2[k]
		v1 := row[len(row)-1]
		if !found {
			offending = append(offending, append(append([]any{}, row...), "missing in data2"))
			continue
		}
		v2 := other[len(other)-1]
		f1, e1 := toFloat(v1)
		f2, e2 := toFloat(v2)
		if e1 != nil || e2 != nil {
			if fmt.Sprintf("%v", v1) != fmt.Sprintf("%v", v2) {
				offending = append(offending, append(append([]any{}, row...), fmt.Sprintf("%v vs %v", v1, v2)))
			}
			continue
		}
		d := f1 - f2
		switch direction {
		case -1:
			// left minus right, already computed
		case 1:
			d = -d
		default:
			if d < 0 {
				d = -d
			}
		}
		if d > threshold {
			offending = append(offending, append(append([]any{}, row...), d))
		}
	}
	for _, row := range t2.Rows {
		if !seen[joinKey(row)] {
			missing := make([]any, len(cols))
			copy(missing, row)
			missing[len(missing)-1] = "missing in data1"
			offending = append(offending, missing)
		}
	}

	if len(offending) == 0 {
		return true, nil
	}
	info := model.NewAlarmInfo(model.AlarmDiff, model.Table{Columns: cols, Rows: offending})
	return exprlang.Tuple{false, info}, nil
}

func joinKey(row []any) string {
	key := ""
	for _, v := range row[:len(row)-1] {
		key += fmt.Sprintf("%v\x1f", v)
	}
	return key
}
