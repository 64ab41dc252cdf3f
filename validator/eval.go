package validator

import (
	"errors"
	"fmt"

	"github.com/hzhu212/data-monitor/internal/exprlang"
	"github.com/hzhu212/data-monitor/model"
)

// Result is the outcome of evaluating a job's validator expression: a
// truthiness verdict and, on failure, the alert info to report.
type Result struct {
	OK   bool
	Info model.AlarmInfo
}

// CheckSyntax parses expr and evaluates it once with result bound to nil,
// against the registry plus the builtin allow-list. Per the job
// validator's step 10, only parse errors and unresolved-name errors are
// reported back as fatal; any other runtime error during this throwaway
// evaluation is swallowed, since the expression may legitimately reject a
// nil result.
func CheckSyntax(expr string, registry *Registry) error {
	node, err := exprlang.Parse(expr)
	if err != nil {
		return fmt.Errorf("syntax error in validator expression: %w", err)
	}
	e := env{registry: registry, result: nil, hasResult: true}
	_, err = exprlang.Eval(node, e)
	if err != nil && errors.Is(err, exprlang.ErrUnresolvedName) {
		return err
	}
	return nil
}

// Evaluate runs expr with result bound to the probe's shaped output,
// returning the (ok, info) pair the scheduler needs to decide between
// success, alert-and-terminate, and alert-and-retry.
func Evaluate(expr string, result any, registry *Registry) (Result, error) {
	node, err := exprlang.Parse(expr)
	if err != nil {
		return Result{}, err
	}
	e := env{registry: registry, result: result, hasResult: true}
	v, err := exprlang.Eval(node, e)
	if err != nil {
		return Result{}, err
	}
	return coerceResult(v), nil
}

// coerceResult implements the validator's return-shape contract: either a
// bare truthy/falsy value, or a 2-tuple (ok, info) where info is wrapped
// into an AlarmInfo if it is not one already.
func coerceResult(v any) Result {
	if tup, ok := v.(exprlang.Tuple); ok && len(tup) == 2 {
		ok := exprlang.Truthy(tup[0])
		return Result{OK: ok, Info: toAlarmInfo(tup[1])}
	}
	ok := exprlang.Truthy(v)
	if ok {
		return Result{OK: true}
	}
	return Result{OK: false, Info: toAlarmInfo(v)}
}

func toAlarmInfo(v any) model.AlarmInfo {
	if info, ok := v.(model.AlarmInfo); ok {
		return info
	}
	if tup, ok := v.(exprlang.Tuple); ok && len(tup) == 2 {
		if kind, ok := tup[0].(string); ok {
			return model.NewAlarmInfo(model.AlarmKind(kind), tup[1])
		}
	}
	return model.NewAlarmInfo(model.AlarmDefault, v)
}
