package core

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/armon/circbuf"

	"github.com/hzhu212/data-monitor/internal/exprlang"
	"github.com/hzhu212/data-monitor/logging"
	"github.com/hzhu212/data-monitor/model"
	"github.com/hzhu212/data-monitor/validator"
)

// stackBufferSize bounds how much of a validator panic's stack trace is
// kept for the alert message, the same role circbuf plays for ofelia's
// log buffering: a runaway trace must never grow an AlarmInfo unboundedly.
const stackBufferSize = 16 * 1024

var leadingWordRe = regexp.MustCompile(`^\s*([A-Za-z]+)`)

// Executor runs a job's probe statements against its datasources and
// evaluates its validator expression against the shaped results.
type Executor struct {
	pools    *PoolRegistry
	registry *validator.Registry
	log      logging.Logger
}

// NewExecutor returns an Executor reading connections from pools and
// evaluating validators against registry.
func NewExecutor(pools *PoolRegistry, registry *validator.Registry, log logging.Logger) *Executor {
	return &Executor{pools: pools, registry: registry, log: log}
}

// Run executes every (datasource, sql) pair of job in order, shapes the
// results, and evaluates job's validator expression against them.
func (e *Executor) Run(ctx context.Context, job *model.Job) (validator.Result, error) {
	results := make([]any, len(job.Datasources))
	for i, ds := range job.Datasources {
		res, err := e.runOne(ctx, job.Name, ds, job.SQLStatements[i], i)
		if err != nil {
			return validator.Result{}, err
		}
		results[i] = res
	}

	var input any
	if len(results) == 1 {
		input = results[0]
	} else {
		input = resultsToTuple(results)
	}

	result, err := e.evaluate(job.Name, job.Validator, input)
	if err != nil {
		return validator.Result{}, err
	}
	return result, nil
}

func resultsToTuple(results []any) any {
	tup := make(exprlang.Tuple, len(results))
	copy(tup, results)
	return tup
}

func (e *Executor) runOne(ctx context.Context, jobName string, ds *model.DatasourceConfig, sqlText string, idx int) (any, error) {
	db, err := e.pools.Get(ds)
	if err != nil {
		return nil, &ProbeError{Job: jobName, Datasource: ds.Name, Statement: idx, Err: err}
	}

	e.log.Debugf("job %q: acquiring connection on datasource %q for statement #%d", jobName, ds.Name, idx)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, &ProbeError{Job: jobName, Datasource: ds.Name, Statement: idx, Err: err}
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &ProbeError{Job: jobName, Datasource: ds.Name, Statement: idx, Err: err}
	}
	defer rows.Close()

	shaped, err := shapeRows(rows)
	if err != nil {
		return nil, &ProbeError{Job: jobName, Datasource: ds.Name, Statement: idx, Err: err}
	}

	if !isQueryStatement(sqlText) {
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return nil, &ProbeError{Job: jobName, Datasource: ds.Name, Statement: idx, Err: err}
		}
	}

	return shaped, nil
}

func isQueryStatement(sqlText string) bool {
	m := leadingWordRe.FindStringSubmatch(sqlText)
	if m == nil {
		return false
	}
	word := strings.ToUpper(m[1])
	return word == "SELECT" || word == "SHOW"
}

// shapeRows implements the Probe Executor's row-shaping rule: a single
// row of a single column unwraps to a bare scalar; anything else becomes
// a model.Table with invalid column names rewritten to "col{index}".
func shapeRows(rows *sql.Rows) (any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = model.SanitizeColumnName(c, i)
	}

	var data [][]any
	for rows.Next() {
		scanDest := make([]any, len(cols))
		scanPtrs := make([]any, len(cols))
		for i := range scanDest {
			scanPtrs[i] = &scanDest[i]
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return nil, err
		}
		data = append(data, scanDest)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(data) == 1 && len(cols) == 1 {
		return normalizeScalar(data[0][0]), nil
	}

	for _, row := range data {
		for i, v := range row {
			row[i] = normalizeScalar(v)
		}
	}
	return model.Table{Columns: names, Rows: data}, nil
}

func normalizeScalar(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int32:
		return int64(t)
	case int:
		return int64(t)
	}
	return v
}

// evaluate runs the validator expression, converting a parse/runtime
// failure or a panic into a typed ValidatorError the caller treats as a
// failed run eligible for retry.
func (e *Executor) evaluate(jobName, expr string, input any) (result validator.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := captureStack()
			err = &ValidatorError{Job: jobName, Stack: stack, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	result, evalErr := validator.Evaluate(expr, input, e.registry)
	if evalErr != nil {
		return validator.Result{}, &ValidatorError{Job: jobName, Stack: evalErr.Error(), Err: evalErr}
	}
	return result, nil
}

func captureStack() string {
	buf, err := circbuf.NewBuffer(stackBufferSize)
	if err != nil {
		return string(debug.Stack())
	}
	buf.Write(debug.Stack())
	return buf.String()
}
