package exprlang

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Env resolves bare names during evaluation. Both the validator registry
// and the template renderer supply their own implementation.
type Env interface {
	Get(name string) (any, bool)
}

// MapEnv is the simplest Env: a flat name-to-value map.
type MapEnv map[string]any

// Get implements Env.
func (m MapEnv) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Func is the signature every callable value in the expression language
// must satisfy: positional args, keyword args, a result or an error.
type Func func(args []any, kwargs map[string]any) (any, error)

// ErrUnresolvedName is returned (wrapped with the offending name) when an
// Ident can't be resolved against the Env. The validator's syntax-check
// pass treats this class of error as fatal, matching Python's NameError.
var ErrUnresolvedName = errors.New("unresolved name")

// Eval evaluates n against env.
func Eval(n Node, env Env) (any, error) {
	switch node := n.(type) {
	case Ident:
		v, ok := env.Get(node.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedName, node.Name)
		}
		return v, nil
	case NumberLit:
		return parseNumber(node.Text)
	case StringLit:
		return node.Value, nil
	case BoolLit:
		return node.Value, nil
	case NoneLit:
		return nil, nil
	case EllipsisLit:
		return ellipsisValue{}, nil
	case TupleLit:
		vals := make([]any, len(node.Elems))
		for i, e := range node.Elems {
			v, err := Eval(e, env)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return Tuple(vals), nil
	case ListLit:
		vals := make([]any, len(node.Elems))
		for i, e := range node.Elems {
			v, err := Eval(e, env)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return vals, nil
	case UnaryOp:
		return evalUnary(node, env)
	case BinOp:
		return evalBinOp(node, env)
	case CompareChain:
		return evalCompareChain(node, env)
	case Call:
		return evalCall(node, env)
	case Subscript:
		return evalSubscript(node, env)
	case SliceExpr:
		return evalSlice(node, env)
	case Attribute:
		return nil, fmt.Errorf("attribute access %q is not supported", node.Name)
	}
	return nil, fmt.Errorf("unhandled node type %T", n)
}

// Tuple marks a []any as a fixed-arity tuple rather than a list, which
// matters for the validator's "2-tuple return" convention.
type Tuple []any

type ellipsisValue struct{}

func (ellipsisValue) String() string { return "Ellipsis" }

func parseNumber(text string) (any, error) {
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", text, err)
		}
		return f, nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil {
			return nil, fmt.Errorf("invalid number %q: %w", text, err)
		}
		return f, nil
	}
	return i, nil
}

func evalUnary(node UnaryOp, env Env) (any, error) {
	x, err := Eval(node.X, env)
	if err != nil {
		return nil, err
	}
	switch node.Op {
	case "not":
		return !Truthy(x), nil
	case "-":
		switch v := x.(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		}
		return nil, fmt.Errorf("unary '-' not supported on %T", x)
	case "+":
		switch x.(type) {
		case int64, float64:
			return x, nil
		}
		return nil, fmt.Errorf("unary '+' not supported on %T", x)
	}
	return nil, fmt.Errorf("unknown unary operator %q", node.Op)
}

// Truthy mirrors Python's bool() coercion for the value kinds this
// language supports.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case Tuple:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func bothInt(a, b any) (int64, int64, bool) {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	return ai, bi, aok && bok
}

func evalBinOp(node BinOp, env Env) (any, error) {
	if node.Op == "and" {
		x, err := Eval(node.X, env)
		if err != nil {
			return nil, err
		}
		if !Truthy(x) {
			return x, nil
		}
		return Eval(node.Y, env)
	}
	if node.Op == "or" {
		x, err := Eval(node.X, env)
		if err != nil {
			return nil, err
		}
		if Truthy(x) {
			return x, nil
		}
		return Eval(node.Y, env)
	}

	x, err := Eval(node.X, env)
	if err != nil {
		return nil, err
	}
	y, err := Eval(node.Y, env)
	if err != nil {
		return nil, err
	}
	return applyArith(node.Op, x, y)
}

func applyArith(op string, x, y any) (any, error) {
	if op == "+" {
		if xs, ok := x.(string); ok {
			if ys, ok := y.(string); ok {
				return xs + ys, nil
			}
		}
		if xl, ok := x.([]any); ok {
			if yl, ok := y.([]any); ok {
				return append(append([]any{}, xl...), yl...), nil
			}
		}
	}

	if xi, yi, ok := bothInt(x, y); ok {
		switch op {
		case "+":
			return xi + yi, nil
		case "-":
			return xi - yi, nil
		case "*":
			return xi * yi, nil
		case "//":
			if yi == 0 {
				return nil, errors.New("integer division by zero")
			}
			return floorDivInt(xi, yi), nil
		case "%":
			if yi == 0 {
				return nil, errors.New("integer modulo by zero")
			}
			return floorModInt(xi, yi), nil
		case "/":
			if yi == 0 {
				return nil, errors.New("division by zero")
			}
			return float64(xi) / float64(yi), nil
		case "**":
			return intPow(xi, yi), nil
		}
	}

	xf, xok := asFloat(x)
	yf, yok := asFloat(y)
	if xok && yok {
		switch op {
		case "+":
			return xf + yf, nil
		case "-":
			return xf - yf, nil
		case "*":
			return xf * yf, nil
		case "/":
			if yf == 0 {
				return nil, errors.New("division by zero")
			}
			return xf / yf, nil
		case "//":
			if yf == 0 {
				return nil, errors.New("division by zero")
			}
			return floorDivFloat(xf, yf), nil
		case "%":
			if yf == 0 {
				return nil, errors.New("modulo by zero")
			}
			return floorModFloat(xf, yf), nil
		case "**":
			return floatPow(xf, yf), nil
		}
	}

	return nil, fmt.Errorf("unsupported operand types for %q: %T and %T", op, x, y)
}

func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorModInt(a, b int64) int64 {
	m := a % b
	if m != 0 && ((a < 0) != (b < 0)) {
		m += b
	}
	return m
}

func intPow(base, exp int64) any {
	if exp < 0 {
		return floatPow(float64(base), float64(exp))
	}
	var result int64 = 1
	for i := int64(0); i < exp; i++ {
		result *= base
	}
	return result
}

func compareValues(x, y any) (int, bool) {
	if xf, ok := asFloat(x); ok {
		if yf, ok := asFloat(y); ok {
			switch {
			case xf < yf:
				return -1, true
			case xf > yf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if xs, ok := x.(string); ok {
		if ys, ok := y.(string); ok {
			return strings.Compare(xs, ys), true
		}
	}
	return 0, false
}

func evalCompareChain(node CompareChain, env Env) (any, error) {
	left, err := Eval(node.First, env)
	if err != nil {
		return nil, err
	}
	for i, op := range node.Ops {
		right, err := Eval(node.Rest[i], env)
		if err != nil {
			return nil, err
		}
		ok, err := compareOp(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func compareOp(op string, x, y any) (bool, error) {
	if op == "in" {
		return membership(x, y)
	}
	if op == "==" {
		return valuesEqual(x, y), nil
	}
	if op == "!=" {
		return !valuesEqual(x, y), nil
	}
	cmp, ok := compareValues(x, y)
	if !ok {
		return false, fmt.Errorf("cannot compare %T with %T", x, y)
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("unknown comparison operator %q", op)
}

func valuesEqual(x, y any) bool {
	if xf, ok := asFloat(x); ok {
		if yf, ok := asFloat(y); ok {
			return xf == yf
		}
	}
	if xs, ok := x.(string); ok {
		if ys, ok := y.(string); ok {
			return xs == ys
		}
	}
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	return false
}

func membership(needle, haystack any) (bool, error) {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires string as left operand, not %T", needle)
		}
		return strings.Contains(h, s), nil
	case []any:
		for _, v := range h {
			if valuesEqual(v, needle) {
				return true, nil
			}
		}
		return false, nil
	case Tuple:
		for _, v := range h {
			if valuesEqual(v, needle) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		s, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("dict membership requires string keys")
		}
		_, found := h[s]
		return found, nil
	}
	return false, fmt.Errorf("argument of type %T is not iterable", haystack)
}

func evalCall(node Call, env Env) (any, error) {
	fnVal, err := Eval(node.Fn, env)
	if err != nil {
		return nil, err
	}
	fn, ok := fnVal.(Func)
	if !ok {
		return nil, fmt.Errorf("value is not callable: %T", fnVal)
	}
	args := make([]any, len(node.Args))
	for i, a := range node.Args {
		v, err := Eval(a, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	kwargs := make(map[string]any, len(node.Kwargs))
	for name, n := range node.Kwargs {
		v, err := Eval(n, env)
		if err != nil {
			return nil, err
		}
		kwargs[name] = v
	}
	return fn(args, kwargs)
}

func evalSubscript(node Subscript, env Env) (any, error) {
	x, err := Eval(node.X, env)
	if err != nil {
		return nil, err
	}
	idx, err := Eval(node.Index, env)
	if err != nil {
		return nil, err
	}
	i, ok := idx.(int64)
	if !ok {
		return nil, fmt.Errorf("subscript index must be an integer, got %T", idx)
	}
	switch v := x.(type) {
	case []any:
		return indexSlice(v, i)
	case Tuple:
		return indexSlice([]any(v), i)
	case string:
		runes := []rune(v)
		pos := normalizeIndex(i, len(runes))
		if pos < 0 || pos >= len(runes) {
			return nil, fmt.Errorf("string index out of range")
		}
		return string(runes[pos]), nil
	}
	return nil, fmt.Errorf("value of type %T is not subscriptable", x)
}

func indexSlice(v []any, i int64) (any, error) {
	pos := normalizeIndex(i, len(v))
	if pos < 0 || pos >= len(v) {
		return nil, fmt.Errorf("index out of range")
	}
	return v[pos], nil
}

func normalizeIndex(i int64, length int) int {
	if i < 0 {
		return length + int(i)
	}
	return int(i)
}

func evalSlice(node SliceExpr, env Env) (any, error) {
	x, err := Eval(node.X, env)
	if err != nil {
		return nil, err
	}
	low, high, err := sliceBounds(node, env, sliceLen(x))
	if err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case []any:
		return append([]any{}, v[low:high]...), nil
	case Tuple:
		return Tuple(append([]any{}, v[low:high]...)), nil
	case string:
		runes := []rune(v)
		return string(runes[low:high]), nil
	}
	return nil, fmt.Errorf("value of type %T is not sliceable", x)
}

func sliceLen(x any) int {
	switch v := x.(type) {
	case []any:
		return len(v)
	case Tuple:
		return len(v)
	case string:
		return len([]rune(v))
	}
	return 0
}

func sliceBounds(node SliceExpr, env Env, length int) (int, int, error) {
	low, high := 0, length
	if node.Low != nil {
		v, err := Eval(node.Low, env)
		if err != nil {
			return 0, 0, err
		}
		i, ok := v.(int64)
		if !ok {
			return 0, 0, fmt.Errorf("slice indices must be integers")
		}
		low = clampIndex(normalizeIndex(i, length), length)
	}
	if node.High != nil {
		v, err := Eval(node.High, env)
		if err != nil {
			return 0, 0, err
		}
		i, ok := v.(int64)
		if !ok {
			return 0, 0, fmt.Errorf("slice indices must be integers")
		}
		high = clampIndex(normalizeIndex(i, length), length)
	}
	if high < low {
		high = low
	}
	return low, high, nil
}

func clampIndex(i, length int) int {
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}

func floorDivFloat(a, b float64) float64 {
	q := a / b
	return floatFloor(q)
}

func floorModFloat(a, b float64) float64 {
	return a - floorDivFloat(a, b)*b
}

func floatFloor(f float64) float64 {
	i := float64(int64(f))
	if f < 0 && i != f {
		i--
	}
	return i
}

func floatPow(base, exp float64) float64 {
	return math.Pow(base, exp)
}
