package validator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/hzhu212/data-monitor/internal/exprlang"
)

// builtins binds the names of spec §4.6's fixed allow-list to Go
// implementations. Every name in the list has an entry here, even where
// the Python original's semantics (long, basestring, apply, cmp,
// memoryview, frozenset) have no exact Go equivalent — those are bound to
// the closest faithful behavior so that referencing them never produces
// an "unresolved name" syntax error, matching the allow-list's intent of
// never silently adding or removing names.
var builtins map[string]any

func init() {
	builtins = map[string]any{
		"None":      nil,
		"False":     false,
		"True":      true,
		"Ellipsis":  exprStruct{},
		"abs":       exprlang.Func(biAbs),
		"all":       exprlang.Func(biAll),
		"apply":     exprlang.Func(biApply),
		"basestring": exprlang.Func(biStr),
		"bin":       exprlang.Func(biBin),
		"bool":      exprlang.Func(biBool),
		"bytearray": exprlang.Func(biBytes),
		"bytes":     exprlang.Func(biBytes),
		"chr":       exprlang.Func(biChr),
		"cmp":       exprlang.Func(biCmp),
		"complex":   exprlang.Func(biComplexUnsupported),
		"dict":      exprlang.Func(biDict),
		"divmod":    exprlang.Func(biDivmod),
		"enumerate": exprlang.Func(biEnumerate),
		"filter":    exprlang.Func(biFilter),
		"float":     exprlang.Func(biFloat),
		"format":    exprlang.Func(biFormat),
		"frozenset": exprlang.Func(biSet),
		"hash":      exprlang.Func(biHash),
		"hex":       exprlang.Func(biHex),
		"int":       exprlang.Func(biInt),
		"isinstance": exprlang.Func(biIsinstance),
		"issubclass": exprlang.Func(biIssubclass),
		"len":       exprlang.Func(biLen),
		"list":      exprlang.Func(biList),
		"long":      exprlang.Func(biInt),
		"map":       exprlang.Func(biMap),
		"max":       exprlang.Func(biMax),
		"memoryview": exprlang.Func(biBytes),
		"min":       exprlang.Func(biMin),
		"next":      exprlang.Func(biNext),
		"oct":       exprlang.Func(biOct),
		"ord":       exprlang.Func(biOrd),
		"pow":       exprlang.Func(biPow),
		"range":     exprlang.Func(biRange),
		"reduce":    exprlang.Func(biReduce),
		"repr":      exprlang.Func(biRepr),
		"reversed":  exprlang.Func(biReversed),
		"round":     exprlang.Func(biRound),
		"set":       exprlang.Func(biSet),
		"slice":     exprlang.Func(biSlice),
		"sorted":    exprlang.Func(biSorted),
		"str":       exprlang.Func(biStr),
		"sum":       exprlang.Func(biSum),
		"tuple":     exprlang.Func(biTuple),
		"zip":       exprlang.Func(biZip),
	}
}

type exprStruct struct{}

func (exprStruct) String() string { return "Ellipsis" }

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

func toInt(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return i, err
	}
	return 0, fmt.Errorf("cannot convert %T to int", v)
}

func toSeq(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case exprlang.Tuple:
		return []any(t), nil
	case string:
		out := make([]any, 0, len(t))
		for _, r := range t {
			out = append(out, string(r))
		}
		return out, nil
	}
	return nil, fmt.Errorf("argument is not iterable: %T", v)
}

func biAbs(args []any, _ map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, errWrongArgCount
	}
	switch v := args[0].(type) {
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	}
	return nil, fmt.Errorf("abs() requires a number, got %T", args[0])
}

func biAll(args []any, _ map[string]any) (any, error) {
	seq, err := toSeq(args[0])
	if err != nil {
		return nil, err
	}
	for _, v := range seq {
		if !exprlang.Truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func biApply(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, errWrongArgCount
	}
	fn, ok := args[0].(exprlang.Func)
	if !ok {
		return nil, fmt.Errorf("apply() requires a callable first argument")
	}
	var rest []any
	if len(args) > 1 {
		rest, _ = toSeq(args[1])
	}
	return fn(rest, kwargs)
}

func biBin(args []any, _ map[string]any) (any, error) {
	i, err := toInt(args[0])
	if err != nil {
		return nil, err
	}
	neg := i < 0
	if neg {
		i = -i
	}
	s := "0b" + strconv.FormatInt(i, 2)
	if neg {
		s = "-" + s
	}
	return s, nil
}

func biBool(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return false, nil
	}
	return exprlang.Truthy(args[0]), nil
}

func biBytes(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("bytes() requires a string argument")
	}
	return s, nil
}

func biChr(args []any, _ map[string]any) (any, error) {
	i, err := toInt(args[0])
	if err != nil {
		return nil, err
	}
	return string(rune(i)), nil
}

func biCmp(args []any, _ map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, errWrongArgCount
	}
	af, aok := toFloat(args[0])
	bf, bok := toFloat(args[1])
	if aok == nil && bok == nil {
		switch {
		case af < bf:
			return int64(-1), nil
		case af > bf:
			return int64(1), nil
		default:
			return int64(0), nil
		}
	}
	as, aIsStr := args[0].(string)
	bs, bIsStr := args[1].(string)
	if aIsStr && bIsStr {
		return int64(strings.Compare(as, bs)), nil
	}
	return nil, fmt.Errorf("cannot compare %T with %T", args[0], args[1])
}

func biComplexUnsupported(_ []any, _ map[string]any) (any, error) {
	return nil, fmt.Errorf("complex() is not supported")
}

func biDict(args []any, kwargs map[string]any) (any, error) {
	out := map[string]any{}
	for k, v := range kwargs {
		out[k] = v
	}
	return out, nil
}

func biDivmod(args []any, _ map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, errWrongArgCount
	}
	a, aErr := toInt(args[0])
	b, bErr := toInt(args[1])
	if aErr != nil || bErr != nil {
		af, _ := toFloat(args[0])
		bf, _ := toFloat(args[1])
		q := float64(int64(af / bf))
		return exprlang.Tuple{q, af - q*bf}, nil
	}
	if b == 0 {
		return nil, fmt.Errorf("integer division or modulo by zero")
	}
	q := a / b
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		q--
		r += b
	}
	return exprlang.Tuple{q, r}, nil
}

func biEnumerate(args []any, _ map[string]any) (any, error) {
	seq, err := toSeq(args[0])
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if len(args) > 1 {
		start, _ = toInt(args[1])
	}
	out := make([]any, len(seq))
	for i, v := range seq {
		out[i] = exprlang.Tuple{start + int64(i), v}
	}
	return out, nil
}

func biFilter(args []any, _ map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, errWrongArgCount
	}
	seq, err := toSeq(args[1])
	if err != nil {
		return nil, err
	}
	if args[0] == nil {
		out := make([]any, 0, len(seq))
		for _, v := range seq {
			if exprlang.Truthy(v) {
				out = append(out, v)
			}
		}
		return out, nil
	}
	fn, ok := args[0].(exprlang.Func)
	if !ok {
		return nil, fmt.Errorf("filter() first argument must be callable or None")
	}
	out := make([]any, 0, len(seq))
	for _, v := range seq {
		res, err := fn([]any{v}, nil)
		if err != nil {
			return nil, err
		}
		if exprlang.Truthy(res) {
			out = append(out, v)
		}
	}
	return out, nil
}

func biFloat(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return float64(0), nil
	}
	return toFloat(args[0])
}

func biFormat(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	return fmt.Sprintf("%v", args[0]), nil
}

func biHash(args []any, _ map[string]any) (any, error) {
	s := fmt.Sprintf("%v", args[0])
	var h int64
	for _, c := range s {
		h = h*31 + int64(c)
	}
	return h, nil
}

func biHex(args []any, _ map[string]any) (any, error) {
	i, err := toInt(args[0])
	if err != nil {
		return nil, err
	}
	neg := i < 0
	if neg {
		i = -i
	}
	s := "0x" + strconv.FormatInt(i, 16)
	if neg {
		s = "-" + s
	}
	return s, nil
}

func biInt(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return int64(0), nil
	}
	return toInt(args[0])
}

func biIsinstance(args []any, _ map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, errWrongArgCount
	}
	return typeNameOf(args[0]) == fmt.Sprintf("%v", args[1]), nil
}

func biIssubclass(args []any, _ map[string]any) (any, error) {
	return biIsinstance(args, nil)
}

func typeNameOf(v any) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case exprlang.Tuple:
		return "tuple"
	case map[string]any:
		return "dict"
	}
	return "object"
}

func biLen(args []any, _ map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, errWrongArgCount
	}
	switch v := args[0].(type) {
	case string:
		return int64(len([]rune(v))), nil
	case []any:
		return int64(len(v)), nil
	case exprlang.Tuple:
		return int64(len(v)), nil
	case map[string]any:
		return int64(len(v)), nil
	}
	return nil, fmt.Errorf("object of type %T has no len()", args[0])
}

func biList(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	return toSeq(args[0])
}

func biMap(args []any, _ map[string]any) (any, error) {
	if len(args) < 2 {
		return nil, errWrongArgCount
	}
	fn, ok := args[0].(exprlang.Func)
	if !ok {
		return nil, fmt.Errorf("map() first argument must be callable")
	}
	seq, err := toSeq(args[1])
	if err != nil {
		return nil, err
	}
	out := make([]any, len(seq))
	for i, v := range seq {
		r, err := fn([]any{v}, nil)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func biMax(args []any, kwargs map[string]any) (any, error) {
	return extremum(args, kwargs, true)
}

func biMin(args []any, kwargs map[string]any) (any, error) {
	return extremum(args, kwargs, false)
}

func extremum(args []any, kwargs map[string]any, wantMax bool) (any, error) {
	var seq []any
	if len(args) == 1 {
		s, err := toSeq(args[0])
		if err != nil {
			return nil, err
		}
		seq = s
	} else {
		seq = args
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("max()/min() arg is an empty sequence")
	}
	key, _ := kwargs["key"].(exprlang.Func)
	keyOf := func(v any) (any, error) {
		if key == nil {
			return v, nil
		}
		return key([]any{v}, nil)
	}
	best := seq[0]
	bestKey, err := keyOf(best)
	if err != nil {
		return nil, err
	}
	for _, v := range seq[1:] {
		k, err := keyOf(v)
		if err != nil {
			return nil, err
		}
		cmp, ok := compareAny(k, bestKey)
		if !ok {
			return nil, fmt.Errorf("unorderable types in max()/min()")
		}
		if (wantMax && cmp > 0) || (!wantMax && cmp < 0) {
			best, bestKey = v, k
		}
	}
	return best, nil
}

func compareAny(a, b any) (int, bool) {
	if af, aerr := toFloat(a); aerr == nil {
		if bf, berr := toFloat(b); berr == nil {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func biNext(args []any, _ map[string]any) (any, error) {
	seq, err := toSeq(args[0])
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		if len(args) > 1 {
			return args[1], nil
		}
		return nil, fmt.Errorf("StopIteration")
	}
	return seq[0], nil
}

func biOct(args []any, _ map[string]any) (any, error) {
	i, err := toInt(args[0])
	if err != nil {
		return nil, err
	}
	return "0o" + strconv.FormatInt(i, 8), nil
}

func biOrd(args []any, _ map[string]any) (any, error) {
	s, ok := args[0].(string)
	if !ok || len([]rune(s)) != 1 {
		return nil, fmt.Errorf("ord() expects a character")
	}
	return int64([]rune(s)[0]), nil
}

func biPow(args []any, _ map[string]any) (any, error) {
	if len(args) < 2 {
		return nil, errWrongArgCount
	}
	res, err := applyArithPublic("**", args[0], args[1])
	if err != nil {
		return nil, err
	}
	if len(args) == 3 {
		mod, err := toInt(args[2])
		if err != nil {
			return nil, err
		}
		base, err := toInt(res)
		if err != nil {
			return nil, err
		}
		return ((base % mod) + mod) % mod, nil
	}
	return res, nil
}

func applyArithPublic(op string, x, y any) (any, error) {
	xf, xerr := toFloat(x)
	yf, yerr := toFloat(y)
	if xerr != nil || yerr != nil {
		return nil, fmt.Errorf("unsupported operand types for %q", op)
	}
	if xi, xok := x.(int64); xok {
		if yi, yok := y.(int64); yok && yi >= 0 {
			var r int64 = 1
			for i := int64(0); i < yi; i++ {
				r *= xi
			}
			return r, nil
		}
	}
	return powFloat(xf, yf), nil
}

func biRange(args []any, _ map[string]any) (any, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		s, err := toInt(args[0])
		if err != nil {
			return nil, err
		}
		stop = s
	case 2:
		s0, err := toInt(args[0])
		if err != nil {
			return nil, err
		}
		s1, err := toInt(args[1])
		if err != nil {
			return nil, err
		}
		start, stop = s0, s1
	case 3:
		s0, err := toInt(args[0])
		if err != nil {
			return nil, err
		}
		s1, err := toInt(args[1])
		if err != nil {
			return nil, err
		}
		s2, err := toInt(args[2])
		if err != nil {
			return nil, err
		}
		start, stop, step = s0, s1, s2
	default:
		return nil, errWrongArgCount
	}
	if step == 0 {
		return nil, fmt.Errorf("range() arg 3 must not be zero")
	}
	var out []any
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func biReduce(args []any, _ map[string]any) (any, error) {
	if len(args) < 2 {
		return nil, errWrongArgCount
	}
	fn, ok := args[0].(exprlang.Func)
	if !ok {
		return nil, fmt.Errorf("reduce() first argument must be callable")
	}
	seq, err := toSeq(args[1])
	if err != nil {
		return nil, err
	}
	var acc any
	i := 0
	if len(args) > 2 {
		acc = args[2]
	} else {
		if len(seq) == 0 {
			return nil, fmt.Errorf("reduce() of empty sequence with no initial value")
		}
		acc = seq[0]
		i = 1
	}
	for ; i < len(seq); i++ {
		acc, err = fn([]any{acc, seq[i]}, nil)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func biRepr(args []any, _ map[string]any) (any, error) {
	return reprOf(args[0]), nil
}

func reprOf(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + t + "'"
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func biReversed(args []any, _ map[string]any) (any, error) {
	seq, err := toSeq(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]any, len(seq))
	for i, v := range seq {
		out[len(seq)-1-i] = v
	}
	return out, nil
}

func biRound(args []any, _ map[string]any) (any, error) {
	f, err := toFloat(args[0])
	if err != nil {
		return nil, err
	}
	ndigits := 0
	if len(args) > 1 {
		n, err := toInt(args[1])
		if err != nil {
			return nil, err
		}
		ndigits = int(n)
	}
	mult := pow10(ndigits)
	r := roundHalfEven(f*mult) / mult
	if ndigits <= 0 && len(args) <= 1 {
		return int64(r), nil
	}
	return r, nil
}

func pow10(n int) float64 {
	r := 1.0
	if n >= 0 {
		for i := 0; i < n; i++ {
			r *= 10
		}
		return r
	}
	for i := 0; i < -n; i++ {
		r /= 10
	}
	return r
}

func roundHalfEven(f float64) float64 {
	return math.RoundToEven(f)
}

func biSet(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	seq, err := toSeq(args[0])
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []any
	for _, v := range seq {
		key := fmt.Sprintf("%v", v)
		if !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func biSlice(args []any, _ map[string]any) (any, error) {
	return exprlang.Tuple(args), nil
}

func biSorted(args []any, kwargs map[string]any) (any, error) {
	seq, err := toSeq(args[0])
	if err != nil {
		return nil, err
	}
	out := append([]any{}, seq...)
	key, _ := kwargs["key"].(exprlang.Func)
	reverse, _ := kwargs["reverse"].(bool)
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if key != nil {
			a, sortErr = key([]any{a}, nil)
			b, sortErr = key([]any{b}, nil)
		}
		cmp, _ := compareAny(a, b)
		if reverse {
			return cmp > 0
		}
		return cmp < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return out, nil
}

func biStr(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	if s, ok := args[0].(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", args[0]), nil
}

func biSum(args []any, _ map[string]any) (any, error) {
	seq, err := toSeq(args[0])
	if err != nil {
		return nil, err
	}
	var start any = int64(0)
	if len(args) > 1 {
		start = args[1]
	}
	acc := start
	for _, v := range seq {
		acc, err = applyArithPublic2("+", acc, v)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func applyArithPublic2(op string, x, y any) (any, error) {
	if xi, ok := x.(int64); ok {
		if yi, ok := y.(int64); ok {
			return xi + yi, nil
		}
	}
	xf, xerr := toFloat(x)
	yf, yerr := toFloat(y)
	if xerr == nil && yerr == nil {
		return xf + yf, nil
	}
	return nil, fmt.Errorf("unsupported operand types for sum()")
}

func biTuple(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return exprlang.Tuple{}, nil
	}
	seq, err := toSeq(args[0])
	if err != nil {
		return nil, err
	}
	return exprlang.Tuple(seq), nil
}

func biZip(args []any, _ map[string]any) (any, error) {
	seqs := make([][]any, len(args))
	minLen := -1
	for i, a := range args {
		s, err := toSeq(a)
		if err != nil {
			return nil, err
		}
		seqs[i] = s
		if minLen == -1 || len(s) < minLen {
			minLen = len(s)
		}
	}
	if minLen < 0 {
		minLen = 0
	}
	out := make([]any, minLen)
	for i := 0; i < minLen; i++ {
		tup := make(exprlang.Tuple, len(seqs))
		for j, s := range seqs {
			tup[j] = s[i]
		}
		out[i] = tup
	}
	return out, nil
}

func powFloat(base, exp float64) float64 {
	return math.Pow(base, exp)
}
