package validator

import "github.com/hzhu212/data-monitor/internal/exprlang"

// registerPredicates seeds the registry with the comparison predicate
// factories and their and/or combinators, grounded directly on the
// reference tool's user-defined gt/ge/lt/le/eq/ne/ands/ors validators:
// each returns a one-argument predicate closing over its comparand, so
// validator expressions can write "claim(result, gt(30))".
func registerPredicates(r *Registry) {
	r.Register("gt", makePredicateFactory(func(a, b any) (bool, error) { return compareValuesFor(a, b, ">") }))
	r.Register("ge", makePredicateFactory(func(a, b any) (bool, error) { return compareValuesFor(a, b, ">=") }))
	r.Register("lt", makePredicateFactory(func(a, b any) (bool, error) { return compareValuesFor(a, b, "<") }))
	r.Register("le", makePredicateFactory(func(a, b any) (bool, error) { return compareValuesFor(a, b, "<=") }))
	r.Register("eq", makePredicateFactory(func(a, b any) (bool, error) { return compareValuesFor(a, b, "==") }))
	r.Register("ne", makePredicateFactory(func(a, b any) (bool, error) { return compareValuesFor(a, b, "!=") }))

	r.Register("ands", exprlang.Func(func(args []any, _ map[string]any) (any, error) {
		preds := args
		return exprlang.Func(func(inner []any, _ map[string]any) (any, error) {
			for _, p := range preds {
				fn, ok := p.(exprlang.Func)
				if !ok {
					continue
				}
				res, err := fn(inner, nil)
				if err != nil {
					return nil, err
				}
				if !exprlang.Truthy(res) {
					return false, nil
				}
			}
			return true, nil
		}), nil
	}))

	r.Register("ors", exprlang.Func(func(args []any, _ map[string]any) (any, error) {
		preds := args
		return exprlang.Func(func(inner []any, _ map[string]any) (any, error) {
			for _, p := range preds {
				fn, ok := p.(exprlang.Func)
				if !ok {
					continue
				}
				res, err := fn(inner, nil)
				if err != nil {
					return nil, err
				}
				if exprlang.Truthy(res) {
					return true, nil
				}
			}
			return false, nil
		}), nil
	}))
}

func makePredicateFactory(cmp func(a, b any) (bool, error)) exprlang.Func {
	return func(args []any, _ map[string]any) (any, error) {
		if len(args) != 1 {
			return nil, errWrongArgCount
		}
		b := args[0]
		return exprlang.Func(func(inner []any, _ map[string]any) (any, error) {
			if len(inner) != 1 {
				return nil, errWrongArgCount
			}
			return cmp(inner[0], b)
		}), nil
	}
}

func compareValuesFor(a, b any, op string) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok == nil && bok == nil {
		switch op {
		case ">":
			return af > bf, nil
		case ">=":
			return af >= bf, nil
		case "<":
			return af < bf, nil
		case "<=":
			return af <= bf, nil
		case "==":
			return af == bf, nil
		case "!=":
			return af != bf, nil
		}
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch op {
		case ">":
			return as > bs, nil
		case ">=":
			return as >= bs, nil
		case "<":
			return as < bs, nil
		case "<=":
			return as <= bs, nil
		case "==":
			return as == bs, nil
		case "!=":
			return as != bs, nil
		}
	}
	return false, nil
}
