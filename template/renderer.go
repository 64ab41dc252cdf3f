// Package template implements the two-pass "{expr|filter(args)}" string
// renderer used to expand a job's raw config options: BASETIME-bound
// expressions resolve at load time, DUETIME-bound expressions resolve
// once a job's due time is known.
package template

import (
	"fmt"
	"strings"
	"time"

	"github.com/hzhu212/data-monitor/internal/exprlang"
)

const (
	escapeOpen  = "\x01"
	escapeClose = "\x02"
)

// dependingNames are the identifiers whose evaluation must be deferred to
// pass 2, since they are not known until a job's due_time is parsed.
var dependingNames = []string{"DUETIME"}

// Renderer renders "{expr}" blocks against a filter Registry.
type Renderer struct {
	filters *Registry
}

// NewRenderer returns a Renderer backed by filters.
func NewRenderer(filters *Registry) *Renderer {
	return &Renderer{filters: filters}
}

// EscapeDependent rewrites every "{...}" block in s that references one
// of dependingNames so it is not recognized as a template block during
// pass 1, by swapping its delimiters for two non-printable markers. This
// mirrors the reference renderer's own escape/unescape pass, needed
// because DUETIME cannot be evaluated until due_time is parsed.
func EscapeDependent(s string) string {
	var out strings.Builder
	i := 0
	for i < len(s) {
		start := strings.IndexByte(s[i:], '{')
		if start < 0 {
			out.WriteString(s[i:])
			break
		}
		start += i
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			out.WriteString(s[i:])
			break
		}
		end += start
		block := s[start : end+1]
		inner := s[start+1 : end]
		if referencesAny(inner, dependingNames) {
			out.WriteString(s[i:start])
			out.WriteString(escapeOpen)
			out.WriteString(inner)
			out.WriteString(escapeClose)
		} else {
			out.WriteString(s[i:start])
			out.WriteString(block)
		}
		i = end + 1
	}
	return out.String()
}

// UnescapeDependent reverses EscapeDependent, restoring "{...}" delimiters
// so pass 2 can render the block normally.
func UnescapeDependent(s string) string {
	s = strings.ReplaceAll(s, escapeOpen, "{")
	s = strings.ReplaceAll(s, escapeClose, "}")
	return s
}

func referencesAny(expr string, names []string) bool {
	for _, name := range names {
		if containsWord(expr, name) {
			return true
		}
	}
	return false
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		pos := strings.Index(s[idx:], word)
		if pos < 0 {
			return false
		}
		pos += idx
		before := byte(' ')
		if pos > 0 {
			before = s[pos-1]
		}
		after := byte(' ')
		if pos+len(word) < len(s) {
			after = s[pos+len(word)]
		}
		if !isIdentByte(before) && !isIdentByte(after) {
			return true
		}
		idx = pos + len(word)
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// Render expands every "{expr}" or "{expr|filter(args)}" block in s
// against globals (e.g. {"BASETIME": t} or {"DUETIME": t}) plus the
// filter registry's functions, which are invocable only as pipe targets.
func (r *Renderer) Render(s string, globals map[string]any) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(s) {
		start := strings.IndexByte(s[i:], '{')
		if start < 0 {
			out.WriteString(s[i:])
			break
		}
		start += i
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated template block starting at position %d", start)
		}
		end += start
		out.WriteString(s[i:start])
		inner := s[start+1 : end]
		rendered, err := r.renderBlock(inner, globals)
		if err != nil {
			return "", fmt.Errorf("rendering %q: %w", inner, err)
		}
		out.WriteString(rendered)
		i = end + 1
	}
	return out.String(), nil
}

func (r *Renderer) renderBlock(inner string, globals map[string]any) (string, error) {
	segments := splitPipe(inner)
	env := renderEnv{globals: globals}

	node, err := exprlang.Parse(segments[0])
	if err != nil {
		return "", err
	}
	value, err := exprlang.Eval(node, env)
	if err != nil {
		return "", err
	}

	for _, seg := range segments[1:] {
		value, err = r.applyFilter(seg, value, env)
		if err != nil {
			return "", err
		}
	}
	return stringifyValue(value), nil
}

func (r *Renderer) applyFilter(seg string, piped any, env renderEnv) (any, error) {
	node, err := exprlang.Parse(seg)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression %q: %w", seg, err)
	}
	call, ok := node.(exprlang.Call)
	var name string
	var args []any
	var kwargs map[string]any
	if ok {
		ident, ok := call.Fn.(exprlang.Ident)
		if !ok {
			return nil, fmt.Errorf("filter target must be a name")
		}
		name = ident.Name
		args = make([]any, len(call.Args))
		for i, a := range call.Args {
			v, err := exprlang.Eval(a, env)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		kwargs = make(map[string]any, len(call.Kwargs))
		for k, n := range call.Kwargs {
			v, err := exprlang.Eval(n, env)
			if err != nil {
				return nil, err
			}
			kwargs[k] = v
		}
	} else {
		ident, ok := node.(exprlang.Ident)
		if !ok {
			return nil, fmt.Errorf("invalid filter reference %q", seg)
		}
		name = ident.Name
	}

	fn, ok := r.filters.lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown filter %q", name)
	}
	fullArgs := append([]any{piped}, args...)
	return fn(fullArgs, kwargs)
}

// splitPipe splits s on top-level '|' characters, respecting nested
// parentheses so a filter call's own arguments are never mistaken for a
// pipe boundary.
func splitPipe(s string) []string {
	var segs []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '|':
			if depth == 0 {
				segs = append(segs, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	segs = append(segs, strings.TrimSpace(s[last:]))
	return segs
}

type renderEnv struct {
	globals map[string]any
}

func (e renderEnv) Get(name string) (any, bool) {
	v, ok := e.globals[name]
	return v, ok
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
