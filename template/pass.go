package template

import "time"

// RenderPass1 renders every value in raw with BASETIME bound to the start
// of today, after escaping any block that references DUETIME so it
// survives untouched until RenderPass2 runs.
func (r *Renderer) RenderPass1(raw map[string]string, today time.Time) (map[string]string, error) {
	basetime := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	globals := map[string]any{"BASETIME": basetime}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		escaped := EscapeDependent(v)
		rendered, err := r.Render(escaped, globals)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

// RenderPass2 re-renders one pass-1 output value with DUETIME bound,
// after restoring the blocks EscapeDependent deferred.
func (r *Renderer) RenderPass2(pass1Value string, dueTime time.Time) (string, error) {
	unescaped := UnescapeDependent(pass1Value)
	globals := map[string]any{"DUETIME": dueTime}
	return r.Render(unescaped, globals)
}
