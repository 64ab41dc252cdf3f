// Package middlewares implements the Alerting component: formatting an
// AlarmInfo into IM and email message bodies, then dispatching them over
// HTTP and SMTP. Grounded on the teacher's own outbound-notification
// middlewares (mail.go, slack.go), restyled around AlarmInfo instead of
// a Docker job's execution status.
package middlewares

import (
	"fmt"
	"html"
	"strings"

	"github.com/hzhu212/data-monitor/model"
)

const separatorWidth = 20

var (
	headerSeparator = strings.Repeat("=", separatorWidth)
	bodySeparator   = strings.Repeat("-", separatorWidth)
)

const maxTableRows = 10

// FormatText renders an AlarmInfo as the multi-line plain-text IM message
// described by the IM-formatter output layout: a header, a "=====" rule,
// a reason section, a "-----" rule, then kind-dependent content.
func FormatText(job *model.Job, info model.AlarmInfo) string {
	var lines []string
	switch info.Kind {
	case model.AlarmConfigError:
		lines = append(lines, fmt.Sprintf("job: %s", job.Name))
		lines = append(lines, headerSeparator)
		lines = append(lines, "reason: configuration error")
		lines = append(lines, bodySeparator)
		lines = append(lines, fmt.Sprintf("%v", info.Content))
	case model.AlarmClaim, model.AlarmDiff:
		lines = append(lines, header(job))
		lines = append(lines, headerSeparator)
		lines = append(lines, fmt.Sprintf("reason: validator failed\nvalidator: %s", job.Validator))
		lines = append(lines, bodySeparator)
		lines = append(lines, tableContent(info.Content))
	case model.AlarmException:
		lines = append(lines, header(job))
		lines = append(lines, headerSeparator)
		lines = append(lines, "reason: uncaught exception")
		lines = append(lines, bodySeparator)
		lines = append(lines, fmt.Sprintf("%v", info.Content))
	default:
		lines = append(lines, header(job))
		lines = append(lines, headerSeparator)
		lines = append(lines, "reason: validator returned a falsy result")
		lines = append(lines, bodySeparator)
		lines = append(lines, fmt.Sprintf("validator: %s\nresult: %s", job.Validator, reprOf(info.Content)))
	}
	return strings.Join(lines, "\n")
}

func header(job *model.Job) string {
	return fmt.Sprintf("desc: %s\nname: %s\ndue: %s", job.Desc, job.Name, job.DueTime.Format("2006-01-02 15:04:05"))
}

func reprOf(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprintf("%v", v)
}

func tableContent(content any) string {
	t, ok := content.(model.Table)
	if !ok {
		return fmt.Sprintf("%v", content)
	}
	limited, overflow := t.Limit(maxTableRows)
	out := limited.String()
	if overflow > 0 {
		out += fmt.Sprintf("... %d more rows\n", overflow)
	}
	return out
}

// FormatHTML renders an AlarmInfo as an HTML email body: job metadata,
// the joined SQL statements, the comma-separated datasource list, and
// kind-dependent content (an HTML table for claim/diff, escaped free text
// for everything else).
func FormatHTML(job *model.Job, info model.AlarmInfo, sqlStatements []string, datasourceNames []string) string {
	if info.Kind == model.AlarmConfigError {
		var body strings.Builder
		fmt.Fprintf(&body, "<p><b>Job</b>: %s</p>", html.EscapeString(job.Name))
		fmt.Fprintf(&body, "<p><b>Reason</b>: configuration error</p>")
		body.WriteString(textToHTML(html.EscapeString(fmt.Sprintf("%v", info.Content))))
		return body.String()
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<p><b>Job</b>: %s</p>", job.Name)
	fmt.Fprintf(&body, "<p><b>Description</b>: %s</p>", job.Desc)
	fmt.Fprintf(&body, "<p><b>Due</b>: %s</p>", job.DueTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&body, "<p><b>Datasources</b>: %s</p>", strings.Join(datasourceNames, ", "))
	fmt.Fprintf(&body, "<p><b>SQL</b>:</p><p>%s</p>", strings.Join(escapeAll(sqlStatements), "<hr/>"))

	switch info.Kind {
	case model.AlarmClaim, model.AlarmDiff:
		if t, ok := info.Content.(model.Table); ok {
			limited, overflow := t.Limit(maxTableRows)
			body.WriteString(limited.HTML())
			if overflow > 0 {
				fmt.Fprintf(&body, "<p>... %d more rows</p>", overflow)
			}
		} else {
			body.WriteString(textToHTML(fmt.Sprintf("%v", info.Content)))
		}
	default:
		body.WriteString(textToHTML(fmt.Sprintf("%v", info.Content)))
	}
	return body.String()
}

func escapeAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = html.EscapeString(s)
	}
	return out
}

// textToHTML expands tabs to 4 spaces, spaces to non-breaking spaces, and
// newlines to paragraph breaks, wrapped in a single <p>...</p>.
func textToHTML(s string) string {
	s = strings.ReplaceAll(s, "\t", "    ")
	s = strings.ReplaceAll(s, " ", "&nbsp;")
	s = strings.ReplaceAll(s, "\n", "</p><p>")
	return "<p>" + s + "</p>"
}

// looksLikeHTML is the email dispatcher's content-type heuristic: a body
// is sent as HTML iff it contains both "</" and ">".
func looksLikeHTML(body string) bool {
	return strings.Contains(body, "</") && strings.Contains(body, ">")
}
