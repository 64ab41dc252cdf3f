package middlewares

import (
	"crypto/tls"
	"fmt"
	"os"
	"strings"

	mail "github.com/go-mail/mail/v2"

	"github.com/hzhu212/data-monitor/logging"
	"github.com/hzhu212/data-monitor/model"
)

// MailConfig configures the SMTP dispatcher, carried over from the
// teacher's own MailConfig field set and tag shape.
type MailConfig struct {
	SMTPHost          string `mapstructure:"smtp-host"`
	SMTPPort          int    `mapstructure:"smtp-port"`
	SMTPUser          string `mapstructure:"smtp-user" json:"-"`
	SMTPPassword      string `mapstructure:"smtp-password" json:"-"`
	SMTPTLSSkipVerify bool   `mapstructure:"smtp-tls-skip-verify"`
	EmailFrom         string `mapstructure:"email-from"`
}

// EmailDispatcher sends one SMTP message per alert, choosing HTML or plain
// text content-type per looksLikeHTML. Grounded on the teacher's own
// go-mail/mail/v2 dialer usage (mail.go), restyled around an AlarmInfo
// instead of a Docker execution's captured stdout/stderr.
type EmailDispatcher struct {
	Config MailConfig
	Log    logging.Logger
}

// NewEmailDispatcher returns an EmailDispatcher using cfg.
func NewEmailDispatcher(cfg MailConfig, log logging.Logger) *EmailDispatcher {
	return &EmailDispatcher{Config: cfg, Log: log}
}

// Send delivers one email to recipients containing job's alert. The body
// is built with FormatHTML; if it doesn't look like HTML (no tags at
// all), it is sent as plain text instead, per the reference tool's own
// content-sniffing rule.
func (d *EmailDispatcher) Send(recipients []string, job *model.Job, info model.AlarmInfo, sqlStatements []string, datasourceNames []string) {
	if d.Config.SMTPHost == "" || len(recipients) == 0 {
		return
	}

	body := FormatHTML(job, info, sqlStatements, datasourceNames)
	contentType := "text/plain"
	if looksLikeHTML(body) {
		contentType = "text/html"
	} else {
		body = FormatText(job, info)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", d.from())
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", fmt.Sprintf("[data-monitor] job %q alert: %s", job.Name, info.Kind))
	msg.SetBody(contentType, body)

	dialer := mail.NewDialer(d.Config.SMTPHost, d.Config.SMTPPort, d.Config.SMTPUser, d.Config.SMTPPassword)
	if d.Config.SMTPTLSSkipVerify {
		dialer.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if err := dialer.DialAndSend(msg); err != nil {
		d.Log.Errorf("%v", &TransportError{Channel: "email", Recipient: strings.Join(recipients, ","), Err: err})
	}
}

func (d *EmailDispatcher) from() string {
	if !strings.Contains(d.Config.EmailFrom, "%") {
		return d.Config.EmailFrom
	}
	hostname, _ := os.Hostname()
	return fmt.Sprintf(d.Config.EmailFrom, hostname)
}
