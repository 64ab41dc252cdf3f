package middlewares

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hzhu212/data-monitor/logging"
)

// maxChunkBytes is the IM gateway's payload size limit per message.
const maxChunkBytes = 2048

// IMConfig configures the IM gateway dispatcher.
type IMConfig struct {
	Endpoint    string `mapstructure:"im-endpoint"`
	AccessToken string `mapstructure:"im-access-token" json:"-"`
}

// IMDispatcher posts chunked text messages to the configured IM gateway,
// one HTTP POST per chunk per recipient, in the form-encoded shape the
// gateway contract specifies: access_token, msg_type=text, to, content.
// Grounded on the teacher's own outbound-webhook idiom of a plain
// net/http.Client with a short timeout (slack.go's pushMessage).
type IMDispatcher struct {
	Config IMConfig
	Client *http.Client
	Log    logging.Logger
}

// NewIMDispatcher returns an IMDispatcher using a 5 second HTTP client
// timeout, matching the teacher's Slack middleware.
func NewIMDispatcher(cfg IMConfig, log logging.Logger) *IMDispatcher {
	return &IMDispatcher{
		Config: cfg,
		Client: &http.Client{Timeout: 5 * time.Second},
		Log:    log,
	}
}

// TransportError wraps an alert-delivery failure. Logged only; never
// causes a job retry on its own account, since the run already failed.
type TransportError struct {
	Channel    string
	Recipient  string
	Err        error
}

func (e *TransportError) Error() string {
	return "alert delivery to " + e.Channel + " recipient " + e.Recipient + " failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Send delivers message to every recipient, splitting it into ≤2048 byte
// chunks preferring line boundaries. Per recipient, chunks are sent
// sequentially; the first failure stops that recipient's remaining
// chunks but does not prevent sending to the next recipient.
func (d *IMDispatcher) Send(recipients []string, message string) {
	if d.Config.Endpoint == "" || len(recipients) == 0 {
		return
	}
	chunks := splitChunks(message, maxChunkBytes)
	for _, to := range recipients {
		for _, chunk := range chunks {
			if err := d.postChunk(to, chunk); err != nil {
				d.Log.Errorf("%v", &TransportError{Channel: "im", Recipient: to, Err: err})
				break
			}
		}
	}
}

func (d *IMDispatcher) postChunk(to, content string) error {
	form := url.Values{}
	form.Set("access_token", d.Config.AccessToken)
	form.Set("msg_type", "text")
	form.Set("to", to)
	form.Set("content", content)

	resp, err := d.Client.PostForm(d.Config.Endpoint, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var parsed struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	if !strings.EqualFold(parsed.Result, "ok") {
		return &gatewayError{result: parsed.Result}
	}
	return nil
}

type gatewayError struct {
	result string
}

func (e *gatewayError) Error() string {
	return "im gateway returned result=" + e.result
}

// splitChunks splits message into pieces no larger than limit bytes,
// preferring to cut at the last newline within the chunk; if none is
// found, it cuts hard at the byte limit.
func splitChunks(message string, limit int) []string {
	if len(message) <= limit {
		return []string{message}
	}
	var chunks []string
	remaining := message
	for len(remaining) > limit {
		cut := strings.LastIndexByte(remaining[:limit], '\n')
		if cut < 0 {
			cut = limit
		} else {
			cut++ // include the newline in the chunk that ends on it
		}
		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}
