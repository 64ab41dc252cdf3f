package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	errors []string
}

func (l *testLogger) Criticalf(string, ...any) {}
func (l *testLogger) Debugf(string, ...any)    {}
func (l *testLogger) Errorf(format string, args ...any) {
	l.errors = append(l.errors, format)
}
func (l *testLogger) Noticef(string, ...any)  {}
func (l *testLogger) Warningf(string, ...any) {}

func TestIMDispatcherSendSuccess(t *testing.T) {
	var gotForm map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.Form
		w.Write([]byte(`{"result":"OK"}`))
	}))
	defer srv.Close()

	log := &testLogger{}
	d := NewIMDispatcher(IMConfig{Endpoint: srv.URL, AccessToken: "tok"}, log)
	d.Send([]string{"alice"}, "hello")

	assert.Equal(t, "tok", gotForm.Get("access_token"))
	assert.Equal(t, "alice", gotForm.Get("to"))
	assert.Equal(t, "hello", gotForm.Get("content"))
	assert.Empty(t, log.errors)
}

func TestIMDispatcherStopsOnFirstFailurePerRecipient(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"result":"fail"}`))
	}))
	defer srv.Close()

	log := &testLogger{}
	d := NewIMDispatcher(IMConfig{Endpoint: srv.URL}, log)
	longMessage := make([]byte, 5000)
	for i := range longMessage {
		longMessage[i] = 'x'
	}
	d.Send([]string{"alice"}, string(longMessage))

	assert.Equal(t, 1, calls)
	assert.Len(t, log.errors, 1)
}

func TestIMDispatcherSkipsWhenNoEndpointOrRecipients(t *testing.T) {
	log := &testLogger{}
	d := NewIMDispatcher(IMConfig{}, log)
	d.Send([]string{"alice"}, "hello")
	d.Send(nil, "hello")
	assert.Empty(t, log.errors)
}
