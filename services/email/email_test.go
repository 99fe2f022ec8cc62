package emailsvc

import (
	"bytes"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{})  {}
func (l *recordingLogger) Warn(string, ...interface{})  {}
func (l *recordingLogger) Fatal(string, ...interface{}) {}
func (l *recordingLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func testMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:      []mail.Address{{Name: "Jane Doe", Address: "jane@test.test"}},
		Cc:      []mail.Address{{Address: "office@test.test"}},
		Subject: "Invoice INV-202403-0001",
		BodyStr: "Your invoice is ready.",
	}
}

func TestConsoleService_Send(t *testing.T) {
	var out bytes.Buffer
	svc := &consoleService{
		defaultFromEmail: mail.Address{Name: "Elimu", Address: "noreply@test.test"},
		subjPrefix:       "[Elimu] ",
		out:              &out,
		logger:           &recordingLogger{},
	}

	msg := testMessage()
	require.True(t, svc.sendMessage(msg))
	body := out.String()
	assert.Contains(t, body, "Subject: [Elimu] Invoice INV-202403-0001\r\n")
	assert.Contains(t, body, `To: "Jane Doe" <jane@test.test>`)
	assert.Contains(t, body, "CC: <office@test.test>")
	assert.Contains(t, body, "Content-Type: multipart/alternative")
	assert.Contains(t, body, "Your invoice is ready.")

	out.Reset()
	msg = testMessage()
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "invoice.csv", "text/csv"))
	require.True(t, svc.sendMessage(msg))
	body = out.String()
	assert.Contains(t, body, "Content-Type: multipart/mixed")
	assert.Contains(t, body, "attachment; filename=invoice.csv")

	out.Reset()
	msg = testMessage()
	msg.To = nil
	assert.False(t, svc.sendMessage(msg))
	assert.Empty(t, out.String())
}

func TestConsoleServiceMock(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, &recordingLogger{})

	empty := testMessage()
	empty.BodyStr = ""
	svc.SendMessages(testMessage(), empty)
	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Your invoice is ready.", sent[0].TextContent)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func mockSendgridAPI(t *testing.T, statuses ...int) *[]rest.Request {
	t.Helper()
	var calls []rest.Request
	prevAPI, prevSleep := sendgridAPIFunc, sleepFunc
	sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
		calls = append(calls, req)
		status := statuses[len(statuses)-1]
		if len(calls) <= len(statuses) {
			status = statuses[len(calls)-1]
		}
		return &rest.Response{StatusCode: status, Body: `{"errors":[]}`}, nil
	}
	sleepFunc = func(time.Duration) {}
	t.Cleanup(func() { sendgridAPIFunc, sleepFunc = prevAPI, prevSleep })
	return &calls
}

func TestSendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, &recordingLogger{}).(*sendgridService)

	msg := testMessage()
	msg.Refs = map[string]string{"invoice_number": "INV-202403-0001"}
	require.NoError(t, msg.Render())
	msg.TemplateName = "invoice_issued"

	m := svc.prepare(*msg)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[Elimu] Invoice INV-202403-0001", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "jane@test.test", p.To[0].Address)
	require.Len(t, p.CC, 1)
	assert.Empty(t, p.BCC)
	assert.Equal(t, "INV-202403-0001", p.CustomArgs["invoice_number"])
	assert.Equal(t, "noreply@test.test", m.From.Address)
	assert.Equal(t, []string{"Elimu", "invoice_issued"}, m.Categories)
	assert.Nil(t, m.MailSettings)

	svc.sandbox = true
	m = svc.prepare(*msg)
	require.NotNil(t, m.MailSettings)
	require.NotNil(t, m.MailSettings.SandboxMode)
	assert.True(t, *m.MailSettings.SandboxMode.Enable)
}

func TestSendgridService_send(t *testing.T) {
	conf := core.NewTestConfig()
	conf.SendgridApiKey = "SG.key"
	svc := NewSendgridService(conf, &recordingLogger{}).(*sendgridService)
	msg := testMessage()
	require.NoError(t, msg.Render())

	t.Run("accepted", func(t *testing.T) {
		calls := mockSendgridAPI(t, http.StatusAccepted)
		require.NoError(t, svc.send(*msg))
		require.Len(t, *calls, 1)
		got := (*calls)[0]
		assert.Equal(t, rest.Post, got.Method)
		assert.Equal(t, "Bearer SG.key", got.Headers["Authorization"])
		assert.Contains(t, string(got.Body), "jane@test.test")
	})

	t.Run("rejected payloads are not retried", func(t *testing.T) {
		calls := mockSendgridAPI(t, http.StatusBadRequest)
		assert.ErrorContains(t, svc.send(*msg), "sendgrid status 400")
		assert.Len(t, *calls, 1)
	})

	t.Run("rate limited then accepted", func(t *testing.T) {
		calls := mockSendgridAPI(t, http.StatusTooManyRequests, http.StatusAccepted)
		require.NoError(t, svc.send(*msg))
		assert.Len(t, *calls, 2)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := mockSendgridAPI(t, http.StatusServiceUnavailable)
		assert.ErrorContains(t, svc.send(*msg), "giving up after 3 attempts")
		assert.Len(t, *calls, maxSendAttempts)
	})
}

func TestSendgridService_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	logger := &recordingLogger{}
	svc := NewSendgridService(conf, logger).(*sendgridService)
	calls := mockSendgridAPI(t, http.StatusBadRequest)
	done := make(chan struct{})
	prev := sendgridAPIFunc
	sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
		defer close(done)
		return prev(req)
	}

	svc.SendMessages(testMessage())
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message not sent")
	}
	assert.Eventually(t, func() bool {
		logger.mu.Lock()
		defer logger.mu.Unlock()
		return len(logger.errors) == 1 && logger.errors[0] == "sending email"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, *calls, 1)
}
