package emailsvc

import (
	"net/http"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/elimu/core"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"

	maxSendAttempts = 3
)

var (
	// overridden in tests
	sendgridAPIFunc = sendgrid.API
	sleepFunc       = time.Sleep

	retryBackoff = 2 * time.Second
)

// sendgridService delivers school emails (password resets, invoices) through the SendGrid v3 API.
// Each message is tagged with the app name and its template so deliveries can be
// filtered per kind in the SendGrid activity feed.
type sendgridService struct {
	key     string
	from    *sgmail.Email
	appName string
	sandbox bool
	logger  core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return &sendgridService{
		key:     conf.SendgridApiKey,
		from:    sgmail.NewEmail(conf.DefaultFromEmail.Name, conf.DefaultFromEmail.Address),
		appName: conf.AppName,
		sandbox: conf.SendgridSandbox,
		logger:  logger,
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go func(msg *core.EmailMessage) {
			if err := msg.Render(); err != nil {
				svc.logger.Error("rendering email", errors.Wrap(err, msg.TemplateName))
				return
			}
			if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
				return
			}
			if err := svc.send(*msg); err != nil {
				svc.logger.Error("sending email", err, map[string]interface{}{"subject": msg.Subject, "refs": msg.Refs})
			}
		}(msg)
	}
}

func (svc *sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = "[" + svc.appName + "] " + msg.Subject
	p.AddTos(sgEmails(msg.To)...)
	if len(msg.Cc) > 0 {
		p.AddCCs(sgEmails(msg.Cc)...)
	}
	if len(msg.Bcc) > 0 {
		p.AddBCCs(sgEmails(msg.Bcc)...)
	}
	for key, val := range msg.Refs {
		p.SetCustomArg(key, val)
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	categories := []string{svc.appName}
	if msg.TemplateName != "" {
		categories = append(categories, msg.TemplateName)
	}
	m.AddCategories(categories...)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	for _, at := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     at.Content.String(),
			Type:        at.ContentType,
			Filename:    at.Filename,
			Disposition: "attachment",
		})
	}

	if svc.sandbox {
		m.SetMailSettings(sgmail.NewMailSettings().SetSandboxMode(sgmail.NewSetting(true)))
	}
	return m
}

func sgEmails(addrs []mail.Address) []*sgmail.Email {
	out := make([]*sgmail.Email, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, sgmail.NewEmail(addr.Name, addr.Address))
	}
	return out
}

// send posts msg, retrying rate limited and server side failures with a linear backoff.
func (svc *sendgridService) send(msg core.EmailMessage) error {
	body := sgmail.GetRequestBody(svc.prepare(msg))

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if attempt > 1 {
			sleepFunc(time.Duration(attempt-1) * retryBackoff)
		}

		req := sendgrid.GetRequest(svc.key, sendgridEndpoint, sendgridHost)
		req.Method = rest.Post
		req.Body = body

		res, err := sendgridAPIFunc(req)
		switch {
		case err != nil:
			lastErr = errors.Wrap(err, "calling sendgrid")
		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
			lastErr = errors.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
		case res.StatusCode >= http.StatusBadRequest:
			// rejected payloads are not retried
			return errors.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
		default:
			return nil
		}
	}
	return errors.Wrapf(lastErr, "giving up after %d attempts", maxSendAttempts)
}

