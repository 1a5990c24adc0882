package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/gomail.v2"

	"PulseJoin/internal/models"
)

var blockedTemplate = template.Must(template.New("blocked").Parse(`<p>Instance <b>{{.Name}}</b> ({{.ID}}) was disconnected by the gateway and has been deactivated.</p>
<p>Owner: {{.OwnerID}}<br>Detected at: {{.At}}</p>
<p>Gateway said: <code>{{.Reason}}</code></p>
<p>Reconnect the account and re-activate the instance to use it again.</p>`))

type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Alerter mails operators about instances that need manual attention.
type Alerter struct {
	From    string
	To      string
	Dialer  Dialer
	Retries int
}

func NewAlerter(host string, port int, user, password, from, to string) *Alerter {
	return &Alerter{
		From:    from,
		To:      to,
		Dialer:  gomail.NewDialer(host, port, user, password),
		Retries: 3,
	}
}

func (a *Alerter) InstanceBlocked(ctx context.Context, inst models.Instance, reason string) error {
	var body bytes.Buffer
	err := blockedTemplate.Execute(&body, map[string]any{
		"ID":      inst.ID,
		"Name":    inst.Name,
		"OwnerID": inst.OwnerID,
		"Reason":  reason,
		"At":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", a.From)
	m.SetHeader("To", a.To)
	m.SetHeader("Subject", fmt.Sprintf("Instance %s blocked", inst.Name))
	m.SetBody("text/html", body.String())

	return a.sendWithRetry(ctx, m)
}

// sendWithRetry retries with exponential backoff
func (a *Alerter) sendWithRetry(ctx context.Context, m *gomail.Message) error {
	operation := func() error {
		if err := a.Dialer.DialAndSend(m); err != nil {
			return fmt.Errorf("smtp send error: %w", err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = time.Duration(a.Retries) * time.Second

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// Nop drops every alert. Used when SMTP is not configured.
type Nop struct{}

func (Nop) InstanceBlocked(context.Context, models.Instance, string) error { return nil }
