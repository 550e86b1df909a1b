package notify

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender is the part of the SendGrid client the notifier uses.
type Sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type EmailOptions struct {
	APIKey      string
	FromName    string
	FromAddress string
	To          string
	// Kinds lists the events that are mailed. Empty means task completions.
	Kinds []Kind
}

type EmailNotifier struct {
	client Sender
	from   *mail.Email
	to     *mail.Email
	kinds  map[Kind]bool
	l      *log.Logger
}

func NewEmailNotifier(opts EmailOptions, l *log.Logger) *EmailNotifier {
	return newEmailNotifier(sendgrid.NewSendClient(opts.APIKey), opts, l)
}

func newEmailNotifier(client Sender, opts EmailOptions, l *log.Logger) *EmailNotifier {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []Kind{KindTaskCompleted}
	}
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return &EmailNotifier{
		client: client,
		from:   mail.NewEmail(opts.FromName, opts.FromAddress),
		to:     mail.NewEmail("", opts.To),
		kinds:  set,
		l:      logging.OrDiscard(l),
	}
}

func (n *EmailNotifier) Notify(_ context.Context, ev Event) error {
	if !n.kinds[ev.Kind] {
		return nil
	}

	subject := ev.Title
	if ev.TaskName != "" {
		subject = fmt.Sprintf("%s %s", ev.Title, ev.TaskName)
	}
	body := emailBody(ev)
	email := mail.NewSingleEmail(n.from, subject, n.to, body, body)

	response, err := n.client.Send(email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	n.l.Debug("email sent", "to", n.to.Address, "kind", ev.Kind, "status", response.StatusCode)
	return nil
}

func emailBody(ev Event) string {
	switch ev.Kind {
	case KindTaskCompleted:
		body := fmt.Sprintf("You finished every session of %q.", ev.TaskName)
		if ev.Points > 0 {
			body += fmt.Sprintf(" +%d points.", ev.Points)
		}
		return body
	default:
		if ev.Message != "" {
			return ev.Message
		}
		return ev.Title
	}
}
