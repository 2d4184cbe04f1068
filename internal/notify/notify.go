// Package notify alerts an operator when a sync cycle fails.
package notify

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/nadmax/tracksync/internal/dashboard"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Notifier interface {
	NotifyFailure(ctx context.Context, result dashboard.CycleResult) error
}

type LogNotifier struct{}

func (LogNotifier) NotifyFailure(ctx context.Context, result dashboard.CycleResult) error {
	log.Printf("Cycle %s failed (%s): %s", result.ID, result.Outcome, result.Error)
	return nil
}

// DefaultSendTimeout bounds one alert delivery.
const DefaultSendTimeout = 10 * time.Second

type sender interface {
	Send(ctx context.Context, email *mail.SGMailV3) (*sendResponse, error)
}

type sendResponse struct {
	StatusCode int
	Body       string
}

type sendgridSender struct {
	client *sendgrid.Client
}

func (s sendgridSender) Send(ctx context.Context, email *mail.SGMailV3) (*sendResponse, error) {
	resp, err := s.client.SendWithContext(ctx, email)
	if err != nil {
		return nil, err
	}
	return &sendResponse{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

type EmailNotifier struct {
	from    *mail.Email
	to      *mail.Email
	table   string
	timeout time.Duration
	sender  sender
}

func NewEmailNotifier(apiKey, fromName, fromAddress, to, table string) *EmailNotifier {
	return &EmailNotifier{
		from:   mail.NewEmail(fromName, fromAddress),
		to:     mail.NewEmail("", to),
		table:   table,
		timeout: DefaultSendTimeout,
		sender:  sendgridSender{client: sendgrid.NewSendClient(apiKey)},
	}
}

func (n *EmailNotifier) NotifyFailure(ctx context.Context, result dashboard.CycleResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	response, err := n.sender.Send(ctx, n.buildMessage(result))
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d: %s", response.StatusCode, strings.TrimSpace(response.Body))
	}

	log.Printf("Failure alert for cycle %s sent to %s (status: %d)", result.ID, n.to.Address, response.StatusCode)
	return nil
}

func (n *EmailNotifier) buildMessage(result dashboard.CycleResult) *mail.SGMailV3 {
	subject := fmt.Sprintf("tracksync: cycle %s %s", shortID(result.ID), result.Outcome)

	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", n.table)
	fmt.Fprintf(&b, "Cycle: %s\n", result.ID)
	fmt.Fprintf(&b, "Started: %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Outcome: %s\n", result.Outcome)
	fmt.Fprintf(&b, "Error: %s\n", result.Error)
	fmt.Fprintf(&b, "\nNothing was written for this cycle; the next one runs on schedule.\n")
	body := b.String()

	return mail.NewSingleEmail(n.from, subject, n.to, body, "<pre>"+html.EscapeString(body)+"</pre>")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
