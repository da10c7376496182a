package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"
)

type SendParams struct {
	To      []Recipient
	Subject string
	HTML    string
	Text    string
}

// SendResult carries the transport outcome. Mailers never return Go errors;
// the dispatcher turns failures into ledger rows and alerts instead.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

type Mailer interface {
	Send(ctx context.Context, params SendParams) SendResult
}

// ResendMailer sends through the Resend API.
type ResendMailer struct {
	client      *resend.Client
	fromAddress string
	fromName    string
}

func NewResendMailer(apiKey, fromAddress, fromName string) *ResendMailer {
	return &ResendMailer{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
		fromName:    fromName,
	}
}

func (m *ResendMailer) Send(ctx context.Context, params SendParams) SendResult {
	if len(params.To) == 0 {
		return SendResult{Error: "no recipients"}
	}

	to := make([]string, len(params.To))
	for i, r := range params.To {
		to[i] = r.Email
	}

	req := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", m.fromName, m.fromAddress),
		To:      to,
		Subject: params.Subject,
		Html:    params.HTML,
		Text:    params.Text,
	}

	sent, err := m.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return SendResult{Error: err.Error()}
	}
	return SendResult{Success: true, MessageID: sent.Id}
}

// DryRunMailer logs what would have been sent. Used when EMAIL_DRY_RUN=true
// so local environments exercise the whole pipeline without real mail.
type DryRunMailer struct {
	log *logrus.Logger
}

func NewDryRunMailer(log *logrus.Logger) *DryRunMailer {
	return &DryRunMailer{log: log}
}

func (m *DryRunMailer) Send(_ context.Context, params SendParams) SendResult {
	emails := make([]string, len(params.To))
	for i, r := range params.To {
		emails[i] = r.Email
	}
	id := "dry-run-" + uuid.NewString()
	m.log.WithFields(logrus.Fields{
		"to":         emails,
		"subject":    params.Subject,
		"message_id": id,
	}).Info("dry-run email send")
	return SendResult{Success: true, MessageID: id}
}
