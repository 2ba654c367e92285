package notification

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/smallbiznis/schoolfee/internal/providers/email"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var ErrNoRecipient = errors.New("guardian_has_no_email")

type EmailNotifier struct {
	provider email.Provider
	log      *zap.Logger
	tpl      *template.Template
}

func NewEmailNotifier(provider email.Provider, log *zap.Logger) (*EmailNotifier, error) {
	funcs := template.FuncMap{
		"formatDate": formatDate,
	}
	tpl, err := template.New("notification").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &EmailNotifier{
		provider: provider,
		log:      log.Named("notification.email"),
		tpl:      tpl,
	}, nil
}

func (n *EmailNotifier) InvoiceIssued(ctx context.Context, notice InvoiceNotice) error {
	return n.send(ctx, email.Message{
		To:      []string{notice.GuardianEmail},
		Subject: fmt.Sprintf("%s: fee invoice %s", notice.SchoolName, notice.InvoiceNumber),
		Text: fmt.Sprintf("Invoice %s for %s totals %s. Balance due %s by %s.",
			notice.InvoiceNumber, notice.TermName, notice.Total, notice.BalanceDue, formatDate(notice.DueDate)),
	}, "invoice_issued.html", notice)
}

func (n *EmailNotifier) PaymentRecorded(ctx context.Context, notice PaymentNotice) error {
	return n.send(ctx, email.Message{
		To:      []string{notice.GuardianEmail},
		Subject: fmt.Sprintf("%s: payment received for %s", notice.SchoolName, notice.InvoiceNumber),
		Text: fmt.Sprintf("We received %s on %s for invoice %s. Balance due %s.",
			notice.Amount, formatDate(notice.PaymentDate), notice.InvoiceNumber, notice.BalanceDue),
	}, "payment_recorded.html", notice)
}

// send renders the HTML body from the named template into msg.
func (n *EmailNotifier) send(ctx context.Context, msg email.Message, name string, data any) error {
	if len(msg.To) == 0 || strings.TrimSpace(msg.To[0]) == "" {
		return ErrNoRecipient
	}
	var body bytes.Buffer
	if err := n.tpl.ExecuteTemplate(&body, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	msg.HTML = body.String()
	if err := n.provider.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	n.log.Debug("notification sent", zap.String("template", name))
	return nil
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2 Jan 2006")
}
