package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/shopspring/decimal"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/internal/pkg/env"
)

// SendMail sends an email via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// SendInvoiceNotification informs the account owner about a freshly issued
// invoice. Failures are the caller's problem; invoicing never depends on mail.
func SendInvoiceNotification(to string, invoice *models.Invoice) error {
	subject := fmt.Sprintf("SnipFox invoice %s", invoice.Number)
	body := fmt.Sprintf(
		"<p>A new invoice has been issued for your account.</p>"+
			"<p>Invoice number: <strong>%s</strong><br>"+
			"Billing period: %s &ndash; %s<br>"+
			"Amount due: <strong>%s EUR</strong></p>"+
			"<p>You can review the full usage breakdown in your account.</p>",
		invoice.Number,
		invoice.PeriodStart.Format("2006-01-02"),
		invoice.PeriodEnd.Format("2006-01-02"),
		invoice.Amount.StringFixed(2),
	)
	return SendMail(to, subject, body)
}

// SendPaymentConfirmation confirms a settled invoice.
func SendPaymentConfirmation(to string, invoiceNumber string, amount decimal.Decimal) error {
	subject := fmt.Sprintf("Payment received for invoice %s", invoiceNumber)
	body := fmt.Sprintf(
		"<p>We received your payment of <strong>%s EUR</strong> for invoice %s.</p>"+
			"<p>Thank you!</p>",
		amount.StringFixed(2), invoiceNumber,
	)
	return SendMail(to, subject, body)
}
