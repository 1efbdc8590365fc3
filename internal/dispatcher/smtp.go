package dispatcher

import (
	"context"
	"crypto/tls"
	"fmt"

	"mfaengine/internal/models"

	"github.com/wneessen/go-mail"
)

type SMTPSender struct {
	config models.MailerConfiguration
	issuer string
}

func NewSMTPSender(config models.MailerConfiguration, issuer string) *SMTPSender {
	return &SMTPSender{config: config, issuer: issuer}
}

func (s *SMTPSender) newClient() (*mail.Client, error) {
	options := []mail.Option{mail.WithPort(s.config.Port)}

	if s.config.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
		)
	}

	if s.config.EnableTLS {
		options = append(options,
			mail.WithTLSPortPolicy(mail.TLSMandatory),
			mail.WithTLSConfig(&tls.Config{
				ServerName:         s.config.Host,
				InsecureSkipVerify: s.config.SkipVerifyTLS, //nolint:gosec // opt-in for local relays
				MinVersion:         tls.VersionTLS12,
			}),
		)
	} else {
		options = append(options, mail.WithTLSPortPolicy(mail.NoTLS))
	}

	return mail.NewClient(s.config.Host, options...)
}

func (s *SMTPSender) Send(ctx context.Context, target string, code string, _ models.Channel) (models.DispatchResult, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.config.Sender); err != nil {
		return models.DispatchResult{}, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(target); err != nil {
		return models.DispatchResult{}, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(emailSubject)
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, codeMessage(s.issuer, code))

	client, err := s.newClient()
	if err != nil {
		return models.DispatchResult{}, fmt.Errorf("failed to create mail client: %w", err)
	}

	if err = client.DialAndSendWithContext(ctx, msg); err != nil {
		return models.DispatchResult{}, fmt.Errorf("failed to send email: %w", err)
	}

	return models.DispatchResult{Delivered: true, ProviderRef: msg.GetMessageID()}, nil
}
