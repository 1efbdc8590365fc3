package core

import (
	"fmt"

	"mfaengine/internal/dispatcher"
	"mfaengine/internal/models"
)

func newEmailSender(config models.EmailDispatcherConfiguration, issuer string) (dispatcher.IDispatcher, error) {
	switch config.Type {
	case "smtp":
		return dispatcher.NewSMTPSender(*config.SMTP, issuer), nil
	case "filesystem":
		return dispatcher.NewFilesystemSender(*config.Filesystem, issuer), nil
	default:
		return nil, fmt.Errorf("unsupported email dispatcher %q", config.Type)
	}
}

func newSMSSender(config models.SMSDispatcherConfiguration, issuer string) (dispatcher.IDispatcher, error) {
	switch config.Type {
	case "http":
		return dispatcher.NewHTTPSMSSender(*config.HTTP, issuer), nil
	case "filesystem":
		return dispatcher.NewFilesystemSender(*config.Filesystem, issuer), nil
	default:
		return nil, fmt.Errorf("unsupported sms dispatcher %q", config.Type)
	}
}

// NewDispatcher routes each channel to its sender, each behind the retry budget.
func NewDispatcher(config models.DispatcherConfiguration, issuer string) (dispatcher.IDispatcher, error) {
	email, err := newEmailSender(config.Email, issuer)
	if err != nil {
		return nil, err
	}
	sms, err := newSMSSender(config.SMS, issuer)
	if err != nil {
		return nil, err
	}

	return dispatcher.NewRouter(map[models.Channel]dispatcher.IDispatcher{
		models.ChannelEmail: dispatcher.NewRetryingDispatcher(email, config),
		models.ChannelSMS:   dispatcher.NewRetryingDispatcher(sms, config),
	}), nil
}
