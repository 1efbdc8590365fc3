package dispatcher

import (
	"context"
	"fmt"
	"time"

	"mfaengine/internal/models"

	"github.com/go-resty/resty/v2"
)

type smsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type smsResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HTTPSMSSender posts messages to a JSON SMS gateway.
type HTTPSMSSender struct {
	client   *resty.Client
	endpoint string
	sender   string
	issuer   string
}

func NewHTTPSMSSender(config models.SMSGatewayConfiguration, issuer string) *HTTPSMSSender {
	client := resty.New().
		SetTimeout(time.Duration(config.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json")
	if config.Token != "" {
		client.SetAuthToken(config.Token)
	}

	return &HTTPSMSSender{
		client:   client,
		endpoint: config.Endpoint,
		sender:   config.Sender,
		issuer:   issuer,
	}
}

func (s *HTTPSMSSender) Send(ctx context.Context, target string, code string, _ models.Channel) (models.DispatchResult, error) {
	var result smsResponse

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(smsRequest{From: s.sender, To: target, Body: codeMessage(s.issuer, code)}).
		SetResult(&result).
		Post(s.endpoint)
	if err != nil {
		return models.DispatchResult{}, fmt.Errorf("sms gateway request failed: %w", err)
	}
	if resp.IsError() {
		return models.DispatchResult{}, fmt.Errorf("sms gateway returned status %d", resp.StatusCode())
	}

	return models.DispatchResult{Delivered: true, ProviderRef: result.ID}, nil
}
