package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mfaengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSMSSender(t *testing.T) {
	t.Run("should post the message with a bearer token", func(t *testing.T) {
		var received smsRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"msg-42","status":"queued"}`))
		}))
		defer server.Close()

		s := NewHTTPSMSSender(models.SMSGatewayConfiguration{
			Endpoint:       server.URL,
			Token:          "secret-token",
			Sender:         "MFA",
			TimeoutSeconds: 5,
		}, "mfaengine")

		result, err := s.Send(context.Background(), "+14155550100", "123456", models.ChannelSMS)
		require.NoError(t, err)
		assert.True(t, result.Delivered)
		assert.Equal(t, "msg-42", result.ProviderRef)
		assert.Equal(t, "+14155550100", received.To)
		assert.Equal(t, "MFA", received.From)
		assert.Contains(t, received.Body, "123456")
	})

	t.Run("should fail on gateway errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		s := NewHTTPSMSSender(models.SMSGatewayConfiguration{Endpoint: server.URL, Sender: "MFA", TimeoutSeconds: 5}, "mfaengine")

		_, err := s.Send(context.Background(), "+14155550100", "123456", models.ChannelSMS)
		assert.Error(t, err)
	})
}
