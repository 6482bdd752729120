package senders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldline/automation-engine/pkg/config"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSMSSender(t *testing.T) {
	var got map[string]string
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewHTTPSMSSender(&config.ProviderConfig{
		SMSEndpoint: server.URL,
		SMSToken:    "secret",
		FromNumber:  "+15550000",
	}, nil, logger.NewForTesting())

	err := sender.SendSMS(context.Background(), "+15550100", "hello")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "+15550000", got["from"])
	assert.Equal(t, "+15550100", got["to"])
	assert.Equal(t, "hello", got["body"])
}

func TestHTTPEmailSenderProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewHTTPEmailSender(&config.ProviderConfig{
		EmailEndpoint: server.URL,
		FromEmail:     "noreply@example.com",
	}, nil, logger.NewForTesting())

	err := sender.SendEmail(context.Background(), "a@example.com", "subject", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPSMSSenderMissingEndpoint(t *testing.T) {
	sender := NewHTTPSMSSender(&config.ProviderConfig{}, nil, logger.NewForTesting())
	err := sender.SendSMS(context.Background(), "+15550100", "hello")
	assert.Error(t, err)
}
