// Package payment integrates the external card gateway: intent creation
// on the outbound side and idempotent webhook settlement on the inbound
// side.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"storefront/internal/config"
	"storefront/internal/model"
)

// GatewayClient creates payment intents at the card gateway.
type GatewayClient interface {
	// CreateIntent registers a charge for the order and returns the
	// gateway's intent reference.
	CreateIntent(ctx context.Context, orderID uuid.UUID, amountCents int64, currency string) (string, error)
}

// httpGateway talks to the gateway's REST API with retries on transient
// failures. An empty base URL switches to local mode, where references are
// minted locally; useful for development against the webhook simulator.
type httpGateway struct {
	client  *retryablehttp.Client
	baseURL string
	apiKey  string
	logger  zerolog.Logger
}

// NewGateway creates a gateway client from configuration.
func NewGateway(cfg config.GatewayConfig, logger zerolog.Logger) GatewayClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	return &httpGateway{
		client:  client,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

type intentRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type intentResponse struct {
	IntentRef string `json:"intent_ref"`
}

// CreateIntent registers a charge at the gateway.
func (g *httpGateway) CreateIntent(ctx context.Context, orderID uuid.UUID, amountCents int64, currency string) (string, error) {
	if g.baseURL == "" {
		ref := "local-" + uuid.NewString()
		g.logger.Warn().
			Str("order_id", orderID.String()).
			Str("intent_ref", ref).
			Msg("no gateway configured, minted local intent reference")
		return ref, nil
	}

	body, err := json.Marshal(intentRequest{
		OrderID:     orderID.String(),
		AmountCents: amountCents,
		Currency:    currency,
	})
	if err != nil {
		return "", fmt.Errorf("marshal intent request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/intents", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("gateway request failed")
		return "", model.ErrPaymentGateway
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Error().
			Int("status", resp.StatusCode).
			Str("order_id", orderID.String()).
			Msg("gateway rejected intent")
		return "", model.ErrPaymentGateway
	}

	var out intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode intent response: %w", err)
	}
	if out.IntentRef == "" {
		return "", model.ErrPaymentGateway
	}

	return out.IntentRef, nil
}
