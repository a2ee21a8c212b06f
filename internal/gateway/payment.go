// Package gateway holds clients for external services the checkout flow
// depends on.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/velora/storefront/internal/domain/payment"
)

var _ payment.Provider = (*PaymentClient)(nil)

// PaymentClient implements payment.Provider against a provider-agnostic
// intent endpoint: POST {baseURL}/v1/payment_intents with a JSON body.
type PaymentClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewPaymentClient creates a client for the payment provider at baseURL.
// Outbound requests are traced via otelhttp.
func NewPaymentClient(baseURL, apiKey string) *PaymentClient {
	return &PaymentClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CreateIntent asks the provider for a payment intent covering the amount.
func (c *PaymentClient) CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (*payment.Intent, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(amountMinorUnits) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(currency) })
		e.Field("metadata", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for k, v := range metadata {
					e.Field(k, func(e *jx.Encoder) { e.Str(v) })
				}
			})
		})
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "build intent request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read intent response")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Errorf("payment provider returned %d: %s", resp.StatusCode, body)
	}

	intent, err := decodeIntent(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode intent response")
	}
	return intent, nil
}

func decodeIntent(body []byte) (*payment.Intent, error) {
	var intent payment.Intent
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			intent.ID = v
			return err
		case "client_secret":
			v, err := d.Str()
			intent.ClientSecret = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if intent.ID == "" {
		return nil, fmt.Errorf("intent response missing id")
	}
	return &intent, nil
}
