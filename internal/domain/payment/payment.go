// Package payment defines the contract boundary with the upstream payment
// provider: an amount in minor units goes in, an intent comes out.
package payment

import "context"

// Intent is a provider-side payment intent awaiting client confirmation.
type Intent struct {
	ID           string
	ClientSecret string
}

// Provider creates payment intents. Failures are ordinary errors; the caller
// decides what happens to already-persisted state.
type Provider interface {
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (*Intent, error)
}
