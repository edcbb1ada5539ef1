package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// Client is a thin wrapper around stripe-go for PaymentIntent
// hold/capture/cancel flows on charged rides.
type Client struct{}

// NewClient sets the injected API key on the stripe SDK and returns
// the wrapper. Callers skip construction entirely when no key is
// configured; the charge path then settles without payment capture.
func NewClient(apiKey string) *Client {
	stripe.Key = apiKey
	return &Client{}
}

// Hold creates a PaymentIntent with capture_method=manual to hold
// funds for the fare. It returns the PaymentIntent ID on success.
func (c *Client) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (c *Client) Capture(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

// Cancel releases the hold on a PaymentIntent.
func (c *Client) Cancel(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}
