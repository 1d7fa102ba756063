// Package reservation implements spec.md §4.6, the transactional
// direct-booking core: lock-guarded creation, price computation, the
// payment-intent lifecycle, and timeout expiry. The payment processor
// itself is out of scope (spec.md §1); PaymentClient is the narrow
// interface this package requires of it.
package reservation

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// PaymentIntent mirrors the subset of a processor's payment-intent
// resource the reservation flow depends on.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string // requires_payment_method | succeeded | canceled | ...
	Amount       decimal.Decimal
	Currency     string
}

// PaymentClient is implemented against the (out-of-scope) payment
// processor's REST API.
type PaymentClient interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (PaymentIntent, error)
	RetrieveIntent(ctx context.Context, id string) (PaymentIntent, error)
	CancelIntent(ctx context.Context, id string) error
	Refund(ctx context.Context, paymentIntentID string, amount decimal.Decimal) error
}

// RESTPaymentClient talks to a Stripe-shaped payment-intents API over
// the same shared resty client convention the channel adapters use.
type RESTPaymentClient struct {
	client  *resty.Client
	baseURL string
	apiKey  string
}

func NewRESTPaymentClient(client *resty.Client, baseURL, apiKey string) *RESTPaymentClient {
	return &RESTPaymentClient{client: client, baseURL: baseURL, apiKey: apiKey}
}

func (p *RESTPaymentClient) request(ctx context.Context) *resty.Request {
	return p.client.R().SetContext(ctx).SetAuthToken(p.apiKey).SetHeader("Content-Type", "application/x-www-form-urlencoded")
}

type paymentIntentPayload struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

func (p *RESTPaymentClient) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (PaymentIntent, error) {
	form := map[string]string{
		"amount":   amount.Mul(decimal.NewFromInt(100)).StringFixed(0),
		"currency": currency,
	}
	for k, v := range metadata {
		form["metadata["+k+"]"] = v
	}
	var out paymentIntentPayload
	resp, err := p.request(ctx).SetFormData(form).SetResult(&out).Post(p.baseURL + "/v1/payment_intents")
	if err != nil {
		return PaymentIntent{}, err
	}
	if resp.IsError() {
		return PaymentIntent{}, fmt.Errorf("create payment intent: status %d", resp.StatusCode())
	}
	return toIntent(out), nil
}

func (p *RESTPaymentClient) RetrieveIntent(ctx context.Context, id string) (PaymentIntent, error) {
	var out paymentIntentPayload
	resp, err := p.request(ctx).SetResult(&out).Get(p.baseURL + "/v1/payment_intents/" + id)
	if err != nil {
		return PaymentIntent{}, err
	}
	if resp.IsError() {
		return PaymentIntent{}, fmt.Errorf("retrieve payment intent: status %d", resp.StatusCode())
	}
	return toIntent(out), nil
}

func (p *RESTPaymentClient) CancelIntent(ctx context.Context, id string) error {
	resp, err := p.request(ctx).Post(p.baseURL + "/v1/payment_intents/" + id + "/cancel")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("cancel payment intent: status %d", resp.StatusCode())
	}
	return nil
}

func (p *RESTPaymentClient) Refund(ctx context.Context, paymentIntentID string, amount decimal.Decimal) error {
	form := map[string]string{
		"payment_intent": paymentIntentID,
		"amount":         amount.Mul(decimal.NewFromInt(100)).StringFixed(0),
	}
	resp, err := p.request(ctx).SetFormData(form).Post(p.baseURL + "/v1/refunds")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("refund: status %d", resp.StatusCode())
	}
	return nil
}

func toIntent(p paymentIntentPayload) PaymentIntent {
	return PaymentIntent{
		ID:           p.ID,
		ClientSecret: p.ClientSecret,
		Status:       p.Status,
		Amount:       decimal.NewFromInt(p.Amount).Div(decimal.NewFromInt(100)),
		Currency:     p.Currency,
	}
}
