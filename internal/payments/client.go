package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/ovasilenko/chatmarket-backend/pkg/config"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// httpDoer lets tests stub the transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the external crypto payment processor's REST API.
type Client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	http        httpDoer
}

func NewClient(cfg config.PaymentsConfig) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
		http:        &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// NewClientWithDoer is the test constructor.
func NewClientWithDoer(cfg config.PaymentsConfig, doer httpDoer) *Client {
	c := NewClient(cfg)
	c.http = doer
	return c
}

// Estimate is the processor's conversion quote for a fiat amount.
type Estimate struct {
	EstimatedAmount decimal.Decimal `json:"estimated_amount"`
	CurrencyFrom    string          `json:"currency_from"`
	CurrencyTo      string          `json:"currency_to"`
}

// MinAmount is the processor's floor for a currency pair.
type MinAmount struct {
	MinAmount decimal.Decimal `json:"min_amount"`
}

// Intent is a created payment the buyer can fund.
type Intent struct {
	PaymentID   json.Number     `json:"payment_id"`
	PayAddress  string          `json:"pay_address"`
	PayAmount   decimal.Decimal `json:"pay_amount"`
	PayCurrency string          `json:"pay_currency"`
	OrderID     string          `json:"order_id"`
}

// EstimateConversion quotes how much of the asset covers the fiat amount.
func (c *Client) EstimateConversion(ctx context.Context, fiatAmount decimal.Decimal, fiatCurrency, asset string) (*Estimate, error) {
	query := url.Values{}
	query.Set("amount", fiatAmount.String())
	query.Set("currency_from", fiatCurrency)
	query.Set("currency_to", asset)

	var out Estimate
	if err := c.get(ctx, "/estimate?"+query.Encode(), &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "estimating asset conversion")
	}
	if out.EstimatedAmount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "processor returned non-positive estimate")
	}
	return &out, nil
}

// MinimumAmount returns the smallest fiat amount the processor accepts for
// the currency pair.
func (c *Client) MinimumAmount(ctx context.Context, fiatCurrency, asset string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("currency_from", asset)
	query.Set("currency_to", fiatCurrency)

	var out MinAmount
	if err := c.get(ctx, "/min-amount?"+query.Encode(), &out); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetching processor minimum")
	}
	return out.MinAmount, nil
}

type createIntentRequest struct {
	PriceAmount      decimal.Decimal `json:"price_amount"`
	PriceCurrency    string          `json:"price_currency"`
	PayCurrency      string          `json:"pay_currency"`
	OrderID          string          `json:"order_id"`
	OrderDescription string          `json:"order_description,omitempty"`
	IPNCallbackURL   string          `json:"ipn_callback_url"`
}

// CreateIntent opens a payment with the processor. The order reference ties
// the processor's payment back to our pending settlement.
func (c *Client) CreateIntent(ctx context.Context, fiatAmount decimal.Decimal, fiatCurrency, asset, orderReference, description string) (*Intent, error) {
	body := createIntentRequest{
		PriceAmount:    fiatAmount,
		PriceCurrency:  fiatCurrency,
		PayCurrency:    asset,
		OrderID:        orderReference,
		IPNCallbackURL: c.callbackURL,
	}
	if description != "" {
		body.OrderDescription = description
	}

	var out Intent
	if err := c.post(ctx, "/payment", body, &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating payment intent")
	}
	if out.PaymentID.String() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "processor returned intent without payment id")
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out, true)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	// A replayed POST could open a duplicate intent, so only reads retry.
	return c.do(req, out, false)
}

func (c *Client) do(req *http.Request, out any, retryTransient bool) error {
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err == nil && retryTransient && resp.StatusCode >= http.StatusInternalServerError {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		resp, err = c.http.Do(req)
	}
	if err != nil {
		return fmt.Errorf("calling processor: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading processor response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("processor responded %d: %s", resp.StatusCode, truncate(payload, 256))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding processor response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
