package payments

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovasilenko/chatmarket-backend/pkg/config"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func testClient(doer httpDoer) *Client {
	return NewClientWithDoer(config.PaymentsConfig{
		BaseURL:        "https://processor.test/v1",
		APIKey:         "key-123",
		CallbackURL:    "https://api.test/webhooks/payments",
		RequestTimeout: time.Second,
	}, doer)
}

func TestEstimateConversion(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey string
	client := testClient(doerFunc(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		gotKey = req.Header.Get("x-api-key")
		return jsonResponse(http.StatusOK,
			`{"estimated_amount":"0.00123","currency_from":"eur","currency_to":"btc"}`), nil
	}))

	est, err := client.EstimateConversion(context.Background(), decimal.NewFromInt(45), "eur", "btc")
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !est.EstimatedAmount.Equal(decimal.RequireFromString("0.00123")) {
		t.Fatalf("unexpected amount %s", est.EstimatedAmount)
	}
	if gotPath != "/v1/estimate" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "key-123" {
		t.Fatalf("api key header not set, got %q", gotKey)
	}
}

func TestEstimateConversionRejectsNonPositive(t *testing.T) {
	t.Parallel()

	client := testClient(doerFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"estimated_amount":"0"}`), nil
	}))

	_, err := client.EstimateConversion(context.Background(), decimal.NewFromInt(45), "eur", "btc")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestGetRetriesOnceOnServerError(t *testing.T) {
	t.Parallel()

	calls := 0
	client := testClient(doerFunc(func(*http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusBadGateway, `oops`), nil
		}
		return jsonResponse(http.StatusOK, `{"min_amount":"11.5"}`), nil
	}))

	min, err := client.MinimumAmount(context.Background(), "eur", "btc")
	if err != nil {
		t.Fatalf("minimum amount: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
	if !min.Equal(decimal.RequireFromString("11.5")) {
		t.Fatalf("unexpected minimum %s", min)
	}
}

func TestPostDoesNotRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	client := testClient(doerFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusInternalServerError, `down`), nil
	}))

	_, err := client.CreateIntent(context.Background(),
		decimal.NewFromInt(45), "eur", "btc", "order-1", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("POST must not retry, got %d calls", calls)
	}
}

func TestCreateIntent(t *testing.T) {
	t.Parallel()

	var gotBody string
	client := testClient(doerFunc(func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		gotBody = string(raw)
		return jsonResponse(http.StatusCreated,
			`{"payment_id":5077125051,"pay_address":"addr","pay_amount":"0.0017","pay_currency":"btc","order_id":"order-1"}`), nil
	}))

	intent, err := client.CreateIntent(context.Background(),
		decimal.RequireFromString("45.5"), "eur", "btc", "order-1", "checkout")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.PaymentID.String() != "5077125051" {
		t.Fatalf("unexpected payment id %s", intent.PaymentID)
	}
	if !strings.Contains(gotBody, `"ipn_callback_url":"https://api.test/webhooks/payments"`) {
		t.Fatalf("callback url missing from body: %s", gotBody)
	}
	if !strings.Contains(gotBody, `"order_description":"checkout"`) {
		t.Fatalf("description missing from body: %s", gotBody)
	}
}

func TestCreateIntentWithoutPaymentID(t *testing.T) {
	t.Parallel()

	client := testClient(doerFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"pay_address":"addr"}`), nil
	}))

	_, err := client.CreateIntent(context.Background(),
		decimal.NewFromInt(45), "eur", "btc", "order-1", "")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
