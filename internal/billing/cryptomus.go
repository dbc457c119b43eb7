// Package billing sells plans through the Cryptomus crypto payment
// API: invoice creation, webhook signature verification and the plan
// catalog.
package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"helvetia/internal/pkg/errors"
)

const defaultBaseURL = "https://api.cryptomus.com/v1"

// Config carries the merchant credentials. The API key signs outgoing
// requests; the callback secret verifies incoming webhooks.
type Config struct {
	BaseURL        string
	Merchant       string
	APIKey         string
	CallbackSecret string
}

// Client talks to the payment provider. Safe for concurrent use.
type Client struct {
	baseURL        string
	merchant       string
	apiKey         string
	callbackSecret string
	client         *http.Client
}

func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL:        strings.TrimRight(base, "/"),
		merchant:       cfg.Merchant,
		apiKey:         cfg.APIKey,
		callbackSecret: cfg.CallbackSecret,
		client:         &http.Client{Timeout: 20 * time.Second},
	}
}

// InvoiceRequest describes one payment to collect.
type InvoiceRequest struct {
	Amount      string
	Currency    string
	OrderID     string
	Description string
	CallbackURL string
	SuccessURL  string
	FailURL     string
	CustomerID  int64
}

// Invoice is the created payment as the provider reports it.
type Invoice struct {
	UUID    string
	OrderID string
	URL     string
}

type invoicePayload struct {
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	OrderID            string `json:"order_id"`
	URLReturn          string `json:"url_return"`
	URLCallback        string `json:"url_callback"`
	URLSuccess         string `json:"url_success"`
	URLError           string `json:"url_error"`
	IsPaymentMultiple  bool   `json:"is_payment_multiple"`
	Network            string `json:"network"`
	CustomerTelegramID string `json:"customer_telegram_id"`
	Description        string `json:"description"`
}

type invoiceResponse struct {
	State  int `json:"state"`
	Result struct {
		UUID    string `json:"uuid"`
		OrderID string `json:"order_id"`
		URL     string `json:"url"`
	} `json:"result"`
	Message string `json:"message"`
}

// CreateInvoice registers a payment with the provider and returns the
// URL the customer pays at. The request body is signed with the API
// key; the exact bytes sent are the bytes signed.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	payload := invoicePayload{
		Amount:             req.Amount,
		Currency:           req.Currency,
		OrderID:            req.OrderID,
		URLReturn:          req.SuccessURL,
		URLCallback:        req.CallbackURL,
		URLSuccess:         req.SuccessURL,
		URLError:           req.FailURL,
		IsPaymentMultiple:  false,
		Network:            "USDT",
		CustomerTelegramID: strconv.FormatInt(req.CustomerID, 10),
		Description:        req.Description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode invoice payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build invoice request")
	}
	httpReq.Header.Set("merchant", c.merchant)
	httpReq.Header.Set("sign", signBody(c.apiKey, body))
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "create invoice")
	}
	defer res.Body.Close()

	var data invoiceResponse
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "decode invoice response")
	}

	if res.StatusCode >= 400 || data.State != 0 {
		return nil, errors.Newf(errors.CodeUnavailable, "failed to create invoice: %s", data.Message).
			WithField("http_status", res.StatusCode).
			WithField("state", data.State)
	}
	if data.Result.URL == "" {
		return nil, errors.New(errors.CodeUnavailable, "invoice has no payment url")
	}

	return &Invoice{
		UUID:    data.Result.UUID,
		OrderID: data.Result.OrderID,
		URL:     data.Result.URL,
	}, nil
}

// WebhookEvent is the payment status callback the provider POSTs to
// us. Amounts arrive as strings.
type WebhookEvent struct {
	UUID     string `json:"uuid"`
	OrderID  string `json:"order_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// InvoiceID returns the provider invoice id, falling back to the order
// id for events that omit the uuid.
func (e *WebhookEvent) InvoiceID() string {
	if e.UUID != "" {
		return e.UUID
	}
	return e.OrderID
}

// ParseWebhook decodes a webhook body. Verify the signature first.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "malformed webhook body")
	}
	return &ev, nil
}

// VerifyWebhook checks the sign header against the raw request body
// using the callback secret. Constant-time comparison.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	if c.callbackSecret == "" || signature == "" {
		return false
	}
	expected := signBody(c.callbackSecret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
