package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeClient talks to the Stripe REST API and verifies webhook signatures.
type StripeClient struct {
	secretKey          string
	webhookSecret      []byte
	signatureTolerance time.Duration
	http               *resty.Client
	logger             *zap.Logger
	now                func() time.Time
}

// StripeOption customises the client.
type StripeOption func(*StripeClient)

// WithBaseURL overrides the API endpoint (tests point it at a local server).
func WithBaseURL(url string) StripeOption {
	return func(c *StripeClient) {
		c.http.SetBaseURL(url)
	}
}

// WithClock overrides the time source used for signature tolerance checks.
func WithClock(now func() time.Time) StripeOption {
	return func(c *StripeClient) {
		c.now = now
	}
}

// NewStripeClient constructs a Stripe-backed Provider.
func NewStripeClient(secretKey, webhookSecret string, tolerance time.Duration, logger *zap.Logger, opts ...StripeOption) *StripeClient {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &StripeClient{
		secretKey:          secretKey,
		webhookSecret:      []byte(webhookSecret),
		signatureTolerance: tolerance,
		http:               resty.New().SetBaseURL(stripeAPIBase).SetTimeout(15 * time.Second),
		logger:             logger,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// CreateSession requests a hosted checkout session from Stripe.
func (c *StripeClient) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	form := map[string]string{
		"mode":                                           "payment",
		"payment_method_types[0]":                        "card",
		"line_items[0][quantity]":                        "1",
		"line_items[0][price_data][currency]":            req.Currency,
		"line_items[0][price_data][unit_amount]":         strconv.FormatInt(req.AmountMinor, 10),
		"line_items[0][price_data][product_data][name]":  req.ProductName,
		"success_url":                                    req.SuccessURL,
		"cancel_url":                                     req.CancelURL,
		"client_reference_id":                            req.ClientReference,
	}
	if req.Description != "" {
		form["line_items[0][price_data][product_data][description]"] = req.Description
	}
	for key, value := range req.Metadata {
		form[fmt.Sprintf("metadata[%s]", key)] = value
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.secretKey, "").
		SetFormData(form).
		Post("/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if resp.IsError() {
		c.logger.Warn("stripe checkout session rejected",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("create checkout session: stripe returned %d: %s", resp.StatusCode(), stripeErrorMessage(resp.Body()))
	}

	var session Session
	if err := json.Unmarshal(resp.Body(), &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("decode checkout session: missing id")
	}
	return &session, nil
}

// VerifyEvent validates the Stripe-Signature header against the raw body and
// decodes the event envelope. The signed payload is "<timestamp>.<raw body>"
// and the header carries "t=<unix>,v1=<hex hmac>[,v1=...]".
func (c *StripeClient) VerifyEvent(payload []byte, signatureHeader string) (*Event, error) {
	if len(c.webhookSecret) == 0 {
		return nil, fmt.Errorf("webhook secret not configured")
	}

	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}

	age := c.now().Sub(time.Unix(timestamp, 0))
	if age > c.signatureTolerance || age < -c.signatureTolerance {
		return nil, fmt.Errorf("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, c.webhookSecret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	matched := false
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("no matching v1 signature")
	}

	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	event := &Event{ID: envelope.ID, Type: envelope.Type}
	if len(envelope.Data.Object) > 0 {
		if err := json.Unmarshal(envelope.Data.Object, &event.Object); err != nil {
			return nil, fmt.Errorf("decode event object: %w", err)
		}
	}
	return event, nil
}

func parseSignatureHeader(header string) (int64, []string, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("missing signature header")
	}

	var timestamp int64 = -1
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			ts, err := strconv.ParseInt(pair[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid signature timestamp")
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, pair[1])
		}
	}
	if timestamp < 0 || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("malformed signature header")
	}
	return timestamp, signatures, nil
}

func stripeErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return "unknown error"
}
