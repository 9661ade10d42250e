package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signPayload(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestStripeClientCreateSession(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test_123", user)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_123","url":"https://checkout.example/cs_123"}`)
	}))
	defer server.Close()

	client := NewStripeClient("sk_test_123", "whsec_test", time.Minute, nil, WithBaseURL(server.URL))

	session, err := client.CreateSession(context.Background(), SessionRequest{
		AmountMinor:     4999,
		Currency:        "usd",
		ProductName:     "Go Deep",
		SuccessURL:      "https://app.example/success",
		CancelURL:       "https://app.example/cancel",
		ClientReference: "e1",
		Metadata:        map[string]string{MetadataEnrollmentKey: "e1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_123", session.ID)
	assert.Equal(t, "https://checkout.example/cs_123", session.URL)

	assert.Equal(t, "payment", gotForm.Get("mode"))
	assert.Equal(t, "4999", gotForm.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "usd", gotForm.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "e1", gotForm.Get("metadata[enrollmentId]"))
	assert.Equal(t, "e1", gotForm.Get("client_reference_id"))
}

func TestStripeClientCreateSessionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"invalid amount"}}`)
	}))
	defer server.Close()

	client := NewStripeClient("sk_test_123", "whsec_test", time.Minute, nil, WithBaseURL(server.URL))

	_, err := client.CreateSession(context.Background(), SessionRequest{AmountMinor: -1, Currency: "usd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid amount")
}

func TestStripeClientVerifyEvent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_123","payment_intent":"pi_456","metadata":{"enrollmentId":"e1"}}}}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signPayload("whsec_test", now.Unix(), payload))

	client := NewStripeClient("sk_test_123", "whsec_test", 5*time.Minute, nil, WithClock(fixedClock(now)))

	event, err := client.VerifyEvent(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventCheckoutCompleted, event.Type)
	assert.Equal(t, "cs_123", event.Object.ID)
	assert.Equal(t, "pi_456", event.Object.PaymentIntent)
	assert.Equal(t, "e1", event.Object.Metadata[MetadataEnrollmentKey])
}

func TestStripeClientVerifyEventBadSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signPayload("other_secret", now.Unix(), payload))

	client := NewStripeClient("sk_test_123", "whsec_test", 5*time.Minute, nil, WithClock(fixedClock(now)))

	_, err := client.VerifyEvent(payload, header)
	require.Error(t, err)
}

func TestStripeClientVerifyEventTamperedBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signPayload("whsec_test", now.Unix(), payload))

	client := NewStripeClient("sk_test_123", "whsec_test", 5*time.Minute, nil, WithClock(fixedClock(now)))

	tampered := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	_, err := client.VerifyEvent(tampered, header)
	require.Error(t, err)
}

func TestStripeClientVerifyEventExpiredTimestamp(t *testing.T) {
	signedAt := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	header := fmt.Sprintf("t=%d,v1=%s", signedAt.Unix(), signPayload("whsec_test", signedAt.Unix(), payload))

	client := NewStripeClient("sk_test_123", "whsec_test", 5*time.Minute, nil,
		WithClock(fixedClock(signedAt.Add(10*time.Minute))))

	_, err := client.VerifyEvent(payload, header)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tolerance")
}

func TestStripeClientVerifyEventMalformedHeader(t *testing.T) {
	client := NewStripeClient("sk_test_123", "whsec_test", 5*time.Minute, nil)

	_, err := client.VerifyEvent([]byte(`{}`), "")
	require.Error(t, err)

	_, err = client.VerifyEvent([]byte(`{}`), "v1=deadbeef")
	require.Error(t, err)

	_, err = client.VerifyEvent([]byte(`{}`), "t=123")
	require.Error(t, err)
}
