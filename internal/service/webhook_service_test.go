package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
	"github.com/noah-isme/course-market-api/pkg/payment"
)

type stubWebhookPayments struct {
	payments  map[string]models.Payment
	succeeded map[string]string
	failed    []string
}

func (m *stubWebhookPayments) FindByProviderReference(ctx context.Context, reference string) (*models.Payment, error) {
	for _, p := range m.payments {
		if p.ProviderReference != nil && *p.ProviderReference == reference {
			found := p
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *stubWebhookPayments) FindLatestByEnrollment(ctx context.Context, enrollmentID string) (*models.Payment, error) {
	for _, p := range m.payments {
		if p.EnrollmentID == enrollmentID {
			found := p
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *stubWebhookPayments) MarkSucceeded(ctx context.Context, id, providerReference string) error {
	if m.succeeded == nil {
		m.succeeded = make(map[string]string)
	}
	m.succeeded[id] = providerReference
	if p, ok := m.payments[id]; ok {
		if p.Status != models.PaymentStatusFailed {
			p.Status = models.PaymentStatusSucceeded
			p.ProviderReference = &providerReference
			m.payments[id] = p
		}
	}
	return nil
}

func (m *stubWebhookPayments) MarkFailed(ctx context.Context, id string) error {
	m.failed = append(m.failed, id)
	if p, ok := m.payments[id]; ok && p.Status == models.PaymentStatusPending {
		p.Status = models.PaymentStatusFailed
		m.payments[id] = p
	}
	return nil
}

type stubWebhookEnrollments struct {
	paid []string
}

func (m *stubWebhookEnrollments) SetPaid(ctx context.Context, id string) error {
	m.paid = append(m.paid, id)
	return nil
}

type stubVerifier struct {
	event *payment.Event
	err   error
}

func (m *stubVerifier) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *stubVerifier) VerifyEvent(payload []byte, signatureHeader string) (*payment.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.event, nil
}

type stubReceipts struct {
	enqueued []string
}

func (m *stubReceipts) EnqueueReceipt(paymentID string) {
	m.enqueued = append(m.enqueued, paymentID)
}

func sessionRef(ref string) *string { return &ref }

func TestWebhookRejectsBadSignatureWithoutMutation(t *testing.T) {
	payments := &stubWebhookPayments{payments: map[string]models.Payment{
		"p1": {ID: "p1", EnrollmentID: "e1", Status: models.PaymentStatusPending, ProviderReference: sessionRef("cs_123")},
	}}
	enrollments := &stubWebhookEnrollments{}
	verifier := &stubVerifier{err: fmt.Errorf("signature mismatch")}
	svc := NewWebhookService(verifier, payments, enrollments, nil, nil, zap.NewNop())

	err := svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=bad")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSignature.Code, appErrors.FromError(err).Code)
	assert.Empty(t, payments.succeeded)
	assert.Empty(t, enrollments.paid)
}

func TestWebhookCheckoutCompletedReconcilesPayment(t *testing.T) {
	payments := &stubWebhookPayments{payments: map[string]models.Payment{
		"p1": {ID: "p1", EnrollmentID: "e1", Status: models.PaymentStatusPending, ProviderReference: sessionRef("cs_123")},
	}}
	enrollments := &stubWebhookEnrollments{}
	receipts := &stubReceipts{}
	verifier := &stubVerifier{event: &payment.Event{
		ID:   "evt_1",
		Type: payment.EventCheckoutCompleted,
		Object: payment.EventObject{
			ID:            "cs_123",
			PaymentIntent: "pi_456",
			Metadata:      map[string]string{payment.MetadataEnrollmentKey: "e1"},
		},
	}}
	svc := NewWebhookService(verifier, payments, enrollments, receipts, nil, zap.NewNop())

	err := svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=good")
	require.NoError(t, err)

	assert.Equal(t, "pi_456", payments.succeeded["p1"])
	assert.Equal(t, []string{"e1"}, enrollments.paid)
	assert.Equal(t, []string{"p1"}, receipts.enqueued)
}

func TestWebhookFallsBackToEnrollmentMetadata(t *testing.T) {
	payments := &stubWebhookPayments{payments: map[string]models.Payment{
		"p1": {ID: "p1", EnrollmentID: "e1", Status: models.PaymentStatusPending, ProviderReference: sessionRef("cs_other")},
	}}
	enrollments := &stubWebhookEnrollments{}
	verifier := &stubVerifier{event: &payment.Event{
		ID:   "evt_2",
		Type: payment.EventPaymentIntentSucceeded,
		Object: payment.EventObject{
			ID:       "pi_789",
			Metadata: map[string]string{payment.MetadataEnrollmentKey: "e1"},
		},
	}}
	svc := NewWebhookService(verifier, payments, enrollments, nil, nil, zap.NewNop())

	err := svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=good")
	require.NoError(t, err)
	assert.Equal(t, "pi_789", payments.succeeded["p1"])
	assert.Equal(t, []string{"e1"}, enrollments.paid)
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	payments := &stubWebhookPayments{payments: map[string]models.Payment{
		"p1": {ID: "p1", EnrollmentID: "e1", Status: models.PaymentStatusPending, ProviderReference: sessionRef("cs_123")},
	}}
	enrollments := &stubWebhookEnrollments{}
	verifier := &stubVerifier{event: &payment.Event{
		ID:   "evt_1",
		Type: payment.EventCheckoutCompleted,
		Object: payment.EventObject{
			ID:            "cs_123",
			PaymentIntent: "pi_456",
			Metadata:      map[string]string{payment.MetadataEnrollmentKey: "e1"},
		},
	}}
	svc := NewWebhookService(verifier, payments, enrollments, nil, nil, zap.NewNop())

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=good"))
	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=good"))

	assert.Equal(t, models.PaymentStatusSucceeded, payments.payments["p1"].Status)
	assert.Equal(t, "pi_456", payments.succeeded["p1"])
}

func TestWebhookExpiredSessionMarksPaymentFailed(t *testing.T) {
	payments := &stubWebhookPayments{payments: map[string]models.Payment{
		"p1": {ID: "p1", EnrollmentID: "e1", Status: models.PaymentStatusPending, ProviderReference: sessionRef("cs_123")},
	}}
	enrollments := &stubWebhookEnrollments{}
	receipts := &stubReceipts{}
	verifier := &stubVerifier{event: &payment.Event{
		ID:   "evt_4",
		Type: payment.EventCheckoutExpired,
		Object: payment.EventObject{
			ID:       "cs_123",
			Metadata: map[string]string{payment.MetadataEnrollmentKey: "e1"},
		},
	}}
	svc := NewWebhookService(verifier, payments, enrollments, receipts, nil, zap.NewNop())

	err := svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=good")
	require.NoError(t, err)

	assert.Equal(t, []string{"p1"}, payments.failed)
	assert.Equal(t, models.PaymentStatusFailed, payments.payments["p1"].Status)
	assert.Empty(t, payments.succeeded)
	assert.Empty(t, enrollments.paid)
	assert.Empty(t, receipts.enqueued)
}

func TestWebhookPaymentFailedWithUnknownReferenceIsAcknowledged(t *testing.T) {
	payments := &stubWebhookPayments{}
	enrollments := &stubWebhookEnrollments{}
	verifier := &stubVerifier{event: &payment.Event{
		ID:     "evt_5",
		Type:   payment.EventPaymentIntentFailed,
		Object: payment.EventObject{ID: "pi_unknown"},
	}}
	svc := NewWebhookService(verifier, payments, enrollments, nil, nil, zap.NewNop())

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=good"))
	assert.Empty(t, payments.failed)
	assert.Empty(t, enrollments.paid)
}

func TestWebhookUnknownEventTypeIsAcknowledged(t *testing.T) {
	payments := &stubWebhookPayments{}
	enrollments := &stubWebhookEnrollments{}
	verifier := &stubVerifier{event: &payment.Event{ID: "evt_9", Type: "invoice.created"}}
	svc := NewWebhookService(verifier, payments, enrollments, nil, nil, zap.NewNop())

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=good"))
	assert.Empty(t, payments.succeeded)
	assert.Empty(t, enrollments.paid)
}

func TestWebhookUnmatchedReferenceIsAcknowledged(t *testing.T) {
	payments := &stubWebhookPayments{}
	enrollments := &stubWebhookEnrollments{}
	verifier := &stubVerifier{event: &payment.Event{
		ID:     "evt_3",
		Type:   payment.EventCheckoutCompleted,
		Object: payment.EventObject{ID: "cs_unknown"},
	}}
	svc := NewWebhookService(verifier, payments, enrollments, nil, nil, zap.NewNop())

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=good"))
	assert.Empty(t, payments.succeeded)
	assert.Empty(t, enrollments.paid)
}
