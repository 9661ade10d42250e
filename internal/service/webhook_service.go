package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
	"github.com/noah-isme/course-market-api/pkg/payment"
)

type webhookPaymentRepository interface {
	FindByProviderReference(ctx context.Context, reference string) (*models.Payment, error)
	FindLatestByEnrollment(ctx context.Context, enrollmentID string) (*models.Payment, error)
	MarkSucceeded(ctx context.Context, id, providerReference string) error
	MarkFailed(ctx context.Context, id string) error
}

type webhookEnrollmentRepository interface {
	SetPaid(ctx context.Context, id string) error
}

type webhookMetrics interface {
	ObserveWebhookEvent(eventType, outcome string)
	ObservePayment(status string)
}

type receiptEnqueuer interface {
	EnqueueReceipt(paymentID string)
}

// WebhookService reconciles provider notifications with local payment and
// enrollment state. Every mutation it performs is idempotent, so redelivered
// events converge on the same state.
type WebhookService struct {
	provider    payment.Provider
	payments    webhookPaymentRepository
	enrollments webhookEnrollmentRepository
	receipts    receiptEnqueuer
	metrics     webhookMetrics
	logger      *zap.Logger
}

// NewWebhookService constructs a WebhookService instance.
func NewWebhookService(provider payment.Provider, payments webhookPaymentRepository, enrollments webhookEnrollmentRepository, receipts receiptEnqueuer, metrics webhookMetrics, logger *zap.Logger) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookService{
		provider:    provider,
		payments:    payments,
		enrollments: enrollments,
		receipts:    receipts,
		metrics:     metrics,
		logger:      logger,
	}
}

// HandleEvent verifies the raw webhook body and applies the event. A nil
// return means the event was processed or deliberately acknowledged; the
// caller responds with a receipt acknowledgement either way. Signature
// failures reject the delivery before any state is read or written.
func (s *WebhookService) HandleEvent(ctx context.Context, rawBody []byte, signatureHeader string) error {
	event, err := s.provider.VerifyEvent(rawBody, signatureHeader)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrSignature.Code, appErrors.ErrSignature.Status, "webhook signature verification failed")
	}

	switch event.Type {
	case payment.EventCheckoutCompleted:
		return s.applyCompletion(ctx, event, event.Object.ID)
	case payment.EventPaymentIntentSucceeded:
		return s.applyCompletion(ctx, event, event.Object.ID)
	case payment.EventCheckoutExpired:
		return s.applyFailure(ctx, event, event.Object.ID)
	case payment.EventPaymentIntentFailed:
		return s.applyFailure(ctx, event, event.Object.ID)
	default:
		s.observe(event.Type, "ignored")
		s.logger.Debug("ignoring webhook event", zap.String("event_type", event.Type), zap.String("event_id", event.ID))
		return nil
	}
}

// applyCompletion marks the payment succeeded and the enrollment paid. The
// payment is resolved by the reference stored at checkout time; when the
// provider has already rewritten it, the enrollment id carried in the event
// metadata is the fallback. The final reference recorded is the payment
// intent when present, otherwise the event object id.
func (s *WebhookService) applyCompletion(ctx context.Context, event *payment.Event, reference string) error {
	record, err := s.resolvePayment(ctx, event, reference)
	if err != nil {
		return err
	}
	if record == nil {
		s.observe(event.Type, "unmatched")
		s.logger.Warn("webhook event matched no payment",
			zap.String("event_type", event.Type),
			zap.String("event_id", event.ID),
			zap.String("reference", reference))
		return nil
	}

	finalReference := event.Object.PaymentIntent
	if finalReference == "" {
		finalReference = reference
	}

	if err := s.payments.MarkSucceeded(ctx, record.ID, finalReference); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	if err := s.enrollments.SetPaid(ctx, record.EnrollmentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate enrollment")
	}

	if s.receipts != nil {
		s.receipts.EnqueueReceipt(record.ID)
	}

	s.observe(event.Type, "processed")
	if s.metrics != nil {
		s.metrics.ObservePayment(string(models.PaymentStatusSucceeded))
	}
	s.logger.Info("payment reconciled",
		zap.String("payment_id", record.ID),
		zap.String("enrollment_id", record.EnrollmentID),
		zap.String("reference", finalReference))
	return nil
}

// applyFailure closes out a payment the provider reported as expired or
// declined. Only pending rows move to failed; a payment already reconciled
// by a success event is left alone, and the enrollment is never touched.
func (s *WebhookService) applyFailure(ctx context.Context, event *payment.Event, reference string) error {
	record, err := s.resolvePayment(ctx, event, reference)
	if err != nil {
		return err
	}
	if record == nil {
		s.observe(event.Type, "unmatched")
		s.logger.Warn("webhook event matched no payment",
			zap.String("event_type", event.Type),
			zap.String("event_id", event.ID),
			zap.String("reference", reference))
		return nil
	}

	if err := s.payments.MarkFailed(ctx, record.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}

	s.observe(event.Type, "processed")
	if s.metrics != nil {
		s.metrics.ObservePayment(string(models.PaymentStatusFailed))
	}
	s.logger.Info("payment marked failed",
		zap.String("payment_id", record.ID),
		zap.String("enrollment_id", record.EnrollmentID),
		zap.String("reference", reference))
	return nil
}

func (s *WebhookService) resolvePayment(ctx context.Context, event *payment.Event, reference string) (*models.Payment, error) {
	record, err := s.payments.FindByProviderReference(ctx, reference)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up payment")
	}

	enrollmentID := event.Object.Metadata[payment.MetadataEnrollmentKey]
	if enrollmentID == "" {
		return nil, nil
	}

	record, err = s.payments.FindLatestByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up payment")
	}
	return record, nil
}

func (s *WebhookService) observe(eventType, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveWebhookEvent(eventType, outcome)
	}
}
