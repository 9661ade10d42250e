package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
	"github.com/noah-isme/course-market-api/pkg/payment"
)

type checkoutEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	SetPaid(ctx context.Context, id string) error
}

type checkoutCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type checkoutPaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
}

type checkoutMetrics interface {
	ObserveCheckout(outcome string)
	ObservePayment(status string)
}

// CheckoutConfig carries the checkout defaults taken from configuration.
type CheckoutConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// SessionResult is the outcome of a checkout request. For paid courses the
// URL and SessionID point at the provider-hosted flow; for free courses the
// enrollment is activated immediately and Message explains that no payment
// was needed.
type SessionResult struct {
	URL        string             `json:"url,omitempty"`
	SessionID  string             `json:"session_id,omitempty"`
	Message    string             `json:"message,omitempty"`
	Enrollment *models.Enrollment `json:"enrollment,omitempty"`
	Free       bool               `json:"-"`
}

// CheckoutService orchestrates payment initiation for enrollments.
type CheckoutService struct {
	enrollments checkoutEnrollmentRepository
	courses     checkoutCourseRepository
	payments    checkoutPaymentRepository
	provider    payment.Provider
	metrics     checkoutMetrics
	config      CheckoutConfig
	logger      *zap.Logger
}

// NewCheckoutService constructs a CheckoutService instance.
func NewCheckoutService(enrollments checkoutEnrollmentRepository, courses checkoutCourseRepository, payments checkoutPaymentRepository, provider payment.Provider, metrics checkoutMetrics, config CheckoutConfig, logger *zap.Logger) *CheckoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Currency == "" {
		config.Currency = "usd"
	}
	return &CheckoutService{
		enrollments: enrollments,
		courses:     courses,
		payments:    payments,
		provider:    provider,
		metrics:     metrics,
		config:      config,
		logger:      logger,
	}
}

// CreateSession starts payment for an enrollment. Free courses are settled
// synchronously without contacting the provider. Paid courses get a hosted
// session; the pending payment row is persisted with the session id before
// the URL is returned, so a webhook can never arrive for an unknown session.
func (s *CheckoutService) CreateSession(ctx context.Context, req models.CheckoutSessionRequest, actor *models.JWTClaims) (*SessionResult, error) {
	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found for enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if course.Free() {
		return s.settleFree(ctx, enrollment)
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = s.config.SuccessURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = s.config.CancelURL
	}

	amountMinor := int64(math.Round(course.Price * 100))
	session, err := s.provider.CreateSession(ctx, payment.SessionRequest{
		AmountMinor:     amountMinor,
		Currency:        s.config.Currency,
		ProductName:     course.Title,
		Description:     fmt.Sprintf("Enrollment in %s", course.Title),
		SuccessURL:      successURL,
		CancelURL:       cancelURL,
		ClientReference: enrollment.ID,
		Metadata:        map[string]string{payment.MetadataEnrollmentKey: enrollment.ID},
	})
	if err != nil {
		s.observeCheckout("provider_error")
		return nil, appErrors.Wrap(err, appErrors.ErrProvider.Code, appErrors.ErrProvider.Status, "failed to create checkout session")
	}

	record := &models.Payment{
		EnrollmentID:      enrollment.ID,
		Amount:            course.Price,
		Provider:          models.PaymentProviderStripe,
		ProviderReference: &session.ID,
		Status:            models.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, record); err != nil {
		s.observeCheckout("storage_error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist payment")
	}

	s.observeCheckout("session_created")
	s.observePayment(string(models.PaymentStatusPending))
	s.logger.Info("checkout session created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("session_id", session.ID),
		zap.Int64("amount_minor", amountMinor))

	return &SessionResult{URL: session.URL, SessionID: session.ID}, nil
}

func (s *CheckoutService) settleFree(ctx context.Context, enrollment *models.Enrollment) (*SessionResult, error) {
	if err := s.enrollments.SetPaid(ctx, enrollment.ID); err != nil {
		s.observeCheckout("storage_error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate enrollment")
	}

	record := &models.Payment{
		EnrollmentID: enrollment.ID,
		Amount:       0,
		Provider:     models.PaymentProviderFree,
		Status:       models.PaymentStatusSucceeded,
	}
	if err := s.payments.Create(ctx, record); err != nil {
		s.observeCheckout("storage_error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist payment")
	}

	enrollment.Paid = true
	s.observeCheckout("free")
	s.observePayment(string(models.PaymentStatusSucceeded))
	s.logger.Info("free enrollment activated", zap.String("enrollment_id", enrollment.ID))

	return &SessionResult{
		Message:    "course is free, enrollment activated",
		Enrollment: enrollment,
		Free:       true,
	}, nil
}

func (s *CheckoutService) observeCheckout(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveCheckout(outcome)
	}
}

func (s *CheckoutService) observePayment(status string) {
	if s.metrics != nil {
		s.metrics.ObservePayment(status)
	}
}
