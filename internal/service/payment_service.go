package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
	"github.com/noah-isme/course-market-api/pkg/export"
	"github.com/noah-isme/course-market-api/pkg/jobs"
	"github.com/noah-isme/course-market-api/pkg/storage"
)

type paymentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	SetReceiptPath(ctx context.Context, id, path string) error
}

type paymentEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type paymentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type paymentUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type paymentMetrics interface {
	ObserveReceiptGeneration(duration time.Duration)
}

// PaymentListResult pairs a page of payments with pagination metadata.
type PaymentListResult struct {
	Payments   []models.Payment  `json:"payments"`
	Pagination models.Pagination `json:"pagination"`
}

// ReceiptLink is a time-limited download reference for a generated receipt.
type ReceiptLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PaymentServiceConfig tunes the receipt pipeline.
type PaymentServiceConfig struct {
	ReceiptsEnabled bool
	Currency        string
}

// PaymentService serves the admin audit views and owns the asynchronous
// receipt pipeline.
type PaymentService struct {
	repo        paymentRepository
	enrollments paymentEnrollmentRepository
	courses     paymentCourseRepository
	users       paymentUserRepository
	renderer    *export.ReceiptRenderer
	csv         *export.CSVExporter
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	queue       *jobs.Queue
	metrics     paymentMetrics
	config      PaymentServiceConfig
	logger      *zap.Logger
}

// NewPaymentService constructs a PaymentService. Call StartWorkers before
// enqueueing receipts and StopWorkers on shutdown.
func NewPaymentService(repo paymentRepository, enrollments paymentEnrollmentRepository, courses paymentCourseRepository, users paymentUserRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, metrics paymentMetrics, config PaymentServiceConfig, queueCfg jobs.QueueConfig, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PaymentService{
		repo:        repo,
		enrollments: enrollments,
		courses:     courses,
		users:       users,
		renderer:    export.NewReceiptRenderer(),
		csv:         export.NewCSVExporter(),
		store:       store,
		signer:      signer,
		metrics:     metrics,
		config:      config,
		logger:      logger,
	}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("receipts", s.handleReceiptJob, queueCfg)
	return s
}

// StartWorkers launches the receipt worker pool.
func (s *PaymentService) StartWorkers(ctx context.Context) {
	if s.config.ReceiptsEnabled {
		s.queue.Start(ctx)
	}
}

// StopWorkers drains the receipt worker pool.
func (s *PaymentService) StopWorkers() {
	if s.config.ReceiptsEnabled {
		s.queue.Stop()
	}
}

// List returns the payment audit page for admins.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter, actor *models.JWTClaims) (*PaymentListResult, error) {
	if err := RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}

	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}

	return &PaymentListResult{
		Payments: payments,
		Pagination: models.Pagination{
			Page:       normalizePage(filter.Page),
			PageSize:   normalizePageSize(filter.PageSize),
			TotalCount: total,
		},
	}, nil
}

// ExportCSV renders the filtered payment ledger as CSV for admins.
func (s *PaymentService) ExportCSV(ctx context.Context, filter models.PaymentFilter, actor *models.JWTClaims) ([]byte, error) {
	if err := RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}

	filter.Page = 1
	filter.PageSize = 100
	dataset := export.Dataset{
		Headers: []string{"id", "enrollment_id", "amount", "provider", "provider_reference", "status", "created_at"},
	}

	for {
		payments, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export payments")
		}
		for _, p := range payments {
			reference := ""
			if p.ProviderReference != nil {
				reference = *p.ProviderReference
			}
			dataset.Rows = append(dataset.Rows, map[string]string{
				"id":                 p.ID,
				"enrollment_id":      p.EnrollmentID,
				"amount":             fmt.Sprintf("%.2f", p.Amount),
				"provider":           p.Provider,
				"provider_reference": reference,
				"status":             string(p.Status),
				"created_at":         p.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(dataset.Rows) >= total || len(payments) == 0 {
			break
		}
		filter.Page++
	}

	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return data, nil
}

// EnqueueReceipt schedules asynchronous receipt generation for a payment.
func (s *PaymentService) EnqueueReceipt(paymentID string) {
	if !s.config.ReceiptsEnabled {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: "receipt", Payload: paymentID}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue receipt job", zap.String("payment_id", paymentID), zap.Error(err))
	}
}

// SignedReceiptURL issues a time-limited download link for a payment receipt.
// Only the student behind the enrollment or an admin may request it.
func (s *PaymentService) SignedReceiptURL(ctx context.Context, paymentID string, actor *models.JWTClaims) (*ReceiptLink, error) {
	record, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	enrollment, err := s.enrollments.FindByID(ctx, record.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := RequireOwner(actor, enrollment.StudentID); err != nil {
		return nil, err
	}

	if record.ReceiptPath == nil || *record.ReceiptPath == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "receipt not ready")
	}

	token, expiresAt, err := s.signer.Generate(record.ID, *record.ReceiptPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign receipt url")
	}

	return &ReceiptLink{
		Token:     token,
		URL:       fmt.Sprintf("/payments/receipts/download?token=%s", token),
		ExpiresAt: expiresAt,
	}, nil
}

// OpenReceipt validates a download token and opens the receipt file.
func (s *PaymentService) OpenReceipt(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid receipt token")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "receipt file not found")
	}
	return file, nil
}

// CleanupReceipts removes receipt files older than the provided TTL.
func (s *PaymentService) CleanupReceipts(ttl time.Duration) {
	deleted, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("receipt cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("receipt cleanup completed", zap.Int("deleted", len(deleted)))
	}
}

func (s *PaymentService) handleReceiptJob(ctx context.Context, job jobs.Job) error {
	paymentID, ok := job.Payload.(string)
	if !ok || paymentID == "" {
		s.logger.Warn("receipt job carried no payment id", zap.String("job_id", job.ID))
		return nil
	}
	return s.generateReceipt(ctx, paymentID)
}

func (s *PaymentService) generateReceipt(ctx context.Context, paymentID string) error {
	started := time.Now()

	record, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("load payment %s: %w", paymentID, err)
	}
	if record.Status != models.PaymentStatusSucceeded {
		s.logger.Debug("skipping receipt for unsettled payment", zap.String("payment_id", paymentID))
		return nil
	}

	enrollment, err := s.enrollments.FindByID(ctx, record.EnrollmentID)
	if err != nil {
		return fmt.Errorf("load enrollment %s: %w", record.EnrollmentID, err)
	}
	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		return fmt.Errorf("load course %s: %w", enrollment.CourseID, err)
	}
	student, err := s.users.FindByID(ctx, enrollment.StudentID)
	if err != nil {
		return fmt.Errorf("load student %s: %w", enrollment.StudentID, err)
	}

	reference := ""
	if record.ProviderReference != nil {
		reference = *record.ProviderReference
	}

	pdf, err := s.renderer.Render(export.Receipt{
		PaymentID:    record.ID,
		IssuedAt:     time.Now().UTC(),
		StudentName:  student.FullName,
		StudentEmail: student.Email,
		CourseTitle:  course.Title,
		Amount:       record.Amount,
		Currency:     s.config.Currency,
		Provider:     record.Provider,
		Reference:    reference,
	})
	if err != nil {
		return fmt.Errorf("render receipt for %s: %w", record.ID, err)
	}

	relPath := fmt.Sprintf("receipts/%s.pdf", record.ID)
	if _, err := s.store.Save(relPath, pdf); err != nil {
		return fmt.Errorf("store receipt for %s: %w", record.ID, err)
	}
	if err := s.repo.SetReceiptPath(ctx, record.ID, relPath); err != nil {
		return fmt.Errorf("record receipt path for %s: %w", record.ID, err)
	}

	if s.metrics != nil {
		s.metrics.ObserveReceiptGeneration(time.Since(started))
	}
	s.logger.Info("receipt generated", zap.String("payment_id", record.ID), zap.String("path", relPath))
	return nil
}
