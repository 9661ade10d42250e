package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-market-api/internal/models"
)

// PaymentRepository handles the append-mostly payment ledger. Rows are
// created once, their status only ever moves forward, and nothing here
// deletes.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create persists a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	const query = `INSERT INTO payments (id, enrollment_id, amount, provider, provider_reference, status, receipt_path, created_at, updated_at)
        VALUES (:id, :enrollment_id, :amount, :provider, :provider_reference, :status, :receipt_path, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindByID returns a payment by its ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	const query = `SELECT id, enrollment_id, amount, provider, provider_reference, status, receipt_path, created_at, updated_at FROM payments WHERE id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByProviderReference resolves a payment by the external session or
// intent id attached at checkout time.
func (r *PaymentRepository) FindByProviderReference(ctx context.Context, reference string) (*models.Payment, error) {
	const query = `SELECT id, enrollment_id, amount, provider, provider_reference, status, receipt_path, created_at, updated_at FROM payments WHERE provider_reference = $1 LIMIT 1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, reference); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindLatestByEnrollment is the fallback lookup for webhook events whose
// provider reference was rewritten upstream; correlation metadata carries
// the enrollment id instead.
func (r *PaymentRepository) FindLatestByEnrollment(ctx context.Context, enrollmentID string) (*models.Payment, error) {
	const query = `SELECT id, enrollment_id, amount, provider, provider_reference, status, receipt_path, created_at, updated_at FROM payments WHERE enrollment_id = $1 ORDER BY created_at DESC LIMIT 1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, enrollmentID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkSucceeded promotes a payment to succeeded and records the finalized
// provider reference. The status guard keeps failed terminal; re-applying
// the same event rewrites identical values, so delivery retries are safe.
func (r *PaymentRepository) MarkSucceeded(ctx context.Context, id, providerReference string) error {
	const query = `UPDATE payments SET status = $2, provider_reference = $3, updated_at = $4
        WHERE id = $1 AND status IN ($5, $2)`
	if _, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusSucceeded, providerReference, time.Now().UTC(), models.PaymentStatusPending); err != nil {
		return fmt.Errorf("mark payment succeeded: %w", err)
	}
	return nil
}

// MarkFailed moves a pending payment to failed. Terminal states are left
// untouched.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusFailed, time.Now().UTC(), models.PaymentStatusPending); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return nil
}

// SetReceiptPath records where the generated receipt PDF lives.
func (r *PaymentRepository) SetReceiptPath(ctx context.Context, id, path string) error {
	const query = `UPDATE payments SET receipt_path = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("set receipt path: %w", err)
	}
	return nil
}

// List returns payments for the audit view with a total count.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	base := `FROM payments`
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.Provider != "" {
		conditions = append(conditions, fmt.Sprintf("provider = $%d", len(args)+1))
		args = append(args, filter.Provider)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, enrollment_id, amount, provider, provider_reference, status, receipt_path, created_at, updated_at
        %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}
