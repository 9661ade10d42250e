package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-market-api/internal/models"
	"github.com/noah-isme/course-market-api/internal/service"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
	"github.com/noah-isme/course-market-api/pkg/response"
)

// PaymentHandler wires HTTP endpoints to checkout, webhook and audit services.
type PaymentHandler struct {
	checkout *service.CheckoutService
	webhook  *service.WebhookService
	payments *service.PaymentService
}

// NewPaymentHandler creates a new handler.
func NewPaymentHandler(checkout *service.CheckoutService, webhook *service.WebhookService, payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{checkout: checkout, webhook: webhook, payments: payments}
}

// CreateCheckoutSession godoc
// @Summary Create checkout session
// @Description Free courses settle immediately; paid courses return a provider redirect URL
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body models.CheckoutSessionRequest true "Checkout payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /payments/checkout-session [post]
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	var req models.CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid checkout payload"))
		return
	}
	if req.EnrollmentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enrollment_id is required"))
		return
	}

	result, err := h.checkout.CreateSession(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Webhook godoc
// @Summary Provider webhook
// @Description Verifies the signature on the raw body; handled and ignored events are both acknowledged so the provider stops redelivering
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 400 {object} response.Envelope
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read webhook body"))
		return
	}

	if err := h.webhook.HandleEvent(c.Request.Context(), body, c.GetHeader("Stripe-Signature")); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// List godoc
// @Summary List payments
// @Description Admin audit listing with historical statuses
// @Tags Payments
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	filter := models.PaymentFilter{
		EnrollmentID: c.Query("enrollment_id"),
		Provider:     c.Query("provider"),
		Status:       models.PaymentStatus(c.Query("status")),
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "page_size", 20),
	}

	result, err := h.payments.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result.Payments, &result.Pagination)
}

// Export godoc
// @Summary Export payments CSV
// @Tags Payments
// @Produce text/csv
// @Param status query string false "Status filter"
// @Success 200 {string} string "CSV file"
// @Failure 403 {object} response.Envelope
// @Router /payments/export [get]
func (h *PaymentHandler) Export(c *gin.Context) {
	filter := models.PaymentFilter{
		EnrollmentID: c.Query("enrollment_id"),
		Provider:     c.Query("provider"),
		Status:       models.PaymentStatus(c.Query("status")),
	}

	data, err := h.payments.ExportCSV(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="payments.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

// ReceiptURL godoc
// @Summary Get receipt link
// @Description Issue a time-limited signed download link for a payment receipt
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /payments/{id}/receipt [get]
func (h *PaymentHandler) ReceiptURL(c *gin.Context) {
	link, err := h.payments.SignedReceiptURL(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadReceipt godoc
// @Summary Download receipt
// @Tags Payments
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {string} string "PDF file"
// @Failure 401 {object} response.Envelope
// @Router /payments/receipts/download [get]
func (h *PaymentHandler) DownloadReceipt(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, err := h.payments.OpenReceipt(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", `attachment; filename="receipt.pdf"`)
	c.Header("Content-Type", "application/pdf")
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}
