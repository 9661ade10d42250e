package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Receipt carries the fields printed on a payment receipt.
type Receipt struct {
	PaymentID    string
	IssuedAt     time.Time
	StudentName  string
	StudentEmail string
	CourseTitle  string
	Amount       float64
	Currency     string
	Provider     string
	Reference    string
}

// ReceiptRenderer produces PDF receipts for settled payments.
type ReceiptRenderer struct{}

// NewReceiptRenderer constructs a receipt renderer.
func NewReceiptRenderer() *ReceiptRenderer {
	return &ReceiptRenderer{}
}

// Render creates a single-page PDF receipt.
func (r *ReceiptRenderer) Render(receipt Receipt) ([]byte, error) {
	if receipt.PaymentID == "" {
		return nil, fmt.Errorf("receipt requires a payment id")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "PAYMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Receipt %s", receipt.PaymentID), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued %s", receipt.IssuedAt.UTC().Format("2006-01-02 15:04 UTC")), "", 1, "", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Student", fmt.Sprintf("%s <%s>", receipt.StudentName, receipt.StudentEmail)},
		{"Course", receipt.CourseTitle},
		{"Amount", fmt.Sprintf("%.2f %s", receipt.Amount, receipt.Currency)},
		{"Provider", receipt.Provider},
	}
	if receipt.Reference != "" {
		rows = append(rows, [2]string{"Reference", receipt.Reference})
	}

	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(140, 8, row[1], "1", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
