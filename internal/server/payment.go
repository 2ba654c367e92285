package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/schoolfee/internal/payment/domain"
)

type recordPaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     string          `json:"payment_date"`
	PaymentMethod   string          `json:"payment_method" binding:"required,payment_method"`
	ReferenceNumber string          `json:"reference_number" binding:"max=64"`
	Notes           string          `json:"notes" binding:"max=2000"`
}

func (s *Server) ListPayments(c *gin.Context) {
	invoiceID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payments, err := s.paymentSvc.List(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payments})
}

// RecordPayment answers 200 instead of 201 when the reference was already
// recorded against the invoice.
func (s *Server) RecordPayment(c *gin.Context) {
	invoiceID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	paymentDate, err := parseOptionalTime(req.PaymentDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("payment_date", paymentdomain.ErrInvalidPaymentDate.Error(), "payment_date must be a date or RFC 3339 timestamp"))
		return
	}

	res, err := s.paymentSvc.Record(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		InvoiceID:       invoiceID,
		Amount:          req.Amount,
		PaymentDate:     paymentDate,
		PaymentMethod:   paymentdomain.Method(req.PaymentMethod),
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": res})
}

func (s *Server) DeletePayment(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	inv, err := s.paymentSvc.Delete(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"invoice": inv}})
}

func (s *Server) RenderPaymentReceipt(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	out, err := s.paymentSvc.RenderReceipt(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "receipt-"+id.String()+".pdf"))
	c.Data(http.StatusOK, "application/pdf", out)
}
