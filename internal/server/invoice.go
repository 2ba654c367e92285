package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/schoolfee/internal/invoice/domain"
	"github.com/smallbiznis/schoolfee/pkg/db/pagination"
)

type generateInvoiceRequest struct {
	GuardianID     snowflake.ID `json:"guardian_id" binding:"required"`
	AcademicTermID snowflake.ID `json:"academic_term_id" binding:"required"`
	PaymentPlan    string       `json:"payment_plan" binding:"required,payment_plan"`
	DueDate        string       `json:"due_date"`
	Notes          string       `json:"notes" binding:"max=2000"`
	IncludeExtras  bool         `json:"include_extras"`
}

type regenerateInvoiceRequest struct {
	IncludeExtras bool `json:"include_extras"`
}

type updatePlanRequest struct {
	PaymentPlan string `json:"payment_plan" binding:"required,payment_plan"`
	DueDate     string `json:"due_date"`
}

type upsertLineItemRequest struct {
	FeeBreakdown invoicedomain.FeeBreakdown `json:"fee_breakdown" binding:"required"`
}

type listInvoicesQuery struct {
	pagination.Pagination
	Status         string `form:"status"`
	AcademicTermID string `form:"academic_term_id"`
	GuardianID     string `form:"guardian_id"`
}

func parseDueDate(value string) (*time.Time, error) {
	due, err := parseOptionalTime(value, false)
	if err != nil {
		return nil, newValidationError("due_date", invoicedomain.ErrInvalidDueDate.Error(), "due_date must be a date or RFC 3339 timestamp")
	}
	return due, nil
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	req := invoicedomain.ListInvoiceRequest{Pagination: query.Pagination}
	if status := strings.TrimSpace(query.Status); status != "" {
		st := invoicedomain.Status(strings.ToLower(status))
		if !st.Valid() {
			AbortWithError(c, newValidationError("status", "invalid_status", "status must be pending, partial, paid or overdue"))
			return
		}
		req.Status = &st
	}
	termID, err := parseOptionalSnowflakeID(query.AcademicTermID)
	if err != nil {
		AbortWithError(c, newValidationError("academic_term_id", "invalid_academic_term", "academic_term_id must be a valid id"))
		return
	}
	req.AcademicTermID = termID
	guardianID, err := parseOptionalSnowflakeID(query.GuardianID)
	if err != nil {
		AbortWithError(c, newValidationError("guardian_id", "invalid_guardian", "guardian_id must be a valid id"))
		return
	}
	req.GuardianID = guardianID

	res, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res.Invoices, "page_info": res.PageInfo})
}

func (s *Server) GenerateInvoice(c *gin.Context) {
	var req generateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	details, err := s.invoiceSvc.Generate(c.Request.Context(), invoicedomain.GenerateInvoiceRequest{
		GuardianID:     req.GuardianID,
		AcademicTermID: req.AcademicTermID,
		PaymentPlan:    invoicedomain.PaymentPlan(req.PaymentPlan),
		DueDate:        dueDate,
		Notes:          req.Notes,
		IncludeExtras:  req.IncludeExtras,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": details})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	details, err := s.invoiceSvc.GetWithDetails(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": details})
}

func (s *Server) RecalculateInvoice(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	inv, err := s.invoiceSvc.Recalculate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) RegenerateInvoice(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req regenerateInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, bindError(err))
			return
		}
	}
	details, err := s.invoiceSvc.Regenerate(c.Request.Context(), invoicedomain.RegenerateInvoiceRequest{
		InvoiceID:     id,
		IncludeExtras: req.IncludeExtras,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": details})
}

func (s *Server) UpdateInvoicePlan(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req updatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	inv, err := s.invoiceSvc.UpdatePlan(c.Request.Context(), invoicedomain.UpdatePlanRequest{
		InvoiceID:   id,
		PaymentPlan: invoicedomain.PaymentPlan(req.PaymentPlan),
		DueDate:     dueDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) UpsertInvoiceLineItem(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	studentID, err := parseIDParam(c, "student_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req upsertLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	details, err := s.invoiceSvc.UpsertLineItem(c.Request.Context(), invoicedomain.UpsertLineItemRequest{
		InvoiceID:    id,
		StudentID:    studentID,
		FeeBreakdown: req.FeeBreakdown,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": details})
}

func (s *Server) RemoveInvoiceLineItem(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	studentID, err := parseIDParam(c, "student_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	details, err := s.invoiceSvc.RemoveLineItem(c.Request.Context(), id, studentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": details})
}

func (s *Server) RenderInvoicePDF(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	inv, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	out, err := s.invoiceSvc.RenderPDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", inv.InvoiceNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", out)
}
