package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/invoice/domain"
	"github.com/smallbiznis/schoolfee/internal/notification"
	"github.com/smallbiznis/schoolfee/internal/providers/pdf"
	schooldomain "github.com/smallbiznis/schoolfee/internal/school/domain"
	"github.com/smallbiznis/schoolfee/pkg/money"
	"go.uber.org/zap"
)

const dateLayout = "2 Jan 2006"

func (s *Service) RenderPDF(ctx context.Context, invoiceID snowflake.ID) ([]byte, error) {
	if s.pdf == nil {
		return nil, domain.ErrRendererMissing
	}
	details, err := s.GetWithDetails(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	school, err := s.directory.GetSchool(ctx)
	if err != nil {
		return nil, mapDirectoryErr(err)
	}
	guardian, err := s.directory.GetGuardian(ctx, details.Invoice.GuardianID)
	if err != nil {
		return nil, mapDirectoryErr(err)
	}
	term, err := s.directory.GetTerm(ctx, details.Invoice.AcademicTermID)
	if err != nil {
		return nil, mapDirectoryErr(err)
	}

	inv := details.Invoice
	data := pdf.StatementData{
		SchoolName:         school.Name,
		InvoiceNumber:      inv.InvoiceNumber,
		TermName:           termLabel(term),
		IssueDate:          inv.IssuedAt.Format(dateLayout),
		DueDate:            inv.DueDate.Format(dateLayout),
		PaymentPlan:        string(inv.PaymentPlan),
		Status:             string(inv.Status),
		GuardianName:       guardian.Name,
		GuardianEmail:      guardian.Email,
		GuardianPhone:      guardian.Phone,
		Subtotal:           money.Format(inv.SubtotalAmount),
		DiscountPercentage: inv.DiscountPercentage.String(),
		Discount:           money.Format(inv.DiscountAmount),
		Total:              money.Format(inv.TotalAmount),
		AmountPaid:         money.Format(inv.AmountPaid),
		BalanceDue:         money.Format(inv.BalanceDue),
	}
	names := s.studentNames(ctx, inv.GuardianID, details.LineItems)
	for _, line := range details.LineItems {
		for _, entry := range line.FeeBreakdown {
			data.Lines = append(data.Lines, pdf.StatementLine{
				StudentName: names[line.StudentID],
				Category:    entry.Category,
				Amount:      money.Format(entry.Amount),
			})
		}
	}

	out, err := s.pdf.RenderStatement(ctx, data)
	if err != nil {
		s.log.Error("render statement", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		return nil, err
	}
	return out, nil
}

// notifyIssued runs after the invoice commits; failures are logged only.
func (s *Service) notifyIssued(ctx context.Context, school schooldomain.School, guardian schooldomain.Guardian, term schooldomain.TermInfo, details domain.InvoiceDetails) {
	inv := details.Invoice
	notice := notification.InvoiceNotice{
		SchoolName:    school.Name,
		GuardianName:  guardian.Name,
		GuardianEmail: guardian.Email,
		InvoiceNumber: inv.InvoiceNumber,
		TermName:      termLabel(term),
		PaymentPlan:   string(inv.PaymentPlan),
		IssuedAt:      inv.IssuedAt,
		DueDate:       inv.DueDate,
		Subtotal:      money.Format(inv.SubtotalAmount),
		Total:         money.Format(inv.TotalAmount),
		BalanceDue:    money.Format(inv.BalanceDue),
	}
	if inv.DiscountAmount.IsPositive() {
		notice.Discount = money.Format(inv.DiscountAmount)
	}
	names := s.studentNames(ctx, guardian.ID, details.LineItems)
	for _, line := range details.LineItems {
		for _, entry := range line.FeeBreakdown {
			notice.Lines = append(notice.Lines, notification.NoticeLine{
				StudentName: names[line.StudentID],
				Category:    entry.Category,
				Amount:      money.Format(entry.Amount),
			})
		}
	}

	if err := s.notifier.InvoiceIssued(ctx, notice); err != nil {
		s.metrics.RecordNotificationFailure(ctx, "invoice_issued")
		s.log.Warn("invoice notification failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
	}
}

// studentNames resolves display names for line items. Students no longer
// linked to the guardian fall back to a direct lookup, then to their ID.
func (s *Service) studentNames(ctx context.Context, guardianID snowflake.ID, lines []domain.InvoiceLineItem) map[snowflake.ID]string {
	names := make(map[snowflake.ID]string, len(lines))
	if linked, err := s.directory.StudentsForGuardian(ctx, guardianID); err == nil {
		for _, student := range linked {
			names[student.ID] = student.FullName()
		}
	}
	for _, line := range lines {
		if _, ok := names[line.StudentID]; ok {
			continue
		}
		if student, err := s.directory.GetStudent(ctx, line.StudentID); err == nil {
			names[line.StudentID] = student.FullName()
			continue
		}
		names[line.StudentID] = line.StudentID.String()
	}
	return names
}

func termLabel(term schooldomain.TermInfo) string {
	if term.AcademicYearName == "" {
		return term.Name
	}
	return term.Name + " " + term.AcademicYearName
}
