package pdf

import (
	"context"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type ReceiptData struct {
	SchoolName      string
	InvoiceNumber   string
	ReferenceNumber string
	GuardianName    string
	DatePaid        string
	PaymentMethod   string
	Amount          string
	BalanceAfter    string
}

func (p *PDFProvider) RenderReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	m := p.newDocument()
	p.addHeader(m, "Payment Receipt")

	m.AddRow(24,
		col.New(6).Add(
			text.New("Reference: "+data.ReferenceNumber, props.Text{Top: 0}),
			text.New("Invoice number: "+data.InvoiceNumber, props.Text{Top: 4}),
			text.New("Date paid: "+data.DatePaid, props.Text{Top: 8}),
			text.New("Method: "+data.PaymentMethod, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New(data.SchoolName, props.Text{Style: fontstyle.Bold}),
			text.New("Received from "+data.GuardianName, props.Text{Top: 5}),
		),
	)

	m.AddRow(14,
		text.NewCol(12, data.Amount+" received on "+data.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   4,
		}),
	)
	addTotal(m, "Amount", data.Amount, false)
	addTotal(m, "Balance remaining", data.BalanceAfter, true)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
