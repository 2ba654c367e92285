package pdf

import (
	"context"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// StatementData is a guardian invoice flattened to display strings.
type StatementData struct {
	SchoolName    string
	InvoiceNumber string
	TermName      string
	IssueDate     string
	DueDate       string
	PaymentPlan   string
	Status        string

	GuardianName  string
	GuardianEmail string
	GuardianPhone string

	Lines []StatementLine

	Subtotal           string
	DiscountPercentage string
	Discount           string
	Total              string
	AmountPaid         string
	BalanceDue         string
}

type StatementLine struct {
	StudentName string
	Category    string
	Amount      string
}

func (p *PDFProvider) RenderStatement(ctx context.Context, data StatementData) ([]byte, error) {
	m := p.newDocument()
	p.addHeader(m, "Fee Statement")

	m.AddRow(24,
		col.New(6).Add(
			text.New("Invoice number: "+data.InvoiceNumber, props.Text{Top: 0}),
			text.New("Term: "+data.TermName, props.Text{Top: 4}),
			text.New("Date of issue: "+data.IssueDate, props.Text{Top: 8}),
			text.New("Date due: "+data.DueDate, props.Text{Top: 12}),
			text.New("Payment plan: "+data.PaymentPlan, props.Text{Top: 16}),
		),
		col.New(6).Add(
			text.New(data.SchoolName, props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New("Status: "+data.Status, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(24,
		col.New(12).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(data.GuardianName, props.Text{Top: 5}),
			text.New(data.GuardianEmail, props.Text{Top: 9}),
			text.New(data.GuardianPhone, props.Text{Top: 13}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, data.BalanceDue+" due by "+data.DueDate, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   3,
		}),
	)

	m.AddRow(10,
		text.NewCol(5, "Student", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Fee", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range data.Lines {
		m.AddRow(8,
			text.NewCol(5, item.StudentName, props.Text{Size: 9}),
			text.NewCol(4, item.Category, props.Text{Size: 9}),
			text.NewCol(3, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(2, line.NewCol(12))
	addTotal(m, "Subtotal", data.Subtotal, false)
	if data.Discount != "" && data.Discount != "0.00" {
		addTotal(m, "Discount ("+data.DiscountPercentage+"%)", "-"+data.Discount, false)
	}
	addTotal(m, "Total", data.Total, false)
	addTotal(m, "Paid", data.AmountPaid, false)
	addTotal(m, "Balance due", data.BalanceDue, true)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func (p *PDFProvider) newDocument() core.Maroto {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	return maroto.New(cfg)
}

func (p *PDFProvider) addHeader(m core.Maroto, title string) {
	if p.LogoPath != "" {
		m.AddRow(30,
			image.NewFromFileCol(3, p.LogoPath, props.Rect{Percent: 80}),
			col.New(9),
		)
	}
	m.AddRow(12,
		text.NewCol(12, title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
}

func addTotal(m core.Maroto, label, value string, bold bool) {
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	m.AddRow(8,
		col.New(7),
		text.NewCol(2, label, props.Text{Size: 9, Style: style}),
		text.NewCol(3, value, props.Text{Size: 9, Style: style, Align: align.Right}),
	)
}
