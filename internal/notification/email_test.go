package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/schoolfee/internal/providers/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type providerMock struct {
	mock.Mock
}

func (m *providerMock) Send(ctx context.Context, msg email.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func TestInvoiceIssuedRendersLines(t *testing.T) {
	provider := &providerMock{}
	var sent email.Message
	provider.On("Send", mock.MatchedBy(func(msg email.Message) bool {
		return msg.Subject == "Hillside: fee invoice HILL-202601-00001" &&
			assert.ObjectsAreEqual([]string{"amina@example.com"}, msg.To)
	})).
		Run(func(args mock.Arguments) { sent = args.Get(0).(email.Message) }).
		Return(nil)

	n, err := NewEmailNotifier(provider, zap.NewNop())
	require.NoError(t, err)

	err = n.InvoiceIssued(context.Background(), InvoiceNotice{
		SchoolName:    "Hillside",
		GuardianName:  "Amina Otieno",
		GuardianEmail: "amina@example.com",
		InvoiceNumber: "HILL-202601-00001",
		TermName:      "Term 1",
		PaymentPlan:   "full",
		DueDate:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Lines: []NoticeLine{
			{StudentName: "Baraka Otieno", Category: "Tuition", Amount: "35000.00"},
		},
		Subtotal:   "35000.00",
		Discount:   "1750.00",
		Total:      "33250.00",
		BalanceDue: "33250.00",
	})
	require.NoError(t, err)
	provider.AssertExpectations(t)
	assert.Contains(t, sent.HTML, "Baraka Otieno")
	assert.Contains(t, sent.HTML, "33250.00")
	assert.Contains(t, sent.HTML, "1 Feb 2026")
	assert.Equal(t, "Invoice HILL-202601-00001 for Term 1 totals 33250.00. Balance due 33250.00 by 1 Feb 2026.", sent.Text)
}

func TestPaymentRecordedPropagatesSendError(t *testing.T) {
	provider := &providerMock{}
	provider.On("Send", mock.Anything).Return(errors.New("smtp down"))

	n, err := NewEmailNotifier(provider, zap.NewNop())
	require.NoError(t, err)

	err = n.PaymentRecorded(context.Background(), PaymentNotice{
		SchoolName:    "Hillside",
		GuardianEmail: "amina@example.com",
		InvoiceNumber: "HILL-202601-00001",
		Amount:        "10000.00",
	})
	assert.ErrorContains(t, err, "smtp down")
}

func TestMissingRecipient(t *testing.T) {
	n, err := NewEmailNotifier(&providerMock{}, zap.NewNop())
	require.NoError(t, err)
	assert.ErrorIs(t, n.InvoiceIssued(context.Background(), InvoiceNotice{}), ErrNoRecipient)
}
