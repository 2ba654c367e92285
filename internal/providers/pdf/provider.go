// Package pdf renders guardian fee statements and payment receipts.
package pdf

import (
	"context"
)

type Provider interface {
	RenderStatement(ctx context.Context, data StatementData) ([]byte, error)
	RenderReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

// NoOpProvider renders nothing. It backs deployments without PDF output.
type NoOpProvider struct{}

func (p *NoOpProvider) RenderStatement(ctx context.Context, data StatementData) ([]byte, error) {
	return nil, nil
}

func (p *NoOpProvider) RenderReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	return nil, nil
}

type PDFProvider struct {
	// LogoPath is optional; rows with the logo are skipped when empty.
	LogoPath string
}

func New() Provider {
	return &PDFProvider{}
}
