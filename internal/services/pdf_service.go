package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avelio/backend/internal/models"
	"github.com/spf13/viper"
)

// PDFRenderer turns a receipt into a printable PDF document. Rendering is
// delegated so the ledger never blocks on layout work.
type PDFRenderer interface {
	Render(ctx context.Context, receipt *models.Receipt) ([]byte, error)
}

// HTTPPDFRenderer posts the receipt to an external rendering service and
// returns the PDF bytes it responds with.
type HTTPPDFRenderer struct {
	client  *http.Client
	baseURL string
}

func NewHTTPPDFRenderer() *HTTPPDFRenderer {
	timeout := viper.GetDuration("pdf.timeout")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPPDFRenderer{
		client:  &http.Client{Timeout: timeout},
		baseURL: viper.GetString("pdf.renderer_url"),
	}
}

func (p *HTTPPDFRenderer) Render(ctx context.Context, receipt *models.Receipt) ([]byte, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("pdf renderer not configured")
	}

	body, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/render/receipt", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdf renderer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pdf renderer returned status %d", resp.StatusCode)
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered pdf: %w", err)
	}
	return pdf, nil
}
