package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/avelio/backend/internal/config"
	"github.com/avelio/backend/internal/models"
)

// testLocation mirrors the production fallback zone.
var testLocation = time.FixedZone("UTC+3", 3*60*60)

// testClock is a deterministic "now": 2026-03-15 10:30:00 UTC,
// 13:30 in the business timezone.
var testClock = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func testAppConfig() *config.AppConfig {
	return &config.AppConfig{
		TimezoneName:      "Africa/Juba",
		Location:          testLocation,
		ReceiptPrefix:     "KSH-CR",
		DefaultStation:    "JUB",
		DefaultIssuerName: "Staff",
		VerifyURLTemplate: "https://avelio.app/verify/%s",
		NumberMaxAttempts: 3,
		StalePendingDays:  3,
	}
}

func testUser() models.AuthUser {
	return models.AuthUser{
		ID:          "7d9351f5-8f0b-4b0a-93c4-111111111111",
		Name:        "Amal Deng",
		Role:        "agent",
		StationCode: "JUB",
	}
}

// stubQR is a canned QRGenerator.
type stubQR struct {
	result string
	err    error
	calls  int
}

func (s *stubQR) Generate(receiptNumber string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.result != "" {
		return s.result, nil
	}
	return "data:image/png;base64,stub-" + receiptNumber, nil
}

// stubPDF is a canned PDFRenderer.
type stubPDF struct {
	pdf []byte
	err error
}

func (s *stubPDF) Render(ctx context.Context, receipt *models.Receipt) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.pdf != nil {
		return s.pdf, nil
	}
	return []byte("%PDF-1.4 stub"), nil
}

func newTestReceiptService(db *sql.DB, qr QRGenerator) *ReceiptService {
	svc := NewReceiptService(db, qr, testAppConfig())
	svc.now = func() time.Time { return testClock }
	return svc
}

var errRenderDown = errors.New("renderer unavailable")
