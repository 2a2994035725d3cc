package services

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// QRGenerator produces a verification QR artifact for a receipt number.
// Receipt creation treats generation as best-effort: a failing generator
// never fails the create.
type QRGenerator interface {
	Generate(receiptNumber string) (string, error)
}

// QRService renders the receipt verification URL as a PNG data URI.
type QRService struct {
	urlTemplate string
}

// NewQRService creates a QR service. urlTemplate must contain a single %s
// placeholder for the receipt number.
func NewQRService(urlTemplate string) *QRService {
	return &QRService{urlTemplate: urlTemplate}
}

// Generate returns a base64 PNG data URI encoding the verification URL.
func (s *QRService) Generate(receiptNumber string) (string, error) {
	verificationURL := fmt.Sprintf(s.urlTemplate, receiptNumber)

	// High error correction so printed receipts survive smudging
	png, err := qrcode.Encode(verificationURL, qrcode.High, 200)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
