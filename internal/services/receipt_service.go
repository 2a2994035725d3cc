package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avelio/backend/internal/config"
	"github.com/avelio/backend/internal/middleware"
	"github.com/avelio/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ReceiptService owns the receipt lifecycle: creation with number
// generation, status transitions and retrieval. It is the single writer of
// receipt rows; analytics and exports only read.
type ReceiptService struct {
	db        *sql.DB
	qr        QRGenerator
	cfg       *config.AppConfig
	validator *ValidationHelper
	now       func() time.Time
}

func NewReceiptService(db *sql.DB, qr QRGenerator, cfg *config.AppConfig) *ReceiptService {
	return &ReceiptService{
		db:        db,
		qr:        qr,
		cfg:       cfg,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

// AgencyRef identifies an agency either by its internal surrogate id or by
// its external natural code. Exactly one side is set; the decision is made
// once at the API boundary, never re-sniffed inside the ledger.
type AgencyRef struct {
	id   string
	code string
}

func AgencyRefByID(id string) AgencyRef {
	return AgencyRef{id: id}
}

func AgencyRefByCode(code string) AgencyRef {
	return AgencyRef{code: code}
}

// ParseAgencyRef classifies a caller-supplied reference: a UUID-shaped
// token is a surrogate id, anything else is treated as the natural code.
func ParseAgencyRef(s string) AgencyRef {
	if _, err := uuid.Parse(s); err == nil {
		return AgencyRefByID(s)
	}
	return AgencyRefByCode(s)
}

func (r AgencyRef) ByID() (string, bool) {
	return r.id, r.id != ""
}

func (r AgencyRef) ByCode() (string, bool) {
	return r.code, r.code != ""
}

func (r AgencyRef) IsZero() bool {
	return r.id == "" && r.code == ""
}

// CreateReceiptRequest is the create payload. Amount decodes through
// decimal so two-decimal monetary values survive exactly as sent.
type CreateReceiptRequest struct {
	AgencyID      string          `json:"agency_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"omitempty,len=3"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=CASH BANK_TRANSFER"`
	Status        string          `json:"status" validate:"required,oneof=PENDING PAID"`
	DueDate       string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Remarks       string          `json:"remarks" validate:"max=500"`
}

// CreateReceipt handles receipt creation
// @Summary Create a receipt
// @Description Issue a credit-deposit receipt for an active agency
// @Tags receipts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param receipt body CreateReceiptRequest true "Receipt data"
// @Success 201 {object} models.Receipt
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /receipts [post]
func (rs *ReceiptService) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req CreateReceiptRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := rs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	receipt, err := rs.createReceipt(r.Context(), ParseAgencyRef(req.AgencyID), req, user)
	if err != nil {
		log.Printf("[RECEIPT] Create failed: %v", err)
		SendAppError(w, err)
		return
	}

	SendJSON(w, http.StatusCreated, map[string]any{"receipt": receipt})
}

func (rs *ReceiptService) createReceipt(ctx context.Context, ref AgencyRef, req CreateReceiptRequest, user models.AuthUser) (*models.Receipt, error) {
	if ref.IsZero() {
		return nil, ValidationErr("Agency ID, amount, and status are required")
	}
	if !req.Amount.IsPositive() {
		return nil, ValidationErr("Amount must be greater than 0")
	}
	if req.Status != models.ReceiptStatusPending && req.Status != models.ReceiptStatusPaid {
		return nil, ValidationErr("Status must be PENDING or PAID")
	}

	agency, err := rs.resolveAgency(ctx, ref)
	if err != nil {
		return nil, err
	}

	now := rs.now()
	stationCode := user.StationCode
	if stationCode == "" {
		stationCode = rs.cfg.DefaultStation
	}
	issuedBy := user.Name
	if issuedBy == "" {
		issuedBy = rs.cfg.DefaultIssuerName
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	issueDate := businessDate(now, rs.cfg.Location)
	issueTime := businessTime(now, rs.cfg.Location)

	var paymentDate *time.Time
	if req.Status == models.ReceiptStatusPaid {
		paymentDate = &now
	}

	var dueDate *string
	if req.DueDate != "" {
		dueDate = &req.DueDate
	}
	var remarks *string
	if req.Remarks != "" {
		remarks = &req.Remarks
	}

	receipt := &models.Receipt{
		AgencyRowID:   agency.ID,
		Agency:        agency,
		UserID:        user.ID,
		Amount:        req.Amount,
		Currency:      currency,
		PaymentMethod: req.PaymentMethod,
		Status:        req.Status,
		IssueDate:     issueDate,
		IssueTime:     issueTime,
		PaymentDate:   paymentDate,
		DueDate:       dueDate,
		StationCode:   stationCode,
		IssuedByName:  issuedBy,
		Remarks:       remarks,
	}

	// Generate-insert-retry loop: the 4-digit suffix is not unique by
	// construction, so a constraint violation regenerates the candidate.
	var inserted bool
	var collision error
	for attempt := 1; attempt <= rs.cfg.NumberMaxAttempts; attempt++ {
		receipt.ReceiptNumber = rs.generateReceiptNumber(stationCode, now)

		err = rs.db.QueryRowContext(ctx, `
			INSERT INTO receipts
			(receipt_number, agency_id, user_id, amount, currency, payment_method, status,
			 issue_date, issue_time, payment_date, due_date, station_code, issued_by_name, remarks)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id, created_at, updated_at
		`, receipt.ReceiptNumber, agency.ID, nullIfEmpty(user.ID), req.Amount.String(), currency,
			nullIfEmpty(req.PaymentMethod), req.Status, issueDate, issueTime, paymentDate,
			dueDate, stationCode, issuedBy, remarks,
		).Scan(&receipt.ID, &receipt.CreatedAt, &receipt.UpdatedAt)

		if err == nil {
			inserted = true
			break
		}
		if isUniqueViolation(err) {
			collision = RetryableConflictErr("Receipt number collision on "+receipt.ReceiptNumber, err)
			log.Printf("[RECEIPT] Number collision on %s (attempt %d/%d), regenerating",
				receipt.ReceiptNumber, attempt, rs.cfg.NumberMaxAttempts)
			continue
		}
		return nil, StorageErr(err)
	}
	if !inserted {
		return nil, StorageErr(fmt.Errorf("receipt number collisions exhausted %d attempts: %w",
			rs.cfg.NumberMaxAttempts, collision))
	}

	// QR generation is best-effort: the receipt is durable either way.
	if rs.qr != nil {
		if qrCode, qrErr := rs.qr.Generate(receipt.ReceiptNumber); qrErr != nil {
			log.Printf("[RECEIPT] QR generation failed for %s: %v", receipt.ReceiptNumber, qrErr)
		} else {
			receipt.QRCode = &qrCode
		}
	}

	log.Printf("[RECEIPT] Created %s for agency %s, amount %s %s, status %s",
		receipt.ReceiptNumber, agency.AgencyID, receipt.Amount.String(), currency, receipt.Status)
	return receipt, nil
}

func (rs *ReceiptService) resolveAgency(ctx context.Context, ref AgencyRef) (*models.AgencySummary, error) {
	var row *sql.Row
	if id, ok := ref.ByID(); ok {
		row = rs.db.QueryRowContext(ctx, `
			SELECT id, agency_id, agency_name FROM agencies
			WHERE id = $1 AND is_active = true`, id)
	} else {
		code, _ := ref.ByCode()
		row = rs.db.QueryRowContext(ctx, `
			SELECT id, agency_id, agency_name FROM agencies
			WHERE agency_id = $1 AND is_active = true`, code)
	}

	var agency models.AgencySummary
	if err := row.Scan(&agency.ID, &agency.AgencyID, &agency.AgencyName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundErr("Agency not found")
		}
		return nil, StorageErr(err)
	}
	return &agency, nil
}

// generateReceiptNumber builds {PREFIX}-{STATION}-{YYYYMMDD}-{4 digits}.
// The date component uses the business timezone.
func (rs *ReceiptService) generateReceiptNumber(stationCode string, now time.Time) string {
	datePart := now.In(rs.cfg.Location).Format("20060102")
	return fmt.Sprintf("%s-%s-%s-%04d", rs.cfg.ReceiptPrefix, stationCode, datePart, rand.Intn(10000))
}

// ReceiptFilters narrows list and export queries. All filters are ANDed.
type ReceiptFilters struct {
	Status     string
	AgencyCode string
	DateFrom   string
	DateTo     string
}

// ListReceipts retrieves receipts with filtering and pagination
// @Summary List receipts
// @Description Get receipts with optional filters; voided receipts are excluded
// @Tags receipts
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param agency_id query string false "Filter by agency code"
// @Param date_from query string false "Issue date lower bound (YYYY-MM-DD)"
// @Param date_to query string false "Issue date upper bound, inclusive (YYYY-MM-DD)"
// @Param page query int false "1-indexed page (default 1)"
// @Param pageSize query int false "Page size (default 20, max 100)"
// @Success 200 {object} object{status=string,data=object{receipts=[]models.Receipt}}
// @Failure 500 {object} ErrorResponse
// @Router /receipts [get]
func (rs *ReceiptService) ListReceipts(w http.ResponseWriter, r *http.Request) {
	filters := ReceiptFilters{
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		AgencyCode: strings.TrimSpace(r.URL.Query().Get("agency_id")),
		DateFrom:   strings.TrimSpace(r.URL.Query().Get("date_from")),
		DateTo:     strings.TrimSpace(r.URL.Query().Get("date_to")),
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	receipts, total, err := rs.fetchReceipts(r.Context(), filters, page, pageSize)
	if err != nil {
		log.Printf("[RECEIPT] List failed: %v", err)
		SendAppError(w, err)
		return
	}

	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	payload := map[string]any{
		"status":     "success",
		"count":      len(receipts),
		"total":      total,
		"page":       page,
		"pageSize":   pageSize,
		"totalPages": totalPages,
		"data": map[string]any{
			"receipts": receipts,
		},
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rs *ReceiptService) fetchReceipts(ctx context.Context, filters ReceiptFilters, page, pageSize int) ([]models.Receipt, int, error) {
	where, args := buildReceiptFilter(filters)

	var total int
	countQuery := `
		SELECT COUNT(*)
		FROM receipts r
		LEFT JOIN agencies a ON r.agency_id = a.id
	` + where
	if err := rs.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, StorageErr(err)
	}

	query := `
		SELECT r.id, r.receipt_number, r.amount::text, r.currency, r.payment_method, r.status,
		       r.issue_date::text, r.issue_time::text, r.payment_date, r.due_date::text,
		       r.station_code, r.issued_by_name, r.created_at,
		       a.agency_id, a.agency_name
		FROM receipts r
		LEFT JOIN agencies a ON r.agency_id = a.id
	` + where + fmt.Sprintf(" ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := rs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, StorageErr(err)
	}
	defer rows.Close()

	receipts := []models.Receipt{}
	for rows.Next() {
		var rec models.Receipt
		var amountStr, paymentMethod string
		var paymentDate sql.NullTime
		var dueDate, agencyCode, agencyName sql.NullString
		var pm sql.NullString

		err := rows.Scan(
			&rec.ID, &rec.ReceiptNumber, &amountStr, &rec.Currency, &pm, &rec.Status,
			&rec.IssueDate, &rec.IssueTime, &paymentDate, &dueDate,
			&rec.StationCode, &rec.IssuedByName, &rec.CreatedAt,
			&agencyCode, &agencyName,
		)
		if err != nil {
			return nil, 0, StorageErr(err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, 0, StorageErr(err)
		}
		rec.Amount = amount
		if pm.Valid {
			paymentMethod = pm.String
		}
		rec.PaymentMethod = paymentMethod
		if paymentDate.Valid {
			rec.PaymentDate = &paymentDate.Time
		}
		if dueDate.Valid {
			rec.DueDate = &dueDate.String
		}
		rec.Agency = &models.AgencySummary{
			AgencyID:   agencyCode.String,
			AgencyName: agencyName.String,
		}
		receipts = append(receipts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, StorageErr(err)
	}

	return receipts, total, nil
}

// buildReceiptFilter renders the shared WHERE clause. Voided receipts are
// excluded unless the status filter explicitly asks for them.
func buildReceiptFilter(filters ReceiptFilters) (string, []any) {
	conditions := []string{}
	args := []any{}

	if filters.Status == models.ReceiptStatusVoid {
		conditions = append(conditions, "r.status = 'VOID'")
	} else {
		conditions = append(conditions, "r.status <> 'VOID'")
		if filters.Status != "" {
			args = append(args, strings.ToUpper(filters.Status))
			conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)))
		}
	}

	if filters.AgencyCode != "" {
		args = append(args, filters.AgencyCode)
		conditions = append(conditions, fmt.Sprintf("a.agency_id = $%d", len(args)))
	}
	if filters.DateFrom != "" {
		args = append(args, filters.DateFrom)
		conditions = append(conditions, fmt.Sprintf("r.issue_date >= $%d", len(args)))
	}
	if filters.DateTo != "" {
		args = append(args, filters.DateTo)
		conditions = append(conditions, fmt.Sprintf("r.issue_date <= $%d", len(args)))
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

// GetReceipt retrieves a single receipt with agency contact fields
// @Summary Get receipt by ID
// @Tags receipts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Receipt ID"
// @Success 200 {object} models.Receipt
// @Failure 404 {object} ErrorResponse
// @Router /receipts/{id} [get]
func (rs *ReceiptService) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	receipt, err := rs.fetchReceipt(r.Context(), id)
	if err != nil {
		SendAppError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

func (rs *ReceiptService) fetchReceipt(ctx context.Context, id string) (*models.Receipt, error) {
	var rec models.Receipt
	var amountStr string
	var pm, dueDate, voidReason, remarks sql.NullString
	var paymentDate, voidDate sql.NullTime
	var contactPhone, contactEmail sql.NullString
	agency := models.AgencySummary{}

	err := rs.db.QueryRowContext(ctx, `
		SELECT r.id, r.receipt_number, r.amount::text, r.currency, r.payment_method, r.status,
		       r.issue_date::text, r.issue_time::text, r.payment_date, r.due_date::text,
		       r.void_reason, r.void_date, r.station_code, r.issued_by_name, r.remarks,
		       r.created_at, r.updated_at,
		       a.agency_id, a.agency_name, a.contact_phone, a.contact_email
		FROM receipts r
		JOIN agencies a ON r.agency_id = a.id
		WHERE r.id = $1
	`, id).Scan(
		&rec.ID, &rec.ReceiptNumber, &amountStr, &rec.Currency, &pm, &rec.Status,
		&rec.IssueDate, &rec.IssueTime, &paymentDate, &dueDate,
		&voidReason, &voidDate, &rec.StationCode, &rec.IssuedByName, &remarks,
		&rec.CreatedAt, &rec.UpdatedAt,
		&agency.AgencyID, &agency.AgencyName, &contactPhone, &contactEmail,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundErr("Receipt not found")
		}
		return nil, StorageErr(err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, StorageErr(err)
	}
	rec.Amount = amount
	if pm.Valid {
		rec.PaymentMethod = pm.String
	}
	if paymentDate.Valid {
		rec.PaymentDate = &paymentDate.Time
	}
	if dueDate.Valid {
		rec.DueDate = &dueDate.String
	}
	if voidReason.Valid {
		rec.VoidReason = &voidReason.String
	}
	if voidDate.Valid {
		rec.VoidDate = &voidDate.Time
	}
	if remarks.Valid {
		rec.Remarks = &remarks.String
	}
	if contactPhone.Valid {
		agency.ContactPhone = &contactPhone.String
	}
	if contactEmail.Valid {
		agency.ContactEmail = &contactEmail.String
	}
	rec.Agency = &agency

	return &rec, nil
}

// UpdateReceiptStatus marks a receipt as paid
// @Summary Mark receipt paid
// @Description Set status to PAID. Voided receipts are rejected; re-marking
// @Description an already-paid receipt succeeds without touching payment_date
// @Description unless a new one is supplied.
// @Tags receipts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Receipt ID"
// @Param request body object{status=string,payment_date=string} true "Status update"
// @Success 200 {object} models.Receipt
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /receipts/{id}/status [patch]
func (rs *ReceiptService) UpdateReceiptStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Status      string `json:"status" validate:"required,eq=PAID"`
		PaymentDate string `json:"payment_date" validate:"omitempty"`
	}
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := rs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var paymentDate *time.Time
	if req.PaymentDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.PaymentDate)
		if err != nil {
			SendErrorResponse(w, "payment_date must be RFC 3339", http.StatusBadRequest, nil)
			return
		}
		paymentDate = &parsed
	}

	receipt, err := rs.markPaid(r.Context(), id, paymentDate)
	if err != nil {
		log.Printf("[RECEIPT] Mark paid failed for %s: %v", id, err)
		SendAppError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

func (rs *ReceiptService) markPaid(ctx context.Context, id string, paymentDate *time.Time) (*models.Receipt, error) {
	var status string
	err := rs.db.QueryRowContext(ctx, `SELECT status FROM receipts WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundErr("Receipt not found")
		}
		return nil, StorageErr(err)
	}

	if status == models.ReceiptStatusVoid {
		return nil, ConflictErr("Receipt is voided and cannot be marked paid")
	}
	if status == models.ReceiptStatusPaid && paymentDate == nil {
		// Re-marking a paid receipt without a new date is a no-op.
		return rs.fetchReceipt(ctx, id)
	}

	pd := rs.now()
	if paymentDate != nil {
		pd = *paymentDate
	}

	// Conditional update: a void that lands between the check above and
	// this write makes the transition lose, not overwrite.
	result, err := rs.db.ExecContext(ctx, `
		UPDATE receipts
		SET status = 'PAID', payment_date = $1, updated_at = NOW()
		WHERE id = $2 AND status <> 'VOID'
	`, pd, id)
	if err != nil {
		return nil, StorageErr(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, StorageErr(err)
	}
	if affected == 0 {
		return nil, ConflictErr("Receipt is voided and cannot be marked paid")
	}

	return rs.fetchReceipt(ctx, id)
}

// VoidReceipt voids a receipt
// @Summary Void receipt
// @Description Transition a receipt to the terminal VOID state
// @Tags receipts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Receipt ID"
// @Param request body object{reason=string} true "Void reason"
// @Success 200 {object} object{receipt_number=string,void_reason=string,void_date=string}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /receipts/{id}/void [post]
func (rs *ReceiptService) VoidReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	result, err := rs.voidReceipt(r.Context(), id, req.Reason)
	if err != nil {
		log.Printf("[RECEIPT] Void failed for %s: %v", id, err)
		SendAppError(w, err)
		return
	}

	log.Printf("[RECEIPT] Voided %s: %s", result.ReceiptNumber, result.VoidReason)
	SendJSON(w, http.StatusOK, result)
}

// VoidResult is the response body of a successful void.
type VoidResult struct {
	ReceiptNumber string    `json:"receipt_number"`
	VoidReason    string    `json:"void_reason"`
	VoidDate      time.Time `json:"void_date"`
}

func (rs *ReceiptService) voidReceipt(ctx context.Context, id, reason string) (*VoidResult, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ValidationErr("Void reason is required")
	}

	// Single atomic conditional update: two concurrent voids cannot both
	// pass, the storage layer decides the winner.
	var result VoidResult
	err := rs.db.QueryRowContext(ctx, `
		UPDATE receipts
		SET status = 'VOID', void_reason = $1, void_date = NOW(), updated_at = NOW()
		WHERE id = $2 AND status <> 'VOID'
		RETURNING receipt_number, void_reason, void_date
	`, reason, id).Scan(&result.ReceiptNumber, &result.VoidReason, &result.VoidDate)

	if err == nil {
		return &result, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, StorageErr(err)
	}

	// No row updated: distinguish missing from already void.
	var exists bool
	checkErr := rs.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM receipts WHERE id = $1)`, id).Scan(&exists)
	if checkErr != nil {
		return nil, StorageErr(checkErr)
	}
	if !exists {
		return nil, NotFoundErr("Receipt not found")
	}
	return nil, ConflictErr("Receipt is already voided")
}

// VerifyReceipt is the public lookup behind the QR verification URL
// @Summary Verify receipt
// @Description Public verification of a receipt by its number
// @Tags receipts
// @Produce json
// @Param receiptNumber path string true "Receipt number"
// @Success 200 {object} object{receipt_number=string,status=string}
// @Failure 404 {object} ErrorResponse
// @Router /verify/{receiptNumber} [get]
func (rs *ReceiptService) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "receiptNumber")

	var amountStr, status, issueDate, agencyName string
	err := rs.db.QueryRowContext(r.Context(), `
		SELECT r.amount::text, r.status, r.issue_date::text, a.agency_name
		FROM receipts r
		JOIN agencies a ON r.agency_id = a.id
		WHERE r.receipt_number = $1
	`, number).Scan(&amountStr, &status, &issueDate, &agencyName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			SendErrorResponse(w, "Receipt not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[RECEIPT] Verify failed for %s: %v", number, err)
		SendAppError(w, StorageErr(err))
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"receipt_number": number,
		"agency_name":    agencyName,
		"amount":         amountStr,
		"status":         status,
		"issue_date":     issueDate,
		"valid":          status != models.ReceiptStatusVoid,
	})
}

// isUniqueViolation reports a Postgres unique-constraint failure (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return defaultVal
}
