package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/avelio/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AgencyService maintains the partner agency directory the receipt ledger
// issues against.
type AgencyService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewAgencyService(db *sql.DB) *AgencyService {
	return &AgencyService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

type CreateAgencyRequest struct {
	AgencyID     string           `json:"agency_id" validate:"required,max=20"`
	AgencyName   string           `json:"agency_name" validate:"required,max=200"`
	ContactEmail *string          `json:"contact_email" validate:"omitempty,email"`
	ContactPhone *string          `json:"contact_phone" validate:"omitempty,max=30"`
	CreditLimit  *decimal.Decimal `json:"credit_limit"`
}

// ListAgencies returns the agency directory
// @Summary List agencies
// @Description Active agencies, optionally including deactivated ones
// @Tags agencies
// @Produce json
// @Security BearerAuth
// @Param include_inactive query bool false "Include deactivated agencies"
// @Param search query string false "Match against agency code or name"
// @Success 200 {object} object{agencies=[]models.Agency}
// @Failure 500 {object} ErrorResponse
// @Router /agencies [get]
func (s *AgencyService) ListAgencies(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	agencies, err := s.listAgencies(r.Context(), includeInactive, search)
	if err != nil {
		log.Printf("[AGENCY] List failed: %v", err)
		SendAppError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"agencies": agencies,
		"count":    len(agencies),
	})
}

func (s *AgencyService) listAgencies(ctx context.Context, includeInactive bool, search string) ([]models.Agency, error) {
	conditions := []string{}
	args := []any{}

	if !includeInactive {
		conditions = append(conditions, "is_active = true")
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions,
			fmt.Sprintf("(agency_id ILIKE $%d OR agency_name ILIKE $%d)", len(args), len(args)))
	}

	query := `
		SELECT id, agency_id, agency_name, contact_email, contact_phone,
		       credit_limit::text, is_active, created_at, updated_at
		FROM agencies`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY agency_name ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, StorageErr(err)
	}
	defer rows.Close()

	agencies := []models.Agency{}
	for rows.Next() {
		agency, err := scanAgency(rows)
		if err != nil {
			return nil, StorageErr(err)
		}
		agencies = append(agencies, *agency)
	}
	if err := rows.Err(); err != nil {
		return nil, StorageErr(err)
	}
	return agencies, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgency(row rowScanner) (*models.Agency, error) {
	var agency models.Agency
	var contactEmail, contactPhone, creditLimit sql.NullString

	err := row.Scan(
		&agency.ID, &agency.AgencyID, &agency.AgencyName,
		&contactEmail, &contactPhone, &creditLimit,
		&agency.IsActive, &agency.CreatedAt, &agency.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if contactEmail.Valid {
		agency.ContactEmail = &contactEmail.String
	}
	if contactPhone.Valid {
		agency.ContactPhone = &contactPhone.String
	}
	if creditLimit.Valid {
		limit, err := decimal.NewFromString(creditLimit.String)
		if err != nil {
			return nil, err
		}
		agency.CreditLimit = &limit
	}
	return &agency, nil
}

// GetAgency looks an agency up by id or natural code
// @Summary Get agency
// @Tags agencies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Agency ID or code"
// @Success 200 {object} models.Agency
// @Failure 404 {object} ErrorResponse
// @Router /agencies/{id} [get]
func (s *AgencyService) GetAgency(w http.ResponseWriter, r *http.Request) {
	ref := ParseAgencyRef(chi.URLParam(r, "id"))

	agency, err := s.getAgency(r.Context(), ref)
	if err != nil {
		SendAppError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{"agency": agency})
}

func (s *AgencyService) getAgency(ctx context.Context, ref AgencyRef) (*models.Agency, error) {
	const cols = `id, agency_id, agency_name, contact_email, contact_phone,
		credit_limit::text, is_active, created_at, updated_at`

	var row *sql.Row
	if id, ok := ref.ByID(); ok {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+cols+` FROM agencies WHERE id = $1`, id)
	} else {
		code, _ := ref.ByCode()
		row = s.db.QueryRowContext(ctx,
			`SELECT `+cols+` FROM agencies WHERE agency_id = $1`, code)
	}

	agency, err := scanAgency(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundErr("Agency not found")
		}
		return nil, StorageErr(err)
	}
	return agency, nil
}

// UpsertAgency registers an agency, or refreshes it when the code exists
// @Summary Upsert agency
// @Description Insert-or-update keyed on the agency code; an existing agency
// @Description is reactivated and its name and contacts refreshed.
// @Tags agencies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param agency body CreateAgencyRequest true "Agency data"
// @Success 200 {object} models.Agency
// @Success 201 {object} models.Agency
// @Failure 400 {object} ErrorResponse
// @Router /agencies [post]
func (s *AgencyService) UpsertAgency(w http.ResponseWriter, r *http.Request) {
	var req CreateAgencyRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	agency, created, err := s.upsertAgency(r.Context(), req)
	if err != nil {
		log.Printf("[AGENCY] Upsert failed for %s: %v", req.AgencyID, err)
		SendAppError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		log.Printf("[AGENCY] Created %s (%s)", agency.AgencyID, agency.AgencyName)
	} else {
		log.Printf("[AGENCY] Updated %s (%s)", agency.AgencyID, agency.AgencyName)
	}
	SendJSON(w, status, map[string]any{"agency": agency})
}

func (s *AgencyService) upsertAgency(ctx context.Context, req CreateAgencyRequest) (*models.Agency, bool, error) {
	var creditLimit any
	if req.CreditLimit != nil {
		creditLimit = req.CreditLimit.String()
	}

	code := strings.ToUpper(strings.TrimSpace(req.AgencyID))
	name := strings.TrimSpace(req.AgencyName)

	var agency models.Agency
	var created bool
	agency.AgencyID = code
	agency.AgencyName = name
	agency.ContactEmail = req.ContactEmail
	agency.ContactPhone = req.ContactPhone
	agency.CreditLimit = req.CreditLimit
	agency.IsActive = true

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO agencies (agency_id, agency_name, contact_email, contact_phone, credit_limit, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (agency_id) DO UPDATE
		SET agency_name = EXCLUDED.agency_name,
		    contact_email = COALESCE(EXCLUDED.contact_email, agencies.contact_email),
		    contact_phone = COALESCE(EXCLUDED.contact_phone, agencies.contact_phone),
		    credit_limit = COALESCE(EXCLUDED.credit_limit, agencies.credit_limit),
		    is_active = true,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)
	`, code, name, req.ContactEmail, req.ContactPhone, creditLimit,
	).Scan(&agency.ID, &agency.CreatedAt, &agency.UpdatedAt, &created)
	if err != nil {
		return nil, false, StorageErr(err)
	}
	return &agency, created, nil
}

type UpdateAgencyRequest struct {
	AgencyName   *string          `json:"agency_name" validate:"omitempty,max=200"`
	ContactEmail *string          `json:"contact_email" validate:"omitempty,email"`
	ContactPhone *string          `json:"contact_phone" validate:"omitempty,max=30"`
	CreditLimit  *decimal.Decimal `json:"credit_limit"`
	IsActive     *bool            `json:"is_active"`
}

// UpdateAgency patches agency fields
// @Summary Update agency
// @Description Partial update; omitted fields are untouched. Setting
// @Description is_active=false deactivates the agency without deleting its
// @Description receipt history.
// @Tags agencies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Agency ID or code"
// @Param agency body UpdateAgencyRequest true "Fields to update"
// @Success 200 {object} models.Agency
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /agencies/{id} [patch]
func (s *AgencyService) UpdateAgency(w http.ResponseWriter, r *http.Request) {
	ref := ParseAgencyRef(chi.URLParam(r, "id"))

	var req UpdateAgencyRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	agency, err := s.updateAgency(r.Context(), ref, req)
	if err != nil {
		log.Printf("[AGENCY] Update failed: %v", err)
		SendAppError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{"agency": agency})
}

func (s *AgencyService) updateAgency(ctx context.Context, ref AgencyRef, req UpdateAgencyRequest) (*models.Agency, error) {
	sets := []string{}
	args := []any{}

	if req.AgencyName != nil {
		args = append(args, strings.TrimSpace(*req.AgencyName))
		sets = append(sets, fmt.Sprintf("agency_name = $%d", len(args)))
	}
	if req.ContactEmail != nil {
		args = append(args, *req.ContactEmail)
		sets = append(sets, fmt.Sprintf("contact_email = $%d", len(args)))
	}
	if req.ContactPhone != nil {
		args = append(args, *req.ContactPhone)
		sets = append(sets, fmt.Sprintf("contact_phone = $%d", len(args)))
	}
	if req.CreditLimit != nil {
		args = append(args, req.CreditLimit.String())
		sets = append(sets, fmt.Sprintf("credit_limit = $%d", len(args)))
	}
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil, ValidationErr("No fields to update")
	}

	sets = append(sets, "updated_at = NOW()")

	var keyClause string
	if id, ok := ref.ByID(); ok {
		args = append(args, id)
		keyClause = fmt.Sprintf("id = $%d", len(args))
	} else {
		code, _ := ref.ByCode()
		args = append(args, code)
		keyClause = fmt.Sprintf("agency_id = $%d", len(args))
	}

	query := fmt.Sprintf(`
		UPDATE agencies SET %s WHERE %s
		RETURNING id, agency_id, agency_name, contact_email, contact_phone,
		          credit_limit::text, is_active, created_at, updated_at
	`, strings.Join(sets, ", "), keyClause)

	agency, err := scanAgency(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundErr("Agency not found")
		}
		return nil, StorageErr(err)
	}
	return agency, nil
}

type BulkAgencyRequest struct {
	Agencies []models.AgencyUpsert `json:"agencies" validate:"required,min=1,max=500,dive"`
}

// BulkUpsertAgencies imports a batch of agencies
// @Summary Bulk upsert agencies
// @Description Insert-or-update by agency code inside a single transaction.
// @Description Rows missing a code or name are skipped, not fatal; the
// @Description response reports how many rows were applied and skipped.
// @Tags agencies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BulkAgencyRequest true "Agencies to import"
// @Success 200 {object} object{created=int,updated=int,skipped=int}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /agencies/bulk [post]
func (s *AgencyService) BulkUpsertAgencies(w http.ResponseWriter, r *http.Request) {
	var req BulkAgencyRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	created, updated, skipped, err := s.bulkUpsert(r.Context(), req.Agencies)
	if err != nil {
		log.Printf("[AGENCY] Bulk upsert failed: %v", err)
		SendAppError(w, err)
		return
	}

	log.Printf("[AGENCY] Bulk upsert: %d created, %d updated, %d skipped", created, updated, skipped)
	SendJSON(w, http.StatusOK, map[string]any{
		"created": created,
		"updated": updated,
		"skipped": skipped,
		"total":   created + updated,
	})
}

func (s *AgencyService) bulkUpsert(ctx context.Context, agencies []models.AgencyUpsert) (created, updated, skipped int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, 0, StorageErr(err)
	}
	defer tx.Rollback()

	for i, a := range agencies {
		// Lenient import: malformed rows are counted and skipped, the
		// rest of the batch still lands.
		if strings.TrimSpace(a.AgencyID) == "" || strings.TrimSpace(a.AgencyName) == "" {
			log.Printf("[AGENCY] Bulk upsert skipping row %d: agency_id and agency_name are required", i+1)
			skipped++
			continue
		}

		isActive := true
		if a.IsActive != nil {
			isActive = *a.IsActive
		}

		// xmax = 0 only holds for a freshly inserted row, which is how
		// the upsert distinguishes created from updated.
		var inserted bool
		err := tx.QueryRowContext(ctx, `
			INSERT INTO agencies (agency_id, agency_name, contact_email, is_active)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (agency_id) DO UPDATE
			SET agency_name = EXCLUDED.agency_name,
			    contact_email = COALESCE(EXCLUDED.contact_email, agencies.contact_email),
			    is_active = EXCLUDED.is_active,
			    updated_at = NOW()
			RETURNING (xmax = 0)
		`, strings.ToUpper(strings.TrimSpace(a.AgencyID)), strings.TrimSpace(a.AgencyName),
			a.ContactEmail, isActive,
		).Scan(&inserted)
		if err != nil {
			return 0, 0, 0, StorageErr(err)
		}
		if inserted {
			created++
		} else {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, 0, StorageErr(err)
	}
	return created, updated, skipped, nil
}
