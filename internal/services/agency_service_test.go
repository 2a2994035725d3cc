package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avelio/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func agencyListRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "agency_id", "agency_name", "contact_email", "contact_phone",
		"credit_limit", "is_active", "created_at", "updated_at",
	}).AddRow(
		"a1b2c3d4-0000-0000-0000-000000000001", "TRV-001", "Sahara Horizon Travel",
		"ops@sahara.example", nil, "25000.00", true, testClock, testClock,
	)
}

func TestAgencyService_ListAgencies(t *testing.T) {
	t.Run("active only by default", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectQuery("FROM agencies").
			WillReturnRows(agencyListRows())

		req := httptest.NewRequest("GET", "/agencies", nil)
		w := httptest.NewRecorder()

		service.ListAgencies(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		data := response["data"].(map[string]any)
		assert.Equal(t, float64(1), data["count"])
	})

	t.Run("search is bound, not spliced", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectQuery("ILIKE").
			WithArgs("%sahara%").
			WillReturnRows(agencyListRows())

		agencies, err := service.listAgencies(context.Background(), false, "sahara")
		assert.NoError(t, err)
		assert.Len(t, agencies, 1)
		assert.Equal(t, "TRV-001", agencies[0].AgencyID)
		assert.NotNil(t, agencies[0].CreditLimit)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAgencyService_GetAgency(t *testing.T) {
	t.Run("lookup by natural code", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectQuery("WHERE agency_id").
			WithArgs("TRV-001").
			WillReturnRows(agencyListRows())

		agency, err := service.getAgency(context.Background(), AgencyRefByCode("TRV-001"))
		assert.NoError(t, err)
		assert.Equal(t, "Sahara Horizon Travel", agency.AgencyName)
	})

	t.Run("lookup by surrogate id", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectQuery("WHERE id").
			WithArgs("a1b2c3d4-0000-0000-0000-000000000001").
			WillReturnRows(agencyListRows())

		agency, err := service.getAgency(context.Background(),
			AgencyRefByID("a1b2c3d4-0000-0000-0000-000000000001"))
		assert.NoError(t, err)
		assert.Equal(t, "TRV-001", agency.AgencyID)
	})

	t.Run("missing agency", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectQuery("WHERE agency_id").
			WillReturnError(sql.ErrNoRows)

		_, err = service.getAgency(context.Background(), AgencyRefByCode("TRV-404"))
		appErr, ok := AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, KindNotFound, appErr.Kind)
	})
}

func TestAgencyService_UpsertAgency(t *testing.T) {
	t.Run("fresh code inserts and reports created", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectQuery("ON CONFLICT").
			WithArgs("TRV-009", "Nile Gate Tours", nil, nil, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "inserted"}).
				AddRow("a1b2c3d4-0000-0000-0000-000000000009", testClock, testClock, true))

		agency, created, err := service.upsertAgency(context.Background(), CreateAgencyRequest{
			AgencyID:   " trv-009 ",
			AgencyName: "Nile Gate Tours",
		})
		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "TRV-009", agency.AgencyID)
		assert.True(t, agency.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing code updates and reactivates", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectQuery("ON CONFLICT").
			WithArgs("TRV-001", "Sahara Horizon Travel", nil, nil, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "inserted"}).
				AddRow("a1b2c3d4-0000-0000-0000-000000000001", testClock, testClock, false))

		agency, created, err := service.upsertAgency(context.Background(), CreateAgencyRequest{
			AgencyID:   "TRV-001",
			AgencyName: "Sahara Horizon Travel",
		})
		assert.NoError(t, err)
		assert.False(t, created)
		assert.True(t, agency.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("created maps to 201 and updated to 200", func(t *testing.T) {
		for _, tc := range []struct {
			name     string
			inserted bool
			want     int
		}{
			{"insert", true, http.StatusCreated},
			{"update", false, http.StatusOK},
		} {
			t.Run(tc.name, func(t *testing.T) {
				db, mock, err := sqlmock.New()
				assert.NoError(t, err)
				defer db.Close()

				service := NewAgencyService(db)

				mock.ExpectQuery("ON CONFLICT").
					WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "inserted"}).
						AddRow("a1b2c3d4-0000-0000-0000-000000000001", testClock, testClock, tc.inserted))

				body, _ := json.Marshal(CreateAgencyRequest{
					AgencyID:   "TRV-001",
					AgencyName: "Sahara Horizon Travel",
				})

				req := httptest.NewRequest("POST", "/agencies", bytes.NewReader(body))
				w := httptest.NewRecorder()
				service.UpsertAgency(w, req)

				assert.Equal(t, tc.want, w.Code)
			})
		}
	})
}

func TestAgencyService_UpdateAgency(t *testing.T) {
	t.Run("no fields is a validation error", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		_, err = service.updateAgency(context.Background(), AgencyRefByCode("TRV-001"), UpdateAgencyRequest{})
		appErr, ok := AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, KindValidation, appErr.Kind)
	})

	t.Run("deactivation keeps the row", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		inactive := agencyListRows()
		mock.ExpectQuery("UPDATE agencies").
			WithArgs(false, "TRV-001").
			WillReturnRows(inactive)

		off := false
		_, err = service.updateAgency(context.Background(), AgencyRefByCode("TRV-001"),
			UpdateAgencyRequest{IsActive: &off})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAgencyService_BulkUpsert(t *testing.T) {
	email := "ops@nile.example"
	active := true

	t.Run("counts created and updated separately", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectBegin()
		mock.ExpectQuery("ON CONFLICT").
			WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
		mock.ExpectQuery("ON CONFLICT").
			WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(false))
		mock.ExpectCommit()

		created, updated, skipped, err := service.bulkUpsert(context.Background(), []models.AgencyUpsert{
			{AgencyID: "TRV-010", AgencyName: "New Dawn Travel"},
			{AgencyID: "TRV-001", AgencyName: "Sahara Horizon Travel", ContactEmail: &email, IsActive: &active},
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, created)
		assert.Equal(t, 1, updated)
		assert.Equal(t, 0, skipped)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bad rows are skipped and the rest still land", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectBegin()
		mock.ExpectQuery("ON CONFLICT").
			WithArgs("TRV-010", "New Dawn Travel", nil, true).
			WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
		mock.ExpectCommit()

		created, updated, skipped, err := service.bulkUpsert(context.Background(), []models.AgencyUpsert{
			{AgencyID: "", AgencyName: "Nameless"},
			{AgencyID: "TRV-010", AgencyName: "New Dawn Travel"},
			{AgencyID: "TRV-011", AgencyName: "   "},
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, created)
		assert.Equal(t, 0, updated)
		assert.Equal(t, 2, skipped)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mid-batch failure rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectBegin()
		mock.ExpectQuery("ON CONFLICT").
			WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
		mock.ExpectQuery("ON CONFLICT").
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		_, _, _, err = service.bulkUpsert(context.Background(), []models.AgencyUpsert{
			{AgencyID: "TRV-010", AgencyName: "New Dawn Travel"},
			{AgencyID: "TRV-011", AgencyName: "Red Sea Voyages"},
		})
		appErr, ok := AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, KindStorage, appErr.Kind)
	})

	t.Run("handler end to end", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAgencyService(db)

		mock.ExpectBegin()
		mock.ExpectQuery("ON CONFLICT").
			WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
		mock.ExpectCommit()

		body, _ := json.Marshal(BulkAgencyRequest{
			Agencies: []models.AgencyUpsert{{AgencyID: "TRV-010", AgencyName: "New Dawn Travel"}},
		})

		r := chi.NewRouter()
		r.Post("/agencies/bulk", service.BulkUpsertAgencies)

		req := httptest.NewRequest("POST", "/agencies/bulk", bytes.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		data := response["data"].(map[string]any)
		assert.Equal(t, float64(1), data["created"])
		assert.Equal(t, float64(0), data["updated"])
		assert.Equal(t, float64(0), data["skipped"])
	})
}
