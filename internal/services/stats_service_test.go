package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func pendingQueueRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "receipt_number", "agency_id", "agency_name",
		"amount", "currency", "issue_date", "due_date",
	}).
		// due yesterday: overdue, and issued long enough ago to be stale
		AddRow("r-0001", "KSH-CR-JUB-20260310-0001", "TRV-001", "Sahara Horizon Travel",
			"100.00", "USD", "2026-03-10", "2026-03-14").
		// no due date, issued 2 days ago: neither overdue nor stale
		AddRow("r-0002", "KSH-CR-JUB-20260313-0002", "TRV-002", "Nile Gate Tours",
			"200.00", "USD", "2026-03-13", nil).
		// no due date but aged past the threshold: stale only
		AddRow("r-0003", "KSH-CR-JUB-20260301-0003", "TRV-001", "Sahara Horizon Travel",
			"300.00", "USD", "2026-03-01", nil)
}

func TestStatsService_PendingQueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewStatsService(db, testAppConfig())
	service.now = func() time.Time { return testClock }

	mock.ExpectQuery("WHERE r.status = 'PENDING'").
		WillReturnRows(pendingQueueRows())

	pending, err := service.fetchPendingQueue(context.Background())
	assert.NoError(t, err)
	assert.Len(t, pending, 3)

	assert.True(t, pending[0].Overdue)
	assert.True(t, pending[0].Stale)

	assert.False(t, pending[1].Overdue)
	assert.False(t, pending[1].Stale)

	assert.False(t, pending[2].Overdue)
	assert.True(t, pending[2].Stale)
}

func TestStatsService_Dashboard(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewStatsService(db, testAppConfig())
	service.now = func() time.Time { return testClock }

	mock.ExpectQuery("WHERE issue_date").
		WithArgs("2026-03-15").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(4, "820.00"))
	mock.ExpectQuery("to_char").
		WithArgs("2026-03").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(40, "9100.00"))
	mock.ExpectQuery("WHERE status").
		WithArgs("PAID").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(34, "7900.00"))
	mock.ExpectQuery("WHERE status").
		WithArgs("PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(6, "1200.00"))
	mock.ExpectQuery("WHERE r.status = 'PENDING'").
		WillReturnRows(pendingQueueRows())
	mock.ExpectQuery("LEFT JOIN agencies").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"agency_id", "agency_name", "count", "sum"}).
			AddRow("TRV-001", "Sahara Horizon Travel", 12, "5400.00").
			AddRow("TRV-002", "Nile Gate Tours", 8, "2100.00"))

	req := httptest.NewRequest("GET", "/stats/dashboard", nil)
	w := httptest.NewRecorder()

	service.GetDashboardStats(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]any)

	today := data["today"].(map[string]any)
	assert.Equal(t, float64(4), today["count"])
	paid := data["paid"].(map[string]any)
	assert.Equal(t, float64(34), paid["count"])
	assert.Equal(t, float64(1), data["overdue"])
	assert.Equal(t, float64(2), data["stale"])

	top := data["top_agencies"].([]any)
	assert.Len(t, top, 2)
	assert.Equal(t, "TRV-001", top[0].(map[string]any)["agency_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsService_Pending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewStatsService(db, testAppConfig())
	service.now = func() time.Time { return testClock }

	mock.ExpectQuery("WHERE r.status = 'PENDING'").
		WillReturnRows(pendingQueueRows())

	req := httptest.NewRequest("GET", "/stats/pending", nil)
	w := httptest.NewRecorder()

	service.GetPendingReceipts(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]any)
	assert.Equal(t, float64(3), data["count"])
	assert.Equal(t, float64(1), data["overdue"])
	assert.Equal(t, float64(2), data["upcoming"])
}

func TestStatsService_Today(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewStatsService(db, testAppConfig())
	service.now = func() time.Time { return testClock }

	mock.ExpectQuery("GROUP BY").
		WithArgs("2026-03-15").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "sum"}).
			AddRow("PAID", 3, "700.00").
			AddRow("PENDING", 1, "120.00"))
	mock.ExpectQuery("GROUP BY").
		WithArgs("2026-03-15").
		WillReturnRows(sqlmock.NewRows([]string{"method", "count", "sum"}).
			AddRow("CASH", 2, "300.00").
			AddRow("BANK_TRANSFER", 2, "520.00"))

	req := httptest.NewRequest("GET", "/stats/today", nil)
	w := httptest.NewRecorder()

	service.GetTodayStats(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]any)
	assert.Equal(t, "2026-03-15", data["date"])

	byStatus := data["by_status"].(map[string]any)
	assert.Contains(t, byStatus, "PAID")
	assert.Contains(t, byStatus, "PENDING")
}
