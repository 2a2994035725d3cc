package services

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/avelio/backend/internal/config"
	"github.com/shopspring/decimal"
)

// StatsService serves the operational dashboards: today's takings, the
// current month and the pending queue with overdue classification.
type StatsService struct {
	db  *sql.DB
	cfg *config.AppConfig
	now func() time.Time
}

func NewStatsService(db *sql.DB, cfg *config.AppConfig) *StatsService {
	return &StatsService{db: db, cfg: cfg, now: time.Now}
}

// PeriodTotals is a count-and-sum pair for one reporting window.
type PeriodTotals struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// PendingReceipt is one entry of the pending queue. Overdue and Stale are
// distinct conditions: the first needs an elapsed due date, the second only
// age since issue.
type PendingReceipt struct {
	ID            string          `json:"id"`
	ReceiptNumber string          `json:"receipt_number"`
	AgencyID      string          `json:"agency_id"`
	AgencyName    string          `json:"agency_name"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	IssueDate     string          `json:"issue_date"`
	DueDate       *string         `json:"due_date,omitempty"`
	Overdue       bool            `json:"overdue"`
	Stale         bool            `json:"stale"`
}

// GetDashboardStats returns the landing-page summary
// @Summary Dashboard stats
// @Description Today's and this month's totals, the pending queue shape and
// @Description the top five agencies by revenue
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{today=PeriodTotals,month=PeriodTotals,paid=PeriodTotals,pending=PeriodTotals,top_agencies=[]AgencyRevenue}
// @Failure 500 {object} ErrorResponse
// @Router /stats/dashboard [get]
func (s *StatsService) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	today := businessDate(now, s.cfg.Location)
	month := monthKey(now, s.cfg.Location)

	todayTotals, err := s.periodTotals(r.Context(),
		`SELECT COUNT(*), COALESCE(SUM(amount), 0)::text FROM receipts
		 WHERE issue_date = $1 AND status <> 'VOID'`, today)
	if err != nil {
		log.Printf("[STATS] Dashboard failed: %v", err)
		SendAppError(w, err)
		return
	}

	monthTotals, err := s.periodTotals(r.Context(),
		`SELECT COUNT(*), COALESCE(SUM(amount), 0)::text FROM receipts
		 WHERE to_char(issue_date, 'YYYY-MM') = $1 AND status <> 'VOID'`, month)
	if err != nil {
		log.Printf("[STATS] Dashboard failed: %v", err)
		SendAppError(w, err)
		return
	}

	paidTotals, err := s.periodTotals(r.Context(),
		`SELECT COUNT(*), COALESCE(SUM(amount), 0)::text FROM receipts
		 WHERE status = $1`, "PAID")
	if err != nil {
		log.Printf("[STATS] Dashboard failed: %v", err)
		SendAppError(w, err)
		return
	}

	pendingTotals, err := s.periodTotals(r.Context(),
		`SELECT COUNT(*), COALESCE(SUM(amount), 0)::text FROM receipts
		 WHERE status = $1`, "PENDING")
	if err != nil {
		log.Printf("[STATS] Dashboard failed: %v", err)
		SendAppError(w, err)
		return
	}

	pending, err := s.fetchPendingQueue(r.Context())
	if err != nil {
		log.Printf("[STATS] Dashboard failed: %v", err)
		SendAppError(w, err)
		return
	}

	topAgencies, err := s.topAgencies(r.Context(), 5)
	if err != nil {
		log.Printf("[STATS] Dashboard failed: %v", err)
		SendAppError(w, err)
		return
	}

	overdue, stale := 0, 0
	for _, p := range pending {
		if p.Overdue {
			overdue++
		}
		if p.Stale {
			stale++
		}
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"today":        todayTotals,
		"month":        monthTotals,
		"paid":         paidTotals,
		"pending":      pendingTotals,
		"overdue":      overdue,
		"stale":        stale,
		"top_agencies": topAgencies,
	})
}

func (s *StatsService) topAgencies(ctx context.Context, limit int) ([]AgencyRevenue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(a.agency_id, ''), COALESCE(NULLIF(a.agency_name, ''), 'Unknown'),
		       COUNT(*), COALESCE(SUM(r.amount), 0)::text
		FROM receipts r
		LEFT JOIN agencies a ON r.agency_id = a.id
		WHERE r.status <> 'VOID'
		GROUP BY 1, 2
		ORDER BY SUM(r.amount) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, StorageErr(err)
	}
	defer rows.Close()

	out := []AgencyRevenue{}
	for rows.Next() {
		var a AgencyRevenue
		var amountStr string
		if err := rows.Scan(&a.AgencyID, &a.AgencyName, &a.ReceiptCount, &amountStr); err != nil {
			return nil, StorageErr(err)
		}
		if a.TotalAmount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, StorageErr(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, StorageErr(err)
	}
	return out, nil
}

func (s *StatsService) periodTotals(ctx context.Context, query string, arg any) (*PeriodTotals, error) {
	var totals PeriodTotals
	var amountStr string
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&totals.Count, &amountStr); err != nil {
		return nil, StorageErr(err)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, StorageErr(err)
	}
	totals.Amount = amount
	return &totals, nil
}

// GetTodayStats returns today's receipts broken down by status and method
// @Summary Today's stats
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{date=string,by_status=object,by_method=object}
// @Failure 500 {object} ErrorResponse
// @Router /stats/today [get]
func (s *StatsService) GetTodayStats(w http.ResponseWriter, r *http.Request) {
	today := businessDate(s.now(), s.cfg.Location)

	byStatus, err := s.groupTotals(r.Context(), `
		SELECT UPPER(COALESCE(status, 'UNKNOWN')), COUNT(*), COALESCE(SUM(amount), 0)::text
		FROM receipts WHERE issue_date = $1 GROUP BY 1`, today)
	if err != nil {
		log.Printf("[STATS] Today failed: %v", err)
		SendAppError(w, err)
		return
	}

	byMethod, err := s.groupTotals(r.Context(), `
		SELECT COALESCE(payment_method, 'UNSPECIFIED'), COUNT(*), COALESCE(SUM(amount), 0)::text
		FROM receipts WHERE issue_date = $1 AND status <> 'VOID' GROUP BY 1`, today)
	if err != nil {
		log.Printf("[STATS] Today failed: %v", err)
		SendAppError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"date":      today,
		"by_status": byStatus,
		"by_method": byMethod,
	})
}

func (s *StatsService) groupTotals(ctx context.Context, query string, arg any) (map[string]PeriodTotals, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, StorageErr(err)
	}
	defer rows.Close()

	out := map[string]PeriodTotals{}
	for rows.Next() {
		var key, amountStr string
		var totals PeriodTotals
		if err := rows.Scan(&key, &totals.Count, &amountStr); err != nil {
			return nil, StorageErr(err)
		}
		if totals.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, StorageErr(err)
		}
		out[key] = totals
	}
	if err := rows.Err(); err != nil {
		return nil, StorageErr(err)
	}
	return out, nil
}

// GetPendingReceipts returns the pending queue, oldest first
// @Summary Pending receipts
// @Description Pending receipts with overdue (past due date) and stale (aged
// @Description past the display threshold) flags
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{receipts=[]PendingReceipt}
// @Failure 500 {object} ErrorResponse
// @Router /stats/pending [get]
func (s *StatsService) GetPendingReceipts(w http.ResponseWriter, r *http.Request) {
	pending, err := s.fetchPendingQueue(r.Context())
	if err != nil {
		log.Printf("[STATS] Pending failed: %v", err)
		SendAppError(w, err)
		return
	}

	overdue := 0
	for _, p := range pending {
		if p.Overdue {
			overdue++
		}
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"receipts": pending,
		"count":    len(pending),
		"overdue":  overdue,
		"upcoming": len(pending) - overdue,
	})
}

func (s *StatsService) fetchPendingQueue(ctx context.Context) ([]PendingReceipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.receipt_number, a.agency_id, a.agency_name,
		       r.amount::text, r.currency, r.issue_date::text, r.due_date::text
		FROM receipts r
		JOIN agencies a ON r.agency_id = a.id
		WHERE r.status = 'PENDING'
		ORDER BY r.issue_date ASC, r.created_at ASC
	`)
	if err != nil {
		return nil, StorageErr(err)
	}
	defer rows.Close()

	now := s.now()
	out := []PendingReceipt{}
	for rows.Next() {
		var p PendingReceipt
		var amountStr string
		var dueDate sql.NullString
		if err := rows.Scan(&p.ID, &p.ReceiptNumber, &p.AgencyID, &p.AgencyName,
			&amountStr, &p.Currency, &p.IssueDate, &dueDate); err != nil {
			return nil, StorageErr(err)
		}
		if p.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, StorageErr(err)
		}
		if dueDate.Valid {
			p.DueDate = &dueDate.String
		}
		p.Overdue = IsPastDueDate(p.DueDate, now, s.cfg.Location)
		p.Stale = IsStalePending(p.IssueDate, now, s.cfg.Location, s.cfg.StalePendingDays)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, StorageErr(err)
	}
	return out, nil
}
