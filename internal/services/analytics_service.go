package services

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/avelio/backend/internal/config"
	"github.com/shopspring/decimal"
)

// AnalyticsService computes revenue aggregations over the receipt ledger.
// It never writes; all figures derive from receipt rows at query time.
type AnalyticsService struct {
	db  *sql.DB
	cfg *config.AppConfig
	now func() time.Time
}

func NewAnalyticsService(db *sql.DB, cfg *config.AppConfig) *AnalyticsService {
	return &AnalyticsService{db: db, cfg: cfg, now: time.Now}
}

// StatusBucket is one status slice of the breakdown.
type StatusBucket struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// StatusBreakdown groups receipts by status. Rows whose status matches no
// known value are folded into Unknown rather than dropped, so the grand
// totals always reconcile with the table.
type StatusBreakdown struct {
	Pending StatusBucket  `json:"PENDING"`
	Paid    StatusBucket  `json:"PAID"`
	Void    StatusBucket  `json:"VOID"`
	Unknown *StatusBucket `json:"UNKNOWN,omitempty"`
}

// MonthBucket is one calendar month of activity (business timezone).
type MonthBucket struct {
	Month  string          `json:"month"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthStatusBucket is one month-and-status cell of the grid.
type MonthStatusBucket struct {
	Month  string          `json:"month"`
	Status string          `json:"status"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// AgencyRevenue is one row of the top-agencies leaderboard.
type AgencyRevenue struct {
	AgencyID     string          `json:"agency_id"`
	AgencyName   string          `json:"agency_name"`
	ReceiptCount int             `json:"receipt_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// AnalyticsReport is the full analytics payload.
type AnalyticsReport struct {
	TotalRevenue        decimal.Decimal     `json:"totalRevenue"`
	TotalReceipts       int                 `json:"totalReceipts"`
	AverageReceiptValue decimal.Decimal     `json:"averageReceiptValue"`
	ThisMonthRevenue    decimal.Decimal     `json:"thisMonthRevenue"`
	ThisMonthReceipts   int                 `json:"thisMonthReceipts"`
	LastMonthRevenue    decimal.Decimal     `json:"lastMonthRevenue"`
	LastMonthReceipts   int                 `json:"lastMonthReceipts"`
	GrowthRate          float64             `json:"growthRate"`
	ByStatus            StatusBreakdown     `json:"byStatus"`
	ByMonth             []MonthBucket       `json:"byMonth"`
	ByMonthStatus       []MonthStatusBucket `json:"byMonthStatus"`
	TopAgencies         []AgencyRevenue     `json:"topAgencies"`
}

// GetAnalytics returns the revenue analytics report
// @Summary Revenue analytics
// @Description Aggregated totals, monthly series, status breakdown, top
// @Description agencies and month-over-month growth. Voided receipts appear
// @Description in the status breakdown but never count toward revenue.
// @Tags analytics
// @Produce json
// @Security BearerAuth
// @Param date_from query string false "Issue date lower bound (YYYY-MM-DD)"
// @Param date_to query string false "Issue date upper bound, inclusive (YYYY-MM-DD)"
// @Success 200 {object} AnalyticsReport
// @Failure 500 {object} ErrorResponse
// @Router /analytics [get]
func (s *AnalyticsService) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	dateFrom := strings.TrimSpace(r.URL.Query().Get("date_from"))
	dateTo := strings.TrimSpace(r.URL.Query().Get("date_to"))

	report, err := s.buildReport(r.Context(), dateFrom, dateTo)
	if err != nil {
		log.Printf("[ANALYTICS] Report failed: %v", err)
		SendAppError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, report)
}

func (s *AnalyticsService) buildReport(ctx context.Context, dateFrom, dateTo string) (*AnalyticsReport, error) {
	where, args := buildDateFilter(dateFrom, dateTo)

	statusRows, err := s.queryStatusRows(ctx, where, args)
	if err != nil {
		return nil, err
	}

	byMonth, byMonthStatus, err := s.queryMonthlySeries(ctx, where, args)
	if err != nil {
		return nil, err
	}

	topAgencies, err := s.queryTopAgencies(ctx, where, args)
	if err != nil {
		return nil, err
	}

	report := foldStatusRows(statusRows)
	report.ByMonth = byMonth
	report.ByMonthStatus = byMonthStatus
	report.TopAgencies = topAgencies

	now := s.now()
	report.ThisMonthRevenue, report.ThisMonthReceipts = monthTotals(byMonth, monthKey(now, s.cfg.Location))
	report.LastMonthRevenue, report.LastMonthReceipts = monthTotals(byMonth, previousMonthKey(now, s.cfg.Location))
	report.GrowthRate = computeGrowthRate(report.ThisMonthRevenue, report.LastMonthRevenue)

	return report, nil
}

func buildDateFilter(dateFrom, dateTo string) (string, []any) {
	conditions := []string{}
	args := []any{}

	if dateFrom != "" {
		args = append(args, dateFrom)
		conditions = append(conditions, "r.issue_date >= $1")
	}
	if dateTo != "" {
		args = append(args, dateTo)
		if len(args) == 2 {
			conditions = append(conditions, "r.issue_date <= $2")
		} else {
			conditions = append(conditions, "r.issue_date <= $1")
		}
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// statusRow is one raw GROUP BY status result.
type statusRow struct {
	Status string
	Count  int
	Amount decimal.Decimal
}

func (s *AnalyticsService) queryStatusRows(ctx context.Context, where string, args []any) ([]statusRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT UPPER(COALESCE(r.status, 'UNKNOWN')), COUNT(*), COALESCE(SUM(r.amount), 0)::text
		FROM receipts r`+where+`
		GROUP BY 1
	`, args...)
	if err != nil {
		return nil, StorageErr(err)
	}
	defer rows.Close()

	out := []statusRow{}
	for rows.Next() {
		var row statusRow
		var amountStr string
		if err := rows.Scan(&row.Status, &row.Count, &amountStr); err != nil {
			return nil, StorageErr(err)
		}
		if row.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, StorageErr(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, StorageErr(err)
	}
	return out, nil
}

// foldStatusRows classifies raw status groups into the report skeleton.
// Revenue counts PENDING, PAID and unrecognized statuses; VOID is carried
// in the breakdown for visibility but contributes nothing to totals.
func foldStatusRows(rows []statusRow) *AnalyticsReport {
	report := &AnalyticsReport{
		TotalRevenue:        decimal.Zero,
		AverageReceiptValue: decimal.Zero,
		ByMonth:             []MonthBucket{},
		ByMonthStatus:       []MonthStatusBucket{},
		TopAgencies:         []AgencyRevenue{},
	}

	zeroed := func() StatusBucket { return StatusBucket{Amount: decimal.Zero} }
	report.ByStatus = StatusBreakdown{Pending: zeroed(), Paid: zeroed(), Void: zeroed()}

	for _, row := range rows {
		bucket := StatusBucket{Count: row.Count, Amount: row.Amount}
		switch row.Status {
		case "PENDING":
			report.ByStatus.Pending = bucket
		case "PAID":
			report.ByStatus.Paid = bucket
		case "VOID":
			report.ByStatus.Void = bucket
			continue
		default:
			if report.ByStatus.Unknown == nil {
				u := zeroed()
				report.ByStatus.Unknown = &u
			}
			report.ByStatus.Unknown.Count += row.Count
			report.ByStatus.Unknown.Amount = report.ByStatus.Unknown.Amount.Add(row.Amount)
		}
		report.TotalReceipts += row.Count
		report.TotalRevenue = report.TotalRevenue.Add(row.Amount)
	}

	report.AverageReceiptValue = averageValue(report.TotalRevenue, report.TotalReceipts)
	return report
}

// averageValue divides total by count, rounded to 2 decimal places.
func averageValue(total decimal.Decimal, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(count)), 2)
}

// computeGrowthRate returns the month-over-month revenue change in percent.
// A prior month with zero revenue makes the ratio undefined, so the rate is
// pinned to 0 there to keep the figure finite.
func computeGrowthRate(current, previous decimal.Decimal) float64 {
	if previous.IsZero() {
		return 0
	}
	rate, _ := current.Sub(previous).
		Div(previous).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return rate
}

func monthTotals(byMonth []MonthBucket, month string) (decimal.Decimal, int) {
	for _, b := range byMonth {
		if b.Month == month {
			return b.Amount, b.Count
		}
	}
	return decimal.Zero, 0
}

func (s *AnalyticsService) queryMonthlySeries(ctx context.Context, where string, args []any) ([]MonthBucket, []MonthStatusBucket, error) {
	voidClause := " WHERE r.status <> 'VOID'"
	if where != "" {
		voidClause = where + " AND r.status <> 'VOID'"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(r.issue_date, 'YYYY-MM'), COUNT(*), COALESCE(SUM(r.amount), 0)::text
		FROM receipts r`+voidClause+`
		GROUP BY 1
		ORDER BY 1
	`, args...)
	if err != nil {
		return nil, nil, StorageErr(err)
	}
	defer rows.Close()

	byMonth := []MonthBucket{}
	for rows.Next() {
		var b MonthBucket
		var amountStr string
		if err := rows.Scan(&b.Month, &b.Count, &amountStr); err != nil {
			return nil, nil, StorageErr(err)
		}
		if b.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, nil, StorageErr(err)
		}
		byMonth = append(byMonth, b)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, StorageErr(err)
	}

	gridRows, err := s.db.QueryContext(ctx, `
		SELECT to_char(r.issue_date, 'YYYY-MM'), UPPER(COALESCE(r.status, 'UNKNOWN')),
		       COUNT(*), COALESCE(SUM(r.amount), 0)::text
		FROM receipts r`+where+`
		GROUP BY 1, 2
		ORDER BY 1, 2
	`, args...)
	if err != nil {
		return nil, nil, StorageErr(err)
	}
	defer gridRows.Close()

	byMonthStatus := []MonthStatusBucket{}
	for gridRows.Next() {
		var b MonthStatusBucket
		var amountStr string
		if err := gridRows.Scan(&b.Month, &b.Status, &b.Count, &amountStr); err != nil {
			return nil, nil, StorageErr(err)
		}
		if b.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, nil, StorageErr(err)
		}
		byMonthStatus = append(byMonthStatus, b)
	}
	if err := gridRows.Err(); err != nil {
		return nil, nil, StorageErr(err)
	}

	return byMonth, byMonthStatus, nil
}

func (s *AnalyticsService) queryTopAgencies(ctx context.Context, where string, args []any) ([]AgencyRevenue, error) {
	voidClause := " WHERE r.status <> 'VOID'"
	if where != "" {
		voidClause = where + " AND r.status <> 'VOID'"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(a.agency_id, ''), COALESCE(NULLIF(a.agency_name, ''), 'Unknown'),
		       COUNT(*), COALESCE(SUM(r.amount), 0)::text
		FROM receipts r
		LEFT JOIN agencies a ON r.agency_id = a.id`+voidClause+`
		GROUP BY 1, 2
		ORDER BY SUM(r.amount) DESC
		LIMIT 10
	`, args...)
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
