package services

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/avelio/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ExportService produces the downloadable artifacts: CSV extracts, printed
// receipt PDFs and ISO 20022 remittance advices. It reads through the same
// filter clause the list endpoint uses so an export always matches what the
// screen shows.
type ExportService struct {
	db       *sql.DB
	receipts *ReceiptService
	pdf      PDFRenderer
	remit    *RemittanceService
}

func NewExportService(db *sql.DB, receipts *ReceiptService, pdf PDFRenderer, remit *RemittanceService) *ExportService {
	return &ExportService{db: db, receipts: receipts, pdf: pdf, remit: remit}
}

// ExportReceiptsCSV streams a CSV extract of receipts
// @Summary Export receipts CSV
// @Description Full (unpaginated) extract honoring the list filters
// @Tags export
// @Produce text/csv
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param agency_id query string false "Filter by agency code"
// @Param date_from query string false "Issue date lower bound (YYYY-MM-DD)"
// @Param date_to query string false "Issue date upper bound, inclusive (YYYY-MM-DD)"
// @Success 200 {string} string "CSV data"
// @Failure 500 {object} ErrorResponse
// @Router /export/receipts.csv [get]
func (es *ExportService) ExportReceiptsCSV(w http.ResponseWriter, r *http.Request) {
	filters := ReceiptFilters{
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		AgencyCode: strings.TrimSpace(r.URL.Query().Get("agency_id")),
		DateFrom:   strings.TrimSpace(r.URL.Query().Get("date_from")),
		DateTo:     strings.TrimSpace(r.URL.Query().Get("date_to")),
	}

	rows, err := es.queryExportRows(r.Context(), filters)
	if err != nil {
		log.Printf("[EXPORT] Receipts CSV failed: %v", err)
		SendAppError(w, err)
		return
	}
	if len(rows) == 0 {
		SendAppError(w, NotFoundErr("No receipts match the given filters"))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"Receipt Number", "Issue Date", "Issue Time", "Agency ID", "Agency Name",
		"Amount", "Currency", "Payment Method", "Status", "Payment Date",
		"Station", "Issued By", "Remarks",
	})
	for _, row := range rows {
		cw.Write(row)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("[EXPORT] Receipts CSV write failed: %v", err)
	}
}

func (es *ExportService) queryExportRows(ctx context.Context, filters ReceiptFilters) ([][]string, error) {
	where, args := buildReceiptFilter(filters)

	rows, err := es.db.QueryContext(ctx, `
		SELECT r.receipt_number, r.issue_date::text, r.issue_time::text,
		       COALESCE(a.agency_id, ''), COALESCE(a.agency_name, ''),
		       r.amount::text, r.currency, COALESCE(r.payment_method, ''), r.status,
		       COALESCE(to_char(r.payment_date, 'YYYY-MM-DD'), ''),
		       r.station_code, r.issued_by_name, COALESCE(r.remarks, '')
		FROM receipts r
		LEFT JOIN agencies a ON r.agency_id = a.id
	`+where+` ORDER BY r.created_at DESC`, args...)
	if err != nil {
		return nil, StorageErr(err)
	}
	defer rows.Close()

	out := [][]string{}
	for rows.Next() {
		record := make([]string, 13)
		dests := make([]any, len(record))
		for i := range record {
			dests[i] = &record[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, StorageErr(err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, StorageErr(err)
	}
	return out, nil
}

// agencySummaryRow is one agency's rollup in the summary export.
type agencySummaryRow struct {
	AgencyID      string
	AgencyName    string
	TotalCount    int
	TotalAmount   decimal.Decimal
	PaidCount     int
	PaidAmount    decimal.Decimal
	PendingCount  int
	PendingAmount decimal.Decimal
}

// ExportSummaryCSV streams the per-agency revenue summary as CSV
// @Summary Export agency summary CSV
// @Description One row per active agency with total, paid and pending counts
// @Description and amounts, ordered by grand total descending, plus a final
// @Description grand-total row. Voided receipts are excluded throughout.
// @Tags export
// @Produce text/csv
// @Security BearerAuth
// @Param date_from query string false "Issue date lower bound (YYYY-MM-DD)"
// @Param date_to query string false "Issue date upper bound, inclusive (YYYY-MM-DD)"
// @Success 200 {string} string "CSV data"
// @Failure 500 {object} ErrorResponse
// @Router /export/summary.csv [get]
func (es *ExportService) ExportSummaryCSV(w http.ResponseWriter, r *http.Request) {
	dateFrom := strings.TrimSpace(r.URL.Query().Get("date_from"))
	dateTo := strings.TrimSpace(r.URL.Query().Get("date_to"))

	rows, err := es.queryAgencySummary(r.Context(), dateFrom, dateTo)
	if err != nil {
		log.Printf("[EXPORT] Summary CSV failed: %v", err)
		SendAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="summary.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"Agency ID", "Agency Name", "Total Count", "Total Amount",
		"Paid Count", "Paid Amount", "Pending Count", "Pending Amount",
	})

	grand := agencySummaryRow{AgencyID: "TOTAL"}
	for _, row := range rows {
		cw.Write([]string{
			row.AgencyID, row.AgencyName,
			fmt.Sprintf("%d", row.TotalCount), row.TotalAmount.StringFixed(2),
			fmt.Sprintf("%d", row.PaidCount), row.PaidAmount.StringFixed(2),
			fmt.Sprintf("%d", row.PendingCount), row.PendingAmount.StringFixed(2),
		})
		grand.TotalCount += row.TotalCount
		grand.TotalAmount = grand.TotalAmount.Add(row.TotalAmount)
		grand.PaidCount += row.PaidCount
		grand.PaidAmount = grand.PaidAmount.Add(row.PaidAmount)
		grand.PendingCount += row.PendingCount
		grand.PendingAmount = grand.PendingAmount.Add(row.PendingAmount)
	}
	cw.Write([]string{
		grand.AgencyID, "",
		fmt.Sprintf("%d", grand.TotalCount), grand.TotalAmount.StringFixed(2),
		fmt.Sprintf("%d", grand.PaidCount), grand.PaidAmount.StringFixed(2),
		fmt.Sprintf("%d", grand.PendingCount), grand.PendingAmount.StringFixed(2),
	})
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("[EXPORT] Summary CSV write failed: %v", err)
	}
}

// queryAgencySummary joins receipts onto active agencies. Date bounds land in
// the join condition so an agency with no matching receipts still shows up
// with zero totals.
func (es *ExportService) queryAgencySummary(ctx context.Context, dateFrom, dateTo string) ([]agencySummaryRow, error) {
	where, args := buildDateFilter(dateFrom, dateTo)
	joinFilter := strings.Replace(where, " WHERE ", " AND ", 1)

	rows, err := es.db.QueryContext(ctx, `
		SELECT a.agency_id, a.agency_name,
		       COUNT(r.id), COALESCE(SUM(r.amount), 0)::text,
		       COUNT(r.id) FILTER (WHERE r.status = 'PAID'),
		       COALESCE(SUM(r.amount) FILTER (WHERE r.status = 'PAID'), 0)::text,
		       COUNT(r.id) FILTER (WHERE r.status = 'PENDING'),
		       COALESCE(SUM(r.amount) FILTER (WHERE r.status = 'PENDING'), 0)::text
		FROM agencies a
		LEFT JOIN receipts r ON r.agency_id = a.id AND r.status <> 'VOID'`+joinFilter+`
		WHERE a.is_active = true
		GROUP BY a.agency_id, a.agency_name
		ORDER BY COALESCE(SUM(r.amount), 0) DESC, a.agency_name ASC
	`, args...)
	if err != nil {
		return nil, StorageErr(err)
	}
	defer rows.Close()

	out := []agencySummaryRow{}
	for rows.Next() {
		var row agencySummaryRow
		var total, paid, pending string
		if err := rows.Scan(&row.AgencyID, &row.AgencyName,
			&row.TotalCount, &total, &row.PaidCount, &paid, &row.PendingCount, &pending); err != nil {
			return nil, StorageErr(err)
		}
		if row.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, StorageErr(err)
		}
		if row.PaidAmount, err = decimal.NewFromString(paid); err != nil {
			return nil, StorageErr(err)
		}
		if row.PendingAmount, err = decimal.NewFromString(pending); err != nil {
			return nil, StorageErr(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, StorageErr(err)
	}
	return out, nil
}

// ExportReceiptPDF renders a single receipt as PDF
// @Summary Export receipt PDF
// @Tags export
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Receipt ID"
// @Success 200 {string} string "PDF data"
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /export/receipts/{id}/pdf [get]
func (es *ExportService) ExportReceiptPDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	receipt, err := es.receipts.fetchReceipt(r.Context(), id)
	if err != nil {
		SendAppError(w, err)
		return
	}

	pdf, err := es.pdf.Render(r.Context(), receipt)
	if err != nil {
		log.Printf("[EXPORT] PDF render failed for %s: %v", receipt.ReceiptNumber, err)
		SendErrorResponse(w, "Receipt rendering is unavailable", http.StatusBadGateway, nil)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s.pdf"`, receipt.ReceiptNumber))
	w.Write(pdf)
}

// ExportReceiptRemittance renders a receipt as an ISO 20022 pacs.008 advice
// @Summary Export remittance advice
// @Description pacs.008 XML for a paid bank-transfer receipt
// @Tags export
// @Produce application/xml
// @Security BearerAuth
// @Param id path string true "Receipt ID"
// @Success 200 {string} string "pacs.008 XML"
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /export/receipts/{id}/iso20022 [get]
func (es *ExportService) ExportReceiptRemittance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	receipt, err := es.receipts.fetchReceipt(r.Context(), id)
	if err != nil {
		SendAppError(w, err)
		return
	}

	advice, err := es.buildRemittance(receipt)
	if err != nil {
		SendAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s-pacs008.xml"`, receipt.ReceiptNumber))
	w.Write([]byte(advice))
}

func (es *ExportService) buildRemittance(receipt *models.Receipt) (string, error) {
	doc, err := es.remit.BuildPacs008(receipt)
	if err != nil {
		return "", err
	}
	xmlData, err := es.remit.ToXML(doc)
	if err != nil {
		return "", StorageErr(err)
	}
	return xmlData, nil
}
