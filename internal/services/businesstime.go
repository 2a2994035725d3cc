package services

import "time"

const (
	dateLayout  = "2006-01-02"
	timeLayout  = "15:04:05"
	monthLayout = "2006-01"
)

// businessDate formats t as an issue date in the business timezone.
func businessDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

// businessTime formats t as an issue time-of-day in the business timezone.
func businessTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(timeLayout)
}

// monthKey returns the YYYY-MM bucket for t in the business timezone.
func monthKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(monthLayout)
}

// previousMonthKey returns the YYYY-MM bucket of the calendar month before t.
func previousMonthKey(t time.Time, loc *time.Location) string {
	bt := t.In(loc)
	firstOfMonth := time.Date(bt.Year(), bt.Month(), 1, 0, 0, 0, 0, loc)
	return firstOfMonth.AddDate(0, 0, -1).Format(monthLayout)
}

// IsPastDueDate reports whether a PENDING receipt with the given due date
// (YYYY-MM-DD) is overdue at now. Receipts without a due date are never
// overdue under this predicate.
func IsPastDueDate(dueDate *string, now time.Time, loc *time.Location) bool {
	if dueDate == nil || *dueDate == "" {
		return false
	}
	due, err := time.ParseInLocation(dateLayout, *dueDate, loc)
	if err != nil {
		return false
	}
	today, _ := time.ParseInLocation(dateLayout, businessDate(now, loc), loc)
	return due.Before(today)
}

// IsStalePending reports whether a PENDING receipt issued on issueDate
// (YYYY-MM-DD) is older than thresholdDays at now. This display-side rule is
// kept separate from IsPastDueDate: the two predicates serve different call
// sites and must not be merged.
func IsStalePending(issueDate string, now time.Time, loc *time.Location, thresholdDays int) bool {
	issued, err := time.ParseInLocation(dateLayout, issueDate, loc)
	if err != nil {
		return false
	}
	return now.In(loc).Sub(issued) > time.Duration(thresholdDays)*24*time.Hour
}
