package dateutils

import (
	"fmt"
	"strings"
	"time"
)

// Common date layouts used throughout the application
const (
	LayoutYearMonth = "2006-01"
	LayoutDate      = "2006-01-02"
	LayoutDateTime  = "2006-01-02 15:04:05"
	MinValidYear    = 2018
)

// StartOfDay truncates a timestamp to 00:00:00 UTC of the same day
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfMonth truncates a timestamp to the first day of its month
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBack returns the start of the month n months before t
func MonthsBack(t time.Time, n int) time.Time {
	return StartOfMonth(t).AddDate(0, -n, 0)
}

// NextDay returns the start of the day after t
func NextDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// IsFirstOfMonth reports whether t falls on the first day of a month
func IsFirstOfMonth(t time.Time) bool {
	return t.UTC().Day() == 1
}

// DaysInRange returns the start of every day in [from, to], ascending.
// Both bounds are truncated to day boundaries before expansion.
func DaysInRange(from, to time.Time) []time.Time {
	start := StartOfDay(from)
	end := StartOfDay(to)
	if end.Before(start) {
		return nil
	}

	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// FullMonthsInRange returns the first day of every calendar month fully
// contained in [from, to]. A month counts only when both its first day and
// its last day fall inside the range.
func FullMonthsInRange(from, to time.Time) []time.Time {
	from = StartOfDay(from)
	to = StartOfDay(to)

	var months []time.Time
	month := StartOfMonth(from)
	if month.Before(from) {
		month = month.AddDate(0, 1, 0)
	}

	for {
		monthEnd := month.AddDate(0, 1, 0).AddDate(0, 0, -1)
		if monthEnd.After(to) {
			break
		}
		months = append(months, month)
		month = month.AddDate(0, 1, 0)
	}
	return months
}

// SameDay reports whether two timestamps fall on the same UTC day
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}

// ParseFlexibleDate attempts to parse a date string with multiple possible formats
// Supports: "2006-01-02 15:04:05", "2006-01-02", "2006-01"
func ParseFlexibleDate(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, nil // Empty date is allowed in some contexts
	}

	dateStr = strings.TrimSpace(dateStr)

	formats := []string{
		LayoutDateTime,
		LayoutDate,
		LayoutYearMonth,
	}

	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return date, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

// ValidateBillingCycle validates a billing cycle format (YYYY-MM)
func ValidateBillingCycle(billingCycle string) error {
	if billingCycle == "" {
		return fmt.Errorf("billing cycle cannot be empty")
	}

	billingTime, err := time.Parse(LayoutYearMonth, billingCycle)
	if err != nil {
		return fmt.Errorf("invalid billing cycle format: expected YYYY-MM, got %s", billingCycle)
	}

	if billingTime.Year() < MinValidYear {
		return fmt.Errorf("billing cycle %s is too old (before %d)", billingCycle, MinValidYear)
	}

	if billingTime.After(time.Now()) {
		return fmt.Errorf("billing cycle %s cannot be in the future", billingCycle)
	}

	return nil
}
