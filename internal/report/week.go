package report

import "time"

// WeekWindow returns the half-open interval [weekStart, weekEnd) for the week
// containing now shifted by offset whole weeks. weekStart is the most recent
// Sunday at 00:00:00 UTC; weekEnd is exactly seven days later. Offset 0 is the
// current week, -1 the previous week.
func WeekWindow(now time.Time, offset int) (time.Time, time.Time) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := midnight.AddDate(0, 0, -int(now.Weekday())+offset*7)
	return weekStart, weekStart.AddDate(0, 0, 7)
}
