package feature

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

// winterHolidays are the holidays that shift emergency department visit
// reporting during flu season.
var winterHolidays = []*cal.Holiday{
	us.ThanksgivingDay,
	us.ChristmasDay,
	us.NewYear,
}

// holidayWeek returns 1 when the 7-day reporting window ending at weekEnd
// contains a tracked holiday.
func holidayWeek(weekEnd time.Time) float64 {
	weekStart := weekEnd.AddDate(0, 0, -6)
	for _, hol := range winterHolidays {
		for year := weekStart.Year(); year <= weekEnd.Year(); year++ {
			actual, _ := hol.Calc(year)
			day := time.Date(actual.Year(), actual.Month(), actual.Day(), 0, 0, 0, 0, time.UTC)
			if !day.Before(weekStart) && !day.After(weekEnd) {
				return 1.0
			}
		}
	}
	return 0.0
}
