// Package epiweek implements the MMWR epidemiological week calendar used to
// index surveillance data. MMWR weeks run Sunday through Saturday and week 1
// of a year is the week containing January 4th. A season spans week 40 of one
// calendar year through week 39 of the next and is labeled "YYYY/YY".
package epiweek

import (
	"fmt"
	"time"
)

// Week identifies a single MMWR epidemiological week.
type Week struct {
	Year int
	Week int
}

// yearStart returns the first day (Sunday) of MMWR week 1 for the given year.
// January 4th always falls within week 1, so week 1 starts on the Sunday on or
// before January 4th.
func yearStart(year int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	return jan4.AddDate(0, 0, -int(jan4.Weekday()))
}

// FromDate returns the MMWR week containing the given date. The time of day
// and timezone offset of the input are ignored.
func FromDate(d time.Time) Week {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)

	year := day.Year() + 1
	start := yearStart(year)
	if day.Before(start) {
		year--
		start = yearStart(year)
		if day.Before(start) {
			year--
			start = yearStart(year)
		}
	}

	week := int(day.Sub(start).Hours()/(24*7)) + 1
	return Week{Year: year, Week: week}
}

// Season returns the influenza season label for the given date, e.g. a date
// in epi week 40 of 2023 through epi week 39 of 2024 maps to "2023/24".
func Season(d time.Time) string {
	w := FromDate(d)
	if w.Week >= 40 {
		return fmt.Sprintf("%d/%02d", w.Year, (w.Year+1)%100)
	}
	return fmt.Sprintf("%d/%02d", w.Year-1, w.Year%100)
}

// SeasonWeek returns the 1-indexed week number within the season containing
// the given date. Epi week 40 maps to season week 1 and epi week 39 of the
// following year maps to season week 52.
func SeasonWeek(d time.Time) int {
	w := FromDate(d)
	if w.Week >= 40 {
		return w.Week - 39
	}
	return w.Week + 13
}

// WeekEnding returns the Saturday ending the MMWR week containing d.
func WeekEnding(d time.Time) time.Time {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, int(time.Saturday-day.Weekday()))
}
