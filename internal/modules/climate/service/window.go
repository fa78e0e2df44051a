package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// windowDays is the length of the trailing observation window. It is a fixed
// day count, not a calendar year.
const windowDays = 365

var ErrMalformedDate = errors.New("malformed date")

// OneYearBefore returns the YYYY-MM-DD date windowDays before maxDate.
// maxDate is read positionally: year from [0:4], month from [5:7] and day
// from [8:10]; anything after the tenth character is ignored.
func OneYearBefore(maxDate string) (string, error) {
	if len(maxDate) < 10 {
		return "", fmt.Errorf("%w: %q", ErrMalformedDate, maxDate)
	}
	year, err := strconv.Atoi(maxDate[0:4])
	if err != nil {
		return "", fmt.Errorf("%w: year in %q", ErrMalformedDate, maxDate)
	}
	month, err := strconv.Atoi(maxDate[5:7])
	if err != nil {
		return "", fmt.Errorf("%w: month in %q", ErrMalformedDate, maxDate)
	}
	day, err := strconv.Atoi(maxDate[8:10])
	if err != nil {
		return "", fmt.Errorf("%w: day in %q", ErrMalformedDate, maxDate)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises out-of-range parts (2017-02-30 -> 2017-03-02).
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", fmt.Errorf("%w: %q is not a calendar date", ErrMalformedDate, maxDate)
	}
	return t.AddDate(0, 0, -windowDays).Format(dateLayout), nil
}

// ValidateDate reports whether s is a YYYY-MM-DD calendar date.
func ValidateDate(s string) error {
	t, err := time.Parse(dateLayout, s)
	if err != nil || t.Format(dateLayout) != s {
		return fmt.Errorf("%w: %q (expected YYYY-MM-DD)", ErrMalformedDate, s)
	}
	return nil
}
