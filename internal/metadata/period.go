package metadata

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Period types, ordered by frequency.
const (
	PeriodTypeDaily      = "Daily"
	PeriodTypeWeekly     = "Weekly"
	PeriodTypeMonthly    = "Monthly"
	PeriodTypeQuarterly  = "Quarterly"
	PeriodTypeSixMonthly = "SixMonthly"
	PeriodTypeYearly     = "Yearly"
)

// ErrInvalidPeriod is returned when an ISO period string cannot be parsed.
var ErrInvalidPeriod = errors.New("invalid ISO period")

// Period is one calendar interval identified by its ISO form, e.g. "202401"
// (January 2024), "2024Q1", "2024W5", "2024S2", "2024" or "20240115".
// StartDate and EndDate are inclusive, date-only, UTC.
type Period struct {
	ID        int64
	ISO       string
	Type      string
	StartDate time.Time
	EndDate   time.Time
}

// DatabaseID returns the internal surrogate key for the period.
func (p *Period) DatabaseID() int64 { return p.ID }

// PropertyValue returns the ISO form regardless of scheme: periods have no
// code, name or attribute identifiers.
func (p *Period) PropertyValue(IDScheme) string { return p.ISO }

// ParsePeriod parses an ISO period string into its canonical period.
//
// Supported forms:
//
//	2024       Yearly
//	2024S1     SixMonthly (S1 = Jan-Jun, S2 = Jul-Dec)
//	2024Q3     Quarterly
//	202401     Monthly
//	2024W5     Weekly (ISO 8601 weeks, Monday-based)
//	20240115   Daily
func ParsePeriod(iso string) (*Period, error) {
	switch {
	case len(iso) == 4 && digits(iso):
		return yearlyPeriod(iso)
	case len(iso) == 6 && digits(iso):
		return monthlyPeriod(iso)
	case len(iso) == 8 && digits(iso):
		return dailyPeriod(iso)
	case len(iso) == 6 && (iso[4] == 'Q' || iso[4] == 'S'):
		return partOfYearPeriod(iso)
	case len(iso) >= 6 && len(iso) <= 7 && iso[4] == 'W':
		return weeklyPeriod(iso)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, iso)
	}
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return len(s) > 0
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func yearlyPeriod(iso string) (*Period, error) {
	year, err := strconv.Atoi(iso)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, iso)
	}

	return &Period{
		ISO:       iso,
		Type:      PeriodTypeYearly,
		StartDate: date(year, time.January, 1),
		EndDate:   date(year, time.December, 31),
	}, nil
}

func monthlyPeriod(iso string) (*Period, error) {
	year, err1 := strconv.Atoi(iso[:4])
	month, err2 := strconv.Atoi(iso[4:])

	if err1 != nil || err2 != nil || month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, iso)
	}

	start := date(year, time.Month(month), 1)

	return &Period{
		ISO:       iso,
		Type:      PeriodTypeMonthly,
		StartDate: start,
		EndDate:   start.AddDate(0, 1, -1),
	}, nil
}

func dailyPeriod(iso string) (*Period, error) {
	day, err := time.ParseInLocation("20060102", iso, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, iso)
	}

	return &Period{
		ISO:       iso,
		Type:      PeriodTypeDaily,
		StartDate: day,
		EndDate:   day,
	}, nil
}

func partOfYearPeriod(iso string) (*Period, error) {
	year, err1 := strconv.Atoi(iso[:4])
	part, err2 := strconv.Atoi(iso[5:])

	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, iso)
	}

	if iso[4] == 'Q' {
		if part < 1 || part > 4 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, iso)
		}

		start := date(year, time.Month(3*(part-1)+1), 1)

		return &Period{
			ISO:       iso,
			Type:      PeriodTypeQuarterly,
			StartDate: start,
			EndDate:   start.AddDate(0, 3, -1),
		}, nil
	}

	if part < 1 || part > 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, iso)
	}

	start := date(year, time.Month(6*(part-1)+1), 1)

	return &Period{
		ISO:       iso,
		Type:      PeriodTypeSixMonthly,
		StartDate: start,
		EndDate:   start.AddDate(0, 6, -1),
	}, nil
}

func weeklyPeriod(iso string) (*Period, error) {
	year, err1 := strconv.Atoi(iso[:4])
	week, err2 := strconv.Atoi(iso[5:])

	if err1 != nil || err2 != nil || week < 1 || week > 53 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, iso)
	}

	// ISO 8601: January 4th is always in week 1
	jan4 := date(year, time.January, 4)

	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}

	week1Monday := jan4.AddDate(0, 0, 1-weekday)
	start := week1Monday.AddDate(0, 0, (week-1)*7)

	// Reject week numbers that spill into the next ISO year
	if gotYear, gotWeek := start.ISOWeek(); gotYear != year || gotWeek != week {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, iso)
	}

	return &Period{
		ISO:       iso,
		Type:      PeriodTypeWeekly,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 6),
	}, nil
}
