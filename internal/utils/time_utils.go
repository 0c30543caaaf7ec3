package utils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	customLayout1 = "2006-01-02 15:04:05"
	customLayout2 = "2006-01-02T15:04:05.000-0700"
	customLayout3 = "2006-01-02T15:04:05-07:00"
	customLayout4 = "Mon, 2 Jan 2006 15:04:05 -0700 (MST)"
	customLayout5 = "Mon, 2 Jan 2006 15:04:05 MST"
	customLayout6 = "Mon, 2 Jan 2006 15:04:05 -0700"
	customLayout7 = "Mon, 2 Jan 2006 15:04:05 +0000 (GMT)"
	customLayout8 = "Mon, 2 Jan 2006 15:04:05 -0700 (MST)"
	customLayout9 = "2 Jan 2006 15:04:05 -0700"
)

func ZeroTime() time.Time {
	return time.Time{}
}

func Now() time.Time {
	return time.Now().UTC()
}

func NowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return Now()
	}
	return t
}

func TimeOrNowFromPtr(t *time.Time) time.Time {
	if t == nil {
		return Now()
	}
	if t.IsZero() {
		return Now()
	}
	return *t
}

func Today() time.Time {
	return ToDate(Now())
}

func NowPtr() *time.Time {
	return TimePtr(time.Now().UTC())
}

func TimePtr(t time.Time) *time.Time {
	return &t
}

func ToDate(t time.Time) time.Time {
	val := t.UTC().Truncate(24 * time.Hour)
	return val
}

func ToDatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	val := t.UTC().Truncate(24 * time.Hour)
	return &val
}

func ToDateAsAny(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	val := t.UTC().Truncate(24 * time.Hour)
	return val
}

func UnmarshalDateTime(input string) (*time.Time, error) {
	if input == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, input)
	if err == nil {
		// Parsed as RFC3339
		return &t, nil
	}

	// Try custom layouts
	customLayouts := []string{customLayout1, customLayout2, customLayout4, customLayout5, customLayout6, customLayout7, customLayout8, customLayout9}

	for _, layout := range customLayouts {
		t, err = time.Parse(layout, input)
		if err == nil {
			return &t, nil
		}
	}
	inputForLayout3 := input
	if !strings.Contains(input, "[UTC]") {
		index := strings.Index(input, "[")
		// If found, strip off the timezone information
		if index != -1 {
			inputForLayout3 = input[:index]
		}
	}
	t, err = time.Parse(customLayout3, inputForLayout3)
	if err == nil {
		return &t, nil
	}

	return nil, errors.New(fmt.Sprintf("cannot parse input as date time %s", input))
}

// IsEqualTimePtr compares two *time.Time values and returns true if both are nil or if both point to the same time.
func IsEqualTimePtr(t1, t2 *time.Time) bool {
	// if both are nil, return true
	if t1 == nil && t2 == nil {
		return true
	}
	// if one is nil, return false
	if t1 == nil || t2 == nil {
		return false
	}
	// if both are not nil, compare the time values they point to
	return (*t1).Equal(*t2)
}

func StartOfDayInUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func EndOfDayInUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

func GetCurrentTimeInTimeZone(timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Now()
	}
	return time.Now().In(loc)
}

// IsAfter compares two *time.Time, considering nil as far in the future.
// if both are nil return false
func IsAfter(t1, t2 *time.Time) bool {
	if t1 == nil && t2 == nil {
		return false
	}
	if t1 == nil {
		return true
	}
	if t2 == nil {
		return false
	}
	return t1.After(*t2)
}

func ConvertToUTC(datetimeStr string) (time.Time, error) {
	var err error

	layouts := []string{
		"2006-01-02T15:04:05Z07:00",

		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",

		"Mon, 2 Jan 2006 15:04:05 MST",

		"Mon, 2 Jan 2006 15:04:05 -0700",

		"Mon, 2 Jan 2006 15:04:05 +0000 (GMT)",

		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",

		"2 Jan 2006 15:04:05 -0700",
	}
	var parsedTime time.Time

	// Try parsing with each layout until successful
	for _, layout := range layouts {
		parsedTime, err = time.Parse(layout, datetimeStr)
		if err == nil {
			break
		}
	}

	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse datetime string: %s", datetimeStr)
	}

	return parsedTime.UTC(), nil
}

func CloseToNow(t time.Time) bool {
	return math.Abs(time.Since(t).Seconds()) < time.Minute.Seconds()
}

func IsInFuture(timestamp time.Time) bool {
	return timestamp.After(time.Now())
}
