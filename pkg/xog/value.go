package xog

import (
	"fmt"
	"strconv"
	"time"
)

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DateTimeLayout is the XOG datetime format, e.g. 2002-01-26T11:42:03.
const DateTimeLayout = "2006-01-02T15:04:05"

// SerializeValue converts a scalar to its XOG text encoding.
//
// Custom fields encode booleans as "1"/"0"; everywhere else they are
// "true"/"false". Supported types are string, bool, all integer kinds,
// Date and time.Time.
func SerializeValue(v any, customField bool) (string, error) {
	switch v := v.(type) {
	case bool:
		if customField {
			if v {
				return "1", nil
			}
			return "0", nil
		}
		return strconv.FormatBool(v), nil
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case Date:
		return v.String(), nil
	case time.Time:
		return v.Format(DateTimeLayout), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValueType, v)
	}
}
