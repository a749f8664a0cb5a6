package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time in minutes since midnight. It is stored and
// transported as "HH:MM".
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" in 24h format.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil || len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Minutes returns the value as minutes since midnight.
func (t TimeOfDay) Minutes() int { return int(t) }

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

func (t *TimeOfDay) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case time.Time:
		s = v.Format("15:04")
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
	// TIME columns come back as HH:MM:SS
	if len(s) > 5 {
		s = s[:5]
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Date is a calendar date without a time component, transported as
// "YYYY-MM-DD".
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Format(dateLayout) }

// At combines the date with a wall-clock time in the given location.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Minutes()/60, t.Minutes()%60, 0, 0, loc)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.Time, nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}
