package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// YearMonth is a card expiry date. It serializes as "YYYY-MM" in JSON and in the database.
type YearMonth struct {
	Year  int
	Month time.Month
}

const yearMonthLayout = "2006-01"

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(yearMonthLayout, s)
	if err != nil {
		return YearMonth{}, &ErrValidation{Field: "expiryDate", Message: "expected format YYYY-MM (e.g. 2025-12)"}
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// YearMonthOf returns the year-month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

// Before reports whether ym is strictly earlier than other.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) String() string {
	if ym.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) MarshalJSON() ([]byte, error) {
	return json.Marshal(ym.String())
}

func (ym *YearMonth) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &ErrValidation{Field: "expiryDate", Message: "expected a string in format YYYY-MM"}
	}
	if s == "" {
		*ym = YearMonth{}
		return nil
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

// Value implements driver.Valuer.
func (ym YearMonth) Value() (driver.Value, error) {
	return ym.String(), nil
}

// Scan implements sql.Scanner.
func (ym *YearMonth) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseYearMonth(v)
		if err != nil {
			return fmt.Errorf("scan year-month %q: %w", v, err)
		}
		*ym = parsed
	case []byte:
		return ym.Scan(string(v))
	case time.Time:
		*ym = YearMonthOf(v)
	case nil:
		*ym = YearMonth{}
	default:
		return fmt.Errorf("scan year-month: unsupported type %T", src)
	}
	return nil
}
