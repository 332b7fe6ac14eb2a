// Package typecast converts raw column bytes into native Go values
// according to the server-declared column type. All functions are pure:
// the package holds no state and conversions are driven entirely by the
// column descriptor and the options passed in.
package typecast

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/koustreak/rowcast/internal/transport"
)

// Options carries the option subset that influences conversion.
type Options struct {
	// CastBooleans converts width-1 TINY and BIT columns to bool.
	CastBooleans bool

	// DatabaseLocation is the timezone raw temporal values are stored in.
	// Must not be nil.
	DatabaseLocation *time.Location

	// ApplicationLocation, when non-nil, is the timezone temporal values
	// are converted to after interpretation. When nil the value stays in
	// DatabaseLocation.
	ApplicationLocation *time.Location
}

// Cast converts one raw column value to its native Go representation.
// A nil raw value is the SQL NULL marker and always yields nil.
//
// An unrecognized type tag is a contract violation between transport and
// registry and is reported as an error, never silently passed through.
func Cast(col transport.Column, raw []byte, opts Options) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch col.Type {
	case transport.TypeNull:
		return nil, nil

	case transport.TypeTiny:
		if opts.CastBooleans && col.Length == 1 {
			return raw[0] != '0', nil
		}
		return castInteger(col, raw)

	case transport.TypeBit:
		if opts.CastBooleans && col.Length == 1 {
			return len(raw) > 0 && raw[0] != 0, nil
		}
		return cloneBytes(raw), nil

	case transport.TypeShort, transport.TypeInt24, transport.TypeLong, transport.TypeLongLong:
		return castInteger(col, raw)

	case transport.TypeYear:
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, castErr(col, raw, err)
		}
		return n, nil

	case transport.TypeFloat, transport.TypeDouble:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, castErr(col, raw, err)
		}
		return f, nil

	case transport.TypeDecimal, transport.TypeNewDecimal:
		d, err := decimal.NewFromString(string(raw))
		if err != nil {
			return nil, castErr(col, raw, err)
		}
		return d, nil

	case transport.TypeDate:
		return castDate(col, raw)

	case transport.TypeDateTime, transport.TypeTimestamp:
		return castDateTime(col, raw, opts)

	case transport.TypeTime:
		return castTimeOfDay(col, raw)

	case transport.TypeVarChar, transport.TypeVarString, transport.TypeString,
		transport.TypeEnum, transport.TypeSet, transport.TypeJSON:
		if col.Binary {
			return cloneBytes(raw), nil
		}
		return string(raw), nil

	case transport.TypeTinyBlob, transport.TypeMediumBlob, transport.TypeLongBlob,
		transport.TypeBlob, transport.TypeGeometry:
		// TEXT columns arrive under blob tags with a text character set.
		if col.Binary {
			return cloneBytes(raw), nil
		}
		return string(raw), nil
	}

	return nil, fmt.Errorf("unrecognized column type tag %d for column %q", col.Type, col.Name)
}

func castInteger(col transport.Column, raw []byte) (any, error) {
	if col.Unsigned {
		n, err := strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return nil, castErr(col, raw, err)
		}
		return n, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil, castErr(col, raw, err)
	}
	return n, nil
}

// castDate interprets a DATE value. Zero dates are a normal server data
// pattern and map to the zero time.Time, not an error.
func castDate(col transport.Column, raw []byte) (any, error) {
	s := string(raw)
	if isZeroDate(s) {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, castErr(col, raw, err)
	}
	return t, nil
}

func castDateTime(col transport.Column, raw []byte, opts Options) (any, error) {
	s := string(raw)
	if isZeroDate(s) {
		return time.Time{}, nil
	}

	loc := opts.DatabaseLocation
	if loc == nil {
		loc = time.Local
	}

	// An offset suffix (Postgres timestamptz text format) makes the value
	// absolute; the database timezone then only chooses the presentation
	// location when no application timezone is set.
	if hasOffset(s) {
		var t time.Time
		var err error
		for _, layout := range []string{
			"2006-01-02 15:04:05.999999-07:00",
			"2006-01-02 15:04:05.999999-07",
		} {
			if t, err = time.Parse(layout, s); err == nil {
				break
			}
		}
		if err != nil {
			return nil, castErr(col, raw, err)
		}
		if opts.ApplicationLocation != nil {
			return t.In(opts.ApplicationLocation), nil
		}
		return t.In(loc), nil
	}

	layout := "2006-01-02 15:04:05"
	if len(s) > len(layout) {
		layout = "2006-01-02 15:04:05.999999"
	}
	t, err := time.ParseInLocation(layout, s, loc)
	if err != nil {
		return nil, castErr(col, raw, err)
	}
	if opts.ApplicationLocation != nil {
		t = t.In(opts.ApplicationLocation)
	}
	return t, nil
}

// hasOffset reports whether a timestamp string carries a trailing UTC
// offset like +05:30 or -07.
func hasOffset(s string) bool {
	for i := len(s) - 1; i > 10 && i > len(s)-7; i-- {
		if s[i] == '+' || s[i] == '-' {
			return true
		}
		if s[i] == ' ' || s[i] == '.' {
			return false
		}
	}
	return false
}

// castTimeOfDay converts a TIME value to a time.Duration. MySQL TIME is an
// elapsed-time type ranging beyond 24 hours (up to ±838:59:59), so a clock
// representation would be lossy.
func castTimeOfDay(col transport.Column, raw []byte) (any, error) {
	s := string(raw)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}

	var h, m int
	var sec float64
	if _, err := fmt.Sscanf(s, "%d:%d:%f", &h, &m, &sec); err != nil {
		return nil, castErr(col, raw, err)
	}

	d := time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second))
	if neg {
		d = -d
	}
	return d, nil
}

// isZeroDate reports whether s is the server's all-zero date sentinel,
// with or without a time component.
func isZeroDate(s string) bool {
	return len(s) >= 10 && s[:10] == "0000-00-00"
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func castErr(col transport.Column, raw []byte, err error) error {
	return fmt.Errorf("cannot cast %q as %s for column %q: %w", raw, col.Type, col.Name, err)
}
