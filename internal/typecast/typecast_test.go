package typecast

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowcast/internal/transport"
)

func utcOpts() Options {
	return Options{DatabaseLocation: time.UTC}
}

func TestCast_Null(t *testing.T) {
	for _, tag := range []transport.TypeTag{
		transport.TypeTiny, transport.TypeLongLong, transport.TypeVarChar,
		transport.TypeDateTime, transport.TypeNewDecimal,
	} {
		v, err := Cast(transport.Column{Name: "c", Type: tag}, nil, utcOpts())
		require.NoError(t, err)
		assert.Nil(t, v, "NULL must be nil regardless of declared type %s", tag)
	}
}

func TestCast_Integers(t *testing.T) {
	tests := []struct {
		name string
		col  transport.Column
		raw  string
		want any
	}{
		{"signed tiny", transport.Column{Type: transport.TypeTiny, Length: 4}, "-7", int64(-7)},
		{"signed long", transport.Column{Type: transport.TypeLong}, "123456", int64(123456)},
		{"signed bigint", transport.Column{Type: transport.TypeLongLong}, "-9223372036854775808", int64(-9223372036854775808)},
		{"unsigned bigint", transport.Column{Type: transport.TypeLongLong, Unsigned: true}, "18446744073709551615", uint64(18446744073709551615)},
		{"unsigned int24", transport.Column{Type: transport.TypeInt24, Unsigned: true}, "16777215", uint64(16777215)},
		{"year", transport.Column{Type: transport.TypeYear}, "1999", int64(1999)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Cast(tt.col, []byte(tt.raw), utcOpts())
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestCast_Booleans(t *testing.T) {
	tiny1 := transport.Column{Name: "flag", Type: transport.TypeTiny, Length: 1}

	opts := utcOpts()
	opts.CastBooleans = true

	v, err := Cast(tiny1, []byte("1"), opts)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Cast(tiny1, []byte("0"), opts)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	// Without the option a width-1 tiny stays an integer.
	v, err = Cast(tiny1, []byte("1"), utcOpts())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// Wider tiny columns are never booleans.
	v, err = Cast(transport.Column{Type: transport.TypeTiny, Length: 4}, []byte("1"), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// BIT(1) follows the same rule, but on the raw byte value.
	bit1 := transport.Column{Name: "b", Type: transport.TypeBit, Length: 1, Binary: true}
	v, err = Cast(bit1, []byte{1}, opts)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Cast(bit1, []byte{0}, opts)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestCast_Floats(t *testing.T) {
	v, err := Cast(transport.Column{Type: transport.TypeDouble}, []byte("2.5"), utcOpts())
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = Cast(transport.Column{Type: transport.TypeFloat}, []byte("-0.125"), utcOpts())
	require.NoError(t, err)
	assert.Equal(t, -0.125, v)
}

func TestCast_Decimal(t *testing.T) {
	col := transport.Column{Type: transport.TypeNewDecimal, Decimals: 4}

	v, err := Cast(col, []byte("1234.5678"), utcOpts())
	require.NoError(t, err)

	d, ok := v.(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("1234.5678")))
	// The server-declared scale survives the round trip.
	assert.Equal(t, "1234.5678", d.String())
}

func TestCast_Date(t *testing.T) {
	col := transport.Column{Type: transport.TypeDate}

	v, err := Cast(col, []byte("2024-02-29"), utcOpts())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), v)

	// The all-zero date is a known server pattern, not an error.
	v, err = Cast(col, []byte("0000-00-00"), utcOpts())
	require.NoError(t, err)
	assert.Equal(t, time.Time{}, v)
}

func TestCast_DateTimeTimezones(t *testing.T) {
	col := transport.Column{Type: transport.TypeDateTime}
	raw := []byte("2024-06-01 12:00:00")

	// Interpreted in UTC, no application timezone: stays UTC.
	v, err := Cast(col, raw, Options{DatabaseLocation: time.UTC})
	require.NoError(t, err)
	ts := v.(time.Time)
	assert.Equal(t, time.UTC, ts.Location())
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), ts)

	// Converting to a fixed zone shifts the wall clock by the offset.
	east := time.FixedZone("east", 3*3600)
	v, err = Cast(col, raw, Options{DatabaseLocation: time.UTC, ApplicationLocation: east})
	require.NoError(t, err)
	ts = v.(time.Time)
	assert.Equal(t, 15, ts.Hour())
	assert.True(t, ts.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)))

	// Fractional seconds.
	v, err = Cast(col, []byte("2024-06-01 12:00:00.250000"), Options{DatabaseLocation: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, time.Duration(v.(time.Time).Nanosecond()))

	// Zero datetime.
	v, err = Cast(col, []byte("0000-00-00 00:00:00"), Options{DatabaseLocation: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, time.Time{}, v)
}

func TestCast_TimestampWithOffset(t *testing.T) {
	col := transport.Column{Type: transport.TypeTimestamp}

	v, err := Cast(col, []byte("2024-06-01 12:00:00+02"), Options{DatabaseLocation: time.UTC})
	require.NoError(t, err)
	ts := v.(time.Time)
	assert.True(t, ts.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)))

	v, err = Cast(col, []byte("2024-06-01 12:00:00.5+05:30"), Options{DatabaseLocation: time.UTC})
	require.NoError(t, err)
	ts = v.(time.Time)
	assert.True(t, ts.Equal(time.Date(2024, 6, 1, 6, 30, 0, 500000000, time.UTC)))
}

func TestCast_TimeOfDay(t *testing.T) {
	col := transport.Column{Type: transport.TypeTime}

	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"00:00:00", 0},
		{"12:34:56", 12*time.Hour + 34*time.Minute + 56*time.Second},
		{"838:59:59", 838*time.Hour + 59*time.Minute + 59*time.Second},
		{"-01:30:00", -(time.Hour + 30*time.Minute)},
		{"00:00:01.5", 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, err := Cast(col, []byte(tt.raw), utcOpts())
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestCast_Strings(t *testing.T) {
	v, err := Cast(transport.Column{Type: transport.TypeVarChar}, []byte("héllo"), utcOpts())
	require.NoError(t, err)
	assert.Equal(t, "héllo", v)

	// Text under a blob tag (TEXT column) is still a string.
	v, err = Cast(transport.Column{Type: transport.TypeBlob}, []byte("body"), utcOpts())
	require.NoError(t, err)
	assert.Equal(t, "body", v)

	// Binary charset yields bytes.
	v, err = Cast(transport.Column{Type: transport.TypeBlob, Binary: true}, []byte{0x00, 0xff}, utcOpts())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, v)

	v, err = Cast(transport.Column{Type: transport.TypeJSON}, []byte(`{"a":1}`), utcOpts())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)
}

func TestCast_OwnsBinaryData(t *testing.T) {
	raw := []byte{1, 2, 3}
	v, err := Cast(transport.Column{Type: transport.TypeBlob, Binary: true}, raw, utcOpts())
	require.NoError(t, err)

	raw[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, v, "cast value must not alias the raw buffer")
}

func TestCast_UnknownTagIsError(t *testing.T) {
	_, err := Cast(transport.Column{Name: "x", Type: transport.TypeTag(99)}, []byte("1"), utcOpts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized column type tag")
}

func TestCast_MalformedPayloadIsError(t *testing.T) {
	tests := []struct {
		name string
		col  transport.Column
		raw  string
	}{
		{"bad integer", transport.Column{Type: transport.TypeLong}, "abc"},
		{"bad float", transport.Column{Type: transport.TypeDouble}, "x"},
		{"bad decimal", transport.Column{Type: transport.TypeNewDecimal}, ".."},
		{"bad date", transport.Column{Type: transport.TypeDate}, "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Cast(tt.col, []byte(tt.raw), utcOpts())
			assert.Error(t, err)
		})
	}
}
