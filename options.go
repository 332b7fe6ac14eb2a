package rowcast

import (
	"sync"
	"time"
)

// RowShape selects the native shape of a materialized row.
type RowShape int

const (
	// ShapeHash yields rows as map[string]any keyed by column name.
	ShapeHash RowShape = iota

	// ShapeArray yields rows as []any in column order.
	ShapeArray
)

func (s RowShape) String() string {
	if s == ShapeArray {
		return "array"
	}
	return "hash"
}

// Timezone selects how temporal column values are interpreted or converted.
type Timezone int

const (
	// TimezoneUnset leaves temporal values in the database timezone.
	// Only meaningful for ApplicationTimezone.
	TimezoneUnset Timezone = iota
	TimezoneLocal
	TimezoneUTC
)

// Location returns the time.Location for the timezone, or nil for
// TimezoneUnset.
func (tz Timezone) Location() *time.Location {
	switch tz {
	case TimezoneLocal:
		return time.Local
	case TimezoneUTC:
		return time.UTC
	default:
		return nil
	}
}

// Options is the fully resolved configuration for one query call.
type Options struct {
	// Cast enables conversion of raw bytes into native Go values.
	// When false every non-NULL field is the untouched []byte payload.
	Cast bool

	// As selects the row shape: map keyed by column name, or positional
	// slice.
	As RowShape

	// SymbolizeKeys folds map keys to lower case and interns them in the
	// per-result field table so all rows share one key string per column.
	// Only meaningful with ShapeHash.
	SymbolizeKeys bool

	// CacheRows keeps materialized rows so re-iteration skips conversion.
	// Forced off in streaming mode.
	CacheRows bool

	// Stream fetches rows from the server one at a time instead of
	// buffering the whole result client-side.
	Stream bool

	// CastBooleans converts width-1 TINY and BIT columns to bool.
	CastBooleans bool

	// DatabaseTimezone is the timezone raw temporal values are stored in.
	DatabaseTimezone Timezone

	// ApplicationTimezone, when set, is the timezone temporal values are
	// converted to after interpretation in DatabaseTimezone.
	ApplicationTimezone Timezone

	// Async makes Query return immediately after submission; the caller
	// retrieves the Result later via FetchAsyncResult.
	Async bool
}

// defaultOptions are the hardcoded fallbacks applied before any layer.
func defaultOptions() Options {
	return Options{
		Cast:                true,
		As:                  ShapeHash,
		SymbolizeKeys:       false,
		CacheRows:           true,
		Stream:              false,
		CastBooleans:        false,
		DatabaseTimezone:    TimezoneLocal,
		ApplicationTimezone: TimezoneUnset,
		Async:               false,
	}
}

// Option overrides a single key of an Options set. Options compose
// key-by-key: a layer only touches the keys it names.
type Option func(*Options)

func WithCast(v bool) Option          { return func(o *Options) { o.Cast = v } }
func WithShape(s RowShape) Option     { return func(o *Options) { o.As = s } }
func WithSymbolizeKeys(v bool) Option { return func(o *Options) { o.SymbolizeKeys = v } }
func WithCacheRows(v bool) Option     { return func(o *Options) { o.CacheRows = v } }
func WithStream(v bool) Option        { return func(o *Options) { o.Stream = v } }
func WithCastBooleans(v bool) Option  { return func(o *Options) { o.CastBooleans = v } }
func WithAsync(v bool) Option         { return func(o *Options) { o.Async = v } }

func WithDatabaseTimezone(tz Timezone) Option {
	return func(o *Options) { o.DatabaseTimezone = tz }
}

func WithApplicationTimezone(tz Timezone) Option {
	return func(o *Options) { o.ApplicationTimezone = tz }
}

// --- Process-wide default layer ---

var (
	defaultsMu      sync.Mutex
	processDefaults []Option
)

// SetDefaultOptions replaces the process-wide default option layer.
// Changes are visible to every subsequent query on every connection that
// does not override the given keys; connections do not snapshot this
// layer. Callers running concurrent queries must synchronize their own
// calls to SetDefaultOptions.
func SetDefaultOptions(opts ...Option) {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()
	processDefaults = opts
}

func processDefaultLayer() []Option {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()
	out := make([]Option, len(processDefaults))
	copy(out, processDefaults)
	return out
}

// resolveOptions merges option layers left-to-right over the hardcoded
// defaults. Later layers win key-by-key.
func resolveOptions(layers ...[]Option) Options {
	o := defaultOptions()
	for _, layer := range layers {
		for _, opt := range layer {
			opt(&o)
		}
	}
	return o
}
