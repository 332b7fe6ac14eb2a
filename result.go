package rowcast

import (
	"fmt"
	"iter"
	"strings"

	"github.com/koustreak/rowcast/internal/logger"
	"github.com/koustreak/rowcast/internal/transport"
	"github.com/koustreak/rowcast/internal/typecast"
)

// Result is one query's result set.
//
// In buffered mode the entire raw result is pulled into a client-side
// arena at construction and the server-side state is freed immediately;
// rows are converted lazily on first access by index and, with CacheRows,
// converted exactly once. Iteration is repeatable and random-order.
//
// In streaming mode rows are pulled from the server one at a time with no
// arena beyond the current row, caching is forced off, and only a single
// forward pass is possible. The owning Conn accepts no new query until
// the Result is drained or freed.
//
// Depending on the As option, materialized rows are map[string]any or
// []any. Like the Conn that produced it, a Result targets a single
// logical thread of control.
type Result struct {
	conn *Conn
	sess transport.Session
	cols []transport.Column
	opts Options
	log  *logger.Logger

	// fields holds the column names, allocated once and shared by
	// reference with every hash-shaped row. keys is the map-key view of
	// fields (identical, or lower-cased under SymbolizeKeys).
	fields []string
	keys   []string

	castOpts typecast.Options

	// Buffered state: raw is the arena of unconverted rows, cache the
	// parallel array of materialized rows (nil element = not yet
	// converted). nrows survives Free, which drops the arena.
	raw   []transport.RawRow
	cache []any
	nrows int

	// Streaming state.
	streamed int // rows yielded so far
	drained  bool

	released bool
	err      error
}

func newResult(c *Conn, cols []transport.Column, opts Options, qlog *logger.Logger) *Result {
	if opts.Stream {
		// Cached rows make no sense without a rewindable source.
		opts.CacheRows = false
	}

	fields := make([]string, len(cols))
	for i := range cols {
		fields[i] = cols[i].Name
	}

	keys := fields
	if opts.SymbolizeKeys {
		keys = make([]string, len(fields))
		for i, f := range fields {
			keys[i] = strings.ToLower(f)
		}
	}

	return &Result{
		conn:   c,
		sess:   c.sess,
		cols:   cols,
		opts:   opts,
		log:    qlog,
		fields: fields,
		keys:   keys,
		castOpts: typecast.Options{
			CastBooleans:        opts.CastBooleans,
			DatabaseLocation:    opts.DatabaseTimezone.Location(),
			ApplicationLocation: opts.ApplicationTimezone.Location(),
		},
	}
}

// bufferAll pulls the whole raw result into the arena and frees the
// server-side state. No conversion happens here.
func (r *Result) bufferAll() error {
	for {
		raw, err := r.sess.NextRow()
		if err != nil {
			_ = r.sess.FreeResult()
			r.released = true
			return wrapTransportErr(err, ErrKindConnection, "row fetch failed")
		}
		if raw == nil {
			break
		}
		r.raw = append(r.raw, raw)
	}
	_ = r.sess.FreeResult()

	r.drained = true
	r.nrows = len(r.raw)
	if r.opts.CacheRows {
		r.cache = make([]any, r.nrows)
	}
	return nil
}

// Fields returns the ordered column names. The slice is allocated once
// per Result and shared; callers must not modify it.
func (r *Result) Fields() []string {
	return r.fields
}

// Count returns the total number of rows without forcing conversion of
// row bodies. For a streaming Result the count is undefined until the
// result is fully drained and asking earlier is an error.
func (r *Result) Count() (int, error) {
	if r.opts.Stream {
		if !r.drained {
			return 0, NewError(ErrKindProtocolState,
				"row count is undefined until the streaming result is drained")
		}
		return r.streamed, nil
	}
	return r.nrows, nil
}

// Each returns an iterator over the rows.
//
// Buffered mode: the sequence is restartable; every call to Each walks
// the full result from row 0. With CacheRows each row is converted at
// most once across all passes.
//
// Streaming mode: a single forward pass shared by all calls; breaking out
// keeps the remaining rows pending (and the Conn busy), and iterating
// after exhaustion yields nothing.
func (r *Result) Each() iter.Seq2[any, error] {
	if r.opts.Stream {
		return r.eachStreaming
	}
	return r.eachBuffered
}

func (r *Result) eachBuffered(yield func(any, error) bool) {
	for i := 0; i < r.nrows; i++ {
		row, err := r.At(i)
		if err != nil {
			r.err = err
			yield(nil, err)
			return
		}
		if !yield(row, nil) {
			return
		}
	}
}

func (r *Result) eachStreaming(yield func(any, error) bool) {
	for {
		if r.drained || r.released {
			return
		}

		raw, err := r.sess.NextRow()
		if err != nil {
			r.err = wrapTransportErr(err, ErrKindConnection, "row fetch failed")
			r.finishStream()
			yield(nil, r.err)
			return
		}
		if raw == nil {
			r.finishStream()
			return
		}

		row, err := r.materialize(raw)
		if err != nil {
			r.err = err
			yield(nil, err)
			return
		}
		r.streamed++
		if !yield(row, nil) {
			return
		}
	}
}

// At materializes the row at index i. Only valid for buffered results.
// With CacheRows the converted row is stored on first access and returned
// as-is on every later access.
func (r *Result) At(i int) (any, error) {
	if r.opts.Stream {
		return nil, NewError(ErrKindProtocolState, "no random access on a streaming result")
	}
	if i < 0 || i >= r.nrows {
		return nil, NewError(ErrKindProtocolState, fmt.Sprintf("row index %d out of range", i))
	}

	if r.cache != nil && r.cache[i] != nil {
		return r.cache[i], nil
	}
	if r.released {
		return nil, NewError(ErrKindProtocolState, "result released; uncached rows are gone")
	}

	row, err := r.materialize(r.raw[i])
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache[i] = row
	}
	return row, nil
}

// All drains the result into a slice.
func (r *Result) All() ([]any, error) {
	var rows []any
	for row, err := range r.Each() {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Free explicitly releases the result. A streaming result frees its
// server-side state and returns the Conn to idle; its remaining rows are
// lost. A buffered result drops the raw arena; rows already cached stay
// readable, uncached rows are gone.
func (r *Result) Free() {
	if r.released {
		return
	}
	r.released = true

	if r.opts.Stream {
		if !r.drained {
			_ = r.sess.FreeResult()
			r.conn.detachStreaming(r)
		}
		r.log.Debug().Int("rows", r.streamed).Msg("streaming result freed")
		return
	}

	r.raw = nil
	r.log.Debug().Msg("buffered result freed")
}

// Err returns the last iteration error, if any.
func (r *Result) Err() error {
	return r.err
}

// finishStream marks exhaustion, frees server-side state and returns the
// Conn to idle.
func (r *Result) finishStream() {
	if r.drained {
		return
	}
	r.drained = true
	_ = r.sess.FreeResult()
	r.conn.detachStreaming(r)
	r.log.Debug().Int("rows", r.streamed).Msg("streaming result drained")
}

// invalidate is called when the owning Conn closes underneath the result.
func (r *Result) invalidate() {
	r.released = true
	r.drained = true
	r.raw = nil
}

// materialize converts one raw row into its native shape. Column
// descriptors are consulted per field; with Cast off the raw bytes pass
// through untouched (NULL still maps to nil).
func (r *Result) materialize(raw transport.RawRow) (any, error) {
	if len(raw) != len(r.cols) {
		return nil, NewError(ErrKindConversion,
			fmt.Sprintf("row has %d fields, result declares %d columns", len(raw), len(r.cols)))
	}

	values := make([]any, len(raw))
	for i, cell := range raw {
		if !r.opts.Cast {
			if cell == nil {
				values[i] = nil
			} else {
				values[i] = cell
			}
			continue
		}
		v, err := typecast.Cast(r.cols[i], cell, r.castOpts)
		if err != nil {
			return nil, WrapError(ErrKindConversion, "cast failed", err)
		}
		values[i] = v
	}

	if r.opts.As == ShapeArray {
		return values, nil
	}

	row := make(map[string]any, len(values))
	for i, v := range values {
		row[r.keys[i]] = v
	}
	return row, nil
}
