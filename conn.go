package rowcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/koustreak/rowcast/internal/logger"
	"github.com/koustreak/rowcast/internal/transport"
	mysqltransport "github.com/koustreak/rowcast/internal/transport/mysql"
	"github.com/koustreak/rowcast/internal/transport/pgwire"
)

// Conn owns exactly one transport session and serializes query cycles on
// it: at most one query/result cycle may be active at a time, and a new
// query cannot be sent while a streaming Result from a prior query is
// unexhausted. Violations surface as protocol-state errors, never as
// silent serialization.
//
// Conn targets a single logical thread of control. For true concurrency,
// open one Conn per worker instead of sharing one.
type Conn struct {
	sess     transport.Session
	defaults []Option
	log      *logger.Logger

	// gate is the single-query-cycle semaphore. It is held from query
	// submission until the Result detaches: immediately after the raw
	// buffer is pulled in buffered mode, or at drain/free in streaming
	// mode.
	gate *semaphore.Weighted

	mu      sync.Mutex
	closed  bool
	pending *pendingQuery // non-nil while an async query is in flight
	active  *Result       // unexhausted streaming result, if any
}

// pendingQuery tracks one async submission between Query and
// FetchAsyncResult.
type pendingQuery struct {
	opts  Options
	log   *logger.Logger
	start time.Time
}

// Connect opens a session for cfg.Driver and returns a Conn bound to it.
func Connect(ctx context.Context, cfg *Config) (*Conn, error) {
	layer, err := cfg.Defaults.Layer()
	if err != nil {
		return nil, WrapError(ErrKindConnection, "invalid connection defaults", err)
	}

	var sess transport.Session
	switch cfg.Driver {
	case DriverMySQL:
		sess, err = mysqltransport.Open(ctx, cfg.DSN, cfg.ConnectTimeout)
	case DriverPostgres:
		sess, err = pgwire.Open(ctx, cfg.DSN, cfg.ConnectTimeout)
	default:
		return nil, NewError(ErrKindConnection, "unknown driver "+string(cfg.Driver))
	}
	if err != nil {
		return nil, wrapTransportErr(err, ErrKindConnection, "connect failed")
	}

	conn := NewConn(sess, layer...)
	conn.log = conn.log.With("driver", string(cfg.Driver))
	return conn, nil
}

// NewConn wraps an already-open transport session. The given options form
// the connection default layer, overriding process-wide defaults and
// overridden in turn by per-call options.
//
// Exported so custom transport.Session implementations can be plugged in.
func NewConn(sess transport.Session, defaults ...Option) *Conn {
	return &Conn{
		sess:     sess,
		defaults: defaults,
		gate:     semaphore.NewWeighted(1),
		log:      logger.Nop(),
	}
}

// SetLogger attaches a zerolog logger for query-lifecycle events.
// By default a Conn logs nothing.
func (c *Conn) SetLogger(zlog zerolog.Logger) {
	c.log = logger.FromZerolog(zlog)
}

// Query resolves effective options and submits sql on the session.
//
// Synchronous path (default): blocks until the server's result header is
// available and returns the Result.
//
// Async path (WithAsync(true)): returns (nil, nil) immediately after
// submission. The caller may wait on Ready() and must call
// FetchAsyncResult to obtain the Result; the Conn accepts no other query
// until then.
func (c *Conn) Query(ctx context.Context, sql string, opts ...Option) (*Result, error) {
	eff := resolveOptions(processDefaultLayer(), c.defaults, opts)

	if err := c.begin(); err != nil {
		return nil, err
	}

	qlog := c.log.With("query_id", uuid.NewString())
	start := time.Now()
	qlog.Debug().Bool("async", eff.Async).Bool("stream", eff.Stream).Msg("query sent")

	if err := c.sess.SendQuery(ctx, sql); err != nil {
		c.gate.Release(1)
		err = wrapTransportErr(err, ErrKindQuery, "query submission failed")
		qlog.Error().Err(err).Msg("query submission failed")
		return nil, err
	}

	if eff.Async {
		c.mu.Lock()
		c.pending = &pendingQuery{opts: eff, log: qlog, start: start}
		c.mu.Unlock()
		return nil, nil
	}

	return c.awaitResult(ctx, eff, qlog, start)
}

// Ready returns the readiness handle of the in-flight async query: a
// channel closed once the result header is available, so callers can
// multiplex the wait with other work. Returns nil when no async query is
// pending.
func (c *Conn) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	return c.sess.Ready()
}

// FetchAsyncResult completes an async query cycle. Only the submission
// was non-blocking: this call blocks until the result header is ready,
// then constructs the Result exactly as the synchronous path does.
func (c *Conn) FetchAsyncResult(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	if p == nil {
		return nil, NewError(ErrKindProtocolState, "no async query pending")
	}
	return c.awaitResult(ctx, p.opts, p.log, p.start)
}

// Escape quotes special characters in s for safe embedding in a SQL
// string literal, using the session character set. Stateless with respect
// to the query cycle.
func (c *Conn) Escape(s string) (string, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", NewError(ErrKindConnection, "connection closed")
	}
	return c.sess.Escape(s), nil
}

// Ping verifies the server is reachable. Valid only while no query cycle
// is in flight.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.gate.Release(1)
	if err := c.sess.Ping(ctx); err != nil {
		return wrapTransportErr(err, ErrKindConnection, "ping failed")
	}
	return nil
}

// Close tears down the transport session. Any streaming Result still
// bound to the Conn becomes permanently released; its uncached rows are
// lost.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	active := c.active
	c.active = nil
	c.pending = nil
	c.mu.Unlock()

	if active != nil {
		active.invalidate()
	}
	if err := c.sess.Close(); err != nil {
		return wrapTransportErr(err, ErrKindConnection, "close failed")
	}
	return nil
}

// begin validates the idle state and takes the query gate.
func (c *Conn) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return NewError(ErrKindConnection, "connection closed")
	}
	if c.active != nil {
		return NewError(ErrKindProtocolState,
			"streaming result from previous query is not exhausted; drain or free it first")
	}
	if c.pending != nil {
		return NewError(ErrKindProtocolState,
			"async query in flight; call FetchAsyncResult first")
	}
	if !c.gate.TryAcquire(1) {
		return NewError(ErrKindProtocolState, "query already in flight on this connection")
	}
	return nil
}

// awaitResult blocks for the result header and builds the Result. In
// buffered mode the whole raw result is pulled here and the gate released
// before returning; in streaming mode the gate stays held until the
// Result drains.
func (c *Conn) awaitResult(ctx context.Context, eff Options, qlog *logger.Logger, start time.Time) (*Result, error) {
	cols, err := c.sess.AwaitHeader(ctx)
	if err != nil {
		_ = c.sess.FreeResult()
		c.gate.Release(1)
		err = wrapTransportErr(err, ErrKindQuery, "query failed")
		qlog.Error().Err(err).Msg("query failed")
		return nil, err
	}

	res := newResult(c, cols, eff, qlog)

	if eff.Stream {
		c.mu.Lock()
		c.active = res
		c.mu.Unlock()
		qlog.Debug().Int("columns", len(cols)).Dur("elapsed", time.Since(start)).
			Msg("streaming result ready")
		return res, nil
	}

	if err := res.bufferAll(); err != nil {
		c.gate.Release(1)
		qlog.Error().Err(err).Msg("buffered fetch failed")
		return nil, err
	}
	c.gate.Release(1)

	qlog.Debug().Int("columns", len(cols)).Int("rows", len(res.raw)).
		Dur("elapsed", time.Since(start)).Msg("buffered result ready")
	return res, nil
}

// detachStreaming is called by a streaming Result when it reaches
// exhaustion or is freed, returning the Conn to idle.
func (c *Conn) detachStreaming(r *Result) {
	c.mu.Lock()
	if c.active != r {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()
	c.gate.Release(1)
}

// wrapTransportErr passes through transport errors that are already
// *Error (transports map server errors themselves) and wraps everything
// else with the given fallback kind. Context errors become timeouts.
func wrapTransportErr(err error, fallback ErrKind, msg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapError(ErrKindTimeout, msg, err)
	}
	return WrapError(fallback, msg, err)
}
