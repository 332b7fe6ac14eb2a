// Package rowcast is a client-side result pipeline for relational
// databases: it issues queries over an exclusively-owned transport
// session and materializes the wire-level result set into native Go
// values, lazily and with caching.
//
// Two fetch disciplines are supported. Buffered results pull the whole
// raw result into a client-side arena up front and convert rows on first
// access; streaming results pull one row at a time and keep the
// connection busy until drained. Queries can be submitted asynchronously:
// submission returns immediately and the caller collects the result with
// FetchAsyncResult once the readiness channel fires.
//
//	cfg := rowcast.DefaultConfig(rowcast.DriverMySQL, dsn)
//	conn, err := rowcast.Connect(ctx, cfg)
//	...
//	res, err := conn.Query(ctx, "SELECT id, name FROM users",
//		rowcast.WithCastBooleans(true))
//	for row, err := range res.Each() {
//		...
//	}
//
// Options cascade across three layers: process-wide defaults
// (SetDefaultOptions), per-connection defaults (Connect config or
// NewConn), and per-call overrides, merged key by key in that order.
//
// A Conn and its Results target a single logical thread of control; for
// concurrent query execution open one Conn per worker.
package rowcast
