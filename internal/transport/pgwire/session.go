// Package pgwire implements transport.Session on a single pgconn.PgConn.
// Results are requested in text format; raw values reach the cast
// registry in the same textual representation the MySQL transport emits,
// so both share one set of type tags.
package pgwire

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/koustreak/rowcast/internal/errs"
	"github.com/koustreak/rowcast/internal/transport"
)

// Session is a single Postgres connection speaking the extended query
// protocol. Like the MySQL transport it adapts the blocking client call
// to the non-blocking submission contract with one goroutine per cycle.
type Session struct {
	conn *pgconn.PgConn
	cur  *cycle
}

type cycle struct {
	ready  chan struct{}
	rr     *pgconn.ResultReader
	cols   []transport.Column
	bools  []bool // columns needing t/f → 1/0 normalization
	byteas []bool // columns needing \x hex decoding
	err    error
}

// Open connects to the server described by a pgx-style conn string.
func Open(ctx context.Context, dsn string, connectTimeout time.Duration) (*Session, error) {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnection, "invalid DSN", err)
	}
	if connectTimeout > 0 {
		cfg.ConnectTimeout = connectTimeout
	}

	conn, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, mapError(err, "connect failed")
	}
	return &Session{conn: conn}, nil
}

// --- transport.Session implementation ---

func (s *Session) SendQuery(ctx context.Context, sqlText string) error {
	if s.cur != nil {
		return errs.New(errs.ErrKindProtocolState, "previous result not freed")
	}

	c := &cycle{ready: make(chan struct{})}
	s.cur = c

	go func() {
		defer close(c.ready)
		rr := s.conn.ExecParams(ctx, sqlText, nil, nil, nil, nil)

		fields := rr.FieldDescriptions()
		if len(fields) == 0 {
			// Either the server rejected the statement or it produces no
			// result set (DDL, DML): both conclude immediately.
			if _, err := rr.Close(); err != nil {
				c.err = mapError(err, "query failed")
				return
			}
			c.cols = []transport.Column{}
			return
		}

		c.cols, c.bools, c.byteas = describeColumns(fields)
		c.rr = rr
	}()

	return nil
}

func (s *Session) Ready() <-chan struct{} {
	if s.cur == nil {
		return nil
	}
	return s.cur.ready
}

func (s *Session) AwaitHeader(ctx context.Context) ([]transport.Column, error) {
	c := s.cur
	if c == nil {
		return nil, errs.New(errs.ErrKindProtocolState, "no query in flight")
	}

	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, "waiting for result header", ctx.Err())
	}

	if c.err != nil {
		s.cur = nil
		return nil, c.err
	}
	return c.cols, nil
}

func (s *Session) NextRow() (transport.RawRow, error) {
	c := s.cur
	if c == nil || c.rr == nil {
		return nil, nil
	}

	if !c.rr.NextRow() {
		// A server error (syntax, runtime) surfaces on Close.
		if _, err := c.rr.Close(); err != nil {
			c.rr = nil
			return nil, mapError(err, "query failed")
		}
		c.rr = nil
		return nil, nil
	}

	values := c.rr.Values()
	row := make(transport.RawRow, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		switch {
		case c.bools[i]:
			// Wire format is t/f; the registry's boolean convention for
			// width-1 columns is 1/0.
			if v[0] == 't' {
				row[i] = []byte{'1'}
			} else {
				row[i] = []byte{'0'}
			}
		case c.byteas[i]:
			decoded, err := decodeBytea(v)
			if err != nil {
				return nil, errs.Wrap(errs.ErrKindConversion, "malformed bytea value", err)
			}
			row[i] = decoded
		default:
			b := make([]byte, len(v))
			copy(b, v)
			row[i] = b
		}
	}
	return row, nil
}

func (s *Session) FreeResult() error {
	c := s.cur
	if c == nil {
		return nil
	}
	s.cur = nil
	if c.rr != nil {
		if _, err := c.rr.Close(); err != nil {
			return mapError(err, "freeing result failed")
		}
	}
	return nil
}

// Escape doubles single quotes per standard_conforming_strings, the
// server default since PostgreSQL 9.1.
func (s *Session) Escape(str string) string {
	return strings.ReplaceAll(str, "'", "''")
}

func (s *Session) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.conn.Close(ctx); err != nil {
		return mapError(err, "close failed")
	}
	return nil
}

// describeColumns maps field descriptions onto shared transport.Column
// descriptors, flagging columns whose text representation needs
// normalization before the cast registry sees it.
func describeColumns(fields []pgconn.FieldDescription) ([]transport.Column, []bool, []bool) {
	cols := make([]transport.Column, len(fields))
	bools := make([]bool, len(fields))
	byteas := make([]bool, len(fields))

	for i, fd := range fields {
		col := transport.Column{Name: fd.Name}

		switch fd.DataTypeOID {
		case pgtype.BoolOID:
			col.Type = transport.TypeTiny
			col.Length = 1
			bools[i] = true
		case pgtype.Int2OID:
			col.Type = transport.TypeShort
		case pgtype.Int4OID:
			col.Type = transport.TypeLong
		case pgtype.Int8OID:
			col.Type = transport.TypeLongLong
		case pgtype.Float4OID:
			col.Type = transport.TypeFloat
		case pgtype.Float8OID:
			col.Type = transport.TypeDouble
		case pgtype.NumericOID:
			col.Type = transport.TypeNewDecimal
			if fd.TypeModifier >= 4 {
				col.Decimals = int(fd.TypeModifier-4) & 0xFFFF
			}
		case pgtype.DateOID:
			col.Type = transport.TypeDate
		case pgtype.TimeOID:
			col.Type = transport.TypeTime
		case pgtype.TimestampOID:
			col.Type = transport.TypeDateTime
		case pgtype.TimestamptzOID:
			col.Type = transport.TypeTimestamp
		case pgtype.ByteaOID:
			col.Type = transport.TypeBlob
			col.Binary = true
			byteas[i] = true
		case pgtype.JSONOID, pgtype.JSONBOID:
			col.Type = transport.TypeJSON
		case pgtype.BPCharOID:
			col.Type = transport.TypeString
		case pgtype.VarcharOID:
			col.Type = transport.TypeVarChar
			if fd.TypeModifier >= 4 {
				col.Length = int64(fd.TypeModifier - 4)
			}
		default:
			// Everything else (text, name, uuid, enums with dynamic OIDs,
			// arrays, …) arrives as text on the wire.
			col.Type = transport.TypeVarString
		}

		cols[i] = col
	}
	return cols, bools, byteas
}

// decodeBytea decodes the \x-prefixed hex output format.
func decodeBytea(v []byte) ([]byte, error) {
	if len(v) >= 2 && v[0] == '\\' && v[1] == 'x' {
		out := make([]byte, hex.DecodedLen(len(v)-2))
		if _, err := hex.Decode(out, v[2:]); err != nil {
			return nil, err
		}
		return out, nil
	}
	// Legacy escape format, passed through untouched.
	b := make([]byte, len(v))
	copy(b, v)
	return b, nil
}
