// Package mysql implements transport.Session on top of database/sql with
// the go-sql-driver. One Session pins exactly one connection out of the
// pool, so a query cycle never migrates between server sessions.
package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver

	"github.com/koustreak/rowcast/internal/errs"
	"github.com/koustreak/rowcast/internal/transport"
)

// Session is a single pinned MySQL connection.
//
// SendQuery adapts the blocking database/sql call to the non-blocking
// submission contract with one short-lived goroutine per query cycle; the
// result pipeline itself never sees it. Serialization of cycles is the
// caller's job per the transport contract.
type Session struct {
	db   *sql.DB
	conn *sql.Conn
	cur  *cycle
}

// cycle is one SendQuery..FreeResult window. ready is closed once the
// result header (or the failure) is available.
type cycle struct {
	ready chan struct{}
	rows  *sql.Rows
	cols  []transport.Column
	err   error
}

// Open connects and pins a single connection.
func Open(ctx context.Context, dsn string, connectTimeout time.Duration) (*Session, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnection, "invalid DSN", err)
	}
	db.SetMaxOpenConns(1)

	if connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, mapError(err, "connect failed")
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, mapError(err, "handshake failed")
	}

	return &Session{db: db, conn: conn}, nil
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
		rows, err := s.conn.QueryContext(ctx, sqlText)
		if err != nil {
			c.err = mapError(err, "query failed")
			return
		}
		c.rows = rows
		c.cols, c.err = describeColumns(rows)
		if c.err != nil {
			_ = rows.Close()
			c.rows = nil
		}
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
	if c == nil || c.rows == nil {
		return nil, nil
	}

	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, mapError(err, "row fetch failed")
		}
		return nil, nil
	}

	n := len(c.cols)
	values := make([]sql.RawBytes, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, mapError(err, "row scan failed")
	}

	// RawBytes point into the driver's buffer and are invalidated by the
	// next fetch; hand the caller its own copies. nil stays nil (NULL).
	row := make(transport.RawRow, n)
	for i, v := range values {
		if v == nil {
			continue
		}
		b := make([]byte, len(v))
		copy(b, v)
		row[i] = b
	}
	return row, nil
}

func (s *Session) FreeResult() error {
	c := s.cur
	if c == nil {
		return nil
	}
	s.cur = nil
	if c.rows != nil {
		if err := c.rows.Close(); err != nil {
			return mapError(err, "freeing result failed")
		}
	}
	return nil
}

// Escape quotes s the way mysql_real_escape_string does for a
// backslash-escaping server mode.
func (s *Session) Escape(str string) string {
	var sb strings.Builder
	sb.Grow(len(str))
	for i := 0; i < len(str); i++ {
		switch c := str[i]; c {
		case 0:
			sb.WriteString(`\0`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case 0x1a:
			sb.WriteString(`\Z`)
		case '\'':
			sb.WriteString(`\'`)
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func (s *Session) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (s *Session) Close() error {
	_ = s.conn.Close()
	if err := s.db.Close(); err != nil {
		return mapError(err, "close failed")
	}
	return nil
}

// describeColumns maps *sql.ColumnType metadata onto transport.Column
// descriptors. The slice is built once per result and shared by all rows.
func describeColumns(rows *sql.Rows) ([]transport.Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, mapError(err, "reading column metadata failed")
	}

	cols := make([]transport.Column, len(types))
	for i, ct := range types {
		name := ct.DatabaseTypeName()
		unsigned := strings.HasPrefix(name, "UNSIGNED ")
		if unsigned {
			name = strings.TrimPrefix(name, "UNSIGNED ")
		}

		tag, binary, ok := tagForTypeName(name)
		if !ok {
			return nil, errs.New(errs.ErrKindConversion,
				"transport emitted unknown column type "+ct.DatabaseTypeName())
		}

		col := transport.Column{
			Name:     ct.Name(),
			Type:     tag,
			Unsigned: unsigned,
			Binary:   binary,
		}
		if length, ok := ct.Length(); ok {
			col.Length = length
		}
		if _, scale, ok := ct.DecimalSize(); ok {
			col.Decimals = int(scale)
		}
		cols[i] = col
	}
	return cols, nil
}

// tagForTypeName translates go-sql-driver's DatabaseTypeName values.
// The driver reports TEXT names for text character sets and BLOB/BINARY
// names for the binary charset, which is exactly the text/binary split
// the cast registry needs.
func tagForTypeName(name string) (tag transport.TypeTag, binary bool, ok bool) {
	switch name {
	case "TINYINT":
		return transport.TypeTiny, false, true
	case "SMALLINT":
		return transport.TypeShort, false, true
	case "MEDIUMINT":
		return transport.TypeInt24, false, true
	case "INT":
		return transport.TypeLong, false, true
	case "BIGINT":
		return transport.TypeLongLong, false, true
	case "YEAR":
		return transport.TypeYear, false, true
	case "FLOAT":
		return transport.TypeFloat, false, true
	case "DOUBLE":
		return transport.TypeDouble, false, true
	case "DECIMAL":
		return transport.TypeNewDecimal, false, true
	case "BIT":
		return transport.TypeBit, true, true
	case "DATE":
		return transport.TypeDate, false, true
	case "TIME":
		return transport.TypeTime, false, true
	case "DATETIME":
		return transport.TypeDateTime, false, true
	case "TIMESTAMP":
		return transport.TypeTimestamp, false, true
	case "CHAR":
		return transport.TypeString, false, true
	case "VARCHAR":
		return transport.TypeVarChar, false, true
	case "BINARY":
		return transport.TypeString, true, true
	case "VARBINARY":
		return transport.TypeVarString, true, true
	case "ENUM":
		return transport.TypeEnum, false, true
	case "SET":
		return transport.TypeSet, false, true
	case "JSON":
		return transport.TypeJSON, false, true
	case "TINYTEXT":
		return transport.TypeTinyBlob, false, true
	case "TEXT":
		return transport.TypeBlob, false, true
	case "MEDIUMTEXT":
		return transport.TypeMediumBlob, false, true
	case "LONGTEXT":
		return transport.TypeLongBlob, false, true
	case "TINYBLOB":
		return transport.TypeTinyBlob, true, true
	case "BLOB":
		return transport.TypeBlob, true, true
	case "MEDIUMBLOB":
		return transport.TypeMediumBlob, true, true
	case "LONGBLOB":
		return transport.TypeLongBlob, true, true
	case "GEOMETRY":
		return transport.TypeGeometry, true, true
	case "NULL":
		return transport.TypeNull, false, true
	}
	return 0, false, false
}
