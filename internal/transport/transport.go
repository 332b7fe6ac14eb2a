// Package transport defines the contract between the rowcast result
// pipeline and the wire-level database clients that feed it.
//
// A Session is one exclusively-owned server connection. The core never
// talks to go-sql-driver or pgx directly — it only sees Sessions, raw
// rows and column descriptors, so every transport is interchangeable.
package transport

import "context"

// TypeTag identifies the server-declared type of a result column.
// Transports translate their native type information (MySQL field types,
// Postgres OIDs) into these tags; the cast registry must handle all of them.
type TypeTag int

const (
	TypeNull TypeTag = iota
	TypeTiny
	TypeShort
	TypeInt24
	TypeLong
	TypeLongLong
	TypeYear
	TypeFloat
	TypeDouble
	TypeDecimal
	TypeNewDecimal
	TypeBit
	TypeDate
	TypeTime
	TypeDateTime
	TypeTimestamp
	TypeVarChar
	TypeVarString
	TypeString
	TypeEnum
	TypeSet
	TypeJSON
	TypeTinyBlob
	TypeMediumBlob
	TypeLongBlob
	TypeBlob
	TypeGeometry
)

var tagNames = map[TypeTag]string{
	TypeNull:       "NULL",
	TypeTiny:       "TINY",
	TypeShort:      "SHORT",
	TypeInt24:      "INT24",
	TypeLong:       "LONG",
	TypeLongLong:   "LONGLONG",
	TypeYear:       "YEAR",
	TypeFloat:      "FLOAT",
	TypeDouble:     "DOUBLE",
	TypeDecimal:    "DECIMAL",
	TypeNewDecimal: "NEWDECIMAL",
	TypeBit:        "BIT",
	TypeDate:       "DATE",
	TypeTime:       "TIME",
	TypeDateTime:   "DATETIME",
	TypeTimestamp:  "TIMESTAMP",
	TypeVarChar:    "VARCHAR",
	TypeVarString:  "VARSTRING",
	TypeString:     "STRING",
	TypeEnum:       "ENUM",
	TypeSet:        "SET",
	TypeJSON:       "JSON",
	TypeTinyBlob:   "TINYBLOB",
	TypeMediumBlob: "MEDIUMBLOB",
	TypeLongBlob:   "LONGBLOB",
	TypeBlob:       "BLOB",
	TypeGeometry:   "GEOMETRY",
}

func (t TypeTag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Column describes one result column. A Session builds the descriptor
// slice once per result; it is shared by reference across all rows and
// never mutated afterwards.
type Column struct {
	Name     string
	Type     TypeTag
	Length   int64 // declared display width / byte length, 0 if unknown
	Decimals int   // declared scale for decimal types
	Unsigned bool
	Binary   bool // binary character set (blobs) vs text
}

// RawRow is one undecoded row as delivered by the server.
// A nil element is the SQL NULL marker. Byte slices are owned by the
// caller once returned — transports must not reuse the backing arrays.
type RawRow [][]byte

// Session is a single server connection with at most one query cycle
// active at a time. Serialization of cycles is enforced by the caller
// (rowcast.Conn), not by the Session.
type Session interface {
	// SendQuery submits raw query text without waiting for the server
	// to begin returning results.
	SendQuery(ctx context.Context, sql string) error

	// Ready returns a channel that is closed once the result header of
	// the in-flight query is available, so callers can multiplex the
	// wait with other work. Only valid between SendQuery and AwaitHeader.
	Ready() <-chan struct{}

	// AwaitHeader blocks until the result header arrives and returns the
	// column descriptors. Exactly one call per SendQuery.
	AwaitHeader(ctx context.Context) ([]Column, error)

	// NextRow returns the next raw row, or (nil, nil) at end of results.
	NextRow() (RawRow, error)

	// FreeResult releases server-side result state for the current cycle.
	// Safe to call more than once.
	FreeResult() error

	// Escape returns s with special characters quoted for safe embedding
	// in a SQL string literal, using the session character set.
	Escape(s string) string

	// Ping verifies the server is reachable. Only valid while no query
	// cycle is in flight.
	Ping(ctx context.Context) error

	// Close tears down the connection. Any in-flight result is lost.
	Close() error
}
