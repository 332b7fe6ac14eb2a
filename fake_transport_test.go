package rowcast

import (
	"context"
	"strings"

	"github.com/koustreak/rowcast/internal/errs"
	"github.com/koustreak/rowcast/internal/transport"
)

// fakeSession is an in-memory transport.Session for state-machine tests.
// The result header is available immediately after SendQuery.
type fakeSession struct {
	cols []transport.Column
	rows []transport.RawRow

	// headerErr, when set, is returned by AwaitHeader once.
	headerErr *errs.Error

	pos       int
	inFlight  bool
	ready     chan struct{}
	nextCalls int
	freeCalls int
	pings     int
	closed    bool
}

func newFakeSession(cols []transport.Column, rows []transport.RawRow) *fakeSession {
	return &fakeSession{cols: cols, rows: rows}
}

func (s *fakeSession) SendQuery(_ context.Context, _ string) error {
	if s.inFlight {
		return errs.New(errs.ErrKindProtocolState, "previous result not freed")
	}
	s.inFlight = true
	s.pos = 0
	s.ready = make(chan struct{})
	close(s.ready)
	return nil
}

func (s *fakeSession) Ready() <-chan struct{} {
	return s.ready
}

func (s *fakeSession) AwaitHeader(_ context.Context) ([]transport.Column, error) {
	if !s.inFlight {
		return nil, errs.New(errs.ErrKindProtocolState, "no query in flight")
	}
	if s.headerErr != nil {
		err := s.headerErr
		s.headerErr = nil
		s.inFlight = false
		return nil, err
	}
	return s.cols, nil
}

func (s *fakeSession) NextRow() (transport.RawRow, error) {
	s.nextCalls++
	if s.pos >= len(s.rows) {
		return nil, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *fakeSession) FreeResult() error {
	s.freeCalls++
	s.inFlight = false
	return nil
}

func (s *fakeSession) Escape(str string) string {
	return strings.ReplaceAll(str, "'", `\'`)
}

func (s *fakeSession) Ping(_ context.Context) error {
	s.pings++
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// --- fixtures ---

func idNameCols() []transport.Column {
	return []transport.Column{
		{Name: "ID", Type: transport.TypeLong},
		{Name: "Name", Type: transport.TypeVarChar},
	}
}

func idNameRows(n int) []transport.RawRow {
	rows := make([]transport.RawRow, n)
	for i := range rows {
		rows[i] = transport.RawRow{
			[]byte{byte('1' + i)},
			[]byte("row" + string(rune('a'+i))),
		}
	}
	return rows
}
