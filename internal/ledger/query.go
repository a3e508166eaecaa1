package ledger

import (
	"errors"
	"fmt"
	"time"
)

// QueryKind distinguishes the shapes of ledger questions.
type QueryKind int

const (
	// QueryCurrent asks for the latest weight.
	QueryCurrent QueryKind = iota + 1
	// QueryAt asks for the weight at a point in time.
	QueryAt
	// QueryRange asks for load/dispense totals over [From, To).
	QueryRange
)

// Query is a tagged ledger question. Only the fields belonging to Kind
// are read.
type Query struct {
	Kind QueryKind
	At   time.Time
	From time.Time
	To   time.Time
}

// Current builds a QueryCurrent.
func Current() Query { return Query{Kind: QueryCurrent} }

// At builds a QueryAt for t.
func At(t time.Time) Query { return Query{Kind: QueryAt, At: t} }

// Range builds a QueryRange over [from, to).
func Range(from, to time.Time) Query { return Query{Kind: QueryRange, From: from, To: to} }

// Answer is the result of Query. Weight is set for QueryCurrent and
// QueryAt; Totals for QueryRange.
type Answer struct {
	Kind   QueryKind
	Weight float64
	Totals Totals
}

// ErrInvalidQuery is the sentinel matched by errors.Is for unrecognized
// query shapes.
var ErrInvalidQuery = errors.New("invalid query")

// QueryError reports a query the ledger cannot interpret. It is a
// programmer error: the ledger is left untouched.
type QueryError struct {
	Kind QueryKind
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("ledger: unrecognized query kind %d", int(e.Kind))
}

// Unwrap lets errors.Is match ErrInvalidQuery.
func (e *QueryError) Unwrap() error {
	return ErrInvalidQuery
}

// IsInvalidQuery reports whether err is (or wraps) an invalid query error.
func IsInvalidQuery(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// Query answers q. Unknown kinds fail fast with *QueryError.
func (l *Ledger) Query(q Query) (Answer, error) {
	switch q.Kind {
	case QueryCurrent:
		return Answer{Kind: q.Kind, Weight: l.CurrentWeight()}, nil
	case QueryAt:
		return Answer{Kind: q.Kind, Weight: l.WeightAt(q.At)}, nil
	case QueryRange:
		return Answer{Kind: q.Kind, Totals: l.RangeTotals(q.From, q.To)}, nil
	default:
		return Answer{}, &QueryError{Kind: q.Kind}
	}
}
