package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// Header maps column names to field positions.
type Header map[string]int

// NewHeader indexes the column names of a header row. Names are trimmed and a
// leading UTF-8 byte-order mark is ignored.
func NewHeader(names []string) Header {
	h := make(Header, len(names))
	for i, n := range names {
		if i == 0 {
			n = strings.TrimPrefix(n, "\ufeff")
		}
		n = strings.TrimSpace(n)
		if _, dup := h[n]; !dup {
			h[n] = i
		}
	}
	return h
}

// Record is one raw row addressed by column name.
type Record struct {
	Header Header
	Fields []string
	Source string
	Row    int
}

// Get returns the trimmed value of col. ok is false when the column is absent
// from the header or the row is too short.
func (r Record) Get(col string) (string, bool) {
	i, ok := r.Header[col]
	if !ok || i >= len(r.Fields) {
		return "", false
	}
	return strings.TrimSpace(r.Fields[i]), true
}

// Adapt maps one raw record into a RawEvent. The boolean result is false when
// the record is filtered out: non-hourly products, user-defined block orders
// and action codes outside A/D/C/I. Filter columns are checked before the
// remaining fields are parsed, so filtered rows never fail.
func Adapt(v Version, rec Record) (domain.RawEvent, bool, error) {
	l, err := layoutFor(v)
	if err != nil {
		return domain.RawEvent{}, false, err
	}
	c := l.cols

	product, err := required(rec, c.Product)
	if err != nil {
		return domain.RawEvent{}, false, err
	}
	if !admittedProducts[product] {
		return domain.RawEvent{}, false, nil
	}
	block, err := required(rec, c.Block)
	if err != nil {
		return domain.RawEvent{}, false, err
	}
	if block != l.blockAdmits {
		return domain.RawEvent{}, false, nil
	}
	code, err := required(rec, c.Action)
	if err != nil {
		return domain.RawEvent{}, false, err
	}
	action, ok := domain.ParseAction(code)
	if !ok {
		return domain.RawEvent{}, false, nil
	}

	ev := domain.RawEvent{Action: action, Product: product}

	if ev.OrderID, err = parseID(rec, c.OrderID); err != nil {
		return domain.RawEvent{}, false, err
	}
	if ev.InitialID, err = parseID(rec, c.InitialID); err != nil {
		return domain.RawEvent{}, false, err
	}

	side, err := required(rec, c.Side)
	if err != nil {
		return domain.RawEvent{}, false, err
	}
	if ev.Side, ok = domain.ParseSide(side); !ok {
		return domain.RawEvent{}, false, schemaErr(rec, c.Side, side, fmt.Errorf("unknown side"))
	}

	if ev.DeliveryStart, err = parseTime(rec, c.DeliveryStart); err != nil {
		return domain.RawEvent{}, false, err
	}
	if ev.TransactionTime, err = parseTime(rec, c.Transaction); err != nil {
		return domain.RawEvent{}, false, err
	}
	if ev.ValidityTime, err = parseTime(rec, c.Validity); err != nil {
		return domain.RawEvent{}, false, err
	}
	if ev.Price, err = parseDecimal(rec, c.Price); err != nil {
		return domain.RawEvent{}, false, err
	}
	if ev.Quantity, err = parseDecimal(rec, c.Quantity); err != nil {
		return domain.RawEvent{}, false, err
	}
	return ev, true, nil
}

func schemaErr(rec Record, col, val string, err error) *domain.SchemaError {
	return &domain.SchemaError{Source: rec.Source, Row: rec.Row, Column: col, Value: val, Err: err}
}

func required(rec Record, col string) (string, error) {
	v, ok := rec.Get(col)
	if !ok || v == "" {
		return "", schemaErr(rec, col, "", fmt.Errorf("missing value"))
	}
	return v, nil
}

func parseID(rec Record, col string) (int64, error) {
	v, err := required(rec, col)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, schemaErr(rec, col, v, err)
	}
	return n, nil
}

// parseTime accepts RFC 3339 instants with or without fractional seconds and
// normalises them to UTC.
func parseTime(rec Record, col string) (time.Time, error) {
	v, err := required(rec, col)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, schemaErr(rec, col, v, err)
	}
	return t.UTC(), nil
}

func parseDecimal(rec Record, col string) (decimal.Decimal, error) {
	v, err := required(rec, col)
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, schemaErr(rec, col, v, err)
	}
	return d, nil
}
