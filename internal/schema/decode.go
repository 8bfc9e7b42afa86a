package schema

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// Decode reads a complete raw CSV file in layout v and returns its admitted
// events in file order. source names the file in SchemaError values. Any
// missing header column or bad admitted row fails the whole file.
func Decode(r io.Reader, v Version, source string) ([]domain.RawEvent, error) {
	l, err := layoutFor(v)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(r)
	for i := 0; i < l.preamble; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			return nil, &domain.SchemaError{Source: source, Row: -1, Column: "preamble", Err: err}
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = l.comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	names, err := cr.Read()
	if err != nil {
		return nil, &domain.SchemaError{Source: source, Row: -1, Column: "header", Err: err}
	}
	header := NewHeader(names)
	for _, col := range l.cols.all() {
		if _, ok := header[col]; !ok {
			return nil, &domain.SchemaError{
				Source: source,
				Row:    -1,
				Column: col,
				Err:    fmt.Errorf("column missing from %s header", v),
			}
		}
	}

	var events []domain.RawEvent
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.SchemaError{Source: source, Row: row, Column: "*", Err: err}
		}
		ev, ok, err := Adapt(v, Record{Header: header, Fields: fields, Source: source, Row: row})
		if err != nil {
			return nil, err
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}
