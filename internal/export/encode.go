// Package export writes canonical day tables. The file form is a zip
// holding one CSV, orderbook_<YYYY-MM-DD>.csv, whose first column is the
// unnamed row id.
package export

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// Header is the first CSV row of every day table.
var Header = []string{"", "initial", "side", "start", "transaction", "validity", "price", "quantity"}

// MemberName is the CSV entry name for day.
func MemberName(day time.Time) string {
	return "orderbook_" + domain.DateString(day) + ".csv"
}

// FileName is the zip file name for day.
func FileName(day time.Time) string {
	return MemberName(day) + ".zip"
}

// WriteCSV writes the table rows as CSV, header first.
func WriteCSV(w io.Writer, orders []domain.CanonicalOrder) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	row := make([]string, len(Header))
	for _, o := range orders {
		row[0] = strconv.Itoa(o.ID)
		row[1] = strconv.FormatInt(o.InitialID, 10)
		row[2] = o.Side
		row[3] = o.Start
		row[4] = o.Transaction
		row[5] = o.Validity
		row[6] = o.Price.String()
		row[7] = o.Quantity.String()
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write row %d: %w", o.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

// WriteZip writes table as a single-member zip archive.
func WriteZip(w io.Writer, table domain.DayTable) error {
	zw := zip.NewWriter(w)
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     MemberName(table.Day),
		Method:   zip.Deflate,
		Modified: table.Day,
	})
	if err != nil {
		return fmt.Errorf("export: create member: %w", err)
	}
	if err := WriteCSV(fw, table.Orders); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("export: close zip: %w", err)
	}
	return nil
}
