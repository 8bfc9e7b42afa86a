// Package schema maps raw continuous-trading CSV records into domain.RawEvent
// values. Two column layouts exist: the legacy export used for 2020 data and
// the current export used from 2021 onwards.
package schema

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// Version identifies a raw column layout.
type Version uint8

const (
	Legacy Version = iota + 1
	Current
)

func (v Version) String() string {
	switch v {
	case Legacy:
		return "legacy"
	case Current:
		return "current"
	default:
		return fmt.Sprintf("version(%d)", uint8(v))
	}
}

// FirstSupportedYear is the earliest year with a known layout.
const FirstSupportedYear = 2020

// VersionFor selects the layout used by the exchange archive for day.
func VersionFor(day time.Time) (Version, error) {
	switch y := day.UTC().Year(); {
	case y == FirstSupportedYear:
		return Legacy, nil
	case y > FirstSupportedYear:
		return Current, nil
	default:
		return 0, &domain.RangeError{
			Start:  day,
			End:    day,
			Reason: fmt.Sprintf("years before %d are not supported", FirstSupportedYear),
		}
	}
}

// columns names the raw columns read by the adapter.
type columns struct {
	OrderID       string
	InitialID     string
	Action        string
	Side          string
	Product       string
	Block         string
	DeliveryStart string
	Transaction   string
	Validity      string
	Price         string
	Quantity      string
}

func (c columns) all() []string {
	return []string{
		c.OrderID, c.InitialID, c.Action, c.Side, c.Product, c.Block,
		c.DeliveryStart, c.Transaction, c.Validity, c.Price, c.Quantity,
	}
}

// layout describes one file generation: its delimiter, how many lines precede
// the header, its column names and the block-flag value of admitted rows.
type layout struct {
	comma       rune
	preamble    int
	cols        columns
	blockAdmits string
}

var layouts = map[Version]layout{
	Legacy: {
		comma:    ';',
		preamble: 0,
		cols: columns{
			OrderID:       "Order ID",
			InitialID:     "Initial ID",
			Action:        "Action code",
			Side:          "Side",
			Product:       "Product",
			Block:         "Is User Defined Block",
			DeliveryStart: "Delivery Start",
			Transaction:   "Transaction Time",
			Validity:      "Validity time",
			Price:         "Price",
			Quantity:      "Quantity",
		},
		blockAdmits: "0",
	},
	Current: {
		comma:    ',',
		preamble: 1,
		cols: columns{
			OrderID:       "OrderId",
			InitialID:     "InitialId",
			Action:        "ActionCode",
			Side:          "Side",
			Product:       "Product",
			Block:         "UserDefinedBlock",
			DeliveryStart: "DeliveryStart",
			Transaction:   "TransactionTime",
			Validity:      "ValidityTime",
			Price:         "Price",
			Quantity:      "Quantity",
		},
		blockAdmits: "N",
	},
}

func layoutFor(v Version) (layout, error) {
	l, ok := layouts[v]
	if !ok {
		return layout{}, fmt.Errorf("schema: unknown version %d", uint8(v))
	}
	return l, nil
}

// Columns returns the raw column names read for version v, in a fixed order.
func Columns(v Version) []string {
	l, err := layoutFor(v)
	if err != nil {
		return nil
	}
	return l.cols.all()
}

// admittedProducts are the hourly intraday power contracts.
var admittedProducts = map[string]bool{
	"Intraday_Hour_Power": true,
	"XBID_Hour_Power":     true,
}
