package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the message type carried by a raw order-book event.
type Action uint8

const (
	ActionAdd Action = iota + 1
	ActionDelete
	ActionChange
	ActionIceberg
)

// ParseAction maps an exchange action code ("A", "D", "C", "I") to an Action.
// The second return value is false for codes outside the admitted set.
func ParseAction(code string) (Action, bool) {
	switch code {
	case "A":
		return ActionAdd, true
	case "D":
		return ActionDelete, true
	case "C":
		return ActionChange, true
	case "I":
		return ActionIceberg, true
	default:
		return 0, false
	}
}

// Code returns the single-letter exchange code for the action.
func (a Action) Code() string {
	switch a {
	case ActionAdd:
		return "A"
	case ActionDelete:
		return "D"
	case ActionChange:
		return "C"
	case ActionIceberg:
		return "I"
	default:
		return "?"
	}
}

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionDelete:
		return "delete"
	case ActionChange:
		return "change"
	case ActionIceberg:
		return "iceberg"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Side is the book side of an order.
type Side uint8

const (
	SideBuy Side = iota + 1
	SideSell
)

// ParseSide accepts the side spellings used by both raw schemas ("Buy",
// "BUY", "buy", ...).
func ParseSide(s string) (Side, bool) {
	switch s {
	case "Buy", "BUY", "buy", "B":
		return SideBuy, true
	case "Sell", "SELL", "sell", "S":
		return SideSell, true
	default:
		return 0, false
	}
}

// String returns the canonical upper-case side used in exported tables.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// RawEvent is one message from the exchange's continuous-trading feed after
// it has been mapped out of its file-specific column layout. A window holds
// events in observation order: file by file in date order, rows in file
// order. Resolution breaks ties by that order.
type RawEvent struct {
	OrderID         int64
	InitialID       int64
	Action          Action
	Side            Side
	Product         string
	DeliveryStart   time.Time
	TransactionTime time.Time
	ValidityTime    time.Time
	Price           decimal.Decimal
	Quantity        decimal.Decimal
}

// TransactionDay returns the UTC calendar day of the event's transaction time.
func (e RawEvent) TransactionDay() time.Time {
	return Day(e.TransactionTime)
}

// Timestamp layouts of exported tables.
const (
	StartLayout = "2006-01-02T15:04:05Z"
	EventLayout = "2006-01-02T15:04:05.000Z"
)

// CanonicalOrder is one resolved order version ready for export. Start is
// formatted with StartLayout, Transaction and Validity with EventLayout.
type CanonicalOrder struct {
	ID          int
	InitialID   int64
	Side        string
	Start       string
	Transaction string
	Validity    string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
}

// DayTable is the canonical table for one UTC calendar day, ordered by
// transaction time.
type DayTable struct {
	Day    time.Time
	Orders []CanonicalOrder
	Stats  ResolveStats
}

// ResolveStats counts what happened to a window's events on the way through
// the resolution pipeline.
type ResolveStats struct {
	Raw        int `json:"raw"`
	Duplicates int `json:"duplicates"`
	Icebergs   int `json:"icebergs"`
	Orphans    int `json:"orphans"`
	Changes    int `json:"changes"`
	Cancels    int `json:"cancels"`
	Iterations int `json:"iterations"`
	Inverted   int `json:"inverted"`
	Resolved   int `json:"resolved"`
}

// Add returns the field-wise sum of s and o.
func (s ResolveStats) Add(o ResolveStats) ResolveStats {
	return ResolveStats{
		Raw:        s.Raw + o.Raw,
		Duplicates: s.Duplicates + o.Duplicates,
		Icebergs:   s.Icebergs + o.Icebergs,
		Orphans:    s.Orphans + o.Orphans,
		Changes:    s.Changes + o.Changes,
		Cancels:    s.Cancels + o.Cancels,
		Iterations: s.Iterations + o.Iterations,
		Inverted:   s.Inverted + o.Inverted,
		Resolved:   s.Resolved + o.Resolved,
	}
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateString formats a day as YYYY-MM-DD.
func DateString(day time.Time) string {
	return day.UTC().Format(time.DateOnly)
}
