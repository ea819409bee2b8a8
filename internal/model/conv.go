package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownContractSize marks a quote for a symbol whose contract size
// is missing from both the catalog and the durable store. The pipeline
// retries such jobs until attempts exhaust, then drops them.
var ErrUnknownContractSize = errors.New("unknown contract size")

const sourceTimeLayout = "15:04:05"

// NormalizeQuote turns a raw wire quote into a persistable tick.
// lots = round(size / contractSize). The tick time comes from the
// entry's HH:MM:SS source time applied to today's UTC date, or from
// now when the entry carried no time.
func NormalizeQuote(q RawQuote, contractSize decimal.Decimal, now time.Time) (Tick, error) {
	if contractSize.IsZero() {
		return Tick{}, fmt.Errorf("%w for %s", ErrUnknownContractSize, q.Symbol)
	}

	price, err := decimal.NewFromString(q.Price)
	if err != nil {
		return Tick{}, fmt.Errorf("parse price %q: %w", q.Price, err)
	}
	size, err := decimal.NewFromString(q.Size)
	if err != nil {
		return Tick{}, fmt.Errorf("parse size %q: %w", q.Size, err)
	}

	tickTime, err := SourceTickTime(q.SourceTime, now)
	if err != nil {
		return Tick{}, err
	}

	return Tick{
		Symbol:   q.Symbol,
		Side:     q.Side,
		TickTime: tickTime,
		Lots:     size.Div(contractSize).Round(0).IntPart(),
		Price:    price,
	}, nil
}

// SourceTickTime resolves tag 273 against the current date. A present
// "HH:MM:SS" value is placed on today's UTC date with no rollover
// correction near midnight; an absent value resolves to now.
func SourceTickTime(sourceTime string, now time.Time) (time.Time, error) {
	now = now.UTC()
	if sourceTime == "" {
		return now, nil
	}
	t, err := time.Parse(sourceTimeLayout, sourceTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse entry time %q: %w", sourceTime, err)
	}
	return time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
}
