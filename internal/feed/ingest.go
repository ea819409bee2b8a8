// Package feed adapts the FIX session's quote callbacks onto the tick
// pipeline.
package feed

import (
	"log"
	"sync/atomic"

	"fixfeed/internal/model"
	"fixfeed/pkg/fix"
)

// QuoteSink accepts raw quotes for processing.
type QuoteSink interface {
	Enqueue(q model.RawQuote) error
}

// Ingestor bridges wire quotes into the pipeline. It runs on the
// session's read goroutine, so a full queue drops the quote instead of
// blocking the feed.
type Ingestor struct {
	sink QuoteSink

	received atomic.Uint64
	dropped  atomic.Uint64
}

// New builds an ingestor over sink.
func New(sink QuoteSink) *Ingestor {
	return &Ingestor{sink: sink}
}

// Received reports quotes accepted off the wire.
func (i *Ingestor) Received() uint64 { return i.received.Load() }

// Dropped reports quotes rejected by the queue.
func (i *Ingestor) Dropped() uint64 { return i.dropped.Load() }

// HandleQuote converts one wire quote and hands it to the pipeline.
// Wire it to the session's OnQuote callback.
func (i *Ingestor) HandleQuote(q fix.Quote) {
	side, ok := entrySide(q.EntryType)
	if !ok {
		return
	}
	i.received.Add(1)
	raw := model.RawQuote{
		Symbol:     q.Symbol,
		Side:       side,
		Price:      q.Price,
		Size:       q.Size,
		SourceTime: q.Time,
		ReqID:      q.ReqID,
	}
	if err := i.sink.Enqueue(raw); err != nil {
		i.dropped.Add(1)
		log.Printf("[feed] drop %s %s quote: %v", q.Symbol, side, err)
	}
}

func entrySide(entryType string) (model.Side, bool) {
	switch entryType {
	case fix.EntryTypeBid:
		return model.SideBid, true
	case fix.EntryTypeAsk:
		return model.SideAsk, true
	}
	return "", false
}
