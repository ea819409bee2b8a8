package fix

import (
	"log"

	"github.com/google/uuid"
)

// subscribeAll sends one Market Data Request per configured pair. It
// runs on a timer a fixed delay after logon; a reconnect re-arms it.
// A send failure stops the batch, the next logon retries everything.
func (s *Session) subscribeAll() {
	for _, symbol := range s.cfg.Symbols {
		if err := s.SendMarketDataRequest(symbol); err != nil {
			log.Printf("[fix] market data request %s: %v", symbol, err)
			return
		}
	}
	log.Printf("[fix] subscribed %d pairs", len(s.cfg.Symbols))
}

// SendMarketDataRequest subscribes one pair to a full-book
// snapshot-plus-updates stream of bids and asks.
func (s *Session) SendMarketDataRequest(symbol string) error {
	return s.send(MsgTypeMDRequest, []Field{
		{TagMDReqID, "MDR_" + uuid.NewString()},
		{TagSubscriptionRequestType, "1"}, // snapshot + updates
		{TagMarketDepth, "0"},             // full book
		{TagNoMDEntryTypes, "2"},
		{TagMDEntryType, EntryTypeBid},
		{TagMDEntryType, EntryTypeAsk},
		{TagNoRelatedSym, "1"},
		{TagSymbol, symbol},
	})
}
