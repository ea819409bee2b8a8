package fix

import "strconv"

// Field is one tag=value pair of an outbound message. Order matters
// for encoding, so builders work with slices rather than maps.
type Field struct {
	Tag   int
	Value string
}

// Entry is one repeating-group member of a market data message. Only
// the tags this client consumes are collected per entry.
type Entry struct {
	Type  string // 269: "0" bid, "1" ask
	Price string // 270
	Size  string // 271, may be empty
	Time  string // 273 "HH:MM:SS", may be empty
}

// Message is a decoded inbound frame: the flat tag map plus the
// ordered repeating-group entries for market data messages. Repeated
// non-group tags keep their last value.
type Message struct {
	Type    string
	Fields  map[int]string
	Entries []Entry
}

// Get returns the value of tag, or "" when absent.
func (m *Message) Get(tag int) string { return m.Fields[tag] }

// SeqNum returns the inbound sequence number (tag 34), 0 when absent
// or malformed.
func (m *Message) SeqNum() int {
	n, _ := strconv.Atoi(m.Fields[TagMsgSeqNum])
	return n
}
