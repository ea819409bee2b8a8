package fix

import (
	"bytes"
	"strconv"
)

var (
	frameStart = []byte("8=FIX")
	frameTerm  = []byte{soh, '1', '0', '='}
)

// Framer reassembles complete FIX frames from a TCP byte stream. A
// frame runs from "8=FIX" through the SOH after the checksum; bytes of
// a trailing partial frame stay buffered until the next Push.
type Framer struct {
	buf []byte
}

// Push appends p to the buffer and returns every complete frame now
// available, in arrival order.
func (f *Framer) Push(p []byte) [][]byte {
	f.buf = append(f.buf, p...)
	var frames [][]byte
	for {
		start := bytes.Index(f.buf, frameStart)
		if start < 0 {
			// Keep only a tail that could still be a split "8=FIX".
			if len(f.buf) >= len(frameStart) {
				tail := f.buf[len(f.buf)-len(frameStart)+1:]
				f.buf = append(f.buf[:0], tail...)
			}
			return frames
		}
		if start > 0 {
			f.buf = f.buf[start:]
		}
		end := f.findEnd()
		if end < 0 {
			return frames
		}
		frame := make([]byte, end)
		copy(frame, f.buf[:end])
		f.buf = f.buf[end:]
		frames = append(frames, frame)
	}
}

// findEnd locates the end of the frame at the start of the buffer: the
// index just past the SOH terminating "10=NNN". Returns -1 while the
// frame is still incomplete.
func (f *Framer) findEnd() int {
	off := 0
	for {
		i := bytes.Index(f.buf[off:], frameTerm)
		if i < 0 {
			return -1
		}
		i += off
		if len(f.buf) < i+8 {
			return -1
		}
		if isDigit(f.buf[i+4]) && isDigit(f.buf[i+5]) && isDigit(f.buf[i+6]) && f.buf[i+7] == soh {
			return i + 8
		}
		off = i + 1
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// Parse decodes one complete frame. Pieces without a '=' separator are
// skipped. Each occurrence of tag 269 opens a new repeating-group
// entry; 270/271/273 attach to the most recent one.
func Parse(frame []byte) *Message {
	m := &Message{Fields: make(map[int]string, 16)}
	for _, kv := range bytes.Split(frame, []byte{soh}) {
		if len(kv) == 0 {
			continue
		}
		eq := bytes.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		tag, err := strconv.Atoi(string(kv[:eq]))
		if err != nil {
			continue
		}
		val := string(kv[eq+1:])
		m.Fields[tag] = val
		switch tag {
		case TagMDEntryType:
			m.Entries = append(m.Entries, Entry{Type: val})
		case TagMDEntryPx:
			if n := len(m.Entries); n > 0 {
				m.Entries[n-1].Price = val
			}
		case TagMDEntrySize:
			if n := len(m.Entries); n > 0 {
				m.Entries[n-1].Size = val
			}
		case TagMDEntryTime:
			if n := len(m.Entries); n > 0 {
				m.Entries[n-1].Time = val
			}
		}
	}
	m.Type = m.Fields[TagMsgType]
	return m
}
