package fix

import (
	"bytes"
	"fmt"
	"strconv"
)

const (
	soh         = byte(0x01)
	beginString = "FIX.4.4"
)

// Standard header tags, in the order the upstream expects them right
// after 8 and 9.
var headerTags = []int{TagMsgType, TagSenderCompID, TagTargetCompID, TagMsgSeqNum, TagSendingTime}

// Encode frames fields into a complete FIX message: begin string and
// body length prepended, header tags hoisted into canonical order, and
// the checksum trailer appended. The checksum is the byte sum of
// everything through the body's final SOH, mod 256, zero padded.
func Encode(fields []Field) []byte {
	var body bytes.Buffer
	emitted := make([]bool, len(fields))
	for _, ht := range headerTags {
		for i, f := range fields {
			if !emitted[i] && f.Tag == ht {
				writeField(&body, f)
				emitted[i] = true
				break
			}
		}
	}
	for i, f := range fields {
		if !emitted[i] {
			writeField(&body, f)
		}
	}

	var frame bytes.Buffer
	frame.Grow(body.Len() + 32)
	frame.WriteString("8=" + beginString)
	frame.WriteByte(soh)
	frame.WriteString("9=" + strconv.Itoa(body.Len()))
	frame.WriteByte(soh)
	frame.Write(body.Bytes())
	fmt.Fprintf(&frame, "10=%03d", checksum(frame.Bytes()))
	frame.WriteByte(soh)
	return frame.Bytes()
}

func writeField(buf *bytes.Buffer, f Field) {
	buf.WriteString(strconv.Itoa(f.Tag))
	buf.WriteByte('=')
	buf.WriteString(f.Value)
	buf.WriteByte(soh)
}

func checksum(b []byte) int {
	sum := 0
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}
