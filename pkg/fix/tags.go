// Package fix implements the FIX 4.4 subset spoken by the upstream
// liquidity provider: frame encoding/decoding with checksum, a
// streaming-safe framer, and a client session with logon, market data
// subscription and reconnection.
package fix

import "fmt"

// Tag numbers used by this client.
const (
	TagBeginString             = 8
	TagBodyLength              = 9
	TagCheckSum                = 10
	TagMsgSeqNum               = 34
	TagMsgType                 = 35
	TagSenderCompID            = 49
	TagSendingTime             = 52
	TagSymbol                  = 55
	TagTargetCompID            = 56
	TagText                    = 58
	TagEncryptMethod           = 98
	TagHeartBtInt              = 108
	TagResetSeqNumFlag         = 141
	TagNoRelatedSym            = 146
	TagMDReqID                 = 262
	TagSubscriptionRequestType = 263
	TagMarketDepth             = 264
	TagNoMDEntryTypes          = 267
	TagNoMDEntries             = 268
	TagMDEntryType             = 269
	TagMDEntryPx               = 270
	TagMDEntrySize             = 271
	TagMDEntryTime             = 273
	TagUsername                = 553
	TagPassword                = 554
)

// Message type codes (tag 35).
const (
	MsgTypeHeartbeat     = "0"
	MsgTypeTestRequest   = "1"
	MsgTypeResendRequest = "2"
	MsgTypeReject        = "3"
	MsgTypeSeqReset      = "4"
	MsgTypeLogout        = "5"
	MsgTypeLogon         = "A"
	MsgTypeMDRequest     = "V"
	MsgTypeSnapshot      = "W"
	MsgTypeIncremental   = "X"
)

// Entry types (tag 269). Anything else is dropped downstream.
const (
	EntryTypeBid = "0"
	EntryTypeAsk = "1"
)

// MsgTypeName returns a human label for a message type code.
func MsgTypeName(code string) string {
	switch code {
	case MsgTypeHeartbeat:
		return "Heartbeat"
	case MsgTypeTestRequest:
		return "Test Request"
	case MsgTypeResendRequest:
		return "Resend Request"
	case MsgTypeReject:
		return "Reject"
	case MsgTypeSeqReset:
		return "Sequence Reset"
	case MsgTypeLogout:
		return "Logout"
	case MsgTypeLogon:
		return "Logon"
	case MsgTypeMDRequest:
		return "Market Data Request"
	case MsgTypeSnapshot:
		return "Market Data Snapshot"
	case MsgTypeIncremental:
		return "Market Data Incremental Refresh"
	default:
		return fmt.Sprintf("Unknown (%s)", code)
	}
}
