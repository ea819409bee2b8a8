package fix

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrReconnectsExhausted is returned by Run when the reconnect cap is
// reached. The caller decides whether the process stays alive.
var ErrReconnectsExhausted = errors.New("fix: reconnect attempts exhausted")

var errNotConnected = errors.New("fix: not connected")

const sendingTimeLayout = "20060102-15:04:05"

// Quote is one bid or ask entry lifted out of a market data message,
// still in wire form. Normalization happens downstream.
type Quote struct {
	Symbol    string
	EntryType string // tag 269
	Price     string
	Size      string
	Time      string // tag 273 "HH:MM:SS", may be empty
	ReqID     string // tag 262
}

// SessionConfig holds the FIX session parameters.
type SessionConfig struct {
	Server       string
	Port         string
	SenderCompID string
	TargetCompID string
	Username     string
	Password     string
	Symbols      []string // pairs subscribed after each logon

	HeartBtInt     int           // seconds, announced in tag 108
	DialTimeout    time.Duration // default 10s
	ReconnectDelay time.Duration // default 5s
	MaxReconnects  int           // default 1000
	SubscribeDelay time.Duration // logon to first subscription, default 1s
}

func (c *SessionConfig) applyDefaults() {
	if c.HeartBtInt <= 0 {
		c.HeartBtInt = 30
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 1000
	}
	if c.SubscribeDelay <= 0 {
		c.SubscribeDelay = time.Second
	}
}

// Session owns one FIX 4.4 client connection: logon, inbound dispatch,
// subscription scheduling and the reconnect loop. The outbound
// sequence number lives here and restarts at 1 on every new TCP
// connection, matching the ResetSeqNumFlag sent at logon.
//
// Callbacks run on the session's goroutines and must not block.
type Session struct {
	cfg SessionConfig

	mu       sync.Mutex
	conn     net.Conn
	framer   *Framer
	seq      uint64
	loggedOn bool
	wasDown  bool // next logon is a recovery
	attempts int
	subTimer *time.Timer
	readDone chan struct{}

	closing atomic.Bool

	// OnQuote receives every bid/ask entry of inbound W and X messages.
	OnQuote func(q Quote)
	// OnLogon fires after each successful logon. reconnected is false
	// only for the first logon of the session's life.
	OnLogon func(reconnected bool)
	// OnDisconnect fires when an established connection is lost.
	OnDisconnect func(err error)
	// OnReconnecting fires before each reconnect wait.
	OnReconnecting func(attempt int)
}

// NewSession builds a session. Assign callbacks before calling Run.
func NewSession(cfg SessionConfig) *Session {
	cfg.applyDefaults()
	return &Session{cfg: cfg}
}

// LoggedOn reports whether the session is currently authenticated.
func (s *Session) LoggedOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOn
}

// Run dials and serves the session until ctx is cancelled, Stop is
// called, or the reconnect cap is reached. Dial failures and lost
// connections both count against the cap; a successful logon resets
// the count.
func (s *Session) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server, s.cfg.Port)
	for {
		err := s.connect(ctx, addr)
		if err != nil {
			log.Printf("[fix] connect %s: %v", addr, err)
		} else {
			err = s.readLoop(ctx)
			if !s.closing.Load() && ctx.Err() == nil {
				log.Printf("[fix] connection lost: %v", err)
				if s.OnDisconnect != nil {
					s.OnDisconnect(err)
				}
			}
		}
		s.teardown()
		if s.closing.Load() || ctx.Err() != nil {
			return nil
		}

		n := s.bumpAttempts()
		if n > s.cfg.MaxReconnects {
			log.Printf("[fix] reconnect cap reached after %d attempts, feed stays down", s.cfg.MaxReconnects)
			return ErrReconnectsExhausted
		}
		if s.OnReconnecting != nil {
			s.OnReconnecting(n)
		}
		log.Printf("[fix] reconnecting in %v (attempt %d/%d)", s.cfg.ReconnectDelay, n, s.cfg.MaxReconnects)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *Session) connect(ctx context.Context, addr string) error {
	d := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.framer = &Framer{}
	s.seq = 0 // fresh connection, outbound sequence restarts
	s.loggedOn = false
	s.readDone = make(chan struct{})
	s.mu.Unlock()

	log.Printf("[fix] connected to %s", addr)
	return s.sendLogon()
}

func (s *Session) sendLogon() error {
	return s.send(MsgTypeLogon, []Field{
		{TagEncryptMethod, "0"},
		{TagHeartBtInt, strconv.Itoa(s.cfg.HeartBtInt)},
		{TagResetSeqNumFlag, "Y"},
		{TagUsername, s.cfg.Username},
		{TagPassword, s.cfg.Password},
	})
}

// readLoop reads, frames and dispatches inbound messages until the
// connection dies. A watcher goroutine closes the socket when ctx is
// cancelled so the blocking Read returns.
func (s *Session) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn, framer, done := s.conn, s.framer, s.readDone
	s.mu.Unlock()
	defer close(done)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, raw := range framer.Push(buf[:n]) {
				s.dispatch(Parse(raw))
			}
		}
		if err != nil {
			s.mu.Lock()
			s.loggedOn = false
			s.wasDown = true
			s.mu.Unlock()
			return err
		}
	}
}

func (s *Session) dispatch(m *Message) {
	log.Printf("[fix] <- %s seq=%d", MsgTypeName(m.Type), m.SeqNum())
	switch m.Type {
	case MsgTypeLogon:
		s.handleLogon()
	case MsgTypeSnapshot, MsgTypeIncremental:
		s.handleMarketData(m)
	case MsgTypeReject:
		log.Printf("[fix] reject: %s", m.Get(TagText))
	case MsgTypeLogout:
		log.Printf("[fix] peer logout: %s", m.Get(TagText))
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.Close() // read loop returns, reconnect loop takes over
		}
	case MsgTypeHeartbeat, MsgTypeTestRequest, MsgTypeResendRequest, MsgTypeSeqReset:
		// Logged above, nothing to answer.
	}
}

func (s *Session) handleLogon() {
	s.mu.Lock()
	s.loggedOn = true
	reconnected := s.wasDown
	s.attempts = 0
	if s.subTimer != nil {
		s.subTimer.Stop()
	}
	s.subTimer = time.AfterFunc(s.cfg.SubscribeDelay, s.subscribeAll)
	s.mu.Unlock()

	log.Printf("[fix] logged on, subscribing %d pairs in %v", len(s.cfg.Symbols), s.cfg.SubscribeDelay)
	if s.OnLogon != nil {
		s.OnLogon(reconnected)
	}
}

func (s *Session) handleMarketData(m *Message) {
	symbol := m.Get(TagSymbol)
	reqID := m.Get(TagMDReqID)
	for _, e := range m.Entries {
		if e.Type != EntryTypeBid && e.Type != EntryTypeAsk {
			continue
		}
		if e.Price == "" {
			continue
		}
		if s.OnQuote != nil {
			s.OnQuote(Quote{
				Symbol:    symbol,
				EntryType: e.Type,
				Price:     e.Price,
				Size:      e.Size,
				Time:      e.Time,
				ReqID:     reqID,
			})
		}
	}
}

// send frames and writes one message. The sequence number increments
// under the same lock as the write, keeping outbound tag 34 monotonic.
func (s *Session) send(msgType string, body []Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errNotConnected
	}
	s.seq++
	fields := make([]Field, 0, len(body)+5)
	fields = append(fields,
		Field{TagMsgType, msgType},
		Field{TagSenderCompID, s.cfg.SenderCompID},
		Field{TagTargetCompID, s.cfg.TargetCompID},
		Field{TagMsgSeqNum, strconv.FormatUint(s.seq, 10)},
		Field{TagSendingTime, time.Now().UTC().Format(sendingTimeLayout)},
	)
	fields = append(fields, body...)
	if _, err := s.conn.Write(Encode(fields)); err != nil {
		return fmt.Errorf("write %s: %w", MsgTypeName(msgType), err)
	}
	log.Printf("[fix] -> %s seq=%d", MsgTypeName(msgType), s.seq)
	return nil
}

// Stop runs the graceful shutdown sequence: Logout when logged on,
// half-close the socket, wait for the peer to finish (bounded by ctx),
// then close. Safe to call once while Run is active.
func (s *Session) Stop(ctx context.Context) {
	s.closing.Store(true)

	s.mu.Lock()
	if s.subTimer != nil {
		s.subTimer.Stop()
	}
	loggedOn := s.loggedOn
	conn := s.conn
	done := s.readDone
	s.mu.Unlock()
	if conn == nil {
		return
	}

	if loggedOn {
		if err := s.send(MsgTypeLogout, nil); err != nil {
			log.Printf("[fix] logout: %v", err)
		}
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	conn.Close()
	log.Printf("[fix] session closed")
}

func (s *Session) teardown() {
	s.mu.Lock()
	if s.subTimer != nil {
		s.subTimer.Stop()
		s.subTimer = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.loggedOn = false
	s.mu.Unlock()
}

func (s *Session) bumpAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}
