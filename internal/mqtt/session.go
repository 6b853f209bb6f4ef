package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/smart-house/internal/cache"
	"github.com/sweeney/smart-house/internal/fanout"
	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/logging"
	"github.com/sweeney/smart-house/internal/msglog"
	"github.com/sweeney/smart-house/internal/state"
	"github.com/sweeney/smart-house/internal/topics"
)

// System log texts.
const (
	TextConnected     = "Conectado ao broker MQTT"
	TextReconnected   = "Reconectado ao broker MQTT"
	TextLostPrefix    = "Conexão perdida: "
	TextFailedPrefix  = "Falha na conexão: "
	TextDroppedPrefix = "Comando não enviado (desconectado): "
)

// Defaults used when Options leaves a field zero.
const (
	DefaultReconnectInterval = 3 * time.Second
	DefaultSweepInterval     = time.Hour
	DefaultClientPrefix      = "webClient_"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	}
	return "UNKNOWN"
}

// Ticker is the subset of time.Ticker the session uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// Options configures a Session.
type Options struct {
	ClientPrefix      string
	ReconnectInterval time.Duration
	SweepInterval     time.Duration // zero disables the cache sweep
	Logger            *logging.Logger

	// NewTicker overrides time.NewTicker, for tests.
	NewTicker func(time.Duration) Ticker
}

type eventKind int

const (
	evConnected eventKind = iota
	evConnectFailed
	evLost
	evMessage
)

type event struct {
	kind    eventKind
	gen     uint64
	conn    Conn
	err     error
	topic   string
	payload []byte
}

// Session manages the broker connection for the lifetime of Run.
//
// All connection lifecycle changes and inbound messages are handled on the
// goroutine running Run, in arrival order. The command and query methods are
// safe to call from any goroutine.
type Session struct {
	dialer Dialer
	log    *msglog.Log
	store  *state.Store
	cache  *cache.Cache
	logger *logging.Logger
	opts   Options

	events chan event
	done   chan struct{}

	postMu sync.Mutex
	closed bool

	mu        sync.RWMutex
	state     State
	conn      Conn
	gen       uint64
	connected bool // connected at least once during Run

	// Owned by the Run goroutine.
	retry   Ticker
	dialing bool // an attempt of the current generation is in flight

	connMu     sync.Mutex // guards connSubs and lastStatus
	connSubs   fanout.Set[ConnectionStatus]
	lastStatus ConnectionStatus
	connQueue  fanout.Queue
}

// New creates a Session. c may be nil to run without a persistence cache.
func New(dialer Dialer, log *msglog.Log, store *state.Store, c *cache.Cache, opts Options) *Session {
	if opts.ClientPrefix == "" {
		opts.ClientPrefix = DefaultClientPrefix
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.NewTicker == nil {
		opts.NewTicker = newTimeTicker
	}
	return &Session{
		dialer: dialer,
		log:    log,
		store:  store,
		cache:  c,
		logger: opts.Logger,
		opts:   opts,
		events: make(chan event, 64),
		done:   make(chan struct{}),
		state:  StateConnecting,
	}
}

// Run connects and processes session events until ctx is cancelled. It
// closes the connection and stops all timers before returning. Run must be
// called at most once.
func (s *Session) Run(ctx context.Context) error {
	var sweepC <-chan time.Time
	if s.cache != nil && s.opts.SweepInterval > 0 {
		sweep := s.opts.NewTicker(s.opts.SweepInterval)
		defer sweep.Stop()
		sweepC = sweep.C()
	}

	s.connect(ctx)

	for {
		var retryC <-chan time.Time
		if s.retry != nil {
			retryC = s.retry.C()
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case ev := <-s.events:
			s.handle(ctx, ev)

		case <-retryC:
			if s.dialing {
				s.logger.Debugw("reconnect tick skipped, attempt in flight")
				continue
			}
			s.logger.Debugw("reconnect attempt")
			s.connect(ctx)

		case <-sweepC:
			removed, err := s.cache.Sweep(ctx)
			if err != nil {
				s.logger.Errorw("cache sweep failed", "err", err)
			} else if removed > 0 {
				s.logger.Infow("cache sweep", "removed", removed)
			}
		}
	}
}

// connect starts a new connection attempt, superseding any attempt or
// connection of an earlier generation.
func (s *Session) connect(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.mu.Unlock()
	s.dialing = true

	clientID := NewClientID(s.opts.ClientPrefix)
	s.logger.Infow("connecting to broker", "client_id", clientID)

	go func() {
		conn, err := s.dialer.Dial(ctx, clientID, func(err error) {
			s.post(event{kind: evLost, gen: gen, err: err})
		})
		if err != nil {
			s.post(event{kind: evConnectFailed, gen: gen, err: err})
			return
		}

		var subErr error
		for _, topic := range topics.Inbound() {
			err := conn.Subscribe(topic, func(topic string, payload []byte) {
				s.post(event{kind: evMessage, gen: gen, topic: topic, payload: payload})
			})
			if err != nil && subErr == nil {
				subErr = err
			}
		}
		s.post(event{kind: evConnected, gen: gen, conn: conn, err: subErr})
	}()
}

// post hands ev to the Run goroutine. Once Run has returned, events are
// discarded and any connection they carry is closed.
func (s *Session) post(ev event) {
	s.postMu.Lock()
	defer s.postMu.Unlock()

	if !s.closed {
		select {
		case s.events <- ev:
			return
		case <-s.done:
		}
	}
	if ev.conn != nil {
		ev.conn.Close()
	}
}

func (s *Session) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gen == s.gen
}

func (s *Session) handle(ctx context.Context, ev event) {
	if !s.current(ev.gen) {
		if ev.conn != nil {
			s.logger.Debugw("closing superseded connection")
			go ev.conn.Close()
		}
		return
	}

	switch ev.kind {
	case evConnected:
		s.dialing = false
		s.onConnected(ev.conn, ev.err)
	case evConnectFailed:
		s.dialing = false
		s.onConnectFailed(ev.err)
	case evLost:
		s.onLost(ev.err)
	case evMessage:
		s.onMessage(ctx, ev.topic, ev.payload)
	}
}

func (s *Session) onConnected(conn Conn, subErr error) {
	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	reconnected := s.connected
	s.connected = true
	s.mu.Unlock()

	s.stopRetry()

	if subErr != nil {
		s.logger.Errorw("subscribe failed", "err", subErr)
		s.log.Add(msglog.AuthorSystem, fmt.Sprintf("Falha na inscrição: %s", subErr), msglog.KindError)
	}

	text := TextConnected
	if reconnected {
		text = TextReconnected
	}
	s.logger.Infow("connected to broker", "reconnected", reconnected)
	s.log.Add(msglog.AuthorSystem, text, msglog.KindSystem)
	s.notifyConnection()
}

func (s *Session) onConnectFailed(err error) {
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()

	s.logger.Warnw("connection failed", "err", err)
	s.log.Add(msglog.AuthorSystem, TextFailedPrefix+errText(err), msglog.KindError)
	s.startRetry()
}

// onLost also invalidates an attempt still subscribing, so its connected
// event arrives stale and the reconnect timer keeps running.
func (s *Session) onLost(err error) {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.gen++
	s.state = StateDisconnected
	s.mu.Unlock()
	s.dialing = false

	if conn != nil {
		go conn.Close()
	}

	s.logger.Warnw("connection lost", "err", err)
	s.log.Add(msglog.AuthorSystem, TextLostPrefix+errText(err), msglog.KindError)
	s.notifyConnection()
	s.startRetry()
}

func (s *Session) onMessage(ctx context.Context, topic string, payload []byte) {
	text := string(payload)
	s.log.Add(topic, text, msglog.KindReceived)

	switch kind := topics.Classify(topic); kind {
	case topics.KindSensor:
		r, err := house.ParseSensorPayload(payload, time.Now())
		if err != nil {
			s.logger.Errorw("bad sensor payload", "topic", topic, "payload", text, "err", err)
			return
		}
		s.store.SetSensorData(r)
		if s.cache != nil {
			if err := s.cache.Append(ctx, r); err != nil {
				s.logger.Errorw("cache append failed", "err", err)
			}
		}
		s.notifyConnection()

	case topics.KindRoomStatus:
		fields, err := house.ParseRoomStatus(payload)
		if err != nil {
			s.logger.Errorw("bad status payload", "topic", topic, "payload", text, "err", err)
			return
		}
		s.store.ApplyRoomStatus(house.RoomSala, fields)

	case topics.KindGateFeedback:
		s.store.UpdateDeviceStatus(house.RoomGaragem, house.DeviceSocial, text)

	case topics.KindMotion:
		s.store.UpdateDeviceStatus(house.RoomGaragem, house.DeviceMovimento, text)

	default:
		s.logger.Debugw("unrouted message", "topic", topic)
	}
}

func (s *Session) startRetry() {
	if s.retry != nil {
		return
	}
	s.logger.Infow("reconnect timer started", "interval", s.opts.ReconnectInterval)
	s.retry = s.opts.NewTicker(s.opts.ReconnectInterval)
}

func (s *Session) stopRetry() {
	if s.retry == nil {
		return
	}
	s.retry.Stop()
	s.retry = nil
}

// shutdown stops accepting events, stops the reconnect timer and closes the
// current connection.
func (s *Session) shutdown() {
	close(s.done)

	s.postMu.Lock()
	s.closed = true
	s.postMu.Unlock()

drain:
	for {
		select {
		case ev := <-s.events:
			if ev.conn != nil {
				ev.conn.Close()
			}
		default:
			break drain
		}
	}

	s.stopRetry()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.gen++
	s.state = StateDisconnected
	s.mu.Unlock()
	s.dialing = false

	if conn != nil {
		conn.Close()
	}
	s.notifyConnection()
	s.logger.Infow("session stopped")
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ConnectionStatus reports whether the broker is connected and whether a
// live reading has arrived during this session.
func (s *Session) ConnectionStatus() ConnectionStatus {
	s.mu.RLock()
	connected := s.state == StateConnected
	s.mu.RUnlock()
	return ConnectionStatus{IsConnected: connected, HasData: s.store.HasSensorData()}
}

// SubscribeConnection registers fn for connection status changes. fn is
// called with the current status before SubscribeConnection returns, or
// after the current delivery when called from inside a callback. Callbacks
// may issue commands and subscribe.
func (s *Session) SubscribeConnection(fn func(ConnectionStatus)) (unsubscribe func()) {
	s.connMu.Lock()
	h := s.connSubs.Add(fn)
	st := s.ConnectionStatus()
	s.connQueue.Push(func() { fanout.Call(h, st, s.recovered) })
	s.connMu.Unlock()

	s.connQueue.Drain()

	return func() {
		s.connMu.Lock()
		s.connSubs.Remove(h)
		s.connMu.Unlock()
	}
}

// notifyConnection delivers the connection status if it changed since the
// last notification.
func (s *Session) notifyConnection() {
	s.connMu.Lock()
	st := s.ConnectionStatus()
	if st != s.lastStatus {
		s.lastStatus = st
		handles := s.connSubs.Snapshot()
		s.connQueue.Push(func() { fanout.Deliver(handles, st, s.recovered) })
	}
	s.connMu.Unlock()

	s.connQueue.Drain()
}

func (s *Session) recovered(r any) {
	s.logger.Errorw("connection subscriber panicked", "panic", r)
}

// SubscribeSensorData registers fn for sensor readings.
func (s *Session) SubscribeSensorData(fn func(house.Reading)) (unsubscribe func()) {
	return s.store.SubscribeSensorData(fn)
}

// CurrentSensorData returns the latest known reading.
func (s *Session) CurrentSensorData() house.Reading {
	return s.store.CurrentSensorData()
}

// SubscribeDeviceStatus registers fn for device status changes.
func (s *Session) SubscribeDeviceStatus(fn func(house.DeviceStatus)) (unsubscribe func()) {
	return s.store.SubscribeDeviceStatus(fn)
}

// CurrentDeviceStatus returns a copy of the known device statuses.
func (s *Session) CurrentDeviceStatus() house.DeviceStatus {
	return s.store.CurrentDeviceStatus()
}

// SubscribeMessageLog registers fn for message log changes; the full
// history is replayed immediately.
func (s *Session) SubscribeMessageLog(fn func([]msglog.Entry)) (unsubscribe func()) {
	return s.log.Subscribe(fn)
}

// MessageHistory returns the message log, oldest first.
func (s *Session) MessageHistory() []msglog.Entry {
	return s.log.History()
}

// ClearMessageLog empties the message log.
func (s *Session) ClearMessageLog() {
	s.log.Clear()
}

func errText(err error) string {
	if err == nil {
		return "desconhecido"
	}
	return err.Error()
}
