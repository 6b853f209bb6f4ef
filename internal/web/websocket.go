package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/mqtt"
	"github.com/sweeney/smart-house/internal/msglog"
	"github.com/sweeney/smart-house/internal/status"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12

	// wsSendBuffer is the per-client outbound queue. A client that falls
	// this far behind is disconnected.
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsClient queues envelopes for one socket. Session callbacks run on the
// session's goroutine and must not block, so push never waits.
type wsClient struct {
	send chan []byte

	mu     sync.Mutex
	closed bool
	slow   chan struct{}
}

func newWSClient() *wsClient {
	return &wsClient{
		send: make(chan []byte, wsSendBuffer),
		slow: make(chan struct{}),
	}
}

func (c *wsClient) push(typ string, data any) {
	msg, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.closed = true
		close(c.slow)
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMsgSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.readWS(conn, done)

	// Each subscription replays the current value into the queue.
	client := newWSClient()
	unsubs := []func(){
		s.session.SubscribeConnection(func(cs mqtt.ConnectionStatus) {
			client.push(TypeConnection, cs)
		}),
		s.session.SubscribeSensorData(func(rd house.Reading) {
			client.push(TypeSensor, rd)
		}),
		s.session.SubscribeDeviceStatus(func(d house.DeviceStatus) {
			client.push(TypeDevices, status.DeviceRows(d))
		}),
		s.session.SubscribeMessageLog(func(entries []msglog.Entry) {
			client.push(TypeLog, entries)
		}),
	}
	defer func() {
		client.close()
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	s.logger.Debugw("ws client connected", "remote", r.RemoteAddr)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-client.slow:
			s.logger.Warnw("ws client too slow, disconnecting", "remote", r.RemoteAddr)
			return
		case msg := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Infow("ws write failed", "err", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("ws ping failed", "err", err)
				return
			}
		}
	}
}

// readWS drains incoming frames so control messages are handled and a
// closed socket is noticed.
func (s *Server) readWS(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.logger.Debugw("ws read closed", "err", err)
			return
		}
	}
}
