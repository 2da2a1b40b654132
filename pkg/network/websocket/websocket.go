package websocket

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/geosync/geosync/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 10 * 1024
	pongTime       = 60 * time.Second
	pingTime       = pongTime * 9 / 10
	writeWait      = 10 * time.Second
)

// WS wraps a single websocket connection with
// serialized read/write pumps and a keepalive.
type WS struct {
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger

	// OnMessage is called for every inbound frame.
	// Must be set before Listen.
	OnMessage MessageHandler

	pingPong bool

	once sync.Once
	Done chan struct{}
}

type MessageHandler func(message []byte, err error)

type Upgrader struct {
	websocket.Upgrader
}

var DefaultUpgrader = Upgrader{
	Upgrader: websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteBufferPool: &sync.Pool{},
	},
}

// NewUpgrader makes an upgrader that only accepts the given origin
// (or any origin when origin is *).
func NewUpgrader(origin string) *Upgrader {
	u := DefaultUpgrader
	if origin == "*" {
		u.CheckOrigin = func(r *http.Request) bool { return true }
	} else {
		u.CheckOrigin = func(r *http.Request) bool { return r.Header.Get("Origin") == origin }
	}
	return &u
}

// NewServer upgrades an HTTP request to a websocket connection.
// Server side enables the ping/pong keepalive.
func NewServer(w http.ResponseWriter, r *http.Request, up *Upgrader, log *logger.Logger) (*WS, error) {
	if up == nil {
		up = &DefaultUpgrader
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, true, log), nil
}

// NewClient dials a websocket server. Client side answers pings
// instead of sending them.
func NewClient(address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, log), nil
}

func newSocket(conn *websocket.Conn, pingPong bool, log *logger.Logger) *WS {
	return &WS{
		conn:     conn,
		send:     make(chan []byte, 16),
		log:      log,
		pingPong: pingPong,
		Done:     make(chan struct{}),
	}
}

// Listen starts the reader and writer pumps. Returns immediately.
func (ws *WS) Listen() {
	go ws.writer()
	go ws.reader()
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Serializes all websocket reads.
func (ws *WS) reader() {
	defer ws.shutdown()
	ws.conn.SetReadLimit(maxMessageSize)
	if ws.pingPong {
		_ = ws.conn.SetReadDeadline(time.Now().Add(pongTime))
		ws.conn.SetPongHandler(func(string) error {
			return ws.conn.SetReadDeadline(time.Now().Add(pongTime))
		})
	}
	for {
		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msg("ws read")
			}
			return
		}
		ws.OnMessage(message, nil)
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Serializes all websocket writes.
func (ws *WS) writer() {
	ticker := time.NewTicker(pingTime)
	if !ws.pingPong {
		ticker.Stop()
	}
	defer func() {
		ticker.Stop()
		ws.shutdown()
	}()
	for {
		select {
		case message, ok := <-ws.send:
			if !ok {
				_ = ws.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ws.Done:
			return
		}
	}
}

func (ws *WS) write(t int, message []byte) error {
	if err := ws.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.conn.WriteMessage(t, message)
}

// Write queues a message for sending. A no-op after the connection closed.
func (ws *WS) Write(data []byte) {
	select {
	case ws.send <- data:
	case <-ws.Done:
	}
}

func (ws *WS) Close() { ws.shutdown() }

func (ws *WS) shutdown() {
	ws.once.Do(func() {
		close(ws.Done)
		_ = ws.conn.Close()
	})
}
