package com

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/geosync/geosync/pkg/api"
	"github.com/geosync/geosync/pkg/logger"
	"github.com/geosync/geosync/pkg/network/websocket"
	"github.com/goccy/go-json"
	"github.com/rs/xid"
)

type (
	// Connector upgrades HTTP requests into packet clients.
	Connector struct {
		wu *websocket.Upgrader
	}
	// Client exchanges packets over a single websocket connection:
	// blocking calls with id correlation, fire-and-forget
	// notifications and reply routing.
	Client struct {
		conn     *websocket.WS
		queue    map[string]*call
		onPacket func(packet api.In)
		mu       sync.Mutex
	}
	call struct {
		done     chan struct{}
		err      error
		response api.In
	}
	Option = func(c *Connector)
)

var (
	errConnClosed = errors.New("connection closed")
	errTimeout    = errors.New("timeout")
)

var callTimeout = 5 * time.Second

func WithOrigin(origin string) Option {
	return func(c *Connector) { c.wu = websocket.NewUpgrader(origin) }
}

func NewConnector(opts ...Option) *Connector {
	c := &Connector{}
	for _, opt := range opts {
		opt(c)
	}
	if c.wu == nil {
		c.wu = &websocket.DefaultUpgrader
	}
	return c
}

// NewServer accepts an inbound websocket connection.
func (co *Connector) NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*Client, error) {
	conn, err := websocket.NewServer(w, r, co.wu, log)
	if err != nil {
		return nil, err
	}
	return wire(conn), nil
}

// NewClient dials a server. Used by tests and tooling.
func NewClient(address url.URL, log *logger.Logger) (*Client, error) {
	conn, err := websocket.NewClient(address, log)
	if err != nil {
		return nil, err
	}
	return wire(conn), nil
}

func wire(conn *websocket.WS) *Client {
	client := &Client{conn: conn, queue: make(map[string]*call, 1)}
	conn.OnMessage = client.handleMessage
	return client
}

func (c *Client) OnPacket(fn func(packet api.In)) { c.mu.Lock(); c.onPacket = fn; c.mu.Unlock() }

func (c *Client) Listen() { c.conn.Listen() }

func (c *Client) Wait() chan struct{} { return c.conn.Done }

func (c *Client) Close() {
	c.conn.Close()
	c.drain(errConnClosed)
}

// Call sends a request packet and blocks until the reply
// with the same id arrives or the call times out.
func (c *Client) Call(t api.PT, payload any) ([]byte, error) {
	id := xid.New().String()
	data, err := json.Marshal(api.Out{Id: id, T: t, Payload: payload})
	if err != nil {
		return nil, err
	}
	task := &call{done: make(chan struct{})}
	c.mu.Lock()
	c.queue[id] = task
	c.mu.Unlock()
	c.conn.Write(data)
	select {
	case <-task.done:
	case <-time.After(callTimeout):
		// the pop arbitrates a race with an arriving reply: whoever
		// removes the task from the queue owns its fields
		if c.pop(id) != nil {
			task.err = errTimeout
		} else {
			<-task.done
		}
	}
	return task.response.Payload, task.err
}

// Notify sends a fire-and-forget packet (no reply is awaited).
func (c *Client) Notify(t api.PT, payload any) error {
	return c.send(api.Out{T: t, Payload: payload})
}

// Route replies to an inbound packet, echoing its id.
func (c *Client) Route(in api.In, payload any) error {
	return c.send(api.Out{Id: in.Id, T: in.T, Payload: payload})
}

func (c *Client) send(packet api.Out) error {
	data, err := json.Marshal(packet)
	if err != nil {
		return err
	}
	c.conn.Write(data)
	return nil
}

func (c *Client) handleMessage(message []byte, err error) {
	if err != nil {
		return
	}
	var in api.In
	if err = json.Unmarshal(message, &in); err != nil {
		return
	}
	// a non-empty id may terminate one of the in-flight calls
	if in.Id != "" {
		if task := c.pop(in.Id); task != nil {
			task.response = in
			close(task.done)
			return
		}
	}
	c.mu.Lock()
	fn := c.onPacket
	c.mu.Unlock()
	if fn != nil {
		fn(in)
	}
}

// pop extracts and removes a task from the queue by its id.
func (c *Client) pop(id string) *call {
	c.mu.Lock()
	task := c.queue[id]
	delete(c.queue, id)
	c.mu.Unlock()
	return task
}

// drain cancels all what's left in the task queue.
func (c *Client) drain(err error) {
	c.mu.Lock()
	for id, task := range c.queue {
		if task.err == nil {
			task.err = err
		}
		close(task.done)
		delete(c.queue, id)
	}
	c.mu.Unlock()
}
