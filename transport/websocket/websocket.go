// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package websocket serves reply-style endpoints over websocket, one
// websocket message per request or reply.
package websocket

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/log"
	"github.com/gorilla/websocket"
)

// DefaultPath is the http path websocket peers connect to.
const DefaultPath = "/ws"

// Factory binds websocket endpoints.
type Factory struct {
	Path     string
	Upgrader *websocket.Upgrader
	Dialer   *websocket.Dialer
}

// Name .
func (f *Factory) Name() string {
	return "ws"
}

// Listen starts an http server on addr, e.g. "tcp://*:5557", and upgrades
// requests to f.Path.
func (f *Factory) Listen(addr string) (mprpc.Endpoint, error) {
	hostPort, err := mprpc.HostPort(addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", hostPort)
	if err != nil {
		return nil, err
	}

	upgrader := f.Upgrader
	if upgrader == nil {
		upgrader = &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		}
	}

	ep := &Endpoint{
		ln:       ln,
		upgrader: upgrader,
		chAccept: make(chan *websocket.Conn, 64),
		chClose:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.Handle(f.path(), ep)
	ep.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := ep.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("[MPRPC ws] serve on %v failed: %v", ln.Addr(), err)
		}
	}()

	return ep, nil
}

// Dial connects to addr, e.g. "ws://localhost:5557".
func (f *Factory) Dial(addr string) (mprpc.Conn, error) {
	hostPort, err := mprpc.HostPort(addr)
	if err != nil {
		return nil, err
	}
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c, _, err := dialer.Dial("ws://"+hostPort+f.path(), nil)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: c}, nil
}

func (f *Factory) path() string {
	if f.Path == "" {
		return DefaultPath
	}
	if !strings.HasPrefix(f.Path, "/") {
		return "/" + f.Path
	}
	return f.Path
}

// Endpoint serves one websocket peer at a time; later peers wait in the
// accept queue.
type Endpoint struct {
	mprpc.Alternation
	ln       net.Listener
	srv      *http.Server
	upgrader *websocket.Upgrader
	chAccept chan *websocket.Conn
	chClose  chan struct{}
	closed   atomic.Bool

	mux  sync.Mutex
	conn *websocket.Conn
}

// ServeHTTP upgrades the request and queues the peer.
func (ep *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := ep.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case ep.chAccept <- c:
	case <-ep.chClose:
		c.Close()
	}
}

// Recv .
func (ep *Endpoint) Recv() (string, error) {
	if err := ep.CanRecv(); err != nil {
		return "", err
	}

	for {
		conn, err := ep.peer()
		if err != nil {
			return "", err
		}

		_, data, err := conn.ReadMessage()
		if err == nil {
			ep.Received()
			return string(data), nil
		}
		if ep.closed.Load() {
			return "", mprpc.ErrEndpointClosed
		}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			log.Warn("[MPRPC ws] peer %v dropped: %v", conn.RemoteAddr(), err)
		}
		ep.drop(conn)
	}
}

// Send .
func (ep *Endpoint) Send(reply string) error {
	if err := ep.Reply(); err != nil {
		return err
	}

	ep.mux.Lock()
	conn := ep.conn
	ep.mux.Unlock()
	if conn == nil {
		return mprpc.ErrEndpointClosed
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
		ep.drop(conn)
		return err
	}
	return nil
}

// Addr .
func (ep *Endpoint) Addr() string {
	return "ws://" + ep.ln.Addr().String()
}

// Close stops the http server and closes every queued peer.
func (ep *Endpoint) Close() error {
	if !ep.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(ep.chClose)
	err := ep.srv.Close()

	ep.mux.Lock()
	if ep.conn != nil {
		ep.conn.Close()
		ep.conn = nil
	}
	ep.mux.Unlock()

	for {
		select {
		case c := <-ep.chAccept:
			c.Close()
		default:
			return err
		}
	}
}

func (ep *Endpoint) peer() (*websocket.Conn, error) {
	ep.mux.Lock()
	conn := ep.conn
	ep.mux.Unlock()
	if conn != nil {
		return conn, nil
	}

	select {
	case conn = <-ep.chAccept:
	case <-ep.chClose:
		return nil, mprpc.ErrEndpointClosed
	}

	ep.mux.Lock()
	defer ep.mux.Unlock()
	if ep.closed.Load() {
		conn.Close()
		return nil, mprpc.ErrEndpointClosed
	}
	ep.conn = conn
	return conn, nil
}

func (ep *Endpoint) drop(conn *websocket.Conn) {
	conn.Close()

	ep.mux.Lock()
	if ep.conn == conn {
		ep.conn = nil
	}
	ep.mux.Unlock()
}

// Conn is the request side of a websocket endpoint.
type Conn struct {
	*websocket.Conn
}

// Send .
func (c *Conn) Send(msg string) error {
	return c.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Recv .
func (c *Conn) Recv() (string, error) {
	_, data, err := c.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Close sends a close frame before closing the connection.
func (c *Conn) Close() error {
	c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.Conn.Close()
}

// NewFactory returns a websocket factory serving DefaultPath.
func NewFactory() *Factory {
	return &Factory{Path: DefaultPath}
}
