// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package eventloop serves reply-style endpoints from an nbio event loop.
//
// The wire format is the length-prefixed frame of package stream, so stream
// tcp clients talk to it unchanged. Unlike a stream endpoint many peers may
// stay connected; their requests are queued and handed out one at a time.
package eventloop

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/log"
	"github.com/azzy13/mprpc/transport/stream"
	"github.com/lesismal/nbio"
)

// MaxPending is the number of requests a peer may have queued.
var MaxPending = 8

// Factory binds event loop endpoints.
type Factory struct{}

// Name .
func (f *Factory) Name() string {
	return "nbio"
}

// Listen binds an endpoint to addr, e.g. "tcp://*:5557".
func (f *Factory) Listen(addr string) (mprpc.Endpoint, error) {
	hostPort, err := mprpc.HostPort(addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", hostPort)
	if err != nil {
		return nil, err
	}

	ep := &Endpoint{
		logtag:  "[MPRPC nbio]",
		ln:      ln,
		engine:  nbio.NewGopher(nbio.Config{}),
		chReq:   make(chan *request),
		chClose: make(chan struct{}),
	}
	ep.engine.OnOpen(ep.onOpen)
	ep.engine.OnData(ep.onData)
	ep.engine.OnClose(ep.onClose)
	if err := ep.engine.Start(); err != nil {
		ln.Close()
		return nil, err
	}
	go ep.accept()

	return ep, nil
}

// Dial connects a stream client to addr.
func (f *Factory) Dial(addr string) (mprpc.Conn, error) {
	hostPort, err := mprpc.HostPort(addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.Dial("tcp", hostPort)
	if err != nil {
		return nil, err
	}
	return stream.NewConn(conn), nil
}

type request struct {
	peer *peer
	msg  string
}

// peer is the session of one nbio connection.
type peer struct {
	conn  *nbio.Conn
	mux   sync.Mutex
	cache []byte
	chReq chan string
	done  chan struct{}
	once  sync.Once
}

// Endpoint is an mprpc.Endpoint fed by an nbio engine.
type Endpoint struct {
	mprpc.Alternation
	logtag string
	ln     net.Listener
	engine *nbio.Gopher

	chReq   chan *request
	chClose chan struct{}
	closed  atomic.Bool

	mux     sync.Mutex
	current *peer
}

// Recv .
func (ep *Endpoint) Recv() (string, error) {
	if err := ep.CanRecv(); err != nil {
		return "", err
	}

	select {
	case req := <-ep.chReq:
		ep.mux.Lock()
		ep.current = req.peer
		ep.mux.Unlock()
		ep.Received()
		return req.msg, nil
	case <-ep.chClose:
		return "", mprpc.ErrEndpointClosed
	}
}

// Send writes the reply frame to the peer that sent the request.
func (ep *Endpoint) Send(reply string) error {
	if err := ep.Reply(); err != nil {
		return err
	}

	ep.mux.Lock()
	p := ep.current
	ep.current = nil
	ep.mux.Unlock()
	if p == nil {
		return mprpc.ErrEndpointClosed
	}

	if err := stream.WriteFrame(p.conn, reply); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// Addr .
func (ep *Endpoint) Addr() string {
	return "nbio://" + ep.ln.Addr().String()
}

// Close stops accepting and closes every peer.
func (ep *Endpoint) Close() error {
	if !ep.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(ep.chClose)
	err := ep.ln.Close()
	ep.engine.Stop()
	return err
}

func (ep *Endpoint) accept() {
	for {
		conn, err := ep.ln.Accept()
		if err != nil {
			if !ep.closed.Load() {
				log.Error("%v accept failed: %v", ep.logtag, err)
			}
			return
		}
		ep.engine.AddConn(conn)
	}
}

func (ep *Endpoint) onOpen(c *nbio.Conn) {
	p := &peer{
		conn:  c,
		chReq: make(chan string, MaxPending),
		done:  make(chan struct{}),
	}
	c.SetSession(p)
	go ep.forward(p)
	log.Debug("%v peer %v connected", ep.logtag, c.RemoteAddr())
}

// forward hands the peer's requests to Recv in order.
func (ep *Endpoint) forward(p *peer) {
	for {
		select {
		case msg := <-p.chReq:
			select {
			case ep.chReq <- &request{peer: p, msg: msg}:
			case <-p.done:
				return
			case <-ep.chClose:
				return
			}
		case <-p.done:
			return
		case <-ep.chClose:
			return
		}
	}
}

func (ep *Endpoint) onData(c *nbio.Conn, data []byte) {
	p, ok := c.Session().(*peer)
	if !ok {
		c.Close()
		return
	}

	p.mux.Lock()
	defer p.mux.Unlock()

	p.cache = append(p.cache, data...)
	for len(p.cache) >= stream.HeadLen {
		l := stream.Header(p.cache).BodyLen()
		if l < 0 || l > stream.MaxBodyLen {
			log.Warn("%v peer %v dropped: %v: %v", ep.logtag, c.RemoteAddr(), mprpc.ErrInvalidBodyLen, l)
			c.Close()
			return
		}
		total := stream.HeadLen + l
		if len(p.cache) < total {
			break
		}
		msg := string(p.cache[stream.HeadLen:total])
		p.cache = p.cache[total:]

		select {
		case p.chReq <- msg:
		default:
			log.Warn("%v peer %v dropped: too many pending requests", ep.logtag, c.RemoteAddr())
			c.Close()
			return
		}
	}
	if len(p.cache) == 0 {
		p.cache = nil
	}
}

func (ep *Endpoint) onClose(c *nbio.Conn, err error) {
	p, ok := c.Session().(*peer)
	if !ok {
		return
	}
	p.once.Do(func() { close(p.done) })
	log.Debug("%v peer %v disconnected: %v", ep.logtag, c.RemoteAddr(), err)
}
