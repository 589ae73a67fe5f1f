// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package stream serves reply-style endpoints over stream listeners
// (tcp, kcp, utp, quic) using length-prefixed frames.
//
// An endpoint talks to one peer at a time. When the peer goes away the
// endpoint accepts the next one.
package stream

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/log"
)

// RecvBufferSize is the read buffer size of a peer connection.
var RecvBufferSize = 8192

// Factory binds stream endpoints for one network.
type Factory struct {
	name   string
	listen func(addr string) (net.Listener, error)
	dial   func(addr string) (net.Conn, error)
}

// Name .
func (f *Factory) Name() string {
	return f.name
}

// Listen binds an endpoint to addr, e.g. "tcp://*:5557".
func (f *Factory) Listen(addr string) (mprpc.Endpoint, error) {
	hostPort, err := mprpc.HostPort(addr)
	if err != nil {
		return nil, err
	}
	ln, err := f.listen(hostPort)
	if err != nil {
		return nil, err
	}
	return NewEndpoint(f.name, ln), nil
}

// Dial connects to addr, e.g. "tcp://localhost:5557".
func (f *Factory) Dial(addr string) (mprpc.Conn, error) {
	hostPort, err := mprpc.HostPort(addr)
	if err != nil {
		return nil, err
	}
	conn, err := f.dial(hostPort)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

// TCP returns the plain tcp factory.
func TCP() *Factory {
	return &Factory{
		name: "tcp",
		listen: func(addr string) (net.Listener, error) {
			return net.Listen("tcp", addr)
		},
		dial: func(addr string) (net.Conn, error) {
			return net.Dial("tcp", addr)
		},
	}
}

// Endpoint serves one peer connection at a time from a listener.
type Endpoint struct {
	mprpc.Alternation
	logtag string
	scheme string
	ln     net.Listener

	mux    sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed atomic.Bool
}

// Recv returns the next frame, accepting a new peer if there is none.
func (ep *Endpoint) Recv() (string, error) {
	if err := ep.CanRecv(); err != nil {
		return "", err
	}

	for {
		if ep.closed.Load() {
			return "", mprpc.ErrEndpointClosed
		}

		conn, reader, err := ep.peer()
		if err != nil {
			if ep.closed.Load() {
				return "", mprpc.ErrEndpointClosed
			}
			return "", err
		}

		msg, err := ReadFrame(reader)
		if err == nil {
			ep.Received()
			return msg, nil
		}

		switch {
		case ep.closed.Load():
			return "", mprpc.ErrEndpointClosed
		case errors.Is(err, io.EOF):
			log.Debug("%v peer %v disconnected", ep.logtag, conn.RemoteAddr())
		default:
			log.Warn("%v peer %v dropped: %v", ep.logtag, conn.RemoteAddr(), err)
		}
		ep.drop(conn)
	}
}

// Send writes the reply frame to the current peer.
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

	if err := WriteFrame(conn, reply); err != nil {
		ep.drop(conn)
		return err
	}
	return nil
}

// Addr .
func (ep *Endpoint) Addr() string {
	return ep.scheme + "://" + ep.ln.Addr().String()
}

// Close closes the listener and the current peer.
func (ep *Endpoint) Close() error {
	if !ep.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := ep.ln.Close()

	ep.mux.Lock()
	if ep.conn != nil {
		ep.conn.Close()
		ep.conn = nil
		ep.reader = nil
	}
	ep.mux.Unlock()

	return err
}

func (ep *Endpoint) peer() (net.Conn, *bufio.Reader, error) {
	ep.mux.Lock()
	conn, reader := ep.conn, ep.reader
	ep.mux.Unlock()
	if conn != nil {
		return conn, reader, nil
	}

	conn, err := ep.ln.Accept()
	if err != nil {
		return nil, nil, err
	}
	reader = bufio.NewReaderSize(conn, RecvBufferSize)

	ep.mux.Lock()
	defer ep.mux.Unlock()
	if ep.closed.Load() {
		conn.Close()
		return nil, nil, mprpc.ErrEndpointClosed
	}
	ep.conn, ep.reader = conn, reader
	log.Debug("%v peer %v connected", ep.logtag, conn.RemoteAddr())

	return conn, reader, nil
}

func (ep *Endpoint) drop(conn net.Conn) {
	conn.Close()

	ep.mux.Lock()
	if ep.conn == conn {
		ep.conn = nil
		ep.reader = nil
	}
	ep.mux.Unlock()
}

// NewEndpoint wraps a bound listener.
func NewEndpoint(scheme string, ln net.Listener) *Endpoint {
	return &Endpoint{
		logtag: "[MPRPC " + scheme + "]",
		scheme: scheme,
		ln:     ln,
	}
}

// Conn is the request side of a stream endpoint.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Send .
func (c *Conn) Send(msg string) error {
	return WriteFrame(c.conn, msg)
}

// Recv .
func (c *Conn) Recv() (string, error) {
	return ReadFrame(c.reader)
}

// Close .
func (c *Conn) Close() error {
	return c.conn.Close()
}

// NewConn wraps a connected net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, reader: bufio.NewReaderSize(conn, RecvBufferSize)}
}
