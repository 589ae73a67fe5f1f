// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package zmq provides ZeroMQ REP endpoints and REQ client connections.
package zmq

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/azzy13/mprpc"
	"github.com/go-zeromq/zmq4"
)

// Context creates ZeroMQ sockets; closing its parent context closes every
// socket it created.
type Context struct {
	ctx context.Context
}

// Name .
func (c *Context) Name() string {
	return "zmq"
}

// Listen binds a REP socket to addr, e.g. "tcp://*:5557".
func (c *Context) Listen(addr string) (mprpc.Endpoint, error) {
	sck := zmq4.NewRep(c.ctx)
	if err := sck.Listen(addr); err != nil {
		sck.Close()
		return nil, err
	}
	return &Endpoint{sck: sck}, nil
}

// Dial connects a REQ socket to addr, e.g. "tcp://localhost:5557".
func (c *Context) Dial(addr string) (mprpc.Conn, error) {
	sck := zmq4.NewReq(c.ctx)
	if err := sck.Dial(addr); err != nil {
		sck.Close()
		return nil, err
	}
	return &Conn{sck: sck}, nil
}

// Endpoint is a REP socket.
type Endpoint struct {
	mprpc.Alternation
	sck    zmq4.Socket
	closed atomic.Bool
}

// Recv .
func (ep *Endpoint) Recv() (string, error) {
	if err := ep.CanRecv(); err != nil {
		return "", err
	}
	if ep.closed.Load() {
		return "", mprpc.ErrEndpointClosed
	}
	msg, err := ep.sck.Recv()
	if err != nil {
		if ep.closed.Load() {
			return "", mprpc.ErrEndpointClosed
		}
		return "", err
	}
	ep.Received()
	return string(bytes.Join(msg.Frames, nil)), nil
}

// Send .
func (ep *Endpoint) Send(reply string) error {
	if err := ep.Reply(); err != nil {
		return err
	}
	if ep.closed.Load() {
		return mprpc.ErrEndpointClosed
	}
	return ep.sck.Send(zmq4.NewMsgString(reply))
}

// Addr .
func (ep *Endpoint) Addr() string {
	addr := ep.sck.Addr()
	if addr == nil {
		return ""
	}
	return addr.Network() + "://" + addr.String()
}

// Close .
func (ep *Endpoint) Close() error {
	if !ep.closed.CompareAndSwap(false, true) {
		return nil
	}
	return ep.sck.Close()
}

// Conn is a REQ socket.
type Conn struct {
	sck zmq4.Socket
}

// Send .
func (c *Conn) Send(msg string) error {
	return c.sck.Send(zmq4.NewMsgString(msg))
}

// Recv .
func (c *Conn) Recv() (string, error) {
	msg, err := c.sck.Recv()
	if err != nil {
		return "", err
	}
	return string(bytes.Join(msg.Frames, nil)), nil
}

// Close .
func (c *Conn) Close() error {
	return c.sck.Close()
}

// NewContext returns a ZeroMQ endpoint factory bound to ctx.
func NewContext(ctx context.Context) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{ctx: ctx}
}
