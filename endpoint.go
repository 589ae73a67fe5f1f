// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mprpc

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
)

// Endpoint is a bound, message-framed, reply-style channel.
//
// Every successful Recv must be followed by exactly one Send before the next
// Recv; implementations return ErrInvalidState otherwise.
type Endpoint interface {
	// Recv blocks until one complete message arrives.
	Recv() (string, error)
	// Send replies to the message returned by the last Recv.
	Send(reply string) error
	// Addr returns the bound address.
	Addr() string
	// Close releases the endpoint and unblocks a pending Recv.
	Close() error
}

// Factory creates bound endpoints, e.g. a ZeroMQ context or a framed TCP
// listener factory.
type Factory interface {
	// Name returns the transport name used in logs.
	Name() string
	// Listen binds a reply-style endpoint to addr, e.g. "tcp://*:5557".
	Listen(addr string) (Endpoint, error)
}

// Alternation tracks the request/reply turn of a reply-style endpoint.
// The zero value expects a Recv.
type Alternation struct {
	pending atomic.Bool
}

// CanRecv returns ErrInvalidState while a reply is still owed.
func (a *Alternation) CanRecv() error {
	if a.pending.Load() {
		return ErrInvalidState
	}
	return nil
}

// Received marks that a request was taken and a reply is owed.
func (a *Alternation) Received() {
	a.pending.Store(true)
}

// Reply consumes the owed reply, or returns ErrInvalidState if none is owed.
func (a *Alternation) Reply() error {
	if !a.pending.CompareAndSwap(true, false) {
		return ErrInvalidState
	}
	return nil
}

// Reset drops an owed reply, used when the peer went away.
func (a *Alternation) Reset() {
	a.pending.Store(false)
}

// BindAddr returns the wildcard tcp address for port.
func BindAddr(port string) (string, error) {
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPort, port)
	}
	return "tcp://*:" + strconv.Itoa(n), nil
}

// HostPort converts an endpoint address such as "tcp://*:5557" to the
// host:port form used by net.Listen (":5557").
func HostPort(addr string) (string, error) {
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	if host == "*" {
		host = ""
	}
	return net.JoinHostPort(host, port), nil
}
