// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transport selects an endpoint factory by name.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/transport/eventloop"
	"github.com/azzy13/mprpc/transport/stream"
	"github.com/azzy13/mprpc/transport/websocket"
	"github.com/azzy13/mprpc/transport/zmq"
)

// Transport names.
const (
	ZMQ       = "zmq"
	TCP       = "tcp"
	KCP       = "kcp"
	UTP       = "utp"
	QUIC      = "quic"
	NBIO      = "nbio"
	Websocket = "ws"
)

// Names lists the supported transports.
var Names = []string{ZMQ, TCP, KCP, UTP, QUIC, NBIO, Websocket}

// DefaultKCPSalt is used when Options.KCPSalt is empty.
const DefaultKCPSalt = "mprpc"

// Options .
type Options struct {
	// Context closes zmq sockets when done.
	Context context.Context
	KCPKey  string
	KCPSalt string
	// TLSCert and TLSKey are the quic certificate files. A self-signed
	// certificate is generated when both are empty.
	TLSCert string
	TLSKey  string
}

// Factory is an endpoint factory that can also dial its own endpoints.
type Factory interface {
	mprpc.Factory
	Dial(addr string) (mprpc.Conn, error)
}

// New returns the factory for the named transport.
func New(name string, opts Options) (Factory, error) {
	switch name {
	case ZMQ, "":
		return zmq.NewContext(opts.Context), nil
	case TCP:
		return stream.TCP(), nil
	case KCP:
		salt := opts.KCPSalt
		if salt == "" {
			salt = DefaultKCPSalt
		}
		return stream.KCP(opts.KCPKey, salt)
	case UTP:
		return stream.UTP(), nil
	case QUIC:
		if opts.TLSCert == "" && opts.TLSKey == "" {
			return stream.QUIC(nil)
		}
		cert, err := tls.LoadX509KeyPair(opts.TLSCert, opts.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("quic: %w", err)
		}
		return stream.QUIC(&cert)
	case NBIO:
		return &eventloop.Factory{}, nil
	case Websocket:
		return websocket.NewFactory(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}

// Datagram reports whether the named transport binds a udp port.
func Datagram(name string) bool {
	return name == KCP || name == UTP || name == QUIC
}

// Valid reports whether name is a supported transport.
func Valid(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}
