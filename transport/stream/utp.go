// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"net"
	"time"

	"github.com/anacrolix/utp"
)

// DialTimeout bounds utp connection setup.
var DialTimeout = 3 * time.Second

// UTP returns a factory for utp endpoints.
func UTP() *Factory {
	return &Factory{
		name: "utp",
		listen: func(addr string) (net.Listener, error) {
			return utp.NewSocket("udp", addr)
		},
		dial: func(addr string) (net.Conn, error) {
			ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
			defer cancel()
			return utp.DialContext(ctx, addr)
		},
	}
}
