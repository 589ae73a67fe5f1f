// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"crypto/sha1"
	"errors"
	"net"

	"github.com/xtaci/kcp-go"
	"golang.org/x/crypto/pbkdf2"
)

// kcp forward error correction shards.
const (
	kcpDataShards   = 10
	kcpParityShards = 3
)

// KCP returns a factory for AES-encrypted kcp endpoints. Both sides must use
// the same pass and salt.
func KCP(pass, salt string) (*Factory, error) {
	if pass == "" {
		return nil, errors.New("kcp: empty key")
	}
	key := pbkdf2.Key([]byte(pass), []byte(salt), 1024, 32, sha1.New)
	block, err := kcp.NewAESBlockCrypt(key)
	if err != nil {
		return nil, err
	}

	return &Factory{
		name: "kcp",
		listen: func(addr string) (net.Listener, error) {
			return kcp.ListenWithOptions(addr, block, kcpDataShards, kcpParityShards)
		},
		dial: func(addr string) (net.Conn, error) {
			return kcp.DialWithOptions(addr, block, kcpDataShards, kcpParityShards)
		},
	}, nil
}
