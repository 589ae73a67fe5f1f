// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mprpc

import (
	"fmt"
	"strings"
	"sync"
)

// Conn is the request side of a reply-style channel.
type Conn interface {
	// Send writes one request message.
	Send(msg string) error
	// Recv reads the reply to the last request.
	Recv() (string, error)
	// Close closes the connection.
	Close() error
}

// Client sends one request at a time and waits for its reply.
type Client struct {
	mux  sync.Mutex
	Conn Conn
}

// Call sends msg and returns the reply.
func (c *Client) Call(msg string) (string, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if err := c.Conn.Send(msg); err != nil {
		return "", err
	}
	return c.Conn.Recv()
}

// Get sends "GET <key>".
func (c *Client) Get(key string) (string, error) {
	if err := checkToken("key", key); err != nil {
		return "", err
	}
	return c.Call(Get{Key: key}.Encode())
}

// Put sends "PUT <key> <value>".
func (c *Client) Put(key, value string) (string, error) {
	if err := checkToken("key", key); err != nil {
		return "", err
	}
	if err := checkToken("value", value); err != nil {
		return "", err
	}
	return c.Call(Put{Key: key, Value: value}.Encode())
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.Conn.Close()
}

// a space would split the token on the server side
func checkToken(name, s string) error {
	if strings.Contains(s, tokenSep) {
		return fmt.Errorf("%w: %v %q contains a space", ErrMalformedRequest, name, s)
	}
	return nil
}

// NewClient dials with dialer and returns a Client.
func NewClient(dialer func() (Conn, error)) (*Client, error) {
	conn, err := dialer()
	if err != nil {
		return nil, err
	}
	return &Client{Conn: conn}, nil
}
