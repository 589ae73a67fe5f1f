// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mprpc

import (
	"fmt"
	"sync"

	"github.com/azzy13/mprpc/log"
)

// ReplyAck is what the stub Put returns.
const ReplyAck = "ACK"

// Handler defines the operations the Reactor routes requests to.
type Handler interface {
	// LogTag returns log tag value.
	LogTag() string

	// Endpoint returns the bound endpoint, nil before Bind.
	Endpoint() Endpoint

	// Get returns the value for key.
	Get(key string) string
	// Put stores value under key and returns an acknowledgement.
	Put(key, value string) string
}

// Impl is the stub Handler: Get echoes the key and Put acknowledges
// without storing anything.
type Impl struct {
	mux      sync.Mutex
	logtag   string
	endpoint Endpoint
}

// LogTag .
func (h *Impl) LogTag() string {
	return h.logtag
}

// SetLogTag .
func (h *Impl) SetLogTag(tag string) {
	h.logtag = tag
}

// Bind creates a reply-style endpoint on tcp://*:<port> with f.
func (h *Impl) Bind(f Factory, port string) error {
	h.mux.Lock()
	defer h.mux.Unlock()

	if h.endpoint != nil {
		return ErrAlreadyBound
	}

	addr, err := BindAddr(port)
	if err != nil {
		return err
	}

	log.Info("%v Initialize the %v endpoint", h.logtag, f.Name())
	ep, err := f.Listen(addr)
	if err != nil {
		log.Error("%v Bind to %v failed: %v", h.logtag, addr, err)
		return fmt.Errorf("bind %v: %w", addr, err)
	}
	log.Info("%v Bound to %v", h.logtag, ep.Addr())

	h.endpoint = ep
	return nil
}

// Endpoint .
func (h *Impl) Endpoint() Endpoint {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.endpoint
}

// Get returns key unchanged.
func (h *Impl) Get(key string) string {
	log.Debug("%v received a get with key=%v", h.logtag, key)
	return key
}

// Put returns ReplyAck; nothing is stored.
func (h *Impl) Put(key, value string) string {
	log.Debug("%v received a put with key=%v and value=%v", h.logtag, key, value)
	return ReplyAck
}

// Close closes the bound endpoint.
func (h *Impl) Close() error {
	h.mux.Lock()
	ep := h.endpoint
	h.endpoint = nil
	h.mux.Unlock()

	if ep == nil {
		return nil
	}
	return ep.Close()
}

// NewImpl returns an unbound stub Handler.
func NewImpl() *Impl {
	return &Impl{logtag: "[MPRPC IMPL]"}
}
