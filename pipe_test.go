// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mprpc

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// pipeEndpoint is an in-memory reply-style endpoint.
type pipeEndpoint struct {
	Alternation
	addr      string
	chReq     chan string
	chRsp     chan string
	chClose   chan struct{}
	closeOnce sync.Once
}

func newPipeEndpoint(addr string) *pipeEndpoint {
	return &pipeEndpoint{
		addr:    addr,
		chReq:   make(chan string),
		chRsp:   make(chan string, 1),
		chClose: make(chan struct{}),
	}
}

func (p *pipeEndpoint) Recv() (string, error) {
	if err := p.CanRecv(); err != nil {
		return "", err
	}
	select {
	case msg := <-p.chReq:
		p.Received()
		return msg, nil
	case <-p.chClose:
		return "", ErrEndpointClosed
	}
}

func (p *pipeEndpoint) Send(reply string) error {
	if err := p.Reply(); err != nil {
		return err
	}
	select {
	case p.chRsp <- reply:
		return nil
	case <-p.chClose:
		return ErrEndpointClosed
	}
}

func (p *pipeEndpoint) Addr() string {
	return p.addr
}

func (p *pipeEndpoint) Close() error {
	p.closeOnce.Do(func() { close(p.chClose) })
	return nil
}

func (p *pipeEndpoint) tryCall(msg string) (string, error) {
	timer := time.NewTimer(time.Second * 3)
	defer timer.Stop()
	select {
	case p.chReq <- msg:
	case <-timer.C:
		return "", fmt.Errorf("call %q: request not taken", msg)
	}
	select {
	case rsp := <-p.chRsp:
		return rsp, nil
	case <-timer.C:
		return "", fmt.Errorf("call %q: no reply", msg)
	}
}

func (p *pipeEndpoint) call(t *testing.T, msg string) string {
	t.Helper()
	rsp, err := p.tryCall(msg)
	if err != nil {
		t.Fatal(err)
	}
	return rsp
}

// pipeFactory hands out pipe endpoints and refuses addresses already bound.
type pipeFactory struct {
	mux   sync.Mutex
	bound map[string]*pipeEndpoint
}

func newPipeFactory() *pipeFactory {
	return &pipeFactory{bound: map[string]*pipeEndpoint{}}
}

func (f *pipeFactory) Name() string {
	return "pipe"
}

func (f *pipeFactory) Listen(addr string) (Endpoint, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	if _, ok := f.bound[addr]; ok {
		return nil, fmt.Errorf("listen %v: address already in use", addr)
	}
	ep := newPipeEndpoint(addr)
	f.bound[addr] = ep
	return ep, nil
}

func (f *pipeFactory) endpoint(addr string) *pipeEndpoint {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.bound[addr]
}
