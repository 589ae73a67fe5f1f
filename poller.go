// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mprpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/azzy13/mprpc/util"
)

// Token identifies one registration in a Reactor.
type Token uint64

// Event is a readable endpoint: either one received message or the Recv error.
type Event struct {
	Token    Token
	Endpoint Endpoint
	Message  string
	Err      error
}

const (
	minRetryDelay = time.Millisecond * 20
	maxRetryDelay = time.Second
)

type pollReader struct {
	ep       Endpoint
	chNext   chan struct{}
	chStop   chan struct{}
	stopOnce sync.Once
}

func (r *pollReader) stop() {
	r.stopOnce.Do(func() { close(r.chStop) })
}

func (r *pollReader) stopped() bool {
	select {
	case <-r.chStop:
		return true
	default:
		return false
	}
}

type resetter interface {
	Reset()
}

// reject answers a received message that will never be dispatched.
func (r *pollReader) reject(msg string) {
	if err := r.ep.Send(ReplyUnrecognized); err != nil {
		if rs, ok := r.ep.(resetter); ok {
			rs.Reset()
		}
	}
}

// Poller multiplexes blocking Recv calls of many endpoints into one wait.
//
// Each endpoint has a reader goroutine that receives one message, publishes
// it and then parks until Done is called for its token, so at most one
// message per endpoint is outstanding.
type Poller struct {
	mux     sync.Mutex
	chEvent chan Event
	readers map[Token]*pollReader
}

// Add starts polling ep under tok. Adding an existing token replaces it.
func (p *Poller) Add(tok Token, ep Endpoint) {
	r := &pollReader{
		ep:     ep,
		chNext: make(chan struct{}, 1),
		chStop: make(chan struct{}),
	}

	p.mux.Lock()
	if prev, ok := p.readers[tok]; ok {
		prev.stop()
	}
	p.readers[tok] = r
	p.mux.Unlock()

	util.Go(func() { p.readLoop(tok, r) })
}

// Remove stops polling tok. A Recv already blocked in the endpoint is not
// interrupted. A message it returns that was never published is answered
// with ReplyUnrecognized so the endpoint can receive again.
func (p *Poller) Remove(tok Token) bool {
	p.mux.Lock()
	r, ok := p.readers[tok]
	delete(p.readers, tok)
	p.mux.Unlock()

	if ok {
		r.stop()
	}
	return ok
}

// Len returns the number of polled endpoints.
func (p *Poller) Len() int {
	p.mux.Lock()
	defer p.mux.Unlock()
	return len(p.readers)
}

// Wait blocks until an endpoint is readable or ctx is done.
func (p *Poller) Wait(ctx context.Context) (Event, error) {
	select {
	case ev := <-p.chEvent:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Done lets the reader of tok receive its next message.
func (p *Poller) Done(tok Token) {
	p.mux.Lock()
	r, ok := p.readers[tok]
	p.mux.Unlock()

	if ok {
		select {
		case r.chNext <- struct{}{}:
		default:
		}
	}
}

// Close stops all readers.
func (p *Poller) Close() {
	p.mux.Lock()
	readers := p.readers
	p.readers = map[Token]*pollReader{}
	p.mux.Unlock()

	for _, r := range readers {
		r.stop()
	}
}

func (p *Poller) readLoop(tok Token, r *pollReader) {
	delay := time.Duration(0)
	for {
		msg, err := r.ep.Recv()
		if r.stopped() {
			if err == nil {
				r.reject(msg)
			}
			return
		}
		select {
		case p.chEvent <- Event{Token: tok, Endpoint: r.ep, Message: msg, Err: err}:
		case <-r.chStop:
			if err == nil {
				r.reject(msg)
			}
			return
		}

		if errors.Is(err, ErrEndpointClosed) {
			return
		}

		if err != nil {
			if delay == 0 {
				delay = minRetryDelay
			} else {
				delay *= 2
			}
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		} else {
			delay = 0
		}

		select {
		case <-r.chNext:
		case <-r.chStop:
			return
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-r.chStop:
				timer.Stop()
				return
			}
		}
	}
}

// NewPoller .
func NewPoller() *Poller {
	return &Poller{
		chEvent: make(chan Event),
		readers: map[Token]*pollReader{},
	}
}
