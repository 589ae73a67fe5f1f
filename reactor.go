// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mprpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/azzy13/mprpc/log"
	"github.com/azzy13/mprpc/util"
)

// State is the dispatch state of a Reactor.
type State int32

const (
	// StateWaiting: blocked until an endpoint is readable.
	StateWaiting State = iota
	// StateHandling: one request is being decoded, routed and replied to.
	StateHandling
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateHandling:
		return "HANDLING"
	default:
		return "UNKNOWN"
	}
}

// Stats counts what a Reactor has done.
type Stats struct {
	Handled      int64 `json:"handled"`
	Unrecognized int64 `json:"unrecognized"`
	RecvFailures int64 `json:"recv_failures"`
	SendFailures int64 `json:"send_failures"`
	Endpoints    int   `json:"endpoints"`
}

// Reactor waits for requests on the endpoints of registered Handlers,
// routes each one and sends exactly one reply before taking the next.
type Reactor struct {
	// ForwardPutReply sends the Handler's Put return value instead of
	// ReplyPutAck.
	ForwardPutReply bool

	mux      sync.Mutex
	logtag   string
	seq      uint64
	handlers map[Token]Handler
	middles  []HandlerFunc
	poller   *Poller

	state   atomic.Int32
	running atomic.Bool

	handled      atomic.Int64
	unrecognized atomic.Int64
	recvFailures atomic.Int64
	sendFailures atomic.Int64
}

// LogTag .
func (r *Reactor) LogTag() string {
	return r.logtag
}

// SetLogTag .
func (r *Reactor) SetLogTag(tag string) {
	r.logtag = tag
}

// Use registers a middleware, called in register order before routing.
func (r *Reactor) Use(h HandlerFunc) {
	if h == nil {
		return
	}
	r.mux.Lock()
	r.middles = append(r.middles, h)
	r.mux.Unlock()
}

// Register adds h's endpoint to the wait set and returns its token.
// Registering the same Handler again returns the existing token.
func (r *Reactor) Register(h Handler) (Token, error) {
	ep := h.Endpoint()
	if ep == nil {
		return 0, ErrNotBound
	}

	r.mux.Lock()
	defer r.mux.Unlock()

	for tok, v := range r.handlers {
		if v == h {
			return tok, nil
		}
	}

	r.seq++
	tok := Token(r.seq)
	r.handlers[tok] = h
	r.poller.Add(tok, ep)

	log.Info("%v register %v on %v, token %v", r.logtag, h.LogTag(), ep.Addr(), tok)

	return tok, nil
}

// Unregister removes the registration of tok.
func (r *Reactor) Unregister(tok Token) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	h, ok := r.handlers[tok]
	if !ok {
		return ErrUnknownToken
	}
	delete(r.handlers, tok)
	r.poller.Remove(tok)

	log.Info("%v unregister %v, token %v", r.logtag, h.LogTag(), tok)

	return nil
}

// State returns the current dispatch state.
func (r *Reactor) State() State {
	return State(r.state.Load())
}

// Stats returns a snapshot of the counters.
func (r *Reactor) Stats() Stats {
	return Stats{
		Handled:      r.handled.Load(),
		Unrecognized: r.unrecognized.Load(),
		RecvFailures: r.recvFailures.Load(),
		SendFailures: r.sendFailures.Load(),
		Endpoints:    r.poller.Len(),
	}
}

// Run is the event loop. It returns ctx.Err() once ctx is done, after the
// request in progress was replied to, or ErrNoEndpoints when every
// registered endpoint has been closed.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrReactorRunning
	}
	defer r.running.Store(false)

	log.Info("%v Running the event loop", r.logtag)
	defer log.Info("%v Stopped", r.logtag)

	for {
		r.state.Store(int32(StateWaiting))

		if r.poller.Len() == 0 {
			return ErrNoEndpoints
		}

		log.Debug("%v Wait for the next event", r.logtag)
		ev, err := r.poller.Wait(ctx)
		if err != nil {
			return err
		}

		r.state.Store(int32(StateHandling))
		r.onEvent(ev)
	}
}

// Close stops polling all endpoints. Endpoints stay open; they belong to
// their Handlers.
func (r *Reactor) Close() {
	r.mux.Lock()
	r.handlers = map[Token]Handler{}
	r.mux.Unlock()
	r.poller.Close()
}

func (r *Reactor) onEvent(ev Event) {
	if ev.Err != nil {
		if errors.Is(ev.Err, ErrEndpointClosed) {
			log.Info("%v endpoint %v closed, token %v", r.logtag, ev.Endpoint.Addr(), ev.Token)
			r.Unregister(ev.Token)
			return
		}
		r.recvFailures.Add(1)
		log.Error("%v Recv on %v failed: %v", r.logtag, ev.Endpoint.Addr(), ev.Err)
		r.poller.Done(ev.Token)
		return
	}

	defer r.poller.Done(ev.Token)

	h, ok := r.handler(ev.Token)
	if !ok {
		// Still owe the peer a reply.
		log.Warn("%v message on unregistered token %v, ignoring it", r.logtag, ev.Token)
		r.send(ev, ReplyUnrecognized)
		return
	}

	log.Debug("%v message arrived on %v: %q", r.logtag, ev.Endpoint.Addr(), ev.Message)
	r.send(ev, r.handleMessage(ev.Token, h, ev.Message))
}

func (r *Reactor) handleMessage(tok Token, h Handler, msg string) string {
	r.mux.Lock()
	handlers := make([]HandlerFunc, len(r.middles)+1)
	copy(handlers, r.middles)
	r.mux.Unlock()
	handlers[len(handlers)-1] = r.route

	ctx := NewContext(tok, h, msg, handlers...)
	if err := util.Safe(ctx.Next); err != nil {
		ctx.Fail(err)
	}
	if err := ctx.Failure(); err != nil {
		log.Error("%v handling %q failed: %v", r.logtag, msg, err)
	}

	r.handled.Add(1)
	reply, ok := ctx.Reply()
	if !ok {
		reply = ReplyUnrecognized
	}
	if reply == ReplyUnrecognized {
		r.unrecognized.Add(1)
	}
	return reply
}

func (r *Reactor) route(ctx *Context) {
	switch req := ctx.Request.(type) {
	case Get:
		log.Debug("%v GET, responding with a reply from %v", r.logtag, ctx.Handler.LogTag())
		ctx.Write(ctx.Handler.Get(req.Key))
	case Put:
		log.Debug("%v PUT, responding with an ack", r.logtag)
		ack := ctx.Handler.Put(req.Key, req.Value)
		if r.ForwardPutReply {
			ctx.Write(ack)
		} else {
			ctx.Write(ReplyPutAck)
		}
	case Unknown:
		log.Warn("%v unrecognized command %q", r.logtag, req.Command)
		ctx.Write(ReplyUnrecognized)
	default:
		log.Warn("%v undecodable message %q: %v", r.logtag, ctx.Message, ctx.Err)
		ctx.Write(ReplyUnrecognized)
	}
}

func (r *Reactor) send(ev Event, reply string) {
	if err := ev.Endpoint.Send(reply); err != nil {
		r.sendFailures.Add(1)
		log.Error("%v Send on %v failed: %v", r.logtag, ev.Endpoint.Addr(), err)
	}
}

func (r *Reactor) handler(tok Token) (Handler, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	h, ok := r.handlers[tok]
	return h, ok
}

// NewReactor factory
func NewReactor() *Reactor {
	return &Reactor{
		logtag:   "[MPRPC REACTOR]",
		handlers: map[Token]Handler{},
		poller:   NewPoller(),
	}
}
