// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mprpc

// HandlerFunc defines a routing step or middleware of the Reactor.
type HandlerFunc func(*Context)

// Context carries one request through the middleware chain to its reply.
type Context struct {
	Token   Token
	Handler Handler
	Message string

	// Request is nil when Err is set.
	Request Request
	// Err holds the decode error of Message.
	Err error

	reply    string
	replied  bool
	failure  error
	index    int
	handlers []HandlerFunc
}

// Next runs the remaining handlers of the chain.
func (ctx *Context) Next() {
	ctx.index++
	for ctx.index < len(ctx.handlers) {
		ctx.handlers[ctx.index](ctx)
		ctx.index++
	}
}

// Abort skips the remaining handlers.
func (ctx *Context) Abort() {
	ctx.index = len(ctx.handlers)
}

// Write sets the reply. Only the first Write counts.
func (ctx *Context) Write(reply string) error {
	if ctx.replied {
		return ErrInvalidState
	}
	ctx.reply = reply
	ctx.replied = true
	return nil
}

// Fail aborts the chain and marks the request failed. A failed request is
// answered with ReplyUnrecognized whatever was written before.
func (ctx *Context) Fail(err error) {
	if ctx.failure == nil {
		ctx.failure = err
	}
	ctx.Abort()
}

// Failure returns the error passed to Fail, nil if the chain did not fail.
func (ctx *Context) Failure() error {
	return ctx.failure
}

// Reply returns the reply and whether one was written.
func (ctx *Context) Reply() (string, bool) {
	if ctx.failure != nil {
		return ReplyUnrecognized, true
	}
	return ctx.reply, ctx.replied
}

// Verb returns the command token of the request, "" if it did not decode.
func (ctx *Context) Verb() string {
	if ctx.Request == nil {
		return ""
	}
	return ctx.Request.Verb()
}

// NewContext decodes msg and returns a Context that runs handlers in order
// on Next. The Reactor builds one per request; middleware tests may use it
// directly.
func NewContext(tok Token, h Handler, msg string, handlers ...HandlerFunc) *Context {
	req, err := Decode(msg)
	return &Context{
		Token:    tok,
		Handler:  h,
		Message:  msg,
		Request:  req,
		Err:      err,
		index:    -1,
		handlers: handlers,
	}
}
