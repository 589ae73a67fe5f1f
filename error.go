// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mprpc

import "errors"

// bind error
var (
	// ErrInvalidPort
	ErrInvalidPort = errors.New("invalid port")
	// ErrNotBound
	ErrNotBound = errors.New("handler endpoint not bound")
	// ErrAlreadyBound
	ErrAlreadyBound = errors.New("handler endpoint already bound")
)

// reactor error
var (
	// ErrUnknownToken
	ErrUnknownToken = errors.New("unknown registration token")
	// ErrNoEndpoints
	ErrNoEndpoints = errors.New("no endpoints registered")
	// ErrReactorRunning
	ErrReactorRunning = errors.New("reactor already running")
)

// endpoint error
var (
	// ErrInvalidState is returned when a reply-style endpoint is asked to
	// receive twice without a reply in between, or to reply without a request.
	ErrInvalidState = errors.New("operation cannot be accomplished in current state")
	// ErrEndpointClosed
	ErrEndpointClosed = errors.New("endpoint closed")
	// ErrInvalidBodyLen
	ErrInvalidBodyLen = errors.New("invalid body length")
)

// message error
var (
	// ErrEmptyMessage
	ErrEmptyMessage = errors.New("empty message")
	// ErrMalformedRequest
	ErrMalformedRequest = errors.New("malformed request")
)
