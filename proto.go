// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mprpc

import (
	"fmt"
	"strings"
)

const (
	// VerbGet .
	VerbGet = "GET"
	// VerbPut .
	VerbPut = "PUT"
)

const (
	// ReplyPutAck is sent for every PUT request.
	ReplyPutAck = "ack"
	// ReplyUnrecognized is sent for unknown verbs and malformed requests.
	ReplyUnrecognized = "Sorry, unrecognized command"
)

// tokenSep is the only delimiter; the wire format has no escaping.
const tokenSep = " "

// Request is one decoded inbound message: Get, Put or Unknown.
type Request interface {
	// Verb returns the command token the request was decoded from.
	Verb() string
	// Encode returns the wire form of the request.
	Encode() string

	request()
}

// Get asks the handler for the value of Key.
type Get struct {
	Key string
}

// Verb .
func (Get) Verb() string { return VerbGet }

// Encode .
func (r Get) Encode() string { return VerbGet + tokenSep + r.Key }

func (Get) request() {}

// Put asks the handler to store Value under Key.
type Put struct {
	Key   string
	Value string
}

// Verb .
func (Put) Verb() string { return VerbPut }

// Encode .
func (r Put) Encode() string { return VerbPut + tokenSep + r.Key + tokenSep + r.Value }

func (Put) request() {}

// Unknown is a message whose first token is neither GET nor PUT.
type Unknown struct {
	Command string
}

// Verb .
func (r Unknown) Verb() string { return r.Command }

// Encode .
func (r Unknown) Encode() string { return r.Command }

func (Unknown) request() {}

// Decode splits msg on ASCII space and returns the request it names.
//
// Tokens past the ones a verb needs are ignored. A GET without a key or a
// PUT without a key and value yields ErrMalformedRequest; an empty message
// yields ErrEmptyMessage. Unknown verbs are not an error.
func Decode(msg string) (Request, error) {
	if msg == "" {
		return nil, ErrEmptyMessage
	}

	parts := strings.Split(msg, tokenSep)
	switch parts[0] {
	case VerbGet:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: %v needs a key", ErrMalformedRequest, VerbGet)
		}
		return Get{Key: parts[1]}, nil
	case VerbPut:
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: %v needs a key and a value", ErrMalformedRequest, VerbPut)
		}
		return Put{Key: parts[1], Value: parts[2]}, nil
	default:
		return Unknown{Command: parts[0]}, nil
	}
}
