// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package tracing records an opentracing span per request.
package tracing

import (
	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/log"
	"github.com/opentracing/basictracer-go"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"
)

const (
	component = "mprpc"

	// OperationUnrecognized names spans of requests that did not decode to
	// GET or PUT.
	OperationUnrecognized = "mprpc unrecognized"
)

// Tag keys.
const (
	TagToken   = "mprpc.token"
	TagHandler = "mprpc.handler"
	TagReply   = "mprpc.reply"
)

// logRecorder reports finished spans to the log package.
type logRecorder struct{}

// RecordSpan complies with the basictracer.SpanRecorder interface.
func (r *logRecorder) RecordSpan(span basictracer.RawSpan) {
	log.Debug("[MPRPC TRACE] %v[%v, %v] --> %v logs, tags: %v",
		span.Operation, span.Start.Format("15:04:05.000"), span.Duration, len(span.Logs), span.Tags)
	for i, l := range span.Logs {
		log.Debug("[MPRPC TRACE]     log %v @ %v: %v", i, l.Timestamp.Format("15:04:05.000"), l.Fields)
	}
}

// NewTracer returns a basictracer reporting to recorder, or to the log
// package when recorder is nil.
func NewTracer(recorder basictracer.SpanRecorder) opentracing.Tracer {
	if recorder == nil {
		recorder = &logRecorder{}
	}
	return basictracer.New(recorder)
}

// Operation returns the span name for ctx.
func Operation(ctx *mprpc.Context) string {
	switch ctx.Request.(type) {
	case mprpc.Get, mprpc.Put:
		return component + " " + ctx.Verb()
	default:
		return OperationUnrecognized
	}
}

// Middleware wraps the rest of the chain in a server span.
func Middleware(tracer opentracing.Tracer) mprpc.HandlerFunc {
	if tracer == nil {
		tracer = opentracing.GlobalTracer()
	}
	return func(ctx *mprpc.Context) {
		span := tracer.StartSpan(Operation(ctx), ext.SpanKindRPCServer)
		defer span.Finish()

		ext.Component.Set(span, component)
		span.SetTag(TagToken, uint64(ctx.Token))
		if ctx.Handler != nil {
			span.SetTag(TagHandler, ctx.Handler.LogTag())
		}
		span.LogFields(otlog.String("request", ctx.Message))

		if ctx.Err != nil {
			ext.Error.Set(span, true)
			span.LogFields(otlog.Error(ctx.Err))
		}

		ctx.Next()

		reply, ok := ctx.Reply()
		if !ok {
			reply = mprpc.ReplyUnrecognized
		}
		span.SetTag(TagReply, reply)
	}
}
