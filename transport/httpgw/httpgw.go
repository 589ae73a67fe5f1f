// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package httpgw exposes a reply-style endpoint over HTTP.
//
//	POST /rpc      body is one request message, response body is the reply
//	GET  /healthz  liveness
//	GET  /stats    dispatcher counters, when a stats source is set
//
// Concurrent HTTP requests are queued and handed to the dispatcher one at a
// time, so the endpoint keeps strict request/reply alternation.
package httpgw

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/log"
	"github.com/gin-gonic/gin"
)

// MaxBodyLen limit
const MaxBodyLen = 1024 * 1024

// DefaultTimeout bounds how long a queued request waits for its reply.
var DefaultTimeout = 30 * time.Second

// Factory binds gateway endpoints.
type Factory struct {
	// Stats, when set, is served on GET /stats.
	Stats   func() mprpc.Stats
	Timeout time.Duration
}

// Name .
func (f *Factory) Name() string {
	return "http"
}

// Listen serves the gateway on addr, e.g. "tcp://*:8080".
func (f *Factory) Listen(addr string) (mprpc.Endpoint, error) {
	hostPort, err := mprpc.HostPort(addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", hostPort)
	if err != nil {
		return nil, err
	}

	gw := NewGateway(f.Stats, f.Timeout)
	gw.ln = ln
	gw.srv = &http.Server{Handler: gw.engine, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := gw.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("[MPRPC http] serve on %v failed: %v", ln.Addr(), err)
		}
	}()
	return gw, nil
}

type call struct {
	msg   string
	chRsp chan string
}

// Gateway is an mprpc.Endpoint fed by HTTP requests.
type Gateway struct {
	mprpc.Alternation
	engine  *gin.Engine
	ln      net.Listener
	srv     *http.Server
	stats   func() mprpc.Stats
	timeout time.Duration

	chCall  chan *call
	chClose chan struct{}
	closed  atomic.Bool

	mux     sync.Mutex
	current *call
}

// Handler returns the gin engine serving the gateway routes.
func (gw *Gateway) Handler() http.Handler {
	return gw.engine
}

// Recv .
func (gw *Gateway) Recv() (string, error) {
	if err := gw.CanRecv(); err != nil {
		return "", err
	}

	select {
	case c := <-gw.chCall:
		gw.mux.Lock()
		gw.current = c
		gw.mux.Unlock()
		gw.Received()
		return c.msg, nil
	case <-gw.chClose:
		return "", mprpc.ErrEndpointClosed
	}
}

// Send .
func (gw *Gateway) Send(reply string) error {
	if err := gw.Reply(); err != nil {
		return err
	}

	gw.mux.Lock()
	c := gw.current
	gw.current = nil
	gw.mux.Unlock()
	if c == nil {
		return mprpc.ErrEndpointClosed
	}

	c.chRsp <- reply
	return nil
}

// Addr .
func (gw *Gateway) Addr() string {
	if gw.ln == nil {
		return "http://"
	}
	return "http://" + gw.ln.Addr().String()
}

// Close .
func (gw *Gateway) Close() error {
	if !gw.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(gw.chClose)
	if gw.srv != nil {
		return gw.srv.Close()
	}
	return nil
}

func (gw *Gateway) onRPC(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyLen+1))
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if len(body) > MaxBodyLen {
		c.String(http.StatusRequestEntityTooLarge, mprpc.ErrInvalidBodyLen.Error())
		return
	}

	req := &call{msg: string(body), chRsp: make(chan string, 1)}
	timer := time.NewTimer(gw.timeout)
	defer timer.Stop()

	select {
	case gw.chCall <- req:
	case <-gw.chClose:
		c.String(http.StatusServiceUnavailable, mprpc.ErrEndpointClosed.Error())
		return
	case <-c.Request.Context().Done():
		return
	case <-timer.C:
		c.String(http.StatusGatewayTimeout, "timeout")
		return
	}

	select {
	case rsp := <-req.chRsp:
		c.String(http.StatusOK, rsp)
	case <-gw.chClose:
		c.String(http.StatusServiceUnavailable, mprpc.ErrEndpointClosed.Error())
	case <-c.Request.Context().Done():
	case <-timer.C:
		c.String(http.StatusGatewayTimeout, "timeout")
	}
}

func (gw *Gateway) onHealthz(c *gin.Context) {
	if gw.closed.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "closed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (gw *Gateway) onStats(c *gin.Context) {
	if gw.stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stats not available"})
		return
	}
	c.JSON(http.StatusOK, gw.stats())
}

// NewGateway returns an unbound gateway; use Handler to serve it.
func NewGateway(stats func() mprpc.Stats, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	gw := &Gateway{
		engine:  gin.New(),
		stats:   stats,
		timeout: timeout,
		chCall:  make(chan *call),
		chClose: make(chan struct{}),
	}
	gw.engine.Use(gin.Recovery())
	gw.engine.POST("/rpc", gw.onRPC)
	gw.engine.GET("/healthz", gw.onHealthz)
	gw.engine.GET("/stats", gw.onStats)
	return gw
}
