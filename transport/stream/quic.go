// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"io"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICProto is the ALPN protocol both quic sides negotiate.
const QUICProto = "mprpc"

type quicSession interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	CloseWithError(code quic.ApplicationErrorCode, desc string) error
}

type quicStream interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// quicConn is one quic stream of a session as a net.Conn.
type quicConn struct {
	quicStream
	session quicSession
}

func (c *quicConn) LocalAddr() net.Addr {
	return c.session.LocalAddr()
}

func (c *quicConn) RemoteAddr() net.Addr {
	return c.session.RemoteAddr()
}

func (c *quicConn) Close() error {
	c.quicStream.Close()
	return c.session.CloseWithError(0, "")
}

// quicListener accepts the first stream of each session.
type quicListener struct {
	ln     *quic.Listener
	ctx    context.Context
	cancel context.CancelFunc
}

func (l *quicListener) Accept() (net.Conn, error) {
	for {
		session, err := l.ln.Accept(l.ctx)
		if err != nil {
			return nil, err
		}
		stream, err := session.AcceptStream(l.ctx)
		if err != nil {
			session.CloseWithError(0, "")
			if l.ctx.Err() != nil {
				return nil, net.ErrClosed
			}
			continue
		}
		return &quicConn{quicStream: stream, session: session}, nil
	}
}

func (l *quicListener) Close() error {
	l.cancel()
	return l.ln.Close()
}

func (l *quicListener) Addr() net.Addr {
	return l.ln.Addr()
}

// QUIC returns a factory for quic endpoints. The server uses cert, or a
// generated self-signed certificate when cert is nil. Peers are not
// verified, tls only encrypts the stream.
func QUIC(cert *tls.Certificate) (*Factory, error) {
	if cert == nil {
		c, err := SelfSignedCert()
		if err != nil {
			return nil, err
		}
		cert = &c
	}
	serverConf := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		NextProtos:   []string{QUICProto},
	}
	clientConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{QUICProto},
	}

	return &Factory{
		name: "quic",
		listen: func(addr string) (net.Listener, error) {
			ln, err := quic.ListenAddr(addr, serverConf, nil)
			if err != nil {
				return nil, err
			}
			ctx, cancel := context.WithCancel(context.Background())
			return &quicListener{ln: ln, ctx: ctx, cancel: cancel}, nil
		},
		dial: func(addr string) (net.Conn, error) {
			ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
			defer cancel()
			session, err := quic.DialAddr(ctx, addr, clientConf, nil)
			if err != nil {
				return nil, err
			}
			stream, err := session.OpenStreamSync(ctx)
			if err != nil {
				session.CloseWithError(0, "")
				return nil, err
			}
			return &quicConn{quicStream: stream, session: session}, nil
		},
	}, nil
}

// SelfSignedCert generates an ECDSA certificate valid for one year.
func SelfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}
	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
