// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/azzy13/mprpc"
	"github.com/stretchr/testify/require"
)

func freeTCPPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
}

func freeUDPPort(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	return strconv.Itoa(pc.LocalAddr().(*net.UDPAddr).Port)
}

// serve binds an Impl on port and runs a reactor until the test ends.
func serve(t *testing.T, f *Factory, port string) {
	t.Helper()
	impl := mprpc.NewImpl()
	require.NoError(t, impl.Bind(f, port))

	reactor := mprpc.NewReactor()
	_, err := reactor.Register(impl)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	chErr := make(chan error, 1)
	go func() { chErr <- reactor.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-chErr
		reactor.Close()
		impl.Close()
	})
}

func dial(t *testing.T, f *Factory, port string) *mprpc.Client {
	t.Helper()
	client, err := mprpc.NewClient(func() (mprpc.Conn, error) {
		return f.Dial(f.Name() + "://127.0.0.1:" + port)
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func exercise(t *testing.T, client *mprpc.Client) {
	t.Helper()
	rsp, err := client.Call("GET hello")
	require.NoError(t, err)
	require.Equal(t, "hello", rsp)

	rsp, err = client.Put("foo", "bar")
	require.NoError(t, err)
	require.Equal(t, mprpc.ReplyPutAck, rsp)

	rsp, err = client.Call("DELETE foo")
	require.NoError(t, err)
	require.Equal(t, mprpc.ReplyUnrecognized, rsp)

	rsp, err = client.Call("")
	require.NoError(t, err)
	require.Equal(t, mprpc.ReplyUnrecognized, rsp)
}

func TestFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteFrame(buf, "GET hello"))
	require.NoError(t, WriteFrame(buf, ""))
	require.Equal(t, HeadLen*2+len("GET hello"), buf.Len())

	msg, err := ReadFrame(buf)
	require.NoError(t, err)
	require.Equal(t, "GET hello", msg)

	msg, err = ReadFrame(buf)
	require.NoError(t, err)
	require.Equal(t, "", msg)

	_, err = ReadFrame(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestFrame_TooLarge(t *testing.T) {
	require.ErrorIs(t, WriteFrame(&bytes.Buffer{}, strings.Repeat("x", MaxBodyLen+1)), mprpc.ErrInvalidBodyLen)

	head := Header(make([]byte, HeadLen))
	head.SetBodyLen(MaxBodyLen + 1)
	_, err := ReadFrame(bytes.NewReader(head))
	require.ErrorIs(t, err, mprpc.ErrInvalidBodyLen)
}

func TestFrame_Truncated(t *testing.T) {
	head := Header(make([]byte, HeadLen))
	head.SetBodyLen(10)
	_, err := ReadFrame(bytes.NewReader(append(head, "short"...)))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestTCP(t *testing.T) {
	f := TCP()
	port := freeTCPPort(t)
	serve(t, f, port)
	exercise(t, dial(t, f, port))
}

func TestTCP_NextPeer(t *testing.T) {
	f := TCP()
	port := freeTCPPort(t)
	serve(t, f, port)

	for i := 0; i < 3; i++ {
		client, err := mprpc.NewClient(func() (mprpc.Conn, error) {
			return f.Dial("tcp://127.0.0.1:" + port)
		})
		require.NoError(t, err)

		key := "peer" + strconv.Itoa(i)
		rsp, err := client.Get(key)
		require.NoError(t, err)
		require.Equal(t, key, rsp)
		require.NoError(t, client.Close())
	}
}

func TestTCP_BadFrameDropsPeer(t *testing.T) {
	f := TCP()
	port := freeTCPPort(t)
	serve(t, f, port)

	conn, err := net.Dial("tcp", "127.0.0.1:"+port)
	require.NoError(t, err)
	head := Header(make([]byte, HeadLen))
	head.SetBodyLen(MaxBodyLen + 1)
	_, err = conn.Write(head)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
	conn.Close()

	exercise(t, dial(t, f, port))
}

func TestTCP_PortInUse(t *testing.T) {
	f := TCP()
	port := freeTCPPort(t)

	first := mprpc.NewImpl()
	require.NoError(t, first.Bind(f, port))
	defer first.Close()

	require.Error(t, mprpc.NewImpl().Bind(f, port))
}

func TestEndpoint_Close(t *testing.T) {
	ep, err := TCP().Listen("tcp://127.0.0.1:0")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ep.Addr(), "tcp://127.0.0.1:"))

	require.ErrorIs(t, ep.Send("nobody asked"), mprpc.ErrInvalidState)

	chErr := make(chan error, 1)
	go func() {
		_, err := ep.Recv()
		chErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())

	select {
	case err := <-chErr:
		require.ErrorIs(t, err, mprpc.ErrEndpointClosed)
	case <-time.After(3 * time.Second):
		t.Fatal("Recv not unblocked by Close")
	}
}

func TestKCP(t *testing.T) {
	_, err := KCP("", "salt")
	require.Error(t, err)

	f, err := KCP("test pass", "test salt")
	require.NoError(t, err)
	require.Equal(t, "kcp", f.Name())

	port := freeUDPPort(t)
	serve(t, f, port)
	exercise(t, dial(t, f, port))
}

func TestUTP(t *testing.T) {
	f := UTP()
	require.Equal(t, "utp", f.Name())

	port := freeUDPPort(t)
	serve(t, f, port)
	exercise(t, dial(t, f, port))
}

func TestQUIC(t *testing.T) {
	f, err := QUIC(nil)
	require.NoError(t, err)
	require.Equal(t, "quic", f.Name())

	port := freeUDPPort(t)
	serve(t, f, port)
	exercise(t, dial(t, f, port))
}

func TestQUIC_NextPeer(t *testing.T) {
	cert, err := SelfSignedCert()
	require.NoError(t, err)
	f, err := QUIC(&cert)
	require.NoError(t, err)

	port := freeUDPPort(t)
	serve(t, f, port)

	for i := 0; i < 2; i++ {
		client := dial(t, f, port)
		key := "peer" + strconv.Itoa(i)
		rsp, err := client.Get(key)
		require.NoError(t, err)
		require.Equal(t, key, rsp)
		require.NoError(t, client.Close())
	}
}
