// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package eventloop

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/transport/stream"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
}

func serve(t *testing.T, port string) {
	t.Helper()
	impl := mprpc.NewImpl()
	require.NoError(t, impl.Bind(&Factory{}, port))

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

func dial(t *testing.T, port string) *mprpc.Client {
	t.Helper()
	f := &Factory{}
	client, err := mprpc.NewClient(func() (mprpc.Conn, error) {
		return f.Dial("tcp://127.0.0.1:" + port)
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestEventLoop(t *testing.T) {
	port := freePort(t)
	serve(t, port)
	client := dial(t, port)

	rsp, err := client.Call("GET hello")
	require.NoError(t, err)
	require.Equal(t, "hello", rsp)

	rsp, err = client.Put("foo", "bar")
	require.NoError(t, err)
	require.Equal(t, mprpc.ReplyPutAck, rsp)

	rsp, err = client.Call("DELETE foo")
	require.NoError(t, err)
	require.Equal(t, mprpc.ReplyUnrecognized, rsp)
}

func TestEventLoop_ConcurrentPeers(t *testing.T) {
	port := freePort(t)
	serve(t, port)

	clients := make([]*mprpc.Client, 4)
	for i := range clients {
		clients[i] = dial(t, port)
	}

	chErr := make(chan error, len(clients))
	for i, client := range clients {
		key := "peer" + strconv.Itoa(i)
		go func(client *mprpc.Client) {
			for j := 0; j < 10; j++ {
				rsp, err := client.Get(key)
				if err == nil && rsp != key {
					err = &mismatchError{want: key, got: rsp}
				}
				if err != nil {
					chErr <- err
					return
				}
			}
			chErr <- nil
		}(client)
	}
	for range clients {
		select {
		case err := <-chErr:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("peers not served")
		}
	}
}

type mismatchError struct {
	want, got string
}

func (e *mismatchError) Error() string {
	return "reply " + strconv.Quote(e.got) + ", want " + strconv.Quote(e.want)
}

func TestEventLoop_PartialFrames(t *testing.T) {
	port := freePort(t)
	serve(t, port)

	conn, err := net.Dial("tcp", "127.0.0.1:"+port)
	require.NoError(t, err)
	defer conn.Close()

	msg := "GET split"
	head := stream.Header(make([]byte, stream.HeadLen))
	head.SetBodyLen(len(msg))
	frame := append([]byte(head), msg...)
	for _, b := range frame {
		_, err := conn.Write([]byte{b})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	rsp, err := stream.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, "split", rsp)
}

func TestEventLoop_BadFrameDropsPeer(t *testing.T) {
	port := freePort(t)
	serve(t, port)

	conn, err := net.Dial("tcp", "127.0.0.1:"+port)
	require.NoError(t, err)
	head := stream.Header(make([]byte, stream.HeadLen))
	head.SetBodyLen(stream.MaxBodyLen + 1)
	_, err = conn.Write(head)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
	conn.Close()

	rsp, err := dial(t, port).Get("after")
	require.NoError(t, err)
	require.Equal(t, "after", rsp)
}

func TestEndpoint_Close(t *testing.T) {
	ep, err := (&Factory{}).Listen("tcp://127.0.0.1:0")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ep.Addr(), "nbio://127.0.0.1:"))
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
