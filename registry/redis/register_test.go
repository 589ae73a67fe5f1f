// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package redis

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/azzy13/mprpc/registry"
	"github.com/stretchr/testify/require"
)

var testService = registry.Service{Namespace: "test", Name: "kv", Addr: "127.0.0.1:5557", Weight: 2}

func expiry(t *testing.T, m *miniredis.Miniredis) int64 {
	t.Helper()
	v := m.HGet(testService.Namespace, testService.Field())
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	require.NoError(t, err)
	return n
}

func TestNewRegister_Invalid(t *testing.T) {
	_, err := NewRegister("", registry.Service{Name: "kv", Addr: "127.0.0.1:5557"}, 0, 0)
	require.ErrorIs(t, err, registry.ErrNoRegistryAddr)

	_, err = NewRegister("127.0.0.1:6379", registry.Service{Name: "kv"}, 0, 0)
	require.ErrorIs(t, err, registry.ErrInvalidService)
}

func TestNewRegister_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewRegister(addr, registry.Service{Name: "kv", Addr: "127.0.0.1:5557"}, 0, 0)
	require.Error(t, err)
}

func TestRegister_Keepalive(t *testing.T) {
	m := miniredis.RunT(t)

	start := time.Now()
	r, err := NewRegister(m.Addr(), testService, 50*time.Millisecond, 2*time.Second)
	require.NoError(t, err)
	defer r.Stop()

	first := expiry(t, m)
	require.GreaterOrEqual(t, first, start.Add(2*time.Second).Unix())

	require.Eventually(t, func() bool {
		return expiry(t, m) > first
	}, 3*time.Second, 20*time.Millisecond, "expiry not pushed forward")

	m.HDel(testService.Namespace, testService.Field())
	require.Eventually(t, func() bool {
		return expiry(t, m) != 0
	}, time.Second, 20*time.Millisecond, "field not restored")
}

func TestRegister_Stop(t *testing.T) {
	m := miniredis.RunT(t)

	r, err := NewRegister(m.Addr(), testService, 50*time.Millisecond, 0)
	require.NoError(t, err)
	require.NotZero(t, expiry(t, m))

	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
	require.Zero(t, expiry(t, m))

	time.Sleep(150 * time.Millisecond)
	require.Zero(t, expiry(t, m), "field written after Stop")
}

func TestRegister_StopServerGone(t *testing.T) {
	m, err := miniredis.Run()
	require.NoError(t, err)

	r, err := NewRegister(m.Addr(), testService, time.Second, 0)
	require.NoError(t, err)

	m.Close()
	require.Error(t, r.Stop())
}

var _ registry.Register = (*Register)(nil)
