// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/log"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory so no stray mprpc.yaml is read.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, "zmq", cfg.Transport)
	require.Equal(t, "", cfg.HTTP)
	require.Equal(t, log.LogLevelInfo, cfg.Level())
	require.False(t, cfg.ForwardPutReply)
	require.False(t, cfg.Registering())
	require.Equal(t, "", cfg.ConfigFile)
}

func TestLoad_Flags(t *testing.T) {
	isolate(t)

	cfg, err := Load([]string{"-p", "6000", "--transport", "tcp", "--http", "8080",
		"--log-level", "debug", "--forward-put-reply", "--etcd", "a:2379,b:2379", "--advertise", "10.0.0.1:6000"})
	require.NoError(t, err)
	require.Equal(t, "6000", cfg.Port)
	require.Equal(t, "tcp", cfg.Transport)
	require.Equal(t, "8080", cfg.HTTP)
	require.Equal(t, log.LogLevelDebug, cfg.Level())
	require.True(t, cfg.ForwardPutReply)
	require.Equal(t, []string{"a:2379", "b:2379"}, cfg.Etcd)
	require.True(t, cfg.Registering())
	require.Equal(t, DefaultServiceName, cfg.ServiceName)
	require.Equal(t, "10.0.0.1:6000", cfg.Advertise)
	require.Equal(t, DefaultRegisterTTL, cfg.RegisterTTL)
}

func TestLoad_Env(t *testing.T) {
	isolate(t)
	t.Setenv("MPRPC_PORT", "7000")
	t.Setenv("MPRPC_LOG_LEVEL", "warn")
	t.Setenv("MPRPC_REGISTER_TTL", "30s")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "7000", cfg.Port)
	require.Equal(t, log.LogLevelWarn, cfg.Level())
	require.Equal(t, 30*time.Second, cfg.RegisterTTL)

	cfg, err = Load([]string{"--port", "7001"})
	require.NoError(t, err)
	require.Equal(t, "7001", cfg.Port)
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	data := "port: \"5600\"\ntransport: ws\nservice-name: kv\nredis: 127.0.0.1:6379\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mprpc.yaml"), []byte(data), 0o644))

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "5600", cfg.Port)
	require.Equal(t, "ws", cfg.Transport)
	require.Equal(t, "kv", cfg.ServiceName)
	require.Equal(t, "127.0.0.1:6379", cfg.Redis)
	require.NotEmpty(t, cfg.Advertise)
	require.Equal(t, "mprpc.yaml", filepath.Base(cfg.ConfigFile))

	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("port: \"5601\"\n"), 0o644))
	cfg, err = Load([]string{"--config", other})
	require.NoError(t, err)
	require.Equal(t, "5601", cfg.Port)

	_, err = Load([]string{"--config", filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)

	_, err := Load([]string{"--port", "0"})
	require.ErrorIs(t, err, mprpc.ErrInvalidPort)

	_, err = Load([]string{"--port", "abc"})
	require.ErrorIs(t, err, mprpc.ErrInvalidPort)

	_, err = Load([]string{"--http", "70000"})
	require.ErrorIs(t, err, mprpc.ErrInvalidPort)

	_, err = Load([]string{"--http", DefaultPort})
	require.Error(t, err)

	_, err = Load([]string{"--transport", "sctp"})
	require.Error(t, err)

	_, err = Load([]string{"--transport", "quic", "--tls-cert", "cert.pem"})
	require.Error(t, err)

	_, err = Load([]string{"--transport", "kcp"})
	require.Error(t, err)

	_, err = Load([]string{"--log-level", "loud"})
	require.Error(t, err)

	_, err = Load([]string{"--no-such-flag"})
	require.Error(t, err)

	_, err = Load([]string{"--help"})
	require.ErrorIs(t, err, pflag.ErrHelp)
}

func TestValidate_KCPSharesPortWithHTTP(t *testing.T) {
	cfg := &Config{Port: "5557", HTTP: "5557", Transport: "kcp", KCPKey: "k", LogLevel: "info"}
	require.NoError(t, cfg.Validate())

	cfg = &Config{Port: "5557", HTTP: "5557", Transport: "quic", LogLevel: "info"}
	require.NoError(t, cfg.Validate())

	cfg = &Config{Port: "5557", HTTP: "5557", Transport: "nbio", LogLevel: "info"}
	require.Error(t, cfg.Validate())
}
