// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads dispatcher settings from flags, MPRPC_* environment
// variables and an optional mprpc.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/log"
	"github.com/azzy13/mprpc/transport"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix .
const EnvPrefix = "MPRPC"

// Defaults.
const (
	DefaultPort        = "5557"
	DefaultLogLevel    = "info"
	DefaultServiceName = "mprpc"
	DefaultRegisterTTL = 10 * time.Second
)

// Config holds the dispatcher configuration
type Config struct {
	Port            string        `mapstructure:"port"`
	Transport       string        `mapstructure:"transport"`
	HTTP            string        `mapstructure:"http"`
	LogLevel        string        `mapstructure:"log-level"`
	ForwardPutReply bool          `mapstructure:"forward-put-reply"`
	Tracing         bool          `mapstructure:"tracing"`
	KCPKey          string        `mapstructure:"kcp-key"`
	KCPSalt         string        `mapstructure:"kcp-salt"`
	TLSCert         string        `mapstructure:"tls-cert"`
	TLSKey          string        `mapstructure:"tls-key"`
	Etcd            []string      `mapstructure:"etcd"`
	Redis           string        `mapstructure:"redis"`
	ServiceName     string        `mapstructure:"service-name"`
	Advertise       string        `mapstructure:"advertise"`
	RegisterTTL     time.Duration `mapstructure:"register-ttl"`

	// ConfigFile is the file the settings were read from, "" if none.
	ConfigFile string `mapstructure:"-"`
}

// NewFlagSet returns the dispatcher flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("port", "p", DefaultPort, "port to bind the reply endpoint to")
	fs.String("transport", transport.ZMQ, "endpoint transport: "+strings.Join(transport.Names, "|"))
	fs.String("http", "", "port of the HTTP gateway, empty disables it")
	fs.String("log-level", DefaultLogLevel, "all|debug|info|warn|error|none")
	fs.Bool("forward-put-reply", false, "reply to PUT with the handler's return value instead of \"ack\"")
	fs.Bool("tracing", false, "record an opentracing span per request")
	fs.String("kcp-key", "", "kcp encryption pass, required by the kcp transport")
	fs.String("kcp-salt", transport.DefaultKCPSalt, "kcp encryption salt")
	fs.String("tls-cert", "", "quic certificate file, self-signed when empty")
	fs.String("tls-key", "", "quic private key file")
	fs.StringSlice("etcd", nil, "etcd endpoints to register the service with")
	fs.String("redis", "", "redis address to register the service with")
	fs.String("service-name", DefaultServiceName, "registered service name")
	fs.String("advertise", "", "registered address, defaults to <hostname>:<port>")
	fs.Duration("register-ttl", DefaultRegisterTTL, "registration ttl")
	fs.StringP("config", "c", "", "config file, defaults to mprpc.yaml in . or /etc/mprpc/")
	return fs
}

// Load parses args and merges environment and config file settings.
// pflag.ErrHelp is returned as is.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("mprpcd")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file, _ := fs.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("mprpc")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mprpc/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	return cfg, cfg.Validate()
}

// Validate checks the settings and fills derived defaults.
func (c *Config) Validate() error {
	if _, err := mprpc.BindAddr(c.Port); err != nil {
		return err
	}
	if c.HTTP != "" {
		if _, err := mprpc.BindAddr(c.HTTP); err != nil {
			return fmt.Errorf("http: %w", err)
		}
		if c.HTTP == c.Port && !transport.Datagram(c.Transport) {
			return fmt.Errorf("http: port %v already used by the %v endpoint", c.HTTP, c.Transport)
		}
	}
	if !transport.Valid(c.Transport) {
		return fmt.Errorf("invalid transport %q, want one of %v", c.Transport, strings.Join(transport.Names, "|"))
	}
	if c.Transport == transport.KCP && c.KCPKey == "" {
		return errors.New("kcp transport requires --kcp-key")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("--tls-cert and --tls-key must be set together")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Registering() {
		if c.ServiceName == "" {
			c.ServiceName = DefaultServiceName
		}
		if c.RegisterTTL <= 0 {
			c.RegisterTTL = DefaultRegisterTTL
		}
		if c.Advertise == "" {
			host, err := os.Hostname()
			if err != nil {
				return fmt.Errorf("advertise: %w", err)
			}
			c.Advertise = net.JoinHostPort(host, c.Port)
		}
	}
	return nil
}

// Registering reports whether a service registry is configured.
func (c *Config) Registering() bool {
	return len(c.Etcd) > 0 || c.Redis != ""
}

// Level returns the parsed log level.
func (c *Config) Level() int {
	lvl, _ := log.ParseLevel(c.LogLevel)
	return lvl
}
