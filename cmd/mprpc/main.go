// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command mprpc sends one request to an mprpcd and prints the reply.
//
//	mprpc get <key>
//	mprpc put <key> <value>
//	mprpc call <message...>
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/config"
	"github.com/azzy13/mprpc/log"
	"github.com/azzy13/mprpc/transport"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage: mprpc [flags] get <key> | put <key> <value> | call <message...>")

func main() {
	fs := pflag.NewFlagSet("mprpc", pflag.ContinueOnError)
	host := fs.String("host", "localhost", "server host")
	port := fs.StringP("port", "p", config.DefaultPort, "server port")
	name := fs.String("transport", transport.ZMQ, "endpoint transport: "+strings.Join(transport.Names, "|"))
	kcpKey := fs.String("kcp-key", "", "kcp encryption pass")
	kcpSalt := fs.String("kcp-salt", transport.DefaultKCPSalt, "kcp encryption salt")
	timeout := fs.DurationP("timeout", "t", 5*time.Second, "reply timeout")
	level := fs.String("log-level", "warn", "all|debug|info|warn|error|none")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if lvl, err := log.ParseLevel(*level); err == nil {
		log.SetLogLevel(lvl)
	}

	msg, err := request(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	factory, err := transport.New(*name, transport.Options{Context: ctx, KCPKey: *kcpKey, KCPSalt: *kcpSalt})
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	reply, err := call(ctx, factory, "tcp://"+net.JoinHostPort(*host, *port), msg)
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
	fmt.Println(reply)
}

// request builds the request message from the command line arguments.
func request(args []string) (string, error) {
	if len(args) == 0 {
		return "", errUsage
	}

	switch strings.ToLower(args[0]) {
	case "get":
		if len(args) != 2 {
			return "", errUsage
		}
		return mprpc.Get{Key: args[1]}.Encode(), nil
	case "put":
		if len(args) != 3 {
			return "", errUsage
		}
		return mprpc.Put{Key: args[1], Value: args[2]}.Encode(), nil
	case "call":
		if len(args) < 2 {
			return "", errUsage
		}
		return strings.Join(args[1:], " "), nil
	default:
		return "", errUsage
	}
}

func call(ctx context.Context, factory transport.Factory, addr, msg string) (string, error) {
	type result struct {
		reply string
		err   error
	}
	chResult := make(chan result, 1)

	go func() {
		client, err := mprpc.NewClient(func() (mprpc.Conn, error) {
			return factory.Dial(addr)
		})
		if err != nil {
			chResult <- result{err: err}
			return
		}
		defer client.Close()

		reply, err := client.Call(msg)
		chResult <- result{reply: reply, err: err}
	}()

	select {
	case r := <-chResult:
		return r.reply, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("no reply from %v: %w", addr, ctx.Err())
	}
}
