// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command mprpcd serves GET/PUT requests on one reply endpoint until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/config"
	"github.com/azzy13/mprpc/log"
	"github.com/azzy13/mprpc/middleware/router"
	"github.com/azzy13/mprpc/middleware/tracing"
	"github.com/azzy13/mprpc/registry"
	"github.com/azzy13/mprpc/registry/etcd"
	"github.com/azzy13/mprpc/registry/redis"
	"github.com/azzy13/mprpc/transport"
	"github.com/azzy13/mprpc/transport/httpgw"
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/spf13/pflag"
)

func main() {
	log.Info("Main: parse command line arguments")
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Error("Main: %v", err)
		os.Exit(1)
	}
	log.SetLogLevel(cfg.Level())
	if cfg.ConfigFile != "" {
		log.Info("Main: using config file %v", cfg.ConfigFile)
	}

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Main: using the %v transport", cfg.Transport)
	factory, err := transport.New(cfg.Transport, transport.Options{
		Context: ctx,
		KCPKey:  cfg.KCPKey,
		KCPSalt: cfg.KCPSalt,
		TLSCert: cfg.TLSCert,
		TLSKey:  cfg.TLSKey,
	})
	if err != nil {
		log.Error("Main: %v", err)
		return 1
	}

	log.Info("Main: obtain the reactor")
	reactor := mprpc.NewReactor()
	reactor.ForwardPutReply = cfg.ForwardPutReply
	reactor.Use(router.Recover)
	reactor.Use(router.Logger())
	if cfg.Tracing {
		tracer := tracing.NewTracer(nil)
		opentracing.SetGlobalTracer(tracer)
		reactor.Use(tracing.Middleware(tracer))
	}
	defer reactor.Close()

	log.Info("Main: instantiate the server implementation")
	impl := mprpc.NewImpl()

	log.Info("Main: bind the server to port %v", cfg.Port)
	if err := impl.Bind(factory, cfg.Port); err != nil {
		log.Error("Main: %v", err)
		return 1
	}
	defer impl.Close()

	log.Info("Main: register impl with the reactor for incoming requests")
	if _, err := reactor.Register(impl); err != nil {
		log.Error("Main: %v", err)
		return 1
	}

	if cfg.HTTP != "" {
		if cfg.Level() > log.LogLevelDebug {
			gin.SetMode(gin.ReleaseMode)
		}
		gw := mprpc.NewImpl()
		gw.SetLogTag("[MPRPC HTTP IMPL]")
		log.Info("Main: bind the http gateway to port %v", cfg.HTTP)
		if err := gw.Bind(&httpgw.Factory{Stats: reactor.Stats}, cfg.HTTP); err != nil {
			log.Error("Main: %v", err)
			return 1
		}
		defer gw.Close()
		if _, err := reactor.Register(gw); err != nil {
			log.Error("Main: %v", err)
			return 1
		}
	}

	if cfg.Registering() {
		registers, err := register(cfg)
		if err != nil {
			log.Error("Main: %v", err)
			return 1
		}
		defer func() {
			for _, r := range registers {
				r.Stop()
			}
		}()
	}

	log.Info("Main: start the event loop")
	err = reactor.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("Main: shutting down, stats: %+v", reactor.Stats())
		return 0
	case err != nil:
		log.Error("Main: event loop exit: %v", err)
		return 1
	}
	return 0
}

func register(cfg *config.Config) ([]registry.Register, error) {
	svc := registry.Service{Name: cfg.ServiceName, Addr: cfg.Advertise}
	registers := []registry.Register{}

	if len(cfg.Etcd) > 0 {
		r, err := etcd.NewRegister(cfg.Etcd, svc, int64(cfg.RegisterTTL.Seconds()))
		if err != nil {
			return nil, err
		}
		registers = append(registers, r)
	}

	if cfg.Redis != "" {
		r, err := redis.NewRegister(cfg.Redis, svc, cfg.RegisterTTL/2, cfg.RegisterTTL)
		if err != nil {
			for _, r := range registers {
				r.Stop()
			}
			return nil, err
		}
		registers = append(registers, r)
	}

	return registers, nil
}
