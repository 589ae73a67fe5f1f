// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package redis registers a service as a hash field whose value is the
// unix time it expires at; a ticker pushes the expiry forward.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/azzy13/mprpc/log"
	"github.com/azzy13/mprpc/registry"
	"github.com/azzy13/mprpc/util"
	redis "github.com/go-redis/redis/v8"
)

// Defaults.
const (
	DefaultInterval = time.Second * 5
	DefaultTimeout  = time.Second * 3
)

// Register .
type Register struct {
	svc      registry.Service
	field    string
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
	interval time.Duration
	expire   time.Duration
	client   *redis.Client
}

func (s *Register) keepalive() {
	defer close(s.exited)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
			err := s.client.HSet(ctx, s.svc.Namespace, s.field, time.Now().Add(s.expire).Unix()).Err()
			cancel()
			if err != nil {
				log.Warn("[MPRPC REDIS] Register %v keepalive failed: %v", s.field, err)
			}
		}
	}
}

// Stop deletes the field and closes the client.
func (s *Register) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		// a refresh still in flight would restore the field
		<-s.exited

		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		if err = s.client.HDel(ctx, s.svc.Namespace, s.field).Err(); err != nil {
			log.Error("[MPRPC REDIS] Register Stop failed: %v", err)
		}
		s.client.Close()
	})
	return err
}

// NewRegister sets svc.Field() in the svc.Namespace hash of the redis server
// at addr and refreshes it every interval.
func NewRegister(addr string, svc registry.Service, interval, expire time.Duration) (*Register, error) {
	if addr == "" {
		return nil, registry.ErrNoRegistryAddr
	}
	if err := svc.Validate(); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if expire <= interval {
		expire = interval + time.Second*5
	}

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: DefaultTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	field := svc.Field()
	err := client.HSet(ctx, svc.Namespace, field, time.Now().Add(expire).Unix()).Err()
	if err != nil {
		log.Error("[MPRPC REDIS] NewRegister [%v: %v] client.HSet failed: %v", svc.Namespace, field, err)
		client.Close()
		return nil, err
	}

	register := &Register{
		svc:      svc,
		field:    field,
		interval: interval,
		expire:   expire,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		client:   client,
	}

	log.Info("[MPRPC REDIS] NewRegister [%v: %v] success", svc.Namespace, field)

	util.Go(register.keepalive)

	return register, nil
}
