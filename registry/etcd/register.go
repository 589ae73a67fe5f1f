// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package etcd registers a service under an etcd lease kept alive for as
// long as the process runs.
package etcd

import (
	"context"
	"strconv"
	"time"

	"github.com/azzy13/mprpc/log"
	"github.com/azzy13/mprpc/registry"
	"github.com/azzy13/mprpc/util"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// DialTimeout .
var DialTimeout = 5 * time.Second

// DefaultTTL in seconds.
const DefaultTTL int64 = 10

// Register .
type Register struct {
	key         string
	value       string
	client      *clientv3.Client
	leaseID     clientv3.LeaseID
	cancel      context.CancelFunc
	chKeepalive <-chan *clientv3.LeaseKeepAliveResponse
}

// listenTTL drains keepalive responses until the lease is revoked or lost.
func (s *Register) listenTTL() {
	for resp := range s.chKeepalive {
		log.Debug("[MPRPC ETCD] Register %v keepalive, ttl: %v", s.key, resp.TTL)
	}
	log.Info("[MPRPC ETCD] Register %v listenTTL exit", s.key)
}

// Stop revokes the lease, which deletes the key.
func (s *Register) Stop() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()
	if _, err := s.client.Revoke(ctx, s.leaseID); err != nil {
		log.Error("[MPRPC ETCD] Register %v Stop failed: %v", s.key, err)
		s.client.Close()
		return err
	}
	return s.client.Close()
}

// NewRegister puts svc.Key() with the service weight as value under a lease
// of ttl seconds and keeps the lease alive.
func NewRegister(endpoints []string, svc registry.Service, ttl int64) (*Register, error) {
	if len(endpoints) == 0 {
		return nil, registry.ErrNoRegistryAddr
	}
	if err := svc.Validate(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key, value := svc.Key(), strconv.Itoa(svc.Weight)

	// step 1: new client
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: DialTimeout,
	})
	if err != nil {
		log.Error("[MPRPC ETCD] NewRegister [%v, %v] clientv3.New failed: %v", key, value, err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()

	// step 2: generate ttl
	resp, err := client.Grant(ctx, ttl)
	if err != nil {
		log.Error("[MPRPC ETCD] NewRegister [%v, %v] client.Grant failed: %v", key, value, err)
		client.Close()
		return nil, err
	}

	// step 3: set kv
	_, err = client.Put(ctx, key, value, clientv3.WithLease(resp.ID))
	if err != nil {
		log.Error("[MPRPC ETCD] NewRegister [%v, %v] client.Put failed: %v", key, value, err)
		client.Close()
		return nil, err
	}

	// step 4: keepalive, until Stop
	kaCtx, kaCancel := context.WithCancel(context.Background())
	chKeepalive, err := client.KeepAlive(kaCtx, resp.ID)
	if err != nil {
		log.Error("[MPRPC ETCD] NewRegister [%v, %v] client.KeepAlive failed: %v", key, value, err)
		kaCancel()
		client.Close()
		return nil, err
	}

	register := &Register{
		key:         key,
		value:       value,
		client:      client,
		leaseID:     resp.ID,
		cancel:      kaCancel,
		chKeepalive: chKeepalive,
	}

	log.Info("[MPRPC ETCD] NewRegister [%v, %v] success", key, value)

	util.Go(register.listenTTL)

	return register, nil
}
