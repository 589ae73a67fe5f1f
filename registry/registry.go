// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package registry announces a running dispatcher to a service registry so
// clients can find it.
package registry

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultNamespace is the key prefix services are registered under.
const DefaultNamespace = "mprpc"

var (
	// ErrInvalidService .
	ErrInvalidService = errors.New("invalid service")
	// ErrNoRegistryAddr .
	ErrNoRegistryAddr = errors.New("no registry address")
)

// Register is a live registration; Stop withdraws it.
type Register interface {
	Stop() error
}

// Service describes one registered endpoint.
type Service struct {
	Namespace string
	Name      string
	Addr      string
	Weight    int
}

// Validate fills defaults and rejects services that cannot form a key.
func (s *Service) Validate() error {
	if s.Namespace == "" {
		s.Namespace = DefaultNamespace
	}
	if s.Weight <= 0 {
		s.Weight = 1
	}
	if s.Name == "" || s.Addr == "" {
		return fmt.Errorf("%w: name and addr are required", ErrInvalidService)
	}
	if strings.Contains(s.Name, "/") {
		return fmt.Errorf("%w: name %q contains '/'", ErrInvalidService, s.Name)
	}
	return nil
}

// Key is "<namespace>/<name>/<addr>".
func (s Service) Key() string {
	return s.Namespace + "/" + s.Name + "/" + s.Addr
}

// Field is "<name>/<addr>/<weight>", the hash field of a namespace.
func (s Service) Field() string {
	return fmt.Sprintf("%v/%v/%v", s.Name, s.Addr, s.Weight)
}

// ParseField splits a Field back into name, addr and weight.
func ParseField(field string) (name, addr, weight string, ok bool) {
	strs := strings.Split(field, "/")
	if len(strs) != 3 {
		return "", "", "", false
	}
	return strs[0], strs[1], strs[2], true
}
