// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package router provides Reactor middlewares.
package router

import (
	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/util"
)

// Recover stops a panic in the rest of the chain from reaching the Reactor.
// The chain is aborted and the request is answered with the default reply.
func Recover(ctx *mprpc.Context) {
	if err := util.Safe(ctx.Next); err != nil {
		ctx.Fail(err)
	}
}
