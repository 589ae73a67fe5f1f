// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"time"

	"github.com/azzy13/mprpc"
	"github.com/azzy13/mprpc/log"
)

// Logger logs every request with its reply and cost.
func Logger() mprpc.HandlerFunc {
	return func(ctx *mprpc.Context) {
		t := time.Now()

		ctx.Next()

		reply, _ := ctx.Reply()
		cost := time.Since(t).Microseconds()
		tag := ""
		if ctx.Handler != nil {
			tag = ctx.Handler.LogTag()
		}

		switch {
		case ctx.Err != nil:
			log.Warn("%v %q,\t%v,\t%v us cost", tag, ctx.Message, ctx.Err, cost)
		case reply == mprpc.ReplyUnrecognized:
			log.Warn("%v %q,\tunrecognized,\t%v us cost", tag, ctx.Message, cost)
		default:
			log.Info("%v '%v',\t%q,\t%v us cost", tag, ctx.Verb(), reply, cost)
		}
	}
}
