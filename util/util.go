// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"runtime/debug"

	"github.com/azzy13/mprpc/log"
)

const separator = "---------------------------------------\n"

// Empty struct
type Empty struct{}

// PanicError carries a recovered panic value.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Value)
}

// Recover recovers panic and logs the stack. Must be deferred directly.
func Recover() {
	if err := recover(); err != nil {
		logPanic(err)
	}
}

// Safe calls f with a panic handler; a recovered panic is logged and
// returned as *PanicError.
func Safe(call func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			logPanic(v)
			err = &PanicError{Value: v}
		}
	}()
	call()
	return nil
}

// Go runs f in a new goroutine guarded by Safe.
func Go(call func()) {
	go Safe(call)
}

func logPanic(v interface{}) {
	log.Error("%sruntime error: %v\ntraceback:\n%v\n%v", separator, v, string(debug.Stack()), separator)
}
