// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/azzy13/mprpc"
)

const (
	// HeadLen is the length of the body length prefix.
	HeadLen int = 4

	// MaxBodyLen limit
	MaxBodyLen int = 1024 * 1024 * 4
)

// Header is the little-endian body length prefix of a frame.
type Header []byte

// BodyLen returns length of frame body.
func (h Header) BodyLen() int {
	return int(binary.LittleEndian.Uint32(h[:HeadLen]))
}

// SetBodyLen .
func (h Header) SetBodyLen(l int) {
	binary.LittleEndian.PutUint32(h[:HeadLen], uint32(l))
}

// ReadFrame reads one frame and returns its body.
func ReadFrame(r io.Reader) (string, error) {
	head := Header(make([]byte, HeadLen))
	if _, err := io.ReadFull(r, head); err != nil {
		return "", err
	}

	l := head.BodyLen()
	if l < 0 || l > MaxBodyLen {
		return "", fmt.Errorf("%w: %v", mprpc.ErrInvalidBodyLen, l)
	}
	if l == 0 {
		return "", nil
	}

	body := make([]byte, l)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", err
	}
	return string(body), nil
}

// WriteFrame writes body as one frame.
func WriteFrame(w io.Writer, body string) error {
	if len(body) > MaxBodyLen {
		return fmt.Errorf("%w: %v", mprpc.ErrInvalidBodyLen, len(body))
	}
	buf := make([]byte, HeadLen+len(body))
	Header(buf).SetBodyLen(len(body))
	copy(buf[HeadLen:], body)
	_, err := w.Write(buf)
	return err
}
