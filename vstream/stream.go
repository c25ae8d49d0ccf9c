// Package vstream implements a lazy byte-stream reader whose Next() is a
// task body, yielding chunks as a resumable sequence instead of a
// blocking io.Reader call, built on bufio the way idiomatic Go wraps any
// io.Reader that needs buffering.
package vstream

import (
	"bufio"
	"errors"
	"io"

	"github.com/rs/xid"

	"github.com/VennDev/VOsaka/vosaka"
)

// ErrEOF is returned by Next once the underlying reader is exhausted.
var ErrEOF = errors.New("vstream: end of stream")

// ByteStream wraps an io.Reader with a chunked, resumable read interface.
type ByteStream struct {
	ID        xid.ID
	r         *bufio.Reader
	chunkSize int
}

// New wraps r, reading in chunkSize-byte pieces (4096 if chunkSize <= 0).
func New(r io.Reader, chunkSize int) *ByteStream {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	return &ByteStream{ID: xid.New(), r: bufio.NewReaderSize(r, chunkSize), chunkSize: chunkSize}
}

// Next is a Runnable reading up to one chunk. It Checkpoints once per call
// so a loop of spawn(stream.Next()) calls never monopolizes a single
// scheduler step on a slow reader; the actual Read call is a single
// syscall-bounded operation, not something that itself needs to suspend.
func (bs *ByteStream) Next() vosaka.Runnable {
	return vosaka.RunnableFunc(func(y *vosaka.Yielder) (any, error) {
		if err := y.Checkpoint(); err != nil {
			return nil, err
		}
		buf := make([]byte, bs.chunkSize)
		n, err := bs.r.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err == io.EOF {
			return nil, ErrEOF
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrEOF
	})
}

// ReadAll drains the stream to completion via repeated Next() calls,
// concatenating every chunk. It is meant to be spawned or awaited, not
// called directly from outside a scheduler.
func (bs *ByteStream) ReadAll() vosaka.Runnable {
	return vosaka.RunnableFunc(func(y *vosaka.Yielder) (any, error) {
		var out []byte
		for {
			val, err := y.Await(bs.Next())
			if errors.Is(err, ErrEOF) {
				return out, nil
			}
			if err != nil {
				return nil, err
			}
			out = append(out, val.([]byte)...)
		}
	})
}
