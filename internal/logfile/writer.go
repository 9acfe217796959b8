// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package logfile formats log records and writes them to a storage handle
// with an amortized flush.
package logfile

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/relabs-tech/stratus_logger/internal/storage"
)

// DefaultFlushEvery is the nominal number of samples between flushes.
const DefaultFlushEvery = 1000

// Writer appends records to one open file. It is not safe for concurrent
// use.
//
// The flush decision uses the expected sample index elapsed × rate rather
// than the number of records written, so the durability window stays about
// flushEvery / rate seconds even when the loop overruns.
type Writer struct {
	h          storage.Handle
	rate       float64
	flushEvery int64
	bucket     int64
	records    int
	buf        []byte
}

// NewWriter wraps h. rate is the target sample rate in Hz.
func NewWriter(h storage.Handle, rate float64, flushEvery int) *Writer {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	return &Writer{
		h:          h,
		rate:       rate,
		flushEvery: int64(flushEvery),
		bucket:     -1,
		buf:        make([]byte, 0, 160),
	}
}

// WriteHeader writes the column header line.
func (w *Writer) WriteHeader() error {
	if _, err := w.h.Write([]byte(Header + "\n")); err != nil {
		return errors.Wrap(err, "write header")
	}
	return nil
}

// Annotate writes a "# ..." comment line.
func (w *Writer) Annotate(format string, args ...interface{}) error {
	line := "# " + fmt.Sprintf(format, args...) + "\n"
	if _, err := w.h.Write([]byte(line)); err != nil {
		return errors.Wrap(err, "write annotation")
	}
	return nil
}

// Append writes r. elapsed is the time since logger start in seconds; the
// handle is flushed whenever elapsed × rate crosses a multiple of
// flushEvery.
func (w *Writer) Append(r Record, elapsed float64) error {
	w.buf = r.AppendTo(w.buf[:0])
	if _, err := w.h.Write(w.buf); err != nil {
		return errors.Wrapf(err, "write record %d", w.records+1)
	}
	w.records++

	bucket := int64(elapsed*w.rate) / w.flushEvery
	if bucket != w.bucket {
		first := w.bucket < 0
		w.bucket = bucket
		if !first {
			if err := w.h.Flush(); err != nil {
				return errors.Wrap(err, "flush")
			}
		}
	}
	return nil
}

// Records is the number of records appended.
func (w *Writer) Records() int { return w.records }

// Flush flushes the handle.
func (w *Writer) Flush() error {
	return w.h.Flush()
}

// Close flushes and closes the handle.
func (w *Writer) Close() error {
	return w.h.Close()
}
