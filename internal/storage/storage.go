// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package storage is the removable medium the log files live on.
package storage

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Handle is an open append-only file.
type Handle interface {
	Write(p []byte) (int, error)
	// Flush pushes buffered data to the medium.
	Flush() error
	// Close flushes and releases the file.
	Close() error
}

// Storage opens files by name.
type Storage interface {
	OpenAppend(name string) (Handle, error)
	Exists(name string) bool
}

// Dir stores files under Root on the local filesystem.
type Dir struct {
	Root string
	// BufferSize of the write buffer; 0 uses 64 KiB.
	BufferSize int
}

// OpenAppend opens or creates Root/name for appending.
func (d Dir) OpenAppend(name string) (Handle, error) {
	path := filepath.Join(d.Root, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	size := d.BufferSize
	if size <= 0 {
		size = 64 << 10
	}
	return &fileHandle{f: f, w: bufio.NewWriterSize(f, size)}, nil
}

// Exists reports whether Root/name exists.
func (d Dir) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(d.Root, name))
	return err == nil
}

type fileHandle struct {
	f *os.File
	w *bufio.Writer
}

func (h *fileHandle) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	if err != nil {
		return n, errors.Wrapf(err, "write %s", h.f.Name())
	}
	return n, nil
}

func (h *fileHandle) Flush() error {
	if err := h.w.Flush(); err != nil {
		return errors.Wrapf(err, "flush %s", h.f.Name())
	}
	if err := h.f.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", h.f.Name())
	}
	return nil
}

func (h *fileHandle) Close() error {
	ferr := h.Flush()
	if err := h.f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", h.f.Name())
	}
	return ferr
}
