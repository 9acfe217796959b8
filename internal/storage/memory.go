package storage

import (
	"bytes"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrInjected is returned by operations a Memory was told to fail.
var ErrInjected = errors.New("injected storage fault")

// Memory is an in-memory Storage. Writes reach the stored contents only on
// Flush or Close, like a buffered file. The Fail* fields inject faults.
type Memory struct {
	mu    sync.Mutex
	files map[string]*bytes.Buffer

	// FailOpen makes every OpenAppend fail.
	FailOpen bool
	// FailWriteAt makes the n-th Write (1-based, counted per handle) fail.
	FailWriteAt int
	// FailFlush makes every Flush fail.
	FailFlush bool
	// FailClose makes every Close fail after flushing.
	FailClose bool

	flushes int
	closes  int
}

// NewMemory returns an empty Memory, optionally pre-populated with files.
func NewMemory(existing ...string) *Memory {
	m := &Memory{files: make(map[string]*bytes.Buffer)}
	for _, name := range existing {
		m.files[name] = &bytes.Buffer{}
	}
	return m
}

// OpenAppend creates name if needed and returns a handle appending to it.
func (m *Memory) OpenAppend(name string) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailOpen {
		return nil, errors.Wrapf(ErrInjected, "open %s", name)
	}
	if _, ok := m.files[name]; !ok {
		m.files[name] = &bytes.Buffer{}
	}
	return &memHandle{m: m, name: name}, nil
}

// Exists reports whether name was created.
func (m *Memory) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok
}

// Contents returns the flushed data of name.
func (m *Memory) Contents(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.files[name]; ok {
		return b.String()
	}
	return ""
}

// Files lists the stored file names in order.
func (m *Memory) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Flushes counts successful flushes over all handles.
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Closes counts the handles closed so far. Closing an already closed
// handle fails and is not counted.
func (m *Memory) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

type memHandle struct {
	m       *Memory
	name    string
	pending bytes.Buffer
	writes  int
	closed  bool
}

func (h *memHandle) Write(p []byte) (int, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if h.closed {
		return 0, errors.Errorf("write %s: file closed", h.name)
	}
	h.writes++
	if h.m.FailWriteAt > 0 && h.writes == h.m.FailWriteAt {
		return 0, errors.Wrapf(ErrInjected, "write %s", h.name)
	}
	return h.pending.Write(p)
}

func (h *memHandle) Flush() error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.flushLocked()
}

func (h *memHandle) flushLocked() error {
	if h.closed {
		return errors.Errorf("flush %s: file closed", h.name)
	}
	if h.m.FailFlush {
		return errors.Wrapf(ErrInjected, "flush %s", h.name)
	}
	h.m.files[h.name].Write(h.pending.Bytes())
	h.pending.Reset()
	h.m.flushes++
	return nil
}

func (h *memHandle) Close() error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if h.closed {
		return errors.Errorf("close %s: already closed", h.name)
	}
	err := h.flushLocked()
	h.closed = true
	h.m.closes++
	if err != nil {
		return err
	}
	if h.m.FailClose {
		return errors.Wrapf(ErrInjected, "close %s", h.name)
	}
	return nil
}
