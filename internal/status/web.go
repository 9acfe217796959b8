package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	clientBuffer = 16
	writeTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Web serves the latest status snapshot on /api/status and streams events
// to websocket clients on /ws. A client that falls behind loses events.
type Web struct {
	mu      sync.Mutex
	snap    Snapshot
	clients map[chan Event]struct{}
}

// NewWeb returns a server with no clients.
func NewWeb() *Web {
	return &Web{clients: make(map[chan Event]struct{})}
}

// Report implements Reporter.
func (w *Web) Report(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snap.Apply(ev)
	for ch := range w.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Clients returns the number of connected websocket clients.
func (w *Web) Clients() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clients)
}

// Handler returns the HTTP routes.
func (w *Web) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", w.serveStatus)
	mux.HandleFunc("/ws", w.serveWS)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (w *Web) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: w.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infof("web: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, "web: listen %s", addr)
	}
	return nil
}

func (w *Web) serveStatus(rw http.ResponseWriter, _ *http.Request) {
	w.mu.Lock()
	snap := w.snap
	w.mu.Unlock()

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(snap); err != nil {
		log.WithError(err).Warn("web: encode status")
	}
}

func (w *Web) serveWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.WithError(err).Warn("web: upgrade")
		return
	}
	ch := w.join()
	defer func() {
		w.leave(ch)
		conn.Close()
	}()

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("web: client write")
				return
			}
		}
	}
}

func (w *Web) join() chan Event {
	ch := make(chan Event, clientBuffer)
	w.mu.Lock()
	w.clients[ch] = struct{}{}
	n := len(w.clients)
	w.mu.Unlock()
	log.Debugf("web: client joined (%d connected)", n)
	return ch
}

func (w *Web) leave(ch chan Event) {
	w.mu.Lock()
	delete(w.clients, ch)
	n := len(w.clients)
	w.mu.Unlock()
	log.Debugf("web: client left (%d connected)", n)
}
