package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/roam"
	"github.com/go-wlan/go-wlan/lib/session"
)

// Status is the body of GET /status.
type Status struct {
	Sessions []session.Info `json:"sessions"`
	Stats    roam.Stats     `json:"stats"`
	Clients  int            `json:"clients"`
}

// Server serves the websocket feed on /ws and a JSON status on /status.
type Server struct {
	b    *Broadcaster
	snap Snapshotter
	http *http.Server
	ln   net.Listener
	done chan error
}

// NewServer creates a server for addr. snap may be nil, in which case
// /status only reports the client count.
func NewServer(addr string, b *Broadcaster, snap Snapshotter) *Server {
	s := &Server{b: b, snap: snap, done: make(chan error, 1)}
	mux := http.NewServeMux()
	mux.Handle("/ws", b)
	mux.HandleFunc("/status", s.handleStatus)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := Status{Clients: s.b.ClientCount()}
	if s.snap != nil {
		sessions, stats, err := s.snap.Snapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		st.Sessions, st.Stats = sessions, stats
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.WithError(err).WithField("at", "monitor.Server.handleStatus").Debug("write_failed")
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return oops.Wrapf(err, "monitor listen on %s", s.http.Addr)
	}
	s.ln = ln
	go func() {
		err := s.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	log.WithFields(logger.Fields{
		"at":   "monitor.Server.Start",
		"addr": ln.Addr().String(),
	}).Info("monitor_listening")
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.http.Addr
	}
	return s.ln.Addr().String()
}

// Shutdown closes the broadcaster's clients and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.b.Close()
	if s.ln == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return oops.Wrapf(err, "monitor shutdown")
	}
	return <-s.done
}
