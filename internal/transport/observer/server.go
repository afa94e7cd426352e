// Package observer streams navigation debug data and per-tick mob state to
// loopback websocket clients.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxelmind.ai/internal/observerproto"
	"voxelmind.ai/internal/sim/nav"
)

const sessionBuffer = 1024

// Server fans nav.Sink events and tick messages out to every subscribed
// session. Slow sessions lose messages instead of stalling the simulation.
type Server struct {
	log *zap.Logger

	// BootstrapFn describes the world for the bootstrap endpoint.
	BootstrapFn func() observerproto.BootstrapResponse

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session
}

type filter struct {
	ids   map[string]bool
	paths bool
}

func (f *filter) wants(entityID string) bool {
	return len(f.ids) == 0 || f.ids[entityID]
}

type session struct {
	id     string
	out    chan []byte
	filter atomic.Pointer[filter]
	cancel context.CancelFunc
}

func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		log:      logger,
		sessions: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

// Sessions reports the number of connected observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Dropped reports messages discarded because a session's buffer was full.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) PathDebug(snap nav.DebugSnapshot) {
	if s.Sessions() == 0 {
		return
	}
	s.broadcast(snap.EntityID, true, observerproto.PathMsg{
		Type:            observerproto.TypePath,
		ProtocolVersion: observerproto.Version,
		Path:            snap,
	})
}

func (s *Server) PathIncident(in nav.Incident) {
	s.broadcast(in.EntityID, false, observerproto.IncidentMsg{
		Type:            observerproto.TypeIncident,
		ProtocolVersion: observerproto.Version,
		Incident:        in,
	})
}

// PublishTick sends msg to every session regardless of its entity filter.
func (s *Server) PublishTick(msg observerproto.TickMsg) {
	msg.Type = observerproto.TypeTick
	msg.ProtocolVersion = observerproto.Version
	s.broadcast("", false, msg)
}

func (s *Server) broadcast(entityID string, isPath bool, v any) {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, ss := range s.sessions {
		f := ss.filter.Load()
		if isPath && !f.paths {
			continue
		}
		if entityID != "" && !f.wants(entityID) {
			continue
		}
		targets = append(targets, ss)
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("observer marshal failed", zap.Error(err))
		return
	}
	for _, ss := range targets {
		select {
		case ss.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

// Close disconnects every session.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ss := range s.sessions {
		ss.cancel()
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var resp observerproto.BootstrapResponse
		if s.BootstrapFn != nil {
			resp = s.BootstrapFn()
		}
		resp.ProtocolVersion = observerproto.Version
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		ss := &session{
			id:     fmt.Sprintf("O%d", s.nextID.Add(1)),
			out:    make(chan []byte, sessionBuffer),
			cancel: cancel,
		}
		ss.filter.Store(f)
		s.mu.Lock()
		s.sessions[ss.id] = ss
		s.mu.Unlock()
		s.log.Debug("observer joined", zap.String("session", ss.id), zap.String("remote", r.RemoteAddr))
		defer func() {
			s.mu.Lock()
			delete(s.sessions, ss.id)
			s.mu.Unlock()
			s.log.Debug("observer left", zap.String("session", ss.id))
		}()

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-ss.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Closing the connection unblocks the reader when ctx ends first.
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()

		// Reader loop: SUBSCRIBE updates replace the filter.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if f, ok := parseSubscribe(msg); ok {
				ss.filter.Store(f)
			}
		}

		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		cancel()
		<-writerDone
	}
}

func parseSubscribe(msg []byte) (*filter, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return nil, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return nil, false
	}
	f := &filter{paths: sub.Paths}
	if len(sub.EntityIDs) > 0 {
		f.ids = make(map[string]bool, len(sub.EntityIDs))
		for _, id := range sub.EntityIDs {
			f.ids[id] = true
		}
	}
	return f, true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
