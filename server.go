// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package rdm

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrServerClosed is the reason given to sessions when the Server closes.
var ErrServerClosed = errors.New("server closed")

// Server hosts Sessions and serves their exchanges over HTTP.
//
//	POST /sessions                      creates a session, answers {"id": "<session>"}
//	POST /sessions/:session/transport   performs one exchange
//
// Every exchange must carry the session ID in SessionHeader.
type Server struct {
	Namespace      *Namespace          // methods clients may call, shared by all sessions
	SessionHeader  string              // header carrying the session ID
	PollTimeout    time.Duration       // how long an exchange is held with nothing to send
	IdleTimeout    time.Duration       // how long a session lives without exchanges
	MaxBodySize    int64               // largest exchange body accepted
	CallPrefix     string              // request ID prefix for calls to clients
	StatsCollector StatsCollector      // where to report statistics (optional)
	OnSession      func(*Session)      // invoked on the loop of every new session
	Log            *logrus.Entry       // where to log (optional)
	mu             sync.Mutex          // protects those below
	sessions       map[string]*Session // live sessions by ID
	router         *httprouter.Router
	closed         bool
}

// NewServer returns a Server configured from cfg.
func NewServer(cfg Config, ns *Namespace) *Server {
	if ns == nil {
		ns = NewNamespace()
	}
	return &Server{
		Namespace:     ns,
		SessionHeader: cfg.SessionHeader,
		PollTimeout:   cfg.PollTimeout.Duration,
		IdleTimeout:   cfg.IdleTimeout.Duration,
		MaxBodySize:   cfg.MaxBodySize,
		CallPrefix:    cfg.ServerCallPrefix,
		Log:           logrus.NewEntry(cfg.Logger()).WithField("component", "server"),
	}
}

func (srv *Server) log() *logrus.Entry {
	if srv.Log != nil {
		return srv.Log
	}
	return logrus.WithField("component", "server")
}

func (srv *Server) sessionHeader() string {
	if srv.SessionHeader != "" {
		return srv.SessionHeader
	}
	return DefaultSessionHeader
}

func (srv *Server) pollTimeout() time.Duration {
	if srv.PollTimeout > 0 {
		return srv.PollTimeout
	}
	return DefaultPollTimeout
}

func (srv *Server) idleTimeout() time.Duration {
	if srv.IdleTimeout > 0 {
		return srv.IdleTimeout
	}
	return DefaultIdleTimeout
}

func (srv *Server) maxBodySize() int64 {
	if srv.MaxBodySize > 0 {
		return srv.MaxBodySize
	}
	return DefaultMaxBodySize
}

func (srv *Server) callPrefix() string {
	if srv.CallPrefix != "" {
		return srv.CallPrefix
	}
	return DefaultServerCallPrefix
}

func (srv *Server) getRouter() *httprouter.Router {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.router == nil {
		srv.router = httprouter.New()
		srv.router.POST("/sessions", srv.serveCreate)
		srv.router.POST("/sessions/:session/transport", srv.serveTransport)
	}
	return srv.router
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.getRouter().ServeHTTP(w, r)
}

// NewSession creates a session and starts its idle timer.
// Returns nil if the Server is closed.
func (srv *Server) NewSession() *Session {
	s := newSession(srv, uuid.NewString())

	srv.mu.Lock()
	if srv.closed {
		srv.mu.Unlock()
		s.loop.Close()
		return nil
	}
	if srv.sessions == nil {
		srv.sessions = make(map[string]*Session)
	}
	srv.sessions[s.ID] = s
	srv.mu.Unlock()

	s.loop.Post(func() {
		s.touch()
		if srv.OnSession != nil {
			srv.OnSession(s)
		}
	})
	s.log.Debug("session created")
	return s
}

// Session returns the live session with the given ID, or nil.
func (srv *Server) Session(id string) *Session {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.sessions[id]
}

// ActiveSessions returns the number of live sessions.
func (srv *Server) ActiveSessions() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

func (srv *Server) forget(s *Session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.sessions[s.ID] == s {
		delete(srv.sessions, s.ID)
	}
}

// Close ends all sessions and refuses new ones.
func (srv *Server) Close() error {
	srv.mu.Lock()
	srv.closed = true
	sessions := make([]*Session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.mu.Unlock()

	for _, s := range sessions {
		s.loop.Do(func() { s.connectionLost(ErrServerClosed) })
		s.loop.Close()
	}
	return nil
}

type sessionCreated struct {
	ID string `json:"id"`
}

func (srv *Server) serveCreate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s := srv.NewSession()
	if s == nil {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(sessionCreated{ID: s.ID}); err != nil {
		srv.log().Warnf("serveCreate(): %v", err)
	}
}

func (srv *Server) serveTransport(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("session")
	if r.Header.Get(srv.sessionHeader()) != id {
		http.Error(w, "session header mismatch", http.StatusBadRequest)
		return
	}

	s := srv.Session(id)
	if s == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	p, err := ReadPacket(r.Body, srv.maxBodySize())
	if err != nil {
		s.log.WithField("remote", r.RemoteAddr).Warnf("bad exchange: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	replyCh := make(chan *Packet, 1)
	if !s.loop.Post(func() { s.exchange(p, replyCh) }) {
		http.Error(w, "session gone", http.StatusGone)
		return
	}

	var reply *Packet
	select {
	case reply = <-replyCh:
	case <-s.loop.Done():
		select {
		case reply = <-replyCh:
		default:
		}
	case <-r.Context().Done():
		// client went away; whatever the session sends stays pending until acknowledged
		return
	}

	if reply == nil {
		http.Error(w, "session gone", http.StatusGone)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err = WritePacket(w, *reply); err != nil {
		s.log.Debugf("serveTransport(): %v", err)
	}
}
