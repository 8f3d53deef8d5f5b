// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package rdm

import (
	"context"
	"fmt"
)

// Session is the server side of Reliable Message Delivery for one client.
// It answers the client's exchanges, holding one open until there is
// something to send or the poll timeout elapses.
//
// All of a Session's state is confined to its Loop. Use Do to get there
// from other goroutines; Methods and Deferred continuations already run there.
type Session struct {
	*endpoint
	ID   string
	srv  *Server
	loop *Loop

	// OnConnectionLost is invoked on the loop once, when the session
	// expires or the client closes it. Set it in Server.OnSession.
	OnConnectionLost func(reason error)

	held       chan<- *Packet // reply channel of the exchange being held open
	holdSerial uint64
	stopPoll   func() bool
	idleSerial uint64
	stopIdle   func() bool
	closed     bool
}

func newSession(srv *Server, id string) *Session {
	s := &Session{
		endpoint: newEndpoint(srv.log().WithField("session", id), srv.Namespace, srv.callPrefix()),
		ID:       id,
		srv:      srv,
		loop:     NewLoop(),
	}
	s.endpoint.stats = srv.StatsCollector
	s.endpoint.flush = s.flushMessages
	s.endpoint.onClose = s.connectionLost
	return s
}

func (s *Session) String() string {
	return fmt.Sprintf("[Session %s %s held %v closed %v]", s.ID, s.endpoint, s.held != nil, s.closed)
}

// Do runs fn on the session loop and waits for it.
// Returns false if the session is gone. Must not be called from the loop.
func (s *Session) Do(fn func()) bool {
	return s.loop.Do(fn)
}

// CallWait calls method on the client and waits for the answer.
// Must not be called from the loop.
func (s *Session) CallWait(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	return waitCall(ctx, s.loop, func() *Deferred { return s.Call(method, args...) })
}

// Close asks the client to close the connection. The session itself
// goes away when it expires.
func (s *Session) Close() {
	if !s.closed {
		s.AddMessage(NewMessage(ActionClose))
	}
}

// Closed returns true once the session has lost its connection.
func (s *Session) Closed() bool {
	return s.closed
}

// exchange handles one inbound exchange and arranges for reply to
// receive the answer, or nil if the session is gone.
func (s *Session) exchange(p Packet, reply chan<- *Packet) {
	if s.closed {
		reply <- nil
		return
	}
	s.touch()

	// a newer exchange supersedes the one being held
	s.release()

	s.acknowledgeMessage(p.Ack)
	s.messageReceived(p.Messages)

	if s.closed {
		reply <- nil
		return
	}

	s.held = reply
	s.holdSerial++
	if len(s.pending) > 0 {
		s.release()
		return
	}
	serial := s.holdSerial
	s.stopPoll = s.loop.After(s.srv.pollTimeout(), func() {
		if s.holdSerial == serial {
			s.release()
		}
	})
}

// flushMessages answers the held exchange if there is something to send.
func (s *Session) flushMessages() {
	if s.paused == 0 && len(s.pending) > 0 {
		s.release()
	}
}

// release answers the held exchange with everything not yet acknowledged.
func (s *Session) release() {
	if s.held == nil {
		return
	}
	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}
	s.held <- &Packet{Ack: s.ack, Messages: s.snapshot()}
	s.held = nil
	if s.stats != nil {
		s.stats.AddExchange(nil)
	}
}

// touch restarts the idle timer.
func (s *Session) touch() {
	if s.stopIdle != nil {
		s.stopIdle()
	}
	s.idleSerial++
	serial := s.idleSerial
	s.stopIdle = s.loop.After(s.srv.idleTimeout(), func() {
		if s.idleSerial == serial {
			s.connectionLost(ErrSessionExpired)
		}
	})
}

// connectionLost ends the session: the held exchange is dropped, all
// outstanding calls fail and the loop stops after the current closure.
func (s *Session) connectionLost(reason error) {
	if s.closed {
		return
	}
	s.closed = true
	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}
	if s.stopIdle != nil {
		s.stopIdle()
		s.stopIdle = nil
	}
	if s.held != nil {
		s.held <- nil
		s.held = nil
	}
	s.log.WithField("reason", reason).Info("session lost")
	s.lose(reason)
	if s.OnConnectionLost != nil {
		s.OnConnectionLost(reason)
	}
	s.srv.forget(s)
	s.loop.Stop()
}
