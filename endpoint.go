// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package rdm

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// endpoint is the state both peers keep: the outbound window, the inbound
// cursor, the pause depth and the action dispatch table with its remote
// call bookkeeping. It is confined to the owner's Scheduler.
type endpoint struct {
	log        *logrus.Entry
	stats      StatsCollector
	namespace  *Namespace
	actions    map[string]actionHandler
	seq        int64      // highest sequence number assigned to an outbound message
	ack        int64      // highest inbound sequence number processed
	pending    []Envelope // sent but not acknowledged, ascending by Seq
	paused     int
	calls      map[string]outboundCall // outstanding outbound calls by request ID
	callPrefix string
	callSerial uint64
	lost       error // non-nil once the connection is lost

	flush   func()             // owner's flush, invoked when there may be something to send
	onClose func(reason error) // owner's reaction to a close action
}

type outboundCall struct {
	serial uint64
	d      *Deferred
}

func newEndpoint(log *logrus.Entry, ns *Namespace, callPrefix string) *endpoint {
	if ns == nil {
		ns = NewNamespace()
	}
	return &endpoint{
		log:        log,
		namespace:  ns,
		actions:    defaultActions(),
		seq:        -1,
		ack:        -1,
		calls:      make(map[string]outboundCall),
		callPrefix: callPrefix,
	}
}

func (ep *endpoint) String() string {
	return fmt.Sprintf("seq %d ack %d pending %d paused %d calls %d",
		ep.seq, ep.ack, len(ep.pending), ep.paused, len(ep.calls))
}

// Namespace returns the methods the peer may call.
func (ep *endpoint) Namespace() *Namespace {
	return ep.namespace
}

// Seq returns the highest sequence number assigned to an outbound message, or -1.
func (ep *endpoint) Seq() int64 {
	return ep.seq
}

// Ack returns the highest inbound sequence number processed, or -1.
func (ep *endpoint) Ack() int64 {
	return ep.ack
}

// Pending returns a copy of the messages not yet acknowledged by the peer.
func (ep *endpoint) Pending() []Envelope {
	return ep.snapshot()
}

// Paused returns true while at least one Pause is in effect.
func (ep *endpoint) Paused() bool {
	return ep.paused > 0
}

// AddMessage queues msg for delivery with the next sequence number
// and attempts a flush.
func (ep *endpoint) AddMessage(msg Message) {
	if msg.Args == nil {
		msg.Args = []interface{}{}
	}
	ep.seq++
	ep.pending = append(ep.pending, Envelope{Seq: ep.seq, Message: msg})
	if ep.stats != nil {
		ep.stats.AddMessagesQueued(1)
	}
	ep.flush()
}

// Pause suspends flushing until the matching Unpause. Pauses nest.
func (ep *endpoint) Pause() {
	ep.paused++
}

// Unpause undoes one Pause, flushing when the last one is undone.
// Unpausing more often than pausing panics with ErrPauseUnderflow.
func (ep *endpoint) Unpause() {
	if ep.paused < 1 {
		panic(errors.WithStack(ErrPauseUnderflow))
	}
	ep.paused--
	if ep.paused == 0 {
		ep.flush()
	}
}

func (ep *endpoint) snapshot() []Envelope {
	msgs := make([]Envelope, len(ep.pending))
	copy(msgs, ep.pending)
	return msgs
}

// acknowledgeMessage drops the messages the peer has confirmed, which is
// always a prefix of the pending queue.
func (ep *endpoint) acknowledgeMessage(peerAck int64) {
	n := 0
	for n < len(ep.pending) && ep.pending[n].Seq <= peerAck {
		ep.pending[n] = Envelope{}
		n++
	}
	if n > 0 {
		ep.pending = ep.pending[n:]
		if ep.stats != nil {
			ep.stats.AddMessagesAcked(n)
		}
	}
}

// messageReceived processes an inbound batch. A batch that overlaps what
// was already seen is accepted and only the new messages are dispatched.
// A batch starting past the next expected sequence number is dropped.
// Dispatch happens while paused, so anything queued by the handlers goes
// out in a single flush afterwards.
func (ep *endpoint) messageReceived(batch []Envelope) {
	if len(batch) == 0 {
		return
	}

	if first := batch[0].Seq; first > ep.ack+1 {
		ep.log.WithFields(logrus.Fields{
			"ack":   ep.ack,
			"first": first,
			"count": len(batch),
		}).Warn("sequence gap in inbound batch, dropped")
		if ep.stats != nil {
			ep.stats.AddGap()
		}
		return
	}

	oldAck := ep.ack
	if last := batch[len(batch)-1].Seq; last > ep.ack {
		ep.ack = last
	}

	ep.Pause()
	defer ep.Unpause()

	dispatched := 0
	for _, env := range batch {
		if env.Seq > oldAck {
			ep.dispatch(env)
			dispatched++
		}
	}
	if ep.stats != nil && dispatched > 0 {
		ep.stats.AddMessagesDispatched(dispatched)
	}
}

func (ep *endpoint) dispatch(env Envelope) {
	handler, ok := ep.actions[env.Message.Kind]
	if !ok {
		ep.log.WithField("seq", env.Seq).Error(ErrUnknownAction{Kind: env.Message.Kind})
		return
	}
	if err := handler(ep, env.Message.Args); err != nil {
		ep.log.WithFields(logrus.Fields{
			"seq":    env.Seq,
			"action": env.Message.Kind,
		}).Errorf("%+v", err)
	}
}

// Call asks the peer to run method with args. The returned Deferred fires
// with the peer's answer, or fails with ErrConnectionLost.
func (ep *endpoint) Call(method string, args ...interface{}) *Deferred {
	if ep.lost != nil {
		return Failed(errors.Wrap(ErrConnectionLost, ep.lost.Error()))
	}
	if args == nil {
		args = []interface{}{}
	}
	ep.callSerial++
	requestID := ep.callPrefix + strconv.FormatUint(ep.callSerial, 10)
	d := NewDeferred()
	ep.calls[requestID] = outboundCall{serial: ep.callSerial, d: d}
	ep.AddMessage(NewMessage(ActionCall, method, requestID, args))
	return d
}

// resolve fires the Deferred of the outbound call requestID.
func (ep *endpoint) resolve(requestID string, success bool, result interface{}) error {
	call, ok := ep.calls[requestID]
	if !ok {
		return errors.WithStack(ErrUnknownRequest{RequestID: requestID})
	}
	delete(ep.calls, requestID)
	d := call.d
	if success {
		d.Callback(result)
	} else {
		d.Errback(decodeError(result))
	}
	return nil
}

// lose marks the connection lost and fails every outstanding call.
func (ep *endpoint) lose(reason error) {
	if ep.lost != nil {
		return
	}
	ep.lost = reason
	calls := make([]outboundCall, 0, len(ep.calls))
	for _, call := range ep.calls {
		calls = append(calls, call)
	}
	ep.calls = make(map[string]outboundCall)

	// in the order the calls were made
	sort.Slice(calls, func(i, j int) bool { return calls[i].serial < calls[j].serial })
	for _, call := range calls {
		call.d.Errback(errors.Wrap(ErrConnectionLost, reason.Error()))
	}
}
