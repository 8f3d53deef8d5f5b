// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package rdm

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is the run state of a Channel.
type State int32

const (
	// StateStopped is the initial state, and the state after Stop.
	StateStopped = State(0)
	// StateRunning means the Channel is exchanging messages.
	StateRunning = State(1)
	// StateDisconnected is terminal, the connection has been lost.
	StateDisconnected = State(2)
)

var stateTexts = map[State]string{
	StateStopped:      "STOPPED",
	StateRunning:      "RUNNING",
	StateDisconnected: "DISCONNECTED",
}

func (s State) String() string {
	if text, ok := stateTexts[s]; ok {
		return text
	}
	return strconv.FormatInt(int64(s), 10)
}

// Channel is the client side of Reliable Message Delivery. It keeps the
// outbound queue flowing to the peer through its Output, one exchange at
// a time, and dispatches what comes back.
//
// A Channel is not safe for concurrent use. Create it and call its methods
// on the Scheduler its Output delivers completions to.
type Channel struct {
	*endpoint
	FailureThreshold int               // consecutive failed exchanges before the connection is lost
	OnConnectionLost func(reason error) // invoked once, when the Channel becomes disconnected
	output           Output
	state            State
	requests         []*Request // outstanding exchanges, oldest first
	failures         int
}

// NewChannel returns a stopped Channel sending through output and serving
// inbound calls from ns. A nil ns gets an empty Namespace.
func NewChannel(output Output, ns *Namespace) *Channel {
	c := &Channel{
		endpoint:         newEndpoint(logrus.WithField("component", "channel"), ns, DefaultClientCallPrefix),
		FailureThreshold: DefaultFailureThreshold,
		output:           output,
	}
	c.endpoint.flush = c.flushMessages
	c.endpoint.onClose = c.connectionLost
	return c
}

func (c *Channel) String() string {
	return fmt.Sprintf("[Channel %s %s requests %d failures %d]",
		c.state, c.endpoint, len(c.requests), c.failures)
}

// SetLogger replaces the log entry used by the Channel.
func (c *Channel) SetLogger(log *logrus.Entry) {
	c.log = log
}

// SetStatsCollector sets where statistics are reported, nil to disable.
func (c *Channel) SetStatsCollector(stats StatsCollector) {
	c.stats = stats
}

// SetCallPrefix sets the prefix of request IDs for outbound calls.
func (c *Channel) SetCallPrefix(prefix string) {
	c.callPrefix = prefix
}

// State returns the current run state.
func (c *Channel) State() State {
	return c.state
}

// Failures returns the number of consecutive failed exchanges.
func (c *Channel) Failures() int {
	return c.failures
}

// Outstanding returns the number of exchanges in flight.
func (c *Channel) Outstanding() int {
	return len(c.requests)
}

// Start begins exchanging messages. Has no effect unless stopped.
func (c *Channel) Start() {
	if c.state != StateStopped {
		return
	}
	c.state = StateRunning
	c.log.Debug("started")
	if len(c.requests) == 0 {
		c.flushMessages()
	}
}

// Stop aborts all outstanding exchanges. Pending messages are kept and
// will be sent if the Channel is started again.
func (c *Channel) Stop() {
	if c.state != StateRunning {
		return
	}
	c.state = StateStopped
	requests := c.requests
	c.requests = nil
	for _, req := range requests {
		req.Abort()
	}
	c.log.Debug("stopped")
}

// flushMessages sends the whole pending queue together with the current
// ack, unless stopped or paused. With nothing to send and an exchange
// already outstanding there is no point in another one.
func (c *Channel) flushMessages() {
	if c.state != StateRunning || c.paused > 0 {
		return
	}
	if len(c.pending) == 0 && len(c.requests) > 0 {
		return
	}
	if len(c.requests) > 1 {
		// bound the number of overlapping exchanges; the new one carries
		// everything the oldest did
		oldest := c.requests[0]
		c.requests = c.requests[1:]
		oldest.Abort()
		c.log.WithField("request", oldest).Debug("aborted oldest exchange")
	}

	req := c.output.Send(c.ack, c.snapshot())
	c.requests = append(c.requests, req)

	req.Deferred.AddBoth(func(v interface{}, err error) Result {
		c.removeRequest(req)
		if req.Aborted() {
			// superseded by a newer exchange carrying the same messages
			return nil
		}
		if err == nil {
			if p, ok := v.(Packet); ok {
				c.exchangeSucceeded(p)
			} else {
				err = errors.Wrapf(ErrMalformedPacket, "exchange result %T", v)
			}
		}
		if err != nil {
			c.exchangeFailed(err)
		}
		// resend what is still unacknowledged, or poll so the peer can push
		if c.failures < c.FailureThreshold {
			c.flushMessages()
		}
		return nil
	})
}

func (c *Channel) exchangeSucceeded(p Packet) {
	c.failures = 0
	if c.stats != nil {
		c.stats.AddExchange(nil)
	}
	c.acknowledgeMessage(p.Ack)
	c.messageReceived(p.Messages)
}

func (c *Channel) exchangeFailed(err error) {
	c.failures++
	if c.stats != nil {
		c.stats.AddExchange(err)
	}
	c.log.WithField("failures", c.failures).Warnf("exchange failed: %v", err)
	if c.failures >= c.FailureThreshold {
		c.connectionLost(errors.Wrap(ErrFailureThreshold, err.Error()))
	}
}

func (c *Channel) removeRequest(req *Request) {
	for i, r := range c.requests {
		if r == req {
			c.requests = append(c.requests[:i], c.requests[i+1:]...)
			return
		}
	}
}

// connectionLost stops the Channel for good and fails all outstanding calls.
func (c *Channel) connectionLost(reason error) {
	if c.state == StateDisconnected {
		return
	}
	c.Stop()
	c.state = StateDisconnected
	c.log.WithField("reason", reason).Error("connection lost")
	c.lose(reason)
	if c.OnConnectionLost != nil {
		c.OnConnectionLost(reason)
	}
}
