package rdm

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Output opens exchanges with the peer.
type Output interface {
	// Send starts one exchange carrying ack and msgs. The returned Request's
	// Deferred fires on the Channel's Scheduler with the peer's Packet, or
	// with an error.
	Send(ack int64, msgs []Envelope) *Request
}

// Request is the handle of one outstanding exchange.
type Request struct {
	Deferred *Deferred
	cancel   func()
	aborted  bool
	serial   uint64
}

var requestNextSerial uint64

// NewRequest returns a Request whose Abort calls cancel, which may be nil.
// Must be called on the Scheduler.
func NewRequest(cancel func()) *Request {
	return &Request{
		Deferred: NewDeferred(),
		cancel:   cancel,
		serial:   atomic.AddUint64(&requestNextSerial, 1),
	}
}

func (req *Request) String() string {
	aborted := ""
	if req.aborted {
		aborted = " ABORTED"
	}
	return fmt.Sprintf("[Request %d%s %v]", req.serial, aborted, req.Deferred)
}

// Abort asks the transport to give up on the exchange. Whatever the
// Deferred later fires with is not authoritative.
func (req *Request) Abort() {
	if !req.aborted {
		req.aborted = true
		if req.cancel != nil {
			req.cancel()
		}
	}
}

// Aborted returns true if Abort has been called.
func (req *Request) Aborted() bool {
	return req.aborted
}

// complete resolves the Request with the outcome of a transport round trip.
func (req *Request) complete(p Packet, err error) {
	if req.aborted && err != nil {
		err = errors.Wrap(ErrAborted, err.Error())
	}
	if err != nil {
		req.Deferred.Errback(err)
	} else {
		req.Deferred.Callback(p)
	}
}
