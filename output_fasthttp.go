package rdm

import (
	"bytes"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// FastHTTPOutput performs exchanges using valyala/fasthttp.
// Abort can't interrupt a fasthttp round trip, so it only marks the Request.
type FastHTTPOutput struct {
	Client        *fasthttp.Client // created on first use if nil
	URL           string           // the session transport endpoint
	SessionHeader string           // header carrying SessionID
	SessionID     string           // session identifier
	Timeout       time.Duration    // per exchange, defaults to DefaultRequestTimeout
	MaxBodySize   int64            // largest reply accepted, zero for no limit
	Scheduler     Scheduler        // where completions are delivered
}

// Send implements Output. Must be called on the Scheduler.
func (o *FastHTTPOutput) Send(ack int64, msgs []Envelope) *Request {
	req := NewRequest(nil)
	body, err := Packet{Ack: ack, Messages: msgs}.MarshalJSON()
	if err != nil {
		req.complete(Packet{}, errors.WithStack(err))
		return req
	}
	if o.Client == nil {
		o.Client = &fasthttp.Client{MaxResponseBodySize: int(o.MaxBodySize)}
	}
	go func() {
		p, err := o.roundTrip(body)
		o.Scheduler.Post(func() { req.complete(p, err) })
	}()
	return req
}

func (o *FastHTTPOutput) roundTrip(body []byte) (p Packet, err error) {
	freq := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(freq)
	fresp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(fresp)

	freq.SetRequestURI(o.URL)
	freq.Header.SetMethod(fasthttp.MethodPost)
	freq.Header.SetContentType("application/json")
	freq.Header.Set(o.SessionHeader, o.SessionID)
	freq.SetBodyRaw(body)

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if err = o.Client.DoTimeout(freq, fresp, timeout); err != nil {
		return p, errors.WithStack(err)
	}
	if code := fresp.StatusCode(); code != http.StatusOK {
		return p, errors.WithStack(StatusError{Code: code})
	}
	// the response body is recycled on release, ReadPacket copies it
	return ReadPacket(bytes.NewReader(fresp.Body()), o.MaxBodySize)
}
