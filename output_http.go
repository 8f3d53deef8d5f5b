package rdm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// HTTPOutput performs exchanges using net/http.
type HTTPOutput struct {
	Client        *http.Client  // defaults to http.DefaultClient
	URL           string        // the session transport endpoint
	SessionHeader string        // header carrying SessionID
	SessionID     string        // session identifier
	Timeout       time.Duration // per exchange, zero for none
	MaxBodySize   int64         // largest reply accepted, zero for no limit
	Scheduler     Scheduler     // where completions are delivered
}

// Send implements Output.
func (o *HTTPOutput) Send(ack int64, msgs []Envelope) *Request {
	var ctx context.Context
	var cancel context.CancelFunc
	if o.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), o.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	req := NewRequest(cancel)
	body, err := Packet{Ack: ack, Messages: msgs}.MarshalJSON()
	if err != nil {
		cancel()
		req.complete(Packet{}, errors.WithStack(err))
		return req
	}
	go func() {
		defer cancel()
		p, err := o.roundTrip(ctx, body)
		o.Scheduler.Post(func() { req.complete(p, err) })
	}()
	return req
}

func (o *HTTPOutput) roundTrip(ctx context.Context, body []byte) (p Packet, err error) {
	var hreq *http.Request
	if hreq, err = http.NewRequestWithContext(ctx, http.MethodPost, o.URL, bytes.NewReader(body)); err != nil {
		return p, errors.WithStack(err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set(o.SessionHeader, o.SessionID)

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	var resp *http.Response
	if resp, err = client.Do(hreq); err != nil {
		return p, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return p, errors.WithStack(StatusError{Code: resp.StatusCode})
	}
	return ReadPacket(resp.Body, o.MaxBodySize)
}
