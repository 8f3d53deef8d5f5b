package rdm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Result is what a continuation or a Method produces: either an Immediate
// outcome or a Pending one that completes when its Deferred fires.
type Result interface {
	isResult()
}

// Immediate is an outcome that is already known. A non-nil Err marks failure.
type Immediate struct {
	Value interface{}
	Err   error
}

// Pending is an outcome that will be known once the Deferred fires.
type Pending struct {
	*Deferred
}

func (Immediate) isResult() {}
func (Pending) isResult()   {}

// Value returns a successful Immediate result.
func Value(v interface{}) Result { return Immediate{Value: v} }

// Fail returns a failed Immediate result.
func Fail(err error) Result { return Immediate{Err: err} }

// Wait returns a Pending result for d.
func Wait(d *Deferred) Result { return Pending{d} }

// CallbackFunc is run with the value of a successful Deferred.
type CallbackFunc func(v interface{}) Result

// ErrbackFunc is run with the error of a failed Deferred.
type ErrbackFunc func(err error) Result

// BothFunc is run with the outcome of a Deferred whether it failed or not.
type BothFunc func(v interface{}, err error) Result

type continuation struct {
	callback CallbackFunc
	errback  ErrbackFunc
}

// Deferred is a single-assignment future with a chain of continuations.
//
// Continuations run synchronously, in registration order, on the goroutine
// that resolves the Deferred or registers the continuation. A continuation
// returning Pending suspends the rest of the chain until that Deferred fires.
// Once run, a continuation is dropped from the chain; registering one after
// the chain has drained runs it immediately with the current outcome.
//
// A Deferred is not safe for concurrent use. Keep it on one Loop.
type Deferred struct {
	chain   []continuation
	value   interface{}
	err     error
	called  bool
	running bool
	waiting int
}

// NewDeferred returns an unresolved Deferred.
func NewDeferred() *Deferred {
	return &Deferred{}
}

// Succeed returns a Deferred already resolved with v.
func Succeed(v interface{}) *Deferred {
	d := NewDeferred()
	d.Callback(v)
	return d
}

// Failed returns a Deferred already rejected with err.
func Failed(err error) *Deferred {
	d := NewDeferred()
	d.Errback(err)
	return d
}

func (d *Deferred) String() string {
	switch {
	case !d.called:
		return fmt.Sprintf("[Deferred pending (%d)]", len(d.chain))
	case d.err != nil:
		return fmt.Sprintf("[Deferred failed %v (%d)]", d.err, len(d.chain))
	default:
		return fmt.Sprintf("[Deferred %v (%d)]", d.value, len(d.chain))
	}
}

// Called returns true once Callback or Errback has been invoked.
func (d *Deferred) Called() bool {
	return d.called
}

// Callback resolves the Deferred with v. Resolving twice panics with ErrAlreadyCalled.
func (d *Deferred) Callback(v interface{}) {
	d.resolve(v, nil)
}

// Errback rejects the Deferred with err. Resolving twice panics with ErrAlreadyCalled.
func (d *Deferred) Errback(err error) {
	if err == nil {
		panic("Deferred.Errback() with nil error")
	}
	d.resolve(nil, err)
}

func (d *Deferred) resolve(v interface{}, err error) {
	if d.called {
		panic(errors.WithStack(ErrAlreadyCalled))
	}
	d.called = true
	d.value, d.err = v, err
	d.run()
}

// AddCallbacks appends a callback/errback pair to the chain.
// Either may be nil, in which case that outcome passes through unchanged.
func (d *Deferred) AddCallbacks(cb CallbackFunc, eb ErrbackFunc) *Deferred {
	d.chain = append(d.chain, continuation{callback: cb, errback: eb})
	if d.called {
		d.run()
	}
	return d
}

// AddCallback appends a continuation run only on success.
func (d *Deferred) AddCallback(cb CallbackFunc) *Deferred {
	return d.AddCallbacks(cb, nil)
}

// AddErrback appends a continuation run only on failure.
func (d *Deferred) AddErrback(eb ErrbackFunc) *Deferred {
	return d.AddCallbacks(nil, eb)
}

// AddBoth appends a continuation run on either outcome.
func (d *Deferred) AddBoth(fn BothFunc) *Deferred {
	return d.AddCallbacks(
		func(v interface{}) Result { return fn(v, nil) },
		func(err error) Result { return fn(nil, err) },
	)
}

// Chain resolves other with the outcome of d once d fires.
func (d *Deferred) Chain(other *Deferred) *Deferred {
	return d.AddBoth(func(v interface{}, err error) Result {
		if err != nil {
			other.Errback(err)
		} else {
			other.Callback(v)
		}
		return nil
	})
}

func (d *Deferred) run() {
	if d.running || d.waiting > 0 {
		return
	}
	d.running = true
	defer func() { d.running = false }()

	for len(d.chain) > 0 && d.waiting == 0 {
		c := d.chain[0]
		d.chain = d.chain[1:]

		var r Result
		if d.err != nil {
			if c.errback == nil {
				continue
			}
			r = c.errback(d.err)
		} else {
			if c.callback == nil {
				continue
			}
			r = c.callback(d.value)
		}

		switch r := r.(type) {
		case nil:
		case Immediate:
			d.value, d.err = r.Value, r.Err
		case Pending:
			if r.Deferred == nil {
				panic("Deferred continuation returned Pending with a nil Deferred")
			}
			if r.Deferred == d {
				panic("Deferred continuation returned its own Deferred")
			}
			d.waiting++
			r.AddBoth(func(v interface{}, err error) Result {
				d.waiting--
				d.value, d.err = v, err
				d.run()
				return Immediate{Value: v, Err: err}
			})
		}
	}
}
