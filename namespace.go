package rdm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Method is a function the peer may invoke with a call action.
// Return Value or Fail for an immediate outcome, or Wait for a pending one.
type Method func(args []interface{}) Result

// Namespace resolves method names for inbound calls.
// It is safe for concurrent use, so a Server may share one among Sessions.
type Namespace struct {
	mu      sync.RWMutex
	methods map[string]Method
}

// NewNamespace returns an empty Namespace.
func NewNamespace() *Namespace {
	return &Namespace{methods: make(map[string]Method)}
}

// Register makes m callable as name, replacing any previous registration.
func (ns *Namespace) Register(name string, m Method) {
	if m == nil {
		panic(fmt.Sprintf("Namespace.Register(%q): nil method", name))
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.methods[name] = m
}

// RegisterFunc makes a plain function callable as name.
func (ns *Namespace) RegisterFunc(name string, fn func(args []interface{}) (interface{}, error)) {
	ns.Register(name, func(args []interface{}) Result {
		v, err := fn(args)
		if err != nil {
			return Fail(err)
		}
		return Value(v)
	})
}

// Unregister removes name.
func (ns *Namespace) Unregister(name string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	delete(ns.methods, name)
}

// Lookup returns the method registered as name.
func (ns *Namespace) Lookup(name string) (m Method, ok bool) {
	if ns != nil {
		ns.mu.RLock()
		defer ns.mu.RUnlock()
		m, ok = ns.methods[name]
	}
	return
}

// Names returns the registered method names, sorted.
func (ns *Namespace) Names() (names []string) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	for name := range ns.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// invoke calls m, turning a panic into a failure.
func invoke(m Method, args []interface{}) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			if err, ok := p.(error); ok {
				r = Fail(errors.WithStack(err))
			} else {
				r = Fail(errors.Errorf("%v", p))
			}
		}
	}()
	if r = m(args); r == nil {
		r = Value(nil)
	}
	return
}
