// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package rdm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leaktestEnabled = true

type srvTester struct {
	t   *testing.T
	srv *Server
	ts  *httptest.Server
}

func testNamespace() *Namespace {
	ns := NewNamespace()
	ns.RegisterFunc("add", func(args []interface{}) (interface{}, error) {
		var sum float64
		for _, arg := range args {
			f, ok := arg.(float64)
			if !ok {
				return nil, errors.Errorf("%v is not a number", arg)
			}
			sum += f
		}
		return sum, nil
	})
	return ns
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartDelay.Duration = time.Millisecond
	cfg.PollTimeout.Duration = time.Millisecond * 100
	cfg.IdleTimeout.Duration = time.Second * 5
	cfg.RequestTimeout.Duration = time.Second * 2
	cfg.LogLevel = "warn"
	return cfg
}

func newSrvTester(t *testing.T, cfg Config, setup ...func(*Server)) *srvTester {
	st := &srvTester{
		t:   t,
		srv: NewServer(cfg, testNamespace()),
	}
	for _, fn := range setup {
		fn(st.srv)
	}
	st.ts = httptest.NewServer(st.srv)
	return st
}

func (st *srvTester) Close() {
	assert.NoError(st.t, st.srv.Close())
	st.ts.Close()
}

func (st *srvTester) createSession() string {
	resp, err := st.ts.Client().Post(st.ts.URL+"/sessions", "application/json", nil)
	require.NoError(st.t, err)
	defer resp.Body.Close()
	require.Equal(st.t, http.StatusCreated, resp.StatusCode)
	var created sessionCreated
	require.NoError(st.t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(st.t, created.ID)
	return created.ID
}

func (st *srvTester) exchange(id, header, body string) (int, string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		st.ts.URL+"/sessions/"+id+"/transport", strings.NewReader(body))
	require.NoError(st.t, err)
	req.Header.Set(DefaultSessionHeader, header)
	resp, err := st.ts.Client().Do(req)
	require.NoError(st.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(st.t, err)
	return resp.StatusCode, string(b)
}

func Test_Server_create_session(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	st := newSrvTester(t, testConfig())
	defer st.Close()

	id := st.createSession()
	assert.NotNil(t, st.srv.Session(id))
	assert.Equal(t, 1, st.srv.ActiveSessions())
	assert.NotEqual(t, id, st.createSession())
	assert.Equal(t, 2, st.srv.ActiveSessions())
}

func Test_Server_transport_errors(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	st := newSrvTester(t, testConfig())
	defer st.Close()
	id := st.createSession()

	code, _ := st.exchange("nosuchsession", "nosuchsession", `[-1,[]]`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = st.exchange(id, "someoneelse", `[-1,[]]`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = st.exchange(id, id, `{"not":"a packet"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func Test_Server_body_too_large(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	cfg := testConfig()
	cfg.MaxBodySize = 16
	st := newSrvTester(t, cfg)
	defer st.Close()
	id := st.createSession()

	code, _ := st.exchange(id, id, `[-1,[[0,["noop",["padding padding"]]]]]`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func Test_Server_poll_timeout(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	st := newSrvTester(t, testConfig())
	defer st.Close()
	id := st.createSession()

	started := time.Now()
	code, body := st.exchange(id, id, `[-1,[]]`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[-1,[]]`, body)
	assert.True(t, time.Since(started) >= st.srv.PollTimeout)
}

func Test_Server_call_answers_immediately(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	cfg := testConfig()
	cfg.PollTimeout.Duration = time.Minute
	cfg.IdleTimeout.Duration = time.Minute * 2
	st := newSrvTester(t, cfg)
	defer st.Close()
	id := st.createSession()

	code, body := st.exchange(id, id, `[-1,[[0,["call",["add","c1",[1,2]]]]]]`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[0,[[0,["respond",["c1",true,3]]]]]`, body)

	// the response is resent until acknowledged, the call is not run again
	code, body = st.exchange(id, id, `[-1,[[0,["call",["add","c1",[1,2]]]]]]`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[0,[[0,["respond",["c1",true,3]]]]]`, body)

	code, body = st.exchange(id, id, `[0,[[1,["call",["nope","c2",[]]]]]]`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[1,[[1,["respond",["c2",false,["UnknownMethod","unknown method \"nope\""]]]]]]`, body)
}

func Test_Server_new_exchange_releases_held(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	cfg := testConfig()
	cfg.PollTimeout.Duration = time.Second * 10
	cfg.IdleTimeout.Duration = time.Second * 20
	st := newSrvTester(t, cfg)
	defer st.Close()
	id := st.createSession()
	s := st.srv.Session(id)

	isHeld := func() (held bool) {
		s.Do(func() { held = s.held != nil })
		return
	}

	firstCh := make(chan string, 1)
	go func() {
		_, body := st.exchange(id, id, `[-1,[]]`)
		firstCh <- body
	}()
	assert.Eventually(t, isHeld, time.Second, time.Millisecond*5)

	secondCh := make(chan string, 1)
	go func() {
		_, body := st.exchange(id, id, `[-1,[]]`)
		secondCh <- body
	}()

	select {
	case body := <-firstCh:
		assert.JSONEq(t, `[-1,[]]`, body)
	case <-time.After(time.Second * 5):
		assert.Fail(t, "held exchange not released by the next one")
	}

	assert.Eventually(t, isHeld, time.Second, time.Millisecond*5)
	s.Do(func() { s.AddMessage(NewMessage(ActionNoop)) })

	select {
	case body := <-secondCh:
		assert.JSONEq(t, `[-1,[[0,["noop",[]]]]]`, body)
	case <-time.After(time.Second * 5):
		assert.Fail(t, "held exchange not released by a queued message")
	}
}

func Test_Server_session_expires(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	cfg := testConfig()
	cfg.PollTimeout.Duration = time.Millisecond * 10
	cfg.IdleTimeout.Duration = time.Millisecond * 50
	lostCh := make(chan error, 1)
	st := newSrvTester(t, cfg, func(srv *Server) {
		srv.OnSession = func(s *Session) {
			s.OnConnectionLost = func(reason error) { lostCh <- reason }
		}
	})
	defer st.Close()
	id := st.createSession()

	select {
	case reason := <-lostCh:
		assert.Equal(t, ErrSessionExpired, reason)
	case <-time.After(time.Second * 5):
		assert.Fail(t, "session never expired")
	}
	assert.Eventually(t, func() bool { return st.srv.ActiveSessions() == 0 }, time.Second, time.Millisecond*5)

	code, _ := st.exchange(id, id, `[-1,[]]`)
	assert.Equal(t, http.StatusNotFound, code)
}

func Test_Server_Close(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	st := newSrvTester(t, testConfig())
	defer st.ts.Close()
	id := st.createSession()
	s := st.srv.Session(id)

	var callErr error
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		_, callErr = s.CallWait(context.Background(), "anything")
	}()
	assert.Eventually(t, func() (pending bool) {
		s.Do(func() { pending = len(s.calls) > 0 })
		return
	}, time.Second, time.Millisecond*5)

	assert.NoError(t, st.srv.Close())
	<-doneCh
	assert.Error(t, callErr)
	assert.Equal(t, 0, st.srv.ActiveSessions())
	assert.Nil(t, st.srv.NewSession())

	resp, err := st.ts.Client().Post(st.ts.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
