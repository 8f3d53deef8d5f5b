package rdm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// Client connects a Channel to a Server session over HTTP and runs it on
// its own Loop.
type Client struct {
	Config     Config
	SessionID  string
	loop       *Loop
	ch         *Channel
	httpClient *http.Client
	fastClient *fasthttp.Client
	log        *logrus.Entry

	// OnConnectionLost is invoked on the loop once the Channel is disconnected.
	// Set it before calling Start.
	OnConnectionLost func(reason error)
}

// Dial prepares a Client for the server at cfg.URL. If cfg.SessionID is
// empty a new session is created first. No exchange takes place until Start.
func Dial(ctx context.Context, cfg Config) (c *Client, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}
	if _, err = url.Parse(cfg.URL); err != nil {
		return nil, errors.WithStack(err)
	}

	c = &Client{
		Config:     cfg,
		SessionID:  cfg.SessionID,
		httpClient: &http.Client{Transport: &http.Transport{}},
	}

	if c.SessionID == "" {
		if c.SessionID, err = c.createSession(ctx); err != nil {
			c.httpClient.CloseIdleConnections()
			return nil, err
		}
	}

	c.log = logrus.NewEntry(cfg.Logger()).WithFields(logrus.Fields{
		"component": "client",
		"session":   c.SessionID,
	})
	c.loop = NewLoop()
	c.ch = NewChannel(c.newOutput(), nil)
	c.ch.FailureThreshold = cfg.FailureThreshold
	c.ch.SetCallPrefix(cfg.ClientCallPrefix)
	c.ch.SetLogger(c.log)
	c.ch.OnConnectionLost = func(reason error) {
		if c.OnConnectionLost != nil {
			c.OnConnectionLost(reason)
		}
	}
	return c, nil
}

func (c *Client) baseURL() string {
	return strings.TrimRight(c.Config.URL, "/")
}

func (c *Client) transportURL() string {
	return c.baseURL() + "/sessions/" + url.PathEscape(c.SessionID) + "/transport"
}

func (c *Client) newOutput() Output {
	if c.Config.Transport == TransportFastHTTP {
		c.fastClient = &fasthttp.Client{MaxResponseBodySize: int(c.Config.MaxBodySize)}
		return &FastHTTPOutput{
			Client:        c.fastClient,
			URL:           c.transportURL(),
			SessionHeader: c.Config.SessionHeader,
			SessionID:     c.SessionID,
			Timeout:       c.Config.RequestTimeout.Duration,
			MaxBodySize:   c.Config.MaxBodySize,
			Scheduler:     c.loop,
		}
	}
	return &HTTPOutput{
		Client:        c.httpClient,
		URL:           c.transportURL(),
		SessionHeader: c.Config.SessionHeader,
		SessionID:     c.SessionID,
		Timeout:       c.Config.RequestTimeout.Duration,
		MaxBodySize:   c.Config.MaxBodySize,
		Scheduler:     c.loop,
	}
}

func (c *Client) createSession(ctx context.Context) (id string, err error) {
	var req *http.Request
	if req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/sessions", nil); err != nil {
		return "", errors.WithStack(err)
	}
	var resp *http.Response
	if resp, err = c.httpClient.Do(req); err != nil {
		return "", errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", errors.WithStack(StatusError{Code: resp.StatusCode})
	}
	var created sessionCreated
	if err = json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", errors.WithStack(err)
	}
	if created.ID == "" {
		return "", errors.New("server returned an empty session id")
	}
	return created.ID, nil
}

// Namespace returns the methods the server may call on this Client.
func (c *Client) Namespace() *Namespace {
	return c.ch.Namespace()
}

// SetStatsCollector sets where the Channel reports statistics.
func (c *Client) SetStatsCollector(stats StatsCollector) {
	c.loop.Do(func() { c.ch.SetStatsCollector(stats) })
}

// Start begins exchanging messages after Config.StartDelay.
func (c *Client) Start() {
	c.loop.After(c.Config.StartDelay.Duration, c.ch.Start)
}

// Do runs fn with the Channel on the Client's loop and waits for it.
// Returns false if the Client is closed. Must not be called from the loop.
func (c *Client) Do(fn func(*Channel)) bool {
	return c.loop.Do(func() { fn(c.ch) })
}

// Call calls method on the server. Must be called on the loop, that is
// from Do, a Method or a Deferred continuation.
func (c *Client) Call(method string, args ...interface{}) *Deferred {
	return c.ch.Call(method, args...)
}

// CallWait calls method on the server and waits for the answer.
// Must not be called from the loop.
func (c *Client) CallWait(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	return waitCall(ctx, c.loop, func() *Deferred { return c.ch.Call(method, args...) })
}

// State returns the state of the Channel.
func (c *Client) State() (state State) {
	if !c.loop.Do(func() { state = c.ch.State() }) {
		state = StateStopped
	}
	return
}

// Close stops the Channel and the loop.
func (c *Client) Close() error {
	c.loop.Do(c.ch.Stop)
	err := c.loop.Close()
	c.httpClient.CloseIdleConnections()
	if c.fastClient != nil {
		c.fastClient.CloseIdleConnections()
	}
	return err
}

type callOutcome struct {
	v   interface{}
	err error
}

// waitCall runs call on loop and waits for the Deferred it returns.
func waitCall(ctx context.Context, loop *Loop, call func() *Deferred) (interface{}, error) {
	outcomeCh := make(chan callOutcome, 1)
	if !loop.Post(func() {
		call().AddBoth(func(v interface{}, err error) Result {
			outcomeCh <- callOutcome{v, err}
			return nil
		})
	}) {
		return nil, errors.WithStack(ErrLoopStopped)
	}
	select {
	case o := <-outcomeCh:
		return o.v, o.err
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	case <-loop.Done():
		select {
		case o := <-outcomeCh:
			return o.v, o.err
		default:
			return nil, errors.WithStack(ErrLoopStopped)
		}
	}
}
