package rdm

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Transport names accepted in Config.Transport.
const (
	TransportHTTP     = "http"
	TransportFastHTTP = "fasthttp"
)

// Duration is a time.Duration read from a TOML string such as "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return errors.WithStack(err)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the settings of a Client and a Server.
type Config struct {
	URL              string   `toml:"url"`                // server base URL, used by Client
	SessionID        string   `toml:"session_id"`         // existing session to attach to, Client creates one if empty
	SessionHeader    string   `toml:"session_header"`     // HTTP header carrying the session ID
	Transport        string   `toml:"transport"`          // "http" or "fasthttp"
	FailureThreshold int      `toml:"failure_threshold"`  // consecutive failed exchanges before the connection is lost
	StartDelay       Duration `toml:"start_delay"`        // delay before the first exchange
	RequestTimeout   Duration `toml:"request_timeout"`    // upper bound for one exchange
	PollTimeout      Duration `toml:"poll_timeout"`       // how long the server holds an idle exchange
	IdleTimeout      Duration `toml:"idle_timeout"`       // how long a server session lives without exchanges
	MaxBodySize      int64    `toml:"max_body_size"`      // largest exchange body accepted
	ClientCallPrefix string   `toml:"client_call_prefix"` // request ID prefix for client calls
	ServerCallPrefix string   `toml:"server_call_prefix"` // request ID prefix for server calls
	LogLevel         string   `toml:"log_level"`          // logrus level name
	Listen           string   `toml:"listen"`             // address the server listens on
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	return Config{
		SessionHeader:    DefaultSessionHeader,
		Transport:        TransportHTTP,
		FailureThreshold: DefaultFailureThreshold,
		StartDelay:       Duration{DefaultStartDelay},
		RequestTimeout:   Duration{DefaultRequestTimeout},
		PollTimeout:      Duration{DefaultPollTimeout},
		IdleTimeout:      Duration{DefaultIdleTimeout},
		MaxBodySize:      DefaultMaxBodySize,
		ClientCallPrefix: DefaultClientCallPrefix,
		ServerCallPrefix: DefaultServerCallPrefix,
		LogLevel:         logrus.InfoLevel.String(),
		Listen:           "127.0.0.1:10111",
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig and validates the result.
func LoadConfig(path string) (cfg Config, err error) {
	cfg = DefaultConfig()
	var md toml.MetaData
	if md, err = toml.DecodeFile(path, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config %q", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return cfg, errors.Errorf("config %q: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, cfg.Validate()
}

// Validate checks that the settings are usable.
func (cfg Config) Validate() error {
	switch {
	case cfg.SessionHeader == "":
		return errors.New("session_header must not be empty")
	case cfg.Transport != TransportHTTP && cfg.Transport != TransportFastHTTP:
		return errors.Errorf("transport %q is not %q or %q", cfg.Transport, TransportHTTP, TransportFastHTTP)
	case cfg.FailureThreshold < 1:
		return errors.Errorf("failure_threshold %d < 1", cfg.FailureThreshold)
	case cfg.StartDelay.Duration < 0:
		return errors.Errorf("start_delay %v < 0", cfg.StartDelay)
	case cfg.PollTimeout.Duration <= 0:
		return errors.Errorf("poll_timeout %v <= 0", cfg.PollTimeout)
	case cfg.RequestTimeout.Duration > 0 && cfg.RequestTimeout.Duration <= cfg.PollTimeout.Duration:
		return errors.Errorf("request_timeout %v <= poll_timeout %v", cfg.RequestTimeout, cfg.PollTimeout)
	case cfg.IdleTimeout.Duration <= cfg.PollTimeout.Duration:
		return errors.Errorf("idle_timeout %v <= poll_timeout %v", cfg.IdleTimeout, cfg.PollTimeout)
	case cfg.MaxBodySize < 0:
		return errors.Errorf("max_body_size %d < 0", cfg.MaxBodySize)
	case cfg.ClientCallPrefix == cfg.ServerCallPrefix:
		return errors.Errorf("client_call_prefix and server_call_prefix are both %q", cfg.ClientCallPrefix)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Logger returns a logrus logger at the configured level.
func (cfg Config) Logger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	return log
}
