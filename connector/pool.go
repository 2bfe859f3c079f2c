package connector

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/errors"
)

// DefaultPort is used for any endpoint without an explicit port.
const DefaultPort = 6163

// Environment overrides for single-endpoint mode. NATS_USER and NATS_PASSWORD
// also override every pool member's credentials.
const (
	EnvServer   = "NATS_SERVER"
	EnvPort     = "NATS_PORT"
	EnvUser     = "NATS_USER"
	EnvPassword = "NATS_PASSWORD"
)

// settings keys are read below this prefix, i.e. plugin.nats.*
const settingsPrefix = "nats."

// Endpoint is one broker a connector may dial.
type Endpoint struct {
	Host     string
	Port     int
	Login    string
	Passcode string
	TLS      bool
}

// URL renders the endpoint as a NATS server URL with embedded credentials.
func (e Endpoint) URL() string {
	u := url.URL{
		Scheme: "nats",
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
	}
	if e.TLS {
		u.Scheme = "tls"
	}
	if e.Login != "" {
		u.User = url.UserPassword(e.Login, e.Passcode)
	}
	return u.String()
}

// String returns host:port, never the credentials.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Policy is the failover policy handed to the transport.
type Policy struct {
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
	UseExponentialBackOff bool
	BackOffMultiplier     float64
	MaxReconnectAttempts  int // 0 is unlimited
	Randomize             bool
	Backup                bool
	Timeout               time.Duration // <= 0 is none
}

// DefaultPolicy returns the policy used for any key that is not configured.
func DefaultPolicy() Policy {
	return Policy{
		InitialReconnectDelay: 10 * time.Millisecond,
		MaxReconnectDelay:     30 * time.Second,
		UseExponentialBackOff: true,
		BackOffMultiplier:     2,
		MaxReconnectAttempts:  0,
		Randomize:             false,
		Backup:                false,
		Timeout:               -1 * time.Second,
	}
}

// Pool is an ordered list of endpoints plus the policy for moving between them.
type Pool struct {
	Endpoints []Endpoint
	Policy    Policy
}

// URLs returns the endpoint URLs in pool order.
func (p Pool) URLs() []string {
	out := make([]string, len(p.Endpoints))
	for i, e := range p.Endpoints {
		out[i] = e.URL()
	}
	return out
}

// UsesTLS reports whether any member needs TLS.
func (p Pool) UsesTLS() bool {
	for _, e := range p.Endpoints {
		if e.TLS {
			return true
		}
	}
	return false
}

// ParsePool builds the connection pool from plugin settings.
//
// With plugin.nats.pool.size set, members 1..size are read from
// pool.host{i}, pool.port{i}, pool.user{i}, pool.password{i} and pool.ssl{i}.
// Otherwise a single endpoint is read from nats.host, nats.port, nats.user and
// nats.password, each overridable from the environment. A missing required
// value fails with errors.ErrMissingConfig and no pool is returned.
func ParsePool(settings config.PluginSettings) (Pool, error) {
	policy, err := parsePolicy(settings)
	if err != nil {
		return Pool{}, errors.WrapFatal(err, "Connector", "ParsePool", "policy parsing")
	}

	var endpoints []Endpoint
	if settings.Has(key("pool.size")) {
		endpoints, err = parseMembers(settings)
	} else {
		var e Endpoint
		e, err = parseSingle(settings)
		endpoints = []Endpoint{e}
	}
	if err != nil {
		return Pool{}, errors.WrapFatal(err, "Connector", "ParsePool", "endpoint parsing")
	}

	return Pool{Endpoints: endpoints, Policy: policy}, nil
}

func parseSingle(settings config.PluginSettings) (Endpoint, error) {
	host, ok := settings.EnvOrString(EnvServer, key("host"))
	if !ok {
		return Endpoint{}, errors.Detail(errors.ErrMissingConfig, "no %s or plugin.%s", EnvServer, key("host"))
	}

	port := DefaultPort
	if v, ok := settings.EnvOrString(EnvPort, key("port")); ok {
		p, err := parsePort(v)
		if err != nil {
			return Endpoint{}, err
		}
		port = p
	}

	user, ok := settings.EnvOrString(EnvUser, key("user"))
	if !ok {
		return Endpoint{}, errors.Detail(errors.ErrMissingConfig, "no %s or plugin.%s", EnvUser, key("user"))
	}
	password, ok := settings.EnvOrString(EnvPassword, key("password"))
	if !ok {
		return Endpoint{}, errors.Detail(errors.ErrMissingConfig, "no %s or plugin.%s", EnvPassword, key("password"))
	}

	return Endpoint{
		Host:     host,
		Port:     port,
		Login:    user,
		Passcode: password,
		TLS:      settings.Bool(key("ssl"), false),
	}, nil
}

func parseMembers(settings config.PluginSettings) ([]Endpoint, error) {
	size, err := settings.Int(key("pool.size"), 0)
	if err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, errors.Detail(errors.ErrInvalidConfig, "plugin.%s must be at least 1, got %d", key("pool.size"), size)
	}

	endpoints := make([]Endpoint, 0, size)
	for i := 1; i <= size; i++ {
		member := func(field string) string { return key(fmt.Sprintf("pool.%s%d", field, i)) }

		host, ok := settings.Lookup(member("host"))
		if !ok {
			return nil, errors.Detail(errors.ErrMissingConfig, "pool member %d: plugin.%s is not set", i, member("host"))
		}

		port := DefaultPort
		if v, ok := settings.Lookup(member("port")); ok {
			p, err := parsePort(v)
			if err != nil {
				return nil, fmt.Errorf("pool member %d: %w", i, err)
			}
			port = p
		}

		user, ok := settings.EnvOrString(EnvUser, member("user"))
		if !ok {
			return nil, errors.Detail(errors.ErrMissingConfig, "pool member %d: plugin.%s is not set", i, member("user"))
		}
		password, ok := settings.EnvOrString(EnvPassword, member("password"))
		if !ok {
			return nil, errors.Detail(errors.ErrMissingConfig, "pool member %d: plugin.%s is not set", i, member("password"))
		}

		endpoints = append(endpoints, Endpoint{
			Host:     host,
			Port:     port,
			Login:    user,
			Passcode: password,
			TLS:      settings.Bool(member("ssl"), false),
		})
	}

	return endpoints, nil
}

func parsePolicy(settings config.PluginSettings) (Policy, error) {
	p := DefaultPolicy()
	var err error

	if p.InitialReconnectDelay, err = settings.Seconds(key("pool.initial_reconnect_delay"), p.InitialReconnectDelay); err != nil {
		return Policy{}, err
	}
	if p.MaxReconnectDelay, err = settings.Seconds(key("pool.max_reconnect_delay"), p.MaxReconnectDelay); err != nil {
		return Policy{}, err
	}
	if p.BackOffMultiplier, err = settings.Float(key("pool.back_off_multiplier"), p.BackOffMultiplier); err != nil {
		return Policy{}, err
	}
	if p.MaxReconnectAttempts, err = settings.Int(key("pool.max_reconnect_attempts"), p.MaxReconnectAttempts); err != nil {
		return Policy{}, err
	}
	if p.Timeout, err = settings.Seconds(key("pool.timeout"), p.Timeout); err != nil {
		return Policy{}, err
	}
	p.UseExponentialBackOff = settings.Bool(key("pool.use_exponential_back_off"), p.UseExponentialBackOff)
	p.Randomize = settings.Bool(key("pool.randomize"), p.Randomize)
	p.Backup = settings.Bool(key("pool.backup"), p.Backup)

	switch {
	case p.InitialReconnectDelay < 0 || p.MaxReconnectDelay < 0:
		return Policy{}, errors.Detail(errors.ErrInvalidConfig, "reconnect delays must not be negative")
	case p.MaxReconnectAttempts < 0:
		return Policy{}, errors.Detail(errors.ErrInvalidConfig, "plugin.%s must not be negative", key("pool.max_reconnect_attempts"))
	case p.UseExponentialBackOff && p.BackOffMultiplier < 1:
		return Policy{}, errors.Detail(errors.ErrInvalidConfig, "plugin.%s must be at least 1", key("pool.back_off_multiplier"))
	}

	return p, nil
}

func parsePort(v string) (int, error) {
	port, err := strconv.Atoi(v)
	if err != nil || port < 1 || port > 65535 {
		return 0, errors.Detail(errors.ErrInvalidConfig, "%q is not a valid port", v)
	}
	return port, nil
}

func key(k string) string {
	return settingsPrefix + k
}
