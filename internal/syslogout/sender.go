package syslogout

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/seclogix/auditpipe/internal/model"
)

// securePort is the well-known TLS syslog port; targeting it upgrades the
// connection to TLS with server identity verification.
const securePort = 6514

const defaultDialTimeout = 10 * time.Second

// TransportError reports a failed delivery attempt for one event. Delivery
// is not retried; retry policy belongs to the caller.
type TransportError struct {
	EventID string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("syslogout: send event %s: %v", e.EventID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Option configures Sender behavior.
type Option func(*Sender)

// WithDialTimeout sets the connect/write timeout. Default: 10s.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Sender) { s.dialTimeout = d }
}

// WithTLSConfig overrides the TLS client configuration used on the secure
// port. Default: system roots with ServerName set to the target host.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Sender) { s.tlsConfig = cfg }
}

// Sender delivers formatted events to a syslog collector. Each Send opens a
// fresh connection, writes one message, and closes; there is no pooling.
type Sender struct {
	host        string
	port        int
	hostname    string
	dialTimeout time.Duration
	tlsConfig   *tls.Config
	now         func() time.Time
}

// NewSender creates a Sender targeting host:port. hostname is the HOSTNAME
// field stamped on every message.
func NewSender(host string, port int, hostname string, opts ...Option) *Sender {
	s := &Sender{
		host:        host,
		port:        port,
		hostname:    hostname,
		dialTimeout: defaultDialTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send formats and delivers one event. Any dial, handshake, or write
// failure surfaces as a *TransportError.
func (s *Sender) Send(ctx context.Context, ev model.CanonicalEvent) error {
	line, err := Format(ev, s.hostname, s.now())
	if err != nil {
		return &TransportError{EventID: ev.ID, Err: err}
	}

	d := net.Dialer{Timeout: s.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return &TransportError{EventID: ev.ID, Err: err}
	}
	defer conn.Close()

	if err := conn.SetDeadline(s.now().Add(s.dialTimeout)); err != nil {
		return &TransportError{EventID: ev.ID, Err: err}
	}

	w := net.Conn(conn)
	if s.port == securePort {
		tlsConn := tls.Client(conn, s.clientTLS())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return &TransportError{EventID: ev.ID, Err: err}
		}
		defer tlsConn.Close()
		w = tlsConn
	}

	if _, err := w.Write([]byte(line)); err != nil {
		return &TransportError{EventID: ev.ID, Err: err}
	}
	return nil
}

func (s *Sender) clientTLS() *tls.Config {
	if s.tlsConfig != nil {
		return s.tlsConfig
	}
	return &tls.Config{ServerName: s.host}
}
