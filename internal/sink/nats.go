package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nats-io/nats.go"

	"github.com/scan-io-git/ot-collector/pkg/shared/config"
)

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSSink publishes each envelope on <prefix>.<sourcetype>.
type NATSSink struct {
	conn   Publisher
	prefix string
	logger hclog.Logger
}

// NewNATSSink connects to the configured NATS server.
func NewNATSSink(cfg *config.NATSSink, logger hclog.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("ot-collector"),
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %q: %w", cfg.URL, err)
	}
	return NewNATSSinkWithPublisher(conn, cfg.SubjectPrefix, logger), nil
}

// NewNATSSinkWithPublisher wraps an existing connection.
func NewNATSSinkWithPublisher(conn Publisher, prefix string, logger hclog.Logger) *NATSSink {
	return &NATSSink{
		conn:   conn,
		prefix: config.SetThen(prefix, config.DefaultNATSSubjectPrefix),
		logger: logger,
	}
}

// Subject returns the subject events of sourcetype are published on.
func (s *NATSSink) Subject(sourcetype string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case ':', ' ', '*', '>', '/':
			return '.'
		default:
			return r
		}
	}, sourcetype)
	token = strings.Trim(token, ".")
	if token == "" {
		token = "events"
	}
	return s.prefix + "." + token
}

func (s *NATSSink) Emit(_ context.Context, ev Event) error {
	data, err := marshalEnvelope(ev)
	if err != nil {
		return err
	}
	subject := s.Subject(ev.Sourcetype)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish on %q: %w", subject, err)
	}
	return nil
}

// flushTimeout bounds a flush when the caller's context has no deadline.
const flushTimeout = 10 * time.Second

// Flush waits for the server to acknowledge everything published so far.
func (s *NATSSink) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
