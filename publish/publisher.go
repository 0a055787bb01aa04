// Package publish sends result envelopes to NATS so other services can react
// to new comparisons and completeness checks.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/semdiff/config"
	"github.com/c360studio/semdiff/report"
)

// HeaderMsgID carries the envelope ID so JetStream streams can deduplicate.
const HeaderMsgID = "Nats-Msg-Id"

// HeaderKind carries the envelope kind.
const HeaderKind = "Semdiff-Kind"

// ErrDisabled is returned by Connect when no NATS URL is configured.
var ErrDisabled = errors.New("publishing disabled: nats.url is empty")

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// Publisher publishes envelopes under a subject prefix.
type Publisher struct {
	conn    Conn
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Publisher over an existing connection.
func New(conn Conn, prefix string, timeout time.Duration, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:    conn,
		prefix:  strings.TrimSuffix(prefix, "."),
		timeout: timeout,
		logger:  logger,
	}
}

// Connect dials the configured NATS server.
func Connect(cfg config.NATSConfig, logger *slog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, ErrDisabled
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("semdiff"),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return New(conn, cfg.SubjectPrefix, cfg.Timeout, logger), nil
}

// Subject returns the subject an envelope kind is published on.
func (p *Publisher) Subject(kind report.Kind) string {
	return p.prefix + "." + string(kind)
}

// Publish sends env as JSON and waits for the server to acknowledge the flush.
func (p *Publisher) Publish(ctx context.Context, env *report.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Kind, err)
	}

	msg := nats.NewMsg(p.Subject(env.Kind))
	msg.Data = data
	msg.Header.Set(HeaderMsgID, env.ID)
	msg.Header.Set(HeaderKind, string(env.Kind))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout || timeout <= 0 {
			timeout = remaining
		}
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("flush %s: %w", msg.Subject, err)
	}

	p.logger.Debug("Published result",
		slog.String("subject", msg.Subject),
		slog.String("id", env.ID),
		slog.Int("bytes", len(data)))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
