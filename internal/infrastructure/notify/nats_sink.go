package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

const defaultSubjectPrefix = "ncr.notifications"

type NATSOptions struct {
	URL           string
	SubjectPrefix string
	ClientName    string
	ConnectWait   time.Duration
}

// NATSSink publishes notification JSON on <prefix>.<kind>, for example
// ncr.notifications.escalated. The mail collaborator subscribes there.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSSink(opts NATSOptions) (*NATSSink, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	wait := opts.ConnectWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	name := strings.TrimSpace(opts.ClientName)
	if name == "" {
		name = "ncrflow"
	}

	logCtx := logging.WithAttrs(context.Background(), slog.String("component", "notify.nats"))
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(wait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn(logCtx, "nats disconnected", slog.Any("err", errs.Loggable(err)))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info(logCtx, "nats reconnected", slog.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, errs.Wrapf(err, "connect nats %s", url)
	}
	logging.Info(logCtx, "nats connected", slog.String("url", conn.ConnectedUrlRedacted()))

	return &NATSSink{conn: conn, prefix: subjectPrefix(opts.SubjectPrefix)}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Deliver(ctx context.Context, event ports.NotificationEvent) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errs.Wrap(err, "encode notification")
	}
	subject := Subject(s.prefix, event.Kind)
	if err := s.conn.Publish(subject, payload); err != nil {
		return errs.Wrapf(err, "publish %s", subject)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (s *NATSSink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return errs.Wrap(err, "drain nats connection")
	}
	return nil
}

// Subject builds the publish subject for a notification kind.
func Subject(prefix string, kind string) string {
	return subjectPrefix(prefix) + "." + strings.ToLower(strings.TrimSpace(kind))
}

func subjectPrefix(prefix string) string {
	trimmed := strings.Trim(strings.TrimSpace(prefix), ".")
	if trimmed == "" {
		return defaultSubjectPrefix
	}
	return trimmed
}
