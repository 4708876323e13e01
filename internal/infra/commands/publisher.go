package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

type PublisherOptions struct {
	Subject string
	Logger  *zap.Logger
}

func NewPublisher(conn *nats.Conn, opts PublisherOptions) *Publisher {
	subject := opts.Subject
	if subject == "" {
		subject = domain.DefaultCommandSubject
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  logger.Named("commands"),
	}
}

// Publish sends one command envelope and flushes, so a returning call means
// the server accepted the message.
func (p *Publisher) Publish(ctx context.Context, cmd domain.Command) error {
	if !cmd.Type.Known() {
		return domain.E(domain.CodeConfiguration, "commands.publish",
			fmt.Sprintf("unknown command type %q", cmd.Type), nil)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush command: %w", err)
	}
	p.logger.Debug("command published",
		telemetry.CommandField(cmd.Type),
		zap.String("subject", p.subject),
	)
	return nil
}
