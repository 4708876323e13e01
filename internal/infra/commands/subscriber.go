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

// Subscriber consumes the command subject inside a queue group, so exactly
// one orchestrator replica handles each message.
type Subscriber struct {
	conn       *nats.Conn
	dispatcher *Dispatcher
	subject    string
	queue      string
	logger     *zap.Logger
	sub        *nats.Subscription
}

type SubscriberOptions struct {
	Subject string
	Queue   string
	Logger  *zap.Logger
}

func NewSubscriber(conn *nats.Conn, dispatcher *Dispatcher, opts SubscriberOptions) *Subscriber {
	subject := opts.Subject
	if subject == "" {
		subject = domain.DefaultCommandSubject
	}
	queue := opts.Queue
	if queue == "" {
		queue = domain.DefaultCommandQueue
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		conn:       conn,
		dispatcher: dispatcher,
		subject:    subject,
		queue:      queue,
		logger:     logger.Named("commands"),
	}
}

// Start subscribes and handles commands until Stop. Messages are handled
// one at a time so commands apply in arrival order.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.conn.QueueSubscribe(s.subject, s.queue, func(msg *nats.Msg) {
		s.handle(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	s.sub = sub
	s.logger.Info("command subscriber started",
		zap.String("subject", s.subject),
		zap.String("queue", s.queue),
	)
	return nil
}

func (s *Subscriber) handle(ctx context.Context, data []byte) {
	var cmd domain.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.logger.Warn("discarding malformed command",
			telemetry.EventField(telemetry.EventCommandRejected),
			zap.Error(err),
		)
		return
	}

	fields := []zap.Field{
		telemetry.EventField(telemetry.EventCommandReceived),
		telemetry.CommandField(cmd.Type),
	}
	if cmd.InstanceID != "" {
		fields = append(fields, telemetry.InstanceIDField(cmd.InstanceID))
	}
	s.logger.Info("command received", fields...)

	if err := s.dispatcher.Dispatch(ctx, cmd); err != nil {
		s.logger.Warn("command failed",
			telemetry.EventField(telemetry.EventCommandRejected),
			telemetry.CommandField(cmd.Type),
			zap.Error(err),
		)
	}
}

// Stop drains the subscription; in-flight handlers finish first.
func (s *Subscriber) Stop() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
}
