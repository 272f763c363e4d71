package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-pipeline/internal/channel"
	"github.com/spec-kit/intake-pipeline/internal/domain"
)

// OutboundWorker drains the outgoing queue into the channel connector.
type OutboundWorker struct {
	sender channel.Sender
	logger *zap.Logger
}

// NewOutboundWorker builds the worker.
func NewOutboundWorker(sender channel.Sender, logger *zap.Logger) *OutboundWorker {
	return &OutboundWorker{
		sender: sender,
		logger: logger.With(zap.String("component", "outbound-worker")),
	}
}

// Handle sends one outgoing message through the connector. A send failure
// (connector down) surfaces as an error; the broker drops the message, so a
// requester may miss a reply while the channel reconnects.
func (w *OutboundWorker) Handle(ctx context.Context, payload []byte) error {
	var msg domain.OutgoingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("unmarshal outgoing message: %w", err)
	}
	if msg.To == "" || msg.Text == "" {
		return nil
	}
	if err := w.sender.SendMessage(ctx, msg.To, msg.Text); err != nil {
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}
	return nil
}
