package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/riskgate/internal/models"
)

// CodeSender delivers a one-time code to one kind of contact point
type CodeSender interface {
	SendCode(ctx context.Context, target, code string, channel models.Channel) error
}

// ChannelRouter implements NotificationChannel by dispatching each channel to its sender
type ChannelRouter struct {
	senders map[models.Channel]CodeSender
}

// NewChannelRouter creates a router. Channels without a sender fail delivery.
func NewChannelRouter(senders map[models.Channel]CodeSender) *ChannelRouter {
	return &ChannelRouter{senders: senders}
}

func (r *ChannelRouter) Send(ctx context.Context, channel models.Channel, target, code string) error {
	sender, ok := r.senders[channel]
	if !ok {
		return fmt.Errorf("%w: no sender for channel %q", models.ErrDeliveryFailure, channel)
	}
	if err := sender.SendCode(ctx, target, code, channel); err != nil {
		if errors.Is(err, models.ErrDeliveryFailure) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrDeliveryFailure, err)
	}
	return nil
}

// LogCodeSender writes codes to the log instead of delivering them.
// Only for local development.
type LogCodeSender struct {
	logger *slog.Logger
}

func NewLogCodeSender(logger *slog.Logger) *LogCodeSender {
	return &LogCodeSender{logger: logger}
}

func (s *LogCodeSender) SendCode(ctx context.Context, target, code string, channel models.Channel) error {
	s.logger.Info("one-time code (not delivered, log mode)",
		slog.String("channel", string(channel)),
		slog.String("target", target),
		slog.String("code", code),
		slog.Duration("valid_for", channel.Validity()))
	return nil
}
