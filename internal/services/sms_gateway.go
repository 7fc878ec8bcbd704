package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
)

// SMSGatewayService posts one-time codes to an HTTP SMS gateway.
// The gateway receives {"to", "from", "message"} as JSON with a bearer token.
type SMSGatewayService struct {
	client   *http.Client
	url      string
	token    string
	senderID string
	logger   *slog.Logger
}

type smsGatewayRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// NewSMSGatewayService creates a gateway sender. A nil client uses a 10 second timeout.
func NewSMSGatewayService(client *http.Client, url, token, senderID string, logger *slog.Logger) *SMSGatewayService {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SMSGatewayService{
		client:   client,
		url:      url,
		token:    token,
		senderID: senderID,
		logger:   logger,
	}
}

// SendCode texts a one-time code to target
func (s *SMSGatewayService) SendCode(ctx context.Context, target, code string, channel models.Channel) error {
	body, err := json.Marshal(smsGatewayRequest{
		To:      target,
		From:    s.senderID,
		Message: fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(channel.Validity().Minutes())),
	})
	if err != nil {
		return fmt.Errorf("failed to encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("sms gateway request failed", slog.Any("error", err))
		return fmt.Errorf("%w: sms gateway unreachable: %v", models.ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Error("sms gateway rejected message", slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: sms gateway returned status %d", models.ErrDeliveryFailure, resp.StatusCode)
	}

	s.logger.Info("verification code sms sent",
		slog.String("phone", pkglogger.SanitizedPhone(target)),
		slog.Int("status", resp.StatusCode))
	return nil
}
