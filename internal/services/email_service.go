package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/riskgate/internal/models"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the part of the SES client used to send mail
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends one-time codes by email using AWS SES
type AWSSESEmailService struct {
	sesClient   SESAPI
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESEmailServiceWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

// NewSESEmailServiceWithClient wraps an existing SES client
func NewSESEmailServiceWithClient(client SESAPI, fromAddress string, logger *slog.Logger) *AWSSESEmailService {
	return &AWSSESEmailService{
		sesClient:   client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

// SendCode emails a one-time code to target
func (s *AWSSESEmailService) SendCode(ctx context.Context, target, code string, channel models.Channel) error {
	minutes := int(channel.Validity().Minutes())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 28px; letter-spacing: 6px; font-weight: bold; padding: 12px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <p>Your sign-in verification code is:</p>
        <p class="code">%s</p>
        <p>The code expires in %d minutes and can be used once.</p>
        <p><strong>Didn't try to sign in?</strong><br>
        Someone may know your password. Change it and review your account security settings.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, code, minutes)

	textBody := fmt.Sprintf(`Your sign-in verification code is: %s

The code expires in %d minutes and can be used once.

Didn't try to sign in? Someone may know your password. Change it and review your account security settings.

This is an automated message. Please do not reply to this email.
`, code, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{target},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your verification code"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send verification code via SES",
			slog.String("email", pkglogger.SanitizedEmail(target)),
			slog.Any("error", err))
		return fmt.Errorf("%w: failed to send email: %v", models.ErrDeliveryFailure, err)
	}

	s.logger.Info("verification code email sent",
		slog.String("email", pkglogger.SanitizedEmail(target)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
