package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESSender delivers notifications by email using AWS SES.
type SESSender struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewSESSender creates a new AWS SES-backed sender
func NewSESSender(region, fromAddress string, logger *slog.Logger) (*SESSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// Send delivers one notification email
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	subject, body := renderMessage(msg)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{msg.Identity},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := s.sesClient.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func renderMessage(msg Message) (string, string) {
	var subject string
	switch msg.EventType {
	case "password_reset":
		subject = "Password reset requested"
	case "mfa_code":
		subject = "Your verification code"
	case "account_locked":
		subject = "Account temporarily locked"
	default:
		subject = "Security notification"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A security event occurred on your account: %s\n\n", msg.EventType)
	for key, val := range msg.Detail {
		fmt.Fprintf(&b, "%s: %s\n", key, val)
	}
	b.WriteString("\nIf this wasn't you, contact support immediately.\n")

	return subject, b.String()
}
