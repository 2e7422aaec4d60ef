package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	pkglogger "github.com/velist/velist/pkg/logger"
)

type NotificationKind string

const (
	NotificationTwoFactorEnabled  NotificationKind = "two_factor_enabled"
	NotificationTwoFactorDisabled NotificationKind = "two_factor_disabled"
)

// Notifier tells a user about a change to their account security.
type Notifier interface {
	NotifySecurityEvent(ctx context.Context, email string, kind NotificationKind) error
}

// SESAPI is the subset of *ses.Client the notifier uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends security emails through AWS SES.
type SESNotifier struct {
	client      SESAPI
	fromAddress string
	appURL      string
	logger      *slog.Logger
	now         func() time.Time
}

func NewSESNotifier(ctx context.Context, region, fromAddress, appURL string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, appURL, logger), nil
}

func NewSESNotifierWithClient(client SESAPI, fromAddress, appURL string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{
		client:      client,
		fromAddress: fromAddress,
		appURL:      appURL,
		logger:      logger,
		now:         time.Now,
	}
}

func (n *SESNotifier) NotifySecurityEvent(ctx context.Context, email string, kind NotificationKind) error {
	subject, text := securityMessage(kind, n.appURL, n.now().UTC())

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(text)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("security notification sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("kind", string(kind)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogNotifier only logs. It is used when no sender address is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifySecurityEvent(ctx context.Context, email string, kind NotificationKind) error {
	n.logger.InfoContext(ctx, "security notification (not sent)",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("kind", string(kind)))
	return nil
}

func securityMessage(kind NotificationKind, appURL string, at time.Time) (subject, body string) {
	settings := appURL + "/settings/2fa"
	when := at.Format("2006-01-02 15:04 MST")

	switch kind {
	case NotificationTwoFactorEnabled:
		return "Two-factor authentication enabled",
			fmt.Sprintf("Two-factor authentication was turned on for your account at %s.\n\n"+
				"Keep your backup codes somewhere safe. If this wasn't you, review your account at %s.\n", when, settings)
	case NotificationTwoFactorDisabled:
		return "Two-factor authentication disabled",
			fmt.Sprintf("Two-factor authentication was turned off for your account at %s and all sessions were signed out.\n\n"+
				"If this wasn't you, sign in and turn it back on at %s.\n", when, settings)
	default:
		return "Account security update",
			fmt.Sprintf("The security settings of your account changed at %s.\n", when)
	}
}
