package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"eventcertificates/internal/domain"
)

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	Region             string
	AccessKeyID        string
	SecretAccessKey    string
	InsecureSkipVerify bool
}

// MailerConfig holds configuration for creating a mailer.
type MailerConfig struct {
	Provider    string
	FromAddress string
	FromName    string
	SES         SESConfig
}

// rawSender is the part of *ses.Client the mailer uses.
type rawSender interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// NewMailer creates a mailer from config. Provider "ses" uses AWS SES; "noop" or unknown uses a no-op mailer.
func NewMailer(config MailerConfig, logger *slog.Logger) (domain.Mailer, error) {
	switch config.Provider {
	case "ses":
		sesConfig := config.SES
		if sesConfig.Region == "" {
			return nil, fmt.Errorf("ses mailer requires AWS_REGION")
		}
		if config.FromAddress == "" {
			return nil, fmt.Errorf("ses mailer requires EMAIL_FROM_ADDRESS")
		}
		if sesConfig.InsecureSkipVerify {
			logger.Warn("TLS certificate verification is disabled for SES. Use only in development.")
		}
		httpClient := &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: sesConfig.InsecureSkipVerify,
					MinVersion:         tls.VersionTLS12,
				},
			},
		}
		awsCfg := aws.Config{
			Region: sesConfig.Region,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(
					sesConfig.AccessKeyID,
					sesConfig.SecretAccessKey,
					"",
				),
			),
			HTTPClient: httpClient,
		}
		return newSESMailer(ses.NewFromConfig(awsCfg), config.FromAddress, config.FromName, logger), nil
	case "noop":
		return &noopMailer{logger: logger}, nil
	default:
		logger.Warn("unknown email provider, using noop", "provider", config.Provider)
		return &noopMailer{logger: logger}, nil
	}
}

type sesMailer struct {
	client rawSender
	source string
	logger *slog.Logger
}

func newSESMailer(client rawSender, fromAddress, fromName string, logger *slog.Logger) *sesMailer {
	return &sesMailer{
		client: client,
		source: (&mail.Address{Name: fromName, Address: fromAddress}).String(),
		logger: logger,
	}
}

// Send delivers msg through SendRawEmail so attachments travel with the body.
func (s *sesMailer) Send(ctx context.Context, msg *domain.EmailMessage) error {
	raw, err := buildRawMessage(s.source, msg)
	if err != nil {
		return fmt.Errorf("build MIME message: %w", err)
	}
	input := &ses.SendRawEmailInput{
		Source:       aws.String(s.source),
		Destinations: []string{msg.To},
		RawMessage:   &types.RawMessage{Data: raw},
	}
	result, err := s.client.SendRawEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}
	s.logger.Info("email sent via SES", "message_id", aws.ToString(result.MessageId), "to", msg.To)
	return nil
}

type noopMailer struct {
	logger *slog.Logger
}

func (n *noopMailer) Send(ctx context.Context, msg *domain.EmailMessage) error {
	n.logger.Info("email would be sent (noop)", "to", msg.To, "subject", msg.Subject, "attachments", len(msg.Attachments))
	return nil
}
