// Package ses delivers messages through AWS SES v2 as raw emails.
package ses

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Config holds the configuration for creating a Sink.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Sender overrides the envelope sender. Empty uses the From header.
	Sender string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sink sends each appended message as an email. The mailbox is carried as a
// message tag so it can be routed on the receiving side.
type Sink struct {
	sender string
	client SendEmailAPI
}

// New creates a Sink from the default AWS configuration chain.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Sink with a custom client.
func NewWithClient(sender string, client SendEmailAPI) *Sink {
	return &Sink{sender: sender, client: client}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "ses"
}

var tagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Append sends content, recipients being taken from its headers.
func (s *Sink) Append(ctx context.Context, mailbox string, content []byte) error {
	input := &sesv2.SendEmailInput{
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: content},
		},
	}
	if s.sender != "" {
		input.FromEmailAddress = aws.String(s.sender)
	}
	if mailbox != "" {
		input.EmailTags = []types.MessageTag{{
			Name:  aws.String("mailbox"),
			Value: aws.String(tagUnsafe.ReplaceAllString(mailbox, "_")),
		}}
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("SES send: %w", err)
	}
	return nil
}
