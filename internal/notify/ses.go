package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/waitlist-engine/internal/config"
	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
)

// sesAPI is the subset of *sesv2.Client the mailer needs.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer renders the confirmation email and sends it through AWS SES.
type SESMailer struct {
	client    sesAPI
	fromEmail string
	fromName  string
	replyTo   string
	renderer  *renderer
}

// NewSESClient builds an SES v2 client. Static keys are used when present,
// otherwise the default credential chain.
func NewSESClient(ctx context.Context, cfg config.SESConfig) (*sesv2.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return sesv2.NewFromConfig(awsCfg), nil
}

// NewSESMailer compiles templates and returns a mailer. Zero-value
// templates select DefaultTemplates.
func NewSESMailer(client sesAPI, cfg config.SESConfig, tmpl Templates) (*SESMailer, error) {
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("ses: from_email is required")
	}
	if tmpl.Subject == "" || tmpl.HTML == "" {
		tmpl = DefaultTemplates
	}
	r, err := newRenderer(tmpl)
	if err != nil {
		return nil, err
	}
	return &SESMailer{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		replyTo:   cfg.ReplyTo,
		renderer:  r,
	}, nil
}

// SendConfirmation renders and sends msg.
func (m *SESMailer) SendConfirmation(ctx context.Context, msg domain.ConfirmationEmail) error {
	out, err := m.renderer.render(msg)
	if err != nil {
		return err
	}

	from := m.fromEmail
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(out.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(out.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("message_type"), Value: aws.String("waitlist_confirmation")},
		},
	}
	if out.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(out.Text), Charset: aws.String("UTF-8")}
	}
	if m.replyTo != "" {
		input.ReplyToAddresses = []string{m.replyTo}
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	logger.Info("confirmation email sent", "email", msg.Email, "messageId", messageID, "resend", msg.Resend)
	return nil
}
