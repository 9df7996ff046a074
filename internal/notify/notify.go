// Package notify emails a short summary when a clean master build
// completes. Subject and body are Liquid templates so operators can reword
// them without a deploy.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/osteele/liquid"
)

const (
	DefaultSubject = `Clean master {{ status }}: {{ written }} lines written`
	DefaultBody    = `Run {{ run_id }} {{ status }} at {{ finished_at | date: "%Y-%m-%d %H:%M UTC" }}.

Lines written: {{ written }}
Lines excluded: {{ excluded }}
{% if export_key != "" %}Snapshot: s3://{{ export_bucket }}/{{ export_key }}
{% endif %}{{ message }}
`
)

// EmailSender is the subset of *sesv2.Client the notifier needs.
type EmailSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Config configures the SES notifier.
type Config struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Summary is what a notification reports. Its fields are exposed to the
// templates under their snake_case names.
type Summary struct {
	RunID        string
	Status       string
	Written      int
	Excluded     int
	Message      string
	FinishedAt   time.Time
	ExportBucket string
	ExportKey    string
}

func (s Summary) bindings() liquid.Bindings {
	return liquid.Bindings{
		"run_id":        s.RunID,
		"status":        s.Status,
		"written":       s.Written,
		"excluded":      s.Excluded,
		"message":       s.Message,
		"finished_at":   s.FinishedAt,
		"export_bucket": s.ExportBucket,
		"export_key":    s.ExportKey,
	}
}

// SESNotifier sends summaries through SES v2.
type SESNotifier struct {
	client EmailSender
	cfg    Config

	engine *liquid.Engine
	once   sync.Once
	subj   *liquid.Template
	body   *liquid.Template
	err    error
}

// NewSESNotifier creates a notifier. Use sesv2.NewFromConfig for client.
func NewSESNotifier(client EmailSender, cfg Config) *SESNotifier {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Body == "" {
		cfg.Body = DefaultBody
	}
	return &SESNotifier{client: client, cfg: cfg, engine: liquid.NewEngine()}
}

// Validate parses both templates.
func (n *SESNotifier) Validate() error {
	n.once.Do(func() {
		var serr liquid.SourceError
		if n.subj, serr = n.engine.ParseString(n.cfg.Subject); serr != nil {
			n.err = fmt.Errorf("subject template: %w", serr)
			return
		}
		if n.body, serr = n.engine.ParseString(n.cfg.Body); serr != nil {
			n.err = fmt.Errorf("body template: %w", serr)
		}
	})
	return n.err
}

// Render returns the subject and body for s.
func (n *SESNotifier) Render(s Summary) (string, string, error) {
	if err := n.Validate(); err != nil {
		return "", "", err
	}
	b := s.bindings()
	subj, serr := n.subj.RenderString(b)
	if serr != nil {
		return "", "", fmt.Errorf("render subject: %w", serr)
	}
	body, serr := n.body.RenderString(b)
	if serr != nil {
		return "", "", fmt.Errorf("render body: %w", serr)
	}
	return strings.TrimSpace(subj), body, nil
}

// Notify sends the summary to every configured recipient.
func (n *SESNotifier) Notify(ctx context.Context, s Summary) error {
	if len(n.cfg.To) == 0 {
		return nil
	}
	subj, body, err := n.Render(s)
	if err != nil {
		return err
	}
	_, err = n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.cfg.From),
		Destination:      &types.Destination{ToAddresses: n.cfg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subj), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sending build summary: %w", err)
	}
	return nil
}
