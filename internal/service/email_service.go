package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/pkg/config"
	"github.com/noah-isme/scholarship-api/pkg/jobs"
)

// Email template kinds understood by the dispatcher.
const (
	EmailKindRecommendationInvite   = "recommendation_invite"
	EmailKindRecommendationResend   = "recommendation_resend"
	EmailKindRecommendationReminder = "recommendation_reminder"
	EmailKindApplicationStatus      = "application_status"
)

// EmailMessage is one queued outbound email.
type EmailMessage struct {
	Kind      string            `json:"kind"`
	Recipient string            `json:"recipient"`
	Variables map[string]string `json:"variables"`
}

// EmailSender delivers a single message. Production deployments plug in a
// transactional provider; the default sender only logs.
type EmailSender interface {
	Send(ctx context.Context, from string, msg EmailMessage) error
}

// LogEmailSender writes outbound mail to the log instead of delivering it.
type LogEmailSender struct {
	logger *zap.Logger
}

// NewLogEmailSender constructs the logging sender.
func NewLogEmailSender(logger *zap.Logger) *LogEmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmailSender{logger: logger}
}

// Send implements EmailSender.
func (s *LogEmailSender) Send(_ context.Context, from string, msg EmailMessage) error {
	s.logger.Info("email dispatched",
		zap.String("kind", msg.Kind),
		zap.String("from", from),
		zap.String("to", msg.Recipient),
		zap.Any("variables", msg.Variables),
	)
	return nil
}

// EmailService queues outbound email through the background job queue.
// Dispatch is fire-and-forget: enqueue failures are logged, never returned,
// because losing a notification must not fail the triggering operation.
type EmailService struct {
	queue  *jobs.Queue
	cfg    config.EmailConfig
	logger *zap.Logger
}

// NewEmailService builds the service and its worker queue.
func NewEmailService(sender EmailSender, cfg config.EmailConfig, logger *zap.Logger) *EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = NewLogEmailSender(logger)
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(EmailMessage)
		if !ok {
			return fmt.Errorf("unexpected email payload %T", job.Payload)
		}
		return sender.Send(ctx, cfg.FromAddress, msg)
	}
	queue := jobs.NewQueue("email", handler, jobs.QueueConfig{
		Workers:    cfg.QueueWorkers,
		MaxRetries: cfg.QueueRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logger,
	})
	return &EmailService{queue: queue, cfg: cfg, logger: logger}
}

// Start launches the queue workers.
func (s *EmailService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue.
func (s *EmailService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues an email. Never returns an error to the caller.
func (s *EmailService) Dispatch(kind, recipient string, variables map[string]string) {
	if variables == nil {
		variables = map[string]string{}
	}
	variables["portal_url"] = s.cfg.PortalBaseURL
	if err := s.queue.Enqueue(jobs.Job{
		Type:    kind,
		Payload: EmailMessage{Kind: kind, Recipient: recipient, Variables: variables},
	}); err != nil {
		s.logger.Warn("failed to enqueue email",
			zap.String("kind", kind),
			zap.String("to", recipient),
			zap.Error(err),
		)
	}
}

// RecommendationLink builds the tokenized recommender URL.
func (s *EmailService) RecommendationLink(token string) string {
	return fmt.Sprintf("%s/recommend/%s", s.cfg.PortalBaseURL, token)
}
