package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/hospital-bed-platform/internal/config"
	"github.com/wolfman30/hospital-bed-platform/internal/events"
	"github.com/wolfman30/hospital-bed-platform/internal/notify"
	"github.com/wolfman30/hospital-bed-platform/internal/realtime"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

// BuildEmailSender picks SES, SendGrid, or a logging stub for alert email.
func BuildEmailSender(cfg *appconfig.Config, ses *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}
	if cfg.UseSESForAlerts && ses != nil {
		from := cfg.SESFromEmail
		if from == "" {
			from = cfg.AlertFromEmail
		}
		if sender := notify.NewSESSender(ses, notify.SESConfig{FromEmail: from, FromName: cfg.AlertFromName}, logger); sender != nil {
			logger.Info("alert email via SES", "from", from)
			return sender
		}
	}
	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.AlertFromEmail,
		FromName:  cfg.AlertFromName,
	}, logger); sender != nil {
		logger.Info("alert email via SendGrid", "from", cfg.AlertFromEmail)
		return sender
	}
	logger.Warn("no email provider configured; alert emails will only be logged")
	return notify.NewStubEmailSender(logger)
}

// EventDeps are the optional collaborators an event pipeline fans out to.
// Nil members are skipped.
type EventDeps struct {
	Pool     *pgxpool.Pool
	Redis    redis.UniversalClient
	SQS      events.SQSAPI
	S3       events.S3API
	Hub      *realtime.Hub
	Notifier *notify.AlertNotifier
}

// EventPipeline is the wired bus plus the outbox deliverer, when one exists.
type EventPipeline struct {
	Bus       *events.Bus
	Deliverer *events.Deliverer
	Sinks     []string
}

// BuildEventPipeline subscribes downstream sinks to a new bus. With a
// database pool they sit behind the outbox and the returned Deliverer drains
// it. The realtime hub always reads the bus directly.
func BuildEventPipeline(cfg *appconfig.Config, deps EventDeps, logger *logging.Logger) *EventPipeline {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		cfg = &appconfig.Config{}
	}
	bus := events.NewBus(logger)
	p := &EventPipeline{Bus: bus}

	var downstream events.MultiSink
	if deps.Redis != nil {
		downstream = append(downstream, events.NewRedisSink(deps.Redis, cfg.EventsChannel))
		p.Sinks = append(p.Sinks, "redis")
	}
	if deps.SQS != nil && strings.TrimSpace(cfg.EventsQueueURL) != "" {
		downstream = append(downstream, events.NewSQSSink(deps.SQS, cfg.EventsQueueURL))
		p.Sinks = append(p.Sinks, "sqs")
	}
	if deps.S3 != nil && strings.TrimSpace(cfg.EventsArchiveBucket) != "" {
		downstream = append(downstream, events.NewS3Archive(deps.S3, cfg.EventsArchiveBucket))
		p.Sinks = append(p.Sinks, "s3")
	}
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		notifier := deps.Notifier
		if deps.Pool != nil {
			notifier = notifier.WithProcessedTracker(events.NewProcessedStore(deps.Pool))
		}
		downstream = append(downstream, notifier)
		p.Sinks = append(p.Sinks, "alert-email")
	}

	if deps.Pool != nil {
		outbox := events.NewOutboxStore(deps.Pool)
		bus.Subscribe("outbox", outbox)
		p.Deliverer = events.NewDeliverer(outbox, events.SinkHandler{Sink: downstream}, logger).
			WithInterval(cfg.OutboxPollInterval)
		p.Sinks = append(p.Sinks, "outbox")
	} else if len(downstream) > 0 {
		bus.Subscribe("downstream", downstream)
	}
	if deps.Hub != nil {
		bus.Subscribe("realtime", deps.Hub)
		p.Sinks = append(p.Sinks, "realtime")
	}
	logger.Info("event pipeline wired", "sinks", p.Sinks)
	return p
}
