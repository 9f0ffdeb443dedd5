package ingest

import (
	"context"
	"errors"

	"driftline/internal/metrics"
	"driftline/pkg/kafka"
	"driftline/pkg/logging"
	"driftline/pkg/models"
)

// RelationshipSink is the slice of the relationship store the ingest path
// writes through.
type RelationshipSink interface {
	UpsertLinkHint(ctx context.Context, hint models.LinkHint) error
	Create(ctx context.Context, input models.CreateRelationshipInput) (*models.ContentRelationship, error)
}

// DLQSink receives the encoded payload of a message that can never be
// processed. Wiring it to a producer is optional; the default sink logs.
type DLQSink func(ctx context.Context, payload []byte) error

// Config controls the auto-create escalation for high-confidence platform
// detections.
type Config struct {
	AutoCreate          bool
	AutoCreateThreshold float64
}

// Processor turns platform link events into stored hints, optionally
// escalating high-confidence detections into real relationships through the
// full store pipeline.
type Processor struct {
	sink    RelationshipSink
	cfg     Config
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewProcessor(sink RelationshipSink, cfg Config, logger logging.Logger) *Processor {
	return &Processor{sink: sink, cfg: cfg, logger: logger}
}

// SetMetrics attaches service metrics.
func (p *Processor) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

func (p *Processor) count(outcome string) {
	if p.metrics != nil && p.metrics.IngestEvents != nil {
		p.metrics.IngestEvents.WithLabelValues(outcome).Inc()
	}
}

// HandleEvent processes one decoded link event. Malformed events are
// reported as such so the consumer can DLQ them; transient storage failures
// propagate and block the partition for redelivery.
func (p *Processor) HandleEvent(ctx context.Context, event kafka.LinkEvent) error {
	relType := models.RelationshipType(event.RelationshipType)
	if !models.ValidRelationshipType(relType) {
		p.count("malformed")
		return &kafka.MalformedMessageError{Err: errors.New("unknown relationship type " + event.RelationshipType)}
	}
	if event.Confidence < 0 || event.Confidence > 1 {
		p.count("malformed")
		return &kafka.MalformedMessageError{Err: errors.New("confidence out of range")}
	}

	hint := models.LinkHint{
		SourceContentID:  event.SourceContentID,
		TargetContentID:  event.TargetContentID,
		RelationshipType: relType,
		Platform:         models.Platform(event.Platform),
		Confidence:       event.Confidence,
		DetectedAt:       event.DetectedAt,
	}
	if err := p.sink.UpsertLinkHint(ctx, hint); err != nil {
		p.count("storage_error")
		return err
	}
	p.count("hint_stored")

	if !p.cfg.AutoCreate || event.Confidence < p.cfg.AutoCreateThreshold {
		return nil
	}

	confidence := event.Confidence
	_, err := p.sink.Create(ctx, models.CreateRelationshipInput{
		SourceContentID:  event.SourceContentID,
		TargetContentID:  event.TargetContentID,
		RelationshipType: relType,
		Confidence:       &confidence,
		CreationMethod:   models.CreationPlatformDetected,
	})
	switch {
	case err == nil:
		p.count("auto_created")
	case models.IsConflict(err), models.IsResourceLimit(err), models.IsValidation(err), models.IsNotFound(err):
		// Deterministic refusals: redelivery would refuse again. The hint
		// is already stored, so just move on.
		p.count("auto_create_skipped")
		p.logger.WithFields(logging.Fields{
			"source": event.SourceContentID,
			"target": event.TargetContentID,
			"error":  err.Error(),
		}).Info("Platform auto-create skipped")
	default:
		p.count("storage_error")
		return err
	}
	return nil
}

// Service owns the link-event consumer registration: decode, domain
// handling, and the malformed-message DLQ path.
type Service struct {
	consumer  *kafka.Consumer
	processor *Processor
	dlq       DLQSink
	logger    logging.Logger
}

func NewService(consumer *kafka.Consumer, processor *Processor, dlq DLQSink, logger logging.Logger) *Service {
	return &Service{consumer: consumer, processor: processor, dlq: dlq, logger: logger}
}

// Register attaches the handler chain for the link-events topic. Malformed
// messages are DLQ-encoded and committed past; everything else follows the
// consumer's block-and-retry semantics.
func (s *Service) Register(topic string) {
	decoder := kafka.NewLinkEventHandler(s.processor.HandleEvent, s.logger)
	s.consumer.AddHandler(topic, func(ctx context.Context, msg kafka.Message) error {
		err := decoder.HandleMessage(ctx, msg)
		var malformed *kafka.MalformedMessageError
		if errors.As(err, &malformed) {
			payload, encErr := kafka.EncodeDLQMessage(msg, err, "wake-link-events")
			if encErr != nil {
				s.logger.WithFields(logging.Fields{"error": encErr.Error()}).Error("Failed to encode DLQ payload")
				return nil
			}
			if s.dlq != nil {
				if dlqErr := s.dlq(ctx, payload); dlqErr != nil {
					// Keep the partition blocked until the DLQ accepts it;
					// dropping the message here would lose it entirely.
					return dlqErr
				}
			} else {
				s.logger.WithFields(logging.Fields{
					"topic":  msg.Topic,
					"offset": msg.Offset,
					"error":  err.Error(),
				}).Warn("Malformed link event dropped (no DLQ sink configured)")
			}
			return nil
		}
		return err
	})
}

// Start runs the consumer until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	return s.consumer.Start(ctx)
}

// Close shuts the consumer down.
func (s *Service) Close() error {
	return s.consumer.Close()
}
