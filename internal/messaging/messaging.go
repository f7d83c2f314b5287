// Package messaging connects the ingestion side to NATS: complaints published on the ingest
// subject are indexed, and newly created embeddings are announced on the events subject.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/config"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/pkg/utils"
)

const (
	// QueueGroup spreads ingest messages across running instances.
	QueueGroup = "civicrag-ingest"

	// EventEmbeddingCreated is the event type published for each new embedding.
	EventEmbeddingCreated = "embeddings.created"
)

// Connect opens a NATS connection that reconnects indefinitely and logs connection changes.
func Connect(cfg config.MessagingConfig, logger *zap.Logger) (*nats.Conn, error) {
	if cfg.NATSURL == "" {
		return nil, apperrors.NewConfigurationError("messaging.nats_url", "is required")
	}
	logger = utils.LoggerOrNop(logger)
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("civicrag"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

// EmbeddingCreated announces a newly stored embedding.
type EmbeddingCreated struct {
	Type         string              `json:"type"`
	Model        string              `json:"model"`
	ContentHash  string              `json:"content_hash"`
	DocumentType models.DocumentType `json:"document_type"`
	DocumentID   string              `json:"document_id"`
	Dimensions   int                 `json:"dimensions"`
	CreatedAt    time.Time           `json:"created_at"`
}

// EventPublisher publishes embedding events. Its OnEmbeddingCreated method is meant for
// embedding.WithOnCreate.
type EventPublisher struct {
	pub     MsgPublisher
	subject string
	logger  *zap.Logger
}

func NewEventPublisher(pub MsgPublisher, subject string, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{pub: pub, subject: subject, logger: utils.LoggerOrNop(logger)}
}

// OnEmbeddingCreated publishes rec. Publish failures are logged; the embedding is already stored.
func (p *EventPublisher) OnEmbeddingCreated(ctx context.Context, rec *models.EmbeddingRecord) {
	ev := EmbeddingCreated{
		Type:         EventEmbeddingCreated,
		Model:        rec.Model,
		ContentHash:  rec.ContentHash,
		DocumentType: rec.DocumentType,
		DocumentID:   rec.DocumentID,
		Dimensions:   len(rec.Vector),
		CreatedAt:    rec.CreatedAt,
	}
	if err := Publish(ctx, p.pub, p.subject, ev); err != nil {
		p.logger.Warn("failed to publish embedding event",
			zap.String("content_hash", rec.ContentHash), zap.Error(err))
	}
}

// ComplaintIndexer indexes one complaint. *indexer.Indexer implements it.
type ComplaintIndexer interface {
	IndexComplaint(ctx context.Context, c *models.Complaint) error
}

// IngestAck is the reply sent to request-style ingest messages.
type IngestAck struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	ackIndexed          = "indexed"
	ackEmbeddingPending = "embedding_pending"
	ackRejected         = "rejected"
	ackFailed           = "failed"
)

// IngestSubscriber indexes complaints received on the ingest subject.
type IngestSubscriber struct {
	indexer ComplaintIndexer
	timeout time.Duration
	logger  *zap.Logger
}

func NewIngestSubscriber(indexer ComplaintIndexer, logger *zap.Logger) *IngestSubscriber {
	return &IngestSubscriber{indexer: indexer, timeout: time.Minute, logger: utils.LoggerOrNop(logger)}
}

// Subscribe joins the ingest queue group on subject.
func (s *IngestSubscriber) Subscribe(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	sub, err := nc.QueueSubscribe(subject, QueueGroup, s.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	s.logger.Info("ingest subscriber started", zap.String("subject", subject))
	return sub, nil
}

// Handle decodes one complaint and indexes it. Messages with a reply subject get an IngestAck.
func (s *IngestSubscriber) Handle(msg *nats.Msg) {
	ack := s.process(msg)
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to ack ingest message", zap.Error(err))
	}
}

func (s *IngestSubscriber) process(msg *nats.Msg) IngestAck {
	var c models.Complaint
	if err := json.Unmarshal(msg.Data, &c); err != nil {
		s.logger.Warn("dropping malformed ingest message", zap.String("subject", msg.Subject), zap.Error(err))
		return IngestAck{Status: ackRejected, Error: "invalid complaint payload"}
	}

	ctx, cancel := context.WithTimeout(messageContext(msg), s.timeout)
	defer cancel()

	err := s.indexer.IndexComplaint(ctx, &c)
	switch {
	case err == nil:
		s.logger.Debug("ingested complaint", zap.String("id", c.ID))
		return IngestAck{ID: c.ID, Status: ackIndexed}
	case errors.Is(err, apperrors.ErrProviderUnavailable), errors.Is(err, apperrors.ErrMalformedResponse):
		s.logger.Warn("complaint stored without embedding", zap.String("id", c.ID), zap.Error(err))
		return IngestAck{ID: c.ID, Status: ackEmbeddingPending}
	case errors.Is(err, apperrors.ErrValidation):
		s.logger.Warn("rejected ingest message", zap.Error(err))
		return IngestAck{ID: c.ID, Status: ackRejected, Error: err.Error()}
	default:
		s.logger.Error("failed to ingest complaint", zap.String("id", c.ID), zap.Error(err))
		return IngestAck{ID: c.ID, Status: ackFailed, Error: err.Error()}
	}
}
