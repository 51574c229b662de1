package gcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// PubSubAdapter implements service.EventPublisher over a single Pub/Sub
// topic. Publish is fire-and-forget: a dead topic must never hold up or
// fail the ingestion it is reporting on, so every error is logged and
// swallowed rather than returned.
type PubSubAdapter struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubAdapter creates a PubSubAdapter publishing to topicID in project.
func NewPubSubAdapter(ctx context.Context, project, topicID string) (*PubSubAdapter, error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.NewPubSubAdapter: %w", err)
	}
	return &PubSubAdapter{client: client, topic: client.Topic(topicID)}, nil
}

// Publish sends an ingestion.committed event to the configured topic. It
// does not block on the publish result past enqueueing. Satisfies
// service.EventPublisher structurally.
func (a *PubSubAdapter) Publish(ctx context.Context, event model.IngestEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("pubsub: failed to marshal ingest event", "document_id", event.DocumentID, "error", err)
		return
	}

	result := a.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event": "ingestion.committed",
		},
	})

	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			slog.Warn("pubsub: publish failed", "document_id", event.DocumentID, "error", err)
		}
	}()
}

// Close flushes any pending publishes and releases the client.
func (a *PubSubAdapter) Close() {
	a.topic.Stop()
	a.client.Close()
}
