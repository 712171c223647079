package indexer

import (
	"context"
	"encoding/json"
	"log/slog"
)

// TopicSyncCompleted carries one message per finished run, success or
// failure, for downstream consumers.
const TopicSyncCompleted = "index.sync.completed"

// EventPublisher is satisfied by *nsq.Producer.
type EventPublisher interface {
	Publish(topic string, body []byte) error
}

func publishSummary(ctx context.Context, pub EventPublisher, summary *Summary) {
	if pub == nil {
		return
	}
	body, err := json.Marshal(summary)
	if err != nil {
		slog.WarnContext(ctx, "failed to marshal sync event", "error", err)
		return
	}
	// Best effort: the run outcome stands even if the event doesn't go out.
	if err := pub.Publish(TopicSyncCompleted, body); err != nil {
		slog.WarnContext(ctx, "failed to publish sync event", "error", err)
	}
}
