package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/models"
)

const TypeResourceConsolidated = "resource.consolidated"

// Publisher sends a keyed payload to the event stream.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// Envelope wraps every event with its type so consumers can route on it.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type Emitter struct {
	publisher Publisher
}

func NewEmitter(publisher Publisher) *Emitter {
	return &Emitter{publisher: publisher}
}

// PublishConsolidated emits resource.consolidated keyed by the surviving resource id.
func (e *Emitter) PublishConsolidated(ctx context.Context, event models.ConsolidatedEvent) error {
	body, err := json.Marshal(Envelope{Type: TypeResourceConsolidated, Payload: event})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", TypeResourceConsolidated, err)
	}
	return e.publisher.Publish(ctx, event.KeepID, body, map[string]string{"event_type": TypeResourceConsolidated})
}
