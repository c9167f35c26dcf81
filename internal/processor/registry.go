package processor

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNoProcessor signals an event type with no registered processor. Such
// events are captured as failures, never silently dropped.
var ErrNoProcessor = errors.New("no processor registered for event type")

// Registry routes event types to processors. It is built once at startup and
// injected into the worker; it is not mutated afterwards.
type Registry struct {
	log        *zap.Logger
	processors map[string]Processor
}

// NewRegistry builds a registry containing the given processors. A repeated
// event type overwrites the earlier registration with a warning.
func NewRegistry(log *zap.Logger, processors ...Processor) *Registry {
	r := &Registry{
		log:        log.Named("processor.registry"),
		processors: make(map[string]Processor, len(processors)),
	}
	for _, p := range processors {
		r.register(p)
	}
	return r
}

func (r *Registry) register(p Processor) {
	eventType := p.EventType()
	if _, exists := r.processors[eventType]; exists {
		r.log.Warn("overwriting registered processor", zap.String("event_type", eventType))
	}
	r.processors[eventType] = p
}

// Get returns the processor for an event type.
func (r *Registry) Get(eventType string) (Processor, error) {
	p, ok := r.processors[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProcessor, eventType)
	}
	return p, nil
}

// EventTypes lists the registered event type keys.
func (r *Registry) EventTypes() []string {
	types := make([]string, 0, len(r.processors))
	for eventType := range r.processors {
		types = append(types, eventType)
	}
	return types
}
