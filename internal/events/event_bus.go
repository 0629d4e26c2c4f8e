package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slinky-software/devicevault/pkg/logger"
)

// EventType represents the type of pipeline event
type EventType string

const (
	// Scheduler events
	EventBackupDispatched EventType = "backup.dispatched"
	EventMissedWindow     EventType = "backup.missed_window"

	// Ingestion events
	EventCollectionRecorded EventType = "collection.recorded"
	EventStorageRecorded    EventType = "storage.recorded"
)

// Event represents a pipeline event
type Event struct {
	ID             string                 `json:"id"`
	Type           EventType              `json:"type"`
	Timestamp      time.Time              `json:"timestamp"`
	Source         string                 `json:"source"` // e.g. "scheduler", "ingestor"
	DeviceID       uint                   `json:"device_id,omitempty"`
	TaskIdentifier string                 `json:"task_identifier,omitempty"`
	Data           map[string]interface{} `json:"data"`
}

// EventHandler is a function that handles events
type EventHandler func(event Event)

// EventBus manages event publishing and subscription
type EventBus struct {
	subscribers map[EventType][]EventHandler
	mu          sync.RWMutex
	storage     EventStorage
}

// EventStorage defines the interface for storing events
type EventStorage interface {
	Store(event Event) error
	Query(filters EventFilters) ([]Event, error)
}

// EventFilters for querying events
type EventFilters struct {
	Types          []EventType
	DeviceID       uint
	TaskIdentifier string
	StartTime      time.Time
	EndTime        time.Time
	Limit          int
}

var (
	globalBus     *EventBus
	globalBusOnce sync.Once
)

// GetEventBus returns the global event bus instance (singleton)
func GetEventBus() *EventBus {
	globalBusOnce.Do(func() {
		globalBus = NewEventBus(nil)
	})
	return globalBus
}

// SetEventStorage sets the event storage backend
func SetEventStorage(storage EventStorage) {
	bus := GetEventBus()
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.storage = storage
}

// NewEventBus creates a new event bus
func NewEventBus(storage EventStorage) *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]EventHandler),
		storage:     storage,
	}
}

// Subscribe registers a handler for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], handler)
}

// Publish publishes an event to all subscribers and the configured storage
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Data == nil {
		event.Data = map[string]interface{}{}
	}

	eb.mu.RLock()
	storage := eb.storage
	handlers := eb.subscribers[event.Type]
	eb.mu.RUnlock()

	if storage != nil {
		if err := storage.Store(event); err != nil {
			logger.Error("Failed to store event", err, map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
			})
		}
	}

	for _, handler := range handlers {
		// Run handlers in goroutines to avoid blocking the publisher
		go func(h EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Event handler panicked", nil, map[string]interface{}{
						"event_type": event.Type,
						"panic":      r,
					})
				}
			}()
			h(event)
		}(handler)
	}
}

// Query retrieves events based on filters
func (eb *EventBus) Query(filters EventFilters) ([]Event, error) {
	eb.mu.RLock()
	storage := eb.storage
	eb.mu.RUnlock()

	if storage == nil {
		return nil, nil
	}
	return storage.Query(filters)
}
