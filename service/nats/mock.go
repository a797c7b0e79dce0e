package nats

import (
	"context"
	"sync"

	"github.com/brojonat/geneva/service/analytics"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*ActionEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*ActionEvent, 0),
	}
}

// PublishActionEvent records the event and returns any configured error.
func (m *MockPublisher) PublishActionEvent(ctx context.Context, event *ActionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// Publish records the converted event.
func (m *MockPublisher) Publish(ctx context.Context, event analytics.Event) error {
	return m.PublishActionEvent(ctx, FromEvent(event))
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*ActionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ActionEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventsForStep returns events published for one step.
func (m *MockPublisher) GetPublishedEventsForStep(step string) []*ActionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ActionEvent, 0)
	for _, event := range m.publishedEvents {
		if event.Step == step {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = make([]*ActionEvent, 0)
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
