package queue

import (
	"context"
	"sync"
	"time"

	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
)

// Event topics published by the messaging core.
const (
	TopicMessageReceived    = "whatsapp.message.received"
	TopicMessageSent        = "whatsapp.message.sent"
	TopicScheduledProcessed = "whatsapp.scheduled.processed"
	TopicCampaignTarget     = "whatsapp.campaign.target"
)

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Queue interface
type Queue interface {
	Publisher
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue delivers events to in-process subscribers with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	wg       sync.WaitGroup
	Log      *logger.Logger
	// Backoff is the base delay between attempts.
	Backoff time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log *logger.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
		Log:      log,
		Backoff:  500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

var _ Queue = (*InMemoryQueue)(nil)

// Publish sends an event to all subscribers. Events on a topic nobody
// listens to are dropped.
func (q *InMemoryQueue) Publish(_ context.Context, topic string, payload any) error {
	q.mu.Lock()
	handlers := append([]func(payload any) error(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		q.Log.Debug("No subscribers for topic", "topic", topic)
		return nil
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Payload: payload, MaxRetries: 3}
		q.wg.Add(1)
		go func(handler func(payload any) error) {
			defer q.wg.Done()
			q.processJob(handler, job)
		}(handler)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return
		}

		job.RetryCount++
		q.Log.Warn("Event handler failed", "topic", job.Topic, "attempt", job.RetryCount, "max_retries", job.MaxRetries, "error", err)

		if job.RetryCount > job.MaxRetries {
			q.Log.Error("Event handler permanently failed", "topic", job.Topic, "attempts", job.RetryCount)
			return
		}

		// Linear backoff before retry
		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every in-flight delivery has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}
