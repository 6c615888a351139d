package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event types emitted by the fleet service
const (
	EventReadingRecorded      = "reading.recorded"
	EventCommandCreated       = "command.created"
	EventCommandStatusChanged = "command.status_changed"
	EventAlertCreated         = "alert.created"
	EventAlertStatusChanged   = "alert.status_changed"
	EventDeviceDeleted        = "device.deleted"
)

var (
	// ErrQueueFull is returned when the event cannot be buffered
	ErrQueueFull = errors.New("event queue is full")
	// ErrPublisherStopped is returned after Stop
	ErrPublisherStopped = errors.New("event publisher stopped")
)

// Event is a domain fact published after the state change was committed
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	DeviceID   string      `json:"device_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload,omitempty"`
}

// NewEvent stamps an event with an id and the current time
func NewEvent(eventType, deviceID string, payload interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		DeviceID:   deviceID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// PublisherConfig tunes the publisher worker pool
type PublisherConfig struct {
	Workers      int
	QueueSize    int
	MaxRetries   int
	Backoff      time.Duration
	SendTimeout  time.Duration
	MonitorEvery time.Duration
}

// Publisher delivers events to Service Bus from a pool of workers.
// Publish never blocks the caller; a full queue drops the event.
type Publisher struct {
	client ServiceBusClient
	log    *logrus.Logger
	cfg    PublisherConfig
	queue  chan Event
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	queueCapacityAlertThreshold float64
}

// NewPublisher creates an event publisher and starts its workers
func NewPublisher(client ServiceBusClient, log *logrus.Logger, cfg PublisherConfig) *Publisher {
	if log == nil {
		log = logrus.New()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.MonitorEvery <= 0 {
		cfg.MonitorEvery = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		client:                      client,
		log:                         log,
		cfg:                         cfg,
		queue:                       make(chan Event, cfg.QueueSize),
		ctx:                         ctx,
		cancel:                      cancel,
		queueCapacityAlertThreshold: 0.8,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	go p.monitorQueueCapacity()

	p.log.Infof("Started event publisher with %d workers", cfg.Workers)
	return p
}

// Publish enqueues an event for delivery
func (p *Publisher) Publish(evt Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPublisherStopped
	}

	select {
	case p.queue <- evt:
		return nil
	default:
		p.dropped.Add(1)
		p.log.WithFields(logrus.Fields{
			"event_type": evt.Type,
			"device_id":  evt.DeviceID,
		}).Warn("Event queue full, dropping event")
		return ErrQueueFull
	}
}

// worker drains the queue until it is closed
func (p *Publisher) worker(id int) {
	defer p.wg.Done()

	for evt := range p.queue {
		start := time.Now()
		p.deliver(evt)
		p.log.Debugf("Worker %d delivered %s in %v", id, evt.Type, time.Since(start))
	}
}

// deliver sends one event with exponential backoff between attempts
func (p *Publisher) deliver(evt Event) {
	var err error
	for i := 0; i < p.cfg.MaxRetries; i++ {
		ctx, cancel := context.WithTimeout(p.ctx, p.cfg.SendTimeout)
		err = p.client.SendMessage(ctx, evt, evt.DeviceID)
		cancel()
		if err == nil {
			p.published.Add(1)
			return
		}

		p.log.WithError(err).Warnf("Failed to publish %s (attempt %d/%d)", evt.Type, i+1, p.cfg.MaxRetries)
		if i < p.cfg.MaxRetries-1 {
			time.Sleep(p.cfg.Backoff * time.Duration(1<<uint(i)))
		}
	}

	p.failed.Add(1)
	p.log.WithError(err).WithField("event_id", evt.ID).Errorf("Failed to publish %s after all retries", evt.Type)
}

// monitorQueueCapacity logs a warning when the queue is close to full
func (p *Publisher) monitorQueueCapacity() {
	ticker := time.NewTicker(p.cfg.MonitorEvery)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			queueLength := len(p.queue)
			queueCapacity := cap(p.queue)
			usage := float64(queueLength) / float64(queueCapacity)

			if usage >= p.queueCapacityAlertThreshold {
				p.log.Warnf("Event queue at %d%% capacity (%d/%d)!", int(usage*100), queueLength, queueCapacity)
			}
		}
	}
}

// Stop refuses new events, delivers what is queued and waits for the workers
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.log.Info("Stopping event publisher...")
	p.wg.Wait()
	p.cancel()
	p.log.Info("Event publisher stopped")
}

// Stats returns current queue and delivery counters
func (p *Publisher) Stats() map[string]interface{} {
	return map[string]interface{}{
		"queue_length":   len(p.queue),
		"queue_capacity": cap(p.queue),
		"worker_count":   p.cfg.Workers,
		"published":      p.published.Load(),
		"failed":         p.failed.Load(),
		"dropped":        p.dropped.Load(),
	}
}
