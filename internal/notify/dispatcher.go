package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type DispatcherConfig struct {
	QueueSize   int
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
}

type pending struct {
	n       Notification
	attempt int
}

// Dispatcher queues notifications and delivers them on a worker goroutine,
// retrying failed deliveries with exponential backoff.
type Dispatcher struct {
	sink   Sink
	cfg    DispatcherConfig
	logger zerolog.Logger
	queue  chan pending

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

func NewDispatcher(sink Sink, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	return &Dispatcher{
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan pending, cfg.QueueSize),
	}
}

// Enqueue never blocks. When the queue is full the notification is dropped and logged.
func (d *Dispatcher) Enqueue(n Notification) {
	select {
	case d.queue <- pending{n: n}:
	default:
		d.logger.Error().Str("request_id", n.RequestID).Str("recipient_role", string(n.RecipientRole)).Msg("notification queue full, dropping")
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		for {
			select {
			case p := <-d.queue:
				d.deliver(runCtx, p)
			case <-runCtx.Done():
				return
			}
		}
	}()
}

// Stop cancels the worker and waits for it. Queued notifications are abandoned.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.running = false
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, p pending) {
	p.attempt++
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	err := d.sink.Notify(sendCtx, p.n)
	cancel()
	if err == nil {
		return
	}
	if p.attempt >= d.cfg.MaxAttempts {
		d.logger.Error().Err(err).Int("attempt", p.attempt).Str("request_id", p.n.RequestID).Msg("notification dropped after retries")
		return
	}
	d.logger.Warn().Err(err).Int("attempt", p.attempt).Str("request_id", p.n.RequestID).Msg("notification delivery failed, will retry")

	backoff := d.cfg.BaseBackoff << (p.attempt - 1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case d.queue <- p:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
}
