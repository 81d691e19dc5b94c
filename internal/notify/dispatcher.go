package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DeliveredFunc is called once per notification after it has been
// delivered and removed from the pending table.
type DeliveredFunc func(ctx context.Context, n Notification)

// Dispatcher periodically delivers due notifications. Actual delivery
// timing is its responsibility alone; stores and the coordinator never
// run timers of their own.
type Dispatcher struct {
	mu          sync.RWMutex
	service     *WebPush
	interval    time.Duration
	onDelivered DeliveredFunc
	cancel      context.CancelFunc
	done        chan struct{}
	logger      *slog.Logger
}

// NewDispatcher builds a dispatcher over the push service. onDelivered
// may be nil; when set it runs after each delivery, which is how
// recurring reminders get rolled forward once their notification has
// fired.
func NewDispatcher(service *WebPush, interval time.Duration, onDelivered DeliveredFunc, logger *slog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Dispatcher{
		service:     service,
		interval:    interval,
		onDelivered: onDelivered,
		logger:      logger,
	}
}

// Start begins the dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the dispatch loop.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	delivered, err := d.service.DeliverDue(ctx, time.Now())
	if err != nil {
		d.logger.Error("deliver due notifications", "error", err)
	}
	if d.onDelivered == nil {
		return
	}
	for _, n := range delivered {
		d.onDelivered(ctx, n)
	}
}
