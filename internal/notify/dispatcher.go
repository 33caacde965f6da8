package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

// Dispatcher decouples the booking path from notification delivery:
// Notify enqueues and returns immediately, a single worker goroutine
// drains the queue. A full queue drops the request with a warning
// rather than slowing down bookings.
type Dispatcher struct {
	sender Sender
	log    *zap.Logger
	queue  chan Request

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(sender Sender, log *zap.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		sender: sender,
		log:    log,
		queue:  make(chan Request, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Notify(_ context.Context, req Request) {
	select {
	case d.queue <- req:
	default:
		d.log.Warn("notification queue full, dropping request",
			zap.String("kind", req.Kind),
			zap.String("patient_id", req.PatientID.String()),
		)
	}
}

// Close stops accepting requests and drains what is already queued.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
		<-d.done
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for req := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := d.sender.Send(ctx, req); err != nil {
			d.log.Error("notification delivery failed",
				zap.String("kind", req.Kind),
				zap.String("patient_id", req.PatientID.String()),
				zap.Error(err),
			)
		}
		cancel()
	}
}
