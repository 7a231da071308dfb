package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Options sizes the dispatcher's worker pool.
type Options struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Buffer < 0 {
		o.Buffer = 0
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 10 * time.Second
	}
	if o.HandoffTimeout < 0 {
		o.HandoffTimeout = 0
	}
	return o
}

// Dispatcher fans events out to a Publisher from a fixed pool of workers.
// When the pool is saturated the event is published on the caller's
// goroutine instead. Delivery failures are logged and never returned.
type Dispatcher struct {
	pub  Publisher
	log  *log.Logger
	opts Options

	jobs     chan Event
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewDispatcher(pub Publisher, opts Options, logger *log.Logger) *Dispatcher {
	if pub == nil {
		panic("events.NewDispatcher: publisher is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	opts = opts.withDefaults()
	d := &Dispatcher{
		pub:  pub,
		log:  logger,
		opts: opts,
		jobs: make(chan Event, opts.Buffer),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("event dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v",
		opts.Workers, opts.Buffer, opts.PublishTimeout, opts.HandoffTimeout)
	return d
}

// Dispatch hands ev to a worker, or publishes it inline when no worker
// accepts it within the handoff timeout.
func (d *Dispatcher) Dispatch(ev Event) {
	if d.tryHandoff(ev) {
		return
	}
	d.publish(-1, ev)
}

// Stop closes the queue and waits for queued events to be delivered.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.jobs)
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for ev := range d.jobs {
		d.publish(id, ev)
	}
}

func (d *Dispatcher) publish(worker int, ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.PublishTimeout)
	defer cancel()
	if err := d.pub.Publish(ctx, ev); err != nil {
		d.log.WithFields(log.Fields{
			"event_id":   ev.ID,
			"event_type": ev.Type,
			"entity_id":  ev.EntityID,
			"worker":     worker,
		}).Errorf("event publish failed: %v", err)
	}
}

func (d *Dispatcher) tryHandoff(ev Event) bool {
	if ok, closed := trySendNonBlocking(d.jobs, ev); closed {
		return false
	} else if ok {
		return true
	}

	if d.opts.HandoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(d.opts.HandoffTimeout)
	defer timer.Stop()

	ok, _ := sendWithTimer(d.jobs, ev, timer.C)
	return ok
}

func trySendNonBlocking(ch chan Event, ev Event) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan Event, ev Event, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	case <-timer:
		return false, false
	}
}
