package session

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/sweeney/pulse-gen/internal/logic"
	"github.com/sweeney/pulse-gen/internal/mqtt"
)

// DefaultQueue is the number of events held for MQTT before dropping.
const DefaultQueue = 4096

// Recorder logs every scheduler event as it is recorded and forwards it to
// MQTT from its own goroutine, so a slow broker never stretches a pulse.
// Only the MQTT forward can drop events; the log always gets them.
type Recorder struct {
	pub     mqtt.Publisher // nil disables publishing
	logger  *log.Logger
	events  chan logic.Event
	done    chan struct{}
	dropped atomic.Int64

	mu      sync.RWMutex
	session string
	closed  bool
}

// NewRecorder starts a recorder. pub may be nil.
func NewRecorder(pub mqtt.Publisher, queue int) *Recorder {
	if queue <= 0 {
		queue = DefaultQueue
	}
	r := &Recorder{
		pub:    pub,
		logger: log.Default(),
		events: make(chan logic.Event, queue),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// SetSession sets the id stamped on subsequent events.
func (r *Recorder) SetSession(id string) {
	r.mu.Lock()
	r.session = id
	r.mu.Unlock()
}

// Record logs e and queues it for MQTT. It never blocks on the broker;
// the MQTT copy is dropped when the queue is full.
func (r *Recorder) Record(e logic.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	e.Session = r.session
	logEvent(r.logger, e)
	if r.pub == nil {
		return
	}
	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events not forwarded to MQTT because the
// queue was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close drains the queue and stops the recorder. Later events are discarded.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	<-r.done
	if n := r.dropped.Load(); n > 0 {
		r.logger.Printf("recorder: %d events not published (queue full)", n)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.events {
		if err := r.pub.Publish(e); err != nil {
			r.logger.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
	}
}

func logEvent(l *log.Logger, e logic.Event) {
	switch e.Type {
	case logic.EventChannelStart:
		l.Printf("%s: started, first pulse in %d ms", e.Label, e.NextMs)
	case logic.EventPulse:
		if e.NextMs > 0 {
			l.Printf("%s: pulse %d, %d ms, next in %d ms", e.Label, e.Seq, e.PulseMs, e.NextMs)
		} else {
			l.Printf("%s: pulse %d, %d ms", e.Label, e.Seq, e.PulseMs)
		}
	case logic.EventPaused:
		l.Printf("%s: paused after %d pulses", e.Label, e.Seq)
	case logic.EventResumed:
		l.Printf("%s: resumed", e.Label)
	case logic.EventChannelStop:
		l.Printf("%s: stopped after %d pulses (%s)", e.Label, e.Seq, e.Reason)
	default:
		l.Printf("%s: %s", e.Label, e.Type)
	}
}
