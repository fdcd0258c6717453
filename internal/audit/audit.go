// Package audit provides best-effort persistence of classification events
// for analytics. Recording never blocks a classification and its failures
// never reach the caller.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planmatter/heritage-cli/internal/model"
)

// Meta carries per-request context that is not part of the
// classification result itself.
type Meta struct {
	CacheHit bool
	Duration time.Duration
}

// Recorder accepts classification events. Implementations must return
// promptly; persistence happens out of band.
type Recorder interface {
	Record(res *model.ClassificationResult, meta Meta)
}

// Event is the persisted form of a classification.
type Event struct {
	ID               string       `json:"id"`
	RequestID        string       `json:"request_id"`
	Status           model.Status `json:"status"`
	Lat              float64      `json:"lat"`
	Lng              float64      `json:"lng"`
	Address          string       `json:"address,omitempty"`
	Postcode         string       `json:"postcode,omitempty"`
	Borough          string       `json:"borough,omitempty"`
	ListEntryNumber  string       `json:"list_entry_number,omitempty"`
	ConservationArea string       `json:"conservation_area,omitempty"`
	Unverified       bool         `json:"unverified"`
	CacheHit         bool         `json:"cache_hit"`
	DurationMS       int64        `json:"duration_ms"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Store persists audit events.
type Store interface {
	InsertEvent(ctx context.Context, ev *Event) error
	Close() error
}

// AsyncRecorder queues events onto a bounded channel drained by a single
// background worker. When the queue is full the event is dropped with a
// warning: audit writes must never delay a classification.
type AsyncRecorder struct {
	store Store
	queue chan *Event

	insertTimeout time.Duration
	dropped       atomic.Int64
	failed        atomic.Int64

	// mu serializes sends against Close so Record can never hit a
	// closed channel.
	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
	log       *zap.Logger
}

// NewAsyncRecorder starts the background worker. queueSize <= 0 defaults
// to 256.
func NewAsyncRecorder(store Store, queueSize int) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &AsyncRecorder{
		store:         store,
		queue:         make(chan *Event, queueSize),
		insertTimeout: 5 * time.Second,
		done:          make(chan struct{}),
		log:           zap.L().With(zap.String("component", "audit.recorder")),
	}
	go r.run()
	return r
}

// Record implements Recorder. It never blocks.
func (r *AsyncRecorder) Record(res *model.ClassificationResult, meta Meta) {
	ev := &Event{
		ID:         uuid.NewString(),
		RequestID:  res.RequestID,
		Status:     res.Status,
		Lat:        res.Coordinates.Lat,
		Lng:        res.Coordinates.Lng,
		Address:    res.Address,
		Postcode:   res.Postcode,
		Borough:    res.Borough,
		Unverified: res.Unverified,
		CacheHit:   meta.CacheHit,
		DurationMS: meta.Duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if res.ListedBuilding != nil {
		ev.ListEntryNumber = res.ListedBuilding.ListEntryNumber
	}
	if res.ConservationArea != nil {
		ev.ConservationArea = res.ConservationArea.Name
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.dropped.Add(1)
		r.log.Warn("audit recorder closed, dropping event",
			zap.String("request_id", ev.RequestID),
		)
		return
	}
	select {
	case r.queue <- ev:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		r.dropped.Add(1)
		r.log.Warn("audit queue full, dropping event",
			zap.String("request_id", ev.RequestID),
		)
	}
}

// Close stops accepting events, drains the queue, and closes the store.
func (r *AsyncRecorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.queue)
		<-r.done
	})
	return r.store.Close()
}

// Dropped returns how many events were discarded due to a full queue.
func (r *AsyncRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Failed returns how many events failed to persist.
func (r *AsyncRecorder) Failed() int64 {
	return r.failed.Load()
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for ev := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.insertTimeout)
		if err := r.store.InsertEvent(ctx, ev); err != nil {
			r.failed.Add(1)
			r.log.Warn("audit insert failed",
				zap.String("request_id", ev.RequestID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
