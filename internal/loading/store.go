// Package loading keeps track of in-flight remote requests and exposes an
// aggregate loading status for the dashboard overlay.
package loading

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vadiminshakov/truthboard/internal/domain"
	"github.com/vadiminshakov/truthboard/internal/events"
)

const defaultHistorySize = 100

// Store is the registry of active tracked requests.
// It is created once per session and handed to whoever needs it.
type Store struct {
	mu      sync.Mutex
	active  map[string]domain.TrackedRequest
	history []domain.TrackedRequest

	historySize int
	updates     *events.Broadcaster[domain.LoadingStatus]
	gauge       prometheus.Gauge
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithHistorySize sets how many settled requests are retained. Zero disables history.
func WithHistorySize(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.historySize = n
		}
	}
}

// WithBroadcaster publishes every status change on b.
func WithBroadcaster(b *events.Broadcaster[domain.LoadingStatus]) Option {
	return func(s *Store) {
		s.updates = b
	}
}

// WithGauge mirrors the active count into g.
func WithGauge(g prometheus.Gauge) Option {
	return func(s *Store) {
		s.gauge = g
	}
}

// WithClock overrides the time source used for settle timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		active:      make(map[string]domain.TrackedRequest),
		historySize: defaultHistorySize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartLoading marks id as in flight. Starting an id twice keeps one entry.
func (s *Store) StartLoading(id string) {
	s.Begin(domain.TrackedRequest{ID: id, StartedAt: s.now()})
}

// StopLoading removes id from the active set. Unknown ids are ignored.
func (s *Store) StopLoading(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[id]; !ok {
		return
	}
	delete(s.active, id)
	s.changed()
}

// ClearAll drops every active request, e.g. on a navigation boundary.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.active)
	s.changed()
}

// Status returns the current count and the derived loading flag.
func (s *Store) Status() domain.LoadingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.NewLoadingStatus(len(s.active))
}

// Begin registers a tracked request with its metadata.
func (s *Store) Begin(req domain.TrackedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[req.ID] = req
	s.changed()
}

// Settle records the outcome of id, moves it to history and
// removes it from the active set. Unknown ids are ignored.
func (s *Store) Settle(id string, outcome domain.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.active[id]
	if !ok {
		return
	}
	if outcome.EndedAt.IsZero() {
		outcome.EndedAt = s.now()
	}
	delete(s.active, id)
	s.remember(req.Apply(outcome))
	s.changed()
}

// Active returns copies of the in-flight requests.
func (s *Store) Active() []domain.TrackedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TrackedRequest, 0, len(s.active))
	for _, req := range s.active {
		out = append(out, req)
	}
	return out
}

// History returns settled requests, oldest first.
func (s *Store) History() []domain.TrackedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TrackedRequest, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Store) remember(req domain.TrackedRequest) {
	if s.historySize == 0 {
		return
	}
	if len(s.history) >= s.historySize {
		s.history = append(s.history[:0], s.history[len(s.history)-s.historySize+1:]...)
	}
	s.history = append(s.history, req)
}

// changed must be called with mu held.
func (s *Store) changed() {
	status := domain.NewLoadingStatus(len(s.active))
	if s.gauge != nil {
		s.gauge.Set(float64(status.Count))
	}
	s.updates.Publish(status)
}
