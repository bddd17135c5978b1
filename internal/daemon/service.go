// Package daemon serves estimator state over HTTP for headless use.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/lugia19/claude-counter/internal/estimator"
)

// Config controls the daemon runtime behavior.
type Config struct {
	Addr         string
	EventsBuffer int
}

// Source is the estimator as seen by the daemon.
type Source interface {
	Snapshot() estimator.Snapshot
	Subscribe(buffer int) (<-chan estimator.Snapshot, func())
}

// Delta captures the change between consecutive snapshots.
type Delta struct {
	Tokens int64 `json:"tokens"`
}

func (d Delta) isZero() bool {
	return d.Tokens == 0
}

// Event is emitted whenever the estimator publishes.
type Event struct {
	ID        int64              `json:"id"`
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Snapshot  estimator.Snapshot `json:"snapshot"`
	Delta     Delta              `json:"delta"`
}

// Event types.
const (
	EventSnapshot    = "snapshot"
	EventPass        = "pass"
	EventModelChange = "model_change"
	EventLimits      = "limits"
)

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time          `json:"started_at"`
	LastPassAt      time.Time          `json:"last_pass_at,omitzero"`
	PassCount       int64              `json:"pass_count"`
	Addr            string             `json:"addr"`
	Current         estimator.Snapshot `json:"current"`
	LastError       string             `json:"last_error,omitempty"`
	EventCount      int                `json:"event_count"`
	SubscriberCount int                `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg Config
	src Source

	mu          sync.RWMutex
	startedAt   time.Time
	lastPassAt  time.Time
	passCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    estimator.Snapshot
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a new daemon service with the provided config.
func New(cfg Config, src Source) *Service {
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}

	return &Service{
		cfg:       cfg,
		src:       src,
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)
	return mux
}

// Run serves HTTP and records estimator snapshots until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	snaps, unsubscribe := s.src.Subscribe(16)
	defer unsubscribe()

	// Seed initial snapshot so status is useful immediately.
	s.record(s.src.Snapshot())

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case snap, ok := <-snaps:
			if !ok {
				snaps = nil
				continue
			}
			s.record(snap)
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

// SetError records a failure reported by the estimator loop.
func (s *Service) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.lastError = ""
		return
	}
	s.lastError = err.Error()
	log.Printf("claude-counter daemon: %v", err)
}

func eventType(snap estimator.Snapshot) string {
	switch snap.Cause {
	case "pass":
		return EventPass
	case "model":
		return EventModelChange
	case "limits":
		return EventLimits
	}
	return EventSnapshot
}

func (s *Service) record(snap estimator.Snapshot) {
	now := time.Now()

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot

	s.hasSnapshot = true
	s.snapshot = snap
	if snap.Cause == "pass" {
		s.passCount++
		s.lastPassAt = now
		s.lastError = ""
	}

	typ := eventType(snap)
	delta := diffSnapshots(prev, snap)
	if !prevExists {
		typ = EventSnapshot
		delta = Delta{}
	}
	// Passes are always reported, even when they measured nothing.
	if !prevExists || typ != EventSnapshot || !delta.isZero() {
		s.nextEventID++
		ev = Event{
			ID:        s.nextEventID,
			Type:      typ,
			Timestamp: now,
			Snapshot:  snap,
			Delta:     delta,
		}
		publish = true
	}
	s.mu.Unlock()

	if publish {
		s.publishEvent(ev)
	}
}

// diffSnapshots compares windows of the same model; a model change
// reports the new window's whole total.
func diffSnapshots(prev, curr estimator.Snapshot) Delta {
	if prev.Model != curr.Model {
		return Delta{Tokens: curr.Total}
	}
	return Delta{Tokens: curr.Total - prev.Total}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastPassAt:      s.lastPassAt,
		PassCount:       s.passCount,
		Addr:            s.cfg.Addr,
		Current:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	current := Event{
		Type:      EventSnapshot,
		Timestamp: time.Now(),
		Snapshot:  s.snapshotStatus().Current,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
