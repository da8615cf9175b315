package pharmacy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// ViewStreamServer fans freshly projected views out to connected clients.
// The cache calls Broadcast after every mutation; each subscriber gets the
// snapshot projected through its own search term.
type ViewStreamServer struct {
	cache  *WorklistStateCache
	logger apt.Logger

	mu          sync.RWMutex
	subscribers map[string]*viewSubscriber
}

type viewSubscriber struct {
	term string
	ch   chan View
}

// NewViewStreamServer creates a view fan-out bound to the worklist cache.
func NewViewStreamServer(cache *WorklistStateCache, logger apt.Logger) *ViewStreamServer {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &ViewStreamServer{
		cache:       cache,
		logger:      logger,
		subscribers: make(map[string]*viewSubscriber),
	}
}

// Subscribe registers a client and immediately queues the current view so a
// new connection renders without waiting for the next change.
func (s *ViewStreamServer) Subscribe(subscriberID, term string) <-chan View {
	sub := &viewSubscriber{term: term, ch: make(chan View, 16)}

	s.mu.Lock()
	s.subscribers[subscriberID] = sub
	s.mu.Unlock()

	if s.cache != nil {
		sub.ch <- Project(s.cache.GetAll(), term)
	}
	return sub.ch
}

// Unsubscribe removes a client and closes its channel.
func (s *ViewStreamServer) Unsubscribe(subscriberID string) {
	s.mu.Lock()
	sub, exists := s.subscribers[subscriberID]
	if exists {
		delete(s.subscribers, subscriberID)
	}
	s.mu.Unlock()
	if exists {
		close(sub.ch)
	}
}

// Broadcast projects the snapshot for every subscriber. Slow subscribers
// skip updates rather than block the mutation path; the next change carries
// the full current state anyway.
func (s *ViewStreamServer) Broadcast(snapshot []Prescription) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for subscriberID, sub := range s.subscribers {
		view := Project(snapshot, sub.term)
		select {
		case sub.ch <- view:
		default:
			s.logger.Info("subscriber channel full, dropping view update", "subscriber_id", subscriberID)
		}
	}
}

// ServeHTTP streams view updates over Server-Sent Events. The search term is
// fixed per connection via the search query parameter.
func (s *ViewStreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subscriberID := uuid.New().String()
	s.logger.Info("new worklist stream connection", "subscriber_id", subscriberID)

	viewChan := s.Subscribe(subscriberID, r.URL.Query().Get("search"))
	defer s.Unsubscribe(subscriberID)

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("worklist stream client disconnected", "subscriber_id", subscriberID)
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}

		case view, ok := <-viewChan:
			if !ok {
				s.logger.Info("view channel closed", "subscriber_id", subscriberID)
				return
			}

			data, err := json.Marshal(view)
			if err != nil {
				s.logger.Errorf("failed to marshal view update: %v", err)
				continue
			}

			fmt.Fprintf(w, "event: worklist-update\n")
			fmt.Fprintf(w, "data: %s\n\n", data)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}
