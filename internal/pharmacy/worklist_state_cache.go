package pharmacy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"

	"github.com/medqueue/pharmacy/pkg/event"
)

// WorklistStateCache owns the canonical in-memory worklist: one entry per
// patient id, insertion order preserved. It is the only shared mutable state
// in the service; the reconciler, the command dispatcher, and the warm hook
// all mutate it, and every mutation fans a fresh snapshot out to the view
// stream.
type WorklistStateCache struct {
	mu sync.RWMutex
	// entries indexed by patient id
	entries map[int]*Prescription
	// ids in insertion order; replaced entries keep their slot
	order []int

	stream events.StreamConsumer   // event replay on startup
	repo   PrescriptionRepository  // bulk snapshot source
	logger apt.Logger

	// fan-out target for view updates; attached after construction
	streamServer *ViewStreamServer
}

// NewWorklistStateCache creates an empty worklist cache.
func NewWorklistStateCache(stream events.StreamConsumer, repo PrescriptionRepository, logger apt.Logger) *WorklistStateCache {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &WorklistStateCache{
		entries: make(map[int]*Prescription),
		order:   make([]int, 0),
		stream:  stream,
		repo:    repo,
		logger:  logger,
	}
}

// SetStreamServer attaches the view fan-out (called after initialization).
func (c *WorklistStateCache) SetStreamServer(server *ViewStreamServer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamServer = server
}

// Warm loads the worklist on startup: replay this stage's own update events
// from the persistent stream when one is configured, otherwise fall back to
// the bulk snapshot.
func (c *WorklistStateCache) Warm(ctx context.Context) error {
	if c.stream != nil {
		if err := c.warmFromStream(ctx); err != nil {
			c.logger.Info("stream replay failed, falling back to bulk snapshot", "error", err)
		} else {
			return nil
		}
	}

	if c.repo == nil {
		c.logger.Info("neither stream nor repository configured, worklist starts empty")
		return nil
	}

	return c.Reload(ctx)
}

// warmFromStream rebuilds the worklist by replaying persisted update events.
func (c *WorklistStateCache) warmFromStream(ctx context.Context) error {
	c.logger.Info("warming worklist from event stream")

	messages, err := c.stream.Fetch(ctx, 10000)
	if err != nil {
		return err
	}

	c.mu.Lock()
	for _, msg := range messages {
		c.applyEventLocked(msg.Data)
	}
	count := len(c.entries)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("worklist warmed from stream", "entries", count)
	c.broadcast(snap)
	return nil
}

// Reload replaces the whole worklist with the server-side bulk snapshot.
// On error the previous contents stay untouched.
func (c *WorklistStateCache) Reload(ctx context.Context) error {
	if c.repo == nil {
		return fmt.Errorf("no repository configured for reload")
	}

	list, err := c.repo.List(ctx, PrescriptionFilter{})
	if err != nil {
		return fmt.Errorf("cannot load worklist snapshot: %w", err)
	}

	c.ReplaceAll(list)
	c.logger.Info("worklist reloaded from snapshot", "entries", len(list))
	return nil
}

// applyEventLocked folds one replayed event into the worklist.
// Must be called with c.mu locked.
func (c *WorklistStateCache) applyEventLocked(data []byte) {
	var baseEvent struct {
		EventType string `json:"event_type"`
	}

	if err := json.Unmarshal(data, &baseEvent); err != nil {
		c.logger.Errorf("failed to unmarshal replayed event type: %v", err)
		return
	}

	switch baseEvent.EventType {
	case event.EventPharmacyPrescriptionSent:
		var evt event.PharmacyPrescriptionEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			c.logger.Errorf("failed to unmarshal prescription event: %v", err)
			return
		}
		if evt.ID == 0 {
			return
		}
		p := FromRecord(evt.PatientRecord)
		c.setLocked(&p)
	default:
		// Unknown event types are ignored (forward compatibility)
	}
}

// Set upserts one entry: unseen ids append, known ids are replaced in place.
func (c *WorklistStateCache) Set(p *Prescription) {
	if p == nil {
		return
	}
	c.mu.Lock()
	c.setLocked(p)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.broadcast(snap)
}

func (c *WorklistStateCache) setLocked(p *Prescription) {
	if _, exists := c.entries[p.ID]; !exists {
		c.order = append(c.order, p.ID)
	}
	cp := *p
	c.entries[p.ID] = &cp
}

// Remove deletes an entry; absent ids are a no-op.
func (c *WorklistStateCache) Remove(id int) {
	c.mu.Lock()
	if _, exists := c.entries[id]; !exists {
		c.mu.Unlock()
		return
	}
	delete(c.entries, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.broadcast(snap)
}

// ReplaceAll substitutes the entire worklist atomically.
func (c *WorklistStateCache) ReplaceAll(list []Prescription) {
	c.mu.Lock()
	c.entries = make(map[int]*Prescription, len(list))
	c.order = make([]int, 0, len(list))
	for i := range list {
		p := list[i]
		if _, exists := c.entries[p.ID]; exists {
			c.entries[p.ID] = &p
			continue
		}
		c.entries[p.ID] = &p
		c.order = append(c.order, p.ID)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.broadcast(snap)
}

// Patch merge-updates named fields on an existing entry. It reports whether
// anything was applied: an optimistic patch must never create an entry, so
// unknown ids are a no-op.
func (c *WorklistStateCache) Patch(id int, patch Patch) bool {
	c.mu.Lock()
	p, exists := c.entries[id]
	if !exists {
		c.mu.Unlock()
		return false
	}
	if patch.PharmacyState != nil {
		p.PharmacyState = *patch.PharmacyState
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.broadcast(snap)
	return true
}

// Get retrieves a copy of one entry, or nil when absent.
func (c *WorklistStateCache) Get(id int) *Prescription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, exists := c.entries[id]
	if !exists {
		return nil
	}
	cp := *p
	return &cp
}

// GetAll returns copies of all entries in insertion order.
func (c *WorklistStateCache) GetAll() []Prescription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Count returns the number of entries on the worklist.
func (c *WorklistStateCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// snapshotLocked copies the worklist in order. Must be called with c.mu held.
func (c *WorklistStateCache) snapshotLocked() []Prescription {
	result := make([]Prescription, 0, len(c.order))
	for _, id := range c.order {
		if p := c.entries[id]; p != nil {
			result = append(result, *p)
		}
	}
	return result
}

func (c *WorklistStateCache) broadcast(snapshot []Prescription) {
	c.mu.RLock()
	server := c.streamServer
	c.mu.RUnlock()
	if server != nil {
		server.Broadcast(snapshot)
	}
}
