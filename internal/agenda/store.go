package agenda

import (
	"sync"

	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

// Store holds the current Snapshot for a long-running process such as the
// HTTP server. Readers get an immutable snapshot; writers run the Workflow
// under the write lock and swap in its result.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	wf   *Workflow
}

// NewStore constructs a Store seeded with events.
func NewStore(wf *Workflow, events []model.Event) *Store {
	if wf == nil {
		wf = NewWorkflow()
	}
	return &Store{snap: NewSnapshot(events), wf: wf}
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Events returns a copy of the current snapshot's events.
func (s *Store) Events() []model.Event {
	return s.Snapshot().Events()
}

// Check runs a dry-run validation and conflict scan against the current
// snapshot.
func (s *Store) Check(d Draft, excludeID string) error {
	return s.wf.Check(s.Snapshot(), d, excludeID)
}

func (s *Store) Create(d Draft) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, next, err := s.wf.Create(s.snap, d)
	if err != nil {
		return model.Event{}, err
	}
	s.snap = next
	appLog.Info("event created", "id", ev.ID, "date", ev.Date, "start", ev.StartTime, "end", ev.EndTime)
	return ev, nil
}

func (s *Store) Update(id string, d Draft) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, next, err := s.wf.Update(s.snap, id, d)
	if err != nil {
		return model.Event{}, err
	}
	s.snap = next
	appLog.Info("event updated", "id", ev.ID, "date", ev.Date, "start", ev.StartTime, "end", ev.EndTime)
	return ev, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.wf.Delete(s.snap, id)
	if err != nil {
		return err
	}
	s.snap = next
	appLog.Info("event deleted", "id", id)
	return nil
}

// Replace swaps in a whole new collection, e.g. after an import.
func (s *Store) Replace(events []model.Event) {
	next := NewSnapshot(events)

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	appLog.Info("snapshot replaced", "event_count", next.Len())
}
