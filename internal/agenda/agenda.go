// Package agenda is the create/update/delete workflow around the core. It
// never edits a collection in place: every successful step returns the next
// Snapshot and leaves the previous one untouched.
package agenda

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"schedcal/internal/conflict"
	"schedcal/internal/datekey"
	"schedcal/internal/model"
)

// ConflictError is returned when a draft overlaps an existing event on the
// same day.
type ConflictError struct {
	Existing model.Event
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict with %q (%s-%s)", e.Existing.Title, e.Existing.StartTime, e.Existing.EndTime)
}

// Snapshot is an immutable event collection.
type Snapshot struct {
	events []model.Event
}

// NewSnapshot copies events into a Snapshot.
func NewSnapshot(events []model.Event) Snapshot {
	return Snapshot{events: model.Clone(events)}
}

// Events returns a copy of the snapshot's events in insertion order.
func (s Snapshot) Events() []model.Event {
	return model.Clone(s.events)
}

// Len is the number of events.
func (s Snapshot) Len() int {
	return len(s.events)
}

// Get looks up an event by id.
func (s Snapshot) Get(id string) (model.Event, bool) {
	for _, ev := range s.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.Event{}, false
}

// Workflow validates drafts and produces new snapshots.
type Workflow struct {
	validator *validator.Validate
	newID     func() string
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithIDFunc replaces the UUID generator, e.g. for deterministic tests.
func WithIDFunc(f func() string) Option {
	return func(w *Workflow) {
		w.newID = f
	}
}

// NewWorkflow constructs a Workflow.
func NewWorkflow(opts ...Option) *Workflow {
	w := &Workflow{
		validator: newValidator(),
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Check validates d and runs the full conflict scan against snap without
// changing anything. excludeID is the id of the event being edited, or "".
func (w *Workflow) Check(snap Snapshot, d Draft, excludeID string) error {
	if err := w.validate(d); err != nil {
		return err
	}
	candidate := eventFrom(excludeID, d)
	hit, err := conflict.FindConflict(candidate, snap.events, excludeID)
	if err != nil {
		return fmt.Errorf("agenda.Check: %w", err)
	}
	if hit != nil {
		return &ConflictError{Existing: *hit}
	}
	return nil
}

// Create adds a new event built from d.
// Returns a *model.ValidationError for invalid input and a *ConflictError
// if the new event overlaps an existing one on the same day.
func (w *Workflow) Create(snap Snapshot, d Draft) (model.Event, Snapshot, error) {
	if err := w.Check(snap, d, ""); err != nil {
		return model.Event{}, snap, err
	}
	ev := eventFrom(w.newID(), d)

	next := make([]model.Event, 0, len(snap.events)+1)
	next = append(next, snap.events...)
	next = append(next, ev)
	return ev, Snapshot{events: next}, nil
}

// Update replaces the event id with one built from d, keeping its id and
// position. Returns model.ErrNotFound if id is unknown.
func (w *Workflow) Update(snap Snapshot, id string, d Draft) (model.Event, Snapshot, error) {
	pos := snap.indexOf(id)
	if pos < 0 {
		return model.Event{}, snap, fmt.Errorf("agenda.Update: event %s: %w", id, model.ErrNotFound)
	}
	if err := w.Check(snap, d, id); err != nil {
		return model.Event{}, snap, err
	}
	ev := eventFrom(id, d)

	next := model.Clone(snap.events)
	next[pos] = ev
	return ev, Snapshot{events: next}, nil
}

// Delete removes the event id. Returns model.ErrNotFound if id is unknown.
func (w *Workflow) Delete(snap Snapshot, id string) (Snapshot, error) {
	pos := snap.indexOf(id)
	if pos < 0 {
		return snap, fmt.Errorf("agenda.Delete: event %s: %w", id, model.ErrNotFound)
	}
	next := make([]model.Event, 0, len(snap.events)-1)
	next = append(next, snap.events[:pos]...)
	next = append(next, snap.events[pos+1:]...)
	return Snapshot{events: next}, nil
}

func (s Snapshot) indexOf(id string) int {
	for i, ev := range s.events {
		if ev.ID == id {
			return i
		}
	}
	return -1
}

func eventFrom(id string, d Draft) model.Event {
	return model.Event{
		ID:          id,
		Date:        datekey.Key(d.Date),
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Color:       d.Color,
	}
}

// IsConflict reports whether err carries a *ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
