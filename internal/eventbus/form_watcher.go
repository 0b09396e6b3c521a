package eventbus

import (
	"context"
	"sync"

	"github.com/matthewbaird/formdesigner/internal/event"
)

// FormWatcher routes form events to listeners registered for that form id.
// Live filling sessions use it to learn that the form they render changed
// or was deleted.
type FormWatcher struct {
	mu        sync.Mutex
	next      int
	listeners map[string]map[int]func(event.DomainEvent)
}

// NewFormWatcher creates an empty FormWatcher.
func NewFormWatcher() *FormWatcher {
	return &FormWatcher{listeners: make(map[string]map[int]func(event.DomainEvent))}
}

// Watch registers fn for events about formID. The returned func removes it.
func (w *FormWatcher) Watch(formID string, fn func(event.DomainEvent)) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	id := w.next
	if w.listeners[formID] == nil {
		w.listeners[formID] = make(map[int]func(event.DomainEvent))
	}
	w.listeners[formID][id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners[formID], id)
		if len(w.listeners[formID]) == 0 {
			delete(w.listeners, formID)
		}
	}
}

// HandleEvent calls the listeners of every form the event's subject refers to.
// Only events that change the stored definition are routed.
func (w *FormWatcher) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	switch evt.EventType {
	case event.FormCreated, event.FormSaved, event.FormDeleted, event.FormImported:
	default:
		return nil
	}
	for _, ref := range evt.AffectedEntities {
		if ref.EntityType != "form" || ref.Role != "subject" {
			continue
		}
		w.mu.Lock()
		fns := make([]func(event.DomainEvent), 0, len(w.listeners[ref.EntityID]))
		for _, fn := range w.listeners[ref.EntityID] {
			fns = append(fns, fn)
		}
		w.mu.Unlock()
		for _, fn := range fns {
			fn(evt)
		}
	}
	return nil
}
