// Package artifact is the result store ("blackboard") that published
// findings are written to, plus the duplicate guard consulted before each
// publication.
package artifact

import (
	"context"
	"sync"
)

// CategoryInterestingFile is the category every finding is filed under.
const CategoryInterestingFile = "TSK_INTERESTING_FILE_HIT"

// AttrSetName holds the label of an interesting-file hit.
const AttrSetName = "set_name"

type Attribute struct {
	Name  string
	Value string
}

// Artifact is one stored finding for one file.
type Artifact struct {
	ID         int64
	Path       string
	Category   string
	Attributes []Attribute
}

// Attr returns the first value stored under name.
func (a *Artifact) Attr(name string) (string, bool) {
	for _, at := range a.Attributes {
		if at.Name == name {
			return at.Value, true
		}
	}
	return "", false
}

// Store is implemented by SQLiteStore and MemoryStore.
type Store interface {
	Existing(ctx context.Context, path, category string) ([]Artifact, error)
	New(ctx context.Context, path, category string) (*Artifact, error)
	AddAttribute(ctx context.Context, a *Artifact, name, value string) error
	Index(ctx context.Context, a *Artifact) error
	Notify(category string)
}

// AddLabel sets the finding's label.
func AddLabel(ctx context.Context, s Store, a *Artifact, label string) error {
	return s.AddAttribute(ctx, a, AttrSetName, label)
}

// notifier counts publication events and fans them out to listeners.
type notifier struct {
	mu        sync.Mutex
	counts    map[string]int
	listeners []func(category string)
}

func (n *notifier) Notify(category string) {
	n.mu.Lock()
	if n.counts == nil {
		n.counts = make(map[string]int)
	}
	n.counts[category]++
	listeners := append([]func(string){}, n.listeners...)
	n.mu.Unlock()
	for _, fn := range listeners {
		fn(category)
	}
}

// Listen registers fn to be called on every Notify.
func (n *notifier) Listen(fn func(category string)) {
	n.mu.Lock()
	n.listeners = append(n.listeners, fn)
	n.mu.Unlock()
}

// Notifications returns how many times category was announced.
func (n *notifier) Notifications(category string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[category]
}
