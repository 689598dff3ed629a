package listview

import (
	"errors"
	"sort"
	"sync"

	"dokflow/api/internal/rowstate"
)

// ErrBusy is returned when the row already runs the requested action.
var ErrBusy = errors.New("row action already in progress")

type rowKey struct {
	id     uint
	action rowstate.Action
}

// Tracker is the local view of which rows are generating or deleting.
// Actions on one row do not affect the controls of any other row.
type Tracker struct {
	mu      sync.Mutex
	running map[rowKey]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{running: make(map[rowKey]struct{})}
}

// Begin marks id as running action. It returns false when that row
// already has that action in flight.
func (t *Tracker) Begin(id uint, action rowstate.Action) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := rowKey{id, action}
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *Tracker) Done(id uint, action rowstate.Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.running, rowKey{id, action})
}

// State lists the actions running on id, sorted.
func (t *Tracker) State(id uint) []rowstate.Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	var actions []rowstate.Action
	for key := range t.running {
		if key.id == id {
			actions = append(actions, key.action)
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

func (t *Tracker) Busy(id uint) bool {
	return len(t.State(id)) > 0
}

// Run executes fn while id is marked as running action.
func (t *Tracker) Run(id uint, action rowstate.Action, fn func() error) error {
	if !t.Begin(id, action) {
		return ErrBusy
	}
	defer t.Done(id, action)
	return fn()
}
