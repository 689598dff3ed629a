// Package rowstate records which list rows have an export or delete in
// flight, so every client can disable just those rows' controls.
package rowstate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

type Action string

const (
	ActionGenerating Action = "generating"
	ActionDeleting   Action = "deleting"
)

// Entry is one row with at least one running action.
type Entry struct {
	ID     uint   `json:"id"`
	Action Action `json:"action"`
	Count  int    `json:"count"`
}

// Registry counts running actions per row. Counts allow overlapping
// requests for the same row; each Begin must be paired with one End.
type Registry interface {
	Begin(ctx context.Context, kind string, id uint, action Action) error
	End(ctx context.Context, kind string, id uint, action Action) error
	InFlight(ctx context.Context, kind string) ([]Entry, error)
}

// Track runs fn between Begin and End. A registry failure never blocks fn.
func Track(ctx context.Context, reg Registry, kind string, id uint, action Action, fn func() error) error {
	if err := reg.Begin(ctx, kind, id, action); err != nil {
		return fn()
	}
	defer reg.End(context.WithoutCancel(ctx), kind, id, action) //nolint:errcheck
	return fn()
}

func field(action Action, id uint) string {
	return string(action) + ":" + strconv.FormatUint(uint64(id), 10)
}

func parseField(f string) (Action, uint, error) {
	action, rawID, ok := strings.Cut(f, ":")
	if !ok {
		return "", 0, fmt.Errorf("malformed row state field %q", f)
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed row id in %q: %w", f, err)
	}
	return Action(action), uint(id), nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ID != entries[j].ID {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Action < entries[j].Action
	})
}

// MemoryRegistry keeps state in process; used when Redis is not configured.
type MemoryRegistry struct {
	mu     sync.Mutex
	counts map[string]map[string]int
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{counts: map[string]map[string]int{}}
}

func (m *MemoryRegistry) Begin(_ context.Context, kind string, id uint, action Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.counts[kind]
	if !ok {
		rows = map[string]int{}
		m.counts[kind] = rows
	}
	rows[field(action, id)]++
	return nil
}

func (m *MemoryRegistry) End(_ context.Context, kind string, id uint, action Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.counts[kind]
	key := field(action, id)
	if rows[key] <= 1 {
		delete(rows, key)
		return nil
	}
	rows[key]--
	return nil
}

func (m *MemoryRegistry) InFlight(_ context.Context, kind string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]Entry, 0, len(m.counts[kind]))
	for f, count := range m.counts[kind] {
		action, id, err := parseField(f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{ID: id, Action: action, Count: count})
	}
	sortEntries(entries)
	return entries, nil
}
