package listview

import (
	"context"
	"fmt"
	"sync"

	"dokflow/api/internal/client"
	"dokflow/api/internal/rowstate"
	"dokflow/api/internal/store"
)

// View holds the last fetched rows of one list and the current filter.
type View[T any] struct {
	load   func(ctx context.Context) ([]T, error)
	fields func(T) []string

	Tracker *Tracker

	mu    sync.RWMutex
	rows  []T
	query string
}

func newView[T any](load func(ctx context.Context) ([]T, error), fields func(T) []string) *View[T] {
	return &View[T]{load: load, fields: fields, Tracker: NewTracker()}
}

// Load re-fetches every row. The filter is applied locally.
func (v *View[T]) Load(ctx context.Context) error {
	rows, err := v.load(ctx)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.rows = rows
	v.mu.Unlock()
	return nil
}

func (v *View[T]) SetQuery(query string) {
	v.mu.Lock()
	v.query = query
	v.mu.Unlock()
}

// Rows returns the loaded rows matching the current query.
func (v *View[T]) Rows() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Filter(v.rows, v.query, v.fields)
}

type ndaAPI interface {
	ListNDA(ctx context.Context) ([]store.Progress, error)
}

type NdaView struct {
	*View[store.Progress]
}

func NewNdaView(api ndaAPI) *NdaView {
	return &NdaView{View: newView(api.ListNDA, NdaFields)}
}

type momAPI interface {
	ListMoms(ctx context.Context, query string) ([]store.Mom, error)
	DeleteMom(ctx context.Context, id uint) error
	ExportMomPDF(ctx context.Context, id uint) (client.Download, error)
	ExportMomDOCX(ctx context.Context, id uint) (client.Download, error)
}

type MomView struct {
	*View[store.Mom]
	api momAPI
}

func NewMomView(api momAPI) *MomView {
	load := func(ctx context.Context) ([]store.Mom, error) { return api.ListMoms(ctx, "") }
	return &MomView{View: newView(load, MomFields), api: api}
}

// Delete soft-deletes the MOM and reloads the list.
func (v *MomView) Delete(ctx context.Context, id uint) error {
	return v.Tracker.Run(id, rowstate.ActionDeleting, func() error {
		if err := v.api.DeleteMom(ctx, id); err != nil {
			return fmt.Errorf("delete mom %d: %w", id, err)
		}
		return v.Load(ctx)
	})
}

func (v *MomView) ExportPDF(ctx context.Context, id uint) (client.Download, error) {
	return export(v.Tracker, id, func() (client.Download, error) { return v.api.ExportMomPDF(ctx, id) })
}

func (v *MomView) ExportDOCX(ctx context.Context, id uint) (client.Download, error) {
	return export(v.Tracker, id, func() (client.Download, error) { return v.api.ExportMomDOCX(ctx, id) })
}

type jikAPI interface {
	ListJiks(ctx context.Context, query string) ([]store.Jik, error)
	ExportJikDOCX(ctx context.Context, id uint) (client.Download, error)
}

type JikView struct {
	*View[store.Jik]
	api jikAPI
}

func NewJikView(api jikAPI) *JikView {
	load := func(ctx context.Context) ([]store.Jik, error) { return api.ListJiks(ctx, "") }
	return &JikView{View: newView(load, JikFields), api: api}
}

func (v *JikView) ExportDOCX(ctx context.Context, id uint) (client.Download, error) {
	return export(v.Tracker, id, func() (client.Download, error) { return v.api.ExportJikDOCX(ctx, id) })
}

func export(t *Tracker, id uint, fn func() (client.Download, error)) (client.Download, error) {
	var d client.Download
	err := t.Run(id, rowstate.ActionGenerating, func() error {
		var err error
		d, err = fn()
		return err
	})
	return d, err
}
