package listview

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dokflow/api/internal/client"
	"dokflow/api/internal/rowstate"
	"dokflow/api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mom(id uint, title, company string) store.Mom {
	return store.Mom{ID: id, Title: title, Company: &store.Company{Name: company}}
}

func TestFilterMatchesCompanyAndTitle(t *testing.T) {
	rows := []store.Mom{
		mom(1, "Kickoff", "PT Maju Jaya"),
		mom(2, "Review Kontrak", "CV Sinar"),
		mom(3, "Penutupan", "PT Sinar Terang"),
	}

	tests := []struct {
		name  string
		query string
		want  []uint
	}{
		{"blank keeps all", "  ", []uint{1, 2, 3}},
		{"company case insensitive", "sinar", []uint{2, 3}},
		{"title", "KICK", []uint{1}},
		{"no match", "tbk", []uint{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []uint{}
			for _, m := range Filter(rows, tt.query, MomFields) {
				got = append(got, m.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterJikIgnoresTitle(t *testing.T) {
	rows := []store.Jik{{ID: 1, Title: "Sinar", Company: &store.Company{Name: "PT Maju"}}, {ID: 2}}

	assert.Empty(t, Filter(rows, "sinar", JikFields))
	assert.Len(t, Filter(rows, "maju", JikFields), 1)
}

func TestTrackerIsPerRowAndPerAction(t *testing.T) {
	tr := NewTracker()

	require.True(t, tr.Begin(1, rowstate.ActionGenerating))
	assert.False(t, tr.Begin(1, rowstate.ActionGenerating))
	assert.True(t, tr.Begin(1, rowstate.ActionDeleting))
	assert.True(t, tr.Begin(2, rowstate.ActionGenerating))

	assert.Equal(t, []rowstate.Action{rowstate.ActionDeleting, rowstate.ActionGenerating}, tr.State(1))

	tr.Done(1, rowstate.ActionGenerating)
	tr.Done(1, rowstate.ActionDeleting)
	assert.False(t, tr.Busy(1))
	assert.True(t, tr.Busy(2))
}

func TestTrackerConcurrentBeginAdmitsOne(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Begin(7, rowstate.ActionGenerating) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, admitted)
}

type fakeAPI struct {
	mu       sync.Mutex
	moms     []store.Mom
	deleted  []uint
	exportFn func(id uint) (client.Download, error)
}

func (f *fakeAPI) ListMoms(ctx context.Context, query string) ([]store.Mom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Mom, 0, len(f.moms))
	for _, m := range f.moms {
		gone := false
		for _, id := range f.deleted {
			gone = gone || id == m.ID
		}
		if !gone {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeAPI) DeleteMom(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.moms {
		if m.ID == id {
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return &client.APIError{Status: 404, Code: "NOT_FOUND"}
}

func (f *fakeAPI) ExportMomPDF(ctx context.Context, id uint) (client.Download, error) {
	return f.exportFn(id)
}

func (f *fakeAPI) ExportMomDOCX(ctx context.Context, id uint) (client.Download, error) {
	return f.exportFn(id)
}

func TestMomViewDeleteReloads(t *testing.T) {
	api := &fakeAPI{moms: []store.Mom{mom(1, "Kickoff", "PT A"), mom(2, "Review", "PT B")}}
	view := NewMomView(api)
	require.NoError(t, view.Load(context.Background()))
	require.Len(t, view.Rows(), 2)

	require.NoError(t, view.Delete(context.Background(), 1))

	rows := view.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, uint(2), rows[0].ID)
	assert.False(t, view.Tracker.Busy(1))
}

func TestMomViewDeleteMissingKeepsRows(t *testing.T) {
	api := &fakeAPI{moms: []store.Mom{mom(1, "Kickoff", "PT A")}}
	view := NewMomView(api)
	require.NoError(t, view.Load(context.Background()))

	err := view.Delete(context.Background(), 999)

	assert.True(t, client.IsNotFound(err))
	assert.Len(t, view.Rows(), 1)
	assert.False(t, view.Tracker.Busy(999))
}

func TestMomViewExportMarksOnlyThatRow(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{exportFn: func(id uint) (client.Download, error) {
		close(started)
		<-release
		return client.Download{Filename: "page.pdf"}, nil
	}}
	view := NewMomView(api)

	done := make(chan error, 1)
	go func() {
		_, err := view.ExportPDF(context.Background(), 1)
		done <- err
	}()
	<-started

	assert.Equal(t, []rowstate.Action{rowstate.ActionGenerating}, view.Tracker.State(1))
	assert.False(t, view.Tracker.Busy(2))
	_, err := view.ExportDOCX(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, view.Tracker.Busy(1))
}

func TestExportFailureClearsState(t *testing.T) {
	api := &fakeAPI{exportFn: func(id uint) (client.Download, error) {
		return client.Download{}, errors.New("chrome crashed")
	}}
	view := NewMomView(api)

	_, err := view.ExportPDF(context.Background(), 3)

	require.Error(t, err)
	assert.False(t, view.Tracker.Busy(3))
}

func TestViewQueryAppliesToLoadedRows(t *testing.T) {
	api := &fakeAPI{moms: []store.Mom{mom(1, "Kickoff", "PT Maju"), mom(2, "Review", "CV Sinar")}}
	view := NewMomView(api)
	require.NoError(t, view.Load(context.Background()))

	view.SetQuery("maju")
	require.Len(t, view.Rows(), 1)

	view.SetQuery("")
	assert.Len(t, view.Rows(), 2)
}
