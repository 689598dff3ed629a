package app

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"sort"
	"sync"
	"testing"
	"time"

	"dokflow/api/internal/config"
	"dokflow/api/internal/content"
	"dokflow/api/internal/email"
	"dokflow/api/internal/export"
	"dokflow/api/internal/revision"
	"dokflow/api/internal/rowstate"
	"dokflow/api/internal/search"
	"dokflow/api/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// fakeStore keeps rows in memory and mirrors the replace-set and
// soft-delete behaviour of the gorm store.
type fakeStore struct {
	mu         sync.Mutex
	nextID     uint
	companies  map[uint]store.Company
	progresses []store.Progress
	documents  []store.Document
	moms       map[uint]store.Mom
	deleted    map[uint]bool
	jiks       map[uint]store.Jik
	pingFn     func(context.Context) error
	updateErr  error
	// racedFinish marks the row finished by another request just before
	// the update takes its lock.
	racedFinish bool
	writes      int
}

func fkViolation() error {
	return fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"})
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:    1,
		companies: map[uint]store.Company{1: {ID: 1, Name: "PT Maju Jaya"}},
		moms:      map[uint]store.Mom{},
		deleted:   map[uint]bool{},
		jiks:      map[uint]store.Jik{},
	}
}

func (f *fakeStore) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) company(id uint) *store.Company {
	c, ok := f.companies[id]
	if !ok {
		return nil
	}
	return &c
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) ListCompanies(context.Context) ([]store.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Company, 0, len(f.companies))
	for _, c := range f.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CreateCompany(_ context.Context, name string) (store.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := store.Company{ID: f.id(), Name: name}
	f.companies[c.ID] = c
	return c, nil
}

func (f *fakeStore) RegisterNDA(_ context.Context, companyID uint, fileURL string) (store.Progress, store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.company(companyID)
	if c == nil {
		return store.Progress{}, store.Document{}, fmt.Errorf("find company %d: %w", companyID, store.ErrNotFound)
	}
	progress := store.Progress{
		ID:        f.id(),
		CompanyID: companyID,
		Company:   *c,
		Step:      store.Step{ID: 1, Name: store.StepNDA},
		Status:    store.Status{ID: 1, Name: store.StatusOnProgress},
	}
	document := store.Document{ID: f.id(), ProgressID: progress.ID, FileURL: fileURL}
	f.progresses = append(f.progresses, progress)
	f.documents = append(f.documents, document)
	f.writes++
	return progress, document, nil
}

func (f *fakeStore) ListProgressByStep(_ context.Context, step string) ([]store.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Progress{}
	for _, p := range f.progresses {
		if p.Step.Name == step {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateMom(_ context.Context, mom store.Mom) (store.Mom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.company(mom.CompanyID) == nil {
		return store.Mom{}, fkViolation()
	}
	mom.ID = f.id()
	mom.Company = f.company(mom.CompanyID)
	f.moms[mom.ID] = mom
	f.writes++
	return mom, nil
}

func (f *fakeStore) GetMom(_ context.Context, id uint) (store.Mom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mom, ok := f.moms[id]
	if !ok || f.deleted[id] {
		return store.Mom{}, store.ErrNotFound
	}
	return mom, nil
}

func (f *fakeStore) ListMoms(context.Context) ([]store.Mom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Mom{}
	for id, m := range f.moms {
		if !f.deleted[id] {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListMomsByID(ctx context.Context, ids []uint) ([]store.Mom, error) {
	out := []store.Mom{}
	for _, id := range ids {
		if m, err := f.GetMom(ctx, id); err == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateMom(_ context.Context, id uint, patch store.MomPatch) (store.Mom, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return store.Mom{}, false, f.updateErr
	}
	mom, ok := f.moms[id]
	if !ok || f.deleted[id] {
		return store.Mom{}, false, store.ErrNotFound
	}
	if f.racedFinish {
		mom.IsFinish = true
	}
	wasFinished := mom.IsFinish
	for column, value := range patch.Fields {
		switch column {
		case "title":
			mom.Title = value.(string)
		case "company_id":
			mom.CompanyID = value.(uint)
			mom.Company = f.company(mom.CompanyID)
		case "date":
			mom.Date = value.(*time.Time)
		case "time":
			mom.Time = value.(string)
		case "venue":
			mom.Venue = value.(string)
		case "count_attendees":
			mom.CountAttendees = value.(int)
		case "content":
			mom.Content = value.(datatypes.JSON)
		case "is_finish":
			mom.IsFinish = value.(bool)
		}
	}
	if patch.Approvers != nil {
		mom.Approvers = append([]store.Approver(nil), *patch.Approvers...)
	}
	if patch.NextActions != nil {
		mom.NextActions = append([]store.NextAction(nil), *patch.NextActions...)
	}
	if patch.AttachmentSections != nil {
		mom.AttachmentSections = append([]store.AttachmentSection(nil), *patch.AttachmentSections...)
	}
	f.moms[id] = mom
	f.writes++
	return mom, !wasFinished && mom.IsFinish, nil
}

func (f *fakeStore) SoftDeleteMom(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.moms[id]; !ok || f.deleted[id] {
		return store.ErrNotFound
	}
	f.deleted[id] = true
	f.writes++
	return nil
}

func (f *fakeStore) CreateJik(_ context.Context, jik store.Jik) (store.Jik, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.company(jik.CompanyID) == nil {
		return store.Jik{}, fkViolation()
	}
	jik.ID = f.id()
	jik.Company = f.company(jik.CompanyID)
	f.jiks[jik.ID] = jik
	f.writes++
	return jik, nil
}

func (f *fakeStore) GetJik(_ context.Context, id uint) (store.Jik, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jik, ok := f.jiks[id]
	if !ok {
		return store.Jik{}, store.ErrNotFound
	}
	return jik, nil
}

func (f *fakeStore) ListJiks(context.Context) ([]store.Jik, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Jik{}
	for _, j := range f.jiks {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListJiksByID(ctx context.Context, ids []uint) ([]store.Jik, error) {
	out := []store.Jik{}
	for _, id := range ids {
		if j, err := f.GetJik(ctx, id); err == nil {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateJik(_ context.Context, id uint, patch store.JikPatch) (store.Jik, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jik, ok := f.jiks[id]
	if !ok {
		return store.Jik{}, false, store.ErrNotFound
	}
	if f.racedFinish {
		jik.IsFinish = true
	}
	wasFinished := jik.IsFinish
	for column, value := range patch.Fields {
		switch column {
		case "title":
			jik.Title = value.(string)
		case "unit_name":
			jik.UnitName = value.(string)
		case "invest_value":
			jik.InvestValue = value.(decimal.Decimal)
		case "content":
			jik.Content = value.(datatypes.JSON)
		case "is_finish":
			jik.IsFinish = value.(bool)
		}
	}
	if patch.Approvers != nil {
		jik.Approvers = append([]store.Approver(nil), *patch.Approvers...)
	}
	f.jiks[id] = jik
	f.writes++
	return jik, !wasFinished && jik.IsFinish, nil
}

type fakeSearch struct {
	mu      sync.Mutex
	ids     []uint
	queries []search.Query
	indexed []string
	removed []string
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.ids, nil
}

func (f *fakeSearch) Index(r search.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, r.ID)
}

func (f *fakeSearch) Delete(kind string, id uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, search.RecordKey(kind, id))
}

// fakeExporter renders a fixed payload and can observe the row registry
// while an export is running.
type fakeExporter struct {
	err    error
	during func()
}

func (f *fakeExporter) result(name, mime string) (*export.Result, error) {
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &export.Result{Data: []byte("%BYTES%"), Filename: name, MimeType: mime}, nil
}

func (f *fakeExporter) MomPDF(context.Context, uint) (*export.Result, error) {
	return f.result("MOM-Kickoff.pdf", "application/pdf")
}

func (f *fakeExporter) MomDOCX(context.Context, uint) (*export.Result, error) {
	return f.result("MOM-Kickoff.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
}

func (f *fakeExporter) JikDOCX(context.Context, uint) (*export.Result, error) {
	return f.result("JIK-Kerja-Sama.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
}

type fakeRevisions struct {
	mu        sync.Mutex
	recorded  []revision.Snapshot
	snapshots map[string]revision.Snapshot
}

func (f *fakeRevisions) Record(kind string, id uint, snap revision.Snapshot, author, message string) (revision.Commit, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, snap)
	return revision.Commit{Hash: fmt.Sprintf("c%d", len(f.recorded)), Message: message, Author: author}, true, nil
}

func (f *fakeRevisions) History(kind string, id uint, limit int) ([]revision.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []revision.Commit{}
	for i := len(f.recorded); i > 0 && len(out) < limit; i-- {
		out = append(out, revision.Commit{Hash: fmt.Sprintf("c%d", i)})
	}
	return out, nil
}

func (f *fakeRevisions) SnapshotAt(kind string, id uint, hash string) (revision.Snapshot, error) {
	snap, ok := f.snapshots[hash]
	if !ok {
		return revision.Snapshot{}, errors.New("unknown revision")
	}
	return snap, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []email.FinishNotice
}

func (f *fakeNotifier) IsConfigured() bool { return true }

func (f *fakeNotifier) SendFinishNotice(n email.FinishNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return nil
}

type fakeUploader struct {
	names []string
	err   error
}

func (f *fakeUploader) Save(_ context.Context, fh *multipart.FileHeader) (store.File, error) {
	if f.err != nil {
		return store.File{}, f.err
	}
	f.names = append(f.names, fh.Filename)
	return store.File{
		URL:       "http://objects.local/dokflow/attachments/" + fh.Filename,
		Name:      fh.Filename,
		ObjectKey: "attachments/" + fh.Filename,
		Size:      fh.Size,
	}, nil
}

type testDeps struct {
	store     *fakeStore
	search    *fakeSearch
	exporter  *fakeExporter
	revisions *fakeRevisions
	notifier  *fakeNotifier
	uploader  *fakeUploader
	rows      *rowstate.MemoryRegistry
}

func newTestService(cfg config.Config) (*Service, *testDeps) {
	deps := &testDeps{
		store:     newFakeStore(),
		search:    &fakeSearch{},
		exporter:  &fakeExporter{},
		revisions: &fakeRevisions{snapshots: map[string]revision.Snapshot{}},
		notifier:  &fakeNotifier{},
		uploader:  &fakeUploader{},
		rows:      rowstate.NewMemoryRegistry(),
	}
	svc := New(cfg, Deps{
		Store:     deps.store,
		Search:    deps.search,
		Exporter:  deps.exporter,
		Revisions: deps.revisions,
		Notifier:  deps.notifier,
		Uploader:  deps.uploader,
		RowState:  deps.rows,
	})
	svc.background = func(fn func()) { fn() }
	return svc, deps
}

func itoa(v uint) string {
	return fmt.Sprintf("%d", v)
}

func mustSnapshot(t *testing.T, title, raw string) revision.Snapshot {
	t.Helper()
	sections, err := content.ParseSections([]byte(raw))
	require.NoError(t, err)
	return revision.Snapshot{Title: title, Sections: sections}
}
