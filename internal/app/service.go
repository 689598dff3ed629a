package app

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"dokflow/api/internal/config"
	"dokflow/api/internal/content"
	"dokflow/api/internal/email"
	"dokflow/api/internal/export"
	"dokflow/api/internal/revision"
	"dokflow/api/internal/rowstate"
	"dokflow/api/internal/search"
	"dokflow/api/internal/store"

	"go.uber.org/zap"
)

const defaultActor = "Dokflow"

type dataStore interface {
	Ping(ctx context.Context) error
	ListCompanies(context.Context) ([]store.Company, error)
	CreateCompany(context.Context, string) (store.Company, error)
	RegisterNDA(context.Context, uint, string) (store.Progress, store.Document, error)
	ListProgressByStep(context.Context, string) ([]store.Progress, error)
	CreateMom(context.Context, store.Mom) (store.Mom, error)
	GetMom(context.Context, uint) (store.Mom, error)
	ListMoms(context.Context) ([]store.Mom, error)
	ListMomsByID(context.Context, []uint) ([]store.Mom, error)
	UpdateMom(context.Context, uint, store.MomPatch) (store.Mom, bool, error)
	SoftDeleteMom(context.Context, uint) error
	CreateJik(context.Context, store.Jik) (store.Jik, error)
	GetJik(context.Context, uint) (store.Jik, error)
	ListJiks(context.Context) ([]store.Jik, error)
	ListJiksByID(context.Context, []uint) ([]store.Jik, error)
	UpdateJik(context.Context, uint, store.JikPatch) (store.Jik, bool, error)
}

type searcher interface {
	Search(context.Context, search.Query) ([]uint, error)
	Index(search.Record)
	Delete(kind string, id uint)
}

type exporter interface {
	MomPDF(context.Context, uint) (*export.Result, error)
	MomDOCX(context.Context, uint) (*export.Result, error)
	JikDOCX(context.Context, uint) (*export.Result, error)
}

type revisionLog interface {
	Record(kind string, id uint, snap revision.Snapshot, author, message string) (revision.Commit, bool, error)
	History(kind string, id uint, limit int) ([]revision.Commit, error)
	SnapshotAt(kind string, id uint, hash string) (revision.Snapshot, error)
}

type notifier interface {
	IsConfigured() bool
	SendFinishNotice(email.FinishNotice) error
}

type uploader interface {
	Save(context.Context, *multipart.FileHeader) (store.File, error)
}

// Deps are the collaborators of Service. Search, Revisions, Notifier and
// Uploader are optional.
type Deps struct {
	Store     dataStore
	Search    searcher
	Exporter  exporter
	Revisions revisionLog
	Notifier  notifier
	Uploader  uploader
	RowState  rowstate.Registry
	Logger    *zap.Logger
}

type Service struct {
	cfg        config.Config
	store      dataStore
	search     searcher
	exporter   exporter
	revisions  revisionLog
	notifier   notifier
	uploader   uploader
	rows       rowstate.Registry
	log        *zap.Logger
	background func(func())
}

func New(cfg config.Config, deps Deps) *Service {
	if deps.RowState == nil {
		deps.RowState = rowstate.NewMemoryRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		search:     deps.Search,
		exporter:   deps.Exporter,
		revisions:  deps.Revisions,
		notifier:   deps.Notifier,
		uploader:   deps.Uploader,
		rows:       deps.RowState,
		log:        deps.Logger.Named("app"),
		background: func(fn func()) { go fn() },
	}
}

// logFor tags log lines with the request id carried by ctx.
func (s *Service) logFor(ctx context.Context) *zap.Logger {
	if id := RequestID(ctx); id != "" {
		return s.log.With(zap.String("request_id", id))
	}
	return s.log
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) ListCompanies(ctx context.Context) ([]store.Company, error) {
	return s.store.ListCompanies(ctx)
}

func (s *Service) CreateCompany(ctx context.Context, in CreateCompanyInput) (store.Company, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := checkInput(in, nil); err != nil {
		return store.Company{}, err
	}
	return s.store.CreateCompany(ctx, in.Name)
}

// RegisterNDA creates the progress and its NDA document together.
func (s *Service) RegisterNDA(ctx context.Context, in RegisterNDAInput) (store.Progress, store.Document, error) {
	in.FileURL = strings.TrimSpace(in.FileURL)
	if err := checkInput(in, nil); err != nil {
		return store.Progress{}, store.Document{}, err
	}
	progress, document, err := s.store.RegisterNDA(ctx, *in.CompanyID, in.FileURL)
	if err != nil {
		if isNotFound(err) {
			return store.Progress{}, store.Document{}, notFound("Company")
		}
		return store.Progress{}, store.Document{}, err
	}
	s.logFor(ctx).Info("nda registered", zap.Uint("company_id", *in.CompanyID), zap.Uint("progress_id", progress.ID))
	return progress, document, nil
}

func (s *Service) ListNDA(ctx context.Context) ([]store.Progress, error) {
	return s.store.ListProgressByStep(ctx, store.StepNDA)
}

// ListMoms returns every live MOM, or the ones matching query when set.
func (s *Service) ListMoms(ctx context.Context, query string) ([]store.Mom, error) {
	query = strings.TrimSpace(query)
	if query == "" || s.search == nil {
		return s.store.ListMoms(ctx)
	}
	ids, err := s.search.Search(ctx, search.Query{Kind: store.KindMom, Text: query})
	if err != nil {
		return nil, err
	}
	return s.store.ListMomsByID(ctx, ids)
}

func (s *Service) CreateMom(ctx context.Context, in MomInput) (store.Mom, error) {
	if err := in.check(true); err != nil {
		return store.Mom{}, err
	}
	draft, err := in.newMom()
	if err != nil {
		return store.Mom{}, validationError(map[string]string{"date": "datetime"})
	}
	mom, err := s.store.CreateMom(ctx, draft)
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return store.Mom{}, notFound("Company")
		}
		return store.Mom{}, err
	}
	s.afterMomWrite(mom, "Create MOM")
	return mom, nil
}

func (s *Service) GetMom(ctx context.Context, id uint) (store.Mom, error) {
	mom, err := s.store.GetMom(ctx, id)
	if isNotFound(err) {
		return store.Mom{}, notFound("MOM")
	}
	return mom, err
}

// UpdateMom applies a partial update in one transaction. A missing or
// soft-deleted MOM is reported as not found before anything is written.
func (s *Service) UpdateMom(ctx context.Context, id uint, in MomInput) (store.Mom, error) {
	if err := in.check(false); err != nil {
		return store.Mom{}, err
	}
	patch, err := in.patch()
	if err != nil {
		return store.Mom{}, validationError(map[string]string{"date": "datetime"})
	}
	if _, err := s.GetMom(ctx, id); err != nil {
		return store.Mom{}, err
	}

	mom, finished, err := s.store.UpdateMom(ctx, id, patch)
	if err != nil {
		switch {
		case isNotFound(err):
			return store.Mom{}, notFound("MOM")
		case store.IsForeignKeyViolation(err):
			return store.Mom{}, notFound("Company")
		}
		return store.Mom{}, err
	}

	s.afterMomWrite(mom, "Update MOM")
	if finished {
		s.notifyFinished(store.KindMom, mom.Title, mom.CompanyName(), store.StepJIK, mom.Approvers)
	}
	return mom, nil
}

// DeleteMom soft-deletes a MOM. Its children stay in storage.
func (s *Service) DeleteMom(ctx context.Context, id uint) error {
	err := rowstate.Track(ctx, s.rows, store.KindMom, id, rowstate.ActionDeleting, func() error {
		return s.store.SoftDeleteMom(ctx, id)
	})
	if err != nil {
		if isNotFound(err) {
			return notFound("MOM")
		}
		return err
	}
	if s.search != nil {
		s.search.Delete(store.KindMom, id)
	}
	s.logFor(ctx).Info("mom deleted", zap.Uint("mom_id", id))
	return nil
}

func (s *Service) ListJiks(ctx context.Context, query string) ([]store.Jik, error) {
	query = strings.TrimSpace(query)
	if query == "" || s.search == nil {
		return s.store.ListJiks(ctx)
	}
	ids, err := s.search.Search(ctx, search.Query{Kind: store.KindJik, Text: query})
	if err != nil {
		return nil, err
	}
	return s.store.ListJiksByID(ctx, ids)
}

func (s *Service) CreateJik(ctx context.Context, in JikInput) (store.Jik, error) {
	if err := in.check(true); err != nil {
		return store.Jik{}, err
	}
	jik, err := s.store.CreateJik(ctx, in.newJik())
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return store.Jik{}, notFound("Company")
		}
		return store.Jik{}, err
	}
	s.afterJikWrite(jik, "Create JIK")
	return jik, nil
}

func (s *Service) GetJik(ctx context.Context, id uint) (store.Jik, error) {
	jik, err := s.store.GetJik(ctx, id)
	if isNotFound(err) {
		return store.Jik{}, notFound("JIK")
	}
	return jik, err
}

func (s *Service) UpdateJik(ctx context.Context, id uint, in JikInput) (store.Jik, error) {
	if err := in.check(false); err != nil {
		return store.Jik{}, err
	}
	if _, err := s.GetJik(ctx, id); err != nil {
		return store.Jik{}, err
	}

	jik, finished, err := s.store.UpdateJik(ctx, id, in.patch())
	if err != nil {
		switch {
		case isNotFound(err):
			return store.Jik{}, notFound("JIK")
		case store.IsForeignKeyViolation(err):
			return store.Jik{}, notFound("Company")
		}
		return store.Jik{}, err
	}

	s.afterJikWrite(jik, "Update JIK")
	if finished {
		s.notifyFinished(store.KindJik, jik.Title, jik.CompanyName(), store.StepDone, jik.Approvers)
	}
	return jik, nil
}

func (s *Service) ExportMomPDF(ctx context.Context, id uint) (*export.Result, error) {
	return s.runExport(ctx, store.KindMom, id, s.exporter.MomPDF)
}

func (s *Service) ExportMomDOCX(ctx context.Context, id uint) (*export.Result, error) {
	return s.runExport(ctx, store.KindMom, id, s.exporter.MomDOCX)
}

func (s *Service) ExportJikDOCX(ctx context.Context, id uint) (*export.Result, error) {
	return s.runExport(ctx, store.KindJik, id, s.exporter.JikDOCX)
}

func (s *Service) runExport(ctx context.Context, kind string, id uint, fn func(context.Context, uint) (*export.Result, error)) (*export.Result, error) {
	var result *export.Result
	err := rowstate.Track(ctx, s.rows, kind, id, rowstate.ActionGenerating, func() error {
		var err error
		result, err = fn(ctx, id)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(strings.ToUpper(kind))
		}
		s.logFor(ctx).Error("export failed", zap.String("kind", kind), zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// InFlight lists rows of kind with an export or delete running.
func (s *Service) InFlight(ctx context.Context, kind string) ([]rowstate.Entry, error) {
	return s.rows.InFlight(ctx, kind)
}

func (s *Service) UploadEnabled() bool {
	return s.uploader != nil
}

// Upload stores every file or none of the descriptors are returned.
func (s *Service) Upload(ctx context.Context, files []*multipart.FileHeader) ([]store.File, error) {
	if s.uploader == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UPLOAD_UNAVAILABLE", "Object storage not configured", nil)
	}
	if len(files) == 0 {
		return nil, validationError(map[string]string{"files": "required"})
	}
	saved := make([]store.File, 0, len(files))
	for _, fh := range files {
		file, err := s.uploader.Save(ctx, fh)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", fh.Filename, err)
		}
		saved = append(saved, file)
	}
	s.logFor(ctx).Info("files uploaded", zap.Int("count", len(saved)))
	return saved, nil
}

// History lists content revisions of a MOM or JIK, newest first.
func (s *Service) History(ctx context.Context, kind string, id uint, limit int) ([]revision.Commit, error) {
	if err := s.ensureExists(ctx, kind, id); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return []revision.Commit{}, nil
	}
	return s.revisions.History(kind, id, limit)
}

// Compare lists the section titles that differ between two revisions.
func (s *Service) Compare(ctx context.Context, kind string, id uint, from, to string) (map[string]any, error) {
	if err := s.ensureExists(ctx, kind, id); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return nil, notFound("Revision")
	}
	before, err := s.revisions.SnapshotAt(kind, id, from)
	if err != nil {
		return nil, notFound("Revision")
	}
	after, err := s.revisions.SnapshotAt(kind, id, to)
	if err != nil {
		return nil, notFound("Revision")
	}
	return map[string]any{
		"from":            from,
		"to":              to,
		"titleChanged":    before.Title != after.Title,
		"changedSections": revision.ChangedSections(before, after),
	}, nil
}

func (s *Service) ensureExists(ctx context.Context, kind string, id uint) error {
	switch kind {
	case store.KindMom:
		_, err := s.GetMom(ctx, id)
		return err
	case store.KindJik:
		_, err := s.GetJik(ctx, id)
		return err
	}
	return notFound("Document")
}

// AllRecords returns search records for every live MOM and JIK.
func (s *Service) AllRecords(ctx context.Context) ([]search.Record, error) {
	moms, err := s.store.ListMoms(ctx)
	if err != nil {
		return nil, err
	}
	jiks, err := s.store.ListJiks(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]search.Record, 0, len(moms)+len(jiks))
	for _, m := range moms {
		records = append(records, search.MomRecord(m))
	}
	for _, j := range jiks {
		records = append(records, search.JikRecord(j))
	}
	return records, nil
}

func (s *Service) afterMomWrite(mom store.Mom, message string) {
	if s.search != nil {
		s.search.Index(search.MomRecord(mom))
	}
	s.recordRevision(store.KindMom, mom.ID, mom.Title, mom.Content, message)
}

func (s *Service) afterJikWrite(jik store.Jik, message string) {
	if s.search != nil {
		s.search.Index(search.JikRecord(jik))
	}
	s.recordRevision(store.KindJik, jik.ID, jik.Title, jik.Content, message)
}

// recordRevision never fails the request; history is best effort.
func (s *Service) recordRevision(kind string, id uint, title string, raw []byte, message string) {
	if s.revisions == nil {
		return
	}
	sections, err := content.ParseSections(raw)
	if err != nil {
		s.log.Warn("revision skipped, content unreadable", zap.String("kind", kind), zap.Uint("id", id), zap.Error(err))
		return
	}
	commit, created, err := s.revisions.Record(kind, id, revision.Snapshot{Title: title, Sections: sections}, defaultActor, message)
	if err != nil {
		s.log.Warn("record revision", zap.String("kind", kind), zap.Uint("id", id), zap.Error(err))
		return
	}
	if created {
		s.log.Debug("revision recorded", zap.String("kind", kind), zap.Uint("id", id), zap.String("hash", commit.Hash))
	}
}

func (s *Service) notifyFinished(kind, title, company, nextStep string, approvers []store.Approver) {
	if s.notifier == nil || !s.notifier.IsConfigured() {
		return
	}
	recipients := make([]email.Recipient, 0, len(approvers))
	for _, a := range approvers {
		r := email.Recipient{Name: a.Name}
		if a.Email != nil {
			r.Email = *a.Email
		}
		recipients = append(recipients, r)
	}
	notice := email.FinishNotice{
		Kind:        kind,
		Title:       title,
		CompanyName: company,
		NextStep:    nextStep,
		Recipients:  recipients,
	}
	s.background(func() {
		if err := s.notifier.SendFinishNotice(notice); err != nil {
			s.log.Warn("finish notice", zap.String("kind", kind), zap.String("title", title), zap.Error(err))
		}
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
