package export

import (
	"context"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"dokflow/api/internal/content"
	"dokflow/api/internal/store"

	"go.uber.org/zap"
)

// DataStore loads the aggregates an export needs.
type DataStore interface {
	GetMom(ctx context.Context, id uint) (store.Mom, error)
	GetJik(ctx context.Context, id uint) (store.Jik, error)
}

// Engine turns rendered HTML into binary artifacts. target is either a
// data URL or the address of a print view.
type Engine interface {
	PrintPDF(ctx context.Context, target string, header string) ([]byte, error)
	ConvertDOCX(ctx context.Context, html string) ([]byte, error)
}

type Options struct {
	// PrintBaseURL, when set, makes PDF export load BASE/mom/{id} instead
	// of the server-rendered HTML.
	PrintBaseURL string
	Timeout      time.Duration
	Engine       Engine
	Logger       *zap.Logger
}

// Service provides document export functionality
type Service struct {
	store        DataStore
	engine       Engine
	printBaseURL string
	timeout      time.Duration
	log          *zap.Logger
	now          func() time.Time
}

// NewService creates a new export service. A nil Engine uses headless
// Chrome for PDF and pandoc for DOCX.
func NewService(ds DataStore, opts Options) *Service {
	if opts.Engine == nil {
		opts.Engine = ChromePandoc{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		store:        ds,
		engine:       opts.Engine,
		printBaseURL: opts.PrintBaseURL,
		timeout:      opts.Timeout,
		log:          opts.Logger.Named("export"),
		now:          time.Now,
	}
}

// MomPDF prints a MOM with the fixed header and footer.
func (s *Service) MomPDF(ctx context.Context, id uint) (*Result, error) {
	mom, err := s.store.GetMom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get mom: %w", err)
	}

	var target string
	if s.printBaseURL != "" {
		target = s.printBaseURL + "/mom/" + strconv.FormatUint(uint64(id), 10)
	} else {
		html, err := s.RenderMomHTML(mom)
		if err != nil {
			return nil, err
		}
		target = "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	data, err := s.engine.PrintPDF(ctx, target, headerTemplate("MINUTES OF MEETING", mom.Title))
	if err != nil {
		return nil, err
	}
	s.log.Info("pdf exported", zap.Uint("mom_id", id), zap.Int("bytes", len(data)), zap.Duration("elapsed", time.Since(started)))

	return &Result{Data: data, Filename: "MOM-" + sanitizeFilename(mom.Title) + ".pdf", MimeType: mimePDF}, nil
}

func (s *Service) MomDOCX(ctx context.Context, id uint) (*Result, error) {
	mom, err := s.store.GetMom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get mom: %w", err)
	}
	html, err := s.RenderMomHTML(mom)
	if err != nil {
		return nil, err
	}
	return s.docx(ctx, html, "MOM-"+sanitizeFilename(mom.Title))
}

func (s *Service) JikDOCX(ctx context.Context, id uint) (*Result, error) {
	jik, err := s.store.GetJik(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get jik: %w", err)
	}
	html, err := s.RenderJikHTML(jik)
	if err != nil {
		return nil, err
	}
	return s.docx(ctx, html, "JIK-"+sanitizeFilename(jik.Title))
}

func (s *Service) docx(ctx context.Context, html, basename string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.engine.ConvertDOCX(ctx, html)
	if err != nil {
		return nil, err
	}
	s.log.Info("docx exported", zap.String("file", basename), zap.Int("bytes", len(data)))
	return &Result{Data: data, Filename: basename + ".docx", MimeType: mimeDOCX}, nil
}

// RenderMomHTML builds the printable MOM document.
func (s *Service) RenderMomHTML(mom store.Mom) (string, error) {
	sections, err := renderSections(mom.Content)
	if err != nil {
		return "", err
	}

	data := TemplateData{
		Kind:        "Minutes of Meeting",
		Title:       mom.Title,
		CompanyName: mom.CompanyName(),
		Details: []Detail{
			{Label: "Company", Value: orDash(mom.CompanyName())},
			{Label: "Date", Value: formatDate(mom.Date)},
			{Label: "Time", Value: orDash(mom.Time)},
			{Label: "Venue", Value: orDash(mom.Venue)},
			{Label: "Attendees", Value: strconv.Itoa(mom.CountAttendees)},
		},
		Sections:    sections,
		Approvers:   templateApprovers(mom.Approvers),
		GeneratedAt: s.now(),
	}
	for _, n := range mom.NextActions {
		data.NextActions = append(data.NextActions, TemplateNextAction{Action: n.Action, Target: n.Target, PIC: n.PIC})
	}
	for _, section := range mom.AttachmentSections {
		attachment := TemplateAttachment{SectionName: section.SectionName}
		for _, f := range section.Files {
			attachment.Files = append(attachment.Files, TemplateFile{Name: orDash(f.Name), URL: f.URL})
		}
		data.Attachments = append(data.Attachments, attachment)
	}

	return renderHTML("mom.html", data)
}

// RenderJikHTML builds the printable JIK document.
func (s *Service) RenderJikHTML(jik store.Jik) (string, error) {
	sections, err := renderSections(jik.Content)
	if err != nil {
		return "", err
	}

	data := TemplateData{
		Kind:        "JIK",
		Title:       jik.Title,
		CompanyName: jik.CompanyName(),
		Details: []Detail{
			{Label: "Company", Value: orDash(jik.CompanyName())},
			{Label: "Unit", Value: orDash(jik.UnitName)},
			{Label: "Initiative / Partnership", Value: orDash(jik.InitiativePartnership)},
			{Label: "Investment Value", Value: formatRupiah(jik.InvestValue)},
			{Label: "Contract Duration", Value: fmt.Sprintf("%d year(s)", jik.ContractDurationYears)},
		},
		Sections:    sections,
		Approvers:   templateApprovers(jik.Approvers),
		GeneratedAt: s.now(),
	}
	return renderHTML("jik.html", data)
}

func renderSections(raw []byte) ([]TemplateSection, error) {
	sections, err := content.ParseSections(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	out := make([]TemplateSection, 0, len(sections))
	for _, section := range sections {
		out = append(out, TemplateSection{
			Title: section.Title,
			HTML:  template.HTML(section.Content.HTML()),
		})
	}
	return out, nil
}

func templateApprovers(approvers []store.Approver) []TemplateApprover {
	out := make([]TemplateApprover, 0, len(approvers))
	for _, a := range approvers {
		item := TemplateApprover{Name: a.Name}
		if a.Type != nil {
			item.Type = *a.Type
		}
		if a.Email != nil {
			item.Email = *a.Email
		}
		out = append(out, item)
	}
	return out
}
