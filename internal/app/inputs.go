package app

import (
	"encoding/json"
	"strings"
	"time"

	"dokflow/api/internal/content"
	"dokflow/api/internal/store"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const dateLayout = "2006-01-02"

type CreateCompanyInput struct {
	Name string `json:"name" validate:"required,singleline,max=255"`
}

type RegisterNDAInput struct {
	CompanyID *uint  `json:"companyId" validate:"required,gt=0"`
	FileURL   string `json:"fileUrl" validate:"required"`
}

type ApproverInput struct {
	Name  string  `json:"name" validate:"required,singleline,max=255"`
	Type  *string `json:"type" validate:"omitempty,max=64"`
	Email *string `json:"email" validate:"omitempty,email"`
}

// JikApproverInput requires one of the three approval buckets.
type JikApproverInput struct {
	Name  string  `json:"name" validate:"required,singleline,max=255"`
	Type  string  `json:"type" validate:"required,oneof=Inisiator Pemeriksa 'Pemberi Persetujuan'"`
	Email *string `json:"email" validate:"omitempty,email"`
}

type NextActionInput struct {
	Action string `json:"action" validate:"required"`
	Target string `json:"target" validate:"max=255"`
	PIC    string `json:"pic" validate:"max=255"`
}

type FileInput struct {
	URL       string `json:"url" validate:"required"`
	Name      string `json:"name" validate:"max=255"`
	ObjectKey string `json:"object_key"`
	MimeType  string `json:"mime_type" validate:"max=128"`
	Size      int64  `json:"size" validate:"gte=0"`
}

type AttachmentSectionInput struct {
	SectionName string      `json:"section_name" validate:"required,singleline,max=255"`
	Files       []FileInput `json:"files" validate:"dive"`
}

// NullableString tells an absent JSON field apart from an explicit null.
type NullableString struct {
	Present bool
	Value   *string
}

func (n *NullableString) UnmarshalJSON(b []byte) error {
	n.Present = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

func (n NullableString) String() string {
	if n.Value == nil {
		return ""
	}
	return *n.Value
}

// MomInput is used for create and partial update. A nil field is left
// untouched; a present child list replaces the stored one. An explicit
// null date clears it.
type MomInput struct {
	Title              *string                   `json:"title" validate:"omitempty,singleline,max=255"`
	CompanyID          *uint                     `json:"company_id" validate:"omitempty,gt=0"`
	ProgressID         *uint                     `json:"progress_id" validate:"omitempty,gt=0"`
	Date               NullableString            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time               *string                   `json:"time" validate:"omitempty,max=32"`
	Venue              *string                   `json:"venue" validate:"omitempty,singleline,max=255"`
	CountAttendees     *int                      `json:"count_attendees" validate:"omitempty,gte=0"`
	Content            json.RawMessage           `json:"content"`
	IsFinish           *bool                     `json:"is_finish"`
	Approvers          *[]ApproverInput          `json:"approvers" validate:"omitempty,dive"`
	NextActions        *[]NextActionInput        `json:"next_actions" validate:"omitempty,dive"`
	AttachmentSections *[]AttachmentSectionInput `json:"attachment_sections" validate:"omitempty,dive"`
}

type JikInput struct {
	Title                 *string             `json:"title" validate:"omitempty,singleline,max=255"`
	CompanyID             *uint               `json:"company_id" validate:"omitempty,gt=0"`
	ProgressID            *uint               `json:"progress_id" validate:"omitempty,gt=0"`
	UnitName              *string             `json:"unit_name" validate:"omitempty,singleline,max=255"`
	InitiativePartnership *string             `json:"initiative_partnership"`
	InvestValue           *decimal.Decimal    `json:"invest_value"`
	ContractDurationYears *int                `json:"contract_duration_years" validate:"omitempty,gte=0"`
	Content               json.RawMessage     `json:"content"`
	IsFinish              *bool               `json:"is_finish"`
	Approvers             *[]JikApproverInput `json:"approvers" validate:"omitempty,dive"`
}

// normalizeContent reports whether content was supplied and returns it in
// canonical section form.
func normalizeContent(raw json.RawMessage) (datatypes.JSON, bool, error) {
	if len(raw) == 0 {
		return nil, false, nil
	}
	sections, err := content.ParseSections(raw)
	if err != nil {
		return nil, true, err
	}
	out, err := content.Marshal(sections)
	if err != nil {
		return nil, true, err
	}
	return datatypes.JSON(out), true, nil
}

func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	return &trimmed
}

func (in MomInput) check(creating bool) error {
	extra := map[string]string{}
	if creating {
		if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
			extra["title"] = "required"
		}
		if in.CompanyID == nil {
			extra["company_id"] = "required"
		}
	} else if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		extra["title"] = "required"
	}
	if _, _, err := normalizeContent(in.Content); err != nil {
		extra["content"] = "sections"
	}
	return checkInput(in, extra)
}

func (in JikInput) check(creating bool) error {
	extra := map[string]string{}
	if creating {
		if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
			extra["title"] = "required"
		}
		if in.CompanyID == nil {
			extra["company_id"] = "required"
		}
	} else if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		extra["title"] = "required"
	}
	if in.InvestValue != nil && in.InvestValue.IsNegative() {
		extra["invest_value"] = "gte"
	}
	if _, _, err := normalizeContent(in.Content); err != nil {
		extra["content"] = "sections"
	}
	return checkInput(in, extra)
}

func toApprovers(in []ApproverInput) []store.Approver {
	out := make([]store.Approver, 0, len(in))
	for _, a := range in {
		out = append(out, store.Approver{
			Name:  strings.TrimSpace(a.Name),
			Type:  blankToNil(a.Type),
			Email: blankToNil(a.Email),
		})
	}
	return out
}

func toJikApprovers(in []JikApproverInput) []store.Approver {
	out := make([]store.Approver, 0, len(in))
	for _, a := range in {
		kind := a.Type
		out = append(out, store.Approver{
			Name:  strings.TrimSpace(a.Name),
			Type:  &kind,
			Email: blankToNil(a.Email),
		})
	}
	return out
}

func toNextActions(in []NextActionInput) []store.NextAction {
	out := make([]store.NextAction, 0, len(in))
	for _, a := range in {
		out = append(out, store.NextAction{Action: a.Action, Target: a.Target, PIC: a.PIC})
	}
	return out
}

func toAttachmentSections(in []AttachmentSectionInput) []store.AttachmentSection {
	out := make([]store.AttachmentSection, 0, len(in))
	for _, section := range in {
		files := make([]store.File, 0, len(section.Files))
		for _, f := range section.Files {
			files = append(files, store.File{
				URL:       f.URL,
				Name:      f.Name,
				ObjectKey: f.ObjectKey,
				MimeType:  f.MimeType,
				Size:      f.Size,
			})
		}
		out = append(out, store.AttachmentSection{SectionName: section.SectionName, Files: files})
	}
	return out
}

// newMom builds a draft row. check(true) must have passed.
func (in MomInput) newMom() (store.Mom, error) {
	mom := store.Mom{
		Title:      strings.TrimSpace(*in.Title),
		CompanyID:  *in.CompanyID,
		ProgressID: in.ProgressID,
		Content:    datatypes.JSON("[]"),
	}
	if in.Date.Value != nil {
		date, err := parseDate(*in.Date.Value)
		if err != nil {
			return store.Mom{}, err
		}
		mom.Date = date
	}
	if in.Time != nil {
		mom.Time = *in.Time
	}
	if in.Venue != nil {
		mom.Venue = *in.Venue
	}
	if in.CountAttendees != nil {
		mom.CountAttendees = *in.CountAttendees
	}
	if normalized, ok, _ := normalizeContent(in.Content); ok {
		mom.Content = normalized
	}
	if in.IsFinish != nil {
		mom.IsFinish = *in.IsFinish
	}
	if in.Approvers != nil {
		mom.Approvers = toApprovers(*in.Approvers)
	}
	if in.NextActions != nil {
		mom.NextActions = toNextActions(*in.NextActions)
	}
	if in.AttachmentSections != nil {
		mom.AttachmentSections = toAttachmentSections(*in.AttachmentSections)
	}
	return mom, nil
}

// patch converts the supplied fields into column updates. A present date is
// parsed; null or blank clears it.
func (in MomInput) patch() (store.MomPatch, error) {
	fields := map[string]any{}
	if in.Title != nil {
		fields["title"] = strings.TrimSpace(*in.Title)
	}
	if in.CompanyID != nil {
		fields["company_id"] = *in.CompanyID
	}
	if in.ProgressID != nil {
		fields["progress_id"] = *in.ProgressID
	}
	if in.Date.Present {
		date, err := parseDate(in.Date.String())
		if err != nil {
			return store.MomPatch{}, err
		}
		fields["date"] = date
	}
	if in.Time != nil {
		fields["time"] = *in.Time
	}
	if in.Venue != nil {
		fields["venue"] = *in.Venue
	}
	if in.CountAttendees != nil {
		fields["count_attendees"] = *in.CountAttendees
	}
	if normalized, ok, _ := normalizeContent(in.Content); ok {
		fields["content"] = normalized
	}
	if in.IsFinish != nil {
		fields["is_finish"] = *in.IsFinish
	}

	patch := store.MomPatch{Fields: fields}
	if in.Approvers != nil {
		approvers := toApprovers(*in.Approvers)
		patch.Approvers = &approvers
	}
	if in.NextActions != nil {
		actions := toNextActions(*in.NextActions)
		patch.NextActions = &actions
	}
	if in.AttachmentSections != nil {
		sections := toAttachmentSections(*in.AttachmentSections)
		patch.AttachmentSections = &sections
	}
	return patch, nil
}

func (in JikInput) newJik() store.Jik {
	jik := store.Jik{
		Title:      strings.TrimSpace(*in.Title),
		CompanyID:  *in.CompanyID,
		ProgressID: in.ProgressID,
		Content:    datatypes.JSON("[]"),
	}
	if in.UnitName != nil {
		jik.UnitName = *in.UnitName
	}
	if in.InitiativePartnership != nil {
		jik.InitiativePartnership = *in.InitiativePartnership
	}
	if in.InvestValue != nil {
		jik.InvestValue = in.InvestValue.Round(2)
	}
	if in.ContractDurationYears != nil {
		jik.ContractDurationYears = *in.ContractDurationYears
	}
	if normalized, ok, _ := normalizeContent(in.Content); ok {
		jik.Content = normalized
	}
	if in.IsFinish != nil {
		jik.IsFinish = *in.IsFinish
	}
	if in.Approvers != nil {
		jik.Approvers = toJikApprovers(*in.Approvers)
	}
	return jik
}

func (in JikInput) patch() store.JikPatch {
	fields := map[string]any{}
	if in.Title != nil {
		fields["title"] = strings.TrimSpace(*in.Title)
	}
	if in.CompanyID != nil {
		fields["company_id"] = *in.CompanyID
	}
	if in.ProgressID != nil {
		fields["progress_id"] = *in.ProgressID
	}
	if in.UnitName != nil {
		fields["unit_name"] = *in.UnitName
	}
	if in.InitiativePartnership != nil {
		fields["initiative_partnership"] = *in.InitiativePartnership
	}
	if in.InvestValue != nil {
		fields["invest_value"] = in.InvestValue.Round(2)
	}
	if in.ContractDurationYears != nil {
		fields["contract_duration_years"] = *in.ContractDurationYears
	}
	if normalized, ok, _ := normalizeContent(in.Content); ok {
		fields["content"] = normalized
	}
	if in.IsFinish != nil {
		fields["is_finish"] = *in.IsFinish
	}

	patch := store.JikPatch{Fields: fields}
	if in.Approvers != nil {
		approvers := toJikApprovers(*in.Approvers)
		patch.Approvers = &approvers
	}
	return patch
}
