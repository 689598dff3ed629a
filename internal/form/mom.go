package form

import (
	"fmt"
	"strings"

	"dokflow/api/internal/content"
	"dokflow/api/internal/store"
)

type MomValue struct {
	ID                 uint
	Title              string
	CompanyID          uint
	Date               string
	Time               string
	Venue              string
	CountAttendees     int
	Content            []content.Section
	IsFinish           bool
	Approvers          []Approver
	NextActions        []NextAction
	AttachmentSections []AttachmentSection
}

// MomPayload is the body of PUT /api/mom/{id}.
type MomPayload struct {
	Title              string              `json:"title"`
	CompanyID          uint                `json:"company_id"`
	Date               *string             `json:"date"`
	Time               string              `json:"time"`
	Venue              string              `json:"venue"`
	CountAttendees     int                 `json:"count_attendees"`
	Content            []content.Section   `json:"content"`
	IsFinish           bool                `json:"is_finish"`
	Approvers          []Approver          `json:"approvers"`
	NextActions        []NextAction        `json:"next_actions"`
	AttachmentSections []AttachmentPayload `json:"attachment_sections"`
}

// MomForm edits one minutes-of-meeting draft. List operations never
// modify a slice previously returned by Value.
type MomForm struct {
	value MomValue
}

func NewMomForm(initial MomValue) *MomForm {
	if initial.Content == nil {
		initial.Content = []content.Section{}
	}
	return &MomForm{value: initial}
}

// MomValueFrom loads a stored MOM into editor state.
func MomValueFrom(m store.Mom) MomValue {
	v := MomValue{
		ID:             m.ID,
		Title:          m.Title,
		CompanyID:      m.CompanyID,
		Time:           m.Time,
		Venue:          m.Venue,
		CountAttendees: m.CountAttendees,
		Content:        sectionsFrom(m.Content),
		IsFinish:       m.IsFinish,
		Approvers:      approversFrom(m.Approvers),
	}
	if m.Date != nil {
		v.Date = m.Date.Format("2006-01-02")
	}
	for _, a := range m.NextActions {
		v.NextActions = append(v.NextActions, NextAction{Action: a.Action, Target: a.Target, PIC: a.PIC})
	}
	for _, s := range m.AttachmentSections {
		section := AttachmentSection{SectionName: s.SectionName}
		for _, f := range s.Files {
			ref := FileRef{ID: f.ID, URL: f.URL, Name: f.Name, ObjectKey: f.ObjectKey, MimeType: f.MimeType, Size: f.Size}
			section.Files = append(section.Files, FileItem{Ref: &ref})
		}
		v.AttachmentSections = append(v.AttachmentSections, section)
	}
	return v
}

func (f *MomForm) Value() MomValue {
	return f.value
}

func (f *MomForm) Set(v MomValue) {
	f.value = v
}

// HandleChange sets one detail field by its JSON name.
func (f *MomForm) HandleChange(field string, value any) error {
	v := f.value
	var err error
	switch field {
	case "title":
		v.Title, err = asString(field, value)
	case "company_id":
		v.CompanyID, err = asUint(field, value)
	case "date":
		v.Date, err = asString(field, value)
	case "time":
		v.Time, err = asString(field, value)
	case "venue":
		v.Venue, err = asString(field, value)
	case "count_attendees":
		v.CountAttendees, err = asInt(field, value)
	case "is_finish":
		v.IsFinish, err = asBool(field, value)
	default:
		return fmt.Errorf("%s: %w", field, ErrUnknownField)
	}
	if err != nil {
		return err
	}
	f.value = v
	return nil
}

func (f *MomForm) AddApprover() {
	f.value.Approvers = appendItem(f.value.Approvers, Approver{})
}

func (f *MomForm) RemoveApprover(i int) error {
	list, err := removeAt(f.value.Approvers, i)
	if err != nil {
		return err
	}
	f.value.Approvers = list
	return nil
}

func (f *MomForm) UpdateApprover(i int, a Approver) error {
	list, err := replaceAt(f.value.Approvers, i, a)
	if err != nil {
		return err
	}
	f.value.Approvers = list
	return nil
}

func (f *MomForm) AddNextAction() {
	f.value.NextActions = appendItem(f.value.NextActions, NextAction{})
}

func (f *MomForm) RemoveNextAction(i int) error {
	list, err := removeAt(f.value.NextActions, i)
	if err != nil {
		return err
	}
	f.value.NextActions = list
	return nil
}

func (f *MomForm) UpdateNextAction(i int, a NextAction) error {
	list, err := replaceAt(f.value.NextActions, i, a)
	if err != nil {
		return err
	}
	f.value.NextActions = list
	return nil
}

func (f *MomForm) AddAttachmentSection() {
	f.value.AttachmentSections = appendItem(f.value.AttachmentSections, AttachmentSection{})
}

func (f *MomForm) RemoveAttachmentSection(i int) error {
	list, err := removeAt(f.value.AttachmentSections, i)
	if err != nil {
		return err
	}
	f.value.AttachmentSections = list
	return nil
}

func (f *MomForm) UpdateAttachmentSection(i int, s AttachmentSection) error {
	s.Files = cloneSlice(s.Files)
	list, err := replaceAt(f.value.AttachmentSections, i, s)
	if err != nil {
		return err
	}
	f.value.AttachmentSections = list
	return nil
}

// AddFiles appends picked files to attachment section i.
func (f *MomForm) AddFiles(i int, blobs ...Blob) error {
	if i < 0 || i >= len(f.value.AttachmentSections) {
		return fmt.Errorf("add files to section %d: %w", i, ErrIndexOutOfRange)
	}
	section := f.value.AttachmentSections[i]
	files := cloneSlice(section.Files)
	for _, b := range blobs {
		blob := b
		files = append(files, FileItem{Blob: &blob})
	}
	section.Files = files
	return f.UpdateAttachmentSection(i, section)
}

func (f *MomForm) RemoveFile(section, file int) error {
	if section < 0 || section >= len(f.value.AttachmentSections) {
		return fmt.Errorf("remove file from section %d: %w", section, ErrIndexOutOfRange)
	}
	s := f.value.AttachmentSections[section]
	files, err := removeAt(s.Files, file)
	if err != nil {
		return err
	}
	s.Files = files
	return f.UpdateAttachmentSection(section, s)
}

func (f *MomForm) AddContentSection() {
	f.value.Content = appendItem(f.value.Content, newSection())
}

func (f *MomForm) RemoveContentSection(i int) error {
	list, err := removeAt(f.value.Content, i)
	if err != nil {
		return err
	}
	f.value.Content = list
	return nil
}

func (f *MomForm) UpdateContentSection(i int, s content.Section) error {
	list, err := replaceAt(f.value.Content, i, s)
	if err != nil {
		return err
	}
	f.value.Content = list
	return nil
}

// Validate returns every missing required field keyed by its JSON path.
func (f *MomForm) Validate() map[string]string {
	v := f.value
	missing := map[string]string{}
	if strings.TrimSpace(v.Title) == "" {
		missing["title"] = "required"
	}
	if v.CompanyID == 0 {
		missing["company_id"] = "required"
	}
	if strings.TrimSpace(v.Date) == "" {
		missing["date"] = "required"
	}
	checkApprovers(missing, "approvers", v.Approvers)
	for i, a := range v.NextActions {
		if strings.TrimSpace(a.Action) == "" {
			missing[fmt.Sprintf("next_actions[%d].action", i)] = "required"
		}
	}
	for i, s := range v.AttachmentSections {
		if strings.TrimSpace(s.SectionName) == "" {
			missing[fmt.Sprintf("attachment_sections[%d].section_name", i)] = "required"
		}
	}
	checkSections(missing, v.Content)
	return missing
}

// Payload assembles the submission. Every attachment must already be
// uploaded.
func (f *MomForm) Payload() (MomPayload, error) {
	v := f.value
	attachments, err := attachmentPayload(v.AttachmentSections)
	if err != nil {
		return MomPayload{}, err
	}
	p := MomPayload{
		Title:              strings.TrimSpace(v.Title),
		CompanyID:          v.CompanyID,
		Time:               v.Time,
		Venue:              v.Venue,
		CountAttendees:     v.CountAttendees,
		Content:            cloneSlice(v.Content),
		IsFinish:           v.IsFinish,
		Approvers:          cloneSlice(v.Approvers),
		NextActions:        cloneSlice(v.NextActions),
		AttachmentSections: attachments,
	}
	if date := strings.TrimSpace(v.Date); date != "" {
		p.Date = &date
	}
	if p.Content == nil {
		p.Content = []content.Section{}
	}
	if p.Approvers == nil {
		p.Approvers = []Approver{}
	}
	if p.NextActions == nil {
		p.NextActions = []NextAction{}
	}
	return p, nil
}
