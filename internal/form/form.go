// Package form holds draft state for the NDA, MOM and JIK editors and
// assembles the single payload each one submits.
package form

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dokflow/api/internal/content"
	"dokflow/api/internal/store"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrUnknownField    = errors.New("unknown field")
	ErrPendingFiles    = errors.New("attachments have files that are not uploaded yet")
)

type Approver struct {
	Name  string  `json:"name"`
	Type  *string `json:"type"`
	Email *string `json:"email"`
}

type NextAction struct {
	Action string `json:"action"`
	Target string `json:"target"`
	PIC    string `json:"pic"`
}

// FileRef describes a file already stored by the upload endpoint.
type FileRef struct {
	ID        uint   `json:"id,omitempty"`
	URL       string `json:"url"`
	Name      string `json:"name"`
	ObjectKey string `json:"object_key"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
}

// Blob is a file picked in the editor and not yet uploaded.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileItem is exactly one of a persisted Ref or a pending Blob.
type FileItem struct {
	Ref  *FileRef
	Blob *Blob
}

func (f FileItem) Pending() bool {
	return f.Ref == nil && f.Blob != nil
}

func (f FileItem) Name() string {
	switch {
	case f.Ref != nil:
		return f.Ref.Name
	case f.Blob != nil:
		return f.Blob.Name
	}
	return ""
}

type AttachmentSection struct {
	SectionName string     `json:"section_name"`
	Files       []FileItem `json:"-"`
}

// AttachmentPayload is an attachment section whose files are all stored.
type AttachmentPayload struct {
	SectionName string    `json:"section_name"`
	Files       []FileRef `json:"files"`
}

func appendItem[T any](list []T, item T) []T {
	out := make([]T, len(list), len(list)+1)
	copy(out, list)
	return append(out, item)
}

func removeAt[T any](list []T, i int) ([]T, error) {
	if i < 0 || i >= len(list) {
		return list, fmt.Errorf("remove %d of %d: %w", i, len(list), ErrIndexOutOfRange)
	}
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), nil
}

func replaceAt[T any](list []T, i int, item T) ([]T, error) {
	if i < 0 || i >= len(list) {
		return list, fmt.Errorf("update %d of %d: %w", i, len(list), ErrIndexOutOfRange)
	}
	out := make([]T, len(list))
	copy(out, list)
	out[i] = item
	return out, nil
}

func cloneSlice[T any](list []T) []T {
	if list == nil {
		return nil
	}
	out := make([]T, len(list))
	copy(out, list)
	return out
}

func newSection() content.Section {
	return content.Section{Title: "", Content: content.Node{Type: "doc"}}
}

func attachmentPayload(sections []AttachmentSection) ([]AttachmentPayload, error) {
	out := make([]AttachmentPayload, 0, len(sections))
	for i, section := range sections {
		files := make([]FileRef, 0, len(section.Files))
		for _, f := range section.Files {
			if f.Ref == nil {
				return nil, fmt.Errorf("section %d %q: %w", i, section.SectionName, ErrPendingFiles)
			}
			files = append(files, *f.Ref)
		}
		out = append(out, AttachmentPayload{SectionName: section.SectionName, Files: files})
	}
	return out, nil
}

func approversFrom(rows []store.Approver) []Approver {
	out := make([]Approver, 0, len(rows))
	for _, a := range rows {
		out = append(out, Approver{Name: a.Name, Type: a.Type, Email: a.Email})
	}
	return out
}

func sectionsFrom(raw []byte) []content.Section {
	sections, err := content.ParseSections(raw)
	if err != nil {
		return []content.Section{}
	}
	return sections
}

func checkApprovers(missing map[string]string, prefix string, approvers []Approver) {
	for i, a := range approvers {
		if strings.TrimSpace(a.Name) == "" {
			missing[fmt.Sprintf("%s[%d].name", prefix, i)] = "required"
		}
	}
}

func checkSections(missing map[string]string, sections []content.Section) {
	for i, s := range sections {
		if strings.TrimSpace(s.Title) == "" {
			missing[fmt.Sprintf("content[%d].title", i)] = "required"
		}
	}
}

func asString(field string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("%s: expected text, got %T", field, value)
}

func asInt(field string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", field, err)
		}
		return n, nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("%s: expected number, got %T", field, value)
}

func asUint(field string, value any) (uint, error) {
	n, err := asInt(field, value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	return uint(n), nil
}

func asBool(field string, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	}
	return false, fmt.Errorf("%s: expected boolean, got %T", field, value)
}
